package commands

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scout/internal/output"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/store"
)

// NewRunCmd creates the run command group managing the test-case run ledger:
// submit queues a run, claim hands it to a worker, complete records the
// orchestrator's final result, and get/list inspect history.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage test-case runs",
		Long:  "Queue, claim, and complete test-case runs executed by the step orchestrator.",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(newRunExecCmd())
	cmd.AddCommand(newRunSubmitCmd())
	cmd.AddCommand(newRunClaimCmd())
	cmd.AddCommand(newRunCompleteCmd())
	cmd.AddCommand(newRunGetCmd())
	cmd.AddCommand(newRunListCmd())

	namespaceIndex(cmd)
	return cmd
}

type runSubmitResult struct {
	RunID string `json:"run_id"`
}

func newRunSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a new run for (domain, page)",
		Long:  "Queues a new run. Pass --request-id (or set SCOUT_REQUEST_ID) to make a retried submit idempotent: the same request ID replays the original run_id instead of queuing a duplicate.",
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, _ := cmd.Flags().GetString("domain")
			page, _ := cmd.Flags().GetString("page")
			totalSteps, _ := cmd.Flags().GetInt("total-steps")

			if domain == "" {
				return cmdErr(errors.New("--domain is required"))
			}
			if page == "" {
				return cmdErr(errors.New("--page is required"))
			}

			requestID := resolveRequestID(cmd)
			if requestID == "" {
				requestID = generateRequestID()
			}
			agentName := resolveWorkerName(cmd, "")
			if agentName == "" {
				agentName = "anonymous"
			}

			var result runSubmitResult
			if err := withDB(func(db *DB) error {
				r, err := store.RunIdempotent(db, agentName, requestID, "run.submit", func(tx *sql.Tx) (runSubmitResult, error) {
					id, err := store.CreateQueuedRunTx(tx, domain, page, totalSteps)
					if err != nil {
						return runSubmitResult{}, err
					}
					return runSubmitResult{RunID: id}, nil
				})
				if err != nil {
					return err
				}
				result = r
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(result)
		},
	}

	cmd.Flags().String("domain", "", "Target domain, e.g. example.com (required)")
	cmd.Flags().String("page", "", "Page path under the domain (required)")
	cmd.Flags().Int("total-steps", 0, "Number of steps the test case declares")

	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newRunClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim a queued run for this worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("id")
			if runID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			worker, err := requireWorkerName(cmd, "")
			if err != nil {
				return cmdErr(err)
			}

			if err := withDB(func(db *DB) error {
				return store.ClaimRun(db, runID, worker)
			}); err != nil {
				return err
			}

			type resp struct {
				RunID  string `json:"run_id"`
				Worker string `json:"worker"`
			}
			return output.PrintSuccess(resp{RunID: runID, Worker: worker})
		},
	}

	cmd.Flags().String("id", "", "Run ID (required)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func newRunCompleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Record a run's final RunResult",
		Long:  "Reads a JSON-encoded RunResult from --result-file, or stdin if omitted, and writes it onto the claimed run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("id")
			resultFile, _ := cmd.Flags().GetString("result-file")
			if runID == "" {
				return cmdErr(errors.New("--id is required"))
			}
			worker, err := requireWorkerName(cmd, "")
			if err != nil {
				return cmdErr(err)
			}

			raw, err := readResultInput(resultFile)
			if err != nil {
				return cmdErr(err)
			}

			var result scoutmodel.RunResult
			if err := json.Unmarshal(raw, &result); err != nil {
				return cmdErr(errors.New("invalid RunResult JSON: " + err.Error()))
			}

			if err := withDB(func(db *DB) error {
				return store.CompleteRun(db, runID, worker, result)
			}); err != nil {
				return err
			}

			type resp struct {
				RunID string `json:"run_id"`
			}
			return output.PrintSuccess(resp{RunID: runID})
		},
	}

	cmd.Flags().String("id", "", "Run ID (required)")
	cmd.Flags().String("result-file", "", "Path to a JSON RunResult file (default: read stdin)")
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}

func readResultInput(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(os.Stdin)
}

func newRunGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a single run",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, _ := cmd.Flags().GetString("id")
			if runID == "" {
				return cmdErr(errors.New("--id is required"))
			}

			var run store.RunRecord
			if err := withDB(func(db *DB) error {
				r, err := store.GetRun(db, runID)
				if err != nil {
					return err
				}
				run = r
				return nil
			}); err != nil {
				return err
			}

			return output.PrintSuccess(run)
		},
	}

	cmd.Flags().String("id", "", "Run ID (required)")
	return cmd
}

func newRunListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, _ := cmd.Flags().GetString("domain")
			limit, _ := cmd.Flags().GetInt("limit")

			var runs []store.RunRecord
			if err := withDB(func(db *DB) error {
				r, err := store.ListRecentRuns(db, domain, limit)
				if err != nil {
					return err
				}
				runs = r
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Count int               `json:"count"`
				Runs  []store.RunRecord `json:"runs"`
			}
			return output.PrintSuccess(resp{Count: len(runs), Runs: runs})
		},
	}

	cmd.Flags().String("domain", "", "Filter by domain")
	cmd.Flags().Int("limit", 20, "Max runs to return")
	return cmd
}
