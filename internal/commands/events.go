package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scout/internal/output"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/store"
)

// NewEventsCmd creates the events command group exposing persisted
// ExecutionEvent history for a (domain, page) pair.
func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect persisted execution events",
		Args:  cobra.NoArgs,
	}
	cmd.AddCommand(newEventsListCmd())
	namespaceIndex(cmd)
	return cmd
}

func newEventsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent execution events for a domain/page",
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, _ := cmd.Flags().GetString("domain")
			page, _ := cmd.Flags().GetString("page")
			limit, _ := cmd.Flags().GetInt("limit")

			if domain == "" {
				return cmdErr(errors.New("--domain is required"))
			}
			if page == "" {
				return cmdErr(errors.New("--page is required"))
			}

			var events []scoutmodel.ExecutionEvent
			if err := withDB(func(db *DB) error {
				ev, err := store.QueryExecutionEvents(db, domain, page, limit)
				if err != nil {
					return err
				}
				events = ev
				return nil
			}); err != nil {
				return err
			}

			type resp struct {
				Domain string                       `json:"domain"`
				Page   string                       `json:"page"`
				Count  int                          `json:"count"`
				Events []scoutmodel.ExecutionEvent `json:"events"`
			}
			return output.PrintSuccess(resp{Domain: domain, Page: page, Count: len(events), Events: events})
		},
	}

	cmd.Flags().String("domain", "", "Domain to query (required)")
	cmd.Flags().String("page", "", "Page path to query (required)")
	cmd.Flags().Int("limit", 50, "Max events to return")
	return cmd
}
