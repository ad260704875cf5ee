package commands

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scout/internal/app"
	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/executor"
	"github.com/dotcommander/scout/internal/knowledge"
	"github.com/dotcommander/scout/internal/learning"
	"github.com/dotcommander/scout/internal/llm"
	"github.com/dotcommander/scout/internal/orchestrator"
	"github.com/dotcommander/scout/internal/output"
	"github.com/dotcommander/scout/internal/patternstore"
	"github.com/dotcommander/scout/internal/precheck"
	"github.com/dotcommander/scout/internal/recovery"
	"github.com/dotcommander/scout/internal/resolver"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/spa"
)

// stepFile is the on-disk shape accepted by `run exec`: a domain/page pair,
// a fake DOM (for driving the resolver/executor without a real browser,
// since browser driver implementation is out of scope), and the steps to
// run against it.
type stepFile struct {
	Domain   string               `json:"domain"`
	Page     string               `json:"page"`
	HTML     string               `json:"html,omitempty"`
	Elements []driver.FakeElement `json:"elements,omitempty"`
	Steps    []scoutmodel.Step    `json:"steps"`
}

func newRunExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <stepfile.json>",
		Short: "Drive a test case end to end against an injected page",
		Long:  "Reads a step file describing a domain/page and its steps, runs it through the Selector Resolver, SPA Coordinator, Pre/Post Checker, Action Executor, Recovery Handler, and Learning Engine, and prints the resulting RunResult.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return cmdErr(err)
			}

			var sf stepFile
			if err := json.Unmarshal(raw, &sf); err != nil {
				return cmdErr(errors.New("invalid step file: " + err.Error()))
			}
			if sf.Domain == "" {
				return cmdErr(errors.New("step file: domain is required"))
			}
			if len(sf.Steps) == 0 {
				return cmdErr(errors.New("step file: at least one step is required"))
			}

			noAI, _ := cmd.Flags().GetBool("no-ai")
			recoveryEnabled, _ := cmd.Flags().GetBool("recovery")

			page := driver.NewFakePage(sf.Page)
			if sf.HTML != "" {
				page.SetHTML(sf.HTML)
			}
			for i := range sf.Elements {
				page.AddElement(&sf.Elements[i])
			}

			kbDir, err := knowledgeBaseDir(cmd)
			if err != nil {
				return cmdErr(err)
			}

			kb := knowledge.New(kbDir, knowledge.DefaultOptions())
			if err := kb.LoadDomain(sf.Domain); err != nil {
				return cmdErr(err)
			}
			patterns := patternstore.New(kbDir)

			var aiCallback resolver.AICallback
			if !noAI {
				worker := resolveWorkerName(cmd, "")
				cb, err := llm.NewAICallback(worker)
				if err == nil {
					aiCallback = cb
				}
				// Unavailable/disabled CLI: tier 4 is skipped, not fatal.
			}

			learn := learning.New(learning.Config{
				QueueCapacity:       256,
				BatchSize:           16,
				MaintenanceInterval: 0,
				DecayRatePerDay:     0.01,
				DecayMaxAgeDays:     30,
				PruneMinConfidence:  0.3,
			}, kb, patterns)
			ctx := context.Background()
			learn.Start(ctx)
			defer learn.Stop()

			orch := orchestrator.New(
				orchestrator.Config{
					Domain:          sf.Domain,
					Page:            sf.Page,
					RecoveryEnabled: recoveryEnabled,
					AI:              aiCallback,
				},
				resolver.New(kb),
				spa.New(),
				precheck.New(),
				executor.New(executor.Config{}, spa.New()),
				recovery.New(precheck.New()),
				learn,
			)

			result := orch.Run(ctx, page, sf.Steps)
			return output.PrintSuccess(result)
		},
	}

	cmd.Flags().Bool("no-ai", false, "Skip the AI resolution tier even if a CLI agent is configured")
	cmd.Flags().Bool("recovery", true, "Enable the Recovery Handler on step failure")
	cmd.Flags().String("kb-dir", "", "Knowledge Store root (default: $SCOUT_KB_DIR or <config dir>/knowledge)")
	return cmd
}

// knowledgeBaseDir resolves the on-disk root for selectors/patterns/recovery
// data: --kb-dir, then SCOUT_KB_DIR, then <config dir>/knowledge.
func knowledgeBaseDir(cmd *cobra.Command) (string, error) {
	if v, err := cmd.Flags().GetString("kb-dir"); err == nil && v != "" {
		return v, nil
	}
	if v := os.Getenv("SCOUT_KB_DIR"); v != "" {
		return v, nil
	}
	dir, err := app.ConfigDir()
	if err != nil {
		return "", err
	}
	return dir + "/knowledge", nil
}
