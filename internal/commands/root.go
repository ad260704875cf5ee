package commands

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scout/internal/app"
	"github.com/dotcommander/scout/internal/output"
)

// Execute runs the CLI application.
func Execute(version string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	root := &cobra.Command{
		Use:           "scout",
		Short:         "AI-assisted web test executor (resolve selectors, run steps, learn patterns)",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				type resp struct {
					Version string `json:"version"`
				}
				return output.PrintSuccess(resp{Version: version})
			}
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := app.EnsureConfigDir(); err != nil {
				return err
			}

			// Wire --db-path into app-level resolver.
			if dbPath, err := cmd.Flags().GetString("db-path"); err == nil && dbPath != "" {
				app.SetDBPathOverride(dbPath)
			}

			return nil
		},
	}

	root.PersistentFlags().String("db-path", "", "Override database path")
	root.PersistentFlags().StringP("worker", "w", "", "Worker identity for run claims (default: $SCOUT_WORKER)")
	root.PersistentFlags().String("request-id", "", "Idempotency key for mutating operations (default: $SCOUT_REQUEST_ID)")
	root.Flags().BoolP("version", "v", false, "version for scout")

	root.AddCommand(NewRunCmd())
	root.AddCommand(NewEventsCmd())
	root.AddCommand(NewDBCmd())
	root.AddCommand(NewDoctorCmd())
	root.AddCommand(NewUpgradeCmd())
	root.AddCommand(NewStatusCmd(root)) // root passed for --schema mode
	root.AddCommand(NewSchemaCmd(root))

	err := root.Execute()
	if err != nil {
		var pe printedError
		if !errors.As(err, &pe) {
			slog.Default().Error("command failed", "error", err.Error())
		}
	}
	return err
}
