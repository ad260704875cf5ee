package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scout/internal/store"
)

// resolveWorkerName resolves the identity used for run-claim attribution and
// idempotency-key scoping.
// Precedence:
// 1) per-command flag (e.g. --worker on a subcommand)
// 2) global flag --worker
// 3) env var SCOUT_WORKER
func resolveWorkerName(cmd *cobra.Command, perCmdFlag string) string {
	raw := ""
	if perCmdFlag != "" {
		if v, err := cmd.Flags().GetString(perCmdFlag); err == nil && v != "" {
			raw = v
		}
	}
	if raw == "" {
		if v, err := cmd.Flags().GetString("worker"); err == nil && v != "" {
			raw = v
		}
	}
	if raw == "" {
		raw = os.Getenv("SCOUT_WORKER")
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func requireWorkerName(cmd *cobra.Command, perCmdFlag string) (string, error) {
	worker := resolveWorkerName(cmd, perCmdFlag)
	if worker == "" {
		return "", errors.New("worker is required (set --worker or SCOUT_WORKER)")
	}
	if len(worker) > store.MaxEventAgentNameLength {
		return "", fmt.Errorf("worker name exceeds maximum length (%d chars)", store.MaxEventAgentNameLength)
	}
	return worker, nil
}
