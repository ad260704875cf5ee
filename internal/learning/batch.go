package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// trainingBatch is the on-disk shape of one flushed batch, grounded on the
// original training-data collector's per-batch file (see DESIGN.md).
type trainingBatch struct {
	ID            string                      `json:"id"`
	Source        string                      `json:"source"`
	CollectedAt   time.Time                   `json:"collected_at"`
	EventsCount   int                         `json:"events_count"`
	PatternsCount int                         `json:"patterns_count"`
	Events        []scoutmodel.ExecutionEvent `json:"events"`
}

// writeTrainingBatch persists one batch as
// batch_<source>_<timestamp>.json directly under dir.
func writeTrainingBatch(dir, source string, events []scoutmodel.ExecutionEvent, patternsPromoted int, now time.Time) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	id := fmt.Sprintf("batch_%s_%s", source, now.UTC().Format("20060102_150405"))
	batch := trainingBatch{
		ID:            id,
		Source:        source,
		CollectedAt:   now,
		EventsCount:   len(events),
		PatternsCount: patternsPromoted,
		Events:        events,
	}

	raw, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal training batch %s: %w", id, err)
	}

	path := filepath.Join(dir, id+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil { //nolint:gosec // G306: training batches aren't secrets
		return fmt.Errorf("write training batch %s: %w", path, err)
	}
	return nil
}
