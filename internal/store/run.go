package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// GenerateRunID returns a new globally unique run identifier.
func GenerateRunID() string {
	return generatePrefixedID("run")
}

// RunRecord is the persisted row for one test-case run, covering both
// lifecycle bookkeeping (claim, status, timestamps) and the summary metrics
// RunResult.Metrics carries once the run completes.
type RunRecord struct {
	ID              string
	Domain          string
	Page            string
	Status          string
	TotalSteps      int
	Passed          int
	Failed          int
	Recovered       int
	DurationMS      int64
	KBHits          int
	AICalls         int
	AIDependencyPct float64
	RecoveryRate    float64
	ClaimedBy       string
	ClaimedAt       sql.NullTime
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
	CreatedAt       time.Time
}

// CreateQueuedRun inserts a new run row in the "queued" state and returns its
// generated ID.
func CreateQueuedRun(db *sql.DB, domain, page string, totalSteps int) (string, error) {
	id := GenerateRunID()
	err := RetryWithBackoff(context.Background(), func() error {
		_, execErr := db.ExecContext(context.Background(), `
			INSERT INTO runs (id, domain, page, status, total_steps)
			VALUES (?, ?, ?, 'queued', ?)
		`, id, domain, page, totalSteps)
		return execErr
	})
	if err != nil {
		return "", fmt.Errorf("create queued run: %w", err)
	}
	return id, nil
}

// CreateQueuedRunTx is the transaction-scoped twin of CreateQueuedRun, for use
// inside a RunIdempotent operation callback.
func CreateQueuedRunTx(tx *sql.Tx, domain, page string, totalSteps int) (string, error) {
	id := GenerateRunID()
	_, err := tx.ExecContext(context.Background(), `
		INSERT INTO runs (id, domain, page, status, total_steps)
		VALUES (?, ?, ?, 'queued', ?)
	`, id, domain, page, totalSteps)
	if err != nil {
		return "", fmt.Errorf("create queued run: %w", err)
	}
	return id, nil
}

// ClaimRun atomically transitions a queued run to "running" under the given
// worker name, returning RunClaimContentionError if another worker already
// holds it.
func ClaimRun(db *sql.DB, runID, worker string) error {
	return Transact(db, func(tx *sql.Tx) error {
		var status string
		var claimedBy sql.NullString
		err := tx.QueryRowContext(context.Background(), `
			SELECT status, claimed_by FROM runs WHERE id = ?
		`, runID).Scan(&status, &claimedBy)
		if err == sql.ErrNoRows {
			return fmt.Errorf("run %s not found", runID)
		}
		if err != nil {
			return fmt.Errorf("load run %s: %w", runID, err)
		}
		if status != "queued" && claimedBy.String != worker {
			return &RunClaimContentionError{RunID: runID, CurrentOwner: claimedBy.String, RequestedBy: worker}
		}

		_, err = tx.ExecContext(context.Background(), `
			UPDATE runs
			SET status = 'running', claimed_by = ?, claimed_at = CURRENT_TIMESTAMP, started_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, worker, runID)
		if err != nil {
			return fmt.Errorf("claim run %s: %w", runID, err)
		}
		return nil
	})
}

// CompleteRun writes the orchestrator's final RunResult back onto its run
// row. worker must match the claim recorded by ClaimRun, or
// RunClaimNotOwnedError is returned.
func CompleteRun(db *sql.DB, runID, worker string, result scoutmodel.RunResult) error {
	return Transact(db, func(tx *sql.Tx) error {
		var claimedBy sql.NullString
		if err := tx.QueryRowContext(context.Background(), `
			SELECT claimed_by FROM runs WHERE id = ?
		`, runID).Scan(&claimedBy); err != nil {
			return fmt.Errorf("load run %s claim: %w", runID, err)
		}
		if claimedBy.String != worker {
			return &RunClaimNotOwnedError{RunID: runID, RequestedBy: worker}
		}

		_, err := tx.ExecContext(context.Background(), `
			UPDATE runs
			SET status = ?, total_steps = ?, passed = ?, failed = ?, recovered = ?,
			    duration_ms = ?, kb_hits = ?, ai_calls = ?, ai_dependency_pct = ?,
			    recovery_rate = ?, completed_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, string(result.Status), result.TotalSteps, result.Passed, result.Failed, result.Recovered,
			result.DurationMS, result.Metrics.KBHits, result.Metrics.AICalls, result.Metrics.AIDependencyPct,
			result.Metrics.RecoveryRate, runID)
		if err != nil {
			return fmt.Errorf("complete run %s: %w", runID, err)
		}

		for _, sr := range result.PerStep {
			if _, err := tx.ExecContext(context.Background(), `
				INSERT INTO step_results (run_id, step_number, action, target, status, selector_used, duration_ms, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(run_id, step_number) DO UPDATE SET
					status = excluded.status, selector_used = excluded.selector_used,
					duration_ms = excluded.duration_ms, error = excluded.error
			`, runID, sr.Number, string(sr.Action), sr.Target, string(sr.Status), sr.SelectorUsed, sr.DurationMS, sr.Error); err != nil {
				return fmt.Errorf("record step %d for run %s: %w", sr.Number, runID, err)
			}
		}
		return nil
	})
}

// GetRun loads a single run row by ID.
func GetRun(db *sql.DB, runID string) (RunRecord, error) {
	var r RunRecord
	err := db.QueryRowContext(context.Background(), `
		SELECT id, domain, page, status, total_steps, passed, failed, recovered,
		       duration_ms, kb_hits, ai_calls, ai_dependency_pct, recovery_rate,
		       COALESCE(claimed_by, ''), claimed_at, started_at, completed_at, created_at
		FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.Domain, &r.Page, &r.Status, &r.TotalSteps, &r.Passed, &r.Failed, &r.Recovered,
		&r.DurationMS, &r.KBHits, &r.AICalls, &r.AIDependencyPct, &r.RecoveryRate,
		&r.ClaimedBy, &r.ClaimedAt, &r.StartedAt, &r.CompletedAt, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return RunRecord{}, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("load run %s: %w", runID, err)
	}
	return r, nil
}

// ListRecentRuns returns the most recent runs, newest first, optionally
// filtered by domain.
func ListRecentRuns(db *sql.DB, domain string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	query := `
		SELECT id, domain, page, status, total_steps, passed, failed, recovered,
		       duration_ms, kb_hits, ai_calls, ai_dependency_pct, recovery_rate,
		       COALESCE(claimed_by, ''), claimed_at, started_at, completed_at, created_at
		FROM runs`
	args := []any{}
	if domain != "" {
		query += " WHERE domain = ?"
		args = append(args, domain)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]RunRecord, 0, limit)
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Domain, &r.Page, &r.Status, &r.TotalSteps, &r.Passed, &r.Failed, &r.Recovered,
			&r.DurationMS, &r.KBHits, &r.AICalls, &r.AIDependencyPct, &r.RecoveryRate,
			&r.ClaimedBy, &r.ClaimedAt, &r.StartedAt, &r.CompletedAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
