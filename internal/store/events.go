package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// MaxContextKVLength bounds the encoded ContextKV JSON blob stored per event.
const MaxContextKVLength = 8192

// MaxEventAgentNameLength bounds the worker/agent identity attached to a
// command invocation (idempotency scoping, run claims).
const MaxEventAgentNameLength = 128

// encodeContextKV serializes an ExecutionEvent's free-form ContextKV map into
// a single JSON blob, building it incrementally with sjson rather than
// round-tripping through encoding/json.Marshal since callers only ever set a
// handful of string keys.
func encodeContextKV(kv map[string]string) (string, error) {
	if len(kv) == 0 {
		return "", nil
	}
	doc := "{}"
	for k, v := range kv {
		var err error
		doc, err = sjson.Set(doc, k, v)
		if err != nil {
			return "", fmt.Errorf("encode context_kv key %q: %w", k, err)
		}
	}
	if len(doc) > MaxContextKVLength {
		return "", fmt.Errorf("context_kv exceeds max length (%d)", MaxContextKVLength)
	}
	return doc, nil
}

// decodeContextKV reads a stored context_kv blob back into a map, using
// gjson's ForEach to avoid a full struct-tagged unmarshal for an
// arbitrary-shaped object.
func decodeContextKV(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	gjson.Parse(raw).ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = value.String()
		return true
	})
	if len(out) == 0 {
		return nil
	}
	return out
}

// InsertExecutionEvent persists one ExecutionEvent row for runID, for
// QueryExecutionEvents (and `scout events list`) to read back. The Learning
// Engine does not call it; its event queue lives only in memory.
func InsertExecutionEvent(db *sql.DB, runID string, ev scoutmodel.ExecutionEvent) error {
	kv, err := encodeContextKV(ev.ContextKV)
	if err != nil {
		return err
	}
	contextKV := sql.NullString{String: kv, Valid: kv != ""}

	return RetryWithBackoff(context.Background(), func() error {
		_, execErr := db.ExecContext(context.Background(), `
			INSERT INTO execution_events
				(run_id, step_number, domain, page, intent, selector_kind, selector_value,
				 outcome, latency_ms, ai_assisted, tier, verb, recovery_key, context_kv, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, runID, ev.StepNumber, ev.Domain, ev.Page, string(ev.Intent),
			string(ev.Selector.Kind), ev.Selector.Value, string(ev.Outcome), ev.LatencyMS,
			boolToInt(ev.AIAssisted), string(ev.Tier), ev.Verb, nullableString(ev.RecoveryKey), contextKV, ev.Timestamp)
		return execErr
	})
}

// QueryExecutionEvents returns the most recent events for (domain, page),
// newest first, decoding each row's context_kv blob back into a map.
func QueryExecutionEvents(db *sql.DB, domain, page string, limit int) ([]scoutmodel.ExecutionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	rows, err := db.QueryContext(context.Background(), `
		SELECT run_id, step_number, domain, page, intent, selector_kind, selector_value,
		       outcome, latency_ms, ai_assisted, tier, verb, COALESCE(recovery_key, ''),
		       COALESCE(context_kv, ''), created_at
		FROM execution_events
		WHERE domain = ? AND page = ?
		ORDER BY id DESC LIMIT ?
	`, domain, page, limit)
	if err != nil {
		return nil, fmt.Errorf("query execution events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]scoutmodel.ExecutionEvent, 0, limit)
	for rows.Next() {
		var (
			runID                       string
			aiAssisted                  int
			kind, value, tier, verb     string
			intent, recoveryKey, ctxRaw string
		)
		var ev scoutmodel.ExecutionEvent
		if err := rows.Scan(&runID, &ev.StepNumber, &ev.Domain, &ev.Page, &intent, &kind, &value,
			&ev.Outcome, &ev.LatencyMS, &aiAssisted, &tier, &verb, &recoveryKey, &ctxRaw, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan execution event: %w", err)
		}
		ev.RunID = runID
		ev.Intent = scoutmodel.Intent(intent)
		ev.Selector = scoutmodel.Selector{Kind: scoutmodel.SelectorKind(kind), Value: value}
		ev.AIAssisted = aiAssisted != 0
		ev.Tier = scoutmodel.Tier(tier)
		ev.Verb = verb
		ev.RecoveryKey = recoveryKey
		ev.ContextKV = decodeContextKV(ctxRaw)
		out = append(out, ev)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
