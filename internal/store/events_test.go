package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

func TestInsertExecutionEvent_RoundTrip(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runID, err := CreateQueuedRun(db, "example.com", "/login", 3)
	require.NoError(t, err)

	ev := scoutmodel.ExecutionEvent{
		Timestamp:  time.Now().UTC(),
		Domain:     "example.com",
		Page:       "/login",
		Intent:     "login_button",
		Selector:   scoutmodel.Selector{Kind: scoutmodel.KindCSS, Value: "#login"},
		Outcome:    scoutmodel.OutcomeSuccess,
		LatencyMS:  42,
		AIAssisted: false,
		Tier:       scoutmodel.TierKnowledgeBase,
		Verb:       "click",
		StepNumber: 1,
		ContextKV:  map[string]string{"frame": "main", "retry": "0"},
	}

	require.NoError(t, InsertExecutionEvent(db, runID, ev))

	got, err := QueryExecutionEvents(db, "example.com", "/login", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Equal(t, runID, got[0].RunID)
	require.Equal(t, ev.Intent, got[0].Intent)
	require.Equal(t, ev.Selector, got[0].Selector)
	require.Equal(t, ev.Outcome, got[0].Outcome)
	require.Equal(t, ev.Tier, got[0].Tier)
	require.Equal(t, ev.Verb, got[0].Verb)
	require.Equal(t, ev.ContextKV, got[0].ContextKV)
}

func TestInsertExecutionEvent_EmptyContextKV(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runID, err := CreateQueuedRun(db, "example.com", "/cart", 1)
	require.NoError(t, err)

	ev := scoutmodel.ExecutionEvent{
		Timestamp: time.Now().UTC(),
		Domain:    "example.com",
		Page:      "/cart",
		Intent:    "checkout_button",
		Selector:  scoutmodel.Selector{Kind: scoutmodel.KindXPath, Value: "//button"},
		Outcome:   scoutmodel.OutcomeFail,
		Tier:      scoutmodel.TierAI,
		Verb:      "click",
	}
	require.NoError(t, InsertExecutionEvent(db, runID, ev))

	got, err := QueryExecutionEvents(db, "example.com", "/cart", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].ContextKV)
}

func TestQueryExecutionEvents_OrderedNewestFirst(t *testing.T) {
	db, err := InitDBWithPath(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	runID, err := CreateQueuedRun(db, "example.com", "/search", 2)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		ev := scoutmodel.ExecutionEvent{
			Timestamp:  time.Now().UTC(),
			Domain:     "example.com",
			Page:       "/search",
			Intent:     "search_box",
			Selector:   scoutmodel.Selector{Kind: scoutmodel.KindCSS, Value: "#q"},
			Outcome:    scoutmodel.OutcomeSuccess,
			Tier:       scoutmodel.TierHeuristic,
			Verb:       "fill",
			StepNumber: i,
		}
		require.NoError(t, InsertExecutionEvent(db, runID, ev))
	}

	got, err := QueryExecutionEvents(db, "example.com", "/search", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 2, got[0].StepNumber)
	require.Equal(t, 1, got[1].StepNumber)
}

func TestEncodeDecodeContextKV(t *testing.T) {
	kv := map[string]string{"a": "1", "b": "two words"}
	encoded, err := encodeContextKV(kv)
	require.NoError(t, err)
	require.NotEmpty(t, encoded)

	decoded := decodeContextKV(encoded)
	require.Equal(t, kv, decoded)

	require.Empty(t, mustEncodeEmpty(t))
}

func mustEncodeEmpty(t *testing.T) string {
	t.Helper()
	s, err := encodeContextKV(nil)
	require.NoError(t, err)
	return s
}
