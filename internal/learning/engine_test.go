package learning

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/knowledge"
	"github.com/dotcommander/scout/internal/patternstore"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

func newTestEngine(t *testing.T) (*Engine, *knowledge.Store, *patternstore.Store) {
	t.Helper()
	kb := knowledge.New(t.TempDir(), knowledge.DefaultOptions())
	pat := patternstore.New(t.TempDir())
	cfg := Config{BatchSize: 3, QueueCapacity: 50}
	e := New(cfg, kb, pat)
	e.Start(context.Background())
	t.Cleanup(e.Stop)
	return e, kb, pat
}

func sampleEvent(domain, page string, intent scoutmodel.Intent, verb string, success bool) scoutmodel.ExecutionEvent {
	outcome := scoutmodel.OutcomeFail
	if success {
		outcome = scoutmodel.OutcomeSuccess
	}
	return scoutmodel.ExecutionEvent{
		Timestamp: time.Now(),
		Domain:    domain,
		Page:      page,
		Intent:    intent,
		Selector:  scoutmodel.Selector{Value: "#" + string(intent), Kind: scoutmodel.KindCSS},
		Outcome:   outcome,
		Verb:      verb,
		Tier:      scoutmodel.TierHeuristic,
	}
}

func TestEnqueueThenFlushRecordsOutcomeInKnowledgeStore(t *testing.T) {
	e, kb, _ := newTestEngine(t)
	e.Enqueue(sampleEvent("example.com", "/login", "username", "fill", true))

	require.NoError(t, e.Flush(context.Background()))

	rec, ok := kb.Lookup("example.com", "/login", "username")
	require.True(t, ok)
	assert.Equal(t, "#username", rec.Selectors[0].Selector.Value)
}

func TestEnqueueAutoBatchesAtBatchSize(t *testing.T) {
	e, kb, _ := newTestEngine(t)
	e.Enqueue(sampleEvent("example.com", "/a", "one", "click", true))
	e.Enqueue(sampleEvent("example.com", "/a", "two", "click", true))
	e.Enqueue(sampleEvent("example.com", "/a", "three", "click", true))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := kb.Lookup("example.com", "/a", "three"); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("batch of size 3 was never auto-flushed into the knowledge store")
}

func TestQueueOverflowDropsOldestAndCounts(t *testing.T) {
	kb := knowledge.New(t.TempDir(), knowledge.DefaultOptions())
	cfg := Config{BatchSize: 1000, QueueCapacity: 2}
	e := New(cfg, kb, nil)
	// Worker not started: queue fills up and the third Enqueue must evict.
	e.Enqueue(sampleEvent("d", "/p", "a", "click", true))
	e.Enqueue(sampleEvent("d", "/p", "b", "click", true))
	e.Enqueue(sampleEvent("d", "/p", "c", "click", true))

	assert.Equal(t, 1, e.DroppedCount())
	assert.Len(t, e.queue, 2)
}

func TestSelectorEvolutionLedgerTracksTransition(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Enqueue(sampleEvent("example.com", "/login", "submit", "click", true))
	require.NoError(t, e.Flush(context.Background()))

	ev2 := sampleEvent("example.com", "/login", "submit", "click", true)
	ev2.Selector.Value = "#submit-v2"
	e.Enqueue(ev2)
	require.NoError(t, e.Flush(context.Background()))

	snap := e.evolution.Snapshot()
	key := evolutionKey{Domain: "example.com", Page: "/login", Intent: "submit"}
	rec, ok := snap[key]
	require.True(t, ok)
	assert.Equal(t, "#submit", rec.Original.Value)
	assert.Equal(t, "#submit-v2", rec.Current.Value)
	require.Len(t, rec.Transitions, 1)
}

func TestRecoveryLedgerAggregatesByDomainKindAction(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ev := sampleEvent("example.com", "/login", "submit", "click", true)
	ev.RecoveryKey = EncodeRecoveryKey(scoutmodel.FailureModalBlocking, "dismiss_modal")
	e.Enqueue(ev)

	ev2 := sampleEvent("example.com", "/login", "submit", "click", false)
	ev2.RecoveryKey = EncodeRecoveryKey(scoutmodel.FailureModalBlocking, "dismiss_modal")
	e.Enqueue(ev2)

	require.NoError(t, e.Flush(context.Background()))

	snap := e.recovery.Snapshot()
	key := recoveryKey{Domain: "example.com", Kind: scoutmodel.FailureModalBlocking, Action: "dismiss_modal"}
	stats, ok := snap[key]
	require.True(t, ok)
	assert.Equal(t, 2, stats.Attempts)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestPatternMiningPromotesFrequentSuccessfulSequence(t *testing.T) {
	e, _, pat := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < promotionThreshold; i++ {
		e.Enqueue(sampleEvent("shop.test", "/cart", "username", "fill", true))
		e.Enqueue(sampleEvent("shop.test", "/cart", "password", "fill", true))
		require.NoError(t, e.Flush(ctx))
	}

	fp := scoutmodel.PatternFingerprint([]scoutmodel.ExecutionEvent{
		sampleEvent("shop.test", "/cart", "username", "fill", true),
		sampleEvent("shop.test", "/cart", "password", "fill", true),
	})
	id := scoutmodel.PatternIDFromFingerprint(fp)

	got, ok, err := pat.Get("shop.test", id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.GreaterOrEqual(t, got.UsageStats.TimesApplied, 0)
	assert.Equal(t, float64(1), got.Confidence)
}

func TestCrossDomainPromotionCopiesAIAssistedUniversalIntent(t *testing.T) {
	e, _, pat := newTestEngine(t)
	ev := sampleEvent("anysite.test", "/", "login_form", "click", true)
	ev.AIAssisted = true
	e.Enqueue(ev)
	require.NoError(t, e.Flush(context.Background()))

	got, ok, err := pat.Get(globalCategory, "global_login")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, globalCategory, got.Category)
}

func TestTrainingBatchFileWrittenWhenDirConfigured(t *testing.T) {
	kb := knowledge.New(t.TempDir(), knowledge.DefaultOptions())
	trainDir := t.TempDir() + "/training"
	cfg := Config{BatchSize: 1, QueueCapacity: 10, TrainingDir: trainDir, Source: "test_execution"}
	e := New(cfg, kb, nil)
	e.Start(context.Background())
	defer e.Stop()

	e.Enqueue(sampleEvent("example.com", "/a", "one", "click", true))
	require.NoError(t, e.Flush(context.Background()))

	entries, err := os.ReadDir(trainDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}
