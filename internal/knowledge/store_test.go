package knowledge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

func TestRecordOutcomeCreatesAndSortsSelectors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())

	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}
	rec, err := store.RecordOutcome(ctx, "example.com", "/login", "login_button", sel, true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)
	require.Len(t, rec.Selectors, 1)
	assert.GreaterOrEqual(t, rec.Selectors[0].Confidence, 0.9)

	found, ok := store.Lookup("example.com", "/login", "login_button")
	require.True(t, ok)
	assert.Equal(t, "#login", found.Selectors[0].Selector.Value)
}

func TestRecordOutcomeMonotonicity(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	sel := scoutmodel.Selector{Value: "#submit", Kind: scoutmodel.KindCSS}

	rec, err := store.RecordOutcome(ctx, "acme.test", "/checkout", "submit_button", sel, true, 0.6, scoutmodel.TierHeuristic, false, nil)
	require.NoError(t, err)
	before := rec.Selectors[0].Confidence

	rec, err = store.RecordOutcome(ctx, "acme.test", "/checkout", "submit_button", sel, true, 0, scoutmodel.TierHeuristic, false, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rec.Selectors[0].Confidence, before)

	afterSuccess := rec.Selectors[0].Confidence
	rec, err = store.RecordOutcome(ctx, "acme.test", "/checkout", "submit_button", sel, false, 0, scoutmodel.TierHeuristic, false, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.Selectors[0].Confidence, afterSuccess)
}

func TestFindByIntentCrossDomainIsolation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}

	_, err := store.RecordOutcome(ctx, "a.test", "/login", "login_button", sel, true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)

	matches := store.FindByIntent("login_button", "b.test", "", false)
	assert.Empty(t, matches, "cross-domain lookup must be disabled by default")

	matches = store.FindByIntent("login_button", "b.test", "", true)
	assert.Empty(t, matches, "cross-domain lookup stays disabled unless the store option is also enabled")
}

func TestFindByIntentFuzzyMatch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}

	_, err := store.RecordOutcome(ctx, "example.com", "/login", scoutmodel.NormalizeIntent("login"), sel, true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)

	matches := store.FindByIntent(scoutmodel.NormalizeIntent("sign in"), "example.com", "", false)
	require.NotEmpty(t, matches)
	assert.Equal(t, "#login", matches[0].Record.Selectors[0].Selector.Value)
}

func TestPruneRemovesBelowThresholdAndEmptyRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	weak := scoutmodel.Selector{Value: ".maybe-login", Kind: scoutmodel.KindCSS}

	_, err := store.RecordOutcome(ctx, "example.com", "/login", "login_button", weak, false, 0.2, scoutmodel.TierHeuristic, false, nil)
	require.NoError(t, err)

	require.NoError(t, store.Prune(ctx, 0.3))
	_, ok := store.Lookup("example.com", "/login", "login_button")
	assert.False(t, ok, "record with no selectors above threshold must be removed")
}

func TestApplyDecayIdempotentAtZeroElapsed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}

	rec, err := store.RecordOutcome(ctx, "example.com", "/login", "login_button", sel, true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)
	before := rec.Selectors[0].Confidence

	require.NoError(t, store.ApplyDecay(ctx, 0.05, 30))
	rec, ok := store.Lookup("example.com", "/login", "login_button")
	require.True(t, ok)
	assert.InDelta(t, before, rec.Selectors[0].Confidence, 0.2, "near-zero elapsed time should barely move confidence")
}

func TestPersistsAcrossStoreInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}

	store1 := New(dir, DefaultOptions())
	_, err := store1.RecordOutcome(ctx, "example.com", "/login", "login_button", sel, true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)

	store2 := New(dir, DefaultOptions())
	require.NoError(t, store2.LoadDomain("example.com"))
	rec, ok := store2.Lookup("example.com", "/login", "login_button")
	require.True(t, ok)
	assert.Equal(t, "#login", rec.Selectors[0].Selector.Value)
}

func TestExportImportKeepsHigherConfidence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}

	_, err := store.RecordOutcome(ctx, "example.com", "/login", "login_button", sel, true, 0.4, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)

	payload := store.Export("example.com")
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	dir2 := t.TempDir()
	store2 := New(dir2, DefaultOptions())
	imported, skipped, err := store2.Import(ctx, raw, MergeKeepHigherConfidence)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, skipped)

	rec, ok := store2.Lookup("example.com", "/login", "login_button")
	require.True(t, ok)
	assert.Equal(t, "#login", rec.Selectors[0].Selector.Value)

	// A failure lowers the local copy below the exported confidence, so
	// re-importing the export replaces it instead of being skipped.
	_, err = store2.RecordOutcome(ctx, "example.com", "/login", "login_button", sel, false, 0, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)
	imported, skipped, err = store2.Import(ctx, raw, MergeKeepHigherConfidence)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 0, skipped)
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())

	_, _, err := store.Import(ctx, []byte(`{"type": "knowledge_snapshot"}`), MergeKeepHigherConfidence)
	require.Error(t, err)
}

func TestLookupMissReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	_, ok := store.Lookup("nowhere.test", "/", "nothing")
	assert.False(t, ok)
}

func TestRecordOutcomeTimestamp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := New(dir, DefaultOptions())
	sel := scoutmodel.Selector{Value: "#login", Kind: scoutmodel.KindCSS}

	before := time.Now()
	rec, err := store.RecordOutcome(ctx, "example.com", "/login", "login_button", sel, true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)
	assert.False(t, rec.CreatedAt.Before(before.Add(-time.Second)))
	assert.False(t, rec.UpdatedAt.Before(rec.CreatedAt))
}
