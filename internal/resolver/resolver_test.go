package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/scout/internal/framework"
	"github.com/dotcommander/scout/internal/knowledge"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

func newTestStore(t *testing.T) *knowledge.Store {
	t.Helper()
	return knowledge.New(t.TempDir(), knowledge.DefaultOptions())
}

func TestResolveKnowledgeBaseHitWinsWhenConfident(t *testing.T) {
	kb := newTestStore(t)
	ctx := context.Background()
	intent := scoutmodel.NormalizeIntent("click login button")

	_, err := kb.RecordOutcome(ctx, "example.com", "/login", intent,
		scoutmodel.Selector{Value: `[data-testid="login-btn"]`, Kind: scoutmodel.KindTestID},
		true, 0.9, scoutmodel.TierKnowledgeBase, false, nil)
	require.NoError(t, err)

	r := New(kb)
	result := r.Resolve(ctx, Input{
		Domain:    "example.com",
		Page:      "/login",
		RawTarget: "click login button",
	})

	assert.Equal(t, scoutmodel.TierKnowledgeBase, result.Tier)
	assert.Equal(t, `[data-testid="login-btn"]`, result.Selector.Value)
	assert.Equal(t, 1, r.Counters.KnowledgeBase)
}

func TestResolveHeuristicWinsWhenNoKBEntry(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)
	page := `<html><body><button data-test="sign-in-btn">Sign In</button></body></html>`

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/login",
		RawTarget: "click sign in",
		PageHTML:  page,
	})

	assert.Equal(t, scoutmodel.TierHeuristic, result.Tier)
	assert.Equal(t, `[data-test="sign-in-btn"]`, result.Selector.Value)
	assert.GreaterOrEqual(t, result.Confidence, SemHeuristicThreshold)
}

func TestResolveFrameworkRuleWhenNoHTML(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/login",
		RawTarget: "click login button",
		Framework: framework.Material,
	})

	assert.Equal(t, scoutmodel.TierFrameworkRule, result.Tier)
	assert.NotEmpty(t, result.Selector.Value)
	assert.Equal(t, 1, r.Counters.FrameworkRule)
}

func TestResolveAICallbackUsedWhenEarlierTiersMiss(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)

	called := false
	ai := func(ctx context.Context, req AIRequest) (AIResponse, error) {
		called = true
		return AIResponse{
			Selector:   scoutmodel.Selector{Value: "#weird-widget", Kind: scoutmodel.KindCSS},
			Confidence: 0.95,
		}, nil
	}

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/checkout",
		RawTarget: "click the mystery widget",
		AI:        ai,
	})

	assert.True(t, called)
	assert.Equal(t, scoutmodel.TierAI, result.Tier)
	assert.Equal(t, "#weird-widget", result.Selector.Value)
	assert.LessOrEqual(t, result.Confidence, AIConfidenceCap)
	assert.Equal(t, 1, r.Counters.AI)
}

func TestResolveFallbackWhenEverythingMisses(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/checkout",
		RawTarget: "click the mystery widget",
	})

	assert.Equal(t, scoutmodel.TierFallback, result.Tier)
	assert.Equal(t, FallbackConfidence, result.Confidence)
	assert.Equal(t, 1, r.Counters.Fallback)
}

func TestResolveRawSelectorUsesExtractedIntent(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)
	page := `<html><body><button data-test="sign-in-btn">Sign In</button></body></html>`

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/login",
		RawTarget: `[data-test*="sign"]`,
		PageHTML:  page,
	})

	assert.NotEqual(t, scoutmodel.TierFailed, result.Tier)
	assert.NotEmpty(t, result.Selector.Value)
}

func TestResolveEveryTierFailsReturnsFailedTier(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/blank",
		RawTarget: "",
	})

	assert.Equal(t, scoutmodel.TierFailed, result.Tier)
	assert.True(t, result.Failed())
}

func TestResolveAIErrorFallsThrough(t *testing.T) {
	kb := newTestStore(t)
	r := New(kb)

	ai := func(ctx context.Context, req AIRequest) (AIResponse, error) {
		return AIResponse{}, assertErr{}
	}

	result := r.Resolve(context.Background(), Input{
		Domain:    "example.com",
		Page:      "/checkout",
		RawTarget: "click the mystery widget",
		AI:        ai,
	})

	assert.Equal(t, scoutmodel.TierFallback, result.Tier)
	assert.Equal(t, 0, r.Counters.AI)
}

type assertErr struct{}

func (assertErr) Error() string { return "ai callback failed" }
