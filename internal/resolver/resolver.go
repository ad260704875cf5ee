// Package resolver implements the Selector Resolver (C6): the strict
// five-tier pipeline (KnowledgeBase -> Semantic/Heuristic -> FrameworkRule
// -> AI -> Fallback) that turns an intent into a concrete, ranked selector
// (spec.md §4.5).
package resolver

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/dotcommander/scout/internal/framework"
	"github.com/dotcommander/scout/internal/heuristic"
	"github.com/dotcommander/scout/internal/knowledge"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/semantic"
	"github.com/dotcommander/scout/pkg/memory"
)

// hotCacheEntriesPerScope caps how many intents the resolver's hot cache
// keeps per (domain, page) scope; a new intent beyond that evicts the
// least-recently-used one in the same scope (pkg/memory.NewLRU semantics).
const hotCacheEntriesPerScope = 256

// MinConfidence is the default acceptance threshold for a KnowledgeBase hit
// (spec.md §4.5 step 1).
const MinConfidence = 0.5

// SemHeuristicThreshold is the acceptance threshold for a Semantic/
// Heuristic candidate (spec.md §4.5 step 2).
const SemHeuristicThreshold = 0.7

// AIConfidenceCap bounds any AI-sourced confidence (spec.md §4.5 step 4).
const AIConfidenceCap = 0.7

// FallbackConfidence is assigned to generic attribute-contains selectors
// when every earlier tier comes up empty (spec.md §4.5 step 5).
const FallbackConfidence = 0.4

// AIRequest is the bounded context handed to the injected AI callback
// (spec.md §6 "AI callback contract").
type AIRequest struct {
	Intent        scoutmodel.Intent
	PageSnippet   string // first N KB of HTML
	AvailableIDs  []string
	ContextKV     map[string]string
}

// AIResponse is what the callback returns; Selector.Value == "" means no
// result (spec.md §6: "Callback MAY time out; caller treats timeout as
// 'no result'").
type AIResponse struct {
	Selector   scoutmodel.Selector
	Confidence float64
	Reasoning  string
	Alternatives []scoutmodel.Selector
}

// AICallback is the injected AI resolution function. Implementations must
// return promptly; the resolver does not itself enforce a timeout beyond
// whatever context deadline the caller sets.
type AICallback func(ctx context.Context, req AIRequest) (AIResponse, error)

// Input bundles everything the resolver needs for one resolution.
type Input struct {
	Domain        string
	Page          string
	RawTarget     string // as written by the test author, e.g. "click the login button"
	Verb          scoutmodel.Verb
	PageHTML      string // empty if unavailable (resolver skips tier 2)
	Framework     framework.Name
	CrossDomain   bool
	AI            AICallback
	AvailableIDs  []string
	ContextKV     map[string]string
}

// Counters tracks per-tier hit counts for observability (spec.md §4.5
// "Successful resolutions increment per-tier counters").
type Counters struct {
	KnowledgeBase int
	Heuristics    int // Semantic candidates count here too, per spec.md §4.4
	FrameworkRule int
	AI            int
	Fallback      int
	Failed        int
}

// Resolver runs the five-tier pipeline against a Knowledge Store.
type Resolver struct {
	KB       *knowledge.Store
	Counters Counters

	// hot memoizes same-process resolutions by (domain, page) scope so a
	// test case that repeats an intent across steps (e.g. re-checking a
	// field it already resolved) doesn't re-walk all five tiers.
	hot memory.Store
}

// New builds a Resolver bound to the given Knowledge Store. A small
// per-scope LRU hot cache is always attached; it never persists across
// process restarts and exists purely to save repeat tier walks within a
// run (spec.md §4.5 notes tier counters are "per resolution", not
// deduplicated, so the cache only short-circuits the search, never the
// counters it increments on a hit).
func New(kb *knowledge.Store) *Resolver {
	return &Resolver{KB: kb, hot: memory.NewLRU(hotCacheEntriesPerScope)}
}

// Resolve runs the pipeline for a single step target and returns the
// winning result plus any alternatives gathered along the way. Always
// returns a result; only Tier == scoutmodel.TierFailed with an empty
// selector means every tier came up empty (spec.md §4.5 "Output").
func (r *Resolver) Resolve(ctx context.Context, in Input) (result scoutmodel.ResolutionResult) {
	rawLooksLikeSelector := scoutmodel.LooksLikeSelector(in.RawTarget)
	intent := scoutmodel.NormalizeIntent(in.RawTarget)
	if rawLooksLikeSelector {
		intent = scoutmodel.ExtractIntentFromSelector(in.RawTarget)
	}

	scope, scopeID := in.Domain, in.Page
	cacheKey := string(intent) + "|" + string(in.Verb)
	if cached, ok := r.hotLookup(scope, scopeID, cacheKey); ok {
		r.Counters.KnowledgeBase++
		return cached
	}
	defer func() {
		if result.Tier != scoutmodel.TierFailed {
			r.hotStore(scope, scopeID, cacheKey, result)
		}
	}()

	var alternatives []scoutmodel.Selector

	// Tier 1: KnowledgeBase.
	if kbResult, ok := r.tryKnowledgeBase(in.Domain, in.Page, intent, in.CrossDomain); ok {
		r.Counters.KnowledgeBase++
		alternatives = append(alternatives, collectAlternatives(kbResult.Alternatives)...)
		if kbResult.Confidence >= MinConfidence {
			return withAlternatives(kbResult, alternatives)
		}
		alternatives = append(alternatives, kbResult.Selector)
	}

	// Tier 2: Semantic + Heuristic (conceptually parallel; sequential here
	// since both are pure CPU-bound functions over the same HTML string).
	if strings.TrimSpace(in.PageHTML) != "" {
		semCands := semantic.PageTypes(in.PageHTML)
		heurCands := heuristic.Enumerate(in.PageHTML, intent)

		best, bestAlts, ok := bestOfTierTwo(semCands, heurCands, intent)
		if ok {
			alternatives = append(alternatives, bestAlts...)
			if best.Score >= SemHeuristicThreshold {
				r.Counters.Heuristics++
				result := scoutmodel.ResolutionResult{
					Selector:   best.Selector,
					Confidence: best.Score,
					Tier:       scoutmodel.TierHeuristic,
				}
				return withAlternatives(result, alternatives)
			}
		}
	}

	// Tier 3: FrameworkRule.
	fwCands := framework.Candidates(intent, in.Framework)
	if len(fwCands) > 0 {
		best := fwCands[0]
		for _, c := range fwCands[1:] {
			if c.Relevance > best.Relevance {
				best = c
			}
		}
		if best.Relevance > 0 {
			r.Counters.FrameworkRule++
			for _, c := range fwCands {
				alternatives = append(alternatives, c.Selector)
			}
			result := scoutmodel.ResolutionResult{
				Selector:   best.Selector,
				Confidence: best.Relevance,
				Tier:       scoutmodel.TierFrameworkRule,
			}
			if best.Relevance >= MinConfidence {
				return withAlternatives(result, alternatives)
			}
		}
	}

	// Tier 4: AI.
	if in.AI != nil {
		req := AIRequest{
			Intent:       intent,
			PageSnippet:  truncate(in.PageHTML, 5*1024),
			AvailableIDs: in.AvailableIDs,
			ContextKV:    in.ContextKV,
		}
		resp, err := in.AI(ctx, req)
		if err == nil && resp.Selector.Value != "" {
			r.Counters.AI++
			conf := resp.Confidence
			if conf > AIConfidenceCap {
				conf = AIConfidenceCap
			}
			alternatives = append(alternatives, resp.Alternatives...)
			return withAlternatives(scoutmodel.ResolutionResult{
				Selector:   resp.Selector,
				Confidence: conf,
				Tier:       scoutmodel.TierAI,
				Metadata:   map[string]string{"ai_assisted": "true", "reasoning": resp.Reasoning},
			}, alternatives)
		}
		// Timeout or error: tier 4 is skipped, not fatal (spec.md §8 "AI
		// callback exceptions are trapped; pipeline proceeds to the
		// fallback tier.").
	}

	// Tier 5: Fallback.
	if rawLooksLikeSelector {
		r.Counters.Fallback++
		return withAlternatives(scoutmodel.ResolutionResult{
			Selector:   scoutmodel.Selector{Value: in.RawTarget, Kind: kindForRaw(in.RawTarget)},
			Confidence: FallbackConfidence,
			Tier:       scoutmodel.TierFallback,
		}, alternatives)
	}
	if fb, ok := fallbackSelector(intent); ok {
		r.Counters.Fallback++
		return withAlternatives(scoutmodel.ResolutionResult{
			Selector:   fb,
			Confidence: FallbackConfidence,
			Tier:       scoutmodel.TierFallback,
		}, alternatives)
	}

	r.Counters.Failed++
	return withAlternatives(scoutmodel.ResolutionResult{Tier: scoutmodel.TierFailed}, alternatives)
}

// hotLookup returns a previously cached resolution for (scope, scopeID, key),
// decoding the pipe-delimited encoding hotStore wrote.
func (r *Resolver) hotLookup(scope, scopeID, key string) (scoutmodel.ResolutionResult, bool) {
	if r.hot == nil {
		return scoutmodel.ResolutionResult{}, false
	}
	entry, ok := r.hot.Get(scope, scopeID, key)
	if !ok {
		return scoutmodel.ResolutionResult{}, false
	}
	return decodeHotEntry(entry.Value)
}

func (r *Resolver) hotStore(scope, scopeID, key string, result scoutmodel.ResolutionResult) {
	if r.hot == nil || result.Selector.Value == "" {
		return
	}
	_ = r.hot.Set(scope, scopeID, key, encodeHotEntry(result))
}

func encodeHotEntry(result scoutmodel.ResolutionResult) string {
	return strings.Join([]string{
		string(result.Selector.Kind),
		result.Selector.Value,
		strconv.FormatFloat(result.Confidence, 'f', -1, 64),
		string(result.Tier),
	}, "\x1f")
}

func decodeHotEntry(raw string) (scoutmodel.ResolutionResult, bool) {
	parts := strings.SplitN(raw, "\x1f", 4)
	if len(parts) != 4 {
		return scoutmodel.ResolutionResult{}, false
	}
	conf, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return scoutmodel.ResolutionResult{}, false
	}
	return scoutmodel.ResolutionResult{
		Selector:   scoutmodel.Selector{Kind: scoutmodel.SelectorKind(parts[0]), Value: parts[1]},
		Confidence: conf,
		Tier:       scoutmodel.TierKnowledgeBase,
	}, true
}

func (r *Resolver) tryKnowledgeBase(domain, page string, intent scoutmodel.Intent, crossDomain bool) (scoutmodel.ResolutionResult, bool) {
	if r.KB == nil {
		return scoutmodel.ResolutionResult{}, false
	}
	if rec, ok := r.KB.Lookup(domain, page, intent); ok {
		if best, ok := rec.Best(); ok {
			return scoutmodel.ResolutionResult{
				Selector:   best.Selector,
				Confidence: best.RankingScore(),
				Tier:       scoutmodel.TierKnowledgeBase,
			}, true
		}
	}
	matches := r.KB.FindByIntent(intent, domain, page, crossDomain)
	if len(matches) == 0 {
		return scoutmodel.ResolutionResult{}, false
	}
	top := matches[0]
	best, ok := top.Record.Best()
	if !ok {
		return scoutmodel.ResolutionResult{}, false
	}
	return scoutmodel.ResolutionResult{
		Selector:   best.Selector,
		Confidence: best.RankingScore() * top.Score,
		Tier:       scoutmodel.TierKnowledgeBase,
	}, true
}

// bestOfTierTwo merges Semantic and Heuristic candidates and ranks them by
// score. Among equal scores a test-attribute selector comes first, then a
// Semantic match with score>=0.5 ranks above a raw Heuristic candidate,
// then selector value decides (spec.md §4.5 step 2, §4.4 "Contribution to
// resolution").
func bestOfTierTwo(semCands []semantic.Candidate, heurCands []scoutmodel.ScoredSelector, intent scoutmodel.Intent) (scoutmodel.ScoredSelector, []scoutmodel.Selector, bool) {
	var all []scoutmodel.ScoredSelector
	var alts []scoutmodel.Selector

	relevantSem := filterSemanticByIntent(semCands, intent)
	fromSemantic := map[string]bool{}
	for _, c := range relevantSem {
		all = append(all, scoutmodel.ScoredSelector{Selector: c.Selector, Score: c.Score, Source: scoutmodel.TierHeuristic})
		alts = append(alts, c.Selector)
		if c.Score >= 0.5 {
			fromSemantic[c.Selector.Value] = true
		}
	}
	for _, c := range heurCands {
		all = append(all, c)
		alts = append(alts, c.Selector)
	}
	if len(all) == 0 {
		return scoutmodel.ScoredSelector{}, nil, false
	}

	sort.SliceStable(all, func(i, j int) bool {
		si, sj := all[i], all[j]
		if si.Score != sj.Score {
			return si.Score > sj.Score
		}
		iTestID := si.Selector.Kind == scoutmodel.KindTestID
		jTestID := sj.Selector.Kind == scoutmodel.KindTestID
		if iTestID != jTestID {
			return iTestID
		}
		if iSem, jSem := fromSemantic[si.Selector.Value], fromSemantic[sj.Selector.Value]; iSem != jSem {
			return iSem
		}
		return si.Selector.Value < sj.Selector.Value
	})
	return all[0], alts, true
}

// filterSemanticByIntent keeps only semantic candidates whose inferred
// type plausibly matches the intent's tokens, so an unrelated page-wide
// PASSWORD_INPUT match doesn't win a "click login button" resolution.
func filterSemanticByIntent(cands []semantic.Candidate, intent scoutmodel.Intent) []semantic.Candidate {
	if len(cands) == 0 {
		return nil
	}
	tokens := intent.Tokens()
	var out []semantic.Candidate
candidates:
	for _, c := range cands {
		typeWords := strings.Split(strings.ToLower(strings.ReplaceAll(string(c.Type), "_", " ")), " ")
		for _, tok := range tokens {
			for _, tw := range typeWords {
				if tw != "" && strings.Contains(tw, tok) {
					out = append(out, c)
					continue candidates
				}
			}
		}
	}
	return out
}

func collectAlternatives(sel []scoutmodel.Selector) []scoutmodel.Selector {
	return append([]scoutmodel.Selector(nil), sel...)
}

func withAlternatives(result scoutmodel.ResolutionResult, alts []scoutmodel.Selector) scoutmodel.ResolutionResult {
	deduped := dedupeSelectors(alts, result.Selector)
	if len(deduped) > 0 {
		result.Alternatives = deduped
	}
	return result
}

func dedupeSelectors(alts []scoutmodel.Selector, exclude scoutmodel.Selector) []scoutmodel.Selector {
	seen := map[scoutmodel.Selector]bool{exclude: true}
	var out []scoutmodel.Selector
	for _, a := range alts {
		if a.Value == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func kindForRaw(raw string) scoutmodel.SelectorKind {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "/") {
		return scoutmodel.KindXPath
	}
	return scoutmodel.KindCSS
}

// fallbackSelector builds generic attribute-contains selectors from
// intent tokens (spec.md §4.5 step 5).
func fallbackSelector(intent scoutmodel.Intent) (scoutmodel.Selector, bool) {
	tokens := intent.Tokens()
	if len(tokens) == 0 {
		return scoutmodel.Selector{}, false
	}
	tok := tokens[len(tokens)-1]
	return scoutmodel.Selector{Value: `[id*="` + tok + `"]`, Kind: scoutmodel.KindCSS}, true
}
