package scoutmodel

import (
	"math"
	"sort"
	"time"
)

// Tier identifies which pipeline stage produced a ResolutionResult.
type Tier string

// Tier constants, per spec.md §3/§4.5.
const (
	TierKnowledgeBase Tier = "knowledge_base"
	TierFrameworkRule Tier = "framework_rule"
	TierHeuristic     Tier = "heuristic"
	TierAI            Tier = "ai"
	TierFallback      Tier = "fallback"
	TierFailed        Tier = "failed"
)

// ElementRecord is the Knowledge Store's persisted unit: everything known
// about one (domain, page, intent) target.
type ElementRecord struct {
	Domain     string            `json:"domain"`
	Page       string            `json:"page"`
	ElementKey Intent            `json:"element_key"`
	Selectors  []SelectorStat    `json:"selectors"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Key returns the (domain, page, element_key) composite used for exact
// lookups.
func (r *ElementRecord) Key() string {
	return r.Domain + "\x00" + r.Page + "\x00" + string(r.ElementKey)
}

// SortSelectors orders the selector list by ranking score descending,
// satisfying invariant 1 (spec.md §8): sorted after every record_outcome.
func (r *ElementRecord) SortSelectors() {
	sort.SliceStable(r.Selectors, func(i, j int) bool {
		si, sj := r.Selectors[i].RankingScore(), r.Selectors[j].RankingScore()
		if si != sj {
			return si > sj
		}
		// Stable lexicographic tie-break (invariant tie-break iv).
		return r.Selectors[i].Selector.Value < r.Selectors[j].Selector.Value
	})
}

// Best returns the highest-ranked selector stat, if any.
func (r *ElementRecord) Best() (SelectorStat, bool) {
	if len(r.Selectors) == 0 {
		return SelectorStat{}, false
	}
	return r.Selectors[0], true
}

// FindSelector locates the stat for a given selector value+kind.
func (r *ElementRecord) FindSelector(sel Selector) (*SelectorStat, bool) {
	for i := range r.Selectors {
		if r.Selectors[i].Selector == sel {
			return &r.Selectors[i], true
		}
	}
	return nil, false
}

// PruneBelow removes selectors whose confidence is below min. Returns true
// if the record is now empty and should itself be removed (spec.md §4.1
// prune / invariant 6).
func (r *ElementRecord) PruneBelow(min float64) (removedEmpty bool) {
	kept := r.Selectors[:0]
	for _, s := range r.Selectors {
		if s.Confidence >= min {
			kept = append(kept, s)
		}
	}
	r.Selectors = kept
	return len(r.Selectors) == 0
}

// ApplyDecay multiplies every selector's confidence by exp(-rate*days), per
// spec.md §4.1. Monotone non-increasing, idempotent at days=0.
func (r *ElementRecord) ApplyDecay(decayRatePerDay float64, now time.Time, maxAgeDays float64) {
	for i := range r.Selectors {
		days := now.Sub(r.Selectors[i].LastUsedAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		if maxAgeDays > 0 && days > maxAgeDays {
			days = maxAgeDays
		}
		factor := decayFactor(decayRatePerDay, days)
		r.Selectors[i].Confidence = clamp01(r.Selectors[i].Confidence * factor)
	}
}

func decayFactor(ratePerDay, days float64) float64 {
	if days <= 0 {
		return 1
	}
	return math.Exp(-ratePerDay * days)
}

// ElementDNA is the derived, non-persisted fingerprint of a concrete DOM
// element, used for similarity matching after a known selector fails
// (spec.md §3/§4.4).
type ElementDNA struct {
	SemanticType      string `json:"semantic_type,omitempty"`
	Tag               string `json:"tag,omitempty"`
	TestID            string `json:"test_id,omitempty"`
	ID                string `json:"id,omitempty"`
	Name              string `json:"name,omitempty"`
	AriaLabel         string `json:"aria_label,omitempty"`
	Placeholder       string `json:"placeholder,omitempty"`
	Role              string `json:"role,omitempty"`
	VisibleText       string `json:"visible_text,omitempty"`
	LabelText         string `json:"label_text,omitempty"`
	Autocomplete      string `json:"autocomplete,omitempty"`
	Required          bool   `json:"required,omitempty"`
	HasDynamicID      bool   `json:"has_dynamic_id,omitempty"`
	HasFrameworkClass bool   `json:"has_framework_class,omitempty"`
}

// dnaFieldWeight assigns similarity weight per field; semantic type match
// dominates per spec.md §3.
var dnaFieldWeight = struct {
	semanticType, testID, id, name, ariaLabel, placeholder, role, text, label float64
}{
	semanticType: 0.35,
	testID:       0.15,
	id:           0.12,
	name:         0.10,
	ariaLabel:    0.10,
	placeholder:  0.07,
	role:         0.06,
	text:         0.10,
	label:        0.05,
}

// Similarity computes a weighted field-match sum in [0,1] between two DNA
// fingerprints, semantic-type match dominant (spec.md §3).
func (d ElementDNA) Similarity(other ElementDNA) float64 {
	var score float64
	add := func(a, b string, w float64) {
		if a != "" && a == b {
			score += w
		}
	}
	if d.SemanticType != "" && d.SemanticType == other.SemanticType {
		score += dnaFieldWeight.semanticType
	}
	add(d.TestID, other.TestID, dnaFieldWeight.testID)
	add(d.ID, other.ID, dnaFieldWeight.id)
	add(d.Name, other.Name, dnaFieldWeight.name)
	add(d.AriaLabel, other.AriaLabel, dnaFieldWeight.ariaLabel)
	add(d.Placeholder, other.Placeholder, dnaFieldWeight.placeholder)
	add(d.Role, other.Role, dnaFieldWeight.role)
	add(d.VisibleText, other.VisibleText, dnaFieldWeight.text)
	add(d.LabelText, other.LabelText, dnaFieldWeight.label)
	return clamp01(score)
}

// StableAlternatives returns the DNA's stable attributes as candidate
// selectors, used to generate smart alternatives after a known selector
// fails (spec.md §4.4).
func (d ElementDNA) StableAlternatives() []Selector {
	var out []Selector
	if d.TestID != "" {
		out = append(out, Selector{Value: `[data-testid="` + d.TestID + `"]`, Kind: KindTestID})
	}
	if d.ID != "" && !d.HasDynamicID {
		out = append(out, Selector{Value: "#" + d.ID, Kind: KindCSS})
	}
	if d.Name != "" {
		out = append(out, Selector{Value: `[name="` + d.Name + `"]`, Kind: KindCSS})
	}
	if d.AriaLabel != "" {
		out = append(out, Selector{Value: d.AriaLabel, Kind: KindLabel})
	}
	if d.Placeholder != "" {
		out = append(out, Selector{Value: d.Placeholder, Kind: KindPlaceholder})
	}
	if d.Role != "" {
		out = append(out, Selector{Value: d.Role, Kind: KindRole})
	}
	if d.VisibleText != "" {
		out = append(out, Selector{Value: d.VisibleText, Kind: KindText})
	}
	return out
}

// ResolutionResult is what the Selector Resolver returns for a step target.
type ResolutionResult struct {
	Selector     Selector          `json:"selector"`
	Confidence   float64           `json:"confidence"`
	Tier         Tier              `json:"tier"`
	Alternatives []Selector        `json:"alternatives,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Failed reports whether no tier produced anything usable.
func (r ResolutionResult) Failed() bool {
	return r.Tier == TierFailed || r.Selector.Value == ""
}

// ScoredSelector pairs a candidate selector with the score that produced it,
// the common currency Heuristic/Semantic/Framework candidates trade in
// before the Resolver merges and ranks them.
type ScoredSelector struct {
	Selector Selector
	Score    float64
	Source   Tier
}
