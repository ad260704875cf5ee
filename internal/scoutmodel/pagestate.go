package scoutmodel

// PageState is a snapshot used for pre/post-action verification (spec.md
// §3/§4.7): URL, a structural DOM hash that ignores ephemeral IDs and
// timestamps, visible error indicators, visible blockers, and a count of
// interactive elements.
type PageState struct {
	URL              string   `json:"url"`
	DOMHash          string   `json:"dom_hash"`
	ErrorIndicators  []string `json:"error_indicators,omitempty"`
	Blockers         []string `json:"blockers,omitempty"`
	InteractiveCount int      `json:"interactive_count"`
}

// Diff compares two PageStates and reports whether the action had an
// observable effect (spec.md §4.7): URL changed, DOM hash changed, or the
// interactive element count advanced.
func (p PageState) Diff(after PageState) PostActionDiff {
	return PostActionDiff{
		URLChanged:        p.URL != after.URL,
		DOMChanged:        p.DOMHash != after.DOMHash,
		InteractiveDelta:  after.InteractiveCount - p.InteractiveCount,
		NewErrors:         subtractStrings(after.ErrorIndicators, p.ErrorIndicators),
		BlockersRemaining: after.Blockers,
	}
}

// PostActionDiff is the outcome of comparing PageState before/after an
// action.
type PostActionDiff struct {
	URLChanged        bool
	DOMChanged        bool
	InteractiveDelta  int
	NewErrors         []string
	BlockersRemaining []string
}

// HadEffect implements spec.md §4.7's action_had_effect predicate.
func (d PostActionDiff) HadEffect() bool {
	return d.URLChanged || d.DOMChanged || d.InteractiveDelta != 0
}

func subtractStrings(after, before []string) []string {
	seen := make(map[string]bool, len(before))
	for _, b := range before {
		seen[b] = true
	}
	var out []string
	for _, a := range after {
		if !seen[a] {
			out = append(out, a)
		}
	}
	return out
}
