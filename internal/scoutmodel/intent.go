// Package scoutmodel holds the domain vocabulary shared by every core
// component: Intent, Selector, ElementRecord, ElementDNA, ResolutionResult,
// PageState, ExecutionEvent, ActionPattern. Components depend on this
// package; it never depends back on them.
package scoutmodel

import "strings"

// Intent is a normalized descriptor of the element a step targets, e.g.
// "login_button" derived from the raw phrase "click the login button".
type Intent string

// stopWords are dropped during normalization: filler words plus the action
// verbs a raw phrase often repeats even though the step's Verb already
// carries that information (spec.md §4.10 separates Step.Action from
// Step.Target, so "click login button" and "login button" must normalize
// to the same intent).
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "on": true, "in": true, "at": true,
	"to": true, "for": true, "of": true, "with": true, "my": true,
	"please": true, "then": true, "and": true,
	"click": true, "fill": true, "enter": true, "type": true, "press": true,
	"select": true, "check": true, "submit": true, "tap": true, "hover": true,
	"choose": true, "pick": true, "put": true,
}

var separatorReplacer = strings.NewReplacer(
	"-", " ", "_", " ", ".", " ", "/", " ", "'", "", "\"", "",
)

// NormalizeIntent lowercases, strips stop words, and collapses separators so
// that "Click the Login Button" and "login-button" both normalize to
// "login_button". Idempotent: NormalizeIntent(NormalizeIntent(x)) == NormalizeIntent(x).
//
// Deliberately does not collapse synonyms ("sign in" -> "login"): the
// Heuristic Engine matches an intent's literal tokens against raw page
// text/attributes (e.g. "click sign in" must still match a
// data-test="sign-in-btn" element), so the canonical intent must preserve
// the caller's wording. Synonym equivalence is applied only downstream, in
// ExpandedTokens, for the Knowledge Store's fuzzy find_by_intent.
func NormalizeIntent(phrase string) Intent {
	lower := strings.ToLower(strings.TrimSpace(phrase))
	lower = separatorReplacer.Replace(lower)
	fields := strings.Fields(lower)

	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if stopWords[f] {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		kept = fields
	}
	return Intent(strings.Join(kept, "_"))
}

// Tokens splits the normalized intent back into its component words.
func (i Intent) Tokens() []string {
	if i == "" {
		return nil
	}
	return strings.Split(string(i), "_")
}

// String returns the normalized form as a plain string.
func (i Intent) String() string {
	return string(i)
}

// Empty reports whether the intent carries no usable tokens.
func (i Intent) Empty() bool {
	return strings.TrimSpace(string(i)) == ""
}

// synonymGroups collapses near-synonymous phrasing onto one canonical token
// before token-overlap scoring, per spec.md §4.1's fuzzy intent match
// (e.g. "login≡signin≡\"log in\""). "sign"/"log" are included bare because
// stopword stripping already drops "in"/"on" as filler, so "sign in"
// normalizes down to the lone token "sign" before it ever reaches here.
var synonymGroups = [][]string{
	{"login", "signin", "sign", "log"},
	{"logout", "signout"},
	{"submit", "send", "confirm"},
	{"search", "find", "lookup"},
	{"close", "dismiss", "cancel"},
	{"menu", "nav", "navigation"},
}

var synonymCanonical = buildSynonymIndex(synonymGroups)

func buildSynonymIndex(groups [][]string) map[string]string {
	idx := make(map[string]string)
	for _, g := range groups {
		canon := g[0]
		for _, w := range g {
			idx[w] = canon
		}
	}
	return idx
}

// ExpandedTokens returns the intent's tokens with synonym canonicalization
// applied, used by fuzzy intent matching in the Knowledge Store.
func (i Intent) ExpandedTokens() []string {
	toks := i.Tokens()
	out := make([]string, len(toks))
	for idx, t := range toks {
		if canon, ok := synonymCanonical[t]; ok {
			out[idx] = canon
		} else {
			out[idx] = t
		}
	}
	return out
}

// TokenOverlapScore computes a weighted Jaccard-ish overlap between two
// intents after synonym expansion: |intersection| / |union|. Used by
// find_by_intent's fuzzy lookup (threshold 0.7 to count as a hit).
func TokenOverlapScore(a, b Intent) float64 {
	ta := a.ExpandedTokens()
	tb := b.ExpandedTokens()
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(ta))
	for _, t := range ta {
		setA[t] = true
	}
	setB := make(map[string]bool, len(tb))
	for _, t := range tb {
		setB[t] = true
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ExtractIntentFromSelector derives an approximate intent from a raw selector
// string so the resolver can still consult the Knowledge Base/heuristics when
// the step target already looks like a selector (spec.md §4.5).
// e.g. `[data-test*="sign"]` -> "sign".
func ExtractIntentFromSelector(raw string) Intent {
	s := raw
	for _, cut := range []string{"[", "]", "#", ".", "\"", "'", "=", "*", "~", "^", "$", "(", ")", ":", ">", "-", "_"} {
		s = strings.ReplaceAll(s, cut, " ")
	}
	fields := strings.Fields(s)
	keep := make([]string, 0, len(fields))
	for _, f := range fields {
		lf := strings.ToLower(f)
		switch lf {
		case "data", "test", "testid", "id", "name", "aria", "label", "class", "contains", "has", "text":
			continue
		}
		keep = append(keep, lf)
	}
	return NormalizeIntent(strings.Join(keep, " "))
}

// LooksLikeSelector reports whether raw already looks like a concrete
// locator rather than a human phrase (spec.md §4.5).
func LooksLikeSelector(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return false
	}
	switch trimmed[0] {
	case '#', '.', '[', '/':
		return true
	}
	for _, combinator := range []string{">>", " > ", ":has-text(", ":visible", "::", " >> "} {
		if strings.Contains(trimmed, combinator) {
			return true
		}
	}
	return false
}
