// Package heuristic implements the Heuristic Engine (C4): given page
// HTML/DOM and an intent, enumerates candidate selectors by attribute,
// text, role, and class, with weighted, additive scoring (spec.md §4.3).
//
// The source this spec was distilled from parsed HTML with regex; this
// package substitutes a real parser (golang.org/x/net/html) since spec.md
// §9 explicitly calls the parsing technique an implementation detail and
// the scoring rules the part that matters.
package heuristic

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// testAttributes are the conventional test-hook attribute names scanned for
// before any other signal (spec.md §4.3: "test-attribute value -> +0.6").
var testAttributes = []string{"data-testid", "data-test", "data-cy", "data-qa"}

// element is a flattened view of one parsed DOM node, enough to score and
// to build a selector string from.
type element struct {
	tag         string
	testAttr    string // value of the first matching testAttributes entry, if any
	testAttrKey string
	id          string
	name        string
	ariaLabel   string
	title       string
	placeholder string
	value       string
	classes     []string
	dataAttrs   map[string]string
	role        string
	text        string
	clickable   bool
}

// MaxAlternatives caps the candidate list after dedup/sort (spec.md §4.3
// "cap at ~8 alternatives").
const MaxAlternatives = 8

// TierGateScore is the minimum score to "pass the tier gate" (spec.md §4.3).
const TierGateScore = 0.5

// Enumerate parses pageHTML and scores every element against intent's
// tokens, returning deduplicated candidates sorted by score descending
// (equal scores put test-attribute selectors first, then order by selector
// value) and capped at MaxAlternatives.
func Enumerate(pageHTML string, intent scoutmodel.Intent) []scoutmodel.ScoredSelector {
	tokens := intent.Tokens()
	if len(tokens) == 0 || strings.TrimSpace(pageHTML) == "" {
		return nil
	}

	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var elements []element
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			elements = append(elements, extract(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	seen := map[string]bool{}
	var out []scoutmodel.ScoredSelector
	for _, el := range elements {
		for _, cand := range scoreElement(el, tokens) {
			if seen[cand.Selector.Value] {
				continue
			}
			seen[cand.Selector.Value] = true
			out = append(out, cand)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		iTestID := out[i].Selector.Kind == scoutmodel.KindTestID
		if jTestID := out[j].Selector.Kind == scoutmodel.KindTestID; iTestID != jTestID {
			return iTestID
		}
		return out[i].Selector.Value < out[j].Selector.Value
	})
	if len(out) > MaxAlternatives {
		out = out[:MaxAlternatives]
	}
	return out
}

func extract(n *html.Node) element {
	el := element{tag: n.Data, dataAttrs: map[string]string{}}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "id":
			el.id = attr.Val
		case "name":
			el.name = attr.Val
		case "aria-label":
			el.ariaLabel = attr.Val
		case "title":
			el.title = attr.Val
		case "placeholder":
			el.placeholder = attr.Val
		case "value":
			el.value = attr.Val
		case "role":
			el.role = attr.Val
		case "class":
			el.classes = strings.Fields(attr.Val)
		default:
			for _, ta := range testAttributes {
				if attr.Key == ta {
					el.testAttr = attr.Val
					el.testAttrKey = ta
				}
			}
			if strings.HasPrefix(attr.Key, "data-") {
				el.dataAttrs[attr.Key] = attr.Val
			}
		}
	}
	el.text = strings.TrimSpace(textContent(n))
	el.clickable = el.tag == "button" || el.tag == "a" || el.role == "button"
	return el
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			continue // only the element's own direct text nodes count; nested elements are skipped
		}
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

// scoreElement applies the additive scoring rules (spec.md §4.3) per token,
// then the multi-token multiplier, and emits one or more scored selector
// candidates for the element.
func scoreElement(el element, tokens []string) []scoutmodel.ScoredSelector {
	var score float64
	matchedTokens := 0
	for _, tok := range tokens {
		matched := false
		if el.testAttr != "" && containsToken(el.testAttr, tok) {
			score += 0.6
			matched = true
		}
		if el.id != "" && containsToken(el.id, tok) {
			score += 0.5
			matched = true
		}
		if (el.name != "" && containsToken(el.name, tok)) ||
			(el.ariaLabel != "" && containsToken(el.ariaLabel, tok)) ||
			(el.title != "" && containsToken(el.title, tok)) ||
			(el.placeholder != "" && containsToken(el.placeholder, tok)) {
			score += 0.4
			matched = true
		}
		if el.value != "" && containsToken(el.value, tok) {
			score += 0.35
			matched = true
		}
		for _, c := range el.classes {
			if containsToken(c, tok) {
				score += 0.2
				matched = true
				break
			}
		}
		for _, v := range el.dataAttrs {
			if containsToken(v, tok) {
				score += 0.3
				matched = true
				break
			}
		}
		if el.tag == tok {
			score += 0.2
			matched = true
		}
		if el.text != "" && strings.Contains(strings.ToLower(el.text), tok) {
			score += 0.35
			matched = true
		}
		if matched {
			matchedTokens++
		}
	}
	if matchedTokens == 0 {
		return nil
	}
	score /= float64(len(tokens))
	switch {
	case len(tokens) >= 3:
		score *= 1.3
	case len(tokens) == 2:
		score *= 1.2
	}

	var out []scoutmodel.ScoredSelector
	if sel, ok := primarySelector(el); ok {
		out = append(out, scoutmodel.ScoredSelector{Selector: sel, Score: clampScore(score), Source: scoutmodel.TierHeuristic})
	}
	if el.clickable && el.text != "" {
		out = append(out, scoutmodel.ScoredSelector{
			Selector: scoutmodel.Selector{Value: el.text, Kind: scoutmodel.KindText},
			Score:    clampScore(score * 0.95),
			Source:   scoutmodel.TierHeuristic,
		})
	}
	return out
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func containsToken(value, token string) bool {
	return strings.Contains(strings.ToLower(value), token)
}

// primarySelector builds the strongest single CSS selector available for
// an element, preferring the test-attribute over id/name/class (spec.md
// §4.3's test-attribute preference).
func primarySelector(el element) (scoutmodel.Selector, bool) {
	switch {
	case el.testAttr != "":
		return scoutmodel.Selector{Value: `[` + el.testAttrKey + `="` + el.testAttr + `"]`, Kind: scoutmodel.KindTestID}, true
	case el.id != "":
		return scoutmodel.Selector{Value: "#" + el.id, Kind: scoutmodel.KindCSS}, true
	case el.name != "":
		return scoutmodel.Selector{Value: `[name="` + el.name + `"]`, Kind: scoutmodel.KindCSS}, true
	case el.ariaLabel != "":
		return scoutmodel.Selector{Value: `[aria-label="` + el.ariaLabel + `"]`, Kind: scoutmodel.KindCSS}, true
	case len(el.classes) > 0:
		return scoutmodel.Selector{Value: "." + el.classes[0], Kind: scoutmodel.KindCSS}, true
	default:
		return scoutmodel.Selector{}, false
	}
}
