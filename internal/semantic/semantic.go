// Package semantic implements Semantic Intelligence (C5): maps a step's
// verb+target phrase to a known SemanticType via a regex/keyword table,
// scans page HTML for each type's attribute/text signature, and extracts
// ElementDNA fingerprints used to generate stable alternatives after a
// known selector fails (spec.md §4.4).
package semantic

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// Type is a recognized semantic element category.
type Type string

// Type constants, per spec.md §4.4's examples plus the common form/
// e-commerce categories a real test corpus exercises.
const (
	TypeUsernameInput Type = "USERNAME_INPUT"
	TypeEmailInput    Type = "EMAIL_INPUT"
	TypePasswordInput Type = "PASSWORD_INPUT"
	TypeSearchInput   Type = "SEARCH_INPUT"
	TypeAddToCart     Type = "ADD_TO_CART"
	TypeSubmitButton  Type = "SUBMIT_BUTTON"
	TypeLoginButton   Type = "LOGIN_BUTTON"
	TypeCheckoutBtn   Type = "CHECKOUT_BUTTON"
)

// intentRule pairs a regex over "verb target" text with the type it
// signals, mirroring spec.md §4.4's own examples
// ("(enter|type|fill).*(user|email)" -> USERNAME_INPUT).
type intentRule struct {
	pattern *regexp.Regexp
	typ     Type
}

var intentRules = []intentRule{
	{regexp.MustCompile(`(enter|type|fill).*(user\w*)`), TypeUsernameInput},
	{regexp.MustCompile(`(enter|type|fill).*(e[-]?mail)`), TypeEmailInput},
	{regexp.MustCompile(`(enter|type|fill).*(pass\w*)`), TypePasswordInput},
	{regexp.MustCompile(`(search|find|look\s?up)`), TypeSearchInput},
	{regexp.MustCompile(`(add|put).*(cart|basket)`), TypeAddToCart},
	{regexp.MustCompile(`(check\s?out|place\s?order)`), TypeCheckoutBtn},
	{regexp.MustCompile(`(log\s?in|sign\s?in)`), TypeLoginButton},
	{regexp.MustCompile(`(submit|confirm|save)`), TypeSubmitButton},
}

// InferIntentType runs the intent -> SemanticType regex table against the
// step's verb plus its raw, pre-normalization target phrase (the verb
// words the rules key on, like "enter"/"fill", are already separated into
// Step.Verb elsewhere in the pipeline, so this is the one place that still
// needs them alongside the target text).
func InferIntentType(verb scoutmodel.Verb, targetPhrase string) (Type, float64, bool) {
	haystack := strings.ToLower(string(verb) + " " + targetPhrase)
	for _, rule := range intentRules {
		if rule.pattern.MatchString(haystack) {
			return rule.typ, 0.6, true
		}
	}
	return "", 0, false
}

// attrSignature describes how to recognize a semantic type from an
// element's attributes/text, and the confidence if matched via each kind
// (spec.md §4.4: "confidence primarily driven by the matched attribute
// kind: testid > id > name > type > placeholder > text").
type attrSignature struct {
	typ        Type
	attrName   string // "" means check visible text instead
	attrValue  string // exact match; "" + textContains means substring text check
	textContains string
	clickableOnly bool
}

var signatures = []attrSignature{
	{typ: TypePasswordInput, attrName: "type", attrValue: "password"},
	{typ: TypeEmailInput, attrName: "type", attrValue: "email"},
	{typ: TypeSearchInput, attrName: "type", attrValue: "search"},
	{typ: TypeAddToCart, textContains: "add to cart", clickableOnly: true},
	{typ: TypeCheckoutBtn, textContains: "checkout", clickableOnly: true},
	{typ: TypeCheckoutBtn, textContains: "place order", clickableOnly: true},
	{typ: TypeLoginButton, textContains: "log in", clickableOnly: true},
	{typ: TypeLoginButton, textContains: "sign in", clickableOnly: true},
}

// Candidate is a semantic-type match's resulting selector with the DNA that
// produced it, so callers (the Resolver) can also pull smart alternatives.
type Candidate struct {
	Selector   scoutmodel.Selector
	Score      float64
	Type       Type
	DNA        scoutmodel.ElementDNA
}

var altTestAttrs = []string{"data-testid", "data-test", "data-cy", "data-qa"}

// PageTypes scans pageHTML for each semantic type's signature, returning
// one Candidate per matched element sorted by score descending.
func PageTypes(pageHTML string) []Candidate {
	if strings.TrimSpace(pageHTML) == "" {
		return nil
	}
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return nil
	}

	var out []Candidate
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			out = append(out, matchElement(n)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func matchElement(n *html.Node) []Candidate {
	attrs := map[string]string{}
	for _, a := range n.Attr {
		attrs[a.Key] = a.Val
	}
	text := strings.ToLower(strings.TrimSpace(textOf(n)))
	clickable := n.Data == "button" || n.Data == "a" || attrs["role"] == "button"

	var out []Candidate
	for _, sig := range signatures {
		if sig.clickableOnly && !clickable {
			continue
		}
		matched := false
		switch {
		case sig.attrName != "":
			matched = attrs[sig.attrName] == sig.attrValue
		case sig.textContains != "":
			matched = strings.Contains(text, sig.textContains)
		}
		if !matched {
			continue
		}
		dna, testAttrKey := dnaFromAttrs(n.Data, attrs, text)
		sel, score := bestSelectorFor(dna, testAttrKey)
		out = append(out, Candidate{Selector: sel, Score: score, Type: sig.typ, DNA: dna})
	}
	return out
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}

// dnaFromAttrs builds an ElementDNA fingerprint from a parsed node's
// attributes and computed text (spec.md §4.4 "ElementDNA extraction").
// Also returns the actual test-attribute key matched (e.g. "data-test"),
// since the DNA itself only records the value.
func dnaFromAttrs(tag string, attrs map[string]string, text string) (scoutmodel.ElementDNA, string) {
	dna := scoutmodel.ElementDNA{
		Tag:          tag,
		ID:           attrs["id"],
		Name:         attrs["name"],
		AriaLabel:    attrs["aria-label"],
		Placeholder:  attrs["placeholder"],
		Role:         attrs["role"],
		VisibleText:  text,
		Autocomplete: attrs["autocomplete"],
		Required:     attrs["required"] != "",
	}
	var matchedKey string
	for _, k := range altTestAttrs {
		if v, ok := attrs[k]; ok {
			dna.TestID = v
			matchedKey = k
			break
		}
	}
	return dna, matchedKey
}

// bestSelectorFor picks the DNA's highest-precedence stable attribute
// (testid > id > name > placeholder > text), falling back to the bare tag.
// The element's type attribute is not used to build a selector.
func bestSelectorFor(dna scoutmodel.ElementDNA, testAttrKey string) (scoutmodel.Selector, float64) {
	switch {
	case dna.TestID != "":
		if testAttrKey == "" {
			testAttrKey = "data-testid"
		}
		return scoutmodel.Selector{Value: `[` + testAttrKey + `="` + dna.TestID + `"]`, Kind: scoutmodel.KindTestID}, 0.95
	case dna.ID != "":
		return scoutmodel.Selector{Value: "#" + dna.ID, Kind: scoutmodel.KindCSS}, 0.85
	case dna.Name != "":
		return scoutmodel.Selector{Value: `[name="` + dna.Name + `"]`, Kind: scoutmodel.KindCSS}, 0.75
	case dna.Placeholder != "":
		return scoutmodel.Selector{Value: dna.Placeholder, Kind: scoutmodel.KindPlaceholder}, 0.65
	case dna.VisibleText != "":
		return scoutmodel.Selector{Value: dna.VisibleText, Kind: scoutmodel.KindText}, 0.55
	default:
		return scoutmodel.Selector{Value: dna.Tag, Kind: scoutmodel.KindCSS}, 0.4
	}
}
