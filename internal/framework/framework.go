// Package framework implements the Framework Rule Table (C3): a static,
// pre-seeded library of selector patterns per recognized UI framework plus
// a universal table keyed by semantic element class. It holds no state and
// performs no I/O — every candidate is computed from its static tables.
package framework

import (
	"strings"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// Name identifies a recognized UI component framework, detected by the SPA
// Coordinator or by scanning HTML for signature strings/classes.
type Name string

// Framework name constants, per spec.md §4.2's examples plus the common
// React ecosystem UI kits most test targets actually use.
const (
	Material   Name = "material"
	Ant        Name = "ant"
	Bootstrap  Name = "bootstrap"
	Chakra     Name = "chakra"
	Universal  Name = "" // no detected framework: universal table only
)

// Category is a semantic element class the rule table is keyed by.
type Category string

// Category constants.
const (
	CategoryButton   Category = "button"
	CategoryInput    Category = "input"
	CategoryForm     Category = "form"
	CategoryLink     Category = "link"
	CategoryCheckbox Category = "checkbox"
	CategoryModal    Category = "modal"
	CategoryMenu     Category = "menu"
)

// categoryKeywords maps each category to the intent tokens that select it.
var categoryKeywords = map[Category][]string{
	CategoryButton:   {"button", "btn", "submit", "login", "signin", "logout", "signout", "confirm", "save", "cancel", "close", "send"},
	CategoryInput:    {"input", "field", "email", "username", "password", "text", "search", "box"},
	CategoryForm:     {"form"},
	CategoryLink:     {"link", "nav", "navigation", "menu", "tab"},
	CategoryCheckbox: {"checkbox", "check", "toggle", "switch"},
	CategoryModal:    {"modal", "dialog", "popup", "overlay"},
	CategoryMenu:     {"menu", "dropdown", "nav"},
}

// Pattern is one selector template; {text}/{label}/{name} slots are filled
// from the query intent's tokens at candidate-generation time.
type Pattern struct {
	Template  string
	Kind      scoutmodel.SelectorKind
	Relevance float64
}

// Candidate is a generated, slot-filled selector ready to compete in
// resolution (spec.md §4.2 contract: "candidates(intent, framework?)").
type Candidate struct {
	Selector  scoutmodel.Selector
	Relevance float64
	Framework Name
	Category  Category
}

// universalTable applies regardless of detected framework: generic
// attribute/tag patterns that work against plain HTML.
var universalTable = map[Category][]Pattern{
	CategoryButton: {
		{Template: `button:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.6},
		{Template: `[type="submit"]`, Kind: scoutmodel.KindCSS, Relevance: 0.5},
		{Template: `[aria-label="{label}"]`, Kind: scoutmodel.KindLabel, Relevance: 0.55},
	},
	CategoryInput: {
		{Template: `input[name="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.6},
		{Template: `input[placeholder="{label}"]`, Kind: scoutmodel.KindPlaceholder, Relevance: 0.55},
		{Template: `[aria-label="{label}"]`, Kind: scoutmodel.KindLabel, Relevance: 0.5},
	},
	CategoryForm: {
		{Template: `form`, Kind: scoutmodel.KindCSS, Relevance: 0.4},
	},
	CategoryLink: {
		{Template: `a:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.55},
	},
	CategoryCheckbox: {
		{Template: `input[type="checkbox"][name="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.55},
	},
	CategoryModal: {
		{Template: `[role="dialog"]`, Kind: scoutmodel.KindRole, Relevance: 0.5},
	},
	CategoryMenu: {
		{Template: `[role="navigation"]`, Kind: scoutmodel.KindRole, Relevance: 0.45},
	},
}

// frameworkTables holds per-framework overrides, ranked above the universal
// table when a framework is detected (spec.md §4.2: "ordered by keyword
// match strength and framework specificity").
var frameworkTables = map[Name]map[Category][]Pattern{
	Material: {
		CategoryButton: {
			{Template: `button.mat-mdc-button:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.75},
			{Template: `.mat-mdc-raised-button:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.7},
		},
		CategoryInput: {
			{Template: `mat-form-field input[formcontrolname="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.8},
			{Template: `.mat-mdc-input-element[name="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.7},
		},
		CategoryCheckbox: {
			{Template: `mat-checkbox[formcontrolname="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.75},
		},
		CategoryModal: {
			{Template: `mat-dialog-container`, Kind: scoutmodel.KindCSS, Relevance: 0.75},
		},
	},
	Ant: {
		CategoryButton: {
			{Template: `.ant-btn:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.75},
		},
		CategoryInput: {
			{Template: `.ant-input[id="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.7},
			{Template: `input.ant-input[placeholder="{label}"]`, Kind: scoutmodel.KindPlaceholder, Relevance: 0.7},
		},
		CategoryCheckbox: {
			{Template: `.ant-checkbox-input[name="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.7},
		},
		CategoryModal: {
			{Template: `.ant-modal`, Kind: scoutmodel.KindCSS, Relevance: 0.75},
		},
	},
	Bootstrap: {
		CategoryButton: {
			{Template: `.btn:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.65},
			{Template: `.btn-primary:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.7},
		},
		CategoryInput: {
			{Template: `.form-control[name="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.7},
		},
		CategoryModal: {
			{Template: `.modal.show`, Kind: scoutmodel.KindCSS, Relevance: 0.7},
		},
	},
	Chakra: {
		CategoryButton: {
			{Template: `.chakra-button:has-text("{text}")`, Kind: scoutmodel.KindText, Relevance: 0.7},
		},
		CategoryInput: {
			{Template: `.chakra-input[name="{name}"]`, Kind: scoutmodel.KindCSS, Relevance: 0.65},
		},
	},
}

// Candidates returns up to dozens of slot-filled patterns for the intent,
// the framework's table first (if detected) followed by the universal
// table, each scored by category-keyword match strength times the
// pattern's base relevance (spec.md §4.2).
func Candidates(intent scoutmodel.Intent, fw Name) []Candidate {
	tokens := intent.ExpandedTokens()
	var out []Candidate

	for category, keywords := range categoryKeywords {
		matchStrength := tokenMatchStrength(tokens, keywords)
		if matchStrength <= 0 {
			continue
		}

		if fw != Universal {
			if patterns, ok := frameworkTables[fw][category]; ok {
				out = append(out, fillCandidates(patterns, category, fw, intent, matchStrength)...)
			}
		}
		if patterns, ok := universalTable[category]; ok {
			out = append(out, fillCandidates(patterns, category, Universal, intent, matchStrength)...)
		}
	}
	return out
}

func fillCandidates(patterns []Pattern, category Category, fw Name, intent scoutmodel.Intent, matchStrength float64) []Candidate {
	out := make([]Candidate, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, Candidate{
			Selector:  scoutmodel.Selector{Value: fillSlots(p.Template, intent), Kind: p.Kind},
			Relevance: p.Relevance * matchStrength,
			Framework: fw,
			Category:  category,
		})
	}
	return out
}

// fillSlots substitutes {text}/{label}/{name} with the intent's tokens
// joined back into a human-readable phrase (spec.md §4.2).
func fillSlots(template string, intent scoutmodel.Intent) string {
	phrase := strings.Join(intent.Tokens(), " ")
	r := strings.NewReplacer("{text}", phrase, "{label}", phrase, "{name}", string(intent))
	return r.Replace(template)
}

// tokenMatchStrength returns 0 if no keyword token matches, else a score
// that grows with the fraction of intent tokens found among the category's
// keyword set.
func tokenMatchStrength(tokens []string, keywords []string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	keywordSet := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		keywordSet[k] = true
	}
	hits := 0
	for _, t := range tokens {
		if keywordSet[t] {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(tokens))
}
