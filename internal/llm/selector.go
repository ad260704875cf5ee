package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dotcommander/scout/internal/resolver"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

// rawAIResponse is the JSON shape a CLI is asked to emit for an AI tier
// resolution request.
type rawAIResponse struct {
	Selector     string   `json:"selector"`
	Kind         string   `json:"kind"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	Alternatives []string `json:"alternatives"`
}

// NewAICallback returns a resolver.AICallback backed by an external CLI
// (claude/opencode), dispatched the same way the rest of the package's
// Runner dispatches extraction prompts. worker selects which CLI: a name
// prefixed "opencode" routes to opencode, an empty name or one prefixed
// "claude" routes to claude, and any other name is an error.
func NewAICallback(worker string) (resolver.AICallback, error) {
	runner, err := NewRunner(worker)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, req resolver.AIRequest) (resolver.AIResponse, error) {
		prompt := buildSelectorPrompt(req)
		out, err := runner.Extract(ctx, prompt)
		if err != nil {
			return resolver.AIResponse{}, fmt.Errorf("ai tier dispatch: %w", err)
		}
		return parseSelectorResponse(out)
	}, nil
}

func buildSelectorPrompt(req resolver.AIRequest) string {
	var b strings.Builder
	b.WriteString("You are resolving a selector for a browser automation step.\n")
	fmt.Fprintf(&b, "Intent: %s\n", req.Intent)
	if len(req.AvailableIDs) > 0 {
		fmt.Fprintf(&b, "Known element ids on the page: %s\n", strings.Join(req.AvailableIDs, ", "))
	}
	for k, v := range req.ContextKV {
		fmt.Fprintf(&b, "Context %s: %s\n", k, v)
	}
	if req.PageSnippet != "" {
		b.WriteString("Page HTML snippet:\n")
		b.WriteString(req.PageSnippet)
		b.WriteString("\n")
	}
	b.WriteString("Respond with a single JSON object: ")
	b.WriteString(`{"selector":"...","kind":"css|xpath|text|role|placeholder|label|testid","confidence":0.0,"reasoning":"...","alternatives":["..."]}`)
	b.WriteString("\nRespond with JSON only, no surrounding prose.")
	return b.String()
}

func parseSelectorResponse(raw string) (resolver.AIResponse, error) {
	raw = strings.TrimSpace(raw)
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return resolver.AIResponse{}, fmt.Errorf("no JSON object in ai response: %s", raw)
	}

	var parsed rawAIResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return resolver.AIResponse{}, fmt.Errorf("parse ai response: %w", err)
	}
	if parsed.Selector == "" {
		return resolver.AIResponse{}, nil
	}

	kind := scoutmodel.SelectorKind(strings.ToLower(parsed.Kind))
	alts := make([]scoutmodel.Selector, 0, len(parsed.Alternatives))
	for _, a := range parsed.Alternatives {
		if a != "" {
			alts = append(alts, scoutmodel.Selector{Value: a, Kind: kind})
		}
	}

	return resolver.AIResponse{
		Selector:     scoutmodel.Selector{Value: parsed.Selector, Kind: kind},
		Confidence:   parsed.Confidence,
		Reasoning:    parsed.Reasoning,
		Alternatives: alts,
	}, nil
}
