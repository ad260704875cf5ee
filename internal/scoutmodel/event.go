package scoutmodel

import "time"

// Outcome is the result of a single selector resolution+execution attempt.
type Outcome string

// Outcome constants, per spec.md §3.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeFail    Outcome = "fail"
)

// ExecutionEvent is an immutable record of one resolution/execution,
// consumed asynchronously by the Learning Engine (spec.md §3/§4.11).
type ExecutionEvent struct {
	Timestamp   time.Time         `json:"timestamp"`
	Domain      string            `json:"domain"`
	Page        string            `json:"page"`
	Intent      Intent            `json:"intent"`
	Selector    Selector          `json:"selector"`
	Outcome     Outcome           `json:"outcome"`
	LatencyMS   int64             `json:"latency_ms"`
	AIAssisted  bool              `json:"ai_assisted"`
	Tier        Tier              `json:"tier"`
	ContextKV   map[string]string `json:"context_kv,omitempty"`
	RunID       string            `json:"run_id,omitempty"`
	StepNumber  int               `json:"step_number,omitempty"`
	Verb        string            `json:"verb,omitempty"`
	RecoveryKey string            `json:"recovery_key,omitempty"`
}

// Success reports whether the event recorded a successful outcome.
func (e ExecutionEvent) Success() bool {
	return e.Outcome == OutcomeSuccess
}

// Fingerprint returns the "verb:normalized_intent" token the Learning
// Engine's pattern miner slides a window across (spec.md §4.11/GLOSSARY).
func (e ExecutionEvent) Fingerprint() string {
	return e.Verb + ":" + string(e.Intent)
}
