package scoutmodel

import "fmt"

// RecoverableError is implemented by enriched errors that carry structured
// context and a remediation hint, mirrored from the teacher's
// internal/models.RecoverableError so internal/output can render any of
// them without an import cycle.
type RecoverableError interface {
	error
	ErrorCode() string
	Context() map[string]string
	SuggestedAction() string
}

// FailureKind classifies a driver-level failure for the Recovery Handler
// (spec.md §4.9).
type FailureKind string

// Failure kind constants, per spec.md §4.9.
const (
	FailureElementNotFound    FailureKind = "element_not_found"
	FailureElementNotVisible  FailureKind = "element_not_visible"
	FailureElementNotEnabled  FailureKind = "element_not_enabled"
	FailureStaleElement       FailureKind = "stale_element"
	FailureElementIntercepted FailureKind = "element_intercepted"
	FailureTimeout            FailureKind = "timeout"
	FailureNavigationError    FailureKind = "navigation_error"
	FailureModalBlocking      FailureKind = "modal_blocking"
	FailureCookieBanner       FailureKind = "cookie_banner"
	FailureLoadingSpinner     FailureKind = "loading_spinner"
	FailureUnknown            FailureKind = "unknown"
)

// UnresolvedError means no tier produced a usable selector (spec.md §7).
type UnresolvedError struct {
	Intent Intent
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved: no selector found for intent %q at any tier", e.Intent)
}
func (e *UnresolvedError) ErrorCode() string { return "UNRESOLVED" }
func (e *UnresolvedError) Context() map[string]string {
	return map[string]string{"intent": string(e.Intent)}
}
func (e *UnresolvedError) SuggestedAction() string {
	return "seed the knowledge base or broaden the page HTML context passed to the resolver"
}

// DriverError wraps a failure reported by the Driver Adapter, classified by
// the Recovery Handler into one of the FailureKind values.
type DriverError struct {
	Kind     FailureKind
	Selector Selector
	Message  string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s: %s (selector=%s)", e.Kind, e.Message, e.Selector.Value)
}
func (e *DriverError) ErrorCode() string { return string(e.Kind) }
func (e *DriverError) Context() map[string]string {
	return map[string]string{
		"selector": e.Selector.Value,
		"kind":     string(e.Selector.Kind),
	}
}
func (e *DriverError) SuggestedAction() string {
	switch e.Kind {
	case FailureElementIntercepted:
		return "dismiss overlays (modal/cookie-banner) then retry"
	case FailureStaleElement:
		return "re-resolve the selector and retry"
	default:
		return "retry after waiting for the element to become actionable"
	}
}

// TimeoutError means a wait exceeded its configured budget.
type TimeoutError struct {
	Operation string
	BudgetMS  int64
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s exceeded %dms budget", e.Operation, e.BudgetMS)
}
func (e *TimeoutError) ErrorCode() string { return "TIMEOUT" }
func (e *TimeoutError) Context() map[string]string {
	return map[string]string{"operation": e.Operation}
}
func (e *TimeoutError) SuggestedAction() string { return "increase the step timeout or investigate slow page load" }

// NavigationError is a driver-level navigation failure.
type NavigationError struct {
	URL     string
	Message string
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation error to %s: %s", e.URL, e.Message)
}
func (e *NavigationError) ErrorCode() string { return "NAVIGATION_ERROR" }
func (e *NavigationError) Context() map[string]string {
	return map[string]string{"url": e.URL}
}
func (e *NavigationError) SuggestedAction() string { return "verify the target URL is reachable" }

// NetworkError is a driver-level network failure, distinct from navigation
// failure so retries can treat them differently upstream.
type NetworkError struct {
	Message string
}

func (e *NetworkError) Error() string        { return "network error: " + e.Message }
func (e *NetworkError) ErrorCode() string     { return "NETWORK_ERROR" }
func (e *NetworkError) Context() map[string]string { return nil }
func (e *NetworkError) SuggestedAction() string    { return "check connectivity and retry" }

// AssertionFailedError is distinct from NotFound: the element resolved and
// was inspected, but its observed state didn't match the expectation.
type AssertionFailedError struct {
	Assertion string
	Expected  string
	Actual    string
}

func (e *AssertionFailedError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %q, got %q", e.Assertion, e.Expected, e.Actual)
}
func (e *AssertionFailedError) ErrorCode() string { return "ASSERTION_FAILED" }
func (e *AssertionFailedError) Context() map[string]string {
	return map[string]string{"expected": e.Expected, "actual": e.Actual}
}
func (e *AssertionFailedError) SuggestedAction() string { return "confirm the expected value against the live page" }

// RecoveryExhaustedError is returned when the per-(failure_kind,selector)
// recovery budget is spent without success (spec.md §4.9, hard cap of 3).
type RecoveryExhaustedError struct {
	Kind     FailureKind
	Selector Selector
	Attempts int
}

func (e *RecoveryExhaustedError) Error() string {
	return fmt.Sprintf("recovery exhausted after %d attempts for %s on %s", e.Attempts, e.Kind, e.Selector.Value)
}
func (e *RecoveryExhaustedError) ErrorCode() string { return "RECOVERY_EXHAUSTED" }
func (e *RecoveryExhaustedError) Context() map[string]string {
	return map[string]string{"failure_kind": string(e.Kind), "selector": e.Selector.Value}
}
func (e *RecoveryExhaustedError) SuggestedAction() string {
	return "inspect the page manually; automatic recovery could not resolve this step"
}

// CancelledError means the orchestrator-level stop signal was observed.
type CancelledError struct {
	Reason string
}

func (e *CancelledError) Error() string        { return "cancelled: " + e.Reason }
func (e *CancelledError) ErrorCode() string     { return "CANCELLED" }
func (e *CancelledError) Context() map[string]string { return map[string]string{"reason": e.Reason} }
func (e *CancelledError) SuggestedAction() string    { return "" }
