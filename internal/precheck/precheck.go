// Package precheck implements the Pre/Post Action Checker (C8): cheap,
// DOM-only overlay detection and auto-dismiss before a step runs, and a
// PageState diff after it runs to catch silent no-ops (spec.md §4.7).
package precheck

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

// overlaySelector describes one known overlay/blocker pattern: how to find
// it, whether it's safe to auto-dismiss, and (if so) how.
type overlaySelector struct {
	name         string
	kind         scoutmodel.SelectorKind
	value        string
	critical     bool   // true: a human-meaningful modal that must not be auto-dismissed
	dismissValue string // selector of the dismiss control, if auto-dismissable
	dismissKind  scoutmodel.SelectorKind
}

// knownOverlays is the Pre-check's static selector list (spec.md §4.7
// "known selector list"): cookie banners and toasts are non-critical and
// auto-dismissed; modals and loaders are treated as critical blockers.
var knownOverlays = []overlaySelector{
	{name: "cookie_banner", kind: scoutmodel.KindCSS, value: `[data-testid="cookie-banner"]`, dismissValue: `[data-testid="cookie-accept"]`, dismissKind: scoutmodel.KindTestID},
	{name: "cookie_banner_generic", kind: scoutmodel.KindCSS, value: `.cookie-consent`, dismissValue: `.cookie-consent button`, dismissKind: scoutmodel.KindCSS},
	{name: "toast", kind: scoutmodel.KindCSS, value: `.toast`, dismissValue: `.toast .close`, dismissKind: scoutmodel.KindCSS},
	{name: "modal", kind: scoutmodel.KindRole, value: "dialog", critical: true},
	{name: "loader", kind: scoutmodel.KindCSS, value: `.spinner, .loading-overlay`, critical: true},
}

// errorIndicatorSelectors are scanned for when snapshotting PageState
// (spec.md §4.7 post-check "new_errors").
var errorIndicatorSelectors = []string{
	`[role="alert"]`, `.error-message`, `.toast-error`, `[data-testid="form-error"]`,
}

// Checker runs pre/post-action DOM checks against a driver.Page.
type Checker struct{}

// New builds a Checker. Stateless: every check reads the live page.
func New() *Checker {
	return &Checker{}
}

// ReadyResult is the Pre-check's verdict.
type ReadyResult struct {
	Ready                bool
	DismissedNonCritical []string
	CriticalBlocker      string
	Snapshot             scoutmodel.PageState
}

// PreCheck detects visible overlays, auto-dismisses the non-critical ones,
// and snapshots PageState. If a critical blocker remains visible, Ready is
// false and CriticalBlocker names it (spec.md §4.7).
func (c *Checker) PreCheck(ctx context.Context, page driver.Page) ReadyResult {
	var dismissed []string
	var critical string

	for _, ov := range knownOverlays {
		loc := page.Locator(ov.kind, ov.value)
		visible, err := loc.IsVisible(ctx)
		if err != nil || !visible {
			continue
		}
		if ov.critical {
			if critical == "" {
				critical = ov.name
			}
			continue
		}
		if ov.dismissValue == "" {
			continue
		}
		dismissLoc := page.Locator(ov.dismissKind, ov.dismissValue)
		if clickErr := dismissLoc.Click(ctx, false); clickErr == nil {
			dismissed = append(dismissed, ov.name)
		}
	}

	snap := Snapshot(ctx, page)
	return ReadyResult{
		Ready:                critical == "",
		DismissedNonCritical: dismissed,
		CriticalBlocker:      critical,
		Snapshot:             snap,
	}
}

// Snapshot captures the PageState used for pre/post-action comparison
// (spec.md §3/§4.7): URL, a structural DOM hash, visible error indicators,
// visible blockers, and the interactive-element count.
func Snapshot(ctx context.Context, page driver.Page) scoutmodel.PageState {
	content, _ := page.Content(ctx)

	var errs []string
	for _, sel := range errorIndicatorSelectors {
		loc := page.Locator(scoutmodel.KindCSS, sel)
		if visible, err := loc.IsVisible(ctx); err == nil && visible {
			errs = append(errs, sel)
		}
	}

	var blockers []string
	for _, ov := range knownOverlays {
		if !ov.critical {
			continue
		}
		loc := page.Locator(ov.kind, ov.value)
		if visible, err := loc.IsVisible(ctx); err == nil && visible {
			blockers = append(blockers, ov.name)
		}
	}

	return scoutmodel.PageState{
		URL:              page.URL(),
		DOMHash:          structuralHash(content),
		ErrorIndicators:  errs,
		Blockers:         blockers,
		InteractiveCount: countInteractive(content),
	}
}

// structuralHash hashes the DOM content after collapsing every run of
// digits to one placeholder, so numeric IDs and timestamps in otherwise
// identical re-renders don't register as a change; tokens that mix letters
// and digits (e.g. hex hashes) keep their letters (spec.md §4.7 "DOM hash").
func structuralHash(html string) string {
	normalized := normalizeForHash(html)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

func normalizeForHash(html string) string {
	var sb strings.Builder
	inDigitRun := false
	for _, r := range html {
		if r >= '0' && r <= '9' {
			if !inDigitRun {
				sb.WriteRune('#')
				inDigitRun = true
			}
			continue
		}
		inDigitRun = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// countInteractive is a crude structural count of interactive tags,
// enough to detect "a new form/button appeared" without a full parser
// dependency here (the Heuristic Engine already owns real HTML parsing).
func countInteractive(html string) int {
	tags := []string{"<button", "<input", "<a ", "<select", "<textarea"}
	lower := strings.ToLower(html)
	count := 0
	for _, tag := range tags {
		count += strings.Count(lower, tag)
	}
	return count
}

// PostCheck compares before/after PageState and reports whether the action
// had an observable effect, plus any newly-visible error indicators
// (spec.md §4.7).
func (c *Checker) PostCheck(before, after scoutmodel.PageState) scoutmodel.PostActionDiff {
	return before.Diff(after)
}

// Dismiss looks up a known overlay by name and clicks its configured
// dismiss control if currently visible. Used by the Recovery Handler's
// dismiss-modal/dismiss-cookie-banner strategies (spec.md §4.9) — unlike
// PreCheck, it targets one named overlay rather than sweeping all of them.
func (c *Checker) Dismiss(ctx context.Context, page driver.Page, name string) (bool, error) {
	for _, ov := range knownOverlays {
		if ov.name != name || ov.dismissValue == "" {
			continue
		}
		loc := page.Locator(ov.kind, ov.value)
		visible, err := loc.IsVisible(ctx)
		if err != nil || !visible {
			return false, nil
		}
		dismissLoc := page.Locator(ov.dismissKind, ov.dismissValue)
		if err := dismissLoc.Click(ctx, false); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// ClearOverlays dismisses every currently-visible non-critical overlay, for
// the clear-overlays recovery strategy.
func (c *Checker) ClearOverlays(ctx context.Context, page driver.Page) []string {
	var dismissed []string
	for _, ov := range knownOverlays {
		if ov.critical || ov.dismissValue == "" {
			continue
		}
		loc := page.Locator(ov.kind, ov.value)
		if visible, err := loc.IsVisible(ctx); err != nil || !visible {
			continue
		}
		dismissLoc := page.Locator(ov.dismissKind, ov.dismissValue)
		if err := dismissLoc.Click(ctx, false); err == nil {
			dismissed = append(dismissed, ov.name)
		}
	}
	return dismissed
}

// WaitForOverlayGone polls a named overlay until it's no longer visible or
// timeout elapses, for the wait-for-loading recovery strategy.
func (c *Checker) WaitForOverlayGone(ctx context.Context, page driver.Page, name string, interval, timeout time.Duration) error {
	var target *overlaySelector
	for i := range knownOverlays {
		if knownOverlays[i].name == name {
			target = &knownOverlays[i]
			break
		}
	}
	if target == nil {
		return nil
	}
	loc := page.Locator(target.kind, target.value)
	deadline := time.Now().Add(timeout)
	for {
		if visible, err := loc.IsVisible(ctx); err == nil && !visible {
			return nil
		}
		if time.Now().After(deadline) {
			return &scoutmodel.TimeoutError{Operation: "wait_for_loading", BudgetMS: timeout.Milliseconds()}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// SilentNoOp reports whether verb's action should have had some observable
// effect but the diff shows none — a soft warning, not a hard failure
// (spec.md §4.7: "surfaced to the orchestrator as a soft warning").
func SilentNoOp(verb scoutmodel.Verb, diff scoutmodel.PostActionDiff) bool {
	if verb.IsAssertion() || verb.IsWait() {
		return false
	}
	return !diff.HadEffect()
}
