// Package recovery implements the Recovery Handler (C10): classifies a
// driver-level failure into a FailureKind, then tries that kind's ordered
// strategy list, spending a per-(failure kind, selector, step) budget and
// remembering which strategy last worked so it's tried first next time
// (spec.md §4.9).
package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/precheck"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

var (
	errNoOverlayFound  = errors.New("recovery: no matching overlay was visible to dismiss")
	errNoSelector      = errors.New("recovery: strategy requires a selector but none was given")
	errUnknownStrategy = errors.New("recovery: unknown strategy")
)

// Strategy is one remediation action the handler can try.
type Strategy string

// Strategy constants, per spec.md §4.9's strategy table.
const (
	StrategyDismissModal        Strategy = "dismiss-modal"
	StrategyDismissCookieBanner Strategy = "dismiss-cookie-banner"
	StrategyScrollIntoView      Strategy = "scroll-into-view"
	StrategyClearOverlays       Strategy = "clear-overlays"
	StrategyJSClick             Strategy = "js-click"
	StrategyWaitAndRetry        Strategy = "wait-and-retry"
	StrategyWaitForLoading      Strategy = "wait-for-loading"
	StrategyRefresh             Strategy = "refresh"
)

// maxAttemptsPerKey is the hard cap of recovery attempts per (failure kind,
// selector) within one step (spec.md §4.9 "Budget").
const maxAttemptsPerKey = 3

// strategyTable maps each failure kind to its ordered list of strategies to
// attempt, per spec.md §4.9.
var strategyTable = map[scoutmodel.FailureKind][]Strategy{
	scoutmodel.FailureElementIntercepted: {StrategyDismissModal, StrategyDismissCookieBanner, StrategyScrollIntoView, StrategyClearOverlays, StrategyJSClick},
	scoutmodel.FailureElementNotFound:    {StrategyWaitAndRetry, StrategyScrollIntoView, StrategyWaitForLoading, StrategyRefresh},
	scoutmodel.FailureElementNotVisible:  {StrategyScrollIntoView, StrategyWaitAndRetry},
	scoutmodel.FailureStaleElement:       {StrategyWaitAndRetry, StrategyRefresh},
	scoutmodel.FailureModalBlocking:      {StrategyDismissModal, StrategyClearOverlays},
	scoutmodel.FailureCookieBanner:       {StrategyDismissCookieBanner, StrategyClearOverlays},
	scoutmodel.FailureLoadingSpinner:     {StrategyWaitForLoading, StrategyWaitAndRetry},
	scoutmodel.FailureTimeout:            {StrategyWaitAndRetry, StrategyRefresh},
	scoutmodel.FailureNavigationError:    {StrategyRefresh, StrategyWaitAndRetry},
	scoutmodel.FailureUnknown:            {StrategyWaitAndRetry},
}

// ClassifyFailure maps an error (and its optional context) to a FailureKind
// (spec.md §4.9). A *scoutmodel.DriverError already carries its kind; other
// error types are matched by their Go type or, failing that, by keyword in
// their message.
func ClassifyFailure(err error) scoutmodel.FailureKind {
	if err == nil {
		return scoutmodel.FailureUnknown
	}
	var driverErr *scoutmodel.DriverError
	if asDriverError(err, &driverErr) {
		return driverErr.Kind
	}
	var timeoutErr *scoutmodel.TimeoutError
	if asTimeoutError(err, &timeoutErr) {
		return scoutmodel.FailureTimeout
	}
	var navErr *scoutmodel.NavigationError
	if asNavigationError(err, &navErr) {
		return scoutmodel.FailureNavigationError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "cookie"):
		return scoutmodel.FailureCookieBanner
	case strings.Contains(msg, "modal") || strings.Contains(msg, "dialog"):
		return scoutmodel.FailureModalBlocking
	case strings.Contains(msg, "spinner") || strings.Contains(msg, "loading"):
		return scoutmodel.FailureLoadingSpinner
	case strings.Contains(msg, "intercept"):
		return scoutmodel.FailureElementIntercepted
	case strings.Contains(msg, "stale"):
		return scoutmodel.FailureStaleElement
	case strings.Contains(msg, "not visible"):
		return scoutmodel.FailureElementNotVisible
	case strings.Contains(msg, "not enabled") || strings.Contains(msg, "disabled"):
		return scoutmodel.FailureElementNotEnabled
	case strings.Contains(msg, "not found") || strings.Contains(msg, "no element"):
		return scoutmodel.FailureElementNotFound
	case strings.Contains(msg, "timeout"):
		return scoutmodel.FailureTimeout
	case strings.Contains(msg, "navigation"):
		return scoutmodel.FailureNavigationError
	default:
		return scoutmodel.FailureUnknown
	}
}

// attemptKey scopes the recovery budget to one step's occurrence of one
// failure kind against one selector (spec.md §4.9 "within one step").
type attemptKey struct {
	step     int
	kind     scoutmodel.FailureKind
	selector string
}

// Result is what Recover reports after trying strategies for one failure.
type Result struct {
	Attempted           Strategy
	Succeeded           bool
	SafeToRetryOriginal bool
}

// Handler runs recovery strategies against a driver.Page.
type Handler struct {
	mu          sync.Mutex
	attempts    map[attemptKey]int
	lastSuccess map[scoutmodel.FailureKind]Strategy
	checker     *precheck.Checker

	waitAndRetryDelay  time.Duration
	loadingPollTimeout time.Duration
}

// New builds a Handler. checker is reused for the dismiss/clear-overlays
// strategies so the overlay selector list lives in one place
// (internal/precheck).
func New(checker *precheck.Checker) *Handler {
	return &Handler{
		attempts:           map[attemptKey]int{},
		lastSuccess:        map[scoutmodel.FailureKind]Strategy{},
		checker:            checker,
		waitAndRetryDelay:  200 * time.Millisecond,
		loadingPollTimeout: 5 * time.Second,
	}
}

// Recover attempts to remediate kind's failure against selector within
// step. It returns a RecoveryExhaustedError once the per-key budget (3) is
// spent. Strategies are tried in the kind's table order, except the
// previously-successful strategy for this kind (if any) is tried first
// (spec.md §4.9: "subsequent lookups ... try the previously successful
// action first").
func (h *Handler) Recover(ctx context.Context, page driver.Page, step int, kind scoutmodel.FailureKind, selector scoutmodel.Selector) (Result, error) {
	key := attemptKey{step: step, kind: kind, selector: selector.Value}

	h.mu.Lock()
	count := h.attempts[key]
	if count >= maxAttemptsPerKey {
		h.mu.Unlock()
		return Result{}, &scoutmodel.RecoveryExhaustedError{Kind: kind, Selector: selector, Attempts: count}
	}
	h.attempts[key] = count + 1
	strategies := h.orderedStrategies(kind)
	h.mu.Unlock()

	for _, strat := range strategies {
		if err := h.apply(ctx, page, strat, selector); err != nil {
			continue
		}
		h.mu.Lock()
		h.lastSuccess[kind] = strat
		h.mu.Unlock()
		return Result{Attempted: strat, Succeeded: true, SafeToRetryOriginal: true}, nil
	}
	return Result{Succeeded: false}, nil
}

// orderedStrategies returns kind's strategy list with any remembered
// last-successful strategy moved to the front.
func (h *Handler) orderedStrategies(kind scoutmodel.FailureKind) []Strategy {
	base := strategyTable[kind]
	if len(base) == 0 {
		base = strategyTable[scoutmodel.FailureUnknown]
	}
	preferred, ok := h.lastSuccess[kind]
	if !ok {
		return append([]Strategy(nil), base...)
	}
	ordered := make([]Strategy, 0, len(base))
	ordered = append(ordered, preferred)
	for _, s := range base {
		if s != preferred {
			ordered = append(ordered, s)
		}
	}
	return ordered
}

// apply runs one strategy. A nil return means the strategy believes the
// original action is now safe to retry.
func (h *Handler) apply(ctx context.Context, page driver.Page, strat Strategy, selector scoutmodel.Selector) error {
	switch strat {
	case StrategyDismissModal:
		ok, err := h.checker.Dismiss(ctx, page, "modal")
		if err != nil {
			return err
		}
		if !ok {
			return page.KeyboardPress(ctx, "Escape")
		}
		return nil
	case StrategyDismissCookieBanner:
		ok, err := h.checker.Dismiss(ctx, page, "cookie_banner")
		if err != nil {
			return err
		}
		if !ok {
			ok, err = h.checker.Dismiss(ctx, page, "cookie_banner_generic")
			if err != nil {
				return err
			}
		}
		if !ok {
			return errNoOverlayFound
		}
		return nil
	case StrategyScrollIntoView:
		if selector.Value == "" {
			return errNoSelector
		}
		loc := page.Locator(selector.Kind, selector.Value)
		if report, err := precheck.VisibilityCheck(ctx, loc, precheck.DefaultViewport); err == nil && report.Actionable() {
			return nil // already on-screen with area; scrolling would be a no-op
		}
		return loc.ScrollIntoView(ctx)
	case StrategyClearOverlays:
		dismissed := h.checker.ClearOverlays(ctx, page)
		if len(dismissed) == 0 {
			return errNoOverlayFound
		}
		return nil
	case StrategyJSClick:
		if selector.Value == "" {
			return errNoSelector
		}
		return page.Locator(selector.Kind, selector.Value).Click(ctx, true)
	case StrategyWaitAndRetry:
		timer := time.NewTimer(h.waitAndRetryDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	case StrategyWaitForLoading:
		return h.checker.WaitForOverlayGone(ctx, page, "loader", 200*time.Millisecond, h.loadingPollTimeout)
	case StrategyRefresh:
		return page.Navigate(ctx, page.URL(), driver.WaitUntilLoad)
	default:
		return errUnknownStrategy
	}
}

func asDriverError(err error, target **scoutmodel.DriverError) bool {
	if de, ok := err.(*scoutmodel.DriverError); ok {
		*target = de
		return true
	}
	return false
}

func asTimeoutError(err error, target **scoutmodel.TimeoutError) bool {
	if te, ok := err.(*scoutmodel.TimeoutError); ok {
		*target = te
		return true
	}
	return false
}

func asNavigationError(err error, target **scoutmodel.NavigationError) bool {
	if ne, ok := err.(*scoutmodel.NavigationError); ok {
		*target = ne
		return true
	}
	return false
}
