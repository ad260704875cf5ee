// Package spa implements the SPA Coordinator (C7): framework detection,
// the hydration/render-stable/network-idle/route-change wait primitives,
// and the strict pre-action ordering guarantee (spec.md §4.6).
package spa

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dotcommander/scout/internal/driver"
)

// Framework identifies a detected client-side rendering framework.
type Framework string

// Framework constants, per spec.md §4.6's named markers.
const (
	React   Framework = "react"
	Angular Framework = "angular"
	Vue     Framework = "vue"
	NextJS  Framework = "next"
	NuxtJS  Framework = "nuxt"
	None    Framework = ""
)

// marker pairs a framework with the in-page probe script that detects it.
type marker struct {
	framework Framework
	script    string
}

// markers are evaluated in order; the first truthy result wins. Scripts are
// written defensively (typeof checks) since the probed globals may not
// exist on a non-matching page.
var markers = []marker{
	{NextJS, `!!(window.__NEXT_DATA__)`},
	{NuxtJS, `!!(window.__NUXT__)`},
	{React, `!!(window.__REACT_DEVTOOLS_GLOBAL_HOOK__)`},
	{Angular, `!!(document.querySelector('[ng-version]'))`},
	{Vue, `!!(window.__VUE_DEVTOOLS_GLOBAL_HOOK__)`},
}

// Coordinator caches per-page framework detection and exposes the wait
// primitives and pre-action ordering guarantee.
type Coordinator struct {
	mu          sync.Mutex
	detected    map[string]Framework // keyed by page URL
	pollLimiter *rate.Limiter
}

// New builds a Coordinator. Poll primitives pace their repeated
// Evaluate/URL checks through a shared rate limiter (10/s, burst 1) so a
// slow page doesn't get hammered with synchronous round trips.
func New() *Coordinator {
	return &Coordinator{
		detected:    map[string]Framework{},
		pollLimiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// DetectFramework evaluates in-page globals/markers and caches the result
// per page URL (spec.md §4.6 "Framework detection").
func (c *Coordinator) DetectFramework(ctx context.Context, page driver.Page) Framework {
	url := page.URL()

	c.mu.Lock()
	if fw, ok := c.detected[url]; ok {
		c.mu.Unlock()
		return fw
	}
	c.mu.Unlock()

	fw := None
	for _, m := range markers {
		result, err := page.Evaluate(ctx, m.script)
		if err != nil {
			continue
		}
		if truthy(result) {
			fw = m.framework
			break
		}
	}

	c.mu.Lock()
	c.detected[url] = fw
	c.mu.Unlock()
	return fw
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func (c *Coordinator) throttle(ctx context.Context) error {
	return c.pollLimiter.Wait(ctx)
}

// WaitForHydration blocks until the detected framework reports it has
// finished hydrating, or timeout elapses. Framework-agnostic pages (fw ==
// None) are considered already hydrated.
func (c *Coordinator) WaitForHydration(ctx context.Context, page driver.Page, fw Framework, timeout time.Duration) error {
	if fw == None {
		return nil
	}
	script := hydrationProbe(fw)
	return c.pollUntilTrue(ctx, page, script, timeout)
}

func hydrationProbe(fw Framework) string {
	switch fw {
	case React:
		return `!!(document.querySelector('[data-reactroot], #root, #__next'))`
	case NextJS:
		return `!!(window.__NEXT_DATA__ && window.__NEXT_DATA__.props)`
	case Angular:
		return `!!(document.querySelector('[ng-version]') && !document.querySelector('app-root:empty'))`
	case Vue, NuxtJS:
		return `!!(document.querySelector('#app, #__nuxt'))`
	default:
		return `true`
	}
}

// WaitForRenderStable installs a mutation-observer marker (assumed
// pre-installed by the driver's page script) and polls its mutation
// counter, considering the DOM stable once the count is unchanged across
// 3 consecutive 100ms intervals (spec.md §4.6).
func (c *Coordinator) WaitForRenderStable(ctx context.Context, page driver.Page, timeout time.Duration) error {
	const stableIntervalsNeeded = 3
	const pollInterval = 100 * time.Millisecond

	deadline := time.Now().Add(timeout)
	var lastCount float64 = -1
	stableStreak := 0

	for time.Now().Before(deadline) {
		if err := c.throttle(ctx); err != nil {
			return err
		}
		result, err := page.Evaluate(ctx, mutationCountScript)
		if err != nil {
			time.Sleep(pollInterval)
			continue
		}
		count, ok := asFloat(result)
		if !ok {
			time.Sleep(pollInterval)
			continue
		}
		if count == lastCount {
			stableStreak++
			if stableStreak >= stableIntervalsNeeded {
				return nil
			}
		} else {
			stableStreak = 0
			lastCount = count
		}
		time.Sleep(pollInterval)
	}
	return &timeoutErr{op: "wait_for_render_stable"}
}

// mutationCountScript reads a mutation counter the driver's bootstrap
// script is expected to maintain at window.__scoutMutationCount.
const mutationCountScript = `(window.__scoutMutationCount || 0)`

// WaitForNetworkIdle delegates to the driver's own network-idle wait
// primitive (spec.md §4.6: "driver primitive").
func (c *Coordinator) WaitForNetworkIdle(ctx context.Context, page driver.Page, timeout time.Duration) error {
	return page.WaitForLoadState(ctx, driver.WaitUntilNetworkIdle, timeout)
}

// WaitForSPAIdle combines in-page pending-fetch/XHR tracking with
// render-stable (spec.md §4.6).
func (c *Coordinator) WaitForSPAIdle(ctx context.Context, page driver.Page, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.throttle(ctx); err != nil {
			return err
		}
		result, err := page.Evaluate(ctx, pendingRequestsScript)
		if err == nil {
			if count, ok := asFloat(result); ok && count == 0 {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					remaining = 100 * time.Millisecond
				}
				return c.WaitForRenderStable(ctx, page, remaining)
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &timeoutErr{op: "wait_for_spa_idle"}
}

// pendingRequestsScript reads a pending in-flight counter the driver's
// bootstrap script maintains at window.__scoutPendingRequests by wrapping
// fetch/XHR.
const pendingRequestsScript = `(window.__scoutPendingRequests || 0)`

// WaitForRouteChange polls page.URL() until it differs from the baseline
// fromURL or the timeout passes (spec.md §4.6).
func (c *Coordinator) WaitForRouteChange(ctx context.Context, page driver.Page, fromURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.throttle(ctx); err != nil {
			return err
		}
		if page.URL() != fromURL {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &timeoutErr{op: "wait_for_route_change"}
}

func (c *Coordinator) pollUntilTrue(ctx context.Context, page driver.Page, script string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.throttle(ctx); err != nil {
			return err
		}
		result, err := page.Evaluate(ctx, script)
		if err == nil && truthy(result) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return &timeoutErr{op: "wait_for_hydration"}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// PreActionOptions toggles which ordering steps run; all default to
// enabled. BlockerHandler runs last and is provided by the caller (the
// Pre/Post Action Checker) to avoid an import cycle.
type PreActionOptions struct {
	NetworkIdleTimeout  time.Duration
	HydrationTimeout    time.Duration
	RenderStableTimeout time.Duration
	SkipNetworkIdle     bool
	SkipHydration       bool
	SkipRenderStable    bool
	BlockerHandler      func(ctx context.Context) error
}

// StepLog records one pre-action ordering step's outcome for the caller to
// surface; a timeout is never fatal (spec.md §4.6 "Ordering guarantee").
type StepLog struct {
	Step    string
	TimedOut bool
	Err     error
}

// RunPreActionSequence runs network-idle -> hydration (only if a SPA
// framework is detected) -> render-stable -> blocker handling, in that
// strict order. A timeout in any step is logged but non-fatal; the
// sequence always proceeds to the next step (spec.md §4.6).
func (c *Coordinator) RunPreActionSequence(ctx context.Context, page driver.Page, opts PreActionOptions) []StepLog {
	var logs []StepLog

	if !opts.SkipNetworkIdle {
		err := c.WaitForNetworkIdle(ctx, page, timeoutOr(opts.NetworkIdleTimeout, 5*time.Second))
		logs = append(logs, StepLog{Step: "network_idle", TimedOut: isTimeout(err), Err: err})
	}

	fw := c.DetectFramework(ctx, page)
	if !opts.SkipHydration && fw != None {
		err := c.WaitForHydration(ctx, page, fw, timeoutOr(opts.HydrationTimeout, 5*time.Second))
		logs = append(logs, StepLog{Step: "hydration", TimedOut: isTimeout(err), Err: err})
	}

	if !opts.SkipRenderStable {
		err := c.WaitForRenderStable(ctx, page, timeoutOr(opts.RenderStableTimeout, 2*time.Second))
		logs = append(logs, StepLog{Step: "render_stable", TimedOut: isTimeout(err), Err: err})
	}

	if opts.BlockerHandler != nil {
		err := opts.BlockerHandler(ctx)
		logs = append(logs, StepLog{Step: "blocker_handling", Err: err})
	}

	return logs
}

func timeoutOr(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func isTimeout(err error) bool {
	_, ok := err.(*timeoutErr)
	return ok
}

type timeoutErr struct {
	op string
}

func (e *timeoutErr) Error() string { return "spa: " + e.op + " timed out" }

// ShadowPierceScript is the best-effort shadow-DOM walker injected when a
// primary selector yields zero matches (spec.md §4.6 "Shadow DOM"). It
// recursively descends shadowRoot boundaries looking for a CSS match and
// returns the first match's outerHTML, or null.
const ShadowPierceScript = `
(function(selector) {
  function search(root) {
    var found = root.querySelector(selector);
    if (found) return found;
    var all = root.querySelectorAll('*');
    for (var i = 0; i < all.length; i++) {
      if (all[i].shadowRoot) {
        var inner = search(all[i].shadowRoot);
        if (inner) return inner;
      }
    }
    return null;
  }
  var el = search(document);
  return el ? el.outerHTML : null;
})(%s)
`

// BuildShadowPierceScript fills the selector argument into
// ShadowPierceScript as a quoted JS string literal.
func BuildShadowPierceScript(selector string) string {
	escaped := strings.ReplaceAll(selector, `'`, `\'`)
	return strings.Replace(ShadowPierceScript, "%s", "'"+escaped+"'", 1)
}
