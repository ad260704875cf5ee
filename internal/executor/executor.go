// Package executor implements the Action Executor (C9): given a resolved
// selector and its alternatives, it dispatches the right driver calls for
// the step's verb, emulating real user interaction where the protocol
// requires it (spec.md §4.8).
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/spa"
)

// Default timeouts, per spec.md §4.8.
const (
	DefaultStepTimeout = 30 * time.Second
	ClickNavGrace      = 3 * time.Second
	AssertPollInterval = 200 * time.Millisecond
	AssertPollTimeout  = 10 * time.Second
	fillCharDelay      = 20 * time.Millisecond
)

// SuccessRecorder is notified with the selector that actually worked, so the
// caller can key a knowledge-store update to the step's original intent
// rather than whichever alternative selector happened to succeed (spec.md
// §4.8 point 5: "the intent is the learning key").
type SuccessRecorder func(ctx context.Context, used scoutmodel.Selector)

// Config tunes the executor's timeouts. The zero value falls back to the
// spec.md §4.8 defaults.
type Config struct {
	StepTimeout        time.Duration
	ClickNavGrace      time.Duration
	AssertPollInterval time.Duration
	AssertPollTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.StepTimeout <= 0 {
		c.StepTimeout = DefaultStepTimeout
	}
	if c.ClickNavGrace <= 0 {
		c.ClickNavGrace = ClickNavGrace
	}
	if c.AssertPollInterval <= 0 {
		c.AssertPollInterval = AssertPollInterval
	}
	if c.AssertPollTimeout <= 0 {
		c.AssertPollTimeout = AssertPollTimeout
	}
	return c
}

// Executor dispatches one resolved step against a driver.Page.
type Executor struct {
	cfg Config
	spa *spa.Coordinator
}

// New builds an Executor. spaCoord may be nil; without it, click's
// post-click "wait for render-stable" branch degrades to a short
// network-idle wait instead of tracking SPA mutation counters.
func New(cfg Config, spaCoord *spa.Coordinator) *Executor {
	return &Executor{cfg: cfg.withDefaults(), spa: spaCoord}
}

// Input bundles what Execute needs to run one step.
type Input struct {
	Step       scoutmodel.Step
	Resolution scoutmodel.ResolutionResult
	OnSuccess  SuccessRecorder
}

// Execute runs one step against page. The returned error is non-nil only
// for a hard failure (every candidate exhausted, or a page-level verb's
// driver call failed); StepResult always reflects the outcome.
func (e *Executor) Execute(ctx context.Context, page driver.Page, in Input) (scoutmodel.StepResult, error) {
	start := time.Now()
	result := scoutmodel.StepResult{
		Number: in.Step.StepNumber,
		Action: in.Step.Action,
		Target: in.Step.Target,
		Tier:   in.Resolution.Tier,
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()

	var usedSelector scoutmodel.Selector
	var err error
	if in.Step.Action.RequiresLocator() {
		usedSelector, err = e.dispatchLocatorDriven(ctx, page, in)
	} else {
		err = e.dispatchPageLevel(ctx, page, in.Step)
		usedSelector = in.Resolution.Selector
	}

	result.DurationMS = time.Since(start).Milliseconds()
	result.SelectorUsed = usedSelector.Value
	if err != nil {
		result.Status = scoutmodel.StepFailed
		result.Error = err.Error()
		return result, err
	}
	if in.OnSuccess != nil && in.Step.Action.RequiresLocator() {
		in.OnSuccess(ctx, usedSelector)
	}
	result.Status = scoutmodel.StepPassed
	return result, nil
}

// dispatchLocatorDriven implements the candidate-list protocol: primary
// selector first, then alternatives in order; the first candidate that
// becomes visible and accepts the verb wins (spec.md §4.8 points 1-2,6).
func (e *Executor) dispatchLocatorDriven(ctx context.Context, page driver.Page, in Input) (scoutmodel.Selector, error) {
	candidates := append([]scoutmodel.Selector{in.Resolution.Selector}, in.Resolution.Alternatives...)

	var lastErr error
	for _, cand := range candidates {
		if cand.Value == "" {
			continue
		}
		loc := page.Locator(cand.Kind, cand.Value)
		if err := loc.WaitFor(ctx, driver.StateVisible, remaining(ctx)); err != nil {
			lastErr = err
			continue
		}
		if err := e.applyVerb(ctx, page, loc, in.Step); err != nil {
			lastErr = err
			continue
		}
		return cand, nil
	}
	if lastErr == nil {
		lastErr = &scoutmodel.DriverError{Kind: scoutmodel.FailureElementNotFound, Message: "no candidates provided"}
	}
	return scoutmodel.Selector{}, fmt.Errorf("all candidates failed for step %d (%s %s): %w", in.Step.StepNumber, in.Step.Action, in.Step.Target, lastErr)
}

// applyVerb dispatches a single locator-driven verb. Assertions poll; every
// other verb applies once per candidate attempt.
func (e *Executor) applyVerb(ctx context.Context, page driver.Page, loc driver.Locator, step scoutmodel.Step) error {
	switch step.Action {
	case scoutmodel.VerbClick:
		return e.clickWithNavDetection(ctx, page, loc)
	case scoutmodel.VerbDoubleClick:
		if err := loc.Click(ctx, false); err != nil {
			return err
		}
		return loc.Click(ctx, false)
	case scoutmodel.VerbFill:
		return e.fillLikeAUser(ctx, loc, step.Value)
	case scoutmodel.VerbType:
		if err := loc.Click(ctx, false); err != nil {
			return err
		}
		return loc.Type(ctx, step.Value, fillCharDelay)
	case scoutmodel.VerbSelect:
		return loc.SelectOption(ctx, step.Value, "", 0)
	case scoutmodel.VerbCheck:
		return loc.Check(ctx)
	case scoutmodel.VerbUncheck:
		return loc.Uncheck(ctx)
	case scoutmodel.VerbHover:
		return loc.Hover(ctx)
	case scoutmodel.VerbPressKey:
		return loc.PressKey(ctx, step.Value)
	case scoutmodel.VerbScroll:
		return loc.ScrollIntoView(ctx)
	case scoutmodel.VerbUploadFile:
		return loc.UploadFile(ctx, splitPaths(step.Value))
	case scoutmodel.VerbWaitForElement:
		return nil // already visible, WaitFor above satisfied the verb
	case scoutmodel.VerbAssertVisible:
		return pollUntil(ctx, e.cfg.AssertPollInterval, e.cfg.AssertPollTimeout, func() (bool, error) {
			return loc.IsVisible(ctx)
		})
	case scoutmodel.VerbAssertText:
		return pollUntil(ctx, e.cfg.AssertPollInterval, e.cfg.AssertPollTimeout, func() (bool, error) {
			text, err := loc.TextContent(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(text, step.Expected), nil
		})
	case scoutmodel.VerbAssertValue:
		return pollUntil(ctx, e.cfg.AssertPollInterval, e.cfg.AssertPollTimeout, func() (bool, error) {
			value, err := loc.InputValue(ctx)
			if err != nil {
				return false, err
			}
			return value == step.Expected, nil
		})
	default:
		return fmt.Errorf("verb %s requires a locator but has no dispatch rule", step.Action)
	}
}

// clickWithNavDetection implements spec.md §4.8 point 3: snapshot URL,
// click, then wait for load if the URL changed, else wait for render-stable.
func (e *Executor) clickWithNavDetection(ctx context.Context, page driver.Page, loc driver.Locator) error {
	before := page.URL()
	if err := loc.Click(ctx, false); err != nil {
		return err
	}
	if page.URL() != before {
		return page.WaitForLoadState(ctx, driver.WaitUntilLoad, e.cfg.ClickNavGrace)
	}
	if e.spa != nil {
		_ = e.spa.WaitForRenderStable(ctx, page, e.cfg.ClickNavGrace)
		return nil
	}
	_ = page.WaitForLoadState(ctx, driver.WaitUntilNetworkIdle, e.cfg.ClickNavGrace)
	return nil
}

// fillLikeAUser implements spec.md §4.8 point 4: focus, clear (emulating
// select-all), type char-by-char with delay, blur via Tab.
func (e *Executor) fillLikeAUser(ctx context.Context, loc driver.Locator, value string) error {
	if err := loc.Click(ctx, false); err != nil {
		return err
	}
	if err := loc.Fill(ctx, ""); err != nil {
		return err
	}
	if err := loc.Type(ctx, value, fillCharDelay); err != nil {
		return err
	}
	return loc.PressKey(ctx, "Tab")
}

// dispatchPageLevel handles the verbs that act on the whole page rather
// than a resolved element.
func (e *Executor) dispatchPageLevel(ctx context.Context, page driver.Page, step scoutmodel.Step) error {
	switch step.Action {
	case scoutmodel.VerbNavigate:
		return page.Navigate(ctx, step.Target, driver.WaitUntilLoad)
	case scoutmodel.VerbWait:
		d := parseWaitDuration(step.Value)
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	case scoutmodel.VerbWaitForNav:
		return page.WaitForLoadState(ctx, driver.WaitUntilLoad, e.cfg.StepTimeout)
	case scoutmodel.VerbAssertURL:
		return pollUntil(ctx, e.cfg.AssertPollInterval, e.cfg.AssertPollTimeout, func() (bool, error) {
			return strings.Contains(page.URL(), step.Expected) || page.URL() == step.Expected, nil
		})
	case scoutmodel.VerbScreenshot:
		path := step.Target
		if path == "" {
			path = fmt.Sprintf("screenshot_step_%d.png", step.StepNumber)
		}
		return page.Screenshot(ctx, path)
	default:
		return fmt.Errorf("verb %s does not require a locator but has no page-level dispatch rule", step.Action)
	}
}

// pollUntil re-evaluates cond at interval until it reports true, an error,
// the timeout elapses, or ctx is cancelled (spec.md §4.8: "assertions poll
// their target").
func pollUntil(ctx context.Context, interval, timeout time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := cond()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return &scoutmodel.TimeoutError{Operation: "assert_poll", BudgetMS: timeout.Milliseconds()}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// remaining returns ctx's time budget, falling back to the assert poll
// timeout if ctx carries no deadline (shouldn't happen once Execute has
// wrapped it, but keeps WaitFor callers honest either way).
func remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
		return 0
	}
	return AssertPollTimeout
}

// parseWaitDuration accepts either a Go duration string ("500ms") or a bare
// number of milliseconds ("500"), matching how test-case authors tend to
// write wait values.
func parseWaitDuration(value string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return 0
}

// splitPaths splits a comma-separated upload_file value into individual
// file paths.
func splitPaths(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
