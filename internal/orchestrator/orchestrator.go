// Package orchestrator implements the Step Orchestrator (C11): the
// per-test-case control loop that, for every step, resolves a target,
// pre-checks the page, dispatches the action, post-checks its effect,
// recovers from a hard failure once if safe, and emits ExecutionEvents to
// the Learning Engine (spec.md §4.10).
package orchestrator

import (
	"context"
	"time"

	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/executor"
	"github.com/dotcommander/scout/internal/learning"
	"github.com/dotcommander/scout/internal/precheck"
	"github.com/dotcommander/scout/internal/recovery"
	"github.com/dotcommander/scout/internal/resolver"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/spa"
)

// Config configures one Orchestrator run.
type Config struct {
	RunID           string
	Domain          string
	Page            string
	CrossDomain     bool
	RecoveryEnabled bool
	InterStepDelay  time.Duration
	AI              resolver.AICallback
}

func (c Config) withDefaults() Config {
	return c
}

// Orchestrator wires the Selector Resolver, SPA Coordinator, Pre/Post
// Checker, Action Executor, Recovery Handler, and Learning Engine into the
// per-step control loop (spec.md §4.10). One instance drives one test
// case; it is not safe for concurrent Run calls against the same page.
type Orchestrator struct {
	cfg Config

	resolve *resolver.Resolver
	spaC    *spa.Coordinator // may be nil: pre-action ordering degrades to Pre/Post Checker alone
	checker *precheck.Checker
	exec    *executor.Executor
	recov   *recovery.Handler
	learn   *learning.Engine // may be nil: events are then dropped, not queued

	lifecycle
	metrics runMetrics
}

// New builds an Orchestrator. spaCoord and learn may be nil; every other
// dependency is required.
func New(cfg Config, resolve *resolver.Resolver, spaCoord *spa.Coordinator, checker *precheck.Checker, exec *executor.Executor, recov *recovery.Handler, learn *learning.Engine) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg.withDefaults(),
		resolve: resolve,
		spaC:    spaCoord,
		checker: checker,
		exec:    exec,
		recov:   recov,
		learn:   learn,
	}
	o.lifecycle.state = StateIdle
	return o
}

// runMetrics accumulates the counters RunResult.Metrics is derived from.
type runMetrics struct {
	resolutions       int
	recoveryAttempts  int
	recoverySuccesses int
}

// Run executes steps in order against page, honoring pause/stop requests at
// step boundaries and the configured inter-step delay (spec.md §4.10).
func (o *Orchestrator) Run(ctx context.Context, page driver.Page, steps []scoutmodel.Step) scoutmodel.RunResult {
	start := time.Now()
	o.setState(StateRunning)

	result := scoutmodel.RunResult{
		TestID:     o.cfg.RunID,
		TotalSteps: len(steps),
		StartedAt:  start,
	}

	aborted := false
	for i, step := range steps {
		if o.stopRequested() {
			aborted = true
			break
		}
		if !o.waitIfPaused(ctx) {
			aborted = true
			break
		}
		if o.stopRequested() {
			aborted = true
			break
		}

		sr := o.runStep(ctx, page, step)
		result.PerStep = append(result.PerStep, sr)
		tallyStep(&result, sr)

		isLast := i == len(steps)-1
		if !isLast && o.cfg.InterStepDelay > 0 {
			select {
			case <-time.After(o.cfg.InterStepDelay):
			case <-ctx.Done():
				aborted = true
			}
		}
		if ctx.Err() != nil {
			aborted = true
		}
		if aborted {
			break
		}
	}

	if aborted {
		for i := len(result.PerStep); i < len(steps); i++ {
			result.PerStep = append(result.PerStep, scoutmodel.StepResult{
				Number: steps[i].StepNumber,
				Action: steps[i].Action,
				Target: steps[i].Target,
				Status: scoutmodel.StepSkipped,
			})
		}
	}

	result.DurationMS = time.Since(start).Milliseconds()
	result.Status = finalStatus(result, aborted)
	result.Metrics = o.computeMetrics()

	if aborted {
		o.setState(StateFailed)
	} else if result.Status == scoutmodel.RunPassed {
		o.setState(StateCompleted)
	} else {
		o.setState(StateFailed)
	}
	return result
}

func tallyStep(result *scoutmodel.RunResult, sr scoutmodel.StepResult) {
	switch sr.Status {
	case scoutmodel.StepPassed:
		result.Passed++
	case scoutmodel.StepRecovered:
		result.Recovered++
	case scoutmodel.StepFailed:
		result.Failed++
	}
}

func finalStatus(result scoutmodel.RunResult, aborted bool) scoutmodel.RunStatus {
	switch {
	case aborted:
		return scoutmodel.RunAborted
	case result.Failed > 0:
		return scoutmodel.RunFailed
	default:
		return scoutmodel.RunPassed
	}
}

func (o *Orchestrator) computeMetrics() scoutmodel.RunMetrics {
	c := o.resolve.Counters
	total := c.KnowledgeBase + c.Heuristics + c.FrameworkRule + c.AI + c.Fallback + c.Failed
	m := scoutmodel.RunMetrics{AICalls: c.AI, KBHits: c.KnowledgeBase}
	if total > 0 {
		m.AIDependencyPct = float64(c.AI) / float64(total)
	}
	if o.metrics.recoveryAttempts > 0 {
		m.RecoveryRate = float64(o.metrics.recoverySuccesses) / float64(o.metrics.recoveryAttempts)
	}
	return m
}

// deriveIntent mirrors the Selector Resolver's own raw-target normalization
// (spec.md §4.5 tier 1) so the orchestrator can key ExecutionEvents and the
// recovery/learning ledgers by the same intent the resolver used.
func deriveIntent(rawTarget string) scoutmodel.Intent {
	if scoutmodel.LooksLikeSelector(rawTarget) {
		return scoutmodel.ExtractIntentFromSelector(rawTarget)
	}
	return scoutmodel.NormalizeIntent(rawTarget)
}
