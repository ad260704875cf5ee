package orchestrator

import (
	"context"
	"time"

	"github.com/dotcommander/scout/internal/driver"
	"github.com/dotcommander/scout/internal/executor"
	"github.com/dotcommander/scout/internal/framework"
	"github.com/dotcommander/scout/internal/learning"
	"github.com/dotcommander/scout/internal/precheck"
	"github.com/dotcommander/scout/internal/recovery"
	"github.com/dotcommander/scout/internal/resolver"
	"github.com/dotcommander/scout/internal/scoutmodel"
	"github.com/dotcommander/scout/internal/spa"
)

// runStep runs one step's full resolve -> pre-check -> dispatch -> post-check
// -> (recover) -> emit sequence (spec.md §4.10).
func (o *Orchestrator) runStep(ctx context.Context, page driver.Page, step scoutmodel.Step) scoutmodel.StepResult {
	start := time.Now()
	intent := deriveIntent(step.Target)

	pageHTML, _ := page.Content(ctx)
	resolution := o.resolve.Resolve(ctx, resolver.Input{
		Domain:      o.cfg.Domain,
		Page:        o.cfg.Page,
		RawTarget:   step.Target,
		Verb:        step.Action,
		PageHTML:    pageHTML,
		Framework:   framework.Universal,
		CrossDomain: o.cfg.CrossDomain,
		AI:          o.cfg.AI,
	})
	o.metrics.resolutions++

	before := o.runPreCheck(ctx, page)
	if before.CriticalBlocker != "" {
		result := scoutmodel.StepResult{
			Number: step.StepNumber,
			Action: step.Action,
			Target: step.Target,
			Status: scoutmodel.StepSkipped,
			Error:  "blocked by critical overlay: " + before.CriticalBlocker,
		}
		result.DurationMS = time.Since(start).Milliseconds()
		o.emitEvent(ctx, step, intent, resolution, result, "")
		return result
	}

	result, execErr := o.exec.Execute(ctx, page, executor.Input{
		Step:       step,
		Resolution: resolution,
		OnSuccess:  o.recordSuccess(step, intent),
	})

	after := precheck.Snapshot(ctx, page)
	diff := o.checker.PostCheck(before.Snapshot, after)
	if execErr == nil && precheck.SilentNoOp(step.Action, diff) {
		result.Status = scoutmodel.StepFailed
		if result.Error == "" {
			result.Error = "silent no-op: action produced no observable page change"
		}
	}

	recoveryKey := ""
	if result.Status == scoutmodel.StepFailed && o.cfg.RecoveryEnabled {
		result, recoveryKey = o.attemptRecovery(ctx, page, step, resolution, result, execErr)
	}

	result.DurationMS = time.Since(start).Milliseconds()
	o.emitEvent(ctx, step, intent, resolution, result, recoveryKey)
	return result
}

// runPreCheck runs the SPA Coordinator's ordering sequence with the Pre/Post
// Checker's overlay handling as its final blocker-handling step, falling
// back to a bare PreCheck when no Coordinator is wired (spec.md §4.10 step
// 2; mirrors the executor's own optional-spa.Coordinator precedent).
func (o *Orchestrator) runPreCheck(ctx context.Context, page driver.Page) precheck.ReadyResult {
	var ready precheck.ReadyResult
	if o.spaC == nil {
		return o.checker.PreCheck(ctx, page)
	}
	o.spaC.RunPreActionSequence(ctx, page, spa.PreActionOptions{
		BlockerHandler: func(ctx context.Context) error {
			ready = o.checker.PreCheck(ctx, page)
			return nil
		},
	})
	return ready
}

// attemptRecovery classifies the step's failure, runs one recovery attempt,
// and retries the original action once if the Recovery Handler reports it
// safe to do so (spec.md §4.10 step 5).
func (o *Orchestrator) attemptRecovery(ctx context.Context, page driver.Page, step scoutmodel.Step, resolution scoutmodel.ResolutionResult, result scoutmodel.StepResult, execErr error) (scoutmodel.StepResult, string) {
	o.setState(StateRecovering)
	defer o.setState(StateRunning)

	kind := recovery.ClassifyFailure(execErr)
	o.metrics.recoveryAttempts++

	recovResult, err := o.recov.Recover(ctx, page, step.StepNumber, kind, resolution.Selector)
	recKey := learning.EncodeRecoveryKey(kind, string(recovResult.Attempted))
	if err != nil || !recovResult.Succeeded {
		return result, recKey
	}

	if !recovResult.SafeToRetryOriginal {
		return result, recKey
	}

	retryResult, retryErr := o.exec.Execute(ctx, page, executor.Input{Step: step, Resolution: resolution})
	if retryErr != nil {
		return result, recKey
	}
	o.metrics.recoverySuccesses++
	retryResult.Status = scoutmodel.StepRecovered
	return retryResult, recKey
}

// recordSuccess returns a SuccessRecorder that re-resolves nothing itself;
// the knowledge-store write for a successful resolution happens later, via
// the ExecutionEvent the orchestrator emits, so this only needs to exist to
// satisfy Execute's optional hook with a no-op (the event carries the used
// selector already).
func (o *Orchestrator) recordSuccess(step scoutmodel.Step, intent scoutmodel.Intent) executor.SuccessRecorder {
	return func(ctx context.Context, used scoutmodel.Selector) {}
}

// emitEvent builds and enqueues the ExecutionEvent for one executed step
// (spec.md §4.10 step 6/§4.11). learn may be nil, in which case events are
// silently dropped.
func (o *Orchestrator) emitEvent(ctx context.Context, step scoutmodel.Step, intent scoutmodel.Intent, resolution scoutmodel.ResolutionResult, result scoutmodel.StepResult, recoveryKey string) {
	if o.learn == nil {
		return
	}
	outcome := scoutmodel.OutcomeFail
	if result.Status == scoutmodel.StepPassed || result.Status == scoutmodel.StepRecovered {
		outcome = scoutmodel.OutcomeSuccess
	}
	selector := resolution.Selector
	if result.SelectorUsed != "" {
		selector.Value = result.SelectorUsed
	}
	o.learn.Enqueue(scoutmodel.ExecutionEvent{
		Timestamp:   time.Now(),
		Domain:      o.cfg.Domain,
		Page:        o.cfg.Page,
		Intent:      intent,
		Selector:    selector,
		Outcome:     outcome,
		LatencyMS:   result.DurationMS,
		AIAssisted:  resolution.Tier == scoutmodel.TierAI,
		Tier:        resolution.Tier,
		RunID:       o.cfg.RunID,
		StepNumber:  step.StepNumber,
		Verb:        string(step.Action),
		RecoveryKey: recoveryKey,
	})
}
