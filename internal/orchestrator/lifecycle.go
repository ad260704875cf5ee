package orchestrator

import (
	"context"
	"sync"
)

// State is the orchestrator's run-level lifecycle state (spec.md §4.10:
// "Idle → Running → {Paused, Recovering} → Running → {Completed, Failed}").
type State string

// State constants.
const (
	StateIdle       State = "idle"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateRecovering State = "recovering"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// lifecycle holds the pause/stop/state bookkeeping embedded in
// Orchestrator. Pause and stop requests are latched immediately but only
// take effect at the next step boundary (spec.md §4.10: "External
// pause/stop requests take effect at step boundaries").
type lifecycle struct {
	mu      sync.Mutex
	state   State
	stopped bool
	resume  chan struct{} // non-nil and open while paused; closed by Resume
}

// State reports the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *lifecycle) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// RequestPause latches a pause request; the run blocks at the next step
// boundary until Resume or RequestStop is called.
func (l *lifecycle) RequestPause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resume != nil || l.stopped {
		return
	}
	l.resume = make(chan struct{})
	l.state = StatePaused
}

// Resume releases a pending or in-effect pause, letting the run continue.
func (l *lifecycle) Resume() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resume == nil {
		return
	}
	close(l.resume)
	l.resume = nil
	if !l.stopped {
		l.state = StateRunning
	}
}

// RequestStop latches a stop request; the run aborts at the next step
// boundary without starting a new step (spec.md §5 "Cancellation").
func (l *lifecycle) RequestStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.resume != nil {
		close(l.resume)
		l.resume = nil
	}
}

func (l *lifecycle) stopRequested() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// waitIfPaused blocks the caller while a pause is in effect, returning
// false if the run should abort instead (stop requested or ctx cancelled
// while waiting).
func (l *lifecycle) waitIfPaused(ctx context.Context) bool {
	l.mu.Lock()
	resume := l.resume
	if resume != nil {
		l.state = StatePaused
	}
	l.mu.Unlock()
	if resume == nil {
		return true
	}
	select {
	case <-resume:
		return !l.stopRequested()
	case <-ctx.Done():
		return false
	}
}
