// Package learning implements the Learning Engine (C12): an asynchronous
// worker that drains ExecutionEvents off a bounded queue, batches them into
// Knowledge Store writes, maintains the selector-evolution and recovery
// ledgers, mines action sequences into promoted patterns, and runs the
// scheduled decay/prune maintenance pass (spec.md §4.11/§5).
package learning

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dotcommander/scout/internal/knowledge"
	"github.com/dotcommander/scout/internal/patternstore"
	"github.com/dotcommander/scout/internal/scoutmodel"
)

// Defaults per spec.md §4.11 ("batched... size N=100") and §5 ("bounded
// buffer... overflow drops oldest"); the queue capacity itself isn't named
// in the spec, so DefaultQueueCapacity is a generous multiple of the batch
// size chosen to absorb a burst without constant overflow warnings.
const (
	DefaultQueueCapacity      = 500
	DefaultBatchSize          = 100
	rollingBufferSize         = 100
	promotionThreshold        = 3
	stepSuccessFloor          = 0.8
	DefaultMaintenanceInterval = 24 * time.Hour
	DefaultDecayRatePerDay    = 0.02
	DefaultDecayMaxAgeDays    = 90.0
	DefaultPruneMinConfidence = 0.3
)

// Config configures one Engine instance; zero values are replaced by the
// package defaults in New.
type Config struct {
	QueueCapacity       int
	BatchSize           int
	MaintenanceInterval time.Duration
	DecayRatePerDay     float64
	DecayMaxAgeDays     float64
	PruneMinConfidence  float64

	// TrainingDir, if set, receives one batch_<Source>_<timestamp>.json
	// file per flushed batch (spec.md §4.11 supplement, see DESIGN.md).
	TrainingDir string
	Source      string
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = DefaultMaintenanceInterval
	}
	if c.DecayRatePerDay <= 0 {
		c.DecayRatePerDay = DefaultDecayRatePerDay
	}
	if c.DecayMaxAgeDays <= 0 {
		c.DecayMaxAgeDays = DefaultDecayMaxAgeDays
	}
	if c.PruneMinConfidence <= 0 {
		c.PruneMinConfidence = DefaultPruneMinConfidence
	}
	if c.Source == "" {
		c.Source = "orchestrator"
	}
	return c
}

// Engine is the Learning Engine's single worker: one writer goroutine
// consuming events in emitted order, never blocking the orchestrator that
// enqueues them (spec.md §5 "Learning Engine concurrency").
type Engine struct {
	cfg Config
	kb  *knowledge.Store
	pat *patternstore.Store

	queue  chan scoutmodel.ExecutionEvent
	flushC chan chan struct{}
	stopC  chan struct{}
	doneC  chan struct{}

	evolution *evolutionLedger
	recovery  *recoveryLedger
	miner     *miner

	mu              sync.Mutex
	buffer          []scoutmodel.ExecutionEvent
	lastMaintenance time.Time
	dropped         int
}

// New builds an Engine bound to a Knowledge Store (its only writer) and a
// Pattern Store (promotion target). pat may be nil if pattern promotion is
// not wired; the engine then still drives KB writes and the ledgers.
func New(cfg Config, kb *knowledge.Store, pat *patternstore.Store) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		kb:        kb,
		pat:       pat,
		queue:     make(chan scoutmodel.ExecutionEvent, cfg.QueueCapacity),
		flushC:    make(chan chan struct{}),
		evolution: newEvolutionLedger(),
		recovery:  newRecoveryLedger(),
		miner:     newMiner(),
	}
}

// Start launches the worker goroutine. Stop must be called to release it.
func (e *Engine) Start(ctx context.Context) {
	e.stopC = make(chan struct{})
	e.doneC = make(chan struct{})
	go e.run(ctx)
}

// Stop signals the worker to flush its current batch and exit, then waits
// for it to finish.
func (e *Engine) Stop() {
	if e.stopC == nil {
		return
	}
	close(e.stopC)
	<-e.doneC
}

// Enqueue submits one event without blocking the caller. If the queue is
// full the oldest queued event is dropped and a warning is logged (spec.md
// §5: "overflow drops oldest events and logs a warning").
func (e *Engine) Enqueue(ev scoutmodel.ExecutionEvent) {
	select {
	case e.queue <- ev:
		return
	default:
	}

	select {
	case dropped := <-e.queue:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		slog.Warn("learning engine queue overflow, dropped oldest event",
			"domain", dropped.Domain, "intent", dropped.Intent)
	default:
	}

	select {
	case e.queue <- ev:
	default:
		slog.Warn("learning engine queue still full after eviction, dropping incoming event",
			"domain", ev.Domain, "intent", ev.Intent)
	}
}

// Flush blocks until every event queued before this call has been
// processed into a batch (explicit flush, spec.md §4.11).
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.flushC <- done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DroppedCount reports how many events have been evicted by queue overflow
// since Start, for diagnostics/status reporting.
func (e *Engine) DroppedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.doneC)
	batch := make([]scoutmodel.ExecutionEvent, 0, e.cfg.BatchSize)
	for {
		select {
		case ev := <-e.queue:
			batch = append(batch, ev)
			if len(batch) >= e.cfg.BatchSize {
				e.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case done := <-e.flushC:
			for drained := false; !drained; {
				select {
				case ev := <-e.queue:
					batch = append(batch, ev)
				default:
					drained = true
				}
			}
			if len(batch) > 0 {
				e.processBatch(ctx, batch)
				batch = batch[:0]
			}
			close(done)
		case <-e.stopC:
			if len(batch) > 0 {
				e.processBatch(ctx, batch)
			}
			return
		case <-ctx.Done():
			return
		}
	}
}

// processBatch is the per-batch handling pipeline: KB writes and ledger
// updates per event, then pattern mining and cross-domain promotion over
// the rolling buffer, then the training batch side effect, then a
// maintenance check (spec.md §4.11).
func (e *Engine) processBatch(ctx context.Context, batch []scoutmodel.ExecutionEvent) {
	for _, ev := range batch {
		e.handleEvent(ctx, ev)
	}

	bufSnapshot := e.appendToBuffer(batch)

	promoted := 0
	for _, c := range e.miner.Mine(bufSnapshot) {
		if c.Occurrences < promotionThreshold || c.SuccessRate() < stepSuccessFloor {
			continue
		}
		if err := e.promotePattern(ctx, c); err != nil {
			slog.Warn("pattern promotion failed", "fingerprint", c.Fingerprint, "error", err)
			continue
		}
		promoted++
	}

	for _, ev := range batch {
		e.maybePromoteCrossDomain(ctx, ev)
	}

	if e.cfg.TrainingDir != "" {
		if err := writeTrainingBatch(e.cfg.TrainingDir, e.cfg.Source, batch, promoted, time.Now()); err != nil {
			slog.Warn("training batch write failed", "error", err)
		}
	}

	e.maybeRunMaintenance(ctx)
}

func (e *Engine) handleEvent(ctx context.Context, ev scoutmodel.ExecutionEvent) {
	e.evolution.Observe(ev)
	if ev.RecoveryKey != "" {
		e.recovery.Observe(ev)
	}
	if e.kb == nil {
		return
	}
	seed := ev.Selector.StabilityPrior()
	if _, err := e.kb.RecordOutcome(ctx, ev.Domain, ev.Page, ev.Intent, ev.Selector, ev.Success(), seed, ev.Tier, ev.AIAssisted, nil); err != nil {
		slog.Error("record outcome failed", "domain", ev.Domain, "intent", ev.Intent, "error", err)
	}
}

func (e *Engine) appendToBuffer(batch []scoutmodel.ExecutionEvent) []scoutmodel.ExecutionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = append(e.buffer, batch...)
	if over := len(e.buffer) - rollingBufferSize; over > 0 {
		e.buffer = append([]scoutmodel.ExecutionEvent(nil), e.buffer[over:]...)
	}
	return append([]scoutmodel.ExecutionEvent(nil), e.buffer...)
}

func (e *Engine) promotePattern(ctx context.Context, c *patternCandidate) error {
	if e.pat == nil {
		return nil
	}
	pattern := &scoutmodel.ActionPattern{
		ID:            scoutmodel.PatternIDFromFingerprint(c.Fingerprint),
		Name:          c.Fingerprint,
		Category:      c.Category,
		Steps:         c.Steps,
		Applicability: scoutmodel.ApplicabilityPredicate{RequiresIntents: c.Intents},
		Confidence:    c.SuccessRate(),
	}
	return e.pat.Upsert(ctx, pattern)
}

func (e *Engine) maybePromoteCrossDomain(ctx context.Context, ev scoutmodel.ExecutionEvent) {
	if e.pat == nil || !ev.AIAssisted || !ev.Success() {
		return
	}
	kw, ok := matchUniversalKeyword(ev.Intent)
	if !ok {
		return
	}
	pattern := &scoutmodel.ActionPattern{
		ID:            "global_" + string(kw),
		Name:          string(kw) + " (cross-domain)",
		Category:      globalCategory,
		Steps:         []scoutmodel.PatternStep{{Verb: ev.Verb, Target: string(ev.Intent)}},
		Applicability: scoutmodel.ApplicabilityPredicate{RequiresIntents: []scoutmodel.Intent{ev.Intent}},
		Confidence:    0.8,
	}
	if err := e.pat.Upsert(ctx, pattern); err != nil {
		slog.Warn("cross-domain promotion failed", "keyword", kw, "error", err)
	}
}

func (e *Engine) maybeRunMaintenance(ctx context.Context) {
	e.mu.Lock()
	due := e.lastMaintenance.IsZero() || time.Since(e.lastMaintenance) >= e.cfg.MaintenanceInterval
	if due {
		e.lastMaintenance = time.Now()
	}
	e.mu.Unlock()
	if !due || e.kb == nil {
		return
	}
	if err := e.kb.ApplyDecay(ctx, e.cfg.DecayRatePerDay, e.cfg.DecayMaxAgeDays); err != nil {
		slog.Error("apply_decay failed", "error", err)
	}
	if err := e.kb.Prune(ctx, e.cfg.PruneMinConfidence); err != nil {
		slog.Error("prune failed", "error", err)
	}
}
