package learning

import (
	"sync"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// evolutionKey identifies one (domain, page, intent) selector lineage.
type evolutionKey struct {
	Domain string
	Page   string
	Intent scoutmodel.Intent
}

// Transition records one observed change of the best-known selector for a
// key (spec.md §4.11: "update selector-evolution ledger... plus
// transitions").
type Transition struct {
	From scoutmodel.Selector
	To   scoutmodel.Selector
	At   time.Time
}

// EvolutionRecord is one key's full lineage: the first selector ever seen
// succeeding and the current one, plus every transition between them.
type EvolutionRecord struct {
	Original    scoutmodel.Selector
	Current     scoutmodel.Selector
	Transitions []Transition
}

// evolutionLedger tracks, per (domain, page, intent), the original and
// current best-known selector plus every transition observed between them.
type evolutionLedger struct {
	mu      sync.Mutex
	records map[evolutionKey]*EvolutionRecord
}

func newEvolutionLedger() *evolutionLedger {
	return &evolutionLedger{records: map[evolutionKey]*EvolutionRecord{}}
}

// Observe updates the ledger from one successful ExecutionEvent; failed
// outcomes don't move the lineage forward.
func (l *evolutionLedger) Observe(ev scoutmodel.ExecutionEvent) {
	if !ev.Success() {
		return
	}
	key := evolutionKey{Domain: ev.Domain, Page: ev.Page, Intent: ev.Intent}

	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[key]
	if !ok {
		l.records[key] = &EvolutionRecord{Original: ev.Selector, Current: ev.Selector}
		return
	}
	if rec.Current != ev.Selector {
		rec.Transitions = append(rec.Transitions, Transition{From: rec.Current, To: ev.Selector, At: ev.Timestamp})
		rec.Current = ev.Selector
	}
}

// Snapshot returns a defensive copy of the ledger for inspection/export.
func (l *evolutionLedger) Snapshot() map[evolutionKey]EvolutionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[evolutionKey]EvolutionRecord, len(l.records))
	for k, v := range l.records {
		cp := *v
		cp.Transitions = append([]Transition(nil), v.Transitions...)
		out[k] = cp
	}
	return out
}
