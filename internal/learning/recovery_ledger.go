package learning

import (
	"strings"
	"sync"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// recoveryKey identifies one (domain, failure_kind, action) bucket in the
// recovery ledger (spec.md §4.11: "increment per (domain, failure_kind,
// action) stats in a recovery ledger").
type recoveryKey struct {
	Domain string
	Kind   scoutmodel.FailureKind
	Action string
}

// RecoveryStats tracks one bucket's attempt/success counts.
type RecoveryStats struct {
	Attempts  int
	Succeeded int
}

// recoveryLedger aggregates recovery outcomes. Events feed it through
// ExecutionEvent.RecoveryKey, encoded by the emitting orchestrator as
// "<failure_kind>:<strategy>" — the one extra bit of structure a plain
// ExecutionEvent needs to carry a recovery outcome through the same queue
// as resolution outcomes, rather than adding a second ingestion path.
type recoveryLedger struct {
	mu    sync.Mutex
	stats map[recoveryKey]*RecoveryStats
}

func newRecoveryLedger() *recoveryLedger {
	return &recoveryLedger{stats: map[recoveryKey]*RecoveryStats{}}
}

// EncodeRecoveryKey builds the RecoveryKey string a recovery-outcome event
// should carry.
func EncodeRecoveryKey(kind scoutmodel.FailureKind, action string) string {
	return string(kind) + ":" + action
}

func decodeRecoveryKey(domain, raw string) (recoveryKey, bool) {
	kind, action, found := strings.Cut(raw, ":")
	if !found {
		return recoveryKey{}, false
	}
	return recoveryKey{Domain: domain, Kind: scoutmodel.FailureKind(kind), Action: action}, true
}

// Observe records one recovery attempt's outcome.
func (l *recoveryLedger) Observe(ev scoutmodel.ExecutionEvent) {
	key, ok := decodeRecoveryKey(ev.Domain, ev.RecoveryKey)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.stats[key]
	if !ok {
		st = &RecoveryStats{}
		l.stats[key] = st
	}
	st.Attempts++
	if ev.Success() {
		st.Succeeded++
	}
}

// Snapshot returns a defensive copy of the ledger for inspection/export.
func (l *recoveryLedger) Snapshot() map[recoveryKey]RecoveryStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[recoveryKey]RecoveryStats, len(l.stats))
	for k, v := range l.stats {
		out[k] = *v
	}
	return out
}
