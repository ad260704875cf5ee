// Package knowledge implements the Knowledge Store (C2): a persistent
// mapping from (domain, page, intent) to a ranked selector set with
// confidence stats, backed by JSON files on disk and an in-memory snapshot
// for lock-free concurrent reads.
package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// Options configures store-wide thresholds and policy, all overridable from
// their spec.md §3/§4.1 defaults.
type Options struct {
	MinConfidence       float64 // tier-acceptance floor for the resolver (default 0.5)
	MinKeepThreshold    float64 // maintenance prune floor (default 0.3)
	CrossDomainEnabled  bool    // find_by_intent scope gate, off by default (spec.md §4.1)
	FuzzyOverlapThresh  float64 // token-overlap floor to count as a fuzzy hit (default 0.7)
}

// DefaultOptions returns the spec-documented defaults.
func DefaultOptions() Options {
	return Options{
		MinConfidence:      0.5,
		MinKeepThreshold:   0.3,
		CrossDomainEnabled: false,
		FuzzyOverlapThresh: 0.7,
	}
}

// snapshot is the immutable in-memory view readers consult; replaced
// atomically after each write (spec.md §5 "Knowledge Store concurrency").
type snapshot struct {
	records map[string]*scoutmodel.ElementRecord // keyed by ElementRecord.Key()
}

func emptySnapshot() *snapshot {
	return &snapshot{records: map[string]*scoutmodel.ElementRecord{}}
}

func (s *snapshot) clone() *snapshot {
	out := emptySnapshot()
	for k, v := range s.records {
		cp := *v
		cp.Selectors = append([]scoutmodel.SelectorStat(nil), v.Selectors...)
		out.records[k] = &cp
	}
	return out
}

// Store is the Knowledge Store: a single writer (the Learning Engine
// worker) serialized through writeMu, and many lock-free readers consulting
// an atomically-swapped snapshot.
type Store struct {
	baseDir string
	opts    Options

	writeMu sync.Mutex // serializes writers; readers never block on this
	current atomic.Pointer[snapshot]

	loadedDomains map[string]bool
	loadedMu      sync.Mutex
}

// New opens a Knowledge Store rooted at baseDir (the directory containing
// selectors/, patterns/, recovery/, global/, metrics/, training/).
func New(baseDir string, opts Options) *Store {
	st := &Store{baseDir: baseDir, opts: opts, loadedDomains: map[string]bool{}}
	st.current.Store(emptySnapshot())
	return st
}

// LoadDomain hydrates the in-memory snapshot for a domain from disk,
// idempotent per domain for the life of the Store.
func (s *Store) LoadDomain(domain string) error {
	s.loadedMu.Lock()
	defer s.loadedMu.Unlock()
	if s.loadedDomains[domain] {
		return nil
	}
	df, err := loadDomainFile(s.baseDir, domain)
	if err != nil {
		return fmt.Errorf("load domain %s: %w", domain, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := s.current.Load().clone()
	for key, rec := range df.Records {
		next.records[key] = rec
	}
	s.current.Store(next)
	s.loadedDomains[domain] = true
	return nil
}

// Lookup performs the exact (domain, page, intent) lookup (spec.md §4.1).
func (s *Store) Lookup(domain, page string, intent scoutmodel.Intent) (*scoutmodel.ElementRecord, bool) {
	key := (&scoutmodel.ElementRecord{Domain: domain, Page: page, ElementKey: intent}).Key()
	rec, ok := s.current.Load().records[key]
	return rec, ok
}

// Match pairs a fuzzy find_by_intent hit with the overlap score that
// produced it, for ranking across records.
type Match struct {
	Record *scoutmodel.ElementRecord
	Score  float64
}

// FindByIntent performs the fuzzy lookup (spec.md §4.1): exact matches
// first, then token-overlap matches at or above the configured threshold,
// scoped by domain/page unless crossDomain is requested and enabled.
func (s *Store) FindByIntent(intent scoutmodel.Intent, domain, page string, crossDomain bool) []Match {
	scopeCrossDomain := crossDomain && s.opts.CrossDomainEnabled
	snap := s.current.Load()

	var matches []Match
	for _, rec := range snap.records {
		if !scopeCrossDomain {
			if domain != "" && rec.Domain != domain {
				continue
			}
			if page != "" && rec.Page != page {
				continue
			}
		}
		if rec.ElementKey == intent {
			matches = append(matches, Match{Record: rec, Score: 1.0})
			continue
		}
		score := scoutmodel.TokenOverlapScore(intent, rec.ElementKey)
		if score >= s.opts.FuzzyOverlapThresh {
			matches = append(matches, Match{Record: rec, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.Key() < matches[j].Record.Key()
	})
	return matches
}

// RecordOutcome upserts the selector for (domain, page, intent): creates the
// ElementRecord on first success, mutates stats on every outcome, keeps the
// selector list sorted, and persists the owning domain file (spec.md §4.1).
// Called only from the Learning Engine's single writer goroutine.
func (s *Store) RecordOutcome(ctx context.Context, domain, page string, intent scoutmodel.Intent, sel scoutmodel.Selector, success bool, seedConfidence float64, tier scoutmodel.Tier, aiAssisted bool, attrs map[string]string) (*scoutmodel.ElementRecord, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ensureDomainLoadedLocked(domain); err != nil {
		return nil, err
	}

	next := s.current.Load().clone()
	key := (&scoutmodel.ElementRecord{Domain: domain, Page: page, ElementKey: intent}).Key()
	now := time.Now()

	rec, ok := next.records[key]
	if !ok {
		rec = &scoutmodel.ElementRecord{
			Domain:     domain,
			Page:       page,
			ElementKey: intent,
			Attributes: attrs,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		next.records[key] = rec
	} else if attrs != nil {
		rec.Attributes = attrs
	}

	stat, found := rec.FindSelector(sel)
	if !found {
		rec.Selectors = append(rec.Selectors, scoutmodel.SelectorStat{
			Selector:     sel,
			Confidence:   seedConfidence,
			SourceTier:   tier,
			AIDiscovered: aiAssisted,
		})
		stat, _ = rec.FindSelector(sel)
	}

	if success {
		stat.RecordSuccess(now)
	} else {
		stat.RecordFailure(now)
	}
	if aiAssisted {
		stat.AIDiscovered = true
	}
	rec.SortSelectors()
	rec.UpdatedAt = now

	s.current.Store(next)
	return rec, s.persistDomainLocked(ctx, domain, next)
}

func (s *Store) ensureDomainLoadedLocked(domain string) error {
	s.loadedMu.Lock()
	loaded := s.loadedDomains[domain]
	s.loadedMu.Unlock()
	if loaded {
		return nil
	}
	// writeMu is already held; load directly rather than re-entering LoadDomain.
	df, err := loadDomainFile(s.baseDir, domain)
	if err != nil {
		return fmt.Errorf("load domain %s: %w", domain, err)
	}
	next := s.current.Load().clone()
	for key, rec := range df.Records {
		if _, exists := next.records[key]; !exists {
			next.records[key] = rec
		}
	}
	s.current.Store(next)
	s.loadedMu.Lock()
	s.loadedDomains[domain] = true
	s.loadedMu.Unlock()
	return nil
}

func (s *Store) persistDomainLocked(ctx context.Context, domain string, snap *snapshot) error {
	df := domainFile{Domain: domain, Records: map[string]*scoutmodel.ElementRecord{}}
	for _, rec := range snap.records {
		if rec.Domain == domain {
			df.Records[rec.Key()] = rec
		}
	}
	return saveDomainFile(ctx, s.baseDir, df)
}

// ApplyDecay multiplies every selector's confidence by exp(-rate*days) since
// last use, capped at maxAgeDays (spec.md §4.1). Persists every touched
// domain.
func (s *Store) ApplyDecay(ctx context.Context, decayRatePerDay, maxAgeDays float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().clone()
	now := time.Now()
	touched := map[string]bool{}
	for _, rec := range next.records {
		rec.ApplyDecay(decayRatePerDay, now, maxAgeDays)
		touched[rec.Domain] = true
	}
	s.current.Store(next)

	for domain := range touched {
		if err := s.persistDomainLocked(ctx, domain, next); err != nil {
			return err
		}
	}
	return nil
}

// Prune removes selectors below minConfidence and any element record left
// with no selectors (spec.md §4.1, invariant 6). Persists every touched
// domain.
func (s *Store) Prune(ctx context.Context, minConfidence float64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().clone()
	touched := map[string]bool{}
	for key, rec := range next.records {
		if rec.PruneBelow(minConfidence) {
			delete(next.records, key)
		}
		touched[rec.Domain] = true
	}
	s.current.Store(next)

	for domain := range touched {
		if err := s.persistDomainLocked(ctx, domain, next); err != nil {
			return err
		}
	}
	return nil
}
