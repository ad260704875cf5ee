// Package patternstore persists promoted ActionPatterns (C13): one JSON
// file per category under patterns/<category>_patterns.json, mirroring
// internal/knowledge's snapshot-and-persist shape but scoped to the
// Learning Engine's pattern-mining output rather than per-element selector
// stats (spec.md §3 "ActionPattern", §4.11 "pattern mining").
package patternstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// categorySnapshot is the immutable in-memory view readers consult per
// category, replaced atomically after each write.
type categorySnapshot struct {
	patterns map[string]*scoutmodel.ActionPattern
}

func emptyCategorySnapshot() *categorySnapshot {
	return &categorySnapshot{patterns: map[string]*scoutmodel.ActionPattern{}}
}

func (s *categorySnapshot) clone() *categorySnapshot {
	out := emptyCategorySnapshot()
	for id, p := range s.patterns {
		cp := *p
		out.patterns[id] = &cp
	}
	return out
}

// Store is the pattern store: one writeMu-serialized writer per category
// plus lock-free atomic reads, the same concurrency shape
// internal/knowledge.Store uses for its selector records.
type Store struct {
	baseDir string

	writeMu sync.Mutex
	current map[string]*atomic.Pointer[categorySnapshot]
	loaded  map[string]bool
	mu      sync.Mutex // guards current/loaded map membership only
}

// New opens a pattern store rooted at baseDir (the directory containing
// patterns/).
func New(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		current: map[string]*atomic.Pointer[categorySnapshot]{},
		loaded:  map[string]bool{},
	}
}

func (s *Store) snapshotFor(category string) *atomic.Pointer[categorySnapshot] {
	s.mu.Lock()
	defer s.mu.Unlock()
	ptr, ok := s.current[category]
	if !ok {
		ptr = &atomic.Pointer[categorySnapshot]{}
		ptr.Store(emptyCategorySnapshot())
		s.current[category] = ptr
	}
	return ptr
}

// ensureLoadedLocked hydrates category from disk into the in-memory
// snapshot, idempotent per category for the store's lifetime. Caller must
// hold writeMu.
func (s *Store) ensureLoadedLocked(category string) error {
	s.mu.Lock()
	already := s.loaded[category]
	s.mu.Unlock()
	if already {
		return nil
	}
	cf, err := loadCategoryFile(s.baseDir, category)
	if err != nil {
		return fmt.Errorf("load category %s: %w", category, err)
	}
	ptr := s.snapshotFor(category)
	next := ptr.Load().clone()
	for id, p := range cf.Patterns {
		next.patterns[id] = p
	}
	ptr.Store(next)
	s.mu.Lock()
	s.loaded[category] = true
	s.mu.Unlock()
	return nil
}

// Get returns one pattern by (category, id).
func (s *Store) Get(category, id string) (*scoutmodel.ActionPattern, bool, error) {
	s.writeMu.Lock()
	if err := s.ensureLoadedLocked(category); err != nil {
		s.writeMu.Unlock()
		return nil, false, err
	}
	s.writeMu.Unlock()

	p, ok := s.snapshotFor(category).Load().patterns[id]
	return p, ok, nil
}

// List returns every pattern in category, sorted by ID for deterministic
// output. An empty category lists every category's patterns.
func (s *Store) List(ctx context.Context, category string) ([]*scoutmodel.ActionPattern, error) {
	if category != "" {
		s.writeMu.Lock()
		err := s.ensureLoadedLocked(category)
		s.writeMu.Unlock()
		if err != nil {
			return nil, err
		}
		return sortedPatterns(s.snapshotFor(category).Load().patterns), nil
	}

	categories, err := listCategoryFiles(s.baseDir)
	if err != nil {
		return nil, err
	}
	var all []*scoutmodel.ActionPattern
	for _, cat := range categories {
		s.writeMu.Lock()
		err := s.ensureLoadedLocked(cat)
		s.writeMu.Unlock()
		if err != nil {
			return nil, err
		}
		all = append(all, sortedPatterns(s.snapshotFor(cat).Load().patterns)...)
	}
	return all, nil
}

func sortedPatterns(m map[string]*scoutmodel.ActionPattern) []*scoutmodel.ActionPattern {
	out := make([]*scoutmodel.ActionPattern, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Upsert creates or replaces a pattern, stamping CreatedAt on first insert
// and UpdatedAt on every write, then persists the owning category file.
// Called from the Learning Engine's pattern-promotion step (spec.md §4.11).
func (s *Store) Upsert(ctx context.Context, pattern *scoutmodel.ActionPattern) error {
	if pattern.ID == "" || pattern.Category == "" {
		return fmt.Errorf("pattern must have both id and category set")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ensureLoadedLocked(pattern.Category); err != nil {
		return err
	}

	ptr := s.snapshotFor(pattern.Category)
	next := ptr.Load().clone()

	now := time.Now()
	if existing, ok := next.patterns[pattern.ID]; ok {
		pattern.CreatedAt = existing.CreatedAt
	} else {
		pattern.CreatedAt = now
	}
	pattern.UpdatedAt = now

	if err := validatePattern(pattern); err != nil {
		return err
	}

	next.patterns[pattern.ID] = pattern
	ptr.Store(next)
	return s.persistLocked(ctx, pattern.Category)
}

// RecordUsage updates a pattern's usage statistics and blended confidence
// after one replay attempt, then persists (spec.md §3 "usage_stats").
func (s *Store) RecordUsage(ctx context.Context, category, id string, succeeded bool) (*scoutmodel.ActionPattern, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.ensureLoadedLocked(category); err != nil {
		return nil, err
	}

	ptr := s.snapshotFor(category)
	next := ptr.Load().clone()
	p, ok := next.patterns[id]
	if !ok {
		return nil, fmt.Errorf("pattern %s not found in category %s", id, category)
	}

	p.UsageStats.TimesApplied++
	if succeeded {
		p.UsageStats.TimesSucceeded++
	}
	p.Confidence = p.UsageStats.SuccessRate()
	p.UpdatedAt = time.Now()

	next.patterns[id] = p
	ptr.Store(next)
	return p, s.persistLocked(ctx, category)
}

// MatchApplicable returns every pattern in category whose applicability
// predicate matches pageIntents, highest confidence first (spec.md §3
// "ApplicabilityPredicate").
func (s *Store) MatchApplicable(ctx context.Context, category string, pageIntents map[scoutmodel.Intent]bool) ([]*scoutmodel.ActionPattern, error) {
	patterns, err := s.List(ctx, category)
	if err != nil {
		return nil, err
	}
	var matches []*scoutmodel.ActionPattern
	for _, p := range patterns {
		if p.Applicability.Matches(pageIntents) {
			matches = append(matches, p)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Confidence > matches[j].Confidence })
	return matches, nil
}

func (s *Store) persistLocked(ctx context.Context, category string) error {
	cf := categoryFile{Category: category, Patterns: s.snapshotFor(category).Load().patterns}
	return saveCategoryFile(ctx, s.baseDir, cf)
}
