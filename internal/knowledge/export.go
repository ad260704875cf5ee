package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// ExportVersion is the current import/export document schema version
// (spec.md §6 "Import/export format").
const ExportVersion = 1

// MergePolicy controls how Import reconciles an incoming document against
// the current store. KeepHigherConfidence is the only policy spec.md §4.1
// names; Overwrite is an explicit escape hatch for deliberate replacement.
type MergePolicy string

// MergePolicy constants.
const (
	MergeKeepHigherConfidence MergePolicy = "keep_higher_confidence"
	MergeOverwrite            MergePolicy = "overwrite"
)

// ExportPayload is the versioned JSON snapshot document (spec.md §6).
type ExportPayload struct {
	Version        int                                      `json:"version"`
	ExportedAt     time.Time                                `json:"exported_at"`
	Type           string                                   `json:"type"`
	Selectors      map[string]*scoutmodel.ElementRecord      `json:"selectors"`
	Patterns       map[string]*scoutmodel.ActionPattern      `json:"patterns,omitempty"`
	Recovery       map[string]json.RawMessage               `json:"recovery,omitempty"`
	GlobalPatterns map[string]*scoutmodel.ActionPattern      `json:"global_patterns,omitempty"`
}

// exportSchema validates the shape of an import/export document before it
// is trusted: required top-level fields and the version's type, independent
// of what a given producer happened to populate.
const exportSchema = `{
  "type": "object",
  "required": ["version", "type", "selectors"],
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "type": {"type": "string"},
    "selectors": {"type": "object"}
  }
}`

// Export builds a snapshot of the store, optionally scoped to one domain
// (spec.md §4.1 "export(domain?)").
func (s *Store) Export(domain string) ExportPayload {
	snap := s.current.Load()
	payload := ExportPayload{
		Version:    ExportVersion,
		ExportedAt: time.Now(),
		Type:       "knowledge_snapshot",
		Selectors:  map[string]*scoutmodel.ElementRecord{},
	}
	for key, rec := range snap.records {
		if domain != "" && rec.Domain != domain {
			continue
		}
		payload.Selectors[key] = rec
	}
	return payload
}

// Import validates and merges an incoming document into the store
// (spec.md §4.1 "import(payload, merge_policy)"). KeepHigherConfidence
// compares per selector-record key and keeps whichever side has the
// higher-confidence primary selector; Overwrite replaces unconditionally.
func (s *Store) Import(ctx context.Context, raw []byte, policy MergePolicy) (imported, skipped int, err error) {
	if err := validateExportDocument(raw); err != nil {
		return 0, 0, fmt.Errorf("invalid import document: %w", err)
	}

	var payload ExportPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 0, 0, fmt.Errorf("parse import document: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().clone()
	touched := map[string]bool{}

	for key, incoming := range payload.Selectors {
		if incoming == nil {
			continue
		}
		existing, ok := next.records[key]
		if !ok || policy == MergeOverwrite {
			next.records[key] = incoming
			incoming.SortSelectors()
			touched[incoming.Domain] = true
			imported++
			continue
		}

		if shouldReplace(existing, incoming) {
			next.records[key] = incoming
			incoming.SortSelectors()
			touched[incoming.Domain] = true
			imported++
		} else {
			skipped++
		}
	}

	s.current.Store(next)
	for domain := range touched {
		if err := s.persistDomainLocked(ctx, domain, next); err != nil {
			return imported, skipped, err
		}
	}
	return imported, skipped, nil
}

// shouldReplace implements "merge keeps higher-confidence selector per key"
// (spec.md §4.1): compare each side's best selector confidence.
func shouldReplace(existing, incoming *scoutmodel.ElementRecord) bool {
	existingBest, hasExisting := existing.Best()
	incomingBest, hasIncoming := incoming.Best()
	if !hasIncoming {
		return false
	}
	if !hasExisting {
		return true
	}
	return incomingBest.Confidence > existingBest.Confidence
}

func validateExportDocument(raw []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(exportSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("document failed schema validation: %v", result.Errors())
	}
	return nil
}
