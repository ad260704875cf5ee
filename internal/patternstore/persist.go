package patternstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// categoryFile is the on-disk shape of patterns/<category>_patterns.json.
type categoryFile struct {
	Category string                              `json:"category"`
	Patterns map[string]*scoutmodel.ActionPattern `json:"patterns"`
}

// patternSchema validates one stored ActionPattern's required shape before
// it's trusted back into memory.
const patternSchema = `{
  "type": "object",
  "required": ["id", "name", "category", "steps"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "name": {"type": "string", "minLength": 1},
    "category": {"type": "string", "minLength": 1},
    "steps": {"type": "array"}
  }
}`

// retryWrite wraps a file write with exponential backoff, mirroring
// internal/knowledge/persist.go's retryWrite for the same transient-
// filesystem-error tolerance.
func retryWrite(ctx context.Context, operation func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 3 * time.Second
	b.RandomizationFactor = 0.1

	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := operation()
		if err == nil {
			return nil
		}
		if errors.Is(err, os.ErrPermission) || errors.Is(err, os.ErrNotExist) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx))
}

func categoryPath(baseDir, category string) string {
	return filepath.Join(baseDir, "patterns", sanitizeFilename(category)+"_patterns.json")
}

func sanitizeFilename(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '/', '\\', '\x00':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// loadCategoryFile reads patterns/<category>_patterns.json under an
// exclusive lock, returning an empty file if it doesn't exist yet.
func loadCategoryFile(baseDir, category string) (categoryFile, error) {
	path := categoryPath(baseDir, category)
	lock, err := lockFile(path)
	if err != nil {
		return categoryFile{}, err
	}
	defer unlockFile(lock)

	cf := categoryFile{Category: category, Patterns: map[string]*scoutmodel.ActionPattern{}}
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path derived from trusted baseDir/category
	if err != nil {
		if os.IsNotExist(err) {
			return cf, nil
		}
		return categoryFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return cf, nil
	}
	if err := json.Unmarshal(raw, &cf); err != nil {
		return categoryFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cf.Patterns == nil {
		cf.Patterns = map[string]*scoutmodel.ActionPattern{}
	}
	for id, p := range cf.Patterns {
		if p == nil {
			continue
		}
		if err := validatePattern(p); err != nil {
			return categoryFile{}, fmt.Errorf("pattern %s in %s: %w", id, path, err)
		}
	}
	return cf, nil
}

// saveCategoryFile writes patterns/<category>_patterns.json under an
// exclusive lock via temp-file-then-rename, so readers never observe a
// partial write.
func saveCategoryFile(ctx context.Context, baseDir string, cf categoryFile) error {
	path := categoryPath(baseDir, cf.Category)
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlockFile(lock)

	return retryWrite(ctx, func() error {
		raw, err := json.MarshalIndent(cf, "", "  ")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("marshal %s: %w", path, err))
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o644); err != nil { //nolint:gosec // G306: pattern files aren't secrets
			return fmt.Errorf("write temp %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("rename %s: %w", tmp, err)
		}
		return nil
	})
}

// listCategoryFiles returns every category name with a persisted patterns
// file, for List("") to enumerate everything.
func listCategoryFiles(baseDir string) ([]string, error) {
	dir := filepath.Join(baseDir, "patterns")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	const suffix = "_patterns.json"
	var categories []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			categories = append(categories, name[:len(name)-len(suffix)])
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func validatePattern(p *scoutmodel.ActionPattern) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal for validation: %w", err)
	}
	schemaLoader := gojsonschema.NewStringLoader(patternSchema)
	docLoader := gojsonschema.NewBytesLoader(raw)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("pattern failed schema validation: %v", result.Errors())
	}
	return nil
}
