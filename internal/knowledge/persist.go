package knowledge

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

	"github.com/dotcommander/scout/internal/scoutmodel"
)

// domainFile is the on-disk shape of selectors/<domain>.json (spec.md §6).
type domainFile struct {
	Domain  string                            `json:"domain"`
	Records map[string]*scoutmodel.ElementRecord `json:"records"`
}

// retryWrite wraps a file write with exponential backoff, retrying on
// transient filesystem errors (e.g. a concurrent renamer, ENOSPC that
// clears quickly) but not on permission or path errors.
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

// loadDomainFile reads selectors/<domain>.json under an exclusive lock,
// returning an empty file if it doesn't exist yet.
func loadDomainFile(baseDir, domain string) (domainFile, error) {
	path := domainPath(baseDir, domain)
	lock, err := lockFile(path)
	if err != nil {
		return domainFile{}, err
	}
	defer unlockFile(lock)

	df := domainFile{Domain: domain, Records: map[string]*scoutmodel.ElementRecord{}}
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path derived from trusted baseDir/domain
	if err != nil {
		if os.IsNotExist(err) {
			return df, nil
		}
		return domainFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return df, nil
	}
	if err := json.Unmarshal(raw, &df); err != nil {
		return domainFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if df.Records == nil {
		df.Records = map[string]*scoutmodel.ElementRecord{}
	}
	return df, nil
}

// saveDomainFile writes selectors/<domain>.json under an exclusive lock,
// via a temp-file-then-rename so readers never observe a partial write.
func saveDomainFile(ctx context.Context, baseDir string, df domainFile) error {
	path := domainPath(baseDir, df.Domain)
	lock, err := lockFile(path)
	if err != nil {
		return err
	}
	defer unlockFile(lock)

	return retryWrite(ctx, func() error {
		raw, err := json.MarshalIndent(df, "", "  ")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("marshal %s: %w", path, err))
		}
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o644); err != nil { //nolint:gosec // G306: knowledge files aren't secrets
			return fmt.Errorf("write temp %s: %w", tmp, err)
		}
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("rename %s: %w", tmp, err)
		}
		return nil
	})
}

func domainPath(baseDir, domain string) string {
	return filepath.Join(baseDir, "selectors", sanitizeFilename(domain)+".json")
}

// sanitizeFilename keeps a domain string safe to embed in a path component;
// domains never legitimately contain path separators so this is defensive
// against a malformed test-case collaborator.
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

// listDomainFiles returns every domain name with a persisted selectors file.
// Export reads only the in-memory snapshot and does not call it.
func listDomainFiles(baseDir string) ([]string, error) {
	dir := filepath.Join(baseDir, "selectors")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var domains []string
	const suffix = ".json"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			domains = append(domains, name[:len(name)-len(suffix)])
		}
	}
	sort.Strings(domains)
	return domains, nil
}
