package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ CatalogRepository = (*MemoryCatalogRepository)(nil)

// MemoryCatalogRepository keeps the catalog in process memory. It backs the
// CLI's dry runs and the service tests.
type MemoryCatalogRepository struct {
	mu           sync.RWMutex
	procedures   map[string]Procedure
	fingerprints map[string]ImportFingerprint
	now          func() time.Time
}

// NewMemoryCatalogRepository creates an empty in-memory repository
func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{
		procedures:   make(map[string]Procedure),
		fingerprints: make(map[string]ImportFingerprint),
		now:          time.Now,
	}
}

func (r *MemoryCatalogRepository) InsertProcedures(_ context.Context, procedures []Procedure) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	now := r.now()
	for _, p := range procedures {
		key := p.Key()
		if _, exists := r.procedures[key]; exists {
			continue
		}
		p.CreatedAt = now
		r.procedures[key] = p
		inserted++
	}
	return inserted, nil
}

func (r *MemoryCatalogRepository) FingerprintExists(_ context.Context, fingerprint string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fingerprints[fingerprint]
	return ok, nil
}

func (r *MemoryCatalogRepository) RecordFingerprint(_ context.Context, fp ImportFingerprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fingerprints[fp.Fingerprint]; ok {
		return nil
	}
	if fp.ImportedAt.IsZero() {
		fp.ImportedAt = r.now()
	}
	r.fingerprints[fp.Fingerprint] = fp
	return nil
}

func (r *MemoryCatalogRepository) ListFingerprints(_ context.Context, version string) ([]ImportFingerprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []ImportFingerprint
	for _, fp := range r.fingerprints {
		if fp.Version == version {
			out = append(out, fp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ImportedAt.Equal(out[j].ImportedAt) {
			return out[i].ImportedAt.After(out[j].ImportedAt)
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out, nil
}

func (r *MemoryCatalogRepository) ListVersions(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var versions []string
	for _, p := range r.procedures {
		if _, ok := seen[p.Version]; ok {
			continue
		}
		seen[p.Version] = struct{}{}
		versions = append(versions, p.Version)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions, nil
}

func (r *MemoryCatalogRepository) GetProcedure(_ context.Context, code, version string) (*Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.procedures[Procedure{Code: code, Version: version}.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryCatalogRepository) SearchProcedures(_ context.Context, params SearchParams) ([]Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	term := strings.ToLower(params.Term)

	var out []Procedure
	for _, p := range r.procedures {
		if params.Version != "" && p.Version != params.Version {
			continue
		}
		value := p.Description
		if params.Field == SearchByCode {
			value = p.Code
		}
		if strings.Contains(strings.ToLower(value), term) {
			out = append(out, p)
		}
	}
	sortProcedures(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryCatalogRepository) ListProcedures(_ context.Context, version string) ([]Procedure, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Procedure
	for _, p := range r.procedures {
		if p.Version == version {
			out = append(out, p)
		}
	}
	sortProcedures(out)
	return out, nil
}

func (r *MemoryCatalogRepository) DeleteVersion(_ context.Context, version string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for key, p := range r.procedures {
		if p.Version == version {
			delete(r.procedures, key)
			deleted++
		}
	}
	for key, fp := range r.fingerprints {
		if fp.Version == version {
			delete(r.fingerprints, key)
		}
	}
	return deleted, nil
}

// Count returns the number of stored procedures across all versions.
func (r *MemoryCatalogRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procedures)
}

func sortProcedures(ps []Procedure) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Version != ps[j].Version {
			return ps[i].Version > ps[j].Version
		}
		return ps[i].Code < ps[j].Code
	})
}
