// Package service provides read access to imported CBHPM tables: version
// listing, lookup, search, comparison and export.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/search"
	importservice "github.com/FACorreiaa/cbhpm-tables/internal/domain/import/service"
)

var (
	ErrVersionRequired = errors.New("version is required")
	ErrEmptyTerm       = errors.New("search term is required")
)

// SearchQuery is a substring search over code or description.
type SearchQuery struct {
	Version string
	Field   repository.SearchField
	Term    string
	Limit   int
}

// FullTextResult holds index hits, or suggestions when there are none.
type FullTextResult struct {
	Version     string              `json:"version"`
	Query       string              `json:"query"`
	Hits        []search.Hit        `json:"hits"`
	Suggestions []search.Suggestion `json:"suggestions,omitempty"`
}

type versionIndex struct {
	index     *search.SearchIndex
	suggester *search.Suggester
}

// Service answers catalog queries. The version list and the per-version
// search indexes are cached until invalidated.
type Service struct {
	repo   repository.CatalogRepository
	logger *slog.Logger

	mu       sync.Mutex
	versions []string
	cached   bool
	indexes  map[string]*versionIndex
}

// NewService creates a catalog service
func NewService(repo repository.CatalogRepository, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		logger:  logger,
		indexes: make(map[string]*versionIndex),
	}
}

// ListVersions returns the stored version labels, newest first.
func (s *Service) ListVersions(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached {
		return append([]string(nil), s.versions...), nil
	}

	versions, err := s.repo.ListVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	if versions == nil {
		versions = []string{}
	}
	s.versions = versions
	s.cached = true
	return append([]string(nil), versions...), nil
}

// InvalidateVersions drops the cached version list and every search index.
func (s *Service) InvalidateVersions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = false
	s.versions = nil
	for v, idx := range s.indexes {
		s.closeIndex(v, idx)
		delete(s.indexes, v)
	}
}

// ImportCompleted invalidates caches after an import stored new rows.
func (s *Service) ImportCompleted(_ context.Context, event importservice.ImportEvent) error {
	s.InvalidateVersions()
	s.logger.Debug("catalog caches invalidated", slog.String("version", event.Version))
	return nil
}

// GetProcedure returns one procedure of a version.
func (s *Service) GetProcedure(ctx context.Context, code, version string) (*repository.Procedure, error) {
	code = strings.TrimSpace(code)
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, ErrVersionRequired
	}

	p, err := s.repo.GetProcedure(ctx, code, version)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Search runs a case-insensitive substring search.
func (s *Service) Search(ctx context.Context, q SearchQuery) ([]repository.Procedure, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return nil, ErrEmptyTerm
	}

	field := q.Field
	if field == "" {
		field = repository.SearchByDescription
	}
	ps, err := s.repo.SearchProcedures(ctx, repository.SearchParams{
		Version: strings.TrimSpace(q.Version),
		Field:   field,
		Term:    term,
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search procedures: %w", err)
	}
	if ps == nil {
		ps = []repository.Procedure{}
	}
	return ps, nil
}

// FullTextSearch queries the version's description index, falling back to
// fuzzy suggestions when the index has no match.
func (s *Service) FullTextSearch(ctx context.Context, version, query string, limit int) (*FullTextResult, error) {
	version = strings.TrimSpace(version)
	query = strings.TrimSpace(query)
	if version == "" {
		return nil, ErrVersionRequired
	}
	if query == "" {
		return nil, ErrEmptyTerm
	}

	idx, err := s.versionIndex(ctx, version)
	if err != nil {
		return nil, err
	}

	hits, err := idx.index.Search(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	result := &FullTextResult{Version: version, Query: query, Hits: hits}
	if len(hits) == 0 {
		result.Suggestions = idx.suggester.Suggest(query, limit)
	}
	return result, nil
}

// Suggest returns fuzzy matches for a possibly misspelled term.
func (s *Service) Suggest(ctx context.Context, version, term string, limit int) ([]search.Suggestion, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, ErrVersionRequired
	}

	idx, err := s.versionIndex(ctx, version)
	if err != nil {
		return nil, err
	}
	return idx.suggester.Suggest(term, limit), nil
}

// DeleteVersion removes a whole version with its fingerprints.
func (s *Service) DeleteVersion(ctx context.Context, version string) (int, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return 0, ErrVersionRequired
	}

	deleted, err := s.repo.DeleteVersion(ctx, version)
	if err != nil {
		return 0, fmt.Errorf("failed to delete version: %w", err)
	}
	s.InvalidateVersions()

	s.logger.Info("version deleted", slog.String("version", version), slog.Int("procedures", deleted))
	return deleted, nil
}

// Procedures returns every procedure of a version ordered by code.
func (s *Service) Procedures(ctx context.Context, version string) ([]repository.Procedure, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, ErrVersionRequired
	}

	ps, err := s.repo.ListProcedures(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	if len(ps) == 0 {
		return nil, repository.ErrNotFound
	}
	return ps, nil
}

func (s *Service) versionIndex(ctx context.Context, version string) (*versionIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.indexes[version]; ok {
		return idx, nil
	}

	ps, err := s.repo.ListProcedures(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("failed to list procedures: %w", err)
	}
	if len(ps) == 0 {
		return nil, repository.ErrNotFound
	}

	index, err := search.BuildIndex(ps)
	if err != nil {
		return nil, fmt.Errorf("failed to build search index: %w", err)
	}
	idx := &versionIndex{index: index, suggester: search.NewSuggester(ps)}
	s.indexes[version] = idx

	s.logger.Debug("search index built", slog.String("version", version), slog.Int("procedures", len(ps)))
	return idx, nil
}

func (s *Service) closeIndex(version string, idx *versionIndex) {
	if err := idx.index.Close(); err != nil {
		s.logger.Warn("failed to close search index", slog.String("version", version), slog.Any("error", err))
	}
}

// Close releases the cached search indexes.
func (s *Service) Close() {
	s.InvalidateVersions()
}
