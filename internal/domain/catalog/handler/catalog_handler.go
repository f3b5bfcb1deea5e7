package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/search"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/service"
	"github.com/FACorreiaa/cbhpm-tables/pkg/httpx"
)

// Catalog is the catalog service as seen by the handler.
type Catalog interface {
	ListVersions(ctx context.Context) ([]string, error)
	GetProcedure(ctx context.Context, code, version string) (*repository.Procedure, error)
	Search(ctx context.Context, q service.SearchQuery) ([]repository.Procedure, error)
	FullTextSearch(ctx context.Context, version, query string, limit int) (*service.FullTextResult, error)
	Suggest(ctx context.Context, version, term string, limit int) ([]search.Suggestion, error)
	Compare(ctx context.Context, base, target string) (*service.Comparison, error)
	Export(ctx context.Context, version string, format service.ExportFormat, w io.Writer) error
	DeleteVersion(ctx context.Context, version string) (int, error)
}

// CatalogHandler serves read access to the stored tables.
type CatalogHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalog Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// ListVersions handles GET /versions
func (h *CatalogHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.catalog.ListVersions(r.Context())
	if err != nil {
		h.fail(w, "failed to list versions", err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, versions)
}

// GetProcedure handles GET /procedures/{code}?version=
func (h *CatalogHandler) GetProcedure(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	p, err := h.catalog.GetProcedure(r.Context(), code, r.URL.Query().Get("version"))
	if err != nil {
		h.fail(w, "failed to get procedure", err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, p)
}

// SearchProcedures handles GET /procedures?version=&field=&q=&limit=
func (h *CatalogHandler) SearchProcedures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ps, err := h.catalog.Search(r.Context(), service.SearchQuery{
		Version: q.Get("version"),
		Field:   repository.ParseSearchField(q.Get("field")),
		Term:    q.Get("q"),
		Limit:   queryInt(q.Get("limit")),
	})
	if err != nil {
		h.fail(w, "failed to search procedures", err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, ps)
}

// FullTextSearch handles GET /procedures/search?version=&q=&limit=
func (h *CatalogHandler) FullTextSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.catalog.FullTextSearch(r.Context(), q.Get("version"), q.Get("q"), queryInt(q.Get("limit")))
	if err != nil {
		h.fail(w, "failed to search procedures", err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, res)
}

// Suggest handles GET /procedures/suggest?version=&q=&limit=
func (h *CatalogHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	suggestions, err := h.catalog.Suggest(r.Context(), q.Get("version"), q.Get("q"), queryInt(q.Get("limit")))
	if err != nil {
		h.fail(w, "failed to suggest procedures", err)
		return
	}
	if suggestions == nil {
		suggestions = []search.Suggestion{}
	}
	httpx.RespondWithJSON(w, http.StatusOK, suggestions)
}

// Compare handles GET /compare?base=&target=
func (h *CatalogHandler) Compare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	base, target := strings.TrimSpace(q.Get("base")), strings.TrimSpace(q.Get("target"))
	if base == "" || target == "" {
		httpx.RespondWithError(w, http.StatusBadRequest, "base and target are required")
		return
	}

	cmp, err := h.catalog.Compare(r.Context(), base, target)
	if err != nil {
		h.fail(w, "failed to compare versions", err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, cmp)
}

// Export handles GET /export?version=&format=xlsx|csv
func (h *CatalogHandler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	version := strings.TrimSpace(q.Get("version"))

	format, err := service.ParseExportFormat(q.Get("format"))
	if err != nil {
		httpx.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Buffered so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := h.catalog.Export(r.Context(), version, format, &buf); err != nil {
		h.fail(w, "failed to export version", err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+format.FileName(version)+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("failed to write export", slog.String("version", version), slog.Any("error", err))
	}
}

// DeleteVersion handles DELETE /versions/{version}
func (h *CatalogHandler) DeleteVersion(w http.ResponseWriter, r *http.Request) {
	version := mux.Vars(r)["version"]
	deleted, err := h.catalog.DeleteVersion(r.Context(), version)
	if err != nil {
		h.fail(w, "failed to delete version", err)
		return
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"deleted": deleted,
	})
}

// fail maps service errors to status codes.
func (h *CatalogHandler) fail(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		httpx.RespondWithError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrVersionRequired),
		errors.Is(err, service.ErrEmptyTerm),
		errors.Is(err, service.ErrUnsupportedExport):
		httpx.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.RespondWithError(w, http.StatusInternalServerError, msg)
	}
}

func queryInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
