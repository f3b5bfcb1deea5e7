package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/repository"
	"github.com/FACorreiaa/cbhpm-tables/internal/domain/catalog/service"
)

func newRouter(t *testing.T) *mux.Router {
	t.Helper()
	repo := repository.NewMemoryCatalogRepository()
	_, err := repo.InsertProcedures(context.Background(), []repository.Procedure{
		{Code: "10101012", Description: "Consulta em consultório", SurgicalValue: 100, RelativeUnitValue: 2, Version: "2022"},
		{Code: "10102019", Description: "Visita hospitalar", SurgicalValue: 80, Version: "2022"},
		{Code: "10101012", Description: "Consulta em consultório", SurgicalValue: 110, RelativeUnitValue: 2, Version: "2023"},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewService(repo, logger)
	t.Cleanup(svc.Close)
	h := NewCatalogHandler(svc, logger)

	r := mux.NewRouter()
	r.HandleFunc("/versions", h.ListVersions).Methods(http.MethodGet)
	r.HandleFunc("/versions/{version}", h.DeleteVersion).Methods(http.MethodDelete)
	r.HandleFunc("/procedures", h.SearchProcedures).Methods(http.MethodGet)
	r.HandleFunc("/procedures/search", h.FullTextSearch).Methods(http.MethodGet)
	r.HandleFunc("/procedures/suggest", h.Suggest).Methods(http.MethodGet)
	r.HandleFunc("/procedures/{code}", h.GetProcedure).Methods(http.MethodGet)
	r.HandleFunc("/compare", h.Compare).Methods(http.MethodGet)
	r.HandleFunc("/export", h.Export).Methods(http.MethodGet)
	return r
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestCatalogHandler_Status(t *testing.T) {
	r := newRouter(t)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"versions", http.MethodGet, "/versions", http.StatusOK},
		{"procedure", http.MethodGet, "/procedures/10101012?version=2022", http.StatusOK},
		{"procedure missing", http.MethodGet, "/procedures/99999999?version=2022", http.StatusNotFound},
		{"procedure without version", http.MethodGet, "/procedures/10101012", http.StatusBadRequest},
		{"substring search", http.MethodGet, "/procedures?q=consulta", http.StatusOK},
		{"empty search term", http.MethodGet, "/procedures?q=", http.StatusBadRequest},
		{"full text", http.MethodGet, "/procedures/search?version=2022&q=visita", http.StatusOK},
		{"full text unknown version", http.MethodGet, "/procedures/search?version=1999&q=visita", http.StatusNotFound},
		{"suggest", http.MethodGet, "/procedures/suggest?version=2022&q=vizita", http.StatusOK},
		{"compare", http.MethodGet, "/compare?base=2022&target=2023", http.StatusOK},
		{"compare missing target", http.MethodGet, "/compare?base=2022", http.StatusBadRequest},
		{"export bad format", http.MethodGet, "/export?version=2022&format=pdf", http.StatusBadRequest},
		{"export unknown version", http.MethodGet, "/export?version=1999&format=csv", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.method, tt.target)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestCatalogHandler_GetProcedure(t *testing.T) {
	r := newRouter(t)

	rec := serve(r, http.MethodGet, "/procedures/10101012?version=2023")
	require.Equal(t, http.StatusOK, rec.Code)

	var p repository.Procedure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "10101012", p.Code)
	assert.Equal(t, 110.0, p.SurgicalValue)
}

func TestCatalogHandler_FullTextSearch(t *testing.T) {
	r := newRouter(t)

	rec := serve(r, http.MethodGet, "/procedures/search?version=2022&q=hospitalar")
	require.Equal(t, http.StatusOK, rec.Code)

	var res service.FullTextResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "10102019", res.Hits[0].Code)
}

func TestCatalogHandler_ExportCSV(t *testing.T) {
	r := newRouter(t)

	rec := serve(r, http.MethodGet, "/export?version=2022&format=csv")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, service.ExportCSV.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "cbhpm_2022.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Código;Descrição"))
	assert.Contains(t, rec.Body.String(), "10102019;Visita hospitalar;80;0;0;2022")
}

func TestCatalogHandler_DeleteVersion(t *testing.T) {
	r := newRouter(t)

	rec := serve(r, http.MethodDelete, "/versions/2022")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["deleted"])

	rec = serve(r, http.MethodGet, "/versions")
	var versions []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &versions))
	assert.Equal(t, []string{"2023"}, versions)
}
