package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/FACorreiaa/cbhpm-tables/pkg/httpx"
)

// NewRouter builds the HTTP handler with every route and middleware.
func NewRouter(d *Dependencies) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(d.Logger))

	r.HandleFunc("/healthz", d.healthz).Methods(http.MethodGet)
	if d.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.NewRoute().Subrouter()
	api.Use(rateLimit(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst))

	api.HandleFunc("/imports", d.ImportHandler.ImportFiles).Methods(http.MethodPost)
	api.HandleFunc("/imports", d.ImportHandler.ListImports).Methods(http.MethodGet)

	api.HandleFunc("/versions", d.CatalogHandler.ListVersions).Methods(http.MethodGet)
	api.HandleFunc("/versions/{version}", d.CatalogHandler.DeleteVersion).Methods(http.MethodDelete)

	// Fixed paths first so they are not taken as a procedure code
	api.HandleFunc("/procedures/search", d.CatalogHandler.FullTextSearch).Methods(http.MethodGet)
	api.HandleFunc("/procedures/suggest", d.CatalogHandler.Suggest).Methods(http.MethodGet)
	api.HandleFunc("/procedures/{code}", d.CatalogHandler.GetProcedure).Methods(http.MethodGet)
	api.HandleFunc("/procedures", d.CatalogHandler.SearchProcedures).Methods(http.MethodGet)

	api.HandleFunc("/compare", d.CatalogHandler.Compare).Methods(http.MethodGet)
	api.HandleFunc("/export", d.CatalogHandler.Export).Methods(http.MethodGet)
	api.HandleFunc("/calculate", d.CalculatorHandler.Calculate).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: d.Config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	})
	return c.Handler(r)
}

func (d *Dependencies) healthz(w http.ResponseWriter, r *http.Request) {
	if d.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := d.DB.Pool.Ping(ctx); err != nil {
			httpx.RespondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	httpx.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
