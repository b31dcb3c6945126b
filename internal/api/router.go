// Package api exposes extraction jobs over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/mcq-extractor/internal/observability"
	"github.com/spherical/mcq-extractor/internal/session"
)

// Config holds router settings.
type Config struct {
	MaxUploadBytes  int64
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	DefaultLanguage string
	Version         string
}

// NewRouter creates the API router with all routes configured.
func NewRouter(logger *observability.Logger, jobs *session.Manager, cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	h := NewJobHandler(logger, jobs, cfg)

	r.Get("/health", h.Health)

	r.Route("/api/v1/jobs", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{jobId}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/cancel", h.Cancel)

			r.Get("/records", h.Records)
			r.Get("/records/{recordId}", h.Record)
			r.Patch("/records/{recordId}", h.PatchRecord)
			r.Put("/records/{recordId}/{field}", h.SetRecordField)
			r.Delete("/records/{recordId}", h.DeleteRecord)

			r.Get("/export/xlsx", h.ExportXLSX)
			r.Get("/export/text", h.ExportText)
		})
	})

	return r
}
