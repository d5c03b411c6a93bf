package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggingMiddleware(logger))
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	r.Get("/health", h.Health)

	r.Route("/productions", func(r chi.Router) {
		r.Post("/", h.CreateProduction)
		r.Get("/", h.ListProductions)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetProduction)
			r.Delete("/", h.DeleteProduction)
			r.Get("/events", h.Events)
			r.Post("/clips/{clipId}/retry", h.RetryClip)

			r.Route("/stitch", func(r chi.Router) {
				r.Post("/", h.StartStitch)
				r.Get("/", h.GetStitch)
				r.Delete("/", h.ResetStitch)
				r.Get("/artifact", h.DownloadArtifact)
			})
		})
	})

	return r
}
