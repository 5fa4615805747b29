package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/affandar/toygres/pkg/client"
	"github.com/affandar/toygres/pkg/config"
	"github.com/affandar/toygres/pkg/history"
	"github.com/affandar/toygres/pkg/metrics"
)

// Server is the chi-routed HTTP front end over a client.Client. Build one
// with NewServer and mount it behind an http.Server in cmd/toygres's
// serve command.
type Server struct {
	router            *chi.Mux
	client            *client.Client
	store             history.Store
	logger            zerolog.Logger
	manifestOverrides map[string]config.ManifestOverride
}

// WithManifestOverrides attaches the operator-supplied per-instance
// resource overrides createInstance applies whenever a request leaves
// the corresponding field blank. Optional: a Server with none set
// behaves exactly as if this were never called.
func (s *Server) WithManifestOverrides(overrides map[string]config.ManifestOverride) *Server {
	s.manifestOverrides = overrides
	return s
}

// NewServer wires the full route table: health/readiness/metrics at the
// root, and the versioned instance API under /api/v1. store is the same
// Event-History Store c was built over — Server only reads it directly
// for the readiness check, never to mutate instance state.
func NewServer(c *client.Client, store history.Store, logger zerolog.Logger) *Server {
	s := &Server{router: chi.NewRouter(), client: c, store: store, logger: logger}

	s.router.Use(middleware.RequestID)
	s.router.Use(accessLog(logger))
	s.router.Use(recordMetrics)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/instances", func(r chi.Router) {
			r.Post("/", s.createInstance)
			r.Get("/", s.listInstances)
			r.Get("/{id}", s.getInstance)
			r.Delete("/{id}", s.deleteInstance)
			r.Post("/{id}/events", s.raiseEvent)
			r.Get("/{id}/executions", s.listExecutions)
			r.Get("/{id}/executions/{execID}/history", s.readExecutionHistory)
		})
		r.Get("/cluster/summary", s.clusterSummary)
	})

	return s
}

// ServeHTTP implements http.Handler, so Server can be passed directly to
// http.Server.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
