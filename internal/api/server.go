// Package api provides the status HTTP API of the view exporter.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/view-exporter/internal/resource"
	"github.com/stacklok/view-exporter/internal/status"
)

//go:generate mockgen -destination=mocks/mock_status_provider.go -package=mocks -source=server.go

// StatusProvider exposes the export state served by the API
type StatusProvider interface {
	// Ready reports whether every resource has been exported once
	Ready() bool

	// List returns the status of every resource
	List() []status.ResourceStatus

	// Get returns the status of a registered resource
	Get(name resource.Name) (status.ResourceStatus, bool)
}

// ServerOption configures the status API server
type ServerOption func(*serverConfig)

// serverConfig holds the server configuration
type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// NewServer creates and configures the HTTP router with the given provider and options
func NewServer(provider StatusProvider, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{
		middlewares: []func(http.Handler) http.Handler{},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()

	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	routes := newRoutes(provider)

	// Health check routes at root
	r.Get("/health", healthHandler)
	r.Get("/readiness", routes.readiness)
	r.Get("/version", versionHandler)

	r.Route("/v0/resources", func(r chi.Router) {
		r.Get("/", routes.listResources)
		r.Get("/{name}", routes.getResource)
	})

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
