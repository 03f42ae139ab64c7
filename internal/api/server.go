// Package api provides the REST API server for the sync service.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/agroplanner/opscenter-sync/internal/api/v1"
	"github.com/agroplanner/opscenter-sync/internal/auth"
	"github.com/agroplanner/opscenter-sync/internal/deere"
	"github.com/agroplanner/opscenter-sync/internal/logger"
	"github.com/agroplanner/opscenter-sync/internal/store"
	syncpkg "github.com/agroplanner/opscenter-sync/internal/sync"
)

// ServerOption configures the API server
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

// NewServer creates and configures the HTTP router with the given dependencies
// and options.
func NewServer(
	st store.Store,
	scheduler *syncpkg.Scheduler,
	client deere.Client,
	issuer *auth.TokenIssuer,
	opts ...ServerOption,
) *chi.Mux {
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

	// Health check routes at root, outside authentication
	r.Mount("/", v1.HealthRouter(st))

	r.Mount("/api/v1", v1.Router(st, scheduler, client, issuer))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debugf("HTTP %s %s %d %s %s",
			r.Method,
			r.URL.Path,
			ww.Status(),
			time.Since(start),
			middleware.GetReqID(r.Context()),
		)
	})
}
