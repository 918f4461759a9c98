package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/tabletd/internal/logger"
	"github.com/marmos91/tabletd/pkg/api/handlers"
)

// Backend is what the admin API reads from.
type Backend interface {
	handlers.TabletReader

	// Ready returns nil once startup recovery has finished.
	Ready() error
}

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /healthz - Liveness probe
//   - GET /readyz - Readiness probe
//   - GET /tablets - All tablet replicas, optionally filtered by ?state=
//   - GET /tablets/{tabletID} - One replica with an artifact census
func NewRouter(backend Backend) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	var ready func() error
	if backend != nil {
		ready = backend.Ready
	}
	healthHandler := handlers.NewHealthHandler(ready)

	r.Get("/healthz", healthHandler.Liveness)
	r.Get("/readyz", healthHandler.Readiness)

	if backend != nil {
		tabletHandler := handlers.NewTabletHandler(backend)
		r.Route("/tablets", func(r chi.Router) {
			r.Get("/", tabletHandler.List)
			r.Get("/{tabletID}", tabletHandler.Get)
		})
	}

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (DEBUG level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("Admin request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("Admin request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
