package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/nfs4state/internal/api/auth"
	"github.com/marmos91/nfs4state/internal/api/handlers"
	apiMiddleware "github.com/marmos91/nfs4state/internal/api/middleware"
	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/internal/telemetry"
	"github.com/marmos91/nfs4state/pkg/nfs4/state"
)

// NewRouter creates the chi router of the admin API.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe (lock backend reachable)
//   - GET /api/v1/grace - Grace period status (unauthenticated)
//   - GET /api/v1/clients - Client list
//   - GET /api/v1/clients/{id} - Client detail
//   - GET /api/v1/clients/{id}/sessions - Sessions of a client
//   - DELETE /api/v1/clients/{id} - Evict a client (admin)
//   - GET /api/v1/sessions - Session list
//   - DELETE /api/v1/sessions/{id} - Destroy a session (admin)
//   - GET /api/v1/locks - Locked objects
//   - GET /api/v1/locks/{object} - Locks on an object
//   - DELETE /api/v1/locks/{object} - Purge the locks of an object (admin)
//   - POST /api/v1/grace/end - Force the grace period to end (admin)
//   - GET /metrics - Prometheus metrics, when gatherer is non-nil
//
// With a nil jwtService the /api/v1 routes are served without
// authentication.
func NewRouter(handler *state.StateHandler, jwtService *auth.JWTService, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler := handlers.NewHealthHandler(handler)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if handler == nil {
		return r
	}

	clientHandler := handlers.NewClientHandler(handler)
	sessionHandler := handlers.NewSessionHandler(handler)
	lockHandler := handlers.NewLockHandler(handler.LockManager())
	graceHandler := handlers.NewGraceHandler(handler.Grace())

	// Admin-only routes need claims, so they are only guarded when
	// authentication is on.
	admin := func(r chi.Router) chi.Router {
		if jwtService == nil {
			return r
		}
		return r.With(apiMiddleware.RequireAdmin())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/grace", graceHandler.Status)

		r.Group(func(r chi.Router) {
			if jwtService != nil {
				r.Use(apiMiddleware.JWTAuth(jwtService))
			}

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", clientHandler.List)
				r.Get("/{id}", clientHandler.Get)
				r.Get("/{id}/sessions", clientHandler.Sessions)
				admin(r).Delete("/{id}", clientHandler.Evict)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", sessionHandler.List)
				admin(r).Delete("/{id}", sessionHandler.Destroy)
			})

			r.Route("/locks", func(r chi.Router) {
				r.Get("/", lockHandler.Objects)
				r.Get("/{object}", lockHandler.List)
				admin(r).Delete("/{object}", lockHandler.Purge)
			})

			admin(r).Post("/grace/end", graceHandler.ForceEnd)
		})
	})

	return r
}

// requestLogger wraps each request in a span and a logger.LogContext, so
// handler logs carry the request id and trace ids. Health probes are logged
// at DEBUG to keep them out of normal output.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.StartSpan(telemetry.ExtractHTTP(r.Context(), r.Header), "api "+r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(telemetry.ClientAddr(r.RemoteAddr)))
		defer span.End()

		lc := logger.NewLogContext(r.RemoteAddr).
			WithOperation(r.Method+" "+r.URL.Path).
			WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
		lc.RequestID = middleware.GetReqID(ctx)
		ctx = logger.WithContext(ctx, lc)

		logger.DebugCtx(ctx, "API request started")

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		args := []any{
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(lc.DurationMs()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}

		if isHealthPath(r.URL.Path) {
			logger.DebugCtx(ctx, "API request completed", args...)
		} else {
			logger.InfoCtx(ctx, "API request completed", args...)
		}
	})
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/") || path == "/metrics"
}
