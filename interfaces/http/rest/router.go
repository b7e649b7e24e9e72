// Package rest is the HTTP surface of the editor session service.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/ports"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/http/rest/handlers"
	"github.com/Itzadetunji/mind-map-sub001/interfaces/http/rest/middleware"
	"github.com/Itzadetunji/mind-map-sub001/pkg/auth"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
	"github.com/Itzadetunji/mind-map-sub001/pkg/observability"
)

// Options wires optional collaborators into the router.
type Options struct {
	AllowedOrigins []string
	// Verifier authenticates /api/v1. Nil disables authentication.
	Verifier auth.Verifier
	// Metrics enables request metrics and /metrics when set.
	Metrics *observability.Collector
	// Checks are pinged by /ready.
	Checks map[string]ports.HealthChecker
	// WebSocket serves /api/v1/sessions/{sessionID}/ws when set.
	WebSocket http.Handler
}

// Router creates and configures the HTTP router.
type Router struct {
	sessions *handlers.SessionHandler
	errors   *pkgerrors.ErrorHandler
	opts     Options
	logger   *zap.Logger
}

func NewRouter(sessions *handlers.SessionHandler, errs *pkgerrors.ErrorHandler, opts Options, logger *zap.Logger) *Router {
	return &Router{sessions: sessions, errors: errs, opts: opts, logger: logger}
}

// Setup configures all routes and middleware.
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(rt.errors.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.Metrics != nil {
		router.Use(middleware.Metrics(rt.opts.Metrics))
	}

	origins := rt.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", middleware.DevUserHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.Metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		if rt.opts.Verifier != nil {
			r.Use(middleware.Authenticate(rt.opts.Verifier, rt.errors, rt.logger))
		} else {
			r.Use(middleware.Anonymous())
		}

		if rt.opts.WebSocket != nil {
			rt.sessions.SetStream(rt.opts.WebSocket)
		}
		r.Route("/sessions", rt.sessions.Routes)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		rt.errors.HandleStatus(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck pings every dependency with a short deadline.
func (rt *Router) readinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(rt.opts.Checks))
	for name := range rt.opts.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := rt.opts.Checks[name].Ping(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	body := map[string]interface{}{"status": "ready", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "not_ready"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
