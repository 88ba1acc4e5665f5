package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mercator-hq/tutor/pkg/telemetry/health"
	"mercator-hq/tutor/pkg/telemetry/tracing"
)

// routes builds the chi router. Middleware runs outermost first.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestContext)
	if s.deps.Tracing {
		r.Use(tracing.HTTPMiddleware(routePattern))
	}
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrorTypeNotFound, "", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorTypeInvalidRequest, "", "method not allowed")
	})

	r.Get("/health", s.deps.Health.LivenessHandler())
	r.Get("/ready", s.deps.Health.ReadinessHandler())
	r.Get("/version", health.VersionHandler(health.VersionInfo{
		Version:   s.deps.Build.Version,
		Commit:    s.deps.Build.Commit,
		BuildTime: s.deps.Build.BuildTime,
	}))
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, s.deps.MetricsPath, s.deps.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/chat/turns", s.handleTurn)

		v1.Get("/sessions/{sessionID}/messages", s.handleRecentMessages)
		v1.Delete("/sessions/{sessionID}", s.handleDeleteSession)
		v1.Delete("/owners/{ownerID}/sessions", s.handleEndConversation)

		v1.Get("/ratelimit/{identifier}", s.handleRateLimitStatus)
		v1.Delete("/ratelimit/{identifier}", s.handleRateLimitReset)
	})

	return r
}
