package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
// ctx bounds background work started by handlers.
func (s *Server) buildRouter(ctx context.Context) http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Get("/{id}", s.handleGetEntity)
			r.Post("/{id}/command", s.handleEntityCommand)
		})

		r.Route("/discovery", func(r chi.Router) {
			r.Get("/", s.handleDiscoveryStatus)
			r.Get("/attempts", s.handleListAttempts)
			r.Post("/{id}", s.discoverHandler(ctx))
		})

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Get("/{id}", s.handleGetScene)
			r.Post("/{id}/trigger", s.handleTriggerScene)
			r.Post("/{id}/undo", s.handleUndoScene)
		})

		r.Route("/hub", func(r chi.Router) {
			r.Get("/controllers", s.handleListControllers)
			r.Get("/motion-sensors", s.handleListMotionSensors)
			r.Get("/motion-sensors/{id}", s.handleGetMotionSensor)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})
	return r
}
