package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", HealthHandler)

		r.Route("/copilot", func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/send", apiHandler.SendHandler)
			r.Get("/threads", apiHandler.ListThreadsHandler)
			r.Get("/threads/{threadID}", apiHandler.GetThreadHandler)
			r.Delete("/threads/{threadID}", apiHandler.DeleteThreadHandler)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)
		r.Get("/storage/*", apiHandler.StorageHandler)
	})

	return r
}
