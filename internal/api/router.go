package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/cfgswap/internal/profileservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *profileservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", h.ListProfiles)
		r.Post("/", h.CreateProfile)
		r.Get("/{id}", h.GetProfile)
		r.Put("/{id}", h.UpdateProfile)
		r.Delete("/{id}", h.DeleteProfile)
		r.Post("/{id}/apply", h.ApplyProfile)
		r.Post("/{id}/duplicate", h.DuplicateProfile)
	})

	r.Get("/status", h.Status)
	r.Post("/reconcile", h.Reconcile)
	r.Get("/history", h.History)

	r.Route("/backups", func(r chi.Router) {
		r.Get("/", h.ListBackups)
		r.Post("/", h.CreateBackup)
		r.Post("/restore", h.RestoreBackup)
		r.Post("/cleanup", h.CleanupBackups)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
