package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc Service, st SettingsStore, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, st)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Hubs.
	r.Get("/hubs", h.ListHubs)
	r.Post("/hubs", h.CreateHub)
	r.Post("/hubs/update", h.UpdateHubs)
	r.Post("/hubs/convert", h.ConvertToHub)
	r.Post("/hubs/rename", h.RenameHub)
	r.Post("/hubs/delete", h.DeleteHub)

	// Items.
	r.Post("/items", h.CreateItem)
	r.Post("/items/rename", h.RenameItem)
	r.Post("/items/delete", h.DeleteItem)
	r.Post("/items/move", h.MoveItem)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
