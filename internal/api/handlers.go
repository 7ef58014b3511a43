package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mocsync/internal/apperr"
	"github.com/starford/mocsync/internal/lifecycle"
	"github.com/starford/mocsync/internal/models"
	"github.com/starford/mocsync/internal/settings"
)

// Service is the hub lifecycle the handlers drive.
type Service interface {
	Hubs(ctx context.Context) ([]models.HubInfo, error)
	Update(ctx context.Context, hub string) (lifecycle.Report, error)
	UpdateAll(ctx context.Context) ([]lifecycle.Report, error)
	CreateHub(ctx context.Context, dir, name string) (string, error)
	ConvertToHub(ctx context.Context, doc string) (string, error)
	RenameHub(ctx context.Context, hub, newName string) (string, error)
	DeleteHub(ctx context.Context, hub, confirmation string) error
	CreateItem(ctx context.Context, hub, name string) (string, error)
	RenameItem(ctx context.Context, hub, oldName, newName string) (string, error)
	DeleteItem(ctx context.Context, hub, name, confirmation string) error
	MoveItem(ctx context.Context, item, targetHub string) (string, error)
}

// SettingsStore reads and replaces the runtime settings.
type SettingsStore interface {
	Get() settings.Settings
	Update(next settings.Settings) error
}

// Handler holds API route handlers.
type Handler struct {
	svc      Service
	settings SettingsStore
}

// NewHandler creates a new Handler.
func NewHandler(svc Service, st SettingsStore) *Handler {
	return &Handler{svc: svc, settings: st}
}

const maxBody = 1 << 20

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// statusOf maps a domain error to an HTTP status.
func statusOf(err error) int {
	var verr validation.Errors
	switch {
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &verr):
		return http.StatusBadRequest
	}
	switch apperr.KindOf(err) {
	case apperr.KindNameFormat:
		return http.StatusBadRequest
	case apperr.KindCollision:
		return http.StatusConflict
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConfirmation:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError answers with the status of err. Server-side failures are logged
// and reported without detail.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

// ListHubs handles GET /api/hubs.
//
//	@Summary		List hubs with their items and maintenance state
//	@Tags			hubs
//	@Produce		json
//	@Success		200	{object}	HubListResponse
//	@Security		BearerAuth
//	@Router			/hubs [get]
func (h *Handler) ListHubs(w http.ResponseWriter, r *http.Request) {
	hubs, err := h.svc.Hubs(r.Context())
	if err != nil {
		writeError(w, "list hubs", err)
		return
	}
	writeJSON(w, http.StatusOK, HubListResponse{Hubs: hubs})
}

// CreateHub handles POST /api/hubs.
//
//	@Summary		Create a hub folder and document
//	@Tags			hubs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateHubRequest	true	"Hub to create"
//	@Success		201		{object}	HubResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/hubs [post]
func (h *Handler) CreateHub(w http.ResponseWriter, r *http.Request) {
	var req CreateHubRequest
	if !decode(w, r, &req) {
		return
	}
	hub, err := h.svc.CreateHub(r.Context(), req.Dir, req.Name)
	if err != nil {
		writeError(w, "create hub", err)
		return
	}
	writeJSON(w, http.StatusCreated, HubResponse{Hub: hub})
}

// UpdateHubs handles POST /api/hubs/update. An empty path updates every hub.
//
//	@Summary		Repair and reconcile one hub or all hubs
//	@Tags			hubs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HubPathRequest	false	"Hub to update"
//	@Success		200		{object}	UpdateAllResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/hubs/update [post]
func (h *Handler) UpdateHubs(w http.ResponseWriter, r *http.Request) {
	var req HubPathRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	if req.Path != "" {
		rep, err := h.svc.Update(r.Context(), req.Path)
		if err != nil {
			writeError(w, "update hub", err)
			return
		}
		writeJSON(w, http.StatusOK, rep)
		return
	}

	reports, err := h.svc.UpdateAll(r.Context())
	if err != nil && len(reports) == 0 {
		writeError(w, "update all", err)
		return
	}
	resp := UpdateAllResponse{Reports: reports}
	if resp.Reports == nil {
		resp.Reports = []Report{}
	}
	if err != nil {
		resp.Errors = splitJoined(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// splitJoined flattens an errors.Join result into messages.
func splitJoined(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

// ConvertToHub handles POST /api/hubs/convert.
//
//	@Summary		Turn an empty document into a hub
//	@Tags			hubs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		HubPathRequest	true	"Document to convert"
//	@Success		200		{object}	HubResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/hubs/convert [post]
func (h *Handler) ConvertToHub(w http.ResponseWriter, r *http.Request) {
	var req HubPathRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	hub, err := h.svc.ConvertToHub(r.Context(), req.Path)
	if err != nil {
		writeError(w, "convert to hub", err)
		return
	}
	writeJSON(w, http.StatusOK, HubResponse{Hub: hub})
}

// RenameHub handles POST /api/hubs/rename.
//
//	@Summary		Rename a hub together with its folder
//	@Tags			hubs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameHubRequest	true	"Rename request"
//	@Success		200		{object}	HubResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/hubs/rename [post]
func (h *Handler) RenameHub(w http.ResponseWriter, r *http.Request) {
	var req RenameHubRequest
	if !decode(w, r, &req) {
		return
	}
	hub, err := h.svc.RenameHub(r.Context(), req.Path, req.Name)
	if err != nil {
		writeError(w, "rename hub", err)
		return
	}
	writeJSON(w, http.StatusOK, HubResponse{Hub: hub})
}

// DeleteHub handles POST /api/hubs/delete.
//
//	@Summary		Move a hub and its folder to the trash
//	@Tags			hubs
//	@Accept			json
//	@Param			body	body	DeleteHubRequest	true	"Delete request"
//	@Success		204		"Hub deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/hubs/delete [post]
func (h *Handler) DeleteHub(w http.ResponseWriter, r *http.Request) {
	var req DeleteHubRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteHub(r.Context(), req.Path, req.Confirmation); err != nil {
		writeError(w, "delete hub", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create an item under a hub
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	ItemResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.svc.CreateItem(r.Context(), req.Hub, req.Name)
	if err != nil {
		writeError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, ItemResponse{Entry: entry})
}

// RenameItem handles POST /api/items/rename.
//
//	@Summary		Rename an item folder and its entry document
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		RenameItemRequest	true	"Rename request"
//	@Success		200		{object}	ItemResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/rename [post]
func (h *Handler) RenameItem(w http.ResponseWriter, r *http.Request) {
	var req RenameItemRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.svc.RenameItem(r.Context(), req.Hub, req.OldName, req.NewName)
	if err != nil {
		writeError(w, "rename item", err)
		return
	}
	writeJSON(w, http.StatusOK, ItemResponse{Entry: entry})
}

// DeleteItem handles POST /api/items/delete.
//
//	@Summary		Move an item to the trash
//	@Tags			items
//	@Accept			json
//	@Param			body	body	DeleteItemRequest	true	"Delete request"
//	@Success		204		"Item deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/delete [post]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	var req DeleteItemRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.DeleteItem(r.Context(), req.Hub, req.Name, req.Confirmation); err != nil {
		writeError(w, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveItem handles POST /api/items/move.
//
//	@Summary		Move an item into another hub
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveItemRequest	true	"Move request"
//	@Success		200		{object}	ItemResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/items/move [post]
func (h *Handler) MoveItem(w http.ResponseWriter, r *http.Request) {
	var req MoveItemRequest
	if !decode(w, r, &req) {
		return
	}
	entry, err := h.svc.MoveItem(r.Context(), req.Item, req.TargetHub)
	if err != nil {
		writeError(w, "move item", err)
		return
	}
	writeJSON(w, http.StatusOK, ItemResponse{Entry: entry})
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Get the runtime settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// PutSettings handles PUT /api/settings.
//
//	@Summary		Replace the runtime settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		Settings	true	"New settings"
//	@Success		200		{object}	Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req Settings
	if !decode(w, r, &req) {
		return
	}
	if err := h.settings.Update(req); err != nil {
		writeError(w, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, h.settings.Get())
}
