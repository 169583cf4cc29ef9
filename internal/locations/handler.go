package locations

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brigade-ops/brigade/internal/platform/httpx"
	"github.com/brigade-ops/brigade/internal/shared"
)

// Handler wires HTTP endpoints for the location registry.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers location routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/locations", h.handleList)
	r.Post("/locations", h.handleCreate)
	r.Get("/locations/{id}", h.handleGet)
	r.Put("/locations/{id}", h.handleRename)
	r.Delete("/locations/{id}", h.handleDelete)
}

type locationRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	locs, err := h.service.List(r.Context(), id.TeamID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, locs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	loc, err := h.service.Get(r.Context(), id.TeamID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loc)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id := shared.IdentityFromContext(r.Context())
	loc, err := h.service.Create(r.Context(), id.TeamID, req.Name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, loc)
}

func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id := shared.IdentityFromContext(r.Context())
	if err := h.service.Rename(r.Context(), id.TeamID, chi.URLParam(r, "id"), req.Name); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if err := h.service.Delete(r.Context(), id.TeamID, chi.URLParam(r, "id")); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrLocationInUse):
		httpx.Problem(w, http.StatusConflict, "Location In Use", err.Error())
	default:
		h.logger.Error("location operation failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
