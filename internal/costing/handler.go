package costing

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/brigade-ops/brigade/internal/platform/httpx"
	"github.com/brigade-ops/brigade/internal/shared"
)

// Handler wires HTTP endpoints for cost records.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// MountRoutes registers costing routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{id}/cost", h.handleGetByItem)
}

func (h *Handler) handleGetByItem(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	record, err := h.service.GetByItem(r.Context(), id.TeamID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "item has no cost record")
			return
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}
