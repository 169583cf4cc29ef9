package ledger

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/brigade-ops/brigade/internal/platform/httpx"
	"github.com/brigade-ops/brigade/internal/shared"
)

// Handler wires HTTP endpoints for the ledger engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/low-stock", h.handleListLowStock)
	r.Get("/items/{id}", h.handleGetItem)
	r.Get("/items/{id}/history", h.handleHistory)
	r.Post("/items/{id}/transfer", h.handleTransfer)
	r.Post("/items/{id}/adjust", h.handleAdjust)
	r.Post("/items/{id}/stock-take", h.handleStockTake)
	r.Post("/items/{id}/waste", h.handleWaste)
	r.Post("/receipts", h.handleReceive)
}

type transferRequest struct {
	FromLocationID string  `json:"from_location_id" validate:"required"`
	ToLocationID   string  `json:"to_location_id" validate:"required,nefield=FromLocationID"`
	Quantity       float64 `json:"quantity" validate:"required,gt=0"`
	Notes          string  `json:"notes"`
}

type adjustRequest struct {
	LocationID string  `json:"location_id" validate:"required"`
	Quantity   float64 `json:"quantity" validate:"required,gt=0"`
	Direction  string  `json:"direction" validate:"required,oneof=add subtract"`
	Notes      string  `json:"notes"`
}

type stockTakeRequest struct {
	LocationID      string  `json:"location_id" validate:"required"`
	CountedQuantity float64 `json:"counted_quantity" validate:"gte=0"`
}

type wasteRequest struct {
	Quantity float64 `json:"quantity" validate:"required,gt=0"`
	Reason   string  `json:"reason" validate:"required"`
	Notes    string  `json:"notes"`
}

type newItemRequest struct {
	Name         string  `json:"name" validate:"required"`
	Unit         string  `json:"unit" validate:"required"`
	ReorderPoint float64 `json:"reorder_point" validate:"gte=0"`
}

type receiveRequest struct {
	ItemID     string          `json:"item_id"`
	NewItem    *newItemRequest `json:"new_item"`
	LocationID string          `json:"location_id" validate:"required"`
	Quantity   float64         `json:"quantity" validate:"required,gt=0"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Notes      string          `json:"notes"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	result, err := h.service.Transfer(r.Context(), TransferInput{
		TeamID:         id.TeamID,
		ItemID:         chi.URLParam(r, "id"),
		FromLocationID: req.FromLocationID,
		ToLocationID:   req.ToLocationID,
		Quantity:       req.Quantity,
		ActorID:        id.ActorID,
		Notes:          req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	result, err := h.service.ManualAdjust(r.Context(), AdjustInput{
		TeamID:     id.TeamID,
		ItemID:     chi.URLParam(r, "id"),
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		Direction:  AdjustDirection(req.Direction),
		ActorID:    id.ActorID,
		Notes:      req.Notes,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleStockTake(w http.ResponseWriter, r *http.Request) {
	var req stockTakeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	result, err := h.service.ReconcileStockTake(r.Context(), StockTakeInput{
		TeamID:          id.TeamID,
		ItemID:          chi.URLParam(r, "id"),
		LocationID:      req.LocationID,
		CountedQuantity: req.CountedQuantity,
		ActorID:         id.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleWaste(w http.ResponseWriter, r *http.Request) {
	var req wasteRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	result, err := h.service.DeductWaste(r.Context(), WasteInput{
		TeamID:   id.TeamID,
		ItemID:   chi.URLParam(r, "id"),
		Quantity: req.Quantity,
		Reason:   req.Reason,
		Notes:    req.Notes,
		ActorID:  id.ActorID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := shared.IdentityFromContext(r.Context())
	input := ReceiveInput{
		TeamID:     id.TeamID,
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		UnitPrice:  req.UnitPrice,
		ActorID:    id.ActorID,
		Notes:      req.Notes,
	}
	if req.NewItem != nil {
		input.NewItem = &NewItemSpec{
			Name:         req.NewItem.Name,
			Unit:         req.NewItem.Unit,
			ReorderPoint: req.NewItem.ReorderPoint,
		}
	}
	result, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	item, err := h.service.GetItem(r.Context(), id.TeamID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, struct {
		StockItem
		TotalQuantity float64 `json:"total_quantity"`
		LowStock      bool    `json:"low_stock"`
	}{item, item.TotalQuantity(), item.IsLowStock()})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	entries, err := h.service.History(r.Context(), id.TeamID, chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) handleListLowStock(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	items, err := h.service.ListLowStock(r.Context(), id.TeamID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrLocationNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrVersionConflict):
		httpx.Problem(w, http.StatusConflict, "Concurrent Update", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrSameLocation), errors.Is(err, ErrNoDefaultLocation):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		h.logger.Error("ledger operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
