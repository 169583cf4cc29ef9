package reconcile

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

// Handler wires the import endpoint.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reconcile routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/imports", h.handleImport)
}

type importLineRequest struct {
	Name      string          `json:"name" validate:"required"`
	Unit      string          `json:"unit" validate:"required"`
	Quantity  float64         `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	IsNew     bool            `json:"is_new"`
	ItemID    string          `json:"item_id" validate:"required_unless=IsNew true"`
}

type importRequest struct {
	ImportID         string              `json:"import_id" validate:"required"`
	TargetLocationID string              `json:"target_location_id" validate:"required"`
	Lines            []importLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id := shared.IdentityFromContext(r.Context())
	input := ImportInput{
		ImportID:         req.ImportID,
		TeamID:           id.TeamID,
		TargetLocationID: req.TargetLocationID,
		ActorID:          id.ActorID,
		Lines:            make([]ImportLine, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, ImportLine{
			Name:      line.Name,
			Unit:      line.Unit,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			IsNew:     line.IsNew,
			ItemID:    line.ItemID,
		})
	}
	result, err := h.service.Import(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateImport):
			httpx.Problem(w, http.StatusConflict, "Duplicate Import", err.Error())
		case errors.Is(err, ErrEmptyImport):
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		default:
			h.logger.Error("import failed", slog.String("import_id", req.ImportID), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	status := http.StatusCreated
	if result.Failed > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}
