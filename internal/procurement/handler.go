package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-retail/stockyard/internal/fulfillment"
	"github.com/stockyard-retail/stockyard/internal/platform/httpx"
	"github.com/stockyard-retail/stockyard/internal/shared"
	"github.com/stockyard-retail/stockyard/internal/stock"
)

// Handler exposes purchase receipt reconciliation.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	idem     *shared.IdempotencyStore
}

// NewHandler constructs procurement handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// WithIdempotency enables Idempotency-Key enforcement on receipts.
// Suppliers post the same delivery note twice more often than one
// would hope.
func (h *Handler) WithIdempotency(store *shared.IdempotencyStore) *Handler {
	h.idem = store
	return h
}

// MountRoutes registers procurement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-orders/{id}/receipts", h.handleReceipt)
	r.Post("/purchase-orders/{id}/close", h.handleCloseEarly)
}

type receiptLineRequest struct {
	LineID int64 `json:"line_id" validate:"required,gt=0"`
	Qty    int64 `json:"qty" validate:"required,gt=0"`
}

type receiptRequest struct {
	ReceivedAt time.Time            `json:"received_at"`
	Lines      []receiptLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if h.idem != nil {
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			if err := h.idem.CheckAndInsert(r.Context(), key, "receipts"); err != nil {
				if errors.Is(err, shared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
					return
				}
				h.respondError(w, err)
				return
			}
		}
	}
	actor := shared.ActorFromContext(r.Context())
	receipt := Receipt{
		OrderID:    chi.URLParam(r, "id"),
		ReceivedAt: req.ReceivedAt,
		ActorID:    actor.EmployeeID,
	}
	if receipt.ReceivedAt.IsZero() {
		receipt.ReceivedAt = time.Now().UTC()
	}
	for _, line := range req.Lines {
		receipt.Lines = append(receipt.Lines, ReceiptLine{LineID: line.LineID, Qty: line.Qty})
	}
	result, err := h.service.ReconcileReceipt(r.Context(), receipt)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleCloseEarly(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.CloseEarly(r.Context(), chi.URLParam(r, "id"), actor.EmployeeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": order.ID, "status": string(order.Status)})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fulfillment.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidReceipt), errors.Is(err, ErrUnknownLine):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, fulfillment.ErrInvalidTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("procurement request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
