package reservation

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockyard-retail/stockyard/internal/platform/httpx"
	"github.com/stockyard-retail/stockyard/internal/shared"
	"github.com/stockyard-retail/stockyard/internal/stock"
)

// Handler exposes reservation lookup and release endpoints. Holds and
// commits only happen through order fulfillment.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
}

// NewHandler constructs reservation handler.
func NewHandler(logger *slog.Logger, manager *Manager) *Handler {
	return &Handler{logger: logger, manager: manager}
}

// MountRoutes registers reservation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reservations/{id}", h.handleGet)
	r.Post("/reservations/{id}/release", h.handleRelease)
	r.Post("/reservations/sweep", h.handleSweep)
}

type reservationResponse struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Location  string    `json:"location"`
	Qty       int64     `json:"qty"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func toReservationResponse(res Reservation) reservationResponse {
	return reservationResponse{
		ID:        res.ID,
		SKU:       res.SKU,
		Location:  res.Location,
		Qty:       res.Qty,
		OrderID:   res.OrderID,
		Status:    string(res.Status),
		ExpiresAt: res.ExpiresAt,
		CreatedAt: res.CreatedAt,
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if err := h.manager.Release(r.Context(), chi.URLParam(r, "id"), actor.EmployeeID); err != nil {
		h.respondError(w, err)
		return
	}
	res, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

// handleSweep runs one expiry pass immediately. The worker runs the
// same pass on a schedule; this endpoint exists for operators.
func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	count, err := h.manager.SweepExpired(r.Context(), time.Now().UTC())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"expired": count})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotActive):
		httpx.Problem(w, http.StatusConflict, "Not Active", err.Error())
	case errors.Is(err, ErrInvalidHold):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("reservation request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
