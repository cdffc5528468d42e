package fulfillment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-retail/stockyard/internal/platform/httpx"
	"github.com/stockyard-retail/stockyard/internal/reservation"
	"github.com/stockyard-retail/stockyard/internal/shared"
	"github.com/stockyard-retail/stockyard/internal/stock"
)

// Handler exposes order lifecycle operations.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	idem     *shared.IdempotencyStore
}

// NewHandler constructs fulfillment handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// WithIdempotency enables Idempotency-Key enforcement on order creation.
func (h *Handler) WithIdempotency(store *shared.IdempotencyStore) *Handler {
	h.idem = store
	return h
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.handleCreate)
	r.Get("/orders", h.handleList)
	r.Get("/orders/{id}", h.handleGet)
	r.Post("/orders/{id}/lines", h.handleAddLine)
	r.Delete("/orders/{id}/lines/{lineID}", h.handleRemoveLine)
	r.Post("/orders/{id}/reserve", h.handleReserve)
	r.Post("/orders/{id}/commit", h.handleCommit)
	r.Post("/orders/{id}/cancel", h.handleCancel)
	r.Post("/orders/{id}/compensate", h.handleCompensate)
}

type lineRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Location string `json:"location" validate:"required"`
	Qty      int64  `json:"qty" validate:"required,gt=0"`
}

type createRequest struct {
	Direction string        `json:"direction" validate:"required,oneof=INBOUND OUTBOUND"`
	PartyRef  string        `json:"party_ref"`
	Note      string        `json:"note"`
	Lines     []lineRequest `json:"lines" validate:"dive"`
}

type lineResponse struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Location      string `json:"location"`
	Qty           int64  `json:"qty"`
	ReceivedQty   int64  `json:"received_qty,omitempty"`
	Status        string `json:"status"`
	ReservationID string `json:"reservation_id,omitempty"`
}

type statusChangeResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
}

type orderResponse struct {
	ID        string                 `json:"id"`
	Direction string                 `json:"direction"`
	Status    string                 `json:"status"`
	PartyRef  string                 `json:"party_ref,omitempty"`
	Note      string                 `json:"note,omitempty"`
	Lines     []lineResponse         `json:"lines"`
	History   []statusChangeResponse `json:"history,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func toOrderResponse(order Order) orderResponse {
	resp := orderResponse{
		ID:        order.ID,
		Direction: string(order.Direction),
		Status:    string(order.Status),
		PartyRef:  order.PartyRef,
		Note:      order.Note,
		Lines:     make([]lineResponse, 0, len(order.Lines)),
		CreatedAt: order.CreatedAt,
		UpdatedAt: order.UpdatedAt,
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:            line.ID,
			SKU:           line.SKU,
			Location:      line.Location,
			Qty:           line.Qty,
			ReceivedQty:   line.ReceivedQty,
			Status:        string(line.Status),
			ReservationID: line.ReservationID,
		})
	}
	for _, change := range order.History {
		resp.History = append(resp.History, statusChangeResponse{Status: string(change.Status), At: change.At})
	}
	return resp
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
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
			if err := h.idem.CheckAndInsert(r.Context(), key, "orders"); err != nil {
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
	input := CreateInput{
		Direction: Direction(req.Direction),
		PartyRef:  req.PartyRef,
		Note:      req.Note,
		ActorID:   actor.EmployeeID,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, LineInput{SKU: line.SKU, Location: line.Location, Qty: line.Qty})
	}
	order, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("limit"))
	orders, pagination, err := h.service.List(r.Context(), Direction(q.Get("direction")), page, perPage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, toOrderResponse(order))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"orders": payload,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleAddLine(w http.ResponseWriter, r *http.Request) {
	var req lineRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	line, err := h.service.AddLine(r.Context(), chi.URLParam(r, "id"), LineInput{SKU: req.SKU, Location: req.Location, Qty: req.Qty})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lineResponse{
		ID:       line.ID,
		SKU:      line.SKU,
		Location: line.Location,
		Qty:      line.Qty,
		Status:   string(line.Status),
	})
}

func (h *Handler) handleRemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "line id must be an integer")
		return
	}
	if err := h.service.RemoveLine(r.Context(), chi.URLParam(r, "id"), lineID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reserveRequest struct {
	Policy string `json:"policy" validate:"required,oneof=ALL_OR_NOTHING BEST_EFFORT"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Reserve(r.Context(), chi.URLParam(r, "id"), Policy(req.Policy), actor.EmployeeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleCommit(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Commit(r.Context(), chi.URLParam(r, "id"), actor.EmployeeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	order, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), actor.EmployeeID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

type compensateRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Location string `json:"location" validate:"required"`
	Qty      int64  `json:"qty" validate:"required,gt=0"`
	Reason   string `json:"reason"`
}

func (h *Handler) handleCompensate(w http.ResponseWriter, r *http.Request) {
	var req compensateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.PostCompensation(r.Context(), CompensationInput{
		OrderID:  chi.URLParam(r, "id"),
		SKU:      req.SKU,
		Location: req.Location,
		Qty:      req.Qty,
		ActorID:  actor.EmployeeID,
		Reason:   req.Reason,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"seq": entry.Seq})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, reservation.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Transition", err.Error())
	case errors.Is(err, ErrPartialStock):
		httpx.Problem(w, http.StatusConflict, "Partial Stock", err.Error())
	case errors.Is(err, stock.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrFulfillmentConflict):
		httpx.Problem(w, http.StatusConflict, "Fulfillment Conflict", err.Error())
	default:
		h.logger.Error("fulfillment request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
