package stock

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/platform/httpx"
	"github.com/stockyard-retail/stockyard/internal/shared"
)

// Handler exposes stock queries, manual adjustments and reconcile.
type Handler struct {
	logger   *slog.Logger
	store    *Store
	validate *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store, validate: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock", h.handleList)
	r.Get("/stock/{sku}/{location}", h.handleAvailability)
	r.Post("/stock/adjustments", h.handleAdjustment)
	r.Post("/stock/reconcile", h.handleReconcile)
}

type recordResponse struct {
	SKU       string `json:"sku"`
	Location  string `json:"location"`
	OnHand    int64  `json:"on_hand"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
}

func toRecordResponse(rec Record) recordResponse {
	return recordResponse{
		SKU:       rec.SKU,
		Location:  rec.Location,
		OnHand:    rec.OnHand,
		Reserved:  rec.Reserved,
		Available: rec.Available(),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		h.logger.Error("list stock records", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	payload := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		payload = append(payload, toRecordResponse(rec))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"records": payload})
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	sku := chi.URLParam(r, "sku")
	location := chi.URLParam(r, "location")
	rec, err := h.store.Availability(r.Context(), sku, location)
	if err != nil {
		h.logger.Error("stock availability", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toRecordResponse(rec))
}

type adjustmentRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Location string `json:"location" validate:"required"`
	Delta    int64  `json:"delta" validate:"required"`
	Ref      string `json:"ref"`
	Reason   string `json:"reason"`
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.store.TryApply(r.Context(), ledger.Draft{
		SKU:      req.SKU,
		Location: req.Location,
		Delta:    req.Delta,
		Kind:     ledger.KindAdjustment,
		Ref:      req.Ref,
		Tag:      req.Reason,
		ActorID:  actor.EmployeeID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"seq": entry.Seq})
}

type reconcileRequest struct {
	Location string `json:"location"`
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
			return
		}
	}
	if err := h.store.Reconcile(r.Context(), req.Location); err != nil {
		h.logger.Error("reconcile stock", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrInvalidDraft):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ledger.ErrSequenceConflict):
		httpx.Problem(w, http.StatusServiceUnavailable, "Ledger Contention", "append contention persisted, retry")
	default:
		h.logger.Error("apply stock entry", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
