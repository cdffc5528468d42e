package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockyard-retail/stockyard/internal/platform/httpx"
)

// Handler exposes the SKU master.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/skus", h.handleCreate)
	r.Get("/skus", h.handleList)
	r.Get("/skus/{code}", h.handleGet)
	r.Put("/skus/{code}", h.handleUpdate)
}

type skuRequest struct {
	Code          string `json:"code" validate:"required,max=64"`
	Name          string `json:"name"`
	UnitOfMeasure string `json:"unit_of_measure" validate:"required,max=16"`
}

type skuUpdateRequest struct {
	Name          string `json:"name"`
	UnitOfMeasure string `json:"unit_of_measure" validate:"max=16"`
}

type skuResponse struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	UnitOfMeasure string `json:"unit_of_measure"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req skuRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sku, err := h.service.Create(r.Context(), SKU{Code: req.Code, Name: req.Name, UnitOfMeasure: req.UnitOfMeasure})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, skuResponse{Code: sku.Code, Name: sku.Name, UnitOfMeasure: sku.UnitOfMeasure})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("limit"))
	skus, pagination, err := h.service.List(r.Context(), page, perPage)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payload := make([]skuResponse, 0, len(skus))
	for _, sku := range skus {
		payload = append(payload, skuResponse{Code: sku.Code, Name: sku.Name, UnitOfMeasure: sku.UnitOfMeasure})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"skus": payload,
		"pagination": map[string]int{
			"page":        pagination.Page,
			"per_page":    pagination.PerPage,
			"total":       pagination.Total,
			"total_pages": pagination.TotalPages,
		},
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sku, err := h.service.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, skuResponse{Code: sku.Code, Name: sku.Name, UnitOfMeasure: sku.UnitOfMeasure})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req skuUpdateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sku, err := h.service.Update(r.Context(), chi.URLParam(r, "code"), req.Name, req.UnitOfMeasure)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, skuResponse{Code: sku.Code, Name: sku.Name, UnitOfMeasure: sku.UnitOfMeasure})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrSKUFrozen):
		httpx.Problem(w, http.StatusConflict, "SKU Frozen", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
