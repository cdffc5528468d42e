package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockyard-retail/stockyard/internal/platform/httpx"
)

// Handler exposes the ledger audit query.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger", h.handleList)
}

type entryResponse struct {
	Seq        int64     `json:"seq"`
	SKU        string    `json:"sku"`
	Location   string    `json:"location"`
	Delta      int64     `json:"delta"`
	Kind       string    `json:"kind"`
	Ref        string    `json:"ref,omitempty"`
	Tag        string    `json:"tag,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		SKU:      q.Get("sku"),
		Location: q.Get("location"),
	}
	if v := q.Get("after_seq"); v != "" {
		seq, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "after_seq must be an integer")
			return
		}
		filter.AfterSeq = seq
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	for param, dst := range map[string]*time.Time{"from": &filter.From, "to": &filter.To} {
		if v := q.Get(param); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", param+" must be RFC3339")
				return
			}
			*dst = t
		}
	}

	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list ledger entries", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	payload := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		payload = append(payload, entryResponse{
			Seq:        e.Seq,
			SKU:        e.SKU,
			Location:   e.Location,
			Delta:      e.Delta,
			Kind:       string(e.Kind),
			Ref:        e.Ref,
			Tag:        e.Tag,
			ActorID:    e.ActorID,
			OccurredAt: e.OccurredAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": payload})
}
