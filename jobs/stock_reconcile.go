package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockyard-retail/stockyard/internal/jobs"
	"github.com/stockyard-retail/stockyard/internal/stock"
)

// StockReconcilePayload scopes a reconcile pass. An empty location
// replays every key and advances the checkpoint.
type StockReconcilePayload struct {
	Location string `json:"location,omitempty"`
}

// NewStockReconcileTask constructs an Asynq task for a reconcile pass.
func NewStockReconcileTask(location string) (*asynq.Task, error) {
	body, err := json.Marshal(StockReconcilePayload{Location: location})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockReconcile, body, asynq.Queue(QueueDefault)), nil
}

// NewStockReconcileHandler replays ledger entries above the checkpoint
// into stock records. Replay skips entries already applied, so the pass
// is idempotent and safe alongside live traffic.
func NewStockReconcileHandler(store *stock.Store, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskStockReconcile)
		var payload StockReconcilePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := store.Reconcile(ctx, payload.Location); err != nil {
			logger.Error("stock reconcile", slog.Any("error", err), slog.String("location", payload.Location))
			return tracker.End(err)
		}
		return tracker.End(nil)
	}
}
