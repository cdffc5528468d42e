package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockyard-retail/stockyard/internal/jobs"
	"github.com/stockyard-retail/stockyard/internal/reservation"
)

// ReservationSweepPayload carries scheduling metadata for one sweep pass.
type ReservationSweepPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewReservationSweepTask constructs an Asynq task for one sweep pass.
func NewReservationSweepTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(ReservationSweepPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReservationSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewReservationSweepHandler expires reservations whose TTL elapsed.
// The sweep claims each reservation before releasing, so overlapping
// passes are safe.
func NewReservationSweepHandler(manager *reservation.Manager, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskReservationSweep)
		var payload ReservationSweepPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		count, err := manager.SweepExpired(ctx, time.Now().UTC())
		if err != nil {
			return tracker.End(err)
		}
		if count > 0 {
			logger.Info("reservation sweep", slog.Int("expired", count))
		}
		return tracker.End(nil)
	}
}
