package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReservationSweep expires reservations past their TTL.
	TaskReservationSweep = "reservation:sweep"
	// TaskStockReconcile replays the ledger into stock records.
	TaskStockReconcile = "stock:reconcile"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)
