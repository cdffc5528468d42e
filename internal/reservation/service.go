package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockyard-retail/stockyard/internal/ledger"
)

// RepositoryPort abstracts reservation persistence.
type RepositoryPort interface {
	Create(ctx context.Context, res Reservation) error
	Get(ctx context.Context, id string) (Reservation, error)
	// Transition moves the reservation from one status to another and
	// reports whether the claim won. A lost claim means another caller
	// moved it first; terminal states never transition again.
	Transition(ctx context.Context, id string, from, to Status) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]Reservation, error)
}

// StockPort is the admission path for hold and release entries.
type StockPort interface {
	TryApply(ctx context.Context, draft ledger.Draft) (ledger.Entry, error)
}

// HoldInput describes a hold request.
type HoldInput struct {
	SKU      string
	Location string
	Qty      int64
	OrderID  string
	TTL      time.Duration
	ActorID  string
}

// Manager owns the reservation lifecycle. Reserved quantity lives on
// the stock record; the manager only ever moves it through the stock
// store so every change lands in the ledger.
type Manager struct {
	repo       RepositoryPort
	stock      StockPort
	defaultTTL time.Duration
	logger     *slog.Logger
	metrics    MetricsPort
}

// MetricsPort counts reservations expired by the sweep. A nil port
// disables counting.
type MetricsPort interface {
	ObserveExpiredReservations(n int)
}

// NewManager builds Manager. defaultTTL applies when a hold carries no TTL.
func NewManager(repo RepositoryPort, stock StockPort, defaultTTL time.Duration, logger *slog.Logger) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, stock: stock, defaultTTL: defaultTTL, logger: logger}
}

// WithMetrics attaches a sweep counter.
func (m *Manager) WithMetrics(metrics MetricsPort) *Manager {
	m.metrics = metrics
	return m
}

// Hold atomically increments the record's reserved quantity, bounded by
// available stock, and creates the reservation. ErrInsufficientStock
// from the stock store surfaces unchanged.
func (m *Manager) Hold(ctx context.Context, input HoldInput) (Reservation, error) {
	if input.SKU == "" || input.Location == "" || input.Qty <= 0 || input.OrderID == "" {
		return Reservation{}, ErrInvalidHold
	}
	ttl := input.TTL
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	now := time.Now().UTC()
	res := Reservation{
		ID:        uuid.NewString(),
		SKU:       input.SKU,
		Location:  input.Location,
		Qty:       input.Qty,
		OrderID:   input.OrderID,
		Status:    StatusActive,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := m.stock.TryApply(ctx, ledger.Draft{
		SKU:      input.SKU,
		Location: input.Location,
		Delta:    input.Qty,
		Kind:     ledger.KindReservationHold,
		Ref:      input.OrderID,
		ActorID:  input.ActorID,
	}); err != nil {
		return Reservation{}, err
	}
	if err := m.repo.Create(ctx, res); err != nil {
		// The hold landed but the row did not; give the quantity back
		// with a compensating release before reporting failure.
		if _, relErr := m.stock.TryApply(ctx, ledger.Draft{
			SKU:      input.SKU,
			Location: input.Location,
			Delta:    -input.Qty,
			Kind:     ledger.KindReservationRelease,
			Ref:      input.OrderID,
			ActorID:  input.ActorID,
		}); relErr != nil {
			m.logger.Error("compensating release after failed create", slog.Any("error", relErr), slog.String("order_id", input.OrderID))
		}
		return Reservation{}, fmt.Errorf("reservation: create: %w", err)
	}
	return res, nil
}

// Release returns the held quantity and marks the reservation Released.
// Idempotent: releasing an already-terminal reservation is a no-op.
func (m *Manager) Release(ctx context.Context, id, actorID string) error {
	return m.settle(ctx, id, actorID, StatusReleased)
}

// Commit turns the hold into a sale: the stock store decrements both
// on-hand and reserved under one entry. A stock failure here means
// state drifted between reserve and commit; the claim is handed back so
// the reservation stays Active for the caller to handle.
func (m *Manager) Commit(ctx context.Context, id, actorID string) (ledger.Entry, error) {
	res, err := m.repo.Get(ctx, id)
	if err != nil {
		return ledger.Entry{}, err
	}
	claimed, err := m.repo.Transition(ctx, id, StatusActive, StatusCommitted)
	if err != nil {
		return ledger.Entry{}, err
	}
	if !claimed {
		return ledger.Entry{}, ErrNotActive
	}
	entry, err := m.stock.TryApply(ctx, ledger.Draft{
		SKU:      res.SKU,
		Location: res.Location,
		Delta:    -res.Qty,
		Kind:     ledger.KindSale,
		Ref:      res.OrderID,
		ActorID:  actorID,
	})
	if err != nil {
		if _, revErr := m.repo.Transition(ctx, id, StatusCommitted, StatusActive); revErr != nil {
			m.logger.Error("revert claim after failed commit", slog.Any("error", revErr), slog.String("reservation_id", id))
		}
		return ledger.Entry{}, err
	}
	return entry, nil
}

// SweepExpired moves Active reservations past their expiry to Expired
// and returns the held quantity. Safe to run concurrently with holds,
// releases and commits: the status claim decides the winner, so an
// already-settled reservation is skipped. Returns the released count.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	const batch = 500
	expired, err := m.repo.ListExpired(ctx, now, batch)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, res := range expired {
		released, err := m.expire(ctx, res)
		if err != nil {
			return count, err
		}
		if released {
			count++
		}
	}
	if m.metrics != nil {
		m.metrics.ObserveExpiredReservations(count)
	}
	return count, nil
}

// Get loads one reservation.
func (m *Manager) Get(ctx context.Context, id string) (Reservation, error) {
	return m.repo.Get(ctx, id)
}

// ListByOrder loads every reservation linked to the order.
func (m *Manager) ListByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	return m.repo.ListByOrder(ctx, orderID)
}

func (m *Manager) settle(ctx context.Context, id, actorID string, to Status) error {
	res, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if res.Status.Terminal() {
		return nil
	}
	claimed, err := m.repo.Transition(ctx, id, StatusActive, to)
	if err != nil {
		return err
	}
	if !claimed {
		// Lost the claim to a concurrent settle; nothing left to do.
		return nil
	}
	if _, err := m.stock.TryApply(ctx, ledger.Draft{
		SKU:      res.SKU,
		Location: res.Location,
		Delta:    -res.Qty,
		Kind:     ledger.KindReservationRelease,
		Ref:      res.OrderID,
		ActorID:  actorID,
	}); err != nil {
		return fmt.Errorf("reservation: release %s: %w", id, err)
	}
	return nil
}

func (m *Manager) expire(ctx context.Context, res Reservation) (bool, error) {
	claimed, err := m.repo.Transition(ctx, res.ID, StatusActive, StatusExpired)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	if _, err := m.stock.TryApply(ctx, ledger.Draft{
		SKU:      res.SKU,
		Location: res.Location,
		Delta:    -res.Qty,
		Kind:     ledger.KindReservationRelease,
		Ref:      res.OrderID,
		ActorID:  "sweep",
	}); err != nil {
		return false, fmt.Errorf("reservation: expire %s: %w", res.ID, err)
	}
	return true, nil
}
