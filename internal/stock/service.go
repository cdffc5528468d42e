package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/shared"
)

// RepositoryPort abstracts record persistence for the store.
type RepositoryPort interface {
	Get(ctx context.Context, sku, location string) (Record, error)
	Upsert(ctx context.Context, rec Record) error
	List(ctx context.Context, location string) ([]Record, error)
	Checkpoint(ctx context.Context) (int64, error)
	SetCheckpoint(ctx context.Context, seq int64) error
}

// LedgerPort is the slice of the ledger the store drives.
type LedgerPort interface {
	Append(ctx context.Context, draft ledger.Draft) (ledger.Entry, error)
	Replay(ctx context.Context, fromSeq int64, fn func(ledger.Entry) error) error
}

// AppliedEvent notifies collaborators after an entry lands.
type AppliedEvent struct {
	Entry     ledger.Entry
	OnHand    int64
	Reserved  int64
	Available int64
}

// EventHandler receives applied events. Failures are logged, not
// propagated; the entry is already durable by the time handlers run.
type EventHandler interface {
	HandleStockApplied(ctx context.Context, evt AppliedEvent) error
}

// Store owns stock records and is the only admission path for
// stock-affecting ledger entries. Each (SKU, location) pair has its own
// mutual-exclusion scope so movements on different keys never contend.
type Store struct {
	repo    RepositoryPort
	ledger  LedgerPort
	locks   *shared.KeyMutex
	cache   *Cache
	events  EventHandler
	logger  *slog.Logger
	metrics MetricsPort
}

// MetricsPort counts movements rejected at admission. A nil port
// disables counting.
type MetricsPort interface {
	ObserveStockRejection()
}

// NewStore builds Store. Cache and events are optional.
func NewStore(repo RepositoryPort, lg LedgerPort, cache *Cache, events EventHandler, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:   repo,
		ledger: lg,
		locks:  shared.NewKeyMutex(),
		cache:  cache,
		events: events,
		logger: logger,
	}
}

// WithMetrics attaches a rejection counter.
func (s *Store) WithMetrics(metrics MetricsPort) *Store {
	s.metrics = metrics
	return s
}

// TryApply admits one entry draft. Under the per-key scope it reads the
// current record, checks the post-delta invariants, appends the ledger
// entry and updates the record. ErrInsufficientStock is returned, never
// clamped; callers decide retry, backoff or partial fulfillment.
func (s *Store) TryApply(ctx context.Context, draft ledger.Draft) (ledger.Entry, error) {
	if draft.SKU == "" || draft.Location == "" {
		return ledger.Entry{}, ledger.ErrInvalidDraft
	}
	key := RecordKey(draft.SKU, draft.Location)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	rec, err := s.repo.Get(ctx, draft.SKU, draft.Location)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return ledger.Entry{}, err
	}
	if errors.Is(err, ErrRecordNotFound) {
		rec = Record{SKU: draft.SKU, Location: draft.Location}
	}

	next := rec
	if err := apply(&next, draft.Kind, draft.Delta); err != nil {
		if s.metrics != nil {
			s.metrics.ObserveStockRejection()
		}
		return ledger.Entry{}, err
	}

	entry, err := s.ledger.Append(ctx, draft)
	if err != nil {
		return ledger.Entry{}, err
	}
	next.AppliedSeq = entry.Seq
	next.UpdatedAt = entry.OccurredAt
	if err := s.repo.Upsert(ctx, next); err != nil {
		// The entry is durable; the record catches up on the next
		// reconcile. Surface the error so the caller knows the write
		// path degraded.
		return ledger.Entry{}, fmt.Errorf("stock: record update after seq %d: %w", entry.Seq, err)
	}

	s.publish(ctx, entry, next)
	return entry, nil
}

// Availability returns the current record for a key. A missing record
// reads as zero stock rather than an error; POS clients poll this.
func (s *Store) Availability(ctx context.Context, sku, location string) (Record, error) {
	if s.cache != nil {
		if rec, ok := s.cache.Get(ctx, sku, location); ok {
			return rec, nil
		}
	}
	rec, err := s.repo.Get(ctx, sku, location)
	if errors.Is(err, ErrRecordNotFound) {
		return Record{SKU: sku, Location: location}, nil
	}
	if err != nil {
		return Record{}, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, rec)
	}
	return rec, nil
}

// List returns records, optionally scoped to one location.
func (s *Store) List(ctx context.Context, location string) ([]Record, error) {
	return s.repo.List(ctx, location)
}

// Reconcile rebuilds records by replaying the ledger from the last
// checkpoint. Location scopes the pass when non-empty. It acquires the
// same per-key scopes as TryApply and is idempotent: entries at or
// below a record's applied sequence are skipped.
func (s *Store) Reconcile(ctx context.Context, location string) error {
	checkpoint, err := s.repo.Checkpoint(ctx)
	if err != nil {
		return fmt.Errorf("stock: load checkpoint: %w", err)
	}
	maxSeq := checkpoint
	err = s.ledger.Replay(ctx, checkpoint+1, func(e ledger.Entry) error {
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
		if location != "" && e.Location != location {
			return nil
		}
		return s.replayEntry(ctx, e)
	})
	if err != nil {
		return err
	}
	// A location-scoped pass leaves the checkpoint alone: entries for
	// other locations above it have not been re-applied.
	if location == "" && maxSeq > checkpoint {
		if err := s.repo.SetCheckpoint(ctx, maxSeq); err != nil {
			return fmt.Errorf("stock: advance checkpoint: %w", err)
		}
	}
	return nil
}

// ReconcileLocations reconciles several locations concurrently. Keys
// are disjoint across locations so the passes never contend.
func (s *Store) ReconcileLocations(ctx context.Context, locations []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, loc := range locations {
		g.Go(func() error {
			return s.Reconcile(ctx, loc)
		})
	}
	return g.Wait()
}

func (s *Store) replayEntry(ctx context.Context, e ledger.Entry) error {
	key := RecordKey(e.SKU, e.Location)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	rec, err := s.repo.Get(ctx, e.SKU, e.Location)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, ErrRecordNotFound) {
		rec = Record{SKU: e.SKU, Location: e.Location}
	}
	if e.Seq <= rec.AppliedSeq {
		return nil
	}
	if err := apply(&rec, e.Kind, e.Delta); err != nil {
		// Entries were validated at admission; a failure here means the
		// record drifted. Report it instead of papering over.
		return fmt.Errorf("stock: replay seq %d for %s: %w", e.Seq, key, err)
	}
	rec.AppliedSeq = e.Seq
	rec.UpdatedAt = e.OccurredAt
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return err
	}
	s.publish(ctx, e, rec)
	return nil
}

func (s *Store) publish(ctx context.Context, entry ledger.Entry, rec Record) {
	if s.cache != nil {
		s.cache.Put(ctx, rec)
	}
	if s.events != nil {
		evt := AppliedEvent{Entry: entry, OnHand: rec.OnHand, Reserved: rec.Reserved, Available: rec.Available()}
		if err := s.events.HandleStockApplied(ctx, evt); err != nil {
			s.logger.Warn("stock applied event handler", slog.Any("error", err), slog.String("key", rec.Key()))
		}
	}
}
