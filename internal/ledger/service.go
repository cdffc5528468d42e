package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RepositoryPort abstracts entry persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, entry Entry) error
	MaxSeq(ctx context.Context) (int64, error)
	Scan(ctx context.Context, fromSeq int64, fn func(Entry) error) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
	HasEntriesFor(ctx context.Context, sku string) (bool, error)
}

// MetricsPort counts appended entries and retried collisions. A nil
// port disables counting.
type MetricsPort interface {
	ObserveLedgerEntry(kind string)
	ObserveSequenceConflict()
}

// Service assigns sequence numbers and persists ledger entries. The
// sequence counter is a single monotonic counter guarded by its own
// mutex, seeded lazily from the repository's high-water mark so that a
// restarted instance continues the gap-free numbering.
type Service struct {
	repo    RepositoryPort
	metrics MetricsPort

	mu      sync.Mutex
	nextSeq int64
	seeded  bool
}

const appendAttempts = 5

// NewService builds Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// WithMetrics attaches an entry counter.
func (s *Service) WithMetrics(metrics MetricsPort) *Service {
	s.metrics = metrics
	return s
}

// Append assigns the next sequence number atomically and persists the
// entry. Sequence collisions with another appender (a second instance
// sharing the same store) are retried with a fresh sequence a bounded
// number of times before ErrSequenceConflict surfaces.
func (s *Service) Append(ctx context.Context, draft Draft) (Entry, error) {
	if err := validateDraft(draft); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		SKU:        draft.SKU,
		Location:   draft.Location,
		Delta:      draft.Delta,
		Kind:       draft.Kind,
		Ref:        draft.Ref,
		Tag:        draft.Tag,
		ActorID:    draft.ActorID,
		OccurredAt: time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for attempt := 0; attempt < appendAttempts; attempt++ {
		if !s.seeded {
			max, err := s.repo.MaxSeq(ctx)
			if err != nil {
				return Entry{}, fmt.Errorf("ledger: seed sequence: %w", err)
			}
			s.nextSeq = max + 1
			s.seeded = true
		}
		entry.Seq = s.nextSeq
		err := s.repo.Insert(ctx, entry)
		if err == nil {
			s.nextSeq++
			if s.metrics != nil {
				s.metrics.ObserveLedgerEntry(string(entry.Kind))
			}
			return entry, nil
		}
		if errors.Is(err, ErrSequenceConflict) {
			// Another appender took the number; resync from the store.
			s.seeded = false
			if s.metrics != nil {
				s.metrics.ObserveSequenceConflict()
			}
			continue
		}
		return Entry{}, err
	}
	return Entry{}, ErrSequenceConflict
}

// Replay produces entries in ascending sequence order starting at
// fromSeq (inclusive), invoking fn for each. Every successful Append is
// visible to subsequent replays. Returning an error from fn stops the
// scan; a restarted scan from the last seen sequence resumes it.
func (s *Service) Replay(ctx context.Context, fromSeq int64, fn func(Entry) error) error {
	return s.repo.Scan(ctx, fromSeq, fn)
}

// List returns a sequence-ordered page of entries for audit and
// reporting, filterable by SKU, location and date range.
func (s *Service) List(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// HasEntriesFor reports whether any entry references the SKU. The
// catalog uses it to freeze SKUs once they appear in the ledger.
func (s *Service) HasEntriesFor(ctx context.Context, sku string) (bool, error) {
	return s.repo.HasEntriesFor(ctx, sku)
}
