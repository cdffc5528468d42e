package ledger

import (
	"context"
	"sync"
)

// MemoryRepository keeps entries in process memory. It backs tests and
// the embedded mode used by single-till deployments without PostgreSQL.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []Entry
	bySeq   map[int64]struct{}
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bySeq: make(map[int64]struct{})}
}

func (r *MemoryRepository) Insert(ctx context.Context, entry Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bySeq[entry.Seq]; ok {
		return ErrSequenceConflict
	}
	r.bySeq[entry.Seq] = struct{}{}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *MemoryRepository) MaxSeq(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var max int64
	for _, e := range r.entries {
		if e.Seq > max {
			max = e.Seq
		}
	}
	return max, nil
}

func (r *MemoryRepository) Scan(ctx context.Context, fromSeq int64, fn func(Entry) error) error {
	for _, e := range r.snapshot() {
		if e.Seq < fromSeq {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	result := []Entry{}
	for _, e := range r.snapshot() {
		if filter.SKU != "" && e.SKU != filter.SKU {
			continue
		}
		if filter.Location != "" && e.Location != filter.Location {
			continue
		}
		if !filter.From.IsZero() && e.OccurredAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && e.OccurredAt.After(filter.To) {
			continue
		}
		if e.Seq <= filter.AfterSeq {
			continue
		}
		result = append(result, e)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

func (r *MemoryRepository) HasEntriesFor(ctx context.Context, sku string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.SKU == sku {
			return true, nil
		}
	}
	return false, nil
}

// snapshot copies entries in ascending sequence order. Appends always
// grow the slice in sequence order because the service serialises them.
func (r *MemoryRepository) snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
