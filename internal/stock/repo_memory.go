package stock

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps records in process memory. It backs tests and
// the embedded single-till mode alongside ledger.MemoryRepository.
type MemoryRepository struct {
	mu         sync.RWMutex
	records    map[string]Record
	checkpoint int64
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]Record)}
}

func (r *MemoryRepository) Get(ctx context.Context, sku, location string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[RecordKey(sku, location)]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Key()] = rec
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, location string) ([]Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records := []Record{}
	for _, rec := range r.records {
		if location != "" && rec.Location != location {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Location != records[j].Location {
			return records[i].Location < records[j].Location
		}
		return records[i].SKU < records[j].SKU
	})
	return records, nil
}

func (r *MemoryRepository) Checkpoint(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkpoint, nil
}

func (r *MemoryRepository) SetCheckpoint(ctx context.Context, seq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seq > r.checkpoint {
		r.checkpoint = seq
	}
	return nil
}

// Reset drops all records and the checkpoint so a reconcile rebuilds
// state from the first ledger entry. Used after detected drift.
func (r *MemoryRepository) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]Record)
	r.checkpoint = 0
	return nil
}
