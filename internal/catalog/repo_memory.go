package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps SKUs in process memory for tests and the
// embedded mode.
type MemoryRepository struct {
	mu   sync.RWMutex
	skus map[string]SKU
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{skus: make(map[string]SKU)}
}

func (r *MemoryRepository) Create(ctx context.Context, sku SKU) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skus[sku.Code]; ok {
		return ErrDuplicate
	}
	r.skus[sku.Code] = sku
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, code string) (SKU, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sku, ok := r.skus[code]
	if !ok {
		return SKU{}, ErrNotFound
	}
	return sku, nil
}

func (r *MemoryRepository) Update(ctx context.Context, sku SKU) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skus[sku.Code]; !ok {
		return ErrNotFound
	}
	r.skus[sku.Code] = sku
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, page, perPage int) ([]SKU, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]SKU, 0, len(r.skus))
	for _, sku := range r.skus {
		all = append(all, sku)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return []SKU{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}
