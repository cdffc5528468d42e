package reservation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps reservations in process memory for tests and
// the embedded mode.
type MemoryRepository struct {
	mu           sync.Mutex
	reservations map[string]Reservation
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{reservations: make(map[string]Reservation)}
}

func (r *MemoryRepository) Create(ctx context.Context, res Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reservations[res.ID] = res
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	return res, nil
}

func (r *MemoryRepository) Transition(ctx context.Context, id string, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.reservations[id]
	if !ok {
		return false, ErrNotFound
	}
	if res.Status != from {
		return false, nil
	}
	res.Status = to
	res.UpdatedAt = time.Now().UTC()
	r.reservations[id] = res
	return true, nil
}

func (r *MemoryRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []Reservation{}
	for _, res := range r.reservations {
		if res.Status == StatusActive && !res.ExpiresAt.After(now) {
			result = append(result, res)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) ListByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []Reservation{}
	for _, res := range r.reservations {
		if res.OrderID == orderID {
			result = append(result, res)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}
