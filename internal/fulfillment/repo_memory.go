package fulfillment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps orders in process memory for tests and the
// embedded mode.
type MemoryRepository struct {
	mu         sync.Mutex
	orders     map[string]Order
	nextLineID int64
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]Order)}
}

func (r *MemoryRepository) CreateOrder(ctx context.Context, order Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *MemoryRepository) GetOrder(ctx context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(order), nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	order.UpdatedAt = at
	order.History = append(order.History, StatusChange{Status: status, At: at})
	r.orders[id] = order
	return nil
}

func (r *MemoryRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[line.OrderID]
	if !ok {
		return 0, ErrNotFound
	}
	r.nextLineID++
	line.ID = r.nextLineID
	order.Lines = append(order.Lines, line)
	r.orders[line.OrderID] = order
	return line.ID, nil
}

func (r *MemoryRepository) DeleteLine(ctx context.Context, orderID string, lineID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	for i, line := range order.Lines {
		if line.ID == lineID {
			order.Lines = append(order.Lines[:i], order.Lines[i+1:]...)
			r.orders[orderID] = order
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) UpdateLine(ctx context.Context, line Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[line.OrderID]
	if !ok {
		return ErrNotFound
	}
	for i := range order.Lines {
		if order.Lines[i].ID == line.ID {
			order.Lines[i] = line
			r.orders[line.OrderID] = order
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRepository) ListOrders(ctx context.Context, direction Direction, page, perPage int) ([]Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := []Order{}
	for _, order := range r.orders {
		if direction != "" && order.Direction != direction {
			continue
		}
		all = append(all, cloneOrder(order))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := len(all)
	start := (page - 1) * perPage
	if start >= total {
		return []Order{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func cloneOrder(order Order) Order {
	out := order
	out.Lines = make([]Line, len(order.Lines))
	copy(out.Lines, order.Lines)
	out.History = make([]StatusChange, len(order.History))
	copy(out.History, order.History)
	return out
}
