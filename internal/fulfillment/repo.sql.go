package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockyard-retail/stockyard/internal/platform/db"
)

// Repository persists orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateOrder(ctx context.Context, order Order) error {
	if r == nil {
		return errors.New("fulfillment repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (id, direction, status, party_ref, actor_id, note, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			order.ID, string(order.Direction), string(order.Status), order.PartyRef, order.ActorID, order.Note, order.CreatedAt, order.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `INSERT INTO order_status_history (order_id, status, changed_at) VALUES ($1,$2,$3)`,
			order.ID, string(order.Status), order.CreatedAt)
		return err
	})
}

func (r *Repository) GetOrder(ctx context.Context, id string) (Order, error) {
	var order Order
	var direction, status string
	err := r.pool.QueryRow(ctx, `SELECT id, direction, status, party_ref, actor_id, note, created_at, updated_at
FROM orders WHERE id=$1`, id).
		Scan(&order.ID, &direction, &status, &order.PartyRef, &order.ActorID, &order.Note, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	order.Direction = Direction(direction)
	order.Status = Status(status)

	lines, err := r.loadLines(ctx, id)
	if err != nil {
		return Order{}, err
	}
	order.Lines = lines

	history, err := r.loadHistory(ctx, id)
	if err != nil {
		return Order{}, err
	}
	order.History = history
	return order, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=$3 WHERE id=$1`, id, string(status), at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		_, err = tx.Exec(ctx, `INSERT INTO order_status_history (order_id, status, changed_at) VALUES ($1,$2,$3)`,
			id, string(status), at)
		return err
	})
}

func (r *Repository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO order_lines (order_id, sku, location, qty, received_qty, status, reservation_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		line.OrderID, line.SKU, line.Location, line.Qty, line.ReceivedQty, string(line.Status), line.ReservationID).Scan(&id)
	return id, err
}

func (r *Repository) DeleteLine(ctx context.Context, orderID string, lineID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM order_lines WHERE order_id=$1 AND id=$2`, orderID, lineID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) UpdateLine(ctx context.Context, line Line) error {
	tag, err := r.pool.Exec(ctx, `UPDATE order_lines SET qty=$3, received_qty=$4, status=$5, reservation_id=$6 WHERE order_id=$1 AND id=$2`,
		line.OrderID, line.ID, line.Qty, line.ReceivedQty, string(line.Status), line.ReservationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListOrders(ctx context.Context, direction Direction, page, perPage int) ([]Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE ($1 = '' OR direction = $1)`, string(direction)).Scan(&total); err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * perPage
	rows, err := r.pool.Query(ctx, `SELECT id, direction, status, party_ref, actor_id, note, created_at, updated_at
FROM orders WHERE ($1 = '' OR direction = $1) ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(direction), perPage, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	orders := []Order{}
	for rows.Next() {
		var order Order
		var dir, status string
		if err := rows.Scan(&order.ID, &dir, &status, &order.PartyRef, &order.ActorID, &order.Note, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, 0, err
		}
		order.Direction = Direction(dir)
		order.Status = Status(status)
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range orders {
		lines, err := r.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Lines = lines
	}
	return orders, total, nil
}

func (r *Repository) loadLines(ctx context.Context, orderID string) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, sku, location, qty, received_qty, status, reservation_id
FROM order_lines WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		var status string
		if err := rows.Scan(&line.ID, &line.OrderID, &line.SKU, &line.Location, &line.Qty, &line.ReceivedQty, &status, &line.ReservationID); err != nil {
			return nil, err
		}
		line.Status = LineStatus(status)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *Repository) loadHistory(ctx context.Context, orderID string) ([]StatusChange, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, changed_at FROM order_status_history WHERE order_id=$1 ORDER BY changed_at ASC, id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	history := []StatusChange{}
	for rows.Next() {
		var change StatusChange
		var status string
		if err := rows.Scan(&status, &change.At); err != nil {
			return nil, err
		}
		change.Status = Status(status)
		history = append(history, change)
	}
	return history, rows.Err()
}
