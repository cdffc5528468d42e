package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists reservations in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reservationColumns = `id, sku, location, qty, order_id, status, expires_at, created_at, updated_at`

func (r *Repository) Create(ctx context.Context, res Reservation) error {
	if r == nil {
		return errors.New("reservation repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO reservations (id, sku, location, qty, order_id, status, expires_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		res.ID, res.SKU, res.Location, res.Qty, res.OrderID, string(res.Status), res.ExpiresAt, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (Reservation, error) {
	var res Reservation
	var status string
	err := r.pool.QueryRow(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id=$1`, id).
		Scan(&res.ID, &res.SKU, &res.Location, &res.Qty, &res.OrderID, &status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, ErrNotFound
		}
		return Reservation{}, err
	}
	res.Status = Status(status)
	return res, nil
}

func (r *Repository) Transition(ctx context.Context, id string, from, to Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE reservations SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`,
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time, limit int) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
WHERE status=$1 AND expires_at <= $2 ORDER BY expires_at ASC LIMIT $3`, string(StatusActive), now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+reservationColumns+` FROM reservations
WHERE order_id=$1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	result := []Reservation{}
	for rows.Next() {
		var res Reservation
		var status string
		if err := rows.Scan(&res.ID, &res.SKU, &res.Location, &res.Qty, &res.OrderID, &status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		res.Status = Status(status)
		result = append(result, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
