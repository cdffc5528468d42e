package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, sku, location string) (Record, error) {
	if r == nil {
		return Record{}, errors.New("stock repository not initialised")
	}
	var rec Record
	err := r.pool.QueryRow(ctx, `SELECT sku, location, on_hand, reserved, applied_seq, updated_at
FROM stock_records WHERE sku=$1 AND location=$2`, sku, location).
		Scan(&rec.SKU, &rec.Location, &rec.OnHand, &rec.Reserved, &rec.AppliedSeq, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_records (sku, location, on_hand, reserved, applied_seq, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (sku, location) DO UPDATE SET on_hand=EXCLUDED.on_hand, reserved=EXCLUDED.reserved, applied_seq=EXCLUDED.applied_seq, updated_at=EXCLUDED.updated_at`,
		rec.SKU, rec.Location, rec.OnHand, rec.Reserved, rec.AppliedSeq, rec.UpdatedAt)
	return err
}

func (r *Repository) List(ctx context.Context, location string) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT sku, location, on_hand, reserved, applied_seq, updated_at
FROM stock_records WHERE ($1 = '' OR location = $1) ORDER BY location, sku`, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SKU, &rec.Location, &rec.OnHand, &rec.Reserved, &rec.AppliedSeq, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) Checkpoint(ctx context.Context) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM stock_checkpoints`).Scan(&seq)
	return seq, err
}

func (r *Repository) SetCheckpoint(ctx context.Context, seq int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock_checkpoints (seq, recorded_at) VALUES ($1, NOW())`, seq)
	return err
}
