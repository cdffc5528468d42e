package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists SKUs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, sku SKU) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO skus (code, name, unit_of_measure, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5)`, sku.Code, sku.Name, sku.UnitOfMeasure, sku.CreatedAt, sku.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, code string) (SKU, error) {
	var sku SKU
	err := r.pool.QueryRow(ctx, `SELECT code, name, unit_of_measure, created_at, updated_at FROM skus WHERE code=$1`, code).
		Scan(&sku.Code, &sku.Name, &sku.UnitOfMeasure, &sku.CreatedAt, &sku.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SKU{}, ErrNotFound
		}
		return SKU{}, err
	}
	return sku, nil
}

func (r *Repository) Update(ctx context.Context, sku SKU) error {
	tag, err := r.pool.Exec(ctx, `UPDATE skus SET name=$2, unit_of_measure=$3, updated_at=$4 WHERE code=$1`,
		sku.Code, sku.Name, sku.UnitOfMeasure, sku.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, page, perPage int) ([]SKU, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM skus`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT code, name, unit_of_measure, created_at, updated_at
FROM skus ORDER BY code ASC LIMIT $1 OFFSET $2`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	skus := []SKU{}
	for rows.Next() {
		var sku SKU
		if err := rows.Scan(&sku.Code, &sku.Name, &sku.UnitOfMeasure, &sku.CreatedAt, &sku.UpdatedAt); err != nil {
			return nil, 0, err
		}
		skus = append(skus, sku)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return skus, total, nil
}
