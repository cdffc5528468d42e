package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO ledger_entries (seq, sku, location, delta, kind, ref, tag, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, entry.Seq, entry.SKU, entry.Location, entry.Delta, string(entry.Kind), entry.Ref, entry.Tag, entry.ActorID, entry.OccurredAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSequenceConflict
		}
		return err
	}
	return nil
}

func (r *Repository) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ledger_entries`).Scan(&seq)
	return seq, err
}

func (r *Repository) Scan(ctx context.Context, fromSeq int64, fn func(Entry) error) error {
	rows, err := r.pool.Query(ctx, `SELECT seq, sku, location, delta, kind, ref, tag, actor_id, occurred_at
FROM ledger_entries WHERE seq >= $1 ORDER BY seq ASC`, fromSeq)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var entry Entry
		var kind string
		if err := rows.Scan(&entry.Seq, &entry.SKU, &entry.Location, &entry.Delta, &kind, &entry.Ref, &entry.Tag, &entry.ActorID, &entry.OccurredAt); err != nil {
			return err
		}
		entry.Kind = Kind(kind)
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (r *Repository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `SELECT seq, sku, location, delta, kind, ref, tag, actor_id, occurred_at
FROM ledger_entries
WHERE ($1 = '' OR sku = $1)
  AND ($2 = '' OR location = $2)
  AND occurred_at BETWEEN COALESCE(NULLIF($3, '0001-01-01'::timestamptz), '-infinity') AND COALESCE(NULLIF($4, '0001-01-01'::timestamptz), 'infinity')
  AND seq > $5
ORDER BY seq ASC
LIMIT $6`, filter.SKU, filter.Location, filter.From, filter.To, filter.AfterSeq, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		var kind string
		if err := rows.Scan(&entry.Seq, &entry.SKU, &entry.Location, &entry.Delta, &kind, &entry.Ref, &entry.Tag, &entry.ActorID, &entry.OccurredAt); err != nil {
			return nil, err
		}
		entry.Kind = Kind(kind)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) HasEntriesFor(ctx context.Context, sku string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE sku = $1)`, sku).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return exists, nil
}
