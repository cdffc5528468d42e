package stock

import (
	"errors"
	"fmt"
	"time"

	"github.com/stockyard-retail/stockyard/internal/ledger"
)

// Record summarises stock for one SKU at one location. It is a derived
// cache over the ledger: mutated only by applying ledger entries and
// rebuildable at any time by replaying them.
type Record struct {
	SKU        string
	Location   string
	OnHand     int64
	Reserved   int64
	AppliedSeq int64
	UpdatedAt  time.Time
}

// Available returns on-hand minus reserved.
func (r Record) Available() int64 {
	return r.OnHand - r.Reserved
}

// Key returns the lock/cache key for the record.
func (r Record) Key() string {
	return RecordKey(r.SKU, r.Location)
}

// RecordKey builds the per-(SKU, location) key.
func RecordKey(sku, location string) string {
	return fmt.Sprintf("%s@%s", sku, location)
}

var (
	// ErrInsufficientStock indicates the requested quantity exceeds what
	// the record can cover. Quantities are never silently clamped.
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	// ErrRecordNotFound indicates a missing record row.
	ErrRecordNotFound = errors.New("stock: record not found")
)

// apply validates and applies one entry's effect on the record. The same
// rules run at admission time under the per-key lock and again during
// ledger replay, so derived state is deterministic.
func apply(rec *Record, kind ledger.Kind, delta int64) error {
	qty := delta
	if qty < 0 {
		qty = -qty
	}
	switch kind {
	case ledger.KindReceipt:
		if delta <= 0 {
			return fmt.Errorf("stock: receipt delta must be positive: %w", ErrInsufficientStock)
		}
		rec.OnHand += delta
	case ledger.KindSale:
		if rec.Reserved < qty || rec.OnHand < qty {
			return ErrInsufficientStock
		}
		rec.OnHand -= qty
		rec.Reserved -= qty
	case ledger.KindAdjustment:
		next := rec.OnHand + delta
		if next < 0 || next < rec.Reserved {
			return ErrInsufficientStock
		}
		rec.OnHand = next
	case ledger.KindReservationHold:
		if rec.Available() < qty {
			return ErrInsufficientStock
		}
		rec.Reserved += qty
	case ledger.KindReservationRelease:
		if rec.Reserved < qty {
			return ErrInsufficientStock
		}
		rec.Reserved -= qty
	default:
		return fmt.Errorf("stock: unknown entry kind %q", kind)
	}
	return nil
}
