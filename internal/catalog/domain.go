package catalog

import (
	"errors"
	"time"
)

// SKU identifies a distinct item type and its unit of measure. Once a
// ledger entry references the SKU its identity is frozen: the code and
// unit can no longer change, only the display name.
type SKU struct {
	Code          string
	Name          string
	UnitOfMeasure string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	// ErrNotFound indicates a missing SKU.
	ErrNotFound = errors.New("catalog: sku not found")
	// ErrDuplicate indicates the SKU code already exists.
	ErrDuplicate = errors.New("catalog: sku already exists")
	// ErrSKUFrozen indicates the SKU is referenced by the ledger and its
	// identity can no longer change.
	ErrSKUFrozen = errors.New("catalog: sku referenced by ledger")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("catalog: invalid input")
)
