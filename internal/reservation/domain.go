package reservation

import (
	"errors"
	"time"
)

// Status tracks the reservation lifecycle. Committed, Released and
// Expired are terminal and immutable.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCommitted Status = "COMMITTED"
	StatusReleased  Status = "RELEASED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusReleased || s == StatusExpired
}

// Reservation is a short-lived claim on stock quantity placed while an
// order is being assembled, preventing oversell before final commit.
type Reservation struct {
	ID        string
	SKU       string
	Location  string
	Qty       int64
	OrderID   string
	Status    Status
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound indicates a missing reservation.
	ErrNotFound = errors.New("reservation: not found")
	// ErrNotActive indicates the reservation already reached a terminal
	// state and cannot be claimed.
	ErrNotActive = errors.New("reservation: not active")
	// ErrInvalidHold indicates invalid hold parameters.
	ErrInvalidHold = errors.New("reservation: invalid hold")
)
