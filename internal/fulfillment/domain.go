package fulfillment

import (
	"errors"
	"time"
)

// Direction distinguishes purchase orders from sales orders.
type Direction string

const (
	// DirectionInbound marks purchase orders restocking a location.
	DirectionInbound Direction = "INBOUND"
	// DirectionOutbound marks sales orders drawing stock down.
	DirectionOutbound Direction = "OUTBOUND"
)

// Status tracks the order lifecycle.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusReserved           Status = "RESERVED"
	StatusPartiallyReserved  Status = "PARTIALLY_RESERVED"
	StatusPartiallyCommitted Status = "PARTIALLY_COMMITTED"
	StatusCommitted          Status = "COMMITTED"
	StatusCancelled          Status = "CANCELLED"
	StatusReleased           Status = "RELEASED"
)

// Terminal reports whether the order reached a final state.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusCancelled || s == StatusReleased
}

// Policy selects how reserve treats lines that cannot be fully held.
type Policy string

const (
	// PolicyAllOrNothing rolls back every hold placed so far when any
	// line cannot be fully reserved.
	PolicyAllOrNothing Policy = "ALL_OR_NOTHING"
	// PolicyBestEffort keeps successful holds and backorders the rest.
	PolicyBestEffort Policy = "BEST_EFFORT"
)

// LineStatus tracks each ordered line.
type LineStatus string

const (
	LineStatusPending     LineStatus = "PENDING"
	LineStatusHeld        LineStatus = "HELD"
	LineStatusBackordered LineStatus = "BACKORDERED"
	LineStatusCommitted   LineStatus = "COMMITTED"
	LineStatusReceived    LineStatus = "RECEIVED"
)

// Line is one ordered (SKU, quantity, location) triple. ReceivedQty
// accumulates on inbound orders as receipts reconcile against the line.
type Line struct {
	ID            int64
	OrderID       string
	SKU           string
	Location      string
	Qty           int64
	ReceivedQty   int64
	Status        LineStatus
	ReservationID string
}

// StatusChange records one transition for the order's history.
type StatusChange struct {
	Status Status
	At     time.Time
}

// Order is a sales or purchase order moving through the state machine.
type Order struct {
	ID        string
	Direction Direction
	Status    Status
	Lines     []Line
	PartyRef  string
	ActorID   string
	Note      string
	History   []StatusChange
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrInvalidTransition indicates an operation attempted in a state
	// that forbids it. Always a caller bug; never retried.
	ErrInvalidTransition = errors.New("fulfillment: invalid state transition")
	// ErrPartialStock indicates an all-or-nothing reservation could not
	// be fully satisfied. Recoverable; retry later or use best effort.
	ErrPartialStock = errors.New("fulfillment: could not reserve all lines")
	// ErrFulfillmentConflict indicates stock drifted between reserve and
	// commit. Surfaced, never retried automatically; it flags a
	// correctness anomaly worth alerting on.
	ErrFulfillmentConflict = errors.New("fulfillment: stock conflict during commit")
	// ErrNotFound indicates a missing order.
	ErrNotFound = errors.New("fulfillment: order not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("fulfillment: invalid input")
)
