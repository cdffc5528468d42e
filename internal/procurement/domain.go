package procurement

import (
	"errors"
	"time"
)

// Receipt describes goods arriving against an outstanding purchase
// order. It does not persist on its own; only the ledger entries it
// generates do.
type Receipt struct {
	OrderID    string
	ReceivedAt time.Time
	ActorID    string
	Lines      []ReceiptLine
}

// ReceiptLine carries the received quantity for one order line.
type ReceiptLine struct {
	LineID int64
	Qty    int64
}

// LineResult reports how one receipt line reconciled.
type LineResult struct {
	LineID  int64
	SKU     string
	Applied int64
	Overage int64
	Closed  bool
}

// ReconcileResult aggregates per-line outcomes for one receipt.
type ReconcileResult struct {
	OrderID string
	Lines   []LineResult
}

var (
	// ErrInvalidReceipt indicates a malformed receipt.
	ErrInvalidReceipt = errors.New("procurement: invalid receipt")
	// ErrUnknownLine indicates the receipt references a line the order
	// does not have.
	ErrUnknownLine = errors.New("procurement: unknown order line")
)
