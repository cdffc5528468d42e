package ledger

import (
	"errors"
	"time"
)

// Kind enumerates stock-affecting entry kinds.
type Kind string

const (
	// KindReceipt records goods received into stock.
	KindReceipt Kind = "RECEIPT"
	// KindSale records goods sold out of stock.
	KindSale Kind = "SALE"
	// KindAdjustment records a manual correction, positive or negative.
	KindAdjustment Kind = "ADJUSTMENT"
	// KindReservationHold records a temporary claim against available stock.
	KindReservationHold Kind = "RESERVATION_HOLD"
	// KindReservationRelease records the return of a claim to available stock.
	KindReservationRelease Kind = "RESERVATION_RELEASE"
)

// TagOverage marks adjustment entries generated for goods received in
// excess of the ordered quantity.
const TagOverage = "OVERAGE"

// Entry is one immutable record of a stock quantity change. Entries are
// never updated or deleted; corrections are new compensating entries.
// Total ordering by Seq defines the authoritative replay order.
type Entry struct {
	Seq        int64
	SKU        string
	Location   string
	Delta      int64
	Kind       Kind
	Ref        string
	Tag        string
	ActorID    string
	OccurredAt time.Time
}

// Draft carries the fields of an entry before a sequence number is
// assigned. The stock store validates drafts against record invariants
// before asking the ledger to append them.
type Draft struct {
	SKU      string
	Location string
	Delta    int64
	Kind     Kind
	Ref      string
	Tag      string
	ActorID  string
}

// Filter narrows List results. Zero values are ignored.
type Filter struct {
	SKU      string
	Location string
	From     time.Time
	To       time.Time
	AfterSeq int64
	Limit    int
}

var (
	// ErrSequenceConflict indicates the assigned sequence number collided
	// with a concurrent append. Callers retry with a fresh sequence.
	ErrSequenceConflict = errors.New("ledger: sequence conflict")
	// ErrInvalidDraft indicates the draft is missing required fields.
	ErrInvalidDraft = errors.New("ledger: invalid draft")
)

// Quantity returns the absolute quantity the entry moves.
func (e Entry) Quantity() int64 {
	if e.Delta < 0 {
		return -e.Delta
	}
	return e.Delta
}

func validateDraft(d Draft) error {
	if d.SKU == "" || d.Location == "" {
		return ErrInvalidDraft
	}
	if d.Delta == 0 {
		return ErrInvalidDraft
	}
	switch d.Kind {
	case KindReceipt, KindSale, KindAdjustment, KindReservationHold, KindReservationRelease:
		return nil
	default:
		return ErrInvalidDraft
	}
}
