package fulfillment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/reservation"
	"github.com/stockyard-retail/stockyard/internal/stock"
)

type testStack struct {
	svc          *Service
	store        *stock.Store
	reservations *reservation.Manager
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	lg := ledger.NewService(ledger.NewMemoryRepository())
	store := stock.NewStore(stock.NewMemoryRepository(), lg, nil, nil, nil)
	reservations := reservation.NewManager(reservation.NewMemoryRepository(), store, 0, nil)
	svc := NewService(NewMemoryRepository(), reservations, store, nil, ServiceConfig{}, nil)
	return &testStack{svc: svc, store: store, reservations: reservations}
}

func (ts *testStack) seed(t *testing.T, sku, location string, qty int64) {
	t.Helper()
	_, err := ts.store.TryApply(context.Background(), ledger.Draft{
		SKU: sku, Location: location, Delta: qty, Kind: ledger.KindReceipt, Ref: "SEED", ActorID: "test",
	})
	require.NoError(t, err)
}

func (ts *testStack) record(t *testing.T, sku, location string) stock.Record {
	t.Helper()
	rec, err := ts.store.Availability(context.Background(), sku, location)
	require.NoError(t, err)
	return rec
}

func TestCreateValidatesDirection(t *testing.T) {
	ts := newTestStack(t)
	_, err := ts.svc.Create(context.Background(), CreateInput{Direction: Direction("SIDEWAYS")})
	require.ErrorIs(t, err, ErrValidation)
}

func TestDraftLineEditing(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)

	order, err := ts.svc.Create(ctx, CreateInput{Direction: DirectionOutbound, ActorID: "emp-1"})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.Empty(t, order.Lines)

	line, err := ts.svc.AddLine(ctx, order.ID, LineInput{SKU: "TSHIRT-BLK-M", Location: "STORE-1", Qty: 2})
	require.NoError(t, err)
	require.Equal(t, LineStatusPending, line.Status)

	_, err = ts.svc.AddLine(ctx, order.ID, LineInput{SKU: "", Location: "STORE-1", Qty: 2})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, ts.svc.RemoveLine(ctx, order.ID, line.ID))
	order, err = ts.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Empty(t, order.Lines)
}

func TestReserveAllOrNothingHoldsEveryLine(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)
	ts.seed(t, "B", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)

	order, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusReserved, order.Status)
	for _, line := range order.Lines {
		require.Equal(t, LineStatusHeld, line.Status)
		require.NotEmpty(t, line.ReservationID)
	}
	require.Equal(t, int64(3), ts.record(t, "A", "STORE-1").Reserved)
	require.Equal(t, int64(4), ts.record(t, "B", "STORE-1").Reserved)
}

func TestReserveAllOrNothingRollsBackOnShortage(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)
	ts.seed(t, "B", "STORE-1", 2)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)

	_, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.ErrorIs(t, err, ErrPartialStock)

	// The hold on A was handed back.
	require.Zero(t, ts.record(t, "A", "STORE-1").Reserved)
	require.Zero(t, ts.record(t, "B", "STORE-1").Reserved)

	order, err = ts.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.Equal(t, LineStatusPending, order.Lines[0].Status)
	require.Empty(t, order.Lines[0].ReservationID)
}

func TestReserveBestEffortBackordersShortLines(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)
	ts.seed(t, "B", "STORE-1", 2)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)

	order, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReserved, order.Status)
	require.Equal(t, LineStatusHeld, order.Lines[0].Status)
	require.Equal(t, LineStatusBackordered, order.Lines[1].Status)
	require.Equal(t, int64(3), ts.record(t, "A", "STORE-1").Reserved)
}

func TestReserveBestEffortWithNothingHeldFails(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 3}},
	})
	require.NoError(t, err)

	_, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.ErrorIs(t, err, ErrPartialStock)
}

func TestReserveRejectsInboundOrders(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionInbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 3}},
	})
	require.NoError(t, err)

	_, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRetryReserveAfterRestock(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)
	ts.seed(t, "B", "STORE-1", 2)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)

	order, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyReserved, order.Status)

	ts.seed(t, "B", "STORE-1", 5)

	// A retry only touches the backordered line; the held line keeps its
	// original reservation.
	heldRes := order.Lines[0].ReservationID
	order, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusReserved, order.Status)
	require.Equal(t, heldRes, order.Lines[0].ReservationID)
	require.Equal(t, LineStatusHeld, order.Lines[1].Status)
	require.Equal(t, int64(4), ts.record(t, "B", "STORE-1").Reserved)
}

func TestReserveResumesSplitOrderAfterRestock(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)
	_, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.NoError(t, err)
	order, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyCommitted, order.Status)

	ts.seed(t, "B", "STORE-1", 6)

	// The backordered line picks up a hold; the committed line is left
	// alone and the order keeps its partial status until the next commit.
	order, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyCommitted, order.Status)
	require.Equal(t, LineStatusCommitted, order.Lines[0].Status)
	require.Equal(t, LineStatusHeld, order.Lines[1].Status)

	order, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, order.Status)

	recB := ts.record(t, "B", "STORE-1")
	require.Equal(t, int64(2), recB.OnHand)
	require.Zero(t, recB.Reserved)
}

type flakyReservations struct {
	ReservationPort
	failSKU string
}

func (f *flakyReservations) Hold(ctx context.Context, input reservation.HoldInput) (reservation.Reservation, error) {
	if input.SKU == f.failSKU {
		return reservation.Reservation{}, errors.New("reservation store unavailable")
	}
	return f.ReservationPort.Hold(ctx, input)
}

func TestReserveRollsBackOnInfrastructureFailure(t *testing.T) {
	ctx := context.Background()
	lg := ledger.NewService(ledger.NewMemoryRepository())
	store := stock.NewStore(stock.NewMemoryRepository(), lg, nil, nil, nil)
	manager := reservation.NewManager(reservation.NewMemoryRepository(), store, 0, nil)
	svc := NewService(NewMemoryRepository(), &flakyReservations{ReservationPort: manager, failSKU: "B"}, store, nil, ServiceConfig{}, nil)

	for _, sku := range []string{"A", "B"} {
		_, err := store.TryApply(ctx, ledger.Draft{
			SKU: sku, Location: "STORE-1", Delta: 10, Kind: ledger.KindReceipt, Ref: "SEED", ActorID: "test",
		})
		require.NoError(t, err)
	}

	order, err := svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrPartialStock)

	// The hold on A was handed back immediately rather than left to
	// expire with the TTL sweep.
	rec, err := store.Availability(ctx, "A", "STORE-1")
	require.NoError(t, err)
	require.Zero(t, rec.Reserved)

	order, err = svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, order.Status)
	require.Equal(t, LineStatusPending, order.Lines[0].Status)
	require.Empty(t, order.Lines[0].ReservationID)
}

func TestCommitFinalisesHeldLines(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 4}},
	})
	require.NoError(t, err)
	_, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)

	order, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCommitted, order.Status)
	require.Equal(t, LineStatusCommitted, order.Lines[0].Status)

	rec := ts.record(t, "A", "STORE-1")
	require.Equal(t, int64(6), rec.OnHand)
	require.Zero(t, rec.Reserved)
}

func TestCommitRequiresReservedState(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 4}},
	})
	require.NoError(t, err)

	_, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCommitWithBackorderedLinesStaysPartial(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)
	ts.seed(t, "B", "STORE-1", 1)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)
	_, err = ts.svc.Reserve(ctx, order.ID, PolicyBestEffort, "emp-1")
	require.NoError(t, err)

	order, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyCommitted, order.Status)
	require.Equal(t, LineStatusCommitted, order.Lines[0].Status)
	require.Equal(t, LineStatusBackordered, order.Lines[1].Status)
}

func TestCommitConflictWithNothingCommittedKeepsStatus(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 4}},
	})
	require.NoError(t, err)
	order, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)

	// The hold evaporates out of band before the commit lands.
	require.NoError(t, ts.reservations.Release(ctx, order.Lines[0].ReservationID, "sweeper"))

	_, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.ErrorIs(t, err, ErrFulfillmentConflict)

	order, err = ts.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReserved, order.Status)
}

func TestCommitConflictAfterProgressMarksPartial(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)
	ts.seed(t, "B", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines: []LineInput{
			{SKU: "A", Location: "STORE-1", Qty: 3},
			{SKU: "B", Location: "STORE-1", Qty: 4},
		},
	})
	require.NoError(t, err)
	order, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)

	require.NoError(t, ts.reservations.Release(ctx, order.Lines[1].ReservationID, "sweeper"))

	_, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.ErrorIs(t, err, ErrFulfillmentConflict)

	order, err = ts.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartiallyCommitted, order.Status)
	require.Equal(t, LineStatusCommitted, order.Lines[0].Status)
}

func TestCancelReleasesHolds(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 4}},
	})
	require.NoError(t, err)
	_, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)

	order, err = ts.svc.Cancel(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, order.Status)
	require.Zero(t, ts.record(t, "A", "STORE-1").Reserved)

	// Cancelling again is a no-op.
	again, err := ts.svc.Cancel(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusReleased, again.Status)
}

func TestCancelDraftEndsCancelled(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)

	order, err := ts.svc.Create(ctx, CreateInput{Direction: DirectionOutbound, ActorID: "emp-1"})
	require.NoError(t, err)

	order, err = ts.svc.Cancel(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, order.Status)
}

func TestPostCompensationReturnsQuantity(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 4}},
	})
	require.NoError(t, err)
	_, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)
	_, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)

	entry, err := ts.svc.PostCompensation(ctx, CompensationInput{
		OrderID: order.ID, SKU: "A", Location: "STORE-1", Qty: 4, ActorID: "manager-1", Reason: "conflicted commit",
	})
	require.NoError(t, err)
	require.Equal(t, ledger.KindAdjustment, entry.Kind)
	require.Equal(t, "COMPENSATION", entry.Tag)
	require.Equal(t, int64(10), ts.record(t, "A", "STORE-1").OnHand)

	_, err = ts.svc.PostCompensation(ctx, CompensationInput{OrderID: order.ID, SKU: "A", Location: "STORE-1", Qty: 0})
	require.ErrorIs(t, err, ErrValidation)
}

func TestStatusHistoryAccumulates(t *testing.T) {
	ctx := context.Background()
	ts := newTestStack(t)
	ts.seed(t, "A", "STORE-1", 10)

	order, err := ts.svc.Create(ctx, CreateInput{
		Direction: DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []LineInput{{SKU: "A", Location: "STORE-1", Qty: 1}},
	})
	require.NoError(t, err)
	_, err = ts.svc.Reserve(ctx, order.ID, PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)
	order, err = ts.svc.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)

	statuses := make([]Status, 0, len(order.History))
	for _, change := range order.History {
		statuses = append(statuses, change.Status)
	}
	require.Equal(t, []Status{StatusDraft, StatusReserved, StatusCommitted}, statuses)
}
