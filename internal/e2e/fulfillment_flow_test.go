package e2e

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stockyard-retail/stockyard/internal/fulfillment"
	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/procurement"
	"github.com/stockyard-retail/stockyard/internal/reservation"
	"github.com/stockyard-retail/stockyard/internal/stock"
	_ "github.com/stockyard-retail/stockyard/internal/testing/guard"
)

type engine struct {
	ledgerRepo   *ledger.MemoryRepository
	ledgerSvc    *ledger.Service
	stockRepo    *stock.MemoryRepository
	store        *stock.Store
	reservations *reservation.Manager
	orders       *fulfillment.Service
	receipts     *procurement.Service
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	logger := slog.Default()
	ledgerRepo := ledger.NewMemoryRepository()
	ledgerSvc := ledger.NewService(ledgerRepo)
	stockRepo := stock.NewMemoryRepository()
	store := stock.NewStore(stockRepo, ledgerSvc, nil, nil, logger)
	manager := reservation.NewManager(reservation.NewMemoryRepository(), store, time.Minute, logger)
	orders := fulfillment.NewService(fulfillment.NewMemoryRepository(), manager, store, nil, fulfillment.ServiceConfig{}, logger)
	receipts := procurement.NewService(orders, store, nil, logger)
	return &engine{
		ledgerRepo:   ledgerRepo,
		ledgerSvc:    ledgerSvc,
		stockRepo:    stockRepo,
		store:        store,
		reservations: manager,
		orders:       orders,
		receipts:     receipts,
	}
}

func (e *engine) receive(t *testing.T, sku, location string, qty int64) {
	t.Helper()
	_, err := e.store.TryApply(context.Background(), ledger.Draft{
		SKU: sku, Location: location, Delta: qty, Kind: ledger.KindReceipt, Ref: "SEED", ActorID: "seed",
	})
	require.NoError(t, err)
}

func TestOutboundOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	eng.receive(t, "TSHIRT-BLK-M", "STORE-1", 10)

	order, err := eng.orders.Create(ctx, fulfillment.CreateInput{
		Direction: fulfillment.DirectionOutbound,
		PartyRef:  "CUST-77",
		ActorID:   "emp-1",
		Lines:     []fulfillment.LineInput{{SKU: "TSHIRT-BLK-M", Location: "STORE-1", Qty: 4}},
	})
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusDraft, order.Status)

	order, err = eng.orders.Reserve(ctx, order.ID, fulfillment.PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusReserved, order.Status)

	rec, err := eng.store.Availability(ctx, "TSHIRT-BLK-M", "STORE-1")
	require.NoError(t, err)
	require.Equal(t, int64(10), rec.OnHand)
	require.Equal(t, int64(4), rec.Reserved)
	require.Equal(t, int64(6), rec.Available())

	order, err = eng.orders.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCommitted, order.Status)

	rec, err = eng.store.Availability(ctx, "TSHIRT-BLK-M", "STORE-1")
	require.NoError(t, err)
	require.Equal(t, int64(6), rec.OnHand)
	require.Zero(t, rec.Reserved)
}

func TestInboundReceiptWithOverage(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	order, err := eng.orders.Create(ctx, fulfillment.CreateInput{
		Direction: fulfillment.DirectionInbound,
		PartyRef:  "SUP-3",
		ActorID:   "emp-2",
		Lines:     []fulfillment.LineInput{{SKU: "CAP-NVY", Location: "DC-1", Qty: 10}},
	})
	require.NoError(t, err)

	result, err := eng.receipts.ReconcileReceipt(ctx, procurement.Receipt{
		OrderID:    order.ID,
		ReceivedAt: time.Now().UTC(),
		ActorID:    "emp-2",
		Lines:      []procurement.ReceiptLine{{LineID: order.Lines[0].ID, Qty: 12}},
	})
	require.NoError(t, err)
	require.Len(t, result.Lines, 1)
	require.Equal(t, int64(10), result.Lines[0].Applied)
	require.Equal(t, int64(2), result.Lines[0].Overage)
	require.True(t, result.Lines[0].Closed)

	// The full received quantity lands on hand; the overage is a
	// separately tagged entry, not silently discarded.
	rec, err := eng.store.Availability(ctx, "CAP-NVY", "DC-1")
	require.NoError(t, err)
	require.Equal(t, int64(12), rec.OnHand)

	entries, err := eng.ledgerSvc.List(ctx, ledger.Filter{SKU: "CAP-NVY"})
	require.NoError(t, err)
	var overageSeen bool
	for _, entry := range entries {
		if entry.Tag == ledger.TagOverage {
			overageSeen = true
			require.Equal(t, int64(2), entry.Delta)
		}
	}
	require.True(t, overageSeen)

	order, err = eng.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, fulfillment.StatusCommitted, order.Status)
}

func TestReplayRebuildsRecordsExactly(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	eng.receive(t, "SOCKS-3PK", "STORE-1", 50)
	eng.receive(t, "SOCKS-3PK", "STORE-2", 30)

	order, err := eng.orders.Create(ctx, fulfillment.CreateInput{
		Direction: fulfillment.DirectionOutbound,
		ActorID:   "emp-1",
		Lines:     []fulfillment.LineInput{{SKU: "SOCKS-3PK", Location: "STORE-1", Qty: 20}},
	})
	require.NoError(t, err)
	_, err = eng.orders.Reserve(ctx, order.ID, fulfillment.PolicyAllOrNothing, "emp-1")
	require.NoError(t, err)
	_, err = eng.orders.Commit(ctx, order.ID, "emp-1")
	require.NoError(t, err)

	live, err := eng.store.List(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, live)

	// Rebuild from scratch against the same ledger.
	rebuilt := stock.NewStore(stock.NewMemoryRepository(), eng.ledgerSvc, nil, nil, slog.Default())
	require.NoError(t, rebuilt.Reconcile(ctx, ""))

	replayed, err := rebuilt.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, len(live), len(replayed))
	for i := range live {
		require.Equal(t, live[i].SKU, replayed[i].SKU)
		require.Equal(t, live[i].Location, replayed[i].Location)
		require.Equal(t, live[i].OnHand, replayed[i].OnHand)
		require.Equal(t, live[i].Reserved, replayed[i].Reserved)
		require.Equal(t, live[i].AppliedSeq, replayed[i].AppliedSeq)
	}
}
