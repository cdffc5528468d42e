package procurement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stockyard-retail/stockyard/internal/fulfillment"
	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/shared"
)

// OrdersPort is the slice of fulfillment the reconciler drives.
type OrdersPort interface {
	Get(ctx context.Context, orderID string) (fulfillment.Order, error)
	ApplyLineReceipt(ctx context.Context, orderID string, lineID int64, qty int64, closed bool, actorID string) (fulfillment.Order, error)
	CloseInbound(ctx context.Context, orderID, actorID string) (fulfillment.Order, error)
}

// StockPort admits receipt and overage entries. The reconciler never
// mutates stock directly.
type StockPort interface {
	TryApply(ctx context.Context, draft ledger.Draft) (ledger.Entry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service matches purchase receipts against outstanding purchase
// orders, applying the partial/over/under-receipt policy.
type Service struct {
	orders OrdersPort
	stock  StockPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(orders OrdersPort, stock StockPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{orders: orders, stock: stock, audit: audit, logger: logger}
}

// ReconcileReceipt applies one receipt. Per line: received equal to the
// outstanding quantity closes the line; a short receipt leaves it open
// as backordered; an over-receipt is capped at the outstanding quantity
// with the excess recorded as a separate overage adjustment, never
// silently discarded. On-hand rises by the full received quantity.
func (s *Service) ReconcileReceipt(ctx context.Context, receipt Receipt) (ReconcileResult, error) {
	if receipt.OrderID == "" || len(receipt.Lines) == 0 {
		return ReconcileResult{}, ErrInvalidReceipt
	}
	order, err := s.orders.Get(ctx, receipt.OrderID)
	if err != nil {
		return ReconcileResult{}, err
	}
	if order.Direction != fulfillment.DirectionInbound {
		return ReconcileResult{}, fmt.Errorf("%w: order %s is not inbound", ErrInvalidReceipt, receipt.OrderID)
	}
	if order.Status.Terminal() {
		return ReconcileResult{}, fulfillment.ErrInvalidTransition
	}

	result := ReconcileResult{OrderID: receipt.OrderID}
	for _, rl := range receipt.Lines {
		if rl.Qty <= 0 {
			return result, fmt.Errorf("%w: line %d qty must be positive", ErrInvalidReceipt, rl.LineID)
		}
		line := findLine(order, rl.LineID)
		if line == nil {
			return result, fmt.Errorf("%w: %d", ErrUnknownLine, rl.LineID)
		}
		outstanding := line.Qty - line.ReceivedQty
		if outstanding < 0 {
			outstanding = 0
		}
		applied := rl.Qty
		if applied > outstanding {
			applied = outstanding
		}
		overage := rl.Qty - applied

		if applied > 0 {
			if _, err := s.stock.TryApply(ctx, ledger.Draft{
				SKU:      line.SKU,
				Location: line.Location,
				Delta:    applied,
				Kind:     ledger.KindReceipt,
				Ref:      order.ID,
				ActorID:  receipt.ActorID,
			}); err != nil {
				return result, err
			}
		}
		if overage > 0 {
			if _, err := s.stock.TryApply(ctx, ledger.Draft{
				SKU:      line.SKU,
				Location: line.Location,
				Delta:    overage,
				Kind:     ledger.KindAdjustment,
				Ref:      order.ID,
				Tag:      ledger.TagOverage,
				ActorID:  receipt.ActorID,
			}); err != nil {
				return result, err
			}
		}

		closed := line.ReceivedQty+rl.Qty >= line.Qty
		updated, err := s.orders.ApplyLineReceipt(ctx, order.ID, line.ID, rl.Qty, closed, receipt.ActorID)
		if err != nil {
			return result, err
		}
		order = updated
		result.Lines = append(result.Lines, LineResult{
			LineID:  line.ID,
			SKU:     line.SKU,
			Applied: applied,
			Overage: overage,
			Closed:  closed,
		})
	}

	s.recordAudit(ctx, receipt.ActorID, "RECEIPT_RECONCILE", receipt.OrderID, map[string]any{"lines": len(result.Lines)})
	return result, nil
}

// CloseEarly closes the order's remaining backordered lines without
// further receipts.
func (s *Service) CloseEarly(ctx context.Context, orderID, actorID string) (fulfillment.Order, error) {
	order, err := s.orders.CloseInbound(ctx, orderID, actorID)
	if err != nil {
		return fulfillment.Order{}, err
	}
	s.recordAudit(ctx, actorID, "PO_CLOSE_EARLY", orderID, nil)
	return order, nil
}

func findLine(order fulfillment.Order, lineID int64) *fulfillment.Line {
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			return &order.Lines[i]
		}
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "purchase_order",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
