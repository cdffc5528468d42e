package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockyard-retail/stockyard/internal/ledger"
	"github.com/stockyard-retail/stockyard/internal/reservation"
	"github.com/stockyard-retail/stockyard/internal/shared"
	"github.com/stockyard-retail/stockyard/internal/stock"
)

// RepositoryPort abstracts order persistence.
type RepositoryPort interface {
	CreateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLine(ctx context.Context, orderID string, lineID int64) error
	UpdateLine(ctx context.Context, line Line) error
	ListOrders(ctx context.Context, direction Direction, page, perPage int) ([]Order, int, error)
}

// ReservationPort is the slice of the reservation manager the state
// machine drives.
type ReservationPort interface {
	Hold(ctx context.Context, input reservation.HoldInput) (reservation.Reservation, error)
	Release(ctx context.Context, id, actorID string) error
	Commit(ctx context.Context, id, actorID string) (ledger.Entry, error)
}

// StockPort admits compensating adjustments.
type StockPort interface {
	TryApply(ctx context.Context, draft ledger.Draft) (ledger.Entry, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	ReservationTTL time.Duration
}

// Service drives orders through the fulfillment state machine, calling
// into the reservation manager and, through it, the ledger.
type Service struct {
	repo         RepositoryPort
	reservations ReservationPort
	stock        StockPort
	audit        AuditPort
	ttl          time.Duration
	logger       *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, reservations ReservationPort, stock StockPort, audit AuditPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:         repo,
		reservations: reservations,
		stock:        stock,
		audit:        audit,
		ttl:          cfg.ReservationTTL,
		logger:       logger,
	}
}

// CreateInput describes a new order.
type CreateInput struct {
	Direction Direction
	PartyRef  string
	Note      string
	ActorID   string
	Lines     []LineInput
}

// LineInput describes one ordered line.
type LineInput struct {
	SKU      string
	Location string
	Qty      int64
}

// Create opens a Draft order, optionally with initial lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if input.Direction != DirectionInbound && input.Direction != DirectionOutbound {
		return Order{}, fmt.Errorf("%w: direction", ErrValidation)
	}
	now := time.Now().UTC()
	order := Order{
		ID:        uuid.NewString(),
		Direction: input.Direction,
		Status:    StatusDraft,
		PartyRef:  input.PartyRef,
		ActorID:   input.ActorID,
		Note:      input.Note,
		History:   []StatusChange{{Status: StatusDraft, At: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return Order{}, err
	}
	for _, line := range input.Lines {
		if _, err := s.AddLine(ctx, order.ID, line); err != nil {
			return Order{}, err
		}
	}
	s.recordAudit(ctx, input.ActorID, "ORDER_CREATE", order.ID, map[string]any{"direction": string(input.Direction)})
	return s.repo.GetOrder(ctx, order.ID)
}

// AddLine appends a line. Permitted only in Draft.
func (s *Service) AddLine(ctx context.Context, orderID string, input LineInput) (Line, error) {
	if input.SKU == "" || input.Location == "" || input.Qty <= 0 {
		return Line{}, fmt.Errorf("%w: sku, location and positive qty required", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Line{}, err
	}
	if order.Status != StatusDraft {
		return Line{}, ErrInvalidTransition
	}
	line := Line{
		OrderID:  orderID,
		SKU:      input.SKU,
		Location: input.Location,
		Qty:      input.Qty,
		Status:   LineStatusPending,
	}
	id, err := s.repo.InsertLine(ctx, line)
	if err != nil {
		return Line{}, err
	}
	line.ID = id
	return line, nil
}

// RemoveLine deletes a line. Permitted only in Draft.
func (s *Service) RemoveLine(ctx context.Context, orderID string, lineID int64) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != StatusDraft {
		return ErrInvalidTransition
	}
	return s.repo.DeleteLine(ctx, orderID, lineID)
}

// Reserve places holds for every pending or backordered line of an
// outbound order. Under AllOrNothing a single failed line rolls back
// every hold placed in this call and surfaces ErrPartialStock. Under
// BestEffort failed lines become Backordered and the call succeeds if
// at least one line was held. A partially committed order can be
// reserved again after restock to finish its backordered lines.
func (s *Service) Reserve(ctx context.Context, orderID string, policy Policy, actorID string) (Order, error) {
	if policy != PolicyAllOrNothing && policy != PolicyBestEffort {
		return Order{}, fmt.Errorf("%w: policy", ErrValidation)
	}
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Direction != DirectionOutbound {
		return Order{}, ErrInvalidTransition
	}
	switch order.Status {
	case StatusDraft, StatusPartiallyReserved, StatusPartiallyCommitted:
	default:
		return Order{}, ErrInvalidTransition
	}
	if len(order.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: order has no lines", ErrValidation)
	}

	var placed []placedHold
	held, committed, backordered := 0, 0, 0
	for i := range order.Lines {
		line := &order.Lines[i]
		switch line.Status {
		case LineStatusPending, LineStatusBackordered:
		case LineStatusHeld:
			held++
			continue
		case LineStatusCommitted:
			committed++
			continue
		default:
			continue
		}
		res, err := s.reservations.Hold(ctx, reservation.HoldInput{
			SKU:      line.SKU,
			Location: line.Location,
			Qty:      line.Qty,
			OrderID:  order.ID,
			TTL:      s.ttl,
			ActorID:  actorID,
		})
		if err != nil {
			if !errors.Is(err, stock.ErrInsufficientStock) {
				// Infrastructure failures abort regardless of policy;
				// holds placed in this call are handed back.
				s.rollbackHolds(ctx, placed, actorID)
				return Order{}, err
			}
			if policy == PolicyAllOrNothing {
				s.rollbackHolds(ctx, placed, actorID)
				return Order{}, fmt.Errorf("%s %s: %w", line.SKU, line.Location, ErrPartialStock)
			}
			line.Status = LineStatusBackordered
			backordered++
			if uerr := s.repo.UpdateLine(ctx, *line); uerr != nil {
				return Order{}, uerr
			}
			continue
		}
		placed = append(placed, placedHold{res: res, line: line})
		line.Status = LineStatusHeld
		line.ReservationID = res.ID
		held++
		if uerr := s.repo.UpdateLine(ctx, *line); uerr != nil {
			return Order{}, uerr
		}
	}

	if held == 0 {
		return Order{}, fmt.Errorf("no line could be reserved: %w", ErrPartialStock)
	}
	status := StatusReserved
	switch {
	case committed > 0:
		status = StatusPartiallyCommitted
	case backordered > 0:
		status = StatusPartiallyReserved
	}
	if err := s.transition(ctx, &order, status); err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "ORDER_RESERVE", order.ID, map[string]any{"policy": string(policy), "held": held, "backordered": backordered})
	return s.repo.GetOrder(ctx, orderID)
}

// Commit finalises every held line as a sale. A per-line stock failure
// means state drifted below the hold between reserve and commit; the
// whole call fails with ErrFulfillmentConflict and lines already
// committed stay committed. Compensating adjustments are an explicit
// operator step via PostCompensation.
func (s *Service) Commit(ctx context.Context, orderID, actorID string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Direction != DirectionOutbound {
		return Order{}, ErrInvalidTransition
	}
	switch order.Status {
	case StatusReserved, StatusPartiallyReserved, StatusPartiallyCommitted:
	default:
		return Order{}, ErrInvalidTransition
	}

	committed, pendingHolds := 0, 0
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Status == LineStatusCommitted {
			committed++
			continue
		}
		if line.Status != LineStatusHeld {
			continue
		}
		pendingHolds++
		if _, err := s.reservations.Commit(ctx, line.ReservationID, actorID); err != nil {
			s.logger.Error("commit line failed",
				slog.String("order_id", order.ID),
				slog.String("reservation_id", line.ReservationID),
				slog.Any("error", err))
			if committed > 0 {
				if terr := s.transition(ctx, &order, StatusPartiallyCommitted); terr != nil {
					s.logger.Error("mark partially committed", slog.Any("error", terr))
				}
			}
			return Order{}, fmt.Errorf("line %d (%s): %w", line.ID, line.SKU, ErrFulfillmentConflict)
		}
		line.Status = LineStatusCommitted
		committed++
		if uerr := s.repo.UpdateLine(ctx, *line); uerr != nil {
			return Order{}, uerr
		}
	}
	if pendingHolds == 0 && committed == 0 {
		return Order{}, ErrInvalidTransition
	}

	status := StatusCommitted
	for _, line := range order.Lines {
		if line.Status == LineStatusBackordered {
			status = StatusPartiallyCommitted
			break
		}
	}
	if err := s.transition(ctx, &order, status); err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "ORDER_COMMIT", order.ID, map[string]any{"lines": committed})
	return s.repo.GetOrder(ctx, orderID)
}

// Cancel releases every active reservation for the order. Idempotent:
// cancelling an already-terminal order is a no-op, not an error.
func (s *Service) Cancel(ctx context.Context, orderID, actorID string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Status.Terminal() {
		return order, nil
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Status != LineStatusHeld || line.ReservationID == "" {
			continue
		}
		if err := s.reservations.Release(ctx, line.ReservationID, actorID); err != nil {
			return Order{}, err
		}
		line.Status = LineStatusPending
		line.ReservationID = ""
		if uerr := s.repo.UpdateLine(ctx, *line); uerr != nil {
			return Order{}, uerr
		}
	}
	status := StatusCancelled
	if order.Status != StatusDraft {
		status = StatusReleased
	}
	if err := s.transition(ctx, &order, status); err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "ORDER_CANCEL", order.ID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// CompensationInput describes an operator-issued compensating
// adjustment for lines committed before a conflicted commit failed.
type CompensationInput struct {
	OrderID  string
	SKU      string
	Location string
	Qty      int64
	ActorID  string
	Reason   string
}

// PostCompensation returns previously committed quantity to stock as an
// explicit Adjustment entry referencing the order.
func (s *Service) PostCompensation(ctx context.Context, input CompensationInput) (ledger.Entry, error) {
	if input.Qty <= 0 || input.SKU == "" || input.Location == "" || input.OrderID == "" {
		return ledger.Entry{}, fmt.Errorf("%w: compensation requires order, sku, location, positive qty", ErrValidation)
	}
	entry, err := s.stock.TryApply(ctx, ledger.Draft{
		SKU:      input.SKU,
		Location: input.Location,
		Delta:    input.Qty,
		Kind:     ledger.KindAdjustment,
		Ref:      input.OrderID,
		Tag:      "COMPENSATION",
		ActorID:  input.ActorID,
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ORDER_COMPENSATE", input.OrderID, map[string]any{"sku": input.SKU, "qty": input.Qty, "reason": input.Reason})
	return entry, nil
}

// ApplyLineReceipt records received quantity against an inbound order
// line on behalf of the purchase-order reconciler. closed marks the
// line fully received; short lines stay open as Backordered until the
// order is explicitly closed early.
func (s *Service) ApplyLineReceipt(ctx context.Context, orderID string, lineID int64, qty int64, closed bool, actorID string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Direction != DirectionInbound || order.Status.Terminal() {
		return Order{}, ErrInvalidTransition
	}
	var line *Line
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			line = &order.Lines[i]
			break
		}
	}
	if line == nil {
		return Order{}, fmt.Errorf("%w: line %d", ErrNotFound, lineID)
	}
	line.ReceivedQty += qty
	if closed {
		line.Status = LineStatusReceived
	} else {
		line.Status = LineStatusBackordered
	}
	if err := s.repo.UpdateLine(ctx, *line); err != nil {
		return Order{}, err
	}
	status := StatusCommitted
	for _, l := range order.Lines {
		if l.Status != LineStatusReceived {
			status = StatusPartiallyCommitted
			break
		}
	}
	if err := s.transition(ctx, &order, status); err != nil {
		return Order{}, err
	}
	return s.repo.GetOrder(ctx, orderID)
}

// CloseInbound closes an inbound order early: remaining open lines are
// marked received short and the order commits with what arrived.
func (s *Service) CloseInbound(ctx context.Context, orderID, actorID string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.Direction != DirectionInbound || order.Status.Terminal() {
		return Order{}, ErrInvalidTransition
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.Status == LineStatusReceived {
			continue
		}
		line.Status = LineStatusReceived
		if err := s.repo.UpdateLine(ctx, *line); err != nil {
			return Order{}, err
		}
	}
	if err := s.transition(ctx, &order, StatusCommitted); err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, actorID, "ORDER_CLOSE_EARLY", order.ID, nil)
	return s.repo.GetOrder(ctx, orderID)
}

// Get loads one order with lines and history.
func (s *Service) Get(ctx context.Context, orderID string) (Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// List pages orders, optionally by direction.
func (s *Service) List(ctx context.Context, direction Direction, page, perPage int) ([]Order, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	orders, total, err := s.repo.ListOrders(ctx, direction, page, perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(page, perPage, total), nil
}

func (s *Service) transition(ctx context.Context, order *Order, status Status) error {
	if order.Status == status {
		return nil
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, order.ID, status, now); err != nil {
		return err
	}
	order.Status = status
	order.History = append(order.History, StatusChange{Status: status, At: now})
	return nil
}

// placedHold pairs a reservation with the order line it was placed for
// so a rollback can undo both.
type placedHold struct {
	res  reservation.Reservation
	line *Line
}

func (s *Service) rollbackHolds(ctx context.Context, placed []placedHold, actorID string) {
	for _, p := range placed {
		if err := s.reservations.Release(ctx, p.res.ID, actorID); err != nil {
			s.logger.Error("rollback hold", slog.Any("error", err), slog.String("reservation_id", p.res.ID))
		}
		p.line.Status = LineStatusPending
		p.line.ReservationID = ""
		if err := s.repo.UpdateLine(ctx, *p.line); err != nil {
			s.logger.Error("rollback line", slog.Any("error", err), slog.Int64("line_id", p.line.ID))
		}
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "order",
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record", slog.Any("error", err), slog.String("action", action))
	}
}
