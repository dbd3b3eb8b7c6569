package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/events"
)

const serviceName = "payment-core"

// changeRecord captures one committed transition so the matching event can
// be published after the unit of work commits, never before.
type changeRecord struct {
	entity   domain.EntityType
	entityID uuid.UUID
	orderNo  string
	from     string
	to       string
	operator string
	reason   string
}

func (r *changeRecord) event() events.Event {
	eventType := events.OrderStatusChangedEvent
	switch r.entity {
	case domain.EntityPayment:
		eventType = events.PaymentStatusChangedEvent
	case domain.EntityRefund:
		eventType = events.RefundStatusChangedEvent
	}
	return events.Event{
		ID:            uuid.New(),
		EventType:     eventType,
		Entity:        string(r.entity),
		EntityID:      r.entityID,
		OrderNo:       r.orderNo,
		Timestamp:     time.Now(),
		Service:       serviceName,
		CorrelationID: uuid.New(),
		Payload: events.StatusChangedPayload{
			From:     r.from,
			To:       r.to,
			Operator: r.operator,
			Reason:   r.reason,
		},
	}
}

// publish is fire-and-forget: a failed publish is logged and swallowed so it
// can never undo or block a committed transition.
func publish(p events.Publisher, ev events.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ev); err != nil {
		log.Printf("Event publish failed (ignored): %s - %v", ev.EventType, err)
	}
}

func publishAll(p events.Publisher, records []*changeRecord) {
	for _, rec := range records {
		publish(p, rec.event())
	}
}

func appendStateLog(ctx context.Context, st Store, rec *changeRecord) error {
	return st.AppendStateLog(ctx, &domain.StateLog{
		ID:        uuid.New(),
		Entity:    rec.entity,
		EntityID:  rec.entityID,
		FromState: rec.from,
		ToState:   rec.to,
		Operator:  rec.operator,
		Reason:    rec.reason,
		CreatedAt: time.Now(),
	})
}

// applyOrderTransition validates and applies one order transition inside the
// caller's unit of work. A request into the current state is a retry no-op:
// it succeeds without a duplicate log entry and returns a nil record.
func applyOrderTransition(ctx context.Context, st Store, o *domain.Order, target domain.OrderStatus, operator, reason string) (*changeRecord, error) {
	if o.Status == target {
		return nil, nil
	}
	if !domain.CanTransitOrder(o.Status, target) {
		return nil, fmt.Errorf("%w: order %s -> %s", domain.ErrIllegalTransition, o.Status, target)
	}

	rec := &changeRecord{
		entity:   domain.EntityOrder,
		entityID: o.ID,
		orderNo:  o.OrderNo,
		from:     string(o.Status),
		to:       string(target),
		operator: operator,
		reason:   reason,
	}

	now := time.Now()
	o.Status = target
	o.UpdatedAt = now
	if target == domain.OrderStatusPendingShipment && o.PaidAt == nil {
		o.PaidAt = &now
	}

	if err := st.UpdateOrder(ctx, o); err != nil {
		return nil, err
	}
	if err := appendStateLog(ctx, st, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func applyPaymentTransition(ctx context.Context, st Store, p *domain.Payment, target domain.PaymentStatus, operator, reason string) (*changeRecord, error) {
	if p.Status == target {
		return nil, nil
	}
	if !domain.CanTransitPayment(p.Status, target) {
		return nil, fmt.Errorf("%w: payment %s -> %s", domain.ErrIllegalTransition, p.Status, target)
	}
	if target == domain.PaymentStatusSuccess && p.TradeNo == "" {
		return nil, fmt.Errorf("%w: payment %s -> %s without external transaction id", domain.ErrIllegalTransition, p.Status, target)
	}

	rec := &changeRecord{
		entity:   domain.EntityPayment,
		entityID: p.ID,
		orderNo:  p.OrderNo,
		from:     string(p.Status),
		to:       string(target),
		operator: operator,
		reason:   reason,
	}

	p.Status = target
	p.UpdatedAt = time.Now()

	if err := st.UpdatePayment(ctx, p); err != nil {
		return nil, err
	}
	if err := appendStateLog(ctx, st, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func applyRefundTransition(ctx context.Context, st Store, r *domain.Refund, target domain.RefundStatus, operator, reason string) (*changeRecord, error) {
	if r.Status == target {
		return nil, nil
	}
	if !domain.CanTransitRefund(r.Status, target) {
		return nil, fmt.Errorf("%w: refund %s -> %s", domain.ErrIllegalTransition, r.Status, target)
	}

	rec := &changeRecord{
		entity:   domain.EntityRefund,
		entityID: r.ID,
		from:     string(r.Status),
		to:       string(target),
		operator: operator,
		reason:   reason,
	}

	r.Status = target
	r.UpdatedAt = time.Now()

	if err := st.UpdateRefund(ctx, r); err != nil {
		return nil, err
	}
	if err := appendStateLog(ctx, st, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// OrderTransitions is the transition service for orders. Every status write
// goes through Transition; nothing else mutates order status.
type OrderTransitions struct {
	runner    TxRunner
	publisher events.Publisher
}

func NewOrderTransitions(runner TxRunner, publisher events.Publisher) *OrderTransitions {
	return &OrderTransitions{runner: runner, publisher: publisher}
}

func (s *OrderTransitions) Transition(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus, operator, reason string) (*domain.Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown order status %q", domain.ErrIllegalTransition, target)
	}

	var updated *domain.Order
	var rec *changeRecord
	err := s.runner.RunInTx(ctx, func(st Store) error {
		o, err := st.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		rec, err = applyOrderTransition(ctx, st, o, target, operator, reason)
		if err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		publish(s.publisher, rec.event())
	}
	return updated, nil
}

type PaymentTransitions struct {
	runner    TxRunner
	publisher events.Publisher
}

func NewPaymentTransitions(runner TxRunner, publisher events.Publisher) *PaymentTransitions {
	return &PaymentTransitions{runner: runner, publisher: publisher}
}

func (s *PaymentTransitions) Transition(ctx context.Context, paymentID uuid.UUID, target domain.PaymentStatus, operator, reason string) (*domain.Payment, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown payment status %q", domain.ErrIllegalTransition, target)
	}

	var updated *domain.Payment
	var rec *changeRecord
	err := s.runner.RunInTx(ctx, func(st Store) error {
		p, err := st.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		rec, err = applyPaymentTransition(ctx, st, p, target, operator, reason)
		if err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		publish(s.publisher, rec.event())
	}
	return updated, nil
}

type RefundTransitions struct {
	runner    TxRunner
	publisher events.Publisher
}

func NewRefundTransitions(runner TxRunner, publisher events.Publisher) *RefundTransitions {
	return &RefundTransitions{runner: runner, publisher: publisher}
}

func (s *RefundTransitions) Transition(ctx context.Context, refundID uuid.UUID, target domain.RefundStatus, operator, reason string) (*domain.Refund, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown refund status %q", domain.ErrIllegalTransition, target)
	}

	var updated *domain.Refund
	var rec *changeRecord
	err := s.runner.RunInTx(ctx, func(st Store) error {
		r, err := st.GetRefundForUpdate(ctx, refundID)
		if err != nil {
			return err
		}
		rec, err = applyRefundTransition(ctx, st, r, target, operator, reason)
		if err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		publish(s.publisher, rec.event())
	}
	return updated, nil
}
