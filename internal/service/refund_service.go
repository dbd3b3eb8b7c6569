package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/events"
	"github.com/vam12375/muying-mall-sub003/internal/gateway"
)

// RefundService owns the refund lifecycle: request, review, execution. A
// refund can only originate from a settled payment, for at most the paid
// amount. Execution for wallet payments credits the ledger in the same unit
// of work; gateway refunds call out between two units so no row lock is
// ever held across network I/O.
type RefundService struct {
	runner    TxRunner
	reader    Reader
	gw        gateway.Client
	publisher events.Publisher
	gwTimeout time.Duration
}

func NewRefundService(runner TxRunner, reader Reader, gw gateway.Client, publisher events.Publisher, gwTimeout time.Duration) *RefundService {
	return &RefundService{
		runner:    runner,
		reader:    reader,
		gw:        gw,
		publisher: publisher,
		gwTimeout: gwTimeout,
	}
}

// Request creates a PENDING refund against a settled payment.
func (s *RefundService) Request(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string, evidence []string, operator string) (*domain.Refund, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("refund amount must be positive, got %s", amount.StringFixed(2))
	}

	var refund *domain.Refund
	err := s.runner.RunInTx(ctx, func(st Store) error {
		p, err := st.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != domain.PaymentStatusSuccess {
			return fmt.Errorf("%w: refund requires a settled payment, status is %s", domain.ErrIllegalTransition, p.Status)
		}
		if amount.GreaterThan(p.Amount) {
			return fmt.Errorf("refund amount %s exceeds paid amount %s", amount.StringFixed(2), p.Amount.StringFixed(2))
		}

		now := time.Now()
		refund = &domain.Refund{
			ID:        uuid.New(),
			OrderID:   p.OrderID,
			PaymentID: p.ID,
			UserID:    p.UserID,
			Amount:    amount,
			Reason:    reason,
			Status:    domain.RefundStatusPending,
			Evidence:  evidence,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return st.CreateRefund(ctx, refund)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Refund requested: refund=%s payment=%s amount=%s", refund.ID, paymentID, amount.StringFixed(2))
	return refund, nil
}

// Approve moves a refund from PENDING to APPROVED.
func (s *RefundService) Approve(ctx context.Context, refundID uuid.UUID, operator, reason string) (*domain.Refund, error) {
	return s.review(ctx, refundID, domain.RefundStatusApproved, operator, reason)
}

// Reject moves a refund from PENDING to its REJECTED terminal state.
func (s *RefundService) Reject(ctx context.Context, refundID uuid.UUID, operator, reason string) (*domain.Refund, error) {
	r, err := s.review(ctx, refundID, domain.RefundStatusRejected, operator, reason)
	if err != nil {
		return nil, err
	}
	publish(s.publisher, events.Event{
		ID:            uuid.New(),
		EventType:     events.RefundRejectedEvent,
		Entity:        string(domain.EntityRefund),
		EntityID:      r.ID,
		Timestamp:     time.Now(),
		Service:       serviceName,
		CorrelationID: uuid.New(),
	})
	return r, nil
}

func (s *RefundService) review(ctx context.Context, refundID uuid.UUID, target domain.RefundStatus, operator, reason string) (*domain.Refund, error) {
	var refund *domain.Refund
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
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		publish(s.publisher, rec.event())
	}
	return refund, nil
}

// Execute carries out an APPROVED refund. Wallet payments are credited and
// fully settled in one unit of work. Gateway payments commit the
// transition to PROCESSING/REFUNDING first, call the gateway without any
// lock held, then commit the terminal outcome in a second unit.
func (s *RefundService) Execute(ctx context.Context, refundID uuid.UUID, operator string) (*domain.Refund, error) {
	var refund *domain.Refund
	var payment *domain.Payment
	var recs []*changeRecord
	wallet := false

	err := s.runner.RunInTx(ctx, func(st Store) error {
		r, err := st.GetRefundForUpdate(ctx, refundID)
		if err != nil {
			return err
		}
		p, err := st.GetPaymentForUpdate(ctx, r.PaymentID)
		if err != nil {
			return err
		}
		o, err := st.GetOrderForUpdate(ctx, r.OrderID)
		if err != nil {
			return err
		}
		refund, payment = r, p
		wallet = p.Method == domain.MethodWallet

		rec, err := applyRefundTransition(ctx, st, r, domain.RefundStatusProcessing, operator, "refund execution")
		if err != nil {
			return err
		}
		recs = appendRec(recs, rec)

		rec, err = applyPaymentTransition(ctx, st, p, domain.PaymentStatusRefunding, operator, "refund execution")
		if err != nil {
			return err
		}
		recs = appendRec(recs, rec)

		rec, err = applyOrderTransition(ctx, st, o, domain.OrderStatusRefunding, operator, "refund execution")
		if err != nil {
			return err
		}
		recs = appendRec(recs, rec)

		if wallet {
			// No external actor: credit and settle in this same unit.
			if _, err := applyLedgerChange(ctx, st, r.UserID, r.Amount, domain.CauseRefund, r.ID, false); err != nil {
				return err
			}
			return s.settleRefund(ctx, st, r, p, o, true, operator, &recs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishAll(s.publisher, recs)

	if wallet {
		s.publishRefundOutcome(refund, payment, true)
		return refund, nil
	}

	// Gateway path: the PROCESSING state is committed; call out with a
	// bounded timeout and no lock held.
	gctx, cancel := context.WithTimeout(ctx, s.gwTimeout)
	res, gwErr := s.gw.Refund(gctx, gateway.RefundRequest{
		OutTradeNo: payment.OrderNo,
		TradeNo:    payment.TradeNo,
		Amount:     refund.Amount,
		Reason:     refund.Reason,
	})
	cancel()
	if gwErr != nil {
		// Inconclusive: leave the refund PROCESSING for a retry sweep.
		return refund, fmt.Errorf("gateway refund inconclusive: %w", gwErr)
	}

	success := res.Success
	recs = recs[:0]
	err = s.runner.RunInTx(ctx, func(st Store) error {
		r, err := st.GetRefundForUpdate(ctx, refundID)
		if err != nil {
			return err
		}
		p, err := st.GetPaymentForUpdate(ctx, r.PaymentID)
		if err != nil {
			return err
		}
		o, err := st.GetOrderForUpdate(ctx, r.OrderID)
		if err != nil {
			return err
		}
		refund, payment = r, p
		return s.settleRefund(ctx, st, r, p, o, success, operator, &recs)
	})
	if err != nil {
		return nil, err
	}
	publishAll(s.publisher, recs)
	s.publishRefundOutcome(refund, payment, success)

	if !success {
		return refund, fmt.Errorf("gateway refund rejected: %s", res.FailureReason)
	}
	return refund, nil
}

// settleRefund commits the terminal refund outcome: COMPLETED with payment
// REFUNDED and order REFUNDED on success, FAILED with payment FAILED and the
// order restored toward COMPLETED otherwise.
func (s *RefundService) settleRefund(ctx context.Context, st Store, r *domain.Refund, p *domain.Payment, o *domain.Order, success bool, operator string, recs *[]*changeRecord) error {
	refundTarget := domain.RefundStatusFailed
	paymentTarget := domain.PaymentStatusFailed
	orderTarget := domain.OrderStatusCompleted
	reason := "gateway refund failed"
	if success {
		refundTarget = domain.RefundStatusCompleted
		paymentTarget = domain.PaymentStatusRefunded
		orderTarget = domain.OrderStatusRefunded
		reason = "refund settled"
	}

	rec, err := applyRefundTransition(ctx, st, r, refundTarget, operator, reason)
	if err != nil {
		return err
	}
	*recs = appendRec(*recs, rec)

	rec, err = applyPaymentTransition(ctx, st, p, paymentTarget, operator, reason)
	if err != nil {
		return err
	}
	*recs = appendRec(*recs, rec)

	rec, err = applyOrderTransition(ctx, st, o, orderTarget, operator, reason)
	if err != nil {
		return err
	}
	*recs = appendRec(*recs, rec)
	return nil
}

func (s *RefundService) publishRefundOutcome(r *domain.Refund, p *domain.Payment, success bool) {
	eventType := events.RefundFailedEvent
	if success {
		eventType = events.RefundCompletedEvent
	}
	publish(s.publisher, events.Event{
		ID:            uuid.New(),
		EventType:     eventType,
		Entity:        string(domain.EntityRefund),
		EntityID:      r.ID,
		OrderNo:       p.OrderNo,
		Timestamp:     time.Now(),
		Service:       serviceName,
		CorrelationID: uuid.New(),
		Payload: events.RefundCompletedPayload{
			RefundID:  r.ID,
			PaymentID: r.PaymentID,
			OrderID:   r.OrderID,
			Amount:    r.Amount.StringFixed(2),
		},
	})
	if success && p.Method == domain.MethodWallet {
		publish(s.publisher, events.Event{
			ID:            uuid.New(),
			EventType:     events.WalletCreditedEvent,
			Entity:        "account",
			EntityID:      r.UserID,
			OrderNo:       p.OrderNo,
			Timestamp:     time.Now(),
			Service:       serviceName,
			CorrelationID: uuid.New(),
		})
	}
}

func appendRec(recs []*changeRecord, rec *changeRecord) []*changeRecord {
	if rec != nil {
		recs = append(recs, rec)
	}
	return recs
}
