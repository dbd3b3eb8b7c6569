package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/events"
	"github.com/vam12375/muying-mall-sub003/internal/gateway"
)

// Gateway acknowledgment bodies. The gateway stops redelivering only on the
// exact string "success"; anything else triggers its retry schedule.
const (
	AckSuccess = "success"
	AckFail    = "fail"
)

// Synchronous-return outcomes carried back to the storefront result page.
const (
	OutcomeSuccess     = "success"
	OutcomePending     = "pending"
	OutcomeFailed      = "failed"
	OutcomeNotFound    = "not_found"
	OutcomeInvalidSign = "invalid_sign"
)

const gatewayOperator = "gateway"

// ReconcileService converges local Payment/Order state with the external
// gateway. All finalize paths run in their own unit of work, serialized per
// payment row, and are idempotent under duplicate and concurrent delivery.
type ReconcileService struct {
	runner       TxRunner
	reader       Reader
	gw           gateway.Client
	verifier     gateway.Verifier
	publisher    events.Publisher
	queryTimeout time.Duration
	staleAfter   time.Duration
	payExpiry    time.Duration
}

func NewReconcileService(
	runner TxRunner,
	reader Reader,
	gw gateway.Client,
	verifier gateway.Verifier,
	publisher events.Publisher,
	queryTimeout time.Duration,
	staleAfter time.Duration,
	payExpiry time.Duration,
) *ReconcileService {
	return &ReconcileService{
		runner:       runner,
		reader:       reader,
		gw:           gw,
		verifier:     verifier,
		publisher:    publisher,
		queryTimeout: queryTimeout,
		staleAfter:   staleAfter,
		payExpiry:    payExpiry,
	}
}

// InitiatePayment creates the live payment for a payable order, or returns
// the existing one so the pay page can be reopened safely. The amount is
// always the order's payable amount.
func (s *ReconcileService) InitiatePayment(ctx context.Context, orderID uuid.UUID, method domain.PaymentMethod, operator string) (*domain.Payment, error) {
	switch method {
	case domain.MethodAlipay, domain.MethodWechat, domain.MethodWallet:
	default:
		return nil, fmt.Errorf("unsupported payment method %q", method)
	}

	var payment *domain.Payment
	err := s.runner.RunInTx(ctx, func(st Store) error {
		o, err := st.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		switch o.Status {
		case domain.OrderStatusPendingConfirmation, domain.OrderStatusPendingPayment:
		default:
			return fmt.Errorf("%w: order in %s is not payable", domain.ErrIllegalTransition, o.Status)
		}

		if o.PaymentID != uuid.Nil {
			p, err := st.GetPaymentForUpdate(ctx, o.PaymentID)
			if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
				return err
			}
			if err == nil && (p.Status == domain.PaymentStatusPending || p.Status == domain.PaymentStatusProcessing) {
				payment = p
				return nil
			}
			// Closed or failed attempt: a fresh payment replaces it.
		}

		now := time.Now()
		payment = &domain.Payment{
			ID:        uuid.New(),
			OrderID:   o.ID,
			OrderNo:   o.OrderNo,
			UserID:    o.UserID,
			Amount:    o.PayableAmount,
			Method:    method,
			Status:    domain.PaymentStatusPending,
			ExpireAt:  now.Add(s.payExpiry),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.CreatePayment(ctx, payment); err != nil {
			return err
		}
		o.PaymentID = payment.ID
		o.UpdatedAt = now
		return st.UpdateOrder(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// HandleNotification processes one asynchronous gateway webhook and returns
// the bare acknowledgment body. A "fail" answer makes the gateway redeliver,
// so any error inside the finalize unit maps to "fail" and a duplicate of an
// already-applied outcome maps to "success".
func (s *ReconcileService) HandleNotification(ctx context.Context, n gateway.Notification) string {
	if err := s.verifier.Verify(n.Params); err != nil {
		log.Printf("Webhook signature rejected: out_trade_no=%s - %v", n.OutTradeNo, err)
		return AckFail
	}
	if n.OutTradeNo == "" {
		log.Printf("Webhook missing out_trade_no")
		return AckFail
	}

	switch {
	case n.TradeStatus.Succeeded():
		if _, err := s.finalizeSuccess(ctx, n.OutTradeNo, n.TradeNo, n.TotalAmount, "async notification"); err != nil {
			log.Printf("Webhook finalize error: out_trade_no=%s - %v", n.OutTradeNo, err)
			return AckFail
		}
		return AckSuccess

	case n.TradeStatus.Closed():
		if _, err := s.finalizeClosed(ctx, n.OutTradeNo, "trade closed by gateway"); err != nil {
			log.Printf("Webhook close error: out_trade_no=%s - %v", n.OutTradeNo, err)
			return AckFail
		}
		return AckSuccess

	default:
		// Understood but not final (e.g. WAIT_BUYER_PAY); nothing to apply.
		return AckSuccess
	}
}

// HandleReturn serves the user's browser redirect after paying. It is
// side-effect-light: it queries the gateway with a bounded timeout and only
// triggers the same idempotent finalize the webhook uses. A timeout is an
// inconclusive outcome, never a failure.
func (s *ReconcileService) HandleReturn(ctx context.Context, n gateway.Notification) string {
	if err := s.verifier.Verify(n.Params); err != nil {
		log.Printf("Return signature rejected: out_trade_no=%s - %v", n.OutTradeNo, err)
		return OutcomeInvalidSign
	}

	p, err := s.reader.GetPaymentByOrderNo(ctx, n.OutTradeNo)
	if err != nil {
		return OutcomeNotFound
	}

	switch p.Status {
	case domain.PaymentStatusSuccess, domain.PaymentStatusRefunding, domain.PaymentStatusRefunded:
		return OutcomeSuccess
	case domain.PaymentStatusClosed, domain.PaymentStatusFailed:
		return OutcomeFailed
	}

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.gw.QueryTrade(qctx, n.OutTradeNo)
	if err != nil {
		log.Printf("Return trade query inconclusive: out_trade_no=%s - %v", n.OutTradeNo, err)
		return OutcomePending
	}
	if !res.Exists {
		return OutcomePending
	}

	switch {
	case res.TradeStatus.Succeeded():
		if _, err := s.finalizeSuccess(ctx, n.OutTradeNo, res.TradeNo, res.TotalAmount.StringFixed(2), "return query"); err != nil {
			log.Printf("Return finalize error: out_trade_no=%s - %v", n.OutTradeNo, err)
			return OutcomePending
		}
		return OutcomeSuccess
	case res.TradeStatus.Closed():
		if _, err := s.finalizeClosed(ctx, n.OutTradeNo, "trade closed by gateway"); err != nil {
			return OutcomePending
		}
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

// PollPending is the lost-webhook fallback: payments stuck past the stale
// threshold are checked against the gateway and fed through the same
// finalize paths. Returns how many payments reached a final state.
func (s *ReconcileService) PollPending(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	stale, err := s.reader.ListStalePayments(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("stale payment scan error: %w", err)
	}

	finalized := 0
	for i := range stale {
		p := &stale[i]

		qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		res, err := s.gw.QueryTrade(qctx, p.OrderNo)
		cancel()
		if err != nil {
			// Inconclusive; the payment stays as-is until the next sweep.
			log.Printf("Poll trade query inconclusive: order_no=%s - %v", p.OrderNo, err)
			continue
		}

		switch {
		case res.Exists && res.TradeStatus.Succeeded():
			applied, err := s.finalizeSuccess(ctx, p.OrderNo, res.TradeNo, res.TotalAmount.StringFixed(2), "status poll")
			if err != nil {
				log.Printf("Poll finalize error: order_no=%s - %v", p.OrderNo, err)
				continue
			}
			if applied {
				finalized++
			}
		case res.Exists && res.TradeStatus.Closed():
			if applied, err := s.finalizeClosed(ctx, p.OrderNo, "trade closed by gateway"); err == nil && applied {
				finalized++
			}
		case !res.Exists && time.Now().After(p.ExpireAt):
			if applied, err := s.finalizeClosed(ctx, p.OrderNo, "payment expired unpaid"); err == nil && applied {
				finalized++
			}
		}
	}
	return finalized, nil
}

// PayWithWallet charges the internal wallet and finalizes Payment and Order
// synchronously in one unit of work. There is no external notification to
// reconcile: the debit and both transitions commit or roll back together.
func (s *ReconcileService) PayWithWallet(ctx context.Context, paymentID uuid.UUID, operator string) (*domain.Payment, error) {
	var payment *domain.Payment
	var entry *domain.LedgerEntry
	var recs []*changeRecord
	applied := false

	err := s.runner.RunInTx(ctx, func(st Store) error {
		p, err := st.GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = p

		// Idempotency gate for client retries.
		switch p.Status {
		case domain.PaymentStatusSuccess, domain.PaymentStatusRefunding, domain.PaymentStatusRefunded:
			return nil
		}

		if p.Method != domain.MethodWallet {
			return fmt.Errorf("payment %s method is %s, not wallet", p.ID, p.Method)
		}

		entry, err = applyLedgerChange(ctx, st, p.UserID, p.Amount.Neg(), domain.CausePayment, p.ID, false)
		if err != nil {
			return err
		}

		// The ledger entry doubles as the internal transaction reference.
		if p.TradeNo == "" {
			p.TradeNo = "WALLET-" + entry.ID.String()
		}

		recs, err = s.settlePaymentAndOrder(ctx, st, p, operator, "wallet payment")
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		publishAll(s.publisher, recs)
		publish(s.publisher, events.Event{
			ID:            uuid.New(),
			EventType:     events.WalletDebitedEvent,
			Entity:        "account",
			EntityID:      entry.AccountID,
			OrderNo:       payment.OrderNo,
			Timestamp:     time.Now(),
			Service:       serviceName,
			CorrelationID: uuid.New(),
			Payload:       entry,
		})
		s.publishPaymentSucceeded(payment)
	}
	return payment, nil
}

// CancelOrder is the user/ops cancel path. It contends with gateway
// finalization for the same rows: whichever acquires the lock first wins and
// the loser is rejected by the transition table. Cancelling also closes any
// live payment in the same unit of work.
func (s *ReconcileService) CancelOrder(ctx context.Context, orderID uuid.UUID, operator, reason string) (*domain.Order, error) {
	var order *domain.Order
	var recs []*changeRecord

	err := s.runner.RunInTx(ctx, func(st Store) error {
		o, err := st.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}

		rec, err := applyOrderTransition(ctx, st, o, domain.OrderStatusCancelled, operator, reason)
		if err != nil {
			return err
		}
		if rec != nil {
			recs = append(recs, rec)
		}
		order = o

		if o.PaymentID == uuid.Nil {
			return nil
		}
		p, err := st.GetPaymentForUpdate(ctx, o.PaymentID)
		if err != nil {
			if errors.Is(err, domain.ErrPaymentNotFound) {
				return nil
			}
			return err
		}
		if p.Status == domain.PaymentStatusPending || p.Status == domain.PaymentStatusProcessing {
			prec, err := applyPaymentTransition(ctx, st, p, domain.PaymentStatusClosed, operator, "order cancelled")
			if err != nil {
				return err
			}
			if prec != nil {
				recs = append(recs, prec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publishAll(s.publisher, recs)
	return order, nil
}

// finalizeSuccess commits the success outcome for one payment exactly once:
// external transaction id (first writer wins), Payment to SUCCESS, owning
// Order to its post-payment state, all in a single unit of work. A payment
// already at or past SUCCESS is the idempotency gate: (false, nil) with no
// side effect.
func (s *ReconcileService) finalizeSuccess(ctx context.Context, outTradeNo, tradeNo, totalAmount, reason string) (bool, error) {
	var payment *domain.Payment
	var recs []*changeRecord
	applied := false

	err := s.runner.RunInTx(ctx, func(st Store) error {
		p, err := st.GetPaymentByOrderNoForUpdate(ctx, outTradeNo)
		if err != nil {
			return err
		}
		payment = p

		switch p.Status {
		case domain.PaymentStatusSuccess, domain.PaymentStatusRefunding, domain.PaymentStatusRefunded:
			// Already applied; duplicate delivery is acknowledged untouched.
			return nil
		}

		if totalAmount != "" {
			notified, err := decimal.NewFromString(totalAmount)
			if err != nil || !notified.Equal(p.Amount) {
				return fmt.Errorf("%w: notified %q, recorded %s", domain.ErrAmountMismatch, totalAmount, p.Amount.StringFixed(2))
			}
		}

		if p.TradeNo == "" && tradeNo != "" {
			p.TradeNo = tradeNo
		}

		recs, err = s.settlePaymentAndOrder(ctx, st, p, gatewayOperator, reason)
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		publishAll(s.publisher, recs)
		s.publishPaymentSucceeded(payment)
	}
	return applied, nil
}

// settlePaymentAndOrder drives Payment to SUCCESS and the owning Order to
// PENDING_SHIPMENT inside the caller's unit of work, hopping through the
// intermediate states the tables require.
func (s *ReconcileService) settlePaymentAndOrder(ctx context.Context, st Store, p *domain.Payment, operator, reason string) ([]*changeRecord, error) {
	var recs []*changeRecord

	if p.Status == domain.PaymentStatusPending {
		rec, err := applyPaymentTransition(ctx, st, p, domain.PaymentStatusProcessing, operator, reason)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}
	rec, err := applyPaymentTransition(ctx, st, p, domain.PaymentStatusSuccess, operator, reason)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		recs = append(recs, rec)
	}

	o, err := st.GetOrderForUpdate(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}
	if o.Status == domain.OrderStatusPendingConfirmation {
		orec, err := applyOrderTransition(ctx, st, o, domain.OrderStatusPendingPayment, operator, reason)
		if err != nil {
			return nil, err
		}
		if orec != nil {
			recs = append(recs, orec)
		}
	}
	orec, err := applyOrderTransition(ctx, st, o, domain.OrderStatusPendingShipment, operator, reason)
	if err != nil {
		// e.g. the order was cancelled first: the whole unit rolls back and
		// the notification is answered with "fail" for manual review.
		return nil, err
	}
	if orec != nil {
		recs = append(recs, orec)
	}
	return recs, nil
}

// finalizeClosed moves a still-live payment to CLOSED. Payments already in a
// negative terminal state are a consistent no-op; a settled payment is left
// untouched (the closure notification is acknowledged but cannot regress a
// success).
func (s *ReconcileService) finalizeClosed(ctx context.Context, outTradeNo, reason string) (bool, error) {
	var recs []*changeRecord
	applied := false

	err := s.runner.RunInTx(ctx, func(st Store) error {
		p, err := st.GetPaymentByOrderNoForUpdate(ctx, outTradeNo)
		if err != nil {
			return err
		}

		switch p.Status {
		case domain.PaymentStatusPending, domain.PaymentStatusProcessing:
		default:
			return nil
		}

		rec, err := applyPaymentTransition(ctx, st, p, domain.PaymentStatusClosed, gatewayOperator, reason)
		if err != nil {
			return err
		}
		if rec != nil {
			recs = append(recs, rec)
			applied = true
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	publishAll(s.publisher, recs)
	return applied, nil
}

func (s *ReconcileService) publishPaymentSucceeded(p *domain.Payment) {
	publish(s.publisher, events.Event{
		ID:            uuid.New(),
		EventType:     events.PaymentSucceededEvent,
		Entity:        string(domain.EntityPayment),
		EntityID:      p.ID,
		OrderNo:       p.OrderNo,
		Timestamp:     time.Now(),
		Service:       serviceName,
		CorrelationID: uuid.New(),
		Payload: events.PaymentSucceededPayload{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			OrderNo:   p.OrderNo,
			TradeNo:   p.TradeNo,
			Amount:    p.Amount.StringFixed(2),
			Method:    string(p.Method),
		},
	})
}
