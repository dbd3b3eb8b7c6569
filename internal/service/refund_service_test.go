package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/events"
	"github.com/vam12375/muying-mall-sub003/internal/gateway"
)

func newRefundService(store *memStore, pub events.Publisher, gw gateway.Client) *RefundService {
	if pub == nil {
		pub = &capturePublisher{}
	}
	if gw == nil {
		gw = &stubGateway{}
	}
	return NewRefundService(store, store, gw, pub, time.Second)
}

func TestRefundRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a pending refund against a settled payment", func(t *testing.T) {
		store := newMemStore()
		svc := newRefundService(store, nil, nil)
		_, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")

		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("30.00"), "damaged item", []string{"photo-1"}, "user")
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusPending, r.Status)
		assert.Equal(t, payment.ID, r.PaymentID)
		assert.Equal(t, payment.OrderID, r.OrderID)
		assert.Equal(t, []string{"photo-1"}, r.Evidence)
		assert.Empty(t, store.stateLogs(), "creation is not a transition")
	})

	t.Run("rejects an unsettled payment", func(t *testing.T) {
		store := newMemStore()
		svc := newRefundService(store, nil, nil)
		_, payment := seedOrderWithPayment(store, domain.OrderStatusPendingPayment, domain.PaymentStatusPending, domain.MethodAlipay, "99.00")

		_, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("30.00"), "", nil, "user")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("rejects an amount above the paid amount", func(t *testing.T) {
		store := newMemStore()
		svc := newRefundService(store, nil, nil)
		_, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")

		_, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("100.00"), "", nil, "user")
		assert.Error(t, err)
	})

	t.Run("rejects a non-positive amount", func(t *testing.T) {
		store := newMemStore()
		svc := newRefundService(store, nil, nil)
		_, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")

		_, err := svc.Request(ctx, payment.ID, decimal.Zero, "", nil, "user")
		assert.Error(t, err)
	})
}

func TestRefundReview(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*memStore, *capturePublisher, *RefundService, *domain.Refund) {
		t.Helper()
		store := newMemStore()
		pub := &capturePublisher{}
		svc := newRefundService(store, pub, nil)
		_, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")
		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("99.00"), "damaged item", nil, "user")
		require.NoError(t, err)
		return store, pub, svc, r
	}

	t.Run("approve", func(t *testing.T) {
		store, _, svc, r := setup(t)

		approved, err := svc.Approve(ctx, r.ID, "reviewer", "evidence checks out")
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusApproved, approved.Status)
		assert.Equal(t, domain.RefundStatusApproved, store.refund(r.ID).Status)
	})

	t.Run("reject is terminal and published", func(t *testing.T) {
		store, pub, svc, r := setup(t)

		rejected, err := svc.Reject(ctx, r.ID, "reviewer", "no defect found")
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusRejected, rejected.Status)
		assert.True(t, rejected.Status.Terminal())
		assert.Contains(t, pub.types(), events.RefundRejectedEvent)

		_, err = svc.Approve(ctx, r.ID, "reviewer", "")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		assert.Equal(t, domain.RefundStatusRejected, store.refund(r.ID).Status)
	})
}

func TestRefundExecute(t *testing.T) {
	ctx := context.Background()

	t.Run("wallet refund credits and settles in one unit", func(t *testing.T) {
		store := newMemStore()
		pub := &capturePublisher{}
		svc := newRefundService(store, pub, nil)
		order, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodWallet, "99.00")
		seedAccount(store, order.UserID, "51.00")

		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("99.00"), "damaged item", nil, "user")
		require.NoError(t, err)
		_, err = svc.Approve(ctx, r.ID, "reviewer", "")
		require.NoError(t, err)

		executed, err := svc.Execute(ctx, r.ID, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusCompleted, executed.Status)
		assert.Equal(t, domain.PaymentStatusRefunded, store.payment(payment.ID).Status)
		assert.Equal(t, domain.OrderStatusRefunded, store.order(order.ID).Status)
		assert.True(t, store.account(order.UserID).Balance.Equal(decimal.RequireFromString("150.00")))

		entries := store.ledgerEntries()
		require.Len(t, entries, 1)
		assert.True(t, entries[0].Amount.Equal(decimal.RequireFromString("99.00")))
		assert.Equal(t, domain.CauseRefund, entries[0].CauseType)
		assert.Equal(t, r.ID, entries[0].CauseID)

		types := pub.types()
		assert.Contains(t, types, events.RefundCompletedEvent)
		assert.Contains(t, types, events.WalletCreditedEvent)
	})

	t.Run("gateway refund settles after the external call", func(t *testing.T) {
		store := newMemStore()
		pub := &capturePublisher{}
		var gotReq gateway.RefundRequest
		gw := &stubGateway{refundFn: func(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
			gotReq = req
			return &gateway.RefundResult{Success: true, RefundNo: "RF-1"}, nil
		}}
		svc := newRefundService(store, pub, gw)
		order, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")
		store.mu.Lock()
		store.payments[payment.ID].TradeNo = "2026090122001"
		store.mu.Unlock()

		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("30.00"), "damaged item", nil, "user")
		require.NoError(t, err)
		_, err = svc.Approve(ctx, r.ID, "reviewer", "")
		require.NoError(t, err)

		executed, err := svc.Execute(ctx, r.ID, "reviewer")
		require.NoError(t, err)
		assert.Equal(t, domain.RefundStatusCompleted, executed.Status)
		assert.Equal(t, domain.PaymentStatusRefunded, store.payment(payment.ID).Status)
		assert.Equal(t, domain.OrderStatusRefunded, store.order(order.ID).Status)

		assert.Equal(t, payment.OrderNo, gotReq.OutTradeNo)
		assert.Equal(t, "2026090122001", gotReq.TradeNo)
		assert.True(t, gotReq.Amount.Equal(decimal.RequireFromString("30.00")))

		assert.Empty(t, store.ledgerEntries(), "gateway refunds never touch the wallet")
		assert.Contains(t, pub.types(), events.RefundCompletedEvent)
	})

	t.Run("gateway rejection fails the refund and restores the order", func(t *testing.T) {
		store := newMemStore()
		pub := &capturePublisher{}
		gw := &stubGateway{refundFn: func(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
			return &gateway.RefundResult{Success: false, FailureReason: "refund window closed"}, nil
		}}
		svc := newRefundService(store, pub, gw)
		order, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")

		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("30.00"), "", nil, "user")
		require.NoError(t, err)
		_, err = svc.Approve(ctx, r.ID, "reviewer", "")
		require.NoError(t, err)

		_, err = svc.Execute(ctx, r.ID, "reviewer")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refund window closed")

		assert.Equal(t, domain.RefundStatusFailed, store.refund(r.ID).Status)
		assert.Equal(t, domain.PaymentStatusFailed, store.payment(payment.ID).Status)
		assert.Equal(t, domain.OrderStatusCompleted, store.order(order.ID).Status)
		assert.Contains(t, pub.types(), events.RefundFailedEvent)
	})

	t.Run("gateway error leaves the refund processing for a retry", func(t *testing.T) {
		store := newMemStore()
		gw := &stubGateway{refundFn: func(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
			return nil, errors.New("gateway 502")
		}}
		svc := newRefundService(store, nil, gw)
		order, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")

		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("30.00"), "", nil, "user")
		require.NoError(t, err)
		_, err = svc.Approve(ctx, r.ID, "reviewer", "")
		require.NoError(t, err)

		_, err = svc.Execute(ctx, r.ID, "reviewer")
		require.Error(t, err)

		// The first unit committed; only the outcome is outstanding.
		assert.Equal(t, domain.RefundStatusProcessing, store.refund(r.ID).Status)
		assert.Equal(t, domain.PaymentStatusRefunding, store.payment(payment.ID).Status)
		assert.Equal(t, domain.OrderStatusRefunding, store.order(order.ID).Status)
	})

	t.Run("execute requires an approved refund", func(t *testing.T) {
		store := newMemStore()
		svc := newRefundService(store, nil, nil)
		_, payment := seedOrderWithPayment(store, domain.OrderStatusPendingShipment, domain.PaymentStatusSuccess, domain.MethodAlipay, "99.00")

		r, err := svc.Request(ctx, payment.ID, decimal.RequireFromString("30.00"), "", nil, "user")
		require.NoError(t, err)

		_, err = svc.Execute(ctx, r.ID, "reviewer")
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		assert.Equal(t, domain.RefundStatusPending, store.refund(r.ID).Status)
	})
}
