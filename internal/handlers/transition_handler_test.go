package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

type stubOrderTransitioner struct {
	err    error
	target domain.OrderStatus
}

func (s *stubOrderTransitioner) Transition(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus, operator, reason string) (*domain.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.target = target
	return &domain.Order{ID: orderID, Status: target}, nil
}

type stubPaymentTransitioner struct{}

func (s *stubPaymentTransitioner) Transition(ctx context.Context, paymentID uuid.UUID, target domain.PaymentStatus, operator, reason string) (*domain.Payment, error) {
	return &domain.Payment{ID: paymentID, Status: target}, nil
}

type stubRefundTransitioner struct{}

func (s *stubRefundTransitioner) Transition(ctx context.Context, refundID uuid.UUID, target domain.RefundStatus, operator, reason string) (*domain.Refund, error) {
	return &domain.Refund{ID: refundID, Status: target}, nil
}

// stubReader serves canned entities for the read-only endpoints.
type stubReader struct {
	order *domain.Order
	logs  []domain.StateLog
}

func (r *stubReader) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if r.order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return r.order, nil
}

func (r *stubReader) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return nil, domain.ErrPaymentNotFound
}

func (r *stubReader) GetPaymentByOrderNo(ctx context.Context, orderNo string) (*domain.Payment, error) {
	return nil, domain.ErrPaymentNotFound
}

func (r *stubReader) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	return nil, domain.ErrRefundNotFound
}

func (r *stubReader) GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	return nil, domain.ErrAccountNotFound
}

func (r *stubReader) ListStateLogs(ctx context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.StateLog, error) {
	return r.logs, nil
}

func (r *stubReader) ListStalePayments(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error) {
	return nil, nil
}

func newTransitionApp(orders OrderTransitioner, reader *stubReader) *fiber.App {
	if reader == nil {
		reader = &stubReader{}
	}
	app := fiber.New()
	h := NewTransitionHandler(orders, &stubPaymentTransitioner{}, &stubRefundTransitioner{}, reader)
	app.Post("/api/v1/:entity/:id/transition", h.Transition)
	app.Get("/api/v1/:entity/:id/next-states", h.NextStates)
	app.Get("/api/v1/:entity/:id/history", h.History)
	app.Get("/api/v1/:entity/can-transit", h.CanTransit)
	return app
}

func TestTransitionEndpoint(t *testing.T) {
	t.Run("applies an order transition", func(t *testing.T) {
		orders := &stubOrderTransitioner{}
		app := newTransitionApp(orders, nil)

		body := `{"target":"pending_payment","operator":"ops","reason":"stock confirmed"}`
		req := httptest.NewRequest("POST", "/api/v1/order/"+uuid.NewString()+"/transition", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, domain.OrderStatusPendingPayment, orders.target)
	})

	t.Run("illegal transition maps to 409", func(t *testing.T) {
		app := newTransitionApp(&stubOrderTransitioner{err: domain.ErrIllegalTransition}, nil)

		body := `{"target":"completed","operator":"ops"}`
		req := httptest.NewRequest("POST", "/api/v1/order/"+uuid.NewString()+"/transition", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown entity type", func(t *testing.T) {
		app := newTransitionApp(&stubOrderTransitioner{}, nil)

		body := `{"target":"done","operator":"ops"}`
		req := httptest.NewRequest("POST", "/api/v1/invoice/"+uuid.NewString()+"/transition", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing target fails validation", func(t *testing.T) {
		app := newTransitionApp(&stubOrderTransitioner{}, nil)

		req := httptest.NewRequest("POST", "/api/v1/order/"+uuid.NewString()+"/transition", strings.NewReader(`{"operator":"ops"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestNextStatesEndpoint(t *testing.T) {
	order := &domain.Order{ID: uuid.New(), Status: domain.OrderStatusPendingPayment}
	app := newTransitionApp(&stubOrderTransitioner{}, &stubReader{order: order})

	req := httptest.NewRequest("GET", "/api/v1/order/"+order.ID.String()+"/next-states", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var envelope struct {
		Data struct {
			Current    string   `json:"current"`
			NextStates []string `json:"next_states"`
		} `json:"data"`
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &envelope))

	assert.Equal(t, "pending_payment", envelope.Data.Current)
	assert.ElementsMatch(t, []string{"pending_shipment", "cancelled"}, envelope.Data.NextStates)
}

func TestCanTransitEndpoint(t *testing.T) {
	app := newTransitionApp(&stubOrderTransitioner{}, nil)

	check := func(t *testing.T, query string, want bool) {
		t.Helper()
		req := httptest.NewRequest("GET", "/api/v1/payment/can-transit?"+query, nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var envelope struct {
			Data struct {
				Allowed bool `json:"allowed"`
			} `json:"data"`
		}
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &envelope))
		assert.Equal(t, want, envelope.Data.Allowed)
	}

	check(t, "current=pending&target=processing", true)
	check(t, "current=pending&target=success", false)
	check(t, "current=closed&target=processing", false)
}

func TestHistoryEndpoint(t *testing.T) {
	entityID := uuid.New()
	logs := []domain.StateLog{
		{
			ID:        uuid.New(),
			Entity:    domain.EntityPayment,
			EntityID:  entityID,
			FromState: "pending",
			ToState:   "processing",
			Operator:  "gateway",
			CreatedAt: time.Now(),
		},
	}
	app := newTransitionApp(&stubOrderTransitioner{}, &stubReader{logs: logs})

	req := httptest.NewRequest("GET", "/api/v1/payment/"+entityID.String()+"/history", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var envelope struct {
		Data []StateLogResponse `json:"data"`
	}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &envelope))

	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "pending", envelope.Data[0].FromState)
	assert.Equal(t, "processing", envelope.Data[0].ToState)
}
