package handlers

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/gateway"
	"github.com/vam12375/muying-mall-sub003/internal/service"
)

// Reconciler is the slice of the reconciliation engine the gateway-facing
// handlers need.
type Reconciler interface {
	HandleNotification(ctx context.Context, n gateway.Notification) string
	HandleReturn(ctx context.Context, n gateway.Notification) string
	InitiatePayment(ctx context.Context, orderID uuid.UUID, method domain.PaymentMethod, operator string) (*domain.Payment, error)
	PayWithWallet(ctx context.Context, paymentID uuid.UUID, operator string) (*domain.Payment, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, operator, reason string) (*domain.Order, error)
}

// NotifyHandler serves the gateway callbacks and the user-facing pay/cancel
// actions that contend with them.
type NotifyHandler struct {
	reconciler Reconciler
	resultURL  string
}

func NewNotifyHandler(reconciler Reconciler, resultURL string) *NotifyHandler {
	return &NotifyHandler{reconciler: reconciler, resultURL: resultURL}
}

// HandleNotify answers the asynchronous webhook with the bare string the
// gateway expects: "success" suppresses redelivery, anything else does not.
// The body contract holds regardless of HTTP status, so the status is
// always 200.
func (h *NotifyHandler) HandleNotify(c *fiber.Ctx) error {
	values, err := url.ParseQuery(string(c.Body()))
	if err != nil {
		log.Printf("Webhook body parse error: %v", err)
		return c.SendString(service.AckFail)
	}

	ack := h.reconciler.HandleNotification(c.Context(), gateway.ParseNotification(values))
	return c.SendString(ack)
}

// HandleReturn serves the synchronous browser redirect: query-only, then
// bounce the user agent to the storefront result page with the outcome.
func (h *NotifyHandler) HandleReturn(c *fiber.Ctx) error {
	values := url.Values{}
	for k, v := range c.Queries() {
		values.Set(k, v)
	}

	outcome := h.reconciler.HandleReturn(c.Context(), gateway.ParseNotification(values))
	return c.Redirect(fmt.Sprintf("%s?outcome=%s", h.resultURL, outcome), fiber.StatusFound)
}
