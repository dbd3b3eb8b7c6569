package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/web"
)

// PaymentHandler serves the user-initiated actions that race with the
// reconciliation engine: wallet payment and order cancellation.
type PaymentHandler struct {
	reconciler Reconciler
	validate   *validator.Validate
}

func NewPaymentHandler(reconciler Reconciler) *PaymentHandler {
	return &PaymentHandler{
		reconciler: reconciler,
		validate:   validator.New(),
	}
}

// InitiatePayment opens (or re-opens) the payment for an order.
func (h *PaymentHandler) InitiatePayment(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"id": c.Params("id"),
		})
	}

	var req InitiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	payment, err := h.reconciler.InitiatePayment(c.Context(), orderID, domain.PaymentMethod(req.Method), req.Operator)
	if err != nil {
		return respondError(c, err)
	}
	return web.CreatedResponse(c, "Payment initiated", payment)
}

func (h *PaymentHandler) PayWithWallet(c *fiber.Ctx) error {
	paymentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid payment ID", map[string]interface{}{
			"id": c.Params("id"),
		})
	}

	var req WalletPayRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	payment, err := h.reconciler.PayWithWallet(c.Context(), paymentID, req.Operator)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "Wallet payment settled", payment)
}

func (h *PaymentHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid order ID", map[string]interface{}{
			"id": c.Params("id"),
		})
	}

	var req CancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	order, err := h.reconciler.CancelOrder(c.Context(), orderID, req.Operator, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "Order cancelled", order)
}

func (h *PaymentHandler) HealthCheck(c *fiber.Ctx) error {
	return web.SuccessResponse(c, "Payment core is healthy", map[string]interface{}{
		"service": "payment-core",
		"status":  "healthy",
	})
}
