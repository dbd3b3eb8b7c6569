package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/web"
)

type RefundManager interface {
	Request(ctx context.Context, paymentID uuid.UUID, amount decimal.Decimal, reason string, evidence []string, operator string) (*domain.Refund, error)
	Approve(ctx context.Context, refundID uuid.UUID, operator, reason string) (*domain.Refund, error)
	Reject(ctx context.Context, refundID uuid.UUID, operator, reason string) (*domain.Refund, error)
	Execute(ctx context.Context, refundID uuid.UUID, operator string) (*domain.Refund, error)
}

type RefundHandler struct {
	refunds  RefundManager
	validate *validator.Validate
}

func NewRefundHandler(refunds RefundManager) *RefundHandler {
	return &RefundHandler{
		refunds:  refunds,
		validate: validator.New(),
	}
}

func (h *RefundHandler) Request(c *fiber.Ctx) error {
	var req RefundRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return web.BadRequestResponse(c, "Invalid payment ID", nil)
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return web.BadRequestResponse(c, "Invalid refund amount", map[string]interface{}{
			"amount": req.Amount,
		})
	}

	refund, err := h.refunds.Request(c.Context(), paymentID, amount, req.Reason, req.Evidence, req.Operator)
	if err != nil {
		return respondError(c, err)
	}
	return web.CreatedResponse(c, "Refund requested", refund)
}

func (h *RefundHandler) Approve(c *fiber.Ctx) error {
	return h.review(c, h.refunds.Approve, "Refund approved")
}

func (h *RefundHandler) Reject(c *fiber.Ctx) error {
	return h.review(c, h.refunds.Reject, "Refund rejected")
}

func (h *RefundHandler) Execute(c *fiber.Ctx) error {
	refundID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid refund ID", nil)
	}

	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	refund, err := h.refunds.Execute(c.Context(), refundID, req.Operator)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "Refund executed", refund)
}

func (h *RefundHandler) review(c *fiber.Ctx, fn func(context.Context, uuid.UUID, string, string) (*domain.Refund, error), message string) error {
	refundID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid refund ID", nil)
	}

	var req ReviewRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	refund, err := fn(c.Context(), refundID, req.Operator, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, message, refund)
}
