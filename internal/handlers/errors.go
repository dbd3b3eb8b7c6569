package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/web"
)

// respondError maps the domain error taxonomy onto the API envelope.
// Business rejections surface with their message; anything unexpected stays
// a generic fault.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrIllegalTransition):
		return web.ConflictResponse(c, err.Error(), nil)
	case errors.Is(err, domain.ErrInsufficientFunds):
		return web.UnprocessableResponse(c, err.Error(), nil)
	case errors.Is(err, domain.ErrAmountMismatch):
		return web.ConflictResponse(c, err.Error(), nil)
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrRefundNotFound),
		errors.Is(err, domain.ErrAccountNotFound):
		return web.NotFoundResponse(c, err.Error())
	default:
		return web.InternalServerErrorResponse(c, "Internal error", nil)
	}
}
