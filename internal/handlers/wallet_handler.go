package handlers

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
	"github.com/vam12375/muying-mall-sub003/internal/service"
	"github.com/vam12375/muying-mall-sub003/internal/web"
)

type LedgerManager interface {
	ApplyChange(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cause domain.LedgerCause, causeID uuid.UUID, adminOverride bool) (decimal.Decimal, error)
}

// WalletHandler serves the admin wallet operations: balance lookup and
// manual adjustment (recharge, correction).
type WalletHandler struct {
	ledger   LedgerManager
	reader   service.Reader
	validate *validator.Validate
}

func NewWalletHandler(ledger LedgerManager, reader service.Reader) *WalletHandler {
	return &WalletHandler{
		ledger:   ledger,
		reader:   reader,
		validate: validator.New(),
	}
}

func (h *WalletHandler) GetBalance(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid user ID", map[string]interface{}{
			"user_id": c.Params("userId"),
		})
	}

	account, err := h.reader.GetAccountByUser(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "Account balance", map[string]interface{}{
		"user_id": account.UserID,
		"balance": account.Balance.StringFixed(2),
		"frozen":  account.Frozen.StringFixed(2),
	})
}

// AdjustBalance applies a signed manual change. A negative adjustment with
// override permitted may drive the balance below zero.
func (h *WalletHandler) AdjustBalance(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return web.BadRequestResponse(c, "Invalid user ID", nil)
	}

	var req AdjustBalanceRequest
	if err := c.BodyParser(&req); err != nil {
		return web.BadRequestResponse(c, "Invalid request body", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return web.BadRequestResponse(c, "Validation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsZero() {
		return web.BadRequestResponse(c, "Invalid adjustment amount", map[string]interface{}{
			"amount": req.Amount,
		})
	}

	balance, err := h.ledger.ApplyChange(c.Context(), userID, amount, domain.CauseAdmin, uuid.New(), req.Override)
	if err != nil {
		return respondError(c, err)
	}
	return web.SuccessResponse(c, "Balance adjusted", map[string]interface{}{
		"user_id": userID,
		"balance": balance.StringFixed(2),
	})
}
