package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

// LedgerService applies signed balance changes to wallet accounts. The
// balance write and its LedgerEntry commit as one unit; there is never one
// without the other.
type LedgerService struct {
	runner TxRunner
}

func NewLedgerService(runner TxRunner) *LedgerService {
	return &LedgerService{runner: runner}
}

// ApplyChange debits (negative amount) or credits (positive amount) the
// user's account in its own unit of work and returns the new balance.
// adminOverride permits a debit to drive the balance negative.
func (s *LedgerService) ApplyChange(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, cause domain.LedgerCause, causeID uuid.UUID, adminOverride bool) (decimal.Decimal, error) {
	var newBalance decimal.Decimal
	err := s.runner.RunInTx(ctx, func(st Store) error {
		entry, err := applyLedgerChange(ctx, st, userID, amount, cause, causeID, adminOverride)
		if err != nil {
			return err
		}
		newBalance = entry.BalanceAfter
		return nil
	})
	if err != nil {
		return decimal.Decimal{}, err
	}
	return newBalance, nil
}

// applyLedgerChange is the in-transaction form used by finalize paths that
// must commit the ledger change together with state transitions.
func applyLedgerChange(ctx context.Context, st Store, userID uuid.UUID, amount decimal.Decimal, cause domain.LedgerCause, causeID uuid.UUID, adminOverride bool) (*domain.LedgerEntry, error) {
	account, err := st.GetAccountByUserForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	before := account.Balance
	after := before.Add(amount)
	if after.IsNegative() && !adminOverride {
		return nil, fmt.Errorf("%w: balance %s, change %s", domain.ErrInsufficientFunds, before.StringFixed(2), amount.StringFixed(2))
	}

	account.Balance = after
	account.UpdatedAt = time.Now()
	if err := st.UpdateAccountBalance(ctx, account); err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		AccountID:     account.ID,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		CauseType:     cause,
		CauseID:       causeID,
		CreatedAt:     time.Now(),
	}
	if err := st.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
