package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account is the internal wallet. Balance mutations go through the ledger
// updater only; every mutation is paired with exactly one LedgerEntry.
type Account struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Frozen    decimal.Decimal `json:"frozen" db:"frozen"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

type LedgerCause string

const (
	CausePayment LedgerCause = "payment"
	CauseRefund  LedgerCause = "refund"
	CauseAdmin   LedgerCause = "admin"
)

// LedgerEntry records one signed balance change. Invariant:
// BalanceAfter = BalanceBefore + Amount.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	AccountID     uuid.UUID       `json:"account_id" db:"account_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"` // signed: debit negative, credit positive
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	CauseType     LedgerCause     `json:"cause_type" db:"cause_type"`
	CauseID       uuid.UUID       `json:"cause_id" db:"cause_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
