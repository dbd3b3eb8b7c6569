package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

// Store is one transactional view over the entity tables. All ...ForUpdate
// reads take a row lock that is held until the surrounding unit of work
// commits or rolls back, serializing concurrent finalize attempts on the
// same row.
type Store interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	UpdateOrder(ctx context.Context, o *domain.Order) error

	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetPaymentByOrderNoForUpdate(ctx context.Context, orderNo string) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, p *domain.Payment) error

	CreateRefund(ctx context.Context, r *domain.Refund) error
	GetRefundForUpdate(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	UpdateRefund(ctx context.Context, r *domain.Refund) error

	GetAccountByUserForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	UpdateAccountBalance(ctx context.Context, a *domain.Account) error
	InsertLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error

	AppendStateLog(ctx context.Context, l *domain.StateLog) error
}

// TxRunner opens one independently-committable unit of work. Each Run call
// begins a fresh top-level transaction, never nested inside a caller's: a
// committed finalize survives even if the triggering request later fails,
// and a failed finalize rolls back without touching the caller's work.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}

// Reader serves lock-free lookups outside any unit of work.
type Reader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetPaymentByOrderNo(ctx context.Context, orderNo string) (*domain.Payment, error)
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	GetAccountByUser(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	ListStateLogs(ctx context.Context, entity domain.EntityType, entityID uuid.UUID) ([]domain.StateLog, error)
	ListStalePayments(ctx context.Context, olderThan time.Time, limit int) ([]domain.Payment, error)
}
