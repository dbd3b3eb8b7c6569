package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusSuccess    PaymentStatus = "success"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusClosed     PaymentStatus = "closed"
	PaymentStatusRefunding  PaymentStatus = "refunding"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusClosed},
	PaymentStatusProcessing: {PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusClosed},
	PaymentStatusSuccess:    {PaymentStatusRefunding},
	PaymentStatusRefunding:  {PaymentStatusRefunded, PaymentStatusFailed},
	PaymentStatusFailed:     {},
	PaymentStatusClosed:     {},
	PaymentStatusRefunded:   {},
}

func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

func (s PaymentStatus) Terminal() bool {
	next, ok := paymentTransitions[s]
	return ok && len(next) == 0
}

func CanTransitPayment(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func PaymentNextStates(from PaymentStatus) []PaymentStatus {
	next := paymentTransitions[from]
	out := make([]PaymentStatus, len(next))
	copy(out, next)
	return out
}

type PaymentMethod string

const (
	MethodAlipay PaymentMethod = "alipay"
	MethodWechat PaymentMethod = "wechat"
	MethodWallet PaymentMethod = "wallet"
)

type Payment struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"order_id" db:"order_id"`
	OrderNo   string          `json:"order_no" db:"order_no"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Method    PaymentMethod   `json:"method" db:"method"`
	Status    PaymentStatus   `json:"status" db:"status"`
	TradeNo   string          `json:"trade_no,omitempty" db:"trade_no"` // external transaction id, set at most once
	ExpireAt  time.Time       `json:"expire_at" db:"expire_at"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
