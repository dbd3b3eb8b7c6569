package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusApproved   RefundStatus = "approved"
	RefundStatusRejected   RefundStatus = "rejected"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

var refundTransitions = map[RefundStatus][]RefundStatus{
	RefundStatusPending:    {RefundStatusApproved, RefundStatusRejected},
	RefundStatusApproved:   {RefundStatusProcessing},
	RefundStatusProcessing: {RefundStatusCompleted, RefundStatusFailed},
	RefundStatusRejected:   {},
	RefundStatusCompleted:  {},
	RefundStatusFailed:     {},
}

func (s RefundStatus) Valid() bool {
	_, ok := refundTransitions[s]
	return ok
}

func (s RefundStatus) Terminal() bool {
	next, ok := refundTransitions[s]
	return ok && len(next) == 0
}

func CanTransitRefund(from, to RefundStatus) bool {
	for _, s := range refundTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func RefundNextStates(from RefundStatus) []RefundStatus {
	next := refundTransitions[from]
	out := make([]RefundStatus, len(next))
	copy(out, next)
	return out
}

type Refund struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"order_id" db:"order_id"`
	PaymentID uuid.UUID       `json:"payment_id" db:"payment_id"`
	UserID    uuid.UUID       `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Reason    string          `json:"reason" db:"reason"`
	Status    RefundStatus    `json:"status" db:"status"`
	Evidence  []string        `json:"evidence,omitempty" db:"evidence"` // opaque attachment references
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
