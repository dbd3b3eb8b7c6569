package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingConfirmation OrderStatus = "pending_confirmation"
	OrderStatusPendingPayment      OrderStatus = "pending_payment"
	OrderStatusPendingShipment     OrderStatus = "pending_shipment"
	OrderStatusShipped             OrderStatus = "shipped"
	OrderStatusCompleted           OrderStatus = "completed"
	OrderStatusCancelled           OrderStatus = "cancelled"
	OrderStatusRefunding           OrderStatus = "refunding"
	OrderStatusRefunded            OrderStatus = "refunded"
)

// orderTransitions is the legal-transition table for orders. A pair that is
// not listed here is illegal; terminal states have an empty edge set.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingConfirmation: {OrderStatusPendingPayment, OrderStatusCancelled},
	OrderStatusPendingPayment:      {OrderStatusPendingShipment, OrderStatusCancelled},
	OrderStatusPendingShipment:     {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunding},
	OrderStatusShipped:             {OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunding},
	OrderStatusCompleted:           {OrderStatusRefunding},
	OrderStatusRefunding:           {OrderStatusRefunded, OrderStatusCompleted},
	OrderStatusCancelled:           {},
	OrderStatusRefunded:            {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) Terminal() bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// CanTransitOrder reports whether the order table contains the (from, to) edge.
func CanTransitOrder(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderNextStates returns a copy of the legal next states from `from`.
func OrderNextStates(from OrderStatus) []OrderStatus {
	next := orderTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

type Order struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderNo       string          `json:"order_no" db:"order_no"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	PayableAmount decimal.Decimal `json:"payable_amount" db:"payable_amount"`
	Status        OrderStatus     `json:"status" db:"status"`
	PaymentID     uuid.UUID       `json:"payment_id,omitempty" db:"payment_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty" db:"paid_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}
