package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// Status-change events, one per entity
	OrderStatusChangedEvent   EventType = "order.status.changed"
	PaymentStatusChangedEvent EventType = "payment.status.changed"
	RefundStatusChangedEvent  EventType = "refund.status.changed"

	// Payment events
	PaymentSucceededEvent EventType = "payment.succeeded"
	PaymentClosedEvent    EventType = "payment.closed"
	PaymentFailedEvent    EventType = "payment.failed"

	// Refund events
	RefundCompletedEvent EventType = "refund.completed"
	RefundFailedEvent    EventType = "refund.failed"
	RefundRejectedEvent  EventType = "refund.rejected"

	// Wallet events
	WalletDebitedEvent  EventType = "wallet.debited"
	WalletCreditedEvent EventType = "wallet.credited"
)

type Event struct {
	ID            uuid.UUID   `json:"id"`
	EventType     EventType   `json:"event_type"`
	Entity        string      `json:"entity"`   // order | payment | refund | account
	EntityID      uuid.UUID   `json:"entity_id"`
	OrderNo       string      `json:"order_no,omitempty"`
	Payload       interface{} `json:"payload,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Service       string      `json:"service"`
	CorrelationID uuid.UUID   `json:"correlation_id"`
}

type StatusChangedPayload struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

type PaymentSucceededPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	OrderNo   string    `json:"order_no"`
	TradeNo   string    `json:"trade_no"`
	Amount    string    `json:"amount"`
	Method    string    `json:"method"`
}

type RefundCompletedPayload struct {
	RefundID  uuid.UUID `json:"refund_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Amount    string    `json:"amount"`
}

// Publisher is the outbound message-channel boundary. Delivery is
// at-least-once, fire-and-forget: callers must treat a publish failure as
// non-fatal and never let it fail a committed unit of work.
type Publisher interface {
	Publish(event Event) error
}
