package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

type TransitionRequest struct {
	Target   string `json:"target" validate:"required"`
	Operator string `json:"operator" validate:"required"`
	Reason   string `json:"reason" validate:"max=255"`
}

type CancelOrderRequest struct {
	Operator string `json:"operator" validate:"required"`
	Reason   string `json:"reason" validate:"max=255"`
}

type WalletPayRequest struct {
	Operator string `json:"operator" validate:"required"`
}

type InitiatePaymentRequest struct {
	Method   string `json:"method" validate:"required,oneof=alipay wechat wallet"`
	Operator string `json:"operator" validate:"required"`
}

type RefundRequest struct {
	PaymentID string   `json:"payment_id" validate:"required,uuid4"`
	Amount    string   `json:"amount" validate:"required"`
	Reason    string   `json:"reason" validate:"required,max=255"`
	Evidence  []string `json:"evidence" validate:"max=9"`
	Operator  string   `json:"operator" validate:"required"`
}

type AdjustBalanceRequest struct {
	Amount   string `json:"amount" validate:"required"` // signed decimal string
	Operator string `json:"operator" validate:"required"`
	Reason   string `json:"reason" validate:"max=255"`
	Override bool   `json:"override"`
}

type ReviewRequest struct {
	Operator string `json:"operator" validate:"required"`
	Reason   string `json:"reason" validate:"max=255"`
}

type StateLogResponse struct {
	ID        uuid.UUID `json:"id"`
	Entity    string    `json:"entity"`
	EntityID  uuid.UUID `json:"entity_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Operator  string    `json:"operator"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toStateLogResponses(logs []domain.StateLog) []StateLogResponse {
	out := make([]StateLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, StateLogResponse{
			ID:        l.ID,
			Entity:    string(l.Entity),
			EntityID:  l.EntityID,
			FromState: l.FromState,
			ToState:   l.ToState,
			Operator:  l.Operator,
			Reason:    l.Reason,
			CreatedAt: l.CreatedAt,
		})
	}
	return out
}
