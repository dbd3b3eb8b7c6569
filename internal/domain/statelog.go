package domain

import (
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityOrder   EntityType = "order"
	EntityPayment EntityType = "payment"
	EntityRefund  EntityType = "refund"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityOrder, EntityPayment, EntityRefund:
		return true
	}
	return false
}

// StateLog is one row of the append-only transition audit trail. Rows are
// never updated or deleted.
type StateLog struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Entity    EntityType `json:"entity" db:"entity"`
	EntityID  uuid.UUID  `json:"entity_id" db:"entity_id"`
	FromState string     `json:"from_state" db:"from_state"`
	ToState   string     `json:"to_state" db:"to_state"`
	Operator  string     `json:"operator" db:"operator"`
	Reason    string     `json:"reason" db:"reason"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
