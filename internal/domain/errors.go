package domain

import "errors"

var (
	// ErrIllegalTransition is returned when the requested (current, target)
	// pair is absent from the entity's transition table. Nothing is mutated.
	ErrIllegalTransition = errors.New("illegal state transition")

	// ErrSignatureInvalid means a gateway notification failed signature
	// verification and must be treated as untrusted.
	ErrSignatureInvalid = errors.New("invalid gateway signature")

	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrRefundNotFound  = errors.New("refund not found")
	ErrAccountNotFound = errors.New("account not found")

	// ErrAmountMismatch means the notified amount disagrees with the local
	// payment record; the notification is rejected for manual review.
	ErrAmountMismatch = errors.New("notified amount does not match payment")

	ErrInsufficientFunds = errors.New("insufficient account balance")
)
