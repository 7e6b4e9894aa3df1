package service

import "errors"

// Validation errors surfaced to callers. These are never retried
// automatically; clients are expected to show them and not resubmit blindly.
var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnauthorized         = errors.New("actor not permitted for this transition")
	ErrMissingPaymentType   = errors.New("payment type is required for delivery")
	ErrInvalidPaymentType   = errors.New("payment type must be cod or qr")
	ErrOrderAlreadyTerminal = errors.New("order is already delivered or cancelled")
	ErrAgentNotFound        = errors.New("delivery agent not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidStock         = errors.New("stock cannot be negative")
	ErrEmptyOrder           = errors.New("order has no items")
)
