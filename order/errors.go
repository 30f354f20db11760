package order

import "errors"

// Validation errors surfaced by Build.
var (
	ErrEmptyOrder  = errors.New("order has no dishes or drinks")
	ErrInvalidLine = errors.New("order line has a negative price or quantity")
)
