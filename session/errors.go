package session

import "errors"

// Common errors for session store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrVersionConflict  = errors.New("version conflict")
	ErrNotFound         = errors.New("session not found")
	ErrDuplicateSession = errors.New("user already has an active session")
	ErrQuotaExceeded    = errors.New("message quota exceeded")
	ErrNoOrder          = errors.New("session has no order data")
)
