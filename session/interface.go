package session

import "context"

// Store defines the driver interface for session and quota persistence.
//
// Every method is a single atomic operation against the underlying store.
// Request-handling code must never read-modify-write across separate
// calls; that window is exactly where duplicate sessions and
// double-counted quotas come from. The Manager layers the conversation
// operations on top of this interface with CAS retry loops.
type Store interface {
	// CreateSession creates a new session with Version set to 1 and binds
	// it to data.UserID. The bind is conditional: if the user already has
	// a session, ErrDuplicateSession is returned and nothing is written.
	CreateSession(ctx context.Context, data *Data) error

	// GetSession retrieves a session by ID.
	// Returns nil if the session is not found (not an error).
	GetSession(ctx context.Context, id string) (*Data, error)

	// SessionIDByUser returns the session bound to a user, or "" when the
	// user has none.
	SessionIDByUser(ctx context.Context, userID string) (string, error)

	// UpdateSession updates an existing session with optimistic locking.
	// Verifies the Version matches the stored version, increments it,
	// updates UpdatedAt and persists the data.
	// Returns ErrVersionConflict if the version does not match.
	// Returns ErrNotFound if the session does not exist.
	UpdateSession(ctx context.Context, data *Data) error

	// DeleteSession removes a session and its user binding.
	DeleteSession(ctx context.Context, id string) error

	// GetQuota retrieves a user's quota record.
	// Returns nil if no record exists yet (not an error).
	GetQuota(ctx context.Context, userID string) (*QuotaRecord, error)

	// PutQuota upserts a quota record with optimistic locking. A record
	// with Version 0 is created; otherwise the stored version must match.
	PutQuota(ctx context.Context, rec *QuotaRecord) error

	// UpdateSessionAndQuota commits a session update and a quota update
	// together, both under optimistic locking. Either both land or
	// neither does. This is what keeps a turn append and its quota
	// increment inseparable.
	UpdateSessionAndQuota(ctx context.Context, data *Data, rec *QuotaRecord) error

	// Close closes the store and releases any resources.
	Close() error
}
