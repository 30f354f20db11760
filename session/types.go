package session

import (
	"time"

	"github.com/camperolabs/ordering/order"
)

// Turn is one exchange unit in a conversation history: a user message
// and/or an assistant reply. Every turn has at least one of User/Bot set.
//
// The first turn of every history is the initial system prompt, tagged
// with the identifier of the user owning the session.
type Turn struct {
	User   string `json:"user,omitempty"`
	Bot    string `json:"bot,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// Data is all serializable state of one active conversation. It is
// persisted as a single value and updated with optimistic locking via
// Version, so the same logic runs against the in-memory driver and Redis.
//
// A session is owned by exactly one user while active. Reset replaces the
// history and clears the order fields in place rather than deleting the
// session, so the user binding persists into the next order cycle.
type Data struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	History      []Turn       `json:"history"`
	LastActivity time.Time    `json:"last_activity"`
	PaymentLink  string       `json:"payment_link,omitempty"`
	OrderData    *order.Order `json:"order_data,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Version      int64        `json:"version"` // Monotonically increasing for optimistic locking
}

// clone returns a copy with its own history slice and order snapshot, so
// store reads never alias store-internal state.
func (d *Data) clone() *Data {
	c := *d
	c.History = append([]Turn(nil), d.History...)
	if d.OrderData != nil {
		o := *d.OrderData
		c.OrderData = &o
	}
	return &c
}

// QuotaRecord tracks one user's message allowance. It is keyed by user
// identifier, not session identifier, because the allowance must survive
// session resets.
type QuotaRecord struct {
	UserID          string    `json:"user_id"`
	MessageCount    int       `json:"message_count"`
	WindowStart     time.Time `json:"window_start"`
	LastMessageTime time.Time `json:"last_message_time"`
	Blocked         bool      `json:"blocked"`
	BlockedAt       time.Time `json:"blocked_at,omitempty"`
	Version         int64     `json:"version"`
}

func (q *QuotaRecord) clone() *QuotaRecord {
	c := *q
	return &c
}
