package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/camperolabs/ordering"
	"github.com/camperolabs/ordering/order"
)

// casAttempts bounds how often an operation retries after losing an
// optimistic-locking race before giving up.
const casAttempts = 5

// DefaultQuotaLimit is the number of messages a user may send before the
// quota blocks further turns.
const DefaultQuotaLimit = 30

// DefaultBlockCooldown is how long a blocked user stays blocked.
const DefaultBlockCooldown = time.Hour

// Manager implements the conversation operations on top of a Store.
//
// Every operation is a read-modify-write expressed as a bounded CAS retry
// loop over the driver's version checks, so concurrent requests for the
// same session (duplicate webhook deliveries included) serialize cleanly
// regardless of the driver.
type Manager struct {
	store         Store
	initialPrompt string
	quotaLimit    int
	blockCooldown time.Duration
	now           func() time.Time
	logger        ordering.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithInitialPrompt sets the system prompt seeded as the first turn of
// every new or reset session.
func WithInitialPrompt(prompt string) ManagerOption {
	return func(m *Manager) { m.initialPrompt = prompt }
}

// WithQuotaLimit overrides the per-user message limit.
func WithQuotaLimit(limit int) ManagerOption {
	return func(m *Manager) { m.quotaLimit = limit }
}

// WithBlockCooldown overrides how long a blocked user stays blocked.
func WithBlockCooldown(d time.Duration) ManagerOption {
	return func(m *Manager) { m.blockCooldown = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l ordering.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:         store,
		quotaLimit:    DefaultQuotaLimit,
		blockCooldown: DefaultBlockCooldown,
		now:           time.Now,
		logger:        ordering.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// initialTurn is the first entry of every history: the system prompt,
// tagged with the identifier of the user owning the session.
func (m *Manager) initialTurn(userID string) Turn {
	return Turn{Bot: m.initialPrompt, UserID: userID}
}

// Create starts a new session for a user and returns its id.
// Returns ErrDuplicateSession if the user already has an active session;
// callers should route to the existing session instead of failing.
func (m *Manager) Create(ctx context.Context, userID string) (string, error) {
	data := &Data{
		ID:           uuid.NewString(),
		UserID:       userID,
		History:      []Turn{m.initialTurn(userID)},
		LastActivity: m.now(),
	}
	if err := m.store.CreateSession(ctx, data); err != nil {
		return "", fmt.Errorf("create session for %s: %w", userID, err)
	}

	m.logger.Info("session created", map[string]interface{}{
		"session_id": data.ID,
		"user_id":    userID,
	})
	return data.ID, nil
}

// Get returns the conversation history of a session.
func (m *Manager) Get(ctx context.Context, sessionID string) ([]Turn, error) {
	data, err := m.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return data.History, nil
}

// GetByUser returns the session id bound to a user, or "" when the user
// has no active session.
func (m *Manager) GetByUser(ctx context.Context, userID string) (string, error) {
	return m.store.SessionIDByUser(ctx, userID)
}

// AppendTurn records one exchange and increments the user's quota in the
// same commit. When the user is blocked and the cooldown has not elapsed
// it fails with ErrQuotaExceeded and leaves the history untouched, so a
// blocked user can never accumulate further turns.
//
// The increment that reaches the limit sets the blocked flag: the message
// exhausting the quota still lands, only the next one is refused.
func (m *Manager) AppendTurn(ctx context.Context, sessionID, userID, userText, botText string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		data, err := m.get(ctx, sessionID)
		if err != nil {
			return err
		}
		rec, err := m.store.GetQuota(ctx, userID)
		if err != nil {
			return fmt.Errorf("get quota for %s: %w", userID, err)
		}

		now := m.now()
		if rec == nil {
			rec = &QuotaRecord{UserID: userID, WindowStart: now}
		}
		if rec.Blocked {
			if now.Sub(rec.BlockedAt) < m.blockCooldown {
				return fmt.Errorf("user %s is blocked: %w", userID, ErrQuotaExceeded)
			}
			// Cooldown elapsed: the block expires with a fresh window.
			rec.Blocked = false
			rec.BlockedAt = time.Time{}
			rec.MessageCount = 0
			rec.WindowStart = now
		}

		data.History = append(data.History, Turn{User: userText, Bot: botText})
		data.LastActivity = now
		rec.MessageCount++
		rec.LastMessageTime = now
		if rec.MessageCount >= m.quotaLimit {
			rec.Blocked = true
			rec.BlockedAt = now
			m.logger.Warn("user reached message quota", map[string]interface{}{
				"user_id": userID,
				"count":   rec.MessageCount,
			})
		}

		err = m.store.UpdateSessionAndQuota(ctx, data, rec)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("append turn to %s: %w", sessionID, err)
		}
		return nil
	}
	return fmt.Errorf("append turn to %s: %w", sessionID, ErrVersionConflict)
}

// SetPaymentLink stores the payment link for a session. Last writer wins.
func (m *Manager) SetPaymentLink(ctx context.Context, sessionID, link string) error {
	return m.update(ctx, sessionID, func(d *Data) error {
		d.PaymentLink = link
		return nil
	})
}

// PaymentLink returns the session's payment link, "" when none is set.
func (m *Manager) PaymentLink(ctx context.Context, sessionID string) (string, error) {
	data, err := m.get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return data.PaymentLink, nil
}

// ClearPaymentLink removes the payment link from a session.
func (m *Manager) ClearPaymentLink(ctx context.Context, sessionID string) error {
	return m.SetPaymentLink(ctx, sessionID, "")
}

// SetOrderData stores the order snapshot for a session. Each new summary
// replaces the previous order wholesale; there is no merge.
func (m *Manager) SetOrderData(ctx context.Context, sessionID string, o *order.Order) error {
	return m.update(ctx, sessionID, func(d *Data) error {
		d.OrderData = o
		return nil
	})
}

// OrderData returns the session's order snapshot, nil when none is set.
func (m *Manager) OrderData(ctx context.Context, sessionID string) (*order.Order, error) {
	data, err := m.get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return data.OrderData, nil
}

// ClearOrderData removes the order snapshot from a session.
func (m *Manager) ClearOrderData(ctx context.Context, sessionID string) error {
	return m.update(ctx, sessionID, func(d *Data) error {
		d.OrderData = nil
		return nil
	})
}

// RegenerateOrderID assigns a fresh order id to the session's order and
// clears the stale payment link. This is the payment-retry primitive: the
// gateway refuses a reused id, so every retry needs a new one while the
// order contents stay as they are.
func (m *Manager) RegenerateOrderID(ctx context.Context, sessionID string) (string, error) {
	var newID string
	err := m.update(ctx, sessionID, func(d *Data) error {
		if d.OrderData == nil {
			return fmt.Errorf("session %s: %w", sessionID, ErrNoOrder)
		}
		newID = order.NewOrderID()
		d.OrderData.OrderID = newID
		d.PaymentLink = ""
		return nil
	})
	return newID, err
}

// Reset replaces the history with a single fresh initial turn, clears the
// payment link and order data, and restarts the paired quota window with
// count 0. It is the single recovery primitive behind idle timeouts,
// order completion and payment-failure retries.
//
// An active block is not cleared here; it only expires through the
// cooldown, otherwise completing an order would lift a throttle early.
func (m *Manager) Reset(ctx context.Context, sessionID string) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		data, err := m.get(ctx, sessionID)
		if err != nil {
			return err
		}
		rec, err := m.store.GetQuota(ctx, data.UserID)
		if err != nil {
			return fmt.Errorf("get quota for %s: %w", data.UserID, err)
		}

		now := m.now()
		if rec == nil {
			rec = &QuotaRecord{UserID: data.UserID}
		}
		data.History = []Turn{m.initialTurn(data.UserID)}
		data.PaymentLink = ""
		data.OrderData = nil
		data.LastActivity = now
		rec.MessageCount = 0
		rec.WindowStart = now

		err = m.store.UpdateSessionAndQuota(ctx, data, rec)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reset session %s: %w", sessionID, err)
		}

		m.logger.Info("session reset", map[string]interface{}{
			"session_id": sessionID,
			"user_id":    data.UserID,
		})
		return nil
	}
	return fmt.Errorf("reset session %s: %w", sessionID, ErrVersionConflict)
}

// ResetByUser resets the session bound to a user, if any.
func (m *Manager) ResetByUser(ctx context.Context, userID string) error {
	sessionID, err := m.store.SessionIDByUser(ctx, userID)
	if err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	return m.Reset(ctx, sessionID)
}

// Delete removes a session entirely, user binding included. Normal flows
// go through Reset; Delete exists for administrative cleanup.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	return m.store.DeleteSession(ctx, sessionID)
}

// Store exposes the underlying driver, for components that layer on the
// same state (the rate limiter reads quota records directly).
func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) get(ctx context.Context, sessionID string) (*Data, error) {
	data, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	return data, nil
}

// update runs one mutation against a session under a CAS retry loop.
func (m *Manager) update(ctx context.Context, sessionID string, mutate func(*Data) error) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		data, err := m.get(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := mutate(data); err != nil {
			return err
		}

		err = m.store.UpdateSession(ctx, data)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update session %s: %w", sessionID, err)
		}
		return nil
	}
	return fmt.Errorf("update session %s: %w", sessionID, ErrVersionConflict)
}
