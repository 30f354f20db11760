// Package quota bounds how many turns a user may generate per rolling
// window, layered on the session store's quota records.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/camperolabs/ordering"
	"github.com/camperolabs/ordering/session"
)

// Defaults mirror the production WhatsApp deployment: 30 messages per
// window, a new conversation after 10 idle minutes, a one-hour block once
// the limit is crossed, and a heads-up over the last 5 messages.
const (
	DefaultLimit         = session.DefaultQuotaLimit
	DefaultIdleThreshold = 10 * time.Minute
	DefaultCooldown      = session.DefaultBlockCooldown
	DefaultWarningMargin = 5
)

// BlockedMessage is the user-facing reply for a throttled user. It is the
// only error text in this module that reaches the end user untranslated.
const BlockedMessage = "Has alcanzado el límite de mensajes. Por favor, inténtalo de nuevo más tarde. 🙏"

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed   bool
	Remaining int
	// Message carries user-facing text: the cooldown notice when the
	// check is denied, or a low-allowance warning when Remaining has
	// dropped into the warning margin. Empty otherwise.
	Message string
}

// Limiter decides whether a user may send another message.
//
// Check never increments the counter; the increment belongs to
// Manager.AppendTurn, so polling the limiter repeatedly is free of side
// effects on the allowance itself. What Check does do is lazily recover
// state: an idle conversation is reset on the next check, and an expired
// block is lifted. There is no background sweep.
type Limiter struct {
	sessions      *session.Manager
	limit         int
	idleThreshold time.Duration
	cooldown      time.Duration
	warningMargin int
	now           func() time.Time
	logger        ordering.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit overrides the per-window message limit.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithIdleThreshold overrides the inactivity gap after which the next
// check starts a fresh conversation.
func WithIdleThreshold(d time.Duration) Option {
	return func(l *Limiter) { l.idleThreshold = d }
}

// WithCooldown overrides how long a block lasts.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) { l.cooldown = d }
}

// WithWarningMargin overrides the remaining-message threshold below which
// Decision.Message carries a warning.
func WithWarningMargin(n int) Option {
	return func(l *Limiter) { l.warningMargin = n }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(log ordering.Logger) Option {
	return func(l *Limiter) { l.logger = log }
}

// NewLimiter creates a Limiter over the given session manager.
func NewLimiter(sessions *session.Manager, opts ...Option) *Limiter {
	l := &Limiter{
		sessions:      sessions,
		limit:         DefaultLimit,
		idleThreshold: DefaultIdleThreshold,
		cooldown:      DefaultCooldown,
		warningMargin: DefaultWarningMargin,
		now:           time.Now,
		logger:        ordering.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether a user may send another message.
//
// A denied check returns a Decision with the user-facing cooldown message
// and an error wrapping session.ErrQuotaExceeded.
func (l *Limiter) Check(ctx context.Context, userID string) (Decision, error) {
	store := l.sessions.Store()

	rec, err := store.GetQuota(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("get quota for %s: %w", userID, err)
	}
	if rec == nil {
		// First contact: the record is created on the first AppendTurn.
		return Decision{Allowed: true, Remaining: l.limit}, nil
	}

	now := l.now()

	if rec.Blocked {
		if now.Sub(rec.BlockedAt) < l.cooldown {
			return Decision{Message: BlockedMessage},
				fmt.Errorf("user %s is blocked: %w", userID, session.ErrQuotaExceeded)
		}
		// Block expired: clear it and restart the window.
		rec.Blocked = false
		rec.BlockedAt = time.Time{}
		rec.MessageCount = 0
		rec.WindowStart = now
		if err := store.PutQuota(ctx, rec); err != nil {
			return Decision{}, fmt.Errorf("unblock %s: %w", userID, err)
		}
		l.logger.Info("quota block expired", map[string]interface{}{"user_id": userID})
		return Decision{Allowed: true, Remaining: l.limit}, nil
	}

	if rec.MessageCount > 0 && now.Sub(rec.LastMessageTime) > l.idleThreshold {
		// Idle user: the next message starts a new ordering conversation,
		// so the session and the window both reset.
		if err := l.sessions.ResetByUser(ctx, userID); err != nil {
			return Decision{}, fmt.Errorf("idle reset for %s: %w", userID, err)
		}
		l.logger.Info("idle session reset", map[string]interface{}{"user_id": userID})
		return Decision{Allowed: true, Remaining: l.limit}, nil
	}

	remaining := l.limit - rec.MessageCount
	if remaining <= 0 {
		// Count at the limit without the flag means another request's
		// increment is still in flight; treat it the same as blocked.
		return Decision{Message: BlockedMessage},
			fmt.Errorf("user %s is blocked: %w", userID, session.ErrQuotaExceeded)
	}

	d := Decision{Allowed: true, Remaining: remaining}
	if remaining <= l.warningMargin {
		d.Message = fmt.Sprintf("⚠️ Te quedan %d mensajes en esta conversación.", remaining)
	}
	return d, nil
}
