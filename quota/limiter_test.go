package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camperolabs/ordering/session"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fixture wires a manager and limiter over one memory store with a shared
// clock and quota policy, the way the config package wires production.
type fixture struct {
	clock    *fakeClock
	sessions *session.Manager
	limiter  *Limiter
}

func newFixture(t *testing.T, limit int, opts ...Option) *fixture {
	t.Helper()
	store, err := session.NewStore(session.StoreTypeMemory)
	require.NoError(t, err)

	clock := newFakeClock()
	sessions := session.NewManager(store,
		session.WithInitialPrompt("prompt"),
		session.WithQuotaLimit(limit),
		session.WithClock(clock.Now),
	)
	opts = append([]Option{WithLimit(limit), WithClock(clock.Now)}, opts...)
	return &fixture{
		clock:    clock,
		sessions: sessions,
		limiter:  NewLimiter(sessions, opts...),
	}
}

func (f *fixture) sendMessages(t *testing.T, ctx context.Context, userID string, n int) string {
	t.Helper()
	id, err := f.sessions.GetByUser(ctx, userID)
	require.NoError(t, err)
	if id == "" {
		id, err = f.sessions.Create(ctx, userID)
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, f.sessions.AppendTurn(ctx, id, userID, "hola", "respuesta"))
	}
	return id
}

func TestCheck_FirstContactAllowed(t *testing.T) {
	f := newFixture(t, 30)

	d, err := f.limiter.Check(context.Background(), "new-user")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 30, d.Remaining)
	assert.Empty(t, d.Message)
}

func TestCheck_DoesNotIncrement(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	f.sendMessages(t, ctx, "u1", 3)

	for i := 0; i < 5; i++ {
		d, err := f.limiter.Check(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 27, d.Remaining)
	}

	rec, err := f.sessions.Store().GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, rec.MessageCount)
}

func TestCheck_WarningMargin(t *testing.T) {
	f := newFixture(t, 10, WithWarningMargin(5))
	ctx := context.Background()

	f.sendMessages(t, ctx, "u1", 4)
	d, err := f.limiter.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Message) // 6 remaining, above the margin

	f.sendMessages(t, ctx, "u1", 2)
	d, err = f.limiter.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	assert.NotEmpty(t, d.Message)
}

func TestCheck_BlockedUntilCooldown(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	f.sendMessages(t, ctx, "u1", 2) // second message crosses the limit

	d, err := f.limiter.Check(ctx, "u1")
	assert.ErrorIs(t, err, session.ErrQuotaExceeded)
	assert.False(t, d.Allowed)
	assert.Equal(t, BlockedMessage, d.Message)

	// Still blocked just before the cooldown elapses.
	f.clock.Advance(59 * time.Minute)
	_, err = f.limiter.Check(ctx, "u1")
	assert.ErrorIs(t, err, session.ErrQuotaExceeded)

	// The cooldown lifts the block and restarts the window.
	f.clock.Advance(2 * time.Minute)
	d, err = f.limiter.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 2, d.Remaining)

	rec, err := f.sessions.Store().GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, rec.Blocked)
	assert.Equal(t, 0, rec.MessageCount)
}

func TestCheck_IdleGapResetsSessionAndWindow(t *testing.T) {
	f := newFixture(t, 30, WithIdleThreshold(10*time.Minute))
	ctx := context.Background()

	id := f.sendMessages(t, ctx, "u1", 4)

	f.clock.Advance(11 * time.Minute)

	d, err := f.limiter.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 30, d.Remaining)

	rec, err := f.sessions.Store().GetQuota(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.MessageCount)

	// The idle user starts a new ordering conversation in place.
	history, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestCheck_WithinIdleThresholdKeepsConversation(t *testing.T) {
	f := newFixture(t, 30, WithIdleThreshold(10*time.Minute))
	ctx := context.Background()

	id := f.sendMessages(t, ctx, "u1", 2)

	f.clock.Advance(9 * time.Minute)

	d, err := f.limiter.Check(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 28, d.Remaining)

	history, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestCheck_BlockTakesPrecedenceOverIdleReset(t *testing.T) {
	f := newFixture(t, 2, WithIdleThreshold(10*time.Minute))
	ctx := context.Background()

	f.sendMessages(t, ctx, "u1", 2)

	// Longer than the idle threshold but shorter than the cooldown: the
	// block must not be laundered through an idle reset.
	f.clock.Advance(30 * time.Minute)

	_, err := f.limiter.Check(ctx, "u1")
	assert.ErrorIs(t, err, session.ErrQuotaExceeded)
}
