package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore() (*MemoryStore, *fakeClock) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Now()}
	store.SetClock(clock.Now)
	return store, clock
}

func entry(sessionID, participantID, nickname string) Entry {
	now := time.Now().UTC()
	return Entry{
		ParticipantID: participantID,
		SessionID:     sessionID,
		Nickname:      nickname,
		JoinedAt:      now,
		LastSeen:      now,
	}
}

func TestMemoryStoreSetAndList(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", entry("s1", "p1", "alice"), time.Minute))
	require.NoError(t, store.Set(ctx, "s1", entry("s1", "p2", "bob"), time.Minute))
	require.NoError(t, store.Set(ctx, "s2", entry("s2", "p3", "carol"), time.Minute))

	entries, err := store.List(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	count, err := store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = store.Count(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreExpiry(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", entry("s1", "p1", "alice"), time.Minute))

	clock.Advance(59 * time.Second)
	count, err := store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	clock.Advance(2 * time.Second)
	count, err = store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryStoreRefreshExtendsTTL(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", entry("s1", "p1", "alice"), time.Minute))

	clock.Advance(50 * time.Second)
	require.NoError(t, store.Refresh(ctx, "s1", "p1", time.Minute))

	clock.Advance(50 * time.Second)
	count, err := store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "refresh should have extended the TTL")

	entries, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].LastSeen.After(entries[0].JoinedAt))
}

func TestMemoryStoreRefreshMissingEntry(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	err := store.Refresh(ctx, "s1", "ghost", time.Minute)
	assert.ErrorIs(t, err, ErrNoEntry)

	require.NoError(t, store.Set(ctx, "s1", entry("s1", "p1", "alice"), time.Minute))
	clock.Advance(2 * time.Minute)
	err = store.Refresh(ctx, "s1", "p1", time.Minute)
	assert.ErrorIs(t, err, ErrNoEntry, "expired entries cannot be refreshed")
}

func TestMemoryStoreRemove(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "s1", entry("s1", "p1", "alice"), time.Minute))
	require.NoError(t, store.Remove(ctx, "s1", "p1"))

	count, err := store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Removing twice is harmless.
	require.NoError(t, store.Remove(ctx, "s1", "p1"))
}
