package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewManager(client, opts...), mr
}

func TestEstablishAndResolve(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := m.Establish(ctx, 42, false)
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	userID, ok, err := m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)
}

func TestEstablishMintsFreshIDs(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.Establish(ctx, 42, false)
	require.NoError(t, err)
	second, err := m.Establish(ctx, 42, false)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	// Both sessions are valid concurrently
	_, ok, err := m.Resolve(ctx, first)
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = m.Resolve(ctx, second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolveUnknownSession(t *testing.T) {
	m, _ := newTestManager(t)

	userID, ok, err := m.Resolve(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, userID)

	_, ok, err = m.Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionExpiry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	sessionID, err := m.Establish(ctx, 42, false)
	require.NoError(t, err)

	mr.FastForward(DefaultTTL + time.Second)

	_, ok, err := m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRememberMeExtendsTTL(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	sessionID, err := m.Establish(ctx, 42, true)
	require.NoError(t, err)

	// Past the default lifetime but well within remember-me
	mr.FastForward(DefaultTTL + time.Hour)

	userID, ok, err := m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)

	mr.FastForward(RememberMeTTL)
	_, ok, err = m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDestroyIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	sessionID, err := m.Establish(ctx, 42, false)
	require.NoError(t, err)

	require.NoError(t, m.Destroy(ctx, sessionID))

	_, ok, err := m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, m.Destroy(ctx, sessionID))
	assert.NoError(t, m.Destroy(ctx, ""))
}

func TestResolveDropsCorruptEntry(t *testing.T) {
	m, mr := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(keyPrefix+"bad-session", "not-a-user-id"))

	_, ok, err := m.Resolve(ctx, "bad-session")
	require.NoError(t, err)
	assert.False(t, ok)

	// The corrupt entry was removed
	assert.False(t, mr.Exists(keyPrefix+"bad-session"))
}

func TestCacheServesRepeatedResolves(t *testing.T) {
	m, mr := newTestManager(t, WithCache(16))
	ctx := context.Background()

	sessionID, err := m.Establish(ctx, 42, false)
	require.NoError(t, err)

	userID, ok, err := m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(42), userID)

	// Delete behind the cache's back; the cached entry still answers
	mr.Del(keyPrefix + sessionID)
	userID, ok, err = m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), userID)

	// Destroy invalidates the cache entry too
	require.NoError(t, m.Destroy(ctx, sessionID))
	_, ok, err = m.Resolve(ctx, sessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTTLSelection(t *testing.T) {
	m, _ := newTestManager(t, WithTTLs(time.Hour, 48*time.Hour))
	assert.Equal(t, time.Hour, m.TTL(false))
	assert.Equal(t, 48*time.Hour, m.TTL(true))
}
