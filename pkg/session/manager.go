package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTTL is the session lifetime for a plain login
	DefaultTTL = 24 * time.Hour
	// RememberMeTTL is the session lifetime with remember-me
	RememberMeTTL = 30 * 24 * time.Hour

	keyPrefix = "session:"

	// cacheTTL bounds how stale the in-process read cache may be
	cacheTTL = time.Minute
)

// Manager maps opaque session ids to user ids with expiry. Multiple
// concurrent sessions per user are permitted; each login mints a new id.
type Manager struct {
	client      *redis.Client
	defaultTTL  time.Duration
	rememberTTL time.Duration
	cache       *expirable.LRU[string, int64]
}

// Option configures a Manager
type Option func(*Manager)

// WithTTLs overrides the default and remember-me session lifetimes
func WithTTLs(defaultTTL, rememberTTL time.Duration) Option {
	return func(m *Manager) {
		m.defaultTTL = defaultTTL
		m.rememberTTL = rememberTTL
	}
}

// WithCache enables an in-process expirable LRU in front of Redis. Size
// 0 disables it.
func WithCache(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.cache = expirable.NewLRU[string, int64](size, nil, cacheTTL)
		}
	}
}

// NewManager creates a session manager backed by Redis
func NewManager(client *redis.Client, opts ...Option) *Manager {
	m := &Manager{
		client:      client,
		defaultTTL:  DefaultTTL,
		rememberTTL: RememberMeTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the session lifetime for the given remember-me choice
func (m *Manager) TTL(rememberMe bool) time.Duration {
	if rememberMe {
		return m.rememberTTL
	}
	return m.defaultTTL
}

func newSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Establish creates a new session for the user and returns its id. Each
// call mints a fresh id; existing sessions for the same user are left
// untouched.
func (m *Manager) Establish(ctx context.Context, userID int64, rememberMe bool) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	ttl := m.TTL(rememberMe)
	if err := m.client.Set(ctx, keyPrefix+id, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}

	if m.cache != nil {
		m.cache.Add(id, userID)
	}
	return id, nil
}

// Resolve returns the user id a session maps to. A missing or expired
// session is not an error: it returns (0, false, nil). The caller is
// responsible for re-validating that the user still exists and is
// active, destroying the session if not.
func (m *Manager) Resolve(ctx context.Context, sessionID string) (int64, bool, error) {
	if sessionID == "" {
		return 0, false, nil
	}

	if m.cache != nil {
		if userID, ok := m.cache.Get(sessionID); ok {
			return userID, true, nil
		}
	}

	val, err := m.client.Get(ctx, keyPrefix+sessionID).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to resolve session: %w", err)
	}

	userID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt entry; drop it rather than fail every request
		m.client.Del(ctx, keyPrefix+sessionID)
		return 0, false, nil
	}

	if m.cache != nil {
		m.cache.Add(sessionID, userID)
	}
	return userID, true, nil
}

// Destroy removes a session. Idempotent: destroying a session that does
// not exist is not an error.
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if m.cache != nil {
		m.cache.Remove(sessionID)
	}
	if err := m.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}
