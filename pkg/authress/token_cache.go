package authress

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

const (
	// DefaultSafetyMargin is subtracted from a token's declared lifetime so
	// it is never presented in the last moments before it expires.
	DefaultSafetyMargin = 60 * time.Second

	// MinTokenWindow is the shortest local validity a freshly stored token
	// gets, however short its declared lifetime.
	MinTokenWindow = time.Second
)

// CachedToken is a bearer token and the instant it stops being used.
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenCache holds the current bearer token. Reads only take a read lock,
// writes never block on I/O.
type TokenCache struct {
	clock  clock.PassiveClock
	margin time.Duration

	mu    sync.RWMutex
	token CachedToken
	set   bool
}

// NewTokenCache creates an empty cache. A nil clk means the real clock; a
// negative margin is treated as zero.
func NewTokenCache(clk clock.PassiveClock, margin time.Duration) *TokenCache {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if margin < 0 {
		margin = 0
	}
	return &TokenCache{clock: clk, margin: margin}
}

// Get returns the cached token while now is before its ExpiresAt.
func (c *TokenCache) Get() (CachedToken, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.set || !c.clock.Now().Before(c.token.ExpiresAt) {
		return CachedToken{}, false
	}
	return c.token, true
}

// Set stores value as the current token. Its local window is lifetime minus
// the safety margin, but never shorter than MinTokenWindow. A non-positive
// lifetime gets MinTokenWindow.
func (c *TokenCache) Set(value string, lifetime time.Duration) CachedToken {
	window := MinTokenWindow
	if lifetime > 0 {
		window = max(lifetime-c.margin, MinTokenWindow)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = CachedToken{Value: value, ExpiresAt: c.clock.Now().Add(window)}
	c.set = true
	return c.token
}

// Invalidate drops the cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.token = CachedToken{}
	c.set = false
}

// InvalidateToken drops the cached token only if it is still value, so a
// rejection seen with an old token never evicts a newer one. It reports
// whether anything was dropped.
func (c *TokenCache) InvalidateToken(value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.set || c.token.Value != value {
		return false
	}

	c.token = CachedToken{}
	c.set = false
	return true
}

// SafetyMargin returns the margin the cache was built with.
func (c *TokenCache) SafetyMargin() time.Duration { return c.margin }
