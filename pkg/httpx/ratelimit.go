package httpx

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/aussiebroadwan/authress/pkg/slogx"
)

const idleSweepInterval = 5 * time.Minute

// RateLimitConfig bounds how many requests one key may make per window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration

	// Burst defaults to Requests.
	Burst int

	// Clock drives bucket refill. Default: the real clock.
	Clock clock.PassiveClock

	// Reject writes the 429 response. Default: an OAuth2 error body, as
	// the token endpoint answers.
	Reject func(w http.ResponseWriter, retryAfter time.Duration)
}

// KeyExtractor groups requests into rate limit buckets. An empty key is
// not limited.
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys by client IP, honouring X-Forwarded-For and
// X-Real-IP.
func IPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SubjectKeyExtractor keys by the subject AuthnMiddleware stored.
func SubjectKeyExtractor(r *http.Request) string {
	return SubjectFromContext(r.Context())
}

// buckets holds one token bucket per key and sweeps idle ones.
type buckets struct {
	clock clock.PassiveClock
	limit rate.Limit
	burst int

	mu        sync.Mutex
	byKey     map[string]*rate.Limiter
	lastSweep time.Time
}

// take consumes one token for key. When none is left it reports how long
// until one is.
func (b *buckets) take(key string) (bool, time.Duration) {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.lastSweep) >= idleSweepInterval {
		for k, l := range b.byKey {
			// A full bucket has seen no traffic for a whole refill.
			if l.TokensAt(now) >= float64(b.burst) {
				delete(b.byKey, k)
			}
		}
		b.lastSweep = now
	}

	l, ok := b.byKey[key]
	if !ok {
		l = rate.NewLimiter(b.limit, b.burst)
		b.byKey[key] = l
	}

	if l.AllowN(now, 1) {
		return true, 0
	}

	missing := 1 - l.TokensAt(now)
	if b.limit <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	return false, time.Duration(missing / float64(b.limit) * float64(time.Second))
}

// RateLimitMiddleware answers 429 once a key exceeds cfg.
func RateLimitMiddleware(cfg RateLimitConfig, keyOf KeyExtractor) Middleware {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	burst := cfg.Burst
	if burst <= 0 {
		burst = max(cfg.Requests, 1)
	}

	var limit rate.Limit
	if cfg.Window > 0 {
		limit = rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds())
	}

	reject := cfg.Reject
	if reject == nil {
		reject = func(w http.ResponseWriter, _ time.Duration) {
			WriteOAuthError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
		}
	}

	b := &buckets{
		clock:     clk,
		limit:     limit,
		burst:     burst,
		byKey:     make(map[string]*rate.Limiter),
		lastSweep: clk.Now(),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, wait := b.take(key)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := max(int(math.Ceil(wait.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			slogx.FromContext(r.Context(), nil).Debug("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			reject(w, wait)
		})
	}
}

// RateLimitByIP limits by client IP.
func RateLimitByIP(cfg RateLimitConfig) Middleware {
	return RateLimitMiddleware(cfg, IPKeyExtractor)
}
