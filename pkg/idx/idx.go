// Package idx generates request identifiers for outgoing SDK calls.
//
// Identifiers are ULIDs so they sort by creation time, which keeps the
// service-side logs for a burst of calls in the order they were issued.
package idx

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID identifies one outgoing HTTP call.
type RequestID string

// Zero is the empty RequestID.
const Zero RequestID = ""

// HeaderName is the header the SDK uses to send a RequestID.
const HeaderName = "X-Request-ID"

// ErrInvalid reports a malformed request id.
var ErrInvalid = errors.New("idx: invalid request id")

var (
	globalOnce sync.Once
	global     *generator
)

// generator hands out monotonic ULIDs; the entropy source is not safe for
// concurrent use so it sits behind a mutex.
type generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func (g *generator) at(t time.Time) RequestID {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := ulid.MustNew(ulid.Timestamp(t), g.entropy)
	return RequestID(u.String())
}

func initGlobal() {
	global = &generator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// New returns a RequestID stamped with the current UTC time.
func New() RequestID {
	return NewAt(time.Now().UTC())
}

// NewAt returns a RequestID stamped with t.
func NewAt(t time.Time) RequestID {
	globalOnce.Do(initGlobal)
	return global.at(t)
}

// Parse validates s as a RequestID.
func Parse(s string) (RequestID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}

	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}

	return RequestID(s), nil
}

// IsZero reports whether id is the zero value.
func (id RequestID) IsZero() bool { return id == Zero }

// String returns the canonical string form.
func (id RequestID) String() string { return string(id) }

// Time extracts the timestamp embedded in id, or the zero time when id is
// not a valid ULID.
func (id RequestID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}

	return ulid.Time(u.Time())
}
