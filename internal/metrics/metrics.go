// Package metrics provides Prometheus collectors for the login client.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Exchange result labels.
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultTransport   = "transport_failure"
	ResultUnexpected  = "unexpected_response"
	ResultNoAssertion = "no_assertion"
)

// Cache lookup labels.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Recorder records login client activity. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	exchanges        *prometheus.CounterVec
	exchangeDuration prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	collapsedWaiters prometheus.Counter
	invalidations    prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg. Several
// clients may share one registerer; already registered collectors are
// reused. A nil reg yields a nil Recorder.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		return nil, nil
	}

	r := &Recorder{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authress",
				Subsystem: "login",
				Name:      "exchanges_total",
				Help:      "Identity exchanges performed, by result",
			},
			[]string{"result"},
		),
		exchangeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "authress",
				Subsystem: "login",
				Name:      "exchange_duration_seconds",
				Help:      "Duration of identity exchange round trips",
				Buckets:   prometheus.DefBuckets,
			},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "authress",
				Subsystem: "login",
				Name:      "token_cache_lookups_total",
				Help:      "Token cache lookups, by outcome",
			},
			[]string{"outcome"},
		),
		collapsedWaiters: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "authress",
				Subsystem: "login",
				Name:      "collapsed_waiters_total",
				Help:      "Callers that shared an in-flight exchange instead of starting one",
			},
		),
		invalidations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "authress",
				Subsystem: "login",
				Name:      "token_invalidations_total",
				Help:      "Cached tokens dropped before expiry",
			},
		),
	}

	var err error
	if r.exchanges, err = register(reg, r.exchanges); err != nil {
		return nil, err
	}
	if r.exchangeDuration, err = register(reg, r.exchangeDuration); err != nil {
		return nil, err
	}
	if r.cacheLookups, err = register(reg, r.cacheLookups); err != nil {
		return nil, err
	}
	if r.collapsedWaiters, err = register(reg, r.collapsedWaiters); err != nil {
		return nil, err
	}
	if r.invalidations, err = register(reg, r.invalidations); err != nil {
		return nil, err
	}

	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveExchange records one finished exchange.
func (r *Recorder) ObserveExchange(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.exchanges.WithLabelValues(result).Inc()
	r.exchangeDuration.Observe(d.Seconds())
}

// CacheLookup records a token cache hit or miss.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.cacheLookups.WithLabelValues(LookupHit).Inc()
		return
	}
	r.cacheLookups.WithLabelValues(LookupMiss).Inc()
}

// WaiterCollapsed records a caller that joined an in-flight exchange.
func (r *Recorder) WaiterCollapsed() {
	if r == nil {
		return
	}
	r.collapsedWaiters.Inc()
}

// Invalidated records a cached token dropped before its expiry.
func (r *Recorder) Invalidated() {
	if r == nil {
		return
	}
	r.invalidations.Inc()
}
