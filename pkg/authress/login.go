package authress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/aussiebroadwan/authress/internal/metrics"
	"github.com/aussiebroadwan/authress/pkg/jwtx"
	"github.com/aussiebroadwan/authress/pkg/slogx"
)

// AuthMode is how a LoginClient authorizes requests.
type AuthMode int

const (
	// AuthModeAPIKey presents a static API key.
	AuthModeAPIKey AuthMode = iota
	// AuthModeBearer presents an access token obtained by identity exchange.
	AuthModeBearer
)

func (m AuthMode) String() string {
	if m == AuthModeAPIKey {
		return "api_key"
	}
	return "bearer"
}

// TokenState describes the bearer token held by a LoginClient.
type TokenState int

const (
	TokenStateNone TokenState = iota
	TokenStateExchanging
	TokenStateValid
)

func (s TokenState) String() string {
	switch s {
	case TokenStateExchanging:
		return "exchanging"
	case TokenStateValid:
		return "valid"
	default:
		return "none"
	}
}

const exchangeFlightKey = "exchange"

// LoginConfig configures a LoginClient.
type LoginConfig struct {
	// Credentials resolves the static credential. Nil means none.
	Credentials CredentialSource

	// Exchanger obtains bearer tokens. Required unless Credentials resolves
	// to an API key.
	Exchanger Exchanger

	// Cache holds the bearer token. Default: a real-clock cache with
	// DefaultSafetyMargin.
	Cache *TokenCache

	// ApplicationID is sent with every exchange.
	ApplicationID string

	Logger            *slog.Logger
	MetricsRegisterer prometheus.Registerer
}

// LoginClient supplies the authorization value for outgoing requests. In
// bearer mode it exchanges the configured identity assertion for an access
// token, caches it until shortly before expiry and collapses concurrent
// cache misses into a single exchange.
//
// LoginClient is safe for concurrent use.
type LoginClient struct {
	credentials   CredentialSource
	exchanger     Exchanger
	cache         *TokenCache
	applicationID string
	logger        *slog.Logger
	metrics       *metrics.Recorder

	flight     singleflight.Group
	exchanging atomic.Bool

	mu        sync.RWMutex
	assertion *ExchangeRequest
}

// NewLoginClient validates cfg and creates a LoginClient.
func NewLoginClient(cfg LoginConfig) (*LoginClient, error) {
	creds := cfg.Credentials
	if creds == nil {
		creds = NewStaticCredentialSource(NoCredential())
	}

	if !creds.Resolve().IsAPIKey() && cfg.Exchanger == nil {
		return nil, fmt.Errorf("%w: neither an API key nor an identity exchange is configured",
			ErrInvalidCredentialConfiguration)
	}

	cache := cfg.Cache
	if cache == nil {
		cache = NewTokenCache(nil, DefaultSafetyMargin)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rec, err := metrics.NewRecorder(cfg.MetricsRegisterer)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &LoginClient{
		credentials:   creds,
		exchanger:     cfg.Exchanger,
		cache:         cache,
		applicationID: cfg.ApplicationID,
		logger:        logger.With("component", "authress.login"),
		metrics:       rec,
	}, nil
}

// Mode reports which authorization mode the configured credential selects.
func (l *LoginClient) Mode() AuthMode {
	if l.credentials.Resolve().IsAPIKey() {
		return AuthModeAPIKey
	}
	return AuthModeBearer
}

// State reports the bearer token state. In API key mode it is always
// TokenStateValid.
func (l *LoginClient) State() TokenState {
	if l.Mode() == AuthModeAPIKey {
		return TokenStateValid
	}
	if l.exchanging.Load() {
		return TokenStateExchanging
	}
	if _, ok := l.cache.Get(); ok {
		return TokenStateValid
	}
	return TokenStateNone
}

// SetIdentityAssertion stores the JWT to present at the next exchange. It
// does not drop a cached token; call Invalidate to force a new exchange.
func (l *LoginClient) SetIdentityAssertion(assertion, preferredAudience string) {
	req := &ExchangeRequest{
		Assertion:         assertion,
		PreferredAudience: preferredAudience,
		ApplicationID:     l.applicationID,
	}

	l.mu.Lock()
	l.assertion = req
	l.mu.Unlock()

	if claims, err := jwtx.ParseUnverified(assertion); err == nil {
		l.logger.Debug("identity assertion set",
			"issuer", claims.Issuer,
			"subject", claims.Subject,
			"preferred_audience", preferredAudience,
		)
	} else {
		l.logger.Debug("identity assertion set; claims unreadable", "error", err)
	}
}

// GetAuthorizationValue returns the credential to present: the API key in
// API key mode, otherwise a valid bearer token. A cache miss triggers one
// exchange shared by every concurrent caller. When ctx ends first this
// caller returns ctx.Err() while the shared exchange keeps running for the
// others.
func (l *LoginClient) GetAuthorizationValue(ctx context.Context) (string, error) {
	if key, ok := l.credentials.Resolve().APIKey(); ok {
		return key, nil
	}

	if l.exchanger == nil {
		return "", fmt.Errorf("%w: neither an API key nor an identity exchange is configured",
			ErrInvalidCredentialConfiguration)
	}

	if tok, ok := l.cache.Get(); ok {
		l.metrics.CacheLookup(true)
		return tok.Value, nil
	}
	l.metrics.CacheLookup(false)

	var led bool
	ch := l.flight.DoChan(exchangeFlightKey, func() (any, error) {
		led = true

		// A flight that finished between our miss and this one may
		// already have stored a token.
		if tok, ok := l.cache.Get(); ok {
			return tok.Value, nil
		}
		return l.exchange(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if !led {
			l.metrics.WaiterCollapsed()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (l *LoginClient) exchange(ctx context.Context) (string, error) {
	l.mu.RLock()
	req := l.assertion
	l.mu.RUnlock()

	if req == nil {
		l.metrics.ObserveExchange(metrics.ResultNoAssertion, 0)
		return "", fmt.Errorf("%w: bearer mode requires an identity assertion",
			ErrInvalidCredentialConfiguration)
	}

	l.exchanging.Store(true)
	defer l.exchanging.Store(false)

	start := time.Now()
	res, err := l.exchanger.Exchange(ctx, *req)
	elapsed := time.Since(start)
	l.metrics.ObserveExchange(exchangeResult(err), elapsed)

	if err != nil {
		l.logger.Warn("identity exchange failed", "error", err, "duration", elapsed)
		return "", err
	}

	tok := l.cache.Set(res.Token, res.Lifetime)
	l.logger.Debug("identity exchange succeeded",
		"token", slogx.MaskSecret(tok.Value),
		"expires_at", tok.ExpiresAt,
		"duration", elapsed,
	)
	return tok.Value, nil
}

// Invalidate drops the cached bearer token so the next call exchanges again.
func (l *LoginClient) Invalidate() {
	l.cache.Invalidate()
	l.metrics.Invalidated()
	l.logger.Debug("token cache invalidated")
}

// RejectToken drops the cached token if it is still value. Resource calls
// use it when the service answers 401 to a request made with value.
func (l *LoginClient) RejectToken(value string) {
	if l.cache.InvalidateToken(value) {
		l.metrics.Invalidated()
		l.logger.Info("cached token rejected by service; next call exchanges again")
	}
}

func exchangeResult(err error) string {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, ErrIdentityAssertionRejected):
		return metrics.ResultRejected
	case errors.Is(err, ErrTransportFailure):
		return metrics.ResultTransport
	case errors.Is(err, ErrInvalidCredentialConfiguration):
		return metrics.ResultNoAssertion
	default:
		return metrics.ResultUnexpected
	}
}
