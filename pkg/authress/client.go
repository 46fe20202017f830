package authress

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/aussiebroadwan/authress/pkg/slogx"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "authress-go"

// Config configures a Client.
type Config struct {
	// BaseURL is the account's API host, e.g. https://auth.example.com.
	BaseURL string

	// ApplicationID identifies the calling application during exchange.
	ApplicationID string

	// APIKey authorizes every request directly. Takes precedence over
	// IdentityExchange when both are set.
	APIKey string

	// IdentityExchange enables bearer mode: the client exchanges the
	// assertion given to Login().SetIdentityAssertion for access tokens.
	IdentityExchange bool

	TokenPath string // default DefaultTokenPath

	// SafetyMargin is subtracted from every token lifetime. Zero means
	// DefaultSafetyMargin; a negative value disables the margin.
	SafetyMargin time.Duration

	// LifetimeUnit scales expiresIn. Default time.Second.
	LifetimeUnit time.Duration

	// ExchangeRateLimit bounds exchanges per second. Zero means unlimited.
	ExchangeRateLimit rate.Limit
	ExchangeBurst     int

	HTTPClient        *http.Client
	Logger            *slog.Logger
	Clock             clock.PassiveClock
	MetricsRegisterer prometheus.Registerer
	UserAgent         string

	// Exchanger replaces the HTTP identity exchange.
	Exchanger Exchanger
}

// Client calls the service's resource endpoints, authorizing every request
// through its LoginClient.
type Client struct {
	baseURL       string
	applicationID string
	userAgent     string
	httpClient    *http.Client
	login         *LoginClient
	logger        *slog.Logger
}

// NewClient validates cfg and builds a Client and its LoginClient.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("authress: base URL is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	httpClient := &http.Client{Timeout: DefaultTimeout}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		httpClient = &c
	}
	httpClient.Transport = slogx.NewTransport(httpClient.Transport, logger)

	creds := NewStaticCredentialSource(APIKeyCredential(cfg.APIKey))

	exchanger := cfg.Exchanger
	if exchanger == nil && cfg.IdentityExchange {
		exchanger = NewHTTPExchanger(HTTPExchangerConfig{
			BaseURL:      baseURL,
			TokenPath:    cfg.TokenPath,
			HTTPClient:   httpClient,
			LifetimeUnit: cfg.LifetimeUnit,
			Limiter:      newExchangeLimiter(cfg.ExchangeRateLimit, cfg.ExchangeBurst),
			Clock:        cfg.Clock,
			UserAgent:    userAgent,
		})
	}

	margin := cfg.SafetyMargin
	if margin == 0 {
		margin = DefaultSafetyMargin
	}

	login, err := NewLoginClient(LoginConfig{
		Credentials:       creds,
		Exchanger:         exchanger,
		Cache:             NewTokenCache(cfg.Clock, margin),
		ApplicationID:     cfg.ApplicationID,
		Logger:            logger,
		MetricsRegisterer: cfg.MetricsRegisterer,
	})
	if err != nil {
		return nil, err
	}

	if creds.Resolve().IsAPIKey() && exchanger != nil {
		logger.Debug("both API key and identity exchange configured; using API key")
	}

	return &Client{
		baseURL:       baseURL,
		applicationID: cfg.ApplicationID,
		userAgent:     userAgent,
		httpClient:    httpClient,
		login:         login,
		logger:        logger,
	}, nil
}

func newExchangeLimiter(limit rate.Limit, burst int) *rate.Limiter {
	if limit <= 0 {
		return nil
	}
	return rate.NewLimiter(limit, max(burst, 1))
}

// Login returns the client's LoginClient.
func (c *Client) Login() *LoginClient { return c.login }

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) ApplicationID() string { return c.applicationID }

func (c *Client) String() string {
	return fmt.Sprintf("authress.Client(%s, %s)", c.baseURL, c.login.Mode())
}
