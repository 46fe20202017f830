package authress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/aussiebroadwan/authress/pkg/idx"
	"github.com/aussiebroadwan/authress/pkg/jwtx"
)

const (
	// DefaultTokenPath is where identity assertions are exchanged.
	DefaultTokenPath = "/api/authentication/oauth/tokens"

	// DefaultTimeout bounds every HTTP call made with the default client.
	DefaultTimeout = 10 * time.Second

	maxExchangeResponseBytes = 1 << 20
)

// ExchangeRequest trades an identity provider JWT for an access token.
type ExchangeRequest struct {
	// Assertion is the JWT issued by the identity provider.
	Assertion string `json:"jwt"`

	// PreferredAudience selects which of the assertion's audiences the
	// session is bound to when it carries more than one.
	PreferredAudience string `json:"preferredAudience,omitempty"`

	// ApplicationID is filled in by the login client from its config.
	ApplicationID string `json:"applicationId,omitempty"`
}

// Validate returns field errors, or nil.
func (r ExchangeRequest) Validate() map[string]string {
	if strings.TrimSpace(r.Assertion) == "" {
		return map[string]string{"jwt": reasonRequired}
	}
	return nil
}

// ExchangeResult is a freshly minted access token and its declared lifetime.
type ExchangeResult struct {
	Token    string
	Lifetime time.Duration
}

// Exchanger performs one identity exchange. Implementations must not retry
// internally; every failure is an *ExchangeError. A request that can never
// be sent as configured has Kind ErrInvalidCredentialConfiguration.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error)
}

// HTTPExchangerConfig configures an HTTPExchanger.
type HTTPExchangerConfig struct {
	BaseURL    string
	TokenPath  string       // default DefaultTokenPath
	HTTPClient *http.Client // default: DefaultTimeout

	// LifetimeUnit scales the expiresIn value of the response. Default
	// time.Second.
	LifetimeUnit time.Duration

	// Limiter, when set, bounds how often exchanges leave the process.
	Limiter *rate.Limiter

	Clock     clock.PassiveClock
	UserAgent string
}

// HTTPExchanger posts assertions to the service's token endpoint.
type HTTPExchanger struct {
	url          string
	httpClient   *http.Client
	lifetimeUnit time.Duration
	limiter      *rate.Limiter
	clock        clock.PassiveClock
	userAgent    string
}

// NewHTTPExchanger creates an exchanger from cfg, filling defaults.
func NewHTTPExchanger(cfg HTTPExchangerConfig) *HTTPExchanger {
	path := cfg.TokenPath
	if path == "" {
		path = DefaultTokenPath
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	unit := cfg.LifetimeUnit
	if unit <= 0 {
		unit = time.Second
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}

	return &HTTPExchanger{
		url:          strings.TrimSuffix(cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/"),
		httpClient:   httpClient,
		lifetimeUnit: unit,
		limiter:      cfg.Limiter,
		clock:        clk,
		userAgent:    cfg.UserAgent,
	}
}

// tokenResponse accepts the service's {token, expiresIn} as well as the
// OAuth2 spelling {access_token, expires_in}.
type tokenResponse struct {
	Token       string      `json:"token"`
	ExpiresIn   json.Number `json:"expiresIn"`
	AccessToken string      `json:"access_token"`
	ExpiresInS  json.Number `json:"expires_in"`
}

// Exchange performs one POST to the token endpoint.
func (e *HTTPExchanger) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResult, error) {
	if errs := req.Validate(); errs != nil {
		return nil, &ExchangeError{
			Kind: ErrInvalidCredentialConfiguration,
			Err:  &ValidationError{Model: "ExchangeRequest", Fields: errs},
		}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &ExchangeError{Kind: ErrTransportFailure, Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, &ExchangeError{
			Kind: ErrInvalidCredentialConfiguration,
			Err:  fmt.Errorf("failed to marshal exchange request: %w", err),
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &ExchangeError{
			Kind: ErrInvalidCredentialConfiguration,
			Err:  fmt.Errorf("failed to create request: %w", err),
		}
	}

	for k, v := range SelectHeaders([]string{mimeJSON}, []string{mimeJSON}) {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set(idx.HeaderName, idx.New().String())
	if e.userAgent != "" {
		httpReq.Header.Set(headerUserAgent, e.userAgent)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, &ExchangeError{Kind: ErrTransportFailure, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxExchangeResponseBytes))
	if err != nil {
		return nil, &ExchangeError{
			Kind:       ErrTransportFailure,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, desc := parseErrorPayload(body)
		return nil, &ExchangeError{
			Kind:        classifyExchangeStatus(resp.StatusCode),
			StatusCode:  resp.StatusCode,
			Code:        code,
			Description: desc,
		}
	}

	return e.decodeResult(resp.StatusCode, body)
}

func (e *HTTPExchanger) decodeResult(status int, body []byte) (*ExchangeResult, error) {
	unexpected := func(format string, args ...any) error {
		return &ExchangeError{
			Kind:       ErrUnexpectedResponseShape,
			StatusCode: status,
			Err:        fmt.Errorf(format, args...),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, unexpected("failed to decode response: %w", err)
	}

	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return nil, unexpected("response carries no token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn == "" {
		expiresIn = tr.ExpiresInS
	}

	if expiresIn == "" {
		// Fall back to the token's own exp claim.
		lifetime, err := jwtx.RemainingLifetime(token, e.clock.Now())
		if err != nil {
			return nil, unexpected("response carries no lifetime: %w", err)
		}
		return &ExchangeResult{Token: token, Lifetime: lifetime}, nil
	}

	n, err := expiresIn.Float64()
	if err != nil {
		return nil, unexpected("invalid lifetime %q: %w", expiresIn, err)
	}
	if n <= 0 {
		return nil, unexpected("non-positive lifetime %s", expiresIn)
	}

	lifetime := n * float64(e.lifetimeUnit)
	if math.IsNaN(lifetime) || math.IsInf(lifetime, 0) || lifetime >= math.MaxInt64 {
		return nil, unexpected("lifetime %s out of range", expiresIn)
	}

	return &ExchangeResult{
		Token:    token,
		Lifetime: time.Duration(lifetime),
	}, nil
}
