package authress_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/authress/pkg/authress"
	"github.com/aussiebroadwan/authress/pkg/authress/authresstest"
	"github.com/aussiebroadwan/authress/pkg/idx"
)

// tokenEndpoint serves the token path with a fixed status and body and
// counts the requests it received.
func tokenEndpoint(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, &calls
}

func newExchanger(url string) *authress.HTTPExchanger {
	return authress.NewHTTPExchanger(authress.HTTPExchangerConfig{BaseURL: url})
}

var testRequest = authress.ExchangeRequest{Assertion: "eyJ.assertion.jwt"}

func TestHTTPExchangerSendsRequest(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotHeader http.Header
		gotBody   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"token":"access","expiresIn":3600}`))
	}))
	t.Cleanup(srv.Close)

	ex := authress.NewHTTPExchanger(authress.HTTPExchangerConfig{
		BaseURL:   srv.URL + "/",
		UserAgent: "test-agent",
	})

	res, err := ex.Exchange(context.Background(), authress.ExchangeRequest{
		Assertion:         "eyJ.assertion.jwt",
		PreferredAudience: "https://api.example.com",
		ApplicationID:     "app_1",
	})
	require.NoError(t, err)
	require.Equal(t, "access", res.Token)
	require.Equal(t, time.Hour, res.Lifetime)

	require.Equal(t, authress.DefaultTokenPath, gotPath)
	require.Equal(t, "application/json", gotHeader.Get("Accept"))
	require.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	require.Equal(t, "test-agent", gotHeader.Get("User-Agent"))
	_, err = idx.Parse(gotHeader.Get(idx.HeaderName))
	require.NoError(t, err)

	require.Equal(t, map[string]any{
		"jwt":               "eyJ.assertion.jwt",
		"preferredAudience": "https://api.example.com",
		"applicationId":     "app_1",
	}, gotBody)
}

func TestHTTPExchangerOmitsEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"token":"access","expiresIn":60}`))
	}))
	t.Cleanup(srv.Close)

	_, err := newExchanger(srv.URL).Exchange(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"jwt": "eyJ.assertion.jwt"}, gotBody)
}

func TestHTTPExchangerLifetimes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		unit time.Duration
		body string
		want time.Duration
	}{
		{"seconds", 0, `{"token":"a","expiresIn":120}`, 2 * time.Minute},
		{"fractional seconds", 0, `{"token":"a","expiresIn":0.5}`, 500 * time.Millisecond},
		{"quoted number", 0, `{"token":"a","expiresIn":"90"}`, 90 * time.Second},
		{"oauth spelling", 0, `{"access_token":"a","expires_in":1800}`, 30 * time.Minute},
		{"millisecond unit", time.Millisecond, `{"token":"a","expiresIn":1500}`, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := tokenEndpoint(t, http.StatusOK, tt.body)
			ex := authress.NewHTTPExchanger(authress.HTTPExchangerConfig{
				BaseURL:      srv.URL,
				LifetimeUnit: tt.unit,
			})

			res, err := ex.Exchange(context.Background(), testRequest)
			require.NoError(t, err)
			require.Equal(t, "a", res.Token)
			require.Equal(t, tt.want, res.Lifetime)
		})
	}
}

func TestHTTPExchangerFallsBackToTokenExpiry(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	token, err := idp.Issue("user-1", []string{"aud"}, 10*time.Minute)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]string{"token": token})
	require.NoError(t, err)
	srv, _ := tokenEndpoint(t, http.StatusOK, string(body))

	res, err := newExchanger(srv.URL).Exchange(context.Background(), testRequest)
	require.NoError(t, err)
	require.Equal(t, token, res.Token)
	require.Greater(t, res.Lifetime, 8*time.Minute)
	require.LessOrEqual(t, res.Lifetime, 10*time.Minute)
}

func TestHTTPExchangerUnexpectedShapes(t *testing.T) {
	t.Parallel()

	bodies := map[string]string{
		"not json":               `<html>oops</html>`,
		"no token":               `{"expiresIn":3600}`,
		"empty token":            `{"token":"","expiresIn":3600}`,
		"negative lifetime":      `{"token":"a","expiresIn":-5}`,
		"zero lifetime":          `{"token":"a","expiresIn":0}`,
		"non numeric lifetime":   `{"token":"a","expiresIn":"soon"}`,
		"opaque without expiry":  `{"token":"opaque"}`,
		"lifetime past duration": `{"token":"a","expiresIn":1e10}`,
		"lifetime far out":       `{"token":"a","expiresIn":1e300}`,
		"lifetime overflows f64": `{"token":"a","expiresIn":1e400}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv, _ := tokenEndpoint(t, http.StatusOK, body)
			_, err := newExchanger(srv.URL).Exchange(context.Background(), testRequest)
			require.ErrorIs(t, err, authress.ErrUnexpectedResponseShape)
		})
	}
}

func TestHTTPExchangerClassifiesStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, authress.ErrIdentityAssertionRejected},
		{http.StatusUnauthorized, authress.ErrIdentityAssertionRejected},
		{http.StatusForbidden, authress.ErrIdentityAssertionRejected},
		{http.StatusNotFound, authress.ErrIdentityAssertionRejected},
		{http.StatusUnprocessableEntity, authress.ErrIdentityAssertionRejected},
		{http.StatusRequestTimeout, authress.ErrTransportFailure},
		{http.StatusTooManyRequests, authress.ErrTransportFailure},
		{http.StatusInternalServerError, authress.ErrTransportFailure},
		{http.StatusBadGateway, authress.ErrTransportFailure},
		{http.StatusServiceUnavailable, authress.ErrTransportFailure},
		{http.StatusConflict, authress.ErrUnexpectedResponseShape},
		{http.StatusTeapot, authress.ErrUnexpectedResponseShape},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()

			srv, _ := tokenEndpoint(t, tt.status, `{}`)
			_, err := newExchanger(srv.URL).Exchange(context.Background(), testRequest)
			require.ErrorIs(t, err, tt.want)

			var exErr *authress.ExchangeError
			require.ErrorAs(t, err, &exErr)
			require.Equal(t, tt.status, exErr.StatusCode)
		})
	}
}

func TestHTTPExchangerParsesErrorPayload(t *testing.T) {
	t.Parallel()

	t.Run("oauth style", func(t *testing.T) {
		srv, _ := tokenEndpoint(t, http.StatusUnauthorized,
			`{"error":"invalid_grant","error_description":"assertion expired"}`)

		_, err := newExchanger(srv.URL).Exchange(context.Background(), testRequest)

		var exErr *authress.ExchangeError
		require.ErrorAs(t, err, &exErr)
		require.Equal(t, "invalid_grant", exErr.Code)
		require.Equal(t, "assertion expired", exErr.Description)
		require.False(t, exErr.Retryable())
		require.Contains(t, err.Error(), "assertion expired")
	})

	t.Run("service style", func(t *testing.T) {
		srv, _ := tokenEndpoint(t, http.StatusServiceUnavailable,
			`{"errorCode":"ServiceUnavailable","title":"try later"}`)

		_, err := newExchanger(srv.URL).Exchange(context.Background(), testRequest)

		var exErr *authress.ExchangeError
		require.ErrorAs(t, err, &exErr)
		require.Equal(t, "ServiceUnavailable", exErr.Code)
		require.Equal(t, "try later", exErr.Description)
		require.True(t, exErr.Retryable())
	})
}

func TestHTTPExchangerNetworkFailure(t *testing.T) {
	t.Parallel()

	srv, _ := tokenEndpoint(t, http.StatusOK, `{}`)
	url := srv.URL
	srv.Close()

	_, err := newExchanger(url).Exchange(context.Background(), testRequest)
	require.ErrorIs(t, err, authress.ErrTransportFailure)

	var exErr *authress.ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Zero(t, exErr.StatusCode)
	require.True(t, exErr.Retryable())
}

func TestHTTPExchangerRequiresAssertion(t *testing.T) {
	t.Parallel()

	srv, calls := tokenEndpoint(t, http.StatusOK, `{"token":"a","expiresIn":60}`)

	_, err := newExchanger(srv.URL).Exchange(context.Background(), authress.ExchangeRequest{})
	require.ErrorIs(t, err, authress.ErrInvalidCredentialConfiguration)

	var vErr *authress.ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Contains(t, vErr.Fields, "jwt")

	var exErr *authress.ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.False(t, exErr.Retryable())
	require.Zero(t, calls.Load())
}

func TestHTTPExchangerMalformedBaseURL(t *testing.T) {
	t.Parallel()

	_, err := newExchanger("http://bad host").Exchange(context.Background(), testRequest)
	require.ErrorIs(t, err, authress.ErrInvalidCredentialConfiguration)

	var exErr *authress.ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.Zero(t, exErr.StatusCode)
}

func TestHTTPExchangerRateLimit(t *testing.T) {
	t.Parallel()

	srv, calls := tokenEndpoint(t, http.StatusOK, `{"token":"a","expiresIn":60}`)
	ex := authress.NewHTTPExchanger(authress.HTTPExchangerConfig{
		BaseURL: srv.URL,
		Limiter: rate.NewLimiter(rate.Every(time.Hour), 1),
	})

	_, err := ex.Exchange(context.Background(), testRequest)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = ex.Exchange(ctx, testRequest)
	require.ErrorIs(t, err, authress.ErrTransportFailure)
	require.False(t, errors.Is(err, authress.ErrIdentityAssertionRejected))
	require.Equal(t, int32(1), calls.Load())
}
