package authresstest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authress/pkg/authress"
	"github.com/aussiebroadwan/authress/pkg/authress/authresstest"
	"github.com/aussiebroadwan/authress/pkg/jwtx"
)

func exchange(t *testing.T, srv *authresstest.Server, body any) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := srv.Client().Post(srv.URL()+authress.DefaultTokenPath, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestIdentityProviderIssue(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	require.Equal(t, "https://idp.example.com", idp.Issuer())
	require.Len(t, idp.JWKS().Keys, 1)

	token, err := idp.Issue("user-1", []string{"aud"}, time.Minute)
	require.NoError(t, err)

	claims, err := idp.Verifier().Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)

	expired, err := idp.Issue("user-1", []string{"aud"}, -time.Minute)
	require.NoError(t, err)
	_, err = idp.Verifier().Verify(expired)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestServerExchange(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	srv := authresstest.NewServer(t, idp, authresstest.WithTokenLifetime(10*time.Minute))

	assertion, err := idp.Issue("user-1", []string{"aud"}, time.Minute)
	require.NoError(t, err)

	resp, out := exchange(t, srv, map[string]string{"jwt": assertion, "applicationId": "app_1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.InDelta(t, 600, out["expiresIn"], 0.001)

	claims, err := srv.VerifyAccessToken(out["token"].(string))
	require.NoError(t, err)
	require.Equal(t, srv.Issuer(), claims.Issuer)
	require.Equal(t, "app_1", claims.ClientID)
	require.Equal(t, 1, srv.ExchangeCount())
}

func TestServerRejectsForeignAssertion(t *testing.T) {
	t.Parallel()

	trusted, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	other, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)

	srv := authresstest.NewServer(t, trusted)

	assertion, err := other.Issue("user-1", []string{"aud"}, time.Minute)
	require.NoError(t, err)

	resp, out := exchange(t, srv, map[string]string{"jwt": assertion})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_grant", out["error"])

	resp, out = exchange(t, srv, map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", out["error"])
}

func TestServerFailNextExchanges(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	srv := authresstest.NewServer(t, idp)
	srv.FailNextExchanges(http.StatusBadGateway, 2)

	assertion, err := idp.Issue("user-1", []string{"aud"}, time.Minute)
	require.NoError(t, err)
	body := map[string]string{"jwt": assertion}

	for range 2 {
		resp, _ := exchange(t, srv, body)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	}
	resp, _ := exchange(t, srv, body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 3, srv.ExchangeCount())
}

func TestServerResourceAuth(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	srv := authresstest.NewServer(t, idp, authresstest.WithAPIKey("key"))

	get := func(credential string) int {
		req, err := http.NewRequest(http.MethodGet, srv.URL()+"/v1/roles/missing", nil)
		require.NoError(t, err)
		if credential != "" {
			req.Header.Set("Authorization", "Bearer "+credential)
		}
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	require.Equal(t, http.StatusUnauthorized, get(""))
	require.Equal(t, http.StatusUnauthorized, get("garbage"))
	require.Equal(t, http.StatusNotFound, get("key"))

	assertion, err := idp.Issue("user-1", []string{"aud"}, time.Minute)
	require.NoError(t, err)
	_, out := exchange(t, srv, map[string]string{"jwt": assertion})
	token := out["token"].(string)

	require.Equal(t, http.StatusNotFound, get(token))
	srv.Revoke(token)
	require.Equal(t, http.StatusUnauthorized, get(token))
}

func TestServerResourceRateLimitPerSubject(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	srv := authresstest.NewServer(t, idp,
		authresstest.WithAPIKey("key"),
		authresstest.WithResourceRateLimit(1, time.Hour),
	)

	get := func(credential string) (int, map[string]any) {
		req, err := http.NewRequest(http.MethodGet, srv.URL()+"/v1/roles/missing", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+credential)
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}

	status, _ := get("key")
	require.Equal(t, http.StatusNotFound, status)

	status, body := get("key")
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "TooManyRequests", body["errorCode"])

	// Another subject has its own budget.
	assertion, err := idp.Issue("user-1", []string{"aud"}, time.Minute)
	require.NoError(t, err)
	_, out := exchange(t, srv, map[string]string{"jwt": assertion})
	status, _ = get(out["token"].(string))
	require.Equal(t, http.StatusNotFound, status)

	// Rejected credentials never reach the limiter.
	status, body = get("garbage")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "InvalidToken", body["errorCode"])
}

func TestServerNewAPIKey(t *testing.T) {
	t.Parallel()

	idp, err := authresstest.NewIdentityProvider("https://idp.example.com")
	require.NoError(t, err)
	srv := authresstest.NewServer(t, idp)

	key, err := srv.NewAPIKey()
	require.NoError(t, err)

	client, err := authress.NewClient(authress.Config{BaseURL: srv.URL(), APIKey: key})
	require.NoError(t, err)

	_, err = client.GetRole(t.Context(), "missing")
	require.ErrorIs(t, err, authress.ErrNotFound)

	srv.Revoke(key)
	_, err = client.GetRole(t.Context(), "missing")
	require.ErrorIs(t, err, authress.ErrUnauthorized)
	require.Equal(t, authress.AuthModeAPIKey, client.Login().Mode())
}
