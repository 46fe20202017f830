// Package authresstest provides an in-process fake of the service and an
// identity provider for tests of code built on package authress.
package authresstest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/authress/pkg/authress"
	"github.com/aussiebroadwan/authress/pkg/cryptox"
	"github.com/aussiebroadwan/authress/pkg/httpx"
	"github.com/aussiebroadwan/authress/pkg/idx"
	"github.com/aussiebroadwan/authress/pkg/jwtx"
	"github.com/aussiebroadwan/authress/pkg/slogx"
)

// DefaultTokenLifetime is the expiresIn of minted access tokens.
const DefaultTokenLifetime = time.Hour

var errRevoked = errors.New("token revoked")

// Server is a fake service backed by httptest.Server.
type Server struct {
	srv       *httptest.Server
	idp       *IdentityProvider
	assertion *jwtx.EdDSAVerifier
	signer    *jwtx.EdDSASigner
	access    *jwtx.EdDSAVerifier
	logger    *slog.Logger
	issuer    string

	tokenPath     string
	tokenLifetime time.Duration
	omitLifetime  bool
	exchangeDelay time.Duration
	exchangeLimit *httpx.RateLimitConfig
	resourceLimit *httpx.RateLimitConfig

	mu        sync.Mutex
	apiKeys   map[string]bool // by fingerprint
	exchanges int
	failures  []failure
	revoked   map[string]bool // by fingerprint
	lastReq   http.Header
	roles     map[string]authress.Role
	records   map[string]authress.AccessRecord
	accounts  map[string]authress.Account
	grants    map[grant]bool
}

type failure struct {
	status int
	code   string
}

type grant struct {
	user, resource, permission string
}

// ServerOption customises a Server.
type ServerOption func(*Server)

// WithTokenLifetime sets the lifetime of minted access tokens.
func WithTokenLifetime(d time.Duration) ServerOption {
	return func(s *Server) { s.tokenLifetime = d }
}

// WithoutLifetime omits expiresIn from exchange responses, leaving the
// client to read the token's exp claim.
func WithoutLifetime() ServerOption {
	return func(s *Server) { s.omitLifetime = true }
}

// WithAPIKey makes resource endpoints accept key as a bearer credential.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) { s.apiKeys[cryptox.Fingerprint(key)] = true }
}

// WithExchangeDelay holds every exchange for d before answering.
func WithExchangeDelay(d time.Duration) ServerOption {
	return func(s *Server) { s.exchangeDelay = d }
}

// WithTokenPath serves the token endpoint at path.
func WithTokenPath(path string) ServerOption {
	return func(s *Server) { s.tokenPath = path }
}

// WithExchangeRateLimit answers 429 once a caller exceeds requests per
// window at the token endpoint.
func WithExchangeRateLimit(requests int, window time.Duration) ServerOption {
	return func(s *Server) {
		s.exchangeLimit = &httpx.RateLimitConfig{Requests: requests, Window: window}
	}
}

// WithResourceRateLimit answers 429 once one authenticated subject exceeds
// requests per window across the resource endpoints.
func WithResourceRateLimit(requests int, window time.Duration) ServerOption {
	return func(s *Server) {
		s.resourceLimit = &httpx.RateLimitConfig{
			Requests: requests,
			Window:   window,
			Reject: func(w http.ResponseWriter, _ time.Duration) {
				httpx.WriteServiceError(w, http.StatusTooManyRequests, "TooManyRequests", "rate limit exceeded")
			},
		}
	}
}

// WithLogger logs requests handled by the server.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer starts a fake service that trusts assertions from idp. It is
// closed when the test ends.
func NewServer(t testing.TB, idp *IdentityProvider, opts ...ServerOption) *Server {
	t.Helper()

	signer, keys, err := newSigningKey("authress")
	if err != nil {
		t.Fatalf("authresstest: %v", err)
	}

	s := &Server{
		idp:           idp,
		assertion:     idp.Verifier(),
		signer:        signer,
		logger:        slogx.Discard(),
		tokenPath:     authress.DefaultTokenPath,
		tokenLifetime: DefaultTokenLifetime,
		apiKeys:       make(map[string]bool),
		revoked:       make(map[string]bool),
		roles:         make(map[string]authress.Role),
		records:       make(map[string]authress.AccessRecord),
		accounts:      make(map[string]authress.Account),
		grants:        make(map[grant]bool),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = httptest.NewUnstartedServer(s.routes())
	s.issuer = "http://" + s.srv.Listener.Addr().String()
	s.access = jwtx.NewVerifierEdDSA(keys, s.issuer, nil)
	s.srv.Start()

	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	var exchange http.Handler = http.HandlerFunc(s.handleExchange)
	if s.exchangeLimit != nil {
		exchange = httpx.RateLimitByIP(*s.exchangeLimit)(exchange)
	}
	mux.Handle("POST "+s.tokenPath, exchange)

	mws := []httpx.Middleware{httpx.AuthnMiddleware(s.authenticate)}
	if s.resourceLimit != nil {
		// One limiter shared by every route, keyed after authn.
		mws = append(mws, httpx.RateLimitMiddleware(*s.resourceLimit, httpx.SubjectKeyExtractor))
	}
	resource := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, httpx.Chain(h, mws...))
	}
	resource("POST /v1/roles", s.handleCreateRole)
	resource("GET /v1/roles/{roleId}", s.handleGetRole)
	resource("DELETE /v1/roles/{roleId}", s.handleDeleteRole)
	resource("POST /v1/records", s.handleCreateRecord)
	resource("GET /v1/records/{recordId}", s.handleGetRecord)
	resource("DELETE /v1/records/{recordId}", s.handleDeleteRecord)
	resource("GET /v1/accounts/{accountId}", s.handleGetAccount)
	resource("GET /v1/users/{userId}/resources/{resourceUri}/permissions/{permission}", s.handleAuthorize)

	return s.withRequestLog(mux)
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.lastReq = r.Header.Clone()
		s.mu.Unlock()

		reqID := r.Header.Get(idx.HeaderName)
		logger := s.logger.With("req_id", reqID, "method", r.Method, "path", r.URL.Path)
		logger.Debug("fake request")

		next.ServeHTTP(w, r.WithContext(slogx.WithContext(r.Context(), logger)))
	})
}

// URL is the base URL to configure clients with.
func (s *Server) URL() string { return s.srv.URL }

// Issuer is the iss claim of minted access tokens.
func (s *Server) Issuer() string { return s.issuer }

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// ExchangeCount is the number of requests the token endpoint received.
func (s *Server) ExchangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// FailNextExchanges makes the next n exchanges answer status.
func (s *Server) FailNextExchanges(status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for range n {
		s.failures = append(s.failures, failure{status: status, code: "injected_failure"})
	}
}

// Revoke makes resource endpoints answer 401 to token, which may be a
// minted access token or an API key.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[cryptox.Fingerprint(token)] = true
}

// NewAPIKey generates an API key the resource endpoints accept.
func (s *Server) NewAPIKey() (string, error) {
	key, err := cryptox.GenerateAPIKey("sc_")
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[cryptox.Fingerprint(key)] = true
	return key, nil
}

// LastRequestHeader returns the headers of the most recent request.
func (s *Server) LastRequestHeader() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq.Clone()
}

// AddAccount stores account for GetAccount.
func (s *Server) AddAccount(account authress.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.AccountID] = account
}

// Grant gives userID permission on resourceURI.
func (s *Server) Grant(userID, resourceURI, permission string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grant{userID, resourceURI, permission}] = true
}

// Role returns a stored role.
func (s *Server) Role(roleID string) (authress.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	return r, ok
}

// VerifyAccessToken checks a token minted by the server and returns its
// claims.
func (s *Server) VerifyAccessToken(token string) (*jwtx.Claims, error) {
	return s.access.Verify(token)
}

// ============================================================================
// Token endpoint
// ============================================================================

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.exchanges++
	var fail *failure
	if len(s.failures) > 0 {
		f := s.failures[0]
		s.failures = s.failures[1:]
		fail = &f
	}
	s.mu.Unlock()

	if s.exchangeDelay > 0 {
		select {
		case <-time.After(s.exchangeDelay):
		case <-r.Context().Done():
			return
		}
	}

	if fail != nil {
		httpx.WriteOAuthError(w, fail.status, fail.code, "injected failure")
		return
	}

	var req authress.ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if errs := req.Validate(); errs != nil {
		httpx.WriteOAuthError(w, http.StatusBadRequest, "invalid_request", "jwt is required")
		return
	}

	claims, err := s.assertion.Verify(req.Assertion)
	if err != nil {
		httpx.WriteOAuthError(w, http.StatusUnauthorized, "invalid_grant", err.Error())
		return
	}

	audience, err := pickAudience(claims.Audience, req.PreferredAudience, s.issuer)
	if err != nil {
		httpx.WriteOAuthError(w, http.StatusBadRequest, "invalid_grant", err.Error())
		return
	}

	token, err := s.signer.Sign(jwtx.NewAccessClaims(
		s.issuer, claims.Subject, audience, req.ApplicationID, s.tokenLifetime, time.Now(),
	))
	if err != nil {
		httpx.WriteOAuthError(w, http.StatusInternalServerError, "server_error", "failed to sign token")
		return
	}

	slogx.FromContext(r.Context(), s.logger).Debug("fake exchange",
		"subject", claims.Subject,
		"audience", audience,
		"application_id", req.ApplicationID,
	)

	body := map[string]any{"token": token}
	if !s.omitLifetime {
		body["expiresIn"] = s.tokenLifetime.Seconds()
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

// pickAudience binds the session to preferred when given, otherwise to the
// assertion's only audience.
func pickAudience(have []string, preferred, fallback string) (string, error) {
	switch {
	case preferred != "":
		if !slices.Contains(have, preferred) {
			return "", fmt.Errorf("preferred audience %q not in assertion", preferred)
		}
		return preferred, nil
	case len(have) == 1:
		return have[0], nil
	case len(have) > 1:
		return "", errors.New("assertion has several audiences; preferredAudience is required")
	default:
		return fallback, nil
	}
}

// ============================================================================
// Resource endpoints
// ============================================================================

func (s *Server) authenticate(_ context.Context, credential string) (string, error) {
	fp := cryptox.Fingerprint(credential)

	s.mu.Lock()
	isKey := s.apiKeys[fp]
	revoked := s.revoked[fp]
	s.mu.Unlock()

	if revoked {
		return "", errRevoked
	}
	if isKey {
		return "api-key", nil
	}

	claims, err := s.access.Verify(credential)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var role authress.Role
	if err := json.NewDecoder(r.Body).Decode(&role); err != nil {
		httpx.WriteServiceError(w, http.StatusBadRequest, "InvalidRequest", "malformed JSON body")
		return
	}
	if errs := role.Validate(); errs != nil {
		httpx.WriteServiceError(w, http.StatusBadRequest, "InvalidRequest", "role is invalid")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.roles[role.RoleID]; exists {
		httpx.WriteServiceError(w, http.StatusConflict, "RoleAlreadyExists", "role already exists")
		return
	}

	now := time.Now().UTC()
	role.LastUpdated = &now
	s.roles[role.RoleID] = role
	httpx.WriteJSON(w, http.StatusCreated, role)
}

func (s *Server) handleGetRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	role, ok := s.roles[r.PathValue("roleId")]
	s.mu.Unlock()

	if !ok {
		httpx.WriteServiceError(w, http.StatusNotFound, "RoleNotFound", "role not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, role)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("roleId")
	if _, ok := s.roles[id]; !ok {
		httpx.WriteServiceError(w, http.StatusNotFound, "RoleNotFound", "role not found")
		return
	}
	delete(s.roles, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var record authress.AccessRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		httpx.WriteServiceError(w, http.StatusBadRequest, "InvalidRequest", "malformed JSON body")
		return
	}
	if errs := record.Validate(); errs != nil {
		httpx.WriteServiceError(w, http.StatusBadRequest, "InvalidRequest", "record is invalid")
		return
	}

	if record.RecordID == "" {
		record.RecordID = "rec_" + idx.New().String()
	}
	if record.Status == "" {
		record.Status = authress.RecordStatusActive
	}
	record.Links = &authress.Links{Self: authress.Link{Href: s.issuer + "/v1/records/" + record.RecordID}}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.RecordID]; exists {
		httpx.WriteServiceError(w, http.StatusConflict, "RecordAlreadyExists", "record already exists")
		return
	}
	s.records[record.RecordID] = record

	// Statements take effect immediately for AuthorizeUser.
	for _, st := range record.Statements {
		for _, u := range append(slices.Clone(record.Users), st.Users...) {
			for _, res := range st.Resources {
				for _, roleID := range st.Roles {
					for _, p := range s.roles[roleID].Permissions {
						if p.Allow {
							s.grants[grant{u.UserID, res.ResourceURI, p.Action}] = true
						}
					}
				}
			}
		}
	}

	httpx.WriteJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	record, ok := s.records[r.PathValue("recordId")]
	s.mu.Unlock()

	if !ok {
		httpx.WriteServiceError(w, http.StatusNotFound, "RecordNotFound", "record not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := r.PathValue("recordId")
	if _, ok := s.records[id]; !ok {
		httpx.WriteServiceError(w, http.StatusNotFound, "RecordNotFound", "record not found")
		return
	}
	delete(s.records, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	account, ok := s.accounts[r.PathValue("accountId")]
	s.mu.Unlock()

	if !ok {
		httpx.WriteServiceError(w, http.StatusNotFound, "AccountNotFound", "account not found")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, account)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	g := grant{
		user:       r.PathValue("userId"),
		resource:   r.PathValue("resourceUri"),
		permission: r.PathValue("permission"),
	}

	s.mu.Lock()
	ok := s.grants[g]
	s.mu.Unlock()

	if !ok {
		httpx.WriteServiceError(w, http.StatusNotFound, "UserDoesNotHavePermission", "user does not have permission")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"userId":      g.user,
		"resourceUri": g.resource,
		"permission":  g.permission,
	})
}
