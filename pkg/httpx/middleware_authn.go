package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/authress/pkg/slogx"
)

// Authenticator checks a bearer credential and returns its subject.
type Authenticator func(ctx context.Context, credential string) (subject string, err error)

// AuthnMiddleware rejects requests whose bearer credential fails auth.
func AuthnMiddleware(auth Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx, nil)

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
				writeBearerError(w, "missing bearer token")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			subject, err := auth(ctx, raw)
			if err != nil {
				writeBearerError(w, err.Error())
				log.Debug("bearer credential rejected", "err", err)
				return
			}

			ctx = context.WithValue(ctx, CtxKeySubject, subject)
			ctx = context.WithValue(ctx, CtxKeyCredential, raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteServiceError(w, http.StatusUnauthorized, "InvalidToken", desc)
}
