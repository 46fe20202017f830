package httpx

import "context"

type ctxKey string

const (
	CtxKeySubject    ctxKey = "subject"
	CtxKeyCredential ctxKey = "credential"
)

// SubjectFromContext returns the authenticated subject, if any.
func SubjectFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeySubject).(string); ok {
		return v
	}
	return ""
}

// CredentialFromContext returns the raw bearer credential the request
// was authenticated with.
func CredentialFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyCredential).(string); ok {
		return v
	}
	return ""
}
