package authress

import "github.com/aussiebroadwan/authress/pkg/slogx"

type credentialKind int

const (
	credentialNone credentialKind = iota
	credentialAPIKey
)

// Credential is either a static API key or nothing. The zero value is the
// None credential.
type Credential struct {
	kind   credentialKind
	apiKey string
}

// APIKeyCredential returns a credential carrying key. An empty key yields
// the None credential.
func APIKeyCredential(key string) Credential {
	if key == "" {
		return Credential{}
	}
	return Credential{kind: credentialAPIKey, apiKey: key}
}

// NoCredential returns the None credential.
func NoCredential() Credential {
	return Credential{}
}

// APIKey returns the key and true when c is an API key credential.
func (c Credential) APIKey() (string, bool) {
	return c.apiKey, c.kind == credentialAPIKey
}

func (c Credential) IsAPIKey() bool { return c.kind == credentialAPIKey }

// String never includes the key itself.
func (c Credential) String() string {
	if c.kind == credentialAPIKey {
		return "APIKey(" + slogx.MaskSecret(c.apiKey) + ")"
	}
	return "None"
}

// CredentialSource resolves the credential configured at construction.
type CredentialSource interface {
	Resolve() Credential
}

type staticCredentialSource struct {
	cred Credential
}

// NewStaticCredentialSource returns a source that always resolves cred.
func NewStaticCredentialSource(cred Credential) CredentialSource {
	return staticCredentialSource{cred: cred}
}

func (s staticCredentialSource) Resolve() Credential { return s.cred }
