package authresstest

import (
	"fmt"
	"time"

	"github.com/aussiebroadwan/authress/pkg/cryptox"
	"github.com/aussiebroadwan/authress/pkg/jwtx"
)

// IdentityProvider issues identity assertions signed with a fresh Ed25519
// key.
type IdentityProvider struct {
	issuer string
	signer *jwtx.EdDSASigner
	keys   *jwtx.KeySet

	// Now stamps iat/nbf/exp; defaults to time.Now.
	Now func() time.Time
}

// NewIdentityProvider creates a provider whose assertions carry issuer.
func NewIdentityProvider(issuer string) (*IdentityProvider, error) {
	signer, keys, err := newSigningKey("idp")
	if err != nil {
		return nil, err
	}

	return &IdentityProvider{
		issuer: issuer,
		signer: signer,
		keys:   keys,
		Now:    time.Now,
	}, nil
}

func (p *IdentityProvider) Issuer() string { return p.issuer }

// Issue signs an assertion for subject. A negative ttl yields an already
// expired assertion.
func (p *IdentityProvider) Issue(subject string, audience []string, ttl time.Duration) (string, error) {
	return p.signer.Sign(jwtx.NewAssertionClaims(p.issuer, subject, audience, ttl, p.Now()))
}

// JWKS returns the provider's public keys.
func (p *IdentityProvider) JWKS() jwtx.JWKS {
	return p.keys.PublicJWKS()
}

// Verifier checks assertions issued by p.
func (p *IdentityProvider) Verifier() *jwtx.EdDSAVerifier {
	v := jwtx.NewVerifierEdDSA(p.keys, p.issuer, nil)
	v.Now = func() time.Time { return p.Now() }
	return v
}

func newSigningKey(prefix string) (*jwtx.EdDSASigner, *jwtx.KeySet, error) {
	pemKey, err := cryptox.GenerateEd25519Key()
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	signer, err := jwtx.NewSignerEdDSA(prefix+"-"+jwtx.NewJTI()[:8], pemKey)
	if err != nil {
		return nil, nil, err
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddSigner(signer); err != nil {
		return nil, nil, err
	}

	return signer, keys, nil
}
