/*
Package authress provides a client SDK for the Authress authorization service.

# Overview

Every request the SDK sends carries an Authorization header. Its value comes
from a LoginClient, which works in one of two modes:

  - API key: a static key configured up front, presented as is
  - Bearer: an access token obtained by exchanging an identity provider JWT
    (the identity assertion) at the service's token endpoint

Create a Client for resource operations. The client owns its LoginClient:

	client, err := authress.NewClient(authress.Config{
		BaseURL: "https://auth.example.com",
		APIKey:  os.Getenv("AUTHRESS_API_KEY"),
	})

	role, err := client.GetRole(ctx, "documents:reader")

# Identity Exchange

In bearer mode supply the assertion before the first call:

	client, err := authress.NewClient(authress.Config{
		BaseURL:          "https://auth.example.com",
		ApplicationID:    "app_123",
		IdentityExchange: true,
	})
	client.Login().SetIdentityAssertion(idToken, "https://api.example.com")

	err = client.AuthorizeUser(ctx, userID, "documents/42", "documents:read")

# Token Caching

The LoginClient caches the access token for its declared lifetime minus a
safety margin (DefaultSafetyMargin, never less than MinTokenWindow).
GetAuthorizationValue:

 1. Returns the API key when one is configured
 2. Returns the cached token while it is valid
 3. Otherwise exchanges the assertion, caches and returns the new token

Concurrent callers that miss the cache share one exchange. A caller whose
context ends stops waiting, the exchange itself runs to completion for the
others.

A 401 from any resource endpoint drops the token that was used, so the next
call exchanges again. Invalidate drops it unconditionally.

# Error Handling

Login failures match one of four sentinel errors with errors.Is:

  - ErrInvalidCredentialConfiguration: no API key and no usable exchange
  - ErrIdentityAssertionRejected: the service refused the assertion
  - ErrTransportFailure: network error or retryable status; retry later
  - ErrUnexpectedResponseShape: the token endpoint answered with something unusable

Exchange failures are *ExchangeError values carrying the HTTP status and the
service's error code. Resource failures are *APIError values; ErrUnauthorized,
ErrForbidden and ErrNotFound match on their status. Request models are
checked with Validate before anything is sent; failures are *ValidationError.

# Thread Safety

Client and LoginClient are safe for concurrent use.
*/
package authress
