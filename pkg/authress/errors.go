package authress

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ============================================================================
// Login error kinds
// ============================================================================

var (
	// ErrInvalidCredentialConfiguration is returned when the client has
	// neither an API key nor a way to obtain a bearer token, or when bearer
	// mode needs an identity assertion that was never supplied.
	ErrInvalidCredentialConfiguration = errors.New("authress: invalid credential configuration")

	// ErrIdentityAssertionRejected is returned when the service refused the
	// supplied identity assertion (expired, malformed, wrong audience).
	ErrIdentityAssertionRejected = errors.New("authress: identity assertion rejected")

	// ErrTransportFailure is returned when the token endpoint could not be
	// reached or answered with a retryable status. Callers may retry with
	// backoff.
	ErrTransportFailure = errors.New("authress: transport failure")

	// ErrUnexpectedResponseShape is returned when the token endpoint answered
	// with something this client cannot interpret.
	ErrUnexpectedResponseShape = errors.New("authress: unexpected response shape")
)

// ExchangeError describes a failed identity exchange. Kind is one of the
// login error kinds above; errors.Is matches against it and against Err.
type ExchangeError struct {
	Kind error

	// StatusCode is the HTTP status of the token endpoint, 0 when no
	// response was received.
	StatusCode int

	// Code and Description come from the service's error payload, if any.
	Code        string
	Description string

	// Err is the underlying cause, if any.
	Err error
}

func (e *ExchangeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())

	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, ": %s", e.Code)
	}
	if e.Description != "" {
		fmt.Fprintf(&b, ": %s", e.Description)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}

	return b.String()
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether repeating the exchange later may succeed.
func (e *ExchangeError) Retryable() bool {
	return errors.Is(e.Kind, ErrTransportFailure)
}

// ============================================================================
// API errors
// ============================================================================

var (
	// ErrUnauthorized matches an APIError with status 401. The login client
	// has already dropped the rejected token when this is returned.
	ErrUnauthorized = errors.New("authress: unauthorized")

	// ErrForbidden matches an APIError with status 403.
	ErrForbidden = errors.New("authress: forbidden")

	// ErrNotFound matches an APIError with status 404.
	ErrNotFound = errors.New("authress: not found")

	// ErrNotAuthorized is returned by AuthorizeUser when the user does not
	// hold the permission on the resource.
	ErrNotAuthorized = errors.New("authress: user is not authorized")
)

// APIError is a non-success response from a resource endpoint.
type APIError struct {
	StatusCode int
	Code       string
	Title      string
	Body       []byte
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Title != "":
		return fmt.Sprintf("authress: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Title)
	case e.Title != "":
		return fmt.Sprintf("authress: HTTP %d: %s", e.StatusCode, e.Title)
	default:
		return fmt.Sprintf("authress: HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Is lets callers match on the status class with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// ValidationError is returned before any network call when a request model
// fails Validate.
type ValidationError struct {
	Model  string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("authress: invalid %s: %s", e.Model, formatFieldErrors(e.Fields))
}

// ============================================================================
// Error parsing helpers
// ============================================================================

// errorPayload accepts both OAuth2 style ({error, error_description}) and
// the service's own ({errorCode, title}) error bodies.
type errorPayload struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"errorCode"`
	Title            string `json:"title"`
}

// parseErrorPayload returns the code and description of body, or empty
// strings when body is not a recognised error document.
func parseErrorPayload(body []byte) (code, description string) {
	var p errorPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", ""
	}

	code = p.Error
	if code == "" {
		code = p.ErrorCode
	}

	description = p.ErrorDescription
	if description == "" {
		description = p.Title
	}

	return code, description
}

// classifyExchangeStatus maps a non-2xx token endpoint status to a login
// error kind.
func classifyExchangeStatus(status int) error {
	switch {
	case status == http.StatusBadRequest,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusNotFound,
		status == http.StatusUnprocessableEntity:
		return ErrIdentityAssertionRejected
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return ErrTransportFailure
	default:
		return ErrUnexpectedResponseShape
	}
}

// newAPIError builds an APIError from a failed resource response.
func newAPIError(status int, body []byte) *APIError {
	code, title := parseErrorPayload(body)
	return &APIError{
		StatusCode: status,
		Code:       code,
		Title:      title,
		Body:       body,
	}
}
