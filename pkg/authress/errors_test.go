package authress_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/authress/pkg/authress"
)

func TestExchangeErrorMatching(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := fmt.Errorf("get token: %w", &authress.ExchangeError{
		Kind: authress.ErrTransportFailure,
		Err:  cause,
	})

	require.ErrorIs(t, err, authress.ErrTransportFailure)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, authress.ErrIdentityAssertionRejected)

	var exErr *authress.ExchangeError
	require.ErrorAs(t, err, &exErr)
	require.True(t, exErr.Retryable())
	require.Equal(t, "authress: transport failure: connection refused", exErr.Error())
}

func TestExchangeErrorMessage(t *testing.T) {
	t.Parallel()

	err := &authress.ExchangeError{
		Kind:        authress.ErrIdentityAssertionRejected,
		StatusCode:  http.StatusUnauthorized,
		Code:        "invalid_grant",
		Description: "assertion expired",
	}
	require.Equal(t, "authress: identity assertion rejected: HTTP 401: invalid_grant: assertion expired", err.Error())
	require.False(t, err.Retryable())
}

func TestAPIErrorMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		target error
	}{
		{http.StatusUnauthorized, authress.ErrUnauthorized},
		{http.StatusForbidden, authress.ErrForbidden},
		{http.StatusNotFound, authress.ErrNotFound},
	}

	for _, tt := range tests {
		err := &authress.APIError{StatusCode: tt.status}
		require.ErrorIs(t, err, tt.target)
		for _, other := range tests {
			if other.target != tt.target {
				require.NotErrorIs(t, err, other.target)
			}
		}
	}

	require.Equal(t, "authress: HTTP 500: Internal Server Error",
		(&authress.APIError{StatusCode: http.StatusInternalServerError}).Error())
	require.Equal(t, "authress: HTTP 404: RoleNotFound: role not found",
		(&authress.APIError{StatusCode: 404, Code: "RoleNotFound", Title: "role not found"}).Error())
}
