package authress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AuthorizeUser checks whether userID holds permission on resourceURI.
// It returns nil when the user is authorized and ErrNotAuthorized when not.
func (c *Client) AuthorizeUser(ctx context.Context, userID, resourceURI, permission string) error {
	errs := make(map[string]string)
	for field, v := range map[string]string{
		"userId":      userID,
		"resourceUri": resourceURI,
		"permission":  permission,
	} {
		if strings.TrimSpace(v) == "" {
			errs[field] = reasonRequired
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Model: "AuthorizationCheck", Fields: errs}
	}

	target := c.url("v1", "users", userID, "resources", resourceURI, "permissions", permission)
	resp, err := c.doAuthRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	err = checkStatus(resp, http.StatusOK)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s on %s for %s", ErrNotAuthorized, permission, resourceURI, userID)
	}
	return err
}
