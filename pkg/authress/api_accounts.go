package authress

import (
	"context"
	"net/http"
)

// GetAccount retrieves an account by ID.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if err := requirePathParam("Account", "accountId", accountID); err != nil {
		return nil, err
	}

	resp, err := c.doAuthRequest(ctx, http.MethodGet, c.url("v1", "accounts", accountID), nil)
	if err != nil {
		return nil, err
	}

	var account Account
	if err := decodeJSON(resp, &account, http.StatusOK); err != nil {
		return nil, err
	}

	return &account, nil
}
