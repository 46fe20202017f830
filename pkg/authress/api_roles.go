package authress

import (
	"context"
	"net/http"
)

// CreateRole creates a role.
func (c *Client) CreateRole(ctx context.Context, role Role) (*Role, error) {
	if errs := role.Validate(); errs != nil {
		return nil, &ValidationError{Model: "Role", Fields: errs}
	}

	resp, err := c.doAuthRequest(ctx, http.MethodPost, c.url("v1", "roles"), role)
	if err != nil {
		return nil, err
	}

	var created Role
	if err := decodeJSON(resp, &created, http.StatusCreated); err != nil {
		return nil, err
	}

	return &created, nil
}

// GetRole retrieves a role by ID.
func (c *Client) GetRole(ctx context.Context, roleID string) (*Role, error) {
	if err := requirePathParam("Role", "roleId", roleID); err != nil {
		return nil, err
	}

	resp, err := c.doAuthRequest(ctx, http.MethodGet, c.url("v1", "roles", roleID), nil)
	if err != nil {
		return nil, err
	}

	var role Role
	if err := decodeJSON(resp, &role, http.StatusOK); err != nil {
		return nil, err
	}

	return &role, nil
}

// DeleteRole deletes a role.
func (c *Client) DeleteRole(ctx context.Context, roleID string) error {
	if err := requirePathParam("Role", "roleId", roleID); err != nil {
		return err
	}

	resp, err := c.doAuthRequest(ctx, http.MethodDelete, c.url("v1", "roles", roleID), nil)
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusNoContent, http.StatusOK)
}
