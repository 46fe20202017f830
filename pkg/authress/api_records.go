package authress

import (
	"context"
	"net/http"
)

// CreateRecord creates an access record. The service assigns the record ID
// when none is given.
func (c *Client) CreateRecord(ctx context.Context, record AccessRecord) (*AccessRecord, error) {
	if errs := record.Validate(); errs != nil {
		return nil, &ValidationError{Model: "AccessRecord", Fields: errs}
	}

	resp, err := c.doAuthRequest(ctx, http.MethodPost, c.url("v1", "records"), record)
	if err != nil {
		return nil, err
	}

	var created AccessRecord
	if err := decodeJSON(resp, &created, http.StatusCreated); err != nil {
		return nil, err
	}

	return &created, nil
}

// GetRecord retrieves an access record by ID.
func (c *Client) GetRecord(ctx context.Context, recordID string) (*AccessRecord, error) {
	if err := requirePathParam("AccessRecord", "recordId", recordID); err != nil {
		return nil, err
	}

	resp, err := c.doAuthRequest(ctx, http.MethodGet, c.url("v1", "records", recordID), nil)
	if err != nil {
		return nil, err
	}

	var record AccessRecord
	if err := decodeJSON(resp, &record, http.StatusOK); err != nil {
		return nil, err
	}

	return &record, nil
}

// DeleteRecord deletes an access record.
func (c *Client) DeleteRecord(ctx context.Context, recordID string) error {
	if err := requirePathParam("AccessRecord", "recordId", recordID); err != nil {
		return err
	}

	resp, err := c.doAuthRequest(ctx, http.MethodDelete, c.url("v1", "records", recordID), nil)
	if err != nil {
		return err
	}

	return checkStatus(resp, http.StatusNoContent, http.StatusOK)
}
