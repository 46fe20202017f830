package authress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/authress/pkg/idx"
)

const maxResponseBytes = 4 << 20

// url builds a complete URL by joining the escaped path segments to the
// base URL.
func (c *Client) url(segments ...string) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

// doAuthRequest performs an HTTP request authorized by the login client.
// On 401 the token it used is handed back to the login client so the next
// call obtains a fresh one.
func (c *Client) doAuthRequest(
	ctx context.Context,
	method, target string,
	body any,
) (*http.Response, error) {
	value, err := c.login.GetAuthorizationValue(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	contentTypes := []string{}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentTypes = []string{mimeJSON}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range SelectHeaders([]string{mimeJSON}, contentTypes) {
		req.Header.Set(k, v)
	}
	req.Header.Set(headerAuthorization, "Bearer "+value)
	req.Header.Set(headerUserAgent, c.userAgent)
	req.Header.Set(idx.HeaderName, idx.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.login.RejectToken(value)
	}

	return resp, nil
}

// decodeJSON decodes the response into target when the status is
// expectedStatus, otherwise returns an *APIError.
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return newAPIError(resp.StatusCode, bodyBytes)
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// checkStatus returns an *APIError unless the status is one of expected.
func checkStatus(resp *http.Response, expected ...int) error {
	defer resp.Body.Close()

	for _, s := range expected {
		if resp.StatusCode == s {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
			return nil
		}
	}

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return newAPIError(resp.StatusCode, bodyBytes)
}
