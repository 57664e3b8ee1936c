package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "nisab/1.0 (+https://github.com/newthinker/nisab)"
)

// HTTPClient is the shared transport for adapters. It maps HTTP outcomes
// onto error kinds so every adapter classifies failures the same way.
type HTTPClient struct {
	client    *http.Client
	userAgent string
}

// NewHTTPClient creates a client with the given timeout and user agent.
func NewHTTPClient(timeout time.Duration, userAgent string) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return WrapHTTPClient(&http.Client{Timeout: timeout}, userAgent)
}

// WrapHTTPClient uses an existing http.Client, e.g. one with a recording transport.
func WrapHTTPClient(c *http.Client, userAgent string) *HTTPClient {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPClient{client: c, userAgent: userAgent}
}

// GetJSON performs a GET request and decodes the JSON body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, providerID, rawURL string, header map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Errorf(providerID, KindMalformed, "creating request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// url.Error embeds the full URL, which may carry an API key
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return NewError(providerID, KindTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return StatusError(providerID, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return Errorf(providerID, KindMalformed, "decoding response: %v", err)
	}
	return nil
}

// KindForStatus maps a non-200 HTTP status to an error kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnavailable
	case status == http.StatusRequestTimeout, status >= 500:
		return KindTransient
	default:
		return KindMalformed
	}
}

// StatusError builds the error for a non-200 response.
func StatusError(providerID string, status int, body []byte) *Error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return NewError(providerID, KindForStatus(status), fmt.Errorf("HTTP %d", status))
	}
	return NewError(providerID, KindForStatus(status), fmt.Errorf("HTTP %d: %s", status, msg))
}
