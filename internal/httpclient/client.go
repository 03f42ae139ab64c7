// Package httpclient provides HTTP client functionality for API operations
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum allowed response size (50MB)
	MaxResponseSize = 50 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "opscenter-sync/1.0"
)

// Client is an interface for HTTP operations
type Client interface {
	// Get performs an HTTP GET request and returns the response body
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)

	// Post performs an HTTP POST request with a JSON body and returns the response body
	Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error)

	// PostForm performs an HTTP POST request with form-encoded values
	PostForm(ctx context.Context, url string, values url.Values) ([]byte, error)
}

// DefaultClient is the default HTTP client implementation
type DefaultClient struct {
	client *http.Client
}

// NewDefaultClient creates a new default HTTP client with the specified timeout.
// If timeout is 0, uses DefaultTimeout.
func NewDefaultClient(timeout time.Duration) Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &DefaultClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Get performs an HTTP GET request
func (c *DefaultClient) Get(ctx context.Context, reqURL string, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, reqURL, "", nil, headers)
}

// Post performs an HTTP POST request with a JSON body
func (c *DefaultClient) Post(ctx context.Context, reqURL string, body []byte, headers map[string]string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, reqURL, "application/json", bytes.NewReader(body), headers)
}

// PostForm performs an HTTP POST request with form-encoded values
func (c *DefaultClient) PostForm(ctx context.Context, reqURL string, values url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, reqURL, "application/x-www-form-urlencoded",
		strings.NewReader(values.Encode()), nil)
}

func (c *DefaultClient) do(
	ctx context.Context,
	method, reqURL, contentType string,
	body io.Reader,
	headers map[string]string,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, NewHTTPError(resp.StatusCode, reqURL, resp.Status)
	}

	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("response size %d bytes exceeds maximum allowed size of %d bytes",
			resp.ContentLength, MaxResponseSize)
	}

	// Read response body with size limit.
	// Use LimitReader to prevent reading more than MaxResponseSize.
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1) // +1 to detect if limit exceeded
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if int64(len(data)) > MaxResponseSize {
		return nil, fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	}

	return data, nil
}
