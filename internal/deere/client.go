// Package deere implements the client for the John Deere Operations Center
// API: OAuth2 client-credentials token lifecycle, paginated resource listing,
// and work-plan submission.
package deere

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agroplanner/opscenter-sync/internal/config"
	"github.com/agroplanner/opscenter-sync/internal/httpclient"
	"github.com/agroplanner/opscenter-sync/internal/models"
)

const (
	// defaultPageSize is the item limit requested per equipment page
	defaultPageSize = 100

	// maxAttempts bounds retries of transient network failures per request
	maxAttempts = 3

	// defaultRetryInterval is the initial backoff between retry attempts
	defaultRetryInterval = 500 * time.Millisecond
)

// Client is the interface for the Operations Center API.
//
// Listing operations are all-or-nothing: a failed page request fails the whole
// listing so callers never integrate a partial snapshot.
//
//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client
type Client interface {
	// ListMachines returns all equipment of the organization, following
	// pagination until the collection is exhausted
	ListMachines(ctx context.Context) ([]models.Machine, error)

	// ListFields returns all fields of the organization with their boundaries
	ListFields(ctx context.Context) ([]models.Field, error)

	// SubmitWorkPlan creates a work plan in the Operations Center
	SubmitWorkPlan(ctx context.Context, req WorkPlanRequest) (*WorkPlanResult, error)
}

// Option configures the default client
type Option func(*defaultClient)

// WithHTTPClient replaces the underlying HTTP client (used in tests)
func WithHTTPClient(c httpclient.Client) Option {
	return func(d *defaultClient) {
		d.http = c
		d.tokens.http = c
	}
}

// WithRetryInterval sets the initial backoff between retries of transient failures
func WithRetryInterval(interval time.Duration) Option {
	return func(d *defaultClient) {
		d.retryInterval = interval
	}
}

// defaultClient is the default Client implementation
type defaultClient struct {
	http          httpclient.Client
	tokens        *tokenCache
	apiBase       string
	orgID         string
	pageSize      int
	retryInterval time.Duration
}

// New creates an Operations Center client from the given configuration.
// The client secret is passed separately so config loading stays free of
// secret material.
func New(cfg *config.DeereConfig, clientSecret string, opts ...Option) Client {
	hc := httpclient.NewDefaultClient(0)

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = defaultPageSize
	}

	c := &defaultClient{
		http:          hc,
		tokens:        newTokenCache(hc, cfg.AuthURL, cfg.ClientID, clientSecret),
		apiBase:       strings.TrimSuffix(cfg.APIBase, "/"),
		orgID:         cfg.OrganizationID,
		pageSize:      pageSize,
		retryInterval: defaultRetryInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ListMachines lists the organization's equipment, requesting pages until a
// page returns fewer items than the requested limit.
func (c *defaultClient) ListMachines(ctx context.Context) ([]models.Machine, error) {
	var machines []models.Machine

	for offset := 0; ; offset += c.pageSize {
		reqURL := fmt.Sprintf("%s/equipment?organizationIds=%s&pageOffset=%d&itemLimit=%d",
			c.apiBase, url.QueryEscape(c.orgID), offset, c.pageSize)

		data, err := c.request(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list equipment at offset %d: %w", offset, err)
		}

		var page equipmentPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("failed to decode equipment page at offset %d: %w", offset, err)
		}

		for i := range page.Values {
			machines = append(machines, page.Values[i].toMachine())
		}

		if len(page.Values) < c.pageSize {
			break
		}
	}

	return machines, nil
}

// ListFields lists the organization's fields with boundary geometry
func (c *defaultClient) ListFields(ctx context.Context) ([]models.Field, error) {
	reqURL := fmt.Sprintf("%s/fields?organizationId=%s", c.apiBase, url.QueryEscape(c.orgID))

	data, err := c.request(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields: %w", err)
	}

	var page fieldPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to decode fields response: %w", err)
	}

	fields := make([]models.Field, 0, len(page.Values))
	for i := range page.Values {
		fields = append(fields, page.Values[i].toField())
	}

	return fields, nil
}

// SubmitWorkPlan creates a work plan in the Operations Center
func (c *defaultClient) SubmitWorkPlan(ctx context.Context, req WorkPlanRequest) (*WorkPlanResult, error) {
	if req.FieldID == "" {
		return nil, fmt.Errorf("work plan field id is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work plan: %w", err)
	}

	reqURL := fmt.Sprintf("%s/organizations/%s/workPlans", c.apiBase, url.PathEscape(c.orgID))

	data, err := c.request(ctx, http.MethodPost, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to submit work plan: %w", err)
	}

	result := &WorkPlanResult{Raw: data}
	// The response body is optional; when present it carries the created plan's id.
	if len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return nil, fmt.Errorf("failed to decode work plan response: %w", err)
		}
	}

	return result, nil
}

// request performs an authenticated request. An authentication failure forces
// a token refresh and a single retry of the original request; transient
// network failures are retried with bounded backoff; remote server errors are
// surfaced without retry.
func (c *defaultClient) request(ctx context.Context, method, reqURL string, body []byte) ([]byte, error) {
	data, err := c.authorized(ctx, method, reqURL, body)

	var authErr *AuthError
	if errors.As(err, &authErr) {
		c.tokens.Invalidate()
		data, err = c.authorized(ctx, method, reqURL, body)
	}

	return data, err
}

func (c *defaultClient) authorized(ctx context.Context, method, reqURL string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + token,
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	return backoff.Retry(ctx, func() ([]byte, error) {
		var data []byte
		var reqErr error

		switch method {
		case http.MethodPost:
			data, reqErr = c.http.Post(ctx, reqURL, body, headers)
		default:
			data, reqErr = c.http.Get(ctx, reqURL, headers)
		}

		if reqErr != nil {
			var httpErr *httpclient.HTTPError
			if errors.As(reqErr, &httpErr) {
				// HTTP-level failures are never retried here; auth failures
				// get their one retry at the request level after a refresh.
				return nil, backoff.Permanent(classifyHTTPError(reqErr))
			}
			// Transport failure, considered transient
			return nil, reqErr
		}

		return data, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxAttempts))
}
