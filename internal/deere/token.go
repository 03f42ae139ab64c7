package deere

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agroplanner/opscenter-sync/internal/httpclient"
	"github.com/agroplanner/opscenter-sync/internal/logger"
)

const (
	// refreshSkew is how long before the nominal expiry a token is
	// considered expired, so in-flight requests never race the deadline.
	refreshSkew = 30 * time.Second

	// defaultExpiresIn is assumed when the token endpoint omits expires_in
	defaultExpiresIn = 3600
)

// tokenCache owns the OAuth2 bearer token for the Operations Center API.
// Token is the only access path; refresh is single-flight, so N concurrent
// callers that find the token expired produce exactly one exchange against
// the token endpoint and share its outcome.
type tokenCache struct {
	http         httpclient.Client
	authURL      string
	clientID     string
	clientSecret string

	group singleflight.Group

	mu        sync.RWMutex
	token     string
	scope     string
	expiresAt time.Time
}

func newTokenCache(http httpclient.Client, authURL, clientID, clientSecret string) *tokenCache {
	return &tokenCache{
		http:         http,
		authURL:      authURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// Token returns a valid bearer token, exchanging client credentials for a
// fresh one if the cached token is absent or past its expiry.
func (t *tokenCache) Token(ctx context.Context) (string, error) {
	if tok, ok := t.cached(); ok {
		return tok, nil
	}

	v, err, _ := t.group.Do("token", func() (any, error) {
		// Another caller may have refreshed while we waited for the flight.
		if tok, ok := t.cached(); ok {
			return tok, nil
		}
		return t.exchange(ctx)
	})
	if err != nil {
		return "", err
	}

	tok, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("unexpected token type %T", v)
	}
	return tok, nil
}

// Invalidate discards the cached token so the next Token call performs a
// fresh exchange. Used when the remote API rejects a token we believed valid.
func (t *tokenCache) Invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

// cached returns the current token if it has not passed its refresh deadline
func (t *tokenCache) cached() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.token == "" {
		return "", false
	}
	if !time.Now().Before(t.expiresAt.Add(-refreshSkew)) {
		return "", false
	}
	return t.token, true
}

// exchange performs the client-credentials exchange and caches the result
func (t *tokenCache) exchange(ctx context.Context) (string, error) {
	values := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {t.clientID},
		"client_secret": {t.clientSecret},
	}

	data, err := t.http.PostForm(ctx, t.authURL, values)
	if err != nil {
		return "", &AuthError{URL: t.authURL, Err: fmt.Errorf("token exchange failed: %w", err)}
	}

	var resp tokenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &AuthError{URL: t.authURL, Err: fmt.Errorf("failed to decode token response: %w", err)}
	}
	if resp.AccessToken == "" {
		return "", &AuthError{URL: t.authURL, Err: fmt.Errorf("token response missing access_token")}
	}

	expiresIn := resp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	t.mu.Lock()
	t.token = resp.AccessToken
	t.scope = resp.Scope
	t.expiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	t.mu.Unlock()

	logger.Debugf("Acquired access token (expires in %ds, scope %q)", expiresIn, resp.Scope)

	return resp.AccessToken, nil
}
