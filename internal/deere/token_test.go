package deere

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHTTPClient serves canned token responses and counts exchanges
type fakeHTTPClient struct {
	exchanges atomic.Int64
	response  func(n int64) ([]byte, error)
}

func (*fakeHTTPClient) Get(_ context.Context, _ string, _ map[string]string) ([]byte, error) {
	return nil, fmt.Errorf("unexpected GET")
}

func (*fakeHTTPClient) Post(_ context.Context, _ string, _ []byte, _ map[string]string) ([]byte, error) {
	return nil, fmt.Errorf("unexpected POST")
}

func (f *fakeHTTPClient) PostForm(_ context.Context, _ string, values url.Values) ([]byte, error) {
	if values.Get("grant_type") != "client_credentials" {
		return nil, fmt.Errorf("unexpected grant type %q", values.Get("grant_type"))
	}
	return f.response(f.exchanges.Add(1))
}

func TestTokenCachedAcrossCalls(t *testing.T) {
	t.Parallel()

	hc := &fakeHTTPClient{response: func(n int64) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"access_token":"tok-%d","expires_in":3600}`, n)), nil
	}}
	tc := newTokenCache(hc, "https://auth.example.com/token", "client", "secret")

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	assert.Equal(t, int64(1), hc.exchanges.Load())
}

func TestTokenSingleFlightRefresh(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	hc := &fakeHTTPClient{response: func(n int64) ([]byte, error) {
		<-release
		return []byte(fmt.Sprintf(`{"access_token":"tok-%d","expires_in":3600}`, n)), nil
	}}
	tc := newTokenCache(hc, "https://auth.example.com/token", "client", "secret")

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tc.Token(context.Background())
		}(i)
	}

	// Give all callers time to pile onto the flight before releasing it
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i])
	}
	assert.Equal(t, int64(1), hc.exchanges.Load(), "concurrent callers must share one exchange")
}

func TestTokenRefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	hc := &fakeHTTPClient{response: func(n int64) ([]byte, error) {
		// expires_in below the refresh skew, so the token is already stale
		return []byte(fmt.Sprintf(`{"access_token":"tok-%d","expires_in":10}`, n)), nil
	}}
	tc := newTokenCache(hc, "https://auth.example.com/token", "client", "secret")

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)

	assert.Equal(t, int64(2), hc.exchanges.Load())
}

func TestTokenInvalidate(t *testing.T) {
	t.Parallel()

	hc := &fakeHTTPClient{response: func(n int64) ([]byte, error) {
		return []byte(fmt.Sprintf(`{"access_token":"tok-%d","expires_in":3600}`, n)), nil
	}}
	tc := newTokenCache(hc, "https://auth.example.com/token", "client", "secret")

	_, err := tc.Token(context.Background())
	require.NoError(t, err)

	tc.Invalidate()

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestTokenExchangeFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response func(n int64) ([]byte, error)
	}{
		{
			name: "endpoint error",
			response: func(_ int64) ([]byte, error) {
				return nil, fmt.Errorf("connection refused")
			},
		},
		{
			name: "malformed response",
			response: func(_ int64) ([]byte, error) {
				return []byte("not json"), nil
			},
		},
		{
			name: "missing access token",
			response: func(_ int64) ([]byte, error) {
				return []byte(`{"token_type":"Bearer"}`), nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tc := newTokenCache(&fakeHTTPClient{response: tt.response},
				"https://auth.example.com/token", "client", "secret")

			_, err := tc.Token(context.Background())
			require.Error(t, err)

			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
		})
	}
}

func TestTokenDefaultExpiry(t *testing.T) {
	t.Parallel()

	hc := &fakeHTTPClient{response: func(n int64) ([]byte, error) {
		// No expires_in; the default lifetime keeps the token cached
		return []byte(fmt.Sprintf(`{"access_token":"tok-%d"}`, n)), nil
	}}
	tc := newTokenCache(hc, "https://auth.example.com/token", "client", "secret")

	_, err := tc.Token(context.Background())
	require.NoError(t, err)

	tok, err := tc.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int64(1), hc.exchanges.Load())
}
