package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroplanner/opscenter-sync/internal/auth"
	"github.com/agroplanner/opscenter-sync/internal/models"
)

func newTestIssuer(t *testing.T) *auth.TokenIssuer {
	t.Helper()
	issuer, err := auth.NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	require.NoError(t, err)
	return issuer
}

func claimsEcho(t *testing.T, wantUsername string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantUsername, claims.Username)
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	user := testUser()
	token, err := issuer.Issue(user)
	require.NoError(t, err)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{
			name:       "valid token",
			authHeader: "Bearer " + token,
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			authHeader: "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer token",
			authHeader: "Basic dXNlcjpwdw==",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			authHeader: "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := auth.Middleware(issuer)(claimsEcho(t, user.Username))

			req := httptest.NewRequest(http.MethodGet, "/machines", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	admin := testUser()
	adminToken, err := issuer.Issue(admin)
	require.NoError(t, err)

	operator := testUser()
	operator.Username = "bob"
	operator.Role = models.RoleOperator
	operatorToken, err := issuer.Issue(operator)
	require.NoError(t, err)

	handler := auth.Middleware(issuer)(
		auth.RequireRole(models.RoleAdmin)(
			http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})))

	t.Run("admin allowed", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPut, "/sync/interval", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("operator forbidden", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPut, "/sync/interval", nil)
		req.Header.Set("Authorization", "Bearer "+operatorToken)

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		t.Parallel()
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/sync/interval", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
