package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v1 "github.com/agroplanner/opscenter-sync/internal/api/v1"
	"github.com/agroplanner/opscenter-sync/internal/auth"
	"github.com/agroplanner/opscenter-sync/internal/deere"
	deeremocks "github.com/agroplanner/opscenter-sync/internal/deere/mocks"
	"github.com/agroplanner/opscenter-sync/internal/models"
	"github.com/agroplanner/opscenter-sync/internal/store"
	syncmocks "github.com/agroplanner/opscenter-sync/internal/sync/mocks"
	syncpkg "github.com/agroplanner/opscenter-sync/internal/sync"
)

type testHarness struct {
	router    http.Handler
	store     *store.MemoryStore
	scheduler *syncpkg.Scheduler
	client    *deeremocks.MockClient
	issuer    *auth.TokenIssuer
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	issuer, err := auth.NewTokenIssuer([]byte("test-signing-key"), time.Hour)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	client := deeremocks.NewMockClient(ctrl)
	scheduler := syncpkg.NewScheduler(syncmocks.NewMockManager(ctrl), st, 5*time.Minute)

	return &testHarness{
		router:    v1.Router(st, scheduler, client, issuer),
		store:     st,
		scheduler: scheduler,
		client:    client,
		issuer:    issuer,
	}
}

// tokenFor creates a user directly in the store and returns a bearer token
func (h *testHarness) tokenFor(t *testing.T, username string, role models.Role) string {
	t.Helper()

	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)

	user := &models.User{
		ID:             uuid.New(),
		Username:       username,
		HashedPassword: hash,
		Role:           role,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, h.store.CreateUser(context.Background(), user))

	token, err := h.issuer.Issue(user)
	require.NoError(t, err)
	return token
}

func (h *testHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	rr := h.do(t, http.MethodPost, "/auth/register", "", v1.RegisterRequest{
		Username: "alice",
		Password: "hunter2",
		Role:     models.RoleAdmin,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var user models.User
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &user))
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, models.RoleAdmin, user.Role)
	assert.NotContains(t, rr.Body.String(), "hunter2", "password material must never be serialized")

	rr = h.do(t, http.MethodPost, "/auth/login", "", v1.LoginRequest{Username: "alice", Password: "hunter2"})
	require.Equal(t, http.StatusOK, rr.Code)

	var login v1.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Equal(t, 3600, login.ExpiresIn)

	claims, err := h.issuer.Validate(login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tests := []struct {
		name       string
		body       v1.RegisterRequest
		wantStatus int
	}{
		{
			name:       "missing username",
			body:       v1.RegisterRequest{Password: "pw"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing password",
			body:       v1.RegisterRequest{Username: "bob"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid role",
			body:       v1.RegisterRequest{Username: "bob", Password: "pw", Role: "root"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "defaults to operator",
			body:       v1.RegisterRequest{Username: "bob", Password: "pw"},
			wantStatus: http.StatusCreated,
		},
	}

	for _, tt := range tests {
		rr := h.do(t, http.MethodPost, "/auth/register", "", tt.body)
		assert.Equal(t, tt.wantStatus, rr.Code, tt.name)
	}

	// Duplicate username
	rr := h.do(t, http.MethodPost, "/auth/register", "", v1.RegisterRequest{Username: "bob", Password: "pw"})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLoginRejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.tokenFor(t, "alice", models.RoleOperator)

	tests := []struct {
		name string
		body v1.LoginRequest
	}{
		{name: "unknown user", body: v1.LoginRequest{Username: "mallory", Password: "pw"}},
		{name: "wrong password", body: v1.LoginRequest{Username: "alice", Password: "wrong"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/auth/login", "", tt.body)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestMachineEndpoints(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.tokenFor(t, "alice", models.RoleOperator)

	_, err := h.store.UpsertMachines(context.Background(), []models.Machine{
		{ID: "m1", Name: "Tractor A", Status: "active"},
		{ID: "m2", Name: "Combine B", Status: "idle"},
	})
	require.NoError(t, err)

	t.Run("requires authentication", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/machines", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("list", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/machines", token, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var machines []models.Machine
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &machines))
		require.Len(t, machines, 2)
		assert.Equal(t, "m1", machines[0].ID)
	})

	t.Run("get", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/machines/m2", token, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var machine models.Machine
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &machine))
		assert.Equal(t, "Combine B", machine.Name)
	})

	t.Run("get missing", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/machines/m9", token, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestFieldEndpoints(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.tokenFor(t, "alice", models.RoleOperator)

	_, err := h.store.UpsertFields(context.Background(), []models.Field{
		{ID: "f1", Name: "North 40", Boundary: []byte(`{"type":"Polygon"}`)},
	})
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/fields", token, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var fields []models.Field
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fields))
		require.Len(t, fields, 1)
		assert.Equal(t, "North 40", fields[0].Name)

		// The boundary must go over the wire as the GeoJSON object itself,
		// not a base64 rendering of its bytes
		var raw []map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
		assert.JSONEq(t, `{"type":"Polygon"}`, string(raw[0]["boundary"]))
	})

	t.Run("get missing", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/fields/f9", token, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		empty := newHarness(t)
		emptyToken := empty.tokenFor(t, "bob", models.RoleOperator)

		rr := empty.do(t, http.MethodGet, "/fields", emptyToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, "[]", rr.Body.String())
	})
}

func TestSyncStatusEndpoints(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.tokenFor(t, "alice", models.RoleOperator)

	t.Run("status", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/sync/status", token, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var status syncpkg.Status
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
		assert.False(t, status.Running)
		assert.InDelta(t, 300.0, status.IntervalSecs, 0.001)
	})

	t.Run("runs", func(t *testing.T) {
		run := &models.SyncRun{ID: uuid.New(), StartedAt: time.Now(), CompletedAt: time.Now(), MachinesSynced: 4}
		require.NoError(t, h.store.RecordSyncRun(context.Background(), run))

		rr := h.do(t, http.MethodGet, "/sync/runs", token, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var runs []models.SyncRun
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, run.ID, runs[0].ID)
	})
}

func TestSetSyncInterval(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	adminToken := h.tokenFor(t, "alice", models.RoleAdmin)
	operatorToken := h.tokenFor(t, "bob", models.RoleOperator)

	t.Run("admin can change interval", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/sync/interval", adminToken, v1.IntervalRequest{Interval: "90s"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 90*time.Second, h.scheduler.Interval())
	})

	t.Run("operator is forbidden", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/sync/interval", operatorToken, v1.IntervalRequest{Interval: "10s"})
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, 90*time.Second, h.scheduler.Interval())
	})

	t.Run("invalid duration", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/sync/interval", adminToken, v1.IntervalRequest{Interval: "soon"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		rr := h.do(t, http.MethodPut, "/sync/interval", adminToken, v1.IntervalRequest{Interval: "-5m"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestSubmitWorkPlan(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	token := h.tokenFor(t, "alice", models.RoleOperator)

	_, err := h.store.UpsertFields(context.Background(), []models.Field{{ID: "f1", Name: "North 40"}})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		h.client.EXPECT().SubmitWorkPlan(gomock.Any(), deere.WorkPlanRequest{
			FieldID: "f1",
			JobType: "tillage",
		}).Return(&deere.WorkPlanResult{ID: "wp-7"}, nil)

		rr := h.do(t, http.MethodPost, "/work-plans", token, deere.WorkPlanRequest{FieldID: "f1", JobType: "tillage"})
		require.Equal(t, http.StatusCreated, rr.Code)

		var result deere.WorkPlanResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
		assert.Equal(t, "wp-7", result.ID)
	})

	t.Run("unknown field", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/work-plans", token, deere.WorkPlanRequest{FieldID: "f9", JobType: "tillage"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("missing job type", func(t *testing.T) {
		rr := h.do(t, http.MethodPost, "/work-plans", token, deere.WorkPlanRequest{FieldID: "f1"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("upstream failure", func(t *testing.T) {
		h.client.EXPECT().SubmitWorkPlan(gomock.Any(), gomock.Any()).
			Return(nil, fmt.Errorf("upstream says no"))

		rr := h.do(t, http.MethodPost, "/work-plans", token, deere.WorkPlanRequest{FieldID: "f1", JobType: "seeding"})
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

func TestHealthRouter(t *testing.T) {
	t.Parallel()

	router := v1.HealthRouter(store.NewMemoryStore())

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "health endpoint", path: "/health", wantStatus: http.StatusOK},
		{name: "readiness endpoint", path: "/readiness", wantStatus: http.StatusOK},
		{name: "version endpoint", path: "/version", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, err := http.NewRequest(http.MethodGet, tt.path, nil)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
