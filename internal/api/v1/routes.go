// Package v1 provides the REST API handlers for the sync service.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/agroplanner/opscenter-sync/internal/auth"
	"github.com/agroplanner/opscenter-sync/internal/deere"
	"github.com/agroplanner/opscenter-sync/internal/logger"
	"github.com/agroplanner/opscenter-sync/internal/models"
	"github.com/agroplanner/opscenter-sync/internal/store"
	syncpkg "github.com/agroplanner/opscenter-sync/internal/sync"
	"github.com/agroplanner/opscenter-sync/internal/versions"
)

// maxRequestBody caps request bodies for the write endpoints
const maxRequestBody = 1 << 20 // 1MB

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RegisterRequest is the payload for creating a local user account
type RegisterRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

// LoginRequest is the payload for obtaining an access token
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries an issued access token
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// IntervalRequest is the payload for changing the sync interval
type IntervalRequest struct {
	Interval string `json:"interval"`
}

// Routes defines the routes for the sync API with dependency injection
type Routes struct {
	store     store.Store
	scheduler *syncpkg.Scheduler
	client    deere.Client
	issuer    *auth.TokenIssuer
}

// NewRoutes creates a new Routes instance with the provided dependencies
func NewRoutes(st store.Store, scheduler *syncpkg.Scheduler, client deere.Client, issuer *auth.TokenIssuer) *Routes {
	return &Routes{
		store:     st,
		scheduler: scheduler,
		client:    client,
		issuer:    issuer,
	}
}

// Router creates a new router for the sync API
func Router(st store.Store, scheduler *syncpkg.Scheduler, client deere.Client, issuer *auth.TokenIssuer) http.Handler {
	routes := NewRoutes(st, scheduler, client, issuer)

	r := chi.NewRouter()

	r.Post("/auth/register", routes.register)
	r.Post("/auth/login", routes.login)

	// Everything below requires a valid access token
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(issuer))

		r.Get("/machines", routes.listMachines)
		r.Get("/machines/{id}", routes.getMachine)
		r.Get("/fields", routes.listFields)
		r.Get("/fields/{id}", routes.getField)

		r.Get("/sync/status", routes.getSyncStatus)
		r.Get("/sync/runs", routes.listSyncRuns)

		r.Post("/work-plans", routes.submitWorkPlan)

		// Runtime reconfiguration is restricted to administrators
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			r.Put("/sync/interval", routes.setSyncInterval)
		})
	})

	return r
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(st store.Store) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(st))
	r.Get("/version", versionHandler)

	return r
}

// register handles POST /api/v1/auth/register
func (rr *Routes) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		rr.writeErrorResponse(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	role := req.Role
	if role == "" {
		role = models.RoleOperator
	}
	if !role.Valid() {
		rr.writeErrorResponse(w, "Role must be 'admin' or 'operator'", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.Errorf("Failed to hash password: %v", err)
		rr.writeErrorResponse(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	user := &models.User{
		ID:             uuid.New(),
		Username:       req.Username,
		HashedPassword: hash,
		Role:           role,
		CreatedAt:      time.Now(),
	}

	if err := rr.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			rr.writeErrorResponse(w, "Username already taken", http.StatusConflict)
			return
		}
		logger.Errorf("Failed to create user: %v", err)
		rr.writeErrorResponse(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(user); err != nil {
		logger.Errorf("Failed to encode user response: %v", err)
	}
}

// login handles POST /api/v1/auth/login
func (rr *Routes) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := rr.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rr.writeErrorResponse(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.Errorf("Failed to look up user: %v", err)
		rr.writeErrorResponse(w, "Login failed", http.StatusInternalServerError)
		return
	}

	if !auth.CheckPassword(user.HashedPassword, req.Password) {
		rr.writeErrorResponse(w, "Invalid username or password", http.StatusUnauthorized)
		return
	}

	token, err := rr.issuer.Issue(user)
	if err != nil {
		logger.Errorf("Failed to issue token: %v", err)
		rr.writeErrorResponse(w, "Login failed", http.StatusInternalServerError)
		return
	}

	rr.writeJSONResponse(w, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(rr.issuer.TokenTTL().Seconds()),
	})
}

// listMachines handles GET /api/v1/machines
func (rr *Routes) listMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := rr.store.ListMachines(r.Context())
	if err != nil {
		logger.Errorf("Failed to list machines: %v", err)
		rr.writeErrorResponse(w, "Failed to list machines", http.StatusInternalServerError)
		return
	}
	if machines == nil {
		machines = []models.Machine{}
	}
	rr.writeJSONResponse(w, machines)
}

// getMachine handles GET /api/v1/machines/{id}
func (rr *Routes) getMachine(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	machine, err := rr.store.GetMachine(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rr.writeErrorResponse(w, "Machine not found", http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to get machine %s: %v", id, err)
		rr.writeErrorResponse(w, "Failed to get machine", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, machine)
}

// listFields handles GET /api/v1/fields
func (rr *Routes) listFields(w http.ResponseWriter, r *http.Request) {
	fields, err := rr.store.ListFields(r.Context())
	if err != nil {
		logger.Errorf("Failed to list fields: %v", err)
		rr.writeErrorResponse(w, "Failed to list fields", http.StatusInternalServerError)
		return
	}
	if fields == nil {
		fields = []models.Field{}
	}
	rr.writeJSONResponse(w, fields)
}

// getField handles GET /api/v1/fields/{id}
func (rr *Routes) getField(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	field, err := rr.store.GetField(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rr.writeErrorResponse(w, "Field not found", http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to get field %s: %v", id, err)
		rr.writeErrorResponse(w, "Failed to get field", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, field)
}

// getSyncStatus handles GET /api/v1/sync/status
func (rr *Routes) getSyncStatus(w http.ResponseWriter, _ *http.Request) {
	rr.writeJSONResponse(w, rr.scheduler.GetStatus())
}

// listSyncRuns handles GET /api/v1/sync/runs
func (rr *Routes) listSyncRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := rr.store.ListSyncRuns(r.Context(), 50)
	if err != nil {
		logger.Errorf("Failed to list sync runs: %v", err)
		rr.writeErrorResponse(w, "Failed to list sync runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}
	rr.writeJSONResponse(w, runs)
}

// setSyncInterval handles PUT /api/v1/sync/interval
func (rr *Routes) setSyncInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	interval, err := time.ParseDuration(req.Interval)
	if err != nil {
		rr.writeErrorResponse(w, "Interval must be a valid duration (e.g. '5m', '300s')", http.StatusBadRequest)
		return
	}

	if err := rr.scheduler.SetInterval(interval); err != nil {
		rr.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	rr.writeJSONResponse(w, rr.scheduler.GetStatus())
}

// submitWorkPlan handles POST /api/v1/work-plans
func (rr *Routes) submitWorkPlan(w http.ResponseWriter, r *http.Request) {
	var req deere.WorkPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		rr.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.FieldID == "" || req.JobType == "" {
		rr.writeErrorResponse(w, "field_id and job_type are required", http.StatusBadRequest)
		return
	}

	// The referenced field must have been synced already
	if _, err := rr.store.GetField(r.Context(), req.FieldID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rr.writeErrorResponse(w, "Unknown field: "+req.FieldID, http.StatusNotFound)
			return
		}
		logger.Errorf("Failed to verify field %s: %v", req.FieldID, err)
		rr.writeErrorResponse(w, "Failed to submit work plan", http.StatusInternalServerError)
		return
	}

	result, err := rr.client.SubmitWorkPlan(r.Context(), req)
	if err != nil {
		logger.Errorf("Failed to submit work plan: %v", err)
		rr.writeErrorResponse(w, "Upstream rejected the work plan", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		logger.Errorf("Failed to encode work plan response: %v", err)
	}
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests. The server is ready once
// the store answers queries; an empty store is still ready.
func readinessHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := st.LatestSyncRun(r.Context()); err != nil && !errors.Is(err, store.ErrNotFound) {
			errorResp := ErrorResponse{
				Error: "Store not ready: " + err.Error(),
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			if encodeErr := json.NewEncoder(w).Encode(errorResp); encodeErr != nil {
				logger.Errorf("Failed to encode readiness error response: %v", encodeErr)
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(versions.GetVersionInfo()); err != nil {
		logger.Errorf("Failed to encode version info: %v", err)
	}
}

// decodeJSON decodes a JSON request body with a size cap
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}
