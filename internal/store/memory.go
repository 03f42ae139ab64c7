package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agroplanner/opscenter-sync/internal/models"
)

// MemoryStore is a thread-safe in-memory Store implementation, used for tests
// and database-less deployments.
type MemoryStore struct {
	mu sync.RWMutex

	machines map[string]models.Machine
	fields   map[string]models.Field
	syncRuns []models.SyncRun
	users    map[string]models.User
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		machines: make(map[string]models.Machine),
		fields:   make(map[string]models.Field),
		users:    make(map[string]models.User),
	}
}

// UpsertMachines replaces or inserts the given machines keyed by external ID
func (s *MemoryStore) UpsertMachines(_ context.Context, machines []models.Machine) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range machines {
		m.SyncedAt = now
		s.machines[m.ID] = m
	}
	return len(machines), nil
}

// UpsertFields replaces or inserts the given fields keyed by external ID
func (s *MemoryStore) UpsertFields(_ context.Context, fields []models.Field) (int, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fields {
		f.SyncedAt = now
		s.fields[f.ID] = f
	}
	return len(fields), nil
}

// ListMachines returns the current machine snapshot ordered by external ID
func (s *MemoryStore) ListMachines(_ context.Context) ([]models.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	machines := make([]models.Machine, 0, len(s.machines))
	for _, m := range s.machines {
		machines = append(machines, m)
	}
	sort.Slice(machines, func(i, j int) bool { return machines[i].ID < machines[j].ID })
	return machines, nil
}

// GetMachine returns one machine by external ID
func (s *MemoryStore) GetMachine(_ context.Context, id string) (*models.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.machines[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

// ListFields returns the current field snapshot ordered by external ID
func (s *MemoryStore) ListFields(_ context.Context) ([]models.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fields := make([]models.Field, 0, len(s.fields))
	for _, f := range s.fields {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].ID < fields[j].ID })
	return fields, nil
}

// GetField returns one field by external ID
func (s *MemoryStore) GetField(_ context.Context, id string) (*models.Field, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.fields[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &f, nil
}

// RecordSyncRun appends one sync run record
func (s *MemoryStore) RecordSyncRun(_ context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncRuns = append(s.syncRuns, *run)
	return nil
}

// LatestSyncRun returns the most recent sync run
func (s *MemoryStore) LatestSyncRun(_ context.Context) (*models.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.syncRuns) == 0 {
		return nil, ErrNotFound
	}
	run := s.syncRuns[len(s.syncRuns)-1]
	return &run, nil
}

// ListSyncRuns returns up to limit sync runs, most recent first
func (s *MemoryStore) ListSyncRuns(_ context.Context, limit int) ([]models.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.syncRuns)
	if limit <= 0 || limit > n {
		limit = n
	}

	runs := make([]models.SyncRun, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		runs = append(runs, s.syncRuns[i])
	}
	return runs, nil
}

// CreateUser stores a new user account
func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return ErrUserExists
	}
	s.users[user.Username] = *user
	return nil
}

// GetUserByUsername returns one user by username
func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// Close releases resources; a no-op for the in-memory store
func (*MemoryStore) Close() {}
