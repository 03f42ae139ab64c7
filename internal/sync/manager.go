// Package sync contains the synchronization core: the manager that executes
// one sync tick against the Operations Center API and the scheduler that runs
// ticks on a configurable interval.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agroplanner/opscenter-sync/internal/deere"
	"github.com/agroplanner/opscenter-sync/internal/logger"
	"github.com/agroplanner/opscenter-sync/internal/models"
	"github.com/agroplanner/opscenter-sync/internal/store"
)

// Manager executes one complete sync operation
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager
type Manager interface {
	// PerformSync fetches machines and fields concurrently and commits each
	// half independently. The returned SyncRun carries per-half counts and
	// errors; it is never nil.
	PerformSync(ctx context.Context) *models.SyncRun
}

// defaultManager is the default Manager implementation
type defaultManager struct {
	client deere.Client
	store  store.Store
}

// NewManager creates a sync manager with injected dependencies
func NewManager(client deere.Client, st store.Store) Manager {
	return &defaultManager{
		client: client,
		store:  st,
	}
}

// PerformSync runs the machine and field listings concurrently. The two
// entity classes are independent: if one half fails, the other's results are
// still committed, and the SyncRun records which half failed and why.
func (m *defaultManager) PerformSync(ctx context.Context) *models.SyncRun {
	run := &models.SyncRun{
		ID:        uuid.New(),
		StartedAt: time.Now(),
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, err := m.syncMachines(ctx)
		if err != nil {
			run.MachinesError = err.Error()
			logger.Errorf("Machine sync failed: %v", err)
			return
		}
		run.MachinesSynced = count
	}()

	go func() {
		defer wg.Done()
		count, err := m.syncFields(ctx)
		if err != nil {
			run.FieldsError = err.Error()
			logger.Errorf("Field sync failed: %v", err)
			return
		}
		run.FieldsSynced = count
	}()

	wg.Wait()
	run.CompletedAt = time.Now()

	return run
}

// syncMachines fetches the full equipment listing and commits it. The fetch
// is all-or-nothing (see deere.Client), so the store never integrates an
// incomplete snapshot.
func (m *defaultManager) syncMachines(ctx context.Context) (int, error) {
	machines, err := m.client.ListMachines(ctx)
	if err != nil {
		return 0, err
	}
	return m.store.UpsertMachines(ctx, machines)
}

func (m *defaultManager) syncFields(ctx context.Context) (int, error) {
	fields, err := m.client.ListFields(ctx)
	if err != nil {
		return 0, err
	}
	return m.store.UpsertFields(ctx, fields)
}
