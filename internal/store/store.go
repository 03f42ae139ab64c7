// Package store contains the entity store: the durable mapping from external
// identifier to the latest synced machine/field record, the append-only sync
// run log, and local user accounts.
package store

import (
	"context"
	"errors"

	"github.com/agroplanner/opscenter-sync/internal/models"
)

var (
	// ErrNotFound is returned when a record cannot be located
	ErrNotFound = errors.New("record not found")

	// ErrUserExists is returned when creating a user with a taken username
	ErrUserExists = errors.New("user already exists")
)

// Store is the persistence interface for synced entities.
//
// Upserts replace the stored record with the same external identifier in full
// (no field-level merge) and never delete records absent from the input: the
// sync is additive-only, retirement of stale entities is out of scope.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store
type Store interface {
	// UpsertMachines replaces or inserts the given machines keyed by external
	// ID and returns the number of records written
	UpsertMachines(ctx context.Context, machines []models.Machine) (int, error)

	// UpsertFields replaces or inserts the given fields keyed by external ID
	// and returns the number of records written
	UpsertFields(ctx context.Context, fields []models.Field) (int, error)

	// ListMachines returns the current machine snapshot
	ListMachines(ctx context.Context) ([]models.Machine, error)

	// GetMachine returns one machine by external ID, or ErrNotFound
	GetMachine(ctx context.Context, id string) (*models.Machine, error)

	// ListFields returns the current field snapshot
	ListFields(ctx context.Context) ([]models.Field, error)

	// GetField returns one field by external ID, or ErrNotFound
	GetField(ctx context.Context, id string) (*models.Field, error)

	// RecordSyncRun appends one sync run record
	RecordSyncRun(ctx context.Context, run *models.SyncRun) error

	// LatestSyncRun returns the most recent sync run, or ErrNotFound when no
	// sync has completed yet
	LatestSyncRun(ctx context.Context) (*models.SyncRun, error)

	// ListSyncRuns returns up to limit sync runs, most recent first
	ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)

	// CreateUser stores a new user account, or ErrUserExists
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByUsername returns one user, or ErrNotFound
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// Close releases any resources held by the store
	Close()
}
