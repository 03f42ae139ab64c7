package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agroplanner/opscenter-sync/internal/models"
)

const defaultMaxConns = 25

// uniqueViolation is the PostgreSQL error code for unique constraint violations
const uniqueViolation = "23505"

// PostgresStore is a Store implementation backed by PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store from the given connection string.
// The caller owns the store and must Close it when done.
func NewPostgresStore(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	poolCfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// UpsertMachines replaces or inserts the given machines keyed by external ID.
// Each record is written with ON CONFLICT DO UPDATE inside one transaction;
// a record absent from the input is left untouched.
func (s *PostgresStore) UpsertMachines(ctx context.Context, machines []models.Machine) (int, error) {
	if len(machines) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	now := time.Now()
	for _, m := range machines {
		var lat, lng *float64
		if m.Location != nil {
			lat = &m.Location.Latitude
			lng = &m.Location.Longitude
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO machines (id, name, category, serial_number, status, latitude, longitude, last_update, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				category = EXCLUDED.category,
				serial_number = EXCLUDED.serial_number,
				status = EXCLUDED.status,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				last_update = EXCLUDED.last_update,
				synced_at = EXCLUDED.synced_at`,
			m.ID, m.Name, m.Category, m.SerialNumber, m.Status, lat, lng, m.LastUpdate, now)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert machine %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(machines), nil
}

// UpsertFields replaces or inserts the given fields keyed by external ID
func (s *PostgresStore) UpsertFields(ctx context.Context, fields []models.Field) (int, error) {
	if len(fields) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	now := time.Now()
	for _, f := range fields {
		var boundary []byte
		if len(f.Boundary) > 0 {
			boundary = f.Boundary
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO fields (id, name, boundary, area_ha, crop, synced_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				boundary = EXCLUDED.boundary,
				area_ha = EXCLUDED.area_ha,
				crop = EXCLUDED.crop,
				synced_at = EXCLUDED.synced_at`,
			f.ID, f.Name, boundary, f.AreaHa, f.Crop, now)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert field %s: %w", f.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(fields), nil
}

// ListMachines returns the current machine snapshot ordered by external ID
func (s *PostgresStore) ListMachines(ctx context.Context) ([]models.Machine, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, category, serial_number, status, latitude, longitude, last_update, synced_at
		FROM machines ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query machines: %w", err)
	}
	defer rows.Close()

	var machines []models.Machine
	for rows.Next() {
		m, err := scanMachine(rows)
		if err != nil {
			return nil, err
		}
		machines = append(machines, *m)
	}
	return machines, rows.Err()
}

// GetMachine returns one machine by external ID
func (s *PostgresStore) GetMachine(ctx context.Context, id string) (*models.Machine, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, category, serial_number, status, latitude, longitude, last_update, synced_at
		FROM machines WHERE id = $1`, id)

	m, err := scanMachine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListFields returns the current field snapshot ordered by external ID
func (s *PostgresStore) ListFields(ctx context.Context) ([]models.Field, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, boundary, area_ha, crop, synced_at
		FROM fields ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	var fields []models.Field
	for rows.Next() {
		var f models.Field
		if err := rows.Scan(&f.ID, &f.Name, &f.Boundary, &f.AreaHa, &f.Crop, &f.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, f)
	}
	return fields, rows.Err()
}

// GetField returns one field by external ID
func (s *PostgresStore) GetField(ctx context.Context, id string) (*models.Field, error) {
	var f models.Field
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, boundary, area_ha, crop, synced_at
		FROM fields WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Boundary, &f.AreaHa, &f.Crop, &f.SyncedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get field %s: %w", id, err)
	}
	return &f, nil
}

// RecordSyncRun appends one sync run record
func (s *PostgresStore) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_runs (id, started_at, completed_at, machines_synced, fields_synced, machines_error, fields_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt, run.CompletedAt, run.MachinesSynced, run.FieldsSynced,
		run.MachinesError, run.FieldsError)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// LatestSyncRun returns the most recent sync run
func (s *PostgresStore) LatestSyncRun(ctx context.Context) (*models.SyncRun, error) {
	var run models.SyncRun
	err := s.pool.QueryRow(ctx, `
		SELECT id, started_at, completed_at, machines_synced, fields_synced, machines_error, fields_error
		FROM sync_runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.MachinesSynced, &run.FieldsSynced,
			&run.MachinesError, &run.FieldsError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}
	return &run, nil
}

// ListSyncRuns returns up to limit sync runs, most recent first
func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, completed_at, machines_synced, fields_synced, machines_error, fields_error
		FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		var run models.SyncRun
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.CompletedAt, &run.MachinesSynced,
			&run.FieldsSynced, &run.MachinesError, &run.FieldsError); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateUser stores a new user account
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, hashed_password, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Username, user.HashedPassword, string(user.Role), user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrUserExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByUsername returns one user by username
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	var role string
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, hashed_password, role, created_at
		FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.HashedPassword, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// scanMachine reads one machine row, composing the optional location from its
// nullable coordinate columns.
func scanMachine(row pgx.Row) (*models.Machine, error) {
	var m models.Machine
	var lat, lng *float64

	if err := row.Scan(&m.ID, &m.Name, &m.Category, &m.SerialNumber, &m.Status,
		&lat, &lng, &m.LastUpdate, &m.SyncedAt); err != nil {
		return nil, fmt.Errorf("failed to scan machine: %w", err)
	}

	if lat != nil && lng != nil {
		m.Location = &models.Location{Latitude: *lat, Longitude: *lng}
	}
	return &m, nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		_ = err
	}
}
