// Package models defines the entity types synchronized from the Operations
// Center API and the records the server keeps about its own sync activity.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role is the authorization role assigned to a local user.
type Role string

// Supported user roles.
const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Valid reports whether the role is one of the supported values.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleOperator
}

// Location is a machine's last reported position. Absent until the upstream
// API delivers telemetry for the machine.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Machine is one piece of equipment as last seen upstream.
//
// ID is the upstream identifier and is stable across syncs; every other field
// is replaced wholesale on each sync (full replace, no field-level merge).
// Status is free text from upstream and is deliberately not validated.
type Machine struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Category     string     `json:"category"`
	SerialNumber string     `json:"serial_number"`
	Status       string     `json:"status"`
	Location     *Location  `json:"location,omitempty"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
	SyncedAt     time.Time  `json:"synced_at"`
}

// Field is one field/parcel as last seen upstream. Boundary is the raw
// GeoJSON-like polygon delivered by the fields endpoint; it is stored opaquely
// and served back to clients untouched.
type Field struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Boundary json.RawMessage `json:"boundary,omitempty"`
	AreaHa   *float64        `json:"area_ha,omitempty"`
	Crop     *string         `json:"crop,omitempty"`
	SyncedAt time.Time       `json:"synced_at"`
}

// SyncRun is the observability record of one scheduler tick. Append-only;
// never read back by sync logic itself.
type SyncRun struct {
	ID             uuid.UUID `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	MachinesSynced int       `json:"machines_synced"`
	FieldsSynced   int       `json:"fields_synced"`
	MachinesError  string    `json:"machines_error,omitempty"`
	FieldsError    string    `json:"fields_error,omitempty"`
}

// Succeeded reports whether both halves of the tick completed without error.
func (r *SyncRun) Succeeded() bool {
	return r.MachinesError == "" && r.FieldsError == ""
}

// User is a local account for API access.
type User struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	HashedPassword string    `json:"-"`
	Role           Role      `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}
