package deere

import (
	"encoding/json"
	"time"

	"github.com/agroplanner/opscenter-sync/internal/models"
)

// equipmentPage is one page of the Equipment API listing
type equipmentPage struct {
	Values []equipmentItem `json:"values"`
}

// equipmentItem is the upstream representation of a machine. Only the fields
// the dashboard needs are decoded; everything else is dropped at this boundary.
type equipmentItem struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"displayName"`
	Category     string         `json:"category"`
	SerialNumber string         `json:"serialNumber"`
	Status       string         `json:"status"`
	Location     *locationValue `json:"location,omitempty"`
	LastUpdate   *time.Time     `json:"lastUpdate,omitempty"`
}

type locationValue struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// toMachine converts an upstream equipment item into a typed machine record.
// A location with a missing coordinate is treated as absent rather than
// defaulting the other coordinate to zero.
func (e *equipmentItem) toMachine() models.Machine {
	m := models.Machine{
		ID:           e.ID,
		Name:         e.DisplayName,
		Category:     e.Category,
		SerialNumber: e.SerialNumber,
		Status:       e.Status,
		LastUpdate:   e.LastUpdate,
	}
	if e.Location != nil && e.Location.Latitude != nil && e.Location.Longitude != nil {
		m.Location = &models.Location{
			Latitude:  *e.Location.Latitude,
			Longitude: *e.Location.Longitude,
		}
	}
	return m
}

// fieldPage is the response of the Fields API listing
type fieldPage struct {
	Values []fieldItem `json:"values"`
}

// fieldItem is the upstream representation of a field
type fieldItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Boundary json.RawMessage `json:"boundary,omitempty"`
	Area     *areaValue      `json:"area,omitempty"`
	Crop     *string         `json:"crop,omitempty"`
}

type areaValue struct {
	Value *float64 `json:"valueAsDouble,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

func (f *fieldItem) toField() models.Field {
	fld := models.Field{
		ID:   f.ID,
		Name: f.Name,
		Crop: f.Crop,
	}
	if len(f.Boundary) > 0 {
		fld.Boundary = f.Boundary
	}
	if f.Area != nil {
		fld.AreaHa = f.Area.Value
	}
	return fld
}

// WorkPlanRequest is a work order to submit to the Operations Center
type WorkPlanRequest struct {
	FieldID    string         `json:"fieldId"`
	JobType    string         `json:"jobType"`
	StartDate  string         `json:"startDate"`
	EndDate    string         `json:"endDate"`
	ProductMix map[string]any `json:"productMix,omitempty"`
	Notes      string         `json:"notes,omitempty"`
}

// WorkPlanResult is the remote API's response to a work-plan submission
type WorkPlanResult struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"-"`
}

// tokenResponse is the OAuth2 token endpoint response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}
