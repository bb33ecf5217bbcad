package application

import (
	"time"

	"github.com/example/session-planner/internal/reconcile"
)

// ScheduleKey identifies one schedule of one event.
type ScheduleKey struct {
	EventID    string
	ScheduleID string
}

func (k ScheduleKey) String() string {
	return k.EventID + "/" + k.ScheduleID
}

// Snapshot is the reconciled session list of a schedule as last computed.
type Snapshot struct {
	EventID     string              `json:"eventId"`
	ScheduleID  string              `json:"scheduleId"`
	Timezone    string              `json:"timezone"`
	Sessions    []reconcile.Session `json:"sessions"`
	Report      reconcile.Report    `json:"report"`
	RefreshedAt time.Time           `json:"refreshedAt"`
	// Stale is set when the latest refresh failed and the previous result is served.
	Stale bool `json:"stale,omitempty"`
}

// Key returns the schedule key the snapshot belongs to.
func (s Snapshot) Key() ScheduleKey {
	return ScheduleKey{EventID: s.EventID, ScheduleID: s.ScheduleID}
}

// Schedule is an id/name pair owning the sessions of one track of an event.
type Schedule struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Timezone is an entry of the backend's timezone directory.
type Timezone struct {
	Identifier string
	IANAName   string
}

// ImportParams describes one uploaded sheet.
type ImportParams struct {
	EventID    string
	ScheduleID string
	Filename   string
	Content    []byte
}

// ImportResult summarises an import.
type ImportResult struct {
	ImportID string `json:"importId"`
	Rows     int    `json:"rows"`
	Skipped  int    `json:"skipped"`
	Mappings int    `json:"mappings"`
	// MappingsSaved is false when the sheet lacked required columns; the
	// schedule then keeps linking heuristically.
	MappingsSaved bool      `json:"mappingsSaved"`
	Uploaded      bool      `json:"uploaded"`
	Snapshot      *Snapshot `json:"snapshot,omitempty"`
}
