package persistence

import (
	"time"

	"github.com/example/session-planner/internal/reconcile"
)

// MappingSet is the most recent import sheet of one schedule. It is replaced
// wholesale on every upload.
type MappingSet struct {
	EventID    string              `json:"eventId"`
	ScheduleID string              `json:"scheduleId"`
	SourceName string              `json:"sourceName,omitempty"`
	ImportedAt time.Time           `json:"importedAt"`
	Mappings   []reconcile.Mapping `json:"mappings"`
}

// ImportRecord is one entry of the import history.
type ImportRecord struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	ScheduleID string    `json:"scheduleId"`
	SourceName string    `json:"sourceName"`
	Rows       int       `json:"rows"`
	Mappings   int       `json:"mappings"`
	Uploaded   bool      `json:"uploaded"`
	Error      string    `json:"error,omitempty"`
	ImportedAt time.Time `json:"importedAt"`
}
