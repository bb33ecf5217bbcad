// Package reconcile turns the loosely typed session list returned by the
// backend, together with the parent/child structure declared by an uploaded
// import sheet, into a deduplicated, nested and chronologically ordered
// session list.
//
// Every stage is a pure function over a slice: it never mutates its input and
// always returns a fresh slice, so the full pipeline can be re-run on the same
// data any number of times and converge on the same output.
package reconcile

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/example/session-planner/internal/sessiontime"
)

// SessionType is the nesting role of a session.
type SessionType string

const (
	// TypeParent marks a top-level session that may own children.
	TypeParent SessionType = "parent"
	// TypeChild marks a session nested under a parent.
	TypeChild SessionType = "child"
)

// ParseSessionType maps free-form type labels onto a SessionType.
func ParseSessionType(value string) (SessionType, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "parent", "main", "session":
		return TypeParent, true
	case "child", "sub", "subsession", "sub-session", "breakout":
		return TypeChild, true
	}
	return "", false
}

// Session is a single schedule entry after normalisation.
type Session struct {
	ID          string            `json:"id"`
	ScheduleID  string            `json:"scheduleId,omitempty"`
	Title       string            `json:"title"`
	Start       sessiontime.Clock `json:"startTime"`
	End         sessiontime.Clock `json:"endTime"`
	Date        time.Time         `json:"-"`
	HasDate     bool              `json:"-"`
	Location    string            `json:"location"`
	Type        SessionType       `json:"sessionType"`
	ParentID    string            `json:"parentId,omitempty"`
	ParentTitle string            `json:"parentTitle,omitempty"`
	Tags        []string          `json:"tags"`
}

// DayKey returns the ISO day of the session or sessiontime.UnknownDay.
func (s Session) DayKey() string {
	return sessiontime.DayKey(s.Date, s.HasDate)
}

// Signature returns the matching key of the session.
func (s Session) Signature() string {
	return Signature(s.DayKey(), s.Title, s.Location, s.Start, s.End)
}

// StartMinutes returns the start in minutes since midnight.
func (s Session) StartMinutes() int {
	return s.Start.Minutes()
}

// EndMinutes returns the end in minutes since the start day's midnight,
// pushed past 24h for sessions crossing midnight.
func (s Session) EndMinutes() int {
	return sessiontime.EndMinutes(s.Start, s.End)
}

// MarshalJSON renders the session with its day key under "date".
func (s Session) MarshalJSON() ([]byte, error) {
	type plain Session
	return json.Marshal(struct {
		plain
		Day string `json:"date"`
	}{plain(s), s.DayKey()})
}

func (s Session) clone() Session {
	s.Tags = slices.Clone(s.Tags)
	return s
}

// Mapping is one row of an uploaded import sheet. Mappings are the declared
// parent/child structure of a schedule; the backend does not echo parent
// linkage back, so they are persisted separately and consulted on every
// reload.
type Mapping struct {
	Signature       string             `json:"signature"`
	Title           string             `json:"title"`
	DateKey         string             `json:"dateKey"`
	Location        string             `json:"location,omitempty"`
	StartTime       string             `json:"startTime"`
	StartPeriod     sessiontime.Period `json:"startPeriod"`
	EndTime         string             `json:"endTime"`
	EndPeriod       sessiontime.Period `json:"endPeriod"`
	Type            SessionType        `json:"sessionType"`
	ParentTitle     string             `json:"parentTitle,omitempty"`
	CrossesMidnight bool               `json:"crossesMidnight,omitempty"`
}

// Start returns the mapping's start clock.
func (m Mapping) Start() sessiontime.Clock {
	return sessiontime.ParseClock(m.StartTime, string(m.StartPeriod))
}

// End returns the mapping's end clock.
func (m Mapping) End() sessiontime.Clock {
	return sessiontime.ParseClock(m.EndTime, string(m.EndPeriod))
}

// NewMapping assembles a mapping and computes its signature.
func NewMapping(dateKey, title, location string, start, end sessiontime.Clock, parentTitle string) Mapping {
	title = strings.TrimSpace(title)
	location = strings.TrimSpace(location)
	parentTitle = strings.TrimSpace(parentTitle)

	kind := TypeParent
	if parentTitle != "" {
		kind = TypeChild
	}

	return Mapping{
		Signature:       Signature(dateKey, title, location, start, end),
		Title:           title,
		DateKey:         dateKey,
		Location:        location,
		StartTime:       start.Time,
		StartPeriod:     start.Period,
		EndTime:         end.Time,
		EndPeriod:       end.Period,
		Type:            kind,
		ParentTitle:     parentTitle,
		CrossesMidnight: end.Minutes() < start.Minutes(),
	}
}

// Strategy names the linking strategy applied to a schedule.
type Strategy string

const (
	// StrategyMappings links sessions from persisted import mappings.
	StrategyMappings Strategy = "mappings"
	// StrategyHeuristic links sessions from titles and ordering.
	StrategyHeuristic Strategy = "heuristic"
)

// Report summarises what a pipeline run did to its input.
type Report struct {
	Strategy   Strategy `json:"strategy"`
	Records    int      `json:"records"`
	Skipped    int      `json:"skipped"`
	Duplicates int      `json:"duplicates"`
	Matched    int      `json:"matched"`
	Linked     int      `json:"linked"`
	Demoted    []string `json:"demoted,omitempty"`
	Expanded   int      `json:"expanded"`
}
