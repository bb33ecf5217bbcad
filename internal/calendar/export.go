// Package calendar renders reconciled sessions as an iCalendar feed so a
// schedule can be subscribed to from calendar clients.
package calendar

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/session-planner/internal/reconcile"
	"github.com/example/session-planner/internal/sessiontime"
)

// Options controls feed metadata.
type Options struct {
	// Name is published as X-WR-CALNAME.
	Name string
	// Location anchors session days and clock times. Nil means process-local.
	Location *time.Location
	// Domain is appended to session ids to form globally unique UIDs.
	Domain string
	// Stamp is written as DTSTAMP of every event.
	Stamp time.Time
}

// Build converts sessions into a calendar. Sessions without a known day
// cannot be placed and are left out; the number left out is returned.
func Build(sessions []reconcile.Session, opts Options) (*ical.Calendar, int) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	domain := strings.TrimSpace(opts.Domain)
	if domain == "" {
		domain = "session-planner"
	}
	stamp := opts.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendarFor("session-planner")
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}
	cal.SetXWRTimezone(loc.String())

	titles := make(map[string]string, len(sessions))
	for _, s := range sessions {
		titles[s.ID] = s.Title
	}

	skipped := 0
	for _, s := range sessions {
		start, end, ok := Interval(s, loc)
		if !ok {
			skipped++
			continue
		}

		event := cal.AddEvent(UID(s.ID, domain))
		event.SetDtStampTime(stamp)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(s.Title)
		if s.Location != "" {
			event.SetLocation(s.Location)
		}
		if len(s.Tags) > 0 {
			event.AddProperty(ical.ComponentPropertyCategories, strings.Join(s.Tags, ","))
		}
		if s.Type == reconcile.TypeChild && s.ParentID != "" {
			event.AddProperty(ical.ComponentPropertyRelatedTo, UID(s.ParentID, domain))
			if parent := titles[s.ParentID]; parent != "" {
				event.SetDescription(fmt.Sprintf("Part of %s", parent))
			}
		}
	}
	return cal, skipped
}

// Write serialises the calendar built from sessions to w.
func Write(w io.Writer, sessions []reconcile.Session, opts Options) (int, error) {
	cal, skipped := Build(sessions, opts)
	if err := cal.SerializeTo(w); err != nil {
		return skipped, fmt.Errorf("serialize calendar: %w", err)
	}
	return skipped, nil
}

// UID forms the event UID of a session id.
func UID(sessionID, domain string) string {
	return sessionID + "@" + domain
}

// Interval places a session on the time line of loc. Ends that wrap past
// midnight land on the following day.
func Interval(s reconcile.Session, loc *time.Location) (time.Time, time.Time, bool) {
	day, ok := sessiontime.ParseDayKey(s.DayKey(), loc)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := day.Date()
	start := time.Date(y, m, d, 0, s.StartMinutes(), 0, 0, loc)
	end := time.Date(y, m, d, 0, s.EndMinutes(), 0, 0, loc)
	return start, end, true
}
