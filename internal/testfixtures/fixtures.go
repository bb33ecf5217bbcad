// Package testfixtures builds deterministic records, sheets and collaborators
// for planner tests.
package testfixtures

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/session-planner/internal/reconcile"
)

var recordCounter uint64

var referenceTime = time.Date(2025, time.January, 13, 8, 0, 0, 0, time.UTC)

// ReferenceDay is the day key every fixture lands on unless overridden.
const ReferenceDay = "2025-01-13"

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Record fixtures -----------------------------

// RecordOption configures a generated backend record.
type RecordOption func(reconcile.Record)

// NewRecord returns a backend session record titled title, running 09:00 to
// 10:00 on ReferenceDay with a generated id.
func NewRecord(title string, opts ...RecordOption) reconcile.Record {
	idx := atomic.AddUint64(&recordCounter, 1)
	record := reconcile.Record{
		"id":        fmt.Sprintf("session-%03d", idx),
		"title":     title,
		"date":      ReferenceDay,
		"startTime": "09:00",
		"endTime":   "10:00",
	}
	for _, opt := range opts {
		opt(record)
	}
	return record
}

// WithID overrides the generated identifier.
func WithID(id string) RecordOption {
	return func(r reconcile.Record) { r["id"] = id }
}

// WithTimes sets the start and end times as written by the backend.
func WithTimes(start, end string) RecordOption {
	return func(r reconcile.Record) {
		r["startTime"] = start
		r["endTime"] = end
	}
}

// WithDate sets the session day.
func WithDate(day string) RecordOption {
	return func(r reconcile.Record) { r["date"] = day }
}

// WithLocation sets the venue.
func WithLocation(location string) RecordOption {
	return func(r reconcile.Record) { r["location"] = location }
}

// WithParentTitle marks the record as a child of the named session.
func WithParentTitle(title string) RecordOption {
	return func(r reconcile.Record) { r["parentTitle"] = title }
}

// WithSchedule assigns the record to a schedule.
func WithSchedule(scheduleID string) RecordOption {
	return func(r reconcile.Record) { r["scheduleId"] = scheduleID }
}

// WithTags attaches tags.
func WithTags(tags ...string) RecordOption {
	return func(r reconcile.Record) {
		values := make([]any, len(tags))
		for i, tag := range tags {
			values[i] = tag
		}
		r["tags"] = values
	}
}

// KeynoteRecords is a keynote listed twice by the backend plus an unlinked
// Q&A that only an imported sheet can attach to it.
func KeynoteRecords() []reconcile.Record {
	return []reconcile.Record{
		NewRecord("Keynote", WithID("keynote-1"), WithLocation("Hall A")),
		NewRecord("Keynote", WithID("keynote-2"), WithLocation("Hall A")),
		NewRecord("Q&A", WithID("qa"), WithTimes("09:30", "09:45"), WithLocation("Hall A")),
	}
}

// ------------------------------ Sheet fixtures ------------------------------

// SheetRow is one data row of an import sheet.
type SheetRow struct {
	Title    string
	Parent   string
	Date     string
	Start    string
	End      string
	Location string
}

var sheetHeader = []string{"Title", "Parent Session", "Date", "Start Time", "End Time", "Location"}

// SheetCSV renders rows below the standard header.
func SheetCSV(rows ...SheetRow) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(sheetHeader)
	for _, row := range rows {
		_ = w.Write([]string{row.Title, row.Parent, row.Date, row.Start, row.End, row.Location})
	}
	w.Flush()
	return buf.Bytes()
}

// KeynoteSheet maps the Q&A of KeynoteRecords under the keynote.
func KeynoteSheet() []byte {
	return SheetCSV(
		SheetRow{Title: "Keynote", Date: ReferenceDay, Start: "09:00", End: "10:00", Location: "Hall A"},
		SheetRow{Title: "Q&A", Parent: "Keynote", Date: ReferenceDay, Start: "09:30", End: "09:45", Location: "Hall A"},
	)
}
