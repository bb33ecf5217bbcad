package reconcile

import "time"

// Pipeline runs the full reconciliation over one schedule.
type Pipeline struct {
	// Location is the display zone of the event. Nil means process-local time.
	Location *time.Location
}

// Result is the output of a pipeline run.
type Result struct {
	Sessions []Session `json:"sessions"`
	Report   Report    `json:"report"`
}

// Run normalises the raw records, drops duplicates, links children to their
// parents (using mappings when any exist), widens parents over their children
// and orders the result for display. It performs no I/O and does not modify
// its arguments.
func (p Pipeline) Run(scheduleID string, records []Record, mappings []Mapping) Result {
	report := Report{Records: len(records)}

	sessions, skipped := NormalizeRecords(scheduleID, records, NormalizeOptions{Location: p.Location})
	report.Skipped = skipped

	sessions, report.Duplicates = Dedupe(scheduleID, sessions)

	linked := Link(scheduleID, sessions, mappings)
	report.Strategy = linked.Strategy
	report.Matched = linked.Matched
	report.Linked = linked.Linked
	report.Demoted = linked.Demoted

	sessions, report.Expanded = Expand(linked.Sessions)

	return Result{Sessions: Sort(sessions), Report: report}
}
