package reconcile

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/session-planner/internal/sessiontime"
)

var testDay = time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC)

func session(id, title, start, end string) Session {
	return Session{
		ID:         id,
		ScheduleID: testSchedule,
		Title:      title,
		Start:      sessiontime.NormalizeTime(start, time.UTC),
		End:        sessiontime.NormalizeTime(end, time.UTC),
		Date:       testDay,
		HasDate:    true,
		Type:       TypeParent,
	}
}

func child(s Session, parentID, parentTitle string) Session {
	s.Type = TypeChild
	s.ParentID = parentID
	s.ParentTitle = parentTitle
	return s
}

func TestLink_MappingsAreAuthoritative(t *testing.T) {
	t.Parallel()

	workshop := child(session("w", "Workshop", "09:00", "12:00"), "", "")
	workshop.Location = "Room 1"
	lab := session("lab", "Lab A", "10:00", "11:15")
	lab.Location = "Room 1"
	extra := child(session("extra", "Extra", "13:00", "13:30"), "", "Workshop")

	mappings := []Mapping{
		NewMapping("2025-01-13", "Workshop", "", clock("09:00", sessiontime.AM), clock("12:00", sessiontime.PM), ""),
		NewMapping("2025-01-13", "Lab A", "", clock("10:00", sessiontime.AM), clock("11:00", sessiontime.AM), "Workshop"),
	}

	result := Link(testSchedule, []Session{workshop, lab, extra}, mappings)

	if result.Strategy != StrategyMappings {
		t.Fatalf("expected mapping strategy, got %s", result.Strategy)
	}
	if result.Matched != 2 {
		t.Fatalf("expected 2 matched sessions, got %d", result.Matched)
	}
	if got := findByID(t, result.Sessions, "w"); got.Type != TypeParent || got.ParentID != "" {
		t.Fatalf("expected workshop forced to parent, got %+v", got)
	}
	if got := findByID(t, result.Sessions, "lab"); got.Type != TypeChild || got.ParentID != "w" {
		t.Fatalf("expected lab linked to workshop despite end drift, got %+v", got)
	}
	// Title references are not consulted when mappings exist, and Extra lies
	// outside every parent.
	if got := findByID(t, result.Sessions, "extra"); got.Type != TypeParent {
		t.Fatalf("expected extra demoted, got %+v", got)
	}
	if !reflect.DeepEqual(result.Demoted, []string{"extra"}) {
		t.Fatalf("expected extra reported as demoted, got %v", result.Demoted)
	}
	assertNoDanglingChildren(t, result.Sessions)
}

func TestLink_MappingPicksClosestPrecedingParent(t *testing.T) {
	t.Parallel()

	morning := session("am", "Track", "09:00", "10:00")
	afternoon := session("pm", "Track", "13:00", "14:00")
	talk := session("talk", "Talk", "13:30", "13:45")

	mappings := []Mapping{
		NewMapping("2025-01-13", "Track", "", clock("09:00", sessiontime.AM), clock("10:00", sessiontime.AM), ""),
		NewMapping("2025-01-13", "Track", "", clock("01:00", sessiontime.PM), clock("02:00", sessiontime.PM), ""),
		NewMapping("2025-01-13", "Talk", "", clock("01:30", sessiontime.PM), clock("01:45", sessiontime.PM), "track"),
	}

	result := Link(testSchedule, []Session{morning, afternoon, talk}, mappings)

	if got := findByID(t, result.Sessions, "talk"); got.ParentID != "pm" {
		t.Fatalf("expected talk under the afternoon track, got %+v", got)
	}
}

func TestLink_MappingWithoutParentCandidateDemotes(t *testing.T) {
	t.Parallel()

	talk := session("talk", "Talk", "10:00", "10:30")
	mappings := []Mapping{
		NewMapping("2025-01-13", "Talk", "", clock("10:00", sessiontime.AM), clock("10:30", sessiontime.AM), "Ghost"),
	}

	result := Link(testSchedule, []Session{talk}, mappings)

	if got := result.Sessions[0]; got.Type != TypeParent || got.ParentID != "" {
		t.Fatalf("expected demoted talk, got %+v", got)
	}
	if result.Linked != 0 {
		t.Fatalf("expected no linked children, got %d", result.Linked)
	}
}

func TestLink_HeuristicTitleAndOrder(t *testing.T) {
	t.Parallel()

	plenary := session("plenary", "Plenary", "09:00", "10:00")
	followUp := child(session("follow", "Follow-up", "11:00", "11:30"), "", " plenary ")
	track := session("track", "Track B", "10:00", "12:00")
	inferred := child(session("inferred", "Lightning", "10:30", "10:45"), "", "")

	result := Link(testSchedule, []Session{followUp, inferred, track, plenary}, nil)

	if got := findByID(t, result.Sessions, "follow"); got.ParentID != "plenary" {
		t.Fatalf("expected case-insensitive title link to plenary, got %+v", got)
	}
	if got := findByID(t, result.Sessions, "inferred"); got.ParentID != "track" {
		t.Fatalf("expected order inference to pick the last parent seen, got %+v", got)
	}
	if result.Linked != 2 {
		t.Fatalf("expected 2 linked children, got %d", result.Linked)
	}
	assertNoDanglingChildren(t, result.Sessions)
}

func TestLink_TitleTargetIsPromotedToParent(t *testing.T) {
	t.Parallel()

	host := child(session("host", "Showcase", "09:00", "11:00"), "", "")
	guest := child(session("guest", "Demo", "09:30", "10:00"), "", "Showcase")

	result := Link(testSchedule, []Session{host, guest}, nil)

	if got := findByID(t, result.Sessions, "host"); got.Type != TypeParent {
		t.Fatalf("expected link target promoted to parent, got %+v", got)
	}
	if got := findByID(t, result.Sessions, "guest"); got.ParentID != "host" {
		t.Fatalf("expected demo linked to showcase, got %+v", got)
	}
}

func TestLink_ContainmentResolvesDanglingReference(t *testing.T) {
	t.Parallel()

	wide := session("wide", "Day block", "09:00", "12:00")
	narrow := session("narrow", "Session block", "10:00", "11:00")
	orphan := child(session("orphan", "Talk", "10:00", "10:30"), "ghost", "")
	outside := child(session("outside", "Evening", "19:00", "20:00"), "ghost", "")

	result := Link(testSchedule, []Session{wide, narrow, orphan, outside}, nil)

	if got := findByID(t, result.Sessions, "orphan"); got.ParentID != "narrow" {
		t.Fatalf("expected containing parent with the latest start, got %+v", got)
	}
	if got := findByID(t, result.Sessions, "outside"); got.Type != TypeParent || got.ParentID != "" {
		t.Fatalf("expected uncontained child demoted, got %+v", got)
	}
	if !reflect.DeepEqual(result.Demoted, []string{"outside"}) {
		t.Fatalf("unexpected demotions %v", result.Demoted)
	}
}

func TestLink_ContainmentIgnoresOtherDays(t *testing.T) {
	t.Parallel()

	parent := session("p", "Block", "09:00", "12:00")
	other := child(session("c", "Talk", "10:00", "10:30"), "missing", "")
	other.Date = testDay.AddDate(0, 0, 1)

	result := Link(testSchedule, []Session{parent, other}, nil)

	if got := findByID(t, result.Sessions, "c"); got.Type != TypeParent {
		t.Fatalf("expected child on another day to be demoted, got %+v", got)
	}
}

func TestLink_ContainmentAcrossMidnight(t *testing.T) {
	t.Parallel()

	gala := session("gala", "Gala", "23:00", "01:00")
	toast := child(session("toast", "Toast", "00:15", "00:30"), "missing", "")

	result := Link(testSchedule, []Session{gala, toast}, []Mapping{{Title: "Unrelated", DateKey: "2025-01-13", Type: TypeParent}})

	got := findByID(t, result.Sessions, "toast")
	if got.Type != TypeChild || got.ParentID != "gala" {
		t.Fatalf("expected toast re-homed under the cross-midnight gala, got %+v", got)
	}
}
