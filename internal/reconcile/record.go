package reconcile

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/session-planner/internal/sessiontime"
)

// Record is a session as returned by the backend: a JSON object whose field
// names vary between endpoints and versions.
type Record map[string]any

// Field name candidates, in priority order. The first non-empty value wins.
var (
	idFields          = []string{"id", "_id", "sessionId", "session_id", "uuid"}
	titleFields       = []string{"title", "name", "sessionTitle", "session_title"}
	startFields       = []string{"startTime", "start_time", "start", "startsAt", "starts_at", "begin", "from"}
	endFields         = []string{"endTime", "end_time", "end", "endsAt", "ends_at", "finish", "to"}
	dateFields        = []string{"date", "sessionDate", "session_date", "day", "startDate", "start_date"}
	durationFields    = []string{"duration", "durationMinutes", "duration_minutes", "length"}
	locationFields    = []string{"location", "venue", "room", "place"}
	typeFields        = []string{"sessionType", "session_type", "type", "kind"}
	parentIDFields    = []string{"parentId", "parent_id", "parentSessionId", "parent_session_id"}
	parentTitleFields = []string{"parentTitle", "parent_title", "parentSession", "parent_session", "parentSessionTitle"}
	scheduleFields    = []string{"scheduleId", "schedule_id", "schedule"}
	tagFields         = []string{"tags", "labels"}
)

// localIDNamespace scopes locally generated session identifiers.
var localIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("session-planner/local-session"))

// NormalizeOptions tunes record normalisation.
type NormalizeOptions struct {
	// Location projects date-time values into the event's display zone. Nil
	// uses the process-local zone.
	Location *time.Location
}

// NormalizeRecords extracts sessions from backend records. Records that belong
// to another schedule are dropped; every other record yields exactly one
// session, with unparseable values replaced by their fallbacks. It returns
// the sessions and the number of records skipped.
func NormalizeRecords(scheduleID string, records []Record, opts NormalizeOptions) ([]Session, int) {
	out := make([]Session, 0, len(records))
	skipped := 0

	for index, rec := range records {
		if rec == nil {
			skipped++
			continue
		}
		owner := rec.schedule()
		if owner != "" && scheduleID != "" && owner != scheduleID {
			skipped++
			continue
		}
		out = append(out, rec.session(scheduleID, index, opts.Location))
	}

	return out, skipped
}

func (r Record) session(scheduleID string, index int, loc *time.Location) Session {
	startValue, hasStart := r.first(startFields)
	start := sessiontime.NormalizeTime(startValue, loc)

	end := start
	if endValue, ok := r.first(endFields); ok {
		end = sessiontime.NormalizeTime(endValue, loc)
	} else if minutes, ok := r.duration(); ok {
		end = sessiontime.AddMinutes(start, minutes)
	}

	dateValue, hasDate := r.first(dateFields)
	if !hasDate && hasStart && carriesDate(startValue) {
		dateValue, hasDate = startValue, true
	}
	var (
		day   time.Time
		dayOK bool
	)
	if hasDate {
		day, dayOK = sessiontime.NormalizeDate(dateValue, loc)
	}

	parentID := r.text(parentIDFields)
	parentTitle := r.text(parentTitleFields)
	if parent, ok := r["parent"]; ok {
		id, title := parentReference(parent)
		if parentID == "" {
			parentID = id
		}
		if parentTitle == "" {
			parentTitle = title
		}
	}

	kind, ok := ParseSessionType(r.text(typeFields))
	if !ok {
		kind = TypeParent
		if parentID != "" || parentTitle != "" {
			kind = TypeChild
		}
	}

	session := Session{
		ID:          r.text(idFields),
		ScheduleID:  scheduleID,
		Title:       r.text(titleFields),
		Start:       start,
		End:         end,
		Date:        day,
		HasDate:     dayOK,
		Location:    r.text(locationFields),
		Type:        kind,
		ParentID:    parentID,
		ParentTitle: parentTitle,
		Tags:        r.tags(),
	}
	if session.ID == "" {
		session.ID = localID(scheduleID, index, session.Signature())
	}
	return session
}

// localID derives a stable identifier for records the backend did not name,
// so repeated runs over the same input produce the same ids.
func localID(scheduleID string, index int, signature string) string {
	return uuid.NewSHA1(localIDNamespace, []byte(scheduleID+"::"+strconv.Itoa(index)+"::"+signature)).String()
}

func (r Record) first(names []string) (any, bool) {
	for _, name := range names {
		value, ok := r[name]
		if !ok || value == nil {
			continue
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return value, true
	}
	return nil, false
}

func (r Record) text(names []string) string {
	value, ok := r.first(names)
	if !ok {
		return ""
	}
	return scalarText(value)
}

func (r Record) schedule() string {
	value, ok := r.first(scheduleFields)
	if !ok {
		return ""
	}
	if nested, isMap := asMap(value); isMap {
		return scalarText(nested["id"])
	}
	return scalarText(value)
}

func (r Record) duration() (int, bool) {
	value, ok := r.first(durationFields)
	if !ok {
		return 0, false
	}
	var f float64
	switch v := value.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return int(math.Round(f)), true
}

func (r Record) tags() []string {
	value, ok := r.first(tagFields)
	if !ok {
		return nil
	}
	var raw []string
	switch v := value.(type) {
	case string:
		raw = strings.Split(v, ",")
	case []string:
		raw = v
	case []any:
		for _, item := range v {
			if nested, isMap := asMap(item); isMap {
				item = firstNonNil(nested["name"], nested["label"], nested["title"])
			}
			raw = append(raw, scalarText(item))
		}
	}
	return normalizeTags(raw)
}

func normalizeTags(raw []string) []string {
	tags := make([]string, 0, len(raw))
	for _, tag := range raw {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return nil
	}
	slices.Sort(tags)
	return slices.Compact(tags)
}

func parentReference(value any) (string, string) {
	if nested, ok := asMap(value); ok {
		return scalarText(firstNonNil(nested["id"], nested["_id"])), scalarText(firstNonNil(nested["title"], nested["name"]))
	}
	// A bare scalar parent is an identifier.
	return scalarText(value), ""
}

// carriesDate reports whether a start value includes a calendar day, as full
// date-time strings and time values do.
func carriesDate(value any) bool {
	switch v := value.(type) {
	case time.Time, *time.Time:
		return true
	case string:
		s := strings.TrimSpace(v)
		return len(s) >= len("2006-01-02T15:04") && s[4] == '-' && s[7] == '-'
	}
	return false
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Record:
		return v, true
	}
	return nil, false
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func scalarText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case map[string]any, []any:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
