package sessiontime

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnknownDay is the grouping key used for sessions without a usable date.
const UnknownDay = "unknown-day"

// DayLayout is the ISO day format used in grouping keys and signatures.
const DayLayout = "2006-01-02"

var calendarDayLayouts = []string{
	DayLayout,
	"2006/01/02",
	"1/2/2006",
	"01/02/2006",
	"2006-1-2",
}

// excelEpoch is day zero of the 1900 date system as used by spreadsheet
// applications (which count a nonexistent 1900-02-29).
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// NormalizeDate converts an arbitrary date-like value into a calendar day at
// midnight. When loc is non-nil, instants are first projected into loc so the
// calendar day is the one observed there, and the returned midnight is in loc.
// Date-only strings name a calendar day directly and are never shifted.
func NormalizeDate(value any, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return dayOfInstant(v, loc)
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return dayOfInstant(*v, loc)
	case string:
		return dateFromString(v, loc)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return dateFromSerial(f, loc)
	}
	if f, ok := toFloat(value); ok {
		return dateFromSerial(f, loc)
	}
	return time.Time{}, false
}

// DayKey renders the grouping key of a normalised day.
func DayKey(day time.Time, ok bool) string {
	if !ok || day.IsZero() {
		return UnknownDay
	}
	return day.Format(DayLayout)
}

// ParseDayKey turns a DayKey back into a midnight in loc.
func ParseDayKey(key string, loc *time.Location) (time.Time, bool) {
	if key == "" || key == UnknownDay {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DayLayout, key, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dayOfInstant(t time.Time, loc *time.Location) (time.Time, bool) {
	if t.IsZero() {
		return time.Time{}, false
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), true
}

func dateFromString(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseISODateTime(s, loc); ok {
		return dayOfInstant(t, loc)
	}
	for _, layout := range calendarDayLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return dateFromSerial(f, loc)
	}
	return time.Time{}, false
}

// dateFromSerial reads spreadsheet day serials. The fractional part (time of
// day) is discarded.
func dateFromSerial(f float64, loc *time.Location) (time.Time, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 1 {
		return time.Time{}, false
	}
	days := int(math.Floor(f))
	y, m, d := excelEpoch.AddDate(0, 0, days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc), true
}
