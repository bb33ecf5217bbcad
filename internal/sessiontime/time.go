package sessiontime

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	twelveHourPattern     = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?\s*([AaPp])\.?\s*[Mm]\.?$`)
	twentyFourHourPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
)

// isoDateTimeLayouts are tried in order for full date-time strings.
var isoDateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// NormalizeTime converts an arbitrary time-like value into a Clock.
//
// Interpretations are attempted in order: date-like values (projected into loc
// when it is non-nil), numeric fractions of a day (Excel serials), numeric
// minutes since midnight, ISO-8601 date-time strings, "H:MM AM/PM" strings and
// finally "HH:MM[:SS]" 24-hour strings. Anything else yields Fallback.
func NormalizeTime(value any, loc *time.Location) Clock {
	switch v := value.(type) {
	case nil:
		return Fallback
	case time.Time:
		return fromTime(v, loc)
	case *time.Time:
		if v == nil {
			return Fallback
		}
		return fromTime(*v, loc)
	case string:
		return fromString(v, loc)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Fallback
		}
		return fromNumber(f)
	}

	if f, ok := toFloat(value); ok {
		return fromNumber(f)
	}
	return Fallback
}

func fromTime(t time.Time, loc *time.Location) Clock {
	if t.IsZero() {
		return Fallback
	}
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return FromMinutes(t.Hour()*60 + t.Minute())
}

// fromNumber interprets non-integral values as Excel serials (whole days plus
// a fraction of a day) and integral values below one day as minutes since
// midnight. Whole-day serials carry no time of day and map to midnight.
func fromNumber(f float64) Clock {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return Fallback
	}
	whole, frac := math.Modf(f)
	if frac != 0 {
		minutes := int(math.Round(frac * MinutesPerDay))
		return FromMinutes(minutes)
	}
	if whole < MinutesPerDay {
		return FromMinutes(int(whole))
	}
	return FromMinutes(0)
}

func fromString(raw string, loc *time.Location) Clock {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Fallback
	}

	if t, ok := parseISODateTime(s, loc); ok {
		return fromTime(t, loc)
	}

	if m := twelveHourPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour <= 12 && minute <= 59 {
			hour %= 12
			if strings.EqualFold(m[4], "p") {
				hour += 12
			}
			return FromMinutes(hour*60 + minute)
		}
	}

	if m := twentyFourHourPattern.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour <= 23 && minute <= 59 {
			return FromMinutes(hour*60 + minute)
		}
	}

	// Sheets read with raw cell values deliver serials as numeric text.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}

	return Fallback
}

// parseISODateTime parses full date-time strings. Values without an explicit
// offset are wall times in loc, or in the process-local zone when loc is nil.
func parseISODateTime(s string, loc *time.Location) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04") {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range isoDateTimeLayouts {
		var (
			t   time.Time
			err error
		)
		if strings.Contains(layout, "Z07:00") {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}
