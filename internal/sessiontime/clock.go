// Package sessiontime normalises the loosely typed time and date values found
// in backend session records and uploaded import sheets.
//
// Every session time is carried as a 12-hour Clock ({"HH:MM", "AM"|"PM"}) and
// every session day as a midnight time.Time. Neither normaliser ever fails:
// unrecognised times collapse to Fallback and unrecognised dates report
// ok == false so callers can group them under UnknownDay.
package sessiontime

import (
	"fmt"
	"strconv"
	"strings"
)

// Period is the AM/PM half of a 12-hour clock value.
type Period string

const (
	// AM covers 00:00 through 11:59.
	AM Period = "AM"
	// PM covers 12:00 through 23:59.
	PM Period = "PM"
)

// MinutesPerDay is the number of minutes in a calendar day.
const MinutesPerDay = 24 * 60

// Clock is the canonical 12-hour representation of a time of day.
type Clock struct {
	Time   string `json:"time"`
	Period Period `json:"period"`
}

// Fallback is returned for any value that cannot be interpreted as a time.
// It counts as minute 0 but renders differently from a parsed midnight
// ("12:00 AM"), so unparseable values never share a signature with real
// midnight sessions. Keep the two distinct.
var Fallback = Clock{Time: "00:00", Period: AM}

// FromMinutes builds a Clock from minutes since midnight. Values outside a
// single day wrap around. Midnight renders as "12:00 AM", never as Fallback.
func FromMinutes(minutes int) Clock {
	minutes %= MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	hour := minutes / 60
	minute := minutes % 60

	period := AM
	if hour >= 12 {
		period = PM
	}
	hour12 := hour % 12
	if hour12 == 0 {
		hour12 = 12
	}
	return Clock{Time: fmt.Sprintf("%02d:%02d", hour12, minute), Period: period}
}

// Minutes returns the number of minutes since midnight represented by c.
// Malformed clocks count as midnight.
func (c Clock) Minutes() int {
	hour, minute, ok := splitHourMinute(c.Time)
	if !ok {
		return 0
	}
	hour %= 12
	if strings.EqualFold(string(c.Period), string(PM)) {
		hour += 12
	}
	return hour*60 + minute
}

// String renders the clock as "HH:MM AM".
func (c Clock) String() string {
	return c.Time + " " + string(c.Period)
}

// IsZero reports whether the clock carries no value at all.
func (c Clock) IsZero() bool {
	return c.Time == "" && c.Period == ""
}

// AddMinutes shifts c by the given number of minutes, wrapping across
// midnight in either direction.
func AddMinutes(c Clock, minutes int) Clock {
	return FromMinutes(c.Minutes() + minutes)
}

// ParseClock rebuilds a Clock from its persisted time and period parts,
// returning Fallback when either part is unusable.
func ParseClock(value string, period string) Clock {
	hour, minute, ok := splitHourMinute(value)
	if !ok || hour > 12 || minute > 59 {
		return Fallback
	}
	p := Period(strings.ToUpper(strings.TrimSpace(period)))
	if p != AM && p != PM {
		return Fallback
	}
	return Clock{Time: fmt.Sprintf("%02d:%02d", hour, minute), Period: p}
}

// EndMinutes returns the end of the interval [start, end) in minutes since the
// start day's midnight. Ends that fall before their start cross midnight and
// are pushed into the following day.
func EndMinutes(start, end Clock) int {
	s, e := start.Minutes(), end.Minutes()
	if e < s {
		e += MinutesPerDay
	}
	return e
}

func splitHourMinute(value string) (int, int, bool) {
	hourPart, minutePart, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 {
		return 0, 0, false
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
