package sessiontime

import (
	"testing"
	"time"
)

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	newYork, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}

	tests := []struct {
		name    string
		value   any
		loc     *time.Location
		wantKey string
	}{
		{name: "iso day", value: "2025-01-13", wantKey: "2025-01-13"},
		{name: "iso day ignores zone", value: "2025-01-13", loc: newYork, wantKey: "2025-01-13"},
		{name: "slash day", value: "1/13/2025", wantKey: "2025-01-13"},
		{name: "utc instant seen from tokyo", value: "2025-01-13T20:00:00Z", loc: tokyo, wantKey: "2025-01-14"},
		{name: "utc instant seen from new york", value: "2025-01-13T02:00:00Z", loc: newYork, wantKey: "2025-01-12"},
		{name: "time value", value: time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC), loc: time.UTC, wantKey: "2025-03-01"},
		{name: "excel serial", value: 45670.0, loc: time.UTC, wantKey: "2025-01-13"},
		{name: "excel serial text", value: "45670", loc: time.UTC, wantKey: "2025-01-13"},
		{name: "nil", value: nil, wantKey: UnknownDay},
		{name: "garbage", value: "someday", wantKey: UnknownDay},
		{name: "empty", value: "", wantKey: UnknownDay},
		{name: "unsupported type", value: []string{"2025-01-13"}, wantKey: UnknownDay},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			day, ok := NormalizeDate(tt.value, tt.loc)
			if got := DayKey(day, ok); got != tt.wantKey {
				t.Fatalf("DayKey(NormalizeDate(%v)) = %q, want %q", tt.value, got, tt.wantKey)
			}
			if ok && (day.Hour() != 0 || day.Minute() != 0 || day.Second() != 0) {
				t.Fatalf("expected midnight, got %v", day)
			}
		})
	}
}

func TestNormalizeDate_ReturnsMidnightInZone(t *testing.T) {
	t.Parallel()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	day, ok := NormalizeDate(time.Date(2025, 1, 13, 16, 0, 0, 0, time.UTC), tokyo)
	if !ok {
		t.Fatalf("expected date to parse")
	}
	if day.Location() != tokyo {
		t.Fatalf("expected location %v, got %v", tokyo, day.Location())
	}
	if want := time.Date(2025, 1, 14, 0, 0, 0, 0, tokyo); !day.Equal(want) {
		t.Fatalf("expected %v, got %v", want, day)
	}
}

func TestParseDayKey(t *testing.T) {
	t.Parallel()

	if _, ok := ParseDayKey(UnknownDay, time.UTC); ok {
		t.Fatalf("unknown day must not parse")
	}
	day, ok := ParseDayKey("2025-01-13", time.UTC)
	if !ok || DayKey(day, ok) != "2025-01-13" {
		t.Fatalf("unexpected round trip: %v %v", day, ok)
	}
}
