package reconcile

import (
	"testing"

	"github.com/example/session-planner/internal/sessiontime"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		parent    Session
		children  []Session
		wantStart sessiontime.Clock
		wantEnd   sessiontime.Clock
		expanded  int
	}{
		{
			name:      "children inside",
			parent:    session("p", "Block", "09:00", "12:00"),
			children:  []Session{child(session("c", "Talk", "10:00", "11:00"), "p", "")},
			wantStart: clock("09:00", sessiontime.AM),
			wantEnd:   clock("12:00", sessiontime.PM),
		},
		{
			name:   "children overhang both sides",
			parent: session("p", "Block", "09:00", "10:00"),
			children: []Session{
				child(session("c1", "Early", "08:30", "09:15"), "p", ""),
				child(session("c2", "Late", "09:30", "11:00"), "p", ""),
			},
			wantStart: clock("08:30", sessiontime.AM),
			wantEnd:   clock("11:00", sessiontime.AM),
			expanded:  1,
		},
		{
			name:      "child crosses midnight",
			parent:    session("p", "Night", "22:00", "23:00"),
			children:  []Session{child(session("c", "Afterparty", "23:30", "00:30"), "p", "")},
			wantStart: clock("10:00", sessiontime.PM),
			wantEnd:   clock("12:30", sessiontime.AM),
			expanded:  1,
		},
		{
			name:      "child after midnight inside cross-midnight parent",
			parent:    session("p", "Gala", "23:00", "01:00"),
			children:  []Session{child(session("c", "Toast", "00:15", "00:30"), "p", "")},
			wantStart: clock("11:00", sessiontime.PM),
			wantEnd:   clock("01:00", sessiontime.AM),
		},
		{
			name:      "child after midnight overhangs cross-midnight parent",
			parent:    session("p", "Gala", "23:00", "01:00"),
			children:  []Session{child(session("c", "Encore", "00:45", "01:30"), "p", "")},
			wantStart: clock("11:00", sessiontime.PM),
			wantEnd:   clock("01:30", sessiontime.AM),
			expanded:  1,
		},
		{
			name:      "child before midnight under after-midnight parent",
			parent:    session("p", "Late set", "00:30", "02:00"),
			children:  []Session{child(session("c", "Countdown", "23:50", "00:10"), "p", "")},
			wantStart: clock("11:50", sessiontime.PM),
			wantEnd:   clock("02:00", sessiontime.AM),
			expanded:  1,
		},
		{
			name:      "unlinked child ignored",
			parent:    session("p", "Block", "09:00", "10:00"),
			children:  []Session{child(session("c", "Talk", "11:00", "12:00"), "other", "")},
			wantStart: clock("09:00", sessiontime.AM),
			wantEnd:   clock("10:00", sessiontime.AM),
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			input := append([]Session{tc.parent}, tc.children...)
			out, expanded := Expand(input)

			got := findByID(t, out, "p")
			if got.Start != tc.wantStart || got.End != tc.wantEnd {
				t.Fatalf("expected %s-%s, got %s-%s", tc.wantStart, tc.wantEnd, got.Start, got.End)
			}
			if expanded != tc.expanded {
				t.Fatalf("expected %d expanded parents, got %d", tc.expanded, expanded)
			}
			if input[0].Start != tc.parent.Start || input[0].End != tc.parent.End {
				t.Fatalf("expected input parent to be untouched")
			}
			originalLength := tc.parent.EndMinutes() - tc.parent.StartMinutes()
			if length := got.EndMinutes() - got.StartMinutes(); length < originalLength {
				t.Fatalf("expected parent to never narrow below %d minutes, got %d", originalLength, length)
			}
			for _, c := range out {
				if c.Type != TypeChild || c.ParentID != "p" {
					continue
				}
				start, end := onParentTimeline(got.StartMinutes(), got.EndMinutes(), c.StartMinutes(), c.EndMinutes())
				if start < got.StartMinutes() || end > got.EndMinutes() {
					t.Fatalf("child %s escapes parent interval", c.ID)
				}
			}
		})
	}
}
