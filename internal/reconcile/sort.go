package reconcile

import (
	"cmp"
	"slices"

	"github.com/example/session-planner/internal/sessiontime"
)

// Sort orders sessions for display: by day, then each parent at its start
// time followed directly by its children, children by their own start time,
// ties broken by title and finally by id so the order is total.
func Sort(sessions []Session) []Session {
	out := make([]Session, len(sessions))
	byID := make(map[string]Session, len(sessions))
	for i, session := range sessions {
		out[i] = session.clone()
		if session.Type == TypeParent {
			if _, dup := byID[session.ID]; !dup {
				byID[session.ID] = session
			}
		}
	}

	group := func(s Session) Session {
		if s.Type == TypeChild {
			if parent, ok := byID[s.ParentID]; ok {
				return parent
			}
		}
		return s
	}

	slices.SortStableFunc(out, func(a, b Session) int {
		ga, gb := group(a), group(b)
		return cmp.Or(
			compareDay(a.DayKey(), b.DayKey()),
			cmp.Compare(ga.StartMinutes(), gb.StartMinutes()),
			cmp.Compare(ga.Title, gb.Title),
			cmp.Compare(ga.ID, gb.ID),
			cmp.Compare(rank(a), rank(b)),
			cmp.Compare(a.StartMinutes(), b.StartMinutes()),
			cmp.Compare(a.Title, b.Title),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

func rank(s Session) int {
	if s.Type == TypeChild {
		return 1
	}
	return 0
}

// compareDay orders ISO days chronologically and undated sessions last.
func compareDay(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == sessiontime.UnknownDay:
		return 1
	case b == sessiontime.UnknownDay:
		return -1
	}
	return cmp.Compare(a, b)
}
