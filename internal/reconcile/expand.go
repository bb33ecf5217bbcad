package reconcile

import "github.com/example/session-planner/internal/sessiontime"

// Expand widens each parent's displayed interval to cover all of its linked
// children. Intervals only ever grow. It returns the sessions and the number
// of parents whose interval changed.
func Expand(sessions []Session) ([]Session, int) {
	out := make([]Session, len(sessions))
	parents := make(map[string]int)
	for i, session := range sessions {
		out[i] = session.clone()
		if session.Type == TypeParent {
			if _, dup := parents[session.ID]; !dup {
				parents[session.ID] = i
			}
		}
	}

	type span struct{ start, end int }
	spans := make(map[int]span)
	for _, child := range out {
		if child.Type != TypeChild {
			continue
		}
		p, ok := parents[child.ParentID]
		if !ok {
			continue
		}
		parentStart, parentEnd := out[p].StartMinutes(), out[p].EndMinutes()
		current, seen := spans[p]
		if !seen {
			current = span{start: parentStart, end: parentEnd}
		}
		childStart, childEnd := onParentTimeline(parentStart, parentEnd, child.StartMinutes(), child.EndMinutes())
		if childStart < current.start {
			current.start = childStart
		}
		if childEnd > current.end {
			current.end = childEnd
		}
		spans[p] = current
	}

	expanded := 0
	for p, span := range spans {
		parent := &out[p]
		// A 12-hour clock pair cannot describe a day or more.
		if span.end-span.start >= sessiontime.MinutesPerDay {
			span.end = span.start + sessiontime.MinutesPerDay - 1
		}
		if span.start == parent.StartMinutes() && span.end == parent.EndMinutes() {
			continue
		}
		parent.Start = sessiontime.FromMinutes(span.start)
		parent.End = sessiontime.FromMinutes(span.end)
		expanded++
	}
	return out, expanded
}

// onParentTimeline places a child interval on the parent's start day, the day
// before or the day after, whichever lies closest to the parent interval. A
// child at 00:15 under a 23:00-01:00 parent belongs after midnight.
func onParentTimeline(parentStart, parentEnd, childStart, childEnd int) (int, int) {
	bestStart, bestEnd := childStart, childEnd
	bestGap := gap(parentStart, parentEnd, childStart, childEnd)
	for _, shift := range []int{-sessiontime.MinutesPerDay, sessiontime.MinutesPerDay} {
		if g := gap(parentStart, parentEnd, childStart+shift, childEnd+shift); g < bestGap {
			bestStart, bestEnd, bestGap = childStart+shift, childEnd+shift, g
		}
	}
	return bestStart, bestEnd
}

// gap is the distance in minutes between two intervals, zero when they touch
// or overlap.
func gap(aStart, aEnd, bStart, bEnd int) int {
	return max(0, aStart-bEnd, bStart-aEnd)
}
