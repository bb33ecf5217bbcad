package reconcile

import (
	"strings"

	"github.com/example/session-planner/internal/sessiontime"
)

const signatureSeparator = "||"

// Signature builds the stable key used both for de-duplication and for
// matching backend sessions to import rows.
func Signature(day, title, location string, start, end sessiontime.Clock) string {
	return strings.Join([]string{
		day,
		strings.TrimSpace(title),
		strings.TrimSpace(location),
		start.String(),
		end.String(),
	}, signatureSeparator)
}

// Dedupe collapses sessions that repeat an earlier session's signature and
// role, keeping the first occurrence. References to a dropped parent are
// rewritten to the parent that was kept. It returns the surviving sessions
// and the number of records dropped.
func Dedupe(scheduleID string, sessions []Session) ([]Session, int) {
	kept := make(map[string]string, len(sessions))
	remap := make(map[string]string)
	out := make([]Session, 0, len(sessions))

	for _, session := range sessions {
		key := scheduleID + "::" + session.Signature() + "::" + strings.ToLower(string(session.Type))
		if keptID, ok := kept[key]; ok {
			if session.Type == TypeParent && session.ID != keptID {
				remap[session.ID] = keptID
			}
			continue
		}
		kept[key] = session.ID
		out = append(out, session.clone())
	}

	if len(remap) > 0 {
		for i := range out {
			if target, ok := remap[out[i].ParentID]; ok {
				out[i].ParentID = target
			}
		}
	}

	return out, len(sessions) - len(out)
}
