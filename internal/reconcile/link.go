package reconcile

import (
	"sort"
	"strings"
)

// LinkResult carries the linked sessions and bookkeeping for the report.
type LinkResult struct {
	Sessions []Session
	Strategy Strategy
	Matched  int
	Linked   int
	Demoted  []string
}

// Link assigns every session its role and, for children, a parent.
//
// When the schedule has import mappings they are authoritative: sessions that
// match a mapping row take its role and parent title, and no title or order
// heuristics run. Without mappings, explicit parent titles and then the order
// of sessions within a day are used. Either way a final containment pass
// resolves remaining children by time, and any child that still has no parent
// becomes a standalone parent.
func Link(scheduleID string, sessions []Session, mappings []Mapping) LinkResult {
	out := make([]Session, len(sessions))
	for i, session := range sessions {
		out[i] = session.clone()
	}

	result := LinkResult{Strategy: StrategyHeuristic}
	if len(mappings) > 0 {
		result.Strategy = StrategyMappings
		result.Matched = linkFromMappings(out, mappings, &result)
	} else {
		linkHeuristically(scheduleID, out, &result)
	}

	resolveByContainment(out, &result)

	for _, session := range out {
		if session.Type == TypeChild {
			result.Linked++
		}
	}
	result.Sessions = out
	return result
}

type mappingIndex struct {
	bySignature map[string]Mapping
	byInterval  map[string]Mapping
	byStart     map[string]Mapping
}

func newMappingIndex(mappings []Mapping) mappingIndex {
	idx := mappingIndex{
		bySignature: make(map[string]Mapping, len(mappings)),
		byInterval:  make(map[string]Mapping, len(mappings)),
		byStart:     make(map[string]Mapping, len(mappings)),
	}
	for _, m := range mappings {
		start, end := m.Start().String(), m.End().String()
		putFirst(idx.bySignature, m.Signature, m)
		putFirst(idx.byInterval, lookupKey(m.DateKey, m.Title, start, end), m)
		putFirst(idx.byStart, lookupKey(m.DateKey, m.Title, start), m)
	}
	return idx
}

func (idx mappingIndex) find(s Session) (Mapping, bool) {
	if m, ok := idx.bySignature[s.Signature()]; ok {
		return m, true
	}
	day, start, end := s.DayKey(), s.Start.String(), s.End.String()
	if m, ok := idx.byInterval[lookupKey(day, s.Title, start, end)]; ok {
		return m, true
	}
	// Tolerates end times that drifted after the backend round trip.
	if m, ok := idx.byStart[lookupKey(day, s.Title, start)]; ok {
		return m, true
	}
	return Mapping{}, false
}

func lookupKey(parts ...string) string {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, signatureSeparator)
}

func putFirst(index map[string]Mapping, key string, m Mapping) {
	if _, exists := index[key]; !exists {
		index[key] = m
	}
}

func linkFromMappings(sessions []Session, mappings []Mapping, result *LinkResult) int {
	idx := newMappingIndex(mappings)
	matched := make([]*Mapping, len(sessions))
	count := 0

	// Roles are forced first so parent candidates reflect the declared
	// structure regardless of record order.
	for i := range sessions {
		m, ok := idx.find(sessions[i])
		if !ok {
			continue
		}
		count++
		matched[i] = &m
		sessions[i].Type = m.Type
		if m.Type == TypeParent {
			sessions[i].ParentID = ""
		}
		if m.ParentTitle != "" {
			sessions[i].ParentTitle = m.ParentTitle
		}
	}

	for i := range sessions {
		m := matched[i]
		if m == nil || m.Type != TypeChild || m.ParentTitle == "" {
			continue
		}
		child := &sessions[i]
		var candidates []int
		for j := range sessions {
			if j == i || sessions[j].Type != TypeParent {
				continue
			}
			if sessions[j].DayKey() == child.DayKey() && sameTitle(sessions[j].Title, m.ParentTitle) {
				candidates = append(candidates, j)
			}
		}
		if len(candidates) == 0 {
			demote(child, result)
			continue
		}
		child.ParentID = sessions[closestPreceding(sessions, candidates, child.StartMinutes())].ID
	}

	return count
}

// closestPreceding picks the candidate with the latest start that is not after
// start, falling back to the first candidate.
func closestPreceding(sessions []Session, candidates []int, start int) int {
	best := -1
	for _, j := range candidates {
		s := sessions[j].StartMinutes()
		if s > start {
			continue
		}
		if best == -1 || s > sessions[best].StartMinutes() {
			best = j
		}
	}
	if best == -1 {
		return candidates[0]
	}
	return best
}

func linkHeuristically(scheduleID string, sessions []Session, result *LinkResult) {
	groups := make(map[string][]int)
	var order []string
	for i, s := range sessions {
		owner := s.ScheduleID
		if owner == "" {
			owner = scheduleID
		}
		key := owner + "::" + s.DayKey()
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(a, b int) bool {
			sa, sb := sessions[group[a]], sessions[group[b]]
			if sa.StartMinutes() != sb.StartMinutes() {
				return sa.StartMinutes() < sb.StartMinutes()
			}
			return sa.ID < sb.ID
		})
		linkByTitle(sessions, group, result)
		linkByOrder(sessions, group)
	}
}

func linkByTitle(sessions []Session, group []int, result *LinkResult) {
	for _, i := range group {
		ref := strings.TrimSpace(sessions[i].ParentTitle)
		if ref == "" {
			continue
		}
		target := findTitleTarget(sessions, group, i, ref)
		if target == -1 {
			if sessions[i].Type == TypeChild && sessions[i].ParentID == "" {
				demote(&sessions[i], result)
			}
			continue
		}
		// Children never nest, so whatever a child links to is a parent.
		sessions[target].Type = TypeParent
		sessions[target].ParentID = ""
		sessions[i].Type = TypeChild
		sessions[i].ParentID = sessions[target].ID
	}
}

// findTitleTarget prefers parent-typed sessions and otherwise accepts any
// session that is not already nested.
func findTitleTarget(sessions []Session, group []int, self int, title string) int {
	fallback := -1
	for _, j := range group {
		if j == self || !sameTitle(sessions[j].Title, title) {
			continue
		}
		if sessions[j].Type == TypeParent {
			return j
		}
		if fallback == -1 && sessions[j].ParentID == "" && strings.TrimSpace(sessions[j].ParentTitle) == "" {
			fallback = j
		}
	}
	return fallback
}

func linkByOrder(sessions []Session, group []int) {
	lastParentID := ""
	for _, i := range group {
		s := &sessions[i]
		switch {
		case s.Type == TypeParent:
			lastParentID = s.ID
		case s.ParentID == "" && strings.TrimSpace(s.ParentTitle) == "" && lastParentID != "":
			s.ParentID = lastParentID
		}
	}
}

// resolveByContainment validates every child's parent reference and re-homes
// or demotes the children whose reference is missing or dangling.
func resolveByContainment(sessions []Session, result *LinkResult) {
	parents := make(map[string]int, len(sessions))
	var containers []int
	for i, s := range sessions {
		if s.Type == TypeParent {
			containers = append(containers, i)
			if _, dup := parents[s.ID]; !dup {
				parents[s.ID] = i
			}
		}
	}

	for i := range sessions {
		s := &sessions[i]
		if s.Type != TypeChild {
			s.Type = TypeParent
			s.ParentID = ""
			continue
		}
		if p, ok := parents[s.ParentID]; ok && p != i {
			continue
		}
		s.ParentID = ""

		best := -1
		for _, j := range containers {
			candidate := sessions[j]
			if j == i || candidate.DayKey() != s.DayKey() {
				continue
			}
			start, end := onParentTimeline(candidate.StartMinutes(), candidate.EndMinutes(), s.StartMinutes(), s.EndMinutes())
			if candidate.StartMinutes() > start || candidate.EndMinutes() < end {
				continue
			}
			if best == -1 || candidate.StartMinutes() > sessions[best].StartMinutes() {
				best = j
			}
		}
		if best == -1 {
			demote(s, result)
			continue
		}
		s.ParentID = sessions[best].ID
	}
}

func demote(s *Session, result *LinkResult) {
	s.Type = TypeParent
	s.ParentID = ""
	if result != nil {
		result.Demoted = append(result.Demoted, s.ID)
	}
}

func sameTitle(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
