// Package lifecycle provides the table-driven transition engine shared by the
// order and delivery state machines. A machine declares its edges once; every
// status-changing operation consults the same table, so a stale client
// requesting a transition from a status that has since changed simply fails
// the lookup.
package lifecycle

// Table maps each source status to the set of allowed target statuses.
// Statuses absent from the map are terminal.
type Table[S comparable] map[S][]S

// Can reports whether the edge from -> to exists in the table.
func (t Table[S]) Can(from, to S) bool {
	for _, candidate := range t[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Targets returns the allowed targets from the given status. The returned
// slice is a copy; callers may not mutate the table through it.
func (t Table[S]) Targets(from S) []S {
	targets := t[from]
	if len(targets) == 0 {
		return nil
	}
	out := make([]S, len(targets))
	copy(out, targets)
	return out
}

// IsTerminal reports whether no outgoing edges exist for the status.
func (t Table[S]) IsTerminal(status S) bool {
	return len(t[status]) == 0
}
