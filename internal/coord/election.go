package coord

// ConnectionID identifies a registered connection. IDs start at 1 and are
// never reused within a process.
type ConnectionID uint64

// NoConnection is the zero ConnectionID. It never names a registered
// connection and means "no preference" or "no primary".
const NoConnection ConnectionID = 0

// Candidate is the part of a connection the election looks at.
type Candidate struct {
	ID     ConnectionID
	Hidden bool
}

// Elect picks the primary among candidates, given in registration order.
//
// A visible connection is preferred: a hidden primary is replaced as soon as
// a visible candidate exists, with preferred winning over registration order
// when it is itself visible. A visible primary is kept. When every candidate
// is hidden and there is no primary, the first candidate becomes primary, so
// a non-empty set always has one. The result is NoConnection only when
// candidates is empty.
func Elect(candidates []Candidate, current, preferred ConnectionID) ConnectionID {
	var (
		primary      *Candidate
		activeChoice *Candidate
		firstActive  *Candidate
	)
	for i := range candidates {
		c := &candidates[i]
		if current != NoConnection && c.ID == current {
			primary = c
		}
		if c.Hidden {
			continue
		}
		if preferred != NoConnection && c.ID == preferred {
			activeChoice = c
		}
		if firstActive == nil {
			firstActive = c
		}
	}
	if activeChoice == nil {
		activeChoice = firstActive
	}

	switch {
	case primary != nil && primary.Hidden && activeChoice != nil:
		return activeChoice.ID
	case primary == nil && activeChoice != nil:
		return activeChoice.ID
	case primary == nil && len(candidates) > 0:
		return candidates[0].ID
	case primary == nil:
		return NoConnection
	default:
		return primary.ID
	}
}
