// Package sequencer computes neighbouring identifiers over a fixed, closed
// id range with wraparound at both ends.
package sequencer

import "fmt"

// Direction selects which neighbour Next returns.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Next returns the id after (Forward) or before (Backward) id, wrapping to
// minID past maxID and to maxID before minID.
func Next(id int, dir Direction, minID, maxID int) int {
	if dir == Backward {
		if id > minID {
			return id - 1
		}
		return maxID
	}
	if id < maxID {
		return id + 1
	}
	return minID
}

// Range is the fixed [Min, Max] id range of a session.
type Range struct {
	Min int
	Max int
}

// DefaultRange is the range of the reference deployment.
var DefaultRange = Range{Min: 1, Max: 151}

func (r Range) Validate() error {
	if r.Min > r.Max {
		return fmt.Errorf("sequencer: min id %d greater than max id %d", r.Min, r.Max)
	}
	return nil
}

func (r Range) Contains(id int) bool { return id >= r.Min && id <= r.Max }

// Len is the number of ids in the range.
func (r Range) Len() int { return r.Max - r.Min + 1 }

func (r Range) Next(id int, dir Direction) int { return Next(id, dir, r.Min, r.Max) }

func (r Range) String() string { return fmt.Sprintf("[%d, %d]", r.Min, r.Max) }
