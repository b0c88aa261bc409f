package core

import "fmt"

type RunState int

const (
	StateLoading RunState = iota
	StateFetching
	StateFiltering
	StateDeduping
	StateArchiving
	StateNotifying
	StateCommitting
	StateSweeping
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateLoading:    "Loading",
	StateFetching:   "Fetching",
	StateFiltering:  "Filtering",
	StateDeduping:   "Deduping",
	StateArchiving:  "Archiving",
	StateNotifying:  "Notifying",
	StateCommitting: "Committing",
	StateSweeping:   "Sweeping",
	StateDone:       "Done",
	StateFailed:     "Failed",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("RunState(%d)", int(s))
	}
	return stateNames[s]
}

func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition validates a single step of a run. The pipeline is linear: each
// state moves to its successor, and any non-terminal state may fail.
func Transition(from, to RunState) error {
	if from.Terminal() {
		return fmt.Errorf("invalid transition %s -> %s: %s is terminal", from, to, from)
	}
	if to == StateFailed || to == from+1 {
		return nil
	}
	return fmt.Errorf("invalid transition %s -> %s", from, to)
}
