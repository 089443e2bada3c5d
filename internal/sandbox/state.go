package sandbox

import "fmt"

// State is the lifecycle state of one build execution.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

func allowedTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateRunning || to == StateFailed || to == StateCancelled
	case StateRunning:
		return to == StateSucceeded || to == StateFailed || to == StateCancelled
	default:
		return false
	}
}

// execution tracks the state of a single Execute call.
type execution struct {
	state    State
	observer func(from, to State)
}

func (x *execution) transition(to State) error {
	if !allowedTransition(x.state, to) {
		return fmt.Errorf("invalid build state transition %s -> %s", x.state, to)
	}
	from := x.state
	x.state = to
	if x.observer != nil {
		x.observer(from, to)
	}
	return nil
}
