package pipeline

import (
	"fmt"
	"sync"
)

// State is the lifecycle stage of a download job
type State int

const (
	StateIdle State = iota
	StateResolving
	StateVariantSelecting
	StateFetching
	StateAssembling
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateResolving:
		return "Resolving"
	case StateVariantSelecting:
		return "VariantSelecting"
	case StateFetching:
		return "Fetching"
	case StateAssembling:
		return "Assembling"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransition reports whether s may move to next. Jobs only move forward one
// stage at a time; Failed is reachable from any non-terminal state.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return next == s+1
}

// stateMachine guards the current state of one job
type stateMachine struct {
	mu      sync.Mutex
	current State
}

func (m *stateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// transition moves to next and returns the previous state
func (m *stateMachine) transition(next State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !from.CanTransition(next) {
		return from, fmt.Errorf("invalid state transition %s -> %s", from, next)
	}
	m.current = next
	return from, nil
}
