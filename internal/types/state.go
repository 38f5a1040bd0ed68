package types

import "fmt"

// SessionState is the externally visible status of a workflow session.
// The orchestrator's copy of this value, not any per-engine state, is
// authoritative.
type SessionState string

const (
	StateInit         SessionState = "INIT"
	StateClarifying   SessionState = "CLARIFYING"
	StateClarified    SessionState = "CLARIFIED"
	StateAdvIterating SessionState = "ADV_ITERATING"
	StateVerified     SessionState = "VERIFIED"
	StateFormatting   SessionState = "FORMATTING"
	StateDone         SessionState = "DONE"
	StateError        SessionState = "ERROR"
	StatePaused       SessionState = "PAUSED"
	StateStopped      SessionState = "STOPPED"
)

// CanTransition reports whether moving from one state to another is
// allowed. The machine only moves forward; PAUSED is a side-state
// re-entrant from CLARIFYING and ADV_ITERATING, and STOPPED is terminal.
func CanTransition(from, to SessionState) bool {
	if from == to && from == StateAdvIterating {
		// Self-loop per completed round.
		return true
	}
	switch from {
	case StateInit:
		return to == StateClarifying || to == StateError
	case StateClarifying:
		return to == StateClarified || to == StatePaused || to == StateError
	case StateClarified:
		return to == StateAdvIterating || to == StateError
	case StateAdvIterating:
		return to == StateVerified || to == StatePaused || to == StateError
	case StateVerified:
		return to == StateFormatting || to == StateError
	case StateFormatting:
		return to == StateDone || to == StateError
	case StatePaused:
		// Resumable back to any active state, or stopped for good.
		return to == StateClarifying || to == StateAdvIterating || to == StateStopped
	case StateError:
		return to == StateStopped
	case StateDone, StateStopped:
		return false
	}
	return false
}

// Terminal reports whether a session in this state accepts no further
// transitions.
func (s SessionState) Terminal() bool {
	return s == StateDone || s == StateStopped
}

// Active reports whether the session is still being driven forward.
func (s SessionState) Active() bool {
	switch s {
	case StateInit, StateClarifying, StateClarified, StateAdvIterating, StateVerified, StateFormatting:
		return true
	}
	return false
}

// Transition validates and applies a state change.
func (w *WorkflowSession) Transition(to SessionState) error {
	if !CanTransition(w.State, to) {
		return fmt.Errorf("%w: transition %s -> %s", ErrInvalidState, w.State, to)
	}
	w.State = to
	return nil
}
