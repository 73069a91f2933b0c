// Package cascade implements the multi-level healing orchestrator: routing,
// the escalation state machine, timeout budgeting, and result aggregation.
package cascade

import (
	"fmt"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

// State is one node of the cascade state machine. The three healing levels
// escalate in order; Succeeded and Failed are terminal.
type State string

const (
	StateEntity      State = "ENTITY"
	StateDevice      State = "DEVICE"
	StateIntegration State = "INTEGRATION"
	StateSucceeded   State = "SUCCEEDED"
	StateFailed      State = "FAILED"
)

// Transition table: from -> allowed tos. A level may succeed, escalate to
// the next level, or exhaust the ladder.
var validTransitions = map[State][]State{
	StateEntity:      {StateDevice, StateSucceeded, StateFailed},
	StateDevice:      {StateIntegration, StateSucceeded, StateFailed},
	StateIntegration: {StateSucceeded, StateFailed},
	StateSucceeded:   {},
	StateFailed:      {},
}

// CanTransition checks whether moving from one state to another is valid.
func CanTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates a state change, returning an error when the
// escalation order would be violated.
func Transition(from, to State) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid cascade transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true when the state ends the cascade.
func IsTerminal(s State) bool {
	return s == StateSucceeded || s == StateFailed
}

// LevelState maps a healing level to its cascade state.
func LevelState(level types.HealingLevel) State {
	switch level {
	case types.LevelEntity:
		return StateEntity
	case types.LevelDevice:
		return StateDevice
	case types.LevelIntegration:
		return StateIntegration
	}
	return StateFailed
}

// Level maps a cascade state back to its healing level. Terminal states have
// no level.
func (s State) Level() (types.HealingLevel, bool) {
	switch s {
	case StateEntity:
		return types.LevelEntity, true
	case StateDevice:
		return types.LevelDevice, true
	case StateIntegration:
		return types.LevelIntegration, true
	}
	return "", false
}

// Escalate returns the next level up from a state, or StateFailed when the
// ladder is exhausted.
func Escalate(s State) State {
	switch s {
	case StateEntity:
		return StateDevice
	case StateDevice:
		return StateIntegration
	default:
		return StateFailed
	}
}
