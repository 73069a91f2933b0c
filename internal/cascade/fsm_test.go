package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/halcyon-systems/halcyon/pkg/types"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateEntity, StateDevice, true},
		{StateEntity, StateSucceeded, true},
		{StateEntity, StateFailed, true},
		{StateEntity, StateIntegration, false},
		{StateDevice, StateIntegration, true},
		{StateDevice, StateEntity, false},
		{StateIntegration, StateSucceeded, true},
		{StateIntegration, StateFailed, true},
		{StateSucceeded, StateEntity, false},
		{StateFailed, StateEntity, false},
		{State("bogus"), StateEntity, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransition_InvalidReturnsError(t *testing.T) {
	assert.NoError(t, Transition(StateEntity, StateDevice))
	assert.Error(t, Transition(StateEntity, StateIntegration))
	assert.Error(t, Transition(StateSucceeded, StateFailed))
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StateSucceeded))
	assert.True(t, IsTerminal(StateFailed))
	assert.False(t, IsTerminal(StateEntity))
	assert.False(t, IsTerminal(StateDevice))
	assert.False(t, IsTerminal(StateIntegration))
}

func TestEscalate(t *testing.T) {
	assert.Equal(t, StateDevice, Escalate(StateEntity))
	assert.Equal(t, StateIntegration, Escalate(StateDevice))
	assert.Equal(t, StateFailed, Escalate(StateIntegration))
}

func TestLevelStateRoundTrip(t *testing.T) {
	for _, level := range types.Levels() {
		state := LevelState(level)
		got, ok := state.Level()
		assert.True(t, ok)
		assert.Equal(t, level, got)
	}
	_, ok := StateSucceeded.Level()
	assert.False(t, ok)
}
