package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainStatusMachine(t *testing.T) {
	sm := NewChainStatusMachine()

	assert.True(t, sm.CanTransition("none", "submitted"))
	assert.True(t, sm.CanTransition("submitted", "confirmed"))
	assert.True(t, sm.CanTransition("submitted", "reverted"))
	assert.False(t, sm.CanTransition("confirmed", "reverted"))
	assert.False(t, sm.CanTransition("reverted", "submitted"))
	assert.False(t, sm.CanTransition("unknown", "submitted"))

	assert.Empty(t, sm.GetAllowedTransitions("confirmed"))
	assert.ElementsMatch(t, []string{"confirmed", "reverted"}, sm.GetAllowedTransitions("submitted"))
}
