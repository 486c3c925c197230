package workflows

// StateMachine enforces status transitions
type StateMachine struct {
	allowedTransitions map[string][]string
}

// NewStateMachine creates a state machine from an explicit transition table
func NewStateMachine(transitions map[string][]string) *StateMachine {
	return &StateMachine{allowedTransitions: transitions}
}

// NewChainStatusMachine returns the lifecycle of a record's on-chain counterpart.
// A record is stored as "submitted" once its transaction is accepted by the node;
// the reconciler later settles it. Repaired records are inserted directly as
// "confirmed".
func NewChainStatusMachine() *StateMachine {
	return NewStateMachine(map[string][]string{
		"none":      {"submitted", "confirmed"},
		"submitted": {"confirmed", "reverted"},
		"confirmed": {},
		"reverted":  {},
	})
}

// CanTransition checks if a status transition is allowed
func (sm *StateMachine) CanTransition(from, to string) bool {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return false
	}
	for _, allowedTo := range allowed {
		if allowedTo == to {
			return true
		}
	}
	return false
}

// GetAllowedTransitions returns the allowed next statuses for a given status
func (sm *StateMachine) GetAllowedTransitions(from string) []string {
	allowed, exists := sm.allowedTransitions[from]
	if !exists {
		return []string{}
	}
	return allowed
}
