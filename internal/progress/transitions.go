package progress

import "github.com/Proton-105/lesson-ledger/internal/instruction"

// validTransitions lists, per instruction, the state it requires and the state it produces.
var validTransitions = map[instruction.Kind]struct{ from, to AccountState }{
	instruction.KindInitializeUser: {from: StateUninitialized, to: StateActive},
	instruction.KindCompleteLesson: {from: StateActive, to: StateActive},
}

// IsTransitionAllowed reports whether kind may run on an account in state from and yield state to.
func IsTransitionAllowed(kind instruction.Kind, from, to AccountState) bool {
	t, ok := validTransitions[kind]
	return ok && t.from == from && t.to == to
}
