package solver

import "github.com/golang/geo/r3"

// State is the solver's per-invocation state machine (spec.md §4.4).
type State int

const (
	StateImported State = iota
	StateForward
	StateBackward
	StateConverged
	StateBudgetExhausted
	StateExported
)

func (s State) String() string {
	switch s {
	case StateImported:
		return "imported"
	case StateForward:
		return "forward"
	case StateBackward:
		return "backward"
	case StateConverged:
		return "converged"
	case StateBudgetExhausted:
		return "budget_exhausted"
	case StateExported:
		return "exported"
	default:
		return "unknown"
	}
}

// Result reports the outcome of a single Solve call (spec.md §6
// "introspection: current residual vector, iteration count actually used").
type Result struct {
	// Residual is the sum, over effector-terminated joints, of the effector's
	// position minus the joint's translation, from the final backward-reach
	// pass (or from the extended pose on the unreachable fast path).
	Residual r3.Vector
	// Iterations is the number of forward/backward pairs actually run.
	Iterations int
	// Converged is true if the residual delta dropped below Settings.Tolerance
	// before the iteration cap was reached.
	Converged bool
	// State is the terminal state of this invocation.
	State State
}
