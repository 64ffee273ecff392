// Package solver runs the FABRIK forward/backward iteration over an
// ikgraph.Registry: unroll, forward reach, backward reach, convergence
// testing, and the unreachable-target fast path (spec.md §4.4).
package solver

import (
	"context"

	"github.com/golang/geo/r3"

	"github.com/fabrikik/ik/ikgraph"
	"github.com/fabrikik/ik/logging"
	"github.com/fabrikik/ik/spatial"
)

// Solver runs Settings-configured FABRIK solves against a Registry.
type Solver struct {
	logger   logging.Logger
	settings Settings
}

// New constructs a Solver. logger may be nil, in which case a logger named
// "solver" writing to stderr at INFO level is created.
func New(logger logging.Logger, opts ...Option) *Solver {
	if logger == nil {
		logger = logging.NewLogger("solver")
	}
	return &Solver{logger: logger.Sublogger("solver"), settings: NewSettings(opts...)}
}

// Settings returns the solver's current configuration.
func (s *Solver) Settings() Settings { return s.settings }

// SetSettings replaces the solver's configuration wholesale.
func (s *Solver) SetSettings(settings Settings) { s.settings = settings }

// Solve runs up to Settings.Iterations() forward/backward pairs against reg,
// in place. ctx is honored only as a cancellation point between iterations
// (spec.md §5 "Suspension/blocking: none" — the solver itself never blocks).
func (s *Solver) Solve(ctx context.Context, reg *ikgraph.Registry) (Result, error) {
	reg.BeginFrame()

	active, activeChildren, levels := buildWavefront(reg)
	if len(active) == 0 {
		return Result{State: StateExported}, reg.Warnings()
	}

	if allChainsUnreachable(reg, active) {
		extendedPose(reg, active, activeChildren)
		residual := computeResidual(reg, active)
		return Result{Residual: residual, Iterations: 0, Converged: false, State: StateBudgetExhausted}, reg.Warnings()
	}

	unroll(reg)

	var prevResidual r3.Vector
	result := Result{State: StateImported}
	for iter := 0; iter < s.settings.iterations; iter++ {
		if err := ctx.Err(); err != nil {
			result.State = StateBudgetExhausted
			return result, err
		}

		forwardReach(reg, activeChildren, levels)
		result.State = StateForward

		residual := backwardReach(reg)
		result.State = StateBackward

		result.Iterations = iter + 1
		delta := residual.Sub(prevResidual).Norm()
		prevResidual = residual
		result.Residual = residual

		if iter > 0 && delta < s.settings.tolerance {
			result.Converged = true
			result.State = StateConverged
			break
		}
	}
	if !result.Converged {
		result.State = StateBudgetExhausted
	}
	return result, reg.Warnings()
}

// unroll is the breadth-first hemisphere pass of spec.md §4.4: walk from base
// joints through children, negating any rotation whose dot product with its
// parent's is negative, then fold roots with QuatAbs.
func unroll(reg *ikgraph.Registry) {
	roots := reg.RootJoints()
	queue := append([]ikgraph.ID(nil), roots...)
	visited := make(map[ikgraph.ID]bool, len(roots))

	for i := 0; i < len(queue); i++ {
		id := queue[i]
		if visited[id] {
			continue
		}
		visited[id] = true

		t, ok := reg.Transform(id)
		if !ok {
			continue
		}
		if p, hasParent := reg.Parent(id); hasParent {
			if pt, ok := reg.Transform(p); ok {
				t.Rotation = spatial.Unroll(t.Rotation, pt.Rotation)
				reg.SetTransform(id, t)
			}
		} else {
			t.Rotation = spatial.QuatAbs(t.Rotation)
			reg.SetTransform(id, t)
		}
		for _, c := range reg.Children(id) {
			if !visited[c] {
				queue = append(queue, c)
			}
		}
	}
}
