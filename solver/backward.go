package solver

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/fabrikik/ik/constraint"
	"github.com/fabrikik/ik/ikgraph"
	"github.com/fabrikik/ik/spatial"
)

// backwardReach runs one root-to-tips pass over the whole forest, seeded
// from every root joint and proceeding breadth-first through children
// (spec.md §4.4 doesn't confine backward reach to effector-bearing
// branches: a decorative sub-chain with no effector still inherits its
// parent's motion), and returns the aggregate end-effector residual
// accumulated along the way.
func backwardReach(reg *ikgraph.Registry) r3.Vector {
	var rx, ry, rz atomic.Float64

	frontier := reg.RootJoints()
	visited := make(map[ikgraph.ID]bool, len(frontier))

	for len(frontier) > 0 {
		var g errgroup.Group
		level := frontier
		for _, id := range level {
			id := id
			if visited[id] {
				continue
			}
			visited[id] = true
			g.Go(func() error {
				backwardReachJoint(reg, id, &rx, &ry, &rz)
				return nil
			})
		}
		_ = g.Wait()

		var next []ikgraph.ID
		for _, id := range level {
			for _, c := range reg.Children(id) {
				if !visited[c] {
					next = append(next, c)
				}
			}
		}
		frontier = next
	}

	return r3.Vector{X: rx.Load(), Y: ry.Load(), Z: rz.Load()}
}

func backwardReachJoint(reg *ikgraph.Registry, id ikgraph.ID, rx, ry, rz *atomic.Float64) {
	joint, ok := reg.Joint(id)
	if !ok {
		return
	}
	t, ok := reg.Transform(id)
	if !ok {
		return
	}

	var anchor r3.Vector
	parentID, hasParent := reg.Parent(id)
	if hasParent {
		parentJoint, okP := reg.Joint(parentID)
		parentT, okT := reg.Transform(parentID)
		if !okP || !okT {
			return
		}
		parentTop := parentT.Translation.
			Sub(spatial.Rotate(parentT.Rotation, parentJoint.EffectiveVisualOffset())).
			Add(spatial.Rotate(parentT.Rotation, spatial.UnitY.Mul(parentJoint.Length)))
		anchor = parentTop.Add(spatial.Rotate(parentT.Rotation, joint.AnchorOffset))
	} else if _, baseT, ok := reg.BaseOf(id); ok {
		anchor = baseT.Translation.Add(spatial.Rotate(baseT.Rotation, joint.AnchorOffset))
	} else {
		anchor = t.Translation.Sub(spatial.Rotate(t.Rotation, joint.EffectiveVisualOffset()))
	}

	currentTop := t.Translation.
		Sub(spatial.Rotate(t.Rotation, joint.EffectiveVisualOffset())).
		Add(spatial.Rotate(t.Rotation, spatial.UnitY.Mul(joint.Length)))

	var newRotation mgl64.Quat
	if hasParent {
		dir, ok := spatial.SafeNormalize(currentTop.Sub(anchor))
		if !ok {
			dir = t.LocalY()
			reg.WarnDegenerateDirection(id.String())
		}
		newRotation = spatial.AlignAxes(spatial.ToMgl(spatial.UnitY), spatial.ToMgl(dir), spatial.ToMgl(spatial.UnitZ), spatial.ToMgl(t.LocalZ()))
	} else {
		children := reg.Children(id)
		if len(children) == 0 {
			newRotation = t.Rotation
		} else {
			var avg r3.Vector
			for _, c := range children {
				cJoint, okJ := reg.Joint(c)
				cT, okT := reg.Transform(c)
				if !okJ || !okT {
					continue
				}
				avg = avg.Add(cT.Translation.Sub(spatial.Rotate(cT.Rotation, cJoint.EffectiveVisualOffset())))
			}
			avg = avg.Mul(1 / float64(len(children)))
			dir, ok := spatial.SafeNormalize(avg.Sub(anchor))
			if !ok {
				dir = t.LocalY()
				reg.WarnDegenerateDirection(id.String())
			}
			newRotation = spatial.AlignAxes(spatial.ToMgl(spatial.UnitY), spatial.ToMgl(dir), spatial.ToMgl(spatial.UnitZ), spatial.ToMgl(t.LocalZ()))
		}
	}
	if rc, ok := reg.Constraint(id); ok {
		newRotation = constraint.TwistSwingClamp(newRotation, rc)
	}

	newRotation = spatial.Unroll(newRotation, t.Rotation)

	var newTranslation r3.Vector
	if joint.Length == 0 {
		newTranslation = t.Translation
	} else {
		newTranslation = anchor.Add(spatial.Rotate(newRotation, joint.EffectiveVisualOffset()))
	}

	reg.SetTransform(id, ikgraph.JointTransform{Translation: newTranslation, Rotation: newRotation, Scale: t.Scale})

	if _, eT, ok := reg.EffectorOf(id); ok {
		d := eT.Translation.Sub(newTranslation)
		rx.Add(d.X)
		ry.Add(d.Y)
		rz.Add(d.Z)
	}
}
