package solver

import (
	"github.com/golang/geo/r3"

	"github.com/fabrikik/ik/ikgraph"
	"github.com/fabrikik/ik/spatial"
)

// chainRootAnchor walks from id up through parents (stopping at the first
// joint with no parent) and returns that root joint's anchor position and
// the summed bone length along the way, for the unreachable-target fast
// path (spec.md §4.4).
func chainRootAnchor(reg *ikgraph.Registry, id ikgraph.ID) (rootAnchor r3.Vector, sumLength float64, rootID ikgraph.ID) {
	cur := id
	for {
		j, ok := reg.Joint(cur)
		if !ok {
			break
		}
		sumLength += j.Length
		p, hasParent := reg.Parent(cur)
		if !hasParent {
			t, _ := reg.Transform(cur)
			if _, baseT, ok := reg.BaseOf(cur); ok {
				rootAnchor = baseT.Translation.Add(spatial.Rotate(baseT.Rotation, j.AnchorOffset))
			} else {
				rootAnchor = t.Translation.Sub(spatial.Rotate(t.Rotation, j.EffectiveVisualOffset()))
			}
			rootID = cur
			return rootAnchor, sumLength, rootID
		}
		cur = p
	}
	return rootAnchor, sumLength, rootID
}

// allChainsUnreachable reports whether every maximal sub-chain ending in an
// effector-terminated joint has its effector strictly farther than the
// chain's summed bone length from the chain's root anchor (spec.md §4.4
// "Unreachable-target fast path").
func allChainsUnreachable(reg *ikgraph.Registry, active map[ikgraph.ID]bool) bool {
	any := false
	for id := range active {
		e, eT, ok := reg.EffectorOf(id)
		if !ok {
			continue
		}
		any = true
		rootAnchor, sumLength, _ := chainRootAnchor(reg, id)
		dist := eT.Translation.Sub(rootAnchor).Norm()
		if dist <= sumLength || e.Weight <= 0 {
			return false
		}
	}
	return any
}

// extendedPose runs the one-shot fully-extended pose: every bone in every
// active chain points directly at its effector, anchored end to end from
// the chain's root (spec.md §4.4).
func extendedPose(reg *ikgraph.Registry, active map[ikgraph.ID]bool, activeChildren map[ikgraph.ID][]ikgraph.ID) {
	for id := range active {
		if _, hasParent := reg.Parent(id); hasParent {
			continue
		}
		extendChainFrom(reg, id, activeChildren)
	}
}

func extendChainFrom(reg *ikgraph.Registry, id ikgraph.ID, activeChildren map[ikgraph.ID][]ikgraph.ID) {
	joint, ok := reg.Joint(id)
	if !ok {
		return
	}
	t, ok := reg.Transform(id)
	if !ok {
		return
	}

	var anchor r3.Vector
	if parentID, hasParent := reg.Parent(id); hasParent {
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

	target, hasTarget := effectorTargetOf(reg, id, activeChildren)
	var rotation = t.Rotation
	if hasTarget {
		dir, ok := spatial.SafeNormalize(target.Sub(anchor))
		if !ok {
			dir = t.LocalY()
			reg.WarnDegenerateDirection(id.String())
		}
		rotation = spatial.AlignAxes(spatial.ToMgl(spatial.UnitY), spatial.ToMgl(dir), spatial.ToMgl(spatial.UnitZ), spatial.ToMgl(t.LocalZ()))
	}

	var translation r3.Vector
	if joint.Length == 0 {
		translation = t.Translation
	} else {
		translation = anchor.Add(spatial.Rotate(rotation, joint.EffectiveVisualOffset()))
	}
	reg.SetTransform(id, ikgraph.JointTransform{Translation: translation, Rotation: rotation, Scale: t.Scale})

	for _, c := range activeChildren[id] {
		extendChainFrom(reg, c, activeChildren)
	}
}

// effectorTargetOf returns the effector position this chain is reaching
// for, if id terminates one directly or any of its active descendants do
// (the nearest one found along the first active descendant path).
func effectorTargetOf(reg *ikgraph.Registry, id ikgraph.ID, activeChildren map[ikgraph.ID][]ikgraph.ID) (r3.Vector, bool) {
	if _, eT, ok := reg.EffectorOf(id); ok {
		return eT.Translation, true
	}
	for _, c := range activeChildren[id] {
		if v, ok := effectorTargetOf(reg, c, activeChildren); ok {
			return v, true
		}
	}
	return r3.Vector{}, false
}

// computeResidual sums effector_position - translation(J) across every
// active effector-terminated joint, matching backwardReach's residual
// definition, for the unreachable fast path's one-shot result.
func computeResidual(reg *ikgraph.Registry, active map[ikgraph.ID]bool) r3.Vector {
	var sum r3.Vector
	for id := range active {
		_, eT, ok := reg.EffectorOf(id)
		if !ok {
			continue
		}
		t, ok := reg.Transform(id)
		if !ok {
			continue
		}
		sum = sum.Add(eT.Translation.Sub(t.Translation))
	}
	return sum
}
