package solver

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/fabrikik/ik/constraint"
	"github.com/fabrikik/ik/ikgraph"
	"github.com/fabrikik/ik/spatial"
)

// forwardReach runs one tips-to-root pass over every level computed by
// buildWavefront, lowest (leaves) first, each level's joints processed
// concurrently via errgroup since they only read their children's
// already-settled state and write their own row (spec.md §4.4, §5).
func forwardReach(reg *ikgraph.Registry, activeChildren map[ikgraph.ID][]ikgraph.ID, levels [][]ikgraph.ID) {
	for _, level := range levels {
		var g errgroup.Group
		for _, id := range level {
			id := id
			g.Go(func() error {
				forwardReachJoint(reg, id, activeChildren[id])
				return nil
			})
		}
		_ = g.Wait()
	}
}

type contribution struct {
	top    r3.Vector
	rot    mgl64.Quat
	weight float64
	offset r3.Vector // this contributor's weighted anchor_offset term, pre-weighting
}

func forwardReachJoint(reg *ikgraph.Registry, id ikgraph.ID, children []ikgraph.ID) {
	joint, ok := reg.Joint(id)
	if !ok {
		return
	}
	t, ok := reg.Transform(id)
	if !ok {
		return
	}
	q := t.Rotation
	bottom := t.Translation.Sub(spatial.Rotate(q, joint.EffectiveVisualOffset()))
	localZ := t.LocalZ()

	var contribs []contribution
	for _, c := range children {
		childJoint, ok := reg.Joint(c)
		if !ok {
			continue
		}
		childT, ok := reg.Transform(c)
		if !ok {
			continue
		}
		childAnchor := childT.Translation.Sub(spatial.Rotate(childT.Rotation, childJoint.EffectiveVisualOffset()))

		dir, ok := spatial.SafeNormalize(childAnchor.Sub(bottom))
		if !ok {
			dir = t.LocalY()
			reg.WarnDegenerateDirection(id.String())
		}
		rot := spatial.AlignAxes(spatial.ToMgl(spatial.UnitY), spatial.ToMgl(dir), spatial.ToMgl(spatial.UnitZ), spatial.ToMgl(localZ))

		weight := 1.0
		if rc, ok := reg.Constraint(c); ok {
			rot = constraint.TwistSwingClamp(rot, rc)
			weight = rc.Weight
		}
		contribs = append(contribs, contribution{top: childAnchor, rot: rot, weight: weight, offset: childJoint.AnchorOffset})
	}

	if e, eT, ok := reg.EffectorOf(id); ok {
		effPos := eT.Translation
		if e.JointCenter {
			effPos = effPos.Add(spatial.Rotate(eT.Rotation, spatial.UnitY.Mul(joint.Length/2)))
		}
		var rot mgl64.Quat
		if e.JointCopyRotation {
			rot = eT.Rotation
		} else {
			dir, ok := spatial.SafeNormalize(effPos.Sub(bottom))
			if !ok {
				dir = t.LocalY()
				reg.WarnDegenerateDirection(id.String())
			}
			rot = spatial.AlignAxes(spatial.ToMgl(spatial.UnitY), spatial.ToMgl(dir), spatial.ToMgl(spatial.UnitZ), spatial.ToMgl(localZ))
		}
		if rc, ok := reg.Constraint(id); ok {
			rot = constraint.TwistSwingClamp(rot, rc)
		}
		contribs = append(contribs, contribution{top: effPos, rot: rot, weight: e.Weight})
	}

	if len(contribs) == 0 {
		return
	}

	var demandedTop r3.Vector
	var demandedRot mgl64.Quat
	if len(contribs) == 1 {
		demandedTop = contribs[0].top.Add(spatial.Rotate(q, contribs[0].offset))
		demandedRot = contribs[0].rot
	} else {
		totalWeight := 0.0
		var weightedOffset r3.Vector
		quats := make([]mgl64.Quat, 0, len(contribs))
		weights := make([]float64, 0, len(contribs))
		for _, c := range contribs {
			w := c.weight
			if w < 0 {
				w = 0
			}
			demandedTop = demandedTop.Add(c.top.Mul(w))
			weightedOffset = weightedOffset.Add(c.offset.Mul(w))
			totalWeight += w
			quats = append(quats, c.rot)
			weights = append(weights, w)
		}
		if totalWeight > 1e-12 {
			demandedTop = demandedTop.Mul(1 / totalWeight)
			weightedOffset = weightedOffset.Mul(1 / totalWeight)
		}
		demandedTop = demandedTop.Add(spatial.Rotate(q, weightedOffset))
		demandedRot = spatial.WeightedAverage(quats, weights, q)
	}

	newRotation := spatial.Unroll(demandedRot, q)

	var newTranslation r3.Vector
	if joint.Length == 0 {
		newTranslation = t.Translation
	} else {
		newBottom := demandedTop.Sub(spatial.Rotate(newRotation, spatial.UnitY.Mul(joint.Length)))
		newTranslation = newBottom.Add(spatial.Rotate(newRotation, joint.EffectiveVisualOffset()))
	}

	// SetTransform discards non-finite results and warns, keeping the prior
	// value in place (spec.md §7 NonFiniteState), so no separate guard is
	// needed here.
	reg.SetTransform(id, ikgraph.JointTransform{Translation: newTranslation, Rotation: newRotation, Scale: t.Scale})
}
