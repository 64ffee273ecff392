package solver

import (
	"context"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/fabrikik/ik/ikgraph"
	"github.com/fabrikik/ik/logging"
	"github.com/fabrikik/ik/spatial"
)

func pt(x, y, z float64) r3.Vector { return r3.Vector{X: x, Y: y, Z: z} }

// buildChain registers n bones of the given length stacked along +Y, rooted at the
// origin with a Base, each child of the previous, and returns their IDs
// root-first.
func buildChain(t *testing.T, reg *ikgraph.Registry, n int, length float64) []ikgraph.ID {
	ids := make([]ikgraph.ID, n)
	for i := 0; i < n; i++ {
		ids[i] = ikgraph.NewID()
		reg.RegisterJoint(ids[i], ikgraph.Joint{Length: length})
		reg.Import(ids[i], ikgraph.JointTransform{
			Translation: pt(0, float64(i)*length, 0),
			Rotation:    mgl64.QuatIdent(),
			Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
		})
		if i > 0 {
			reg.SetParent(ids[i], ids[i-1])
		}
	}
	baseID := ikgraph.NewID()
	reg.RegisterBase(baseID, ikgraph.Base{Target: ids[0]})
	reg.ImportBaseTransform(baseID, ikgraph.IdentityTransform)
	return ids
}

func TestS1FourSegmentPlanarReach(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	chain := buildChain(t, reg, 4, 1)
	tip := chain[len(chain)-1]

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: tip, Weight: 1})
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(3, 3, 0),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t), WithIterations(15))
	result, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	tipT, ok := reg.Transform(tip)
	test.That(t, ok, test.ShouldBeTrue)
	tipPos := tipT.Translation.Add(spatial.Rotate(tipT.Rotation, pt(0, 1, 0)))
	dist := tipPos.Sub(pt(3, 3, 0)).Norm()
	test.That(t, dist, test.ShouldBeLessThanOrEqualTo, 0.05)
	test.That(t, result.Iterations, test.ShouldBeLessThanOrEqualTo, 15)

	for _, id := range chain {
		tr, ok := reg.Transform(id)
		test.That(t, ok, test.ShouldBeTrue)
		mag := math.Sqrt(tr.Rotation.W*tr.Rotation.W + tr.Rotation.V.Dot(tr.Rotation.V))
		test.That(t, mag, test.ShouldAlmostEqual, 1.0, 1e-5)
	}
}

func TestS2UnreachableTargetExtendsChain(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	chain := buildChain(t, reg, 4, 1)
	tip := chain[len(chain)-1]

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: tip, Weight: 1})
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(10, 0, 0),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	for _, id := range chain {
		tr, ok := reg.Transform(id)
		test.That(t, ok, test.ShouldBeTrue)
		y := spatial.Rotate(tr.Rotation, pt(0, 1, 0))
		test.That(t, y.Dot(pt(1, 0, 0)), test.ShouldBeGreaterThanOrEqualTo, 0.999)
	}

	tipT, _ := reg.Transform(tip)
	tipPos := tipT.Translation.Add(spatial.Rotate(tipT.Rotation, pt(0, 1, 0)))
	test.That(t, tipPos.X, test.ShouldAlmostEqual, 4.0, 0.05)
}

func TestLengthPreservedAfterSolve(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	chain := buildChain(t, reg, 3, 1.5)
	tip := chain[len(chain)-1]

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: tip, Weight: 1})
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(1, 3, 1),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	for i := 1; i < len(chain); i++ {
		parentJoint, _ := reg.Joint(chain[i-1])
		parentT, _ := reg.Transform(chain[i-1])
		childJoint, _ := reg.Joint(chain[i])
		childT, _ := reg.Transform(chain[i])

		parentTop := parentT.Translation.
			Sub(spatial.Rotate(parentT.Rotation, parentJoint.EffectiveVisualOffset())).
			Add(spatial.Rotate(parentT.Rotation, pt(0, parentJoint.Length, 0)))
		childAnchor := childT.Translation.Sub(spatial.Rotate(childT.Rotation, childJoint.EffectiveVisualOffset()))

		test.That(t, childAnchor.Sub(parentTop).Norm(), test.ShouldBeLessThanOrEqualTo, 1e-4*4.5)
	}
}

func TestHemisphereContinuityAfterSolve(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	chain := buildChain(t, reg, 4, 1)
	tip := chain[len(chain)-1]

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: tip, Weight: 1})
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(1, 2, 2),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	for i := 1; i < len(chain); i++ {
		pT, _ := reg.Transform(chain[i-1])
		cT, _ := reg.Transform(chain[i])
		dot := pT.Rotation.W*cT.Rotation.W + pT.Rotation.V.Dot(cT.Rotation.V)
		test.That(t, dot, test.ShouldBeGreaterThanOrEqualTo, -1e-9)
	}
}

// buildBranch registers a trunk of trunkLen unit bones from the origin,
// splitting at the trunk tip into two branches of branchLen unit bones each,
// rooted with a Base at the trunk's first joint. It returns the trunk IDs
// (root-first) and the two branch tip chains (each root-first, trunk
// excluded).
func buildBranch(t *testing.T, reg *ikgraph.Registry, trunkLen, branchLen int) (trunk, branchA, branchB []ikgraph.ID) {
	trunk = make([]ikgraph.ID, trunkLen)
	for i := 0; i < trunkLen; i++ {
		trunk[i] = ikgraph.NewID()
		reg.RegisterJoint(trunk[i], ikgraph.Joint{Length: 1})
		reg.Import(trunk[i], ikgraph.JointTransform{
			Translation: pt(0, float64(i), 0),
			Rotation:    mgl64.QuatIdent(),
			Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
		})
		if i > 0 {
			reg.SetParent(trunk[i], trunk[i-1])
		}
	}
	baseID := ikgraph.NewID()
	reg.RegisterBase(baseID, ikgraph.Base{Target: trunk[0]})
	reg.ImportBaseTransform(baseID, ikgraph.IdentityTransform)

	build := func(parent ikgraph.ID, n int) []ikgraph.ID {
		ids := make([]ikgraph.ID, n)
		for i := 0; i < n; i++ {
			ids[i] = ikgraph.NewID()
			reg.RegisterJoint(ids[i], ikgraph.Joint{Length: 1})
			reg.Import(ids[i], ikgraph.JointTransform{
				Translation: pt(0, float64(trunkLen+i), 0),
				Rotation:    mgl64.QuatIdent(),
				Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
			})
			if i == 0 {
				reg.SetParent(ids[i], parent)
			} else {
				reg.SetParent(ids[i], ids[i-1])
			}
		}
		return ids
	}
	branchA = build(trunk[trunkLen-1], branchLen)
	branchB = build(trunk[trunkLen-1], branchLen)
	return trunk, branchA, branchB
}

func TestS3TwoEffectorsSharedTrunkBisects(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	trunk, branchA, branchB := buildBranch(t, reg, 2, 2)

	effA := ikgraph.NewID()
	reg.RegisterEffector(effA, ikgraph.EndEffector{Target: branchA[len(branchA)-1], Weight: 1})
	reg.ImportEffectorTransform(effA, ikgraph.JointTransform{
		Translation: pt(-1, 3, 0), Rotation: mgl64.QuatIdent(), Scale: r3.Vector{X: 1, Y: 1, Z: 1},
	})
	effB := ikgraph.NewID()
	reg.RegisterEffector(effB, ikgraph.EndEffector{Target: branchB[len(branchB)-1], Weight: 1})
	reg.ImportEffectorTransform(effB, ikgraph.JointTransform{
		Translation: pt(1, 3, 0), Rotation: mgl64.QuatIdent(), Scale: r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t), WithIterations(20))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	rootT, _ := reg.Transform(trunk[0])
	trunkDir := spatial.Rotate(rootT.Rotation, pt(0, 1, 0))
	test.That(t, trunkDir.Dot(pt(0, 1, 0)), test.ShouldBeGreaterThanOrEqualTo, 0.999)

	tipA, _ := reg.Transform(branchA[len(branchA)-1])
	posA := tipA.Translation.Add(spatial.Rotate(tipA.Rotation, pt(0, 1, 0)))
	test.That(t, posA.Sub(pt(-1, 3, 0)).Norm(), test.ShouldBeLessThanOrEqualTo, 0.05)

	tipB, _ := reg.Transform(branchB[len(branchB)-1])
	posB := tipB.Translation.Add(spatial.Rotate(tipB.Rotation, pt(0, 1, 0)))
	test.That(t, posB.Sub(pt(1, 3, 0)).Norm(), test.ShouldBeLessThanOrEqualTo, 0.05)
}

func TestS4WeakPoleEffectorTiltsTrunkWithoutBreakingPrimaries(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	trunk, branchA, branchB := buildBranch(t, reg, 2, 2)

	effA := ikgraph.NewID()
	reg.RegisterEffector(effA, ikgraph.EndEffector{Target: branchA[len(branchA)-1], Weight: 1})
	reg.ImportEffectorTransform(effA, ikgraph.JointTransform{
		Translation: pt(-1, 3, 0), Rotation: mgl64.QuatIdent(), Scale: r3.Vector{X: 1, Y: 1, Z: 1},
	})
	effB := ikgraph.NewID()
	reg.RegisterEffector(effB, ikgraph.EndEffector{Target: branchB[len(branchB)-1], Weight: 1})
	reg.ImportEffectorTransform(effB, ikgraph.JointTransform{
		Translation: pt(1, 3, 0), Rotation: mgl64.QuatIdent(), Scale: r3.Vector{X: 1, Y: 1, Z: 1},
	})
	// Pole-like weak effector terminating the trunk tip itself.
	effPole := ikgraph.NewID()
	reg.RegisterEffector(effPole, ikgraph.EndEffector{Target: trunk[len(trunk)-1], Weight: 0.01})
	reg.ImportEffectorTransform(effPole, ikgraph.JointTransform{
		Translation: pt(0, 1, 1), Rotation: mgl64.QuatIdent(), Scale: r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t), WithIterations(20))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	tipA, _ := reg.Transform(branchA[len(branchA)-1])
	posA := tipA.Translation.Add(spatial.Rotate(tipA.Rotation, pt(0, 1, 0)))
	test.That(t, posA.Sub(pt(-1, 3, 0)).Norm(), test.ShouldBeLessThanOrEqualTo, 0.05)

	tipB, _ := reg.Transform(branchB[len(branchB)-1])
	posB := tipB.Translation.Add(spatial.Rotate(tipB.Rotation, pt(0, 1, 0)))
	test.That(t, posB.Sub(pt(1, 3, 0)).Norm(), test.ShouldBeLessThanOrEqualTo, 0.05)

	rootT, _ := reg.Transform(trunk[0])
	trunkDir := spatial.Rotate(rootT.Rotation, pt(0, 1, 0))
	test.That(t, trunkDir.Z, test.ShouldBeGreaterThan, 0)
}

func TestS5ConstrainedElbowClampsBend(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	chain := buildChain(t, reg, 2, 1)
	elbow := chain[1]
	tip := elbow

	rc := ikgraph.RotationConstraint{
		Identity: mgl64.QuatIdent(),
		Weight:   1,
		Strength: 1,
		XMax:     0.5,
		ZMax:     0.5,
		YMax:     math.Pi,
		SplitDir: pt(0, 1, 0),
	}
	reg.SetConstraint(elbow, rc)

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: tip, Weight: 1})
	// Demands roughly 1.2 rad of bend at the elbow, beyond the 0.5 rad limit.
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(math.Sin(1.2), 1+math.Cos(1.2), 0),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t), WithIterations(15))
	result, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	rootT, _ := reg.Transform(chain[0])
	elbowT, _ := reg.Transform(elbow)
	rootDir := spatial.Rotate(rootT.Rotation, pt(0, 1, 0))
	elbowDir := spatial.Rotate(elbowT.Rotation, pt(0, 1, 0))
	bend := math.Acos(clampDotTest(rootDir.Dot(elbowDir)))
	test.That(t, bend, test.ShouldBeLessThanOrEqualTo, 0.5+1e-3)
	test.That(t, result.Residual.Norm(), test.ShouldBeGreaterThan, 0)
}

func clampDotTest(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func TestS6BaseOffsetWithAnchorOffset(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	id := ikgraph.NewID()
	reg.RegisterJoint(id, ikgraph.Joint{Length: 1, AnchorOffset: pt(0, 0, 0.2)})
	reg.Import(id, ikgraph.JointTransform{
		Translation: pt(0, 0, 0.2),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})
	baseID := ikgraph.NewID()
	reg.RegisterBase(baseID, ikgraph.Base{Target: id})
	reg.ImportBaseTransform(baseID, ikgraph.IdentityTransform)

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: id, Weight: 1})
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(0, 1, 0.2),
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t), WithIterations(10))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	tr, _ := reg.Transform(id)
	anchor := tr.Translation.Sub(spatial.Rotate(tr.Rotation, pt(0, 0, 0)))
	test.That(t, anchor.Sub(pt(0, 0, 0.2)).Norm(), test.ShouldBeLessThanOrEqualTo, 0.01)

	tipPos := tr.Translation.Add(spatial.Rotate(tr.Rotation, pt(0, 1, 0)))
	test.That(t, tipPos.Sub(pt(0, 1, 0.2)).Norm(), test.ShouldBeLessThanOrEqualTo, 0.01)
}

func TestIdempotentAtExistingSolution(t *testing.T) {
	reg := ikgraph.NewRegistry(logging.NewTestLogger(t))
	chain := buildChain(t, reg, 2, 1)
	tip := chain[len(chain)-1]

	effID := ikgraph.NewID()
	reg.RegisterEffector(effID, ikgraph.EndEffector{Target: tip, Weight: 1})
	reg.ImportEffectorTransform(effID, ikgraph.JointTransform{
		Translation: pt(0, 2, 0), // already satisfied: straight chain already reaches here
		Rotation:    mgl64.QuatIdent(),
		Scale:       r3.Vector{X: 1, Y: 1, Z: 1},
	})

	s := New(logging.NewTestLogger(t), WithIterations(5))
	_, err := s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	before := make(map[ikgraph.ID]ikgraph.JointTransform, len(chain))
	for _, id := range chain {
		before[id], _ = reg.Transform(id)
	}

	_, err = s.Solve(context.Background(), reg)
	test.That(t, err, test.ShouldBeNil)

	for _, id := range chain {
		after, _ := reg.Transform(id)
		test.That(t, after.Translation.Sub(before[id].Translation).Norm(), test.ShouldBeLessThanOrEqualTo, 1e-6)
	}
}
