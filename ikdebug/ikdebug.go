// Package ikdebug generates pure debug geometry — joint axis arrows and
// constraint-cone/ellipse boundary curves — for an external renderer to
// draw. It never renders anything itself (spec.md §6: "one
// implementation-defined debug rendering ... is optional and purely
// derived from the state above").
package ikdebug

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/fabrikik/ik/ikgraph"
	"github.com/fabrikik/ik/spatial"
)

// Segment is a single line from Start to End, the unit a renderer draws as
// one arrow or edge.
type Segment struct {
	Start, End r3.Vector
}

// AxisPair is the pair of debug arrows the original joint gizmo draws: the
// bone's Y axis (full length) and its Z secondary hint (half length).
type AxisPair struct {
	Y Segment
	Z Segment
}

// Axes returns the Y/Z axis arrows for joint j at world transform t,
// matching the original joint_directional_gizmos arrow pair: a full-length
// arrow along local Y from the bone's bottom anchor, and a half-length arrow
// along local Z from the same point.
func Axes(j ikgraph.Joint, t ikgraph.JointTransform) AxisPair {
	anchor := t.Translation.Sub(spatial.Rotate(t.Rotation, j.EffectiveVisualOffset()))
	up := t.LocalY()
	forward := t.LocalZ()
	return AxisPair{
		Y: Segment{Start: anchor, End: anchor.Add(up.Mul(j.Length))},
		Z: Segment{Start: anchor, End: anchor.Add(forward.Mul(j.Length * 0.5))},
	}
}

// Cone returns segments+1 points (the last repeating the first) sampling the
// boundary circle of a single half-angle thetaMax cone around reference r,
// for a renderer to draw as a closed polyline — the geometric shape
// constraint.ConeClamp enforces.
func Cone(r3Ref r3.Vector, thetaMax float64, segments int) []r3.Vector {
	if segments < 3 {
		segments = 3
	}
	ref, ok := spatial.SafeNormalize(r3Ref)
	if !ok {
		ref = spatial.UnitY
	}
	x, z := coneBasis(ref)
	points := make([]r3.Vector, segments+1)
	for i := 0; i <= segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		dir := ref.Mul(math.Cos(thetaMax)).
			Add(x.Mul(math.Sin(thetaMax) * math.Cos(a))).
			Add(z.Mul(math.Sin(thetaMax) * math.Sin(a)))
		points[i] = dir
	}
	return points
}

// Ellipse returns segments+1 points (the last repeating the first) sampling
// the boundary curve of an elliptical cone with half-angles thetaXMax, thetaZMax around the
// orthonormal frame (r, x, z) — the shape constraint.EllipseClamp enforces.
func Ellipse(r, x, z r3.Vector, thetaXMax, thetaZMax float64, segments int) []r3.Vector {
	if segments < 3 {
		segments = 3
	}
	points := make([]r3.Vector, segments+1)
	for i := 0; i <= segments; i++ {
		a := 2 * math.Pi * float64(i) / float64(segments)
		cx := math.Sin(thetaXMax) * math.Cos(a)
		cz := math.Sin(thetaZMax) * math.Sin(a)
		cy := math.Sqrt(math.Max(0, 1-cx*cx-cz*cz))
		points[i] = r.Mul(cy).Add(x.Mul(cx)).Add(z.Mul(cz))
	}
	return points
}

func coneBasis(r r3.Vector) (x, z r3.Vector) {
	ref := r3.Vector{X: 0, Y: 0, Z: 1}
	if math.Abs(r.Dot(ref)) > 0.999 {
		ref = r3.Vector{X: 1, Y: 0, Z: 0}
	}
	x, ok := spatial.RejectNormalized(ref, r)
	if !ok {
		x = r3.Vector{X: 1, Y: 0, Z: 0}
	}
	z = r.Cross(x)
	z, _ = spatial.SafeNormalize(z)
	return x, z
}
