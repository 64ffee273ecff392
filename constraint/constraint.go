// Package constraint implements the rotational-limit kernels applied during
// forward and backward reach: cone clamp, ellipse clamp, and combined
// twist/swing clamp, all operating in the parent's rest frame (spec.md §4.2).
package constraint

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"github.com/fabrikik/ik/spatial"
)

// Rotation is the per-joint rotational limit (spec.md §3 RotationConstraint).
type Rotation struct {
	// Identity is the rest/bind orientation relative to the parent.
	Identity mgl64.Quat
	// Weight is this joint's contribution weight in the parent's weighted average (>=0).
	Weight float64
	// Strength interpolates the clamp toward the constrained direction; 1 = fully
	// constrained, 0 = unconstrained.
	Strength float64

	// XMax, ZMax are the elliptical swing cone's half-angles (radians, >=0).
	XMax, ZMax float64
	// YMax is the twist half-angle (radians, >=0), used symmetrically unless
	// HasTwistRange is set.
	YMax float64
	// YMin, HasTwistRange give an asymmetric twist range [YMin, YMax] when set.
	YMin          float64
	HasTwistRange bool

	// SplitDir is the unit axis twist is separated from swing along, expressed
	// in the parent's rest frame.
	SplitDir r3.Vector
}

// DefaultRotation returns a permissive constraint: Strength is 1, but the
// half-angles are all pi, so nothing is clamped until XMax/ZMax/YMax are
// tightened.
func DefaultRotation() Rotation {
	return Rotation{
		Identity: mgl64.QuatIdent(),
		Weight:   1,
		Strength: 1,
		XMax:     math.Pi,
		ZMax:     math.Pi,
		YMax:     math.Pi,
		SplitDir: spatial.UnitY,
	}
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01(v float64) float64 {
	return clampRange(v, 0, 1)
}

// ConeClamp restricts unit direction m to a single half-angle thetaMax
// around unit reference r, then slerps strength of the way from m to the
// clamped direction (spec.md §4.2 "Cone clamp").
func ConeClamp(m, r r3.Vector, thetaMax, strength float64) r3.Vector {
	cosTheta := clampDot(m.Dot(r))
	if cosTheta >= math.Cos(thetaMax) {
		return m
	}
	ortho, ok := spatial.RejectNormalized(m, r)
	if !ok {
		// m is antiparallel to r: any orthonormal direction works.
		ortho = arbitraryOrthogonal(r)
	}
	clamped := r.Mul(math.Cos(thetaMax)).Add(ortho.Mul(math.Sin(thetaMax)))
	clamped, _ = spatial.SafeNormalize(clamped)
	return spatial.SlerpDirection(m, clamped, clamp01(strength))
}

// EllipseClamp restricts unit direction m to an elliptical cone of half-angles
// thetaXMax, thetaZMax around the orthonormal frame (r, x, z), then slerps
// strength of the way toward the clamped direction (spec.md §4.2 "Ellipse clamp").
func EllipseClamp(m, r, x, z r3.Vector, thetaXMax, thetaZMax, strength float64) r3.Vector {
	mx := m.Dot(x)
	my := m.Dot(r)
	mz := m.Dot(z)

	sx := math.Sin(thetaXMax)
	sz := math.Sin(thetaZMax)
	var ellipse float64
	if sx > 1e-9 {
		ellipse += (mx * mx) / (sx * sx)
	}
	if sz > 1e-9 {
		ellipse += (mz * mz) / (sz * sz)
	}

	if ellipse <= 1 {
		return m
	}

	scale := 1 / math.Sqrt(ellipse)
	cx := mx * scale
	cz := mz * scale
	cy := math.Sqrt(math.Max(0, 1-cx*cx-cz*cz))
	if my < 0 {
		cy = -cy
	}

	clamped := r.Mul(cy).Add(x.Mul(cx)).Add(z.Mul(cz))
	clamped, _ = spatial.SafeNormalize(clamped)
	return spatial.SlerpDirection(m, clamped, clamp01(strength))
}

// TwistSwingClamp clamps rotation current (expressed in the parent's world
// frame) against rc by decomposing it into twist (about rc.SplitDir) and
// swing in the parent's rest frame, clamping each against its own limit, and
// recomposing it back into the parent's frame (spec.md §4.2 "Twist-swing clamp").
func TwistSwingClamp(current mgl64.Quat, rc Rotation) mgl64.Quat {
	rest := rc.Identity.Normalize()
	local := rest.Conjugate().Mul(current).Normalize()

	axis := spatial.ToMgl(rc.SplitDir).Normalize()
	twist, swing := spatial.TwistSwing(local, axis)

	twistClamped := clampTwist(twist, rc.SplitDir, rc)
	swingClamped := clampSwing(swing, rc.SplitDir, rc)

	constrained := swingClamped.Mul(twistClamped).Normalize()
	full := rest.Mul(constrained).Normalize()

	result := mgl64.QuatSlerp(current, full, clamp01(rc.Strength)).Normalize()
	return spatial.QuatAbs(result)
}

func clampTwist(twist mgl64.Quat, axis r3.Vector, rc Rotation) mgl64.Quat {
	// Fold to W >= 0 so the extracted angle is the short way round, in [0, pi].
	angle, sign := twistAngle(spatial.QuatAbs(twist), spatial.ToMgl(axis))
	signed := angle * sign

	lo, hi := -rc.YMax, rc.YMax
	if rc.HasTwistRange {
		lo, hi = rc.YMin, rc.YMax
	}
	if signed < lo {
		signed = lo
	}
	if signed > hi {
		signed = hi
	}
	return mgl64.QuatRotate(signed, spatial.ToMgl(axis))
}

// twistAngle extracts the unsigned rotation angle of a quaternion known to be
// a pure twist about axis, plus the sign of its projection onto axis.
func twistAngle(twist mgl64.Quat, axis mgl64.Vec3) (angle, sign float64) {
	angle = 2 * math.Atan2(twist.V.Len(), twist.W)
	sign = 1
	if twist.V.Dot(axis) < 0 {
		sign = -1
	}
	return angle, sign
}

func clampSwing(swing mgl64.Quat, axis r3.Vector, rc Rotation) mgl64.Quat {
	dir := spatial.Rotate(swing, axis)
	x, z := orthoBasis(axis)
	clampedDir := EllipseClamp(dir, axis, x, z, rc.XMax, rc.ZMax, 1)
	return mgl64.QuatBetweenVectors(spatial.ToMgl(axis), spatial.ToMgl(clampedDir))
}

// orthoBasis returns an arbitrary orthonormal pair (x, z) perpendicular to
// the unit vector r, used whenever the constraint doesn't separately track a
// secondary in-cone axis.
func orthoBasis(r r3.Vector) (x, z r3.Vector) {
	x = arbitraryOrthogonal(r)
	z = r.Cross(x)
	z, _ = spatial.SafeNormalize(z)
	return x, z
}

func arbitraryOrthogonal(r r3.Vector) r3.Vector {
	ref := r3.Vector{X: 0, Y: 0, Z: 1}
	if math.Abs(r.Dot(ref)) > 0.999 {
		ref = r3.Vector{X: 1, Y: 0, Z: 0}
	}
	ortho, ok := spatial.RejectNormalized(ref, r)
	if !ok {
		ortho = r3.Vector{X: 1, Y: 0, Z: 0}
	}
	return ortho
}

func clampDot(d float64) float64 {
	return clampRange(d, -1, 1)
}
