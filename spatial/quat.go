package spatial

import (
	"github.com/go-gl/mathgl/mgl64"
)

// QuatAbs folds q into the positive-W hemisphere of the double cover, so
// that neighbouring quaternions along a chain compare and average
// consistently (spec.md §4.1 "quat_abs").
func QuatAbs(q mgl64.Quat) mgl64.Quat {
	if q.W < 0 {
		return mgl64.Quat{W: -q.W, V: q.V.Mul(-1)}
	}
	return q
}

// Unroll negates q if it points into the opposite hemisphere from ref, i.e.
// if their dot product is negative. Used by the solver's breadth-first
// unroll pass before the first forward reach (spec.md §4.4).
func Unroll(q, ref mgl64.Quat) mgl64.Quat {
	if q.Dot(ref) < 0 {
		return mgl64.Quat{W: -q.W, V: q.V.Mul(-1)}
	}
	return q
}

// TwistSwing decomposes q about the unit axis d into a twist (rotation axis
// parallel to d) and swing (rotation axis perpendicular to d), such that
// swing.Mul(twist) recomposes q up to sign (spec.md §4.1).
func TwistSwing(q mgl64.Quat, axis mgl64.Vec3) (twist, swing mgl64.Quat) {
	proj := axis.Mul(q.V.Dot(axis))
	if proj.Len() < 1e-12 {
		twist = mgl64.QuatIdent()
	} else {
		twist = mgl64.Quat{W: q.W, V: proj}.Normalize()
	}
	swing = q.Mul(twist.Conjugate())
	return twist, swing
}

// AlignAxes returns the rotation that takes primaryAxis onto primaryDir and,
// subject to that, rotates secondaryAxis as close as possible into the
// half-plane spanned by primaryDir and secondaryDir (spec.md §4.1 "two-axis
// alignment"). If either axis degenerates against primaryDir, only the
// primary rotation is returned.
func AlignAxes(primaryAxis, primaryDir, secondaryAxis, secondaryDir mgl64.Vec3) mgl64.Quat {
	primaryAxis = primaryAxis.Normalize()
	primaryDir = primaryDir.Normalize()

	first := mgl64.QuatBetweenVectors(primaryAxis, primaryDir)

	secondaryImage := first.Rotate(secondaryAxis)
	imgOrtho, okImg := rejectNormalizeMgl(secondaryImage, primaryDir)
	dirOrtho, okDir := rejectNormalizeMgl(secondaryDir, primaryDir)
	if !okImg || !okDir {
		return first
	}

	second := mgl64.QuatBetweenVectors(imgOrtho, dirOrtho)
	return second.Mul(first)
}

func rejectNormalizeMgl(v, from mgl64.Vec3) (mgl64.Vec3, bool) {
	from = from.Normalize()
	rej := v.Sub(from.Mul(v.Dot(from)))
	l := rej.Len()
	if l < 1e-9 {
		return mgl64.Vec3{}, false
	}
	return rej.Mul(1 / l), true
}
