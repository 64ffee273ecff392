// Package spatial implements the quaternion and vector math primitives the
// solver and constraint packages are built on: hemisphere folding, twist/swing
// decomposition, two-axis alignment, and weighted quaternion averaging.
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// ToMgl converts a golang/geo point/direction to the go-gl/mathgl vector type
// the quaternion routines in this package operate on.
func ToMgl(v r3.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// ToR3 converts a go-gl/mathgl vector back to the golang/geo type used at
// package boundaries (joint transforms, effector targets).
func ToR3(v mgl64.Vec3) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// Rotate rotates the r3.Vector v by the unit quaternion q.
func Rotate(q mgl64.Quat, v r3.Vector) r3.Vector {
	return ToR3(q.Rotate(ToMgl(v)))
}

// UnitY is the joint's local "points along the bone" axis.
var UnitY = r3.Vector{X: 0, Y: 1, Z: 0}

// UnitZ is the joint's local secondary alignment axis.
var UnitZ = r3.Vector{X: 0, Y: 0, Z: 1}

// SafeNormalize normalizes v, returning ok=false and a zero vector if v has
// near-zero length (spec.md §7 DegenerateDirection).
func SafeNormalize(v r3.Vector) (r3.Vector, bool) {
	n := v.Norm()
	if n < 1e-12 {
		return r3.Vector{}, false
	}
	return v.Mul(1 / n), true
}

// RejectNormalized returns the component of v orthogonal to the unit vector
// from, normalized; ok is false if that component is degenerate (v nearly
// parallel to from).
func RejectNormalized(v, from r3.Vector) (rejected r3.Vector, ok bool) {
	rej := v.Sub(from.Mul(v.Dot(from)))
	return SafeNormalize(rej)
}

// SlerpDirection spherically interpolates between two unit vectors on the
// sphere by t in [0,1]. Used by the constraint kernels to apply `strength`.
func SlerpDirection(a, b r3.Vector, t float64) r3.Vector {
	dot := clampF(a.Dot(b), -1, 1)
	theta := math.Acos(dot)
	if theta < 1e-9 {
		return a
	}
	sinTheta := math.Sin(theta)
	return a.Mul(math.Sin((1-t)*theta) / sinTheta).Add(b.Mul(math.Sin(t*theta) / sinTheta))
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
