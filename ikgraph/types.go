// Package ikgraph is the joint-graph bookkeeper: the canonical registry of
// joints, bases, effectors, and parent/child relationships, kept coherent
// with a host scene graph via the Register*/Unregister*/Import/Export
// surface (spec.md §3, §4.3, §6).
package ikgraph

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/fabrikik/ik/constraint"
)

// ID is an opaque, stable entity identifier. It carries no structural
// meaning — never an index, never ordered — matching spec.md §3's
// "Entities referenced by opaque stable IDs."
type ID uuid.UUID

// NilID is the zero value of ID, used to mean "no such reference".
var NilID = ID(uuid.Nil)

// NewID mints a fresh stable ID for a joint, effector, or base.
func NewID() ID { return ID(uuid.New()) }

// String implements fmt.Stringer.
func (id ID) String() string { return uuid.UUID(id).String() }

// Joint is a bone of fixed length with a visual/anchor offset (spec.md §3).
type Joint struct {
	// Length is the bone's fixed length for the solver's duration.
	Length float64
	// VisualOffset nudges the joint's stored translation to its drawable center.
	VisualOffset r3.Vector
	// AnchorOffset offsets the bond between a parent's tip and this joint's bottom anchor.
	AnchorOffset r3.Vector
	// Halfway means Translation denotes the bone's center rather than its bottom;
	// EffectiveVisualOffset folds this into an implicit VisualOffset = Ŷ·Length/2
	// (spec.md §9's resolved Open Question).
	Halfway bool
}

// EffectiveVisualOffset returns j.VisualOffset, folding in the halfway
// bone-center convention.
func (j Joint) EffectiveVisualOffset() r3.Vector {
	if !j.Halfway {
		return j.VisualOffset
	}
	return j.VisualOffset.Add(r3.Vector{X: 0, Y: j.Length / 2, Z: 0})
}

// JointTransform is a joint's world-space pose. Scale is carried but never
// consulted by the solver (spec.md §9 "Scale").
type JointTransform struct {
	Scale       r3.Vector
	Rotation    mgl64.Quat
	Translation r3.Vector
}

// IdentityTransform is the zero-translation, unit-scale, unit-rotation pose.
var IdentityTransform = JointTransform{
	Scale:    r3.Vector{X: 1, Y: 1, Z: 1},
	Rotation: mgl64.QuatIdent(),
}

// LocalY returns the joint's local Y axis (bone direction) in world space.
func (jt JointTransform) LocalY() r3.Vector {
	return normalizedOrY(jt.Rotation.Rotate(mgl64.Vec3{0, 1, 0}))
}

// LocalZ returns the joint's local Z axis (secondary alignment hint) in world space.
func (jt JointTransform) LocalZ() r3.Vector {
	return normalizedOrY(jt.Rotation.Rotate(mgl64.Vec3{0, 0, 1}))
}

func normalizedOrY(v mgl64.Vec3) r3.Vector {
	n := v.Len()
	if n < 1e-12 {
		return r3.Vector{X: 0, Y: 1, Z: 0}
	}
	return r3.Vector{X: v[0] / n, Y: v[1] / n, Z: v[2] / n}
}

// EndEffector targets a joint and describes how its tip should align to it
// (spec.md §3).
type EndEffector struct {
	Target            ID
	JointCenter       bool
	JointCopyRotation bool
	Weight            float64
}

// Base anchors a chain's root joint (spec.md §3).
type Base struct {
	Target ID
}

// RotationConstraint is the per-joint rotational limit; it's exactly
// constraint.Rotation, kept as an alias so callers need only import one
// package for the constraint's data shape.
type RotationConstraint = constraint.Rotation
