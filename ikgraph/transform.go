package ikgraph

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/samber/lo"

	"github.com/fabrikik/ik/ikerr"
	"github.com/fabrikik/ik/spatial"
)

// Import writes t into id's working JointTransform (the host's "pull world
// transforms into the registry" step, spec.md §4.3). Unknown ids are a
// DanglingReference, skipped.
func (r *Registry) Import(id ID, t JointTransform) {
	slot := r.slot(id)
	if slot == nil {
		r.structMu.Lock()
		r.warn(ikerr.DanglingReference("joint", id.String()))
		r.structMu.Unlock()
		return
	}
	r.lockSlot(slot)
	defer r.unlockSlot(slot)
	slot.transform = t
}

// ImportAll imports every entry of transforms, skipping any id not
// registered as a joint.
func (r *Registry) ImportAll(transforms map[ID]JointTransform) {
	for id, t := range transforms {
		r.Import(id, t)
	}
}

// Transform returns id's current working JointTransform.
func (r *Registry) Transform(id ID) (JointTransform, bool) {
	slot := r.slot(id)
	if slot == nil {
		return JointTransform{}, false
	}
	r.rLockSlot(slot)
	defer r.rUnlockSlot(slot)
	return slot.transform, true
}

// SetTransform overwrites id's working JointTransform, discarding the
// update in place of the prior value if it is non-finite (spec.md §7
// NonFiniteState) rather than ever writing back NaN/Inf.
func (r *Registry) SetTransform(id ID, t JointTransform) {
	slot := r.slot(id)
	if slot == nil {
		return
	}
	if !finiteTransform(t) {
		r.structMu.Lock()
		r.warn(&ikerr.Error{Kind: ikerr.ErrNonFiniteState, Entity: "joint", ID: id.String()})
		r.structMu.Unlock()
		return
	}
	r.lockSlot(slot)
	defer r.unlockSlot(slot)
	slot.transform = t
}

func finiteTransform(t JointTransform) bool {
	return finiteVec(t.Translation) && finiteVec(t.Scale) && finiteQuat(t.Rotation)
}

func finiteVec(v r3.Vector) bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func finiteQuat(q mgl64.Quat) bool {
	return isFinite(q.W) && isFinite(q.V[0]) && isFinite(q.V[1]) && isFinite(q.V[2])
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Export returns id's final world transform, for the host to read back and
// write into its own scene graph directly (ForceGlobalTransform mode).
func (r *Registry) Export(id ID) (JointTransform, bool) {
	return r.Transform(id)
}

// ExportLocal returns id's transform expressed relative to hostParentWorld,
// the local-frame hand-off spec.md §4.3 describes for hosts whose hierarchy
// is parent-relative: local = inverse(hostParentWorld) * world.
func (r *Registry) ExportLocal(id ID, hostParentWorld JointTransform) (JointTransform, bool) {
	world, ok := r.Transform(id)
	if !ok {
		return JointTransform{}, false
	}
	parentRotInv := hostParentWorld.Rotation.Normalize().Inverse()
	localRot := parentRotInv.Mul(world.Rotation).Normalize()
	localTrans := spatial.Rotate(parentRotInv, world.Translation.Sub(hostParentWorld.Translation))
	return JointTransform{
		Scale:       world.Scale,
		Rotation:    localRot,
		Translation: localTrans,
	}, true
}

// EffectorJoints returns every joint ID terminated by an effector and
// having no children — the seed wavefront for forward reach (spec.md §4.4).
func (r *Registry) EffectorJoints() []ID {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return lo.Filter(lo.Keys(r.effectorOfJoint), func(id ID, _ int) bool {
		return len(r.children[id]) == 0
	})
}

// AllEffectorTerminatedJoints returns every joint terminated by an effector,
// including ones that also have children (spec.md §4.4 forward-reach note:
// "includes effector joints that are not at the end of any chain").
func (r *Registry) AllEffectorTerminatedJoints() []ID {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return lo.Keys(r.effectorOfJoint)
}

// RootJoints returns every joint marked as a chain root by a Base, with no
// JointParent — the seed wavefront for backward reach (spec.md §4.4).
func (r *Registry) RootJoints() []ID {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return lo.Filter(lo.Keys(r.baseOfJoint), func(id ID, _ int) bool {
		_, hasParent := r.parent[id]
		return !hasParent
	})
}
