package ikgraph

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/fabrikik/ik/ikerr"
	"github.com/fabrikik/ik/logging"
)

// jointSlot is a joint's working copy, guarded by its own mutex when the
// registry runs in per-entry locking mode (spec.md §5, §9).
type jointSlot struct {
	mu         sync.RWMutex
	joint      Joint
	transform  JointTransform
	constraint *RotationConstraint
}

// effectorSlot pairs an EndEffector with its own world transform (the actual
// IK target pose the host moves around — a hand-target empty, a cursor, a
// pole target), imported the same way a joint's transform is.
type effectorSlot struct {
	effector  EndEffector
	transform JointTransform
}

// baseSlot pairs a Base with its own world transform (the fixed anchor a
// chain's root joint is pinned to).
type baseSlot struct {
	base      Base
	transform JointTransform
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithCoarseLock switches the registry to a single whole-table lock instead
// of per-entry locks, trading throughput for simplicity (spec.md §9's
// documented fallback).
func WithCoarseLock() Option {
	return func(r *Registry) { r.coarse = true }
}

// Registry is the canonical store of joints, bases, effectors, and the
// parent/child forest (spec.md §4.3). It mirrors host add/remove events
// atomically and keeps base↔base-joint and effector↔effector-joint markers
// bidirectionally consistent.
type Registry struct {
	logger logging.Logger
	coarse bool

	structMu sync.RWMutex // guards maps/forest shape: add/remove of any entity or edge

	joints   map[ID]*jointSlot
	coarseMu sync.RWMutex // only used when coarse is true, guards every jointSlot's fields at once

	effectors       map[ID]*effectorSlot // keyed by the effector's own ID
	effectorOfJoint map[ID]ID            // joint ID -> effector ID (the "terminated by this effector" marker)

	bases       map[ID]*baseSlot
	baseOfJoint map[ID]ID // joint ID -> base ID (the BaseJoint marker)

	parent   map[ID]ID
	children map[ID][]ID

	warned *ikerr.Collector
}

// NewRegistry constructs an empty registry. logger may be nil, in which case
// a logger named "ikgraph" writing to stderr at INFO level is used.
func NewRegistry(logger logging.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = logging.NewLogger("ikgraph")
	}
	r := &Registry{
		logger:          logger.Sublogger("ikgraph"),
		joints:          make(map[ID]*jointSlot),
		effectors:       make(map[ID]*effectorSlot),
		effectorOfJoint: make(map[ID]ID),
		bases:           make(map[ID]*baseSlot),
		baseOfJoint:     make(map[ID]ID),
		parent:          make(map[ID]ID),
		children:        make(map[ID][]ID),
		warned:          &ikerr.Collector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BeginFrame resets the per-frame dedup of dangling-reference warnings. The
// solver calls this at the start of every Solve.
func (r *Registry) BeginFrame() {
	r.structMu.Lock()
	r.warned = &ikerr.Collector{}
	r.structMu.Unlock()
}

// Warnings returns the recoverable errors accumulated since the last
// BeginFrame, combined via go.uber.org/multierr, or nil if none occurred.
func (r *Registry) Warnings() error {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return r.warned.Err()
}

func (r *Registry) warn(e *ikerr.Error) {
	before := len(multierr.Errors(r.warned.Err()))
	r.warned.Add(e)
	if len(multierr.Errors(r.warned.Err())) == before {
		return // already reported since the last BeginFrame
	}
	r.logger.Warnw(e.Error(), "kind", e.Kind.Error(), "entity", e.Entity, "id", e.ID)
}

// WarnDegenerateDirection records an ErrDegenerateDirection for the named
// joint (spec.md §7: desired direction was zero-length, fell back to the
// joint's current local Y). Called by the solver, which owns the forward-
// and backward-reach math this warning arises from.
func (r *Registry) WarnDegenerateDirection(jointID string) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	r.warn(&ikerr.Error{Kind: ikerr.ErrDegenerateDirection, Entity: "joint", ID: jointID})
}

// RegisterJoint installs (or updates, if id already exists) a joint and its
// JointTransform slot. Idempotent.
func (r *Registry) RegisterJoint(id ID, j Joint) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	slot, ok := r.joints[id]
	if !ok {
		slot = &jointSlot{transform: IdentityTransform}
		r.joints[id] = slot
	}
	slot.joint = j
}

// SetConstraint attaches (or replaces) id's rotation constraint. id must
// already be registered as a joint; otherwise this is a no-op plus a
// DanglingReference warning.
func (r *Registry) SetConstraint(id ID, rc RotationConstraint) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	slot, ok := r.joints[id]
	if !ok {
		r.warn(ikerr.DanglingReference("joint", id.String()))
		return
	}
	c := rc
	slot.constraint = &c
}

// Constraint returns id's rotation constraint, if any.
func (r *Registry) Constraint(id ID) (RotationConstraint, bool) {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	slot, ok := r.joints[id]
	if !ok || slot.constraint == nil {
		return RotationConstraint{}, false
	}
	return *slot.constraint, true
}

// UnregisterJoint removes id from every map, together with the effector and
// base that target it. The edges to its former parent and children are
// removed too: the parent's children list drops id, and each former child is
// left with no parent.
func (r *Registry) UnregisterJoint(id ID) {
	r.structMu.Lock()
	defer r.structMu.Unlock()

	if effID, ok := r.effectorOfJoint[id]; ok {
		delete(r.effectors, effID)
		delete(r.effectorOfJoint, id)
	}
	if baseID, ok := r.baseOfJoint[id]; ok {
		delete(r.bases, baseID)
		delete(r.baseOfJoint, id)
	}

	if p, ok := r.parent[id]; ok {
		r.children[p] = removeID(r.children[p], id)
	}
	delete(r.parent, id)
	for _, child := range r.children[id] {
		delete(r.parent, child)
	}
	delete(r.children, id)
	delete(r.joints, id)
}

func removeID(ids []ID, target ID) []ID {
	return lo.Filter(ids, func(id ID, _ int) bool { return id != target })
}

// SetParent makes parent the parent of child, appending child to parent's
// ordered children list. Idempotent: calling it again with the same edge is
// a no-op; calling it with a different parent re-parents child.
func (r *Registry) SetParent(child, parent ID) {
	r.structMu.Lock()
	defer r.structMu.Unlock()

	if _, ok := r.joints[child]; !ok {
		r.warn(ikerr.DanglingReference("child", child.String()))
		return
	}
	if _, ok := r.joints[parent]; !ok {
		r.warn(ikerr.DanglingReference("parent", parent.String()))
		return
	}
	if old, ok := r.parent[child]; ok {
		if old == parent {
			return
		}
		r.children[old] = removeID(r.children[old], child)
	}
	r.parent[child] = parent
	if !lo.Contains(r.children[parent], child) {
		r.children[parent] = append(r.children[parent], child)
	}
}

// ClearParent removes child's parent edge, if any.
func (r *Registry) ClearParent(child ID) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	if p, ok := r.parent[child]; ok {
		r.children[p] = removeID(r.children[p], child)
		delete(r.parent, child)
	}
}

// Parent returns child's parent, if any.
func (r *Registry) Parent(child ID) (ID, bool) {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	p, ok := r.parent[child]
	return p, ok
}

// Children returns a copy of id's ordered children list.
func (r *Registry) Children(id ID) []ID {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return append([]ID(nil), r.children[id]...)
}

// RegisterEffector installs an end effector keyed by its own ID and marks
// its target joint as effector-terminated. If the target doesn't exist yet,
// the relationship is skipped and a DanglingReference is warned; call again
// once the joint is registered.
func (r *Registry) RegisterEffector(id ID, e EndEffector) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	if _, ok := r.joints[e.Target]; !ok {
		r.warn(ikerr.DanglingReference("effector", e.Target.String()))
		return
	}
	if oldEff, ok := r.effectorOfJoint[e.Target]; ok && oldEff != id {
		delete(r.effectors, oldEff)
	}
	existing := r.effectors[id]
	t := IdentityTransform
	if existing != nil {
		t = existing.transform
	}
	r.effectors[id] = &effectorSlot{effector: e, transform: t}
	r.effectorOfJoint[e.Target] = id
}

// UnregisterEffector removes the effector and its target joint's marker.
func (r *Registry) UnregisterEffector(id ID) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	e, ok := r.effectors[id]
	if !ok {
		return
	}
	delete(r.effectors, id)
	if cur, ok := r.effectorOfJoint[e.effector.Target]; ok && cur == id {
		delete(r.effectorOfJoint, e.effector.Target)
	}
}

// EffectorOf returns the effector terminating joint id and its current
// world transform, if any.
func (r *Registry) EffectorOf(joint ID) (EndEffector, JointTransform, bool) {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	effID, ok := r.effectorOfJoint[joint]
	if !ok {
		return EndEffector{}, JointTransform{}, false
	}
	e, ok := r.effectors[effID]
	if !ok {
		return EndEffector{}, JointTransform{}, false
	}
	return e.effector, e.transform, true
}

// ImportEffectorTransform writes t into id's working world transform — the
// host-supplied target pose. Unknown ids are a DanglingReference, skipped.
func (r *Registry) ImportEffectorTransform(id ID, t JointTransform) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	slot, ok := r.effectors[id]
	if !ok {
		r.warn(ikerr.DanglingReference("effector", id.String()))
		return
	}
	slot.transform = t
}

// RegisterBase installs a base keyed by its own ID and marks its target
// joint as the root of a chain (BaseJoint). If the target already has a
// parent, that's a MisconfiguredBase — the base is still recorded but the
// marker is withheld so the solver's backward reach skips this chain
// (spec.md §7 MisconfiguredBase).
func (r *Registry) RegisterBase(id ID, b Base) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	if _, ok := r.joints[b.Target]; !ok {
		r.warn(ikerr.DanglingReference("base", b.Target.String()))
		return
	}
	existing := r.bases[id]
	t := IdentityTransform
	if existing != nil {
		t = existing.transform
	}
	if _, hasParent := r.parent[b.Target]; hasParent {
		r.warn(&ikerr.Error{Kind: ikerr.ErrMisconfiguredBase, Entity: "base", ID: b.Target.String()})
		r.bases[id] = &baseSlot{base: b, transform: t}
		return
	}
	if oldBase, ok := r.baseOfJoint[b.Target]; ok && oldBase != id {
		delete(r.bases, oldBase)
	}
	r.bases[id] = &baseSlot{base: b, transform: t}
	r.baseOfJoint[b.Target] = id
}

// UnregisterBase removes the base and its target joint's BaseJoint marker.
func (r *Registry) UnregisterBase(id ID) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	b, ok := r.bases[id]
	if !ok {
		return
	}
	delete(r.bases, id)
	if cur, ok := r.baseOfJoint[b.base.Target]; ok && cur == id {
		delete(r.baseOfJoint, b.base.Target)
	}
}

// BaseOf returns the base anchoring joint id as a root, and its current
// world transform (the fixed anchor pose), if any.
func (r *Registry) BaseOf(joint ID) (Base, JointTransform, bool) {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	baseID, ok := r.baseOfJoint[joint]
	if !ok {
		return Base{}, JointTransform{}, false
	}
	b, ok := r.bases[baseID]
	if !ok {
		return Base{}, JointTransform{}, false
	}
	return b.base, b.transform, true
}

// ImportBaseTransform writes t into id's working world transform — the
// host-supplied anchor pose. Unknown ids are a DanglingReference, skipped.
func (r *Registry) ImportBaseTransform(id ID, t JointTransform) {
	r.structMu.Lock()
	defer r.structMu.Unlock()
	slot, ok := r.bases[id]
	if !ok {
		r.warn(ikerr.DanglingReference("base", id.String()))
		return
	}
	slot.transform = t
}

// Joint returns id's Joint parameters.
func (r *Registry) Joint(id ID) (Joint, bool) {
	slot := r.slot(id)
	if slot == nil {
		return Joint{}, false
	}
	r.rLockSlot(slot)
	defer r.rUnlockSlot(slot)
	return slot.joint, true
}

func (r *Registry) slot(id ID) *jointSlot {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return r.joints[id]
}

func (r *Registry) lockSlot(s *jointSlot) {
	if r.coarse {
		r.coarseMu.Lock()
		return
	}
	s.mu.Lock()
}

func (r *Registry) unlockSlot(s *jointSlot) {
	if r.coarse {
		r.coarseMu.Unlock()
		return
	}
	s.mu.Unlock()
}

func (r *Registry) rLockSlot(s *jointSlot) {
	if r.coarse {
		r.coarseMu.RLock()
		return
	}
	s.mu.RLock()
}

func (r *Registry) rUnlockSlot(s *jointSlot) {
	if r.coarse {
		r.coarseMu.RUnlock()
		return
	}
	s.mu.RUnlock()
}

// JointIDs returns every registered joint ID, in no particular order.
func (r *Registry) JointIDs() []ID {
	r.structMu.RLock()
	defer r.structMu.RUnlock()
	return lo.Keys(r.joints)
}
