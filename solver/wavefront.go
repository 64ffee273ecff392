package solver

import "github.com/fabrikik/ik/ikgraph"

// buildWavefront computes the set of joints that lie on some path from a
// root to an effector-terminated joint (the only joints forward reach ever
// has to move), each such joint's active children (the subset of its
// children also in that set), and a level assignment suitable for
// depth-synchronized parallel processing: level 0 is effector-terminated
// leaves with no active children; level n+1 is any joint all of whose active
// children have settled by level n (spec.md §9 "wavefront traversal without
// recursion").
func buildWavefront(reg *ikgraph.Registry) (active map[ikgraph.ID]bool, activeChildren map[ikgraph.ID][]ikgraph.ID, levels [][]ikgraph.ID) {
	active = make(map[ikgraph.ID]bool)
	for _, eff := range reg.AllEffectorTerminatedJoints() {
		id := eff
		for {
			if active[id] {
				break
			}
			active[id] = true
			p, ok := reg.Parent(id)
			if !ok {
				break
			}
			id = p
		}
	}

	activeChildren = make(map[ikgraph.ID][]ikgraph.ID, len(active))
	pending := make(map[ikgraph.ID]int, len(active))
	for id := range active {
		var kids []ikgraph.ID
		for _, c := range reg.Children(id) {
			if active[c] {
				kids = append(kids, c)
			}
		}
		activeChildren[id] = kids
		pending[id] = len(kids)
	}

	level := make(map[ikgraph.ID]int, len(active))
	var frontier []ikgraph.ID
	for id, n := range pending {
		if n == 0 {
			frontier = append(frontier, id)
			level[id] = 0
		}
	}

	for len(frontier) > 0 {
		levels = append(levels, frontier)
		var next []ikgraph.ID
		for _, id := range frontier {
			p, ok := reg.Parent(id)
			if !ok || !active[p] {
				continue
			}
			if level[id]+1 > level[p] {
				level[p] = level[id] + 1
			}
			pending[p]--
			if pending[p] == 0 {
				next = append(next, p)
			}
		}
		frontier = next
	}

	return active, activeChildren, levels
}
