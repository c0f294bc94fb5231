package ddg

import (
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
)

// EdgeFilter selects which incident edges a cycle query should ignore:
// register WARs and WAWs, guard uses, FU-state edges, or edges internal
// to one operation.
type EdgeFilter struct {
	IgnoreWAR           bool
	IgnoreWAW           bool
	IgnoreGuard         bool
	IgnoreFUState       bool
	IgnoreSameOperation bool
}

func (f EdgeFilter) skip(g *DDG, e *Edge) bool {
	if f.IgnoreWAR && e.Type == TypeWAR {
		return true
	}
	if f.IgnoreWAW && e.Type == TypeWAW {
		return true
	}
	if f.IgnoreGuard && e.GuardUse {
		return true
	}
	if f.IgnoreFUState && e.Kind == EdgeFUState {
		return true
	}
	if f.IgnoreSameOperation && e.Kind == EdgeOperation {
		tail := g.Node(e.Tail)
		head := g.Node(e.Head)
		if tail != nil && head != nil && tail.AsInputOf != ids.Invalid && tail.AsInputOf == head.AsInputOf {
			return true
		}
	}
	return false
}

// EdgeLatency computes the scheduling latency of e: the operation's
// declared output latency for result edges, 1 cycle between an
// operand write and its trigger, 1 cycle for a register or return-address
// RAW (bypass removes the edge from the graph entirely rather than zeroing
// its latency, so this layer never needs to special-case it), 0 for
// everything else, minus k*ii for a back-edge of loop distance k.
func (g *DDG) EdgeLatency(e *Edge) int {
	var base int
	switch {
	case e.Kind == EdgeOperation && e.Type == TypeTrigger:
		base = 1
	case e.Kind == EdgeOperation:
		base = e.Weight
	case e.Kind == EdgeRegister && e.Type == TypeRAW:
		base = 1
	case e.Kind == EdgeRetAddr:
		base = 1
	default:
		base = 0
	}
	if e.LoopDistance > 0 && g.ii > 0 {
		base -= e.LoopDistance * g.ii
	}
	return base
}

// EarliestCycle returns the earliest cycle n may be scheduled at, given the
// cycles already assigned to its predecessors: the max over every
// non-filtered incoming edge of cycle(tail) + latency(edge). Returns
// (move.Unscheduled, false) if no qualifying predecessor is scheduled
// yet.
func (g *DDG) EarliestCycle(n ids.ID, filter EdgeFilter) (int, bool) {
	best := move.Unscheduled
	found := false
	for _, eid := range g.in[n] {
		e := g.Edge(eid)
		if filter.skip(g, e) {
			continue
		}
		tail := g.Node(e.Tail)
		if tail == nil || !tail.IsScheduled() {
			continue
		}
		cand := tail.Cycle() + g.EdgeLatency(e)
		if !found || cand > best {
			best = cand
			found = true
		}
	}
	return best, found
}

// LatestCycle is EarliestCycle's symmetric counterpart over outgoing edges:
// the min over every non-filtered outgoing edge of cycle(head) -
// latency(edge).
func (g *DDG) LatestCycle(n ids.ID, filter EdgeFilter) (int, bool) {
	best := 0
	found := false
	for _, eid := range g.out[n] {
		e := g.Edge(eid)
		if filter.skip(g, e) {
			continue
		}
		head := g.Node(e.Head)
		if head == nil || !head.IsScheduled() {
			continue
		}
		cand := head.Cycle() - g.EdgeLatency(e)
		if !found || cand < best {
			best = cand
			found = true
		}
	}
	return best, found
}

// MaxSourceDistance returns the longest path, in the chosen weighting, from
// any source (a node with no incoming non-back edges) to n. The result is
// cached and invalidated on any edge mutation or a weighting change.
func (g *DDG) MaxSourceDistance(n ids.ID, w Weighting) int {
	if !g.distValid || g.distWeighting != w {
		g.distCache = make(map[ids.ID]int)
		g.distWeighting = w
		g.distValid = true
	}
	if v, ok := g.distCache[n]; ok {
		return v
	}
	visiting := make(map[ids.ID]bool)
	v := g.longestPathTo(n, w, visiting)
	g.distCache[n] = v
	return v
}

func (g *DDG) longestPathTo(n ids.ID, w Weighting, visiting map[ids.ID]bool) int {
	if v, ok := g.distCache[n]; ok {
		return v
	}
	if visiting[n] {
		// Back-edge cycle guard: treat as a source at this depth.
		return 0
	}
	visiting[n] = true
	defer delete(visiting, n)

	best := 0
	for _, eid := range g.in[n] {
		e := g.Edge(eid)
		if e.LoopDistance > 0 {
			continue // ignore loop-carried back edges for this acyclic walk
		}
		weight := g.EdgeLatency(e)
		if w == WeightingDefault && weight < 1 {
			weight = 1
		}
		cand := g.longestPathTo(e.Tail, w, visiting) + weight
		if cand > best {
			best = cand
		}
	}
	return best
}

// MovesAtCycle returns every scheduled MoveNode id whose cycle equals
// cycle, ascending by id.
func (g *DDG) MovesAtCycle(cycle int) []ids.ID {
	var out []ids.ID
	for _, id := range g.Nodes() {
		if n := g.Node(id); n.IsScheduled() && n.Cycle() == cycle {
			out = append(out, id)
		}
	}
	return out
}

// subgraph builds a DDG containing only nodes/edges selected by keep,
// sharing no mutable state with g.
func (g *DDG) subgraph(keep func(*Edge) bool) *DDG {
	out := New()
	out.ii = g.ii
	remap := make(map[ids.ID]ids.ID)
	for _, nid := range g.nodes.All() {
		newID := out.nodes.New(*g.Node(nid))
		if g.nodes.IsDropped(nid) {
			out.nodes.Drop(newID)
		}
		remap[nid] = newID
	}
	for _, eid := range g.edges.All() {
		if !g.edgeLive(eid) {
			continue // detached by RemoveEdge; still arena-resident but no longer part of the graph
		}
		e := *g.Edge(eid)
		if !keep(&e) {
			continue
		}
		e.Tail = remap[e.Tail]
		e.Head = remap[e.Head]
		_, _ = out.AddEdge(e)
	}
	return out
}

// edgeLive reports whether id is still present in its tail's adjacency list,
// i.e. has not been detached by RemoveEdge (which leaves the Edge itself
// resident in the arena so an Undo can reinstate its value via AddEdge).
func (g *DDG) edgeLive(id ids.ID) bool {
	e := g.Edge(id)
	for _, out := range g.out[e.Tail] {
		if out == id {
			return true
		}
	}
	return false
}

// CriticalPathGraph returns the subgraph of operation and RAW register
// edges — the edges that actually bound schedule length.
func (g *DDG) CriticalPathGraph() *DDG {
	return g.subgraph(func(e *Edge) bool {
		return e.Kind == EdgeOperation || (e.Kind == EdgeRegister && e.Type == TypeRAW)
	})
}

// TrueDependenceGraph returns the subgraph of RAW edges of every kind
// (register, memory, operation, return address), excluding WAR/WAW
// anti-dependences.
func (g *DDG) TrueDependenceGraph() *DDG {
	return g.subgraph(func(e *Edge) bool {
		return e.Type == TypeRAW
	})
}

// MemoryDependenceGraph returns the subgraph of memory edges only.
func (g *DDG) MemoryDependenceGraph() *DDG {
	return g.subgraph(func(e *Edge) bool {
		return e.Kind == EdgeMemory
	})
}
