// Package ddg implements the data-dependence graph: a directed multigraph
// over MoveNodes with typed DataDependenceEdges, a builder from a basic
// block, path/cycle queries, and the copy-over/drop/restore operations the
// scheduler's reversible transformations rely on.
package ddg

import (
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/schederr"
)

// Weighting selects which edge-weight function MaxSourceDistance uses.
type Weighting int8

const (
	// WeightingDefault is a heuristic weighting (every edge costs at
	// least 1), used while estimating front priority.
	WeightingDefault Weighting = iota
	// WeightingReal uses only the real, schedule-derived edge latencies.
	WeightingReal
)

// DDG is a directed multigraph of MoveNodes connected by DataDependenceEdges,
// owning the set of ProgramOperations those nodes belong to.
type DDG struct {
	nodes      ids.Arena[move.MoveNode]
	programOps ids.Arena[move.ProgramOperation]
	edges      ids.Arena[Edge]

	// out[n] / in[n] hold edge IDs, kept sorted for deterministic
	// iteration.
	out map[ids.ID][]ids.ID
	in  map[ids.ID][]ids.ID

	// dedup index: fast lookup of edges by (kind, tail, head).
	byKeys map[edgeKey]ids.ID

	// cached source-distance memo, invalidated on any edge mutation or
	// weighting change.
	distCache     map[ids.ID]int
	distWeighting Weighting
	distValid     bool

	// II, set by loop-mode scheduling; 0 means "not a loop body" and
	// resource/edge-latency math is unbounded.
	ii int
}

// New creates an empty DDG.
func New() *DDG {
	return &DDG{
		out:    make(map[ids.ID][]ids.ID),
		in:     make(map[ids.ID][]ids.ID),
		byKeys: make(map[edgeKey]ids.ID),
	}
}

// II returns the current initiation interval (0 if this DDG is not a loop
// body under modulo scheduling).
func (g *DDG) II() int { return g.ii }

// SetII sets the initiation interval used by EdgeLatency's back-edge
// discount.
func (g *DDG) SetII(ii int) { g.ii = ii }

// AddNode inserts a MoveNode and returns its stable id.
func (g *DDG) AddNode(n move.MoveNode) ids.ID {
	id := g.nodes.New(n)
	g.Node(id).ID = id
	return id
}

// Node returns a pointer to the MoveNode for id.
func (g *DDG) Node(id ids.ID) *move.MoveNode {
	return g.nodes.Get(id)
}

// Nodes returns every live (non-dropped) node id, ascending.
func (g *DDG) Nodes() []ids.ID {
	return g.nodes.Live()
}

// AllNodes returns every allocated node id, dropped or not, ascending.
// Used by loop-II search to reset a trial schedule back to a clean slate
// between II guesses.
func (g *DDG) AllNodes() []ids.ID {
	return g.nodes.All()
}

// AddProgramOperation inserts a ProgramOperation and returns its id.
func (g *DDG) AddProgramOperation(po move.ProgramOperation) ids.ID {
	id := g.programOps.New(po)
	g.ProgramOperation(id).ID = id
	return id
}

// ProgramOperation returns a pointer to the ProgramOperation for id.
func (g *DDG) ProgramOperation(id ids.ID) *move.ProgramOperation {
	return g.programOps.Get(id)
}

// ProgramOperations returns every program operation id, ascending.
func (g *DDG) ProgramOperations() []ids.ID {
	return g.programOps.Live()
}

// AddEdge installs e, deduplicating against any existing edge with the same
// (kind, tail, head) key by replacing it in place. Adding a zero-distance
// edge that would close a cycle on the non-back-edge subgraph is a
// schederr.GraphInvariantViolation.
func (g *DDG) AddEdge(e Edge) (ids.ID, error) {
	if e.LoopDistance == 0 && g.reachable(e.Head, e.Tail) {
		return ids.Invalid, &schederr.GraphInvariantViolation{
			NodeID: uint32(e.Tail),
			Reason: "adding this edge would introduce a cycle in the non-back-edge subgraph",
		}
	}

	key := edgeKey{kind: e.Kind, tail: e.Tail, head: e.Head}
	if existing, ok := g.byKeys[key]; ok {
		*g.edges.Get(existing) = e
		g.edges.Get(existing).ID = existing
		g.invalidateDistances()
		return existing, nil
	}

	id := g.edges.New(e)
	g.edges.Get(id).ID = id
	g.byKeys[key] = id
	g.out[e.Tail] = insertSorted(g.out[e.Tail], id)
	g.in[e.Head] = insertSorted(g.in[e.Head], id)
	g.invalidateDistances()
	return id, nil
}

func insertSorted(s []ids.ID, id ids.ID) []ids.ID {
	s = append(s, id)
	ids.SortIDs(s)
	return s
}

// Edge returns a pointer to the edge for id.
func (g *DDG) Edge(id ids.ID) *Edge {
	return g.edges.Get(id)
}

// FindEdge returns the edge currently installed for (kind, tail, head), if
// any. Transformations use this to decide between adding a fresh edge and
// replacing one they must restore on undo.
func (g *DDG) FindEdge(kind EdgeKind, tail, head ids.ID) (ids.ID, bool) {
	id, ok := g.byKeys[edgeKey{kind: kind, tail: tail, head: head}]
	return id, ok
}

// RemoveEdge detaches id from the adjacency and dedup indices (used when a
// transformation like bypass makes an edge obsolete) and returns a copy of
// its value so the caller can reinstate it via AddEdge on undo.
func (g *DDG) RemoveEdge(id ids.ID) Edge {
	e := *g.edges.Get(id)
	key := edgeKey{kind: e.Kind, tail: e.Tail, head: e.Head}
	delete(g.byKeys, key)
	g.out[e.Tail] = removeID(g.out[e.Tail], id)
	g.in[e.Head] = removeID(g.in[e.Head], id)
	g.invalidateDistances()
	return e
}

func removeID(s []ids.ID, id ids.ID) []ids.ID {
	for i, v := range s {
		if v == id {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// OutEdges returns the ids of edges leaving n, ascending.
func (g *DDG) OutEdges(n ids.ID) []ids.ID {
	return g.out[n]
}

// InEdges returns the ids of edges entering n, ascending.
func (g *DDG) InEdges(n ids.ID) []ids.ID {
	return g.in[n]
}

// reachable performs a bounded DFS over non-back-edges (LoopDistance==0)
// to see if to is reachable from from; used only to guard cycle creation,
// so it intentionally ignores dropped nodes (a dropped node cannot be the
// tail of a live path).
func (g *DDG) reachable(from, to ids.ID) bool {
	if from == ids.Invalid || to == ids.Invalid {
		return false
	}
	seen := make(map[ids.ID]bool)
	stack := []ids.ID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for _, eid := range g.out[n] {
			e := g.edges.Get(eid)
			if e.LoopDistance != 0 {
				continue
			}
			stack = append(stack, e.Head)
		}
	}
	return false
}

// DropNode marks n as logically removed (Nodes stops listing it) without
// destroying the node itself; its incident edges stay in the adjacency
// lists, so callers walking edges check IsDropped, and
// RestoreNodeFromParent can bring it back with the same id and edges.
func (g *DDG) DropNode(n ids.ID) {
	g.nodes.Drop(n)
	g.invalidateDistances()
}

// RestoreNodeFromParent undoes DropNode.
func (g *DDG) RestoreNodeFromParent(n ids.ID) {
	g.nodes.Restore(n)
	g.invalidateDistances()
}

// IsDropped reports whether n is currently logically removed.
func (g *DDG) IsDropped(n ids.ID) bool {
	return g.nodes.IsDropped(n)
}

func (g *DDG) invalidateDistances() {
	g.distCache = nil
	g.distValid = false
}
