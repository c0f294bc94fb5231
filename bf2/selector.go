package bf2

import (
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
)

// selector picks the next candidate node for bottom-up scheduling. A node
// headed only by dropped (dead) nodes is ready regardless of edge kind,
// so no EdgeFilter is involved — readiness only cares about live heads.
type selector struct {
	g *ddg.DDG
}

// next returns the lowest-id live, unscheduled, not-already-in-frontier
// node with no live unscheduled successor, or false if
// none is ready (every remaining node still has a live unscheduled
// successor, or none remain).
func (s *selector) next() (ids.ID, bool) {
	for _, n := range s.g.Nodes() {
		node := s.g.Node(n)
		if node.Move.Cycle != move.Unscheduled {
			continue
		}
		if node.Flags.InFrontier {
			continue
		}
		if s.isReady(n) {
			return n, true
		}
	}
	return ids.Invalid, false
}

// isReady reports whether every live node reachable via an intra-iteration
// out-edge from n is already scheduled. Loop-carried back edges don't
// gate readiness: a loop body's recurrence would otherwise leave every
// node waiting on its own next-iteration consumers forever.
func (s *selector) isReady(n ids.ID) bool {
	for _, eid := range s.g.OutEdges(n) {
		e := s.g.Edge(eid)
		if e.LoopDistance > 0 {
			continue
		}
		head := s.g.Node(e.Head)
		if head == nil || s.g.IsDropped(e.Head) {
			continue
		}
		if !head.IsScheduled() {
			return false
		}
	}
	return true
}
