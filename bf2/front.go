package bf2

import (
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
)

// front is a group of MoveNodes that must be scheduled together because
// they belong to the same ProgramOperation instance: every operand write
// and result read of one operation instance shares a trigger cycle, so
// scheduling one without the others would leave the ProgramOperation's
// ports inconsistent.
//
// Fronts are assembled from shared ProgramOperation membership; the
// archmodel carries no universal register file, so there is no extra
// universal-source coupling to fold in.
type front struct {
	nodes []ids.ID // ascending id, the front's stable identity for determinism
	order []ids.ID // dependency order (sinks first) to schedule the members in
}

// buildFront assembles the front for seed: seed itself, plus every other
// live, unscheduled node belonging to the same ProgramOperation(s) seed
// participates in. A group member's operation edges to its own fellow
// members don't count against its readiness — they're exactly the edges
// this front's own scheduling step resolves together — but an edge to a
// live node outside the group still must already be scheduled, the same
// rule a lone seed is held to.
func buildFront(g *ddg.DDG, sel *selector, seed ids.ID) *front {
	group := map[ids.ID]bool{seed: true}
	collectGroup(g, seed, group)

	var members []ids.ID
	for n := range group {
		if g.IsDropped(n) || g.Node(n).IsScheduled() {
			continue
		}
		if n == seed || readyIgnoring(g, n, group) {
			members = append(members, n)
		}
	}
	ids.SortIDs(members)
	memberSet := make(map[ids.ID]bool, len(members))
	for _, n := range members {
		memberSet[n] = true
	}
	return &front{nodes: members, order: sinksFirst(g, memberSet, members)}
}

// sinksFirst orders members so that a node is scheduled only after every
// fellow member it has a group-internal out-edge to (its operation
// successors within this same front) has already been scheduled — the
// bottom-up bound a node's own scheduling step computes from ddg.LatestCycle
// only sees a successor's cycle once that successor is actually assigned.
// Falls back to ascending id for any node the pass can't place (a cycle
// within the group, which operation-edge construction should never
// produce).
func sinksFirst(g *ddg.DDG, members map[ids.ID]bool, ascending []ids.ID) []ids.ID {
	placed := make(map[ids.ID]bool, len(ascending))
	order := make([]ids.ID, 0, len(ascending))
	for len(order) < len(ascending) {
		progressed := false
		for _, n := range ascending {
			if placed[n] {
				continue
			}
			ready := true
			for _, eid := range g.OutEdges(n) {
				e := g.Edge(eid)
				if e.LoopDistance > 0 {
					continue
				}
				if members[e.Head] && !placed[e.Head] {
					ready = false
					break
				}
			}
			if ready {
				order = append(order, n)
				placed[n] = true
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	for _, n := range ascending {
		if !placed[n] {
			order = append(order, n)
		}
	}
	return order
}

// collectGroup adds every input/output node of every ProgramOperation seed
// belongs to into group.
func collectGroup(g *ddg.DDG, seed ids.ID, group map[ids.ID]bool) {
	n := g.Node(seed)
	for _, poID := range []ids.ID{n.AsInputOf, n.AsOutputOf} {
		if poID == ids.Invalid {
			continue
		}
		po := g.ProgramOperation(poID)
		for _, idx := range po.InputIndices() {
			group[po.Inputs[idx]] = true
		}
		for _, idx := range po.OutputIndices() {
			group[po.Outputs[idx]] = true
		}
	}
}

// readyIgnoring reports whether every live out-edge head of n is either
// already scheduled or itself a member of group (about to be scheduled in
// the same front).
func readyIgnoring(g *ddg.DDG, n ids.ID, group map[ids.ID]bool) bool {
	for _, eid := range g.OutEdges(n) {
		e := g.Edge(eid)
		if e.LoopDistance > 0 || group[e.Head] {
			continue
		}
		head := g.Node(e.Head)
		if head == nil || g.IsDropped(e.Head) {
			continue
		}
		if !head.IsScheduled() {
			return false
		}
	}
	return true
}
