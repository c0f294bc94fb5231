// Package transform implements the named local transformations the BF2
// scheduler composes: bypass (early/late/loop/post-pass), dead-result
// elimination (early/late/loop/post-pass), operand share, operand swap,
// register-copy insertion, guard conversion, push-up/push-down, and
// unschedule/reschedule. Each is built on
// reversible.Transform, so every transformation the scheduler tries can be
// undone uniformly on backtrack.
package transform

import (
	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
	"github.com/tta-tools/bubblefish/rm"
)

// Context bundles the mutable graph/resource state every transformation in
// this package reads and writes.
type Context struct {
	Graph *ddg.DDG
	RM    *rm.ResourceManager
	Ops   *opset.Registry
	Mach  *archmodel.Model
	// LiveOut, when non-nil, is the set of registers live out of the basic
	// block. Dead-result elimination refuses to drop a write to any register
	// in the set; a nil map means no liveness was supplied, in which case
	// only DRE forms that can locally prove the value consumed (the
	// bypass-child form) may fire, and the post-pass sweep drops nothing.
	LiveOut map[string]bool
}

// singleRAWProducer reports whether dst's only incoming non-guard register
// RAW edge comes from src (the precondition early/late bypass both need).
func singleRAWProducer(g *ddg.DDG, dst, src ids.ID) bool {
	found := false
	for _, eid := range g.InEdges(dst) {
		e := g.Edge(eid)
		if e.Kind != ddg.EdgeRegister || e.Type != ddg.TypeRAW || e.GuardUse {
			continue
		}
		if e.Tail != src {
			return false
		}
		found = true
	}
	return found
}

// hasRemainingConsumer reports whether node still has any outgoing RAW or
// operation edge.
func hasRemainingConsumer(g *ddg.DDG, node ids.ID) bool {
	for _, eid := range g.OutEdges(node) {
		e := g.Edge(eid)
		if e.Type == ddg.TypeRAW || e.Kind == ddg.EdgeOperation {
			return true
		}
	}
	return false
}

func nodeFUPort(n *move.MoveNode) (fu, port string, ok bool) {
	if n.Move.Source.Kind == move.SourceFUOutputPort {
		return n.Move.Source.FU, n.Move.Source.Port, true
	}
	return "", "", false
}
