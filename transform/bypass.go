package transform

import (
	"errors"

	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/schederr"
)

// bypassEffect rewrites dst's Source to src's Source, the shared payload
// of early, late, and loop bypass. It detaches the RAW
// register edge(s) from src to dst that the bypass has satisfied (so a
// later DRE pass sees src's true remaining consumer set), and re-anchors
// dst on the producing operation's trigger with the output latency — the
// value still only exists once the producer's pipeline has run, the bypass
// just skips the register in between.
type bypassEffect struct {
	ctx          *Context
	dst, src     ids.ID
	newSrc       move.Source
	loopDistance int
	original     move.Source
	removedEdges []ddg.Edge
	addedEdge    ids.ID
}

func (e *bypassEffect) Apply() error {
	g := e.ctx.Graph
	n := g.Node(e.dst)
	e.original = n.Move.Source
	n.Move.Source = e.newSrc

	for _, eid := range append([]ids.ID(nil), g.InEdges(e.dst)...) {
		edge := g.Edge(eid)
		if edge.Kind == ddg.EdgeRegister && edge.Type == ddg.TypeRAW && edge.Tail == e.src {
			e.removedEdges = append(e.removedEdges, g.RemoveEdge(eid))
		}
	}

	if trigger, weight, ok := producerTrigger(g, e.src); ok && trigger != e.dst {
		if _, exists := g.FindEdge(ddg.EdgeOperation, trigger, e.dst); !exists {
			id, err := g.AddEdge(ddg.Edge{
				Kind: ddg.EdgeOperation, Type: ddg.TypeRAW,
				Tail: trigger, Head: e.dst,
				Weight: weight, LoopDistance: e.loopDistance,
			})
			if err != nil {
				// Leave no partial state: put the source and edges back.
				n.Move.Source = e.original
				for _, edge := range e.removedEdges {
					_, _ = g.AddEdge(edge)
				}
				e.removedEdges = nil
				return err
			}
			e.addedEdge = id
		}
	}
	return nil
}

func (e *bypassEffect) Undo() {
	if e.addedEdge != ids.Invalid {
		e.ctx.Graph.RemoveEdge(e.addedEdge)
	}
	e.ctx.Graph.Node(e.dst).Move.Source = e.original
	for _, edge := range e.removedEdges {
		_, _ = e.ctx.Graph.AddEdge(edge)
	}
}

// producerTrigger resolves the trigger node and output latency of the
// operation that produces src's value, so a bypassed consumer can be
// re-anchored on the pipeline start instead of the removed register edge.
func producerTrigger(g *ddg.DDG, src ids.ID) (trigger ids.ID, weight int, ok bool) {
	n := g.Node(src)
	if n.AsOutputOf == ids.Invalid {
		return ids.Invalid, 0, false
	}
	trigger, ok = g.TriggerNode(n.AsOutputOf)
	if !ok {
		return ids.Invalid, 0, false
	}
	if eid, found := g.FindEdge(ddg.EdgeOperation, trigger, src); found {
		weight = g.Edge(eid).Weight
	}
	return trigger, weight, true
}

// NewEarlyBypass rewrites dst's source to src's source before dst is
// scheduled, when the DDG proves src is dst's only RAW producer. An
// optional DRE-early child (dropping src if it
// has no other consumer) is attempted automatically and folded in as a
// post child; its failure does not fail the bypass itself.
func NewEarlyBypass(ctx *Context, dst, src ids.ID) (*reversible.Transform, error) {
	if !singleRAWProducer(ctx.Graph, dst, src) {
		return nil, schederr.Wrap("early bypass", errors.New("dst does not have src as its sole RAW producer"))
	}
	srcNode := ctx.Graph.Node(src)
	t := reversible.New("early-bypass", &bypassEffect{ctx: ctx, dst: dst, src: src, newSrc: srcNode.Move.Source})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	if dre, err := NewDeadResultEliminationEarly(ctx, src); err == nil {
		_ = t.RunChild(reversible.Post, dre)
	}
	return t, nil
}

// NewLoopBypass is NewEarlyBypass across a loop back-edge: src is read
// from the previous iteration via the prolog RM rather than the current
// DDG edge. This transform does not touch the prolog RM; bf2's scheduler
// materializes the copy there at rm.PROLOG_CYCLE_BIAS+cycle after it has
// applied this transform and placed dst.
func NewLoopBypass(ctx *Context, dst, src ids.ID, loopDistance int) (*reversible.Transform, error) {
	if loopDistance < 1 {
		return nil, schederr.Wrap("loop bypass", errors.New("loop bypass requires a back-edge with loop distance >= 1"))
	}
	srcNode := ctx.Graph.Node(src)
	t := reversible.New("loop-bypass", &bypassEffect{ctx: ctx, dst: dst, src: src, newSrc: srcNode.Move.Source, loopDistance: loopDistance})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// unassignReassignEffect unassigns a scheduled node from the RM, lets the
// caller mutate it (source rewrite), then reassigns at a new cycle,
// undoing both in reverse.
type unassignReassignEffect struct {
	ctx        *Context
	node       ids.ID
	oldCycle   int
	oldReq     rm.Request
	newCycle   int
	newReq     rm.Request
}

func (e *unassignReassignEffect) Apply() error {
	if err := e.ctx.RM.Unassign(e.node); err != nil {
		return err
	}
	n := e.ctx.Graph.Node(e.node)
	n.Move.Cycle = e.newCycle
	e.ctx.RM.Assign(e.newCycle, e.node, e.newReq)
	return nil
}

func (e *unassignReassignEffect) Undo() {
	_ = e.ctx.RM.Unassign(e.node)
	n := e.ctx.Graph.Node(e.node)
	n.Move.Cycle = e.oldCycle
	e.ctx.RM.Assign(e.oldCycle, e.node, e.oldReq)
}

// lateBypassWindow bounds how far below the bypass threshold the
// rescheduling search probes before giving up.
const lateBypassWindow = 64

// NewLateBypass unassigns an already-scheduled dst, rewrites its source to
// bypass an unscheduled producer src, and reschedules it at the best legal
// cycle at least 3 cycles earlier than its original cycle, without going
// below what dst's scheduled predecessors allow. newReq is the resource
// request for the rescheduled move (the caller has already resolved which
// bus/FU it will use).
func NewLateBypass(ctx *Context, dst, src ids.ID, oldReq, newReq rm.Request) (*reversible.Transform, error) {
	n := ctx.Graph.Node(dst)
	if !n.IsScheduled() {
		return nil, schederr.Wrap("late bypass", errors.New("dst must already be scheduled"))
	}
	oldCycle := n.Cycle()
	lo, hasLo := ctx.Graph.EarliestCycle(dst, ddg.EdgeFilter{})
	candidate, ok := 0, false
	for c := oldCycle - 3; c > oldCycle-3-lateBypassWindow; c-- {
		if hasLo && c < lo {
			break
		}
		if ctx.RM.CanAssign(c, dst, newReq) {
			candidate, ok = c, true
			break
		}
	}
	if !ok {
		return nil, schederr.Wrap("late bypass", errors.New("no legal cycle at least 3 earlier than the original"))
	}

	bypass := reversible.New("late-bypass", &bypassEffect{ctx: ctx, dst: dst, src: src, newSrc: ctx.Graph.Node(src).Move.Source})
	if err := bypass.Apply(); err != nil {
		return nil, err
	}

	reschedule := reversible.New("late-bypass-reschedule", &unassignReassignEffect{
		ctx: ctx, node: dst, oldCycle: oldCycle, oldReq: oldReq, newCycle: candidate, newReq: newReq,
	})
	if err := bypass.RunChild(reversible.Post, reschedule); err != nil {
		bypass.Undo()
		return nil, err
	}
	return bypass, nil
}

// guardConversionEffect rewrites a Move's Guard to read a producing FU's
// port-guard directly instead of a register guard.
type guardConversionEffect struct {
	ctx      *Context
	node     ids.ID
	newGuard move.Guard
	original move.Guard
}

func (e *guardConversionEffect) Apply() error {
	n := e.ctx.Graph.Node(e.node)
	e.original = n.Move.Guard
	n.Move.Guard = e.newGuard
	return nil
}

func (e *guardConversionEffect) Undo() {
	e.ctx.Graph.Node(e.node).Move.Guard = e.original
}

// NewGuardConversion rewrites node's guard to the named FU port-guard.
func NewGuardConversion(ctx *Context, node ids.ID, fuPortGuard string) (*reversible.Transform, error) {
	t := reversible.New("guard-conversion", &guardConversionEffect{
		ctx: ctx, node: node, newGuard: move.Guard{Present: true, Register: "", Port: fuPortGuard},
	})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}
