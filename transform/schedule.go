package transform

import (
	"errors"

	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/schederr"
)

// rescheduleEffect unassigns node from the RM and, on Undo, restores both
// its cycle and its resource occupation exactly.
type rescheduleEffect struct {
	ctx      *Context
	node     ids.ID
	oldCycle int
	oldReq   rm.Request
	newCycle int
	newReq   rm.Request
}

func (e *rescheduleEffect) Apply() error {
	if err := e.ctx.RM.Unassign(e.node); err != nil {
		return err
	}
	if !e.ctx.RM.CanAssign(e.newCycle, e.node, e.newReq) {
		// Restore immediately: this Apply must leave no partial state on
		// failure.
		e.ctx.RM.Assign(e.oldCycle, e.node, e.oldReq)
		return schederr.Wrap("reschedule", errors.New("target cycle is not legal for this node's resource request"))
	}
	e.ctx.Graph.Node(e.node).Move.Cycle = e.newCycle
	e.ctx.RM.Assign(e.newCycle, e.node, e.newReq)
	return nil
}

func (e *rescheduleEffect) Undo() {
	_ = e.ctx.RM.Unassign(e.node)
	e.ctx.Graph.Node(e.node).Move.Cycle = e.oldCycle
	e.ctx.RM.Assign(e.oldCycle, e.node, e.oldReq)
}

// NewPushUp reschedules an already-scheduled node to an earlier cycle,
// making room for the node currently being scheduled. oldReq/newReq are
// the resource requests at the
// node's old and new cycles respectively.
func NewPushUp(ctx *Context, node ids.ID, newCycle int, oldReq, newReq rm.Request) (*reversible.Transform, error) {
	n := ctx.Graph.Node(node)
	if !n.IsScheduled() {
		return nil, schederr.Wrap("push up", errors.New("node is not scheduled"))
	}
	if newCycle >= n.Cycle() {
		return nil, schederr.Wrap("push up", errors.New("target cycle is not earlier than the current cycle"))
	}
	t := reversible.New("push-up", &rescheduleEffect{ctx: ctx, node: node, oldCycle: n.Cycle(), oldReq: oldReq, newCycle: newCycle, newReq: newReq})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewPushDown is NewPushUp's symmetric counterpart, rescheduling to a
// later cycle.
func NewPushDown(ctx *Context, node ids.ID, newCycle int, oldReq, newReq rm.Request) (*reversible.Transform, error) {
	n := ctx.Graph.Node(node)
	if !n.IsScheduled() {
		return nil, schederr.Wrap("push down", errors.New("node is not scheduled"))
	}
	if newCycle <= n.Cycle() {
		return nil, schederr.Wrap("push down", errors.New("target cycle is not later than the current cycle"))
	}
	t := reversible.New("push-down", &rescheduleEffect{ctx: ctx, node: node, oldCycle: n.Cycle(), oldReq: oldReq, newCycle: newCycle, newReq: newReq})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// unscheduleEffect unassigns a node and marks its cycle Unscheduled,
// restoring both on Undo.
type unscheduleEffect struct {
	ctx      *Context
	node     ids.ID
	oldCycle int
	oldReq   rm.Request
}

func (e *unscheduleEffect) Apply() error {
	if err := e.ctx.RM.Unassign(e.node); err != nil {
		return err
	}
	e.ctx.Graph.Node(e.node).Move.Cycle = move.Unscheduled
	return nil
}

func (e *unscheduleEffect) Undo() {
	e.ctx.Graph.Node(e.node).Move.Cycle = e.oldCycle
	e.ctx.RM.Assign(e.oldCycle, e.node, e.oldReq)
}

// NewUnschedule removes node's cycle and RM assignment, e.g. so the
// scheduler can retry it with a different set of transformations
// enabled.
func NewUnschedule(ctx *Context, node ids.ID, oldReq rm.Request) (*reversible.Transform, error) {
	n := ctx.Graph.Node(node)
	if !n.IsScheduled() {
		return nil, schederr.Wrap("unschedule", errors.New("node is not scheduled"))
	}
	t := reversible.New("unschedule", &unscheduleEffect{ctx: ctx, node: node, oldCycle: n.Cycle(), oldReq: oldReq})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// rescheduleFromUnscheduledEffect is Reschedule's payload: assign an
// unscheduled node to cycle, undoing back to Unscheduled.
type rescheduleFromUnscheduledEffect struct {
	ctx   *Context
	node  ids.ID
	cycle int
	req   rm.Request
}

func (e *rescheduleFromUnscheduledEffect) Apply() error {
	if !e.ctx.RM.CanAssign(e.cycle, e.node, e.req) {
		return schederr.Wrap("reschedule", errors.New("target cycle is not legal for this node's resource request"))
	}
	e.ctx.Graph.Node(e.node).Move.Cycle = e.cycle
	e.ctx.RM.Assign(e.cycle, e.node, e.req)
	return nil
}

func (e *rescheduleFromUnscheduledEffect) Undo() {
	_ = e.ctx.RM.Unassign(e.node)
	e.ctx.Graph.Node(e.node).Move.Cycle = move.Unscheduled
}

// NewReschedule is NewUnschedule's inverse starting point: assigns a
// currently-unscheduled node to cycle.
func NewReschedule(ctx *Context, node ids.ID, cycle int, req rm.Request) (*reversible.Transform, error) {
	n := ctx.Graph.Node(node)
	if n.IsScheduled() {
		return nil, schederr.Wrap("reschedule", errors.New("node is already scheduled; unschedule it first"))
	}
	t := reversible.New("reschedule", &rescheduleFromUnscheduledEffect{ctx: ctx, node: node, cycle: cycle, req: req})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}
