package transform

import (
	"errors"

	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/schederr"
)

// dreEffect drops node from the DDG (keeping it live for Undo) and marks
// it dead. A node
// that was already scheduled gives up its resource assignment too, and
// Undo puts that assignment back exactly.
type dreEffect struct {
	node       ids.ID
	ctx        *Context
	wasDead    bool
	unassigned bool
	hadReq     bool
	cycle      int
	req        rm.Request
}

func (e *dreEffect) Apply() error {
	n := e.ctx.Graph.Node(e.node)
	e.wasDead = n.Flags.Dead
	if n.IsScheduled() {
		cycle, req, ok := e.ctx.RM.Assignment(e.node)
		if ok {
			e.cycle, e.req, e.unassigned, e.hadReq = cycle, req, true, true
			if err := e.ctx.RM.Unassign(e.node); err != nil {
				return err
			}
		} else {
			e.cycle, e.unassigned = n.Cycle(), true
		}
	}
	n.Flags.Dead = true
	e.ctx.Graph.DropNode(e.node)
	return nil
}

func (e *dreEffect) Undo() {
	e.ctx.Graph.RestoreNodeFromParent(e.node)
	n := e.ctx.Graph.Node(e.node)
	n.Flags.Dead = e.wasDead
	if e.unassigned {
		n.Move.Cycle = e.cycle
		if e.hadReq {
			e.ctx.RM.Assign(e.cycle, e.node, e.req)
		}
	}
}

// NewDeadResultEliminationEarly drops node if it has no remaining RAW or
// operation consumer and its written register is not in the supplied
// live-out set.
func NewDeadResultEliminationEarly(ctx *Context, node ids.ID) (*reversible.Transform, error) {
	if hasRemainingConsumer(ctx.Graph, node) {
		return nil, schederr.Wrap("dead-result elimination", errors.New("node still has a live consumer"))
	}
	if ctx.LiveOut != nil {
		n := ctx.Graph.Node(node)
		if n.Move.Destination.Kind == move.DestinationGeneralRegister && ctx.LiveOut[n.Move.Destination.Register] {
			return nil, schederr.Wrap("dead-result elimination", errors.New("written register is live out of the block"))
		}
	}
	t := reversible.New("dre-early", &dreEffect{ctx: ctx, node: node})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewDeadResultEliminationLoop is DRE for a loop body: dropping a
// loop-carried value is refused when it is in the live-out set, since the
// epilog materialization that would make it safe is the caller's responsibility
// to install first via move.Duplicate before retrying.
func NewDeadResultEliminationLoop(ctx *Context, node ids.ID, liveOut bool) (*reversible.Transform, error) {
	if liveOut {
		return nil, schederr.Wrap("dead-result elimination", errors.New("node is a live-out of the loop; materialize an epilog copy instead of dropping it"))
	}
	return NewDeadResultEliminationEarly(ctx, node)
}
