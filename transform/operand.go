package transform

import (
	"errors"
	"strconv"

	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/schederr"
)

// operandShareEffect rewires one ProgramOperation's operand-write slot to
// point at another ProgramOperation's existing write of the same value,
// then drops the now-redundant node.
type operandShareEffect struct {
	ctx         *Context
	keepPO      ids.ID
	keepIdx     int
	dropPO      ids.ID
	dropIdx     int
	droppedNode ids.ID
	priorNode   ids.ID // dropPO.Inputs[dropIdx] before the share
}

func (e *operandShareEffect) Apply() error {
	keep := e.ctx.Graph.ProgramOperation(e.keepPO)
	drop := e.ctx.Graph.ProgramOperation(e.dropPO)
	e.priorNode = drop.Inputs[e.dropIdx]
	e.droppedNode = e.priorNode
	drop.Inputs[e.dropIdx] = keep.Inputs[e.keepIdx]
	e.ctx.Graph.DropNode(e.droppedNode)
	return nil
}

func (e *operandShareEffect) Undo() {
	drop := e.ctx.Graph.ProgramOperation(e.dropPO)
	drop.Inputs[e.dropIdx] = e.priorNode
	e.ctx.Graph.RestoreNodeFromParent(e.droppedNode)
}

// NewOperandShare collapses dropPO's write at dropIdx into keepPO's
// existing write at keepIdx, on the premise (verified by the caller, which
// has matched the two writes' source values and destination FU port) that
// both realize the same operand value at the same port.
func NewOperandShare(ctx *Context, keepPO ids.ID, keepIdx int, dropPO ids.ID, dropIdx int) (*reversible.Transform, error) {
	keep := ctx.Graph.ProgramOperation(keepPO)
	drop := ctx.Graph.ProgramOperation(dropPO)
	if _, ok := keep.Inputs[keepIdx]; !ok {
		return nil, schederr.Wrap("operand share", errors.New("keepPO has no write at keepIdx"))
	}
	if _, ok := drop.Inputs[dropIdx]; !ok {
		return nil, schederr.Wrap("operand share", errors.New("dropPO has no write at dropIdx"))
	}
	t := reversible.New("operand-share", &operandShareEffect{ctx: ctx, keepPO: keepPO, keepIdx: keepIdx, dropPO: dropPO, dropIdx: dropIdx})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// operandSwapEffect exchanges the two values between the operand slots of
// one ProgramOperation: the index bookkeeping, the moves' destination
// ports (the trigger designation travels with the port), and — when the
// trigger slot is involved — the operation edges, since the pipeline now
// starts on the other move.
type operandSwapEffect struct {
	ctx  *Context
	po   ids.ID
	a, b int

	removedEdges []ddg.Edge
	addedEdges   []ids.ID
}

func (e *operandSwapEffect) Apply() error {
	g := e.ctx.Graph
	po := g.ProgramOperation(e.po)
	trigIdx := triggerIndex(po)

	na, nb := po.Inputs[e.a], po.Inputs[e.b]
	po.Inputs[e.a], po.Inputs[e.b] = nb, na
	e.reindex(na, e.b)
	e.reindex(nb, e.a)
	nodeA, nodeB := g.Node(na), g.Node(nb)
	nodeA.Move.Destination, nodeB.Move.Destination = nodeB.Move.Destination, nodeA.Move.Destination

	if e.a != trigIdx && e.b != trigIdx {
		return nil
	}
	oldTrig, newTrig := nb, na
	if e.a == trigIdx {
		oldTrig, newTrig = na, nb
	}
	if err := e.rewireTrigger(oldTrig, newTrig); err != nil {
		e.revertEdges()
		e.unswap()
		return err
	}
	return nil
}

// rewireTrigger moves every operation edge touching the old trigger node
// onto the new one: operand writes now feed newTrig, and newTrig now
// starts the pipeline feeding the results (and any bypassed consumers
// anchored on the old trigger).
func (e *operandSwapEffect) rewireTrigger(oldTrig, newTrig ids.ID) error {
	g := e.ctx.Graph
	for _, eid := range append([]ids.ID(nil), g.OutEdges(oldTrig)...) {
		if g.Edge(eid).Kind != ddg.EdgeOperation {
			continue
		}
		val := g.RemoveEdge(eid)
		e.removedEdges = append(e.removedEdges, val)
		moved := val
		moved.Tail = newTrig
		id, err := g.AddEdge(moved)
		if err != nil {
			return err
		}
		e.addedEdges = append(e.addedEdges, id)
	}
	for _, eid := range append([]ids.ID(nil), g.InEdges(oldTrig)...) {
		edge := g.Edge(eid)
		if edge.Kind != ddg.EdgeOperation || edge.Type != ddg.TypeTrigger {
			continue
		}
		val := g.RemoveEdge(eid)
		e.removedEdges = append(e.removedEdges, val)
		moved := val
		moved.Head = newTrig
		if moved.Tail == newTrig {
			// The swapped pair itself: the old trigger is now the operand.
			moved.Tail = oldTrig
		}
		id, err := g.AddEdge(moved)
		if err != nil {
			return err
		}
		e.addedEdges = append(e.addedEdges, id)
	}
	return nil
}

func (e *operandSwapEffect) Undo() {
	e.revertEdges()
	e.unswap()
}

func (e *operandSwapEffect) revertEdges() {
	g := e.ctx.Graph
	for i := len(e.addedEdges) - 1; i >= 0; i-- {
		g.RemoveEdge(e.addedEdges[i])
	}
	e.addedEdges = nil
	for i := len(e.removedEdges) - 1; i >= 0; i-- {
		_, _ = g.AddEdge(e.removedEdges[i])
	}
	e.removedEdges = nil
}

// unswap reverts the slot/index/destination exchange alone; edge state is
// the caller's concern.
func (e *operandSwapEffect) unswap() {
	g := e.ctx.Graph
	po := g.ProgramOperation(e.po)
	na, nb := po.Inputs[e.a], po.Inputs[e.b]
	po.Inputs[e.a], po.Inputs[e.b] = nb, na
	e.reindex(na, e.b)
	e.reindex(nb, e.a)
	nodeA, nodeB := g.Node(na), g.Node(nb)
	nodeA.Move.Destination, nodeB.Move.Destination = nodeB.Move.Destination, nodeA.Move.Destination
}

func (e *operandSwapEffect) reindex(n ids.ID, idx int) {
	node := e.ctx.Graph.Node(n)
	node.InputIndex = idx
}

// triggerIndex is the highest input operand index, the slot the opcode-
// setting trigger write occupies by convention.
func triggerIndex(po *move.ProgramOperation) int {
	indices := po.InputIndices()
	if len(indices) == 0 {
		return 0
	}
	return indices[len(indices)-1]
}

// NewOperandSwap exchanges operand indices a and b of po, when the
// registered opset.Operation declares them swappable.
func NewOperandSwap(ctx *Context, po ids.ID, a, b int) (*reversible.Transform, error) {
	p := ctx.Graph.ProgramOperation(po)
	op, ok := ctx.Ops.Lookup(p.Operation)
	if !ok || !op.CanSwap(a, b) {
		return nil, schederr.Wrap("operand swap", errors.New("operation does not declare this operand pair commutative"))
	}
	t := reversible.New("operand-swap", &operandSwapEffect{ctx: ctx, po: po, a: a, b: b})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}

// registerCopyEffect inserts a new MoveNode (src -> tempReg) and rewrites
// dst's source to read tempReg instead of src directly. The producer's
// operation edges into dst move onto the copy (the copy is what reads the
// port now), and a register RAW edge from the copy to dst keeps the two
// halves ordered.
type registerCopyEffect struct {
	ctx      *Context
	dst      ids.ID
	copyNode ids.ID
	original move.Source

	movedEdges []ddg.Edge
	movedNew   []ids.ID
	linkEdge   ids.ID
}

func (e *registerCopyEffect) Apply() error {
	g := e.ctx.Graph
	dst := g.Node(e.dst)
	e.original = dst.Move.Source

	for _, eid := range append([]ids.ID(nil), g.InEdges(e.dst)...) {
		if g.Edge(eid).Kind != ddg.EdgeOperation {
			continue
		}
		val := g.RemoveEdge(eid)
		e.movedEdges = append(e.movedEdges, val)
		moved := val
		moved.Head = e.copyNode
		id, err := g.AddEdge(moved)
		if err != nil {
			e.revertEdges()
			return err
		}
		e.movedNew = append(e.movedNew, id)
	}

	temp := tempRegisterName(e.copyNode)
	dst.Move.Source = move.Source{Kind: move.SourceGeneralRegister, Register: temp}
	id, err := g.AddEdge(ddg.Edge{Kind: ddg.EdgeRegister, Type: ddg.TypeRAW, Tail: e.copyNode, Head: e.dst, Data: temp})
	if err != nil {
		dst.Move.Source = e.original
		e.revertEdges()
		return err
	}
	e.linkEdge = id
	return nil
}

func (e *registerCopyEffect) Undo() {
	g := e.ctx.Graph
	if e.linkEdge != ids.Invalid {
		g.RemoveEdge(e.linkEdge)
		e.linkEdge = ids.Invalid
	}
	g.Node(e.dst).Move.Source = e.original
	e.revertEdges()
	g.DropNode(e.copyNode)
}

func (e *registerCopyEffect) revertEdges() {
	g := e.ctx.Graph
	for i := len(e.movedNew) - 1; i >= 0; i-- {
		g.RemoveEdge(e.movedNew[i])
	}
	e.movedNew = nil
	for i := len(e.movedEdges) - 1; i >= 0; i-- {
		_, _ = g.AddEdge(e.movedEdges[i])
	}
	e.movedEdges = nil
}

func tempRegisterName(id ids.ID) string {
	return "t" + strconv.FormatUint(uint64(id), 10)
}

// NewRegisterCopy inserts tempReg := src (a new MoveNode) and rewires
// dst's Source to read tempReg. The caller is responsible for scheduling
// the inserted copy node separately.
func NewRegisterCopy(ctx *Context, dst, src ids.ID) (*reversible.Transform, ids.ID, error) {
	srcNode := ctx.Graph.Node(src)
	copyNode := ctx.Graph.AddNode(move.MoveNode{
		Move: move.Move{
			Source:      srcNode.Move.Source,
			Destination: move.Destination{Kind: move.DestinationGeneralRegister},
			Cycle:       move.Unscheduled,
		},
	})
	copyMove := ctx.Graph.Node(copyNode)
	copyMove.Move.Destination.Register = tempRegisterName(copyNode)

	t := reversible.New("register-copy", &registerCopyEffect{ctx: ctx, dst: dst, copyNode: copyNode})
	if err := t.Apply(); err != nil {
		ctx.Graph.DropNode(copyNode)
		return nil, ids.Invalid, err
	}
	return t, copyNode, nil
}
