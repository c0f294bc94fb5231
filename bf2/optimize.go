package bf2

import (
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/schederr"
	"github.com/tta-tools/bubblefish/transform"
)

// makeRoomWindow bounds how far a push-up/push-down may displace a victim
// from its current cycle.
const makeRoomWindow = 8

// frontPOs returns the distinct ProgramOperations the front's members
// belong to, ascending.
func frontPOs(g *ddg.DDG, f *front) []ids.ID {
	seen := make(map[ids.ID]bool)
	var out []ids.ID
	for _, n := range f.nodes {
		po := g.Node(n).AsInputOf
		if po == ids.Invalid || seen[po] {
			continue
		}
		seen[po] = true
		out = append(out, po)
	}
	ids.SortIDs(out)
	return out
}

// trySwapForImmediate swaps a constant operand onto the trigger slot when
// the constant doesn't encode on its current port but does on the trigger
// port and the operation declares the pair commutative. Returns the
// applied swap, or nil when no swap is needed or possible.
func (s *scheduler) trySwapForImmediate(poID ids.ID) *reversibleTransform {
	g := s.ctx.Graph
	po := g.ProgramOperation(poID)
	op, ok := s.ctx.Ops.Lookup(po.Operation)
	if !ok {
		return nil
	}
	indices := po.InputIndices()
	if len(indices) < 2 {
		return nil
	}
	trigIdx := indices[len(indices)-1]
	trigNode := g.Node(po.Inputs[trigIdx])
	if trigNode.IsScheduled() || trigNode.Move.Source.Kind == move.SourceConstant {
		return nil
	}
	for _, idx := range indices {
		if idx == trigIdx {
			continue
		}
		n := g.Node(po.Inputs[idx])
		if n.IsScheduled() || n.Move.Source.Kind != move.SourceConstant {
			continue
		}
		if immediateFits(s.ctx, n) {
			continue // encodes where it is
		}
		if !op.CanSwap(idx, trigIdx) {
			continue
		}
		if w, ok := portWidth(s.ctx.Mach, trigNode.Move.Destination.FU, trigNode.Move.Destination.Port); ok && w > 0 &&
			!s.ctx.Mach.CanEncodeImmediate(n.Move.Source.Constant, w) {
			continue
		}
		if t, err := transform.NewOperandSwap(s.ctx, poID, idx, trigIdx); err == nil {
			return t
		}
	}
	return nil
}

// tryOperandShare collapses node's operand write into an already-scheduled
// write of the same value to the same FU port by another operation.
func (s *scheduler) tryOperandShare(node ids.ID) *reversibleTransform {
	g := s.ctx.Graph
	if g.IsDropped(node) {
		return nil
	}
	n := g.Node(node)
	if n.IsScheduled() || n.AsInputOf == ids.Invalid || n.Move.Guard.Present {
		return nil
	}
	if n.Move.Destination.Kind != move.DestinationFUInputPort || n.Move.Destination.Triggering {
		return nil
	}
	for _, cand := range g.Nodes() {
		if cand == node {
			continue
		}
		m := g.Node(cand)
		if !m.IsScheduled() || m.AsInputOf == ids.Invalid || m.AsInputOf == n.AsInputOf {
			continue
		}
		if m.Move.Guard.Present || m.Move.Destination.Triggering {
			continue
		}
		if m.Move.Destination != n.Move.Destination || m.Move.Source != n.Move.Source {
			continue
		}
		t, err := transform.NewOperandShare(s.ctx, m.AsInputOf, m.InputIndex, n.AsInputOf, n.InputIndex)
		if err != nil {
			continue
		}
		return t
	}
	return nil
}

// tryGuardConversion rewrites node's register guard to the producing FU's
// port guard when the machine declares that port as a guard source.
func (s *scheduler) tryGuardConversion(node ids.ID) *reversibleTransform {
	if !s.opts.guardConversion {
		return nil
	}
	g := s.ctx.Graph
	n := g.Node(node)
	if !n.Move.Guard.Present || n.Move.Guard.Register == "" {
		return nil
	}
	for _, eid := range g.InEdges(node) {
		e := g.Edge(eid)
		if !e.GuardUse || e.LoopDistance > 0 {
			continue
		}
		if g.IsDropped(e.Tail) {
			continue
		}
		producer := g.Node(e.Tail)
		if producer.Move.Source.Kind != move.SourceFUOutputPort {
			continue
		}
		name := producer.Move.Source.Port
		if !machineHasGuard(s.ctx, name) {
			continue
		}
		if t, err := transform.NewGuardConversion(s.ctx, node, name); err == nil {
			return t
		}
	}
	return nil
}

func machineHasGuard(ctx *transform.Context, name string) bool {
	for _, guard := range ctx.Mach.Guards {
		if guard.Name == name {
			return true
		}
	}
	return false
}

// tryLateBypass fires when the selector hands the scheduler an unscheduled
// result read whose sole consumer is already placed: the consumer is
// unassigned, rewritten to read the FU port directly, and rescheduled at
// least three cycles earlier; the now-unread result write is dropped when
// nothing else consumes it. Loop mode skips this (a reschedule could
// escape the modulo window; the loop-carried form is tryLoopBypass).
func (s *scheduler) tryLateBypass(node ids.ID) *reversibleTransform {
	if s.loop != nil {
		return nil
	}
	g := s.ctx.Graph
	n := g.Node(node)
	if n.Move.Source.Kind != move.SourceFUOutputPort {
		return nil
	}
	var dst ids.ID
	found := false
	for _, eid := range g.OutEdges(node) {
		e := g.Edge(eid)
		if e.Kind != ddg.EdgeRegister || e.Type != ddg.TypeRAW || e.GuardUse {
			continue
		}
		if e.LoopDistance > 0 || found {
			return nil
		}
		dst = e.Head
		found = true
	}
	if !found || g.IsDropped(dst) || !g.Node(dst).IsScheduled() {
		return nil
	}
	probe := *g.Node(dst)
	probe.Move.Source = n.Move.Source
	if !transportRealizable(s.ctx, &probe) {
		return nil // no bus connects the FU output to the consumer's port
	}
	_, oldReq, ok := s.ctx.RM.Assignment(dst)
	if !ok {
		return nil
	}
	newReq := oldReq
	newReq.SrcFU = n.Move.Source.FU
	t, err := transform.NewLateBypass(s.ctx, dst, node, oldReq, newReq)
	if err != nil {
		return nil
	}
	if dre, err := transform.NewDeadResultEliminationEarly(s.ctx, node); err == nil {
		_ = t.RunChild(reversible.Post, dre)
	}
	return t
}

// tryLoopBypass rewrites a consumer whose only RAW producer is the
// previous iteration's result read into a direct FU-port read, when the
// producing operation has its function unit to itself (another operation
// on the same FU would overwrite the port between iterations). The prolog
// copy that makes the first iteration's read well-defined is materialized
// after the consumer is placed (materializePrologCopy).
func (s *scheduler) tryLoopBypass(node ids.ID) (*reversibleTransform, ids.ID) {
	if s.loop == nil || !s.opts.loopBypass {
		return nil, ids.Invalid
	}
	g := s.ctx.Graph
	var src ids.ID
	found := false
	for _, eid := range g.InEdges(node) {
		e := g.Edge(eid)
		if e.Kind != ddg.EdgeRegister || e.Type != ddg.TypeRAW || e.GuardUse {
			continue
		}
		if e.LoopDistance != 1 || found {
			return nil, ids.Invalid
		}
		src = e.Tail
		found = true
	}
	if !found || g.IsDropped(src) {
		return nil, ids.Invalid
	}
	srcNode := g.Node(src)
	if srcNode.Move.Source.Kind != move.SourceFUOutputPort || srcNode.AsOutputOf == ids.Invalid {
		return nil, ids.Invalid
	}
	if !fuExclusiveTo(g, srcNode.AsOutputOf) {
		return nil, ids.Invalid
	}
	t, err := transform.NewLoopBypass(s.ctx, node, src, 1)
	if err != nil {
		return nil, ids.Invalid
	}
	return t, src
}

// fuExclusiveTo reports whether poID's function unit hosts no other
// operation in the graph.
func fuExclusiveTo(g *ddg.DDG, poID ids.ID) bool {
	fu := g.ProgramOperation(poID).FU
	if fu == "" {
		return false
	}
	for _, other := range g.ProgramOperations() {
		if other != poID && g.ProgramOperation(other).FU == fu {
			return false
		}
	}
	return true
}

// prologCopyWindow bounds how far before the consumer's prolog cycle the
// materialized copy may land when the exact slot is taken by the mirrored
// body image.
const prologCopyWindow = 8

// prologCopyEffect books the materialized previous-iteration copy into the
// prolog resource manager, at the consumer's cycle or the nearest free
// slot before it, so the fill code carries the value the bypassed
// steady-state read expects.
type prologCopyEffect struct {
	prolog *rm.ResourceManager
	cycle  int
	node   ids.ID
	req    rm.Request
}

func (e *prologCopyEffect) Apply() error {
	for c := e.cycle; c > e.cycle-prologCopyWindow; c-- {
		if e.prolog.CanAssign(c, e.node, e.req) {
			e.prolog.Assign(c, e.node, e.req)
			return nil
		}
	}
	return schederr.Wrap("loop bypass prolog copy", &schederr.SchedulingFailure{
		NodeID: uint32(e.node), Reason: "no free prolog slot near the consumer's cycle",
	})
}

func (e *prologCopyEffect) Undo() { _ = e.prolog.Unassign(e.node) }

// materializePrologCopy duplicates the bypassed producer's result read and
// books it into the prolog image at the consumer's cycle. The duplicate
// never joins the steady-state body: it is created dead and dropped, and
// only the prolog RM (and the emitted prolog stream) see it.
func (s *scheduler) materializePrologCopy(src ids.ID, cycle int) *reversible.Transform {
	g := s.ctx.Graph
	dup := move.Duplicate(g.Node(src))
	dupID := g.AddNode(*dup)
	dupNode := g.Node(dupID)
	dupNode.Flags.Dead = true
	g.DropNode(dupID)

	req := deriveRequest(s.ctx, dupID)
	if buses := busCandidates(s.ctx, dupNode); len(buses) > 0 {
		req.Bus = buses[0]
	}
	return reversible.New("loop-bypass-prolog-copy", &prologCopyEffect{
		prolog: s.ctx.RM.Prolog(),
		cycle:  rm.PROLOG_CYCLE_BIAS + cycle,
		node:   dupID,
		req:    req,
	})
}

// tryMakeRoom frees the target cycle for node by rescheduling the bus
// occupant: one cycle-range probe per candidate bus, pushing the victim
// earlier for a bottom-up search and later for a top-down one. The victim
// keeps its own resources and must stay within what its scheduled
// dependence neighbors allow. Returns the applied push and the freed bus.
func (s *scheduler) tryMakeRoom(node ids.ID, req rm.Request, buses []string, target int, topDown bool) (*reversibleTransform, string, bool) {
	g := s.ctx.Graph
	for _, bus := range buses {
		victim, ok := s.ctx.RM.BusOwner(target, bus)
		if !ok || victim == node {
			continue
		}
		if g.IsDropped(victim) || g.Node(victim).Flags.InFrontier {
			continue
		}
		vCycle, vReq, ok := s.ctx.RM.Assignment(victim)
		if !ok {
			continue
		}
		t := s.pushVictim(victim, vCycle, vReq, topDown)
		if t == nil {
			continue
		}
		probe := req
		probe.Bus = bus
		if s.ctx.RM.CanAssign(target, node, probe) {
			return t, bus, true
		}
		t.Undo()
	}
	return nil, "", false
}

// pushVictim reschedules victim one direction within makeRoomWindow,
// clamped by its scheduled dependence neighbors and the loop window.
func (s *scheduler) pushVictim(victim ids.ID, vCycle int, vReq rm.Request, topDown bool) *reversibleTransform {
	g := s.ctx.Graph
	if topDown {
		limit := vCycle + makeRoomWindow
		if late, ok := g.LatestCycle(victim, ddg.EdgeFilter{}); ok && late < limit {
			limit = late
		}
		if s.maxCycle > 0 && limit > s.maxCycle {
			limit = s.maxCycle
		}
		for c := vCycle + 1; c <= limit; c++ {
			if !s.ctx.RM.CanAssign(c, victim, vReq) {
				continue
			}
			if t, err := transform.NewPushDown(s.ctx, victim, c, vReq, vReq); err == nil {
				return t
			}
		}
		return nil
	}
	limit := vCycle - makeRoomWindow
	if early, ok := g.EarliestCycle(victim, ddg.EdgeFilter{}); ok && early > limit {
		limit = early
	}
	if s.maxCycle > 0 && limit < 0 {
		limit = 0
	}
	for c := vCycle - 1; c >= limit; c-- {
		if !s.ctx.RM.CanAssign(c, victim, vReq) {
			continue
		}
		if t, err := transform.NewPushUp(s.ctx, victim, c, vReq, vReq); err == nil {
			return t
		}
	}
	return nil
}
