package bf2

import (
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/internal/trace"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/schederr"
	"github.com/tta-tools/bubblefish/transform"
)

// searchWindow bounds how far the cycle search looks past its DDG-derived
// bound before giving up, outside loop mode (loop mode's window is the
// [0, maxCycle] interval itself). Generous enough for any realistic basic
// block; a real backend would size it from the block's instruction count.
const searchWindow = 4096

// attempt is one rung of the retry ladder: a reduced set of enabled
// optimizations and a direction preference, tried in order until one lets
// every front member find a legal cycle.
//
// The rungs walk from everything-on to bare placement: flip the search
// direction, then give up operand sharing, then early bypass (late stays),
// then every bypass, then the swap too. Each rung that disables an
// optimization keeps the more conservative settings of the rungs before
// it, so by the last rung the front is scheduled with plain moves only.
type attempt struct {
	label        string
	topDown      bool
	earlyBypass  bool
	lateBypass   bool
	operandShare bool
	operandSwap  bool
}

func ladder(o *options) []attempt {
	all := attempt{
		label:        "preferred",
		earlyBypass:  o.earlyBypass,
		lateBypass:   o.lateBypass,
		operandShare: o.operandShare,
		operandSwap:  o.operandSwap,
	}
	flip := all
	flip.label, flip.topDown = "toggle-direction", true
	noShare := all
	noShare.label, noShare.operandShare = "disable-share", false
	noEarly := noShare
	noEarly.label, noEarly.earlyBypass = "disable-early-bypass", false
	noBypass := noEarly
	noBypass.label, noBypass.lateBypass = "disable-bypass", false
	bare := noBypass
	bare.label, bare.operandSwap = "bare", false
	return []attempt{all, flip, noShare, noEarly, noBypass, bare}
}

// scheduler drives one basic block's bottom-up scheduling loop. maxCycle,
// when positive, clamps every placement into [0, maxCycle] — loop mode's
// 2*II-1 window; loop carries the exact-cycle placement facts.
type scheduler struct {
	ctx      *transform.Context
	opts     *options
	loop     *LoopInfo
	maxCycle int

	// journal accumulates every transform a successful front committed, in
	// application order, so an aborted run (front failure, rejected loop
	// trial) can be unwound back to the pristine DDG/RM state.
	journal []*reversibleTransform
}

// scheduleFront tries every front member under each ladder rung, in order,
// until one rung schedules the whole front. Every change a rung makes is
// a reversible transform, so a failed rung is unwound completely before
// the next is tried: a front either succeeds atomically or leaves no
// partial state.
func (s *scheduler) scheduleFront(f *front) error {
	var lastErr error
	for _, a := range ladder(s.opts) {
		applied, err := s.tryFrontAttempt(f, a)
		if err == nil {
			for _, n := range f.nodes {
				if !s.ctx.Graph.IsDropped(n) && s.ctx.Graph.Node(n).IsScheduled() {
					s.ctx.Graph.Node(n).Flags.Finalized = true
				}
			}
			s.journal = append(s.journal, applied...)
			return nil
		}
		lastErr = err
		for i := len(applied) - 1; i >= 0; i-- {
			applied[i].Undo()
		}
		trace.Emit(s.opts.trace, trace.LevelDebug, "retry", "front attempt failed, unwinding", func(r *trace.Record) {
			r.NodeID = uint32(f.nodes[0])
			r.Err = err
			r.Fields = map[string]any{"rung": a.label}
		})
	}
	node := f.nodes[0]
	return schederr.Wrap("schedule front", &schederr.SchedulingFailure{
		NodeID:  uint32(node),
		Reason:  "exhausted retry ladder: " + errString(lastErr),
		Attempt: len(ladder(s.opts)),
	})
}

func errString(err error) string {
	if err == nil {
		return "no legal cycle"
	}
	return err.Error()
}

// tryFrontAttempt runs one ladder rung over the front: first the
// front-wide rewrites (operand swap onto the trigger slot, operand
// sharing against already-scheduled writes), then each member in
// dependence order. Swaps change which move is the trigger, so the order
// is recomputed when any front-wide rewrite fired.
func (s *scheduler) tryFrontAttempt(f *front, a attempt) ([]*reversibleTransform, error) {
	var applied []*reversibleTransform

	rewrote := false
	if a.operandSwap {
		for _, poID := range frontPOs(s.ctx.Graph, f) {
			if t := s.trySwapForImmediate(poID); t != nil {
				applied = append(applied, t)
				rewrote = true
			}
		}
	}
	if a.operandShare {
		for _, n := range f.nodes {
			if t := s.tryOperandShare(n); t != nil {
				applied = append(applied, t)
				rewrote = true
			}
		}
	}

	order := f.order
	if rewrote {
		memberSet := make(map[ids.ID]bool, len(f.nodes))
		for _, n := range f.nodes {
			memberSet[n] = true
		}
		order = sinksFirst(s.ctx.Graph, memberSet, f.nodes)
	}

	for _, node := range order {
		t, err := s.scheduleNode(node, a)
		if err != nil {
			return applied, err
		}
		if t != nil {
			applied = append(applied, t)
		}
	}
	return applied, nil
}

// reversibleTransform names the type every ladder rung's step produces,
// so undo-on-failure can walk them in reverse.
type reversibleTransform = reversible.Transform

// scheduleNode places one front member. The placement and every local
// transformation it composes — guard conversion, late/early/loop bypass,
// register-copy insertion, push-up/push-down room-making, the prolog copy
// of a loop bypass — hang off one composite transform, so a single Undo
// reverts the whole step.
func (s *scheduler) scheduleNode(node ids.ID, a attempt) (*reversibleTransform, error) {
	g := s.ctx.Graph
	if g.IsDropped(node) {
		return nil, nil // an earlier step's share or DRE removed this one
	}
	n := g.Node(node)
	if n.IsScheduled() {
		return nil, nil
	}

	comp := reversible.New("schedule-node", reversible.NoEffect{})
	_ = comp.Apply()
	fail := func(err error) (*reversibleTransform, error) {
		comp.Undo()
		return nil, err
	}

	if t := s.tryGuardConversion(node); t != nil {
		_ = comp.RunChild(reversible.Post, t)
	}

	if a.lateBypass {
		if t := s.tryLateBypass(node); t != nil {
			_ = comp.RunChild(reversible.Post, t)
			if g.IsDropped(node) {
				return comp, nil // the bypass consumed the write entirely
			}
		}
	}

	var loopSrc ids.ID = ids.Invalid
	if a.earlyBypass {
		if producer, ok := soleRAWProducer(g, node); ok {
			if t, err := transform.NewEarlyBypass(s.ctx, node, producer); err == nil {
				_ = comp.RunChild(reversible.Post, t)
			}
		} else if t, src := s.tryLoopBypass(node); t != nil {
			_ = comp.RunChild(reversible.Post, t)
			loopSrc = src
		}
	}

	var copyID ids.ID = ids.Invalid
	if !transportRealizable(s.ctx, n) {
		t, id, err := transform.NewRegisterCopy(s.ctx, node, node)
		if err != nil {
			return fail(err)
		}
		_ = comp.RunChild(reversible.Post, t)
		copyID = id
	}

	if !immediateFits(s.ctx, n) {
		return fail(schederr.Wrap("schedule move", &schederr.SchedulingFailure{
			NodeID: uint32(node), Reason: "immediate does not encode on the destination port",
		}))
	}

	req := deriveRequest(s.ctx, node)
	if s.ctx.RM.II() > 0 {
		req.Prolog = true
	}
	buses := busCandidates(s.ctx, n)

	cycle, bus, ok := s.placement(node, req, buses, a.topDown)
	if !ok && s.opts.pushUpDown {
		if target, has := s.placementTarget(node, a.topDown); has {
			if pushT, freedBus, pushed := s.tryMakeRoom(node, req, buses, target, a.topDown); pushed {
				_ = comp.RunChild(reversible.Post, pushT)
				cycle, bus, ok = target, freedBus, true
			}
		}
	}
	if !ok {
		return fail(schederr.Wrap("schedule move", &schederr.SchedulingFailure{
			NodeID: uint32(node), Reason: "no legal cycle found within the search window",
		}))
	}

	req.Bus = bus
	assign, err := transform.NewReschedule(s.ctx, node, cycle, req)
	if err != nil {
		return fail(err)
	}
	_ = comp.RunChild(reversible.Post, assign)

	if loopSrc != ids.Invalid {
		if err := comp.RunChild(reversible.Post, s.materializePrologCopy(loopSrc, cycle)); err != nil {
			return fail(err)
		}
	}

	if copyID != ids.Invalid {
		copyT, err := s.scheduleNode(copyID, a)
		if err != nil {
			return fail(err)
		}
		if copyT != nil {
			_ = comp.RunChild(reversible.Post, copyT)
		}
	}

	trace.Emit(s.opts.trace, trace.LevelDebug, "schedule", "assigned move", func(r *trace.Record) {
		r.NodeID = uint32(node)
		r.Cycle = cycle
		r.Fields = map[string]any{"bus": bus}
	})
	return comp, nil
}

// placementTarget is the cycle tryMakeRoom should free: a pinned exact
// cycle when one applies, otherwise the tight end of the DDG window in
// the search direction.
func (s *scheduler) placementTarget(node ids.ID, topDown bool) (int, bool) {
	if exact, ok := s.exactCycle(node); ok {
		return exact, true
	}
	lo, hasLo, hi, hasHi := s.cycleBounds(node)
	if topDown {
		return lo, hasLo
	}
	return hi, hasHi
}

// placement resolves the (cycle, bus) pair for node: an exact cycle when a
// loop-mode placement rule pins one, otherwise the best cycle within the
// DDG window over every candidate bus — the latest such cycle for a
// bottom-up search with an upper bound, the earliest otherwise. Ties
// between buses at the same cycle go to the machine's declaration order.
func (s *scheduler) placement(node ids.ID, req rm.Request, buses []string, topDown bool) (int, string, bool) {
	if exact, ok := s.exactCycle(node); ok {
		lo, hasLo, hi, hasHi := s.cycleBounds(node)
		if (hasLo && exact < lo) || (hasHi && exact > hi) {
			return 0, "", false
		}
		for _, bus := range buses {
			r := req
			r.Bus = bus
			if s.ctx.RM.CanAssign(exact, node, r) {
				return exact, bus, true
			}
		}
		return 0, "", false
	}

	lo, hasLo, hi, hasHi := s.cycleBounds(node)
	preferLater := !topDown && hasHi
	bestCycle, bestBus, found := 0, "", false
	for _, bus := range buses {
		r := req
		r.Bus = bus
		c, ok := s.searchCycle(node, r, lo, hasLo, hi, hasHi, topDown)
		if !ok {
			continue
		}
		better := !found || (preferLater && c > bestCycle) || (!preferLater && c < bestCycle)
		if better {
			bestCycle, bestBus, found = c, bus, true
		}
	}
	return bestCycle, bestBus, found
}

// exactCycle applies the pinned-cycle placement rules, which only bind
// in loop mode: the control-flow trigger goes at maxCycle minus the
// delay slots, and the jump-guard writer at II minus the guard latency.
func (s *scheduler) exactCycle(node ids.ID) (int, bool) {
	if s.loop == nil {
		return 0, false
	}
	n := s.ctx.Graph.Node(node)
	if n.AsInputOf != ids.Invalid {
		po := s.ctx.Graph.ProgramOperation(n.AsInputOf)
		if op, ok := s.ctx.Ops.Lookup(po.Operation); ok && op.IsControlFlow {
			if trigger, ok := s.ctx.Graph.TriggerNode(n.AsInputOf); ok && trigger == node {
				return s.maxCycle - s.loop.DelaySlots, true
			}
		}
	}
	if g := s.loop.JumpGuardRegister; g != "" &&
		n.Move.Destination.Kind == move.DestinationGeneralRegister &&
		n.Move.Destination.Register == g {
		return s.ctx.RM.II() - s.loop.GuardLatency, true
	}
	return 0, false
}

// cycleBounds derives the DDG cycle window for node from its scheduled
// dependence neighbors: lo from scheduled predecessors, hi from scheduled
// successors, both clamped into [0, maxCycle] in loop mode.
func (s *scheduler) cycleBounds(node ids.ID) (lo int, hasLo bool, hi int, hasHi bool) {
	lo, hasLo = s.ctx.Graph.EarliestCycle(node, ddg.EdgeFilter{})
	hi, hasHi = s.ctx.Graph.LatestCycle(node, ddg.EdgeFilter{})
	if s.maxCycle > 0 {
		if !hasLo || lo < 0 {
			lo, hasLo = 0, true
		}
		if !hasHi || hi > s.maxCycle {
			hi, hasHi = s.maxCycle, true
		}
	}
	return lo, hasLo, hi, hasHi
}

// searchCycle probes the RM for a legal cycle inside [lo, hi]: downward
// from hi for a bottom-up search, upward from lo for a top-down one, and
// forward from lo (or 0) when the respective end is unbounded.
func (s *scheduler) searchCycle(node ids.ID, req rm.Request, lo int, hasLo bool, hi int, hasHi, topDown bool) (int, bool) {
	window := searchWindow
	if s.maxCycle > 0 {
		window = s.maxCycle + 1
	}
	if !topDown && hasHi {
		floor := hi - window + 1
		if hasLo && lo > floor {
			floor = lo
		}
		for c := hi; c >= floor; c-- {
			if s.ctx.RM.CanAssign(c, node, req) {
				return c, true
			}
		}
		return 0, false
	}
	start := 0
	if hasLo {
		start = lo
	}
	ceil := start + window - 1
	if hasHi && hi < ceil {
		ceil = hi
	}
	for c := start; c <= ceil; c++ {
		if s.ctx.RM.CanAssign(c, node, req) {
			return c, true
		}
	}
	return 0, false
}

// soleRAWProducer mirrors transform's unexported helper of the same shape
// (it is not exported from transform, so bf2 keeps its own copy rather
// than widen that package's surface for a single internal caller), plus
// two early-bypass-specific requirements: the producer itself must still
// be unscheduled and live, and the edge must be intra-iteration — the
// loop-carried case is tryLoopBypass's, which materializes the prolog
// copy the cross-iteration read needs.
func soleRAWProducer(g *ddg.DDG, dst ids.ID) (ids.ID, bool) {
	var producer ids.ID
	found := false
	for _, eid := range g.InEdges(dst) {
		e := g.Edge(eid)
		if e.Kind != ddg.EdgeRegister || e.Type != ddg.TypeRAW {
			continue
		}
		if e.LoopDistance > 0 {
			return ids.Invalid, false
		}
		if found && producer != e.Tail {
			return ids.Invalid, false
		}
		producer = e.Tail
		found = true
	}
	if !found || g.IsDropped(producer) || g.Node(producer).IsScheduled() {
		return ids.Invalid, false
	}
	return producer, true
}
