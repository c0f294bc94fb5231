package bf2

import (
	"errors"
	"math/big"

	"github.com/joeycumines/floater"

	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/internal/trace"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/schederr"
	"github.com/tta-tools/bubblefish/transform"
)

// MarkPreLoopShared flags every node in invariants as pre-loop-shared: a
// loop-invariant operand value the caller has determined can be written
// once, outside the steady-state body, instead of being rematerialized
// every iteration. Full port dedication would need an allocation model
// the archmodel doesn't carry (see DESIGN.md); marking the flag is
// the contract a backend's prolog emission reads to skip per-iteration
// rewrites for these nodes. Returns the number of live nodes marked.
func (s *Scheduler) MarkPreLoopShared(invariants []ids.ID) int {
	n := 0
	for _, id := range invariants {
		if s.ctx.Graph.IsDropped(id) {
			continue
		}
		s.ctx.Graph.Node(id).Flags.PreLoopShared = true
		n++
	}
	return n
}

// ScheduleLoop software-pipelines the loop body: it tries ascending
// initiation intervals, 1 through the configured MaxII, accepting the
// first II whose resulting schedule's overlap count is strictly less
// than the loop's trip count. Each failed II is fully unwound before the
// next is attempted, so a rejected II leaves no trace in the DDG or RM.
func (s *Scheduler) ScheduleLoop(li LoopInfo) (*LoopResult, error) {
	defer func() {
		s.loop = nil
		s.maxCycle = 0
	}()
	for ii := 1; ii <= s.opts.maxII; ii++ {
		s.resetForTrial(ii)
		s.loop = &li
		s.maxCycle = 2*ii - 1

		if err := s.ScheduleBasicBlock(); err != nil {
			var im *schederr.InvalidMachine
			if errors.As(err, &im) {
				return nil, err // a bigger II won't grow an FU inventory
			}
			continue
		}

		first, last, ok := s.cycleRange()
		if !ok {
			continue
		}
		overlap := 0
		if ii > 0 {
			overlap = (last - first) / ii
		}
		trace.Emit(s.opts.trace, trace.LevelInfo, "loop-ii", "trial schedule resource pressure", func(r *trace.Record) {
			r.II = ii
			r.Fields = map[string]any{"pressure": formatPressure(last-first+1, ii)}
		})

		if li.TripCount > 0 && overlap >= li.TripCount {
			continue
		}

		mode := ForLoopEpilog
		if li.TripCount <= 0 {
			mode = NoLoopBuffer
		}

		// The accepted schedule is final: flag the loop-invariant operand
		// writes a backend's pre-loop share allocation hoists, and drop
		// the steady-state guard recompute when the trip count makes it
		// redundant.
		s.MarkPreLoopShared(s.loopInvariantOperands())
		if li.JumpGuardRegister != "" {
			if writer, ok := s.guardWriter(li.JumpGuardRegister); ok {
				if t, err := s.TryRemoveLoopCheck(writer, li, ii); err == nil && t != nil {
					s.lastJournal = append(s.lastJournal, t)
				}
			}
		}

		return &LoopResult{II: ii, Mode: mode, OverlapCount: overlap, FirstCycle: first, LastCycle: last}, nil
	}
	// The last trial may have produced a schedule the overlap check
	// rejected; unwind it so failure leaves no partial instruction stream.
	for i := len(s.lastJournal) - 1; i >= 0; i-- {
		s.lastJournal[i].Undo()
	}
	s.lastJournal = nil
	return nil, schederr.Wrap("schedule loop", &schederr.SchedulingFailure{
		Reason: "no II up to the configured maximum produced overlap_count < trip count",
	})
}

// resetForTrial unwinds the previous trial's committed transforms (a
// rejected trial is a successful schedule the II search declined, so its
// bypasses and drops are still applied), then restores every node to its
// unscheduled, non-finalized state and repoints the scheduler at a fresh
// ResourceManager for the new II.
func (s *Scheduler) resetForTrial(ii int) {
	for i := len(s.lastJournal) - 1; i >= 0; i-- {
		s.lastJournal[i].Undo()
	}
	s.lastJournal = nil

	g := s.ctx.Graph
	for _, n := range g.AllNodes() {
		node := g.Node(n)
		if node.Flags.Dead {
			continue // prolog materializations never rejoin the steady state
		}
		if g.IsDropped(n) {
			g.RestoreNodeFromParent(n)
		}
		node.Move.Cycle = move.Unscheduled
		node.Flags.Finalized = false
		node.Flags.InFrontier = false
		node.Flags.PreLoopShared = false
	}
	g.SetII(ii)
	s.ctx.RM = rm.New(s.ctx.Mach, ii)
}

// guardWriter returns the lowest-id live node writing reg — in loop mode
// the recompute feeding the back branch's guard.
func (s *Scheduler) guardWriter(reg string) (ids.ID, bool) {
	for _, n := range s.ctx.Graph.Nodes() {
		node := s.ctx.Graph.Node(n)
		if node.Move.Destination.Kind == move.DestinationGeneralRegister && node.Move.Destination.Register == reg {
			return n, true
		}
	}
	return ids.Invalid, false
}

// loopInvariantOperands lists the live operand writes whose value cannot
// change across iterations — constant sources feeding a non-trigger FU
// port — the set pre-loop operand-share allocation dedicates ports to.
func (s *Scheduler) loopInvariantOperands() []ids.ID {
	g := s.ctx.Graph
	var out []ids.ID
	for _, n := range g.Nodes() {
		node := g.Node(n)
		if node.AsInputOf == ids.Invalid || node.Move.Source.Kind != move.SourceConstant {
			continue
		}
		if node.Move.Destination.Kind != move.DestinationFUInputPort || node.Move.Destination.Triggering {
			continue
		}
		out = append(out, n)
	}
	return out
}

// TryRemoveLoopCheck attempts transform.NewRemoveLoopCheck
// on the steady-state body's guard-recompute
// node, gated on both the scheduler option and the trip count being an
// exact multiple of the chosen II. Returns (nil, nil) when the option is off or the
// divisibility precondition fails, rather than an error, since skipping
// this optimization is not a scheduling failure.
func (s *Scheduler) TryRemoveLoopCheck(node ids.ID, li LoopInfo, ii int) (*reversibleTransform, error) {
	if !s.opts.removeLoopChecks || !li.tripCountDivisible(ii) {
		return nil, nil
	}
	return transform.NewRemoveLoopCheck(s.ctx, node, true)
}

// formatPressure renders occupiedCycles/ii (the fraction of the steady
// state an II trial actually fills) as a decimal string, via floater's
// exact-rational formatter rather than a float64 division that would
// round differently depending on the magnitudes involved.
func formatPressure(occupiedCycles, ii int) string {
	if ii <= 0 {
		return "n/a"
	}
	return floater.FormatDecimalRat(big.NewRat(int64(occupiedCycles), int64(ii)), 4, 64)
}

// cycleRange returns the smallest and largest scheduled cycle among live
// nodes.
func (s *Scheduler) cycleRange() (first, last int, ok bool) {
	for _, n := range s.ctx.Graph.Nodes() {
		node := s.ctx.Graph.Node(n)
		if !node.IsScheduled() {
			continue
		}
		if !ok || node.Cycle() < first {
			first = node.Cycle()
		}
		if !ok || node.Cycle() > last {
			last = node.Cycle()
		}
		ok = true
	}
	return first, last, ok
}
