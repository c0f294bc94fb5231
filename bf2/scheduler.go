// Package bf2 implements the Bubblefish scheduler core: bottom-up,
// breadth-first front scheduling driven by a retry ladder of progressively
// more conservative local transformations, plus software-pipelined loop
// scheduling via ascending-II search.
package bf2

import (
	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/internal/trace"
	"github.com/tta-tools/bubblefish/opset"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/transform"
)

// Scheduler schedules one basic block's DDG against a ResourceManager,
// driving the RM through reversible steps until every MoveNode is either
// scheduled or proven dead.
type Scheduler struct {
	ctx  *transform.Context
	opts *options

	// loop/maxCycle are set for the duration of a ScheduleLoop trial:
	// the loop facts driving the exact-cycle placement rules, and the
	// 2*II-1 ceiling on a trial schedule.
	loop     *LoopInfo
	maxCycle int

	// lastJournal holds the committed transforms of the most recent
	// successful ScheduleBasicBlock run, so a loop trial the II search
	// rejects can be unwound completely before the next trial.
	lastJournal []*reversibleTransform
}

// New builds a Scheduler over g/resources, scoped to mach's coverage and
// ops' operation metadata.
func New(g *ddg.DDG, resources *rm.ResourceManager, ops *opset.Registry, mach *archmodel.Model, opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		ctx:  &transform.Context{Graph: g, RM: resources, Ops: ops, Mach: mach, LiveOut: cfg.liveOut},
		opts: cfg,
	}, nil
}

// Resources returns the resource manager currently backing the scheduler.
// Loop scheduling replaces the manager on every II trial, so callers that
// emit the accepted schedule must read it from here rather than hold on
// to the one they constructed.
func (s *Scheduler) Resources() *rm.ResourceManager { return s.ctx.RM }

// ScheduleBasicBlock runs the core loop to
// completion: repeatedly select a ready node, assemble its front, and
// schedule the front, until no unscheduled live node remains. Returns a
// *schederr.SchedulingFailure if a front exhausts the retry ladder, or a
// *schederr.InvalidMachine if CheckMachineCoverage rejects the machine
// upfront.
func (s *Scheduler) ScheduleBasicBlock() error {
	if err := CheckMachineCoverage(s.ctx); err != nil {
		return err
	}

	sel := &selector{g: s.ctx.Graph}
	sched := &scheduler{ctx: s.ctx, opts: s.opts, loop: s.loop, maxCycle: s.maxCycle}

	for {
		node, ok := sel.next()
		if !ok {
			break
		}
		f := buildFront(s.ctx.Graph, sel, node)
		for _, n := range f.nodes {
			s.ctx.Graph.Node(n).Flags.InFrontier = true
		}
		err := sched.scheduleFront(f)
		for _, n := range f.nodes {
			if nd := s.ctx.Graph.Node(n); !s.ctx.Graph.IsDropped(n) {
				nd.Flags.InFrontier = false
			}
		}
		if err != nil {
			// Unwind every committed front so the failure leaves the DDG
			// and RM exactly as handed in.
			for i := len(sched.journal) - 1; i >= 0; i-- {
				sched.journal[i].Undo()
			}
			return err
		}
	}

	if s.opts.postPass {
		sched.journal = append(sched.journal, transform.RunPostPassBypass(s.ctx)...)
		sched.journal = append(sched.journal, transform.RunPostPassDRE(s.ctx)...)
	}
	s.lastJournal = sched.journal

	if remaining := s.unscheduledLiveNodes(); len(remaining) > 0 {
		trace.Emit(s.opts.trace, trace.LevelWarn, "schedule", "nodes remain unscheduled after the selector stalled", func(r *trace.Record) {
			r.NodeID = uint32(remaining[0])
		})
	}

	return nil
}

// unscheduledLiveNodes lists every live node that still has no cycle, for
// the diagnostic trace emitted when the main loop stalls (the selector
// found nothing ready, yet unscheduled nodes remain — only possible if the
// DDG has a cycle the builder's acyclicity check should have rejected).
func (s *Scheduler) unscheduledLiveNodes() []ids.ID {
	var out []ids.ID
	for _, n := range s.ctx.Graph.Nodes() {
		if !s.ctx.Graph.Node(n).IsScheduled() {
			out = append(out, n)
		}
	}
	return out
}
