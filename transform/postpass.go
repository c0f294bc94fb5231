package transform

import (
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/reversible"
)

// RunPostPassBypass walks the DDG's live nodes in ascending (program)
// order and applies NewEarlyBypass wherever it newly legalizes now that
// the whole basic block is scheduled and fully visible. Unlike the
// in-schedule form, both endpoints are already placed, so a bypass is only
// taken when dst's cycle still honors the producer pipeline it now reads
// from directly, and when dst's assigned bus reaches the producer's output
// port. It returns every transform that succeeded, already
// applied; the caller owns undoing them on a later backtrack.
func RunPostPassBypass(ctx *Context) []*reversible.Transform {
	var applied []*reversible.Transform
	for _, dst := range ctx.Graph.Nodes() {
		src, ok := soleRAWProducerOf(ctx.Graph, dst)
		if !ok || !ctx.Graph.Node(src).IsScheduled() {
			continue
		}
		if s := ctx.Graph.Node(src).Move.Source; s.Kind == move.SourceFUOutputPort && ctx.Mach != nil {
			// dst keeps its bus, which must reach the port it would now read.
			if _, req, assigned := ctx.RM.Assignment(dst); assigned && req.Bus != "" {
				buses := ctx.Mach.BusesReaching(s.Port)
				reaches := len(buses) == 0
				for _, b := range buses {
					reaches = reaches || b.Name == req.Bus
				}
				if !reaches {
					continue
				}
			}
		}
		if !bypassCycleLegal(ctx.Graph, dst, src) {
			continue
		}
		t, err := NewEarlyBypass(ctx, dst, src)
		if err != nil {
			continue
		}
		applied = append(applied, t)
	}
	return applied
}

// bypassCycleLegal reports whether dst, at its current cycle, can read the
// producer's FU output directly: the producer's trigger must have fired
// early enough for the result to exist.
func bypassCycleLegal(g *ddg.DDG, dst, src ids.ID) bool {
	d := g.Node(dst)
	if !d.IsScheduled() {
		return false
	}
	trigger, weight, ok := producerTrigger(g, src)
	if !ok {
		return true // no producing operation: a plain copy chain, any cycle works
	}
	t := g.Node(trigger)
	return t.IsScheduled() && t.Cycle()+weight <= d.Cycle()
}

// RunPostPassDRE walks the DDG's live register writes and drops every one
// with no remaining consumer and no live-out reader, in ascending order so
// earlier drops can make later nodes newly dead. Without a LiveOut set on
// the Context every write is potentially read by a successor block, so the
// sweep drops nothing.
func RunPostPassDRE(ctx *Context) []*reversible.Transform {
	if ctx.LiveOut == nil {
		return nil
	}
	var applied []*reversible.Transform
	for _, n := range ctx.Graph.Nodes() {
		if ctx.Graph.Node(n).Move.Destination.Kind != move.DestinationGeneralRegister {
			continue
		}
		if hasRemainingConsumer(ctx.Graph, n) {
			continue
		}
		t, err := NewDeadResultEliminationEarly(ctx, n)
		if err != nil {
			continue
		}
		applied = append(applied, t)
	}
	return applied
}

// soleRAWProducerOf resolves dst's single intra-iteration RAW producer. A
// loop-carried producer disqualifies the node: bypassing it would read the
// same iteration's freshly computed value instead of the previous one.
func soleRAWProducerOf(g *ddg.DDG, dst ids.ID) (ids.ID, bool) {
	var src ids.ID
	found := false
	for _, eid := range g.InEdges(dst) {
		e := g.Edge(eid)
		if e.Kind != ddg.EdgeRegister || e.Type != ddg.TypeRAW || e.GuardUse {
			continue
		}
		if e.LoopDistance > 0 || found {
			return 0, false
		}
		src = e.Tail
		found = true
	}
	return src, found
}
