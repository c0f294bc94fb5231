package bf2

import (
	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/transform"
)

// deriveRequest builds the rm.Request a node's current Move needs, bus
// left blank: the source/destination FU ports it touches and the guard
// it's gated by. The scheduler pairs the request with each candidate bus
// from busCandidates when probing cycles. Machine-coverage failures (no
// bus, no FU) are left for CanAssign to reject by returning a Request no
// cycle satisfies; the coverage preflight is what turns those into an
// upfront InvalidMachine diagnostic.
func deriveRequest(ctx *transform.Context, node ids.ID) rm.Request {
	n := ctx.Graph.Node(node)
	var req rm.Request

	if n.Move.Source.Kind == move.SourceFUOutputPort {
		req.SrcFU = n.Move.Source.FU
	}
	// Only the triggering write occupies the FU's pipeline slot; a
	// non-triggering operand write only holds its bus and destination
	// port, so two operand writes to the same FU can share a cycle on
	// different buses.
	if n.Move.Destination.Kind == move.DestinationFUInputPort && n.Move.Destination.Triggering {
		req.DstFU = n.Move.Destination.FU
	}
	if n.Move.Guard.Present {
		if n.Move.Guard.Register != "" {
			req.Guard = n.Move.Guard.Register
		} else {
			req.Guard = n.Move.Guard.Port
		}
	}
	return req
}

// busCandidates lists the buses the move could legally travel, in machine
// declaration order: the intersection of the buses reaching the source
// port and those reaching the destination port. A side that is not a
// socket-wired FU port (a register access, a constant, or a machine
// without socket wiring) constrains nothing.
func busCandidates(ctx *transform.Context, n *move.MoveNode) []string {
	srcB := sourcePortBuses(ctx, n)
	dstB := destPortBuses(ctx, n)
	switch {
	case srcB == nil && dstB == nil:
		out := make([]string, len(ctx.Mach.Buses))
		for i := range ctx.Mach.Buses {
			out[i] = ctx.Mach.Buses[i].Name
		}
		return out
	case srcB == nil:
		return dstB
	case dstB == nil:
		return srcB
	default:
		return intersectBuses(srcB, dstB)
	}
}

// transportRealizable reports whether a direct source-to-destination
// transport exists: false only when both sides are socket-wired FU ports
// with no bus in common, the case register-copy insertion repairs.
func transportRealizable(ctx *transform.Context, n *move.MoveNode) bool {
	srcB := sourcePortBuses(ctx, n)
	dstB := destPortBuses(ctx, n)
	if srcB == nil || dstB == nil {
		return true
	}
	return len(intersectBuses(srcB, dstB)) > 0
}

// sourcePortBuses returns the buses reaching the move's source FU port,
// or nil when the source doesn't constrain the bus choice.
func sourcePortBuses(ctx *transform.Context, n *move.MoveNode) []string {
	if n.Move.Source.Kind != move.SourceFUOutputPort {
		return nil
	}
	return busNames(ctx.Mach.BusesReaching(n.Move.Source.Port))
}

// destPortBuses is sourcePortBuses' destination-side counterpart.
func destPortBuses(ctx *transform.Context, n *move.MoveNode) []string {
	if n.Move.Destination.Kind != move.DestinationFUInputPort {
		return nil
	}
	return busNames(ctx.Mach.BusesReaching(n.Move.Destination.Port))
}

func busNames(buses []*archmodel.Bus) []string {
	if len(buses) == 0 {
		return nil
	}
	out := make([]string, len(buses))
	for i, b := range buses {
		out[i] = b.Name
	}
	return out
}

func intersectBuses(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, name := range b {
		inB[name] = true
	}
	var out []string
	for _, name := range a {
		if inB[name] {
			out = append(out, name)
		}
	}
	return out
}

// portWidth looks up the declared bit width of an FU port; ok is false
// when the machine doesn't describe the port.
func portWidth(m *archmodel.Model, fuName, portName string) (int, bool) {
	for i := range m.FUs {
		if m.FUs[i].Name != fuName {
			continue
		}
		for _, p := range m.FUs[i].Ports {
			if p.Name == portName {
				return p.Width, true
			}
		}
	}
	return 0, false
}

// immediateFits reports whether a constant-source move's literal encodes
// on its destination port. Ports with no declared width (0) accept any
// literal, as do non-constant or non-port moves.
func immediateFits(ctx *transform.Context, n *move.MoveNode) bool {
	if n.Move.Source.Kind != move.SourceConstant || n.Move.Destination.Kind != move.DestinationFUInputPort {
		return true
	}
	w, ok := portWidth(ctx.Mach, n.Move.Destination.FU, n.Move.Destination.Port)
	if !ok || w <= 0 {
		return true
	}
	return ctx.Mach.CanEncodeImmediate(n.Move.Source.Constant, w)
}
