package bf2

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/rm"
)

// ScheduledMove is one transport in the emitted instruction stream: the
// move plus the bus, guard, and immediate template the resource manager
// assigned it.
type ScheduledMove struct {
	Node     ids.ID
	Move     move.Move
	Bus      string
	Guard    string
	Template string
}

// Instruction is every move executing in one cycle.
type Instruction struct {
	Cycle int
	Moves []ScheduledMove
}

// Program is the scheduler's output: a cycle-indexed instruction stream,
// plus the separately-emitted prolog/epilog image when the block was
// software-pipelined.
type Program struct {
	Instructions  []Instruction
	Prolog        []Instruction
	SmallestCycle int
	LargestCycle  int
}

// ExtractProgram reads the scheduled cycles out of g and the resource
// assignments out of r and produces the instruction stream. Only live,
// scheduled nodes are emitted; dropped (dead-result-eliminated) moves
// never appear. Instructions are ordered by cycle, the moves within one
// instruction by node id, so two identical scheduler runs render the same
// stream byte for byte.
func ExtractProgram(g *ddg.DDG, r *rm.ResourceManager) *Program {
	p := &Program{}
	byCycle := make(map[int][]ScheduledMove)
	var cycles []int
	first := true
	for _, n := range g.Nodes() {
		node := g.Node(n)
		if !node.IsScheduled() {
			continue
		}
		c := node.Cycle()
		sm := ScheduledMove{Node: n, Move: node.Move, Bus: node.Move.Bus}
		if cycle, req, ok := r.Assignment(n); ok && cycle == c {
			sm.Bus = req.Bus
			sm.Guard = req.Guard
			sm.Template = req.Template
		}
		if _, seen := byCycle[c]; !seen {
			cycles = append(cycles, c)
		}
		byCycle[c] = append(byCycle[c], sm)
		if first || c < p.SmallestCycle {
			p.SmallestCycle = c
		}
		if first || c > p.LargestCycle {
			p.LargestCycle = c
		}
		first = false
	}
	sortInts(cycles)
	for _, c := range cycles {
		p.Instructions = append(p.Instructions, Instruction{Cycle: c, Moves: byCycle[c]})
	}

	if prolog := r.Prolog(); prolog != nil {
		p.Prolog = extractMirror(g, prolog)
	}
	return p
}

// extractMirror renders the prolog RM's mirrored assignments, keeping the
// biased cycle numbers so a backend can recognize them by their
// PROLOG_CYCLE_BIAS offset. Dropped nodes are included deliberately: a
// loop bypass's materialized previous-iteration copy lives only here, and
// a body move dead enough to be dropped has already lost its prolog
// assignment along with its main one.
func extractMirror(g *ddg.DDG, r *rm.ResourceManager) []Instruction {
	byCycle := make(map[int][]ScheduledMove)
	var cycles []int
	for _, n := range r.AssignedNodes() {
		cycle, req, ok := r.Assignment(n)
		if !ok {
			continue
		}
		if _, seen := byCycle[cycle]; !seen {
			cycles = append(cycles, cycle)
		}
		byCycle[cycle] = append(byCycle[cycle], ScheduledMove{
			Node: n, Move: g.Node(n).Move,
			Bus: req.Bus, Guard: req.Guard, Template: req.Template,
		})
	}
	sortInts(cycles)
	out := make([]Instruction, 0, len(cycles))
	for _, c := range cycles {
		out = append(out, Instruction{Cycle: c, Moves: byCycle[c]})
	}
	return out
}

func sortInts(s []int) {
	slices.SortFunc(s, func(a, b int) int { return a - b })
}

// String renders the stream one instruction per line, prolog last, for
// the bfdump CLI and for eyeballing test failures.
func (p *Program) String() string {
	var b strings.Builder
	for _, ins := range p.Instructions {
		writeInstruction(&b, ins)
	}
	if len(p.Prolog) > 0 {
		b.WriteString("prolog:\n")
		for _, ins := range p.Prolog {
			writeInstruction(&b, ins)
		}
	}
	return b.String()
}

func writeInstruction(b *strings.Builder, ins Instruction) {
	fmt.Fprintf(b, "cycle %d:", ins.Cycle)
	for _, m := range ins.Moves {
		fmt.Fprintf(b, " [%s] %s -> %s", m.Bus, describeSource(m.Move.Source), describeDestination(m.Move.Destination))
		if m.Guard != "" {
			fmt.Fprintf(b, " ?%s", m.Guard)
		}
	}
	b.WriteString("\n")
}

func describeSource(s move.Source) string {
	switch s.Kind {
	case move.SourceConstant:
		return fmt.Sprintf("#%d", s.Constant)
	case move.SourceImmediateRegister:
		return "imm:" + s.Register
	case move.SourceFUOutputPort:
		return s.FU + "." + s.Port
	default:
		return s.Register
	}
}

func describeDestination(d move.Destination) string {
	if d.Kind == move.DestinationFUInputPort {
		return d.FU + "." + d.Port
	}
	return d.Register
}
