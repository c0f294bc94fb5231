// Command bfdump is a thin CLI wrapping the dump package, for ad hoc
// inspection of a scheduled basic block's graph and cycle assignment.
// It builds and schedules a
// fixed demonstration basic block rather than parsing an external
// machine-description format, since none is part of this module's
// contract: the core's input is the in-memory (DDG, ResourceManager)
// pair a caller's own Go code constructs, not a serialized file.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/bf2"
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/dump"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
	"github.com/tta-tools/bubblefish/rm"
)

func main() {
	format := flag.String("format", "dot", "output format: dot, xml, or sched")
	flag.Parse()

	g, resources, err := scheduleDemo()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bfdump:", err)
		os.Exit(1)
	}

	switch *format {
	case "xml":
		fmt.Print(dump.XML(g))
	case "dot":
		fmt.Print(dump.DOT(g))
	case "sched":
		fmt.Print(bf2.ExtractProgram(g, resources).String())
	default:
		fmt.Fprintf(os.Stderr, "bfdump: unknown format %q (want dot, xml, or sched)\n", *format)
		os.Exit(2)
	}
}

// scheduleDemo builds and schedules a single-ALU-add basic block, so
// bfdump has something to render without requiring an external
// machine/program description format.
func scheduleDemo() (*ddg.DDG, *rm.ResourceManager, error) {
	mach := &archmodel.Model{
		Name:  "demo",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"ADD"},
				Ports: []archmodel.Port{
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}},
			},
		},
	}

	reg := opset.NewRegistry()
	reg.Register(&opset.Operation{
		Name:          "ADD",
		Inputs:        []opset.Operand{{Index: 1}, {Index: 2}},
		Outputs:       []opset.Operand{{Index: 3}},
		OutputLatency: []int{1},
	})

	specs := []move.MoveSpec{
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 1, Operation: "ADD",
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r2"},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 2, Operation: "ADD",
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r3"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 3, Operation: "ADD", IsOutput: true,
		},
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	if err != nil {
		return nil, nil, err
	}

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	if err != nil {
		return nil, nil, err
	}
	if err := sched.ScheduleBasicBlock(); err != nil {
		return nil, nil, err
	}
	return g, resources, nil
}
