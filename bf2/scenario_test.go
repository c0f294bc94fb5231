package bf2_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/bf2"
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
	"github.com/tta-tools/bubblefish/rm"
)

func twoBusOneALUMachine() *archmodel.Model {
	return &archmodel.Model{
		Name: "two-bus-one-alu",
		Buses: []archmodel.Bus{
			{Name: "B1"}, {Name: "B2"},
		},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"ADD", "SUB"},
				Ports: []archmodel.Port{
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}, "SUB": {1}},
			},
		},
	}
}

func registryWithADDandMUL() *opset.Registry {
	reg := opset.NewRegistry()
	reg.Register(&opset.Operation{
		Name:          "ADD",
		Inputs:        []opset.Operand{{Index: 1}, {Index: 2}},
		Outputs:       []opset.Operand{{Index: 3}},
		OutputLatency: []int{1},
	})
	reg.Register(&opset.Operation{
		Name:          "SUB",
		Inputs:        []opset.Operand{{Index: 1}, {Index: 2}},
		Outputs:       []opset.Operand{{Index: 3}},
		OutputLatency: []int{1},
	})
	reg.Register(&opset.Operation{
		Name:          "MUL",
		Inputs:        []opset.Operand{{Index: 1}, {Index: 2}},
		Outputs:       []opset.Operand{{Index: 3}},
		Commutative:   [][2]int{{1, 2}},
		OutputLatency: []int{1},
	})
	return reg
}

// Scenario 1: single ALU add — operand writes on different buses, a
// trigger cycle, and a result-read cycle.
func TestScenarioSingleALUAdd(t *testing.T) {
	mach := twoBusOneALUMachine()
	reg := registryWithADDandMUL()

	op1 := move.MoveSpec{
		Move: move.Move{
			Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
			Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: false},
			Cycle:       move.Unscheduled,
		},
		OperationInstance: 0, OperandIndex: 1, Operation: "ADD",
	}
	op2 := move.MoveSpec{
		Move: move.Move{
			Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r2"},
			Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true},
			Cycle:       move.Unscheduled,
		},
		OperationInstance: 0, OperandIndex: 2, Operation: "ADD",
	}
	result := move.MoveSpec{
		Move: move.Move{
			Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"},
			Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r3"},
			Cycle:       move.Unscheduled,
		},
		OperationInstance: 0, OperandIndex: 3, Operation: "ADD", IsOutput: true,
	}

	g, _, err := ddg.BuildBasicBlock([]move.MoveSpec{op1, op2, result}, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	for _, n := range g.Nodes() {
		require.True(t, g.Node(n).IsScheduled(), "every live move must be scheduled")
	}
}

// Scenario 6: the machine has no ADD FU; the DDG build still succeeds
// but scheduling fails with InvalidMachine.
func TestScenarioMissingADDImplementation(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "no-adder",
		Buses: []archmodel.Bus{{Name: "B1"}},
		FUs: []archmodel.FunctionUnit{
			{Name: "ALU0", Operations: []string{"SUB"}, Latency: map[string][]int{"SUB": {1}}},
		},
	}
	reg := registryWithADDandMUL()

	op1 := move.MoveSpec{
		Move: move.Move{
			Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
			Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t"},
			Cycle:       move.Unscheduled,
		},
		OperationInstance: 0, OperandIndex: 1, Operation: "ADD",
	}
	op2 := move.MoveSpec{
		Move: move.Move{
			Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r2"},
			Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true},
			Cycle:       move.Unscheduled,
		},
		OperationInstance: 0, OperandIndex: 2, Operation: "ADD",
	}

	g, _, err := ddg.BuildBasicBlock([]move.MoveSpec{op1, op2}, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)

	err = sched.ScheduleBasicBlock()
	require.Error(t, err)
}

// Scenario 2: commutative MUL where only the trigger port can hold the
// immediate — the user wrote MUL(imm, reg) with the literal on a narrow
// operand port. The scheduler inserts the operand swap itself, so the
// trigger port receives the immediate and the schedule length matches the
// plain single-ALU case.
func TestScenarioCommutativeSwap(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "narrow-operand-port",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"MUL"},
				Ports: []archmodel.Port{
					{Name: "ALU0.in", Direction: archmodel.DirectionIn, Width: 8},
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn, Width: 32},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut, Width: 32},
				},
				Latency: map[string][]int{"MUL": {1}},
			},
		},
	}
	reg := registryWithADDandMUL()

	specs := []move.MoveSpec{
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceConstant, Constant: 300},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.in"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 1, Operation: "MUL",
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 2, Operation: "MUL",
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r3"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 3, Operation: "MUL", IsOutput: true,
		},
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	first, last := 0, 0
	seen := false
	var immediate *move.MoveNode
	for _, n := range g.Nodes() {
		node := g.Node(n)
		require.True(t, node.IsScheduled())
		if !seen || node.Cycle() < first {
			first = node.Cycle()
		}
		if !seen || node.Cycle() > last {
			last = node.Cycle()
		}
		seen = true
		if node.Move.Source.Kind == move.SourceConstant {
			immediate = node
		}
	}
	require.NotNil(t, immediate)
	require.True(t, immediate.Move.Destination.Triggering, "the swap must land the immediate on the trigger port")
	require.Equal(t, "ALU0.t", immediate.Move.Destination.Port)
	require.Equal(t, 1+1 /* 1 + latency(MUL) */, last-first, "schedule length matches the unswapped single-ALU case")
}

// bypassBlockSpecs is the ADD-feeds-SUB block both bypass scenarios use:
// r3 = ADD(r1, r2); r5 = SUB(r3, r4).
func bypassBlockSpecs() []move.MoveSpec {
	return []move.MoveSpec{
		{
			Move:              move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r1"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t"}, Cycle: move.Unscheduled},
			OperationInstance: 0, OperandIndex: 1, Operation: "ADD",
		},
		{
			Move:              move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r2"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true}, Cycle: move.Unscheduled},
			OperationInstance: 0, OperandIndex: 2, Operation: "ADD",
		},
		{
			Move:              move.Move{Source: move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"}, Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r3"}, Cycle: move.Unscheduled},
			OperationInstance: 0, OperandIndex: 3, Operation: "ADD", IsOutput: true,
		},
		{
			Move:              move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r3"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t"}, Cycle: move.Unscheduled},
			OperationInstance: 1, OperandIndex: 1, Operation: "SUB",
		},
		{
			Move:              move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r4"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true}, Cycle: move.Unscheduled},
			OperationInstance: 1, OperandIndex: 2, Operation: "SUB",
		},
		{
			Move:              move.Move{Source: move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"}, Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r5"}, Cycle: move.Unscheduled},
			OperationInstance: 1, OperandIndex: 3, Operation: "SUB", IsOutput: true,
		},
	}
}

// Scenario 3: bypass. One FU with full connectivity produces
// ADD(r1,r2) -> r3, then SUB(r3,r4) -> r5 consumes r3 directly from the FU
// output port; the intermediate r3 register write is dead-result-eliminated.
func TestScenarioBypassDropsIntermediateWrite(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "one-alu-full-connectivity",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"ADD", "SUB"},
				Ports: []archmodel.Port{
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}, "SUB": {1}},
			},
		},
	}
	reg := registryWithADDandMUL()

	specs := bypassBlockSpecs()
	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)
	require.Len(t, g.Nodes(), len(specs))

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	require.Len(t, g.Nodes(), len(specs)-1, "ADD's intermediate r3 register write is DRE'd after bypass")
}

// The same block with r3 declared live out: the bypass still rewires SUB
// to read the FU port, but the r3 register write must survive for
// whatever reads it after the block.
func TestScenarioBypassKeepsLiveOutWrite(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "one-alu-full-connectivity",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"ADD", "SUB"},
				Ports: []archmodel.Port{
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}, "SUB": {1}},
			},
		},
	}
	reg := registryWithADDandMUL()

	specs := bypassBlockSpecs()
	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach, bf2.WithLiveOut([]string{"r3", "r5"}))
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	require.Len(t, g.Nodes(), len(specs), "a live-out write is never dead-result-eliminated")
	for _, n := range g.Nodes() {
		require.True(t, g.Node(n).IsScheduled())
	}
}

// Scenario 4: software-pipelined loop. Body:
// r1 = LD(r0); r2 = ADD(r1, 1); ST(r0, r2); r0 = ADD(r0, 4). r0 is
// loop-carried: the final ADD's output feeds every r0 read one iteration
// later, wired via BuildOptions.ReachesIn with LoopDistance 1 since the
// same basic block is its own predecessor under software pipelining. The
// branch-guard instruction itself isn't modeled; it contributes no data
// dependence ScheduleLoop's II search or overlap-count property needs.
func TestScenarioLoopSchedule(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "loop-machine",
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
			{
				Name:       "LSU0",
				Operations: []string{"LD", "ST"},
				Ports: []archmodel.Port{
					{Name: "LSU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "LSU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"LD": {2}},
			},
		},
	}

	reg := opset.NewRegistry()
	reg.Register(&opset.Operation{Name: "LD", Inputs: []opset.Operand{{Index: 1}}, Outputs: []opset.Operand{{Index: 2}}, IsMemoryAccess: true, OutputLatency: []int{2}})
	reg.Register(&opset.Operation{Name: "ST", Inputs: []opset.Operand{{Index: 1}, {Index: 2}}, IsMemoryAccess: true, HasSideEffects: true})
	reg.Register(&opset.Operation{Name: "ADD", Inputs: []opset.Operand{{Index: 1}, {Index: 2}}, Outputs: []opset.Operand{{Index: 3}}, OutputLatency: []int{1}})

	specs := []move.MoveSpec{
		// r1 = LD(r0)
		{Move: move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r0"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "LSU0", Port: "LSU0.t", Triggering: true}, Cycle: move.Unscheduled}, OperationInstance: 0, OperandIndex: 1, Operation: "LD"},
		{Move: move.Move{Source: move.Source{Kind: move.SourceFUOutputPort, FU: "LSU0", Port: "LSU0.o"}, Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r1"}, Cycle: move.Unscheduled}, OperationInstance: 0, OperandIndex: 2, Operation: "LD", IsOutput: true},
		// r2 = ADD(r1, 1)
		{Move: move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r1"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t"}, Cycle: move.Unscheduled}, OperationInstance: 1, OperandIndex: 1, Operation: "ADD"},
		{Move: move.Move{Source: move.Source{Kind: move.SourceConstant, Constant: 1}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true}, Cycle: move.Unscheduled}, OperationInstance: 1, OperandIndex: 2, Operation: "ADD"},
		{Move: move.Move{Source: move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"}, Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r2"}, Cycle: move.Unscheduled}, OperationInstance: 1, OperandIndex: 3, Operation: "ADD", IsOutput: true},
		// ST(r0, r2)
		{Move: move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r0"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "LSU0", Port: "LSU0.t"}, Cycle: move.Unscheduled}, OperationInstance: 2, OperandIndex: 1, Operation: "ST"},
		{Move: move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r2"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "LSU0", Port: "LSU0.t", Triggering: true}, Cycle: move.Unscheduled}, OperationInstance: 2, OperandIndex: 2, Operation: "ST"},
		// r0 = ADD(r0, 4)
		{Move: move.Move{Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r0"}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t"}, Cycle: move.Unscheduled}, OperationInstance: 3, OperandIndex: 1, Operation: "ADD"},
		{Move: move.Move{Source: move.Source{Kind: move.SourceConstant, Constant: 4}, Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true}, Cycle: move.Unscheduled}, OperationInstance: 3, OperandIndex: 2, Operation: "ADD"},
		{Move: move.Move{Source: move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"}, Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r0"}, Cycle: move.Unscheduled}, OperationInstance: 3, OperandIndex: 3, Operation: "ADD", IsOutput: true},
	}

	// The tenth row above (index 9) is the node that will define r0; since
	// AddNode hands out ids in append order, its id is known before the
	// build runs and self-references as the loop-carried reaching def for
	// every earlier r0 read in the same body.
	r0Def := ids.ID(len(specs))
	opts := ddg.BuildOptions{
		ReachesIn: map[string][]ddg.ReachingDef{
			"r0": {{Node: r0Def, LoopDistance: 1}},
		},
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, opts)
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)

	result, err := sched.ScheduleLoop(bf2.LoopInfo{TripCount: 10})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.II, 1)
	require.Less(t, result.OverlapCount, 10, "overlap_count < trip count")

	for _, n := range g.Nodes() {
		require.True(t, g.Node(n).IsScheduled())
	}
}

// With early bypass disabled, the consumer is placed first reading the
// register; when the producer's front comes up, late bypass unassigns the
// consumer, rewires it onto the FU output, reschedules it at least three
// cycles earlier, and drops the now-unread register write.
func TestScenarioLateBypass(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "one-alu-full-connectivity",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"ADD", "SUB"},
				Ports: []archmodel.Port{
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}, "SUB": {1}},
			},
		},
	}
	reg := registryWithADDandMUL()

	specs := bypassBlockSpecs()
	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach, bf2.WithEarlyBypass(false))
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	require.Len(t, g.Nodes(), len(specs)-1, "the r3 write dies once its reader is bypassed")
	bypassed := false
	for _, n := range g.Nodes() {
		node := g.Node(n)
		require.True(t, node.IsScheduled())
		if node.Move.Destination.Kind == move.DestinationFUInputPort &&
			!node.Move.Destination.Triggering &&
			node.Move.Source.Kind == move.SourceFUOutputPort {
			bypassed = true
		}
	}
	require.True(t, bypassed, "the former r3 reader now reads ALU0.o directly")
}

// Two operations reading the same constant at the same operand port: the
// scheduler collapses the second write into the first.
func TestScenarioOperandShare(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "shared-operand",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU0",
				Operations: []string{"ADD"},
				Ports: []archmodel.Port{
					{Name: "ALU0.in", Direction: archmodel.DirectionIn},
					{Name: "ALU0.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}},
			},
		},
	}
	reg := registryWithADDandMUL()

	operand := func(instance int) move.MoveSpec {
		return move.MoveSpec{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceConstant, Constant: 4},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.in"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: instance, OperandIndex: 1, Operation: "ADD",
		}
	}
	trigger := func(instance int, r string) move.MoveSpec {
		return move.MoveSpec{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: r},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU0", Port: "ALU0.t", Triggering: true},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: instance, OperandIndex: 2, Operation: "ADD",
		}
	}
	result := func(instance int, r string) move.MoveSpec {
		return move.MoveSpec{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: r},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: instance, OperandIndex: 3, Operation: "ADD", IsOutput: true,
		}
	}
	specs := []move.MoveSpec{
		operand(0), trigger(0, "r1"), result(0, "r3"),
		operand(1), trigger(1, "r2"), result(1, "r4"),
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	require.Len(t, g.Nodes(), len(specs)-1, "one of the two identical operand writes is shared away")
	for _, n := range g.Nodes() {
		require.True(t, g.Node(n).IsScheduled())
	}
	pos := g.ProgramOperations()
	require.Len(t, pos, 2)
	require.Equal(t, g.ProgramOperation(pos[0]).Inputs[1], g.ProgramOperation(pos[1]).Inputs[1],
		"both operations read the same operand write")
}

// A register guard whose value comes straight off an FU output port, on a
// machine that exposes that port as a guard source: the scheduler rewrites
// the consumer to the port guard.
func TestScenarioGuardConversion(t *testing.T) {
	mach := &archmodel.Model{
		Name:   "port-guarded",
		Buses:  []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		Guards: []archmodel.Guard{{Name: "ALU0.o"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name: "ALU0",
				Ports: []archmodel.Port{
					{Name: "ALU0.o", Direction: archmodel.DirectionOut},
				},
			},
		},
	}
	reg := opset.NewRegistry()

	specs := []move.MoveSpec{
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "ALU0", Port: "ALU0.o"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "b1"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: -1,
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r2"},
				Guard:       move.Guard{Present: true, Register: "b1"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: -1,
		},
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	guarded := g.Node(g.Nodes()[1])
	require.Equal(t, "ALU0.o", guarded.Move.Guard.Port)
	require.Empty(t, guarded.Move.Guard.Register)
}

// No bus connects the producer's output socket to the consumer's input
// socket: the scheduler inserts a register copy and schedules both halves.
func TestScenarioRegisterCopyForConnectivity(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "split-connectivity",
		Buses: []archmodel.Bus{{Name: "B1", Sockets: []string{"s1"}}, {Name: "B2", Sockets: []string{"s2"}}},
		Sockets: []archmodel.Socket{
			{Name: "s1", Ports: []string{"FU1.o"}},
			{Name: "s2", Ports: []string{"FU2.t"}},
		},
		FUs: []archmodel.FunctionUnit{
			{Name: "FU1", Ports: []archmodel.Port{{Name: "FU1.o", Direction: archmodel.DirectionOut}}},
			{Name: "FU2", Ports: []archmodel.Port{{Name: "FU2.t", Triggering: true, Direction: archmodel.DirectionIn}}},
		},
	}
	reg := opset.NewRegistry()

	specs := []move.MoveSpec{
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "FU1", Port: "FU1.o"},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "FU2", Port: "FU2.t", Triggering: true},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: -1,
		},
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)
	require.NoError(t, sched.ScheduleBasicBlock())

	nodes := g.Nodes()
	require.Len(t, nodes, 2, "the transport splits into a copy and a register read")
	original := g.Node(nodes[0])
	inserted := g.Node(nodes[1])
	require.True(t, original.IsScheduled())
	require.True(t, inserted.IsScheduled())
	require.Equal(t, move.SourceGeneralRegister, original.Move.Source.Kind, "the consumer now reads the temporary")
	require.Equal(t, "FU1.o", inserted.Move.Source.Port, "the copy drains the producer's port")
	require.Less(t, inserted.Cycle(), original.Cycle())
}

// An accumulator whose only producer is the previous iteration's result
// read, on an FU hosting nothing else: loop bypass rewires the read onto
// the port and materializes the first iteration's value in the prolog.
func TestScenarioLoopBypassAccumulator(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "accumulator",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
		FUs: []archmodel.FunctionUnit{
			{
				Name:       "ALU1",
				Operations: []string{"ADD"},
				Ports: []archmodel.Port{
					{Name: "ALU1.in", Direction: archmodel.DirectionIn},
					{Name: "ALU1.t", Triggering: true, Direction: archmodel.DirectionIn},
					{Name: "ALU1.o", Direction: archmodel.DirectionOut},
				},
				Latency: map[string][]int{"ADD": {1}},
			},
		},
	}
	reg := registryWithADDandMUL()

	specs := []move.MoveSpec{
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r0"},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU1", Port: "ALU1.in"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 1, Operation: "ADD",
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceConstant, Constant: 1},
				Destination: move.Destination{Kind: move.DestinationFUInputPort, FU: "ALU1", Port: "ALU1.t", Triggering: true},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 2, Operation: "ADD",
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceFUOutputPort, FU: "ALU1", Port: "ALU1.o"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r0"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: 0, OperandIndex: 3, Operation: "ADD", IsOutput: true,
		},
	}

	r0Def := ids.ID(len(specs))
	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{
		ReachesIn: map[string][]ddg.ReachingDef{"r0": {{Node: r0Def, LoopDistance: 1}}},
	})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach)
	require.NoError(t, err)

	result, err := sched.ScheduleLoop(bf2.LoopInfo{TripCount: 8})
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.II, 1)

	accumRead := g.Node(g.Nodes()[0])
	require.Equal(t, move.SourceFUOutputPort, accumRead.Move.Source.Kind,
		"the loop-carried read bypasses the register")

	p := bf2.ExtractProgram(g, sched.Resources())
	require.NotEmpty(t, p.Prolog, "the previous iteration's value is materialized in the prolog")
	require.GreaterOrEqual(t, p.Prolog[0].Cycle, rm.PROLOG_CYCLE_BIAS)
}

// A loop whose trip count is an exact multiple of the chosen initiation
// interval can drop the steady-state guard recompute; the epilog keeps its own.
func TestScenarioRemoveLoopCheck(t *testing.T) {
	mach := &archmodel.Model{
		Name:  "check-removal",
		Buses: []archmodel.Bus{{Name: "B1"}, {Name: "B2"}},
	}
	reg := opset.NewRegistry()

	specs := []move.MoveSpec{
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceConstant, Constant: 0},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "glt"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: -1,
		},
		{
			Move: move.Move{
				Source:      move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
				Destination: move.Destination{Kind: move.DestinationGeneralRegister, Register: "r2"},
				Cycle:       move.Unscheduled,
			},
			OperationInstance: -1,
		},
	}

	g, _, err := ddg.BuildBasicBlock(specs, reg, mach, ddg.BuildOptions{})
	require.NoError(t, err)

	resources := rm.New(mach, 0)
	sched, err := bf2.New(g, resources, reg, mach, bf2.WithRemoveRedundantLoopChecks(true))
	require.NoError(t, err)

	result, err := sched.ScheduleLoop(bf2.LoopInfo{TripCount: 10, JumpGuardRegister: "glt"})
	require.NoError(t, err)
	require.Zero(t, 10%result.II, "the search lands on a divisor of the trip count")
	require.Len(t, g.Nodes(), 1, "the steady-state guard recompute is dropped")
}
