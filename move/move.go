// Package move defines the Move/MoveNode/ProgramOperation data model.
// A Move is a single-cycle transport between a source and a
// destination on one bus; a MoveNode wraps it with scheduling state; a
// ProgramOperation aggregates the operand-writes and result-reads that
// realize one instance of an Operation.
package move

import (
	"math"

	"golang.org/x/exp/slices"

	"github.com/tta-tools/bubblefish/internal/ids"
)

// Unscheduled is the sentinel cycle value for a MoveNode that has not been
// assigned a cycle yet.
const Unscheduled = math.MinInt32

// SourceKind enumerates the shapes a Move's source may take.
type SourceKind int8

const (
	SourceConstant SourceKind = iota
	SourceImmediateRegister
	SourceGeneralRegister
	SourceFUOutputPort
)

// DestinationKind enumerates the shapes a Move's destination may take.
type DestinationKind int8

const (
	DestinationGeneralRegister DestinationKind = iota
	DestinationFUInputPort
)

// Source is the read side of a Move.
type Source struct {
	Kind     SourceKind
	Register string // valid for SourceGeneralRegister / SourceImmediateRegister
	Constant int64  // valid for SourceConstant
	FU       string // valid for SourceFUOutputPort
	Port     string // valid for SourceFUOutputPort
}

// Destination is the write side of a Move.
type Destination struct {
	Kind          DestinationKind
	Register      string // valid for DestinationGeneralRegister
	FU            string // valid for DestinationFUInputPort
	Port          string // valid for DestinationFUInputPort
	Triggering    bool
	OpcodeSetting bool
}

// Guard optionally gates a Move.
type Guard struct {
	Present  bool
	Register string
	Port     string
	Inverted bool
}

// Move is a single transport: source to destination within one cycle,
// over one bus, optionally gated by a guard.
type Move struct {
	Source      Source
	Destination Destination
	Guard       Guard
	Bus         string
	Cycle       int // Unscheduled until the resource manager assigns it
}

// Flags carries the per-node scheduling-state booleans.
type Flags struct {
	InFrontier    bool
	Finalized     bool
	Dead          bool
	PreLoopShared bool
}

// MoveNode wraps a Move with scheduling state and back-pointers to the
// ProgramOperations it participates in.
type MoveNode struct {
	ID          ids.ID
	Move        Move
	Flags       Flags
	AsInputOf   ids.ID // ProgramOperation this node feeds as an operand write, or ids.Invalid
	InputIndex  int    // operand index within AsInputOf
	AsOutputOf  ids.ID // ProgramOperation this node reads a result from, or ids.Invalid
	OutputIndex int    // operand index within AsOutputOf
}

// Cycle returns the node's scheduled cycle.
func (n *MoveNode) Cycle() int { return n.Move.Cycle }

// IsScheduled reports whether the node has been assigned a cycle.
func (n *MoveNode) IsScheduled() bool { return n.Move.Cycle != Unscheduled }

// ProgramOperation is the set of operand writes (inputs) and result reads
// (outputs) that realize one operation instance.
type ProgramOperation struct {
	ID           ids.ID
	Operation    string // opset.Operation name
	Inputs       map[int]ids.ID // operand index -> MoveNode id
	Outputs      map[int]ids.ID // operand index -> MoveNode id
	FU           string         // function unit instance name, taken from the trigger move's destination when the DDG is built
	TriggerCycle int            // starts Unscheduled; the scheduler does not update it (the trigger's MoveNode holds its cycle)
}

// NewProgramOperation creates an empty aggregate for the named operation.
func NewProgramOperation(opName string) *ProgramOperation {
	return &ProgramOperation{
		Operation:    opName,
		Inputs:       make(map[int]ids.ID),
		Outputs:      make(map[int]ids.ID),
		TriggerCycle: Unscheduled,
	}
}

// InputIndices returns the operand indices with a registered input move,
// sorted ascending for deterministic iteration.
func (po *ProgramOperation) InputIndices() []int {
	out := make([]int, 0, len(po.Inputs))
	for idx := range po.Inputs {
		out = append(out, idx)
	}
	sortInts(out)
	return out
}

// OutputIndices returns the operand indices with a registered output move,
// sorted ascending.
func (po *ProgramOperation) OutputIndices() []int {
	out := make([]int, 0, len(po.Outputs))
	for idx := range po.Outputs {
		out = append(out, idx)
	}
	sortInts(out)
	return out
}

func sortInts(s []int) {
	slices.SortFunc(s, func(a, b int) int { return a - b })
}

// MoveSpec is one Move plus the bookkeeping a DDG builder needs to group
// moves into ProgramOperations: which operation instance (if any) this
// move's destination belongs to, and which operand index it realizes.
// OperationInstance is -1 for a move with no triggering side (a plain
// register-to-register copy). Operation names the opset.Operation this
// instance realizes; only one MoveSpec per instance needs to set it.
type MoveSpec struct {
	Move              Move
	OperationInstance int
	OperandIndex      int // 1-based input index, or (NumInputs+1).. for outputs
	IsOutput          bool
	Operation         string
}

// Duplicate clones a MoveNode's read-only attributes (the Move and operand
// indices) but not its scheduling state (cycle, flags), so a pre-loop-
// shared operand can be scheduled a second time — once per physical copy
// in the prolog and once in the steady-state body — without the two
// instances aliasing each other's assignment.
func Duplicate(n *MoveNode) *MoveNode {
	dup := *n
	dup.ID = ids.Invalid
	dup.Move.Cycle = Unscheduled
	dup.Flags = Flags{}
	return &dup
}
