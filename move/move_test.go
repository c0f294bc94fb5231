package move_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
)

func TestOperandIndicesSorted(t *testing.T) {
	po := move.NewProgramOperation("ADD")
	po.Inputs[2] = ids.ID(5)
	po.Inputs[1] = ids.ID(4)
	po.Outputs[3] = ids.ID(6)

	require.Equal(t, []int{1, 2}, po.InputIndices())
	require.Equal(t, []int{3}, po.OutputIndices())
}

func TestIsScheduled(t *testing.T) {
	n := move.MoveNode{Move: move.Move{Cycle: move.Unscheduled}}
	require.False(t, n.IsScheduled())

	n.Move.Cycle = 0
	require.True(t, n.IsScheduled(), "cycle 0 is a real cycle, not the unscheduled sentinel")
}

func TestDuplicateShedsSchedulingState(t *testing.T) {
	n := &move.MoveNode{
		ID: ids.ID(9),
		Move: move.Move{
			Source: move.Source{Kind: move.SourceGeneralRegister, Register: "r1"},
			Cycle:  14,
		},
		Flags:      move.Flags{Finalized: true, PreLoopShared: true},
		InputIndex: 2,
	}

	dup := move.Duplicate(n)
	require.Equal(t, ids.Invalid, dup.ID)
	require.False(t, dup.IsScheduled())
	require.Equal(t, move.Flags{}, dup.Flags)
	require.Equal(t, "r1", dup.Move.Source.Register)
	require.Equal(t, 2, dup.InputIndex, "operand wiring survives, scheduling state does not")

	require.Equal(t, 14, n.Move.Cycle, "the source node is untouched")
}
