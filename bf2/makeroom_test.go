package bf2

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
	"github.com/tta-tools/bubblefish/rm"
	"github.com/tta-tools/bubblefish/transform"
)

func makeRoomFixture() (*scheduler, *ddg.DDG, *rm.ResourceManager) {
	mach := &archmodel.Model{Name: "one-bus", Buses: []archmodel.Bus{{Name: "B1"}}}
	g := ddg.New()
	r := rm.New(mach, 0)
	ctx := &transform.Context{Graph: g, RM: r, Ops: opset.NewRegistry(), Mach: mach}
	cfg, _ := resolveOptions(nil)
	return &scheduler{ctx: ctx, opts: cfg}, g, r
}

// A bottom-up placement blocked at its bound pushes the bus occupant one
// cycle earlier, provided the victim's own dependences allow it, and the
// push undoes exactly.
func TestTryMakeRoomPushesVictimEarlier(t *testing.T) {
	s, g, r := makeRoomFixture()

	victim := g.AddNode(move.MoveNode{Move: move.Move{Cycle: 5}})
	r.Assign(5, victim, rm.Request{Bus: "B1"})

	node := g.AddNode(move.MoveNode{Move: move.Move{Cycle: move.Unscheduled}})
	consumer := g.AddNode(move.MoveNode{Move: move.Move{Cycle: 6}})
	_, err := g.AddEdge(ddg.Edge{Kind: ddg.EdgeRegister, Type: ddg.TypeRAW, Tail: node, Head: consumer, Data: "r1"})
	require.NoError(t, err)

	pushT, bus, ok := s.tryMakeRoom(node, rm.Request{}, []string{"B1"}, 5, false)
	require.True(t, ok)
	require.Equal(t, "B1", bus)
	require.Equal(t, 4, g.Node(victim).Cycle())
	require.True(t, r.CanAssign(5, node, rm.Request{Bus: "B1"}))

	pushT.Undo()
	require.Equal(t, 5, g.Node(victim).Cycle())
	require.False(t, r.CanAssign(5, node, rm.Request{Bus: "B1"}))
}

// The top-down form pushes the victim later instead, bounded by the
// victim's scheduled successors.
func TestTryMakeRoomPushesVictimLater(t *testing.T) {
	s, g, r := makeRoomFixture()

	victim := g.AddNode(move.MoveNode{Move: move.Move{Cycle: 5}})
	r.Assign(5, victim, rm.Request{Bus: "B1"})
	succ := g.AddNode(move.MoveNode{Move: move.Move{Cycle: 7}})
	_, err := g.AddEdge(ddg.Edge{Kind: ddg.EdgeRegister, Type: ddg.TypeRAW, Tail: victim, Head: succ, Data: "r2"})
	require.NoError(t, err)

	node := g.AddNode(move.MoveNode{Move: move.Move{Cycle: move.Unscheduled}})

	pushT, bus, ok := s.tryMakeRoom(node, rm.Request{}, []string{"B1"}, 5, true)
	require.True(t, ok)
	require.Equal(t, "B1", bus)
	require.Equal(t, 6, g.Node(victim).Cycle(), "the push honors the successor at 7 minus the RAW latency")

	pushT.Undo()
	require.Equal(t, 5, g.Node(victim).Cycle())
}

// A victim whose dependences pin it in place cannot be moved.
func TestTryMakeRoomRespectsVictimBounds(t *testing.T) {
	s, g, r := makeRoomFixture()

	pred := g.AddNode(move.MoveNode{Move: move.Move{Cycle: 4}})
	victim := g.AddNode(move.MoveNode{Move: move.Move{Cycle: 5}})
	_, err := g.AddEdge(ddg.Edge{Kind: ddg.EdgeRegister, Type: ddg.TypeRAW, Tail: pred, Head: victim, Data: "r3"})
	require.NoError(t, err)
	r.Assign(5, victim, rm.Request{Bus: "B1"})

	node := g.AddNode(move.MoveNode{Move: move.Move{Cycle: move.Unscheduled}})

	_, _, ok := s.tryMakeRoom(node, rm.Request{}, []string{"B1"}, 5, false)
	require.False(t, ok, "the victim cannot move below its predecessor's cycle plus latency")
	require.Equal(t, 5, g.Node(victim).Cycle())
}
