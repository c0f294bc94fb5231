package transform

import (
	"errors"

	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/reversible"
	"github.com/tta-tools/bubblefish/schederr"
)

// removeLoopCheckEffect drops the steady-state body's guard-recompute
// node, on the premise that a statically known trip count makes it
// redundant (the epilog keeps its own copy). Off by default; see
// bf2.WithRemoveRedundantLoopChecks.
type removeLoopCheckEffect struct {
	ctx  *Context
	node ids.ID
}

func (e *removeLoopCheckEffect) Apply() error {
	e.ctx.Graph.DropNode(e.node)
	return nil
}

func (e *removeLoopCheckEffect) Undo() {
	e.ctx.Graph.RestoreNodeFromParent(e.node)
}

// NewRemoveLoopCheck drops the steady-state loop-check recompute at node.
// The caller must have already verified the trip count is an exact
// multiple of the chosen II (bf2.LoopInfo.TripCount), since this transform
// does not re-derive that condition.
func NewRemoveLoopCheck(ctx *Context, node ids.ID, tripCountDivisible bool) (*reversible.Transform, error) {
	if !tripCountDivisible {
		return nil, schederr.Wrap("remove loop check", errors.New("trip count is not an exact multiple of the chosen II"))
	}
	t := reversible.New("remove-loop-check", &removeLoopCheckEffect{ctx: ctx, node: node})
	if err := t.Apply(); err != nil {
		return nil, err
	}
	return t, nil
}
