// Package reversible implements the reversible local-transformation
// framework the scheduler composes every optimization from: apply/undo
// plus ordered pre/post child transformation lists.
//
// Rather than a class hierarchy with one subtype per transformation,
// every transformation is a single Transform type parameterized by an
// Effect value, so all of them share one apply/undo/run-child
// implementation and only the effect varies.
package reversible

// Effect is the transformation-specific logic a Transform wraps: the own
// effect undone between the post and pre children.
type Effect interface {
	// Apply attempts the change. On success it must have recorded
	// everything Undo needs; on failure it must leave the world
	// unchanged.
	Apply() error
	// Undo reverts exactly what Apply did. Only called after a
	// successful Apply.
	Undo()
}

// NoEffect is an Effect for purely-composite transformations that exist
// only to coordinate children (e.g. a scheduling front's outer transform).
type NoEffect struct{}

func (NoEffect) Apply() error { return nil }
func (NoEffect) Undo()        {}

// ChildSlot selects which child list RunChild appends to.
type ChildSlot int8

const (
	// Pre children must exist before this transformation's own effect is
	// meaningful.
	Pre ChildSlot = iota
	// Post children are chained after this transformation's own effect.
	Post
)

// Transform is one reversible local transformation: an Effect plus the
// ordered pre/post child transformations attached through RunChild after
// it is applied.
type Transform struct {
	Name    string
	effect  Effect
	pre     []*Transform
	post    []*Transform
	applied bool
}

// New wraps effect in a Transform, not yet applied. name is a short label
// used only for diagnostics/tracing (e.g. "early-bypass").
func New(name string, effect Effect) *Transform {
	return &Transform{Name: name, effect: effect}
}

// Applied reports whether Apply succeeded and Undo has not yet been
// called.
func (t *Transform) Applied() bool { return t.applied }

// Apply attempts t's own effect. On success t is marked applied and ready
// to accept children via RunChild; on failure t is left untouched and
// returns the error unchanged.
func (t *Transform) Apply() error {
	if t.applied {
		return nil
	}
	if err := t.effect.Apply(); err != nil {
		return err
	}
	t.applied = true
	return nil
}

// RunChild attempts child's own Apply (which applies only child's effect;
// children already attached to child stay as they are). On success child is appended to t's pre or post list per slot; on
// failure child is discarded and t is left exactly as it was. t must
// already be applied.
func (t *Transform) RunChild(slot ChildSlot, child *Transform) error {
	if err := child.Apply(); err != nil {
		return err
	}
	switch slot {
	case Pre:
		t.pre = append(t.pre, child)
	case Post:
		t.post = append(t.post, child)
	}
	return nil
}

// Undo reverts, in order: post children (reverse push order), t's own
// effect, then pre children (reverse push order). Undo on a Transform that was
// never successfully applied is a no-op.
func (t *Transform) Undo() {
	if !t.applied {
		return
	}
	for i := len(t.post) - 1; i >= 0; i-- {
		t.post[i].Undo()
	}
	t.post = nil

	t.effect.Undo()
	t.applied = false

	for i := len(t.pre) - 1; i >= 0; i-- {
		t.pre[i].Undo()
	}
	t.pre = nil
}

// Children returns the pre and post child transformations currently
// attached to t, each in push (application) order.
func (t *Transform) Children() (pre, post []*Transform) {
	return t.pre, t.post
}
