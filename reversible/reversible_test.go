package reversible_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tta-tools/bubblefish/reversible"
)

// recordingEffect appends to a shared log on Apply/Undo so tests can
// assert ordering.
type recordingEffect struct {
	log        *[]string
	name       string
	failApply  bool
	applyCalls int
}

func (e *recordingEffect) Apply() error {
	if e.failApply {
		return errors.New("boom")
	}
	e.applyCalls++
	*e.log = append(*e.log, "apply:"+e.name)
	return nil
}

func (e *recordingEffect) Undo() {
	*e.log = append(*e.log, "undo:"+e.name)
}

func TestApplyUndoRoundTrip(t *testing.T) {
	var log []string
	tr := reversible.New("bypass", &recordingEffect{log: &log, name: "bypass"})
	require.NoError(t, tr.Apply())
	require.True(t, tr.Applied())
	require.Equal(t, []string{"apply:bypass"}, log)

	tr.Undo()
	require.False(t, tr.Applied())
	require.Equal(t, []string{"apply:bypass", "undo:bypass"}, log)
}

func TestUndoOrderPostOwnPre(t *testing.T) {
	var log []string
	parent := reversible.New("parent", &recordingEffect{log: &log, name: "parent"})
	require.NoError(t, parent.Apply())

	preChild := reversible.New("pre", &recordingEffect{log: &log, name: "pre"})
	require.NoError(t, parent.RunChild(reversible.Pre, preChild))

	postChild := reversible.New("post", &recordingEffect{log: &log, name: "post"})
	require.NoError(t, parent.RunChild(reversible.Post, postChild))

	log = nil // reset: only care about undo ordering now
	parent.Undo()

	require.Equal(t, []string{"undo:post", "undo:parent", "undo:pre"}, log)
}

func TestRunChildFailureLeavesParentUnchanged(t *testing.T) {
	var log []string
	parent := reversible.New("parent", &recordingEffect{log: &log, name: "parent"})
	require.NoError(t, parent.Apply())

	failing := reversible.New("fails", &recordingEffect{log: &log, name: "fails", failApply: true})
	err := parent.RunChild(reversible.Post, failing)
	require.Error(t, err)

	pre, post := parent.Children()
	require.Empty(t, pre)
	require.Empty(t, post)
}

func TestApplyFailureLeavesWorldUnchanged(t *testing.T) {
	var log []string
	effect := &recordingEffect{log: &log, name: "x", failApply: true}
	tr := reversible.New("x", effect)
	err := tr.Apply()
	require.Error(t, err)
	require.False(t, tr.Applied())
	require.Zero(t, effect.applyCalls)
}

func TestUndoOnUnappliedIsNoOp(t *testing.T) {
	var log []string
	tr := reversible.New("never-applied", &recordingEffect{log: &log, name: "x"})
	tr.Undo()
	require.Empty(t, log)
}

func TestNestedChildrenUndoRecursively(t *testing.T) {
	var log []string
	root := reversible.New("root", &recordingEffect{log: &log, name: "root"})
	require.NoError(t, root.Apply())

	mid := reversible.New("mid", &recordingEffect{log: &log, name: "mid"})
	require.NoError(t, mid.Apply())
	leaf := reversible.New("leaf", &recordingEffect{log: &log, name: "leaf"})
	require.NoError(t, mid.RunChild(reversible.Post, leaf))

	require.NoError(t, root.RunChild(reversible.Post, mid))

	log = nil
	root.Undo()
	require.Equal(t, []string{"undo:leaf", "undo:mid", "undo:root"}, log)
}
