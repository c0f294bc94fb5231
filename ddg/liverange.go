package ddg

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/tta-tools/bubblefish/internal/ids"
)

// ReachingDef names a definition of a register reaching into a basic block
// from a predecessor, with its loop distance (0 = fall-through predecessor,
// n>=1 = an n-iteration loop back-edge).
type ReachingDef struct {
	Node         ids.ID
	LoopDistance int
}

// LiveRangeData records, per basic block, each register's first and last
// local definition, its last local use, and (for registers read before any
// local definition) the reaching definitions flowing in from predecessors
// — the mechanism the builder uses to wire cross-BB register RAW edges.
type LiveRangeData struct {
	FirstDefine map[string]ids.ID
	LastDefine  map[string]ids.ID
	LastUse     map[string]ids.ID
	ReachesIn   map[string][]ReachingDef
}

// NewLiveRangeData creates an empty record.
func NewLiveRangeData() *LiveRangeData {
	return &LiveRangeData{
		FirstDefine: make(map[string]ids.ID),
		LastDefine:  make(map[string]ids.ID),
		LastUse:     make(map[string]ids.ID),
		ReachesIn:   make(map[string][]ReachingDef),
	}
}

// RecordDefine updates FirstDefine/LastDefine bookkeeping for a write to
// register r by node n.
func (l *LiveRangeData) RecordDefine(r string, n ids.ID) {
	if _, ok := l.FirstDefine[r]; !ok {
		l.FirstDefine[r] = n
	}
	l.LastDefine[r] = n
}

// RecordUse updates LastUse bookkeeping for a read of register r by node n.
func (l *LiveRangeData) RecordUse(r string, n ids.ID) {
	l.LastUse[r] = n
}

// RecordReachesIn notes that register r may reach into this block from def,
// used when no local definition of r precedes its first local use.
func (l *LiveRangeData) RecordReachesIn(r string, def ReachingDef) {
	l.ReachesIn[r] = append(l.ReachesIn[r], def)
}

// LiveOutCandidates returns every register this block defines — the set a
// successor block or loop epilog could still read, absent global liveness.
// Dead-result elimination's loop-mode check treats membership here as
// "potentially live out" unless the caller supplies real liveness.
func (l *LiveRangeData) LiveOutCandidates() []string {
	out := make([]string, 0, len(l.LastDefine))
	for r := range l.LastDefine {
		out = append(out, r)
	}
	slices.SortFunc(out, strings.Compare)
	return out
}
