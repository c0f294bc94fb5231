// Package rm implements the resource manager: per-cycle assignment of bus,
// source/destination function unit, guard, and immediate slot for a
// MoveNode, plus the prolog/epilog mirror software-pipelined loops use.
//
// The occupation table is indexed by cycle, or by cycle mod II once a
// loop II is set — a fixed window of slots the schedule wraps around in
// modulo mode, held as a map since a resource table's occupants vary per
// slot rather than forming a uniform ordered sequence.
package rm

import (
	"strconv"

	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/schederr"
)

// PROLOG_CYCLE_BIAS offsets the steady-state loop body's cycle numbering
// when mirroring an assignment into the prolog/epilog image.
const PROLOG_CYCLE_BIAS = 1_000_000

// Request describes what a MoveNode needs to occupy for one cycle.
type Request struct {
	Bus      string
	SrcFU    string
	DstFU    string
	Guard    string
	ImmUnit  string
	ImmSlot  int
	RFRead   []string // register file names read this cycle
	RFWrite  []string // register file names written this cycle
	Prolog   bool     // mirror this assignment into the prolog RM as well
	Template string   // immediate-unit instruction template, if any
}

type cycleState struct {
	buses     map[string]ids.ID
	guards    map[string]ids.ID
	srcFU     map[string]ids.ID
	dstFU     map[string]ids.ID
	immSlots  map[string]ids.ID
	rfReaders map[string]int
	rfWriters map[string]int
	templates map[string]bool
}

func newCycleState() *cycleState {
	return &cycleState{
		buses:     make(map[string]ids.ID),
		guards:    make(map[string]ids.ID),
		srcFU:     make(map[string]ids.ID),
		dstFU:     make(map[string]ids.ID),
		immSlots:  make(map[string]ids.ID),
		rfReaders: make(map[string]int),
		rfWriters: make(map[string]int),
		templates: make(map[string]bool),
	}
}

type assignment struct {
	cycle int
	req   Request
}

// ResourceManager tracks, per cycle, which bus/FU/guard/immediate-slot/RF
// port is occupied, and lets assignments be undone exactly.
type ResourceManager struct {
	mach        *archmodel.Model
	ii          int
	cycles      map[int]*cycleState
	assignments map[ids.ID]assignment
	prolog      *ResourceManager
}

// New creates a ResourceManager for mach. ii is the initiation interval (0
// outside loop mode); when ii > 0, a prolog/epilog mirror RM is created
// automatically.
func New(mach *archmodel.Model, ii int) *ResourceManager {
	r := &ResourceManager{
		mach:        mach,
		ii:          ii,
		cycles:      make(map[int]*cycleState),
		assignments: make(map[ids.ID]assignment),
	}
	if ii > 0 {
		r.prolog = &ResourceManager{
			mach:        mach,
			ii:          0,
			cycles:      make(map[int]*cycleState),
			assignments: make(map[ids.ID]assignment),
		}
	}
	return r
}

// II returns the configured initiation interval (0 outside loop mode).
func (r *ResourceManager) II() int { return r.ii }

// Prolog returns the prolog/epilog mirror RM, or nil outside loop mode.
func (r *ResourceManager) Prolog() *ResourceManager { return r.prolog }

func (r *ResourceManager) key(cycle int) int {
	if r.ii <= 0 {
		return cycle
	}
	m := cycle % r.ii
	if m < 0 {
		m += r.ii
	}
	return m
}

func (r *ResourceManager) state(cycle int, create bool) *cycleState {
	k := r.key(cycle)
	s, ok := r.cycles[k]
	if !ok {
		if !create {
			return nil
		}
		s = newCycleState()
		r.cycles[k] = s
	}
	return s
}

// CanAssign reports whether node could occupy every resource req names at
// cycle without conflicting with an existing occupant.
func (r *ResourceManager) CanAssign(cycle int, node ids.ID, req Request) bool {
	s := r.state(cycle, false)
	if s == nil {
		return true
	}
	if req.Bus != "" {
		if owner, ok := s.buses[req.Bus]; ok && owner != node {
			return false
		}
	}
	if req.Guard != "" {
		if owner, ok := s.guards[req.Guard]; ok && owner != node {
			return false
		}
	}
	if req.SrcFU != "" {
		if owner, ok := s.srcFU[req.SrcFU]; ok && owner != node {
			return false
		}
	}
	if req.DstFU != "" {
		if owner, ok := s.dstFU[req.DstFU]; ok && owner != node {
			return false
		}
	}
	if req.ImmUnit != "" {
		key := immSlotKey(req.ImmUnit, req.ImmSlot)
		if owner, ok := s.immSlots[key]; ok && owner != node {
			return false
		}
	}
	for _, rf := range req.RFWrite {
		if port, ok := r.rfPortLimit(rf); ok && s.rfWriters[rf] >= port {
			return false
		}
	}
	for _, rf := range req.RFRead {
		if port, ok := r.rfPortLimit(rf); ok && s.rfReaders[rf] >= port {
			return false
		}
	}
	return true
}

func (r *ResourceManager) rfPortLimit(name string) (int, bool) {
	for i := range r.mach.RFs {
		if r.mach.RFs[i].Name == name {
			return r.mach.RFs[i].PortCount, true
		}
	}
	return 0, false
}

func immSlotKey(unit string, slot int) string {
	return unit + "#" + strconv.Itoa(slot)
}

// EarliestCycle searches forward from from (inclusive) up to window cycles
// for the first cycle at which CanAssign(cycle, node, req) holds.
func (r *ResourceManager) EarliestCycle(from int, window int, node ids.ID, req Request) (int, bool) {
	for c := from; c < from+window; c++ {
		if r.CanAssign(c, node, req) {
			return c, true
		}
	}
	return 0, false
}

// LatestCycle searches backward from to (inclusive) down to to-window for
// the last cycle at which CanAssign(cycle, node, req) holds.
func (r *ResourceManager) LatestCycle(to int, window int, node ids.ID, req Request) (int, bool) {
	for c := to; c > to-window; c-- {
		if r.CanAssign(c, node, req) {
			return c, true
		}
	}
	return 0, false
}

// Assign occupies every resource req names at cycle on behalf of node.
// Callers must have verified CanAssign first; Assign does not re-check and
// will overwrite conflicting state if called on a false CanAssign.
func (r *ResourceManager) Assign(cycle int, node ids.ID, req Request) {
	s := r.state(cycle, true)
	if req.Bus != "" {
		s.buses[req.Bus] = node
	}
	if req.Guard != "" {
		s.guards[req.Guard] = node
	}
	if req.SrcFU != "" {
		s.srcFU[req.SrcFU] = node
	}
	if req.DstFU != "" {
		s.dstFU[req.DstFU] = node
	}
	if req.ImmUnit != "" {
		s.immSlots[immSlotKey(req.ImmUnit, req.ImmSlot)] = node
	}
	if req.Template != "" {
		s.templates[req.Template] = true
	}
	for _, rf := range req.RFWrite {
		s.rfWriters[rf]++
	}
	for _, rf := range req.RFRead {
		s.rfReaders[rf]++
	}
	r.assignments[node] = assignment{cycle: cycle, req: req}

	if req.Prolog && r.prolog != nil {
		r.prolog.Assign(PROLOG_CYCLE_BIAS+cycle, node, req)
	}
}

// Unassign reverses a prior Assign for node exactly, restoring the
// occupation table to its pre-assign content. Unassigning a node that was
// never assigned is a schederr.GraphInvariantViolation.
func (r *ResourceManager) Unassign(node ids.ID) error {
	a, ok := r.assignments[node]
	if !ok {
		return &schederr.GraphInvariantViolation{
			NodeID: uint32(node),
			Reason: "unassign called on a node with no current assignment",
		}
	}
	s := r.state(a.cycle, false)
	if s != nil {
		req := a.req
		if req.Bus != "" {
			delete(s.buses, req.Bus)
		}
		if req.Guard != "" {
			delete(s.guards, req.Guard)
		}
		if req.SrcFU != "" {
			delete(s.srcFU, req.SrcFU)
		}
		if req.DstFU != "" {
			delete(s.dstFU, req.DstFU)
		}
		if req.ImmUnit != "" {
			delete(s.immSlots, immSlotKey(req.ImmUnit, req.ImmSlot))
		}
		if req.Template != "" {
			delete(s.templates, req.Template)
		}
		for _, rf := range req.RFWrite {
			s.rfWriters[rf]--
		}
		for _, rf := range req.RFRead {
			s.rfReaders[rf]--
		}
	}
	delete(r.assignments, node)

	if a.req.Prolog && r.prolog != nil {
		_ = r.prolog.Unassign(node)
	}
	return nil
}

// ImmediateWriteCycle returns the cycle at which node's immediate unit was
// written, if node currently has an immediate-carrying assignment.
func (r *ResourceManager) ImmediateWriteCycle(node ids.ID) (int, bool) {
	a, ok := r.assignments[node]
	if !ok || a.req.ImmUnit == "" {
		return 0, false
	}
	return a.cycle, true
}

// IsTemplateAvailable reports whether template has not yet been consumed at
// cycle.
func (r *ResourceManager) IsTemplateAvailable(cycle int, template string) bool {
	s := r.state(cycle, false)
	if s == nil {
		return true
	}
	return !s.templates[template]
}

// Assigned reports whether node currently holds an assignment, and its
// cycle if so.
func (r *ResourceManager) Assigned(node ids.ID) (int, bool) {
	a, ok := r.assignments[node]
	return a.cycle, ok
}

// BusOwner returns the node occupying bus at cycle, if any. The scheduler
// uses it to pick a push-up/push-down victim when no cycle in a node's
// window is free.
func (r *ResourceManager) BusOwner(cycle int, bus string) (ids.ID, bool) {
	s := r.state(cycle, false)
	if s == nil {
		return ids.Invalid, false
	}
	id, ok := s.buses[bus]
	return id, ok
}

// Assignment returns node's full current assignment: the cycle it occupies
// and the exact resource request it holds there.
func (r *ResourceManager) Assignment(node ids.ID) (int, Request, bool) {
	a, ok := r.assignments[node]
	return a.cycle, a.req, ok
}

// AssignedNodes returns every node currently holding an assignment,
// ascending by id.
func (r *ResourceManager) AssignedNodes() []ids.ID {
	out := make([]ids.ID, 0, len(r.assignments))
	for n := range r.assignments {
		out = append(out, n)
	}
	ids.SortIDs(out)
	return out
}
