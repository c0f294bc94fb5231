// Package ids provides a stable-handle arena used by the scheduler's
// graph types (MoveNodes, DataDependenceEdges, ProgramOperations).
//
// Rather than cross-referencing values with pointers (and accumulating
// weak-but-restorable pointer bookkeeping), every
// value lives in a slice owned by an Arena and is referenced by a small
// integer ID. Logical removal is a flag, not a slice delete, so a dropped
// node can be restored by undo without re-allocating or renumbering.
package ids

import "golang.org/x/exp/slices"

// ID is a stable 32-bit handle into an Arena.
type ID uint32

// Invalid is the zero value; Arena never hands it out, so it is safe to use
// as a "no node" sentinel.
const Invalid ID = 0

// Arena owns a set of T values, indexed by ID, with logical
// drop/restore instead of physical deletion.
type Arena[T any] struct {
	items   []T
	dropped []bool
}

// New allocates a fresh value and returns its stable ID.
func (a *Arena[T]) New(v T) ID {
	a.items = append(a.items, v)
	a.dropped = append(a.dropped, false)
	return ID(len(a.items))
}

// Get returns a pointer to the value for id. Panics on an invalid id, since
// that indicates a programming error (use Valid to check first).
func (a *Arena[T]) Get(id ID) *T {
	return &a.items[id-1]
}

// Valid reports whether id refers to an allocated slot (dropped or not).
func (a *Arena[T]) Valid(id ID) bool {
	return id != Invalid && int(id) <= len(a.items)
}

// Drop marks id as logically removed. The slot and its value are retained so
// Restore can bring it back.
func (a *Arena[T]) Drop(id ID) {
	a.dropped[id-1] = true
}

// Restore clears the dropped flag set by Drop.
func (a *Arena[T]) Restore(id ID) {
	a.dropped[id-1] = false
}

// IsDropped reports whether id has been logically removed.
func (a *Arena[T]) IsDropped(id ID) bool {
	return a.dropped[id-1]
}

// Len returns the number of allocated slots, including dropped ones.
func (a *Arena[T]) Len() int {
	return len(a.items)
}

// Live returns every non-dropped ID, in ascending (i.e. allocation) order,
// which is also stable-sort order since IDs never change or get reused.
func (a *Arena[T]) Live() []ID {
	out := make([]ID, 0, len(a.items))
	for i, d := range a.dropped {
		if !d {
			out = append(out, ID(i+1))
		}
	}
	return out
}

// All returns every allocated ID regardless of dropped state.
func (a *Arena[T]) All() []ID {
	out := make([]ID, len(a.items))
	for i := range a.items {
		out[i] = ID(i + 1)
	}
	return out
}

// SortIDs sorts ids in place in ascending order. Every deterministic
// iteration over an ID-keyed set in this module routes through this
// function (or Live/All, which already return sorted output) instead of
// ranging over a map or set directly.
func SortIDs(ids []ID) {
	slices.SortFunc(ids, func(a, b ID) int {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	})
}
