// Package schederr defines the typed error kinds surfaced at the
// DDG/ResourceManager/scheduler boundary.
//
// The error types carry no cause of their own and define no Unwrap; Wrap
// adds context with %w, so callers reach a typed error through the chain
// with errors.Is/errors.As. Nothing in this package panics or calls os.Exit:
// every failure path is a returned value.
package schederr

import "fmt"

// SchedulingFailure reports that the scheduler exhausted every retry option
// on a move or scheduling front. Loop-mode callers treat it as "try the
// next II"; basic-block-mode callers treat it as fatal.
type SchedulingFailure struct {
	NodeID  uint32
	Reason  string
	Attempt int
}

func (e *SchedulingFailure) Error() string {
	return fmt.Sprintf("bubblefish: scheduling failed for move node %d (attempt %d): %s", e.NodeID, e.Attempt, e.Reason)
}

// InvalidMachine reports that the ArchModel lacks a resource required by an
// operation (no FU implements it, no bus reaches a needed socket,...).
type InvalidMachine struct {
	Operation string
	Reason    string
}

func (e *InvalidMachine) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("bubblefish: machine has no function unit implementing %q", e.Operation)
	}
	return fmt.Sprintf("bubblefish: invalid machine for operation %q: %s", e.Operation, e.Reason)
}

// UnencodableImmediate reports that ConstantTransformer could not fit a
// literal into any encoding on the target machine, even after trying the
// negate-and-subtract rewrite.
type UnencodableImmediate struct {
	Literal string
	Width   int
}

func (e *UnencodableImmediate) Error() string {
	return fmt.Sprintf("bubblefish: immediate %s does not fit a %d-bit encoding on this machine", e.Literal, e.Width)
}

// MissingEmulation reports that LowerMissingInstructions needed a library
// function for a footprint but none was registered.
type MissingEmulation struct {
	Footprint string
}

func (e *MissingEmulation) Error() string {
	return fmt.Sprintf("bubblefish: no emulation registered for footprint %q", e.Footprint)
}

// GraphInvariantViolation reports a programming error: an attempt to add a
// cycle-introducing zero-distance edge, or to unassign a node that was
// never assigned.
type GraphInvariantViolation struct {
	NodeID uint32
	Reason string
}

func (e *GraphInvariantViolation) Error() string {
	return fmt.Sprintf("bubblefish: graph invariant violated at node %d: %s", e.NodeID, e.Reason)
}

// Wrap attaches a message to cause, preserving cause for errors.Is/As.
func Wrap(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
