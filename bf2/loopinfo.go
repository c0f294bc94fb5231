package bf2

// LoopMode names the loop-buffering strategy a ScheduleLoop result used.
// Only NoLoopBuffer and ForLoopEpilog are implemented; dynamic and
// while-loop buffer variants are an open item (DESIGN.md).
type LoopMode int8

const (
	// NoLoopBuffer is the mode reported when the trip count is unknown
	// (TripCount <= 0); the body still goes through the same ascending-II
	// search. A search that finds no II within MaxII returns an error.
	NoLoopBuffer LoopMode = iota
	// ForLoopEpilog is the standard prolog/epilog software-pipelined form
	// for a statically-bounded for-loop.
	ForLoopEpilog
)

func (m LoopMode) String() string {
	switch m {
	case ForLoopEpilog:
		return "for-loop-epilog"
	default:
		return "no-loop-buffer"
	}
}

// LoopInfo describes the loop-carried facts ScheduleLoop needs.
type LoopInfo struct {
	// TripCount is the statically known iteration count, or 0 if unknown
	// (dynamic trip count; the result then reports NoLoopBuffer).
	TripCount int
	// GuardLatency is the cycle cost of the branch condition's guard,
	// consulted when placing the jump-guard writer at II-GuardLatency.
	GuardLatency int
	// DelaySlots is the number of delay slots after the branch, used by
	// the control-flow move's exact-cycle rule.
	DelaySlots int
	// JumpGuardRegister names the register whose value guards the loop's
	// back branch; its writer is pinned at II-GuardLatency. Empty disables the rule.
	JumpGuardRegister string
}

// LoopResult is ScheduleLoop's outcome: the chosen II, the mode, and the
// overlap count the trip-count liveness check compares against.
type LoopResult struct {
	II           int
	Mode         LoopMode
	OverlapCount int
	FirstCycle   int
	LastCycle    int
}

// tripCountDivisible reports whether the statically known trip count is an
// exact multiple of the chosen II, so the steady-state body never needs a
// partial final iteration — the precondition transform.NewRemoveLoopCheck
// requires.
func (li LoopInfo) tripCountDivisible(ii int) bool {
	return li.TripCount > 0 && ii > 0 && li.TripCount%ii == 0
}
