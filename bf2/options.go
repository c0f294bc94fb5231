package bf2

import "github.com/tta-tools/bubblefish/internal/trace"

// options holds the scheduler's tunable behavior. Every optimization
// except redundant loop-check removal defaults on; the retry ladder derives progressively more conservative
// attempts from this base configuration.
type options struct {
	earlyBypass      bool
	lateBypass       bool
	loopBypass       bool
	operandShare     bool
	operandSwap      bool
	guardConversion  bool
	pushUpDown       bool
	postPass         bool
	removeLoopChecks bool
	maxII            int
	liveOut          map[string]bool
	trace            trace.Sink
}

// Option configures a Scheduler: an interface wrapping an apply function,
// so options compose and nil options are ignored.
type Option interface {
	apply(*options) error
}

type optionFunc func(*options) error

func (f optionFunc) apply(o *options) error { return f(o) }

// WithEarlyBypass toggles early bypass. On by default.
func WithEarlyBypass(enabled bool) Option {
	return optionFunc(func(o *options) error { o.earlyBypass = enabled; return nil })
}

// WithLateBypass toggles late bypass. On by default.
func WithLateBypass(enabled bool) Option {
	return optionFunc(func(o *options) error { o.lateBypass = enabled; return nil })
}

// WithLoopBypass toggles loop-carried bypass. On by default.
func WithLoopBypass(enabled bool) Option {
	return optionFunc(func(o *options) error { o.loopBypass = enabled; return nil })
}

// WithOperandShare toggles operand-share collapsing. On by default.
func WithOperandShare(enabled bool) Option {
	return optionFunc(func(o *options) error { o.operandShare = enabled; return nil })
}

// WithOperandSwap toggles commutative-operand swapping onto the trigger
// slot. On by default.
func WithOperandSwap(enabled bool) Option {
	return optionFunc(func(o *options) error { o.operandSwap = enabled; return nil })
}

// WithGuardConversion toggles guard conversion. On by default.
func WithGuardConversion(enabled bool) Option {
	return optionFunc(func(o *options) error { o.guardConversion = enabled; return nil })
}

// WithPushUpDown toggles push-up/push-down rescheduling of neighbors to
// make room for a node being scheduled. On by default.
func WithPushUpDown(enabled bool) Option {
	return optionFunc(func(o *options) error { o.pushUpDown = enabled; return nil })
}

// WithPostPass toggles the post-pass bypass/DRE sweep run after the whole
// basic block is scheduled. On by default.
func WithPostPass(enabled bool) Option {
	return optionFunc(func(o *options) error { o.postPass = enabled; return nil })
}

// WithRemoveRedundantLoopChecks enables the RemoveLoopCheck
// transform for loops whose trip count is an exact multiple of the
// chosen II. Off by default (see transform.NewRemoveLoopCheck).
func WithRemoveRedundantLoopChecks(enabled bool) Option {
	return optionFunc(func(o *options) error { o.removeLoopChecks = enabled; return nil })
}

// WithMaxII bounds the ascending initiation-interval search ScheduleLoop
// performs. Defaults to 8.
func WithMaxII(maxII int) Option {
	return optionFunc(func(o *options) error { o.maxII = maxII; return nil })
}

// WithLiveOut supplies the set of registers live out of the scheduled
// block. Dead-result elimination never drops a write to a register in the
// set; without this option the post-pass DRE sweep is disabled entirely,
// since every register write could feed a successor block.
func WithLiveOut(registers []string) Option {
	return optionFunc(func(o *options) error {
		o.liveOut = make(map[string]bool, len(registers))
		for _, r := range registers {
			o.liveOut[r] = true
		}
		return nil
	})
}

// WithTrace installs a structured-trace sink.
func WithTrace(sink trace.Sink) Option {
	return optionFunc(func(o *options) error { o.trace = sink; return nil })
}

func resolveOptions(opts []Option) (*options, error) {
	cfg := &options{
		earlyBypass:     true,
		lateBypass:      true,
		loopBypass:      true,
		operandShare:    true,
		operandSwap:     true,
		guardConversion: true,
		pushUpDown:      true,
		postPass:        true,
		maxII:           8,
		trace:           trace.NoOp{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
