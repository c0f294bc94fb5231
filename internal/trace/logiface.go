package trace

import (
	"log/slog"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
	"github.com/rs/zerolog"
)

func toLogifaceLevel(l Level) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	default:
		return logiface.LevelError
	}
}

// emitFields copies a trace.Record's optional attributes onto a
// logiface.Builder in the shared order every sink uses, so the zerolog and
// slog sinks stay structurally identical apart from their backend.
func emitFields[E logiface.Event](b *logiface.Builder[E], r Record) *logiface.Builder[E] {
	b = b.Str("category", r.Category)
	if r.NodeID != 0 {
		b = b.Int("node", int(r.NodeID))
	}
	if r.Cycle != 0 {
		b = b.Int("cycle", r.Cycle)
	}
	if r.II != 0 {
		b = b.Int("ii", r.II)
	}
	if r.Attempt != 0 {
		b = b.Int("attempt", r.Attempt)
	}
	if r.Err != nil {
		b = b.Err(r.Err)
	}
	for k, v := range r.Fields {
		b = b.Field(k, v)
	}
	return b
}

// zerologSink is the zerolog-backed trace.Sink (the scheduler's default
// is NoOp): scheduler trace Records flow through logiface into a zerolog.Logger.
type zerologSink struct {
	logger *logiface.Logger[*izerolog.Event]
}

// NewZerologSink wires z as the destination for every trace Record, via
// logiface's izerolog integration.
func NewZerologSink(z zerolog.Logger) Sink {
	return &zerologSink{logger: logiface.New[*izerolog.Event](izerolog.WithZerolog(z))}
}

func (s *zerologSink) Enabled(level Level) bool {
	return s.logger.Level() >= toLogifaceLevel(level)
}

func (s *zerologSink) Emit(r Record) {
	b := s.logger.Build(toLogifaceLevel(r.Level))
	if b == nil || !b.Enabled() {
		return
	}
	emitFields(b, r).Log(r.Message)
}

// slogSink is the alternative trace.Sink for callers who want stdlib
// log/slog output instead of zerolog.
type slogSink struct {
	logger *logiface.Logger[*islog.Event]
}

// NewSlogSink wires handler as the destination for every trace Record, via
// logiface's log/slog integration.
func NewSlogSink(handler slog.Handler) Sink {
	return &slogSink{logger: logiface.New[*islog.Event](islog.WithSlogHandler(handler))}
}

func (s *slogSink) Enabled(level Level) bool {
	return s.logger.Level() >= toLogifaceLevel(level)
}

func (s *slogSink) Emit(r Record) {
	b := s.logger.Build(toLogifaceLevel(r.Level))
	if b == nil || !b.Enabled() {
		return
	}
	emitFields(b, r).Log(r.Message)
}
