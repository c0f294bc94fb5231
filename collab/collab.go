// Package collab specifies the contracts of the LLVM-side collaborators
// the core consumes but does not implement: instruction selection, target
// lowering of operations the machine can't execute natively, and
// constant legalization. Full instruction selection and DAG decomposition
// stay out of scope; this package only
// carries the narrow slice of that boundary the core round-trips through
// — the machine-coverage preflight run before the first front, the
// library-call lowering for unsupported operations, and immediate
// legalization.
package collab

import (
	"strings"

	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
	"github.com/tta-tools/bubblefish/schederr"
)

// CheckMachineCoverage validates that every operation in required is
// implemented by some function unit on mach, before any code generation
// or scheduling is attempted. This is the static, registry-level form of
// the check; bf2.CheckMachineCoverage, which bf2.Scheduler.ScheduleBasicBlock
// runs, is the DDG-level counterpart over the actual ProgramOperations, since a required operation can be
// declared in the registry yet never referenced by a given basic block's
// chosen FU, or referenced under an FU instance name that doesn't exist.
func CheckMachineCoverage(ops *opset.Registry, mach *archmodel.Model, required []string) error {
	for _, name := range required {
		if _, ok := ops.Lookup(name); !ok {
			continue // not this layer's concern: opset.Registry owns operand shape validation
		}
		if len(mach.FUsImplementing(name)) == 0 {
			return &schederr.InvalidMachine{Operation: name}
		}
	}
	return nil
}

// Footprint is a type-decorated operation identifier used to key emulation
// lookups (e.g. "f32.fadd.f32.f32").
type Footprint string

// EmulationLibrary maps footprints to the library-call symbol that
// implements them when the target machine has no native FU for the
// corresponding operation.
type EmulationLibrary struct {
	symbols map[Footprint]string
}

// NewEmulationLibrary builds an EmulationLibrary from a footprint->symbol
// table.
func NewEmulationLibrary(symbols map[Footprint]string) *EmulationLibrary {
	lib := &EmulationLibrary{symbols: make(map[Footprint]string, len(symbols))}
	for k, v := range symbols {
		lib.symbols[k] = v
	}
	return lib
}

// Lookup returns the emulation symbol for footprint, if registered.
func (l *EmulationLibrary) Lookup(fp Footprint) (string, bool) {
	sym, ok := l.symbols[fp]
	return sym, ok
}

// LibraryCall is a declaration LowerMissingInstructions produces: footprint
// fp is unsupported natively, so instructions matching it get rewritten
// into a call to symbol.
type LibraryCall struct {
	Footprint Footprint
	Symbol    string
	SignExt   bool // sub-word sign-extension, decided from the footprint name
}

// LowerMissingInstructions walks required, and for every operation mach
// has no FU for, resolves a library-call declaration from lib. The
// footprint's sign/zero-extension is inferred from the footprint name
// itself: a ".sitofp." segment means signed, ".uitofp." means unsigned,
// sniffed from the name rather than carrying a
// separate signedness field through opset.Operation.
func LowerMissingInstructions(mach *archmodel.Model, required []Footprint, lib *EmulationLibrary) ([]LibraryCall, error) {
	var calls []LibraryCall
	for _, fp := range required {
		op := footprintOperation(fp)
		if len(mach.FUsImplementing(op)) > 0 {
			continue
		}
		sym, ok := lib.Lookup(fp)
		if !ok {
			return nil, &schederr.MissingEmulation{Footprint: string(fp)}
		}
		calls = append(calls, LibraryCall{
			Footprint: fp,
			Symbol:    sym,
			SignExt:   strings.Contains(string(fp), ".sitofp."),
		})
	}
	return calls, nil
}

// footprintOperation extracts the opcode segment from a footprint string
// of the form "<resultType>.<opcode>.<operandTypes...>", upper-cased to
// match the operation names function units list.
func footprintOperation(fp Footprint) string {
	parts := strings.Split(string(fp), ".")
	if len(parts) < 2 {
		return string(fp)
	}
	return strings.ToUpper(parts[1])
}

// ConstantTransformer rewrites an immediate operand that doesn't fit the
// destination bus's encoding into a negate-and-subtract sequence, if the
// machine supports SUB and the negated value does fit. imm is the move
// reading the literal directly
// (Source.Kind == move.SourceConstant); width is the destination bus's
// encodable immediate width. Returns the original move unchanged if it
// already encodes; otherwise it returns two moves, the constant 0 and the
// negated literal, both addressed to imm's destination. No SUB trigger or
// result-read move is produced, and the move consuming the literal is not
// rewritten.
// Fails with *schederr.UnencodableImmediate if neither the literal nor its
// negation fits, or the machine has no SUB.
func ConstantTransformer(mach *archmodel.Model, width int, literal int64, imm *move.Move, ops *opset.Registry) ([]move.Move, error) {
	if mach.CanEncodeImmediate(literal, width) {
		return []move.Move{*imm}, nil
	}

	negated := -literal
	if !mach.CanEncodeImmediate(negated, width) {
		return nil, &schederr.UnencodableImmediate{Literal: formatLiteral(literal), Width: width}
	}
	if _, ok := ops.Lookup("SUB"); !ok {
		return nil, &schederr.UnencodableImmediate{Literal: formatLiteral(literal), Width: width}
	}
	if len(mach.FUsImplementing("SUB")) == 0 {
		return nil, &schederr.UnencodableImmediate{Literal: formatLiteral(literal), Width: width}
	}

	zero := move.Move{Source: move.Source{Kind: move.SourceConstant, Constant: 0}, Destination: imm.Destination}
	negImm := move.Move{Source: move.Source{Kind: move.SourceConstant, Constant: negated}, Destination: imm.Destination}
	return []move.Move{zero, negImm}, nil
}

func formatLiteral(v int64) string {
	if v < 0 {
		return "-0x" + uitoa(uint64(-v))
	}
	return "0x" + uitoa(uint64(v))
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	const digits = "0123456789abcdef"
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%16]
		v /= 16
	}
	return string(buf[i:])
}
