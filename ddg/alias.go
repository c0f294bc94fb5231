package ddg

import (
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
)

// AliasResult is the three-valued answer an alias analyzer gives for a pair
// of memory operations.
type AliasResult int8

const (
	AliasUnknown AliasResult = iota
	AliasTrue
	AliasFalse
)

// BBRelation describes how two ProgramOperations relate in the control-flow
// graph the DDG was built from; analyzers that reason about loop-carried
// increments need to know whether they're comparing across a back-edge.
type BBRelation int8

const (
	RelationSameBlock BBRelation = iota
	RelationAcrossBlocks
	RelationLoopCarried
)

// Analyzer is the capability every alias analyzer implements: report
// whether an operation's address is traceable at all, and classify a
// pair of memory operations. The analyzers below are deliberately simple
// classifiers, not full symbolic address reasoning.
type Analyzer interface {
	Name() string
	IsAddressTraceable(g *DDG, reg *opset.Registry, po ids.ID) bool
	Analyze(g *DDG, reg *opset.Registry, po1, po2 ids.ID, rel BBRelation) AliasResult
}

// AddressInfo is the traced shape of a memory operation's address operand:
// base register plus constant offset (base+imm / base-imm forms).
type AddressInfo struct {
	BaseRegister string
	Offset       int64
	IsConstant   bool // address is a bare compile-time constant, no base register
}

// addressOperand returns the MoveNode feeding the addressable input operand
// of po, if the operation declares one.
func addressOperand(g *DDG, reg *opset.Registry, po ids.ID) (ids.ID, bool) {
	p := g.ProgramOperation(po)
	op, ok := reg.Lookup(p.Operation)
	if !ok {
		return ids.Invalid, false
	}
	for _, operand := range op.Inputs {
		if !operand.Addressable {
			continue
		}
		if nid, ok := p.Inputs[operand.Index]; ok {
			return nid, true
		}
	}
	return ids.Invalid, false
}

// traceAddress walks back through at most one RAW register predecessor to
// resolve a base+offset shape for the address feeding po.
func traceAddress(g *DDG, reg *opset.Registry, po ids.ID) (AddressInfo, bool) {
	nid, ok := addressOperand(g, reg, po)
	if !ok {
		return AddressInfo{}, false
	}
	n := g.Node(nid)
	switch n.Move.Source.Kind {
	case move.SourceConstant:
		return AddressInfo{Offset: n.Move.Source.Constant, IsConstant: true}, true
	case move.SourceGeneralRegister, move.SourceImmediateRegister:
		return AddressInfo{BaseRegister: n.Move.Source.Register}, true
	default:
		return AddressInfo{}, false
	}
}

// ConstantAliasAnalyzer proves non-aliasing when both addresses resolve
// to distinct compile-time constants.
type ConstantAliasAnalyzer struct{}

func (ConstantAliasAnalyzer) Name() string { return "constant" }

func (ConstantAliasAnalyzer) IsAddressTraceable(g *DDG, reg *opset.Registry, po ids.ID) bool {
	info, ok := traceAddress(g, reg, po)
	return ok && info.IsConstant
}

func (a ConstantAliasAnalyzer) Analyze(g *DDG, reg *opset.Registry, po1, po2 ids.ID, _ BBRelation) AliasResult {
	a1, ok1 := traceAddress(g, reg, po1)
	a2, ok2 := traceAddress(g, reg, po2)
	if !ok1 || !ok2 || !a1.IsConstant || !a2.IsConstant {
		return AliasUnknown
	}
	if a1.Offset == a2.Offset {
		return AliasTrue
	}
	return AliasFalse
}

// StackAliasAnalyzer reasons about two stack-pointer-relative addresses:
// same base register, different constant offsets, cannot alias.
type StackAliasAnalyzer struct {
	StackPointer string
}

func (StackAliasAnalyzer) Name() string { return "stack" }

func (a StackAliasAnalyzer) IsAddressTraceable(g *DDG, reg *opset.Registry, po ids.ID) bool {
	info, ok := traceAddress(g, reg, po)
	return ok && info.BaseRegister == a.StackPointer
}

func (a StackAliasAnalyzer) Analyze(g *DDG, reg *opset.Registry, po1, po2 ids.ID, rel BBRelation) AliasResult {
	a1, ok1 := traceAddress(g, reg, po1)
	a2, ok2 := traceAddress(g, reg, po2)
	if !ok1 || !ok2 || a1.BaseRegister != a.StackPointer || a2.BaseRegister != a.StackPointer {
		return AliasUnknown
	}
	if rel == RelationLoopCarried {
		// A loop-carried increment to the stack pointer base invalidates
		// the simple offset comparison; defer to the next analyzer.
		return AliasUnknown
	}
	if a1.Offset == a2.Offset {
		return AliasTrue
	}
	return AliasFalse
}

// OffsetAliasAnalyzer matches base+imm / base-imm address forms sharing
// the same base register.
type OffsetAliasAnalyzer struct{}

func (OffsetAliasAnalyzer) Name() string { return "offset" }

func (OffsetAliasAnalyzer) IsAddressTraceable(g *DDG, reg *opset.Registry, po ids.ID) bool {
	info, ok := traceAddress(g, reg, po)
	return ok && info.BaseRegister != ""
}

func (OffsetAliasAnalyzer) Analyze(g *DDG, reg *opset.Registry, po1, po2 ids.ID, _ BBRelation) AliasResult {
	a1, ok1 := traceAddress(g, reg, po1)
	a2, ok2 := traceAddress(g, reg, po2)
	if !ok1 || !ok2 || a1.BaseRegister == "" || a2.BaseRegister == "" {
		return AliasUnknown
	}
	if a1.BaseRegister != a2.BaseRegister {
		return AliasUnknown
	}
	if a1.Offset == a2.Offset {
		return AliasTrue
	}
	return AliasFalse
}

// GlobalVsStackAA combines stack and constant (global) base knowledge to
// prove non-aliasing between a stack-relative access and a global/constant
// access: they can never touch the same byte.
type GlobalVsStackAA struct {
	StackPointer string
}

func (GlobalVsStackAA) Name() string { return "global-vs-stack" }

func (a GlobalVsStackAA) IsAddressTraceable(g *DDG, reg *opset.Registry, po ids.ID) bool {
	info, ok := traceAddress(g, reg, po)
	return ok && (info.BaseRegister == a.StackPointer || info.IsConstant)
}

func (a GlobalVsStackAA) Analyze(g *DDG, reg *opset.Registry, po1, po2 ids.ID, _ BBRelation) AliasResult {
	a1, ok1 := traceAddress(g, reg, po1)
	a2, ok2 := traceAddress(g, reg, po2)
	if !ok1 || !ok2 {
		return AliasUnknown
	}
	oneStack := a1.BaseRegister == a.StackPointer
	oneGlobal := a1.IsConstant
	twoStack := a2.BaseRegister == a.StackPointer
	twoGlobal := a2.IsConstant
	if (oneStack && twoGlobal) || (oneGlobal && twoStack) {
		return AliasFalse
	}
	return AliasUnknown
}
