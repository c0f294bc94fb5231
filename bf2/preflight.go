package bf2

import (
	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/schederr"
	"github.com/tta-tools/bubblefish/transform"
)

// CheckMachineCoverage validates that every ProgramOperation's chosen FU
// instance actually exists on the machine and implements the operation,
// before scheduling begins. Running this as an explicit preflight,
// rather than discovering the gap mid-schedule, keeps the failure
// diagnostic pinned to the operation name instead of an arbitrary
// retry-ladder exhaustion message.
//
// This is the DDG-level twin of collab.CheckMachineCoverage: that one
// checks a flat required-operation list against the registry before a
// basic block even exists, this one checks the operations actually
// instantiated by a built DDG.
func CheckMachineCoverage(ctx *transform.Context) error {
	for _, poID := range ctx.Graph.ProgramOperations() {
		po := ctx.Graph.ProgramOperation(poID)
		if po.FU == "" {
			continue
		}
		fu := findFU(ctx, po.FU)
		if fu == nil {
			return &schederr.InvalidMachine{Operation: po.Operation, Reason: "no function unit named " + po.FU}
		}
		if !fu.Implements(po.Operation) {
			return &schederr.InvalidMachine{Operation: po.Operation}
		}
	}
	return nil
}

func findFU(ctx *transform.Context, name string) *archmodel.FunctionUnit {
	for i := range ctx.Mach.FUs {
		if ctx.Mach.FUs[i].Name == name {
			return &ctx.Mach.FUs[i]
		}
	}
	return nil
}
