package ddg

import (
	"github.com/tta-tools/bubblefish/archmodel"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
	"github.com/tta-tools/bubblefish/opset"
)

// AntidepLevel controls which WAR/WAW register edges the builder
// installs.
type AntidepLevel int8

const (
	NoAntideps AntidepLevel = iota
	IntraBBAntideps
	AllAntideps
)

// BuildOptions configures one basic-block build.
type BuildOptions struct {
	Antidep      AntidepLevel
	Analyzers    []Analyzer
	StackPointer string
	// ReturnAddressRegister names the register holding the return address;
	// when set, the builder installs a RetAddr edge from its latest writer
	// to every control-flow trigger, so a call or return never floats above
	// the write that established where it goes back to.
	ReturnAddressRegister string
	ReachesIn             map[string][]ReachingDef // pre-seeded cross-BB reaching defs
}

// BuildBasicBlock constructs a DDG from an ordered list of MoveSpecs
// forming one basic block, wiring register RAW/WAR/WAW edges, operation
// edges within each ProgramOperation, memory edges via the configured
// alias analyzers, and FU-state edges between side-effecting operations on
// the same FU.
func BuildBasicBlock(specs []move.MoveSpec, reg *opset.Registry, mach *archmodel.Model, opts BuildOptions) (*DDG, *LiveRangeData, error) {
	g := New()
	lrd := NewLiveRangeData()
	for r, defs := range opts.ReachesIn {
		lrd.ReachesIn[r] = append(lrd.ReachesIn[r], defs...)
	}

	nodeOf := make([]ids.ID, len(specs))
	poByInstance := make(map[int]ids.ID)

	// Pass 1: create nodes and ProgramOperations.
	for i, spec := range specs {
		n := move.MoveNode{Move: spec.Move, AsInputOf: ids.Invalid, AsOutputOf: ids.Invalid}
		nid := g.AddNode(n)
		nodeOf[i] = nid

		if spec.OperationInstance < 0 {
			continue
		}
		poID, ok := poByInstance[spec.OperationInstance]
		if !ok {
			po := move.NewProgramOperation(spec.Operation)
			poID = g.AddProgramOperation(*po)
			poByInstance[spec.OperationInstance] = poID
		}
		po := g.ProgramOperation(poID)
		if po.Operation == "" && spec.Operation != "" {
			po.Operation = spec.Operation
		}
		if spec.IsOutput {
			po.Outputs[spec.OperandIndex] = nid
			node := g.Node(nid)
			node.AsOutputOf = poID
			node.OutputIndex = spec.OperandIndex
		} else {
			po.Inputs[spec.OperandIndex] = nid
			node := g.Node(nid)
			node.AsInputOf = poID
			node.InputIndex = spec.OperandIndex
		}
	}

	// Pass 2: operation edges (operand inputs -> trigger -> outputs).
	for _, poID := range g.ProgramOperations() {
		if err := wireOperationEdges(g, reg, poID); err != nil {
			return nil, nil, err
		}
	}

	// Pass 3: register RAW/WAR/WAW edges, in program order.
	lastDef := make(map[string]ids.ID)
	lastUses := make(map[string][]ids.ID)
	for i := range specs {
		nid := nodeOf[i]
		n := g.Node(nid)

		if r, ok := readRegister(n.Move); ok {
			if def, ok := lastDef[r]; ok {
				if _, err := g.AddEdge(Edge{Kind: EdgeRegister, Type: TypeRAW, Tail: def, Head: nid, Data: r}); err != nil {
					return nil, nil, err
				}
			} else {
				for _, rd := range lrd.ReachesIn[r] {
					if _, err := g.AddEdge(Edge{Kind: EdgeRegister, Type: TypeRAW, Tail: rd.Node, Head: nid, Data: r, LoopDistance: rd.LoopDistance}); err != nil {
						return nil, nil, err
					}
				}
			}
			lrd.RecordUse(r, nid)
			lastUses[r] = append(lastUses[r], nid)
		}
		if n.Move.Guard.Present && n.Move.Guard.Register != "" {
			if def, ok := lastDef[n.Move.Guard.Register]; ok {
				if _, err := g.AddEdge(Edge{Kind: EdgeRegister, Type: TypeRAW, Tail: def, Head: nid, Data: n.Move.Guard.Register, GuardUse: true}); err != nil {
					return nil, nil, err
				}
			}
		}

		if r, ok := writeRegister(n.Move); ok {
			if opts.Antidep != NoAntideps {
				for _, user := range lastUses[r] {
					if user == nid {
						continue
					}
					if _, err := g.AddEdge(Edge{Kind: EdgeRegister, Type: TypeWAR, Tail: user, Head: nid, Data: r}); err != nil {
						return nil, nil, err
					}
				}
				if opts.Antidep == AllAntideps {
					if def, ok := lastDef[r]; ok {
						if _, err := g.AddEdge(Edge{Kind: EdgeRegister, Type: TypeWAW, Tail: def, Head: nid, Data: r}); err != nil {
							return nil, nil, err
						}
					}
				}
			}
			lastDef[r] = nid
			lastUses[r] = nil
			lrd.RecordDefine(r, nid)
		}
	}

	// Pass 4: return-address edges into control-flow triggers.
	if ra := opts.ReturnAddressRegister; ra != "" {
		if def, ok := lastDef[ra]; ok {
			if err := wireRetAddrEdges(g, reg, def, ra); err != nil {
				return nil, nil, err
			}
		}
	}

	// Pass 5: memory edges via alias analyzers, in program order over
	// memory ProgramOperations only.
	memOps := memoryOperations(g, reg)
	for i := 0; i < len(memOps); i++ {
		for j := i + 1; j < len(memOps); j++ {
			if err := wireMemoryEdge(g, reg, opts.Analyzers, memOps[i], memOps[j]); err != nil {
				return nil, nil, err
			}
		}
	}

	// Pass 6: FU-state edges between side-effecting ops sharing an FU.
	if err := wireFUStateEdges(g, reg, specs, poByInstance); err != nil {
		return nil, nil, err
	}

	return g, lrd, nil
}

func readRegister(m move.Move) (string, bool) {
	if m.Source.Kind == move.SourceGeneralRegister {
		return m.Source.Register, true
	}
	return "", false
}

func writeRegister(m move.Move) (string, bool) {
	if m.Destination.Kind == move.DestinationGeneralRegister {
		return m.Destination.Register, true
	}
	return "", false
}

// wireOperationEdges installs the operand-input -> trigger and trigger ->
// output edges within one ProgramOperation.
func wireOperationEdges(g *DDG, reg *opset.Registry, poID ids.ID) error {
	po := g.ProgramOperation(poID)
	op, ok := reg.Lookup(po.Operation)
	if !ok {
		return nil // unknown operation: caller validates via collab.CheckMachineCoverage
	}

	triggerIdx := triggerInputIndex(po)
	if triggerIdx == 0 {
		return nil
	}
	trigger := po.Inputs[triggerIdx]
	if triggerNode := g.Node(trigger); triggerNode != nil && triggerNode.Move.Destination.Kind == move.DestinationFUInputPort {
		po.FU = triggerNode.Move.Destination.FU
	}

	for _, idx := range po.InputIndices() {
		if idx == triggerIdx {
			continue
		}
		nid := po.Inputs[idx]
		if _, err := g.AddEdge(Edge{Kind: EdgeOperation, Type: TypeTrigger, Tail: nid, Head: trigger}); err != nil {
			return err
		}
	}

	for _, idx := range po.OutputIndices() {
		outNode := po.Outputs[idx]
		outputOrdinal := idx - len(op.Inputs) - 1
		if outputOrdinal < 0 {
			outputOrdinal = 0
		}
		if _, err := g.AddEdge(Edge{Kind: EdgeOperation, Type: TypeRAW, Tail: trigger, Head: outNode, Weight: op.Latency(outputOrdinal)}); err != nil {
			return err
		}
	}
	return nil
}

// triggerInputIndex returns the highest input operand index of po: by TTA
// convention the opcode-setting write is the last operand move, and callers
// number MoveSpec.OperandIndex accordingly.
func triggerInputIndex(po *move.ProgramOperation) int {
	indices := po.InputIndices()
	if len(indices) == 0 {
		return 0
	}
	return indices[len(indices)-1]
}

// TriggerNode returns the MoveNode carrying poID's trigger operand write,
// the node memory/FU-state/RetAddr edges anchor on: an inter-operation
// ordering constraint binds the cycles that start the two pipelines, and
// the trigger is the move that does that.
func (g *DDG) TriggerNode(poID ids.ID) (ids.ID, bool) {
	po := g.ProgramOperation(poID)
	idx := triggerInputIndex(po)
	if idx == 0 {
		return ids.Invalid, false
	}
	return po.Inputs[idx], true
}

// wireRetAddrEdges links the last writer of the return-address register to
// every control-flow trigger.
func wireRetAddrEdges(g *DDG, reg *opset.Registry, def ids.ID, ra string) error {
	for _, poID := range g.ProgramOperations() {
		po := g.ProgramOperation(poID)
		op, ok := reg.Lookup(po.Operation)
		if !ok || !op.IsControlFlow {
			continue
		}
		trigger, ok := g.TriggerNode(poID)
		if !ok || trigger == def {
			continue
		}
		if _, err := g.AddEdge(Edge{Kind: EdgeRetAddr, Type: TypeRAW, Tail: def, Head: trigger, Data: ra}); err != nil {
			return err
		}
	}
	return nil
}

func memoryOperations(g *DDG, reg *opset.Registry) []ids.ID {
	var out []ids.ID
	for _, poID := range g.ProgramOperations() {
		po := g.ProgramOperation(poID)
		if op, ok := reg.Lookup(po.Operation); ok && op.IsMemoryAccess {
			out = append(out, poID)
		}
	}
	return out
}

// writesMemory reports whether po's operation stores: a memory operation
// with no result reads writes memory, one with outputs is a load.
func writesMemory(g *DDG, reg *opset.Registry, po ids.ID) bool {
	op, ok := reg.Lookup(g.ProgramOperation(po).Operation)
	return ok && op.NumOutputs() == 0
}

// wireMemoryEdge consults the analyzers for (po1, po2) in program order and
// installs a memory edge between the two triggers unless some analyzer
// proves ALIAS_FALSE. The edge's hazard type follows the
// access pair: store->load RAW, load->store WAR, store->store WAW; a
// load-load pair carries no hazard and gets no edge.
func wireMemoryEdge(g *DDG, reg *opset.Registry, analyzers []Analyzer, po1, po2 ids.ID) error {
	w1 := writesMemory(g, reg, po1)
	w2 := writesMemory(g, reg, po2)
	if !w1 && !w2 {
		return nil
	}
	var hazard EdgeType
	switch {
	case w1 && w2:
		hazard = TypeWAW
	case w1:
		hazard = TypeRAW
	default:
		hazard = TypeWAR
	}

	certain := false
	for _, a := range analyzers {
		switch a.Analyze(g, reg, po1, po2, RelationSameBlock) {
		case AliasFalse:
			return nil // any analyzer proving FALSE is sufficient to skip the edge
		case AliasTrue:
			certain = true
		}
		if certain {
			break
		}
	}

	t1, ok1 := g.TriggerNode(po1)
	t2, ok2 := g.TriggerNode(po2)
	if !ok1 || !ok2 {
		return nil
	}
	// AliasUnknown and AliasTrue both install a conservative memory edge;
	// only a proven AliasFalse skips it.
	_, err := g.AddEdge(Edge{Kind: EdgeMemory, Type: hazard, Tail: t1, Head: t2, CertainAlias: certain})
	return err
}

// wireFUStateEdges links, in program order, the triggers of side-effecting
// ProgramOperations that share a function unit.
func wireFUStateEdges(g *DDG, reg *opset.Registry, specs []move.MoveSpec, poByInstance map[int]ids.ID) error {
	type occurrence struct {
		fu      string
		trigger ids.ID
	}
	var seq []occurrence
	seenInstance := make(map[int]bool)
	for _, spec := range specs {
		if spec.OperationInstance < 0 || seenInstance[spec.OperationInstance] {
			continue
		}
		seenInstance[spec.OperationInstance] = true
		poID := poByInstance[spec.OperationInstance]
		po := g.ProgramOperation(poID)
		op, ok := reg.Lookup(po.Operation)
		if !ok || !op.HasSideEffects || po.FU == "" {
			continue
		}
		trigger, ok := g.TriggerNode(poID)
		if !ok {
			continue
		}
		seq = append(seq, occurrence{fu: po.FU, trigger: trigger})
	}
	for i := 0; i < len(seq); i++ {
		for j := i + 1; j < len(seq); j++ {
			if seq[i].fu != seq[j].fu {
				continue
			}
			if _, err := g.AddEdge(Edge{Kind: EdgeFUState, Type: TypeWAW, Tail: seq[i].trigger, Head: seq[j].trigger}); err != nil {
				return err
			}
		}
	}
	return nil
}
