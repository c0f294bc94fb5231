package ddg

import "github.com/tta-tools/bubblefish/internal/ids"

// EdgeKind classifies what relationship a DataDependenceEdge represents.
type EdgeKind int8

const (
	EdgeRegister EdgeKind = iota
	EdgeMemory
	EdgeFUState
	EdgeOperation
	EdgeRetAddr
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeRegister:
		return "register"
	case EdgeMemory:
		return "memory"
	case EdgeFUState:
		return "fustate"
	case EdgeOperation:
		return "operation"
	case EdgeRetAddr:
		return "retaddr"
	default:
		return "unknown"
	}
}

// EdgeType further classifies a DataDependenceEdge by hazard kind.
type EdgeType int8

const (
	TypeRAW EdgeType = iota
	TypeWAR
	TypeWAW
	TypeTrigger
	TypeUnknown
)

func (t EdgeType) String() string {
	switch t {
	case TypeRAW:
		return "RAW"
	case TypeWAR:
		return "WAR"
	case TypeWAW:
		return "WAW"
	case TypeTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Edge is a directed, attributed DataDependenceEdge.
type Edge struct {
	ID           ids.ID
	Kind         EdgeKind
	Type         EdgeType
	Tail         ids.ID // source MoveNode
	Head         ids.ID // destination MoveNode
	Data         string // register name or alias class, if applicable
	GuardUse     bool
	CertainAlias bool
	TailPseudo   bool
	HeadPseudo   bool
	LoopDistance int // 0 = intra-iteration, n>=1 = n-iteration back-edge
	Weight       int // for operation edges: the output latency
}

// edgeKey is the dedup key: fast lookup of edges by (kind, tail, head).
type edgeKey struct {
	kind EdgeKind
	tail ids.ID
	head ids.ID
}
