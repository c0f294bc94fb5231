// Package archmodel is a read-only description of a target Transport
// Triggered Architecture machine: buses, sockets, function units, ports,
// immediate units, guards and register files.
//
// Everything here is a value consumed by the DDG builder, the resource
// manager and the scheduler; nothing in this package mutates after
// construction, so scheduling reads it without locks.
package archmodel

// Direction is the data-flow direction of a function-unit port.
type Direction int8

const (
	DirectionIn Direction = iota
	DirectionOut
)

// Port describes one connection point on a function unit.
type Port struct {
	Name          string
	Triggering    bool // writing this port starts the operation's pipeline
	OpcodeSetting bool
	Direction     Direction
	Width         int
	Socket        string // socket this port is wired to
}

// FunctionUnit is an inventory entry: which operations it implements, the
// ports it exposes, and the per-output latency for each supported
// operation (keyed by operation name; index is the output operand index
// within opset.Operation.Outputs).
type FunctionUnit struct {
	Name       string
	Ports      []Port
	Operations []string
	Latency    map[string][]int
}

// Implements reports whether this FU supports the named operation.
func (fu *FunctionUnit) Implements(op string) bool {
	for _, o := range fu.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// TriggerPort returns the port that starts the operation's pipeline, if
// any.
func (fu *FunctionUnit) TriggerPort() (Port, bool) {
	for _, p := range fu.Ports {
		if p.Triggering {
			return p, true
		}
	}
	return Port{}, false
}

// OutputLatency returns the latency of the given output operand for op on
// this FU, or false if the FU/op/index combination is unknown.
func (fu *FunctionUnit) OutputLatency(op string, outputIndex int) (int, bool) {
	lat, ok := fu.Latency[op]
	if !ok || outputIndex < 0 || outputIndex >= len(lat) {
		return 0, false
	}
	return lat[outputIndex], true
}

// Guard is a condition register or port that may gate a move.
type Guard struct {
	Name    string
	Latency int
}

// Bus is one exposed-datapath transport lane.
type Bus struct {
	Name           string
	Width          int
	Guards         []string // guard names reachable from this bus
	ImmediateWidth int      // short-immediate bits this bus can carry inline
	Sockets        []string // sockets this bus is connected to
}

// Socket connects a set of ports so a bus reaching the socket can drive any
// of them.
type Socket struct {
	Name  string
	Ports []string
}

// ImmediateUnit is a long-immediate register file fed by an immediate slot.
type ImmediateUnit struct {
	Name      string
	Width     int
	Templates []string
}

// RegisterFile is a general-purpose or guard register bank.
type RegisterFile struct {
	Name         string
	Width        int
	PortCount    int
	GuardLatency int
}

// Model is the complete read-only machine description.
type Model struct {
	Name     string
	Buses    []Bus
	Sockets  []Socket
	FUs      []FunctionUnit
	ImmUnits []ImmediateUnit
	RFs      []RegisterFile
	Guards   []Guard
}

// FUsImplementing returns every function unit that supports op, in Model
// declaration order (deterministic by construction, since Model.FUs is a
// slice, not a set).
func (m *Model) FUsImplementing(op string) []*FunctionUnit {
	var out []*FunctionUnit
	for i := range m.FUs {
		if m.FUs[i].Implements(op) {
			out = append(out, &m.FUs[i])
		}
	}
	return out
}

// BusByName looks up a bus by name.
func (m *Model) BusByName(name string) (*Bus, bool) {
	for i := range m.Buses {
		if m.Buses[i].Name == name {
			return &m.Buses[i], true
		}
	}
	return nil, false
}

// Connects reports whether this socket wires to the given port name.
func (s *Socket) Connects(portName string) bool {
	for _, p := range s.Ports {
		if p == portName {
			return true
		}
	}
	return false
}

// BusesReaching returns every bus whose sockets connect to portName.
func (m *Model) BusesReaching(portName string) []*Bus {
	var sockets []*Socket
	for i := range m.Sockets {
		if m.Sockets[i].Connects(portName) {
			sockets = append(sockets, &m.Sockets[i])
		}
	}
	var out []*Bus
	for i := range m.Buses {
		for _, s := range sockets {
			for _, bs := range m.Buses[i].Sockets {
				if bs == s.Name {
					out = append(out, &m.Buses[i])
				}
			}
		}
	}
	return out
}

// CanEncodeImmediate reports whether value fits in the given width's
// two's-complement signed range.
func (m *Model) CanEncodeImmediate(value int64, width int) bool {
	if width <= 0 || width >= 64 {
		return true
	}
	lo := int64(-1) << (width - 1)
	hi := (int64(1) << (width - 1)) - 1
	return value >= lo && value <= hi
}
