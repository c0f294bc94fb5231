// Package dump serializes a DDG (and, once scheduled, its assigned
// cycles) to DOT and XML, for ad hoc graph/schedule inspection. Neither
// format is consumed by the core; both exist purely for a human or an
// external visualizer to read.
package dump

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joeycumines/go-utilpkg/jsonenc"

	"github.com/tta-tools/bubblefish/ddg"
	"github.com/tta-tools/bubblefish/internal/ids"
	"github.com/tta-tools/bubblefish/move"
)

// DOT renders g as a Graphviz "digraph" document: one node per live
// MoveNode (labelled with its scheduled cycle, or "?" if unscheduled) and
// one edge per live DataDependenceEdge (labelled with its kind/type).
// Dropped nodes and detached edges are omitted, so a DOT dump always
// reflects the graph's current, post-transformation shape rather than its
// full allocation history.
func DOT(g *ddg.DDG) string {
	var b strings.Builder
	b.WriteString("digraph ddg {\n")
	b.WriteString("  rankdir=TB;\n")

	for _, n := range g.Nodes() {
		node := g.Node(n)
		b.WriteString(fmt.Sprintf("  n%d [label=%s];\n", n, dotLabel(nodeLabel(n, node))))
	}
	for _, n := range g.Nodes() {
		for _, eid := range g.OutEdges(n) {
			e := g.Edge(eid)
			if g.IsDropped(e.Head) {
				continue
			}
			b.WriteString(fmt.Sprintf("  n%d -> n%d [label=%s];\n", e.Tail, e.Head, dotLabel(edgeLabel(e))))
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// XML renders g as a flat <ddg> document: a <nodes> list and an <edges>
// list, with jsonenc.AppendString reused for XML attribute escaping
// rather than a second hand-rolled escaper, since the two formats reject
// the same control-character/quote set.
func XML(g *ddg.DDG) string {
	var b strings.Builder
	b.WriteString("<ddg>\n  <nodes>\n")
	for _, n := range g.Nodes() {
		node := g.Node(n)
		b.WriteString(fmt.Sprintf(
			"    <node id=%s cycle=%s label=%s/>\n",
			xmlAttr(strconv.FormatUint(uint64(n), 10)),
			xmlAttr(cycleString(node)),
			xmlAttr(nodeLabel(n, node)),
		))
	}
	b.WriteString("  </nodes>\n  <edges>\n")
	for _, n := range g.Nodes() {
		for _, eid := range g.OutEdges(n) {
			e := g.Edge(eid)
			if g.IsDropped(e.Head) {
				continue
			}
			b.WriteString(fmt.Sprintf(
				"    <edge tail=%s head=%s label=%s/>\n",
				xmlAttr(strconv.FormatUint(uint64(e.Tail), 10)),
				xmlAttr(strconv.FormatUint(uint64(e.Head), 10)),
				xmlAttr(edgeLabel(e)),
			))
		}
	}
	b.WriteString("  </edges>\n</ddg>\n")
	return b.String()
}

func nodeLabel(id ids.ID, n *move.MoveNode) string {
	return fmt.Sprintf("%d: %s -> %s @%s", id, sourceString(n.Move.Source), destString(n.Move.Destination), cycleString(n))
}

func sourceString(s move.Source) string {
	switch s.Kind {
	case move.SourceConstant:
		return strconv.FormatInt(s.Constant, 10)
	case move.SourceImmediateRegister:
		return "imm:" + s.Register
	case move.SourceGeneralRegister:
		return s.Register
	case move.SourceFUOutputPort:
		return s.FU + "." + s.Port
	default:
		return "?"
	}
}

func destString(d move.Destination) string {
	switch d.Kind {
	case move.DestinationGeneralRegister:
		return d.Register
	case move.DestinationFUInputPort:
		if d.Triggering {
			return d.FU + "." + d.Port + "!"
		}
		return d.FU + "." + d.Port
	default:
		return "?"
	}
}

func cycleString(n *move.MoveNode) string {
	if !n.IsScheduled() {
		return "?"
	}
	return strconv.Itoa(n.Cycle())
}

func edgeLabel(e *ddg.Edge) string {
	label := e.Kind.String() + "/" + e.Type.String()
	if e.Data != "" {
		label += ":" + e.Data
	}
	if e.LoopDistance > 0 {
		label += fmt.Sprintf("(+%d)", e.LoopDistance)
	}
	return label
}

// dotLabel renders s as a double-quoted DOT string literal. DOT's escaping
// rules for quoted strings are a subset of JSON's (backslash and double
// quote need escaping; DOT has no \uXXXX form but a JSON \u escape is
// still valid inside a DOT quoted string, since DOT treats the content
// verbatim up to the closing quote), so jsonenc.AppendString's output
// is used as-is.
func dotLabel(s string) string {
	return string(jsonenc.AppendString(nil, s))
}

// xmlAttr renders s as a double-quoted XML attribute value. jsonenc
// escapes the same control-character and quote set XML also forbids
// unquoted in an attribute value, so its output doubles as valid XML
// attribute content.
func xmlAttr(s string) string {
	return string(jsonenc.AppendString(nil, s))
}
