// Package dot renders a threat model as a Graphviz data flow diagram.
// Boundaries become clusters, elements become shaped nodes, dataflows become
// labeled edges. Output is deterministic for a given model.
package dot

import (
	"fmt"
	"io"
	"strings"

	"github.com/threatcanvas/sdk/pkg/tm"
)

// Renderer writes DOT documents.
type Renderer struct {
	// FontName overrides the diagram font. Empty uses the Graphviz default.
	FontName string
}

// New creates a DOT renderer.
func New() *Renderer {
	return &Renderer{}
}

// Format returns the output format identifier.
func (r *Renderer) Format() string { return "dot" }

// Render writes the model as a DOT digraph.
func (r *Renderer) Render(m *tm.Model, w io.Writer) error {
	if m == nil {
		return fmt.Errorf("render dot: model is nil")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "digraph %s {\n", quote(m.Name))
	b.WriteString("\trankdir=LR;\n")
	if r.FontName != "" {
		fmt.Fprintf(&b, "\tfontname=%s;\n", quote(r.FontName))
		fmt.Fprintf(&b, "\tnode [fontname=%s];\n", quote(r.FontName))
		fmt.Fprintf(&b, "\tedge [fontname=%s];\n", quote(r.FontName))
	}
	b.WriteString("\n")

	ids := nodeIDs(m)

	// Boundary clusters, then elements outside any boundary.
	for i, boundary := range m.Boundaries() {
		fmt.Fprintf(&b, "\tsubgraph cluster_%d {\n", i)
		fmt.Fprintf(&b, "\t\tlabel=%s;\n", quote(boundary.Name))
		b.WriteString("\t\tstyle=dashed;\n")
		b.WriteString("\t\tcolor=firebrick;\n")
		for _, e := range m.Elements() {
			if e.InBoundary == boundary {
				writeNode(&b, "\t\t", e, ids[e])
			}
		}
		b.WriteString("\t}\n")
	}
	for _, e := range m.Elements() {
		if e.InBoundary == nil {
			writeNode(&b, "\t", e, ids[e])
		}
	}
	b.WriteString("\n")

	for _, f := range flowsToDraw(m) {
		src, sink := f.SourceElement(), f.SinkElement()
		if src == nil || sink == nil {
			continue
		}
		attrs := []string{fmt.Sprintf("label=%s", quote(edgeLabel(m, f)))}
		if f.IsResponse {
			attrs = append(attrs, "style=dashed")
		}
		if merged(m, f) {
			attrs = append(attrs, "dir=both")
		}
		fmt.Fprintf(&b, "\t%s -> %s [%s];\n", ids[src], ids[sink], strings.Join(attrs, ", "))
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// flowsToDraw drops response flows whose request leg is drawn bidirectional.
func flowsToDraw(m *tm.Model) []*tm.Dataflow {
	if !m.MergeResponses {
		return m.Flows()
	}
	var out []*tm.Dataflow
	for _, f := range m.Flows() {
		if f.IsResponse && requestFor(m, f) != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// requestFor finds the request leg of a response flow: the earliest flow in
// the opposite direction between the same endpoints.
func requestFor(m *tm.Model, resp *tm.Dataflow) *tm.Dataflow {
	for _, f := range m.Flows() {
		if f.IsResponse {
			continue
		}
		if f.SourceElement() == resp.SinkElement() && f.SinkElement() == resp.SourceElement() {
			return f
		}
	}
	return nil
}

func merged(m *tm.Model, f *tm.Dataflow) bool {
	if !m.MergeResponses || f.IsResponse {
		return false
	}
	for _, other := range m.Flows() {
		if other.IsResponse &&
			other.SourceElement() == f.SinkElement() &&
			other.SinkElement() == f.SourceElement() {
			return true
		}
	}
	return false
}

func edgeLabel(m *tm.Model, f *tm.Dataflow) string {
	label := f.Name
	if m.Ordered {
		label = fmt.Sprintf("(%d) %s", f.Seq()+1, f.Name)
	}
	if f.Protocol != "" {
		if f.DstPort > 0 {
			label = fmt.Sprintf("%s\n%s:%d", label, f.Protocol, f.DstPort)
		} else {
			label = fmt.Sprintf("%s\n%s", label, f.Protocol)
		}
	}
	return label
}

func writeNode(b *strings.Builder, indent string, e *tm.Element, id string) {
	shape := "box"
	switch e.Kind {
	case tm.KindActor, tm.KindExternalEntity:
		shape = "rectangle"
	case tm.KindServer, tm.KindProcess:
		shape = "ellipse"
	case tm.KindDatastore:
		shape = "cylinder"
	}
	attrs := fmt.Sprintf("label=%s, shape=%s", quote(e.Name), shape)
	if !e.InScope {
		attrs += ", style=dotted"
	}
	fmt.Fprintf(b, "%s%s [%s];\n", indent, id, attrs)
}

// nodeIDs assigns stable DOT identifiers in declaration order.
func nodeIDs(m *tm.Model) map[*tm.Element]string {
	ids := make(map[*tm.Element]string, len(m.Elements()))
	for i, e := range m.Elements() {
		ids[e] = fmt.Sprintf("n%d", i)
	}
	return ids
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}
