// Package svg renders a threat model as a standalone SVG data flow diagram.
// Elements are laid out in tiers by flow depth: sources on the left, the
// elements they feed to the right of them.
package svg

import (
	"fmt"
	"io"

	svg "github.com/ajstarks/svgo"

	"github.com/threatcanvas/sdk/pkg/tm"
)

// Renderer writes SVG documents.
type Renderer struct {
	Width  int
	Height int
}

// New creates an SVG renderer with a default canvas size.
func New() *Renderer {
	return &Renderer{Width: 1000, Height: 700}
}

// Format returns the output format identifier.
func (r *Renderer) Format() string { return "svg" }

const (
	nodeWidth  = 160
	nodeHeight = 50
)

// Render writes the model as an SVG document.
func (r *Renderer) Render(m *tm.Model, w io.Writer) error {
	if m == nil {
		return fmt.Errorf("render svg: model is nil")
	}

	levels := flowLevels(m)
	maxLevel := 0
	for _, l := range levels {
		if l > maxLevel {
			maxLevel = l
		}
	}

	canvas := svg.New(w)
	canvas.Start(r.Width, r.Height)
	canvas.Title(m.Name)

	canvas.Def()
	canvas.Marker("arrow", 10, 5, 10, 10, "orient=\"auto\"")
	canvas.Path("M0,0 L10,5 L0,10 z", "fill:#333")
	canvas.MarkerEnd()
	canvas.DefEnd()

	canvas.Text(r.Width/2, 24, m.Name, "text-anchor:middle;font-size:18px;font-weight:bold")

	coords := r.layout(m, levels, maxLevel)

	// Edges first so nodes draw on top.
	for _, f := range m.Flows() {
		src, sink := f.SourceElement(), f.SinkElement()
		if src == nil || sink == nil {
			continue
		}
		sc, ok1 := coords[src]
		tc, ok2 := coords[sink]
		if !ok1 || !ok2 {
			continue
		}
		style := "stroke:#333;stroke-width:1.5;fill:none;marker-end:url(#arrow)"
		if f.IsResponse {
			style += ";stroke-dasharray:6,4"
		}
		canvas.Line(sc[0]+nodeWidth/2, sc[1], tc[0]-nodeWidth/2, tc[1], style)

		label := f.Name
		if m.Ordered {
			label = fmt.Sprintf("(%d) %s", f.Seq()+1, f.Name)
		}
		midX := (sc[0] + tc[0]) / 2
		midY := (sc[1]+tc[1])/2 - 6
		canvas.Text(midX, midY, label, "text-anchor:middle;font-size:10px;fill:#555")
	}

	for _, e := range m.Elements() {
		c, ok := coords[e]
		if !ok {
			continue
		}
		r.drawNode(canvas, e, c[0], c[1])
	}

	canvas.End()
	return nil
}

// layout assigns each element a column by flow level and spreads the
// elements of a column evenly down the canvas.
func (r *Renderer) layout(m *tm.Model, levels map[*tm.Element]int, maxLevel int) map[*tm.Element][2]int {
	coords := make(map[*tm.Element][2]int, len(m.Elements()))
	xSpacing := r.Width / (maxLevel + 2)

	for level := 0; level <= maxLevel; level++ {
		var column []*tm.Element
		for _, e := range m.Elements() {
			if levels[e] == level {
				column = append(column, e)
			}
		}
		ySpacing := (r.Height - 40) / (len(column) + 1)
		for i, e := range column {
			x := (level + 1) * xSpacing
			y := 40 + (i+1)*ySpacing
			coords[e] = [2]int{x, y}
		}
	}
	return coords
}

func (r *Renderer) drawNode(canvas *svg.SVG, e *tm.Element, x, y int) {
	fill := "#e8eef7"
	switch e.Kind {
	case tm.KindActor, tm.KindExternalEntity:
		fill = "#f7f0e0"
	case tm.KindDatastore:
		fill = "#e4f2e4"
	}
	style := fmt.Sprintf("fill:%s;stroke:#333;stroke-width:1.5", fill)
	if !e.InScope {
		style += ";stroke-dasharray:4,3"
	}
	canvas.Roundrect(x-nodeWidth/2, y-nodeHeight/2, nodeWidth, nodeHeight, 6, 6, style)
	canvas.Text(x, y-2, e.Name, "text-anchor:middle;font-size:12px")

	detail := string(e.Kind)
	if e.InBoundary != nil {
		detail = fmt.Sprintf("%s / %s", e.Kind, e.InBoundary.Name)
	}
	canvas.Text(x, y+14, detail, "text-anchor:middle;font-size:9px;fill:#777")
}

// flowLevels computes the tier of each element: elements with no inbound
// flow sit at level 0, each flow pushes its sink one tier past its source.
func flowLevels(m *tm.Model) map[*tm.Element]int {
	levels := make(map[*tm.Element]int, len(m.Elements()))
	visited := make(map[*tm.Element]bool, len(m.Elements()))

	var dfs func(e *tm.Element, level int)
	dfs = func(e *tm.Element, level int) {
		// Cap keeps request cycles from recursing forever.
		if level >= len(m.Elements()) {
			return
		}
		if visited[e] && level <= levels[e] {
			return
		}
		visited[e] = true
		if level > levels[e] {
			levels[e] = level
		}
		// Responses flow backwards; only request legs advance tiers.
		for _, f := range m.Flows() {
			if f.IsResponse {
				continue
			}
			if f.SourceElement() == e {
				if sink := f.SinkElement(); sink != nil && sink != e {
					dfs(sink, level+1)
				}
			}
		}
	}

	for _, e := range m.Elements() {
		if !visited[e] {
			dfs(e, 0)
		}
	}
	return levels
}
