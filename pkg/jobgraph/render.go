package jobgraph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DOTOptions decorates a Graphviz rendering.
type DOTOptions struct {
	// Name is the digraph name. Defaults to "jobs".
	Name string
	// Critical marks nodes drawn bold.
	Critical map[string]bool
	// CriticalEdges marks edge ids drawn bold.
	CriticalEdges map[string]bool
	// Annotate appends a second label line per node id.
	Annotate map[string]string
	// Highlight marks nodes filled (search matches).
	Highlight map[string]bool
}

var dotShapes = map[JobType]string{
	TypeBox:         "box3d",
	TypeCommand:     "box",
	TypeFileWatcher: "folder",
	TypeCondition:   "diamond",
}

// RenderDOT writes g in Graphviz DOT format. Ghost nodes and edges are dashed.
func RenderDOT(w io.Writer, g *Graph, opts DOTOptions) error {
	bw := bufio.NewWriter(w)
	name := opts.Name
	if name == "" {
		name = "jobs"
	}
	_, _ = fmt.Fprintf(bw, "digraph %s {\n", dotQuote(name))
	_, _ = fmt.Fprintln(bw, "  rankdir=TB;")
	_, _ = fmt.Fprintln(bw, "  node [fontname=\"Helvetica\"];")

	for _, n := range g.Nodes() {
		label := n.Label
		if extra, ok := opts.Annotate[n.ID]; ok && extra != "" {
			label += "\n" + extra
		}
		shape, ok := dotShapes[n.Type]
		if !ok {
			shape = dotShapes[TypeBox]
		}
		attrs := []string{"label=" + dotQuote(label), "shape=" + shape}
		var styles []string
		if n.Ghost {
			styles = append(styles, "dashed")
		}
		if opts.Critical[n.ID] {
			styles = append(styles, "bold")
		}
		if opts.Highlight[n.ID] {
			styles = append(styles, "filled")
		}
		if len(styles) > 0 {
			attrs = append(attrs, "style="+dotQuote(strings.Join(styles, ",")))
		}
		_, _ = fmt.Fprintf(bw, "  %s [%s];\n", dotQuote(n.ID), strings.Join(attrs, ", "))
	}

	for _, e := range g.Edges() {
		var attrs []string
		if e.Ghost {
			attrs = append(attrs, "style=dashed")
		} else if opts.CriticalEdges[e.ID] {
			attrs = append(attrs, "style=bold", "color=red")
		}
		if len(attrs) > 0 {
			_, _ = fmt.Fprintf(bw, "  %s -> %s [%s];\n", dotQuote(e.Source), dotQuote(e.Target), strings.Join(attrs, ", "))
			continue
		}
		_, _ = fmt.Fprintf(bw, "  %s -> %s;\n", dotQuote(e.Source), dotQuote(e.Target))
	}
	_, _ = fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func dotQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

// RenderTree writes an indented ASCII rendering of t.
func RenderTree(w io.Writer, t *Lineage) error {
	if t == nil {
		return nil
	}
	bw := bufio.NewWriter(w)
	_, _ = fmt.Fprintln(bw, treeLabel(t))
	renderChildren(bw, t.Children, "")
	return bw.Flush()
}

func renderChildren(w io.Writer, children []*Lineage, prefix string) {
	for i, c := range children {
		connector, next := "├── ", "│   "
		if i == len(children)-1 {
			connector, next = "└── ", "    "
		}
		_, _ = fmt.Fprintln(w, prefix+connector+treeLabel(c))
		renderChildren(w, c.Children, prefix+next)
	}
}

func treeLabel(t *Lineage) string {
	s := t.ID
	if t.Label != "" && t.Label != t.ID {
		s += " (" + t.Label + ")"
	}
	if t.Repeat {
		s += " ↑"
	}
	return s
}
