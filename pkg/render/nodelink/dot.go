package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/graphsync/pkg/graph"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds status, priority and importance to node labels.
	// When false, only the title (or ID) is shown.
	Detailed bool

	// Highlight is a node ID drawn with a thick outline, typically the
	// center of a subgraph.
	Highlight string
}

// fill colours by status
var statusFill = map[graph.Status]string{
	graph.StatusOpen:      "white",
	graph.StatusCompleted: "\"#c8e6c9\"",
	graph.StatusArchived:  "lightgrey",
}

// ToDOT converts a graph to Graphviz DOT format. Edges are undirected and
// every node is pinned to its stored position, so the neato engine used by
// [RenderSVG] draws the same picture the clients see.
//
// The canvas y axis points down while Graphviz's points up, so y is negated.
func ToDOT(g graph.Graph, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("graph G {\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  inputscale=72;\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [color=\"#607d8b\"];\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes {
		label := fmtLabel(n, opts.Detailed)
		attrs := fmtAttrs(n, label, n.ID == opts.Highlight)
		fmt.Fprintf(&buf, "  %q [%s];\n", n.ID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges {
		fmt.Fprintf(&buf, "  %q -- %q;\n", e.Source, e.Target)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n graph.Node, detailed bool) string {
	if !detailed {
		return n.DisplayLabel()
	}

	var parts []string
	if n.Status != "" {
		parts = append(parts, "status: "+string(n.Status))
	}
	if n.Priority != "" {
		parts = append(parts, "priority: "+string(n.Priority))
	}
	if n.Importance != "" {
		parts = append(parts, "importance: "+string(n.Importance))
	}
	if len(parts) == 0 {
		return n.DisplayLabel()
	}
	return n.DisplayLabel() + "\n" + strings.Join(parts, "\n")
}

func fmtAttrs(n graph.Node, label string, highlight bool) []string {
	attrs := []string{
		fmt.Sprintf("label=%q", label),
		fmt.Sprintf("pos=\"%s,%s!\"", fmtCoord(n.X), fmtCoord(-n.Y)),
	}
	if fill, ok := statusFill[n.Status]; ok && n.Status != graph.StatusOpen {
		attrs = append(attrs, "fillcolor="+fill)
	}
	if n.Status == graph.StatusArchived {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"", "fontcolor=dimgrey")
	}
	if n.Kind == graph.KindNote {
		attrs = append(attrs, "shape=note")
	}
	if highlight {
		attrs = append(attrs, "penwidth=3")
	}
	return attrs
}

func fmtCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// RenderSVG renders a DOT graph to SVG with the neato engine, which honours
// pinned positions. Returns the SVG bytes ready for display.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()
	gv.SetLayout(graphviz.NEATO)

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	newSvg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)

	return svgTagRe.ReplaceAll(svg, []byte(newSvg))
}
