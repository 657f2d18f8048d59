// Package nodelink renders graph snapshots as node-link diagrams.
//
// # Overview
//
// Nodes appear as rounded boxes joined by plain lines (edges are
// undirected). Every node is pinned to the position stored on the server,
// so the diagram matches what connected clients display.
//
// # Usage
//
// Convert a snapshot to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(g, nodelink.Options{Detailed: false})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// # Options
//
// The [Options] struct controls diagram generation:
//
//   - Detailed: node labels include status, priority and importance
//   - Highlight: outline one node, such as the center of a subgraph
//
// Completed nodes are filled green, archived nodes grey with a dashed
// outline, and notes use the "note" shape.
//
// # DOT Format
//
// The [ToDOT] function produces Graphviz DOT source that can be:
//
//   - Rendered directly via [RenderSVG]
//   - Saved and processed with external Graphviz tools (use neato -n to
//     keep the pinned positions)
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
