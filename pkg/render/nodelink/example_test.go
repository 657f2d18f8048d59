package nodelink_test

import (
	"fmt"

	"github.com/matzehuels/graphsync/pkg/graph"
	"github.com/matzehuels/graphsync/pkg/render/nodelink"
)

func ExampleToDOT() {
	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "1", Title: "plan", X: 0, Y: 0},
			{ID: "2", Title: "build", Status: graph.StatusCompleted, X: 150, Y: 80},
		},
		Edges: []graph.Edge{{Source: "1", Target: "2"}},
	}

	fmt.Print(nodelink.ToDOT(g, nodelink.Options{}))
	// Output:
	// graph G {
	//   bgcolor="transparent";
	//   inputscale=72;
	//   node [shape=box, style="rounded,filled", fillcolor=white, fontsize=14, margin="0.2,0.1"];
	//   edge [color="#607d8b"];
	//
	//   "1" [label="plan", pos="0.00,-0.00!"];
	//   "2" [label="build", pos="150.00,-80.00!", fillcolor="#c8e6c9"];
	//
	//   "1" -- "2";
	// }
}
