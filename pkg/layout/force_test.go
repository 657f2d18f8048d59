package layout

import (
	"fmt"
	"io"
	"math"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/graph"
)

func newTestEngine() *ForceDirected {
	return New(Config{Width: 500, Height: 400, Padding: 10, Seed: 42, Logger: log.New(io.Discard)})
}

func newTestStore() *graph.Store {
	return graph.NewStore(graph.Options{Width: 500, Height: 400, Seed: 1, Logger: log.New(io.Discard)})
}

func dist(a, b graph.Position) float64 { return math.Hypot(a.X-b.X, a.Y-b.Y) }

func TestNewDefaults(t *testing.T) {
	cfg := New(Config{}).Config()
	if cfg.Width != graph.DefaultWidth || cfg.Height != graph.DefaultHeight {
		t.Errorf("canvas = %vx%v, want %vx%v", cfg.Width, cfg.Height, graph.DefaultWidth, graph.DefaultHeight)
	}
	if cfg.Iterations != DefaultIterations {
		t.Errorf("iterations = %d, want %d", cfg.Iterations, DefaultIterations)
	}
	if cfg.Padding != DefaultPadding {
		t.Errorf("padding = %v, want %v", cfg.Padding, DefaultPadding)
	}
}

func TestComputeEmpty(t *testing.T) {
	got := newTestEngine().Compute(graph.Empty(), 50)
	if len(got) != 0 {
		t.Errorf("Compute(empty) = %v, want empty map", got)
	}
}

func TestComputeStaysInsideCanvas(t *testing.T) {
	g := graph.Graph{}
	for i := 0; i < 30; i++ {
		// start everything outside the canvas and piled on one point
		g.Nodes = append(g.Nodes, graph.Node{ID: fmt.Sprint(i), X: -100, Y: 9000})
	}
	for i := 1; i < 30; i++ {
		g.Edges = append(g.Edges, graph.Edge{Source: "0", Target: fmt.Sprint(i)})
	}

	engine := newTestEngine()
	positions := engine.Compute(g, 80)
	if len(positions) != 30 {
		t.Fatalf("positions = %d, want 30", len(positions))
	}
	cfg := engine.Config()
	for id, p := range positions {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) {
			t.Fatalf("node %s has NaN position", id)
		}
		if p.X < cfg.Padding || p.X > cfg.Width-cfg.Padding || p.Y < cfg.Padding || p.Y > cfg.Height-cfg.Padding {
			t.Errorf("node %s at (%v, %v) outside padded canvas", id, p.X, p.Y)
		}
	}
}

func TestComputeSeparatesCoincidentNodes(t *testing.T) {
	g := graph.Graph{Nodes: []graph.Node{
		{ID: "a", X: 250, Y: 200},
		{ID: "b", X: 250, Y: 200},
	}}
	positions := newTestEngine().Compute(g, 50)
	if d := dist(positions["a"], positions["b"]); d < 1 {
		t.Errorf("coincident nodes only %v apart after layout", d)
	}
}

func TestComputeConnectedCloserThanUnconnected(t *testing.T) {
	// two linked pairs far apart from each other
	g := graph.Graph{
		Nodes: []graph.Node{
			{ID: "a", X: 100, Y: 100}, {ID: "b", X: 150, Y: 300},
			{ID: "c", X: 400, Y: 120}, {ID: "d", X: 350, Y: 320},
		},
		Edges: []graph.Edge{{Source: "a", Target: "b"}, {Source: "c", Target: "d"}},
	}
	p := newTestEngine().Compute(g, 200)

	linked := (dist(p["a"], p["b"]) + dist(p["c"], p["d"])) / 2
	unlinked := (dist(p["a"], p["c"]) + dist(p["b"], p["d"])) / 2
	if linked >= unlinked {
		t.Errorf("linked distance %v should be below unlinked %v", linked, unlinked)
	}
}

func TestComputeIgnoresDanglingEdges(t *testing.T) {
	g := graph.Graph{
		Nodes: []graph.Node{{ID: "a", X: 10, Y: 10}},
		Edges: []graph.Edge{{Source: "a", Target: "ghost"}},
	}
	if got := newTestEngine().Compute(g, 10); len(got) != 1 {
		t.Errorf("positions = %v, want only a", got)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		nodes []string
		want  int
	}{
		{"Empty", nil, 0},
		{"Single", []string{"a"}, 1},
		{"Several", []string{"a", "b", "c", "d"}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			for _, id := range tt.nodes {
				s.Upsert(graph.NodePatch{ID: id})
			}
			if got := newTestEngine().Apply(s, 20); got != tt.want {
				t.Errorf("Apply = %d, want %d", got, tt.want)
			}
			if s.Len() != len(tt.nodes) {
				t.Errorf("Apply changed membership: %d nodes", s.Len())
			}
		})
	}
}

func TestApplyKeepsAttributes(t *testing.T) {
	s := newTestStore()
	title := "keep me"
	s.Upsert(graph.NodePatch{ID: "a", Title: &title})
	s.Upsert(graph.NodePatch{ID: "b"})
	s.AddEdge("a", "b")

	newTestEngine().Apply(s, 30)

	n, _ := s.Node("a")
	if n.Title != title {
		t.Errorf("title = %q, want %q", n.Title, title)
	}
	if !s.HasEdge("a", "b") {
		t.Error("layout must not touch edges")
	}
}
