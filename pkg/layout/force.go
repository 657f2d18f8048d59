package layout

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/graph"
)

// Defaults applied by [New] for zero-valued [Config] fields.
const (
	DefaultIterations = 100
	DefaultPadding    = 20.0
)

// minDistance keeps coincident nodes from producing infinite forces.
const minDistance = 0.01

// Config controls the simulation. The zero value uses the store defaults for
// the canvas and [DefaultIterations].
type Config struct {
	Width      float64 // canvas width
	Height     float64 // canvas height
	Iterations int     // used when Compute/Apply receive iterations <= 0
	Padding    float64 // margin kept free on every side

	// Seed fixes the jitter applied to coincident nodes. Zero seeds from the
	// clock.
	Seed uint64

	Logger *log.Logger
}

// ForceDirected is a Fruchterman-Reingold layout engine. It is safe for
// concurrent use.
type ForceDirected struct {
	cfg    Config
	mu     sync.Mutex // guards rng
	rng    *rand.Rand
	logger *log.Logger
}

// New creates a layout engine.
func New(cfg Config) *ForceDirected {
	if cfg.Width <= 0 {
		cfg.Width = graph.DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = graph.DefaultHeight
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.Padding < 0 || cfg.Padding*2 >= min(cfg.Width, cfg.Height) {
		cfg.Padding = 0
	} else if cfg.Padding == 0 {
		cfg.Padding = min(DefaultPadding, min(cfg.Width, cfg.Height)/4)
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &ForceDirected{
		cfg:    cfg,
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
		logger: cfg.Logger,
	}
}

// Config returns the effective configuration.
func (f *ForceDirected) Config() Config { return f.cfg }

// Apply lays out every node in s and writes the positions back. It returns
// the number of nodes that received a new position.
func (f *ForceDirected) Apply(s *graph.Store, iterations int) int {
	snap := s.All()
	if len(snap.Nodes) == 0 {
		return 0
	}

	start := time.Now()
	positions := f.Compute(snap, iterations)
	n := s.SetPositions(positions)

	f.logger.Debug("layout applied", "nodes", n, "edges", len(snap.Edges), "elapsed", time.Since(start))
	return n
}

// Compute runs the simulation over g and returns the final position of every
// node. g is not modified. Edges referencing unknown nodes are ignored.
func (f *ForceDirected) Compute(g graph.Graph, iterations int) map[string]graph.Position {
	n := len(g.Nodes)
	if n == 0 {
		return map[string]graph.Position{}
	}
	if iterations <= 0 {
		iterations = f.cfg.Iterations
	}

	index := make(map[string]int, n)
	pos := make([]vec, n)
	for i, node := range g.Nodes {
		index[node.ID] = i
		pos[i] = f.clamp(vec{node.X, node.Y})
	}
	f.separate(pos)

	edges := make([][2]int, 0, len(g.Edges))
	for _, e := range g.Edges {
		a, okA := index[e.Source]
		b, okB := index[e.Target]
		if okA && okB && a != b {
			edges = append(edges, [2]int{a, b})
		}
	}

	w := f.cfg.Width - 2*f.cfg.Padding
	h := f.cfg.Height - 2*f.cfg.Padding
	k := math.Sqrt(w * h / float64(n))
	t0 := max(w, h) / 10

	disp := make([]vec, n)
	for it := 0; it < iterations; it++ {
		clear(disp)

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				d := pos[i].sub(pos[j])
				dist := max(d.len(), minDistance)
				force := k * k / dist
				push := d.scale(force / dist)
				disp[i] = disp[i].add(push)
				disp[j] = disp[j].sub(push)
			}
		}

		for _, e := range edges {
			d := pos[e[0]].sub(pos[e[1]])
			dist := max(d.len(), minDistance)
			force := dist * dist / k
			pull := d.scale(force / dist)
			disp[e[0]] = disp[e[0]].sub(pull)
			disp[e[1]] = disp[e[1]].add(pull)
		}

		temp := t0 * (1 - float64(it)/float64(iterations))
		for i := range pos {
			l := disp[i].len()
			if l > 0 {
				pos[i] = pos[i].add(disp[i].scale(min(l, temp) / l))
			}
			pos[i] = f.clamp(pos[i])
		}
	}

	out := make(map[string]graph.Position, n)
	for i, node := range g.Nodes {
		out[node.ID] = graph.Position{X: pos[i].x, Y: pos[i].y}
	}
	return out
}

// separate nudges nodes that share a position so the repulsive force has a
// direction to act along.
func (f *ForceDirected) separate(pos []vec) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[vec]bool, len(pos))
	for i, p := range pos {
		for seen[p] {
			p = f.clamp(vec{
				p.x + (f.rng.Float64()-0.5)*2,
				p.y + (f.rng.Float64()-0.5)*2,
			})
		}
		seen[p] = true
		pos[i] = p
	}
}

func (f *ForceDirected) clamp(p vec) vec {
	pad := f.cfg.Padding
	return vec{
		x: math.Min(math.Max(p.x, pad), f.cfg.Width-pad),
		y: math.Min(math.Max(p.y, pad), f.cfg.Height-pad),
	}
}

type vec struct{ x, y float64 }

func (a vec) add(b vec) vec       { return vec{a.x + b.x, a.y + b.y} }
func (a vec) sub(b vec) vec       { return vec{a.x - b.x, a.y - b.y} }
func (a vec) scale(s float64) vec { return vec{a.x * s, a.y * s} }
func (a vec) len() float64        { return math.Hypot(a.x, a.y) }
