package graph

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Default canvas bounds for randomly placed nodes.
const (
	DefaultWidth  = 1000.0
	DefaultHeight = 1000.0
)

// EdgeResult describes what [Store.AddEdge] did.
type EdgeResult int

const (
	// EdgeAdded means a new edge was created.
	EdgeAdded EdgeResult = iota
	// EdgeExists means an edge between the pair already existed, in either
	// orientation.
	EdgeExists
	// EdgeMissingEndpoint means the source or target node does not exist.
	EdgeMissingEndpoint
	// EdgeSelfLoop means source and target are the same node.
	EdgeSelfLoop
)

// String returns a short description used in logs.
func (r EdgeResult) String() string {
	switch r {
	case EdgeAdded:
		return "added"
	case EdgeExists:
		return "exists"
	case EdgeMissingEndpoint:
		return "missing endpoint"
	case EdgeSelfLoop:
		return "self loop"
	}
	return "unknown"
}

// Options configures a [Store]. The zero value is usable.
type Options struct {
	// Width and Height bound the random position given to new nodes that
	// arrive without coordinates. Zero means DefaultWidth / DefaultHeight.
	Width, Height float64

	// Seed fixes the random placement sequence. Zero seeds from the clock.
	Seed uint64

	// Logger receives warnings about referential no-ops. Nil means log.Default().
	Logger *log.Logger
}

// ReplaceStats summarizes a [Store.Replace] call.
type ReplaceStats struct {
	Nodes        int  // nodes in the store afterwards
	Edges        int  // edges in the store afterwards
	DroppedEdges int  // supplied edges that were not created
	Positioned   bool // at least one supplied node carried x and y
}

type nodeEntry struct {
	node Node
	seq  uint64
}

type edgeEntry struct {
	edge Edge
	seq  uint64
}

// Store is the in-memory graph. It enforces unique node ids, undirected
// duplicate-free edges without self-loops, and that every edge has both
// endpoints present.
//
// Store is safe for concurrent use. Queries share a read lock; every mutation
// holds the write lock for its whole duration, so no query observes a
// partially applied mutation.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]*nodeEntry
	edges  map[edgeKey]*edgeEntry
	adj    map[string]map[string]struct{} // node id -> neighbour ids
	seq    uint64
	width  float64
	height float64
	rng    *rand.Rand
	logger *log.Logger
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Seed == 0 {
		opts.Seed = uint64(time.Now().UnixNano())
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Store{
		nodes:  make(map[string]*nodeEntry),
		edges:  make(map[edgeKey]*edgeEntry),
		adj:    make(map[string]map[string]struct{}),
		width:  opts.Width,
		height: opts.Height,
		rng:    rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
		logger: opts.Logger,
	}
}

// Canvas returns the bounds used for random placement.
func (s *Store) Canvas() (width, height float64) { return s.width, s.height }

// =============================================================================
// Mutations
// =============================================================================

// Upsert inserts the node if its id is unknown, otherwise merges the supplied
// fields into the stored node. A supplied position always wins; a new node
// without one is placed at a random point on the canvas; an existing node
// without one keeps its position. It returns the stored node and whether it
// was created.
//
// Callers are expected to have checked the patch with [NodePatch.Validate].
func (s *Store) Upsert(p NodePatch) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(p)
}

func (s *Store) upsertLocked(p NodePatch) (Node, bool) {
	if e, ok := s.nodes[p.ID]; ok {
		p.merge(&e.node)
		return e.node, false
	}

	n := Node{ID: p.ID}
	p.merge(&n)
	if !p.HasPosition() {
		n.X = s.rng.Float64() * s.width
		n.Y = s.rng.Float64() * s.height
	}
	s.seq++
	s.nodes[n.ID] = &nodeEntry{node: n, seq: s.seq}
	return n, true
}

// RemoveNode deletes the node and every edge touching it. It reports whether
// the node existed; removing an unknown id is a no-op.
func (s *Store) RemoveNode(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeNodeLocked(id)
}

func (s *Store) removeNodeLocked(id string) bool {
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	for nb := range s.adj[id] {
		delete(s.edges, newEdgeKey(id, nb))
		delete(s.adj[nb], id)
	}
	delete(s.adj, id)
	delete(s.nodes, id)
	return true
}

// AddEdge creates an edge between source and target. Missing endpoints,
// self-loops and duplicates (in either orientation) are no-ops reported
// through the result; missing endpoints are also logged as warnings.
func (s *Store) AddEdge(source, target string) EdgeResult {
	s.mu.Lock()
	res := s.addEdgeLocked(source, target)
	s.mu.Unlock()

	if res == EdgeMissingEndpoint {
		s.logger.Warn("edge endpoint missing, edge not created", "source", source, "target", target)
	}
	return res
}

func (s *Store) addEdgeLocked(source, target string) EdgeResult {
	if source == target {
		if _, ok := s.nodes[source]; !ok {
			return EdgeMissingEndpoint
		}
		return EdgeSelfLoop
	}
	if _, ok := s.nodes[source]; !ok {
		return EdgeMissingEndpoint
	}
	if _, ok := s.nodes[target]; !ok {
		return EdgeMissingEndpoint
	}
	key := newEdgeKey(source, target)
	if _, ok := s.edges[key]; ok {
		return EdgeExists
	}

	s.seq++
	s.edges[key] = &edgeEntry{edge: Edge{Source: source, Target: target}, seq: s.seq}
	s.link(source, target)
	s.link(target, source)
	return EdgeAdded
}

func (s *Store) link(from, to string) {
	set, ok := s.adj[from]
	if !ok {
		set = make(map[string]struct{})
		s.adj[from] = set
	}
	set[to] = struct{}{}
}

// RemoveEdge deletes the edge between source and target in either
// orientation. It reports whether an edge was removed.
func (s *Store) RemoveEdge(source, target string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := newEdgeKey(source, target)
	if _, ok := s.edges[key]; !ok {
		return false
	}
	delete(s.edges, key)
	delete(s.adj[source], target)
	delete(s.adj[target], source)
	return true
}

// Clear removes all nodes and edges.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Store) clearLocked() {
	s.nodes = make(map[string]*nodeEntry)
	s.edges = make(map[edgeKey]*edgeEntry)
	s.adj = make(map[string]map[string]struct{})
}

// Replace clears the store and rebuilds it from nodes and edges within a
// single critical section, so queries see either the old graph or the new
// one. Edges whose endpoints are not among the supplied nodes are dropped.
func (s *Store) Replace(nodes []NodePatch, edges []Edge) ReplaceStats {
	s.mu.Lock()
	s.clearLocked()

	var stats ReplaceStats
	for _, p := range nodes {
		if p.HasPosition() {
			stats.Positioned = true
		}
		s.upsertLocked(p)
	}
	for _, e := range edges {
		if s.addEdgeLocked(e.Source, e.Target) != EdgeAdded {
			stats.DroppedEdges++
		}
	}
	stats.Nodes = len(s.nodes)
	stats.Edges = len(s.edges)
	s.mu.Unlock()

	if stats.DroppedEdges > 0 {
		s.logger.Warn("bulk replace dropped edges", "dropped", stats.DroppedEdges, "supplied", len(edges))
	}
	return stats
}

// SetPositions writes coordinates back for every listed node that still
// exists and returns how many were updated.
func (s *Store) SetPositions(positions map[string]Position) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for id, p := range positions {
		if e, ok := s.nodes[id]; ok {
			e.node.X, e.node.Y = p.X, p.Y
			updated++
		}
	}
	return updated
}

// =============================================================================
// Queries
// =============================================================================

// Node returns the stored node and true, or the zero Node and false.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.nodes[id]; ok {
		return e.node, true
	}
	return Node{}, false
}

// HasEdge reports whether an edge joins a and b in either orientation.
func (s *Store) HasEdge(a, b string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.edges[newEdgeKey(a, b)]
	return ok
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.edges)
}

// Stats returns node and edge counts read under one lock.
func (s *Store) Stats() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes), len(s.edges)
}

// All returns every node and edge. Nodes and edges are listed in the order
// they were inserted.
func (s *Store) All() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*nodeEntry, 0, len(s.nodes))
	for _, e := range s.nodes {
		nodes = append(nodes, e)
	}
	edges := make([]*edgeEntry, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e)
	}
	return collect(nodes, edges)
}

// collect sorts entries by insertion sequence and copies them out.
func collect(nodes []*nodeEntry, edges []*edgeEntry) Graph {
	slices.SortFunc(nodes, func(a, b *nodeEntry) int { return cmp.Compare(a.seq, b.seq) })
	slices.SortFunc(edges, func(a, b *edgeEntry) int { return cmp.Compare(a.seq, b.seq) })

	g := Graph{
		Nodes: make([]Node, len(nodes)),
		Edges: make([]Edge, len(edges)),
	}
	for i, e := range nodes {
		g.Nodes[i] = e.node
	}
	for i, e := range edges {
		g.Edges[i] = e.edge
	}
	return g
}
