package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/fanout"
	"github.com/matzehuels/graphsync/pkg/graph"
	"github.com/matzehuels/graphsync/pkg/layout"
	"github.com/matzehuels/graphsync/pkg/observability"
)

// DefaultDepth is the subgraph radius used when a query names a center but
// no usable depth.
const DefaultDepth = 2

// Layouter positions every node of a store. [layout.ForceDirected]
// implements it.
type Layouter interface {
	Apply(s *graph.Store, iterations int) int
}

// Options configures a [Gateway]. The zero value is usable.
type Options struct {
	// Layout positions bulk-synced graphs that arrive without coordinates.
	// Nil uses a force-directed layout sized to the store's canvas.
	Layout Layouter

	// LayoutIterations is passed to Layout. Zero uses layout.DefaultIterations.
	LayoutIterations int

	// Logger receives mutation logs. Nil means log.Default().
	Logger *log.Logger
}

// Gateway translates sync mutations into store calls and broadcasts the
// resulting events.
//
// Mutations are serialized by a gateway-wide mutex held from the store call
// through the broadcast, so subscribers see events in the order mutations
// were admitted. Queries bypass the mutex and only take the store's read
// lock.
type Gateway struct {
	mu         sync.Mutex
	store      *graph.Store
	hub        *fanout.Hub
	layout     Layouter
	iterations int
	logger     *log.Logger
}

// New creates a gateway over store and hub.
func New(store *graph.Store, hub *fanout.Hub, opts Options) *Gateway {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.LayoutIterations <= 0 {
		opts.LayoutIterations = layout.DefaultIterations
	}
	if opts.Layout == nil {
		w, h := store.Canvas()
		opts.Layout = layout.New(layout.Config{Width: w, Height: h, Logger: opts.Logger})
	}
	return &Gateway{
		store:      store,
		hub:        hub,
		layout:     opts.Layout,
		iterations: opts.LayoutIterations,
		logger:     opts.Logger,
	}
}

// Store returns the underlying graph store.
func (g *Gateway) Store() *graph.Store { return g.store }

// Hub returns the fanout hub events are broadcast on.
func (g *Gateway) Hub() *fanout.Hub { return g.hub }

// =============================================================================
// Mutations
// =============================================================================

// Apply validates and applies one mutation, then broadcasts its event.
//
// Referential no-ops (removing an unknown node, linking a missing node)
// succeed with Applied false. An unknown type fails with
// errors.ErrCodeUnknownMutation and a malformed payload with
// errors.ErrCodeInvalidPayload; nothing is applied or broadcast in either
// case. A panic while applying is recovered and reported as
// errors.ErrCodeInternal.
func (g *Gateway) Apply(ctx context.Context, m Mutation) (res Result, err error) {
	start := time.Now()
	res.Type = m.Type

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("mutation panicked", "type", m.Type, "panic", r)
			res.Applied = false
			err = errors.New(errors.ErrCodeInternal, "applying %s: %v", m.Type, r)
		}
		observability.Graph().OnMutation(ctx, m.Type, res.Applied, time.Since(start), err)
	}()

	if !Known(m.Type) {
		return res, errors.New(errors.ErrCodeUnknownMutation, "unknown mutation type %q", m.Type)
	}

	res.Applied, err = g.apply(ctx, m)
	if err != nil {
		return res, err
	}
	g.logger.Debug("mutation applied", "type", m.Type, "applied", res.Applied, "took", time.Since(start))
	return res, nil
}

func (g *Gateway) apply(ctx context.Context, m Mutation) (bool, error) {
	switch m.Type {
	case TypeNodeAdd, TypeNodeUpdate:
		p, err := decodeNode(m.Type, m.Data)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.upsert(m.Type, p), nil

	case TypeNodeRemove:
		id, err := decodeRemove(m.Data)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		removed := g.store.RemoveNode(id)
		if !removed {
			g.logger.Debug("remove of unknown node", "id", id)
		}
		g.hub.Broadcast(fanout.NodeRemoved(id))
		return removed, nil

	case TypeEdgeAdd:
		e, err := decodeEdge(m.Type, m.Data)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		res := g.store.AddEdge(e.Source, e.Target)
		if res != graph.EdgeAdded {
			g.logger.Debug("edge not created", "source", e.Source, "target", e.Target, "reason", res)
			return false, nil
		}
		g.hub.Broadcast(fanout.EdgeAdded(e))
		return true, nil

	case TypeEdgeRemove:
		e, err := decodeEdge(m.Type, m.Data)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		removed := g.store.RemoveEdge(e.Source, e.Target)
		g.hub.Broadcast(fanout.EdgeRemoved(e))
		return removed, nil

	case TypeBulkSync:
		p, err := decodeBulk(m.Data)
		if err != nil {
			return false, err
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		g.replace(ctx, p)
		return true, nil
	}
	return false, fmt.Errorf("unhandled mutation type %q", m.Type)
}

// upsert stores p and broadcasts node:add with the stored node, or
// node:update with only the supplied fields.
func (g *Gateway) upsert(mutationType string, p graph.NodePatch) bool {
	n, created := g.store.Upsert(p)
	if mutationType == TypeNodeAdd {
		g.hub.Broadcast(fanout.NodeAdded(n))
	} else {
		g.hub.Broadcast(fanout.NodeUpdated(p))
	}
	if created {
		g.logger.Debug("node created", "id", n.ID, "x", n.X, "y", n.Y)
	}
	return true
}

// replace rebuilds the store from a bulk payload. The store write lock is
// released before layout runs, so queries already see the new membership
// while positions are computed; the caller's gateway lock keeps other
// mutations out until graph:replaced has been broadcast.
func (g *Gateway) replace(ctx context.Context, p bulkPayload) {
	stats := g.store.Replace(p.Nodes, p.Edges)

	if !stats.Positioned && stats.Nodes > 0 {
		start := time.Now()
		positioned := g.layout.Apply(g.store, g.iterations)
		observability.Graph().OnLayout(ctx, positioned, time.Since(start))
	}

	nodes, edges := g.store.Stats()
	g.logger.Info("graph replaced", "nodes", nodes, "edges", edges, "dropped_edges", stats.DroppedEdges, "layout", !stats.Positioned && stats.Nodes > 0)
	g.hub.Broadcast(fanout.GraphReplaced(nodes, edges))
}

// =============================================================================
// Queries
// =============================================================================

// Graph returns every node and edge.
func (g *Gateway) Graph(ctx context.Context) graph.Graph {
	start := time.Now()
	out := g.store.All()
	observability.Graph().OnQuery(ctx, "full", len(out.Nodes), time.Since(start))
	return out
}

// Subgraph returns the nodes within depth hops of center and the edges among
// them. An unknown center yields an empty graph.
func (g *Gateway) Subgraph(ctx context.Context, center string, depth int) graph.Graph {
	start := time.Now()
	out := g.store.Subgraph(center, depth)
	observability.Graph().OnQuery(ctx, "subgraph", len(out.Nodes), time.Since(start))
	return out
}

// Health is the liveness summary served at /health.
type Health struct {
	Status      string    `json:"status"`
	Subscribers int       `json:"subscribers"`
	Nodes       int       `json:"nodes"`
	Edges       int       `json:"edges"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health reports subscriber and graph counts.
func (g *Gateway) Health() Health {
	nodes, edges := g.store.Stats()
	return Health{
		Status:      "ok",
		Subscribers: g.hub.Count(),
		Nodes:       nodes,
		Edges:       edges,
		Timestamp:   time.Now().UTC(),
	}
}
