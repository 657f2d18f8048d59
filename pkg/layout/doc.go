// Package layout computes 2D positions for graph nodes using a force-directed
// simulation.
//
// # Overview
//
// [ForceDirected] implements the Fruchterman-Reingold model: every pair of
// nodes repels with force k²/d, every edge pulls its endpoints together with
// force d²/k, and the distance a node may move per iteration is capped by a
// temperature that cools linearly to zero. k is the ideal edge length,
// derived from the canvas area and the node count.
//
// Positions are clamped to the canvas minus [Config.Padding] so nodes never
// sit on the border.
//
// # Usage
//
//	engine := layout.New(layout.Config{Width: 1000, Height: 1000})
//	positions := engine.Compute(g, 100)  // pure: map of node id to point
//	n := engine.Apply(store, 100)        // snapshot, compute, write back
//
// [ForceDirected.Apply] snapshots the store under its read lock, runs the
// simulation without holding any lock, and writes coordinates back with
// [graph.Store.SetPositions]. Nodes removed while the simulation ran are
// skipped.
//
// The simulation starts from the nodes' current positions, so repeated runs
// refine rather than scramble an existing layout. Results are not
// deterministic unless [Config.Seed] is set.
package layout
