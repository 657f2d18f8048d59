// Package graph provides the in-memory node/edge store at the heart of
// graphsync, plus the snapshot types used on the wire.
//
// # Overview
//
// A [Store] holds typed nodes (todos and notes mirrored from an external
// application) and untyped, undirected edges between them. It owns every graph
// invariant:
//
//   - Node ids are unique; inserting a known id merges into the stored node
//   - Edges are undirected: (a, b) and (b, a) are the same edge
//   - No duplicate edges and no self-loops
//   - An edge exists only while both endpoints exist; removing a node removes
//     every edge touching it
//
// # Basic Usage
//
//	s := graph.NewStore(graph.Options{})
//	title := "write docs"
//	s.Upsert(graph.NodePatch{ID: "1", Title: &title})
//	s.Upsert(graph.NodePatch{ID: "2"})
//	s.AddEdge("1", "2")
//
//	all := s.All()               // every node and edge
//	near := s.Subgraph("1", 2)   // nodes within two hops of "1"
//
// # Merging
//
// Incoming payloads decode into [NodePatch], whose pointer fields distinguish
// "absent" from "zero". [Store.Upsert] copies only supplied fields, so an
// update carrying just a status leaves the title alone. Positions are set as
// a whole: a patch with x and y overwrites the stored point, a new node
// without one gets a random point on the canvas, and an existing node without
// one keeps where it is.
//
// # Wire Format
//
// Snapshots use a node-link JSON format:
//
//	{
//	  "nodes": [{"id": "1", "title": "write docs", "status": "open", "x": 12.5, "y": 80}],
//	  "edges": [{"source": "1", "target": "2"}]
//	}
//
// Numeric ids, priorities and importances are accepted and stored as strings.
// Unknown keys are ignored.
//
// # Concurrency
//
// [Store] is safe for concurrent use. Queries share a read lock and mutations
// take the write lock, so a query never observes a half-applied mutation.
// [Store.Replace] rebuilds the whole graph inside one critical section.
package graph
