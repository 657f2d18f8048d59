// Package pkg provides the core libraries for graphsync, an in-memory graph
// server that keeps collaborating clients in sync.
//
// # Overview
//
// Clients send mutations (add a task, link two tasks, replace the whole
// graph) over HTTP. The server applies each one to a shared store, places new
// nodes on a canvas and pushes the resulting change to every websocket
// subscriber in the order it was applied.
//
// # Architecture
//
// The data flow through a graphsync server:
//
//	POST /sync {type, data}
//	         ↓
//	    [gateway] (decode, validate, serialize mutations)
//	         ↓
//	    [graph] store (nodes, undirected edges, BFS subgraphs)
//	         ↓            ↘
//	    [layout]          [fanout] hub → websocket subscribers
//	    (force-directed)           ↘
//	                               [mirror] → Redis pub/sub, MongoDB journal
//
// # Main Packages
//
// ## Domain
//
// [graph] - The node and edge store. Nodes carry task attributes and a canvas
// position; edges are undirected and deduplicated. Subgraph queries walk the
// graph breadth-first from a center node.
//
// [layout] - Force-directed placement used when a bulk sync arrives without
// any coordinates.
//
// [gateway] - The mutation protocol and its HTTP surface (/sync, /graph,
// /health, /events).
//
// [fanout] - Broadcast hub and websocket subscribers.
//
// ## Infrastructure
//
// [mirror] - Optional out-of-process copies of the event stream.
//
// [observability] - Hook interfaces with a Prometheus implementation.
//
// [config] - TOML configuration with environment overrides.
//
// [errors] - Coded errors shared by the server and the client.
//
// ## Clients
//
// [client] - Go client for the HTTP API and the event stream.
//
// [render/nodelink] - Graphviz DOT and SVG output at stored positions.
//
// [httputil] - Retry with backoff for idempotent requests.
//
// # Quick Start
//
// Embed a server:
//
//	store := graph.NewStore(graph.Options{})
//	hub := fanout.NewHub(nil)
//	gw := gateway.New(store, hub, gateway.Options{})
//	http.ListenAndServe(":8080", gateway.NewServer(gw, gateway.ServerOptions{}))
//
// Talk to it:
//
//	c, _ := client.New("http://localhost:8080", client.Options{})
//	c.Mutate(ctx, gateway.TypeNodeAdd, map[string]any{"id": 1, "title": "plan"})
//	g, _ := c.Subgraph(ctx, "1", 2)
package pkg
