// Package gateway is the request/response surface of the sync service.
//
// # Overview
//
// A [Gateway] turns sync mutations into [graph.Store] calls and broadcasts the
// matching event on a [fanout.Hub]. A [Server] exposes the gateway over HTTP
// with a websocket event channel.
//
// # Mutations
//
// Each mutation is a type plus a JSON payload:
//
//	node:add     {id, title, status, ...}   upsert, broadcast the stored node
//	node:update  {id, title, status, ...}   upsert, broadcast {id, patch}
//	node:remove  {id}                       remove with edge cascade
//	edge:add     {source, target}           broadcast only if the edge was created
//	edge:remove  {source, target}
//	bulk:sync    {nodes: [...], edges: [...]}
//
// bulk:sync replaces the whole graph. When none of the supplied nodes carry
// coordinates the gateway runs the force-directed layout before broadcasting a
// single graph:replaced event.
//
// Referential problems (an edge to a missing node, removing an unknown id)
// are not errors: the mutation succeeds with [Result.Applied] set to false.
//
// # Ordering
//
// Mutations hold a gateway mutex from the store call until their event has
// been handed to every subscriber, so events arrive in the order mutations
// were admitted. Queries only take the store's read lock.
//
// # HTTP
//
//	srv := gateway.NewServer(gw, gateway.ServerOptions{Metrics: promhttp.Handler()})
//	http.ListenAndServe(":8080", srv)
//
// Errors are returned as {"error": ..., "code": ...} with the status derived
// from the code (see errors.HTTPStatus).
package gateway
