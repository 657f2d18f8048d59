// Package client is a Go client for a graphsync server.
//
// # Usage
//
//	c, err := client.New("http://localhost:8080", client.Options{})
//	res, err := c.Mutate(ctx, gateway.TypeNodeAdd, map[string]any{"id": "42", "title": "ship it"})
//	g, err := c.Subgraph(ctx, "42", 2)
//
// Error responses are decoded into *errors.Error carrying the server's code,
// so callers can branch with errors.Is(err, errors.ErrCodeInvalidPayload).
//
// Reads (graph, health, version) are retried on network failures and 5xx
// responses using [httputil.Retry]. Mutations are sent once.
//
// # Events
//
// [Client.Subscribe] opens the websocket event channel:
//
//	sub, err := c.Subscribe(ctx)
//	for ev := range sub.Events() {
//	    fmt.Println(ev.Type)
//	}
//	if err := sub.Err(); err != nil { ... }
package client
