// Package fanout pushes graph change events to connected clients.
//
// A [Hub] holds a set of [Subscriber]s. [Hub.Broadcast] encodes an [Event]
// once and hands the same bytes to every subscriber; a subscriber whose send
// fails is logged, removed and closed without affecting anyone else.
//
// New subscribers receive a {"type":"connected"} acknowledgement before any
// other event. After [Hub.Shutdown] the hub closes every subscriber and
// rejects new ones with [ErrClosed].
//
// [WebSocketSubscriber] is the production subscriber: a gorilla/websocket
// connection with a bounded send queue, a writer goroutine and keepalive
// pings. Sinks registered with [Hub.Attach] (the Redis and MongoDB mirrors)
// see every broadcast but never count as subscribers.
package fanout
