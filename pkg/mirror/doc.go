// Package mirror copies the event stream to systems outside the server.
//
// A [Relay] is attached to the fanout hub as a sink. It queues every
// broadcast and hands it to a [Publisher] from its own goroutine, so a slow
// or unreachable backend never delays a mutation. When the queue is full the
// event is dropped and the hub logs a warning.
//
// Two publishers are provided:
//
//   - [RedisPublisher] PUBLISHes the raw JSON to a Redis channel
//   - [MongoJournal] inserts each event into a MongoDB collection as an
//     append-only audit journal
//
// Both are optional and configured in the mirror.redis and mirror.mongo
// sections of the config file.
// Neither is ever read back to rebuild the graph.
package mirror
