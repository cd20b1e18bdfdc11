// Package ws relays commands between HTTP callers and browser sessions
// connected over WebSocket.
//
// The package implements:
//   - Connection: one registered peer socket with its bounded message history
//   - Registry: concurrent-safe map of connection id to Connection
//   - Relay: handshake, per-connection receive loop, directed send and broadcast
//   - Request: send a command and wait for the matching reply under a deadline
//
// Each connection is torn down in exactly one place, the deferred cleanup of
// its own receive loop, which also removes it from the registry. Writes to a
// socket are serialized per connection and carry a write deadline so one
// stalled peer cannot hold up a broadcast.
package ws
