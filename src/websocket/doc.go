// Package websocket provides a reconnecting WebSocket session.
//
// A Session owns one logical connection to a URL and survives any number of
// underlying transports:
//   - Status, last received message and live transport are observable cells
//   - Messages sent while not open are buffered and flushed in order on open
//   - Optional heartbeats detect silent peers through a pong deadline
//   - Optional reconnect policy with a retry limit or predicate and a delay
//
// Heartbeat replies are recognized by comparing each inbound message with the
// heartbeat message. A user message that equals the heartbeat message is
// therefore never delivered.
package websocket
