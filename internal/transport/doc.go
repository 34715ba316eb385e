// Package transport carries command dispatches to the helper process over a websocket.
//
// WebSocketTransport dials ws://, wss://, or unix:// endpoints lazily, writes one
// JSON frame per dispatch, and routes reply frames to one-shot listeners keyed by
// reply channel. When the connection drops, every pending listener receives a
// communication failure so no caller waits for its full timeout.
package transport
