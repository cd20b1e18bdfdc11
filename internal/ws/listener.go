package ws

import "github.com/browser-bridge/bridge/internal/model"

// Listener observes connection lifecycle and inbound traffic. Callbacks run
// on the connection's receive loop and should return quickly.
type Listener interface {
	// ConnectionOpened is called after registration, before the first read.
	ConnectionOpened(c *Connection)
	// MessageReceived is called after env has been appended to the history.
	MessageReceived(c *Connection, env *model.Envelope)
	// ConnectionClosed is called once after the connection left the registry.
	// err is nil for an orderly close.
	ConnectionClosed(c *Connection, err error)
}
