package model

import "errors"

var (
	// ErrConnectionNotFound is returned when no connection is registered under the requested id.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrNoTarget is returned when a command cannot be routed because no connection is available.
	ErrNoTarget = errors.New("no browser connections available")

	// ErrReplyTimeout is returned when a correlated reply does not arrive before the deadline.
	// The command has still been delivered.
	ErrReplyTimeout = errors.New("timed out waiting for reply")

	// ErrEncode is returned when an outbound payload cannot be serialized.
	ErrEncode = errors.New("failed to encode payload")

	// ErrSendFailed is returned when writing to a connection fails. The
	// connection is torn down.
	ErrSendFailed = errors.New("failed to send message")

	// ErrConnectionLimit is returned when the relay refuses a new connection.
	ErrConnectionLimit = errors.New("maximum connections reached")

	// ErrMissingType is returned when an inbound envelope has no type discriminator.
	ErrMissingType = errors.New("envelope type is required")

	// ErrNullEnvelope is returned when an inbound message is the JSON literal null.
	ErrNullEnvelope = errors.New("envelope is null")

	// ErrScriptRequired is returned when an execute request carries no script.
	ErrScriptRequired = errors.New("script is required")

	// ErrSelectorRequired is returned when an inspect request carries no selector.
	ErrSelectorRequired = errors.New("selector is required")
)
