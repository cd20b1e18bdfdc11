package model

import (
	"errors"
	"time"
)

// ErrJournalEntryNotFound is returned when a journal row does not exist.
var ErrJournalEntryNotFound = errors.New("journal entry not found")

// JournalEntry records one connection session, from handshake to teardown.
type JournalEntry struct {
	ID              int64      `json:"id"`
	ConnectionID    string     `json:"connectionId"`
	ConnectedAt     time.Time  `json:"connectedAt"`
	DisconnectedAt  *time.Time `json:"disconnectedAt,omitempty"`
	MessageCount    int        `json:"messageCount"`
	LastMessageType string     `json:"lastMessageType,omitempty"`
	CloseReason     string     `json:"closeReason,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (e *JournalEntry) Open() bool {
	return e.DisconnectedAt == nil
}
