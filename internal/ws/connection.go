package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/buffer"
	"github.com/browser-bridge/bridge/internal/model"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Summary is the metadata reported for a connection.
type Summary struct {
	ID              string    `json:"connectionId"`
	ConnectedAt     time.Time `json:"connectedAt"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	MessageCount    int       `json:"messageCount"`
	LastMessageType string    `json:"lastMessageType,omitempty"`
	State           string    `json:"state"`
}

// Connection is one registered duplex channel to a browser peer.
type Connection struct {
	id          string
	sock        Socket
	connectedAt time.Time
	history     *buffer.Ring[*model.Envelope]
	log         zerolog.Logger

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
	state   atomic.Int32

	mu            sync.RWMutex
	lastMessageAt time.Time
	lastMessage   *model.Envelope

	closeReason atomic.Value // string
	done        chan struct{}
	closeOnce   sync.Once
}

func newConnection(id string, sock Socket, historyLimit int, log zerolog.Logger) *Connection {
	now := time.Now()
	return &Connection{
		id:            id,
		sock:          sock,
		connectedAt:   now,
		lastMessageAt: now,
		history:       buffer.NewRing[*model.Envelope](historyLimit),
		log:           log.With().Str("connection_id", id).Logger(),
		done:          make(chan struct{}),
	}
}

// ID returns the connection identity.
func (c *Connection) ID() string {
	return c.id
}

// ConnectedAt returns when the connection was registered.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// LastMessageAt returns when the last envelope was received, or the
// connect time when nothing has arrived yet.
func (c *Connection) LastMessageAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMessageAt
}

// LastMessage returns the most recent envelope, or nil.
func (c *Connection) LastMessage() *model.Envelope {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMessage
}

// History returns the most recent n envelopes, oldest first.
// n <= 0 returns all retained envelopes.
func (c *Connection) History(n int) []*model.Envelope {
	return c.history.Tail(n)
}

// Len returns the number of retained envelopes.
func (c *Connection) Len() int {
	return c.history.Len()
}

// Total returns the number of envelopes ever received. It only grows.
func (c *Connection) Total() uint64 {
	return c.history.Total()
}

// Since returns retained envelopes received after the given total.
func (c *Connection) Since(total uint64) []*model.Envelope {
	return c.history.Since(total)
}

// State returns the lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// Done is closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Summary returns a point-in-time description of the connection.
func (c *Connection) Summary() Summary {
	c.mu.RLock()
	lastAt := c.lastMessageAt
	last := c.lastMessage
	c.mu.RUnlock()

	s := Summary{
		ID:              c.id,
		ConnectedAt:     c.connectedAt,
		LastMessageTime: lastAt,
		MessageCount:    int(c.history.Total()),
		State:           c.State().String(),
	}
	if last != nil {
		s.LastMessageType = last.Type
	}
	return s
}

// record appends an inbound envelope. Only the receive loop calls it.
func (c *Connection) record(env *model.Envelope) {
	c.mu.Lock()
	c.lastMessage = env
	c.lastMessageAt = time.Now()
	c.mu.Unlock()

	c.history.Append(env)
}

// write sends one text message. A connection that is no longer open
// silently drops the write.
func (c *Connection) write(data []byte, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.State() != StateOpen {
		return nil
	}
	if err := c.sock.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.TextMessage, data)
}

// ping sends a keepalive ping. Control frames may be written concurrently
// with data frames.
func (c *Connection) ping(deadline time.Time) error {
	return c.sock.WriteControl(websocket.PingMessage, nil, deadline)
}

// beginClose moves an open connection to closing and records why.
// It reports whether this call made the transition.
func (c *Connection) beginClose(reason string) bool {
	if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		c.closeReason.Store(reason)
		return true
	}
	return false
}

// shutdown asks the peer to close and releases the socket, which ends the
// receive loop. Cleanup happens there.
func (c *Connection) shutdown(code int, reason string, writeTimeout time.Duration) {
	if !c.beginClose(reason) {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)); err != nil {
		c.log.Debug().Err(err).Msg("close frame not delivered")
	}
	c.sock.Close()
}

// abort releases the socket after a transport failure.
func (c *Connection) abort(reason string) {
	c.beginClose(reason)
	c.sock.Close()
}

// CloseReason returns why the connection began closing, or "" while open.
func (c *Connection) CloseReason() string {
	if v, ok := c.closeReason.Load().(string); ok {
		return v
	}
	return ""
}

func (c *Connection) markClosed() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}
