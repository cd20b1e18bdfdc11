package ws

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/model"
)

var errWriteTimeout = errors.New("i/o timeout")

// fakeSocket is an in-memory Socket. Closing inbound simulates a peer close
// frame; Close simulates the local side dropping the connection.
type fakeSocket struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	written  [][]byte
	controls []int
	deadline time.Time
	stall    bool
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case data, ok := <-s.inbound:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return websocket.TextMessage, data, nil
	case <-s.closed:
		return 0, nil, net.ErrClosed
	}
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	stall := s.stall
	deadline := s.deadline
	s.mu.Unlock()

	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}

	if stall {
		select {
		case <-time.After(time.Until(deadline)):
			return errWriteTimeout
		case <-s.closed:
			return net.ErrClosed
		}
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.written = append(s.written, buf)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) WriteControl(messageType int, _ []byte, _ time.Time) error {
	select {
	case <-s.closed:
		return net.ErrClosed
	default:
	}
	s.mu.Lock()
	s.controls = append(s.controls, messageType)
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) SetReadLimit(int64) {}

func (s *fakeSocket) SetReadDeadline(time.Time) error { return nil }

func (s *fakeSocket) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) SetPongHandler(func(string) error) {}

func (s *fakeSocket) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) setStall(stall bool) {
	s.mu.Lock()
	s.stall = stall
	s.mu.Unlock()
}

func (s *fakeSocket) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.written))
	copy(out, s.written)
	return out
}

func (s *fakeSocket) Controls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.controls))
	copy(out, s.controls)
	return out
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// recorder is a Listener that remembers what it saw.
type recorder struct {
	mu       sync.Mutex
	opened   []string
	received []string
	closed   []string
}

func (r *recorder) ConnectionOpened(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = append(r.opened, c.ID())
}

func (r *recorder) MessageReceived(_ *Connection, env *model.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, env.Type)
}

func (r *recorder) ConnectionClosed(c *Connection, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, c.ID())
}

func (r *recorder) closedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.closed)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestRelay(t *testing.T, cfg Config, listeners ...Listener) *Relay {
	t.Helper()
	relay := NewRelay(cfg, testLogger(), listeners...)
	t.Cleanup(func() {
		relay.Close(contextWithTimeout(t, 2*time.Second))
	})
	return relay
}

func waitDone(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("connection %s was not torn down", c.ID())
	}
}
