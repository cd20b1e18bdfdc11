package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/metrics"
	"github.com/browser-bridge/bridge/internal/model"
)

const (
	defaultHistoryLimit   = 1000
	defaultWriteTimeout   = 10 * time.Second
	defaultMaxMessageSize = 16 << 20
	defaultPollInterval   = 100 * time.Millisecond
)

// Close reasons, also used as metric labels.
const (
	reasonPeer       = "peer"
	reasonError      = "error"
	reasonSuperseded = "superseded"
	reasonShutdown   = "shutdown"
)

// ErrRelayClosed is returned for handshakes that arrive during shutdown.
var ErrRelayClosed = errors.New("relay is shut down")

// Config holds relay settings. Zero values take defaults, except
// KeepAliveInterval (zero disables pings and read deadlines) and
// MaxConnections (zero means unlimited).
type Config struct {
	HistoryLimit      int
	WriteTimeout      time.Duration
	KeepAliveInterval time.Duration
	MaxMessageSize    int64
	MaxConnections    int
	PollInterval      time.Duration
	ReplyScan         ScanMode
	// ReplyTimeout applies to calls without their own timeout.
	ReplyTimeout time.Duration
}

// DefaultConfig returns the settings used by the bridge server.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:      defaultHistoryLimit,
		WriteTimeout:      defaultWriteTimeout,
		KeepAliveInterval: 120 * time.Second,
		MaxMessageSize:    defaultMaxMessageSize,
		MaxConnections:    10,
		PollInterval:      defaultPollInterval,
		ReplyScan:         ScanNewest,
		ReplyTimeout:      DefaultReplyTimeout,
	}
}

// Relay owns the connection registry and moves envelopes between HTTP
// callers and connected browsers.
type Relay struct {
	cfg       Config
	registry  *Registry
	listeners []Listener
	upgrader  websocket.Upgrader
	logger    zerolog.Logger

	mu      sync.RWMutex
	closing bool
	wg      sync.WaitGroup
}

// NewRelay creates a relay with an empty registry.
func NewRelay(cfg Config, logger zerolog.Logger, listeners ...Listener) *Relay {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}

	return &Relay{
		cfg:       cfg,
		registry:  NewRegistry(),
		listeners: listeners,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger: logger.With().Str("component", "relay").Logger(),
	}
}

// Registry returns the registry of open connections.
func (r *Relay) Registry() *Registry {
	return r.registry
}

// Config returns the effective relay settings.
func (r *Relay) Config() Config {
	return r.cfg
}

// SetCheckOrigin sets the origin checker used during the handshake.
func (r *Relay) SetCheckOrigin(fn func(req *http.Request) bool) {
	r.upgrader.CheckOrigin = fn
}

// Admit reports whether a handshake for id would be accepted right now.
// Serve repeats the check atomically after the upgrade.
func (r *Relay) Admit(id string) error {
	r.mu.RLock()
	closing := r.closing
	r.mu.RUnlock()

	if closing {
		return ErrRelayClosed
	}
	if r.cfg.MaxConnections > 0 && !r.registry.Has(id) && r.registry.Count() >= r.cfg.MaxConnections {
		return model.ErrConnectionLimit
	}
	return nil
}

// HandleConnection upgrades the request and serves the socket under id.
// On upgrade failure the upgrader has already written the HTTP response.
func (r *Relay) HandleConnection(w http.ResponseWriter, req *http.Request, id string) (*Connection, error) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return nil, err
	}
	return r.Serve(id, conn)
}

// Serve registers sock under id and starts its receive loop. A connection
// already registered under id is replaced and closed.
func (r *Relay) Serve(id string, sock Socket) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closing {
		r.refuse(sock, websocket.CloseGoingAway, "server shutting down")
		return nil, ErrRelayClosed
	}

	c := newConnection(id, sock, r.cfg.HistoryLimit, r.logger)
	prev, err := r.registry.AddLimited(id, c, r.cfg.MaxConnections)
	if err != nil {
		metrics.ConnectionsRejected.Inc()
		r.refuse(sock, websocket.CloseTryAgainLater, "connection limit reached")
		return nil, err
	}

	metrics.ConnectionsOpened.Inc()
	if prev != nil {
		c.log.Info().Msg("replacing existing connection")
		prev.shutdown(websocket.CloseNormalClosure, reasonSuperseded, r.cfg.WriteTimeout)
	} else {
		metrics.ConnectionsActive.Inc()
	}
	c.log.Info().Msg("connection established")

	for _, l := range r.listeners {
		l.ConnectionOpened(c)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.readLoop(c)
	}()
	if r.cfg.KeepAliveInterval > 0 {
		go r.keepalive(c)
	}

	return c, nil
}

func (r *Relay) refuse(sock Socket, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(r.cfg.WriteTimeout))
	sock.Close()
}

// readLoop reads complete messages until the socket fails or closes.
// gorilla/websocket reassembles continuation frames before returning.
func (r *Relay) readLoop(c *Connection) {
	var loopErr error
	defer func() {
		r.teardown(c, loopErr)
	}()

	c.sock.SetReadLimit(r.cfg.MaxMessageSize)
	r.extendReadDeadline(c)
	c.sock.SetPongHandler(func(string) error {
		r.extendReadDeadline(c)
		return nil
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if c.beginClose(reasonPeer) {
					c.log.Debug().Int("code", closeErr.Code).Str("text", closeErr.Text).Msg("peer closed connection")
				}
			} else if c.beginClose(reasonError) {
				loopErr = err
				c.log.Warn().Err(err).Msg("connection read failed")
			}
			return
		}

		r.extendReadDeadline(c)
		r.receive(c, data)
	}
}

// receive decodes one message. Undecodable messages are dropped and the
// connection stays open.
func (r *Relay) receive(c *Connection, data []byte) {
	env, err := model.DecodeEnvelope(data)
	if err != nil {
		metrics.DecodeErrors.Inc()
		c.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable message")
		return
	}

	c.record(env)
	metrics.MessagesReceived.WithLabelValues(metrics.TypeLabel(env.Type)).Inc()
	c.log.Debug().Str("type", env.Type).Msg("received message")

	for _, l := range r.listeners {
		l.MessageReceived(c, env)
	}
}

// teardown is the only place a connection is cleaned up.
func (r *Relay) teardown(c *Connection, err error) {
	if r.registry.RemoveIf(c.id, c) {
		metrics.ConnectionsActive.Dec()
	}

	reason := c.CloseReason()
	if reason == reasonError {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
	c.sock.Close()
	c.markClosed()

	metrics.ConnectionsClosed.WithLabelValues(reason).Inc()
	for _, l := range r.listeners {
		l.ConnectionClosed(c, err)
	}
	c.log.Info().Str("reason", reason).Uint64("messages", c.Total()).Msg("connection closed")
}

func (r *Relay) extendReadDeadline(c *Connection) {
	if r.cfg.KeepAliveInterval <= 0 {
		return
	}
	c.sock.SetReadDeadline(time.Now().Add(r.cfg.KeepAliveInterval + r.cfg.WriteTimeout))
}

// keepalive pings the peer until the connection is torn down.
func (r *Relay) keepalive(c *Connection) {
	ticker := time.NewTicker(r.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ping(time.Now().Add(r.cfg.WriteTimeout)); err != nil {
				c.log.Debug().Err(err).Msg("keepalive ping failed")
				c.abort(reasonError)
				return
			}
		}
	}
}

// SendTo writes payload to the connection registered under id.
// A connection that is closing silently drops the payload.
func (r *Relay) SendTo(ctx context.Context, id string, payload any) error {
	c, ok := r.registry.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrConnectionNotFound, id)
	}
	return r.send(ctx, c, payload)
}

func (r *Relay) send(ctx context.Context, c *Connection, payload any) error {
	if c.State() != StateOpen {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(payload)
	if err != nil {
		metrics.SendErrors.WithLabelValues("encode").Inc()
		return err
	}

	if err := r.deliver(ctx, c, data); err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrSendFailed, c.id, err)
	}
	metrics.MessagesSent.WithLabelValues("direct").Inc()
	return nil
}

// Broadcast writes payload to every registered connection concurrently and
// returns how many connections were targeted. Failures are logged per
// recipient and never reported to the caller.
func (r *Relay) Broadcast(ctx context.Context, payload any) int {
	conns := r.registry.All()
	if len(conns) == 0 {
		return 0
	}

	data, err := encode(payload)
	if err != nil {
		metrics.SendErrors.WithLabelValues("encode").Inc()
		r.logger.Error().Err(err).Msg("broadcast payload could not be encoded")
		return 0
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		if c.State() != StateOpen {
			continue
		}
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := r.deliver(ctx, c, data); err == nil {
				metrics.MessagesSent.WithLabelValues("broadcast").Inc()
			}
		}(c)
	}
	wg.Wait()

	return len(conns)
}

// deliver writes one encoded message with a bounded deadline. A failed
// write tears the connection down.
func (r *Relay) deliver(ctx context.Context, c *Connection, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(r.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := c.write(data, deadline); err != nil {
		metrics.SendErrors.WithLabelValues("write").Inc()
		c.log.Warn().Err(err).Msg("failed to send message")
		c.abort(reasonError)
		return err
	}
	return nil
}

// Close shuts down every connection and waits for the receive loops to
// finish or ctx to end. New handshakes are refused afterwards.
func (r *Relay) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	for _, c := range r.registry.All() {
		c.shutdown(websocket.CloseGoingAway, reasonShutdown, r.cfg.WriteTimeout)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func encode(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEncode, err)
	}
	return data, nil
}
