// Package peer implements the browser side of the bridge protocol: it dials
// the relay, announces itself, answers commands through registered handlers
// and reconnects when the connection drops.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/model"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultWriteTimeout   = 10 * time.Second
)

// ErrNotConnected is returned by Emit while no connection is up.
var ErrNotConnected = errors.New("peer is not connected")

// Handler answers one inbound command. A nil reply sends nothing.
type Handler func(ctx context.Context, cmd *model.Envelope) (*model.Envelope, error)

// Config configures a Peer.
type Config struct {
	// URL of the relay WebSocket endpoint, e.g. ws://127.0.0.1:3141/ws.
	URL          string
	ConnectionID string
	UserAgent    string

	ReconnectDelay time.Duration
	WriteTimeout   time.Duration
	Dialer         *websocket.Dialer
	Logger         zerolog.Logger
}

// Peer is a reconnecting bridge client.
type Peer struct {
	cfg      Config
	handlers map[string]Handler
	log      zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// New creates a peer. Handlers must be registered before Run.
func New(cfg Config) *Peer {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "browser-bridge-peer"
	}

	return &Peer{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		log:      cfg.Logger.With().Str("component", "peer").Str("connection_id", cfg.ConnectionID).Logger(),
	}
}

// Handle registers h for commands of type typ.
func (p *Peer) Handle(typ string, h Handler) {
	p.handlers[typ] = h
}

// Connected reports whether a connection is currently up.
func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

// Run keeps a connection to the relay until ctx ends, waiting
// ReconnectDelay between attempts. It returns ctx.Err().
func (p *Peer) Run(ctx context.Context) error {
	endpoint, err := p.endpoint()
	if err != nil {
		return err
	}

	for {
		if err := p.session(ctx, endpoint); err != nil && ctx.Err() == nil {
			p.log.Warn().Err(err).Dur("retry_in", p.cfg.ReconnectDelay).Msg("connection lost")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.ReconnectDelay):
		}
	}
}

func (p *Peer) endpoint() (string, error) {
	u, err := url.Parse(p.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid relay url: %w", err)
	}
	if p.cfg.ConnectionID != "" {
		q := u.Query()
		q.Set("connectionId", p.cfg.ConnectionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// session runs one connection until it fails or ctx ends.
func (p *Peer) session(ctx context.Context, endpoint string) error {
	conn, _, err := p.cfg.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		p.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		p.writeMu.Unlock()
		conn.Close()
	})
	defer stop()

	hello := model.NewEnvelope(model.TypeConnectionEstablished)
	if err := hello.SetField("userAgent", p.cfg.UserAgent); err != nil {
		return err
	}
	if err := p.write(conn, hello); err != nil {
		return err
	}
	p.log.Info().Msg("connected to relay")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				p.log.Info().Int("code", closeErr.Code).Str("text", closeErr.Text).Msg("relay closed connection")
			}
			return err
		}

		cmd, err := model.DecodeEnvelope(data)
		if err != nil {
			p.log.Warn().Err(err).Msg("ignoring undecodable message")
			continue
		}
		p.dispatch(ctx, conn, cmd)
	}
}

func (p *Peer) dispatch(ctx context.Context, conn *websocket.Conn, cmd *model.Envelope) {
	h, ok := p.handlers[cmd.Type]
	if !ok {
		p.log.Debug().Str("type", cmd.Type).Msg("no handler for message type")
		return
	}

	reply, err := h(ctx, cmd)
	if err != nil {
		p.log.Warn().Err(err).Str("type", cmd.Type).Msg("handler failed")
		reply = failure(cmd, err)
	}
	if reply == nil {
		return
	}
	if reply.TabID == nil {
		reply.TabID = cmd.TabID
	}

	if err := p.write(conn, reply); err != nil {
		p.log.Warn().Err(err).Str("type", reply.Type).Msg("failed to send reply")
	}
}

// failure builds the error reply for a command that has a reply type.
func failure(cmd *model.Envelope, err error) *model.Envelope {
	replyType, ok := model.ReplyTypeFor(cmd.Type)
	if !ok {
		return nil
	}
	reply := model.NewEnvelope(replyType)
	reply.SetField("success", false)
	reply.SetField("error", err.Error())
	return reply
}

// Emit sends an unsolicited envelope such as console or page_load telemetry.
func (p *Peer) Emit(env *model.Envelope) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return p.write(conn, env)
}

func (p *Peer) write(conn *websocket.Conn, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrEncode, err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
