// Package mirror republishes relay traffic on a redis pub/sub channel so
// other services can observe connected browsers.
package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/metrics"
	"github.com/browser-bridge/bridge/internal/model"
	"github.com/browser-bridge/bridge/internal/ws"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 2 * time.Second
)

// Event kinds.
const (
	EventConnected    = "connected"
	EventMessage      = "message"
	EventDisconnected = "disconnected"
)

// Publisher is the subset of the redis client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Event is the JSON document published for each relay event.
type Event struct {
	Kind         string          `json:"event"`
	ConnectionID string          `json:"connectionId"`
	At           time.Time       `json:"at"`
	Envelope     *model.Envelope `json:"envelope,omitempty"`
	Reason       string          `json:"reason,omitempty"`
}

// Mirror is a ws.Listener that publishes events from a background worker.
// Events are dropped when the queue is full.
type Mirror struct {
	pub     Publisher
	channel string
	timeout time.Duration
	logger  zerolog.Logger

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ ws.Listener = (*Mirror)(nil)

// New starts a mirror publishing to channel.
func New(pub Publisher, channel string, logger zerolog.Logger) *Mirror {
	m := &Mirror{
		pub:     pub,
		channel: channel,
		timeout: defaultPublishTimeout,
		logger:  logger.With().Str("component", "mirror").Str("channel", channel).Logger(),
		queue:   make(chan Event, defaultQueueSize),
		done:    make(chan struct{}),
	}

	m.wg.Add(1)
	go m.run()
	return m
}

// Dial connects to redisURL and starts a mirror on top of the client.
// The returned client must be closed by the caller after the mirror.
func Dial(ctx context.Context, redisURL, channel string, logger zerolog.Logger) (*Mirror, *redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}

	return New(client, channel, logger), client, nil
}

func (m *Mirror) ConnectionOpened(c *ws.Connection) {
	m.enqueue(Event{Kind: EventConnected, ConnectionID: c.ID(), At: c.ConnectedAt()})
}

func (m *Mirror) MessageReceived(c *ws.Connection, env *model.Envelope) {
	m.enqueue(Event{Kind: EventMessage, ConnectionID: c.ID(), At: time.Now(), Envelope: env})
}

func (m *Mirror) ConnectionClosed(c *ws.Connection, _ error) {
	m.enqueue(Event{Kind: EventDisconnected, ConnectionID: c.ID(), At: time.Now(), Reason: c.CloseReason()})
}

func (m *Mirror) enqueue(ev Event) {
	select {
	case <-m.done:
		return
	default:
	}

	select {
	case m.queue <- ev:
	default:
		metrics.MirrorPublishErrors.Inc()
		m.logger.Warn().Str("event", ev.Kind).Str("connection_id", ev.ConnectionID).Msg("mirror queue full, dropping event")
	}
}

func (m *Mirror) run() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.queue:
			m.publish(ev)
		case <-m.done:
			// Flush what is already queued.
			for {
				select {
				case ev := <-m.queue:
					m.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Mirror) publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		metrics.MirrorPublishErrors.Inc()
		m.logger.Error().Err(err).Msg("failed to encode mirror event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.pub.Publish(ctx, m.channel, data).Err(); err != nil {
		metrics.MirrorPublishErrors.Inc()
		m.logger.Warn().Err(err).Str("event", ev.Kind).Msg("failed to publish mirror event")
	}
}

// Close stops accepting events and waits for queued ones to be published.
func (m *Mirror) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
}
