package repository

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/browser-bridge/bridge/internal/model"
	"github.com/browser-bridge/bridge/internal/ws"
)

const journalWriteTimeout = 2 * time.Second

// ConnectionJournal writes a row per connection session. Write failures are
// logged and never affect the relay.
type ConnectionJournal struct {
	repo   *JournalRepository
	logger zerolog.Logger

	mu   sync.Mutex
	rows map[*ws.Connection]int64
}

var _ ws.Listener = (*ConnectionJournal)(nil)

// NewConnectionJournal creates a journal listener backed by repo.
func NewConnectionJournal(repo *JournalRepository, logger zerolog.Logger) *ConnectionJournal {
	return &ConnectionJournal{
		repo:   repo,
		logger: logger.With().Str("component", "journal").Logger(),
		rows:   make(map[*ws.Connection]int64),
	}
}

// Repository returns the underlying repository.
func (j *ConnectionJournal) Repository() *JournalRepository {
	return j.repo
}

func (j *ConnectionJournal) ConnectionOpened(c *ws.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	id, err := j.repo.Open(ctx, c.ID(), c.ConnectedAt())
	if err != nil {
		j.logger.Warn().Err(err).Str("connection_id", c.ID()).Msg("failed to journal connection")
		return
	}

	j.mu.Lock()
	j.rows[c] = id
	j.mu.Unlock()
}

func (j *ConnectionJournal) MessageReceived(*ws.Connection, *model.Envelope) {}

func (j *ConnectionJournal) ConnectionClosed(c *ws.Connection, _ error) {
	j.mu.Lock()
	id, ok := j.rows[c]
	delete(j.rows, c)
	j.mu.Unlock()
	if !ok {
		return
	}

	summary := c.Summary()
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	if err := j.repo.Close(ctx, id, time.Now(), summary.MessageCount, summary.LastMessageType, c.CloseReason()); err != nil {
		j.logger.Warn().Err(err).Str("connection_id", c.ID()).Msg("failed to journal disconnect")
	}
}
