package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/browser-bridge/bridge/internal/metrics"
	"github.com/browser-bridge/bridge/internal/model"
)

// ScanMode selects which history entries the correlator inspects on each poll.
type ScanMode int

const (
	// ScanNewest inspects only the newest entry. A reply followed by another
	// message within one poll interval is missed.
	ScanNewest ScanMode = iota
	// ScanSinceWatermark inspects every entry received since the command was sent.
	ScanSinceWatermark
)

func (m ScanMode) String() string {
	switch m {
	case ScanNewest:
		return "newest"
	case ScanSinceWatermark:
		return "since_watermark"
	}
	return "unknown"
}

// ParseScanMode parses the configuration name of a ScanMode.
func ParseScanMode(s string) (ScanMode, error) {
	switch s {
	case "", "newest":
		return ScanNewest, nil
	case "since_watermark":
		return ScanSinceWatermark, nil
	}
	return ScanNewest, fmt.Errorf("unknown reply scan mode %q", s)
}

// DefaultReplyTimeout is the ReplyTimeout of a relay configured without one.
const DefaultReplyTimeout = 10 * time.Second

// Call describes a command whose reply the caller waits for.
type Call struct {
	// ConnectionID selects the target; empty picks the longest-registered connection.
	ConnectionID string
	Command      any
	ReplyType    string
	Timeout      time.Duration
}

// Reply is the envelope that answered a Call.
type Reply struct {
	ConnectionID string
	Envelope     *model.Envelope
	Elapsed      time.Duration
}

// Request sends call.Command and polls the target's history until an
// envelope of call.ReplyType arrives or call.Timeout elapses. On timeout the
// command stays delivered; a late reply lands in the history as usual.
func (r *Relay) Request(ctx context.Context, call Call) (*Reply, error) {
	c, err := r.resolve(call.ConnectionID)
	if err != nil {
		metrics.CorrelatedRequests.WithLabelValues("no_target").Inc()
		return nil, err
	}

	timeout := call.Timeout
	if timeout <= 0 {
		timeout = r.cfg.ReplyTimeout
	}

	watermark := c.Total()
	start := time.Now()

	if err := r.send(ctx, c, call.Command); err != nil {
		metrics.CorrelatedRequests.WithLabelValues("error").Inc()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			metrics.CorrelatedRequests.WithLabelValues("error").Inc()
			return nil, ctx.Err()
		case <-timer.C:
			metrics.CorrelatedRequests.WithLabelValues("timeout").Inc()
			c.log.Info().Str("reply_type", call.ReplyType).Dur("timeout", timeout).Msg("reply timed out")
			return nil, fmt.Errorf("%w: no %s from %s within %s", model.ErrReplyTimeout, call.ReplyType, c.id, timeout)
		case <-ticker.C:
			env := r.match(c, watermark, call.ReplyType)
			if env == nil {
				continue
			}
			elapsed := time.Since(start)
			metrics.CorrelatedRequests.WithLabelValues("reply").Inc()
			metrics.CorrelationDuration.Observe(elapsed.Seconds())
			return &Reply{ConnectionID: c.id, Envelope: env, Elapsed: elapsed}, nil
		}
	}
}

func (r *Relay) resolve(id string) (*Connection, error) {
	if id == "" {
		c, ok := r.registry.First()
		if !ok {
			return nil, model.ErrNoTarget
		}
		return c, nil
	}

	c, ok := r.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", model.ErrNoTarget, model.ErrConnectionNotFound, id)
	}
	return c, nil
}

func (r *Relay) match(c *Connection, watermark uint64, replyType string) *model.Envelope {
	if c.Total() <= watermark {
		return nil
	}

	if r.cfg.ReplyScan == ScanSinceWatermark {
		for _, env := range c.Since(watermark) {
			if env.Type == replyType {
				return env
			}
		}
		return nil
	}

	newest, ok := c.history.Last()
	if ok && newest.Type == replyType {
		return newest
	}
	return nil
}
