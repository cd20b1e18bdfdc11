// Package config loads bridge server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the bridge server.
type Config struct {
	Port        int
	BindAddress string
	Env         string
	LogLevel    string

	// Extra origins allowed on top of extension and localhost origins.
	AllowedOrigins []string

	// Relay
	MaxConnections    int
	HistoryLimit      int
	KeepAliveInterval time.Duration
	WriteTimeout      time.Duration
	MaxMessageSize    int64
	ReplyPollInterval time.Duration
	ReplyScan         string
	DefaultTimeout    time.Duration

	// Connection journal; JOURNAL_PATH=off disables it.
	JournalPath string

	// Envelope mirror; empty disables it.
	RedisURL     string
	RedisChannel string

	// Command endpoints rate limit, requests per second.
	CommandRate  float64
	CommandBurst int
}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using lookup to read variables.
func FromEnv(lookup func(string) string) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		Port:              p.int("PORT", 3141),
		BindAddress:       p.string("BIND_ADDRESS", "127.0.0.1"),
		Env:               p.string("ENV", "development"),
		LogLevel:          p.string("LOG_LEVEL", "info"),
		AllowedOrigins:    p.list("ALLOWED_ORIGINS"),
		MaxConnections:    p.int("MAX_CONNECTIONS", 10),
		HistoryLimit:      p.int("HISTORY_LIMIT", 1000),
		KeepAliveInterval: p.duration("KEEPALIVE_INTERVAL", 120*time.Second),
		WriteTimeout:      p.duration("WRITE_TIMEOUT", 10*time.Second),
		MaxMessageSize:    int64(p.int("MAX_MESSAGE_SIZE", 16<<20)),
		ReplyPollInterval: p.duration("REPLY_POLL_INTERVAL", 100*time.Millisecond),
		ReplyScan:         p.string("REPLY_SCAN", "newest"),
		DefaultTimeout:    p.duration("DEFAULT_REPLY_TIMEOUT", 10*time.Second),
		JournalPath:       p.string("JOURNAL_PATH", "data/bridge.db"),
		RedisURL:          p.string("REDIS_URL", ""),
		RedisChannel:      p.string("REDIS_CHANNEL", "browser-bridge:messages"),
		CommandRate:       p.float("COMMAND_RATE", 20),
		CommandBurst:      p.int("COMMAND_BURST", 40),
	}
	if p.err != nil {
		return nil, p.err
	}
	if cfg.JournalPath == "off" {
		cfg.JournalPath = ""
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", cfg.Port)
	}
	if cfg.HistoryLimit <= 0 {
		return nil, fmt.Errorf("HISTORY_LIMIT must be positive, got %d", cfg.HistoryLimit)
	}
	if cfg.ReplyPollInterval <= 0 {
		return nil, fmt.Errorf("REPLY_POLL_INTERVAL must be positive, got %s", cfg.ReplyPollInterval)
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// parser keeps the first conversion error so Load can report it once.
type parser struct {
	lookup func(string) string
	err    error
}

func (p *parser) string(key, def string) string {
	if v := strings.TrimSpace(p.lookup(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(p.lookup(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(p.lookup(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.lookup(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, entry := range strings.Split(p.lookup(key), ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
}
