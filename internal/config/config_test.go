package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, 3141, cfg.Port)
	assert.Equal(t, "127.0.0.1:3141", cfg.Addr())
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 1000, cfg.HistoryLimit)
	assert.Equal(t, 120*time.Second, cfg.KeepAliveInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.ReplyPollInterval)
	assert.Equal(t, 10*time.Second, cfg.DefaultTimeout)
	assert.Equal(t, "newest", cfg.ReplyScan)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Empty(t, cfg.RedisURL)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":                "8080",
		"BIND_ADDRESS":        "0.0.0.0",
		"ENV":                 "production",
		"ALLOWED_ORIGINS":     "https://a.example, https://b.example,,",
		"MAX_CONNECTIONS":     "0",
		"WRITE_TIMEOUT":       "250ms",
		"REPLY_SCAN":          "since_watermark",
		"COMMAND_RATE":        "2.5",
		"JOURNAL_PATH":        "",
		"REDIS_URL":           "redis://localhost:6379/0",
		"REPLY_POLL_INTERVAL": "50ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 0, cfg.MaxConnections)
	assert.Equal(t, 250*time.Millisecond, cfg.WriteTimeout)
	assert.Equal(t, "since_watermark", cfg.ReplyScan)
	assert.Equal(t, 2.5, cfg.CommandRate)
	assert.Equal(t, "data/bridge.db", cfg.JournalPath)
	assert.Equal(t, 50*time.Millisecond, cfg.ReplyPollInterval)

	cfg, err = FromEnv(env(map[string]string{"JOURNAL_PATH": "off"}))
	require.NoError(t, err)
	assert.Empty(t, cfg.JournalPath)
}

func TestFromEnvErrors(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":          {"PORT": "http"},
		"port out of range": {"PORT": "70000"},
		"bad duration":      {"KEEPALIVE_INTERVAL": "2 minutes"},
		"bad float":         {"COMMAND_RATE": "fast"},
		"zero history":      {"HISTORY_LIMIT": "0"},
		"zero poll":         {"REPLY_POLL_INTERVAL": "0s"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromEnv(env(vars))
			assert.Error(t, err)
		})
	}
}
