package configs

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
bot:
  id: "b7"
transport:
  type: "redis"
  dedup_ttl: 5s
  redis:
    addrs: ["redis:6379"]
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "b7", cfg.Bot.ID)
	assert.Equal(t, "hubbot", cfg.Bot.Username, "unset keys keep defaults")
	assert.Equal(t, TransportRedis, cfg.Transport.Type)
	assert.Equal(t, 5*time.Second, cfg.Transport.DedupTTL)
	assert.Equal(t, []string{"redis:6379"}, cfg.Transport.Redis.Addrs)
	assert.Equal(t, "hubbot:", cfg.Transport.Redis.KeyPrefix)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, TransportWebSocket, cfg.Transport.Type)
	assert.Equal(t, 30*time.Second, cfg.Transport.WebSocket.PingInterval)
	assert.Equal(t, 5, cfg.Transport.WebSocket.Backoff.Retries)
	assert.Equal(t, 200*time.Millisecond, cfg.Transport.WebSocket.Backoff.Initial)
	assert.Equal(t, "/", cfg.Bot.CommandPrefix)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("HUBBOT_TRANSPORT_WEBSOCKET_TOKEN", "secret-token")
	t.Setenv("HUBBOT_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Transport.WebSocket.Token)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Transport.WebSocket.URL)
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Transport.Type = TransportNATS
	assert.Error(t, cfg.Validate(), "bus transports need a bot id")
	cfg.Bot.ID = "b1"
	assert.NoError(t, cfg.Validate())

	cfg.Transport.Type = "carrier-pigeon"
	assert.Error(t, cfg.Validate())
}

func TestHotReload(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log:\n  level: info\n")

	var level atomic.Value
	_, err := LoadConfig(path, func(c Config) { level.Store(c.Log.Level) })
	require.NoError(t, err)

	writeConfig(t, dir, "log:\n  level: debug\n")
	assert.Eventually(t, func() bool {
		v, _ := level.Load().(string)
		return v == "debug"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}
