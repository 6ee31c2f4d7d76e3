package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "quiz.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.ListenAddr)
	assert.Equal(t, 32, cfg.Hub.Capacity)
	assert.Equal(t, int64(1<<20), cfg.WebSocket.MaxMessageSize)
	assert.Empty(t, cfg.NATS.URL)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "0.0.0.0:9000"
  allowed_origins: ["https://slides.example.com"]
hub:
  capacity: 8
websocket:
  ping_interval: 5s
  pong_wait: 15s
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.ListenAddr)
	assert.Equal(t, []string{"https://slides.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 8, cfg.Hub.Capacity)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched sections keep their defaults
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "QUIZ_EVENTS", cfg.NATS.Stream)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_addr: "0.0.0.0:9000"
hub:
  capacity: 8
`)
	t.Setenv("QUIZ_SERVER_LISTEN_ADDR", "127.0.0.1:4000")
	t.Setenv("QUIZ_NATS_URL", "nats://localhost:4222")
	t.Setenv("QUIZ_WS_PONG_WAIT", "0s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Server.ListenAddr)
	assert.Equal(t, 8, cfg.Hub.Capacity)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Zero(t, cfg.WebSocket.PongWait)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("QUIZ_HUB_CAPACITY", "lots")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.Server.ListenAddr = "" },
			wantErr: "listen_addr",
		},
		{
			name:    "zero hub capacity",
			mutate:  func(c *Config) { c.Hub.Capacity = 0 },
			wantErr: "hub.capacity",
		},
		{
			name: "ping not shorter than pong wait",
			mutate: func(c *Config) {
				c.WebSocket.PingInterval = time.Minute
				c.WebSocket.PongWait = time.Minute
			},
			wantErr: "ping_interval",
		},
		{
			name: "pong wait disabled",
			mutate: func(c *Config) {
				c.WebSocket.PingInterval = time.Minute
				c.WebSocket.PongWait = 0
			},
		},
		{
			name:    "zero journal buffer",
			mutate:  func(c *Config) { c.Database.JournalBuffer = 0 },
			wantErr: "journal_buffer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
