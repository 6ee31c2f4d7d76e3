package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable name read by ParseEnv
const EnvPrefix = "QUIZ_"

// DefaultPath is the config file read when no --config flag is given
const DefaultPath = "quiz.yaml"

// Config holds all settings for the quiz gateway process
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Hub       HubConfig       `yaml:"hub" envPrefix:"HUB_"`
	WebSocket WebSocketConfig `yaml:"websocket" envPrefix:"WS_"`
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	NATS      NATSConfig      `yaml:"nats" envPrefix:"NATS_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
}

// ServerConfig configures the HTTP listener
type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

// HubConfig configures the broadcast hub
type HubConfig struct {
	Capacity int `yaml:"capacity" env:"CAPACITY"`
}

// WebSocketConfig configures each client connection.
// A PongWait of zero disables read deadlines. A frame larger than
// MaxMessageSize is a transport error and ends that connection.
type WebSocketConfig struct {
	MaxMessageSize  int64         `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	PongWait        time.Duration `yaml:"pong_wait" env:"PONG_WAIT"`
	ReadBufferSize  int           `yaml:"read_buffer_size" env:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" env:"WRITE_BUFFER_SIZE"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// NATSConfig configures the JetStream event relay. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url" env:"URL"`
	Stream        string `yaml:"stream" env:"STREAM"`
	SubjectPrefix string `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

// DatabaseConfig configures the answer journal. An empty URL disables it.
type DatabaseConfig struct {
	URL           string `yaml:"url" env:"URL"`
	JournalBuffer int    `yaml:"journal_buffer" env:"JOURNAL_BUFFER"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:3000",
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    120 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		Hub: HubConfig{
			Capacity: 32,
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize:  1 << 20,
			WriteTimeout:    10 * time.Second,
			PingInterval:    30 * time.Second,
			PongWait:        60 * time.Second,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		NATS: NATSConfig{
			Stream:        "QUIZ_EVENTS",
			SubjectPrefix: "quiz.events",
		},
		Database: DatabaseConfig{
			JournalBuffer: 256,
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and
// QUIZ_ prefixed environment variables, in that order. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// ParseEnv overlays QUIZ_ prefixed environment variables onto target.
// Unset variables leave the existing values alone.
func ParseEnv(target any) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports settings the gateway cannot run with
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if c.Hub.Capacity <= 0 {
		return fmt.Errorf("hub.capacity must be positive, got %d", c.Hub.Capacity)
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("websocket.ping_interval must be positive, got %s", c.WebSocket.PingInterval)
	}
	if c.WebSocket.PongWait > 0 && c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return fmt.Errorf("websocket.ping_interval (%s) must be shorter than websocket.pong_wait (%s)",
			c.WebSocket.PingInterval, c.WebSocket.PongWait)
	}
	if c.Database.JournalBuffer <= 0 {
		return fmt.Errorf("database.journal_buffer must be positive, got %d", c.Database.JournalBuffer)
	}
	return nil
}
