// Package config loads server configuration: defaults in code, then an
// optional YAML file, then LSP_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ggoodman/lsp-server-go/internal/logctx"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServerName   = "lsp-server-go"
	DefaultConcurrency  = 8
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultBackend      = "memory"
	DefaultMaxDocuments = 1024
	DefaultRedisAddr    = "localhost:6379"
	DefaultKeyPrefix    = "lsp:documents:"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// ServerConfig controls the dispatcher.
type ServerConfig struct {
	Name           string `yaml:"name,omitempty" env:"LSP_SERVER_NAME"`
	Concurrency    int    `yaml:"concurrency,omitempty" env:"LSP_CONCURRENCY"`
	ValidateParams bool   `yaml:"validate_params,omitempty" env:"LSP_VALIDATE_PARAMS"`
}

// LogConfig controls the slog handler. Logs always go to stderr since stdout
// carries the protocol.
type LogConfig struct {
	Level  string `yaml:"level,omitempty" env:"LSP_LOG_LEVEL"`
	Format string `yaml:"format,omitempty" env:"LSP_LOG_FORMAT"`
}

// DocumentsConfig selects the open-document store.
type DocumentsConfig struct {
	Backend      string        `yaml:"backend,omitempty" env:"LSP_DOCUMENTS_BACKEND"`
	MaxDocuments int           `yaml:"max_documents,omitempty" env:"LSP_DOCUMENTS_MAX"`
	RedisAddr    string        `yaml:"redis_addr,omitempty" env:"LSP_REDIS_ADDR"`
	RedisDB      int           `yaml:"redis_db,omitempty" env:"LSP_REDIS_DB"`
	KeyPrefix    string        `yaml:"key_prefix,omitempty" env:"LSP_REDIS_KEY_PREFIX"`
	TTL          time.Duration `yaml:"ttl,omitempty" env:"LSP_DOCUMENTS_TTL"`
}

// WatchConfig enables the server-side file watcher used when the client
// cannot watch files itself.
type WatchConfig struct {
	Enabled bool   `yaml:"enabled,omitempty" env:"LSP_WATCH"`
	Root    string `yaml:"root,omitempty" env:"LSP_WATCH_ROOT"`
}

// TraceConfig enables span export. Tracing stays off without an endpoint.
type TraceConfig struct {
	Endpoint string `yaml:"endpoint,omitempty" env:"LSP_OTEL_ENDPOINT"`
}

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Log       LogConfig       `yaml:"log,omitempty"`
	Documents DocumentsConfig `yaml:"documents,omitempty"`
	Watch     WatchConfig     `yaml:"watch,omitempty"`
	Trace     TraceConfig     `yaml:"trace,omitempty"`
}

// Default returns a Config with all hard-coded defaults populated.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Name:        DefaultServerName,
			Concurrency: DefaultConcurrency,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Documents: DocumentsConfig{
			Backend:      DefaultBackend,
			MaxDocuments: DefaultMaxDocuments,
			RedisAddr:    DefaultRedisAddr,
			KeyPrefix:    DefaultKeyPrefix,
		},
	}
}

// Load layers the YAML file at path (if non-empty) and the environment over
// the defaults, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Server.Concurrency <= 0 {
		return fmt.Errorf("%w: server.concurrency must be positive, got %d", ErrInvalidConfig, c.Server.Concurrency)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	switch c.Documents.Backend {
	case "memory":
	case "redis":
		if c.Documents.RedisAddr == "" {
			return fmt.Errorf("%w: documents.redis_addr is required for the redis backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: documents.backend must be memory or redis, got %q", ErrInvalidConfig, c.Documents.Backend)
	}
	if c.Documents.TTL < 0 {
		return fmt.Errorf("%w: documents.ttl must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Level))); err != nil {
		return 0, fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	return lvl, nil
}

// NewLogger builds the configured logger writing to w. Records carry the
// rpc, doc and conn attribute groups found in their context.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if c.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return logctx.NewLogger(h), nil
}
