// Package config loads graphsync server settings.
//
// Settings are layered: built-in defaults, then a TOML file, then
// GRAPHSYNC_* environment variables. The CLI applies its flags last.
//
//	cfg, err := config.Load("")       // defaults + default file + env
//	cfg, err := config.Load("x.toml") // defaults + x.toml + env
//
// A minimal file:
//
//	[server]
//	addr = ":9090"
//	shutdown_timeout = "5s"
//
//	[mirror.redis]
//	enabled = true
//	addr = "localhost:6379"
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/graphsync/pkg/errors"
)

const appName = "graphsync"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GRAPHSYNC_"

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Graph   GraphConfig   `toml:"graph"`
	Fanout  FanoutConfig  `toml:"fanout"`
	Metrics MetricsConfig `toml:"metrics"`
	Mirror  MirrorConfig  `toml:"mirror"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr              string   `toml:"addr"`
	ReadHeaderTimeout Duration `toml:"read_header_timeout"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout"`
	MaxBodyBytes      int64    `toml:"max_body_bytes"`
	MaxDepth          int      `toml:"max_depth"`       // 0 means unlimited
	AllowedOrigins    []string `toml:"allowed_origins"` // websocket origins; empty allows all
}

// GraphConfig controls node placement and layout.
type GraphConfig struct {
	CanvasWidth      float64 `toml:"canvas_width"`
	CanvasHeight     float64 `toml:"canvas_height"`
	LayoutIterations int     `toml:"layout_iterations"`
	LayoutPadding    float64 `toml:"layout_padding"`
}

// FanoutConfig controls websocket delivery.
type FanoutConfig struct {
	SendBuffer   int      `toml:"send_buffer"`
	WriteTimeout Duration `toml:"write_timeout"`
	PingInterval Duration `toml:"ping_interval"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// MirrorConfig groups the optional event mirrors.
type MirrorConfig struct {
	Redis RedisConfig `toml:"redis"`
	Mongo MongoConfig `toml:"mongo"`
}

// RedisConfig configures the Redis pub/sub mirror.
type RedisConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	Channel   string `toml:"channel"`
	QueueSize int    `toml:"queue_size"`
}

// MongoConfig configures the MongoDB event journal.
type MongoConfig struct {
	Enabled    bool   `toml:"enabled"`
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Collection string `toml:"collection"`
	QueueSize  int    `toml:"queue_size"`
}

// LogConfig sets the log level: debug, info, warn, error or fatal.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration that reads and writes strings like "5s".
type Duration struct{ time.Duration }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{10 * time.Second},
			ShutdownTimeout:   Duration{10 * time.Second},
			MaxBodyBytes:      10 << 20,
		},
		Graph: GraphConfig{
			CanvasWidth:      1000,
			CanvasHeight:     1000,
			LayoutIterations: 100,
			LayoutPadding:    20,
		},
		Fanout: FanoutConfig{
			SendBuffer:   64,
			WriteTimeout: Duration{10 * time.Second},
			PingInterval: Duration{30 * time.Second},
		},
		Mirror: MirrorConfig{
			Redis: RedisConfig{Addr: "localhost:6379", Channel: "graphsync:events", QueueSize: 1024},
			Mongo: MongoConfig{Database: "graphsync", Collection: "events", QueueSize: 1024},
		},
		Log: LogConfig{Level: "info"},
	}
}

// =============================================================================
// Loading
// =============================================================================

// DefaultPath returns $XDG_CONFIG_HOME/graphsync/config.toml, falling back to
// ~/.config/graphsync/config.toml.
func DefaultPath() (string, error) {
	if home := os.Getenv("XDG_CONFIG_HOME"); home != "" {
		return filepath.Join(home, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}

// Load builds the effective configuration. An empty path reads the default
// file if it exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		if p, err := DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		err := cfg.readFile(path)
		if err != nil && (explicit || !os.IsNotExist(err)) {
			return Config{}, err
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		if os.IsNotExist(err) {
			return err
		}
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.New(errors.ErrCodeInvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// Decode reads TOML from r on top of c.
func (c *Config) Decode(r io.Reader) error {
	if _, err := toml.NewDecoder(r).Decode(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config")
	}
	return nil
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// =============================================================================
// Environment
// =============================================================================

// ApplyEnv overrides fields from GRAPHSYNC_* variables looked up with
// lookup. Setting GRAPHSYNC_REDIS_ADDR or GRAPHSYNC_MONGO_URI also enables
// that mirror.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := get("ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := get("MAX_BODY_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return envError("MAX_BODY_BYTES", err)
		}
		c.Server.MaxBodyBytes = n
	}
	if v, ok := get("SHUTDOWN_TIMEOUT"); ok {
		if err := c.Server.ShutdownTimeout.UnmarshalText([]byte(v)); err != nil {
			return envError("SHUTDOWN_TIMEOUT", err)
		}
	}
	if v, ok := get("LAYOUT_ITERATIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("LAYOUT_ITERATIONS", err)
		}
		c.Graph.LayoutIterations = n
	}
	if v, ok := get("METRICS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("METRICS", err)
		}
		c.Metrics.Enabled = b
	}
	if v, ok := get("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := get("REDIS_ADDR"); ok {
		c.Mirror.Redis.Addr = v
		c.Mirror.Redis.Enabled = true
	}
	if v, ok := get("REDIS_PASSWORD"); ok {
		c.Mirror.Redis.Password = v
	}
	if v, ok := get("REDIS_CHANNEL"); ok {
		c.Mirror.Redis.Channel = v
	}
	if v, ok := get("MONGO_URI"); ok {
		c.Mirror.Mongo.URI = v
		c.Mirror.Mongo.Enabled = true
	}
	return nil
}

func envError(name string, err error) error {
	return errors.Wrap(errors.ErrCodeInvalidConfig, err, "invalid %s%s", EnvPrefix, name)
}

// =============================================================================
// Validation
// =============================================================================

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New(errors.ErrCodeInvalidConfig, "server.addr cannot be empty")
	case c.Server.MaxBodyBytes <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "server.max_body_bytes must be positive")
	case c.Server.MaxDepth < 0:
		return errors.New(errors.ErrCodeInvalidConfig, "server.max_depth cannot be negative")
	case c.Graph.CanvasWidth <= 0 || c.Graph.CanvasHeight <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "graph canvas must have positive size")
	case c.Graph.LayoutIterations <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "graph.layout_iterations must be positive")
	case c.Fanout.SendBuffer <= 0:
		return errors.New(errors.ErrCodeInvalidConfig, "fanout.send_buffer must be positive")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Mirror.Redis.Enabled {
		if c.Mirror.Redis.Addr == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "mirror.redis.addr required when enabled")
		}
		if err := errors.ValidateChannelName(c.Mirror.Redis.Channel); err != nil {
			return err
		}
	}
	if c.Mirror.Mongo.Enabled && c.Mirror.Mongo.URI == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "mirror.mongo.uri required when enabled")
	}
	return nil
}

// ParseLevel converts a level name to a log.Level.
func ParseLevel(level string) (log.Level, error) {
	l, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return log.InfoLevel, errors.Wrap(errors.ErrCodeInvalidConfig, err, "unknown log level %q", level)
	}
	return l, nil
}

// String renders c as TOML.
func (c Config) String() string {
	var sb strings.Builder
	if err := c.Encode(&sb); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return sb.String()
}
