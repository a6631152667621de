package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/PulseFlow/internal/adapters/store"
	"github.com/ghalamif/PulseFlow/internal/adapters/transport"
	"github.com/ghalamif/PulseFlow/internal/ports"
	"github.com/ghalamif/PulseFlow/internal/stream"
)

type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	Policy    ports.Policy    `yaml:"policy"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Timescale TimescaleConfig `yaml:"timescale"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	WAL       WALConfig       `yaml:"wal"`
	Log       LogConfig       `yaml:"log"`
}

type StreamConfig struct {
	Target       string        `yaml:"target"`
	DebugTarget  string        `yaml:"debug_target"`
	Debug        bool          `yaml:"debug"`
	MaxPoints    int           `yaml:"max_points"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	UpdateBuffer int           `yaml:"update_buffer"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
}

type MQTTConfig struct {
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// IngestConfig bounds the bpm values persisted to history. Zero disables
// a bound.
type IngestConfig struct {
	MinBPM float64 `yaml:"min_bpm"`
	MaxBPM float64 `yaml:"max_bpm"`
}

// TimescaleConfig selects the history backend. An empty ConnString keeps
// history in memory.
type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
	Migrate    bool   `yaml:"migrate"`
	Hypertable bool   `yaml:"hypertable"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Stream.MaxPoints == 0 {
		c.Stream.MaxPoints = 20
	}
	if c.Stream.InitialDelay == 0 {
		c.Stream.InitialDelay = time.Second
	}
	if c.Stream.MaxDelay == 0 {
		c.Stream.MaxDelay = 10 * time.Second
	}
	if c.Stream.DialTimeout == 0 {
		c.Stream.DialTimeout = 10 * time.Second
	}
	if c.Stream.UpdateBuffer == 0 {
		c.Stream.UpdateBuffer = 64
	}
	if c.Policy.MaxWALSizeBytes == 0 {
		c.Policy.MaxWALSizeBytes = 1 << 30
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 5 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "block"
	}
	if c.Policy.OnWALFull == "" {
		c.Policy.OnWALFull = "block"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Timescale.Table == "" {
		c.Timescale.Table = "heart_rate"
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = "./data/wal"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the config as Load does. Call it again after editing a
// loaded config in code.
func (c *Config) Validate() error {
	var errs []error

	if c.Stream.Target == "" {
		errs = append(errs, errors.New("stream.target is required"))
	} else if err := checkTarget(c.Stream.Target); err != nil {
		errs = append(errs, fmt.Errorf("stream.target: %w", err))
	}
	if c.Stream.DebugTarget != "" {
		if err := checkTarget(c.Stream.DebugTarget); err != nil {
			errs = append(errs, fmt.Errorf("stream.debug_target: %w", err))
		}
	} else if c.Stream.Debug {
		errs = append(errs, errors.New("stream.debug requires stream.debug_target"))
	}
	if c.Stream.MaxPoints <= 0 {
		errs = append(errs, fmt.Errorf("stream.max_points must be positive, got %d", c.Stream.MaxPoints))
	}
	if c.Stream.InitialDelay < 0 || c.Stream.MaxDelay < c.Stream.InitialDelay {
		errs = append(errs, fmt.Errorf("stream delays invalid: initial=%s max=%s", c.Stream.InitialDelay, c.Stream.MaxDelay))
	}
	if c.Stream.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("stream.mqtt.qos must be 0, 1 or 2, got %d", c.Stream.MQTT.QoS))
	}
	if !validPolicy(c.Policy.OnWALFull, "block", "drop") {
		errs = append(errs, fmt.Errorf("policy.on_wal_full: unknown policy %q", c.Policy.OnWALFull))
	}
	if !validPolicy(c.Policy.OnQueueFull, "block", "drop", "reject") {
		errs = append(errs, fmt.Errorf("policy.on_queue_full: unknown policy %q", c.Policy.OnQueueFull))
	}
	if c.Ingest.MaxBPM != 0 && c.Ingest.MaxBPM < c.Ingest.MinBPM {
		errs = append(errs, fmt.Errorf("ingest bounds invalid: min=%g max=%g", c.Ingest.MinBPM, c.Ingest.MaxBPM))
	}
	if !store.ValidTable(c.Timescale.Table) {
		errs = append(errs, fmt.Errorf("timescale.table %q is not a plain SQL identifier", c.Timescale.Table))
	}
	if c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required"))
	}
	if c.WAL.Dir == "" {
		errs = append(errs, errors.New("wal.dir is required"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func checkTarget(target string) error {
	if err := stream.ValidateTarget(target); err != nil {
		return err
	}
	u, _ := url.Parse(target)
	if !transport.Supported(u.Scheme) {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return nil
}

func validPolicy(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// ResolveTarget picks the debug endpoint when debug mode is on.
func (c *Config) ResolveTarget() string {
	if c.Stream.Debug && c.Stream.DebugTarget != "" {
		return c.Stream.DebugTarget
	}
	return c.Stream.Target
}

// StreamManagerConfig maps the stream section onto the manager's config.
func (c *Config) StreamManagerConfig() stream.Config {
	return stream.Config{
		Target:       c.ResolveTarget(),
		MaxPoints:    c.Stream.MaxPoints,
		InitialDelay: c.Stream.InitialDelay,
		MaxDelay:     c.Stream.MaxDelay,
		DialTimeout:  c.Stream.DialTimeout,
		UpdateBuffer: c.Stream.UpdateBuffer,
	}
}

// Logger builds the process logger described by the log section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
