package pulseflow

import (
	"github.com/ghalamif/PulseFlow/internal/app/config"
	"github.com/ghalamif/PulseFlow/internal/ports"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls WAL/queue thresholds.
	Policy = ports.Policy
	// StreamConfig describes the live heart-rate endpoint and its window.
	StreamConfig = config.StreamConfig
	// MQTTConfig tunes the MQTT transport.
	MQTTConfig = config.MQTTConfig
	// IngestConfig bounds the bpm values persisted to history.
	IngestConfig = config.IngestConfig
	// TimescaleConfig configures the history store.
	TimescaleConfig = config.TimescaleConfig
	// MetricsConfig configures the HTTP server for metrics and the API.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
	// LogConfig selects log level and format.
	LogConfig = config.LogConfig
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig reads YAML from memory, applying the same defaults and checks.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
