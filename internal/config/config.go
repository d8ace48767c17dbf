// Package config loads the stream-tee YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete stream-tee configuration
type Config struct {
	InstanceID string         `yaml:"instance_id"`
	Source     SourceConfig   `yaml:"source"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	Stages     StagesConfig   `yaml:"stages"`
	Capture    CaptureConfig  `yaml:"capture"`
	Sampler    SamplerConfig  `yaml:"sampler"`
	Restart    RestartConfig  `yaml:"restart"`
	Logging    LoggingConfig  `yaml:"logging"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
}

// SourceConfig identifies the media to decode
type SourceConfig struct {
	URI string `yaml:"uri"` // file://, rtsp://, http://...
}

// PipelineConfig contains pipeline container settings
type PipelineConfig struct {
	Name string `yaml:"name"`
}

// StagesConfig names the engine factory per stage kind
type StagesConfig struct {
	Source      string `yaml:"source"`
	Splitter    string `yaml:"splitter"`
	Queue       string `yaml:"queue"`
	Converter   string `yaml:"converter"`
	DisplaySink string `yaml:"display_sink"` // autovideosink, fakesink for headless
	SampleSink  string `yaml:"sample_sink"`
}

// CaptureConfig is the format requested on the sampling branch
type CaptureConfig struct {
	MediaKind   string `yaml:"media_kind"`
	PixelFormat string `yaml:"pixel_format"` // RGB, RGBA, BGR, GRAY8...
	Width       int    `yaml:"width"`        // 0: keep source width
	Height      int    `yaml:"height"`       // 0: keep source height
}

// SamplerConfig tunes the sample sink and the default consumer
type SamplerConfig struct {
	MaxBuffers  int  `yaml:"max_buffers"`  // sample sink queue depth
	Drop        bool `yaml:"drop"`         // drop old buffers when full
	Sync        bool `yaml:"sync"`         // sync sample sink to clock
	DisplaySync bool `yaml:"display_sync"` // sync display sink to clock
	PrefixBytes int  `yaml:"prefix_bytes"` // bytes logged by the diagnostic consumer
}

// RestartConfig controls session rebuilds after runtime errors
type RestartConfig struct {
	MaxRestarts  int           `yaml:"max_restarts"` // 0: stop on first error
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// LoggingConfig selects the slog handler
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MQTTConfig contains optional event broker settings. Empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// Enabled reports whether an MQTT broker is configured
func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		InstanceID: "stream-tee",
		Pipeline:   PipelineConfig{Name: "test-pipeline"},
		Stages: StagesConfig{
			Source:      "uridecodebin",
			Splitter:    "tee",
			Queue:       "queue",
			Converter:   "videoconvert",
			DisplaySink: "autovideosink",
			SampleSink:  "appsink",
		},
		Capture: CaptureConfig{
			MediaKind:   "video/x-raw",
			PixelFormat: "RGB",
		},
		Sampler: SamplerConfig{
			MaxBuffers:  1,
			Drop:        true,
			Sync:        false,
			DisplaySync: true,
			PrefixBytes: 16,
		},
		Restart: RestartConfig{
			MaxRestarts:  0,
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		MQTT: MQTTConfig{
			QoS: 0,
		},
	}
}

// Load reads a YAML configuration file over the defaults and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
