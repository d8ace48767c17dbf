package config

import (
	"fmt"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks the configuration and fills derived defaults.
//
// source.uri is not required here: the CLI may supply it with --uri after
// loading. Call ValidateSource once every override is applied.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.Pipeline.Name == "" {
		return fmt.Errorf("pipeline.name is required")
	}

	stages := map[string]string{
		"stages.source":       cfg.Stages.Source,
		"stages.splitter":     cfg.Stages.Splitter,
		"stages.queue":        cfg.Stages.Queue,
		"stages.converter":    cfg.Stages.Converter,
		"stages.display_sink": cfg.Stages.DisplaySink,
		"stages.sample_sink":  cfg.Stages.SampleSink,
	}
	for key, factory := range stages {
		if strings.TrimSpace(factory) == "" {
			return fmt.Errorf("%s must name an element factory", key)
		}
	}

	if !strings.HasPrefix(cfg.Capture.MediaKind, "video/") {
		return fmt.Errorf("capture.media_kind must be a video media kind, got %q", cfg.Capture.MediaKind)
	}
	if cfg.Capture.Width < 0 || cfg.Capture.Height < 0 {
		return fmt.Errorf("capture.width and capture.height must be >= 0")
	}
	if (cfg.Capture.Width == 0) != (cfg.Capture.Height == 0) {
		return fmt.Errorf("capture.width and capture.height must be set together")
	}

	if cfg.Sampler.MaxBuffers < 0 {
		return fmt.Errorf("sampler.max_buffers must be >= 0")
	}
	if cfg.Sampler.PrefixBytes < 0 {
		return fmt.Errorf("sampler.prefix_bytes must be >= 0")
	}

	if cfg.Restart.MaxRestarts < 0 {
		return fmt.Errorf("restart.max_restarts must be >= 0")
	}
	if cfg.Restart.MaxRestarts > 0 {
		if cfg.Restart.InitialDelay <= 0 {
			return fmt.Errorf("restart.initial_delay must be > 0 when restarts are enabled")
		}
		if cfg.Restart.MaxDelay < cfg.Restart.InitialDelay {
			return fmt.Errorf("restart.max_delay must be >= restart.initial_delay")
		}
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}

	if cfg.MQTT.Enabled() {
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.ClientID == "" {
			cfg.MQTT.ClientID = cfg.InstanceID
		}
		if cfg.MQTT.Topic == "" {
			cfg.MQTT.Topic = fmt.Sprintf("stream-tee/events/%s", cfg.InstanceID)
		}
	}

	return nil
}

// ValidateSource checks the source URI once all overrides are applied
func ValidateSource(cfg *Config) error {
	uri := strings.TrimSpace(cfg.Source.URI)
	if uri == "" {
		return fmt.Errorf("source.uri is required")
	}
	if !strings.Contains(uri, "://") {
		return fmt.Errorf("source.uri must be a URI with a scheme (e.g. file:///path/video.mp4), got %q", uri)
	}
	return nil
}
