// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Stripesight
// binaries.
//
// Configuration is loaded from a single file specified by:
//   - STRIPESIGHT_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth: environment variables do not override
// individual values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stripesight/stripesight/capture"
	"github.com/stripesight/stripesight/stream"
)

// Config is the master configuration for the Stripesight viewer.
type Config struct {
	// Stream configures the investigation event stream connection.
	Stream StreamConfig `yaml:"stream"`

	// Engine configures the telemetry aggregation engine.
	Engine EngineConfig `yaml:"engine"`

	// Capture configures optional stream recording.
	Capture CaptureConfig `yaml:"capture"`

	// EnsembleFile is the path to the JSONC ensemble definition
	// (model membership and weights). Optional: without it, models
	// are discovered from the stream with weight 1.
	EnsembleFile string `yaml:"ensemble_file"`
}

// StreamConfig configures the event stream connection.
type StreamConfig struct {
	// Address is the stream endpoint in host:port form.
	Address string `yaml:"address"`

	// BaseDelay is the initial reconnect backoff.
	// Default: 2s.
	BaseDelay Duration `yaml:"base_delay"`

	// MaxDelay caps the reconnect backoff.
	// Default: 60s.
	MaxDelay Duration `yaml:"max_delay"`
}

// EngineConfig configures the aggregation engine.
type EngineConfig struct {
	// AgreementThreshold is the minimum model score that counts as
	// agreement, in (0, 1]. Default: 0.7. An ensemble file's
	// threshold, when set, takes precedence.
	AgreementThreshold float64 `yaml:"agreement_threshold"`

	// MaxLogEvents bounds the activity log. Default: 100.
	MaxLogEvents int `yaml:"max_log_events"`
}

// CaptureConfig configures stream recording.
type CaptureConfig struct {
	// Path is the capture file to write. Empty disables capture
	// unless --capture is passed.
	Path string `yaml:"path"`

	// Compression is the capture compression: none, lz4, or zstd.
	// Default: lz4.
	Compression string `yaml:"compression"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "2s" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration defaults. Loading merges the
// file over these.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			BaseDelay: Duration(stream.DefaultBaseDelay),
			MaxDelay:  Duration(stream.DefaultMaxDelay),
		},
		Engine: EngineConfig{
			AgreementThreshold: 0.7,
			MaxLogEvents:       100,
		},
		Capture: CaptureConfig{
			Compression: capture.TagLZ4.String(),
		},
	}
}

// Load loads configuration from the STRIPESIGHT_CONFIG environment
// variable. There are no fallbacks: if the variable is not set, Load
// fails.
func Load() (*Config, error) {
	path := os.Getenv("STRIPESIGHT_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("STRIPESIGHT_CONFIG environment variable not set; " +
			"set it to the path of your stripesight.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field consistency. The stream address is not
// required here: a viewer running purely from a capture replay has
// no stream at all.
func (c *Config) Validate() error {
	if c.Engine.AgreementThreshold <= 0 || c.Engine.AgreementThreshold > 1 {
		return fmt.Errorf("engine.agreement_threshold must be in (0, 1], got %v", c.Engine.AgreementThreshold)
	}
	if c.Engine.MaxLogEvents <= 0 {
		return fmt.Errorf("engine.max_log_events must be positive, got %d", c.Engine.MaxLogEvents)
	}
	if c.Stream.BaseDelay <= 0 {
		return fmt.Errorf("stream.base_delay must be positive, got %v", c.Stream.BaseDelay.Std())
	}
	if c.Stream.MaxDelay < c.Stream.BaseDelay {
		return fmt.Errorf("stream.max_delay %v is below stream.base_delay %v",
			c.Stream.MaxDelay.Std(), c.Stream.BaseDelay.Std())
	}
	if _, err := capture.ParseTag(c.Capture.Compression); err != nil {
		return fmt.Errorf("capture.compression: %w", err)
	}
	return nil
}
