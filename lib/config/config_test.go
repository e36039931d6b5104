// Copyright 2026 The Stripesight Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stripesight.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
stream:
  address: "dashboard.example.net:7000"
  base_delay: "500ms"
engine:
  agreement_threshold: 0.8
capture:
  path: "/tmp/session.sscap"
  compression: "zstd"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Stream.Address != "dashboard.example.net:7000" {
		t.Errorf("address: got %q", cfg.Stream.Address)
	}
	if cfg.Stream.BaseDelay.Std() != 500*time.Millisecond {
		t.Errorf("base_delay: got %v", cfg.Stream.BaseDelay.Std())
	}
	// Untouched fields keep their defaults.
	if cfg.Stream.MaxDelay.Std() != 60*time.Second {
		t.Errorf("max_delay default: got %v", cfg.Stream.MaxDelay.Std())
	}
	if cfg.Engine.MaxLogEvents != 100 {
		t.Errorf("max_log_events default: got %d", cfg.Engine.MaxLogEvents)
	}
	if cfg.Engine.AgreementThreshold != 0.8 {
		t.Errorf("agreement_threshold: got %v", cfg.Engine.AgreementThreshold)
	}
	if cfg.Capture.Compression != "zstd" {
		t.Errorf("compression: got %q", cfg.Capture.Compression)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("STRIPESIGHT_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Error("Load succeeded without STRIPESIGHT_CONFIG")
	}
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, `stream: {address: "localhost:7000"}`)
	t.Setenv("STRIPESIGHT_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stream.Address != "localhost:7000" {
		t.Errorf("address: got %q", cfg.Stream.Address)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"threshold zero", func(c *Config) { c.Engine.AgreementThreshold = 0 }, "agreement_threshold"},
		{"threshold above one", func(c *Config) { c.Engine.AgreementThreshold = 1.5 }, "agreement_threshold"},
		{"log capacity zero", func(c *Config) { c.Engine.MaxLogEvents = 0 }, "max_log_events"},
		{"base delay zero", func(c *Config) { c.Stream.BaseDelay = 0 }, "base_delay"},
		{"max below base", func(c *Config) { c.Stream.MaxDelay = c.Stream.BaseDelay / 2 }, "max_delay"},
		{"unknown compression", func(c *Config) { c.Capture.Compression = "gzip" }, "compression"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			testCase.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate passed")
			}
			if !strings.Contains(err.Error(), testCase.wantSub) {
				t.Errorf("error %q does not mention %q", err, testCase.wantSub)
			}
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	if err := Default().Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBadDurationStringFails(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `stream: {base_delay: "soonish"}`)
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile accepted a malformed duration")
	}
}
