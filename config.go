// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rg

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the tunables of a render graph and its collaborators.
// It can be built in code (DefaultConfig) or loaded from a TOML file:
//
//	allow_pass_overlap = true
//	validate_aliasing  = false
//	pipeline_workers   = 4
//	log_level          = "debug"
//
//	[debug_hook]
//	pass  = "taa"
//	index = 0
//
//	[transient]
//	max_images  = 128
//	max_buffers = 128
type Config struct {
	// AllowPassOverlap lets consecutive accesses with the same access type
	// and SkipSyncIfSameAccessType run without a barrier between them.
	AllowPassOverlap bool `toml:"allow_pass_overlap"`

	// ValidateAliasing rejects passes that declare the same resource twice
	// in their write set, or in both their read and write sets.
	ValidateAliasing bool `toml:"validate_aliasing"`

	// DebugHook selects a pass whose output is copied for inspection.
	DebugHook DebugHookConfig `toml:"debug_hook"`

	Transient TransientConfig `toml:"transient"`

	// PipelineWorkers is the number of shader compile workers.
	// Zero means GOMAXPROCS.
	PipelineWorkers int `toml:"pipeline_workers"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// DebugHookConfig names the Index-th pass called Pass. An empty Pass
// disables the hook.
type DebugHookConfig struct {
	Pass  string `toml:"pass"`
	Index uint32 `toml:"index"`
}

// TransientConfig bounds the transient resource cache.
type TransientConfig struct {
	MaxImages  int `toml:"max_images"`
	MaxBuffers int `toml:"max_buffers"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		AllowPassOverlap: true,
		Transient:        TransientConfig{MaxImages: 256, MaxBuffers: 256},
		LogLevel:         "warn",
	}
}

// LoadConfig reads a TOML configuration file. Keys absent from the file
// keep their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("rg: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML configuration data. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("rg: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.PipelineWorkers < 0 {
		return fmt.Errorf("rg: pipeline_workers must not be negative, got %d", c.PipelineWorkers)
	}
	if c.Transient.MaxImages < 0 || c.Transient.MaxBuffers < 0 {
		return fmt.Errorf("rg: transient limits must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level. An empty level is warn.
func (c Config) SlogLevel() (slog.Level, error) {
	if c.LogLevel == "" {
		return slog.LevelWarn, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("rg: invalid log_level %q", c.LogLevel)
	}
	return lvl, nil
}

// Marshal encodes the configuration as TOML.
func (c Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}
