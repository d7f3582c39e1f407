// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads tsdagger configuration from YAML with embedded
// defaults, environment overrides and validation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	// MaxYAMLFileSize bounds the size of a configuration file (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// MaxSourceFileSize is the largest accepted extract.max_file_size (100MB).
	MaxSourceFileSize = 100 * 1024 * 1024

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DAGGER_"
)

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete tsdagger configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	Extract   ExtractConfig   `yaml:"extract"`
	Server    ServerConfig    `yaml:"server"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ExtractConfig configures static extraction.
type ExtractConfig struct {
	SourceSuffix   string `yaml:"source_suffix" validate:"required,startswith=."`
	BaseDir        string `yaml:"base_dir" validate:"required"`
	MaxFileSize    int64  `yaml:"max_file_size" validate:"min=1"`
	ImportPolicy   string `yaml:"import_policy" validate:"oneof=duplicate unique"`
	Workers        int    `yaml:"workers" validate:"min=1,max=256"`
	ParseCacheSize int    `yaml:"parse_cache_size" validate:"min=0"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr  string `yaml:"addr" validate:"required,hostname_port"`
	Debug bool   `yaml:"debug"`
}

// SnapshotConfig configures graph snapshot storage.
type SnapshotConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// TelemetryConfig configures trace export.
type TelemetryConfig struct {
	Exporter     string `yaml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Exporter otlp"`
}

// SlogLevel returns the configured level as a slog.Level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	defaultOnce sync.Once
	defaultCfg  *Config
	defaultErr  error

	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Default returns the embedded default configuration.
//
// Description:
//
//	Parsed and validated on first call, then cached. Callers receive a copy
//	and may modify it freely.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func Default() (*Config, error) {
	defaultOnce.Do(func() {
		defaultCfg, defaultErr = Parse(defaultsYAML)
	})
	if defaultErr != nil {
		return nil, defaultErr
	}
	cfg := *defaultCfg
	return &cfg, nil
}

// Load reads path and overlays it on the embedded defaults.
//
// Description:
//
//	An empty path returns the defaults. Keys missing from the file keep
//	their default values. Environment overrides are not applied here; see
//	ApplyEnv.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil if the file cannot be read, is too large, does not
//	        parse, or fails validation (ErrInvalidConfig).
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	slog.Debug("config loaded", slog.String("path", path))
	return cfg, nil
}

// Parse parses and validates a complete YAML document.
func Parse(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("config: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing YAML: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if cfg.Extract.MaxFileSize > MaxSourceFileSize {
		return fmt.Errorf("%w: extract.max_file_size %d exceeds %d", ErrInvalidConfig, cfg.Extract.MaxFileSize, MaxSourceFileSize)
	}
	return nil
}

// ApplyEnv overlays DAGGER_* environment variables and revalidates.
//
// Recognised variables:
//
//	DAGGER_BASE_DIR, DAGGER_SOURCE_SUFFIX, DAGGER_IMPORT_POLICY,
//	DAGGER_WORKERS, DAGGER_SERVER_ADDR, DAGGER_SNAPSHOT_DIR,
//	DAGGER_LOG_LEVEL, DAGGER_LOG_FORMAT, DAGGER_TELEMETRY_EXPORTER,
//	DAGGER_OTLP_ENDPOINT.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	strs := map[string]*string{
		"BASE_DIR":           &cfg.Extract.BaseDir,
		"SOURCE_SUFFIX":      &cfg.Extract.SourceSuffix,
		"IMPORT_POLICY":      &cfg.Extract.ImportPolicy,
		"SERVER_ADDR":        &cfg.Server.Addr,
		"SNAPSHOT_DIR":       &cfg.Snapshot.Dir,
		"LOG_LEVEL":          &cfg.Log.Level,
		"LOG_FORMAT":         &cfg.Log.Format,
		"TELEMETRY_EXPORTER": &cfg.Telemetry.Exporter,
		"OTLP_ENDPOINT":      &cfg.Telemetry.OTLPEndpoint,
	}
	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup(EnvPrefix + "WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sWORKERS: %w", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.Extract.Workers = n
	}

	return Validate(cfg)
}
