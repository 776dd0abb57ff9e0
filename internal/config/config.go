// Package config handles exporter configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Faultbox/lmesh/pkg/encoding"
	"github.com/Faultbox/lmesh/pkg/formats"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Winding names accepted in SceneConfig.Winding.
const (
	WindingCCW = "ccw"
	WindingCW  = "cw"
)

// Config holds all exporter settings.
type Config struct {
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Scene   SceneConfig   `yaml:"scene" toml:"scene"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// ExportConfig selects what goes into the model file.
type ExportConfig struct {
	Meshes    bool   `yaml:"meshes" toml:"meshes"`
	Skeleton  bool   `yaml:"skeleton" toml:"skeleton"`
	Bounds    bool   `yaml:"bounds" toml:"bounds"`
	Colors    bool   `yaml:"colors" toml:"colors"`
	Extension string `yaml:"extension" toml:"extension"` // Output extension when no -o is given
}

// SceneConfig controls how scene documents are read.
type SceneConfig struct {
	Scale        float32 `yaml:"scale" toml:"scale"`
	Winding      string  `yaml:"winding" toml:"winding"` // Front-face convention of the source
	FlipV        bool    `yaml:"flip_v" toml:"flip_v"`
	NameEncoding string  `yaml:"name_encoding" toml:"name_encoding"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			Meshes:    true,
			Skeleton:  true,
			Bounds:    true,
			Colors:    false,
			Extension: formats.Extension,
		},
		Scene: SceneConfig{
			Scale:        1.0,
			Winding:      WindingCCW,
			FlipV:        true,
			NameEncoding: encoding.UTF8,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports settings no export could run with.
func (c *Config) Validate() error {
	if c.Scene.Scale <= 0 {
		return fmt.Errorf("%w: scene.scale must be positive, got %g", ErrInvalidConfig, c.Scene.Scale)
	}
	switch strings.ToLower(c.Scene.Winding) {
	case WindingCCW, WindingCW:
	default:
		return fmt.Errorf("%w: scene.winding must be %q or %q, got %q", ErrInvalidConfig, WindingCCW, WindingCW, c.Scene.Winding)
	}
	if !encoding.Valid(c.Scene.NameEncoding) {
		return fmt.Errorf("%w: unknown scene.name_encoding %q", ErrInvalidConfig, c.Scene.NameEncoding)
	}
	if !strings.EqualFold(c.Export.Extension, formats.Extension) {
		return fmt.Errorf("%w: export.extension must be %s, got %q", ErrInvalidConfig, formats.Extension, c.Export.Extension)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}
