// Package config loads the molecules.yaml configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/molecules/internal/habit"
	"github.com/roach88/molecules/internal/ledger"
)

// DefaultFile is the config file looked up when no path is given.
const DefaultFile = "molecules.yaml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Database string        `yaml:"database"`
	Timezone string        `yaml:"timezone"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Capture  CaptureConfig `yaml:"capture"`
	Logging  LoggingConfig `yaml:"logging"`
}

type LedgerConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type CaptureConfig struct {
	Photo *habit.CaptureSettings `yaml:"photo,omitempty"`
	Video *habit.CaptureSettings `yaml:"video,omitempty"`
	Audio *habit.CaptureSettings `yaml:"audio,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Database: "molecules.db",
		Timezone: "Local",
		Ledger:   LedgerConfig{MaxEntries: ledger.DefaultMaxEntries},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads path. A missing file at the default location yields Default();
// a missing file that was asked for explicitly is an error.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a config document strictly: unknown keys are rejected.
// Missing fields take their defaults.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Ledger.MaxEntries == 0 {
		c.Ledger.MaxEntries = d.Ledger.MaxEntries
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
}

// Validate checks field values.
func (c Config) Validate() error {
	if c.Ledger.MaxEntries < 1 {
		return fmt.Errorf("%w: ledger.max_entries must be positive, got %d", ErrInvalid, c.Ledger.MaxEntries)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	for kind, s := range map[habit.InputType]*habit.CaptureSettings{
		habit.InputPhoto: c.Capture.Photo,
		habit.InputVideo: c.Capture.Video,
		habit.InputAudio: c.Capture.Audio,
	} {
		if s != nil && s.MaxDuration < 0 {
			return fmt.Errorf("%w: capture.%s.max_duration must not be negative", ErrInvalid, kind)
		}
	}
	return nil
}

// Location returns the configured time zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Level maps logging.level to a slog level.
func (c Config) Level() (slog.Level, error) {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: logging.level %q (want debug, info, warn or error)", ErrInvalid, c.Logging.Level)
}

// CaptureDefaults returns the configured default for kind, falling back to
// the built-in type default. It is the last step of capture resolution,
// after any template override.
func (c Config) CaptureDefaults(kind habit.InputType) habit.CaptureSettings {
	var s *habit.CaptureSettings
	switch kind {
	case habit.InputPhoto:
		s = c.Capture.Photo
	case habit.InputVideo:
		s = c.Capture.Video
	case habit.InputAudio:
		s = c.Capture.Audio
	}
	base := habit.DefaultCaptureSettings(kind)
	if s == nil {
		return base
	}
	if s.Quality != "" {
		base.Quality = s.Quality
	}
	if s.Format != "" {
		base.Format = s.Format
	}
	if s.MaxDuration != 0 {
		base.MaxDuration = s.MaxDuration
	}
	return base
}
