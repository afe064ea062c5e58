// Package config loads the runtime configuration of an alecycle process.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/alecycle/internal/cycle"
	"github.com/roach88/alecycle/internal/ir"
)

// Config is the complete process configuration.
type Config struct {
	// Database is the SQLite depot path. Empty disables persistence.
	Database string `yaml:"database"`
	// Specs is a directory of CUE cycle definitions defined at startup.
	Specs string `yaml:"specs"`

	ReaderCycleDuration time.Duration `yaml:"reader_cycle_duration"` // data-available window
	CompletionTimeout   time.Duration `yaml:"completion_timeout"`    // port result wait

	HTTP    HTTPConfig     `yaml:"http"`
	Readers []ReaderConfig `yaml:"readers"`

	// Timezone names the location RTC trigger URIs without a timezone
	// are interpreted in, e.g. "Europe/Berlin". Empty means host local.
	Timezone string `yaml:"timezone"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Listen       string  `yaml:"listen"`
	TriggerRate  float64 `yaml:"trigger_rate"`  // trigger pokes per second
	TriggerBurst int     `yaml:"trigger_burst"` // burst above TriggerRate
}

// ReaderConfig declares one logical reader.
type ReaderConfig struct {
	Name      string          `yaml:"name"`
	Composite []string        `yaml:"composite,omitempty"`
	Simulate  *SimulateConfig `yaml:"simulate,omitempty"`
}

// SimulateConfig makes an in-memory reader report fixed tags.
type SimulateConfig struct {
	Tags     []string      `yaml:"tags"` // EPCs, hex
	Interval time.Duration `yaml:"interval"`
	Antenna  int           `yaml:"antenna"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ReaderCycleDuration: cycle.DefaultReaderCycle,
		CompletionTimeout:   cycle.DefaultCompletionTimeout,
		HTTP: HTTPConfig{
			Listen:       "127.0.0.1:8080",
			TriggerRate:  50,
			TriggerBurst: 10,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks values and reader declarations.
func (c *Config) Validate() error {
	if c.ReaderCycleDuration <= 0 {
		return fmt.Errorf("reader_cycle_duration must be positive")
	}
	if c.CompletionTimeout <= 0 {
		return fmt.Errorf("completion_timeout must be positive")
	}
	if c.HTTP.TriggerRate < 0 {
		return fmt.Errorf("http.trigger_rate must not be negative")
	}
	if c.HTTP.TriggerRate > 0 && c.HTTP.TriggerBurst < 1 {
		return fmt.Errorf("http.trigger_burst must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Readers))
	for i, r := range c.Readers {
		if err := ir.ValidName(r.Name); err != nil {
			return fmt.Errorf("readers[%d]: %w", i, err)
		}
		if seen[r.Name] {
			return fmt.Errorf("readers[%d]: duplicate reader %q", i, r.Name)
		}
		seen[r.Name] = true

		if len(r.Composite) > 0 && r.Simulate != nil {
			return fmt.Errorf("reader %q: a composite reader cannot simulate tags", r.Name)
		}
		for _, comp := range r.Composite {
			// Components must be declared earlier so they exist first.
			if !seen[comp] || comp == r.Name {
				return fmt.Errorf("reader %q: unknown component %q", r.Name, comp)
			}
		}
		if s := r.Simulate; s != nil {
			if s.Interval <= 0 {
				return fmt.Errorf("reader %q: simulate.interval must be positive", r.Name)
			}
			if len(s.Tags) == 0 {
				return fmt.Errorf("reader %q: simulate.tags is empty", r.Name)
			}
		}
	}
	return nil
}

// Location resolves Timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
