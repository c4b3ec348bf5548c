// Package config loads the hexgrid YAML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/hexgrid/internal/classify"
	"github.com/talgya/hexgrid/internal/engine"
	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/terrain"
	"github.com/talgya/hexgrid/internal/world"
)

// Config holds everything one hexgrid process needs.
type Config struct {
	Mode     engine.Mode         `yaml:"mode"`
	Grid     world.Params        `yaml:"grid"`
	Limits   loop.Limits         `yaml:"limits"`
	Classify classify.Settings   `yaml:"classify"`
	Terrain  terrain.NoiseConfig `yaml:"terrain"`
	Database DatabaseConfig      `yaml:"database"`
	Bundle   BundleConfig        `yaml:"bundle"`
	API      APIConfig           `yaml:"api"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // empty disables persistence
}

// BundleConfig describes the text record bundle.
type BundleConfig struct {
	Dir    string `yaml:"dir"`    // read records from here in load mode
	Source string `yaml:"source"` // go-getter URL fetched into Dir first
	Export string `yaml:"export"` // write the finished grid's records here
}

// APIConfig holds HTTP settings.
type APIConfig struct {
	Addr    string `yaml:"addr"` // empty disables the API
	MapRate int    `yaml:"map_rate"` // bulk map requests per client per minute
}

// Default returns the production configuration.
func Default() Config {
	return Config{
		Mode:     engine.ModeGenerate,
		Grid:     world.DefaultParams(),
		Limits:   loop.DefaultLimits(),
		Classify: classify.DefaultSettings(),
		Terrain:  terrain.DefaultNoiseConfig(),
		Database: DatabaseConfig{Path: "data/hexgrid.db"},
		API:      APIConfig{Addr: ":8080", MapRate: 60},
	}
}

// SmallTest returns a tiny configuration for rapid iteration.
func SmallTest() Config {
	cfg := Default()
	cfg.Grid = world.SmallTestParams()
	cfg.Terrain.Width = 2000
	cfg.Terrain.Height = 2000
	cfg.Terrain.Wavelength = 1200
	cfg.Limits.Rate = 0
	return cfg
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values; unknown keys are rejected.
func Load(path string) (Config, error) {
	return LoadOver(Default(), path)
}

// LoadOver is Load with base in place of the defaults.
func LoadOver(base Config, path string) (Config, error) {
	cfg := base

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w: %w", path, fault.ErrMissingResource, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w: %w", path, fault.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the workflow would refuse to start with.
func (c Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Classify.Validate(); err != nil {
		return err
	}
	if c.Classify.BlockRule != "" {
		if _, err := classify.CompileRule(c.Classify.BlockRule); err != nil {
			return err
		}
	}
	if err := validateNoise(c.Terrain); err != nil {
		return err
	}

	switch c.Mode {
	case engine.ModeGenerate, "":
		if err := c.Grid.Validate(); err != nil {
			return err
		}
	case engine.ModeLoad:
		if c.Database.Path == "" && c.Bundle.Dir == "" {
			return fmt.Errorf("load mode needs a database path or bundle dir: %w", fault.ErrConfiguration)
		}
	default:
		return fmt.Errorf("unknown mode %q: %w", c.Mode, fault.ErrConfiguration)
	}
	if need := engine.NestDepth(c.Mode); c.Limits.DepthLimit < need {
		return fmt.Errorf("depth limit %d below the %d levels the run needs: %w",
			c.Limits.DepthLimit, need, fault.ErrConfiguration)
	}

	if c.Bundle.Source != "" && c.Bundle.Dir == "" {
		return fmt.Errorf("bundle source %q has no dir to fetch into: %w", c.Bundle.Source, fault.ErrConfiguration)
	}
	if c.API.MapRate < 0 {
		return fmt.Errorf("api map rate %d: %w", c.API.MapRate, fault.ErrConfiguration)
	}
	return nil
}

func validateNoise(n terrain.NoiseConfig) error {
	switch {
	case n.Octaves <= 0:
		return fmt.Errorf("terrain octaves %d: %w", n.Octaves, fault.ErrConfiguration)
	case n.Wavelength <= 0:
		return fmt.Errorf("terrain wavelength %g: %w", n.Wavelength, fault.ErrConfiguration)
	case n.Persistence <= 0 || n.Persistence > 1:
		return fmt.Errorf("terrain persistence %g: %w", n.Persistence, fault.ErrConfiguration)
	case n.Width <= 0 || n.Height <= 0:
		return fmt.Errorf("terrain size %gx%g: %w", n.Width, n.Height, fault.ErrConfiguration)
	case n.Multiplier <= 0:
		return fmt.Errorf("terrain multiplier %g: %w", n.Multiplier, fault.ErrConfiguration)
	}
	return nil
}
