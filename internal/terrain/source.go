// Package terrain supplies the altitude samples the classifier tests cells against.
package terrain

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/hexgrid/internal/fault"
)

// Source answers altitude queries for world positions.
type Source interface {
	AltitudeAt(pos mgl64.Vec2) (float64, error)
	WaterBase() float64
	AltitudeMultiplier() float64
	MapWidth() float64
	MapHeight() float64
}

// Check reports a missing or unusable source before any pass samples it.
func Check(src Source) error {
	if src == nil {
		return fmt.Errorf("terrain source: %w", fault.ErrMissingResource)
	}
	if src.MapWidth() <= 0 || src.MapHeight() <= 0 {
		return fmt.Errorf("terrain map %gx%g: %w", src.MapWidth(), src.MapHeight(), fault.ErrMissingResource)
	}
	return nil
}

// Bounds describes the sampled area shared by every source.
type Bounds struct {
	Width      float64 `yaml:"width" json:"width"`
	Height     float64 `yaml:"height" json:"height"`
	WaterLevel float64 `yaml:"water_level" json:"water_level"`
	Multiplier float64 `yaml:"altitude_multiplier" json:"altitude_multiplier"`
}

func (b Bounds) WaterBase() float64          { return b.WaterLevel }
func (b Bounds) AltitudeMultiplier() float64 { return b.Multiplier }
func (b Bounds) MapWidth() float64           { return b.Width }
func (b Bounds) MapHeight() float64          { return b.Height }

// Flat is a source with the same altitude everywhere.
type Flat struct {
	Bounds
	Altitude float64
}

func (f Flat) AltitudeAt(mgl64.Vec2) (float64, error) {
	return f.Altitude, nil
}

// Func adapts a plain function into a source.
type Func struct {
	Bounds
	Fn func(pos mgl64.Vec2) (float64, error)
}

func (f Func) AltitudeAt(pos mgl64.Vec2) (float64, error) {
	return f.Fn(pos)
}
