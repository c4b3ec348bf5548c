package classify

import (
	"fmt"

	"github.com/talgya/hexgrid/internal/fault"
)

// Thresholds configure one blocking classification.
type Thresholds struct {
	AltitudeRatio float64 `yaml:"altitude_ratio" json:"altitude_ratio"` // fraction of the altitude multiplier
	SlopeRatio    float64 `yaml:"slope_ratio" json:"slope_ratio"`       // fraction of a right angle
	Extensions    int     `yaml:"extensions" json:"extensions"`         // extra relaxation rounds
}

// Settings configure the whole classifier.
type Settings struct {
	Area     Thresholds `yaml:"area" json:"area"`
	Building Thresholds `yaml:"building" json:"building"`
	// BlockRule replaces the built-in blocking predicate when set.
	// See Env for the names it may use.
	BlockRule string `yaml:"block_rule" json:"block_rule,omitempty"`
}

// DefaultSettings returns the thresholds used when nothing else is configured.
func DefaultSettings() Settings {
	return Settings{
		Area:     Thresholds{AltitudeRatio: 0.3, SlopeRatio: 0.3, Extensions: 0},
		Building: Thresholds{AltitudeRatio: 0.3, SlopeRatio: 0.1, Extensions: 1},
	}
}

// Validate rejects negative ratios and extension counts.
func (s Settings) Validate() error {
	for _, c := range []struct {
		name string
		t    Thresholds
	}{{"area", s.Area}, {"building", s.Building}} {
		name, t := c.name, c.t
		if t.AltitudeRatio < 0 || t.SlopeRatio < 0 {
			return fmt.Errorf("%s thresholds %+v: %w", name, t, fault.ErrConfiguration)
		}
		if t.Extensions < 0 {
			return fmt.Errorf("%s extensions %d: %w", name, t.Extensions, fault.ErrConfiguration)
		}
	}
	return nil
}

// building returns the building thresholds capped by the area thresholds.
func (s Settings) building() Thresholds {
	b := s.Building
	b.AltitudeRatio = min(b.AltitudeRatio, s.Area.AltitudeRatio)
	b.SlopeRatio = min(b.SlopeRatio, s.Area.SlopeRatio)
	return b
}
