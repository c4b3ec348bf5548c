package terrain

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// NoiseConfig holds procedural terrain parameters.
type NoiseConfig struct {
	Seed        int64   `yaml:"seed" json:"seed"`               // 0 = random
	Octaves     int     `yaml:"octaves" json:"octaves"`         // noise layers
	Wavelength  float64 `yaml:"wavelength" json:"wavelength"`   // world units per base noise period
	Persistence float64 `yaml:"persistence" json:"persistence"` // amplitude falloff per octave
	Falloff     float64 `yaml:"falloff" json:"falloff"`         // edge falloff exponent, 0 disables
	Bounds      `yaml:",inline" json:"bounds"`
}

// DefaultNoiseConfig returns a reasonable starting configuration.
func DefaultNoiseConfig() NoiseConfig {
	return NoiseConfig{
		Seed:        0,
		Octaves:     4,
		Wavelength:  12000,
		Persistence: 0.5,
		Falloff:     3.5,
		Bounds: Bounds{
			Width:      20000,
			Height:     20000,
			WaterLevel: 120,
			Multiplier: 1000,
		},
	}
}

// Noise samples layered simplex noise scaled into [0, AltitudeMultiplier].
type Noise struct {
	cfg   NoiseConfig
	noise opensimplex.Noise
}

// NewNoise creates a noise source. A zero seed picks a random one.
func NewNoise(cfg NoiseConfig) *Noise {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Noise{cfg: cfg, noise: opensimplex.NewNormalized(seed)}
}

func (n *Noise) WaterBase() float64          { return n.cfg.WaterLevel }
func (n *Noise) AltitudeMultiplier() float64 { return n.cfg.Multiplier }
func (n *Noise) MapWidth() float64           { return n.cfg.Width }
func (n *Noise) MapHeight() float64          { return n.cfg.Height }

// AltitudeAt returns the altitude at a world position.
func (n *Noise) AltitudeAt(pos mgl64.Vec2) (float64, error) {
	freq := 1 / n.cfg.Wavelength
	elev := octaveNoise(n.noise, pos.X(), pos.Y(), n.cfg.Octaves, freq, n.cfg.Persistence)

	// Continental shaping: lower the terrain toward the map edges.
	if n.cfg.Falloff > 0 {
		half := math.Min(n.cfg.Width, n.cfg.Height) / 2
		dist := pos.Len() / half
		edge := 1.0 - math.Pow(dist, n.cfg.Falloff)
		if edge < 0 {
			edge = 0
		}
		elev *= edge
	}
	return elev * n.cfg.Multiplier, nil
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	if maxVal == 0 {
		return 0
	}
	return total / maxVal
}
