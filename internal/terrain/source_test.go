package terrain

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexgrid/internal/fault"
)

func TestCheck(t *testing.T) {
	require.ErrorIs(t, Check(nil), fault.ErrMissingResource)
	require.ErrorIs(t, Check(Flat{}), fault.ErrMissingResource)
	require.NoError(t, Check(Flat{Bounds: Bounds{Width: 10, Height: 10}}))
	require.NoError(t, Check(NewNoise(DefaultNoiseConfig())))
}

func TestNoiseDeterministicAndBounded(t *testing.T) {
	cfg := DefaultNoiseConfig()
	cfg.Seed = 42
	a, b := NewNoise(cfg), NewNoise(cfg)

	for x := -9000.0; x <= 9000; x += 750 {
		for y := -9000.0; y <= 9000; y += 750 {
			pos := mgl64.Vec2{x, y}
			ha, err := a.AltitudeAt(pos)
			require.NoError(t, err)
			hb, err := b.AltitudeAt(pos)
			require.NoError(t, err)
			assert.Equal(t, ha, hb)
			assert.GreaterOrEqual(t, ha, 0.0)
			assert.LessOrEqual(t, ha, cfg.Multiplier)
		}
	}
}

func TestNoiseFalloffSinksEdges(t *testing.T) {
	cfg := DefaultNoiseConfig()
	cfg.Seed = 7
	n := NewNoise(cfg)
	h, err := n.AltitudeAt(mgl64.Vec2{cfg.Width, 0})
	require.NoError(t, err)
	assert.Zero(t, h)
}

func TestFlatAndFunc(t *testing.T) {
	f := Flat{Bounds: Bounds{Width: 1, Height: 1, WaterLevel: -1}, Altitude: 3}
	h, err := f.AltitudeAt(mgl64.Vec2{100, 100})
	require.NoError(t, err)
	assert.Equal(t, 3.0, h)
	assert.Equal(t, -1.0, f.WaterBase())

	fn := Func{Fn: func(p mgl64.Vec2) (float64, error) { return p.X() * 2, nil }}
	h, err = fn.AltitudeAt(mgl64.Vec2{4, 0})
	require.NoError(t, err)
	assert.Equal(t, 8.0, h)
}
