package classify

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/terrain"
	"github.com/talgya/hexgrid/internal/world"
)

func unlimited() loop.Limits {
	return loop.Limits{CountLimit: 1 << 30, DepthLimit: 4}
}

func drive(limits loop.Limits, pass func(*loop.Checkpoint) (bool, error)) error {
	cp, err := loop.New(limits)
	if err != nil {
		return err
	}
	for i := 0; i < 10_000_000; i++ {
		done, err := pass(cp)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return errors.New("pass never finished")
}

func generate(t *testing.T, p world.Params) *world.Grid {
	t.Helper()
	gen := world.NewGenerator(world.NewGrid(p))
	require.NoError(t, drive(unlimited(), gen.Centers))
	require.NoError(t, drive(unlimited(), gen.Neighbors))
	return gen.Grid()
}

// levelPasses stops after the area levels.
func levelPasses(c *Classifier) []func(*loop.Checkpoint) (bool, error) {
	return []func(*loop.Checkpoint) (bool, error){
		c.Vertices, c.Heights, c.Normals, c.AreaLevel, c.AreaLevelEx,
	}
}

func allPasses(c *Classifier) []func(*loop.Checkpoint) (bool, error) {
	return append(levelPasses(c),
		c.BreakChunks, c.CheckConnection, c.LabelRegions, c.FindIslands,
		c.BuildingLevel, c.BuildingLevelEx,
	)
}

func classify(t *testing.T, p world.Params, src terrain.Source, s Settings, limits loop.Limits) (*Classifier, error) {
	t.Helper()
	c, err := New(generate(t, p), src, s)
	require.NoError(t, err)
	for _, pass := range allPasses(c) {
		if err := drive(limits, pass); err != nil {
			return c, err
		}
	}
	return c, nil
}

func wideBounds() terrain.Bounds {
	return terrain.Bounds{Width: 1e6, Height: 1e6, WaterLevel: -1, Multiplier: 1000}
}

// noSlope keeps the slope test out of scenarios built from altitude alone.
func noSlope() Settings {
	s := DefaultSettings()
	s.Area.SlopeRatio = 1
	s.Building.SlopeRatio = 1
	return s
}

// discs is raised terrain inside a few circles and flat elsewhere.
func discs(b terrain.Bounds, height float64, centers []mgl64.Vec3) terrain.Func {
	return terrain.Func{Bounds: b, Fn: func(p mgl64.Vec2) (float64, error) {
		for _, c := range centers {
			if p.Sub(c.Vec2()).Len() < c.Z() {
				return height, nil
			}
		}
		return 0, nil
	}}
}

func TestFlatTerrainIsOneConnectedRegion(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 1, NeighborRange: 1}
	src := terrain.Flat{Bounds: wideBounds(), Altitude: 0}
	c, err := classify(t, p, src, DefaultSettings(), unlimited())
	require.NoError(t, err)

	assert.Equal(t, 2, c.AreaSentinel())
	require.Len(t, c.Chunks(), 1)
	for _, cell := range c.Grid().Cells {
		assert.Equal(t, 2, cell.AreaBlockLevel)
		assert.True(t, cell.Connected)
		assert.False(t, cell.IsLand)
		assert.Equal(t, c.BuildingSentinel(), cell.BuildingBlockLevel)
		assert.InDelta(t, 0, cell.AngleToUp, 1e-9)
		assert.InDelta(t, 1, cell.Normal.Z(), 1e-9)
	}
}

func TestSingleBlockedCell(t *testing.T) {
	const size = 100.0
	p := world.Params{CellSize: size, GridRange: 3, NeighborRange: 2}
	// Only the origin has all six corners inside the raised disc.
	src := discs(wideBounds(), 500, []mgl64.Vec3{{0, 0, size * 1.01}})
	c, err := classify(t, p, src, noSlope(), unlimited())
	require.NoError(t, err)

	g := c.Grid()
	for _, cell := range g.Cells {
		d := world.Distance(world.HexCoord{}, cell.Coord)
		assert.Equal(t, min(d, 3), cell.AreaBlockLevel, "cell %v", cell.Coord)
		assert.Equal(t, d == 0, cell.IsLand, "cell %v", cell.Coord)
	}
	assert.Equal(t, 3, c.AreaSentinel())
}

func TestDisconnectedChunkBecomesIsland(t *testing.T) {
	const size = 100.0
	p := world.Params{CellSize: size, GridRange: 6, NeighborRange: 1}
	// Raise a wall over the q=1 column so it splits the sentinel cells in two.
	wall := terrain.Func{Bounds: wideBounds(), Fn: func(pos mgl64.Vec2) (float64, error) {
		if math.Abs(pos.X()-1.5*size) < 1.01*size {
			return 500, nil
		}
		return 0, nil
	}}
	c, err := classify(t, p, wall, noSlope(), unlimited())
	require.NoError(t, err)

	chunks := c.Chunks()
	require.Len(t, chunks, 2)
	assert.Greater(t, len(chunks[0].Cells), len(chunks[1].Cells))

	for _, cell := range c.Grid().Cells {
		q := cell.Coord.Q
		switch {
		case q == 1:
			assert.Equal(t, 0, cell.AreaBlockLevel, "cell %v", cell.Coord)
			assert.True(t, cell.IsLand)
		case q == 0 || q == 2:
			assert.Equal(t, 1, cell.AreaBlockLevel, "cell %v", cell.Coord)
			assert.True(t, cell.IsLand)
		case q >= 3:
			assert.Equal(t, 2, cell.AreaBlockLevel, "cell %v", cell.Coord)
			assert.False(t, cell.Connected, "cell %v", cell.Coord)
			assert.True(t, cell.IsLand, "cell %v", cell.Coord)
		default:
			assert.Equal(t, 2, cell.AreaBlockLevel, "cell %v", cell.Coord)
			assert.True(t, cell.Connected, "cell %v", cell.Coord)
			assert.False(t, cell.IsLand, "cell %v", cell.Coord)
		}
	}
}

func rough() terrain.Func {
	b := terrain.Bounds{Width: 2200, Height: 4000, WaterLevel: -1, Multiplier: 1000}
	return discs(b, 500, []mgl64.Vec3{
		{600, 300, 250},
		{-700, -200, 150},
		{0, -900, 200},
	})
}

func TestChunksPartitionSentinelCells(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 8, NeighborRange: 2}
	c, err := classify(t, p, rough(), noSlope(), unlimited())
	require.NoError(t, err)

	owner := map[int]int{}
	for _, ch := range c.Chunks() {
		for _, id := range ch.Cells {
			prev, dup := owner[id]
			assert.False(t, dup, "cell %d in chunks %d and %d", id, prev, ch.ID)
			owner[id] = ch.ID
		}
	}
	for id, cell := range c.Grid().Cells {
		_, in := owner[id]
		assert.Equal(t, cell.AreaBlockLevel == c.AreaSentinel(), in, "cell %d", id)
	}
	chunks := c.Chunks()
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, len(chunks[i-1].Cells), len(chunks[i].Cells))
	}
}

func TestExtensionsNeverRaiseLevels(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 8, NeighborRange: 2}
	g := generate(t, p)

	levels := func(k int) ([]int, int) {
		s := noSlope()
		s.Area.Extensions = k
		grid := &world.Grid{Params: g.Params, Index: g.Index, Cells: append([]world.Cell(nil), g.Cells...)}
		c, err := New(grid, rough(), s)
		require.NoError(t, err)
		for _, pass := range levelPasses(c) {
			require.NoError(t, drive(unlimited(), pass))
		}
		out := make([]int, grid.Len())
		for i, cell := range grid.Cells {
			out[i] = cell.AreaBlockLevel
		}
		return out, c.AreaSentinel()
	}

	prev, prevSentinel := levels(0)
	for k := 1; k <= 3; k++ {
		cur, sentinel := levels(k)
		assert.Equal(t, prevSentinel+p.NeighborRange, sentinel)
		for i := range cur {
			// On the previous round's scale a level can only drop or stay.
			assert.LessOrEqual(t, min(cur[i], prevSentinel), prev[i], "k=%d cell %d", k, i)
			if prev[i] < prevSentinel {
				assert.Equal(t, prev[i], cur[i], "k=%d cell %d", k, i)
			}
		}
		prev, prevSentinel = cur, sentinel
	}
}

func TestClassificationCheckpointTransparency(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 8, NeighborRange: 2}
	s := noSlope()
	s.Area.Extensions = 1
	s.Building.SlopeRatio = 0.2

	want, err := classify(t, p, rough(), s, unlimited())
	require.NoError(t, err)

	for _, limit := range []int{1, 3, 17, 250} {
		got, err := classify(t, p, rough(), s, loop.Limits{CountLimit: limit, DepthLimit: 4})
		require.NoError(t, err)
		require.Equal(t, want.Grid().Len(), got.Grid().Len())
		for i := range want.Grid().Cells {
			w, g := want.Grid().Cells[i], got.Grid().Cells[i]
			assert.Equal(t, w.AreaBlockLevel, g.AreaBlockLevel, "limit %d cell %d", limit, i)
			assert.Equal(t, w.BuildingBlockLevel, g.BuildingBlockLevel, "limit %d cell %d", limit, i)
			assert.Equal(t, w.Connected, g.Connected, "limit %d cell %d", limit, i)
			assert.Equal(t, w.IsLand, g.IsLand, "limit %d cell %d", limit, i)
			assert.Equal(t, w.AvgHeight, g.AvgHeight, "limit %d cell %d", limit, i)
		}
		assert.Equal(t, want.Chunks(), got.Chunks(), "limit %d", limit)
	}
}

func TestBuildingThresholdsCappedByArea(t *testing.T) {
	s := Settings{
		Area:     Thresholds{AltitudeRatio: 0.2, SlopeRatio: 0.1},
		Building: Thresholds{AltitudeRatio: 0.5, SlopeRatio: 0.05, Extensions: 2},
	}
	b := s.building()
	assert.Equal(t, 0.2, b.AltitudeRatio)
	assert.Equal(t, 0.05, b.SlopeRatio)
	assert.Equal(t, 2, b.Extensions)
}

func TestTiltedPlaneSlope(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 1, NeighborRange: 1}
	plane := terrain.Func{Bounds: wideBounds(), Fn: func(pos mgl64.Vec2) (float64, error) {
		return pos.X(), nil
	}}
	c, err := New(generate(t, p), plane, DefaultSettings())
	require.NoError(t, err)
	for _, pass := range levelPasses(c) {
		require.NoError(t, drive(unlimited(), pass))
	}
	for _, cell := range c.Grid().Cells {
		assert.InDelta(t, math.Pi/4, cell.AngleToUp, 1e-9)
		// 45° is steeper than the default 27° slope limit.
		assert.Equal(t, 0, cell.AreaBlockLevel)
	}
}

func TestSourceFailureIsFatal(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 2, NeighborRange: 1}
	boom := errors.New("tile not streamed")
	src := terrain.Func{Bounds: wideBounds(), Fn: func(pos mgl64.Vec2) (float64, error) {
		if pos.X() > 200 {
			return 0, boom
		}
		return 0, nil
	}}
	_, err := classify(t, p, src, DefaultSettings(), unlimited())
	require.ErrorIs(t, err, fault.ErrMissingResource)
	require.ErrorIs(t, err, boom)
}

func TestNoSentinelCells(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 2, NeighborRange: 1}
	src := terrain.Flat{Bounds: wideBounds(), Altitude: -5}
	_, err := classify(t, p, src, DefaultSettings(), unlimited())
	require.ErrorIs(t, err, ErrNoSentinelCells)
}

func TestNewRejectsBadInputs(t *testing.T) {
	g := generate(t, world.Params{CellSize: 10, GridRange: 1, NeighborRange: 1})

	_, err := New(g, nil, DefaultSettings())
	require.ErrorIs(t, err, fault.ErrMissingResource)

	s := DefaultSettings()
	s.Building.Extensions = -1
	_, err = New(g, terrain.Flat{Bounds: wideBounds()}, s)
	require.ErrorIs(t, err, fault.ErrConfiguration)

	s = DefaultSettings()
	s.BlockRule = "AvgHeight >"
	_, err = New(g, terrain.Flat{Bounds: wideBounds()}, s)
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestBlockRuleOverridesPredicate(t *testing.T) {
	p := world.Params{CellSize: 100, GridRange: 2, NeighborRange: 1}
	s := DefaultSettings()
	s.BlockRule = "X > 100 || !InMap"
	c, err := classify(t, p, terrain.Flat{Bounds: wideBounds()}, s, unlimited())
	require.NoError(t, err)

	for _, cell := range c.Grid().Cells {
		if cell.Position.X() > 100 {
			assert.Equal(t, 0, cell.AreaBlockLevel, "cell %v", cell.Coord)
			assert.Equal(t, 0, cell.BuildingBlockLevel, "cell %v", cell.Coord)
		}
	}
	assert.Equal(t, 2, c.Grid().Get(world.HexCoord{Q: -2, R: 1}).AreaBlockLevel)
}

func TestRuleEvaluation(t *testing.T) {
	tests := []struct {
		src  string
		env  Env
		want bool
	}{
		{"AvgHeight > AltitudeLimit", Env{AvgHeight: 5, AltitudeLimit: 4}, true},
		{"AvgHeight > AltitudeLimit", Env{AvgHeight: 3, AltitudeLimit: 4}, false},
		{"AngleToUp > SlopeLimit || !InMap", Env{InMap: false}, true},
		{"CenterHeight < WaterBase", Env{CenterHeight: -2, WaterBase: 0}, true},
	}
	for _, tt := range tests {
		r, err := CompileRule(tt.src)
		require.NoError(t, err)
		got, err := r.Blocked(tt.env)
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("%q on %+v = %v, want %v", tt.src, tt.env, got, tt.want)
		}
	}
}
