package world

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
)

// runPass drives one pass to completion with a fresh checkpoint.
func runPass(t *testing.T, limits loop.Limits, pass func(*loop.Checkpoint) (bool, error)) *loop.Checkpoint {
	t.Helper()
	cp, err := loop.New(limits)
	require.NoError(t, err)
	for i := 0; ; i++ {
		require.Less(t, i, 1_000_000, "pass never finished")
		done, err := pass(cp)
		require.NoError(t, err)
		if done {
			return cp
		}
	}
}

func generate(t *testing.T, p Params, limits loop.Limits) *Grid {
	t.Helper()
	gen := NewGenerator(NewGrid(p))
	runPass(t, limits, gen.Centers)
	runPass(t, limits, gen.Neighbors)
	return gen.Grid()
}

func unlimited() loop.Limits {
	return loop.Limits{CountLimit: 1 << 30, DepthLimit: 4}
}

func TestCellCount(t *testing.T) {
	for r := 0; r <= 8; r++ {
		g := generate(t, Params{CellSize: 10, GridRange: r, NeighborRange: 1}, unlimited())
		assert.Equal(t, 3*r*(r+1)+1, g.Len(), "range %d", r)
		assert.Equal(t, CellCount(r), g.Index.Len())
	}
}

func TestIndexBijection(t *testing.T) {
	g := generate(t, Params{CellSize: 10, GridRange: 6, NeighborRange: 2}, unlimited())
	for i, c := range g.Cells {
		id, ok := g.Index.Lookup(c.Coord)
		require.True(t, ok)
		assert.Equal(t, i, id)
		assert.Equal(t, c.Coord, g.Index.Coord(i))
		assert.LessOrEqual(t, Distance(HexCoord{}, c.Coord), 6)
	}
	_, ok := g.Index.Lookup(HexCoord{Q: 7, R: 0})
	assert.False(t, ok)
	assert.Nil(t, g.Get(HexCoord{Q: 0, R: -7}))
}

func TestNeighborSetsAreExactRings(t *testing.T) {
	const gridRange, nr = 5, 3
	g := generate(t, Params{CellSize: 10, GridRange: gridRange, NeighborRange: nr}, unlimited())
	for _, c := range g.Cells {
		require.Len(t, c.Neighbors, nr)
		for r := 1; r <= nr; r++ {
			set := c.Neighbors[r-1]
			assert.Equal(t, r, set.Radius)

			seen := map[HexCoord]bool{}
			for _, n := range set.Coords {
				assert.Equal(t, r, Distance(c.Coord, n))
				assert.False(t, seen[n], "duplicate neighbor")
				seen[n] = true
			}
			// Every in-grid ring cell is present.
			want := 0
			for _, n := range Ring(c.Coord, r) {
				if Distance(HexCoord{}, n) <= gridRange {
					want++
				}
			}
			assert.Len(t, set.Coords, want)
		}
	}
	// The origin sees full rings.
	assert.Len(t, g.At(0).Ring(3), 18)
}

func TestPositionsFollowLayout(t *testing.T) {
	p := Params{CellSize: 500, GridRange: 10, NeighborRange: 1}
	g := generate(t, p, unlimited())
	for _, c := range g.Cells {
		// Flat-top axial to pixel.
		q, r := float64(c.Coord.Q), float64(c.Coord.R)
		want := mgl64.Vec2{1.5 * p.CellSize * q, math.Sqrt(3) * p.CellSize * (r + q/2)}
		assert.InDelta(t, want.X(), c.Position.X(), 1e-6)
		assert.InDelta(t, want.Y(), c.Position.Y(), 1e-6)
	}
}

func TestRingWalkOrder(t *testing.T) {
	g := generate(t, Params{CellSize: 1, GridRange: 1, NeighborRange: 1}, unlimited())
	want := []HexCoord{{0, 0}, {-1, 1}, {0, 1}, {1, 0}, {1, -1}, {0, -1}, {-1, 0}}
	for i, c := range want {
		assert.Equal(t, c, g.Index.Coord(i))
	}
}

func TestGenerationCheckpointTransparency(t *testing.T) {
	p := Params{CellSize: 50, GridRange: 4, NeighborRange: 3}
	want := generate(t, p, unlimited())

	for _, limit := range []int{1, 2, 5, 7, 64, 1000} {
		got := generate(t, p, loop.Limits{CountLimit: limit, DepthLimit: 4})
		require.Equal(t, want.Len(), got.Len(), "limit %d", limit)
		for i := range want.Cells {
			w, g := want.Cells[i], got.Cells[i]
			assert.Equal(t, w.Coord, g.Coord, "limit %d cell %d", limit, i)
			assert.Equal(t, w.Position, g.Position, "limit %d cell %d", limit, i)
			assert.Equal(t, w.Neighbors, g.Neighbors, "limit %d cell %d", limit, i)
		}
	}
}

// reload round-trips a checkpoint through JSON, as a run record stores it.
func reload(t *testing.T, cp *loop.Checkpoint) *loop.Checkpoint {
	t.Helper()
	b, err := json.Marshal(cp)
	require.NoError(t, err)
	var out loop.Checkpoint
	require.NoError(t, json.Unmarshal(b, &out))
	return &out
}

func TestGenerationResumesWithFreshGenerator(t *testing.T) {
	p := Params{CellSize: 50, GridRange: 4, NeighborRange: 3}
	want := generate(t, p, unlimited())

	for _, limit := range []int{1, 3, 5, 13} {
		g := NewGrid(p)
		for _, pass := range []func(*Generator, *loop.Checkpoint) (bool, error){
			(*Generator).Centers,
			(*Generator).Neighbors,
		} {
			cp, err := loop.New(loop.Limits{CountLimit: limit, DepthLimit: MaxNestDepth})
			require.NoError(t, err)
			for i := 0; ; i++ {
				require.Less(t, i, 100_000, "pass never finished")
				done, err := pass(NewGenerator(g), cp)
				require.NoError(t, err, "limit %d", limit)
				if done {
					break
				}
				cp = reload(t, cp)
			}
		}

		require.Equal(t, want.Len(), g.Len(), "limit %d", limit)
		for i := range want.Cells {
			w, c := want.Cells[i], g.Cells[i]
			assert.Equal(t, w.Coord, c.Coord, "limit %d cell %d", limit, i)
			assert.Equal(t, w.Position, c.Position, "limit %d cell %d", limit, i)
			assert.Equal(t, w.Neighbors, c.Neighbors, "limit %d cell %d", limit, i)
		}
	}
}

func TestRingCellFollowsRingOrder(t *testing.T) {
	center := HexCoord{Q: 2, R: -1}
	for radius := 1; radius <= 4; radius++ {
		ring := Ring(center, radius)
		for i, want := range ring {
			assert.Equal(t, want, RingCell(center, radius, i/radius, i%radius), "radius %d item %d", radius, i)
		}
	}
}

func TestNeighborPassNeedsDepthFour(t *testing.T) {
	gen := NewGenerator(NewGrid(SmallTestParams()))
	runPass(t, unlimited(), gen.Centers)

	cp, err := loop.New(loop.Limits{CountLimit: 10, DepthLimit: 3})
	require.NoError(t, err)
	_, err = gen.Neighbors(cp)
	require.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestCentersRejectsBadParams(t *testing.T) {
	gen := NewGenerator(NewGrid(Params{CellSize: 10, GridRange: 2, NeighborRange: 0}))
	cp, err := loop.New(loop.DefaultLimits())
	require.NoError(t, err)
	_, err = gen.Centers(cp)
	require.ErrorIs(t, err, fault.ErrConfiguration)
	assert.False(t, cp.Initialized)
}

func TestIndexDuplicateInsert(t *testing.T) {
	x := NewIndex(2)
	id, err := x.Insert(HexCoord{Q: 1, R: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	_, err = x.Insert(HexCoord{Q: 1, R: 2})
	require.ErrorIs(t, err, ErrDuplicateCoord)
	require.ErrorIs(t, err, fault.ErrInvariant)
	assert.Equal(t, 1, x.Len())
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b HexCoord
		want int
	}{
		{HexCoord{0, 0}, HexCoord{0, 0}, 0},
		{HexCoord{0, 0}, HexCoord{1, 0}, 1},
		{HexCoord{0, 0}, HexCoord{2, -1}, 2},
		{HexCoord{-3, 1}, HexCoord{2, -1}, 5},
		{HexCoord{1, 1}, HexCoord{-1, -1}, 4},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestLoaderRebuildsGrid(t *testing.T) {
	p := Params{CellSize: 20, GridRange: 3, NeighborRange: 2}
	want := generate(t, p, unlimited())

	ld := NewLoader(want.Records())
	limits := loop.Limits{CountLimit: 3, DepthLimit: 4}
	runPass(t, limits, ld.Tiles)
	runPass(t, limits, ld.Neighbors)
	got := ld.Grid()

	require.Equal(t, want.Len(), got.Len())
	for i := range want.Cells {
		assert.Equal(t, want.Cells[i].Coord, got.Cells[i].Coord)
		assert.Equal(t, want.Cells[i].Position, got.Cells[i].Position)
		assert.Equal(t, want.Cells[i].Neighbors, got.Cells[i].Neighbors)
		assert.True(t, got.Cells[i].Connected)
	}
}

func TestLoaderRejectsMalformedRecords(t *testing.T) {
	p := Params{CellSize: 20, GridRange: 2, NeighborRange: 2}
	base := generate(t, p, unlimited())

	tests := []struct {
		name   string
		mutate func(*Records)
	}{
		{"missing index", func(r *Records) { r.Indices = r.Indices[1:] }},
		{"swapped tile", func(r *Records) { r.Tiles[2], r.Tiles[3] = r.Tiles[3], r.Tiles[2] }},
		{"missing radius", func(r *Records) { r.Neighbors = r.Neighbors[:1] }},
		{"short radius", func(r *Records) { r.Neighbors[1] = r.Neighbors[1][:4] }},
		{"wrong distance", func(r *Records) {
			r.Neighbors[0][0].Coords = append([]HexCoord{{Q: 2, R: 0}}, r.Neighbors[0][0].Coords...)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := base.Records()
			tt.mutate(&recs)
			ld := NewLoader(recs)

			var err error
			for _, pass := range []func(*loop.Checkpoint) (bool, error){ld.Tiles, ld.Neighbors} {
				cp, _ := loop.New(unlimited())
				if _, err = pass(cp); err != nil {
					break
				}
			}
			require.ErrorIs(t, err, fault.ErrMalformedRecord)
		})
	}
}

func TestLoaderDropsUnknownAndRepeatedNeighbors(t *testing.T) {
	p := Params{CellSize: 20, GridRange: 1, NeighborRange: 1}
	recs := generate(t, p, unlimited()).Records()
	first := recs.Neighbors[0][1].Coords[0]
	// (-2,1) is at distance 1 from cell 1 (-1,1) but outside a range-1 grid.
	recs.Neighbors[0][1].Coords = append(recs.Neighbors[0][1].Coords, first, HexCoord{Q: -2, R: 1})

	ld := NewLoader(recs)
	runPass(t, unlimited(), ld.Tiles)
	runPass(t, unlimited(), ld.Neighbors)
	assert.Len(t, ld.Grid().At(1).Ring(1), 3)
}
