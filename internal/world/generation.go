// Grid generation by spiral ring enumeration.
// Cells are added ring by ring from the origin, then every cell walks the
// same rings around itself to collect its neighbors per radius.
package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
)

// MaxNestDepth is the deepest loop nest a generator pass declares. The
// checkpoint's depth limit must allow it.
const MaxNestDepth = 4

// Generator builds a grid in bounded slices. The walk cursor is rebuilt
// from the checkpoint's saved indices at the start of every invocation, so
// any generator over the same grid can continue a paused pass.
type Generator struct {
	grid   *Grid
	layout Layout

	cursor HexCoord
	pos    mgl64.Vec2
}

// NewGenerator returns a generator that fills g.
func NewGenerator(g *Grid) *Generator {
	return &Generator{grid: g, layout: NewLayout(g.Params.CellSize)}
}

// Grid returns the grid being built.
func (gen *Generator) Grid() *Grid {
	return gen.grid
}

// Centers adds the origin and every ring out to GridRange.
func (gen *Generator) Centers(cp *loop.Checkpoint) (bool, error) {
	rings := gen.grid.Params.GridRange
	err := cp.InitOnce(func() error {
		if err := gen.grid.Params.Validate(); err != nil {
			return err
		}
		cp.Target = CellCount(rings) - 1
		_, err := gen.grid.AddCell(HexCoord{}, mgl64.Vec2{})
		return err
	})
	if err != nil {
		return false, err
	}

	it, err := cp.Nest(
		loop.Range(1, rings+1),
		loop.Range(0, 6),
		func(outer []int) (int, int) { return 0, outer[0] },
	)
	if err != nil {
		return false, err
	}
	placed := false
	for it.Next() {
		ring, side, step := it.Index(0), it.Index(1), it.Index(2)
		if !placed || it.Moved(0) {
			gen.seekCenter(ring, side, step)
			placed = true
		}
		if _, err := gen.grid.AddCell(gen.cursor, gen.pos); err != nil {
			return false, err
		}
		gen.cursor = gen.cursor.Add(HexNeighborDirections[side])
		gen.pos = gen.pos.Add(gen.layout.Offset(side))
	}
	return it.Finish()
}

// Neighbors builds each cell's neighbor sets for radius 1..NeighborRange.
// Ring cells outside the grid are skipped.
func (gen *Generator) Neighbors(cp *loop.Checkpoint) (bool, error) {
	n, radii := gen.grid.Len(), gen.grid.Params.NeighborRange
	err := cp.InitOnce(func() error {
		if radii <= 0 {
			return fmt.Errorf("neighbor range %d: %w", radii, fault.ErrConfiguration)
		}
		cp.Target = n * (CellCount(radii) - 1)
		return nil
	})
	if err != nil {
		return false, err
	}

	it, err := cp.Nest(
		loop.Range(0, n),
		loop.Range(1, radii+1),
		loop.Range(0, 6),
		func(outer []int) (int, int) { return 0, outer[1] },
	)
	if err != nil {
		return false, err
	}
	placed := false
	for it.Next() {
		cell := &gen.grid.Cells[it.Index(0)]
		radius, side, step := it.Index(1), it.Index(2), it.Index(3)
		if !placed || it.Moved(1) {
			gen.cursor = RingCell(cell.Coord, radius, side, step)
			placed = true
		}
		if it.Moved(1) {
			if len(cell.Neighbors) != radius-1 {
				return false, fmt.Errorf("cell (%d,%d) has %d neighbor sets before radius %d: %w",
					cell.Coord.Q, cell.Coord.R, len(cell.Neighbors), radius, fault.ErrInvariant)
			}
			cell.Neighbors = append(cell.Neighbors, NeighborSet{Radius: radius})
		}
		if _, ok := gen.grid.Index.Lookup(gen.cursor); ok {
			set := &cell.Neighbors[radius-1]
			set.Coords = append(set.Coords, gen.cursor)
		}
		gen.cursor = gen.cursor.Add(HexNeighborDirections[side])
	}
	return it.Finish()
}

// seekCenter puts the cursor on the given step of a ring around the origin.
// The position is replayed step by step so it matches an unbroken walk
// exactly.
func (gen *Generator) seekCenter(ring, side, step int) {
	gen.cursor = RingCell(HexCoord{}, ring, side, step)
	gen.pos = gen.layout.Offset(RingStartDirection).Mul(float64(ring))
	for s := 0; s <= side; s++ {
		n := ring
		if s == side {
			n = step
		}
		for i := 0; i < n; i++ {
			gen.pos = gen.pos.Add(gen.layout.Offset(s))
		}
	}
}
