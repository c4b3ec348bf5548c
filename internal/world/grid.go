package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/hexgrid/internal/fault"
)

// Params describes the shape of a grid.
type Params struct {
	CellSize      float64 `yaml:"cell_size" json:"cell_size"`
	GridRange     int     `yaml:"grid_range" json:"grid_range"`
	NeighborRange int     `yaml:"neighbor_range" json:"neighbor_range"`
}

// DefaultParams returns the grid shape used when nothing else is configured.
func DefaultParams() Params {
	return Params{
		CellSize:      500,
		GridRange:     10,
		NeighborRange: 4,
	}
}

// SmallTestParams returns a tiny grid for rapid iteration.
func SmallTestParams() Params {
	return Params{
		CellSize:      100,
		GridRange:     3,
		NeighborRange: 2,
	}
}

// Validate rejects shapes no pass can work with.
func (p Params) Validate() error {
	switch {
	case p.CellSize <= 0:
		return fmt.Errorf("cell size %g: %w", p.CellSize, fault.ErrConfiguration)
	case p.GridRange < 0:
		return fmt.Errorf("grid range %d: %w", p.GridRange, fault.ErrConfiguration)
	case p.NeighborRange <= 0:
		return fmt.Errorf("neighbor range %d: %w", p.NeighborRange, fault.ErrConfiguration)
	}
	return nil
}

// Grid owns every cell of one run in a single arena.
type Grid struct {
	Params Params
	Index  *Index
	Cells  []Cell
}

// NewGrid creates an empty grid with room for the full spiral.
func NewGrid(p Params) *Grid {
	n := CellCount(max(p.GridRange, 0))
	return &Grid{
		Params: p,
		Index:  NewIndex(n),
		Cells:  make([]Cell, 0, n),
	}
}

// AddCell indexes c and appends a cell for it.
func (g *Grid) AddCell(c HexCoord, pos mgl64.Vec2) (int, error) {
	id, err := g.Index.Insert(c)
	if err != nil {
		return 0, err
	}
	g.Cells = append(g.Cells, Cell{
		Coord:     c,
		Position:  pos,
		Connected: true,
	})
	return id, nil
}

// Get returns the cell at c, or nil when c is outside the grid.
func (g *Grid) Get(c HexCoord) *Cell {
	id, ok := g.Index.Lookup(c)
	if !ok {
		return nil
	}
	return &g.Cells[id]
}

// At returns the cell with dense index id.
func (g *Grid) At(id int) *Cell {
	return &g.Cells[id]
}

// Len returns the number of cells.
func (g *Grid) Len() int {
	return len(g.Cells)
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(range=%d, neighbors=%d, cells=%d)",
		g.Params.GridRange, g.Params.NeighborRange, g.Len())
}
