package world

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
)

// IndexRecord maps one coordinate to its dense index.
type IndexRecord struct {
	Coord HexCoord `json:"coord"`
	Index int      `json:"index"`
}

// TileRecord is one cell center.
type TileRecord struct {
	Coord    HexCoord   `json:"coord"`
	Position mgl64.Vec2 `json:"position"`
}

// NeighborRecord is the neighbor list of one cell at one radius, in walk order.
type NeighborRecord struct {
	Index  int        `json:"index"`
	Radius int        `json:"radius"`
	Coords []HexCoord `json:"coords"`
}

// Records is everything needed to rebuild a grid without regenerating it.
// Indices and Tiles are in index order; Neighbors[r-1] holds radius r.
type Records struct {
	Params    Params
	Indices   []IndexRecord
	Tiles     []TileRecord
	Neighbors [][]NeighborRecord
}

// IndexRecords exports the coordinate index in index order.
func (g *Grid) IndexRecords() []IndexRecord {
	out := make([]IndexRecord, g.Len())
	for i := range g.Cells {
		out[i] = IndexRecord{Coord: g.Index.Coord(i), Index: i}
	}
	return out
}

// TileRecords exports every cell center in index order.
func (g *Grid) TileRecords() []TileRecord {
	out := make([]TileRecord, g.Len())
	for i, c := range g.Cells {
		out[i] = TileRecord{Coord: c.Coord, Position: c.Position}
	}
	return out
}

// NeighborRecords exports the radius-r neighbor lists in index order.
func (g *Grid) NeighborRecords(radius int) []NeighborRecord {
	out := make([]NeighborRecord, g.Len())
	for i := range g.Cells {
		c := &g.Cells[i]
		out[i] = NeighborRecord{Index: i, Radius: radius, Coords: c.Ring(radius)}
	}
	return out
}

// Records exports the whole grid.
func (g *Grid) Records() Records {
	rs := Records{
		Params:  g.Params,
		Indices: g.IndexRecords(),
		Tiles:   g.TileRecords(),
	}
	for r := 1; r <= g.Params.NeighborRange; r++ {
		rs.Neighbors = append(rs.Neighbors, g.NeighborRecords(r))
	}
	return rs
}

// LoaderNestDepth is the deepest loop nest a loader pass declares.
const LoaderNestDepth = 2

// Loader rebuilds a grid from records in bounded slices.
type Loader struct {
	grid *Grid
	recs Records
}

// NewLoader returns a loader for recs. The grid takes its shape from recs.Params.
func NewLoader(recs Records) *Loader {
	return &Loader{grid: NewGrid(recs.Params), recs: recs}
}

// Grid returns the grid being rebuilt.
func (l *Loader) Grid() *Grid {
	return l.grid
}

// Tiles ingests the index and tile records.
func (l *Loader) Tiles(cp *loop.Checkpoint) (bool, error) {
	n := len(l.recs.Tiles)
	err := cp.InitOnce(func() error {
		if err := l.recs.Params.Validate(); err != nil {
			return fmt.Errorf("grid params: %w", err)
		}
		if len(l.recs.Indices) != n {
			return fmt.Errorf("%d index records for %d tiles: %w", len(l.recs.Indices), n, fault.ErrMalformedRecord)
		}
		cp.Target = n
		return nil
	})
	if err != nil {
		return false, err
	}

	it, err := cp.Nest(loop.Range(0, n))
	if err != nil {
		return false, err
	}
	for it.Next() {
		i := it.Index(0)
		idx, tile := l.recs.Indices[i], l.recs.Tiles[i]
		if idx.Index != i || idx.Coord != tile.Coord {
			return false, fmt.Errorf("record %d: index (%d,%d)->%d does not match tile (%d,%d): %w",
				i, idx.Coord.Q, idx.Coord.R, idx.Index, tile.Coord.Q, tile.Coord.R, fault.ErrMalformedRecord)
		}
		if _, err := l.grid.AddCell(tile.Coord, tile.Position); err != nil {
			return false, err
		}
	}
	return it.Finish()
}

// Neighbors ingests the per-radius neighbor records, radius by radius.
func (l *Loader) Neighbors(cp *loop.Checkpoint) (bool, error) {
	n, radii := l.grid.Len(), l.grid.Params.NeighborRange
	err := cp.InitOnce(func() error {
		if len(l.recs.Neighbors) != radii {
			return fmt.Errorf("%d neighbor record sets for range %d: %w", len(l.recs.Neighbors), radii, fault.ErrMalformedRecord)
		}
		for r, set := range l.recs.Neighbors {
			if len(set) != n {
				return fmt.Errorf("radius %d: %d neighbor records for %d cells: %w", r+1, len(set), n, fault.ErrMalformedRecord)
			}
		}
		cp.Target = n * radii
		return nil
	})
	if err != nil {
		return false, err
	}

	it, err := cp.Nest(loop.Range(1, radii+1), loop.Range(0, n))
	if err != nil {
		return false, err
	}
	for it.Next() {
		radius, i := it.Index(0), it.Index(1)
		rec := l.recs.Neighbors[radius-1][i]
		if rec.Index != i {
			return false, fmt.Errorf("radius %d record %d carries index %d: %w", radius, i, rec.Index, fault.ErrMalformedRecord)
		}
		if err := l.grid.setNeighbors(i, radius, rec.Coords); err != nil {
			return false, err
		}
	}
	return it.Finish()
}

// setNeighbors installs a radius-r neighbor list on cell id. Coordinates
// outside the grid are dropped and repeats are kept once.
func (g *Grid) setNeighbors(id, radius int, coords []HexCoord) error {
	cell := &g.Cells[id]
	if len(cell.Neighbors) != radius-1 {
		return fmt.Errorf("cell %d has %d neighbor sets before radius %d: %w",
			id, len(cell.Neighbors), radius, fault.ErrInvariant)
	}
	set := NeighborSet{Radius: radius}
	seen := mapset.New[HexCoord]()
	for _, c := range coords {
		if d := Distance(cell.Coord, c); d != radius {
			return fmt.Errorf("cell %d: neighbor (%d,%d) at distance %d listed under radius %d: %w",
				id, c.Q, c.R, d, radius, fault.ErrMalformedRecord)
		}
		if _, ok := g.Index.Lookup(c); !ok || seen.Has(c) {
			continue
		}
		seen.Put(c)
		set.Coords = append(set.Coords, c)
	}
	cell.Neighbors = append(cell.Neighbors, set)
	return nil
}
