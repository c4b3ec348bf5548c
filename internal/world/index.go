package world

import (
	"fmt"

	"github.com/talgya/hexgrid/internal/fault"
)

// ErrDuplicateCoord is returned when a coordinate is inserted twice.
var ErrDuplicateCoord = fmt.Errorf("world: duplicate coordinate: %w", fault.ErrInvariant)

// Index is the bijection between axial coordinates and dense cell indices.
// Algorithms look coordinates up in it; a miss means "outside the grid".
type Index struct {
	ids    map[HexCoord]int
	coords []HexCoord
}

// NewIndex returns an empty index sized for n cells.
func NewIndex(n int) *Index {
	return &Index{
		ids:    make(map[HexCoord]int, n),
		coords: make([]HexCoord, 0, n),
	}
}

// Insert assigns the next dense index to c.
func (x *Index) Insert(c HexCoord) (int, error) {
	if id, ok := x.ids[c]; ok {
		return 0, fmt.Errorf("insert (%d,%d) already at %d: %w", c.Q, c.R, id, ErrDuplicateCoord)
	}
	id := len(x.coords)
	x.ids[c] = id
	x.coords = append(x.coords, c)
	return id, nil
}

// Lookup returns the index of c and whether c is in the grid.
func (x *Index) Lookup(c HexCoord) (int, bool) {
	id, ok := x.ids[c]
	return id, ok
}

// Coord maps an index back to its coordinate.
func (x *Index) Coord(id int) HexCoord {
	return x.coords[id]
}

// Len returns the number of indexed coordinates.
func (x *Index) Len() int {
	return len(x.coords)
}
