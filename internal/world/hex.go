// Package world provides the hex grid, its neighbor graph and the records it
// is persisted as. Uses axial coordinates (q, r) for the hex grid.
package world

// HexCoord represents a position on the hex grid using axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q"`
	R int `json:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Add returns h + o.
func (h HexCoord) Add(o HexCoord) HexCoord {
	return HexCoord{Q: h.Q + o.Q, R: h.R + o.R}
}

// Scale returns h repeated k times.
func (h HexCoord) Scale(k int) HexCoord {
	return HexCoord{Q: h.Q * k, R: h.R * k}
}

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
// Ring walks turn through them in this order.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// RingStartDirection is the direction whose multiples give each ring's first cell.
const RingStartDirection = 4

// RingStart returns the first cell of the ring of the given radius around center.
func RingStart(center HexCoord, radius int) HexCoord {
	return center.Add(HexNeighborDirections[RingStartDirection].Scale(radius))
}

// RingCell returns the cell reached after walking the given number of full
// sides and then step more cells along the ring of radius around center.
func RingCell(center HexCoord, radius, side, step int) HexCoord {
	c := RingStart(center, radius)
	for s := 0; s < side; s++ {
		c = c.Add(HexNeighborDirections[s].Scale(radius))
	}
	return c.Add(HexNeighborDirections[side].Scale(step))
}

// Ring returns the cells at exactly the given distance from center, in walk order.
// Radius 0 yields the center alone.
func Ring(center HexCoord, radius int) []HexCoord {
	if radius == 0 {
		return []HexCoord{center}
	}
	out := make([]HexCoord, 0, 6*radius)
	c := RingStart(center, radius)
	for side := 0; side < 6; side++ {
		for step := 0; step < radius; step++ {
			out = append(out, c)
			c = c.Add(HexNeighborDirections[side])
		}
	}
	return out
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	dq := abs(a.Q - b.Q)
	dr := abs(a.R - b.R)
	ds := abs(a.S() - b.S())
	// Max of the three absolute differences in cube coordinates.
	return max(dq, dr, ds)
}

// CellCount returns the number of cells within the given range of a center.
func CellCount(gridRange int) int {
	return 3*gridRange*(gridRange+1) + 1
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
