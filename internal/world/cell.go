package world

import "github.com/go-gl/mathgl/mgl64"

// NeighborSet lists the coordinates at exactly Radius steps from a cell.
// Only coordinates present in the grid are kept.
type NeighborSet struct {
	Radius int        `json:"radius"`
	Coords []HexCoord `json:"coords"`
}

// Cell is one hex of the grid. Cells live in Grid.Cells and refer to each
// other only by coordinate.
type Cell struct {
	Coord    HexCoord   `json:"coord"`
	Position mgl64.Vec2 `json:"position"`

	// Surface samples, filled by the classifier's surface passes.
	Vertices      [6]mgl64.Vec2 `json:"-"`
	VertexHeights [6]float64    `json:"vertex_heights"`
	CenterHeight  float64       `json:"center_height"`
	AvgHeight     float64       `json:"avg_height"`
	Normal        mgl64.Vec3    `json:"normal"`
	AngleToUp     float64       `json:"angle_to_up"` // radians

	// Neighbors[r-1] holds the ring at radius r.
	Neighbors []NeighborSet `json:"-"`

	AreaBlockLevel     int  `json:"area_block_level"`
	BuildingBlockLevel int  `json:"building_block_level"`
	IsLand             bool `json:"is_land"` // isolated from the main buildable region
	Connected          bool `json:"connected"`
}

// Ring returns the neighbor set at radius r, or nil when none was built.
func (c *Cell) Ring(r int) []HexCoord {
	if r < 1 || r > len(c.Neighbors) {
		return nil
	}
	return c.Neighbors[r-1].Coords
}
