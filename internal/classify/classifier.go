// Package classify decides, cell by cell, how usable the terrain under a hex
// grid is.
//
// Passes run in a fixed order and each is driven by its own loop.Checkpoint:
// surface sampling (Vertices, Heights, Normals), area block levels
// (AreaLevel, AreaLevelEx), sentinel chunking (BreakChunks), chunk
// connectivity (CheckConnection), island detection (LabelRegions,
// FindIslands) and building block levels (BuildingLevel, BuildingLevelEx).
//
// A block level is the ring radius of the closest blocked cell. Cells with no
// blocker in range sit at the sentinel level, NeighborRange·(extensions+1)+1.
package classify

import (
	"fmt"
	"math"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/terrain"
	"github.com/talgya/hexgrid/internal/world"
)

// ErrNoSentinelCells is returned when no cell is free of blockers within the
// extended search radius, leaving nothing to anchor connectivity on.
var ErrNoSentinelCells = fmt.Errorf("classify: no cell reached the sentinel level: %w", fault.ErrMissingResource)

// MaxNestDepth is the deepest loop nest a classification pass declares.
const MaxNestDepth = 2

// Connectivity searches only walk through cells at or above this area level.
const passableLevel = 3

// Classifier holds one grid's classification run.
type Classifier struct {
	grid     *world.Grid
	src      terrain.Source
	settings Settings
	rule     *Rule
	layout   world.Layout

	chunks     chunkState
	connection connectionState
	regions    regionState
}

// New checks the terrain source and settings and returns a classifier for g.
func New(g *world.Grid, src terrain.Source, s Settings) (*Classifier, error) {
	if err := terrain.Check(src); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if g.Params.NeighborRange <= 0 {
		return nil, fmt.Errorf("neighbor range %d: %w", g.Params.NeighborRange, fault.ErrConfiguration)
	}
	c := &Classifier{grid: g, src: src, settings: s}
	if s.BlockRule != "" {
		rule, err := CompileRule(s.BlockRule)
		if err != nil {
			return nil, err
		}
		c.rule = rule
	}
	return c, nil
}

// Grid returns the classified grid.
func (c *Classifier) Grid() *world.Grid {
	return c.grid
}

// AreaSentinel is the area level of cells with no blocker in the extended radius.
func (c *Classifier) AreaSentinel() int {
	return c.sentinel(c.settings.Area.Extensions)
}

// BuildingSentinel is the building level of cells with no blocker in the extended radius.
func (c *Classifier) BuildingSentinel() int {
	return c.sentinel(c.settings.Building.Extensions)
}

// Chunks returns the sentinel chunks, largest first. Valid after BreakChunks.
func (c *Classifier) Chunks() []Chunk {
	out := make([]Chunk, len(c.chunks.order))
	for i, id := range c.chunks.order {
		out[i] = c.chunks.list[id]
	}
	return out
}

func (c *Classifier) sentinel(extensions int) int {
	return c.grid.Params.NeighborRange*(extensions+1) + 1
}

// blockLimits are the resolved thresholds of one classification.
type blockLimits struct {
	altitude float64
	slope    float64
}

func (c *Classifier) limits(t Thresholds) blockLimits {
	return blockLimits{
		altitude: t.AltitudeRatio * c.src.AltitudeMultiplier(),
		slope:    math.Pi * t.SlopeRatio / 2,
	}
}

// inMap reports whether a cell center lies strictly inside the sampled area.
func (c *Classifier) inMap(cell *world.Cell) bool {
	return math.Abs(cell.Position.X()) < c.src.MapWidth()/2 &&
		math.Abs(cell.Position.Y()) < c.src.MapHeight()/2
}

// blocked tests one cell against the predicate.
func (c *Classifier) blocked(cell *world.Cell, lim blockLimits) (bool, error) {
	env := Env{
		AvgHeight:     cell.AvgHeight,
		CenterHeight:  cell.CenterHeight,
		AngleToUp:     cell.AngleToUp,
		X:             cell.Position.X(),
		Y:             cell.Position.Y(),
		AltitudeLimit: lim.altitude,
		WaterBase:     c.src.WaterBase(),
		SlopeLimit:    lim.slope,
		InMap:         c.inMap(cell),
	}
	if c.rule != nil {
		return c.rule.Blocked(env)
	}
	return builtinBlocked(env), nil
}

// neighborIDs calls fn with the index of each in-grid cell on a ring around
// cell, stopping early when fn returns false.
func (c *Classifier) neighborIDs(cell *world.Cell, radius int, fn func(id int) bool) {
	for _, nc := range cell.Ring(radius) {
		id, ok := c.grid.Index.Lookup(nc)
		if !ok {
			continue
		}
		if !fn(id) {
			return
		}
	}
}
