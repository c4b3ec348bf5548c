package classify

import (
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/world"
)

// levelField selects which block level a pass writes.
type levelField func(*world.Cell) *int

func areaLevel(c *world.Cell) *int     { return &c.AreaBlockLevel }
func buildingLevel(c *world.Cell) *int { return &c.BuildingBlockLevel }

// AreaLevel sets every cell's base area block level.
func (c *Classifier) AreaLevel(cp *loop.Checkpoint) (bool, error) {
	return c.setLevel(cp, c.limits(c.settings.Area), areaLevel)
}

// AreaLevelEx runs the configured area extension rounds.
func (c *Classifier) AreaLevelEx(cp *loop.Checkpoint) (bool, error) {
	return c.extendLevel(cp, c.settings.Area.Extensions, areaLevel)
}

// BuildingLevel sets every cell's base building block level. Its thresholds
// never exceed the area thresholds.
func (c *Classifier) BuildingLevel(cp *loop.Checkpoint) (bool, error) {
	return c.setLevel(cp, c.limits(c.settings.building()), buildingLevel)
}

// BuildingLevelEx runs the configured building extension rounds.
func (c *Classifier) BuildingLevelEx(cp *loop.Checkpoint) (bool, error) {
	return c.extendLevel(cp, c.settings.Building.Extensions, buildingLevel)
}

func (c *Classifier) setLevel(cp *loop.Checkpoint, lim blockLimits, field levelField) (bool, error) {
	return c.cellPass(cp, nil, func(_ int, cell *world.Cell) error {
		lvl, err := c.baseLevel(cell, lim)
		if err != nil {
			return err
		}
		*field(cell) = lvl
		return nil
	})
}

// baseLevel is 0 for a blocked cell, else the radius of the nearest ring
// holding a blocked cell, else NeighborRange+1.
func (c *Classifier) baseLevel(cell *world.Cell, lim blockLimits) (int, error) {
	b, err := c.blocked(cell, lim)
	if err != nil || b {
		return 0, err
	}

	nr := c.grid.Params.NeighborRange
	for r := 1; r <= nr; r++ {
		for _, nc := range cell.Ring(r) {
			n := c.grid.Get(nc)
			if n == nil {
				continue
			}
			b, err := c.blocked(n, lim)
			if err != nil {
				return 0, err
			}
			if b {
				return r, nil
			}
		}
	}
	return nr + 1, nil
}

// extendLevel relaxes sentinel cells once per round: a cell still at the
// previous sentinel takes NeighborRange plus the lowest level on its
// outermost ring, capped at the new sentinel.
func (c *Classifier) extendLevel(cp *loop.Checkpoint, rounds int, field levelField) (bool, error) {
	n, nr := c.grid.Len(), c.grid.Params.NeighborRange
	err := cp.InitOnce(func() error {
		cp.Target = rounds * n
		return nil
	})
	if err != nil {
		return false, err
	}

	it, err := cp.Nest(loop.Range(0, rounds), loop.Range(0, n))
	if err != nil {
		return false, err
	}
	for it.Next() {
		prev := c.sentinel(it.Index(0))
		cell := c.grid.At(it.Index(1))
		if *field(cell) != prev {
			continue
		}
		best := prev + nr
		c.neighborIDs(cell, nr, func(id int) bool {
			best = min(best, nr+*field(c.grid.At(id)))
			return true
		})
		*field(cell) = best
	}
	return it.Finish()
}
