package classify

import (
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/world"
)

// region is one radius-1 component of passable cells.
type region struct {
	// sentinel is set once a sentinel cell has been dequeued; connected is
	// that first cell's flag.
	sentinel  bool
	connected bool
}

type regionState struct {
	list  []region
	of    []int // region id per cell, -1 below passableLevel
	next  int
	queue []int
	head  int
}

// LabelRegions groups passable cells into regions and records, per region,
// whether the first sentinel cell a breadth first search meets there is
// connected. Every later island query is then a lookup.
func (c *Classifier) LabelRegions(cp *loop.Checkpoint) (bool, error) {
	n := c.grid.Len()
	sentinel := c.AreaSentinel()
	st := &c.regions
	err := cp.InitOnce(func() error {
		cp.Target = 2 * n
		*st = regionState{of: make([]int, n)}
		for i := range st.of {
			st.of[i] = -1
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	b := cp.Budget()
	for {
		if st.head < len(st.queue) {
			if !b.Take() {
				return b.Yield()
			}
			id := st.queue[st.head]
			st.head++
			rid := st.of[id]
			cell := c.grid.At(id)
			if reg := &st.list[rid]; !reg.sentinel && cell.AreaBlockLevel == sentinel {
				reg.sentinel = true
				reg.connected = cell.Connected
			}
			c.neighborIDs(cell, 1, func(nid int) bool {
				if st.of[nid] < 0 && c.grid.At(nid).AreaBlockLevel >= passableLevel {
					st.of[nid] = rid
					st.queue = append(st.queue, nid)
				}
				return true
			})
			continue
		}

		if st.next >= n {
			break
		}
		if !b.Take() {
			return b.Yield()
		}
		id := st.next
		st.next++
		if st.of[id] >= 0 || c.grid.At(id).AreaBlockLevel < passableLevel {
			continue
		}
		st.of[id] = len(st.list)
		st.list = append(st.list, region{})
		st.queue = append(st.queue[:0], id)
		st.head = 0
	}
	st.queue = nil
	return true, nil
}

// reachesConnected reports whether a passable path leads from cell id to a
// connected sentinel cell.
func (c *Classifier) reachesConnected(id int) bool {
	rid := c.regions.of[id]
	if rid < 0 {
		return false
	}
	reg := c.regions.list[rid]
	return reg.sentinel && reg.connected
}

// FindIslands flags every cell that cannot reach the connected buildable
// region. Cells at level 1 or 2 may borrow a route from a level-3 cell on
// ring 3-k for k from their level down to 1; borrowing at k lowers their
// level to k.
func (c *Classifier) FindIslands(cp *loop.Checkpoint) (bool, error) {
	sentinel := c.AreaSentinel()
	return c.cellPass(cp, nil, func(id int, cell *world.Cell) error {
		lvl := cell.AreaBlockLevel
		switch {
		case lvl >= sentinel:
			cell.IsLand = !cell.Connected
		case lvl >= passableLevel:
			cell.IsLand = !c.reachesConnected(id)
		case lvl >= 1:
			cell.IsLand = !c.borrowRoute(cell)
		default:
			cell.IsLand = true
		}
		return nil
	})
}

func (c *Classifier) borrowRoute(cell *world.Cell) bool {
	lvl := cell.AreaBlockLevel
	for k := lvl; k >= 1; k-- {
		found := false
		c.neighborIDs(cell, passableLevel-k, func(nid int) bool {
			if c.grid.At(nid).AreaBlockLevel == passableLevel && c.reachesConnected(nid) {
				found = true
			}
			return !found
		})
		if found {
			if k < lvl {
				cell.AreaBlockLevel = k
			}
			return true
		}
	}
	return false
}
