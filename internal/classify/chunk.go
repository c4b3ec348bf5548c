package classify

import (
	"sort"

	"github.com/zyedidia/generic/mapset"

	"github.com/talgya/hexgrid/internal/loop"
)

// Chunk is one radius-1 connected component of sentinel-level cells.
type Chunk struct {
	ID    int
	Cells []int // cell indices in discovery order
}

// chunkState is the flood fill in progress. Chunk ids are discovery order;
// order lists them largest first once the fill is done.
type chunkState struct {
	list  []Chunk
	order []int
	of    []int // chunk id per cell, -1 outside any chunk
	next  int   // next seed candidate
	queue []int
	head  int
}

// BreakChunks partitions the sentinel-level cells into chunks by breadth
// first flood fill. Seeds are tried in cell index order.
func (c *Classifier) BreakChunks(cp *loop.Checkpoint) (bool, error) {
	n := c.grid.Len()
	sentinel := c.AreaSentinel()
	st := &c.chunks
	err := cp.InitOnce(func() error {
		// Every cell is tried as a seed once and dequeued at most once.
		cp.Target = 2 * n
		*st = chunkState{of: make([]int, n)}
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
			chunk := &st.list[st.of[id]]
			chunk.Cells = append(chunk.Cells, id)
			c.neighborIDs(c.grid.At(id), 1, func(nid int) bool {
				if st.of[nid] < 0 && c.grid.At(nid).AreaBlockLevel == sentinel {
					st.of[nid] = chunk.ID
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
		if st.of[id] >= 0 || c.grid.At(id).AreaBlockLevel != sentinel {
			continue
		}
		chunkID := len(st.list)
		st.list = append(st.list, Chunk{ID: chunkID})
		st.of[id] = chunkID
		st.queue = append(st.queue[:0], id)
		st.head = 0
	}

	if len(st.list) == 0 {
		return false, ErrNoSentinelCells
	}
	st.order = make([]int, len(st.list))
	for i := range st.order {
		st.order[i] = i
	}
	sort.SliceStable(st.order, func(i, j int) bool {
		return len(st.list[st.order[i]].Cells) > len(st.list[st.order[j]].Cells)
	})
	st.queue = nil
	return true, nil
}

// connectionState is the chunk-to-reference search in progress.
type connectionState struct {
	ref     mapset.Set[int] // chunk ids merged into the reference component
	pos     int             // position in chunks.order of the chunk being tested
	open    bool
	queue   []int
	head    int
	stamp   []int // pos of the search that last reached each cell
	marking bool
	mark    int
}

// CheckConnection tests every chunk but the largest for a path of passable
// cells to the reference component. Chunks that find one join it; the
// cells of chunks that do not are flagged as not connected.
func (c *Classifier) CheckConnection(cp *loop.Checkpoint) (bool, error) {
	n := c.grid.Len()
	chunks := &c.chunks
	st := &c.connection
	err := cp.InitOnce(func() error {
		cp.Target = n
		*st = connectionState{
			ref:   mapset.New[int](),
			pos:   1,
			stamp: make([]int, n),
		}
		if len(chunks.order) > 0 {
			st.ref.Put(chunks.order[0])
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	inRef := func(id int) bool {
		k := chunks.of[id]
		return k >= 0 && st.ref.Has(k)
	}

	b := cp.Budget()
	for st.pos < len(chunks.order) {
		chunk := &chunks.list[chunks.order[st.pos]]

		switch {
		case st.marking:
			if st.mark == len(chunk.Cells) {
				st.marking = false
				st.pos++
				continue
			}
			if !b.Take() {
				return b.Yield()
			}
			c.grid.At(chunk.Cells[st.mark]).Connected = false
			st.mark++

		case st.open:
			if st.head == len(st.queue) {
				st.open = false
				st.marking = true
				st.mark = 0
				continue
			}
			if !b.Take() {
				return b.Yield()
			}
			id := st.queue[st.head]
			st.head++
			if inRef(id) {
				st.ref.Put(chunk.ID)
				st.open = false
				st.pos++
				continue
			}
			c.neighborIDs(c.grid.At(id), 1, func(nid int) bool {
				if st.stamp[nid] != st.pos && c.grid.At(nid).AreaBlockLevel >= passableLevel {
					st.stamp[nid] = st.pos
					st.queue = append(st.queue, nid)
				}
				return true
			})

		default:
			start := chunk.Cells[0]
			st.stamp[start] = st.pos
			st.queue = append(st.queue[:0], start)
			st.head = 0
			st.open = true
		}
	}
	st.queue = nil
	return true, nil
}
