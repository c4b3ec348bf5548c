package loop

import (
	"fmt"

	"github.com/talgya/hexgrid/internal/fault"
)

// Bound returns the half-open range [start, end) of one nesting level.
// outer holds the current indices of every enclosing level.
type Bound func(outer []int) (start, end int)

// Range is a Bound that ignores the enclosing levels.
func Range(start, end int) Bound {
	return func([]int) (int, int) { return start, end }
}

// Nest iterates a nested loop one item at a time, odometer style.
//
//	it, err := cp.Nest(loop.Range(0, n), loop.Range(0, 6))
//	if err != nil {
//		return false, err
//	}
//	for it.Next() {
//		i, j := it.Index(0), it.Index(1)
//		...
//	}
//	return it.Finish()
//
// When the budget runs out, Next stops before handing out the next item and
// the checkpoint keeps that item's position. The following invocation restores
// every level verbatim; inner levels reached afterwards start over from their
// own start value.
type Nest struct {
	cp      *Checkpoint
	budget  *Budget
	bounds  []Bound
	idx     []int
	ends    []int
	moved   int
	started bool
	done    bool
	stopped bool
	err     error
}

// Nest returns an iterator over the given levels, outermost first.
func (c *Checkpoint) Nest(bounds ...Bound) (*Nest, error) {
	if len(bounds) == 0 {
		return nil, fmt.Errorf("loop: nest without levels: %w", fault.ErrConfiguration)
	}
	if len(bounds) > c.Limits.DepthLimit {
		return nil, fmt.Errorf("loop: nest depth %d exceeds depth limit %d: %w",
			len(bounds), c.Limits.DepthLimit, fault.ErrConfiguration)
	}
	if c.Suspended() && len(c.Saved) != len(bounds) {
		return nil, fmt.Errorf("loop: saved position has %d levels, nest has %d: %w",
			len(c.Saved), len(bounds), fault.ErrInvariant)
	}
	return &Nest{
		cp:     c,
		budget: c.Budget(),
		bounds: bounds,
		idx:    make([]int, len(bounds)),
		ends:   make([]int, len(bounds)),
	}, nil
}

// Next moves to the next item and reports whether the caller should process it.
func (n *Nest) Next() bool {
	if n.done || n.stopped || n.err != nil {
		return false
	}

	var ok bool
	switch {
	case n.started:
		ok = n.seek(len(n.idx)-1, true)
	case n.cp.Suspended():
		ok = n.restore()
	default:
		ok = n.seek(0, false)
		n.moved = 0
	}
	n.started = true
	if n.err != nil {
		return false
	}
	if !ok {
		n.done = true
		n.cp.Saved = nil
		n.cp.Moved = 0
		return false
	}

	if !n.budget.Take() {
		n.stopped = true
		n.cp.Saved = append([]int(nil), n.idx...)
		n.cp.Moved = n.moved
		return false
	}
	return true
}

// Index returns the current index of a level.
func (n *Nest) Index(level int) int {
	return n.idx[level]
}

// Moved reports whether level, or any level enclosing it, changed index at
// the current item. Every level counts as moved on the first item.
func (n *Nest) Moved(level int) bool {
	return level >= n.moved
}

// Done reports whether the whole iteration space has been visited.
func (n *Nest) Done() bool {
	return n.done
}

// Err returns the first failure of the iterator.
func (n *Nest) Err() error {
	if n.err != nil {
		return n.err
	}
	if n.stopped && n.budget.Spent() == 0 {
		return ErrNoProgress
	}
	return nil
}

// Finish is the usual tail of a pass invocation.
func (n *Nest) Finish() (bool, error) {
	if err := n.Err(); err != nil {
		return false, err
	}
	return n.done, nil
}

// seek settles the odometer on the next valid position, starting at level.
// bump advances that level; otherwise it is seeded from its bound. Empty
// ranges carry outward. It returns false once level 0 is exhausted.
func (n *Nest) seek(level int, bump bool) bool {
	first := level
	for {
		if level < 0 {
			return false
		}
		if bump {
			n.idx[level]++
		} else {
			n.idx[level], n.ends[level] = n.bounds[level](n.idx[:level])
		}
		if n.idx[level] >= n.ends[level] {
			level--
			bump = true
			continue
		}
		if bump {
			first = level
		}
		if level == len(n.idx)-1 {
			n.moved = first
			return true
		}
		level++
		bump = false
	}
}

// restore reloads the saved position and re-derives each level's end.
func (n *Nest) restore() bool {
	saved := n.cp.Saved
	for level := range n.idx {
		start, end := n.bounds[level](saved[:level])
		if saved[level] < start || saved[level] >= end {
			n.err = fmt.Errorf("loop: saved index %d at level %d outside [%d, %d): %w",
				saved[level], level, start, end, fault.ErrInvariant)
			return false
		}
		n.idx[level] = saved[level]
		n.ends[level] = end
	}
	n.moved = n.cp.Moved
	n.cp.Saved = nil
	return true
}
