// Package loop runs long multi-cell passes in bounded slices.
//
// A pass owns one Checkpoint. Each invocation of the pass spends at most
// Limits.CountLimit items and then yields; the checkpoint records where the
// pass stopped so the next invocation continues with the exact item that
// was not yet processed.
package loop

import (
	"fmt"
	"time"

	"github.com/talgya/hexgrid/internal/fault"
)

// ErrNoProgress is returned when an invocation yields without processing an item.
var ErrNoProgress = fmt.Errorf("loop: yielded without progress: %w", fault.ErrInvariant)

// Limits bound the work of a single invocation.
type Limits struct {
	CountLimit int           `yaml:"count_limit" json:"count_limit"` // items per invocation
	DepthLimit int           `yaml:"depth_limit" json:"depth_limit"` // nesting levels a pass may declare
	Rate       time.Duration `yaml:"rate" json:"rate"`               // delay before resuming a yielded pass
}

// DefaultLimits returns the limits used when the configuration leaves them unset.
func DefaultLimits() Limits {
	return Limits{
		CountLimit: 3000,
		DepthLimit: 4,
		Rate:       10 * time.Millisecond,
	}
}

// Validate rejects non-positive budgets.
func (l Limits) Validate() error {
	switch {
	case l.CountLimit <= 0:
		return fmt.Errorf("loop count limit %d: %w", l.CountLimit, fault.ErrConfiguration)
	case l.DepthLimit <= 0:
		return fmt.Errorf("loop depth limit %d: %w", l.DepthLimit, fault.ErrConfiguration)
	case l.Rate < 0:
		return fmt.Errorf("loop rate %s: %w", l.Rate, fault.ErrConfiguration)
	}
	return nil
}

// Checkpoint is the resumable state of one pass.
type Checkpoint struct {
	// Saved holds the per-level position of the next unprocessed item.
	// Empty when the pass is not suspended inside a nest.
	Saved []int `json:"saved,omitempty"`
	// Moved is the outermost level whose index changed at the saved item.
	Moved       int    `json:"moved"`
	Initialized bool   `json:"initialized"`
	Count       int    `json:"count"`
	Target      int    `json:"target"`
	Limits      Limits `json:"limits"`
}

// New returns an empty checkpoint, or a configuration error when limits are invalid.
func New(limits Limits) (*Checkpoint, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Checkpoint{Limits: limits}, nil
}

// InitOnce runs fn on the first invocation of the pass only.
// A failing fn leaves the checkpoint uninitialized.
func (c *Checkpoint) InitOnce(fn func() error) error {
	if c.Initialized {
		return nil
	}
	if err := fn(); err != nil {
		return err
	}
	c.Initialized = true
	return nil
}

// Reset discards all progress so the pass restarts from scratch.
func (c *Checkpoint) Reset() {
	*c = Checkpoint{Limits: c.Limits}
}

// Suspended reports whether a nest position is waiting to be resumed.
func (c *Checkpoint) Suspended() bool {
	return len(c.Saved) > 0
}

// Progress returns Count/Target clamped to [0, 1]. It is 0 while no target is set.
func (c *Checkpoint) Progress() float64 {
	if c.Target <= 0 {
		return 0
	}
	p := float64(c.Count) / float64(c.Target)
	if p > 1 {
		return 1
	}
	return p
}

// Budget returns the item allowance for one invocation.
func (c *Checkpoint) Budget() *Budget {
	return &Budget{cp: c}
}

// Budget counts items spent during one invocation.
// Use it directly for passes that are not nested loops, such as BFS frontiers.
type Budget struct {
	cp    *Checkpoint
	spent int
}

// Take spends one item. It returns false once the invocation's allowance is used up.
func (b *Budget) Take() bool {
	if b.spent >= b.cp.Limits.CountLimit {
		return false
	}
	b.spent++
	b.cp.Count++
	return true
}

// Spent returns the number of items taken so far in this invocation.
func (b *Budget) Spent() int {
	return b.spent
}

// Yield ends an unfinished invocation. It fails when nothing was processed.
func (b *Budget) Yield() (bool, error) {
	if b.spent == 0 {
		return false, ErrNoProgress
	}
	return false, nil
}
