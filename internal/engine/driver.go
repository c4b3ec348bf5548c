package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/world"
)

// Run is the persisted summary of a workflow run.
type Run struct {
	ID         string          `json:"id"`
	State      State           `json:"state"`
	Reason     string          `json:"reason,omitempty"`
	Progress   float64         `json:"progress"`
	Checkpoint loop.Checkpoint `json:"checkpoint"`
	Updated    time.Time       `json:"updated"`
}

// Recorder stores run summaries between passes.
type Recorder interface {
	SaveRun(run Run) error
}

// Status is a point-in-time view of the driver for concurrent readers.
type Status struct {
	RunID    string    `json:"run_id"`
	State    string    `json:"state"`
	Stage    int       `json:"stage"`
	Stages   int       `json:"stages"`
	Progress float64   `json:"progress"`
	Steps    uint64    `json:"steps"`
	Cells    int       `json:"cells"`
	Done     bool      `json:"done"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
}

// Driver calls Advance on a workflow until it finishes, waiting out each
// yield's delay. Only the driver goroutine touches the workflow; other
// goroutines read Status and the finished grid.
type Driver struct {
	wf       *Workflow
	recorder Recorder // may be nil

	// OnDone is called from the driver goroutine each time a run reaches
	// StateDone. Set it before Run.
	OnDone func(g *world.Grid)

	restart chan struct{}

	mu       sync.RWMutex
	status   Status
	finished *world.Grid
	steps    uint64
}

// NewDriver returns a driver for wf. rec may be nil.
func NewDriver(wf *Workflow, rec Recorder) *Driver {
	d := &Driver{
		wf:       wf,
		recorder: rec,
		restart:  make(chan struct{}, 1),
	}
	d.publish(time.Now())
	return d
}

// Status returns the latest published status.
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Grid returns the grid of the last run that reached StateDone, or nil.
// A finished grid is never mutated again.
func (d *Driver) Grid() *world.Grid {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.finished
}

// Preload serves g as the finished grid until a run of this driver reaches
// StateDone. g must not be mutated afterwards.
func (d *Driver) Preload(g *world.Grid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finished = g
}

// Restart asks the driver to discard the current run and start over.
// It does not block; repeated requests before the driver notices collapse
// into one.
func (d *Driver) Restart() {
	select {
	case d.restart <- struct{}{}:
	default:
	}
}

// Run advances the workflow until it is done, fails, or ctx is cancelled.
// A cancelled run keeps its checkpoint; calling Run again resumes it.
func (d *Driver) Run(ctx context.Context) error {
	started := d.Status().Started
	slog.Info("workflow driver started", "run", d.wf.ID(), "state", d.wf.State())

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	last := d.wf.State()
	for {
		select {
		case <-ctx.Done():
			d.record()
			slog.Info("workflow driver paused", "run", d.wf.ID(), "state", d.wf.State())
			return ctx.Err()
		case <-d.restart:
			d.reset()
			started = d.Status().Started
			last = d.wf.State()
			continue
		default:
		}

		res := d.wf.Advance()
		d.steps++
		d.publish(started)

		if res.State != last {
			d.record()
			last = res.State
		}
		if res.Done {
			if res.State == StateDone && d.OnDone != nil {
				d.OnDone(d.wf.Grid())
			}
			return d.wf.Err()
		}
		if res.Delay <= 0 {
			continue
		}

		timer.Reset(res.Delay)
		select {
		case <-ctx.Done():
			d.record()
			slog.Info("workflow driver paused", "run", d.wf.ID(), "state", d.wf.State())
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Serve runs the workflow and then waits for restart requests until ctx is
// cancelled.
func (d *Driver) Serve(ctx context.Context) error {
	for {
		if err := d.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("workflow run failed", "run", d.wf.ID(), "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.restart:
			d.reset()
		}
	}
}

func (d *Driver) reset() {
	d.wf.Restart()
	d.steps = 0
	slog.Info("workflow restarted", "run", d.wf.ID())
	d.publish(time.Now())
}

func (d *Driver) publish(started time.Time) {
	stage, stages := d.wf.Stage()
	st := Status{
		RunID:    d.wf.ID(),
		State:    d.wf.State().String(),
		Stage:    stage,
		Stages:   stages,
		Progress: d.wf.Progress(),
		Steps:    d.steps,
		Done:     d.wf.State().Terminal(),
		Started:  started,
	}
	if g := d.wf.Grid(); g != nil {
		st.Cells = g.Len()
	}
	if err := d.wf.Err(); err != nil {
		st.Error = err.Error()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = st
	if d.wf.State() == StateDone {
		d.finished = d.wf.Grid()
	}
}

// record hands the run summary to the recorder. Failures are only logged.
func (d *Driver) record() {
	if d.recorder == nil {
		return
	}
	run := Run{
		ID:         d.wf.ID(),
		State:      d.wf.State(),
		Progress:   d.wf.Progress(),
		Checkpoint: d.wf.Checkpoint(),
		Updated:    time.Now().UTC(),
	}
	if err := d.wf.Err(); err != nil {
		run.Reason = err.Error()
	}
	if err := d.recorder.SaveRun(run); err != nil {
		slog.Error("save run", "run", run.ID, "error", err)
	}
}
