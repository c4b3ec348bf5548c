// Package engine drives grid generation and terrain classification as an
// explicit state machine. Each call to Workflow.Advance runs one bounded
// slice of the active pass; a Driver calls it on a timer.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/hexgrid/internal/classify"
	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/terrain"
	"github.com/talgya/hexgrid/internal/world"
)

// State is the active step of a workflow.
type State int

const (
	StateInit State = iota
	StateGenerateCenter
	StateGenerateNeighbors
	StateLoadRecords
	StateIngestTiles
	StateIngestNeighbors
	StateSaveGrid
	StateCreateVertices
	StateSampleHeights
	StateComputeNormals
	StateAreaBlockLevel
	StateAreaBlockLevelEx
	StateBreakChunks
	StateCheckChunkConnection
	StateLabelRegions
	StateFindIslands
	StateBuildingBlockLevel
	StateBuildingBlockLevelEx
	StateSaveResults
	StateDone
	StateError
)

var stateNames = [...]string{
	StateInit:                 "init",
	StateGenerateCenter:       "generate_center",
	StateGenerateNeighbors:    "generate_neighbors",
	StateLoadRecords:          "load_records",
	StateIngestTiles:          "ingest_tiles",
	StateIngestNeighbors:      "ingest_neighbors",
	StateSaveGrid:             "save_grid",
	StateCreateVertices:       "create_vertices",
	StateSampleHeights:        "sample_heights",
	StateComputeNormals:       "compute_normals",
	StateAreaBlockLevel:       "area_block_level",
	StateAreaBlockLevelEx:     "area_block_level_ex",
	StateBreakChunks:          "break_chunks",
	StateCheckChunkConnection: "check_chunk_connection",
	StateLabelRegions:         "label_regions",
	StateFindIslands:          "find_islands",
	StateBuildingBlockLevel:   "building_block_level",
	StateBuildingBlockLevelEx: "building_block_level_ex",
	StateSaveResults:          "save_results",
	StateDone:                 "done",
	StateError:                "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown workflow state %q: %w", b, fault.ErrMalformedRecord)
}

// Terminal reports whether no further Advance can change the state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// Mode selects where the grid comes from.
type Mode string

const (
	ModeGenerate Mode = "generate"
	ModeLoad     Mode = "load"
)

// Store persists a generated grid and its classification.
type Store interface {
	SaveGrid(g *world.Grid) error
	SaveResults(g *world.Grid) error
}

// RecordSource supplies the records of a previously generated grid.
type RecordSource interface {
	LoadRecords() (world.Records, error)
}

// Options configure one workflow.
type Options struct {
	Mode     Mode
	Params   world.Params // ignored in load mode
	Limits   loop.Limits
	Settings classify.Settings
	Store    Store        // optional; save states are skipped without it
	Records  RecordSource // required in load mode
}

// Result reports the outcome of one Advance.
type Result struct {
	State State
	// Delay is how long the caller should wait before the next Advance.
	Delay time.Duration
	Done  bool
}

// Workflow runs one grid through generation (or loading) and classification.
// It is not safe for concurrent use; only the goroutine calling Advance may
// touch it or its grid while a run is active.
type Workflow struct {
	opts  Options
	src   terrain.Source
	order []State

	id    string
	pos   int // index of state in order
	state State
	err   error
	cp    *loop.Checkpoint

	grid   *world.Grid
	gen    *world.Generator
	loader *world.Loader
	cls    *classify.Classifier
}

// New validates the configuration and returns a workflow in StateInit.
// Configuration errors are reported here, before any pass runs.
func New(opts Options, src terrain.Source) (*Workflow, error) {
	if err := opts.Limits.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Settings.BlockRule != "" {
		if _, err := classify.CompileRule(opts.Settings.BlockRule); err != nil {
			return nil, err
		}
	}
	if err := terrain.Check(src); err != nil {
		return nil, err
	}
	switch opts.Mode {
	case ModeGenerate, "":
		opts.Mode = ModeGenerate
		if err := opts.Params.Validate(); err != nil {
			return nil, err
		}
	case ModeLoad:
		if opts.Records == nil {
			return nil, fmt.Errorf("load mode without a record source: %w", fault.ErrConfiguration)
		}
	default:
		return nil, fmt.Errorf("unknown mode %q: %w", opts.Mode, fault.ErrConfiguration)
	}
	if need := NestDepth(opts.Mode); opts.Limits.DepthLimit < need {
		return nil, fmt.Errorf("depth limit %d below the %d levels %s mode needs: %w",
			opts.Limits.DepthLimit, need, opts.Mode, fault.ErrConfiguration)
	}

	w := &Workflow{opts: opts, src: src}
	w.order = w.plan()
	w.Restart()
	return w, nil
}

// NestDepth is the smallest loop depth limit a run in mode can finish with.
func NestDepth(mode Mode) int {
	if mode == ModeLoad {
		return max(world.LoaderNestDepth, classify.MaxNestDepth)
	}
	return max(world.MaxNestDepth, classify.MaxNestDepth)
}

// plan lists the states a run visits, in order.
func (w *Workflow) plan() []State {
	order := []State{StateInit}
	if w.opts.Mode == ModeLoad {
		order = append(order, StateLoadRecords, StateIngestTiles, StateIngestNeighbors)
	} else {
		order = append(order, StateGenerateCenter, StateGenerateNeighbors)
		if w.opts.Store != nil {
			order = append(order, StateSaveGrid)
		}
	}
	order = append(order,
		StateCreateVertices,
		StateSampleHeights,
		StateComputeNormals,
		StateAreaBlockLevel,
		StateAreaBlockLevelEx,
		StateBreakChunks,
		StateCheckChunkConnection,
		StateLabelRegions,
		StateFindIslands,
		StateBuildingBlockLevel,
		StateBuildingBlockLevelEx,
	)
	if w.opts.Store != nil {
		order = append(order, StateSaveResults)
	}
	return append(order, StateDone)
}

// Restart discards the grid and every checkpoint and returns to StateInit
// under a new run id.
func (w *Workflow) Restart() {
	w.id = uuid.NewString()
	w.pos = 0
	w.state = w.order[0]
	w.err = nil
	w.cp = &loop.Checkpoint{Limits: w.opts.Limits}
	w.grid, w.gen, w.loader, w.cls = nil, nil, nil, nil
}

// ID identifies the current run. It changes on Restart.
func (w *Workflow) ID() string {
	return w.id
}

// State returns the active state.
func (w *Workflow) State() State {
	return w.state
}

// Err returns the reason the workflow entered StateError, or nil.
func (w *Workflow) Err() error {
	return w.err
}

// Progress returns the completion of the active pass in [0, 1].
func (w *Workflow) Progress() float64 {
	if w.state == StateDone {
		return 1
	}
	return w.cp.Progress()
}

// Stage returns the position of the active state and the number of states
// in the run.
func (w *Workflow) Stage() (int, int) {
	if w.state == StateError {
		return w.pos, len(w.order)
	}
	return w.pos + 1, len(w.order)
}

// Checkpoint returns a copy of the active pass's checkpoint.
func (w *Workflow) Checkpoint() loop.Checkpoint {
	cp := *w.cp
	cp.Saved = append([]int(nil), w.cp.Saved...)
	return cp
}

// Grid returns the grid of the current run, or nil before one exists.
func (w *Workflow) Grid() *world.Grid {
	return w.grid
}

// Classifier returns the classifier of the current run, or nil before
// classification starts.
func (w *Workflow) Classifier() *classify.Classifier {
	return w.cls
}

// Advance runs one slice of the active state. Terminal states are sticky.
func (w *Workflow) Advance() Result {
	if w.state.Terminal() {
		return Result{State: w.state, Done: true}
	}

	done, err := w.step()
	if err != nil {
		w.fail(err)
		return Result{State: w.state, Done: true}
	}
	if !done {
		return Result{State: w.state, Delay: w.opts.Limits.Rate}
	}

	slog.Info("workflow pass complete",
		"run", w.id,
		"state", w.state,
		"items", humanize.Comma(int64(w.cp.Count)),
	)
	w.pos++
	w.state = w.order[w.pos]
	w.cp = &loop.Checkpoint{Limits: w.opts.Limits}
	if w.state == StateDone {
		slog.Info("workflow done", "run", w.id, "cells", humanize.Comma(int64(w.grid.Len())))
	}
	return Result{State: w.state, Done: w.state == StateDone}
}

func (w *Workflow) fail(err error) {
	w.err = fmt.Errorf("%s: %w", w.state, err)
	slog.Error("workflow failed", "run", w.id, "state", w.state, "error", err)
	w.state = StateError
}

// step dispatches to the pass behind the active state.
func (w *Workflow) step() (bool, error) {
	cp := w.cp
	switch w.state {
	case StateInit:
		return true, nil

	case StateGenerateCenter:
		if w.gen == nil {
			w.grid = world.NewGrid(w.opts.Params)
			w.gen = world.NewGenerator(w.grid)
		}
		return w.gen.Centers(cp)
	case StateGenerateNeighbors:
		return w.gen.Neighbors(cp)

	case StateLoadRecords:
		recs, err := w.opts.Records.LoadRecords()
		if err != nil {
			return false, err
		}
		w.loader = world.NewLoader(recs)
		w.grid = w.loader.Grid()
		return true, nil
	case StateIngestTiles:
		return w.loader.Tiles(cp)
	case StateIngestNeighbors:
		return w.loader.Neighbors(cp)

	case StateSaveGrid:
		return true, w.opts.Store.SaveGrid(w.grid)
	case StateSaveResults:
		return true, w.opts.Store.SaveResults(w.grid)
	}

	if w.cls == nil {
		cls, err := classify.New(w.grid, w.src, w.opts.Settings)
		if err != nil {
			return false, err
		}
		w.cls = cls
	}
	switch w.state {
	case StateCreateVertices:
		return w.cls.Vertices(cp)
	case StateSampleHeights:
		return w.cls.Heights(cp)
	case StateComputeNormals:
		return w.cls.Normals(cp)
	case StateAreaBlockLevel:
		return w.cls.AreaLevel(cp)
	case StateAreaBlockLevelEx:
		return w.cls.AreaLevelEx(cp)
	case StateBreakChunks:
		return w.cls.BreakChunks(cp)
	case StateCheckChunkConnection:
		return w.cls.CheckConnection(cp)
	case StateLabelRegions:
		return w.cls.LabelRegions(cp)
	case StateFindIslands:
		return w.cls.FindIslands(cp)
	case StateBuildingBlockLevel:
		return w.cls.BuildingLevel(cp)
	case StateBuildingBlockLevelEx:
		return w.cls.BuildingLevelEx(cp)
	}
	return false, fmt.Errorf("no pass for state %s: %w", w.state, fault.ErrInvariant)
}
