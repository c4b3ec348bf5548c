// Package persistence stores grids, classification results and run
// summaries in SQLite, and reads and writes the plain-text record bundle.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hexgrid/internal/engine"
	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/world"
)

// runTimeLayout has a fixed width so stored timestamps sort as text.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps a SQLite connection for grid persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS grid_params (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		cell_size REAL NOT NULL,
		grid_range INTEGER NOT NULL,
		neighbor_range INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tiles (
		idx INTEGER PRIMARY KEY,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		UNIQUE (q, r)
	);

	CREATE TABLE IF NOT EXISTS neighbors (
		idx INTEGER NOT NULL,
		radius INTEGER NOT NULL,
		coords_json TEXT NOT NULL,
		PRIMARY KEY (radius, idx)
	);

	CREATE TABLE IF NOT EXISTS cell_results (
		idx INTEGER PRIMARY KEY,
		center_height REAL NOT NULL,
		avg_height REAL NOT NULL,
		angle_to_up REAL NOT NULL,
		area_level INTEGER NOT NULL,
		building_level INTEGER NOT NULL,
		is_land INTEGER NOT NULL,
		connected INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		reason TEXT NOT NULL,
		progress REAL NOT NULL,
		checkpoint_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS grid_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_updated ON runs(updated_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

type paramsRow struct {
	CellSize      float64 `db:"cell_size"`
	GridRange     int     `db:"grid_range"`
	NeighborRange int     `db:"neighbor_range"`
}

type tileRow struct {
	Idx int     `db:"idx"`
	Q   int     `db:"q"`
	R   int     `db:"r"`
	X   float64 `db:"x"`
	Y   float64 `db:"y"`
}

type neighborRow struct {
	Idx    int    `db:"idx"`
	Radius int    `db:"radius"`
	Coords string `db:"coords_json"`
}

// CellResult is the persisted classification of one cell.
type CellResult struct {
	Index         int     `db:"idx" json:"index"`
	CenterHeight  float64 `db:"center_height" json:"center_height"`
	AvgHeight     float64 `db:"avg_height" json:"avg_height"`
	AngleToUp     float64 `db:"angle_to_up" json:"angle_to_up"`
	AreaLevel     int     `db:"area_level" json:"area_level"`
	BuildingLevel int     `db:"building_level" json:"building_level"`
	IsLand        bool    `db:"is_land" json:"is_land"`
	Connected     bool    `db:"connected" json:"connected"`
}

type runRow struct {
	ID         string  `db:"id"`
	State      string  `db:"state"`
	Reason     string  `db:"reason"`
	Progress   float64 `db:"progress"`
	Checkpoint string  `db:"checkpoint_json"`
	Updated    string  `db:"updated_at"`
}

// SaveGrid writes the grid records (full replace). Earlier results are
// dropped with them.
func (db *DB) SaveGrid(g *world.Grid) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"grid_params", "tiles", "neighbors", "cell_results"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.Exec(
		"INSERT INTO grid_params (id, cell_size, grid_range, neighbor_range) VALUES (1, ?, ?, ?)",
		g.Params.CellSize, g.Params.GridRange, g.Params.NeighborRange,
	)
	if err != nil {
		return fmt.Errorf("insert params: %w", err)
	}

	tiles, err := tx.Preparex("INSERT INTO tiles (idx, q, r, x, y) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer tiles.Close()
	for i, t := range g.TileRecords() {
		if _, err := tiles.Exec(i, t.Coord.Q, t.Coord.R, t.Position.X(), t.Position.Y()); err != nil {
			return fmt.Errorf("insert tile %d: %w", i, err)
		}
	}

	nbrs, err := tx.Preparex("INSERT INTO neighbors (idx, radius, coords_json) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer nbrs.Close()
	for r := 1; r <= g.Params.NeighborRange; r++ {
		for _, rec := range g.NeighborRecords(r) {
			coords, err := json.Marshal(rec.Coords)
			if err != nil {
				return fmt.Errorf("encode neighbors %d/%d: %w", rec.Index, rec.Radius, err)
			}
			if _, err := nbrs.Exec(rec.Index, rec.Radius, string(coords)); err != nil {
				return fmt.Errorf("insert neighbors %d/%d: %w", rec.Index, rec.Radius, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("grid saved", "cells", humanize.Comma(int64(g.Len())))
	return db.SaveMeta("grid_cells", strconv.Itoa(g.Len()))
}

// LoadRecords reads back the grid records written by SaveGrid.
func (db *DB) LoadRecords() (world.Records, error) {
	var recs world.Records

	var p paramsRow
	err := db.conn.Get(&p, "SELECT cell_size, grid_range, neighbor_range FROM grid_params WHERE id = 1")
	if errors.Is(err, sql.ErrNoRows) {
		return recs, fmt.Errorf("no saved grid: %w", fault.ErrMissingResource)
	}
	if err != nil {
		return recs, fmt.Errorf("load params: %w", err)
	}
	recs.Params = world.Params{CellSize: p.CellSize, GridRange: p.GridRange, NeighborRange: p.NeighborRange}

	var tiles []tileRow
	if err := db.conn.Select(&tiles, "SELECT idx, q, r, x, y FROM tiles ORDER BY idx"); err != nil {
		return recs, fmt.Errorf("load tiles: %w", err)
	}
	for _, t := range tiles {
		c := world.HexCoord{Q: t.Q, R: t.R}
		recs.Indices = append(recs.Indices, world.IndexRecord{Coord: c, Index: t.Idx})
		recs.Tiles = append(recs.Tiles, world.TileRecord{Coord: c, Position: mgl64.Vec2{t.X, t.Y}})
	}

	var nbrs []neighborRow
	if err := db.conn.Select(&nbrs, "SELECT idx, radius, coords_json FROM neighbors ORDER BY radius, idx"); err != nil {
		return recs, fmt.Errorf("load neighbors: %w", err)
	}
	recs.Neighbors = make([][]world.NeighborRecord, max(p.NeighborRange, 0))
	for _, n := range nbrs {
		if n.Radius < 1 || n.Radius > p.NeighborRange {
			return recs, fmt.Errorf("neighbors of %d at radius %d: %w", n.Idx, n.Radius, fault.ErrMalformedRecord)
		}
		rec := world.NeighborRecord{Index: n.Idx, Radius: n.Radius}
		if err := json.Unmarshal([]byte(n.Coords), &rec.Coords); err != nil {
			return recs, fmt.Errorf("neighbors of %d at radius %d: %w: %w", n.Idx, n.Radius, fault.ErrMalformedRecord, err)
		}
		recs.Neighbors[n.Radius-1] = append(recs.Neighbors[n.Radius-1], rec)
	}
	return recs, nil
}

// SaveResults writes every cell's classification (full replace).
func (db *DB) SaveResults(g *world.Grid) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cell_results"); err != nil {
		return err
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO cell_results
		(idx, center_height, avg_height, angle_to_up, area_level, building_level, is_land, connected)
		VALUES (:idx, :center_height, :avg_height, :angle_to_up, :area_level, :building_level, :is_land, :connected)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range g.Cells {
		if _, err := stmt.Exec(ResultOf(i, &g.Cells[i])); err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("classification saved", "cells", humanize.Comma(int64(g.Len())))
	return db.SaveMeta("results_saved_at", time.Now().UTC().Format(time.RFC3339))
}

// ResultOf extracts the persisted fields of cell id.
func ResultOf(id int, c *world.Cell) CellResult {
	return CellResult{
		Index:         id,
		CenterHeight:  c.CenterHeight,
		AvgHeight:     c.AvgHeight,
		AngleToUp:     c.AngleToUp,
		AreaLevel:     c.AreaBlockLevel,
		BuildingLevel: c.BuildingBlockLevel,
		IsLand:        c.IsLand,
		Connected:     c.Connected,
	}
}

// Results returns the saved classification in cell index order.
func (db *DB) Results() ([]CellResult, error) {
	var out []CellResult
	err := db.conn.Select(&out, `SELECT idx, center_height, avg_height, angle_to_up,
		area_level, building_level, is_land, connected FROM cell_results ORDER BY idx`)
	return out, err
}

// LoadClassified rebuilds the last saved grid with its saved classification,
// so a restarted process can serve it before its own run finishes.
func (db *DB) LoadClassified() (*world.Grid, error) {
	recs, err := db.LoadRecords()
	if err != nil {
		return nil, err
	}
	results, err := db.Results()
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no saved classification: %w", fault.ErrMissingResource)
	}

	l := world.NewLoader(recs)
	for _, pass := range []func(*loop.Checkpoint) (bool, error){l.Tiles, l.Neighbors} {
		cp, err := loop.New(loop.Limits{CountLimit: math.MaxInt, DepthLimit: world.LoaderNestDepth})
		if err != nil {
			return nil, err
		}
		if _, err := pass(cp); err != nil {
			return nil, err
		}
	}

	g := l.Grid()
	if len(results) != g.Len() {
		return nil, fmt.Errorf("%d results for %d cells: %w", len(results), g.Len(), fault.ErrMalformedRecord)
	}
	for _, r := range results {
		if r.Index < 0 || r.Index >= g.Len() {
			return nil, fmt.Errorf("result for cell %d: %w", r.Index, fault.ErrMalformedRecord)
		}
		c := g.At(r.Index)
		c.CenterHeight, c.AvgHeight, c.AngleToUp = r.CenterHeight, r.AvgHeight, r.AngleToUp
		c.AreaBlockLevel, c.BuildingBlockLevel = r.AreaLevel, r.BuildingLevel
		c.IsLand, c.Connected = r.IsLand, r.Connected
	}
	slog.Info("saved classification loaded", "cells", humanize.Comma(int64(g.Len())))
	return g, nil
}

// SaveRun records a run summary, replacing any earlier summary of the same run.
func (db *DB) SaveRun(run engine.Run) error {
	cp, err := json.Marshal(run.Checkpoint)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	_, err = db.conn.NamedExec(`INSERT OR REPLACE INTO runs
		(id, state, reason, progress, checkpoint_json, updated_at)
		VALUES (:id, :state, :reason, :progress, :checkpoint_json, :updated_at)`,
		runRow{
			ID:         run.ID,
			State:      run.State.String(),
			Reason:     run.Reason,
			Progress:   run.Progress,
			Checkpoint: string(cp),
			Updated:    run.Updated.UTC().Format(runTimeLayout),
		})
	return err
}

// LatestRun returns the most recently updated run summary.
func (db *DB) LatestRun() (engine.Run, error) {
	var run engine.Run
	var row runRow
	err := db.conn.Get(&row, `SELECT id, state, reason, progress, checkpoint_json, updated_at
		FROM runs ORDER BY updated_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("no recorded run: %w", fault.ErrMissingResource)
	}
	if err != nil {
		return run, err
	}

	run.ID, run.Reason, run.Progress = row.ID, row.Reason, row.Progress
	if err := run.State.UnmarshalText([]byte(row.State)); err != nil {
		return run, err
	}
	if err := json.Unmarshal([]byte(row.Checkpoint), &run.Checkpoint); err != nil {
		return run, fmt.Errorf("run %s checkpoint: %w: %w", row.ID, fault.ErrMalformedRecord, err)
	}
	if run.Updated, err = time.Parse(runTimeLayout, row.Updated); err != nil {
		return run, fmt.Errorf("run %s timestamp: %w: %w", row.ID, fault.ErrMalformedRecord, err)
	}
	return run, nil
}

// SaveMeta stores a key-value pair in grid metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO grid_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM grid_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("meta %q: %w", key, fault.ErrMissingResource)
	}
	return value, err
}
