package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/world"
)

// Record bundle file names. Neighbor files are N1.data .. N<range>.data.
const (
	ParamsFile      = "Params.data"
	TileIndicesFile = "TileIndices.data"
	TilesFile       = "Tiles.data"
	neighborPrefix  = "N"
	dataExt         = ".data"
)

// NeighborFile returns the bundle file name of the radius-r neighbor lists.
func NeighborFile(radius int) string {
	return neighborPrefix + strconv.Itoa(radius) + dataExt
}

// Bundle is a directory of plain-text grid records:
//
//	Params.data       size|range|nrange
//	TileIndices.data  q,r|index      one line per cell, index order
//	Tiles.data        q,r|x,y        positions with two decimals
//	N<r>.data         q,r q,r ...    one line per cell, index order
type Bundle struct {
	Dir string
}

// LoadRecords reads the bundle.
func (b Bundle) LoadRecords() (world.Records, error) {
	return ReadBundle(b.Dir)
}

// WriteBundle writes recs into dir, creating it if needed.
func WriteBundle(dir string, recs world.Records) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bundle dir: %w", err)
	}

	p := recs.Params
	err := writeLines(filepath.Join(dir, ParamsFile), 1, func(int) string {
		return strings.Join([]string{
			formatFloat(p.CellSize),
			strconv.Itoa(p.GridRange),
			strconv.Itoa(p.NeighborRange),
		}, "|")
	})
	if err != nil {
		return err
	}

	err = writeLines(filepath.Join(dir, TileIndicesFile), len(recs.Indices), func(i int) string {
		r := recs.Indices[i]
		return formatCoord(r.Coord) + "|" + strconv.Itoa(r.Index)
	})
	if err != nil {
		return err
	}

	err = writeLines(filepath.Join(dir, TilesFile), len(recs.Tiles), func(i int) string {
		t := recs.Tiles[i]
		return formatCoord(t.Coord) + "|" + formatFloat(t.Position.X()) + "," + formatFloat(t.Position.Y())
	})
	if err != nil {
		return err
	}

	for r, set := range recs.Neighbors {
		err := writeLines(filepath.Join(dir, NeighborFile(r+1)), len(set), func(i int) string {
			parts := make([]string, len(set[i].Coords))
			for j, c := range set[i].Coords {
				parts[j] = formatCoord(c)
			}
			return strings.Join(parts, " ")
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadBundle parses the bundle in dir. Missing files are ErrMissingResource;
// lines with the wrong shape are ErrMalformedRecord.
func ReadBundle(dir string) (world.Records, error) {
	var recs world.Records

	err := readLines(filepath.Join(dir, ParamsFile), func(n int, line string) error {
		if n > 1 {
			return fmt.Errorf("extra line: %w", fault.ErrMalformedRecord)
		}
		p, err := parseParams(line)
		recs.Params = p
		return err
	})
	if err != nil {
		return recs, err
	}
	if recs.Params.NeighborRange <= 0 {
		return recs, fmt.Errorf("%s: neighbor range %d: %w", ParamsFile, recs.Params.NeighborRange, fault.ErrMalformedRecord)
	}

	err = readLines(filepath.Join(dir, TileIndicesFile), func(_ int, line string) error {
		r, err := parseIndexLine(line)
		recs.Indices = append(recs.Indices, r)
		return err
	})
	if err != nil {
		return recs, err
	}

	err = readLines(filepath.Join(dir, TilesFile), func(_ int, line string) error {
		t, err := parseTileLine(line)
		recs.Tiles = append(recs.Tiles, t)
		return err
	})
	if err != nil {
		return recs, err
	}

	recs.Neighbors = make([][]world.NeighborRecord, recs.Params.NeighborRange)
	for r := 1; r <= recs.Params.NeighborRange; r++ {
		err := readLines(filepath.Join(dir, NeighborFile(r)), func(n int, line string) error {
			coords, err := parseCoordList(line)
			recs.Neighbors[r-1] = append(recs.Neighbors[r-1], world.NeighborRecord{
				Index:  n - 1,
				Radius: r,
				Coords: coords,
			})
			return err
		})
		if err != nil {
			return recs, err
		}
	}
	return recs, nil
}

func writeLines(path string, n int, line func(i int) string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		w.WriteString(line(i))
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// readLines calls fn with every line of path, numbered from 1. Blank lines
// count; a neighbor list may be empty.
func readLines(path string, fn func(n int, line string) error) error {
	name := filepath.Base(path)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, fault.ErrMissingResource)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		if err := fn(n, strings.TrimRight(sc.Text(), "\r")); err != nil {
			return fmt.Errorf("%s line %d: %w", name, n, err)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	return nil
}

// fields splits s on sep, dropping empty parts, and requires exactly want of them.
func fields(s, sep string, want int) ([]string, error) {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("%q: want %d fields separated by %q, got %d: %w",
			s, want, sep, len(out), fault.ErrMalformedRecord)
	}
	return out, nil
}

func parseParams(line string) (world.Params, error) {
	var p world.Params
	f, err := fields(line, "|", 3)
	if err != nil {
		return p, err
	}
	if p.CellSize, err = parseFloat(f[0]); err != nil {
		return p, err
	}
	if p.GridRange, err = parseInt(f[1]); err != nil {
		return p, err
	}
	p.NeighborRange, err = parseInt(f[2])
	return p, err
}

func parseIndexLine(line string) (world.IndexRecord, error) {
	var r world.IndexRecord
	f, err := fields(line, "|", 2)
	if err != nil {
		return r, err
	}
	if r.Coord, err = parseCoord(f[0]); err != nil {
		return r, err
	}
	r.Index, err = parseInt(f[1])
	return r, err
}

func parseTileLine(line string) (world.TileRecord, error) {
	var t world.TileRecord
	f, err := fields(line, "|", 2)
	if err != nil {
		return t, err
	}
	if t.Coord, err = parseCoord(f[0]); err != nil {
		return t, err
	}
	xy, err := fields(f[1], ",", 2)
	if err != nil {
		return t, err
	}
	x, err := parseFloat(xy[0])
	if err != nil {
		return t, err
	}
	y, err := parseFloat(xy[1])
	t.Position = mgl64.Vec2{x, y}
	return t, err
}

func parseCoordList(line string) ([]world.HexCoord, error) {
	var out []world.HexCoord
	for _, s := range strings.Fields(line) {
		c, err := parseCoord(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCoord(s string) (world.HexCoord, error) {
	var c world.HexCoord
	f, err := fields(s, ",", 2)
	if err != nil {
		return c, err
	}
	if c.Q, err = parseInt(f[0]); err != nil {
		return c, err
	}
	c.R, err = parseInt(f[1])
	return c, err
}

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", fault.ErrMalformedRecord, err)
	}
	return v, nil
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", fault.ErrMalformedRecord, err)
	}
	return v, nil
}

func formatCoord(c world.HexCoord) string {
	return strconv.Itoa(c.Q) + "," + strconv.Itoa(c.R)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
