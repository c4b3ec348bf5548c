package classify

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/floats"

	"github.com/talgya/hexgrid/internal/fault"
	"github.com/talgya/hexgrid/internal/loop"
	"github.com/talgya/hexgrid/internal/world"
)

// up is the reference direction slopes are measured against.
var up = mgl64.Vec3{0, 0, 1}

// cellPass runs fn once per cell under cp.
func (c *Classifier) cellPass(cp *loop.Checkpoint, init func() error, fn func(id int, cell *world.Cell) error) (bool, error) {
	n := c.grid.Len()
	err := cp.InitOnce(func() error {
		cp.Target = n
		if init != nil {
			return init()
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	it, err := cp.Nest(loop.Range(0, n))
	if err != nil {
		return false, err
	}
	for it.Next() {
		id := it.Index(0)
		if err := fn(id, c.grid.At(id)); err != nil {
			return false, err
		}
	}
	return it.Finish()
}

// Vertices places the six corners of every cell.
func (c *Classifier) Vertices(cp *loop.Checkpoint) (bool, error) {
	return c.cellPass(cp,
		func() error {
			c.layout = world.NewLayout(c.grid.Params.CellSize)
			return nil
		},
		func(_ int, cell *world.Cell) error {
			for i := range cell.Vertices {
				cell.Vertices[i] = cell.Position.Add(c.layout.Corner(i))
			}
			return nil
		})
}

// Heights samples the terrain at every cell center and corner.
func (c *Classifier) Heights(cp *loop.Checkpoint) (bool, error) {
	return c.cellPass(cp, nil, func(id int, cell *world.Cell) error {
		h, err := c.src.AltitudeAt(cell.Position)
		if err != nil {
			return fmt.Errorf("sample cell %d center: %w: %w", id, fault.ErrMissingResource, err)
		}
		cell.CenterHeight = h
		for i, v := range cell.Vertices {
			if cell.VertexHeights[i], err = c.src.AltitudeAt(v); err != nil {
				return fmt.Errorf("sample cell %d corner %d: %w: %w", id, i, fault.ErrMissingResource, err)
			}
		}
		cell.AvgHeight = floats.Sum(cell.VertexHeights[:]) / float64(len(cell.VertexHeights))
		return nil
	})
}

// Normals derives each cell's surface normal and its angle to up.
func (c *Classifier) Normals(cp *loop.Checkpoint) (bool, error) {
	return c.cellPass(cp, nil, func(_ int, cell *world.Cell) error {
		cell.Normal = surfaceNormal(cell)
		cell.AngleToUp = math.Acos(mgl64.Clamp(up.Dot(cell.Normal), -1, 1))
		return nil
	})
}

// surfaceNormal sums the normals of the two corner triangles (0,2,4) and (1,3,5).
func surfaceNormal(cell *world.Cell) mgl64.Vec3 {
	corner := func(i int) mgl64.Vec3 {
		return cell.Vertices[i].Vec3(cell.VertexHeights[i])
	}
	var n mgl64.Vec3
	for i := 0; i < 2; i++ {
		v0, v1, v2 := corner(i), corner(2+i), corner(4+i)
		n = n.Add(v2.Sub(v0).Cross(v2.Sub(v1)))
	}
	if n.Len() == 0 {
		return up
	}
	return n.Normalize()
}
