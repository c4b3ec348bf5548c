package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Layout converts hex steps into flat-top 2D offsets.
// Adjacent cell centers are √3·CellSize apart; corners sit CellSize from the center.
type Layout struct {
	CellSize float64
	offsets  [6]mgl64.Vec2
	corners  [6]mgl64.Vec2
}

// NewLayout precomputes the six step offsets and six corner offsets.
func NewLayout(cellSize float64) Layout {
	l := Layout{CellSize: cellSize}
	spacing := cellSize * math.Sqrt(3)
	for i := 0; i < 6; i++ {
		// Direction i points 30° − 60°·i from the x axis.
		a := mgl64.DegToRad(30 - 60*float64(i))
		l.offsets[i] = mgl64.Vec2{math.Cos(a), math.Sin(a)}.Mul(spacing)

		c := mgl64.DegToRad(60 * float64(i))
		l.corners[i] = mgl64.Vec2{math.Cos(c), math.Sin(c)}.Mul(cellSize)
	}
	return l
}

// Offset returns the 2D step for one move along HexNeighborDirections[dir].
func (l Layout) Offset(dir int) mgl64.Vec2 {
	return l.offsets[dir]
}

// Corner returns the offset of corner i from a cell center.
func (l Layout) Corner(i int) mgl64.Vec2 {
	return l.corners[i]
}
