// Package world provides the town grid, buildings, layouts and movement.
// Coordinates are integer cells with (0,0) in the top-left corner.
package world

import (
	"fmt"
	"math"
)

// Point is a cell on the town grid.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Add returns p shifted by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

// String returns "(x,y)".
func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// DistSq returns the squared Euclidean distance between two cells.
func DistSq(a, b Point) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Dist returns the Euclidean distance between two cells.
func Dist(a, b Point) float64 {
	return math.Sqrt(float64(DistSq(a, b)))
}

// Manhattan returns the 4-neighbour step distance between two cells.
func Manhattan(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// StepDirections defines the four movement offsets in the fixed order used
// by path search. Changing the order changes which of several equally short
// routes agents take.
var StepDirections = [4]Point{
	{X: 1, Y: 0},
	{X: -1, Y: 0},
	{X: 0, Y: 1},
	{X: 0, Y: -1},
}

// Grid is the fixed-size town area.
type Grid struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// InBounds returns true if p lies on the grid.
func (g Grid) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.Width && p.Y < g.Height
}

// Clamp moves p onto the nearest cell of the grid.
func (g Grid) Clamp(p Point) Point {
	if p.X < 0 {
		p.X = 0
	}
	if p.Y < 0 {
		p.Y = 0
	}
	if p.X >= g.Width {
		p.X = g.Width - 1
	}
	if p.Y >= g.Height {
		p.Y = g.Height - 1
	}
	return p
}

// Cells returns the number of cells on the grid.
func (g Grid) Cells() int {
	return g.Width * g.Height
}

// String returns a summary of the grid.
func (g Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d)", g.Width, g.Height)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
