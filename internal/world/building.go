package world

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// BuildingType enumerates the kinds of building in town.
type BuildingType uint8

const (
	BuildingHouse  BuildingType = iota // Rest: restores energy
	BuildingCafe                       // Socialize
	BuildingPark                       // Socialize
	BuildingShop                       // Eat: relieves hunger
	BuildingOffice                     // Work
)

// NumBuildingTypes is the total number of building types.
const NumBuildingTypes = 5

var buildingNames = [NumBuildingTypes]string{"house", "cafe", "park", "shop", "office"}

var buildingDescriptions = [NumBuildingTypes]string{
	"A cozy house with a small garden",
	"A bustling cafe with the aroma of fresh coffee",
	"A peaceful park with trees and benches",
	"A local shop selling various goods",
	"A modern office building",
}

var buildingCapacities = [NumBuildingTypes]int{4, 8, 12, 6, 10}

// ErrUnknownBuildingType is returned when parsing an unrecognized type name.
var ErrUnknownBuildingType = goerr.New("unknown building type")

func (t BuildingType) String() string {
	if int(t) < len(buildingNames) {
		return buildingNames[t]
	}
	return "unknown"
}

// Description returns the flavour text shown to observers.
func (t BuildingType) Description() string {
	if int(t) < len(buildingDescriptions) {
		return buildingDescriptions[t]
	}
	return "A building"
}

// DefaultCapacity returns how many agents fit inside a building of this type.
func (t BuildingType) DefaultCapacity() int {
	if int(t) < len(buildingCapacities) {
		return buildingCapacities[t]
	}
	return 1
}

// ParseBuildingType maps a lower-case name back to its type.
func ParseBuildingType(name string) (BuildingType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range buildingNames {
		if n == name {
			return BuildingType(i), nil
		}
	}
	return 0, goerr.Wrap(ErrUnknownBuildingType, "parse building type", goerr.V("name", name))
}

// Rect is a rectangular footprint: Min is the top-left cell, W and H the size.
type Rect struct {
	Min Point `json:"position"`
	W   int   `json:"w"`
	H   int   `json:"h"`
}

// Contains returns true if p lies inside the footprint.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.Y >= r.Min.Y && p.X < r.Min.X+r.W && p.Y < r.Min.Y+r.H
}

// Overlaps returns true if the two footprints, each grown by margin cells,
// share any cell.
func (r Rect) Overlaps(o Rect, margin int) bool {
	return r.Min.X-margin < o.Min.X+o.W && o.Min.X-margin < r.Min.X+r.W &&
		r.Min.Y-margin < o.Min.Y+o.H && o.Min.Y-margin < r.Min.Y+r.H
}

// Fits returns true if the whole footprint lies on the grid.
func (r Rect) Fits(g Grid) bool {
	return r.W > 0 && r.H > 0 && g.InBounds(r.Min) && g.InBounds(Point{X: r.Min.X + r.W - 1, Y: r.Min.Y + r.H - 1})
}

// Nearest returns the footprint cell closest to p.
func (r Rect) Nearest(p Point) Point {
	q := p
	if q.X < r.Min.X {
		q.X = r.Min.X
	}
	if q.X > r.Min.X+r.W-1 {
		q.X = r.Min.X + r.W - 1
	}
	if q.Y < r.Min.Y {
		q.Y = r.Min.Y
	}
	if q.Y > r.Min.Y+r.H-1 {
		q.Y = r.Min.Y + r.H - 1
	}
	return q
}

// DistSqTo returns the squared distance from p to the closest footprint cell.
func (r Rect) DistSqTo(p Point) int {
	return DistSq(p, r.Nearest(p))
}

// Building is a fixed-location world feature. Buildings are created when the
// world is built and never change afterwards.
type Building struct {
	ID       string       `json:"id"`
	Type     BuildingType `json:"type"`
	Area     Rect         `json:"area"`
	Capacity int          `json:"capacity"`
}

// NewBuilding creates a building with the default capacity for its type.
func NewBuilding(id string, t BuildingType, at Point, w, h int) Building {
	return Building{
		ID:       id,
		Type:     t,
		Area:     Rect{Min: at, W: w, H: h},
		Capacity: t.DefaultCapacity(),
	}
}

// Contains returns true if p is inside the building.
func (b Building) Contains(p Point) bool {
	return b.Area.Contains(p)
}

// BuildingAt returns the index of the building containing p, or -1.
func BuildingAt(buildings []Building, p Point) int {
	for i := range buildings {
		if buildings[i].Contains(p) {
			return i
		}
	}
	return -1
}
