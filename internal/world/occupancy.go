package world

// Occupancy counts how many of the given positions fall inside each building.
// The result is indexed like buildings.
func Occupancy(buildings []Building, positions []Point) []int {
	counts := make([]int, len(buildings))
	for _, p := range positions {
		if i := BuildingAt(buildings, p); i >= 0 {
			counts[i]++
		}
	}
	return counts
}

// NearestOfType returns the index of the building of one of the given types
// closest to p, skipping buildings whose occupancy has reached capacity
// unless p is already inside them. Ties go to the earlier building.
// Returns -1 if no building qualifies.
func NearestOfType(buildings []Building, occupancy []int, p Point, types ...BuildingType) int {
	best := -1
	bestDist := 0
	for i, b := range buildings {
		if !hasType(types, b.Type) {
			continue
		}
		if !b.Contains(p) && i < len(occupancy) && occupancy[i] >= b.Capacity {
			continue
		}
		d := b.Area.DistSqTo(p)
		if best < 0 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

func hasType(types []BuildingType, t BuildingType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}
