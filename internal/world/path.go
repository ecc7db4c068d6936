package world

// maxSearchCells bounds a single path search. A 50x50 town has 2500 cells,
// so the bound only matters for very large custom grids.
const maxSearchCells = 1 << 16

// NextStep returns the first cell of a shortest 4-neighbour path from start
// to any cell accepted by goal, moving only through cells accepted by
// passable. The search is a breadth-first flood with a fixed neighbour order
// so identical worlds always produce identical routes.
//
// Returns (start, true) if start already satisfies goal, and (start, false)
// if no goal cell is reachable.
func NextStep(g Grid, start Point, goal func(Point) bool, passable func(Point) bool) (Point, bool) {
	if goal(start) {
		return start, true
	}

	type item struct {
		p     Point
		first Point
	}

	visited := make(map[Point]bool, 256)
	visited[start] = true

	queue := make([]item, 0, 256)
	for _, d := range StepDirections {
		np := start.Add(d)
		if !g.InBounds(np) || !passable(np) {
			continue
		}
		visited[np] = true
		queue = append(queue, item{p: np, first: np})
	}

	for head := 0; head < len(queue) && head < maxSearchCells; head++ {
		it := queue[head]
		if goal(it.p) {
			return it.first, true
		}
		for _, d := range StepDirections {
			np := it.p.Add(d)
			if visited[np] || !g.InBounds(np) || !passable(np) {
				continue
			}
			visited[np] = true
			queue = append(queue, item{p: np, first: it.first})
		}
	}

	return start, false
}

// Passability builds the passable predicate used for agent movement:
// building footprints block movement, except the destination building and
// the building the agent is standing in. Either index may be -1.
func Passability(buildings []Building, dest, current int) func(Point) bool {
	return func(p Point) bool {
		i := BuildingAt(buildings, p)
		return i < 0 || i == dest || i == current
	}
}
