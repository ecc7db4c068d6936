// Agent spawning — identity generation and initial placement.
package agents

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/ai-town/internal/world"
)

// IDSource issues agent IDs. IDs are random-looking UUIDs drawn from a
// seeded stream, so a town built twice from the same seed gets the same IDs.
// Safe for concurrent use.
type IDSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewIDSource creates an ID source with the given seed.
func NewIDSource(seed int64) *IDSource {
	return &IDSource{rng: rand.New(rand.NewSource(seed + 500))}
}

// Next returns a fresh agent ID.
func (s *IDSource) Next() AgentID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewRandomFromReader(s.rng)
	if err != nil {
		// math/rand never fails to read; fall back to the global pool anyway.
		return AgentID(uuid.NewString())
	}
	return AgentID(id.String())
}

// Spawner chooses where new agents appear.
type Spawner struct {
	rng *rand.Rand
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng: rand.New(rand.NewSource(seed + 300)),
	}
}

// Place picks a starting cell: a random cell inside a random building, or
// any cell of the grid when the town has no buildings.
func (s *Spawner) Place(g world.Grid, buildings []world.Building) world.Point {
	if len(buildings) == 0 {
		return world.Point{X: s.rng.Intn(g.Width), Y: s.rng.Intn(g.Height)}
	}
	b := buildings[s.rng.Intn(len(buildings))]
	p := world.Point{
		X: b.Area.Min.X + s.rng.Intn(b.Area.W),
		Y: b.Area.Min.Y + s.rng.Intn(b.Area.H),
	}
	return g.Clamp(p)
}

// Resident is a name and personality pair for seeding a town.
type Resident struct {
	Name        string
	Personality string
}

// DefaultResidents returns the starting cast used when a town opens empty.
func DefaultResidents() []Resident {
	return []Resident{
		{Name: "Alice", Personality: "friendly and outgoing, loves meeting new people"},
		{Name: "Bob", Personality: "quiet and thoughtful, enjoys reading and coffee"},
		{Name: "Charlie", Personality: "energetic and curious, always exploring"},
		{Name: "Diana", Personality: "caring and helpful, likes to assist others"},
		{Name: "Eve", Personality: "creative and artistic, enjoys the park"},
	}
}
