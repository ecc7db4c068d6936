package engine

import (
	"sync"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/world"
)

// Join asks the engine to add an agent at the start of the next tick.
type Join struct {
	ID          agents.AgentID
	Name        string
	Personality string
	Position    world.Point // Used only when Placed is set
	Placed      bool
}

// Inbox queues boundary commands for the engine goroutine. Safe for
// concurrent use.
type Inbox struct {
	mu    sync.Mutex
	joins []Join
}

// Push queues a join.
func (q *Inbox) Push(j Join) {
	q.mu.Lock()
	q.joins = append(q.joins, j)
	q.mu.Unlock()
}

// Len returns the number of queued commands.
func (q *Inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.joins)
}

// Drain removes and returns every queued command in arrival order.
func (q *Inbox) Drain() []Join {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.joins
	q.joins = nil
	return out
}
