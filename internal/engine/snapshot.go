package engine

import (
	"fmt"
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/world"
)

// Entries of each log included in a snapshot.
const (
	snapshotConversations = 10
	snapshotEvents        = 10
	snapshotMemories      = 5
)

// Snapshot is an immutable copy of the town at the end of a tick. Nothing
// in it aliases live simulation state. Every field except Time is a function
// of the seed, the inputs and the dialogue replies; Time is the wall clock
// at publication.
type Snapshot struct {
	Tick            uint64               `json:"tick"`
	SimTime         string               `json:"sim_time"`
	Time            time.Time            `json:"time"` // Wall clock, not reproducible
	Width           int                  `json:"width"`
	Height          int                  `json:"height"`
	DialogueEnabled bool                 `json:"dialogue_enabled"`
	Agents          []AgentView          `json:"agents"`
	Buildings       []BuildingView       `json:"buildings"`
	Conversations   []ConversationRecord `json:"conversations"`
	Events          []Event              `json:"events"`
}

// AgentView is an agent as shown to observers.
type AgentView struct {
	ID            agents.AgentID        `json:"id"`
	Name          string                `json:"name"`
	Personality   string                `json:"personality"`
	Position      world.Point           `json:"position"`
	Needs         agents.Needs          `json:"needs"`
	Mood          string                `json:"mood"`
	State         string                `json:"state"`          // Activity name
	CurrentAction string                `json:"current_action"` // Activity with its object
	Intent        string                `json:"intent"`
	Memories      []agents.Memory       `json:"memories"` // Newest first
	Relationships []agents.Relationship `json:"relationships"`
}

// BuildingView is a building as shown to observers.
type BuildingView struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Position    world.Point `json:"position"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Capacity    int         `json:"capacity"`
	Occupants   int         `json:"occupants"`
	Description string      `json:"description"`
}

// Agent returns the view of the named agent, or false.
func (s *Snapshot) Agent(name string) (AgentView, bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentView{}, false
}

func (s *Simulation) snapshot() *Snapshot {
	snap := &Snapshot{
		Tick:            s.LastTick,
		SimTime:         SimTime(s.LastTick),
		Time:            s.clock(),
		Width:           s.Grid.Width,
		Height:          s.Grid.Height,
		DialogueEnabled: s.dispatcher.Enabled(),
		Agents:          make([]AgentView, len(s.Agents)),
		Buildings:       make([]BuildingView, len(s.Buildings)),
		Conversations:   tail(s.Conversations, snapshotConversations),
		Events:          tail(s.Events, snapshotEvents),
	}

	for i, a := range s.Agents {
		snap.Agents[i] = AgentView{
			ID:            a.ID,
			Name:          a.Name,
			Personality:   a.Personality,
			Position:      a.Position,
			Needs:         a.Needs,
			Mood:          a.Needs.Mood(s.Rules),
			State:         a.Activity.String(),
			CurrentAction: s.actionLabel(a),
			Intent:        a.Intent.String(),
			Memories:      agents.RecentMemories(a, snapshotMemories),
			Relationships: append([]agents.Relationship(nil), a.Relationships...),
		}
	}

	for i, b := range s.Buildings {
		occ := 0
		if i < len(s.occupancy) {
			occ = s.occupancy[i]
		}
		snap.Buildings[i] = BuildingView{
			ID:          b.ID,
			Type:        b.Type.String(),
			Position:    b.Area.Min,
			Width:       b.Area.W,
			Height:      b.Area.H,
			Capacity:    b.Capacity,
			Occupants:   occ,
			Description: b.Type.Description(),
		}
	}
	return snap
}

// actionLabel describes what an agent is doing, e.g. "moving to cafe".
func (s *Simulation) actionLabel(a *agents.Agent) string {
	var where string
	if a.Target >= 0 && a.Target < len(s.Buildings) {
		where = s.Buildings[a.Target].Type.String()
	}

	switch a.Activity {
	case agents.ActivityMoving:
		if where == "" {
			return "looking for company"
		}
		return "moving to " + where
	case agents.ActivityConversing:
		if p, ok := s.AgentIndex[a.Partner]; ok {
			return "talking with " + p.Name
		}
		return "talking"
	case agents.ActivityIdle:
		return "idle"
	default:
		if where == "" {
			return a.Activity.String()
		}
		return fmt.Sprintf("%s at %s", a.Activity, where)
	}
}

// tail copies the last n entries of items.
func tail[T any](items []T, n int) []T {
	if len(items) > n {
		items = items[len(items)-n:]
	}
	return append([]T(nil), items...)
}
