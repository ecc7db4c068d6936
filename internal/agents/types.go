// Package agents provides the town resident data model: needs, memory,
// relationships, and the rule-based intent selection that drives behavior.
package agents

import (
	"github.com/talgya/ai-town/internal/world"
)

// AgentID is a unique identifier for an agent (a UUID string).
type AgentID string

// NoTarget marks an agent with no destination building.
const NoTarget = -1

// Agent is a simulated resident of the town.
type Agent struct {
	ID          AgentID `json:"id"`
	Name        string  `json:"name"`
	Personality string  `json:"personality"` // Free text, seeds dialogue prompts

	Position world.Point `json:"position"`
	Needs    Needs       `json:"needs"`

	// Behavior
	Activity Activity `json:"activity"`
	Intent   Intent   `json:"intent"`
	Target   int      `json:"-"` // Index of the destination building, NoTarget if none

	IdleTicks int `json:"idle_ticks"` // Consecutive ticks spent idle
	ShiftLeft int `json:"shift_left"` // Work ticks remaining in the current shift

	// Social
	Relationships []Relationship `json:"relationships"`
	Memories      MemoryLog      `json:"memories"`

	TalkedTick    uint64  `json:"talked_tick"`    // Tick of the last finished conversation
	HasTalked     bool    `json:"has_talked"`     // False until the first conversation finishes
	CooldownUntil uint64  `json:"cooldown_until"` // No new conversation before this tick
	Partner       AgentID `json:"partner,omitempty"`

	JoinedTick uint64 `json:"joined_tick"`
}

// NewAgent creates an agent with full energy, no hunger and no social need.
func NewAgent(id AgentID, name, personality string, pos world.Point, tick uint64) *Agent {
	return &Agent{
		ID:          id,
		Name:        name,
		Personality: personality,
		Position:    pos,
		Needs:       Needs{Energy: NeedMax, Hunger: NeedMin, Social: NeedMin},
		Activity:    ActivityIdle,
		Intent:      IntentNone,
		Target:      NoTarget,
		JoinedTick:  tick,
	}
}

// Conversing returns true while the agent waits on a dialogue result.
func (a *Agent) Conversing() bool {
	return a.Activity == ActivityConversing
}

// Relationship is one agent's view of another. Each side keeps its own
// score; nothing forces the two views to agree.
type Relationship struct {
	TargetID  AgentID `json:"target_id"`
	Sentiment float64 `json:"sentiment"` // -1.0 (hostile) to 1.0 (close friend)
}

// AdjustRelationship shifts from's sentiment towards to by delta, creating
// the relationship if needed. Sentiment is clamped to [-1, 1].
func AdjustRelationship(from *Agent, to AgentID, delta float64) {
	for i := range from.Relationships {
		if from.Relationships[i].TargetID == to {
			from.Relationships[i].Sentiment = clampRange(from.Relationships[i].Sentiment+delta, -1, 1)
			return
		}
	}
	from.Relationships = append(from.Relationships, Relationship{
		TargetID:  to,
		Sentiment: clampRange(delta, -1, 1),
	})
}

// Sentiment returns a's score for id, or 0 if they have never met.
func Sentiment(a *Agent, id AgentID) float64 {
	for _, r := range a.Relationships {
		if r.TargetID == id {
			return r.Sentiment
		}
	}
	return 0
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
