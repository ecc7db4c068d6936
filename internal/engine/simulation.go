// Simulation ties the world, its agents and the dialogue dispatcher together
// and advances them each tick.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/dialogue"
	"github.com/talgya/ai-town/internal/world"
)

const (
	maxEvents        = 100 // Events kept in memory
	maxConversations = 50  // Conversations kept in memory
)

// Event is a notable occurrence in the town.
type Event struct {
	Tick        uint64 `json:"tick"`
	Description string `json:"description"`
	Category    string `json:"category"` // "arrival", "social", "dialogue", "join"
}

// ConversationRecord is a finished conversation.
type ConversationRecord struct {
	Tick     uint64      `json:"tick"`
	Speaker  string      `json:"speaker"`
	Listener string      `json:"listener"`
	Message  string      `json:"message"`
	Tone     string      `json:"tone"`
	Location world.Point `json:"location"`
	Started  uint64      `json:"started"` // Tick the conversation was dispatched
}

// Config holds everything needed to build a Simulation.
type Config struct {
	Grid         world.Grid
	Buildings    []world.Building
	Rules        agents.Rules
	Conversation ConversationSettings
	Seed         int64
	Generator    dialogue.Generator // Nil disables conversations
	Clock        func() time.Time   // Defaults to time.Now
}

// Simulation holds the complete town state. Only the engine goroutine may
// call Tick; other goroutines talk to it through the Inbox and Latest.
type Simulation struct {
	Grid       world.Grid
	Buildings  []world.Building
	Agents     []*agents.Agent // Insertion order
	AgentIndex map[agents.AgentID]*agents.Agent

	Conversations []ConversationRecord
	Events        []Event
	LastTick      uint64

	Rules agents.Rules
	Talk  ConversationSettings

	spawner    *agents.Spawner
	inbox      *Inbox
	dispatcher *Dispatcher
	hub        *Broadcaster
	latest     atomic.Pointer[Snapshot]
	clock      func() time.Time
	occupancy  []int
}

// NewSimulation creates an empty town and publishes its first snapshot.
func NewSimulation(cfg Config) *Simulation {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	talk := cfg.Conversation.withDefaults()

	s := &Simulation{
		Grid:       cfg.Grid,
		Buildings:  cfg.Buildings,
		AgentIndex: make(map[agents.AgentID]*agents.Agent),
		Rules:      cfg.Rules,
		Talk:       talk,
		spawner:    agents.NewSpawner(cfg.Seed),
		inbox:      &Inbox{},
		dispatcher: NewDispatcher(cfg.Generator, talk, clock),
		hub:        NewBroadcaster(),
		clock:      clock,
	}
	s.occupancy = make([]int, len(s.Buildings))
	s.publish()
	return s
}

// SetGenerator replaces the dialogue generator. Nil disables conversations.
// Must not be called while the engine is ticking.
func (s *Simulation) SetGenerator(gen dialogue.Generator) {
	s.dispatcher.SetGenerator(gen)
}

// DialogueEnabled reports whether conversations can start.
func (s *Simulation) DialogueEnabled() bool {
	return s.dispatcher.Enabled()
}

// Inbox returns the queue of pending boundary commands.
func (s *Simulation) Inbox() *Inbox {
	return s.inbox
}

// Latest returns the most recently published snapshot. Safe for concurrent use.
func (s *Simulation) Latest() *Snapshot {
	return s.latest.Load()
}

// Subscribe registers for snapshots, see Broadcaster.Subscribe.
func (s *Simulation) Subscribe(buffer int) (<-chan *Snapshot, func()) {
	return s.hub.Subscribe(buffer)
}

// Shutdown cancels every in-flight conversation. Its participants go back
// to Idle with the cooldown set, as after a failed conversation.
func (s *Simulation) Shutdown() {
	results := s.dispatcher.CancelAll()
	for _, res := range results {
		s.applyConversation(res, s.LastTick)
	}
	if len(results) > 0 {
		s.occupancy = world.Occupancy(s.Buildings, s.positions())
		s.publish()
	}
}

// Tick advances the town by one tick.
func (s *Simulation) Tick(ctx context.Context, tick uint64) {
	s.LastTick = tick

	// 0. Boundary commands.
	for _, j := range s.inbox.Drain() {
		s.join(j, tick)
	}

	// 1. Conversations dispatched on earlier ticks.
	for _, res := range s.dispatcher.Collect() {
		s.applyConversation(res, tick)
	}

	// 2. Needs.
	for _, a := range s.Agents {
		a.Needs.Decay(s.Rules, !s.recentlyTalked(a, tick))
	}

	// 3-5. Decide, act, move.
	s.occupancy = world.Occupancy(s.Buildings, s.positions())
	for _, a := range s.Agents {
		if a.Conversing() {
			continue
		}
		s.act(a, tick)
	}
	s.occupancy = world.Occupancy(s.Buildings, s.positions())

	// 6. New conversations.
	s.triggerConversations(ctx, tick)

	// 7. Publish.
	s.publish()
}

// Report logs a one-line summary of the town.
func (s *Simulation) Report(tick uint64) {
	counts := make(map[agents.Activity]int)
	var energy, hunger, social float64
	for _, a := range s.Agents {
		counts[a.Activity]++
		energy += a.Needs.Energy
		hunger += a.Needs.Hunger
		social += a.Needs.Social
	}
	n := float64(len(s.Agents))
	if n == 0 {
		n = 1
	}

	slog.Info("town report",
		"tick", tick,
		"time", SimTime(tick),
		"agents", len(s.Agents),
		"conversing", counts[agents.ActivityConversing],
		"moving", counts[agents.ActivityMoving],
		"idle", counts[agents.ActivityIdle],
		"avg_energy", fmt.Sprintf("%.1f", energy/n),
		"avg_hunger", fmt.Sprintf("%.1f", hunger/n),
		"avg_social", fmt.Sprintf("%.1f", social/n),
		"conversations", len(s.Conversations),
		"inflight", s.dispatcher.Inflight(),
	)
}

func (s *Simulation) join(j Join, tick uint64) {
	pos := j.Position
	if !j.Placed {
		pos = s.spawner.Place(s.Grid, s.Buildings)
	}
	a := agents.NewAgent(j.ID, j.Name, j.Personality, s.Grid.Clamp(pos), tick)
	s.Agents = append(s.Agents, a)
	s.AgentIndex[a.ID] = a

	slog.Info("agent joined", "agent", a.Name, "id", a.ID, "position", a.Position)
	s.addEvent(tick, "join", fmt.Sprintf("%s moved into town", a.Name))
}

// AddAgent places an agent immediately. Only for setup before the engine
// starts; running towns go through the inbox.
func (s *Simulation) AddAgent(j Join) *agents.Agent {
	s.join(j, s.LastTick)
	s.occupancy = world.Occupancy(s.Buildings, s.positions())
	s.publish()
	return s.Agents[len(s.Agents)-1]
}

func (s *Simulation) recentlyTalked(a *agents.Agent, tick uint64) bool {
	return a.HasTalked && tick-a.TalkedTick < uint64(s.Rules.SocialGraceTicks)
}

func (s *Simulation) positions() []world.Point {
	out := make([]world.Point, len(s.Agents))
	for i, a := range s.Agents {
		out[i] = a.Position
	}
	return out
}

// act runs the decide and act phases for one agent.
func (s *Simulation) act(a *agents.Agent, tick uint64) {
	prev := a.Intent
	a.Intent = agents.ChooseIntent(a.Needs, s.Rules, a.Intent, a.IdleTicks, a.ShiftLeft)
	if a.Intent != prev {
		a.Target = agents.NoTarget
		if a.Intent == agents.IntentWork {
			a.ShiftLeft = s.Rules.WorkShiftTicks
		}
	}

	if a.Intent == agents.IntentNone {
		a.Activity = agents.ActivityIdle
		a.IdleTicks++
		return
	}
	a.IdleTicks = 0

	venues := agents.VenueFor(a.Intent)
	current := world.BuildingAt(s.Buildings, a.Position)
	if current >= 0 && isVenue(venues, s.Buildings[current].Type) {
		a.Target = current
		a.Activity = agents.ApplyVenue(a, s.Rules)
		return
	}

	target := world.NearestOfType(s.Buildings, s.occupancy, a.Position, venues...)
	if target < 0 {
		if a.Intent == agents.IntentSocialize && s.approachNearestAgent(a, current) {
			return
		}
		if a.Intent == agents.IntentWork && a.ShiftLeft > 0 {
			a.ShiftLeft--
		}
		a.Target = agents.NoTarget
		a.Activity = agents.ActivityIdle
		return
	}

	b := s.Buildings[target]
	next, ok := world.NextStep(s.Grid, a.Position, b.Contains, world.Passability(s.Buildings, target, current))
	if !ok {
		a.Target = agents.NoTarget
		a.Activity = agents.ActivityIdle
		return
	}

	s.moveTo(a, next)
	a.Target = target
	a.Activity = agents.ActivityMoving

	if b.Contains(a.Position) {
		s.occupancy[target]++
		if current >= 0 {
			s.occupancy[current]--
		}
		agents.AddMemory(a, tick, fmt.Sprintf("Arrived at %s", b.ID), "")
		s.addEvent(tick, "arrival", fmt.Sprintf("%s arrived at %s", a.Name, b.ID))
	}
}

// approachNearestAgent steps a towards the closest other agent. Returns
// false if there is nobody to approach.
func (s *Simulation) approachNearestAgent(a *agents.Agent, current int) bool {
	var other *agents.Agent
	best := 0
	for _, o := range s.Agents {
		if o == a {
			continue
		}
		d := world.DistSq(a.Position, o.Position)
		if other == nil || d < best {
			other, best = o, d
		}
	}
	if other == nil {
		return false
	}

	a.Target = agents.NoTarget
	if best <= 1 {
		a.Activity = agents.ActivityIdle
		return true
	}

	goal := func(p world.Point) bool { return p == other.Position }
	dest := world.BuildingAt(s.Buildings, other.Position)
	next, ok := world.NextStep(s.Grid, a.Position, goal, world.Passability(s.Buildings, dest, current))
	if !ok {
		return false
	}
	s.moveTo(a, next)
	a.Activity = agents.ActivityMoving
	return true
}

func (s *Simulation) moveTo(a *agents.Agent, p world.Point) {
	a.Position = s.Grid.Clamp(p)
}

func isVenue(venues []world.BuildingType, t world.BuildingType) bool {
	for _, v := range venues {
		if v == t {
			return true
		}
	}
	return false
}

func (s *Simulation) addEvent(tick uint64, category, description string) {
	s.Events = append(s.Events, Event{Tick: tick, Description: description, Category: category})
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

func (s *Simulation) addConversation(c ConversationRecord) {
	s.Conversations = append(s.Conversations, c)
	if len(s.Conversations) > maxConversations {
		s.Conversations = s.Conversations[len(s.Conversations)-maxConversations:]
	}
}

func (s *Simulation) publish() {
	snap := s.snapshot()
	s.latest.Store(snap)
	s.hub.Publish(snap)
}
