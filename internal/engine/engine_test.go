package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/dialogue"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/world"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return epoch }

func newSim(grid world.Grid, buildings []world.Building, gen dialogue.Generator, mods ...func(*engine.Config)) *engine.Simulation {
	talk := engine.DefaultConversationSettings()
	talk.MergeWait = time.Second
	cfg := engine.Config{
		Grid:         grid,
		Buildings:    buildings,
		Rules:        agents.DefaultRules(),
		Conversation: talk,
		Seed:         1,
		Generator:    gen,
		Clock:        fixedClock,
	}
	for _, m := range mods {
		m(&cfg)
	}
	return engine.NewSimulation(cfg)
}

func place(sim *engine.Simulation, name string, x, y int) *agents.Agent {
	return sim.AddAgent(engine.Join{
		ID:          agents.AgentID("id-" + name),
		Name:        name,
		Personality: "neutral",
		Position:    world.Point{X: x, Y: y},
		Placed:      true,
	})
}

func replyWith(line string, tone dialogue.Tone) dialogue.Generator {
	return dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		return dialogue.Reply{Line: line, Tone: tone}, nil
	})
}

func step(sim *engine.Simulation, ticks ...uint64) {
	for _, tick := range ticks {
		sim.Tick(context.Background(), tick)
	}
}

func TestTiredAgentHeadsHome(t *testing.T) {
	house := world.NewBuilding("house1", world.BuildingHouse, world.Point{}, 3, 3)
	sim := newSim(world.Grid{Width: 10, Height: 10}, []world.Building{house}, nil)
	a := place(sim, "Alice", 5, 5)
	a.Needs.Energy = 5

	before := world.Manhattan(a.Position, house.Area.Nearest(a.Position))
	step(sim, 1)

	gt.Equal(t, a.Needs.Energy, 4.0)
	gt.Equal(t, a.Intent, agents.IntentRest)
	gt.Equal(t, a.Activity, agents.ActivityMoving)
	gt.Equal(t, world.Manhattan(a.Position, house.Area.Nearest(a.Position)), before-1)

	view, ok := sim.Latest().Agent("Alice")
	gt.True(t, ok)
	gt.Equal(t, view.CurrentAction, "moving to house")
	gt.Equal(t, view.Position, a.Position)
}

func TestArrivalAndRest(t *testing.T) {
	house := world.NewBuilding("house1", world.BuildingHouse, world.Point{}, 3, 3)
	sim := newSim(world.Grid{Width: 10, Height: 10}, []world.Building{house}, nil)
	a := place(sim, "Alice", 3, 0)
	a.Needs.Energy = 10

	step(sim, 1)
	gt.Equal(t, a.Position, world.Point{X: 2, Y: 0})
	gt.Equal(t, a.Memories[len(a.Memories)-1].Content, "Arrived at house1")
	gt.Equal(t, sim.Latest().Buildings[0].Occupants, 1)

	step(sim, 2)
	gt.Equal(t, a.Activity, agents.ActivityResting)
	gt.Equal(t, a.Needs.Energy, 9.0-1+15)
	gt.Equal(t, a.Position, world.Point{X: 2, Y: 0})
}

func TestNearbyIdleAgentsStartTalking(t *testing.T) {
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, replyWith("Lovely weather today!", dialogue.ToneNeutral))
	a := place(sim, "Alice", 3, 3)
	b := place(sim, "Bob", 3, 4)

	step(sim, 1)
	gt.Equal(t, a.Activity, agents.ActivityConversing)
	gt.Equal(t, b.Activity, agents.ActivityConversing)
	gt.A(t, a.Memories).Length(1)
	gt.A(t, b.Memories).Length(1)
	gt.Equal(t, a.Memories[0].Content, "Started talking with Bob")
	gt.Equal(t, sim.Latest().Agents[0].CurrentAction, "talking with Bob")

	step(sim, 2)
	gt.Equal(t, a.Activity, agents.ActivityIdle)
	gt.Equal(t, b.Activity, agents.ActivityIdle)
	gt.Equal(t, a.Memories[1].Content, "Talked with Bob: Lovely weather today!")
	gt.Equal(t, b.Memories[1].Content, "Talked with Alice: Lovely weather today!")
	gt.Equal(t, agents.Sentiment(a, b.ID), 0.05)
	gt.Equal(t, agents.Sentiment(b, a.ID), 0.05)
	gt.Equal(t, a.Needs.Social, 0.0)
	gt.Equal(t, a.CooldownUntil, uint64(12))

	snap := sim.Latest()
	gt.A(t, snap.Conversations).Length(1)
	gt.Equal(t, snap.Conversations[0].Speaker, "Alice")
	gt.Equal(t, snap.Conversations[0].Message, "Lovely weather today!")

	// Cooldown keeps them apart for a while.
	step(sim, 3, 4, 5)
	gt.Equal(t, a.Activity, agents.ActivityIdle)
	gt.A(t, sim.Latest().Conversations).Length(1)
}

func TestToneChangesRelationship(t *testing.T) {
	for _, tc := range []struct {
		tone dialogue.Tone
		want float64
	}{
		{dialogue.ToneFriendly, 0.1},
		{dialogue.ToneNeutral, 0.05},
		{dialogue.ToneTense, -0.1},
	} {
		t.Run(tc.tone.String(), func(t *testing.T) {
			sim := newSim(world.Grid{Width: 10, Height: 10}, nil, replyWith("Hi.", tc.tone))
			a := place(sim, "Alice", 3, 3)
			b := place(sim, "Bob", 4, 4)
			step(sim, 1, 2)
			gt.Equal(t, agents.Sentiment(a, b.ID), tc.want)
			gt.Equal(t, agents.Sentiment(b, a.ID), tc.want)
		})
	}
}

func TestPairsOncePerTick(t *testing.T) {
	var calls atomic.Int32
	gen := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		calls.Add(1)
		return dialogue.Reply{Line: "Hello " + req.Listener.Name}, nil
	})
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, gen)
	a := place(sim, "Alice", 5, 5)
	b := place(sim, "Bob", 5, 6)
	c := place(sim, "Charlie", 6, 5)
	d := place(sim, "Diana", 6, 6)

	step(sim, 1)
	gt.Equal(t, a.Partner, b.ID)
	gt.Equal(t, b.Partner, a.ID)
	gt.Equal(t, c.Partner, d.ID)
	gt.Equal(t, d.Partner, c.ID)
	for _, ag := range []*agents.Agent{a, b, c, d} {
		gt.A(t, ag.Memories).Length(1)
	}

	step(sim, 2)
	gt.Equal(t, calls.Load(), int32(2))
	gt.A(t, sim.Latest().Conversations).Length(2)
}

func TestOddAgentWaits(t *testing.T) {
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, replyWith("Hi.", dialogue.ToneNeutral))
	a := place(sim, "Alice", 5, 5)
	b := place(sim, "Bob", 5, 6)
	c := place(sim, "Charlie", 6, 5)

	step(sim, 1)
	gt.True(t, a.Conversing())
	gt.True(t, b.Conversing())
	gt.False(t, c.Conversing())
	gt.A(t, c.Memories).Length(0)
}

func TestDialogueDisabled(t *testing.T) {
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, nil)
	a := place(sim, "Alice", 3, 3)
	place(sim, "Bob", 3, 4)

	step(sim, 1, 2, 3)
	gt.False(t, a.Conversing())
	gt.A(t, a.Memories).Length(0)
	gt.False(t, sim.Latest().DialogueEnabled)
}

func TestFailedDialogueReturnsToIdle(t *testing.T) {
	gen := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		return dialogue.Reply{}, errors.New("upstream unavailable")
	})
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, gen)
	a := place(sim, "Alice", 3, 3)
	b := place(sim, "Bob", 3, 4)

	step(sim, 1, 2)
	gt.Equal(t, a.Activity, agents.ActivityIdle)
	gt.Equal(t, b.Activity, agents.ActivityIdle)
	gt.A(t, a.Memories).Length(1)
	gt.A(t, a.Relationships).Length(0)
	gt.Equal(t, a.CooldownUntil, uint64(12))

	snap := sim.Latest()
	gt.A(t, snap.Conversations).Length(0)
	gt.Equal(t, snap.Events[len(snap.Events)-1].Category, "dialogue")
}

func TestEmptyReplyIsFailure(t *testing.T) {
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, replyWith("   ", dialogue.ToneFriendly))
	a := place(sim, "Alice", 3, 3)
	place(sim, "Bob", 3, 4)

	step(sim, 1, 2)
	gt.False(t, a.Conversing())
	gt.A(t, a.Relationships).Length(0)
}

func TestStuckDialogueIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	// Ignores its context entirely.
	gen := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		<-release
		return dialogue.Reply{Line: "too late"}, nil
	})
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, gen, func(c *engine.Config) {
		c.Conversation.Timeout = 20 * time.Millisecond
		c.Conversation.MergeWait = 5 * time.Millisecond
	})
	a := place(sim, "Alice", 3, 3)
	b := place(sim, "Bob", 3, 4)

	step(sim, 1)
	start := time.Now()
	step(sim, 2)
	gt.True(t, time.Since(start) < time.Second)
	gt.True(t, a.Conversing())

	time.Sleep(40 * time.Millisecond)
	step(sim, 3)
	gt.False(t, a.Conversing())
	gt.False(t, b.Conversing())
	gt.A(t, a.Memories).Length(1)
	gt.Equal(t, sim.Latest().Events[len(sim.Latest().Events)-1].Category, "dialogue")
}

func TestSlowDialogueDoesNotStallMovement(t *testing.T) {
	gen := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		<-ctx.Done()
		return dialogue.Reply{}, ctx.Err()
	})
	house := world.NewBuilding("house1", world.BuildingHouse, world.Point{}, 2, 2)
	sim := newSim(world.Grid{Width: 20, Height: 20}, []world.Building{house}, gen, func(c *engine.Config) {
		c.Conversation.Timeout = time.Minute
		c.Conversation.MergeWait = time.Millisecond
	})
	place(sim, "Alice", 10, 10)
	place(sim, "Bob", 10, 11)
	walker := place(sim, "Charlie", 19, 19)
	walker.Needs.Energy = 5

	before := world.Manhattan(walker.Position, house.Area.Nearest(walker.Position))
	step(sim, 1, 2, 3, 4)
	gt.Equal(t, world.Manhattan(walker.Position, house.Area.Nearest(walker.Position)), before-4)
	gt.True(t, sim.Agents[0].Conversing())
	sim.Shutdown()
}

func TestRateLimitRefusesDispatch(t *testing.T) {
	sim := newSim(world.Grid{Width: 20, Height: 20}, nil, replyWith("Hi.", dialogue.ToneNeutral), func(c *engine.Config) {
		c.Conversation.PerMinute = 1
	})
	a := place(sim, "Alice", 1, 1)
	b := place(sim, "Bob", 1, 2)
	c := place(sim, "Charlie", 15, 15)
	d := place(sim, "Diana", 15, 16)

	step(sim, 1)
	gt.True(t, a.Conversing())
	gt.True(t, b.Conversing())
	gt.False(t, c.Conversing())
	gt.False(t, d.Conversing())
}

func TestMaxInflightRefusesDispatch(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	gen := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return dialogue.Reply{Line: "hi"}, nil
	})
	sim := newSim(world.Grid{Width: 20, Height: 20}, nil, gen, func(c *engine.Config) {
		c.Conversation.MaxInflight = 1
		c.Conversation.MergeWait = 0
	})
	place(sim, "Alice", 1, 1)
	place(sim, "Bob", 1, 2)
	c := place(sim, "Charlie", 15, 15)
	place(sim, "Diana", 15, 16)

	step(sim, 1)
	gt.False(t, c.Conversing())
	sim.Shutdown()
}

func TestNeedsAndMemoryStayBounded(t *testing.T) {
	sim := newSim(world.Grid{Width: 50, Height: 50}, world.DefaultLayout(), dialogue.NewSmallTalk(3), func(c *engine.Config) {
		c.Conversation.PerMinute = 0
	})
	for i, r := range agents.DefaultResidents() {
		place(sim, r.Name, 10+i, 10)
	}

	for tick := uint64(1); tick <= 600; tick++ {
		step(sim, tick)
		for _, a := range sim.Agents {
			for _, v := range []float64{a.Needs.Energy, a.Needs.Hunger, a.Needs.Social} {
				if v < agents.NeedMin || v > agents.NeedMax {
					t.Fatalf("tick %d: %s need out of range: %+v", tick, a.Name, a.Needs)
				}
			}
			if len(a.Memories) > agents.MaxMemories {
				t.Fatalf("tick %d: %s has %d memories", tick, a.Name, len(a.Memories))
			}
			for _, r := range a.Relationships {
				if r.Sentiment < -1 || r.Sentiment > 1 {
					t.Fatalf("tick %d: %s relationship out of range: %v", tick, a.Name, r.Sentiment)
				}
			}
			if !sim.Grid.InBounds(a.Position) {
				t.Fatalf("tick %d: %s left the grid at %v", tick, a.Name, a.Position)
			}
		}
	}
	sim.Shutdown()
}

func TestDeterministicWithInstantDialogue(t *testing.T) {
	run := func() *engine.Snapshot {
		sim := newSim(world.Grid{Width: 50, Height: 50}, world.DefaultLayout(), dialogue.NewSmallTalk(9), func(c *engine.Config) {
			c.Conversation.PerMinute = 0
			c.Conversation.MergeWait = 5 * time.Second
			c.Seed = 77
		})
		for i, r := range agents.DefaultResidents() {
			sim.Inbox().Push(engine.Join{ID: agents.AgentID(fmt.Sprintf("agent-%d", i)), Name: r.Name, Personality: r.Personality})
		}
		for tick := uint64(1); tick <= 300; tick++ {
			step(sim, tick)
		}
		return sim.Latest()
	}

	first, second := run(), run()
	gt.Equal(t, *first, *second)
	gt.A(t, first.Agents).Length(5)
}

func TestInboxJoinsAtTickStart(t *testing.T) {
	sim := newSim(world.Grid{Width: 50, Height: 50}, world.DefaultLayout(), nil)
	sim.Inbox().Push(engine.Join{ID: "a1", Name: "Alice", Personality: "neutral"})
	gt.A(t, sim.Agents).Length(0)
	gt.Equal(t, sim.Inbox().Len(), 1)

	step(sim, 1)
	gt.A(t, sim.Agents).Length(1)
	gt.Equal(t, sim.Inbox().Len(), 0)
	gt.Equal(t, sim.Agents[0].JoinedTick, uint64(1))

	snap := sim.Latest()
	gt.Equal(t, snap.Tick, uint64(1))
	gt.Equal(t, snap.Events[0].Category, "join")
}

func TestSnapshotIsACopy(t *testing.T) {
	sim := newSim(world.Grid{Width: 10, Height: 10}, nil, nil)
	a := place(sim, "Alice", 1, 1)
	agents.AddMemory(a, 0, "first", "")
	step(sim, 1)

	snap := sim.Latest()
	a.Position = world.Point{X: 9, Y: 9}
	a.Memories[0].Content = "changed"

	gt.Equal(t, snap.Agents[0].Position, world.Point{X: 1, Y: 1})
	gt.Equal(t, snap.Agents[0].Memories[0].Content, "first")
}

func TestSimTime(t *testing.T) {
	gt.Equal(t, engine.SimTime(0), "Day 1, 08:00")
	gt.Equal(t, engine.SimTime(75), "Day 1, 09:15")
	gt.Equal(t, engine.SimTime(16*60), "Day 2, 00:00")
}

func TestEngineRunStopsOnCancel(t *testing.T) {
	var ticks, reports atomic.Int32
	stopped := false

	e := engine.NewEngine(time.Millisecond)
	e.ReportEvery = 2
	e.OnTick = func(ctx context.Context, tick uint64) { ticks.Add(1) }
	e.OnReport = func(tick uint64) { reports.Add(1) }
	e.OnStop = func() { stopped = true }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	gt.NoError(t, e.Run(ctx))
	gt.True(t, ticks.Load() > 0)
	gt.Equal(t, uint64(ticks.Load()), e.Tick)
	gt.Equal(t, reports.Load(), ticks.Load()/2)
	gt.True(t, stopped)
}

func TestEngineStep(t *testing.T) {
	var got []uint64
	e := engine.NewEngine(0)
	e.OnTick = func(ctx context.Context, tick uint64) { got = append(got, tick) }

	e.Step(context.Background())
	e.Step(context.Background())
	gt.Equal(t, got, []uint64{1, 2})
	gt.Equal(t, e.Interval, time.Second)
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	b := engine.NewBroadcaster()
	ch, cancel := b.Subscribe(1)
	gt.Equal(t, b.Subscribers(), 1)

	b.Publish(&engine.Snapshot{Tick: 1})
	b.Publish(&engine.Snapshot{Tick: 2})
	gt.Equal(t, b.Dropped(), uint64(1))

	snap := <-ch
	gt.Equal(t, snap.Tick, uint64(1))

	cancel()
	cancel()
	gt.Equal(t, b.Subscribers(), 0)
	_, ok := <-ch
	gt.False(t, ok)

	b.Publish(&engine.Snapshot{Tick: 3})
	gt.Equal(t, b.Dropped(), uint64(1))
}

func TestShutdownReleasesPendingConversations(t *testing.T) {
	blocking := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		<-ctx.Done()
		return dialogue.Reply{}, ctx.Err()
	})
	house := world.NewBuilding("house1", world.BuildingHouse, world.Point{X: 15, Y: 15}, 3, 3)
	sim := newSim(world.Grid{Width: 20, Height: 20}, []world.Building{house}, blocking, func(c *engine.Config) {
		c.Conversation.Timeout = time.Minute
		c.Conversation.MergeWait = 0
	})
	a := place(sim, "Alice", 3, 3)
	b := place(sim, "Bob", 3, 4)

	step(sim, 1)
	gt.True(t, a.Conversing())
	gt.True(t, b.Conversing())

	sim.Shutdown()
	gt.False(t, a.Conversing())
	gt.False(t, b.Conversing())
	gt.Equal(t, a.Activity, agents.ActivityIdle)
	gt.Equal(t, a.CooldownUntil, uint64(1+engine.DefaultConversationSettings().CooldownTicks))

	snap := sim.Latest()
	alice, ok := snap.Agent("Alice")
	gt.True(t, ok)
	gt.Equal(t, alice.State, "idle")
	gt.Equal(t, snap.Events[len(snap.Events)-1].Category, "dialogue")

	sim.SetGenerator(replyWith("Hello again.", dialogue.ToneFriendly))
	a.Needs.Energy = 5
	before := world.Manhattan(a.Position, house.Area.Nearest(a.Position))
	step(sim, 2, 3)
	gt.Equal(t, world.Manhattan(a.Position, house.Area.Nearest(a.Position)), before-2)
}
