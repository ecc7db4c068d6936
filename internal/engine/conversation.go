// Conversations — out-of-line dialogue generation merged back into the tick.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/dialogue"
	"github.com/talgya/ai-town/internal/world"
)

var (
	ErrDialogueDisabled = goerr.New("dialogue disabled")
	ErrTooManyInflight  = goerr.New("too many conversations in flight")
	ErrRateLimited      = goerr.New("dialogue call budget spent")
	ErrAbandoned        = goerr.New("conversation abandoned after deadline")
	ErrCancelled        = goerr.New("conversation cancelled by shutdown")
)

// ConversationSettings controls when conversations start and how long the
// town waits for them.
type ConversationSettings struct {
	Radius        float64       `yaml:"radius" json:"radius"`                 // Euclidean distance
	CooldownTicks int           `yaml:"cooldown_ticks" json:"cooldown_ticks"` // Per agent, after any conversation
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`               // Deadline of one dialogue call
	MergeWait     time.Duration `yaml:"merge_wait" json:"merge_wait"`         // Max wait per tick for pending results
	MaxInflight   int           `yaml:"max_inflight" json:"max_inflight"`     // 0 means unlimited
	PerMinute     int           `yaml:"per_minute" json:"per_minute"`         // Dialogue call budget, 0 means unlimited
	SocialRelief  float64       `yaml:"social_relief" json:"social_relief"`   // Social need removed by a conversation
}

// DefaultConversationSettings returns the standard conversation rules.
func DefaultConversationSettings() ConversationSettings {
	return ConversationSettings{
		Radius:        2,
		CooldownTicks: 10,
		Timeout:       8 * time.Second,
		MergeWait:     250 * time.Millisecond,
		MaxInflight:   4,
		PerMinute:     20,
		SocialRelief:  30,
	}
}

func (c ConversationSettings) withDefaults() ConversationSettings {
	if c.Timeout <= 0 {
		c.Timeout = DefaultConversationSettings().Timeout
	}
	if c.MergeWait < 0 {
		c.MergeWait = 0
	}
	return c
}

// Result is the outcome of one dialogue call.
type Result struct {
	A, B    agents.AgentID // Speaker, listener
	Started uint64         // Tick of dispatch
	Reply   dialogue.Reply
	Err     error
}

type task struct {
	Result
	ctx    context.Context
	cancel context.CancelFunc
	begin  time.Time
	done   chan struct{}
}

// Dispatcher runs dialogue calls in their own goroutines and hands the
// results back in dispatch order. Its methods belong to the engine goroutine.
type Dispatcher struct {
	gen      dialogue.Generator
	limiter  *dialogue.Limiter
	settings ConversationSettings
	clock    func() time.Time
	pending  []*task
}

// NewDispatcher creates a dispatcher. A nil generator disables dispatch.
func NewDispatcher(gen dialogue.Generator, settings ConversationSettings, clock func() time.Time) *Dispatcher {
	return &Dispatcher{
		gen:      gen,
		limiter:  dialogue.NewLimiter(settings.PerMinute, time.Minute).WithClock(clock),
		settings: settings,
		clock:    clock,
	}
}

// SetGenerator replaces the generator.
func (d *Dispatcher) SetGenerator(gen dialogue.Generator) {
	d.gen = gen
}

// Enabled reports whether a generator is configured.
func (d *Dispatcher) Enabled() bool {
	return d.gen != nil
}

// Inflight returns the number of dispatched calls not yet collected.
func (d *Dispatcher) Inflight() int {
	return len(d.pending)
}

// Dispatch starts a dialogue call bound to ctx and the configured timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, tick uint64, a, b agents.AgentID, req dialogue.Request) error {
	if d.gen == nil {
		return ErrDialogueDisabled
	}
	if d.settings.MaxInflight > 0 && len(d.pending) >= d.settings.MaxInflight {
		return goerr.Wrap(ErrTooManyInflight, "dispatch refused", goerr.V("inflight", len(d.pending)))
	}
	if !d.limiter.Allow() {
		return goerr.Wrap(ErrRateLimited, "dispatch refused", goerr.V("per_minute", d.settings.PerMinute))
	}

	tctx, cancel := context.WithTimeout(ctx, d.settings.Timeout)
	t := &task{
		Result: Result{A: a, B: b, Started: tick},
		ctx:    tctx,
		cancel: cancel,
		begin:  d.clock(),
		done:   make(chan struct{}),
	}
	d.pending = append(d.pending, t)

	gen := d.gen
	go func() {
		defer close(t.done)
		defer func() {
			if r := recover(); r != nil {
				t.Err = goerr.New("dialogue generator panicked", goerr.V("panic", r))
			}
		}()
		t.Reply, t.Err = gen.Converse(tctx, req)
	}()
	return nil
}

// Collect waits up to the merge window for pending calls, then returns the
// finished ones in dispatch order. Calls past their deadline are returned
// as ErrAbandoned failures even if their goroutine is still running.
func (d *Dispatcher) Collect() []Result {
	if len(d.pending) == 0 {
		return nil
	}

	if d.settings.MergeWait > 0 {
		timer := time.NewTimer(d.settings.MergeWait)
		defer timer.Stop()
	wait:
		for _, t := range d.pending {
			select {
			case <-t.done:
			case <-t.ctx.Done():
			case <-timer.C:
				break wait
			}
		}
	}

	var out []Result
	keep := d.pending[:0]
	for _, t := range d.pending {
		select {
		case <-t.done:
			t.cancel()
			slog.Debug("dialogue call finished", "a", t.A, "b", t.B, "latency", d.clock().Sub(t.begin), "error", t.Err)
			out = append(out, t.Result)
		default:
			if err := t.ctx.Err(); err != nil {
				t.cancel()
				out = append(out, Result{
					A: t.A, B: t.B, Started: t.Started,
					Err: goerr.Wrap(ErrAbandoned, "dialogue call did not return", goerr.V("cause", err)),
				})
				continue
			}
			keep = append(keep, t)
		}
	}
	for i := len(keep); i < len(d.pending); i++ {
		d.pending[i] = nil
	}
	d.pending = keep
	return out
}

// CancelAll cancels every pending call and returns each as an ErrCancelled
// failure, in dispatch order.
func (d *Dispatcher) CancelAll() []Result {
	out := make([]Result, 0, len(d.pending))
	for _, t := range d.pending {
		t.cancel()
		out = append(out, Result{
			A: t.A, B: t.B, Started: t.Started,
			Err: goerr.Wrap(ErrCancelled, "dialogue call cancelled"),
		})
	}
	d.pending = nil
	return out
}

// canConverse reports whether a may join a new conversation this tick.
func (s *Simulation) canConverse(a *agents.Agent, tick uint64) bool {
	if a.Conversing() || tick < a.CooldownUntil {
		return false
	}
	return a.Activity == agents.ActivityIdle ||
		a.Activity == agents.ActivitySocializing ||
		a.Intent == agents.IntentSocialize
}

// triggerConversations pairs up nearby eligible agents. Each agent joins at
// most one conversation per tick, scanning pairs in insertion order.
func (s *Simulation) triggerConversations(ctx context.Context, tick uint64) {
	if !s.dispatcher.Enabled() {
		return
	}

	r2 := s.Talk.Radius * s.Talk.Radius
	paired := make(map[agents.AgentID]bool)

	for i, a := range s.Agents {
		if paired[a.ID] || !s.canConverse(a, tick) {
			continue
		}
		for _, b := range s.Agents[i+1:] {
			if paired[b.ID] || !s.canConverse(b, tick) {
				continue
			}
			if float64(world.DistSq(a.Position, b.Position)) > r2 {
				continue
			}
			if err := s.startConversation(ctx, a, b, tick); err != nil {
				// Every refusal reason applies to the rest of the tick too.
				slog.Debug("conversation not started", "a", a.Name, "b", b.Name, "reason", err)
				return
			}
			paired[a.ID] = true
			paired[b.ID] = true
			break
		}
	}
}

func (s *Simulation) startConversation(ctx context.Context, a, b *agents.Agent, tick uint64) error {
	req := dialogue.Request{
		Tick:         tick,
		Speaker:      participant(a, b),
		Listener:     participant(b, a),
		Location:     s.locationName(a.Position),
		Relationship: agents.Sentiment(a, b.ID),
	}
	if err := s.dispatcher.Dispatch(ctx, tick, a.ID, b.ID, req); err != nil {
		return err
	}

	for _, p := range [2]struct{ self, other *agents.Agent }{{a, b}, {b, a}} {
		p.self.Activity = agents.ActivityConversing
		p.self.Partner = p.other.ID
		p.self.Target = agents.NoTarget
		agents.AddMemory(p.self, tick, fmt.Sprintf("Started talking with %s", p.other.Name), p.other.ID)
	}
	slog.Debug("conversation started", "a", a.Name, "b", b.Name, "tick", tick, "location", req.Location)
	return nil
}

// participant describes self for a dialogue call: the last three memories
// plus up to three more that involve other.
func participant(self, other *agents.Agent) dialogue.Participant {
	picked := agents.RecentMemories(self, 3)
	for _, m := range agents.MemoriesAbout(self, other.ID, other.Name, 3) {
		dup := false
		for _, p := range picked {
			if p == m {
				dup = true
				break
			}
		}
		if !dup {
			picked = append(picked, m)
		}
	}

	lines := make([]string, len(picked))
	for i, m := range picked {
		lines[i] = m.Content
	}
	return dialogue.Participant{Name: self.Name, Personality: self.Personality, Memories: lines}
}

func (s *Simulation) locationName(p world.Point) string {
	if i := world.BuildingAt(s.Buildings, p); i >= 0 {
		return s.Buildings[i].Type.String()
	}
	return "outside"
}

// toneDelta is the relationship change a conversation of the given tone
// applies to both sides.
func toneDelta(t dialogue.Tone) float64 {
	switch t {
	case dialogue.ToneFriendly:
		return 0.1
	case dialogue.ToneTense:
		return -0.1
	default:
		return 0.05
	}
}

// applyConversation merges a finished dialogue call into the town.
func (s *Simulation) applyConversation(res Result, tick uint64) {
	a, b := s.AgentIndex[res.A], s.AgentIndex[res.B]
	if a == nil || b == nil {
		return
	}

	cooldown := tick + uint64(max(s.Talk.CooldownTicks, 0))
	for _, ag := range [2]*agents.Agent{a, b} {
		ag.Activity = agents.ActivityIdle
		ag.Partner = ""
		ag.CooldownUntil = cooldown
	}

	line := dialogue.CleanLine(res.Reply.Line)
	if res.Err == nil && line == "" {
		res.Err = dialogue.ErrEmptyReply
	}
	if res.Err != nil {
		slog.Warn("conversation failed",
			"a", a.Name,
			"b", b.Name,
			"started", res.Started,
			"timeout", errors.Is(res.Err, ErrAbandoned) || errors.Is(res.Err, context.DeadlineExceeded),
			"error", res.Err,
		)
		s.addEvent(tick, "dialogue", fmt.Sprintf("%s and %s lost their train of thought", a.Name, b.Name))
		return
	}

	delta := toneDelta(res.Reply.Tone)
	for _, p := range [2]struct{ self, other *agents.Agent }{{a, b}, {b, a}} {
		agents.AddMemory(p.self, tick, fmt.Sprintf("Talked with %s: %s", p.other.Name, line), p.other.ID)
		agents.AdjustRelationship(p.self, p.other.ID, delta)
		p.self.Needs.Social -= s.Talk.SocialRelief
		p.self.Needs.Clamp()
		p.self.TalkedTick = tick
		p.self.HasTalked = true
	}

	s.addConversation(ConversationRecord{
		Tick:     tick,
		Speaker:  a.Name,
		Listener: b.Name,
		Message:  line,
		Tone:     res.Reply.Tone.String(),
		Location: a.Position,
		Started:  res.Started,
	})
	s.addEvent(tick, "social", fmt.Sprintf("%s and %s had a %s chat", a.Name, b.Name, res.Reply.Tone))
	slog.Info("conversation", "speaker", a.Name, "listener", b.Name, "tone", res.Reply.Tone, "line", line)
}
