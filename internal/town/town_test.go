package town_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/talgya/ai-town/internal/config"
	"github.com/talgya/ai-town/internal/dialogue"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/town"
)

func newTown(t *testing.T, opts ...town.Option) *town.Town {
	t.Helper()
	cfg := config.Default()
	cfg.UpdateInterval = 5 * time.Millisecond
	tw, err := town.New(cfg, config.DefaultTuning(), opts...)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = tw.Stop() })
	return tw
}

// waitFor reads snapshots until cond holds or the deadline passes.
func waitFor(t *testing.T, ch <-chan *engine.Snapshot, cond func(*engine.Snapshot) bool) *engine.Snapshot {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatal("subscription closed")
			}
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}
}

func TestAddAgentRejectsEmptyName(t *testing.T) {
	tw := newTown(t)

	for _, name := range []string{"", "   ", "a name that is definitely far too long to fit"} {
		_, err := tw.AddAgent(name, "friendly")
		gt.True(t, errors.Is(err, town.ErrInvalidName))
	}
}

func TestAddAgentRejectsEleventh(t *testing.T) {
	tw := newTown(t, town.WithDefaultAgents(false))

	for i := range 10 {
		_, err := tw.AddAgent(fmt.Sprintf("Agent%d", i), "")
		gt.NoError(t, err)
	}
	_, err := tw.AddAgent("Late", "curious")
	gt.True(t, errors.Is(err, town.ErrTooManyAgents))

	// Queued joins land on the next tick; the limit still holds after.
	gt.NoError(t, tw.Step(context.Background()))
	gt.A(t, tw.Snapshot().Agents).Length(10)
	_, err = tw.AddAgent("Later", "curious")
	gt.True(t, errors.Is(err, town.ErrTooManyAgents))
}

func TestAddAgentDefaultsPersonality(t *testing.T) {
	tw := newTown(t)
	id, err := tw.AddAgent("  Frank ", "  ")
	gt.NoError(t, err)
	gt.A(t, []byte(id)).Length(36)

	gt.NoError(t, tw.Step(context.Background()))
	a, ok := tw.Snapshot().Agent("Frank")
	gt.True(t, ok)
	gt.Equal(t, a.Personality, "neutral")
	gt.Equal(t, a.ID, id)
}

func TestStartTwice(t *testing.T) {
	tw := newTown(t)
	ctx := context.Background()

	gt.NoError(t, tw.Start(ctx, ""))
	gt.True(t, errors.Is(tw.Start(ctx, ""), town.ErrAlreadyRunning))
	gt.True(t, errors.Is(tw.Step(ctx), town.ErrAlreadyRunning))

	gt.NoError(t, tw.Stop())
	gt.False(t, tw.Running())
	gt.True(t, errors.Is(tw.Stop(), town.ErrNotRunning))
}

func TestStartWithoutKeyDisablesOnlyDialogue(t *testing.T) {
	tw := newTown(t)
	ch, cancel := tw.Subscribe(8)
	defer cancel()

	gt.NoError(t, tw.Start(context.Background(), ""))
	snap := waitFor(t, ch, func(s *engine.Snapshot) bool { return s.Tick >= 3 })

	gt.False(t, snap.DialogueEnabled)
	gt.A(t, snap.Agents).Length(5)
	gt.A(t, snap.Conversations).Length(0)
}

func TestStartWithKeyUsesFactory(t *testing.T) {
	var mu sync.Mutex
	var gotKey string
	factory := func(apiKey string) dialogue.Generator {
		mu.Lock()
		gotKey = apiKey
		mu.Unlock()
		return dialogue.NewSmallTalk(1)
	}
	tw := newTown(t, town.WithDialogueFactory(factory))
	ch, cancel := tw.Subscribe(8)
	defer cancel()

	gt.NoError(t, tw.Start(context.Background(), "sk-test"))
	snap := waitFor(t, ch, func(s *engine.Snapshot) bool { return s.Tick >= 1 })
	gt.True(t, snap.DialogueEnabled)

	mu.Lock()
	gt.Equal(t, gotKey, "sk-test")
	mu.Unlock()
}

func TestOfflineDialogueWithoutKey(t *testing.T) {
	tw := newTown(t, town.WithOfflineDialogue(dialogue.NewSmallTalk(1)))
	ch, cancel := tw.Subscribe(8)
	defer cancel()

	gt.NoError(t, tw.Start(context.Background(), ""))
	snap := waitFor(t, ch, func(s *engine.Snapshot) bool { return s.Tick >= 1 })
	gt.True(t, snap.DialogueEnabled)
}

func TestCancelledContextStopsLoop(t *testing.T) {
	tw := newTown(t)
	ctx, cancel := context.WithCancel(context.Background())

	gt.NoError(t, tw.Start(ctx, ""))
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for tw.Running() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	gt.False(t, tw.Running())
	gt.NoError(t, tw.Step(context.Background()))
}

func TestStepWithoutDefaults(t *testing.T) {
	tw := newTown(t, town.WithDefaultAgents(false))
	gt.NoError(t, tw.Step(context.Background()))
	gt.Equal(t, tw.Tick(), uint64(1))
	gt.A(t, tw.Snapshot().Agents).Length(0)
	gt.A(t, tw.Snapshot().Buildings).Length(6)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxAgents = 0
	_, err := town.New(cfg, config.DefaultTuning())
	gt.True(t, errors.Is(err, config.ErrInvalidConfig))
}

func TestRestartResumesAgentsCaughtMidConversation(t *testing.T) {
	var calls atomic.Int32
	gen := dialogue.GeneratorFunc(func(ctx context.Context, req dialogue.Request) (dialogue.Reply, error) {
		if calls.Add(1) == 1 {
			<-ctx.Done()
			return dialogue.Reply{}, ctx.Err()
		}
		return dialogue.Reply{Line: "Nice to see you.", Tone: dialogue.ToneFriendly}, nil
	})

	cfg := config.Default()
	cfg.WorldWidth, cfg.WorldHeight = 10, 10
	cfg.UpdateInterval = 5 * time.Millisecond
	tuning := config.DefaultTuning()
	tuning.Layout = config.LayoutSpec{
		Mode:      config.LayoutCustom,
		Buildings: []config.BuildingSpec{{ID: "park1", Type: "park", X: 3, Y: 3, W: 2, H: 2}},
	}
	tw, err := town.New(cfg, tuning, town.WithOfflineDialogue(gen), town.WithDefaultAgents(false))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = tw.Stop() })

	_, err = tw.AddAgent("Alice", "friendly")
	gt.NoError(t, err)
	_, err = tw.AddAgent("Bob", "quiet")
	gt.NoError(t, err)

	ch, cancel := tw.Subscribe(64)
	defer cancel()

	conversing := func(s *engine.Snapshot) bool {
		n := 0
		for _, a := range s.Agents {
			if a.State == "conversing" {
				n++
			}
		}
		return n == 2
	}

	gt.NoError(t, tw.Start(context.Background(), ""))
	waitFor(t, ch, conversing)
	gt.NoError(t, tw.Stop())

	stopped := tw.Snapshot()
	gt.False(t, conversing(stopped))
	for _, a := range stopped.Agents {
		gt.Equal(t, a.State, "idle")
	}

	gt.NoError(t, tw.Start(context.Background(), ""))
	snap := waitFor(t, ch, func(s *engine.Snapshot) bool { return len(s.Conversations) > 0 })
	gt.Equal(t, snap.Conversations[0].Message, "Nice to see you.")
}
