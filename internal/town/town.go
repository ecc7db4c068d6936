// Package town is the boundary a web layer (or the CLI) uses to drive the
// simulation: start and stop the loop, add agents, read snapshots.
package town

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/ai-town/internal/agents"
	"github.com/talgya/ai-town/internal/config"
	"github.com/talgya/ai-town/internal/dialogue"
	"github.com/talgya/ai-town/internal/engine"
	"github.com/talgya/ai-town/internal/world"
)

// MaxNameLength bounds agent names, in runes.
const MaxNameLength = 32

const defaultPersonality = "neutral"

var (
	ErrInvalidName    = goerr.New("invalid agent name")
	ErrTooManyAgents  = goerr.New("too many agents")
	ErrAlreadyRunning = goerr.New("simulation already running")
	ErrNotRunning     = goerr.New("simulation not running")
)

// Option configures a Town.
type Option func(*Town)

// WithDialogueFactory sets how an API key becomes a dialogue generator.
func WithDialogueFactory(f func(apiKey string) dialogue.Generator) Option {
	return func(t *Town) { t.factory = f }
}

// WithOfflineDialogue sets the generator used when no API key is given.
func WithOfflineDialogue(gen dialogue.Generator) Option {
	return func(t *Town) { t.offline = gen }
}

// WithDefaultAgents controls whether Start seeds the default residents into
// an empty town. On by default.
func WithDefaultAgents(on bool) Option {
	return func(t *Town) { t.seedDefaults = on }
}

// WithClock replaces the wall clock used for snapshots and rate limiting.
func WithClock(now func() time.Time) Option {
	return func(t *Town) { t.clock = now }
}

// Town owns one simulation and its loop.
type Town struct {
	cfg    config.Config
	tuning config.Tuning

	sim *engine.Simulation
	eng *engine.Engine
	ids *agents.IDSource

	factory      func(apiKey string) dialogue.Generator
	offline      dialogue.Generator
	seedDefaults bool
	clock        func() time.Time

	mu       sync.Mutex
	running  bool
	accepted int // Agents in town plus queued joins
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds a town from configuration. The loop is not started.
func New(cfg config.Config, tuning config.Tuning, opts ...Option) (*Town, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Town{
		cfg:          cfg,
		tuning:       tuning,
		ids:          agents.NewIDSource(cfg.Seed),
		seedDefaults: true,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	grid := world.Grid{Width: cfg.WorldWidth, Height: cfg.WorldHeight}
	buildings, err := tuning.Buildings(grid, cfg.Seed)
	if err != nil {
		return nil, goerr.Wrap(err, "build town layout", goerr.V("grid", grid.String()))
	}

	t.sim = engine.NewSimulation(engine.Config{
		Grid:         grid,
		Buildings:    buildings,
		Rules:        tuning.Needs,
		Conversation: tuning.Conversation,
		Seed:         cfg.Seed,
		Generator:    t.offline,
		Clock:        t.clock,
	})

	t.eng = engine.NewEngine(cfg.UpdateInterval)
	t.eng.ReportEvery = tuning.ReportEvery
	t.eng.OnTick = t.sim.Tick
	t.eng.OnReport = t.sim.Report
	t.eng.OnStop = t.sim.Shutdown

	slog.Info("town built",
		"grid", grid,
		"buildings", len(buildings),
		"max_agents", cfg.MaxAgents,
		"interval", cfg.UpdateInterval,
	)
	return t, nil
}

// Start runs the simulation loop in the background until ctx is cancelled
// or Stop is called. An empty apiKey disables conversations unless an
// offline generator was configured; movement and needs run regardless.
func (t *Town) Start(ctx context.Context, apiKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return ErrAlreadyRunning
	}

	gen := t.generator(apiKey)
	t.sim.SetGenerator(gen)
	if gen == nil {
		slog.Warn("no dialogue provider, conversations disabled")
	}

	if t.seedDefaults && t.accepted == 0 {
		for _, r := range agents.DefaultResidents() {
			if t.accepted >= t.cfg.MaxAgents {
				break
			}
			t.enqueueLocked(r.Name, r.Personality)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done
	t.running = true

	go func() {
		defer close(done)
		if err := t.eng.Run(runCtx); err != nil {
			slog.Error("simulation loop failed", "error", err)
		}
		t.mu.Lock()
		if t.done == done {
			t.running = false
		}
		t.mu.Unlock()
	}()

	slog.Info("simulation started", "dialogue", gen != nil, "tick", t.eng.Tick)
	return nil
}

func (t *Town) generator(apiKey string) dialogue.Generator {
	if apiKey != "" {
		if t.factory != nil {
			if gen := t.factory(apiKey); gen != nil {
				return gen
			}
		}
		slog.Warn("API key set but no dialogue provider is wired in")
	}
	return t.offline
}

// Stop halts the loop and waits for the current tick to finish. In-flight
// conversations are cancelled.
func (t *Town) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done
	slog.Info("simulation stopped")
	return nil
}

// Running reports whether the loop is active.
func (t *Town) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// AddAgent validates a new resident and queues it for the next tick.
func (t *Town) AddAgent(name, personality string) (agents.AgentID, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", goerr.Wrap(ErrInvalidName, "add agent", goerr.V("name", name), goerr.V("max_length", MaxNameLength))
	}
	personality = strings.TrimSpace(personality)
	if personality == "" {
		personality = defaultPersonality
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accepted >= t.cfg.MaxAgents {
		return "", goerr.Wrap(ErrTooManyAgents, "add agent", goerr.V("name", name), goerr.V("max_agents", t.cfg.MaxAgents))
	}
	return t.enqueueLocked(name, personality), nil
}

func (t *Town) enqueueLocked(name, personality string) agents.AgentID {
	id := t.ids.Next()
	t.accepted++
	t.sim.Inbox().Push(engine.Join{ID: id, Name: name, Personality: personality})
	slog.Debug("agent queued", "name", name, "id", id)
	return id
}

// Snapshot returns the latest published snapshot.
func (t *Town) Snapshot() *engine.Snapshot {
	return t.sim.Latest()
}

// Subscribe delivers every published snapshot until cancel is called.
// A subscriber that falls behind misses snapshots.
func (t *Town) Subscribe(buffer int) (<-chan *engine.Snapshot, func()) {
	return t.sim.Subscribe(buffer)
}

// Step advances one tick by hand. Not allowed while the loop runs.
func (t *Town) Step(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return ErrAlreadyRunning
	}
	t.eng.Step(ctx)
	return nil
}

// Tick returns the tick of the latest snapshot.
func (t *Town) Tick() uint64 {
	return t.Snapshot().Tick
}
