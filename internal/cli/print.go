package cli

import (
	"fmt"
	"io"

	"github.com/talgya/ai-town/internal/engine"
)

// printer writes a running account of the town to the console.
type printer struct {
	w     io.Writer
	every uint64
	seen  uint64 // Conversations up to this tick have been printed
}

func newPrinter(w io.Writer, every uint64) *printer {
	return &printer{w: w, every: every}
}

func (p *printer) print(s *engine.Snapshot) {
	for _, c := range s.Conversations {
		if c.Tick <= p.seen {
			continue
		}
		fmt.Fprintf(p.w, "[%s] %s → %s (%s): %s\n", engine.SimTime(c.Tick), c.Speaker, c.Listener, c.Tone, c.Message)
	}
	if s.Tick > p.seen {
		p.seen = s.Tick
	}

	if p.every == 0 || s.Tick == 0 || s.Tick%p.every != 0 {
		return
	}
	fmt.Fprintf(p.w, "── %s (tick %d) ──\n", s.SimTime, s.Tick)
	for _, a := range s.Agents {
		fmt.Fprintf(p.w, "  %-10s %-10s (%2d,%2d) E:%3.0f H:%3.0f S:%3.0f  %s\n",
			a.Name, a.Mood, a.Position.X, a.Position.Y,
			a.Needs.Energy, a.Needs.Hunger, a.Needs.Social, a.CurrentAction)
	}
}
