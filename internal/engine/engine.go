// Package engine provides the tick-based town simulation and its loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// One tick is one sim-minute.
const (
	TicksPerSimHour = 60
	TicksPerSimDay  = 1440
)

// DefaultReportEvery is how often Run logs a summary.
const DefaultReportEvery = TicksPerSimHour

// Engine drives the simulation forward.
type Engine struct {
	Tick        uint64        // Current tick counter (monotonic, never resets)
	Interval    time.Duration // Wall time between ticks (default 1 second)
	ReportEvery uint64        // Ticks between OnReport calls, 0 disables

	// Callbacks populated during setup.
	OnTick   func(ctx context.Context, tick uint64) // Every tick
	OnReport func(tick uint64)                      // Every ReportEvery ticks
	OnStop   func()                                 // Once, when Run returns
}

// NewEngine creates a simulation engine with default settings.
func NewEngine(interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		Interval:    interval,
		ReportEvery: DefaultReportEvery,
	}
}

// Run ticks at a fixed interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()

	slog.Info("simulation engine started", "tick", e.Tick, "interval", e.Interval)
	defer func() {
		if e.OnStop != nil {
			e.OnStop()
		}
		slog.Info("simulation engine stopped", "tick", e.Tick)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Step(ctx)
		}
	}
}

// Step advances the simulation by exactly one tick.
func (e *Engine) Step(ctx context.Context) {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(ctx, e.Tick)
	}

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
}

// SimTime returns a human-readable simulation time from a tick number.
// The town wakes at 08:00 on day 1.
func SimTime(tick uint64) string {
	minutes := tick + 8*TicksPerSimHour
	day := minutes/TicksPerSimDay + 1
	hour := (minutes % TicksPerSimDay) / TicksPerSimHour
	return fmt.Sprintf("Day %d, %02d:%02d", day, hour, minutes%TicksPerSimHour)
}
