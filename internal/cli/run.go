package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/talgya/ai-town/internal/config"
	"github.com/talgya/ai-town/internal/dialogue"
	"github.com/talgya/ai-town/internal/logging"
	"github.com/talgya/ai-town/internal/town"
	"github.com/talgya/ai-town/internal/trace"
)

const subscriberBuffer = 64

func runCommand(out io.Writer) *cli.Command {
	var (
		s          settings
		printEvery int64
		ticks      int64
		tracePath  string
		traceEvery int64
		offline    bool
	)

	flags := settingsFlags(&s)
	flags = append(flags,
		&cli.IntFlag{
			Name:        "print-every",
			Usage:       "Print the agents every N ticks (0 disables)",
			Value:       10,
			Destination: &printEvery,
		},
		&cli.IntFlag{
			Name:        "ticks",
			Usage:       "Stop after N ticks (0 runs until interrupted)",
			Destination: &ticks,
		},
		&cli.StringFlag{
			Name:        "trace",
			Usage:       "Record snapshots to a zstd-compressed JSON lines file",
			Destination: &tracePath,
		},
		&cli.IntFlag{
			Name:        "trace-every",
			Usage:       "Record every Nth snapshot",
			Value:       1,
			Destination: &traceEvery,
		},
		&cli.BoolFlag{
			Name:        "offline-dialogue",
			Usage:       "Generate conversations locally when no API key is set",
			Destination: &offline,
		},
	)

	return &cli.Command{
		Name:  "run",
		Usage: "Run the town",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return runTown(ctx, out, s, runOptions{
				printEvery: uint64(max(printEvery, 0)),
				ticks:      uint64(max(ticks, 0)),
				tracePath:  tracePath,
				traceEvery: uint64(max(traceEvery, 1)),
				offline:    offline,
			})
		},
	}
}

type runOptions struct {
	printEvery uint64
	ticks      uint64
	tracePath  string
	traceEvery uint64
	offline    bool
}

func runTown(ctx context.Context, out io.Writer, s settings, opts runOptions) error {
	cfg, err := s.config()
	if err != nil {
		return err
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.Debug, out); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tuning, err := config.LoadTuning(cfg.TuningPath)
	if errors.Is(err, config.ErrTuningMissing) {
		if err := config.Scaffold(cfg.TuningPath, false); err != nil {
			return err
		}
		return goerr.New("wrote default tuning file, review it and run again", goerr.V("path", cfg.TuningPath))
	}
	if err != nil {
		return err
	}

	port, err := config.ResolvePort(cfg.Port, cfg.FallbackPort)
	if err != nil {
		slog.Warn("no port available for the web layer", "error", err)
	} else {
		slog.Info("web layer port", "port", port, "preferred", cfg.Port)
	}

	var townOpts []town.Option
	switch {
	case cfg.DialogueEnabled():
		slog.Info("dialogue provider key configured")
	case opts.offline:
		slog.Info("using offline small talk for conversations")
	}
	if opts.offline {
		townOpts = append(townOpts, town.WithOfflineDialogue(dialogue.NewSmallTalk(cfg.Seed)))
	}
	t, err := town.New(cfg, tuning, townOpts...)
	if err != nil {
		return err
	}

	var rec *trace.Recorder
	if opts.tracePath != "" {
		rec, err = trace.Create(opts.tracePath, opts.traceEvery)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Error("close trace", "error", err)
				return
			}
			slog.Info("trace written", "path", rec.Path(), "snapshots", rec.Count())
		}()
	}

	snaps, unsubscribe := t.Subscribe(subscriberBuffer)
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := t.Start(runCtx, cfg.APIKey); err != nil {
		return err
	}

	p := newPrinter(out, opts.printEvery)
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case snap, ok := <-snaps:
			if !ok {
				break loop
			}
			p.print(snap)
			if rec != nil {
				if err := rec.Record(snap); err != nil {
					slog.Warn("trace record failed", "tick", snap.Tick, "error", err)
				}
			}
			if opts.ticks > 0 && snap.Tick >= opts.ticks {
				break loop
			}
		}
	}

	if err := t.Stop(); err != nil && !errors.Is(err, town.ErrNotRunning) {
		return err
	}
	return nil
}
