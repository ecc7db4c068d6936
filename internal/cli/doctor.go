package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/talgya/ai-town/internal/config"
	"github.com/talgya/ai-town/internal/world"
)

const placeholderAPIKey = "your_api_key_here"

var errDoctorFailed = goerr.New("setup check failed")

type checkStatus uint8

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
)

var checkStatusNames = [...]string{"ok", "warn", "FAIL"}

type check struct {
	status checkStatus
	name   string
	detail string
}

func doctorCommand(out io.Writer) *cli.Command {
	var s settings

	return &cli.Command{
		Name:  "doctor",
		Usage: "Check the configuration and environment",
		Flags: settingsFlags(&s),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := s.config()
			if err != nil {
				return err
			}
			checks := diagnose(cfg)
			failed := 0
			for _, ch := range checks {
				fmt.Fprintf(out, "%-5s %-12s %s\n", checkStatusNames[ch.status], ch.name, ch.detail)
				if ch.status == checkFail {
					failed++
				}
			}
			if failed > 0 {
				return goerr.Wrap(errDoctorFailed, "doctor", goerr.V("failed", failed))
			}
			return nil
		},
	}
}

func diagnose(cfg config.Config) []check {
	var checks []check
	add := func(status checkStatus, name, format string, args ...any) {
		checks = append(checks, check{status: status, name: name, detail: fmt.Sprintf(format, args...)})
	}

	if err := cfg.Validate(); err != nil {
		add(checkFail, "config", "%v", err)
	} else {
		add(checkOK, "config", "valid")
	}

	switch tuning, err := config.LoadTuning(cfg.TuningPath); {
	case errors.Is(err, config.ErrTuningMissing):
		add(checkFail, "tuning", "%s not found, run `aitown init`", cfg.TuningPath)
	case err != nil:
		add(checkFail, "tuning", "%v", err)
	default:
		add(checkOK, "tuning", "%s (layout %s)", cfg.TuningPath, tuning.Layout.Mode)
	}

	switch {
	case !cfg.DialogueEnabled():
		add(checkWarn, "api key", "OPENROUTER_API_KEY not set, conversations disabled")
	case cfg.APIKey == placeholderAPIKey:
		add(checkFail, "api key", "OPENROUTER_API_KEY is still the placeholder value")
	default:
		add(checkOK, "api key", "set")
	}

	if port, err := config.ResolvePort(cfg.Port, cfg.FallbackPort); err != nil {
		add(checkFail, "port", "%v", err)
	} else if port != cfg.Port {
		add(checkWarn, "port", "%d in use, would use %d", cfg.Port, port)
	} else {
		add(checkOK, "port", "%d available", port)
	}

	g := world.Grid{Width: cfg.WorldWidth, Height: cfg.WorldHeight}
	add(checkOK, "world", "%s, up to %d agents", g, cfg.MaxAgents)
	return checks
}
