package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/talgya/ai-town/internal/config"
)

// settings holds flag values shared by the commands that build a town.
type settings struct {
	apiKey       string
	secretKey    string
	port         int64
	fallbackPort int64
	debug        bool
	width        int64
	height       int64
	maxAgents    int64
	interval     string
	tuningPath   string
	seed         int64
	logLevel     string
}

func tuningFlag(s *settings) cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to the tuning file",
		Value:       config.Default().TuningPath,
		Sources:     cli.EnvVars("AITOWN_CONFIG"),
		Destination: &s.tuningPath,
	}
}

// settingsFlags returns the process settings flags with their environment
// sources.
func settingsFlags(s *settings) []cli.Flag {
	def := config.Default()
	return []cli.Flag{
		tuningFlag(s),
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "OpenRouter API key; conversations are disabled without one",
			Sources:     cli.EnvVars("OPENROUTER_API_KEY"),
			Destination: &s.apiKey,
		},
		&cli.StringFlag{
			Name:        "secret-key",
			Usage:       "Session secret for the web layer",
			Sources:     cli.EnvVars("SECRET_KEY"),
			Destination: &s.secretKey,
		},
		&cli.IntFlag{
			Name:        "port",
			Usage:       "Preferred port for the web layer",
			Value:       int64(def.Port),
			Sources:     cli.EnvVars("PORT"),
			Destination: &s.port,
		},
		&cli.IntFlag{
			Name:        "fallback-port",
			Usage:       "Port used when the preferred one is taken",
			Value:       int64(def.FallbackPort),
			Destination: &s.fallbackPort,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "Enable debug logging",
			Sources:     cli.EnvVars("DEBUG"),
			Destination: &s.debug,
		},
		&cli.IntFlag{
			Name:        "width",
			Usage:       "World width in cells",
			Value:       int64(def.WorldWidth),
			Sources:     cli.EnvVars("WORLD_WIDTH"),
			Destination: &s.width,
		},
		&cli.IntFlag{
			Name:        "height",
			Usage:       "World height in cells",
			Value:       int64(def.WorldHeight),
			Sources:     cli.EnvVars("WORLD_HEIGHT"),
			Destination: &s.height,
		},
		&cli.IntFlag{
			Name:        "max-agents",
			Usage:       "Maximum number of agents",
			Value:       int64(def.MaxAgents),
			Sources:     cli.EnvVars("MAX_AGENTS"),
			Destination: &s.maxAgents,
		},
		&cli.StringFlag{
			Name:        "interval",
			Usage:       "Wall time between ticks, in seconds (1.0) or as a duration (500ms)",
			Value:       def.UpdateInterval.String(),
			Sources:     cli.EnvVars("UPDATE_INTERVAL"),
			Destination: &s.interval,
		},
		&cli.IntFlag{
			Name:        "seed",
			Usage:       "Seed for layouts, spawning and agent ids",
			Value:       def.Seed,
			Sources:     cli.EnvVars("AITOWN_SEED"),
			Destination: &s.seed,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       def.LogLevel,
			Sources:     cli.EnvVars("AITOWN_LOG_LEVEL"),
			Destination: &s.logLevel,
		},
	}
}

func (s *settings) config() (config.Config, error) {
	interval, err := parseInterval(s.interval)
	if err != nil {
		return config.Config{}, err
	}
	return config.Config{
		APIKey:         s.apiKey,
		SecretKey:      s.secretKey,
		Port:           int(s.port),
		FallbackPort:   int(s.fallbackPort),
		Debug:          s.debug,
		WorldWidth:     int(s.width),
		WorldHeight:    int(s.height),
		MaxAgents:      int(s.maxAgents),
		UpdateInterval: interval,
		TuningPath:     s.tuningPath,
		Seed:           s.seed,
		LogLevel:       s.logLevel,
	}, nil
}

// parseInterval accepts a bare number of seconds or a Go duration.
func parseInterval(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, goerr.Wrap(config.ErrInvalidConfig, "parse update interval", goerr.V("interval", v))
	}
	return d, nil
}
