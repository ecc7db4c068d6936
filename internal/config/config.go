// Package config holds process settings (environment and flags) and the
// tuning file that shapes the town.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidConfig = goerr.New("invalid configuration")
	ErrNoPort        = goerr.New("no bindable port")
)

// Config is the process configuration.
type Config struct {
	APIKey         string // Dialogue provider key; empty disables conversations
	SecretKey      string // Session secret for the web layer
	Port           int
	FallbackPort   int
	Debug          bool
	WorldWidth     int
	WorldHeight    int
	MaxAgents      int
	UpdateInterval time.Duration
	TuningPath     string
	Seed           int64
	LogLevel       string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:           5000,
		FallbackPort:   5001,
		WorldWidth:     50,
		WorldHeight:    50,
		MaxAgents:      10,
		UpdateInterval: time.Second,
		TuningPath:     "aitown.yaml",
		Seed:           42,
		LogLevel:       "info",
	}
}

// Validate checks that the configuration can run a town.
func (c Config) Validate() error {
	switch {
	case c.WorldWidth < 10 || c.WorldWidth > 1000:
		return goerr.Wrap(ErrInvalidConfig, "world width out of range", goerr.V("width", c.WorldWidth))
	case c.WorldHeight < 10 || c.WorldHeight > 1000:
		return goerr.Wrap(ErrInvalidConfig, "world height out of range", goerr.V("height", c.WorldHeight))
	case c.MaxAgents < 1:
		return goerr.Wrap(ErrInvalidConfig, "max agents must be positive", goerr.V("max_agents", c.MaxAgents))
	case c.UpdateInterval <= 0:
		return goerr.Wrap(ErrInvalidConfig, "update interval must be positive", goerr.V("interval", c.UpdateInterval))
	case !validPort(c.Port):
		return goerr.Wrap(ErrInvalidConfig, "port out of range", goerr.V("port", c.Port))
	case c.FallbackPort != 0 && !validPort(c.FallbackPort):
		return goerr.Wrap(ErrInvalidConfig, "fallback port out of range", goerr.V("port", c.FallbackPort))
	}
	return nil
}

// DialogueEnabled reports whether an API key is configured.
func (c Config) DialogueEnabled() bool {
	return c.APIKey != ""
}

func validPort(p int) bool {
	return p > 0 && p < 65536
}

// ResolvePort returns preferred if it can be bound, else fallback. A
// fallback of 0 asks the OS for any free port.
func ResolvePort(preferred, fallback int) (int, error) {
	if p, err := tryPort(preferred); err == nil {
		return p, nil
	}
	p, err := tryPort(fallback)
	if err != nil {
		return 0, goerr.Wrap(ErrNoPort, "preferred and fallback ports are busy",
			goerr.V("preferred", preferred), goerr.V("fallback", fallback))
	}
	return p, nil
}

func tryPort(port int) (int, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
