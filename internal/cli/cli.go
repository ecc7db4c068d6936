// Package cli implements the aitown command line.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/urfave/cli/v3"
)

// Error carries the process exit code for a failed command.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Run executes the command line in argv, writing output to stdout.
func Run(ctx context.Context, argv []string) *Error {
	return run(ctx, argv, os.Stdout)
}

func run(ctx context.Context, argv []string, out io.Writer) *Error {
	cmd := &cli.Command{
		Name:   "aitown",
		Usage:  "A small town of agents with needs, routines and conversations",
		Writer: out,
		Commands: []*cli.Command{
			runCommand(out),
			initCommand(out),
			doctorCommand(out),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}
	return nil
}
