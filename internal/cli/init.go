package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/talgya/ai-town/internal/config"
)

func initCommand(out io.Writer) *cli.Command {
	var (
		s     settings
		force bool
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Write the default tuning file",
		Flags: []cli.Flag{
			tuningFlag(&s),
			&cli.BoolFlag{
				Name:        "force",
				Aliases:     []string{"f"},
				Usage:       "Overwrite an existing file",
				Destination: &force,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := config.Scaffold(s.tuningPath, force); err != nil {
				return err
			}
			fmt.Fprintf(out, "wrote %s\n", s.tuningPath)
			return nil
		},
	}
}
