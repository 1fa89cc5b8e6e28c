package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/gridtune/gridtune"
)

// sessionCmd loads a YAML session description and tunes it. The kernel
// named in the file must be registered with the CPU back-end.
func sessionCmd() *cli.Command {
	var opts tunerOptions
	var searchLog string

	flags := opts.flags()
	flags = append(flags, &cli.StringFlag{
		Name:        "search-log",
		Usage:       "write the search strategy trace to a file",
		Destination: &searchLog,
	})

	return &cli.Command{
		Name:      "run",
		Usage:     "Tune a session described by a YAML file",
		ArgsUsage: "<session.yaml>",
		Flags:     flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one session file argument")
			}
			config, err := gridtune.LoadSession(cmd.Args().First())
			if err != nil {
				return err
			}

			tuner, err := opts.newTuner()
			if err != nil {
				return err
			}
			defer tuner.Close()

			if searchLog != "" {
				tuner.OutputSearchLog(searchLog)
			}

			id, err := config.Apply(tuner)
			if err != nil {
				return err
			}
			if _, err := tuner.TuneSingleKernel(id); err != nil {
				return err
			}
			return opts.report(tuner, "session file: "+cmd.Args().First())
		},
	}
}
