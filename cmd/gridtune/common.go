package main

import (
	"os"

	"github.com/urfave/cli/v3"

	"github.com/gridtune/gridtune"
	_ "github.com/gridtune/gridtune/device/cpu"
	"github.com/gridtune/gridtune/internal/logger"
)

// tunerOptions are the flags every subcommand shares.
type tunerOptions struct {
	platform int64
	device   int64
	quiet    bool
	logLevel string
	csvFile  string
	jsonFile string
}

func (o *tunerOptions) flags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "platform",
			Usage:       "platform id",
			Value:       0,
			Destination: &o.platform,
		},
		&cli.Int64Flag{
			Name:        "device",
			Usage:       "device id",
			Value:       0,
			Destination: &o.device,
		},
		&cli.BoolFlag{
			Name:        "quiet",
			Aliases:     []string{"q"},
			Usage:       "suppress per-run output",
			Destination: &o.quiet,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "diagnostic log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &o.logLevel,
		},
		&cli.StringFlag{
			Name:        "csv",
			Usage:       "write results to a CSV file",
			Destination: &o.csvFile,
		},
		&cli.StringFlag{
			Name:        "json",
			Usage:       "write results to a JSON file",
			Destination: &o.jsonFile,
		},
	}
}

// newTuner opens a session configured by the shared flags.
func (o *tunerOptions) newTuner() (*gridtune.Tuner, error) {
	tuner, err := gridtune.NewTuner(int(o.platform), int(o.device))
	if err != nil {
		return nil, err
	}
	tuner.SetLogger(logger.Pretty(os.Stderr, logger.ParseLevel(o.logLevel)))
	if o.quiet {
		tuner.SuppressOutput()
	}
	return tuner, nil
}

// report prints the results and writes the optional output files.
func (o *tunerOptions) report(tuner *gridtune.Tuner, description string) error {
	tuner.PrintToScreen()
	tuner.PrintFormatted()
	if o.csvFile != "" {
		if err := tuner.PrintToFile(o.csvFile); err != nil {
			return err
		}
	}
	if o.jsonFile != "" {
		descriptions := map[string]string{"sample": description}
		if err := tuner.PrintJSON(o.jsonFile, descriptions); err != nil {
			return err
		}
	}
	return nil
}
