package main

import (
	"context"
	"math/rand"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/gridtune/gridtune"
)

// reductionConfigurator reshapes the launch per configuration: a
// persistent-work-group configuration (UNBOUNDED_WG off) launches exactly
// WG_NUM work-groups instead of one work-item per element, and the strided
// kernel loop covers the rest of the data.
type reductionConfigurator struct {
	tuner    *gridtune.Tuner
	kernelID int
}

func (c *reductionConfigurator) CustomizedComputation(config gridtune.Configuration,
	global, local []int) (gridtune.TunerResult, error) {
	wgNum, _ := config.Lookup("WG_NUM")
	wgSize, _ := config.Lookup("WORK_GROUP_SIZE_X")

	previous, err := c.tuner.GetGlobalRange(c.kernelID)
	if err != nil {
		return gridtune.TunerResult{}, err
	}
	if wgNum > 0 {
		if err := c.tuner.ModifyGlobalRange(c.kernelID, []int{int(wgNum * wgSize)}); err != nil {
			return gridtune.TunerResult{}, err
		}
		defer c.tuner.ModifyGlobalRange(c.kernelID, previous)
	}

	return c.tuner.RunSingleKernel(c.kernelID, config)
}

// reductionCmd tunes a persistent-work-group sum reduction through a
// configurator callback.
func reductionCmd() *cli.Command {
	var opts tunerOptions
	var elements int64

	flags := opts.flags()
	flags = append(flags, &cli.Int64Flag{
		Name:        "elements",
		Aliases:     []string{"n"},
		Usage:       "vector length",
		Value:       1024 * 1024,
		Destination: &elements,
	})

	return &cli.Command{
		Name:  "reduction",
		Usage: "Tune a persistent-work-group sum reduction",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tuner, err := opts.newTuner()
			if err != nil {
				return err
			}
			defer tuner.Close()

			n := int(elements)
			rng := rand.New(rand.NewSource(0))
			src := make([]float32, n)
			dst := make([]float32, n)
			for i := range src {
				src[i] = rng.Float32()
			}

			id, err := tuner.AddKernelFromString(reduceSource, "reduce",
				[]int{n}, []int{1})
			if err != nil {
				return err
			}

			computeUnits := int64(runtime.NumCPU())
			if err := tuner.AddParameter(id, "WORK_GROUP_SIZE_X",
				[]int64{64, 128, 256}); err != nil {
				return err
			}
			if err := tuner.AddParameter(id, "UNBOUNDED_WG", []int64{0, 1}); err != nil {
				return err
			}
			if err := tuner.AddParameter(id, "WG_NUM",
				[]int64{0, computeUnits, computeUnits * 2, computeUnits * 4}); err != nil {
				return err
			}
			if err := tuner.MulLocalSize(id, "WORK_GROUP_SIZE_X"); err != nil {
				return err
			}
			if err := tuner.DivGlobalSize(id, "WORK_GROUP_SIZE_X"); err != nil {
				return err
			}
			if err := tuner.MulGlobalSize(id, "WORK_GROUP_SIZE_X"); err != nil {
				return err
			}
			// Persistent work-groups need a work-group count; unbounded
			// launches must not have one.
			persistent := func(v []int64) bool {
				return (v[0] != 0 && v[1] == 0) || (v[0] == 0 && v[1] > 0)
			}
			if err := tuner.AddConstraint(id, persistent, "UNBOUNDED_WG", "WG_NUM"); err != nil {
				return err
			}

			if err := gridtune.AddArgumentInput(tuner, id, src); err != nil {
				return err
			}
			if err := gridtune.AddArgumentOutput(tuner, id, dst); err != nil {
				return err
			}
			if err := gridtune.AddArgumentScalar(tuner, id, uint64(n)); err != nil {
				return err
			}

			if err := tuner.SetReferenceFromString(reduceReferenceSource,
				"reduce_reference", []int{n}, []int{256}); err != nil {
				return err
			}
			if err := gridtune.AddArgumentInputReference(tuner, src); err != nil {
				return err
			}
			if err := gridtune.AddArgumentOutputReference(tuner, dst); err != nil {
				return err
			}
			if err := gridtune.AddArgumentScalarReference(tuner, uint64(n)); err != nil {
				return err
			}

			// Summation order varies with the launch shape, so the norm
			// tolerance is loose.
			if err := tuner.ChooseVerificationMethod(gridtune.AbsoluteDifference, 1.0); err != nil {
				return err
			}
			if err := tuner.SetConfigurator(id, &reductionConfigurator{
				tuner:    tuner,
				kernelID: id,
			}); err != nil {
				return err
			}

			if _, err := tuner.TuneAllKernels(); err != nil {
				return err
			}
			return opts.report(tuner, "persistent work-group reduction")
		},
	}
}
