package main

import (
	"context"
	"math/rand"

	"github.com/urfave/cli/v3"

	"github.com/gridtune/gridtune"
)

// vectorAddCmd tunes the work-group size of an element-wise vector
// addition against a fixed-shape reference run.
func vectorAddCmd() *cli.Command {
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
		Name:  "vectoradd",
		Usage: "Tune the work-group size of a vector addition",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tuner, err := opts.newTuner()
			if err != nil {
				return err
			}
			defer tuner.Close()

			n := int(elements)
			rng := rand.New(rand.NewSource(0))
			a := make([]float32, n)
			b := make([]float32, n)
			out := make([]float32, n)
			for i := range a {
				a[i] = rng.Float32()
				b[i] = rng.Float32()
			}

			id, err := tuner.AddKernelFromString(vectorAddSource, "vector_add",
				[]int{n}, []int{1})
			if err != nil {
				return err
			}
			if err := tuner.AddParameter(id, "WG", []int64{32, 64, 128, 256, 512}); err != nil {
				return err
			}
			if err := tuner.MulLocalSize(id, "WG"); err != nil {
				return err
			}

			if err := gridtune.AddArgumentInput(tuner, id, a); err != nil {
				return err
			}
			if err := gridtune.AddArgumentInput(tuner, id, b); err != nil {
				return err
			}
			if err := gridtune.AddArgumentOutput(tuner, id, out); err != nil {
				return err
			}
			if err := gridtune.AddArgumentScalar(tuner, id, uint64(n)); err != nil {
				return err
			}

			if err := tuner.SetReferenceFromString(vectorAddSource, "vector_add",
				[]int{n}, []int{64}); err != nil {
				return err
			}
			if err := tuner.AddParameterReference("WG", 64); err != nil {
				return err
			}
			if err := gridtune.AddArgumentInputReference(tuner, a); err != nil {
				return err
			}
			if err := gridtune.AddArgumentInputReference(tuner, b); err != nil {
				return err
			}
			if err := gridtune.AddArgumentOutputReference(tuner, out); err != nil {
				return err
			}
			if err := gridtune.AddArgumentScalarReference(tuner, uint64(n)); err != nil {
				return err
			}

			if _, err := tuner.TuneAllKernels(); err != nil {
				return err
			}
			return opts.report(tuner, "vector addition work-group tuning")
		},
	}
}
