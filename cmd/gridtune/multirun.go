package main

import (
	"context"
	"math/rand"

	"github.com/urfave/cli/v3"

	"github.com/gridtune/gridtune"
)

// multirunCmd tunes the iteration split of a vector addition: each
// configuration launches the kernel ITERS times over disjoint equal-sized
// buffer slices with a correspondingly smaller global shape.
func multirunCmd() *cli.Command {
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
		Name:  "multirun",
		Usage: "Tune the multi-run iteration split of a vector addition",
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
				[]int{n}, []int{64})
			if err != nil {
				return err
			}
			if err := tuner.AddParameter(id, "ITERS", []int64{1, 2, 4, 8}); err != nil {
				return err
			}
			if err := tuner.DivGlobalSize(id, "ITERS"); err != nil {
				return err
			}
			if err := tuner.SetMultirunKernelIterations(id, "ITERS"); err != nil {
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
			return opts.report(tuner, "multi-run iteration tuning")
		},
	}
}
