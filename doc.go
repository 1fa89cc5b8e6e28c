// Package gridtune autotunes parameterized compute kernels.
//
// A session is opened on one device, kernels are registered with their
// tuning parameters, and the engine measures the configurations a search
// strategy selects:
//
//	tuner, err := gridtune.NewTuner(0, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tuner.Close()
//
//	id, _ := tuner.AddKernelFromString(source, "vector_add",
//		[]int{4096}, []int{1})
//	tuner.AddParameter(id, "WG", []int64{32, 64, 128, 256})
//	tuner.MulLocalSize(id, "WG")
//
//	gridtune.AddArgumentInput(tuner, id, a)
//	gridtune.AddArgumentInput(tuner, id, b)
//	gridtune.AddArgumentOutput(tuner, id, out)
//	gridtune.AddArgumentScalar(tuner, id, uint64(len(a)))
//
//	tuner.TuneSingleKernel(id)
//	tuner.PrintToScreen()
//
// Parameters reach the kernel source as "#define NAME VALUE" lines
// prepended per configuration; launch shape modifiers fold parameter
// values into the global and local extents. A reference kernel provides
// ground-truth outputs for verification, and the search strategies
// (full, random, simulated annealing, particle swarm) trade coverage for
// tuning time on large parameter spaces.
//
// The device sub-package defines the back-end contract; device/cpu is a
// host-CPU back-end that is always available as platform 0 and executes
// kernels registered as Go functions.
package gridtune
