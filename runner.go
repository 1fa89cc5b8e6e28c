package gridtune

import (
	"fmt"
	"math"
	"os"

	"github.com/gridtune/gridtune/device"
)

// The tuning engine. One configuration's life cycle: synthesize source by
// prepending the #define lines, compile, restore the output buffers from
// their pristine originals, bind arguments, split the launch into
// iterations, time every launch, verify against the reference. Device
// failures inside a single run are converted into an invalid result with
// infinite time; the tuning loop continues.

// TuneSingleKernel tunes one kernel: it runs the reference (if set),
// clears the result log, then measures every configuration the kernel's
// search strategy selects. It returns the accumulated results.
func (t *Tuner) TuneSingleKernel(id int) ([]TunerResult, error) {
	if _, err := t.kernelByID(id); err != nil {
		return nil, err
	}
	return t.tuneSingleKernel(id, true, true)
}

// TuneAllKernels tunes every registered kernel in registration order
// against a single reference run, accumulating into one shared result log.
func (t *Tuner) TuneAllKernels() ([]TunerResult, error) {
	t.results = nil
	if err := t.RunReferenceKernel(); err != nil {
		return nil, err
	}
	for id := range t.kernels {
		if _, err := t.tuneSingleKernel(id, false, false); err != nil {
			return nil, err
		}
	}
	return t.Results(), nil
}

func (t *Tuner) tuneSingleKernel(id int, testReference, clearResults bool) ([]TunerResult, error) {
	if clearResults {
		t.results = nil
	}
	if testReference {
		if err := t.RunReferenceKernel(); err != nil {
			return nil, err
		}
	}

	k := t.kernels[id]
	t.printHeader("Testing kernel " + k.name)

	// A kernel without parameters is run once, as-is.
	if len(k.parameters) == 0 {
		k.numCurrentIterations = 1
		result := t.runKernel(k.source, k, 0, 1)
		result.Valid = !math.IsInf(result.Time, 1) && t.verifyOutput()
		t.results = append(t.results, result)
	} else {
		if err := k.setConfigurations(); err != nil {
			return nil, err
		}
		searcher, err := newSearcher(k, t.seed)
		if err != nil {
			return nil, err
		}
		total := searcher.NumConfigurations()
		for p := 0; p < total; p++ {
			config := searcher.GetConfiguration()
			t.log.Debug("exploring configuration", "step", p+1, "total", total)

			if err := k.computeRanges(config); err != nil {
				return nil, err
			}
			if err := k.setNumCurrentIterations(config); err != nil {
				return nil, err
			}

			var result TunerResult
			if k.configurator != nil {
				result, err = k.configurator.CustomizedComputation(config, k.global, k.local)
				if err != nil {
					t.printFailuref("Kernel %s failed", k.name)
					t.printFailuref("  configurator error: %v", err)
					result = TunerResult{KernelName: k.name, Time: math.Inf(1)}
				}
			} else {
				source := k.configuredSource(config)
				result = t.runKernel(source, k, p, total)
				result.Valid = !math.IsInf(result.Time, 1) && t.verifyOutput()
			}

			searcher.PushExecutionTime(result.Time)
			searcher.CalculateNextIndex()

			result.Configuration = config
			if math.IsInf(result.Time, 1) {
				t.printResult(t.out, result, messageFailure)
			} else if !result.Valid {
				t.printResult(t.out, result, messageWarning)
			}
			t.results = append(t.results, result)
		}
		if t.outputSearchProcess {
			if err := t.dumpSearchLog(searcher); err != nil {
				return nil, err
			}
		}
	}

	if clearResults {
		return t.Results(), nil
	}
	return nil, nil
}

// RunSingleKernel compiles and runs one kernel under the given
// configuration, without consulting the search strategy. It is the
// primitive configurator callbacks compose.
func (t *Tuner) RunSingleKernel(id int, config Configuration) (TunerResult, error) {
	k, err := t.kernelByID(id)
	if err != nil {
		return TunerResult{}, err
	}
	t.printHeader("Running kernel " + k.name)

	source := k.source
	if len(config) > 0 {
		source = k.configuredSource(config)
		if err := k.computeRanges(config); err != nil {
			return TunerResult{}, err
		}
		if err := k.setNumCurrentIterations(config); err != nil {
			return TunerResult{}, err
		}
	}

	result := t.runKernel(source, k, 0, 1)
	result.Valid = !math.IsInf(result.Time, 1) && t.verifyOutput()
	result.Configuration = config

	t.printHeader("Printing kernel run result to stdout")
	if result.Valid {
		t.printResult(t.out, result, messageResult)
	} else {
		t.printResult(t.out, result, messageWarning)
	}
	return result, nil
}

// RunReferenceKernel runs the reference kernel once and snapshots its
// output buffers to host memory as the verification ground truth. It is a
// no-op when no reference was set.
func (t *Tuner) RunReferenceKernel() error {
	if !t.hasReference {
		return nil
	}
	ref := t.referenceKernel
	t.printHeader("Testing reference " + ref.name)
	ref.numCurrentIterations = 1
	result := t.runKernel(ref.source, ref, 0, 1)
	if math.IsInf(result.Time, 1) {
		return NewDeviceError("RunReferenceKernel", "reference kernel failed", nil)
	}
	return t.storeReferenceOutput()
}

// storeReferenceOutput downloads every output scratch buffer of the
// just-completed reference run into host memory.
func (t *Tuner) storeReferenceOutput() error {
	t.referenceOutputs = nil
	for _, scratch := range t.outputCopies {
		data := make([]byte, scratch.bytes())
		if err := t.queue.Read(scratch.buffer, 0, data); err != nil {
			return NewDeviceError("StoreReferenceOutput", "could not read output buffer", err)
		}
		t.referenceOutputs = append(t.referenceOutputs, referenceOutput{
			dtype:    scratch.dtype,
			elements: scratch.elements,
			data:     data,
		})
	}
	return nil
}

// =================================================================================================
// Configurator primitives

// GetNumConfigurations initializes the kernel's persistent searcher if
// needed and returns the number of configurations it intends to visit.
func (t *Tuner) GetNumConfigurations(id int) (int, error) {
	if _, err := t.kernelByID(id); err != nil {
		return 0, err
	}
	if t.kernelSearchers[id] == nil {
		if err := t.initializeSearcher(id); err != nil {
			return 0, err
		}
	}
	return t.kernelSearchers[id].NumConfigurations(), nil
}

// GetNextConfiguration returns the configuration the kernel's persistent
// searcher currently points at. GetNumConfigurations must be called first.
func (t *Tuner) GetNextConfiguration(id int) (Configuration, error) {
	if _, err := t.kernelByID(id); err != nil {
		return nil, err
	}
	if t.kernelSearchers[id] == nil {
		return nil, NewConfigurationError("GetNextConfiguration",
			"searcher not initialized, call GetNumConfigurations first")
	}
	return t.kernelSearchers[id].GetConfiguration(), nil
}

// UpdateKernelConfiguration feeds the previous run's time back into the
// kernel's persistent searcher and advances it to the next choice.
func (t *Tuner) UpdateKernelConfiguration(id int, previousRunningTime float64) error {
	if _, err := t.kernelByID(id); err != nil {
		return err
	}
	if t.kernelSearchers[id] == nil {
		return NewConfigurationError("UpdateKernelConfiguration",
			"searcher for given kernel is not initialized")
	}
	t.kernelSearchers[id].PushExecutionTime(previousRunningTime)
	t.kernelSearchers[id].CalculateNextIndex()
	return nil
}

func (t *Tuner) initializeSearcher(id int) error {
	k := t.kernels[id]
	if err := k.setConfigurations(); err != nil {
		return err
	}
	searcher, err := newSearcher(k, t.seed)
	if err != nil {
		return err
	}
	t.kernelSearchers[id] = searcher
	return nil
}

// =================================================================================================
// The run-one-configuration loop

// runKernel compiles the configured source, restores output buffers,
// binds arguments, launches the kernel over its iterations and collects
// the timing. Any failure yields a result with infinite time.
func (t *Tuner) runKernel(source string, k *kernelSpec, configID, numConfigs int) TunerResult {
	fail := func(err error) TunerResult {
		t.printFailuref("Kernel %s failed", k.name)
		t.printFailuref("  caught error: %v", err)
		return TunerResult{KernelName: k.name, Time: math.Inf(1)}
	}

	t.log.Debug("starting compilation", "kernel", k.name)
	program, err := t.ctx.Compile(source)
	if err != nil {
		return fail(NewDeviceError("Compile", "device compiler error/warning occurred", err))
	}

	if err := t.copyOutputBuffers(k); err != nil {
		return fail(err)
	}

	global, local := k.global, k.local
	iterations := k.numCurrentIterations
	totalElapsed := 0.0

	for iteration := 0; iteration < iterations; iteration++ {
		kern, err := program.Kernel(k.name)
		if err != nil {
			return fail(NewDeviceError("Run", "invalid program binary", err))
		}

		if err := t.bindBuffers(kern, k, iteration, iterations); err != nil {
			return fail(err)
		}
		for _, scalar := range k.args.scalars {
			if err := kern.SetScalarArg(scalar.index, scalar.deviceValue()); err != nil {
				return fail(NewDeviceError("Run", "could not set scalar argument", err))
			}
		}

		localMemUsage := kern.LocalMemUsage(t.dev)
		if !t.dev.IsLocalMemoryValid(localMemUsage) {
			return fail(NewCapacityError("Run", "using too much local memory", localMemUsage))
		}

		if err := t.queue.Finish(); err != nil {
			return fail(NewRuntimeError("Run", "queue finish failed", err))
		}

		if iterations == 1 {
			t.printRunf("Running %s", k.name)
		} else {
			t.printRunf("Running %s (Iteration %d / %d)", k.name, iteration+1, iterations)
		}

		elapsed := math.Inf(1)
		for run := 0; run < t.numRuns; run++ {
			event, err := t.queue.Launch(kern, global, local)
			if err != nil {
				return fail(NewRuntimeError("Run", "kernel launch failed", err))
			}
			if err := t.queue.Finish(); err != nil {
				return fail(NewRuntimeError("Run", "queue finish failed", err))
			}
			if ms := event.ElapsedMilliseconds(); ms < elapsed {
				elapsed = ms
			}
		}
		totalElapsed += elapsed
	}

	t.printOKf("Completed %s (%.1f ms) - %d out of %d",
		k.name, totalElapsed, configID+1, numConfigs)

	return TunerResult{
		KernelName: k.name,
		Time:       totalElapsed,
		Threads:    k.localThreads(),
	}
}

// bindBuffers binds every input buffer and every output scratch buffer. A
// multi-iteration launch binds the iteration's equal-sized slice instead
// of the full buffer, so consecutive iterations touch disjoint windows.
func (t *Tuner) bindBuffers(kern device.Kernel, k *kernelSpec, iteration, iterations int) error {
	bind := func(arg bufferArg) error {
		window := arg.bytes() / iterations
		if err := kern.SetBufferArg(arg.index, arg.buffer, window*iteration, window); err != nil {
			return NewDeviceError("Run", "could not set buffer argument", err)
		}
		return nil
	}
	for _, arg := range k.args.inputs {
		if err := bind(arg); err != nil {
			return err
		}
	}
	for _, arg := range t.outputCopies {
		if err := bind(arg); err != nil {
			return err
		}
	}
	return nil
}

// copyOutputBuffers releases the previous launch's scratch buffers and
// creates fresh copies of every output argument. Kernels only ever write
// the copies; the originals stay pristine for the next launch.
func (t *Tuner) copyOutputBuffers(k *kernelSpec) error {
	for _, scratch := range t.outputCopies {
		scratch.buffer.Release()
	}
	t.outputCopies = nil

	for _, output := range k.args.outputs {
		scratch, err := t.ctx.AllocBuffer(output.bytes())
		if err != nil {
			return NewMemoryError("Run", "could not allocate output copy", err)
		}
		if err := t.queue.Copy(scratch, output.buffer, output.bytes()); err != nil {
			scratch.Release()
			return NewDeviceError("Run", "could not copy output buffer", err)
		}
		t.outputCopies = append(t.outputCopies, bufferArg{
			index:    output.index,
			elements: output.elements,
			dtype:    output.dtype,
			buffer:   scratch,
		})
	}
	return nil
}

// dumpSearchLog writes the strategy trace to the configured file.
func (t *Tuner) dumpSearchLog(searcher Searcher) error {
	file, err := os.Create(t.searchLogFilename)
	if err != nil {
		return NewConfigurationError("OutputSearchLog",
			fmt.Sprintf("could not create search log %s: %v", t.searchLogFilename, err))
	}
	defer file.Close()
	if _, err := fmt.Fprintf(file, "# gridtune search log, session %s\n", t.sessionID); err != nil {
		return err
	}
	return searcher.PrintLog(file)
}
