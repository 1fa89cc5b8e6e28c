// Package gridtune is an autotuner for parameterized compute kernels. A
// tuning session registers one or more kernels with named integer tuning
// parameters, enumerates the valid combinations of their values, and
// compiles, launches and times each candidate on a selected device. Output
// buffers can be verified against a reference kernel, and search strategies
// (full, random, simulated annealing, particle swarm) decide which
// configurations are worth measuring.
package gridtune

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/google/uuid"

	"github.com/gridtune/gridtune/device"
	"github.com/gridtune/gridtune/internal/logger"
)

// TunerResult is the outcome of running one kernel configuration. Time is
// the total elapsed milliseconds over all iterations, +Inf when the run
// failed. Valid reports that the run completed and, if a reference was set,
// that verification passed.
type TunerResult struct {
	KernelName    string
	Time          float64
	Threads       int
	Valid         bool
	Configuration Configuration
}

// Tuner is one tuning session on one device. It owns the registered
// kernels, their device buffers, the optional reference outputs and the
// result log. A Tuner must not be shared between goroutines.
type Tuner struct {
	dev   device.Device
	ctx   device.Context
	queue device.Queue

	sessionID uuid.UUID
	log       logger.Logger

	kernels         []*kernelSpec
	kernelSearchers []Searcher
	referenceKernel *kernelSpec
	hasReference    bool

	results          []TunerResult
	outputCopies     []bufferArg
	referenceOutputs []referenceOutput

	numRuns int
	seed    int64

	verificationMethod VerificationMethod
	toleranceThreshold float64

	suppressOutput      bool
	outputSearchProcess bool
	searchLogFilename   string

	out io.Writer
}

// defaultSeed makes search sequences reproducible across sessions unless
// the caller picks a different seed.
const defaultSeed = 0x6b17

// NewTuner opens a tuning session on the given platform and device.
func NewTuner(platformID, deviceID int) (*Tuner, error) {
	dev, err := device.Open(platformID, deviceID)
	if err != nil {
		return nil, NewDeviceError("NewTuner", "could not open device", err)
	}
	ctx, err := dev.NewContext()
	if err != nil {
		return nil, NewDeviceError("NewTuner", "could not create context", err)
	}
	queue, err := ctx.NewQueue()
	if err != nil {
		return nil, NewDeviceError("NewTuner", "could not create queue", err)
	}
	t := &Tuner{
		dev:                dev,
		ctx:                ctx,
		queue:              queue,
		sessionID:          uuid.New(),
		log:                logger.Pretty(os.Stderr, slog.LevelInfo),
		numRuns:            1,
		seed:               defaultSeed,
		verificationMethod: AbsoluteDifference,
		toleranceThreshold: maxL2Norm,
		out:                os.Stdout,
	}
	props := dev.Properties()
	t.printFullf("Initializing on platform %d device %d", platformID, deviceID)
	t.printFullf("Device name: '%s' (%s)", props.Name, props.Version)
	return t, nil
}

// Close releases every device resource the session owns.
func (t *Tuner) Close() {
	for _, scratch := range t.outputCopies {
		scratch.buffer.Release()
	}
	t.outputCopies = nil
	t.referenceOutputs = nil
	for _, k := range t.kernels {
		k.args.release()
	}
	if t.referenceKernel != nil {
		t.referenceKernel.args.release()
	}
	t.ctx.Release()
	t.printFullf("End of the tuning process")
}

// SetLogger replaces the diagnostic logger.
func (t *Tuner) SetLogger(log logger.Logger) {
	t.log = log
}

// SetSeed fixes the seed used by the stochastic search strategies.
func (t *Tuner) SetSeed(seed int64) {
	t.seed = seed
}

// SetNumRuns sets how often each configuration is launched; the minimum
// event time over the runs is kept, which filters scheduling noise.
func (t *Tuner) SetNumRuns(n int) error {
	if n < 1 {
		return NewConfigurationError("SetNumRuns",
			fmt.Sprintf("number of runs %d must be at least 1", n))
	}
	t.numRuns = n
	return nil
}

// SessionID returns the unique identifier stamped into reports and logs.
func (t *Tuner) SessionID() string {
	return t.sessionID.String()
}

// Device returns the properties of the session's device.
func (t *Tuner) Device() device.Properties {
	return t.dev.Properties()
}

// =================================================================================================
// Kernel registration

// AddKernel loads kernel source from one or more files, concatenates it and
// registers the kernel. The returned id identifies the kernel in all later
// calls.
func (t *Tuner) AddKernel(filenames []string, kernelName string, global, local []int) (int, error) {
	source, err := loadFiles(filenames)
	if err != nil {
		return 0, err
	}
	return t.AddKernelFromString(source, kernelName, global, local)
}

// AddKernelFromString registers a kernel from an in-memory source string
// with its base global and local launch shape.
func (t *Tuner) AddKernelFromString(source, kernelName string, global, local []int) (int, error) {
	if len(global) != len(local) {
		return 0, NewConfigurationError("AddKernel",
			"mismatching number of global/local dimensions")
	}
	k := newKernelSpec(kernelName, source, t.dev)
	k.setGlobalBase(global)
	k.setLocalBase(local)
	t.kernels = append(t.kernels, k)
	t.kernelSearchers = append(t.kernelSearchers, nil)
	return len(t.kernels) - 1, nil
}

// SetReference loads the reference kernel from files. Calling it again
// overwrites the previous reference.
func (t *Tuner) SetReference(filenames []string, kernelName string, global, local []int) error {
	source, err := loadFiles(filenames)
	if err != nil {
		return err
	}
	return t.SetReferenceFromString(source, kernelName, global, local)
}

// SetReferenceFromString sets the reference kernel from an in-memory source
// string. The reference runs at the start of every TuneSingleKernel call
// and once per TuneAllKernels call; its outputs become the ground truth for
// verification.
func (t *Tuner) SetReferenceFromString(source, kernelName string, global, local []int) error {
	if len(global) != len(local) {
		return NewConfigurationError("SetReference",
			"mismatching number of global/local dimensions")
	}
	if t.referenceKernel != nil {
		t.referenceKernel.args.release()
	}
	t.hasReference = true
	t.referenceKernel = newKernelSpec(kernelName, source, t.dev)
	t.referenceKernel.setGlobalBase(global)
	t.referenceKernel.setLocalBase(local)
	return nil
}

func loadFiles(filenames []string) (string, error) {
	source := ""
	for _, filename := range filenames {
		contents, err := os.ReadFile(filename)
		if err != nil {
			return "", NewConfigurationError("AddKernel",
				fmt.Sprintf("could not open kernel file %s: %v", filename, err))
		}
		source += string(contents)
	}
	return source, nil
}

func (t *Tuner) kernelByID(id int) (*kernelSpec, error) {
	if id < 0 || id >= len(t.kernels) {
		return nil, ErrInvalidKernelID
	}
	return t.kernels[id], nil
}

// =================================================================================================
// Parameter configuration

// AddParameter registers a tuning parameter and its candidate values for a
// kernel.
func (t *Tuner) AddParameter(id int, name string, values []int64) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	return k.addParameter(name, values)
}

// AddParameterReference textually defines a single constant on the
// reference kernel source.
func (t *Tuner) AddParameterReference(name string, value int64) error {
	if t.referenceKernel == nil {
		return ErrNoReference
	}
	t.referenceKernel.prependSource(Setting{Name: name, Value: value}.Define())
	return nil
}

// MulGlobalSize multiplies global dimensions by the named parameters'
// values. Pass an empty name to leave a dimension untouched.
func (t *Tuner) MulGlobalSize(id int, names ...string) error {
	return t.addModifier(id, names, GlobalMul)
}

// DivGlobalSize divides global dimensions by the named parameters' values.
func (t *Tuner) DivGlobalSize(id int, names ...string) error {
	return t.addModifier(id, names, GlobalDiv)
}

// AddGlobalSize adds the named parameters' values to global dimensions.
func (t *Tuner) AddGlobalSize(id int, names ...string) error {
	return t.addModifier(id, names, GlobalAdd)
}

// MulLocalSize multiplies local dimensions by the named parameters' values.
func (t *Tuner) MulLocalSize(id int, names ...string) error {
	return t.addModifier(id, names, LocalMul)
}

// DivLocalSize divides local dimensions by the named parameters' values.
func (t *Tuner) DivLocalSize(id int, names ...string) error {
	return t.addModifier(id, names, LocalDiv)
}

func (t *Tuner) addModifier(id int, names []string, op ModifierOp) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	k.addModifier(names, op)
	return nil
}

// SetMultirunKernelIterations splits each launch of the kernel into as many
// sub-launches as the named parameter's current value, each over an
// equal-sized slice of every buffer argument.
func (t *Tuner) SetMultirunKernelIterations(id int, parameterName string) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	if !k.parameterExists(parameterName) {
		return NewConfigurationError("SetMultirunKernelIterations",
			fmt.Sprintf("invalid parameter name %q", parameterName))
	}
	for _, parameter := range k.parameters {
		if parameter.Name != parameterName {
			continue
		}
		for _, value := range parameter.Values {
			if value < 1 {
				return NewConfigurationError("SetMultirunKernelIterations",
					fmt.Sprintf("invalid number of iterations %d", value))
			}
		}
		k.setIterations(parameter.Values, parameter.Name)
	}
	return nil
}

// AddConstraint restricts the configuration space with a user predicate
// over the named parameters' values.
func (t *Tuner) AddConstraint(id int, validIf ConstraintFunc, parameters ...string) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	for _, parameter := range parameters {
		if !k.parameterExists(parameter) {
			return NewConfigurationError("AddConstraint",
				fmt.Sprintf("invalid parameter %q", parameter))
		}
	}
	k.addConstraint(validIf, parameters)
	return nil
}

// SetLocalMemoryUsage declares the kernel's local-memory demand as a
// function of the named parameters' values. Configurations exceeding the
// device limit are filtered out.
func (t *Tuner) SetLocalMemoryUsage(id int, amount LocalMemoryFunc, parameters ...string) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	for _, parameter := range parameters {
		if !k.parameterExists(parameter) {
			return NewConfigurationError("SetLocalMemoryUsage",
				fmt.Sprintf("invalid parameter %q", parameter))
		}
	}
	k.setLocalMemoryUsage(amount, parameters)
	return nil
}

// =================================================================================================
// Arguments

// AddArgumentInput uploads host data as an input buffer argument of the
// kernel. Arguments bind in registration order.
func AddArgumentInput[T Element](t *Tuner, id int, data []T) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	return addBufferArgument(t, k, data, false)
}

// AddArgumentOutput uploads host data as an output buffer argument. Output
// buffers are copied to scratch buffers before every launch and take part
// in verification.
func AddArgumentOutput[T Element](t *Tuner, id int, data []T) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	return addBufferArgument(t, k, data, true)
}

// AddArgumentScalar registers a pass-by-value argument of the kernel.
func AddArgumentScalar[T Element](t *Tuner, id int, value T) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	k.args.addScalar(typeOf[T](), value)
	return nil
}

// AddArgumentInputReference is AddArgumentInput for the reference kernel.
func AddArgumentInputReference[T Element](t *Tuner, data []T) error {
	if t.referenceKernel == nil {
		return ErrNoReference
	}
	return addBufferArgument(t, t.referenceKernel, data, false)
}

// AddArgumentOutputReference is AddArgumentOutput for the reference kernel.
func AddArgumentOutputReference[T Element](t *Tuner, data []T) error {
	if t.referenceKernel == nil {
		return ErrNoReference
	}
	return addBufferArgument(t, t.referenceKernel, data, true)
}

// AddArgumentScalarReference is AddArgumentScalar for the reference kernel.
func AddArgumentScalarReference[T Element](t *Tuner, value T) error {
	if t.referenceKernel == nil {
		return ErrNoReference
	}
	t.referenceKernel.args.addScalar(typeOf[T](), value)
	return nil
}

// ModifyArgumentScalar replaces a previously registered scalar of the same
// type at the given positional index. Configurators use this to drive
// iterative algorithms between launches.
func ModifyArgumentScalar[T Element](t *Tuner, id int, value T, index int) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	return k.args.modifyScalar(value, typeOf[T](), index)
}

func addBufferArgument[T Element](t *Tuner, k *kernelSpec, data []T, output bool) error {
	if len(data) == 0 {
		return NewConfigurationError("AddArgument", "empty argument data")
	}
	dtype := typeOf[T]()
	buf, err := t.ctx.AllocBuffer(len(data) * dtype.ElemSize())
	if err != nil {
		return NewMemoryError("AddArgument", "could not allocate device buffer", err)
	}
	if err := t.queue.Write(buf, 0, toBytes(data)); err != nil {
		buf.Release()
		return NewDeviceError("AddArgument", "could not upload argument data", err)
	}
	arg := bufferArg{
		index:    k.args.nextIndex(),
		elements: len(data),
		dtype:    dtype,
		buffer:   buf,
	}
	if output {
		k.args.addOutput(arg)
	} else {
		k.args.addInput(arg)
	}
	return nil
}

// =================================================================================================
// Search strategy selection

// UseFullSearch visits every valid configuration. This is the default.
func (t *Tuner) UseFullSearch(id int) error {
	return t.useSearch(id, SearchFull)
}

// UseRandomSearch samples the given fraction of the valid set uniformly.
func (t *Tuner) UseRandomSearch(id int, fraction float64) error {
	return t.useSearch(id, SearchRandom, fraction)
}

// UseAnnealing explores the given fraction of the valid set by simulated
// annealing with the given maximum temperature.
func (t *Tuner) UseAnnealing(id int, fraction, maxTemperature float64) error {
	return t.useSearch(id, SearchAnnealing, fraction, maxTemperature)
}

// UsePSO explores the given fraction of the valid set with a particle
// swarm of the given size and influence weights.
func (t *Tuner) UsePSO(id int, fraction float64, swarmSize int,
	influenceGlobal, influenceLocal, influenceRandom float64) error {
	return t.useSearch(id, SearchPSO, fraction, float64(swarmSize),
		influenceGlobal, influenceLocal, influenceRandom)
}

func (t *Tuner) useSearch(id int, method SearchMethod, args ...float64) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	k.searchMethod = method
	k.searchArgs = args
	t.kernelSearchers[id] = nil
	return nil
}

// SetConfigurator routes the kernel's per-configuration execution through a
// host callback instead of the engine's direct launch path.
func (t *Tuner) SetConfigurator(id int, c Configurator) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	k.configurator = c
	return nil
}

// =================================================================================================
// Verification and output settings

// ChooseVerificationMethod selects how outputs are compared against the
// reference, with a non-negative tolerance.
func (t *Tuner) ChooseVerificationMethod(method VerificationMethod, tolerance float64) error {
	if tolerance < 0 {
		return ErrInvalidTolerance
	}
	t.verificationMethod = method
	t.toleranceThreshold = tolerance
	return nil
}

// OutputSearchLog writes the strategy's trace to the given file after each
// tuning run.
func (t *Tuner) OutputSearchLog(filename string) {
	t.outputSearchProcess = true
	t.searchLogFilename = filename
}

// SuppressOutput silences the result printers. This cannot be undone.
func (t *Tuner) SuppressOutput() {
	t.suppressOutput = true
}

// =================================================================================================
// Launch shape access (configurator support)

// ModifyGlobalRange replaces the kernel's base global launch shape.
func (t *Tuner) ModifyGlobalRange(id int, global []int) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	k.setGlobalBase(global)
	return nil
}

// ModifyLocalRange replaces the kernel's base local launch shape.
func (t *Tuner) ModifyLocalRange(id int, local []int) error {
	k, err := t.kernelByID(id)
	if err != nil {
		return err
	}
	k.setLocalBase(local)
	return nil
}

// GetGlobalRange returns the kernel's base global launch shape.
func (t *Tuner) GetGlobalRange(id int) ([]int, error) {
	k, err := t.kernelByID(id)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), k.globalBase...), nil
}

// GetLocalRange returns the kernel's base local launch shape.
func (t *Tuner) GetLocalRange(id int) ([]int, error) {
	k, err := t.kernelByID(id)
	if err != nil {
		return nil, err
	}
	return append([]int(nil), k.localBase...), nil
}

// Results returns the session's result log in completion order.
func (t *Tuner) Results() []TunerResult {
	return append([]TunerResult(nil), t.results...)
}

// BestResult returns the fastest valid result, or false when every entry
// failed or nothing ran yet.
func (t *Tuner) BestResult() (TunerResult, bool) {
	best := TunerResult{Time: math.Inf(1)}
	found := false
	for _, result := range t.results {
		if result.Valid && result.Time <= best.Time {
			best = result
			found = true
		}
	}
	return best, found
}
