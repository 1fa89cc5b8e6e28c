package gridtune

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gridtune/gridtune/device"
)

// Parameter is a named tuning parameter and the candidate values it may
// take. Values are non-negative integers that reach the kernel source as
// #define constants.
type Parameter struct {
	Name   string
	Values []int64
}

// Setting is one (name, value) assignment. A full assignment of every
// parameter of a kernel, in declaration order, forms a Configuration.
type Setting struct {
	Name  string
	Value int64
}

// Define renders the setting as a preprocessor line.
func (s Setting) Define() string {
	return "#define " + s.Name + " " + strconv.FormatInt(s.Value, 10) + "\n"
}

// String renders the setting for result reports.
func (s Setting) String() string {
	return s.Name + " " + strconv.FormatInt(s.Value, 10)
}

// Configuration is an ordered assignment of values to every tuning
// parameter of a kernel.
type Configuration []Setting

// Lookup returns the value assigned to the named parameter.
func (c Configuration) Lookup(name string) (int64, bool) {
	for _, setting := range c {
		if setting.Name == name {
			return setting.Value, true
		}
	}
	return 0, false
}

// ConstraintFunc decides whether a combination of parameter values is
// allowed. It receives the values of the constraint's parameters in the
// order their names were given.
type ConstraintFunc func(values []int64) bool

// LocalMemoryFunc computes a kernel's local-memory demand in bytes from
// the values of the parameters it was registered with.
type LocalMemoryFunc func(values []int64) int

// ModifierOp enumerates how a parameter value reshapes one dimension of
// the base launch shape.
type ModifierOp int

const (
	GlobalMul ModifierOp = iota
	GlobalDiv
	GlobalAdd
	LocalMul
	LocalDiv
)

func (op ModifierOp) String() string {
	switch op {
	case GlobalMul:
		return "GlobalMul"
	case GlobalDiv:
		return "GlobalDiv"
	case GlobalAdd:
		return "GlobalAdd"
	case LocalMul:
		return "LocalMul"
	case LocalDiv:
		return "LocalDiv"
	}
	return "Unknown"
}

// threadSizeModifier ties one parameter name per dimension (or an empty
// string for "leave alone") to a modifier operation.
type threadSizeModifier struct {
	names []string
	op    ModifierOp
}

type constraint struct {
	validIf    ConstraintFunc
	parameters []string
}

type localMemory struct {
	amount     LocalMemoryFunc
	parameters []string
}

// iterationsModifier ties a parameter to the number of sub-launches a
// configuration is split into.
type iterationsModifier struct {
	validIterations []int64
	parameterName   string
}

// SearchMethod selects the strategy a kernel's Searcher uses.
type SearchMethod int

const (
	SearchFull SearchMethod = iota
	SearchRandom
	SearchAnnealing
	SearchPSO
)

func (m SearchMethod) String() string {
	switch m {
	case SearchFull:
		return "FullSearch"
	case SearchRandom:
		return "RandomSearch"
	case SearchAnnealing:
		return "Annealing"
	case SearchPSO:
		return "PSO"
	}
	return "Unknown"
}

// kernelSpec holds everything known about a single kernel: its source and
// launch shape, the tuning parameters and their permutations, the launch
// shape modifiers, the constraints, the argument list, and the selected
// search strategy.
type kernelSpec struct {
	name   string
	source string

	parameters     []Parameter
	configurations []Configuration
	constraints    []constraint
	localMemory    localMemory

	iterations           iterationsModifier
	numCurrentIterations int

	dev device.Device

	globalBase []int
	localBase  []int
	global     []int
	local      []int

	modifiers []threadSizeModifier

	searchMethod SearchMethod
	searchArgs   []float64

	args         argumentStore
	configurator Configurator
}

func newKernelSpec(name, source string, dev device.Device) *kernelSpec {
	return &kernelSpec{
		name:                 name,
		source:               source,
		dev:                  dev,
		iterations:           iterationsModifier{validIterations: []int64{1}},
		numCurrentIterations: 1,
		searchMethod:         SearchFull,
		localMemory: localMemory{
			amount: func([]int64) int { return 0 },
		},
	}
}

func (k *kernelSpec) setGlobalBase(global []int) {
	k.globalBase = append([]int(nil), global...)
	k.global = append([]int(nil), global...)
}

func (k *kernelSpec) setLocalBase(local []int) {
	k.localBase = append([]int(nil), local...)
	k.local = append([]int(nil), local...)
}

// prependSource textually concatenates extra source in front of the kernel
// source. AddParameterReference uses it to put defines on the reference
// kernel; per-configuration defines are built by configuredSource instead.
func (k *kernelSpec) prependSource(extra string) {
	k.source = extra + "\n" + k.source
}

func (k *kernelSpec) addParameter(name string, values []int64) error {
	if name == "" {
		return NewConfigurationError("AddParameter", "empty parameter name")
	}
	if len(values) == 0 {
		return NewConfigurationError("AddParameter",
			fmt.Sprintf("parameter %q has no values", name))
	}
	for _, value := range values {
		if value < 0 {
			return NewConfigurationError("AddParameter",
				fmt.Sprintf("parameter %q has negative value %d", name, value))
		}
	}
	if k.parameterExists(name) {
		return NewConfigurationError("AddParameter",
			fmt.Sprintf("parameter %q already exists", name))
	}
	k.parameters = append(k.parameters, Parameter{
		Name:   name,
		Values: append([]int64(nil), values...),
	})
	return nil
}

// parameterExists loops over all parameters and checks whether the given
// parameter name is present.
func (k *kernelSpec) parameterExists(name string) bool {
	for _, parameter := range k.parameters {
		if parameter.Name == name {
			return true
		}
	}
	return false
}

func (k *kernelSpec) addModifier(names []string, op ModifierOp) {
	k.modifiers = append(k.modifiers, threadSizeModifier{
		names: append([]string(nil), names...),
		op:    op,
	})
}

func (k *kernelSpec) addConstraint(validIf ConstraintFunc, parameters []string) {
	k.constraints = append(k.constraints, constraint{
		validIf:    validIf,
		parameters: append([]string(nil), parameters...),
	})
}

func (k *kernelSpec) setLocalMemoryUsage(amount LocalMemoryFunc, parameters []string) {
	k.localMemory = localMemory{
		amount:     amount,
		parameters: append([]string(nil), parameters...),
	}
}

func (k *kernelSpec) setIterations(validIterations []int64, parameterName string) {
	k.iterations = iterationsModifier{
		validIterations: append([]int64(nil), validIterations...),
		parameterName:   parameterName,
	}
}

// computeRanges applies every launch shape modifier, in registration order,
// to the base global/local shape under the given configuration. The result
// is stored in the kernel's current global/local shape.
func (k *kernelSpec) computeRanges(config Configuration) error {
	numDimensions := len(k.globalBase)
	if numDimensions != len(k.localBase) {
		return NewConfigurationError("ComputeRanges",
			"mismatching number of global/local dimensions")
	}
	globalValues := make([]int, numDimensions)
	localValues := make([]int, numDimensions)

	for dim := 0; dim < numDimensions; dim++ {
		globalValues[dim] = k.globalBase[dim]
		localValues[dim] = k.localBase[dim]

		for _, modifier := range k.modifiers {
			if dim >= len(modifier.names) {
				continue
			}
			name := modifier.names[dim]
			if name == "" {
				continue
			}
			value, ok := config.Lookup(name)
			if !ok {
				return NewConfigurationError("ComputeRanges",
					fmt.Sprintf("invalid modifier: %s", name))
			}
			switch modifier.op {
			case GlobalMul:
				globalValues[dim] *= int(value)
			case GlobalDiv:
				globalValues[dim] /= int(value)
			case GlobalAdd:
				globalValues[dim] += int(value)
			case LocalMul:
				localValues[dim] *= int(value)
			case LocalDiv:
				localValues[dim] /= int(value)
			}
		}
	}

	k.global = globalValues
	k.local = localValues
	return nil
}

// setNumCurrentIterations resolves the number of sub-launches for the given
// configuration from the iterations modifier (1 when none is set).
func (k *kernelSpec) setNumCurrentIterations(config Configuration) error {
	name := k.iterations.parameterName
	if name == "" {
		k.numCurrentIterations = 1
		return nil
	}
	value, ok := config.Lookup(name)
	if !ok {
		return NewConfigurationError("SetNumCurrentIterations",
			fmt.Sprintf("invalid kernel iterations modifier: %s", name))
	}
	k.numCurrentIterations = int(value)
	return nil
}

// localThreads returns the product of the current local shape.
func (k *kernelSpec) localThreads() int {
	threads := 1
	for _, size := range k.local {
		threads *= size
	}
	return threads
}

// configuredSource synthesizes the per-configuration source by prepending a
// #define line for every setting in declaration order.
func (k *kernelSpec) configuredSource(config Configuration) string {
	var sb strings.Builder
	for _, setting := range config {
		sb.WriteString(setting.Define())
	}
	sb.WriteString(k.source)
	return sb.String()
}
