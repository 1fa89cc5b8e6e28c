package cpu

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gridtune/gridtune/device"
)

// Builder creates the executable form of a named kernel from the integer
// #define values found in the compiled source. LocalMem, when non-nil,
// declares the kernel's local-memory demand in bytes for those values.
type Builder struct {
	Build    func(defines map[string]int64) KernelFunc
	LocalMem func(defines map[string]int64) int
}

var (
	kernelsMu sync.RWMutex
	kernels   = map[string]Builder{}
)

// Register makes a kernel available to every subsequently compiled program.
// Registering the same name twice replaces the earlier builder.
func Register(name string, b Builder) {
	if b.Build == nil {
		panic(fmt.Sprintf("cpu: Register(%q) with nil Build", name))
	}
	kernelsMu.Lock()
	kernels[name] = b
	kernelsMu.Unlock()
}

func lookup(name string) (Builder, bool) {
	kernelsMu.RLock()
	defer kernelsMu.RUnlock()
	b, ok := kernels[name]
	return b, ok
}

// Compile parses the source's #define header. A source containing an
// #error directive fails to compile, which gives callers a way to exercise
// compiler-failure paths.
func (c *context) Compile(source string) (device.Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("cpu: empty kernel source")
	}
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#error") {
			return nil, fmt.Errorf("cpu: compile error: %s", trimmed)
		}
	}
	return &program{
		dev:     c.dev,
		source:  source,
		defines: parseDefines(source),
	}, nil
}

// parseDefines collects every "#define NAME <integer>" line. Non-integer
// defines (macros, expressions) are left to the kernel source itself.
func parseDefines(source string) map[string]int64 {
	defines := make(map[string]int64)
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#define ") {
			continue
		}
		fields := strings.Fields(trimmed)
		if len(fields) != 3 {
			continue
		}
		value, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		defines[fields[1]] = value
	}
	return defines
}

type program struct {
	dev     *cpuDevice
	source  string
	defines map[string]int64
}

func (p *program) Kernel(name string) (device.Kernel, error) {
	if !strings.Contains(p.source, name) {
		return nil, fmt.Errorf("cpu: kernel %q not present in source", name)
	}
	builder, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("cpu: no registered implementation for kernel %q", name)
	}
	localMem := 0
	if builder.LocalMem != nil {
		localMem = builder.LocalMem(p.defines)
	}
	return &kernel{
		fn:       builder.Build(p.defines),
		localMem: localMem,
		args:     make(map[int]boundArg),
	}, nil
}

type boundArg struct {
	buf      *buffer
	offset   int
	length   int
	scalar   any
	isBuffer bool
}

type kernel struct {
	fn       KernelFunc
	localMem int
	args     map[int]boundArg
}

func (k *kernel) SetBufferArg(index int, buf device.Buffer, offset, length int) error {
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("cpu: foreign buffer type %T", buf)
	}
	if index < 0 {
		return fmt.Errorf("cpu: negative argument index %d", index)
	}
	if offset < 0 || length < 0 || offset+length > len(b.data) {
		return fmt.Errorf("cpu: buffer window [%d,%d) exceeds buffer size %d",
			offset, offset+length, len(b.data))
	}
	k.args[index] = boundArg{buf: b, offset: offset, length: length, isBuffer: true}
	return nil
}

func (k *kernel) SetScalarArg(index int, value any) error {
	if index < 0 {
		return fmt.Errorf("cpu: negative argument index %d", index)
	}
	switch value.(type) {
	case int16, int32, uint16, uint64, float32, float64, complex64, complex128:
	default:
		return fmt.Errorf("cpu: unsupported scalar argument type %T", value)
	}
	k.args[index] = boundArg{scalar: value}
	return nil
}

func (k *kernel) LocalMemUsage(d device.Device) int {
	return k.localMem
}

// gatherArgs assembles the positional argument list. Argument indices must
// be contiguous from zero, matching what a real driver would reject as a
// missing argument.
func (k *kernel) gatherArgs() ([]any, error) {
	indices := make([]int, 0, len(k.args))
	for index := range k.args {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	args := make([]any, 0, len(indices))
	for want, index := range indices {
		if index != want {
			return nil, fmt.Errorf("cpu: kernel argument %d not set", want)
		}
		bound := k.args[index]
		if bound.isBuffer {
			args = append(args, Mem{bytes: bound.buf.data[bound.offset : bound.offset+bound.length]})
		} else {
			args = append(args, bound.scalar)
		}
	}
	return args, nil
}
