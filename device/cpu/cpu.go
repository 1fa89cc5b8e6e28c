// Package cpu implements the device contract on the host CPU. Kernels are
// Go functions registered by name; "compiling" a source string parses the
// injected #define header and instantiates the registered function with
// those values. Execution fans blocks out over worker goroutines so that
// launch timings reflect real parallel work.
//
// The package registers itself as platform 0 with a single device.
package cpu

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gridtune/gridtune/device"
)

// Device capability limits. These mirror a typical discrete GPU so that the
// engine's admissibility filtering is exercised for real.
const (
	MaxWorkGroupSize = 1024
	MaxWorkItemDimX  = 1024
	MaxWorkItemDimY  = 1024
	MaxWorkItemDimZ  = 64
	LocalMemSize     = 48 * 1024
)

func init() {
	device.RegisterPlatform(&platform{})
}

type platform struct{}

func (p *platform) Name() string    { return "CPU" }
func (p *platform) NumDevices() int { return 1 }

func (p *platform) Device(id int) (device.Device, error) {
	if id != 0 {
		return nil, fmt.Errorf("cpu: invalid device id %d", id)
	}
	return &cpuDevice{}, nil
}

type cpuDevice struct{}

func (d *cpuDevice) Properties() device.Properties {
	return device.Properties{
		Name:             deviceName(),
		Vendor:           runtime.GOARCH,
		Version:          "cpu 1.0",
		ComputeUnits:     runtime.NumCPU(),
		CoreClockMHz:     0,
		MaxWorkGroupSize: MaxWorkGroupSize,
		MaxWorkItemSizes: []int{MaxWorkItemDimX, MaxWorkItemDimY, MaxWorkItemDimZ},
		LocalMemSize:     LocalMemSize,
	}
}

func (d *cpuDevice) IsThreadConfigValid(local []int) bool {
	if len(local) == 0 || len(local) > 3 {
		return false
	}
	caps := []int{MaxWorkItemDimX, MaxWorkItemDimY, MaxWorkItemDimZ}
	total := 1
	for dim, size := range local {
		if size < 1 || size > caps[dim] {
			return false
		}
		total *= size
	}
	return total <= MaxWorkGroupSize
}

func (d *cpuDevice) IsLocalMemoryValid(bytes int) bool {
	return bytes >= 0 && bytes <= LocalMemSize
}

func (d *cpuDevice) NewContext() (device.Context, error) {
	return &context{dev: d}, nil
}

type context struct {
	dev *cpuDevice

	mu      sync.Mutex
	buffers []*buffer
}

func (c *context) NewQueue() (device.Queue, error) {
	return &queue{ctx: c}, nil
}

func (c *context) AllocBuffer(bytes int) (device.Buffer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("cpu: buffer size must be positive, got %d", bytes)
	}
	b := &buffer{data: make([]byte, bytes)}
	c.mu.Lock()
	c.buffers = append(c.buffers, b)
	c.mu.Unlock()
	return b, nil
}

func (c *context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.buffers {
		b.data = nil
	}
	c.buffers = nil
}

type buffer struct {
	data     []byte
	released bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) Release() error {
	if b.released {
		return fmt.Errorf("cpu: buffer released twice")
	}
	b.released = true
	return nil
}

type queue struct {
	ctx *context
}

// Finish is a no-op: every command on this back-end completes synchronously.
func (q *queue) Finish() error { return nil }

func (q *queue) Write(dst device.Buffer, offset int, src []byte) error {
	b, err := q.backing(dst)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(src) > len(b.data) {
		return fmt.Errorf("cpu: write of %d bytes at offset %d exceeds buffer size %d",
			len(src), offset, len(b.data))
	}
	copy(b.data[offset:], src)
	return nil
}

func (q *queue) Read(src device.Buffer, offset int, dst []byte) error {
	b, err := q.backing(src)
	if err != nil {
		return err
	}
	if offset < 0 || offset+len(dst) > len(b.data) {
		return fmt.Errorf("cpu: read of %d bytes at offset %d exceeds buffer size %d",
			len(dst), offset, len(b.data))
	}
	copy(dst, b.data[offset:])
	return nil
}

func (q *queue) Copy(dst, src device.Buffer, bytes int) error {
	db, err := q.backing(dst)
	if err != nil {
		return err
	}
	sb, err := q.backing(src)
	if err != nil {
		return err
	}
	if bytes > len(sb.data) || bytes > len(db.data) {
		return fmt.Errorf("cpu: copy of %d bytes exceeds buffer sizes (%d -> %d)",
			bytes, len(sb.data), len(db.data))
	}
	copy(db.data[:bytes], sb.data[:bytes])
	return nil
}

func (q *queue) backing(buf device.Buffer) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok {
		return nil, fmt.Errorf("cpu: foreign buffer type %T", buf)
	}
	if b.released {
		return nil, fmt.Errorf("cpu: use of released buffer")
	}
	return b, nil
}

func (q *queue) Launch(k device.Kernel, global, local []int) (device.Event, error) {
	kern, ok := k.(*kernel)
	if !ok {
		return nil, fmt.Errorf("cpu: foreign kernel type %T", k)
	}
	grid, block, err := launchShape(global, local)
	if err != nil {
		return nil, err
	}
	args, err := kern.gatherArgs()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := runGrid(kern.fn, grid, block, args); err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	return &event{elapsed: elapsed}, nil
}

// launchShape converts the engine's global/local extents into a grid of
// blocks, enforcing the divisibility rule of the launch model.
func launchShape(global, local []int) (grid, block Dim3, err error) {
	if len(global) != len(local) || len(global) == 0 || len(global) > 3 {
		return Dim3{}, Dim3{}, fmt.Errorf("cpu: invalid launch dimensions: global %v local %v",
			global, local)
	}
	g := [3]int{1, 1, 1}
	l := [3]int{1, 1, 1}
	for dim := range global {
		if local[dim] < 1 || global[dim] < 0 {
			return Dim3{}, Dim3{}, fmt.Errorf("cpu: invalid extent in dimension %d: global %d local %d",
				dim, global[dim], local[dim])
		}
		if global[dim]%local[dim] != 0 {
			return Dim3{}, Dim3{}, fmt.Errorf("cpu: global size %d not divisible by local size %d in dimension %d",
				global[dim], local[dim], dim)
		}
		g[dim] = global[dim] / local[dim]
		l[dim] = local[dim]
	}
	return Dim3{X: g[0], Y: g[1], Z: g[2]}, Dim3{X: l[0], Y: l[1], Z: l[2]}, nil
}

type event struct {
	elapsed time.Duration
}

func (e *event) ElapsedMilliseconds() float64 {
	return float64(e.elapsed) / float64(time.Millisecond)
}
