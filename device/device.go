// Package device defines the contract between the tuning engine and a
// compute back-end. The engine only ever talks to the opaque handle types
// declared here: it compiles source, allocates raw buffers, moves bytes
// between host and device, launches kernels with a global/local work shape,
// and reads per-launch elapsed time from an event.
//
// Back-ends register themselves as platforms; the engine resolves a
// (platform, device) pair through Open. The cpu sub-package provides a
// host-CPU back-end that is always available as platform 0.
package device

import (
	"fmt"
	"sync"
)

// Properties describes a device to the engine and to result reports.
type Properties struct {
	Name             string
	Vendor           string
	Version          string
	ComputeUnits     int
	CoreClockMHz     int
	MaxWorkGroupSize int
	MaxWorkItemSizes []int
	LocalMemSize     int
}

// Platform is an entry point to one back-end's devices.
type Platform interface {
	Name() string
	NumDevices() int
	Device(id int) (Device, error)
}

// Device answers admissibility questions and creates contexts.
// IsThreadConfigValid reports whether a local work shape can be launched at
// all on this device; IsLocalMemoryValid reports whether a kernel demanding
// the given number of bytes of local memory fits.
type Device interface {
	Properties() Properties
	IsThreadConfigValid(local []int) bool
	IsLocalMemoryValid(bytes int) bool
	NewContext() (Context, error)
}

// Context owns device resources: buffers and compiled programs.
type Context interface {
	NewQueue() (Queue, error)
	AllocBuffer(bytes int) (Buffer, error)
	Compile(source string) (Program, error)
	Release()
}

// Queue is an ordered command stream. All operations are complete when the
// call returns or, for Launch, when Finish returns after it.
type Queue interface {
	Finish() error
	Write(dst Buffer, offset int, src []byte) error
	Read(src Buffer, offset int, dst []byte) error
	Copy(dst, src Buffer, bytes int) error
	Launch(k Kernel, global, local []int) (Event, error)
}

// Program is a compiled unit of kernel source.
type Program interface {
	Kernel(name string) (Kernel, error)
}

// Kernel is a launchable entry point with positional arguments. Buffer
// arguments are bound as a byte window (offset, length) into a buffer so
// that the engine can slice buffers across multi-run iterations.
type Kernel interface {
	SetBufferArg(index int, buf Buffer, offset, length int) error
	SetScalarArg(index int, value any) error
	LocalMemUsage(d Device) int
}

// Buffer is an opaque device allocation.
type Buffer interface {
	Size() int
	Release() error
}

// Event carries the timing of one completed launch.
type Event interface {
	ElapsedMilliseconds() float64
}

var (
	registryMu sync.Mutex
	platforms  []Platform
)

// RegisterPlatform adds a back-end platform to the global registry. The
// registration order determines platform ids.
func RegisterPlatform(p Platform) {
	registryMu.Lock()
	defer registryMu.Unlock()
	platforms = append(platforms, p)
}

// Platforms returns the registered platforms in id order.
func Platforms() []Platform {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Platform, len(platforms))
	copy(out, platforms)
	return out
}

// Open resolves a (platform, device) id pair against the registry.
func Open(platformID, deviceID int) (Device, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if platformID < 0 || platformID >= len(platforms) {
		return nil, fmt.Errorf("device: platform %d does not exist (%d registered)",
			platformID, len(platforms))
	}
	return platforms[platformID].Device(deviceID)
}
