package main

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/gridtune/gridtune/device/cpu"
)

// The sample kernels. The source strings document the device-side code;
// the CPU back-end executes the Go functions registered below under the
// same names, instantiated with the #define values the tuner injects.

const vectorAddSource = `
// Adds two vectors element-wise. WG only shapes the launch.
__kernel void vector_add(__global const float* a, __global const float* b,
                         __global float* out, const unsigned long n) {
  const size_t i = get_global_id(0);
  if (i < n) {
    out[i] = a[i] + b[i];
  }
}
`

const reduceSource = `
// Sums the input vector into out[0]. Each work-item accumulates a strided
// slice and merges its partial sum with an atomic compare-and-swap, so any
// launch shape (including a persistent work-group grid smaller than the
// data) produces the full reduction.
__kernel void reduce(__global const float* src, __global float* dst,
                     const unsigned long n) {
  float acc = 0.0f;
  const size_t stride = get_global_size(0);
  for (size_t i = get_global_id(0); i < n; i += stride) {
    acc += src[i];
  }
  atomic_add_float(&dst[0], acc);
}
`

const reduceReferenceSource = `
// Single-threaded ground truth for the reduction.
__kernel void reduce_reference(__global const float* src, __global float* dst,
                               const unsigned long n) {
  if (get_global_id(0) == 0) {
    float acc = 0.0f;
    for (size_t i = 0; i < n; ++i) {
      acc += src[i];
    }
    dst[0] = acc;
  }
}
`

func init() {
	cpu.Register("vector_add", cpu.Builder{
		Build: func(defines map[string]int64) cpu.KernelFunc {
			return func(tid cpu.ThreadID, args ...any) {
				a := args[0].(cpu.Mem).Float32()
				b := args[1].(cpu.Mem).Float32()
				out := args[2].(cpu.Mem).Float32()
				i := tid.GlobalX()
				if i < len(out) {
					out[i] = a[i] + b[i]
				}
			}
		},
	})

	cpu.Register("reduce", cpu.Builder{
		Build: func(defines map[string]int64) cpu.KernelFunc {
			return func(tid cpu.ThreadID, args ...any) {
				src := args[0].(cpu.Mem).Float32()
				dst := args[1].(cpu.Mem).Float32()
				n := int(args[2].(uint64))
				stride := tid.GridDim.X * tid.BlockDim.X
				acc := float32(0)
				for i := tid.GlobalX(); i < n && i < len(src); i += stride {
					acc += src[i]
				}
				atomicAddFloat32(&dst[0], acc)
			}
		},
		LocalMem: func(defines map[string]int64) int {
			return int(defines["WORK_GROUP_SIZE_X"]) * 4
		},
	})

	cpu.Register("reduce_reference", cpu.Builder{
		Build: func(defines map[string]int64) cpu.KernelFunc {
			return func(tid cpu.ThreadID, args ...any) {
				if tid.GlobalX() != 0 {
					return
				}
				src := args[0].(cpu.Mem).Float32()
				dst := args[1].(cpu.Mem).Float32()
				n := int(args[2].(uint64))
				acc := float32(0)
				for i := 0; i < n && i < len(src); i++ {
					acc += src[i]
				}
				dst[0] = acc
			}
		},
	})
}

// atomicAddFloat32 merges a partial sum from concurrently running blocks.
func atomicAddFloat32(addr *float32, delta float32) {
	bits := (*uint32)(unsafe.Pointer(addr))
	for {
		old := atomic.LoadUint32(bits)
		updated := math.Float32bits(math.Float32frombits(old) + delta)
		if atomic.CompareAndSwapUint32(bits, old, updated) {
			return
		}
	}
}
