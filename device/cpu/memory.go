package cpu

import (
	"unsafe"
)

// Mem is the window onto a device buffer that a kernel receives as an
// argument. It covers the bound byte range only, so a kernel launched over
// a buffer slice cannot see neighbouring iterations' data. The typed view
// methods reinterpret the bytes in place.
type Mem struct {
	bytes []byte
}

// Bytes returns the raw byte view of the window.
func (m Mem) Bytes() []byte { return m.bytes }

// Len returns the window size in bytes.
func (m Mem) Len() int { return len(m.bytes) }

// Float32 returns a float32 slice view of the window.
func (m Mem) Float32() []float32 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/4)
}

// Float64 returns a float64 slice view of the window.
func (m Mem) Float64() []float64 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/8)
}

// Int16 returns an int16 slice view of the window.
func (m Mem) Int16() []int16 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/2)
}

// Int32 returns an int32 slice view of the window.
func (m Mem) Int32() []int32 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/4)
}

// Uint16 returns a uint16 slice view of the window, the storage format of
// half-precision floats.
func (m Mem) Uint16() []uint16 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/2)
}

// Uint64 returns a uint64 slice view of the window.
func (m Mem) Uint64() []uint64 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/8)
}

// Complex64 returns a complex64 slice view of the window.
func (m Mem) Complex64() []complex64 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*complex64)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/8)
}

// Complex128 returns a complex128 slice view of the window.
func (m Mem) Complex128() []complex128 {
	if len(m.bytes) == 0 {
		return nil
	}
	return unsafe.Slice((*complex128)(unsafe.Pointer(&m.bytes[0])), len(m.bytes)/16)
}
