package gridtune

import (
	"fmt"
	"unsafe"

	"github.com/gridtune/gridtune/device"
)

// DataType identifies the element type of a kernel argument.
type DataType int

const (
	TypeInt16 DataType = iota
	TypeInt32
	TypeSizeT
	TypeHalf
	TypeFloat
	TypeDouble
	TypeComplexFloat
	TypeComplexDouble
)

// ElemSize returns the storage size of one element in bytes.
func (t DataType) ElemSize() int {
	switch t {
	case TypeInt16, TypeHalf:
		return 2
	case TypeInt32, TypeFloat:
		return 4
	case TypeSizeT, TypeDouble, TypeComplexFloat:
		return 8
	case TypeComplexDouble:
		return 16
	}
	return 0
}

func (t DataType) String() string {
	switch t {
	case TypeInt16:
		return "int16"
	case TypeInt32:
		return "int32"
	case TypeSizeT:
		return "size_t"
	case TypeHalf:
		return "half"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeComplexFloat:
		return "float2"
	case TypeComplexDouble:
		return "double2"
	}
	return "unknown"
}

// Element is the set of host types that can be registered as kernel
// arguments. Float16 carries half-precision values; uint64 stands in for
// the device's size type.
type Element interface {
	int16 | int32 | uint64 | Float16 | float32 | float64 | complex64 | complex128
}

// typeOf maps a host element type to its DataType tag.
func typeOf[T Element]() DataType {
	var zero T
	switch any(zero).(type) {
	case int16:
		return TypeInt16
	case int32:
		return TypeInt32
	case uint64:
		return TypeSizeT
	case Float16:
		return TypeHalf
	case float32:
		return TypeFloat
	case float64:
		return TypeDouble
	case complex64:
		return TypeComplexFloat
	case complex128:
		return TypeComplexDouble
	}
	panic("gridtune: unreachable element type")
}

// toBytes reinterprets a typed host slice as raw bytes, without copying.
func toBytes[T Element](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	n := len(data) * int(unsafe.Sizeof(data[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), n)
}

// fromBytes reinterprets raw bytes as a typed host slice, without copying.
func fromBytes[T Element](data []byte) []T {
	if len(data) == 0 {
		return nil
	}
	var zero T
	n := len(data) / int(unsafe.Sizeof(zero))
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), n)
}

// bufferArg is one device-resident kernel argument: a typed buffer plus the
// positional index it binds to.
type bufferArg struct {
	index    int
	elements int
	dtype    DataType
	buffer   device.Buffer
}

func (a bufferArg) bytes() int { return a.elements * a.dtype.ElemSize() }

// scalarArg is one pass-by-value kernel argument.
type scalarArg struct {
	index int
	dtype DataType
	value any
}

// deviceValue converts the stored scalar to the representation the device
// layer accepts. Half-precision values travel as their raw bit pattern.
func (a scalarArg) deviceValue() any {
	if h, ok := a.value.(Float16); ok {
		return uint16(h)
	}
	return a.value
}

// argumentStore is the ordered argument list of one kernel. Insertion order
// assigns the positional index; inputs, outputs and scalars live in
// separate lists but share the index counter.
type argumentStore struct {
	inputs  []bufferArg
	outputs []bufferArg
	scalars []scalarArg
	counter int
}

func (s *argumentStore) nextIndex() int {
	index := s.counter
	s.counter++
	return index
}

func (s *argumentStore) addInput(arg bufferArg) {
	s.inputs = append(s.inputs, arg)
}

func (s *argumentStore) addOutput(arg bufferArg) {
	s.outputs = append(s.outputs, arg)
}

func (s *argumentStore) addScalar(dtype DataType, value any) {
	s.scalars = append(s.scalars, scalarArg{
		index: s.nextIndex(),
		dtype: dtype,
		value: value,
	})
}

// modifyScalar replaces a previously registered scalar of the same type at
// the given positional index.
func (s *argumentStore) modifyScalar(value any, dtype DataType, index int) error {
	for i, scalar := range s.scalars {
		if scalar.index != index {
			continue
		}
		if scalar.dtype != dtype {
			return NewConfigurationError("ModifyArgumentScalar",
				fmt.Sprintf("argument %d holds %s, not %s", index, scalar.dtype, dtype))
		}
		s.scalars[i].value = value
		return nil
	}
	return NewConfigurationError("ModifyArgumentScalar",
		fmt.Sprintf("no scalar argument at index %d", index))
}

// release frees every device buffer owned by the store.
func (s *argumentStore) release() {
	for _, arg := range s.inputs {
		arg.buffer.Release()
	}
	for _, arg := range s.outputs {
		arg.buffer.Release()
	}
	s.inputs = nil
	s.outputs = nil
	s.scalars = nil
}
