package gridtune

import (
	"math"
)

// VerificationMethod selects how tuned kernel output is compared against
// the reference output.
type VerificationMethod int

const (
	// AbsoluteDifference accumulates the element-wise absolute differences
	// into an L1 norm and compares the sum against the tolerance.
	AbsoluteDifference VerificationMethod = iota
	// SideBySide fails as soon as any single element differs by more than
	// the tolerance.
	SideBySide
)

// Default tolerance for the AbsoluteDifference norm.
const maxL2Norm = 1e-4

// referenceOutput is one output argument's ground truth, downloaded to the
// host after the reference kernel ran.
type referenceOutput struct {
	dtype    DataType
	elements int
	data     []byte
}

// verifyOutput downloads every output scratch buffer and compares it
// against the stored reference. It returns true when no reference was set.
func (t *Tuner) verifyOutput() bool {
	if !t.hasReference || len(t.referenceOutputs) == 0 {
		return true
	}
	status := true
	for i, scratch := range t.outputCopies {
		if i >= len(t.referenceOutputs) {
			break
		}
		got := make([]byte, scratch.bytes())
		if err := t.queue.Read(scratch.buffer, 0, got); err != nil {
			t.printWarning("could not read output buffer: " + err.Error())
			return false
		}
		if !t.compareBuffers(t.referenceOutputs[i], got) {
			status = false
		}
	}
	return status
}

// compareBuffers applies the selected verification method to one output.
func (t *Tuner) compareBuffers(ref referenceOutput, got []byte) bool {
	switch t.verificationMethod {
	case SideBySide:
		for j := 0; j < ref.elements; j++ {
			diff := absoluteDifference(ref.dtype, ref.data, got, j)
			if math.IsNaN(diff) || diff > t.toleranceThreshold {
				t.printWarningf("Different results for position %d in output: difference is %.8f",
					j, diff)
				return false
			}
		}
		return true
	default:
		norm := 0.0
		for j := 0; j < ref.elements; j++ {
			norm += absoluteDifference(ref.dtype, ref.data, got, j)
		}
		if math.IsNaN(norm) || norm > t.toleranceThreshold {
			t.printWarningf("Results differ: L1 norm is %6.2e", norm)
			return false
		}
		return true
	}
}

// absoluteDifference computes the distance between the j-th elements of two
// raw buffers of the given type. Complex types use the sum of the real and
// imaginary component distances; half-precision values are decoded to
// 32-bit floats first.
func absoluteDifference(dtype DataType, ref, got []byte, j int) float64 {
	switch dtype {
	case TypeInt16:
		return math.Abs(float64(fromBytes[int16](ref)[j]) - float64(fromBytes[int16](got)[j]))
	case TypeInt32:
		return math.Abs(float64(fromBytes[int32](ref)[j]) - float64(fromBytes[int32](got)[j]))
	case TypeSizeT:
		a, b := fromBytes[uint64](ref)[j], fromBytes[uint64](got)[j]
		if a > b {
			return float64(a - b)
		}
		return float64(b - a)
	case TypeHalf:
		a := fromBytes[Float16](ref)[j].ToFloat32()
		b := fromBytes[Float16](got)[j].ToFloat32()
		return math.Abs(float64(a) - float64(b))
	case TypeFloat:
		return math.Abs(float64(fromBytes[float32](ref)[j]) - float64(fromBytes[float32](got)[j]))
	case TypeDouble:
		return math.Abs(fromBytes[float64](ref)[j] - fromBytes[float64](got)[j])
	case TypeComplexFloat:
		a, b := fromBytes[complex64](ref)[j], fromBytes[complex64](got)[j]
		return math.Abs(float64(real(a))-float64(real(b))) +
			math.Abs(float64(imag(a))-float64(imag(b)))
	case TypeComplexDouble:
		a, b := fromBytes[complex128](ref)[j], fromBytes[complex128](got)[j]
		return math.Abs(real(a)-real(b)) + math.Abs(imag(a)-imag(b))
	}
	return math.NaN()
}
