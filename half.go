package gridtune

import (
	"math"
)

// Float16 is an IEEE 754 half-precision value in its raw storage format:
// one sign bit, five exponent bits (bias 15), ten fraction bits. The
// engine keeps halves in this form on both host and device and widens
// them only at comparison time.
type Float16 uint16

const (
	halfExpBits  = 5
	halfFracBits = 10
	halfExpBias  = 15
	halfExpMax   = 1<<halfExpBits - 1 // all-ones exponent: Inf or NaN
)

// ToFloat32 widens the half to single precision. Every finite half is
// exactly representable as a float32, so the conversion is lossless.
func (h Float16) ToFloat32() float32 {
	sign := float32(1)
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>halfFracBits) & halfExpMax
	frac := int(h) & (1<<halfFracBits - 1)

	switch exp {
	case halfExpMax:
		if frac != 0 {
			return float32(math.NaN())
		}
		return sign * float32(math.Inf(1))
	case 0:
		// Subnormal: no implicit leading bit, fixed scale of 2^-24.
		return sign * float32(math.Ldexp(float64(frac), -24))
	}
	// Normal: restore the implicit leading bit above the ten fraction
	// bits and rebase the exponent field.
	return sign * float32(math.Ldexp(float64(1<<halfFracBits|frac),
		exp-halfExpBias-halfFracBits))
}

// FromFloat32 narrows a float32 to half precision with round-to-nearest-
// even. Values beyond the half range saturate to infinity; values below
// the subnormal range flush to zero.
func FromFloat32(f float32) Float16 {
	var sign Float16
	v := float64(f)
	if math.Signbit(v) {
		sign = 0x8000
		v = -v
	}

	switch {
	case math.IsNaN(v):
		return sign | halfExpMax<<halfFracBits | 1<<(halfFracBits-1)
	case v >= 65520: // the rounding boundary above the largest finite half
		return sign | halfExpMax<<halfFracBits
	case v >= 0x1p-14: // normal range
		// An 11-bit significand including the leading bit. Rounding up
		// past it carries into the exponent field, and carrying out of
		// the top exponent lands exactly on the infinity encoding.
		frac, exp := math.Frexp(v)
		sig := int(math.RoundToEven(frac * (1 << (halfFracBits + 1))))
		field := (exp + halfExpBias - 1) << halfFracBits
		return sign | Float16(field+sig-1<<halfFracBits)
	case v > 0:
		// Subnormal: round the value in units of the smallest half.
		return sign | Float16(math.RoundToEven(math.Ldexp(v, 24)))
	}
	return sign
}
