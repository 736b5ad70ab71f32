package tensor

import "math"

// Float16 is the raw IEEE-754 binary16 bit pattern.
//
//	sign: 1 bit
//	exp:  5 bits (bias 15)
//	frac: 10 bits
type Float16 uint16

// BFloat16 is the raw bfloat16 bit pattern: the upper half of a float32.
type BFloat16 uint16

const (
	f16SignMask uint16 = 0x8000
	f16ExpMask  uint16 = 0x7C00
	f16FracMask uint16 = 0x03FF

	f32ExpMask  uint32 = 0x7F800000
	f32FracMask uint32 = 0x007FFFFF
)

// Float32 widens h to float32 exactly.
func (h Float16) Float32() float32 {
	sign := uint32(uint16(h)&f16SignMask) << 16
	exp := uint32(uint16(h)&f16ExpMask) >> 10
	frac := uint32(uint16(h) & f16FracMask)

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalise so the float32 gets an implicit leading 1.
		e := int32(-14)
		for frac&0x0400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x03FF
		return math.Float32frombits(sign | uint32(127+e)<<23 | frac<<13)
	case 0x1F:
		return math.Float32frombits(sign | f32ExpMask | frac<<13)
	default:
		return math.Float32frombits(sign | (exp-15+127)<<23 | frac<<13)
	}
}

// Float16From narrows f to binary16, rounding to nearest even.
func Float16From(f float32) Float16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & f16SignMask
	exp := int32((bits & f32ExpMask) >> 23)
	frac := bits & f32FracMask

	if exp == 0xFF {
		if frac == 0 {
			return Float16(sign | f16ExpMask)
		}
		// Keep a quiet NaN with a non-zero payload.
		payload := uint16(frac>>13) | 0x0200
		return Float16(sign | f16ExpMask | payload&f16FracMask)
	}
	if exp == 0 {
		return Float16(sign)
	}

	e16 := exp - 127 + 15
	if e16 >= 0x1F {
		return Float16(sign | f16ExpMask)
	}
	if e16 <= 0 {
		if e16 < -10 {
			return Float16(sign)
		}
		mant := frac | 0x00800000
		shift := uint32(1-e16) + 13
		m := mant >> shift
		rem := mant & (uint32(1)<<shift - 1)
		half := uint32(1) << (shift - 1)
		if rem > half || (rem == half && m&1 == 1) {
			m++
		}
		return Float16(sign | uint16(m))
	}

	m := frac >> 13
	rem := frac & 0x1FFF
	if rem > 0x1000 || (rem == 0x1000 && m&1 == 1) {
		m++
		if m == 0x0400 {
			m = 0
			e16++
			if e16 >= 0x1F {
				return Float16(sign | f16ExpMask)
			}
		}
	}
	return Float16(sign | uint16(e16)<<10 | uint16(m))
}

// Float32 widens b to float32 exactly.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// BFloat16From narrows f to bfloat16, rounding to nearest even.
func BFloat16From(f float32) BFloat16 {
	bits := math.Float32bits(f)
	if bits&f32ExpMask == f32ExpMask && bits&f32FracMask != 0 {
		return BFloat16(bits>>16 | 0x0040)
	}
	rounding := uint32(0x7FFF) + (bits>>16)&1
	return BFloat16((bits + rounding) >> 16)
}
