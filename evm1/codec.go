package evm1

import (
	"math"

	"github.com/x448/float16"

	"esovm.org/esovm/spec"
)

// Flags are the condition flags. Only TEST sets them.
type Flags struct {
	// Zero is set if the value was zero
	Zero bool
	// Sign is set if the value was negative
	Sign bool
	// Carry is set if the value was unordered (NaN)
	Carry bool
}

// Holds returns true if the condition is satisfied by the flags
func (f Flags) Holds(c spec.Cond) bool {
	switch c {
	case spec.CondEQ:
		return f.Zero
	case spec.CondNE:
		return !f.Zero
	case spec.CondLT, spec.CondNeg:
		return f.Sign
	case spec.CondGT:
		return !f.Zero && !f.Sign && !f.Carry
	case spec.CondNotNeg:
		return !f.Sign && !f.Carry
	default:
		return false
	}
}

// flagsOf compares a value of type dt with zero
func flagsOf(dt spec.DataType, bits uint64) Flags {
	switch {
	case dt.IsFloat():
		f := toFloat(dt, bits)
		return Flags{Zero: f == 0, Sign: f < 0, Carry: math.IsNaN(f)}
	case dt == spec.Word:
		return Flags{Zero: bits == 0}
	default:
		x := signExtend(bits, dt)
		return Flags{Zero: x == 0, Sign: x < 0}
	}
}

// mask returns a mask of the bits used by a value of type dt
func mask(dt spec.DataType) uint64 {
	n := dt.Size() * 8
	if n == 64 {
		return math.MaxUint64
	}
	return 1<<n - 1
}

// signExtend interprets the low bits of x as a signed integer of type dt
func signExtend(x uint64, dt spec.DataType) int64 {
	sh := 64 - dt.Size()*8
	return int64(x<<sh) >> sh
}

// signExtendN interprets the low n bits of x as a signed integer
func signExtendN(x uint64, n int) int64 {
	sh := 64 - n
	return int64(x<<sh) >> sh
}

// immediate widens the 32 bit immediate field to a value of type dt
func immediate(dt spec.DataType, x uint32) uint64 {
	switch dt {
	case spec.Int64:
		return uint64(int64(int32(x)))
	case spec.Float16:
		return uint64(uint16(x))
	case spec.Float64:
		return math.Float64bits(float64(math.Float32frombits(x)))
	default:
		return uint64(x) & mask(dt)
	}
}

// toFloat returns the value of a float type
func toFloat(dt spec.DataType, bits uint64) float64 {
	switch dt {
	case spec.Float16:
		return float64(float16.Frombits(uint16(bits)).Float32())
	case spec.Float32:
		return float64(math.Float32frombits(uint32(bits)))
	default:
		return math.Float64frombits(bits)
	}
}

// fromFloat encodes f as a value of float type dt
func fromFloat(dt spec.DataType, f float64) uint64 {
	switch dt {
	case spec.Float16:
		return uint64(float16.Fromfloat32(float32(f)).Bits())
	case spec.Float32:
		return uint64(math.Float32bits(float32(f)))
	default:
		return math.Float64bits(f)
	}
}

func intArith[T int64 | uint64](op spec.Op, a, b T) (T, error) {
	switch op {
	case spec.ADD:
		return a + b, nil
	case spec.SUB:
		return a - b, nil
	case spec.MUL:
		return a * b, nil
	case spec.DIV:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case spec.MOD:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	case spec.AND:
		return a & b, nil
	case spec.OR:
		return a | b, nil
	case spec.XOR:
		return a ^ b, nil
	default:
		panic(op)
	}
}

func floatArith[T float32 | float64](op spec.Op, a, b T) (T, error) {
	switch op {
	case spec.ADD:
		return a + b, nil
	case spec.SUB:
		return a - b, nil
	case spec.MUL:
		return a * b, nil
	case spec.DIV:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	case spec.MOD:
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return T(math.Mod(float64(a), float64(b))), nil
	default:
		return 0, ErrFloatOperation
	}
}

// shift implements SHL, SHR and ASR on the bit pattern of an integer type.
// The shift count is taken modulo the width.
func shift(op spec.Op, dt spec.DataType, a, b uint64) uint64 {
	width := uint64(dt.Size() * 8)
	n := b & (width - 1)
	switch op {
	case spec.SHL:
		return (a << n) & mask(dt)
	case spec.SHR:
		return (a & mask(dt)) >> n
	case spec.ASR:
		return uint64(signExtend(a, dt)>>n) & mask(dt)
	default:
		panic(op)
	}
}

// arithBits computes op on two values of type dt
func arithBits(op spec.Op, dt spec.DataType, a, b uint64) (uint64, error) {
	switch op {
	case spec.SHL, spec.SHR, spec.ASR:
		if dt.IsFloat() {
			return 0, ErrFloatOperation
		}
		return shift(op, dt, a, b), nil
	}
	switch dt {
	case spec.Float16:
		x, y := float16.Frombits(uint16(a)).Float32(), float16.Frombits(uint16(b)).Float32()
		z, err := floatArith(op, x, y)
		return uint64(float16.Fromfloat32(z).Bits()), err
	case spec.Float32:
		z, err := floatArith(op, math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))
		return uint64(math.Float32bits(z)), err
	case spec.Float64:
		z, err := floatArith(op, math.Float64frombits(a), math.Float64frombits(b))
		return math.Float64bits(z), err
	case spec.Word:
		return intArith(op, a, b)
	default:
		z, err := intArith(op, signExtend(a, dt), signExtend(b, dt))
		return uint64(z) & mask(dt), err
	}
}

// convertBits converts a value of type src to type dst.
// Integers are sign extended or truncated, floats become integers by truncation toward zero
// with saturation, NaN becomes 0.
func convertBits(src, dst spec.DataType, bits uint64) uint64 {
	if src == dst {
		return bits & mask(dst)
	}
	switch {
	case src.IsFloat() && dst.IsFloat():
		return fromFloat(dst, toFloat(src, bits))
	case src.IsFloat():
		return floatToInt(dst, toFloat(src, bits))
	case dst.IsFloat():
		if src == spec.Word {
			return fromFloat(dst, float64(bits))
		}
		x := signExtend(bits, src)
		if dst == spec.Float32 || dst == spec.Float16 {
			// convert directly so only one rounding happens
			f := float32(x)
			if dst == spec.Float16 {
				return uint64(float16.Fromfloat32(f).Bits())
			}
			return uint64(math.Float32bits(f))
		}
		return math.Float64bits(float64(x))
	default:
		if src == spec.Word {
			return bits & mask(dst)
		}
		return uint64(signExtend(bits, src)) & mask(dst)
	}
}

func floatToInt(dst spec.DataType, f float64) uint64 {
	if math.IsNaN(f) {
		return 0
	}
	f = math.Trunc(f)
	if dst == spec.Word {
		switch {
		case f <= 0:
			return 0
		case f >= math.MaxUint64:
			return math.MaxUint64
		default:
			return uint64(f)
		}
	}
	width := dst.Size() * 8
	lo := -math.Ldexp(1, width-1)
	hi := math.Ldexp(1, width-1)
	switch {
	case f <= lo:
		return uint64(int64(lo)) & mask(dst)
	case f >= hi:
		// hi itself is not representable
		return uint64(math.MaxInt64>>(64-width)) & mask(dst)
	default:
		return uint64(int64(f)) & mask(dst)
	}
}
