package spec

// FrameLayout describes the registers a method needs, one byte per DataType.
// From the low byte up: int8, float16, int16, float32, int32, float64, int64, word.
type FrameLayout uint64

// layoutShift is the bit position of each DataType's count in a FrameLayout.
var layoutShift = [NumDataTypes]uint{
	Int8:    0,
	Float16: 8,
	Int16:   16,
	Float32: 24,
	Int32:   32,
	Float64: 40,
	Int64:   48,
	Word:    56,
}

// Count returns the number of registers of type dt
func (l FrameLayout) Count(dt DataType) int {
	return int((l >> layoutShift[dt]) & 0xFF)
}

// Counts returns the counts for every DataType, indexed by DataType
func (l FrameLayout) Counts() (ret [NumDataTypes]int) {
	for dt := range ret {
		ret[dt] = l.Count(DataType(dt))
	}
	return ret
}

// With returns a copy of l with the count for dt replaced.
// n is truncated to 8 bits.
func (l FrameLayout) With(dt DataType, n int) FrameLayout {
	sh := layoutShift[dt]
	l &^= 0xFF << sh
	l |= FrameLayout(n&0xFF) << sh
	return l
}

// MakeFrameLayout packs per DataType counts into a FrameLayout
func MakeFrameLayout(counts [NumDataTypes]int) (ret FrameLayout) {
	for dt, n := range counts {
		ret = ret.With(DataType(dt), n)
	}
	return ret
}
