package evm1

import (
	"math"

	"esovm.org/esovm/spec"
)

// DefaultStackSize is the capacity of an OperandStack in bytes, unless configured.
const DefaultStackSize = 65535

// OperandStack is a fixed capacity byte stack growing down from the end of its buffer.
// Values are not tagged. They must be popped with the width they were pushed with.
//
// Multi-byte values are pushed most significant byte first, and popped in the reverse order.
// A failed push or pop leaves the pointer where the failing byte found it, bytes
// already moved by the same call are not rolled back.
type OperandStack struct {
	buf []byte
	sp  int
}

func NewOperandStack(capacity int) *OperandStack {
	s := &OperandStack{buf: make([]byte, capacity)}
	s.Clear()
	return s
}

// Clear empties the stack
func (s *OperandStack) Clear() {
	s.sp = len(s.buf)
}

// Pointer returns the stack pointer.
// It is Capacity when the stack is empty and 0 when it is full.
func (s *OperandStack) Pointer() int {
	return s.sp
}

// SetPointer restores a pointer previously returned by Pointer.
// A pointer outside [0, Capacity] is an error and leaves the stack unchanged.
func (s *OperandStack) SetPointer(sp int) error {
	if sp < 0 || sp > len(s.buf) {
		return &ErrStackRange{Stack: StackOperand, Overflow: sp < 0, Pointer: sp}
	}
	s.sp = sp
	return nil
}

func (s *OperandStack) Capacity() int {
	return len(s.buf)
}

// Depth returns the number of bytes on the stack
func (s *OperandStack) Depth() int {
	return len(s.buf) - s.sp
}

// Bytes returns the contents of the stack, the top of the stack is at index 0.
func (s *OperandStack) Bytes() []byte {
	return s.buf[s.sp:]
}

func (s *OperandStack) PushInt8(x int8) error {
	if s.sp-1 < 0 {
		return &ErrStackRange{Stack: StackOperand, Overflow: true, Pointer: s.sp - 1}
	}
	s.sp--
	s.buf[s.sp] = byte(x)
	return nil
}

func (s *OperandStack) PopInt8() (int8, error) {
	if s.sp >= len(s.buf) {
		return 0, &ErrStackRange{Stack: StackOperand, Pointer: s.sp}
	}
	x := s.buf[s.sp]
	s.sp++
	return int8(x), nil
}

// pushN pushes the low n bytes of x, most significant first.
func (s *OperandStack) pushN(x uint64, n int) error {
	for i := n - 1; i >= 0; i-- {
		if err := s.PushInt8(int8(x >> (8 * i))); err != nil {
			return err
		}
	}
	return nil
}

// popN is the mirror of pushN
func (s *OperandStack) popN(n int) (uint64, error) {
	var x uint64
	for i := 0; i < n; i++ {
		b, err := s.PopInt8()
		if err != nil {
			return 0, err
		}
		x |= uint64(uint8(b)) << (8 * i)
	}
	return x, nil
}

func (s *OperandStack) PushInt16(x int16) error {
	return s.pushN(uint64(uint16(x)), 2)
}

func (s *OperandStack) PopInt16() (int16, error) {
	x, err := s.popN(2)
	return int16(x), err
}

func (s *OperandStack) PushInt32(x int32) error {
	return s.pushN(uint64(uint32(x)), 4)
}

func (s *OperandStack) PopInt32() (int32, error) {
	x, err := s.popN(4)
	return int32(x), err
}

func (s *OperandStack) PushInt64(x int64) error {
	return s.pushN(uint64(x), 8)
}

func (s *OperandStack) PopInt64() (int64, error) {
	x, err := s.popN(8)
	return int64(x), err
}

// PushFloat16 pushes the bits of a half precision float.
func (s *OperandStack) PushFloat16(bits uint16) error {
	return s.pushN(uint64(bits), 2)
}

func (s *OperandStack) PopFloat16() (uint16, error) {
	x, err := s.popN(2)
	return uint16(x), err
}

func (s *OperandStack) PushFloat32(x float32) error {
	return s.pushN(uint64(math.Float32bits(x)), 4)
}

func (s *OperandStack) PopFloat32() (float32, error) {
	x, err := s.popN(4)
	return math.Float32frombits(uint32(x)), err
}

func (s *OperandStack) PushFloat64(x float64) error {
	return s.pushN(math.Float64bits(x), 8)
}

func (s *OperandStack) PopFloat64() (float64, error) {
	x, err := s.popN(8)
	return math.Float64frombits(x), err
}

func (s *OperandStack) PushWord(x uint64) error {
	return s.pushN(x, 8)
}

func (s *OperandStack) PopWord() (uint64, error) {
	return s.popN(8)
}

// PushBits pushes the low dt.Size() bytes of a bit pattern
func (s *OperandStack) PushBits(dt spec.DataType, bits uint64) error {
	return s.pushN(bits, dt.Size())
}

// PopBits pops a value of type dt as a bit pattern
func (s *OperandStack) PopBits(dt spec.DataType) (uint64, error) {
	return s.popN(dt.Size())
}
