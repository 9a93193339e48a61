package evm1

import (
	"errors"
	"fmt"
	"math"

	"go.brendoncarroll.net/exp/slices2"

	"esovm.org/esovm/spec"
)

// DefaultMaxFrames is the depth limit of a FrameStack, unless configured.
const DefaultMaxFrames = 1024

// CallFrame is the typed register file (LVT) of one method invocation.
// Each DataType has its own array, sized once by Reserve.
type CallFrame struct {
	// Name is the method name, it is only used for diagnostics.
	Name string
	// ReturnPC is the address execution continues at after RETURN.
	ReturnPC uint64

	reserved bool
	int8     []int8
	int16    []int16
	int32    []int32
	int64    []int64
	float16  []uint16
	float32  []float32
	float64  []float64
	word     []uint64
}

func NewCallFrame(name string) *CallFrame {
	return &CallFrame{Name: name}
}

// Reserve allocates the register arrays, counts is indexed by DataType.
// A count of 0 leaves that array absent.
// A frame can only be reserved once.
func (f *CallFrame) Reserve(counts [spec.NumDataTypes]int) error {
	if f.reserved {
		return fmt.Errorf("frame %q is already reserved", f.Name)
	}
	for dt, n := range counts {
		if n < 0 {
			return fmt.Errorf("negative register count %d for %v", n, spec.DataType(dt))
		}
	}
	f.int8 = alloc[int8](counts[spec.Int8])
	f.int16 = alloc[int16](counts[spec.Int16])
	f.int32 = alloc[int32](counts[spec.Int32])
	f.int64 = alloc[int64](counts[spec.Int64])
	f.float16 = alloc[uint16](counts[spec.Float16])
	f.float32 = alloc[float32](counts[spec.Float32])
	f.float64 = alloc[float64](counts[spec.Float64])
	f.word = alloc[uint64](counts[spec.Word])
	f.reserved = true
	return nil
}

// Len returns the number of registers of type dt
func (f *CallFrame) Len(dt spec.DataType) int {
	switch dt {
	case spec.Int8:
		return len(f.int8)
	case spec.Int16:
		return len(f.int16)
	case spec.Int32:
		return len(f.int32)
	case spec.Int64:
		return len(f.int64)
	case spec.Float16:
		return len(f.float16)
	case spec.Float32:
		return len(f.float32)
	case spec.Float64:
		return len(f.float64)
	case spec.Word:
		return len(f.word)
	default:
		return 0
	}
}

func (f *CallFrame) GetInt8(i int) (int8, error)       { return lvtGet(f.int8, spec.Int8, i) }
func (f *CallFrame) GetInt16(i int) (int16, error)     { return lvtGet(f.int16, spec.Int16, i) }
func (f *CallFrame) GetInt32(i int) (int32, error)     { return lvtGet(f.int32, spec.Int32, i) }
func (f *CallFrame) GetInt64(i int) (int64, error)     { return lvtGet(f.int64, spec.Int64, i) }
func (f *CallFrame) GetFloat16(i int) (uint16, error)  { return lvtGet(f.float16, spec.Float16, i) }
func (f *CallFrame) GetFloat32(i int) (float32, error) { return lvtGet(f.float32, spec.Float32, i) }
func (f *CallFrame) GetFloat64(i int) (float64, error) { return lvtGet(f.float64, spec.Float64, i) }
func (f *CallFrame) GetWord(i int) (uint64, error)     { return lvtGet(f.word, spec.Word, i) }

func (f *CallFrame) PutInt8(i int, x int8) error       { return lvtPut(f.int8, spec.Int8, i, x) }
func (f *CallFrame) PutInt16(i int, x int16) error     { return lvtPut(f.int16, spec.Int16, i, x) }
func (f *CallFrame) PutInt32(i int, x int32) error     { return lvtPut(f.int32, spec.Int32, i, x) }
func (f *CallFrame) PutInt64(i int, x int64) error     { return lvtPut(f.int64, spec.Int64, i, x) }
func (f *CallFrame) PutFloat16(i int, x uint16) error  { return lvtPut(f.float16, spec.Float16, i, x) }
func (f *CallFrame) PutFloat32(i int, x float32) error { return lvtPut(f.float32, spec.Float32, i, x) }
func (f *CallFrame) PutFloat64(i int, x float64) error { return lvtPut(f.float64, spec.Float64, i, x) }
func (f *CallFrame) PutWord(i int, x uint64) error     { return lvtPut(f.word, spec.Word, i, x) }

// GetBits reads register i of type dt as a bit pattern in the low dt.Size() bytes.
func (f *CallFrame) GetBits(dt spec.DataType, i int) (uint64, error) {
	switch dt {
	case spec.Int8:
		x, err := f.GetInt8(i)
		return uint64(uint8(x)), err
	case spec.Int16:
		x, err := f.GetInt16(i)
		return uint64(uint16(x)), err
	case spec.Int32:
		x, err := f.GetInt32(i)
		return uint64(uint32(x)), err
	case spec.Int64:
		x, err := f.GetInt64(i)
		return uint64(x), err
	case spec.Float16:
		x, err := f.GetFloat16(i)
		return uint64(x), err
	case spec.Float32:
		x, err := f.GetFloat32(i)
		return uint64(math.Float32bits(x)), err
	case spec.Float64:
		x, err := f.GetFloat64(i)
		return math.Float64bits(x), err
	case spec.Word:
		return f.GetWord(i)
	default:
		return 0, &ErrDecode{Field: "data type", Value: uint8(dt)}
	}
}

// PutBits writes the low dt.Size() bytes of bits to register i of type dt.
func (f *CallFrame) PutBits(dt spec.DataType, i int, bits uint64) error {
	switch dt {
	case spec.Int8:
		return f.PutInt8(i, int8(bits))
	case spec.Int16:
		return f.PutInt16(i, int16(bits))
	case spec.Int32:
		return f.PutInt32(i, int32(bits))
	case spec.Int64:
		return f.PutInt64(i, int64(bits))
	case spec.Float16:
		return f.PutFloat16(i, uint16(bits))
	case spec.Float32:
		return f.PutFloat32(i, math.Float32frombits(uint32(bits)))
	case spec.Float64:
		return f.PutFloat64(i, math.Float64frombits(bits))
	case spec.Word:
		return f.PutWord(i, bits)
	default:
		return &ErrDecode{Field: "data type", Value: uint8(dt)}
	}
}

func alloc[T any](n int) []T {
	if n == 0 {
		return nil
	}
	return make([]T, n)
}

func lvtCheck[T any](arr []T, dt spec.DataType, i int) error {
	if arr == nil {
		return &ErrLVT{Type: dt, Index: i, Absent: true}
	}
	if i < 0 || i >= len(arr) {
		return &ErrLVT{Type: dt, Index: i}
	}
	return nil
}

func lvtGet[T any](arr []T, dt spec.DataType, i int) (T, error) {
	if err := lvtCheck(arr, dt, i); err != nil {
		var zero T
		return zero, err
	}
	return arr[i], nil
}

func lvtPut[T any](arr []T, dt spec.DataType, i int, x T) error {
	if err := lvtCheck(arr, dt, i); err != nil {
		return err
	}
	arr[i] = x
	return nil
}

var errNoFrame = errors.New("frame stack is empty")

// FrameStack is the LIFO of CallFrames, the top is the current frame.
type FrameStack struct {
	frames   []*CallFrame
	maxDepth int
}

// NewFrameStack returns an empty FrameStack which holds at most maxDepth frames.
func NewFrameStack(maxDepth int) *FrameStack {
	return &FrameStack{maxDepth: maxDepth}
}

// Push makes f the current frame
func (fs *FrameStack) Push(f *CallFrame) error {
	if len(fs.frames) >= fs.maxDepth {
		return &ErrStackRange{Stack: StackFrame, Overflow: true, Pointer: len(fs.frames)}
	}
	fs.frames = append(fs.frames, f)
	return nil
}

// PushLayout creates, reserves and pushes a frame for the method name.
func (fs *FrameStack) PushLayout(name string, layout spec.FrameLayout) (*CallFrame, error) {
	f := NewCallFrame(name)
	if err := f.Reserve(layout.Counts()); err != nil {
		return nil, err
	}
	if err := fs.Push(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Pop removes and returns the current frame
func (fs *FrameStack) Pop() (*CallFrame, error) {
	if len(fs.frames) == 0 {
		return nil, &ErrStackRange{Stack: StackFrame, Pointer: 0}
	}
	i := len(fs.frames) - 1
	f := fs.frames[i]
	fs.frames[i] = nil
	fs.frames = fs.frames[:i]
	return f, nil
}

// Current returns the top frame
func (fs *FrameStack) Current() (*CallFrame, error) {
	if len(fs.frames) == 0 {
		return nil, errNoFrame
	}
	return fs.frames[len(fs.frames)-1], nil
}

func (fs *FrameStack) Depth() int {
	return len(fs.frames)
}

// Trace returns the method names on the stack, the current frame last.
func (fs *FrameStack) Trace() []string {
	return slices2.Map(fs.frames, func(f *CallFrame) string { return f.Name })
}
