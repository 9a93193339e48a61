package spec

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Name string
		In   Instruction
		Out  Ix
	}
	tcs := []testCase{
		{
			Name: "standard",
			In:   Standard(ADD, Int32, Immediate, 1, 2, 0xDEADBEEF),
			Out:  Ix{Op: ADD, Type: Int32, Kind: Immediate, Dest: 1, Op1: 2, Op2: 0xDEADBEEF},
		},
		{
			Name: "simple",
			In:   Simple(JUMP, Int8, Immediate, 0, 0xAB_CDEF0123),
			Out:  Ix{Op: JUMP, Type: Int8, Kind: Immediate, Op2: 0xAB_CDEF0123},
		},
		{
			Name: "split",
			In:   Split(LOAD, Word, MemImmediate, 3, 4, 16),
			Out:  Ix{Op: LOAD, Type: Word, Kind: MemImmediate, Op1: 3, Aux: 4, Op2: 16},
		},
		{
			Name: "convert",
			In:   Convert(Int32, Float32, 5, 6),
			Out:  Ix{Op: CONVERT, Type: Int32, DstType: Float32, Dest: 5, Op1: 6},
		},
		{
			Name: "cjump",
			In:   Simple(CJUMP, Int8, Immediate, uint8(CondGT), 64),
			Out:  Ix{Op: CJUMP, Type: Int8, Kind: Immediate, Op1: uint8(CondGT), Op2: 64},
		},
	}
	for i, tc := range tcs {
		t.Run(fmt.Sprintf("%d/%s", i, tc.Name), func(t *testing.T) {
			ix, err := Decode(tc.In)
			require.NoError(t, err)
			require.Equal(t, tc.Out, ix)
			require.Equal(t, tc.In, Encode(ix))
		})
	}
}

func TestDecodeReserved(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Name  string
		In    Instruction
		Field string
	}
	withType := func(ins Instruction, b byte) Instruction {
		ins[1] = b
		return ins
	}
	tcs := []testCase{
		{Name: "opcode", In: Instruction{0x0F}, Field: "opcode"},
		{Name: "data type 0x9", In: withType(Standard(ADD, 0, 0, 0, 0, 0), 0x90), Field: "data type"},
		{Name: "data type 0xF", In: withType(Simple(HALT, 0, 0, 0, 0), 0xF0), Field: "data type"},
		{Name: "operand kind 0x3", In: withType(Standard(ADD, 0, 0, 0, 0, 0), 0x23), Field: "operand kind"},
		{Name: "operand kind 0xA", In: withType(Split(LOAD, 0, 0, 0, 0, 0), 0x2A), Field: "operand kind"},
		{Name: "convert destination", In: withType(Convert(0, 0, 0, 0), 0x28), Field: "data type"},
		{Name: "condition", In: Simple(CJUMP, Int8, Immediate, 6, 0), Field: "condition"},
		{Name: "memory kind on add", In: Standard(ADD, Int32, MemImmediate, 1, 0, 0), Field: "operand kind"},
		{Name: "memory kind on jump", In: Simple(JUMP, Word, IndirectRegister, 0, 0), Field: "operand kind"},
		{Name: "memory kind on allocate", In: Simple(ALLOCATE, Word, MemConstant, 0, 0), Field: "operand kind"},
	}
	for i, tc := range tcs {
		t.Run(fmt.Sprintf("%d/%s", i, tc.Name), func(t *testing.T) {
			_, err := Decode(tc.In)
			var de *DecodeError
			require.True(t, errors.As(err, &de), "%v", err)
			require.Equal(t, tc.Field, de.Field)
		})
	}
}

func TestConvertIgnoresPadding(t *testing.T) {
	ins := Convert(Int64, Float64, 1, 2)
	ins[4], ins[7] = 0xFF, 0x01
	ix, err := Decode(ins)
	require.NoError(t, err)
	require.Equal(t, Ix{Op: CONVERT, Type: Int64, DstType: Float64, Dest: 1, Op1: 2}, ix)
	// the encoder writes zeros
	enc := Encode(ix)
	require.Equal(t, []byte{0, 0, 0, 0}, enc[4:])
}

func TestFrameLayout(t *testing.T) {
	counts := [NumDataTypes]int{Int8: 1, Int16: 2, Int32: 3, Int64: 4, Float16: 5, Float32: 6, Float64: 7, Word: 8}
	l := MakeFrameLayout(counts)
	require.Equal(t, counts, l.Counts())
	// int8 is the low byte, word the high byte
	require.Equal(t, FrameLayout(0x08_04_07_03_06_02_05_01), l)
	require.Equal(t, 9, l.With(Int32, 9).Count(Int32))
	require.Equal(t, 2, l.With(Int32, 9).Count(Int16))
}

func TestOpNames(t *testing.T) {
	for _, op := range All() {
		p, ok := ParseOp(op.String())
		require.True(t, ok)
		require.Equal(t, op, p)
	}
	require.Equal(t, "Op(15)", Op(15).String())
	require.Len(t, All(), 31)
}
