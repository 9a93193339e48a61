package evm1

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"esovm.org/esovm/esomem"
	"esovm.org/esovm/internal/testutil"
	"esovm.org/esovm/spec"
)

func TestLoadStoreHalt(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, layout(spec.Int32, 2), Env{},
		spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 42),
		spec.Split(spec.STORE, spec.Int32, spec.Register, 0, 0, 1),
		spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
	)
	steps, err := th.Run(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(3), steps)
	require.True(t, th.Halted())
	require.NoError(t, th.Err())
	require.Equal(t, uint64(16), th.PC())
	require.Equal(t, uint64(42), reg(t, th, spec.Int32, 1))
}

func TestReservedDataType(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	bad := spec.Standard(spec.ADD, spec.Int32, spec.Immediate, 0, 0, 1)
	bad[1] = 0x91
	th := newThread(t, layout(spec.Int32, 1), Env{},
		spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 1),
		bad,
	)
	require.NoError(t, th.Cycle(ctx))
	err := th.Cycle(ctx)

	var fault *Fault
	require.True(t, errors.As(err, &fault))
	require.Equal(t, uint64(8), fault.PC)
	require.Equal(t, bad, fault.Ix)
	var derr *ErrDecode
	require.True(t, errors.As(err, &derr))
	require.Equal(t, "data type", derr.Field)
	require.Equal(t, uint8(9), derr.Value)

	require.True(t, th.Halted())
	require.Equal(t, uint64(8), th.PC())
	require.Equal(t, uint64(1), th.Steps())
}

func TestTerminal(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, 0, Env{},
		spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
	)
	require.NoError(t, th.Cycle(ctx))
	require.True(t, th.Halted())
	for i := 0; i < 3; i++ {
		require.NoError(t, th.Cycle(ctx))
	}
	require.Equal(t, uint64(0), th.PC())
	require.Equal(t, uint64(1), th.Steps())

	// running off the end of the program faults, and stays faulted
	th = newThread(t, 0, Env{})
	err := th.Cycle(ctx)
	var berr *ErrProgramBounds
	require.True(t, errors.As(err, &berr))
	require.NoError(t, th.Cycle(ctx))
	require.ErrorIs(t, th.Err(), err)
}

func TestProgramCounter(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	const n = 10
	var prog []spec.Instruction
	for i := 0; i < n; i++ {
		prog = append(prog, spec.Standard(spec.ADD, spec.Int64, spec.Immediate, 0, 0, 1))
	}
	prog = append(prog, spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0))
	th := newThread(t, layout(spec.Int64, 1), Env{}, prog...)
	for i := 0; i < n; i++ {
		require.NoError(t, th.Cycle(ctx))
	}
	require.Equal(t, uint64(8*n), th.PC())
	require.Equal(t, uint64(n), reg(t, th, spec.Int64, 0))
	require.False(t, th.Halted())
}

func TestArith(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Name string
		Prog []spec.Instruction
		// Out is the value of i32 register 1
		Out uint64
		Err error
	}
	tcs := []testCase{
		{
			Name: "add",
			Prog: []spec.Instruction{
				spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 40),
				spec.Standard(spec.ADD, spec.Int32, spec.Immediate, 1, 0, 2),
			},
			Out: 42,
		},
		{
			Name: "sub register",
			Prog: []spec.Instruction{
				spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 40),
				spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 1, 0, 50),
				spec.Standard(spec.SUB, spec.Int32, spec.Register, 1, 0, 1),
			},
			Out: uint64(imm(-10)),
		},
		{
			Name: "div",
			Prog: []spec.Instruction{
				spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, imm(-9)),
				spec.Standard(spec.DIV, spec.Int32, spec.Immediate, 1, 0, 2),
			},
			Out: uint64(imm(-4)),
		},
		{
			Name: "div by zero",
			Prog: []spec.Instruction{
				spec.Standard(spec.DIV, spec.Int32, spec.Immediate, 1, 0, 0),
			},
			Err: ErrDivideByZero,
		},
		{
			Name: "shift float",
			Prog: []spec.Instruction{
				spec.Standard(spec.SHL, spec.Float32, spec.Immediate, 0, 0, 1),
			},
			Err: ErrFloatOperation,
		},
		{
			Name: "call register",
			Prog: []spec.Instruction{
				spec.Simple(spec.CALL, spec.Word, spec.Register, 0, 0),
			},
			Err: ErrOperandKind,
		},
		{
			Name: "store to immediate",
			Prog: []spec.Instruction{
				spec.Split(spec.STORE, spec.Int32, spec.Immediate, 0, 0, 0),
			},
			Err: ErrImmutableOperand,
		},
		{
			Name: "convert",
			Prog: []spec.Instruction{
				spec.Split(spec.LOAD, spec.Float32, spec.Immediate, 0, 0, 0xC0200000), // -2.5
				spec.Convert(spec.Float32, spec.Int32, 1, 0),
			},
			Out: uint64(imm(-2)),
		},
	}
	for i, tc := range tcs {
		t.Run(fmt.Sprintf("%d/%s", i, tc.Name), func(t *testing.T) {
			ctx := testutil.Context(t)
			l := layout(spec.Int32, 2).With(spec.Float32, 1)
			prog := append(tc.Prog, spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0))
			th := newThread(t, l, Env{}, prog...)
			_, err := th.Run(ctx, 100)
			if tc.Err != nil {
				require.ErrorIs(t, err, tc.Err)
				var ierr *ErrInvalidOp
				require.True(t, errors.As(err, &ierr))
				require.True(t, th.Halted())
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.Out, reg(t, th, spec.Int32, 1))
		})
	}
}

func TestNewConfig(t *testing.T) {
	t.Parallel()
	prog := program(spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0))
	for i, cfg := range []Config{
		{StackSize: -1},
		{MaxFrames: -1},
		{CallCacheSize: -1},
	} {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := New(prog, 0, Env{}, cfg)
			require.Error(t, err)
		})
	}
	// zero sizes take the defaults
	th, err := New(prog, 0, Env{}, Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultStackSize, th.Stack().Capacity())
}

func TestLVTFault(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, layout(spec.Int32, 1), Env{},
		spec.Split(spec.LOAD, spec.Int64, spec.Immediate, 0, 0, 1),
	)
	err := th.Cycle(ctx)
	var lerr *ErrLVT
	require.True(t, errors.As(err, &lerr))
	require.True(t, lerr.Absent)
	require.Equal(t, spec.Int64, lerr.Type)
}

func TestLoop(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, layout(spec.Int32, 2), Env{},
		/* 0x00 */ spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 3),
		/* 0x08 */ spec.Standard(spec.SUB, spec.Int32, spec.Immediate, 0, 0, 1),
		/* 0x10 */ spec.Standard(spec.ADD, spec.Int32, spec.Immediate, 1, 1, 10),
		/* 0x18 */ spec.Simple(spec.TEST, spec.Int32, spec.Register, 0, 0),
		/* 0x20 */ spec.Simple(spec.CJUMP, spec.Word, spec.Immediate, uint8(spec.CondNE), 0x08),
		/* 0x28 */ spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
	)
	steps, err := th.Run(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(1+3*4+1), steps)
	require.Equal(t, uint64(30), reg(t, th, spec.Int32, 1))
	require.True(t, th.Flags().Zero)
}

func TestJumpUnaligned(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, 0, Env{},
		spec.Simple(spec.JUMP, spec.Word, spec.Immediate, 0, 4),
	)
	err := th.Cycle(ctx)
	var berr *ErrProgramBounds
	require.True(t, errors.As(err, &berr))
	require.True(t, berr.Unaligned)
	require.Equal(t, uint64(0), th.PC())
}

func TestAbnormalHalt(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	pool := &testPool{strs: map[uint64]string{1: "assertion failed"}}
	th := newThread(t, 0, Env{Constants: pool},
		spec.Simple(spec.HALT, spec.Word, spec.Constant, 0, 1),
	)
	err := th.Cycle(ctx)
	var herr *ErrAbnormalHalt
	require.True(t, errors.As(err, &herr))
	require.Equal(t, "assertion failed", herr.Message)
	require.Equal(t, uint64(1), herr.Index)
}

func TestConditional(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, layout(spec.Int32, 3), Env{},
		spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 7),
		spec.Simple(spec.TEST, spec.Int32, spec.Register, 0, 0),
		// condition holds: i32[1] = i32[0]
		spec.Standard(spec.CLOAD, spec.Int32, spec.Register, 1, uint8(spec.CondGT), 0),
		// condition does not hold: i32[2] unchanged
		spec.Standard(spec.CLOAD, spec.Int32, spec.Immediate, 2, uint8(spec.CondEQ), 99),
		spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
	)
	_, err := th.Run(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(7), reg(t, th, spec.Int32, 1))
	require.Equal(t, uint64(0), reg(t, th, spec.Int32, 2))

	// immutable target is checked even if the condition fails
	th = newThread(t, layout(spec.Int32, 1), Env{},
		spec.Standard(spec.CSTORE, spec.Int32, spec.Constant, 0, uint8(spec.CondEQ), 0),
	)
	require.ErrorIs(t, th.Cycle(ctx), ErrImmutableOperand)
}

func TestCallReturn(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	pool := &testPool{strs: map[uint64]string{0: "double", 1: "inc"}}
	res := testResolver{
		"double": {Entry: 0x20, Layout: layout(spec.Int32, 1)},
		"inc": {External: func(ctx context.Context, x ExternalCall) error {
			v, err := x.Stack.PopInt32()
			if err != nil {
				return err
			}
			return x.Stack.PushInt32(v + 1)
		}},
	}
	th := newThread(t, 0, Env{Constants: pool, Resolver: res},
		/* 0x00 */ spec.Simple(spec.CALL, spec.Word, spec.Constant, 0, 0),
		/* 0x08 */ spec.Simple(spec.CALL, spec.Word, spec.Constant, 0, 1),
		/* 0x10 */ spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
		/* 0x18 */ spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 1),
		// double
		/* 0x20 */ spec.Simple(spec.POP, spec.Int32, spec.Register, 0, 0),
		/* 0x28 */ spec.Standard(spec.ADD, spec.Int32, spec.Register, 0, 0, 0),
		/* 0x30 */ spec.Simple(spec.PUSH, spec.Int32, spec.Register, 0, 0),
		/* 0x38 */ spec.Simple(spec.RETURN, spec.Word, spec.Immediate, 0, 0),
	)
	require.NoError(t, th.Stack().PushInt32(20))

	require.NoError(t, th.Cycle(ctx))
	require.Equal(t, uint64(0x20), th.PC())
	require.Equal(t, []string{"main", "double"}, th.Frames().Trace())

	_, err := th.Run(ctx, 100)
	require.NoError(t, err)
	require.True(t, th.Halted())
	require.Equal(t, uint64(0x10), th.PC())
	require.Equal(t, 1, th.Frames().Depth())
	x, err := th.Stack().PopInt32()
	require.NoError(t, err)
	require.Equal(t, int32(41), x)
}

func TestFaultTrace(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	pool := &testPool{strs: map[uint64]string{0: "pop"}}
	res := testResolver{"pop": {Entry: 0x10, Layout: layout(spec.Int32, 1)}}
	th := newThread(t, 0, Env{Constants: pool, Resolver: res},
		/* 0x00 */ spec.Simple(spec.CALL, spec.Word, spec.Constant, 0, 0),
		/* 0x08 */ spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
		// pop, from an empty stack
		/* 0x10 */ spec.Simple(spec.POP, spec.Int32, spec.Register, 0, 0),
	)
	_, err := th.Run(ctx, 10)
	var f *Fault
	require.True(t, errors.As(err, &f))
	require.Equal(t, uint64(0x10), f.PC)
	require.Equal(t, []string{"main", "pop"}, f.Trace)
	var rerr *ErrStackRange
	require.True(t, errors.As(err, &rerr))
}

func TestCallErrors(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	pool := &testPool{strs: map[uint64]string{0: "missing", 1: "self"}}
	res := testResolver{"self": {Entry: 0}}

	th := newThread(t, 0, Env{Constants: pool, Resolver: res},
		spec.Simple(spec.CALL, spec.Word, spec.Constant, 0, 0),
	)
	require.ErrorIs(t, th.Cycle(ctx), ErrUnresolved)

	// unbounded recursion exhausts the frame stack
	th, err := New(program(spec.Simple(spec.CALL, spec.Word, spec.Constant, 0, 1)), 0,
		Env{Constants: pool, Resolver: res}, Config{MaxFrames: 4})
	require.NoError(t, err)
	steps, err := th.Run(ctx, 100)
	require.Equal(t, uint64(3), steps)
	var rerr *ErrStackRange
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, StackFrame, rerr.Stack)
	require.True(t, rerr.Overflow)
}

func TestReturnFromEntry(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, 0, Env{},
		spec.Simple(spec.RETURN, spec.Word, spec.Immediate, 0, 0),
	)
	require.NoError(t, th.Cycle(ctx))
	require.True(t, th.Halted())
	require.NoError(t, th.Err())
}

func TestMemory(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	mem := esomem.New(1024, 256)
	l := layout(spec.Int64, 3).With(spec.Word, 2)
	th := newThread(t, l, Env{Memory: mem},
		spec.Simple(spec.ALLOCATE, spec.Word, spec.Immediate, 0, 16),
		spec.Split(spec.LOAD, spec.Int64, spec.Immediate, 0, 0, imm(-7)),
		// [w0 + 8] = i64[0]
		spec.Split(spec.STORE, spec.Int64, spec.MemImmediate, 0, 0, 8),
		spec.Split(spec.LOAD, spec.Int64, spec.MemImmediate, 1, 0, 8),
		// [w0] = w0 + 8
		spec.Standard(spec.ADD, spec.Word, spec.Immediate, 1, 0, 8),
		spec.Split(spec.STORE, spec.Word, spec.MemImmediate, 1, 0, 0),
		// i64[2] = [[w0]]
		spec.Split(spec.LOAD, spec.Int64, spec.IndirectImmediate, 2, 0, 0),
		spec.Simple(spec.FREE, spec.Word, spec.Register, 0, 0),
		spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
	)
	_, err := th.Run(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, imm64(-7), reg(t, th, spec.Int64, 1))
	require.Equal(t, imm64(-7), reg(t, th, spec.Int64, 2))
	require.Zero(t, mem.Stats().HeapBlocks)

	addr := reg(t, th, spec.Word, 0)
	buf := make([]byte, 8)
	require.NoError(t, mem.ReadAt(addr+8, buf))
	require.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xF9}, buf)
}

func TestConditionalMemory(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	mem := esomem.New(1024, 256)
	l := layout(spec.Int32, 2).With(spec.Word, 2)
	// base register 1, offset -4
	packed := uint32(1)<<spec.CondOffsetBits | imm(-4)&0xFF_FFFF
	th := newThread(t, l, Env{Memory: mem},
		spec.Simple(spec.ALLOCATE_STACK, spec.Word, spec.Immediate, 0, 8),
		spec.Standard(spec.ADD, spec.Word, spec.Immediate, 1, 0, 4),
		spec.Split(spec.LOAD, spec.Int32, spec.Immediate, 0, 0, 5),
		spec.Simple(spec.TEST, spec.Int32, spec.Register, 0, 0),
		spec.Standard(spec.CSTORE, spec.Int32, spec.MemImmediate, 0, uint8(spec.CondNotNeg), packed),
		spec.Standard(spec.CLOAD, spec.Int32, spec.MemImmediate, 1, uint8(spec.CondNE), packed),
		spec.Simple(spec.FREE_STACK, spec.Word, spec.Register, 0, 0),
		spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0),
	)
	_, err := th.Run(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(5), reg(t, th, spec.Int32, 1))
	require.Zero(t, mem.Stats().StackBlocks)
}

func TestNoMemory(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	th := newThread(t, layout(spec.Word, 1), Env{},
		spec.Simple(spec.ALLOCATE, spec.Word, spec.Immediate, 0, 16),
	)
	require.ErrorIs(t, th.Cycle(ctx), ErrNoMemory)
}

func TestPorts(t *testing.T) {
	t.Parallel()
	ctx := testutil.Context(t)
	ports := &testPorts{in: 0x1FF}
	th := newThread(t, layout(spec.Int8, 1), Env{Ports: ports},
		spec.Simple(spec.IN, spec.Int8, spec.Immediate, 0, 3),
		spec.Simple(spec.OUT, spec.Int8, spec.Immediate, 0, 4),
		spec.Simple(spec.INTERRUPT, spec.Word, spec.Immediate, 0, 9),
		spec.Simple(spec.OUT, spec.Int8, spec.Immediate, 0, 1),
	)
	require.NoError(t, th.Cycle(ctx))
	require.NoError(t, th.Cycle(ctx))
	require.NoError(t, th.Cycle(ctx))
	require.Equal(t, []uint64{0xFF}, ports.outs)
	require.Equal(t, []uint64{9}, ports.irqs)

	err := th.Cycle(ctx)
	require.ErrorIs(t, err, errNoPort)
	require.True(t, th.Halted())

	th = newThread(t, layout(spec.Int8, 1), Env{},
		spec.Simple(spec.OUT, spec.Int8, spec.Immediate, 0, 4),
	)
	require.ErrorIs(t, th.Cycle(ctx), ErrNoPorts)
}

func TestContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cf := context.WithCancel(testutil.Context(t))
	cf()
	th := newThread(t, 0, Env{},
		spec.Simple(spec.JUMP, spec.Word, spec.Immediate, 0, 0),
	)
	steps, err := th.Run(ctx, 100)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, steps)
	require.False(t, th.Halted())
}

func newThread(t testing.TB, l spec.FrameLayout, env Env, ixs ...spec.Instruction) *Thread {
	th, err := New(program(ixs...), 0, env, Config{EntryLayout: l})
	require.NoError(t, err)
	return th
}

func program(ixs ...spec.Instruction) []byte {
	var ret []byte
	for _, ix := range ixs {
		ret = append(ret, ix[:]...)
	}
	return ret
}

func layout(dt spec.DataType, n int) spec.FrameLayout {
	return spec.FrameLayout(0).With(dt, n)
}

func reg(t testing.TB, th *Thread, dt spec.DataType, i int) uint64 {
	f, err := th.Current()
	require.NoError(t, err)
	x, err := f.GetBits(dt, i)
	require.NoError(t, err)
	return x
}

// imm returns the immediate field encoding x
func imm(x int32) uint32 {
	return uint32(x)
}

func imm64(x int64) uint64 {
	return uint64(x)
}

type testPool struct {
	consts map[uint64]uint64
	strs   map[uint64]string
}

func (p *testPool) Constant(i uint64) (uint64, error) {
	x, ok := p.consts[i]
	if !ok {
		return 0, fmt.Errorf("no constant %d", i)
	}
	return x, nil
}

func (p *testPool) String(i uint64) (string, error) {
	x, ok := p.strs[i]
	if !ok {
		return "", fmt.Errorf("no string %d", i)
	}
	return x, nil
}

type testResolver map[string]Target

func (r testResolver) Resolve(ctx context.Context, name string) (Target, error) {
	tgt, ok := r[name]
	if !ok {
		return Target{}, fmt.Errorf("no method %q", name)
	}
	return tgt, nil
}

var errNoPort = errors.New("no such port")

type testPorts struct {
	in   uint64
	outs []uint64
	irqs []uint64
}

func (p *testPorts) Interrupt(ctx context.Context, idx uint64) error {
	p.irqs = append(p.irqs, idx)
	return nil
}

func (p *testPorts) Out(ctx context.Context, port uint64, dt spec.DataType, bits uint64) error {
	if port != 4 {
		return errNoPort
	}
	p.outs = append(p.outs, bits)
	return nil
}

func (p *testPorts) In(ctx context.Context, port uint64, dt spec.DataType) (uint64, error) {
	if port != 3 {
		return 0, errNoPort
	}
	return p.in, nil
}
