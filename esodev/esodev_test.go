package esodev

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"esovm.org/esovm/esoasm"
	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/evm1"
	"esovm.org/esovm/spec"
)

func TestBus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBus()
	var got []uint64
	b.PutPort(7, PortBackend{Out: func(ctx context.Context, dt spec.DataType, bits uint64) error {
		got = append(got, bits)
		return nil
	}})
	b.PutPort(3, PortBackend{In: func(ctx context.Context, dt spec.DataType) (uint64, error) {
		return 42, nil
	}})
	require.Equal(t, []uint64{3, 7}, b.ListPorts())

	require.NoError(t, b.Out(ctx, 7, spec.Int8, 1))
	require.Equal(t, []uint64{1}, got)
	x, err := b.In(ctx, 3, spec.Word)
	require.NoError(t, err)
	require.Equal(t, uint64(42), x)

	var perr *ErrNoPort
	_, err = b.In(ctx, 7, spec.Word)
	require.True(t, errors.As(err, &perr))
	require.False(t, perr.Out)
	require.True(t, errors.As(b.Out(ctx, 3, spec.Word, 0), &perr))
	require.True(t, perr.Out)

	b.RemovePort(7)
	require.Equal(t, []uint64{3}, b.ListPorts())

	var ierr *ErrNoInterrupt
	require.True(t, errors.As(b.Interrupt(ctx, 9), &ierr))
	n := 0
	b.PutInterrupt(9, func(ctx context.Context) error {
		n++
		return nil
	})
	require.NoError(t, b.Interrupt(ctx, 9))
	require.Equal(t, 1, n)
	require.Equal(t, []uint64{9}, b.ListInterrupts())
}

func TestConsole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	out := &bytes.Buffer{}
	c := NewConsole(strings.NewReader("hi"), out)
	b := NewBus()
	c.Attach(b)

	require.NoError(t, b.Out(ctx, PortConsole, spec.Int32, 0x141))
	require.NoError(t, b.Out(ctx, PortConsoleDecimal, spec.Int8, 0xFF))
	// output is buffered until a flush
	require.Empty(t, out.String())
	require.NoError(t, b.Interrupt(ctx, IntFlush))
	require.Equal(t, "A-1\n", out.String())

	for _, want := range []uint64{'h', 'i', 0xFF, 0xFF} {
		x, err := b.In(ctx, PortConsole, spec.Int8)
		require.NoError(t, err)
		require.Equal(t, want, x)
	}
	x, err := b.In(ctx, PortConsole, spec.Word)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), x)

	require.Equal(t, 1, c.Feed([]byte("!")))
	x, err = b.In(ctx, PortConsole, spec.Int8)
	require.NoError(t, err)
	require.Equal(t, uint64('!'), x)
}

// stutterReader returns no data and no error on every other Read
type stutterReader struct {
	r     io.Reader
	reads int
}

func (s *stutterReader) Read(p []byte) (int, error) {
	s.reads++
	if s.reads%2 == 1 {
		return 0, nil
	}
	return s.r.Read(p[:1])
}

type emptyReader struct{}

func (emptyReader) Read(p []byte) (int, error) { return 0, nil }

func TestConsoleEmptyReads(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBus()
	NewConsole(&stutterReader{r: strings.NewReader("xy")}, io.Discard).Attach(b)
	for _, want := range []uint64{'x', 'y', 0xFF} {
		x, err := b.In(ctx, PortConsole, spec.Int8)
		require.NoError(t, err)
		require.Equal(t, want, x)
	}

	b = NewBus()
	NewConsole(emptyReader{}, io.Discard).Attach(b)
	_, err := b.In(ctx, PortConsole, spec.Int8)
	require.ErrorIs(t, err, io.ErrNoProgress)
}

func TestFormatValue(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Type spec.DataType
		Bits uint64
		Out  string
	}
	tcs := []testCase{
		{spec.Int8, 0x80, "-128"},
		{spec.Int16, 0x7FFF, "32767"},
		{spec.Int32, 0xFFFF_FFFE, "-2"},
		{spec.Int64, 5, "5"},
		{spec.Word, math.MaxUint64, "18446744073709551615"},
		{spec.Float16, 0x3C00, "1"},
		{spec.Float32, uint64(math.Float32bits(-0.5)), "-0.5"},
		{spec.Float64, math.Float64bits(1e100), "1e+100"},
	}
	for i, tc := range tcs {
		t.Run(fmt.Sprintf("%d/%v", i, tc.Type), func(t *testing.T) {
			require.Equal(t, tc.Out, FormatValue(tc.Type, tc.Bits))
		})
	}
}

func TestClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := NewClock()
	secs, _ := c.Now()
	require.NotZero(t, secs)

	c.Now = func() (uint64, uint32) { return 1 << 62, 999 }
	b := NewBus()
	c.Attach(b)
	x, err := b.In(ctx, PortClockSeconds, spec.Word)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<62), x)
	c.Now = func() (uint64, uint32) { return 0, 1 }
	x, err = b.In(ctx, PortClockNanos, spec.Int32)
	require.NoError(t, err)
	require.Equal(t, uint64(999), x)
}

func TestRandom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	read := func(r *Random, dt spec.DataType) (ret []uint64) {
		b := NewBus()
		r.Attach(b)
		for i := 0; i < 4; i++ {
			x, err := b.In(ctx, PortRandom, dt)
			require.NoError(t, err)
			ret = append(ret, x)
		}
		return ret
	}
	r1, err := NewRandom([]byte("seed"))
	require.NoError(t, err)
	r2, err := NewRandom([]byte("seed"))
	require.NoError(t, err)
	require.Equal(t, read(r1, spec.Word), read(r2, spec.Word))

	r3, err := NewRandom(nil)
	require.NoError(t, err)
	for _, x := range read(r3, spec.Int8) {
		require.LessOrEqual(t, x, uint64(0xFF))
	}
}

func TestThreadIO(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	img, err := esoasm.Assemble(`
.entry echo i8=1
echo:
	in.i8 r0, #0
	test.i8 r0
	cjump neg, @done
	out.i8 r0, #0
	jump @echo
done:
	interrupt #0
	halt
`)
	require.NoError(t, err)
	out := &bytes.Buffer{}
	b := NewBus()
	NewConsole(strings.NewReader("abc"), out).Attach(b)
	th, err := esoimg.NewThread(img, nil, evm1.Env{Ports: b}, evm1.DefaultConfig())
	require.NoError(t, err)
	_, err = th.Run(ctx, 1000)
	require.NoError(t, err)
	require.True(t, th.Halted())
	require.Equal(t, "abc", out.String())

	// no device on the port
	img, err = esoasm.Assemble(`
.entry main i8=1
main:
	out.i8 r0, #99
`)
	require.NoError(t, err)
	th, err = esoimg.NewThread(img, nil, evm1.Env{Ports: NewBus()}, evm1.DefaultConfig())
	require.NoError(t, err)
	err = th.Cycle(ctx)
	var perr *ErrNoPort
	require.True(t, errors.As(err, &perr))
	require.Equal(t, uint64(99), perr.Port)
}
