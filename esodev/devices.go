package esodev

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/x448/float16"
	"go.brendoncarroll.net/tai64"
	"golang.org/x/crypto/chacha20"

	"esovm.org/esovm"
	"esovm.org/esovm/internal/ringbuf"
	"esovm.org/esovm/spec"
)

// Standard port numbers
const (
	// PortConsole writes the low byte of a value, and reads a byte, or all ones at the end of input.
	PortConsole = 0
	// PortConsoleDecimal writes a value as text followed by a newline.
	PortConsoleDecimal = 1
	// PortClockSeconds reads the TAI64 seconds, and latches the nanoseconds.
	PortClockSeconds = 2
	// PortClockNanos reads the nanoseconds latched by the last read of PortClockSeconds.
	PortClockNanos = 3
	// PortRandom reads random bits.
	PortRandom = 4
)

// Standard interrupts
const (
	// IntFlush flushes buffered console output
	IntFlush = 0
)

// ConsoleBufferSize is the capacity of the console input buffer
const ConsoleBufferSize = 4096

type Console struct {
	mu  sync.Mutex
	r   io.Reader
	w   *bufio.Writer
	in  ringbuf.RingBuf[byte]
	eof bool
}

// NewConsole creates a Console, r may be nil in which case input only comes from Feed.
func NewConsole(r io.Reader, w io.Writer) *Console {
	return &Console{
		r:  r,
		w:  bufio.NewWriter(w),
		in: ringbuf.New[byte](ConsoleBufferSize),
	}
}

func (c *Console) Attach(b *Bus) {
	b.PutPort(PortConsole, PortBackend{In: c.readByte, Out: c.writeByte})
	b.PutPort(PortConsoleDecimal, PortBackend{Out: c.writeDecimal})
	b.PutInterrupt(IntFlush, func(ctx context.Context) error {
		return c.Flush()
	})
}

// Feed queues input, it returns the number of bytes which fit in the buffer.
func (c *Console) Feed(data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, b := range data {
		if !c.in.PushBack(b) {
			return i
		}
	}
	return len(data)
}

func (c *Console) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Flush()
}

func (c *Console) readByte(ctx context.Context, dt spec.DataType) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.in.Len() == 0 && !c.eof && c.r != nil {
		// a prompt should be visible before blocking on input
		if err := c.w.Flush(); err != nil {
			return 0, err
		}
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
	b, ok := c.in.PopFront()
	if !ok {
		return allOnes(dt), nil
	}
	return uint64(b), nil
}

// maxEmptyReads is the number of reads returning no data and no error before fill gives up
const maxEmptyReads = 100

// fill reads until at least one byte is buffered or the reader is exhausted.
// Only a reader at EOF produces the all ones input.
func (c *Console) fill() error {
	buf := make([]byte, c.in.MaxLen())
	for i := 0; i < maxEmptyReads; i++ {
		n, err := c.r.Read(buf)
		for _, b := range buf[:n] {
			c.in.PushBack(b)
		}
		switch {
		case err == io.EOF:
			c.eof = true
			return nil
		case err != nil:
			return err
		case n > 0:
			return nil
		}
	}
	return io.ErrNoProgress
}

func (c *Console) writeByte(ctx context.Context, dt spec.DataType, bits uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.WriteByte(byte(bits))
}

func (c *Console) writeDecimal(ctx context.Context, dt spec.DataType, bits uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.w.WriteString(FormatValue(dt, bits) + "\n")
	return err
}

// FormatValue writes a value of type dt in decimal
func FormatValue(dt spec.DataType, bits uint64) string {
	switch dt {
	case spec.Float16:
		return strconv.FormatFloat(float64(float16.Frombits(uint16(bits)).Float32()), 'g', -1, 32)
	case spec.Float32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(bits))), 'g', -1, 32)
	case spec.Float64:
		return strconv.FormatFloat(math.Float64frombits(bits), 'g', -1, 64)
	case spec.Word:
		return strconv.FormatUint(bits, 10)
	default:
		sh := 64 - dt.Size()*8
		return strconv.FormatInt(int64(bits<<sh)>>sh, 10)
	}
}

// Clock is a TAI64N wall clock
type Clock struct {
	// Now returns the current time, it defaults to the system clock
	Now func() (seconds uint64, nanos uint32)

	mu    sync.Mutex
	nanos uint32
}

func NewClock() *Clock {
	return &Clock{
		Now: func() (uint64, uint32) {
			ts := tai64.Now()
			return uint64(ts.Seconds), uint32(ts.Nanoseconds)
		},
	}
}

func (c *Clock) Attach(b *Bus) {
	b.PutPort(PortClockSeconds, PortBackend{In: c.readSeconds})
	b.PutPort(PortClockNanos, PortBackend{In: c.readNanos})
}

func (c *Clock) readSeconds(ctx context.Context, dt spec.DataType) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	secs, nanos := c.Now()
	c.nanos = nanos
	return secs & allOnes(dt), nil
}

func (c *Clock) readNanos(ctx context.Context, dt spec.DataType) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(c.nanos) & allOnes(dt), nil
}

// Random produces a ChaCha20 key stream.
type Random struct {
	mu   sync.Mutex
	ciph *chacha20.Cipher
}

// NewRandom creates a Random. If seed is nil the key is random,
// otherwise it is derived from seed and the stream is reproducible.
func NewRandom(seed []byte) (*Random, error) {
	var key [chacha20.KeySize]byte
	if seed == nil {
		if _, err := rand.Read(key[:]); err != nil {
			return nil, err
		}
	} else {
		key = esovm.Hash(seed)
	}
	var nonce [chacha20.NonceSize]byte
	ciph, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, err
	}
	return &Random{ciph: ciph}, nil
}

func (r *Random) Attach(b *Bus) {
	b.PutPort(PortRandom, PortBackend{In: r.read})
}

func (r *Random) read(ctx context.Context, dt spec.DataType) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var buf [8]byte
	n := dt.Size()
	r.ciph.XORKeyStream(buf[8-n:], buf[8-n:])
	return binary.BigEndian.Uint64(buf[:]), nil
}

func allOnes(dt spec.DataType) uint64 {
	return math.MaxUint64 >> (64 - dt.Size()*8)
}
