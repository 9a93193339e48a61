// package esomem implements the flat memory used by the memory operand kinds.
package esomem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
)

const (
	// Align is the alignment of every allocation
	Align = 8
	// Null is the first usable address. Addresses below it are never allocated.
	Null = Align
)

var (
	ErrOutOfMemory = errors.New("out of memory")
	ErrNullPointer = errors.New("null pointer access")
)

// ErrBounds is returned for an access outside of the memory.
type ErrBounds struct {
	Addr uint64
	Len  int
	Size uint64
}

func (e *ErrBounds) Error() string {
	return fmt.Sprintf("access of %d bytes at 0x%x is outside memory of %d bytes", e.Len, e.Addr, e.Size)
}

// ErrFree is returned when freeing an address which is not the start of a live allocation.
type ErrFree struct {
	Addr  uint64
	Stack bool
}

func (e *ErrFree) Error() string {
	if e.Stack {
		return fmt.Sprintf("0x%x is not the top of the stack region", e.Addr)
	}
	return fmt.Sprintf("0x%x is not an allocated block", e.Addr)
}

type block struct {
	addr, size uint64
}

func (b block) end() uint64 {
	return b.addr + b.size
}

// Flat is a single byte addressed memory.
// The low part is a first-fit heap, the top stackSize bytes are a LIFO stack region.
// It is safe for concurrent use.
type Flat struct {
	mu  sync.Mutex
	buf []byte

	heapEnd uint64
	// heap is sorted by address
	heap []block
	// stack holds the live stack allocations, the last is the top
	stack []block
}

// New creates a Flat of size bytes, the top stackSize of which are the stack region.
func New(size, stackSize uint64) *Flat {
	size = alignDown(size)
	stackSize = alignDown(stackSize)
	if stackSize > size {
		stackSize = size
	}
	heapEnd := size - stackSize
	if heapEnd < Null {
		heapEnd = Null
	}
	return &Flat{
		buf:     make([]byte, size),
		heapEnd: heapEnd,
	}
}

// Size returns the total size in bytes
func (m *Flat) Size() uint64 {
	return uint64(len(m.buf))
}

func (m *Flat) Allocate(ctx context.Context, size uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := alignUp(size)
	if !ok {
		return 0, ErrOutOfMemory
	}
	at := uint64(Null)
	idx := 0
	for i, b := range m.heap {
		if b.addr-at >= n {
			break
		}
		at = b.end()
		idx = i + 1
	}
	if at > m.heapEnd || m.heapEnd-at < n {
		return 0, ErrOutOfMemory
	}
	m.heap = slices.Insert(m.heap, idx, block{addr: at, size: n})
	clear(m.buf[at : at+n])
	return at, nil
}

func (m *Flat) Free(ctx context.Context, addr uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, found := slices.BinarySearchFunc(m.heap, addr, func(b block, x uint64) int {
		switch {
		case b.addr < x:
			return -1
		case b.addr > x:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return &ErrFree{Addr: addr}
	}
	m.heap = slices.Delete(m.heap, i, i+1)
	return nil
}

func (m *Flat) AllocateStack(ctx context.Context, size uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := alignUp(size)
	if !ok {
		return 0, ErrOutOfMemory
	}
	at := m.heapEnd
	if len(m.stack) > 0 {
		at = m.stack[len(m.stack)-1].end()
	}
	if at > m.Size() || m.Size()-at < n {
		return 0, ErrOutOfMemory
	}
	m.stack = append(m.stack, block{addr: at, size: n})
	clear(m.buf[at : at+n])
	return at, nil
}

// FreeStack releases the top of the stack region, addr must be the most recent live stack allocation.
func (m *Flat) FreeStack(ctx context.Context, addr uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 || m.stack[len(m.stack)-1].addr != addr {
		return &ErrFree{Addr: addr, Stack: true}
	}
	m.stack = m.stack[:len(m.stack)-1]
	return nil
}

func (m *Flat) ReadAt(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(addr, len(buf)); err != nil {
		return err
	}
	copy(buf, m.buf[addr:])
	return nil
}

func (m *Flat) WriteAt(addr uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(addr, len(buf)); err != nil {
		return err
	}
	copy(m.buf[addr:], buf)
	return nil
}

func (m *Flat) check(addr uint64, n int) error {
	if addr < Null {
		return ErrNullPointer
	}
	if addr > m.Size() || m.Size()-addr < uint64(n) {
		return &ErrBounds{Addr: addr, Len: n, Size: m.Size()}
	}
	return nil
}

// Stats describes the use of a Flat
type Stats struct {
	HeapBlocks  int
	HeapInUse   uint64
	StackBlocks int
	StackInUse  uint64
}

func (m *Flat) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s Stats
	for _, b := range m.heap {
		s.HeapBlocks++
		s.HeapInUse += b.size
	}
	for _, b := range m.stack {
		s.StackBlocks++
		s.StackInUse += b.size
	}
	return s
}

// alignUp rounds size up to Align, a zero size still takes one unit.
func alignUp(size uint64) (uint64, bool) {
	if size == 0 {
		return Align, true
	}
	n := (size + Align - 1) &^ (Align - 1)
	return n, n >= size
}

func alignDown(x uint64) uint64 {
	return x &^ (Align - 1)
}
