// package esodev implements evm1.Ports, a bus of numbered ports and interrupt handlers, and the standard devices.
package esodev

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/exp/maps"

	"esovm.org/esovm/evm1"
	"esovm.org/esovm/spec"
)

type (
	InFunc        = func(ctx context.Context, dt spec.DataType) (uint64, error)
	OutFunc       = func(ctx context.Context, dt spec.DataType, bits uint64) error
	InterruptFunc = func(ctx context.Context) error
)

// PortBackend handles the IN and OUT instructions for a port.
// Either function may be nil.
type PortBackend struct {
	In  InFunc
	Out OutFunc
}

// ErrNoPort is returned for I/O on a port with no backend in that direction.
type ErrNoPort struct {
	Port uint64
	Out  bool
}

func (e *ErrNoPort) Error() string {
	dir := "input"
	if e.Out {
		dir = "output"
	}
	return fmt.Sprintf("no %s device on port %d", dir, e.Port)
}

type ErrNoInterrupt struct {
	Index uint64
}

func (e *ErrNoInterrupt) Error() string {
	return fmt.Sprintf("no handler for interrupt %d", e.Index)
}

var _ evm1.Ports = &Bus{}

// Bus routes port I/O and interrupts to devices.
// It is safe for concurrent use, devices do their own locking.
type Bus struct {
	mu         sync.RWMutex
	ports      map[uint64]PortBackend
	interrupts map[uint64]InterruptFunc
}

func NewBus() *Bus {
	return &Bus{
		ports:      make(map[uint64]PortBackend),
		interrupts: make(map[uint64]InterruptFunc),
	}
}

func (b *Bus) PutPort(port uint64, pb PortBackend) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports[port] = pb
}

func (b *Bus) RemovePort(port uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ports, port)
}

// ListPorts returns the ports with a backend, sorted.
func (b *Bus) ListPorts() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ks := maps.Keys(b.ports)
	slices.Sort(ks)
	return ks
}

func (b *Bus) PutInterrupt(idx uint64, fn InterruptFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interrupts[idx] = fn
}

func (b *Bus) ListInterrupts() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ks := maps.Keys(b.interrupts)
	slices.Sort(ks)
	return ks
}

func (b *Bus) Interrupt(ctx context.Context, idx uint64) error {
	b.mu.RLock()
	fn, ok := b.interrupts[idx]
	b.mu.RUnlock()
	if !ok {
		return &ErrNoInterrupt{Index: idx}
	}
	return fn(ctx)
}

func (b *Bus) Out(ctx context.Context, port uint64, dt spec.DataType, bits uint64) error {
	pb := b.port(port)
	if pb.Out == nil {
		return &ErrNoPort{Port: port, Out: true}
	}
	return pb.Out(ctx, dt, bits)
}

func (b *Bus) In(ctx context.Context, port uint64, dt spec.DataType) (uint64, error) {
	pb := b.port(port)
	if pb.In == nil {
		return 0, &ErrNoPort{Port: port}
	}
	return pb.In(ctx, dt)
}

func (b *Bus) port(port uint64) PortBackend {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ports[port]
}
