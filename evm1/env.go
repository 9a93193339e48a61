package evm1

import (
	"context"
	"fmt"

	"esovm.org/esovm/spec"
)

// ConstantPool gives access to the read-only constants of a program.
type ConstantPool interface {
	// Constant returns the bit pattern of a numeric constant.
	Constant(i uint64) (uint64, error)
	// String returns a string constant.
	String(i uint64) (string, error)
}

// Target is what a CALL resolves to.
// Exactly one of Entry (with Layout) or External is meaningful: External takes precedence if set.
type Target struct {
	Name   string
	Entry  uint64
	Layout spec.FrameLayout

	External ExternalFunc
}

// ExternalFunc is a method implemented by the host.
// Arguments and results are passed on the operand stack.
type ExternalFunc = func(ctx context.Context, x ExternalCall) error

// ExternalCall is the part of a Thread available to an ExternalFunc
type ExternalCall struct {
	Name   string
	Stack  *OperandStack
	Memory Memory
}

// Resolver resolves the names used by CALL.
type Resolver interface {
	Resolve(ctx context.Context, name string) (Target, error)
}

// Memory is the flat address space used by ALLOCATE, FREE and the memory operand kinds.
// Implementations shared between Threads must do their own synchronization.
type Memory interface {
	Allocate(ctx context.Context, size uint64) (uint64, error)
	Free(ctx context.Context, addr uint64) error
	AllocateStack(ctx context.Context, size uint64) (uint64, error)
	FreeStack(ctx context.Context, addr uint64) error

	ReadAt(addr uint64, buf []byte) error
	WriteAt(addr uint64, buf []byte) error
}

// Ports is the interrupt vector and port I/O of the host.
type Ports interface {
	Interrupt(ctx context.Context, idx uint64) error
	Out(ctx context.Context, port uint64, dt spec.DataType, bits uint64) error
	In(ctx context.Context, port uint64, dt spec.DataType) (uint64, error)
}

// Env contains the collaborators a Thread reaches outside of itself.
// Any of them may be nil, instructions which need a nil collaborator fault.
type Env struct {
	Constants ConstantPool
	Resolver  Resolver
	Memory    Memory
	Ports     Ports
}

// Config controls the resources of a Thread
type Config struct {
	// StackSize is the capacity of the OperandStack in bytes
	StackSize int
	// MaxFrames is the depth limit of the FrameStack
	MaxFrames int

	// EntryName names the frame the Thread starts in
	EntryName string
	// EntryLayout sizes the frame the Thread starts in
	EntryLayout spec.FrameLayout

	// CallCacheSize is the number of resolved call targets kept per Thread
	CallCacheSize int
}

func DefaultConfig() Config {
	return Config{
		StackSize:     DefaultStackSize,
		MaxFrames:     DefaultMaxFrames,
		EntryName:     "main",
		CallCacheSize: 64,
	}
}

// Validate returns an error if a size is negative. Zero sizes are replaced by defaults.
func (c Config) Validate() error {
	switch {
	case c.StackSize < 0:
		return fmt.Errorf("evm1: negative stack size %d", c.StackSize)
	case c.MaxFrames < 0:
		return fmt.Errorf("evm1: negative frame limit %d", c.MaxFrames)
	case c.CallCacheSize < 0:
		return fmt.Errorf("evm1: negative call cache size %d", c.CallCacheSize)
	}
	return nil
}

func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.StackSize == 0 {
		c.StackSize = def.StackSize
	}
	if c.MaxFrames == 0 {
		c.MaxFrames = def.MaxFrames
	}
	if c.EntryName == "" {
		c.EntryName = def.EntryName
	}
	if c.CallCacheSize == 0 {
		c.CallCacheSize = def.CallCacheSize
	}
}
