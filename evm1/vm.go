// package evm1 contains an implementation of the esovm execution engine.
package evm1

import (
	"context"
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"esovm.org/esovm/spec"
)

// Thread executes a program one instruction at a time.
// A Thread is not safe for concurrent use, independent Threads may run in parallel
// if their Env is.
type Thread struct {
	prog []byte
	env  Env
	cfg  Config

	pc     uint64
	stack  *OperandStack
	frames *FrameStack
	flags  Flags
	steps  uint64

	halted bool
	err    error
	// jumped is set by instructions which set the program counter
	jumped bool

	calls *simplelru.LRU[string, Target]
}

// New creates a Thread which will begin executing prog at entry.
// len(prog) and entry must be multiples of spec.InstructionBytes.
func New(prog []byte, entry uint64, env Env, cfg Config) (*Thread, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if len(prog)%spec.InstructionBytes != 0 {
		return nil, fmt.Errorf("program length %d is not a multiple of %d", len(prog), spec.InstructionBytes)
	}
	if entry%spec.InstructionBytes != 0 {
		return nil, &ErrProgramBounds{PC: entry, Len: len(prog), Unaligned: true}
	}
	calls, err := simplelru.NewLRU[string, Target](cfg.CallCacheSize, nil)
	if err != nil {
		return nil, err
	}
	t := &Thread{
		prog: prog,
		env:  env,
		cfg:  cfg,

		pc:     entry,
		stack:  NewOperandStack(cfg.StackSize),
		frames: NewFrameStack(cfg.MaxFrames),
		calls:  calls,
	}
	if _, err := t.frames.PushLayout(cfg.EntryName, cfg.EntryLayout); err != nil {
		return nil, err
	}
	return t, nil
}

// Cycle executes exactly one instruction.
// Cycle is a no-op on a halted Thread.
// Any error halts the Thread permanently, and is returned as a *Fault.
func (t *Thread) Cycle(ctx context.Context) error {
	if t.halted {
		return nil
	}
	if t.pc >= uint64(len(t.prog)) {
		return t.fail(spec.Instruction{}, &ErrProgramBounds{PC: t.pc, Len: len(t.prog)})
	}
	ins := spec.FromBytes(t.prog[t.pc:])
	ix, err := spec.Decode(ins)
	if err != nil {
		return t.fail(ins, err)
	}
	t.jumped = false
	if err := t.step(ctx, ix); err != nil {
		return t.fail(ins, err)
	}
	t.steps++
	// the program counter stays on a HALT
	if !t.jumped && !t.halted {
		t.pc += spec.InstructionBytes
	}
	return nil
}

// Run executes the Thread for a maximum of maxSteps.
// The number of steps taken is returned.
// Run stops early if the Thread halts or ctx is cancelled.
func (t *Thread) Run(ctx context.Context, maxSteps uint64) (steps uint64, _ error) {
	for steps = 0; steps < maxSteps; steps++ {
		if t.halted {
			return steps, nil
		}
		if steps%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return steps, err
			}
		}
		if err := t.Cycle(ctx); err != nil {
			return steps, err
		}
	}
	return steps, nil
}

func (t *Thread) step(ctx context.Context, ix spec.Ix) error {
	// checked before any condition, so a CSTORE to an immediate always faults
	if ix.Op.Info().Stores && !ix.Kind.Writable() {
		return invalidOp(ix.Op, ErrImmutableOperand)
	}
	switch ix.Op {
	case spec.LOAD:
		return t.load(ix)
	case spec.STORE:
		return t.store(ix)
	case spec.CLOAD:
		return t.cload(ix)
	case spec.CSTORE:
		return t.cstore(ix)
	case spec.PUSH:
		return t.push(ix)
	case spec.POP:
		return t.pop(ix)

	case spec.ALLOCATE, spec.ALLOCATE_STACK:
		return t.allocate(ctx, ix)
	case spec.FREE, spec.FREE_STACK:
		return t.free(ctx, ix)

	case spec.ADD, spec.SUB, spec.MUL, spec.DIV, spec.MOD,
		spec.SHL, spec.SHR, spec.ASR, spec.AND, spec.OR, spec.XOR:
		return t.arith(ix)
	case spec.CONVERT:
		return t.convert(ix)

	// control flow
	case spec.CALL:
		return t.call(ctx, ix)
	case spec.RETURN:
		return t.ret()
	case spec.TEST:
		return t.test(ix)
	case spec.JUMP:
		return t.jump(ix)
	case spec.CJUMP:
		if !t.flags.Holds(ix.Cond()) {
			return nil
		}
		return t.jump(ix)
	case spec.HALT:
		return t.halt(ix)

	// ports
	case spec.INTERRUPT:
		return t.interrupt(ctx, ix)
	case spec.OUT:
		return t.out(ctx, ix)
	case spec.IN:
		return t.in(ctx, ix)

	default:
		// Decode only returns defined opcodes
		panic(ix.Op)
	}
}

func (t *Thread) fail(ins spec.Instruction, err error) error {
	t.halted = true
	t.err = &Fault{PC: t.pc, Ix: ins, Err: err, Trace: t.frames.Trace()}
	return t.err
}

// setPC transfers control to addr.
func (t *Thread) setPC(addr uint64) error {
	if addr%spec.InstructionBytes != 0 {
		return &ErrProgramBounds{PC: addr, Len: len(t.prog), Unaligned: true}
	}
	t.pc = addr
	t.jumped = true
	return nil
}

// Halted returns true once the Thread has stopped, normally or because of an error.
func (t *Thread) Halted() bool {
	return t.halted
}

// Err returns the error which halted the Thread, nil for a normal halt.
func (t *Thread) Err() error {
	return t.err
}

// PC returns the program counter
func (t *Thread) PC() uint64 {
	return t.pc
}

// Steps returns the number of instructions executed successfully.
func (t *Thread) Steps() uint64 {
	return t.steps
}

func (t *Thread) Flags() Flags {
	return t.flags
}

func (t *Thread) Stack() *OperandStack {
	return t.stack
}

func (t *Thread) Frames() *FrameStack {
	return t.frames
}

// Current returns the active CallFrame
func (t *Thread) Current() (*CallFrame, error) {
	return t.frames.Current()
}
