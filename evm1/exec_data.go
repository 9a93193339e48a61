package evm1

import (
	"context"
	"encoding/binary"
	"fmt"

	"esovm.org/esovm/spec"
)

func (t *Thread) getReg(dt spec.DataType, i uint64) (uint64, error) {
	f, err := t.frames.Current()
	if err != nil {
		return 0, err
	}
	return f.GetBits(dt, lvtIndex(i))
}

func (t *Thread) putReg(dt spec.DataType, i uint64, bits uint64) error {
	f, err := t.frames.Current()
	if err != nil {
		return err
	}
	return f.PutBits(dt, lvtIndex(i), bits)
}

// lvtIndex converts an operand to a register index, indexes which do not fit are made negative
// so they fail the bounds check.
func lvtIndex(i uint64) int {
	if i > spec.Operand2SimpleMax {
		return -1
	}
	return int(i)
}

func (t *Thread) constant(op spec.Op, i uint64) (uint64, error) {
	if t.env.Constants == nil {
		return 0, invalidOp(op, ErrNoConstants)
	}
	x, err := t.env.Constants.Constant(i)
	if err != nil {
		return 0, fmt.Errorf("constant %d: %w", i, err)
	}
	return x, nil
}

func (t *Thread) constantString(op spec.Op, i uint64) (string, error) {
	if t.env.Constants == nil {
		return "", invalidOp(op, ErrNoConstants)
	}
	return t.env.Constants.String(i)
}

// value resolves a non-memory operand of type dt.
// x is the 32 bit operand2 field for Immediates.
func (t *Thread) value(op spec.Op, dt spec.DataType, kind spec.OperandKind, x uint64) (uint64, error) {
	switch kind {
	case spec.Register:
		return t.getReg(dt, x)
	case spec.Immediate:
		return immediate(dt, uint32(x)), nil
	case spec.Constant:
		c, err := t.constant(op, x)
		return c & mask(dt), err
	default:
		return 0, invalidOp(op, ErrOperandKind)
	}
}

// scalar resolves an operand2 which is used as a count, address or index,
// rather than as a value of the instruction's DataType.
func (t *Thread) scalar(op spec.Op, kind spec.OperandKind, x uint64) (uint64, error) {
	switch kind {
	case spec.Immediate:
		return x, nil
	case spec.Register:
		return t.getReg(spec.Word, x)
	case spec.Constant:
		return t.constant(op, x)
	default:
		return 0, invalidOp(op, ErrOperandKind)
	}
}

func (t *Thread) memory(op spec.Op) (Memory, error) {
	if t.env.Memory == nil {
		return nil, invalidOp(op, ErrNoMemory)
	}
	return t.env.Memory, nil
}

// memOperand is a decoded memory operand
type memOperand struct {
	kind spec.OperandKind
	base uint64
	off  uint64
	// offBits is the width of a signed immediate offset
	offBits int
}

// splitMem is the memory operand of LOAD and STORE
func splitMem(ix spec.Ix) memOperand {
	return memOperand{kind: ix.Kind, base: uint64(ix.Aux), off: ix.Op2, offBits: 32}
}

// packedMem is the memory operand of CLOAD and CSTORE, the base register is packed into operand2.
func packedMem(ix spec.Ix) memOperand {
	return memOperand{
		kind:    ix.Kind,
		base:    ix.Op2 >> spec.CondOffsetBits,
		off:     ix.Op2 & (1<<spec.CondOffsetBits - 1),
		offBits: spec.CondOffsetBits,
	}
}

// address computes the effective address of a memory operand
func (t *Thread) address(op spec.Op, mo memOperand) (uint64, error) {
	base, err := t.getReg(spec.Word, mo.base)
	if err != nil {
		return 0, err
	}
	var off uint64
	switch mo.kind.Direct() {
	case spec.MemImmediate:
		off = uint64(signExtendN(mo.off, mo.offBits))
	case spec.MemConstant:
		if off, err = t.constant(op, mo.off); err != nil {
			return 0, err
		}
	case spec.MemRegister:
		if off, err = t.getReg(spec.Word, mo.off); err != nil {
			return 0, err
		}
	default:
		return 0, invalidOp(op, ErrOperandKind)
	}
	addr := base + off
	if mo.kind.IsIndirect() {
		return t.readMem(op, spec.Word, addr)
	}
	return addr, nil
}

func (t *Thread) readMem(op spec.Op, dt spec.DataType, addr uint64) (uint64, error) {
	mem, err := t.memory(op)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	n := dt.Size()
	if err := mem.ReadAt(addr, buf[8-n:]); err != nil {
		return 0, fmt.Errorf("reading %d bytes at 0x%x: %w", n, addr, err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func (t *Thread) writeMem(op spec.Op, dt spec.DataType, addr uint64, bits uint64) error {
	mem, err := t.memory(op)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	n := dt.Size()
	if err := mem.WriteAt(addr, buf[8-n:]); err != nil {
		return fmt.Errorf("writing %d bytes at 0x%x: %w", n, addr, err)
	}
	return nil
}

// source reads operand2 of a LOAD or CLOAD
func (t *Thread) source(ix spec.Ix, mo memOperand) (uint64, error) {
	if !ix.Kind.IsMemory() {
		return t.value(ix.Op, ix.Type, ix.Kind, ix.Op2)
	}
	addr, err := t.address(ix.Op, mo)
	if err != nil {
		return 0, err
	}
	return t.readMem(ix.Op, ix.Type, addr)
}

// sink writes operand2 of a STORE or CSTORE
func (t *Thread) sink(ix spec.Ix, mo memOperand, bits uint64) error {
	switch {
	case ix.Kind == spec.Register:
		return t.putReg(ix.Type, ix.Op2, bits)
	case ix.Kind.IsMemory():
		addr, err := t.address(ix.Op, mo)
		if err != nil {
			return err
		}
		return t.writeMem(ix.Op, ix.Type, addr, bits)
	default:
		return invalidOp(ix.Op, ErrImmutableOperand)
	}
}

func (t *Thread) load(ix spec.Ix) error {
	x, err := t.source(ix, splitMem(ix))
	if err != nil {
		return err
	}
	return t.putReg(ix.Type, uint64(ix.Op1), x)
}

func (t *Thread) store(ix spec.Ix) error {
	x, err := t.getReg(ix.Type, uint64(ix.Op1))
	if err != nil {
		return err
	}
	return t.sink(ix, splitMem(ix), x)
}

func (t *Thread) cload(ix spec.Ix) error {
	if !t.flags.Holds(ix.Cond()) {
		return nil
	}
	x, err := t.source(ix, packedMem(ix))
	if err != nil {
		return err
	}
	return t.putReg(ix.Type, uint64(ix.Dest), x)
}

func (t *Thread) cstore(ix spec.Ix) error {
	if !t.flags.Holds(ix.Cond()) {
		return nil
	}
	x, err := t.getReg(ix.Type, uint64(ix.Dest))
	if err != nil {
		return err
	}
	return t.sink(ix, packedMem(ix), x)
}

func (t *Thread) push(ix spec.Ix) error {
	x, err := t.getReg(ix.Type, uint64(ix.Op1))
	if err != nil {
		return err
	}
	return t.stack.PushBits(ix.Type, x)
}

func (t *Thread) pop(ix spec.Ix) error {
	// check the register first so a bad index does not consume the value
	f, err := t.frames.Current()
	if err != nil {
		return err
	}
	if _, err := f.GetBits(ix.Type, int(ix.Op1)); err != nil {
		return err
	}
	x, err := t.stack.PopBits(ix.Type)
	if err != nil {
		return err
	}
	return f.PutBits(ix.Type, int(ix.Op1), x)
}

// allocate handles ALLOCATE and ALLOCATE_STACK, the address is written to Word register operand1.
func (t *Thread) allocate(ctx context.Context, ix spec.Ix) error {
	mem, err := t.memory(ix.Op)
	if err != nil {
		return err
	}
	size, err := t.scalar(ix.Op, ix.Kind, ix.Op2)
	if err != nil {
		return err
	}
	var addr uint64
	if ix.Op == spec.ALLOCATE_STACK {
		addr, err = mem.AllocateStack(ctx, size)
	} else {
		addr, err = mem.Allocate(ctx, size)
	}
	if err != nil {
		return fmt.Errorf("%v %d bytes: %w", ix.Op, size, err)
	}
	return t.putReg(spec.Word, uint64(ix.Op1), addr)
}

// free handles FREE and FREE_STACK, the address is in Word register operand1.
func (t *Thread) free(ctx context.Context, ix spec.Ix) error {
	mem, err := t.memory(ix.Op)
	if err != nil {
		return err
	}
	addr, err := t.getReg(spec.Word, uint64(ix.Op1))
	if err != nil {
		return err
	}
	if ix.Op == spec.FREE_STACK {
		err = mem.FreeStack(ctx, addr)
	} else {
		err = mem.Free(ctx, addr)
	}
	if err != nil {
		return fmt.Errorf("%v 0x%x: %w", ix.Op, addr, err)
	}
	return nil
}
