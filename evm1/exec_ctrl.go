package evm1

import (
	"context"
	"fmt"

	"esovm.org/esovm/spec"
)

func (t *Thread) jump(ix spec.Ix) error {
	addr, err := t.scalar(ix.Op, ix.Kind, ix.Op2)
	if err != nil {
		return err
	}
	return t.setPC(addr)
}

func (t *Thread) resolve(ctx context.Context, op spec.Op, name string) (Target, error) {
	if tgt, ok := t.calls.Get(name); ok {
		return tgt, nil
	}
	if t.env.Resolver == nil {
		return Target{}, invalidOp(op, fmt.Errorf("%w %q", ErrUnresolved, name))
	}
	tgt, err := t.env.Resolver.Resolve(ctx, name)
	if err != nil {
		return Target{}, invalidOp(op, fmt.Errorf("%w %q: %w", ErrUnresolved, name, err))
	}
	if tgt.Name == "" {
		tgt.Name = name
	}
	t.calls.Add(name, tgt)
	return tgt, nil
}

// call invokes the method named by the string constant operand2
func (t *Thread) call(ctx context.Context, ix spec.Ix) error {
	if ix.Kind != spec.Constant {
		return invalidOp(ix.Op, ErrOperandKind)
	}
	name, err := t.constantString(ix.Op, ix.Op2)
	if err != nil {
		return err
	}
	tgt, err := t.resolve(ctx, ix.Op, name)
	if err != nil {
		return err
	}
	if tgt.External != nil {
		if err := tgt.External(ctx, ExternalCall{Name: tgt.Name, Stack: t.stack, Memory: t.env.Memory}); err != nil {
			return fmt.Errorf("external method %q: %w", tgt.Name, err)
		}
		return nil
	}
	if tgt.Entry%spec.InstructionBytes != 0 {
		return &ErrProgramBounds{PC: tgt.Entry, Len: len(t.prog), Unaligned: true}
	}
	f, err := t.frames.PushLayout(tgt.Name, tgt.Layout)
	if err != nil {
		return err
	}
	f.ReturnPC = t.pc + spec.InstructionBytes
	return t.setPC(tgt.Entry)
}

func (t *Thread) ret() error {
	if t.frames.Depth() <= 1 {
		t.halted = true
		return nil
	}
	f, err := t.frames.Pop()
	if err != nil {
		return err
	}
	return t.setPC(f.ReturnPC)
}

func (t *Thread) halt(ix spec.Ix) error {
	if ix.Op2 == 0 {
		t.halted = true
		return nil
	}
	msg := fmt.Sprintf("exit code %d", ix.Op2)
	if t.env.Constants != nil {
		if s, err := t.env.Constants.String(ix.Op2); err == nil {
			msg = s
		}
	}
	return &ErrAbnormalHalt{Index: ix.Op2, Message: msg}
}

func (t *Thread) ports(op spec.Op) (Ports, error) {
	if t.env.Ports == nil {
		return nil, invalidOp(op, ErrNoPorts)
	}
	return t.env.Ports, nil
}

func (t *Thread) interrupt(ctx context.Context, ix spec.Ix) error {
	p, err := t.ports(ix.Op)
	if err != nil {
		return err
	}
	idx, err := t.scalar(ix.Op, ix.Kind, ix.Op2)
	if err != nil {
		return err
	}
	if err := p.Interrupt(ctx, idx); err != nil {
		return fmt.Errorf("interrupt %d: %w", idx, err)
	}
	return nil
}

func (t *Thread) out(ctx context.Context, ix spec.Ix) error {
	p, err := t.ports(ix.Op)
	if err != nil {
		return err
	}
	port, err := t.scalar(ix.Op, ix.Kind, ix.Op2)
	if err != nil {
		return err
	}
	x, err := t.getReg(ix.Type, uint64(ix.Op1))
	if err != nil {
		return err
	}
	if err := p.Out(ctx, port, ix.Type, x); err != nil {
		return fmt.Errorf("out port %d: %w", port, err)
	}
	return nil
}

func (t *Thread) in(ctx context.Context, ix spec.Ix) error {
	p, err := t.ports(ix.Op)
	if err != nil {
		return err
	}
	port, err := t.scalar(ix.Op, ix.Kind, ix.Op2)
	if err != nil {
		return err
	}
	f, err := t.frames.Current()
	if err != nil {
		return err
	}
	if _, err := f.GetBits(ix.Type, int(ix.Op1)); err != nil {
		return err
	}
	x, err := p.In(ctx, port, ix.Type)
	if err != nil {
		return fmt.Errorf("in port %d: %w", port, err)
	}
	return f.PutBits(ix.Type, int(ix.Op1), x&mask(ix.Type))
}
