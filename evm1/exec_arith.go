package evm1

import (
	"esovm.org/esovm/spec"
)

func (t *Thread) arith(ix spec.Ix) error {
	if ix.Op.Info().IntOnly && ix.Type.IsFloat() {
		return invalidOp(ix.Op, ErrFloatOperation)
	}
	a, err := t.getReg(ix.Type, uint64(ix.Op1))
	if err != nil {
		return err
	}
	b, err := t.value(ix.Op, ix.Type, ix.Kind, ix.Op2)
	if err != nil {
		return err
	}
	z, err := arithBits(ix.Op, ix.Type, a, b)
	if err != nil {
		return invalidOp(ix.Op, err)
	}
	return t.putReg(ix.Type, uint64(ix.Dest), z)
}

func (t *Thread) convert(ix spec.Ix) error {
	x, err := t.getReg(ix.Type, uint64(ix.Op1))
	if err != nil {
		return err
	}
	return t.putReg(ix.DstType, uint64(ix.Dest), convertBits(ix.Type, ix.DstType, x))
}

func (t *Thread) test(ix spec.Ix) error {
	x, err := t.getReg(ix.Type, uint64(ix.Op1))
	if err != nil {
		return err
	}
	t.flags = flagsOf(ix.Type, x)
	return nil
}
