package spec

import (
	"encoding/binary"
	"fmt"
)

// Instruction is the encoded form of an instruction.
// Multi-byte fields are big endian.
type Instruction [InstructionBytes]byte

// FromBytes copies the instruction at the start of x
func FromBytes(x []byte) (ret Instruction) {
	copy(ret[:], x[:InstructionBytes])
	return ret
}

func (ins Instruction) Op() Op {
	return Op(ins[0])
}

// hi returns the high nibble of the type byte: DataType, or source type for Convert.
func (ins Instruction) hi() uint8 {
	return ins[1] >> 4
}

// lo returns the low nibble of the type byte: OperandKind, or destination type for Convert.
func (ins Instruction) lo() uint8 {
	return ins[1] & 0x0F
}

func (ins Instruction) u32() uint32 {
	return binary.BigEndian.Uint32(ins[4:8])
}

func (ins Instruction) u40() uint64 {
	return uint64(ins[3])<<32 | uint64(ins.u32())
}

func typeByte(hi, lo uint8) byte {
	return hi<<4 | lo&0x0F
}

// Standard encodes an instruction with a destination
func Standard(op Op, dt DataType, kind OperandKind, dest, op1 uint8, op2 uint32) (ret Instruction) {
	ret[0] = byte(op)
	ret[1] = typeByte(uint8(dt), uint8(kind))
	ret[2] = dest
	ret[3] = op1
	binary.BigEndian.PutUint32(ret[4:], op2)
	return ret
}

// Simple encodes an instruction without a destination.
// op2 is truncated to Operand2SimpleBits.
func Simple(op Op, dt DataType, kind OperandKind, op1 uint8, op2 uint64) (ret Instruction) {
	ret[0] = byte(op)
	ret[1] = typeByte(uint8(dt), uint8(kind))
	ret[2] = op1
	ret[3] = byte(op2 >> 32)
	binary.BigEndian.PutUint32(ret[4:], uint32(op2))
	return ret
}

// Split encodes a Simple instruction with operand2 split into an 8 and 32 bit part.
func Split(op Op, dt DataType, kind OperandKind, op1, aux uint8, op2 uint32) (ret Instruction) {
	ret[0] = byte(op)
	ret[1] = typeByte(uint8(dt), uint8(kind))
	ret[2] = op1
	ret[3] = aux
	binary.BigEndian.PutUint32(ret[4:], op2)
	return ret
}

// Convert encodes a conversion. The trailing 32 bits are written as zero.
func Convert(src, dst DataType, dest, operand uint8) (ret Instruction) {
	ret[0] = byte(CONVERT)
	ret[1] = typeByte(uint8(src), uint8(dst))
	ret[2] = dest
	ret[3] = operand
	return ret
}

// Ix is a decoded instruction
type Ix struct {
	Op Op
	// Type is the DataType, or the source type for Convert
	Type DataType
	// Kind is the OperandKind of operand2. Unused by Convert.
	Kind OperandKind
	// DstType is the destination type for Convert
	DstType DataType

	Dest uint8
	Op1  uint8
	Aux  uint8
	Op2  uint64
}

// Cond returns operand1 as a condition code
func (ix Ix) Cond() Cond {
	return Cond(ix.Op1)
}

// Decode validates and decodes an instruction according to the shape of its opcode.
func Decode(ins Instruction) (Ix, error) {
	op := ins.Op()
	info := op.Info()
	if info.Shape == ShapeNone {
		return Ix{}, &DecodeError{Field: "opcode", Value: uint8(op)}
	}
	ix := Ix{Op: op, Type: DataType(ins.hi())}
	if !ix.Type.Valid() {
		return Ix{}, &DecodeError{Field: "data type", Value: ins.hi()}
	}
	switch info.Shape {
	case ShapeConvert:
		ix.DstType = DataType(ins.lo())
		if !ix.DstType.Valid() {
			return Ix{}, &DecodeError{Field: "data type", Value: ins.lo()}
		}
		ix.Dest, ix.Op1 = ins[2], ins[3]
		return ix, nil
	case ShapeStandard:
		ix.Dest, ix.Op1, ix.Op2 = ins[2], ins[3], uint64(ins.u32())
	case ShapeSimple:
		ix.Op1, ix.Op2 = ins[2], ins.u40()
	case ShapeSplit:
		ix.Op1, ix.Aux, ix.Op2 = ins[2], ins[3], uint64(ins.u32())
	}
	ix.Kind = OperandKind(ins.lo())
	if !ix.Kind.Valid() || (ix.Kind.IsMemory() && !info.Memory) {
		return Ix{}, &DecodeError{Field: "operand kind", Value: ins.lo()}
	}
	if info.Cond && !ix.Cond().Valid() {
		return Ix{}, &DecodeError{Field: "condition", Value: ix.Op1}
	}
	return ix, nil
}

// Encode is the inverse of Decode
func Encode(ix Ix) Instruction {
	switch ix.Op.Shape() {
	case ShapeStandard:
		return Standard(ix.Op, ix.Type, ix.Kind, ix.Dest, ix.Op1, uint32(ix.Op2))
	case ShapeSimple:
		return Simple(ix.Op, ix.Type, ix.Kind, ix.Op1, ix.Op2)
	case ShapeSplit:
		return Split(ix.Op, ix.Type, ix.Kind, ix.Op1, ix.Aux, uint32(ix.Op2))
	case ShapeConvert:
		return Convert(ix.Type, ix.DstType, ix.Dest, ix.Op1)
	default:
		panic(fmt.Sprintf("cannot encode undefined opcode %v", ix.Op))
	}
}

// DecodeError is returned when an instruction contains a reserved value
type DecodeError struct {
	Field string
	Value uint8
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("reserved %s 0x%X", e.Field, e.Value)
}
