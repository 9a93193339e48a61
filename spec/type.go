package spec

import "fmt"

// DataType is the width and representation an instruction operates on.
// It is encoded in the high nibble of the second instruction byte.
type DataType uint8

const (
	Int8 = DataType(iota)
	Int16
	Int32
	Int64
	Float16
	Float32
	Float64
	Word
)

// NumDataTypes is the number of defined DataTypes, 0x8-0xF are reserved.
const NumDataTypes = 8

func (dt DataType) Valid() bool {
	return dt < NumDataTypes
}

// Size returns the size of a value of this type in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Int8:
		return 1
	case Int16, Float16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64, Word:
		return 8
	default:
		panic(fmt.Sprintf("size of reserved data type %d", dt))
	}
}

func (dt DataType) IsFloat() bool {
	return dt == Float16 || dt == Float32 || dt == Float64
}

func (dt DataType) IsInteger() bool {
	return dt.Valid() && !dt.IsFloat()
}

var dataTypeNames = [NumDataTypes]string{"i8", "i16", "i32", "i64", "f16", "f32", "f64", "w"}

func (dt DataType) String() string {
	if !dt.Valid() {
		return fmt.Sprintf("DataType(%d)", uint8(dt))
	}
	return dataTypeNames[dt]
}

// ParseDataType parses the short names used by String
func ParseDataType(x string) (DataType, error) {
	for i, name := range dataTypeNames {
		if name == x {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", x)
}

// OperandKind says how the second operand of an instruction is located.
// It is encoded in the low nibble of the second instruction byte.
type OperandKind uint8

const (
	// Register reads or writes the current frame
	Register = OperandKind(0x0)
	// Immediate is a literal embedded in the instruction
	Immediate = OperandKind(0x1)
	// Constant is an index into the constant pool
	Constant = OperandKind(0x2)

	// MemImmediate addresses base + immediate
	MemImmediate = OperandKind(0x4)
	// MemConstant addresses base + constant
	MemConstant = OperandKind(0x5)
	// MemRegister addresses base + register
	MemRegister = OperandKind(0x6)
	// IndirectImmediate loads a pointer from base + immediate and addresses that
	IndirectImmediate = OperandKind(0x7)
	// IndirectConstant loads a pointer from base + constant and addresses that
	IndirectConstant = OperandKind(0x8)
	// IndirectRegister loads a pointer from base + register and addresses that
	IndirectRegister = OperandKind(0x9)
)

func (k OperandKind) Valid() bool {
	return k <= Constant || (MemImmediate <= k && k <= IndirectRegister)
}

// IsMemory returns true for the kinds which address the flat memory.
func (k OperandKind) IsMemory() bool {
	return MemImmediate <= k && k <= IndirectRegister
}

// IsIndirect returns true if the kind dereferences a pointer before the access.
func (k OperandKind) IsIndirect() bool {
	return IndirectImmediate <= k && k <= IndirectRegister
}

// Writable returns true if the operand can be the target of a store.
func (k OperandKind) Writable() bool {
	return k == Register || k.IsMemory()
}

// Direct maps an Indirect kind to the Mem kind with the same offset source.
func (k OperandKind) Direct() OperandKind {
	if k.IsIndirect() {
		return k - (IndirectImmediate - MemImmediate)
	}
	return k
}

var operandKindNames = map[OperandKind]string{
	Register:          "reg",
	Immediate:         "imm",
	Constant:          "const",
	MemImmediate:      "mem+imm",
	MemConstant:       "mem+const",
	MemRegister:       "mem+reg",
	IndirectImmediate: "ind+imm",
	IndirectConstant:  "ind+const",
	IndirectRegister:  "ind+reg",
}

func (k OperandKind) String() string {
	if name, ok := operandKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("OperandKind(%d)", uint8(k))
}

// Cond is a condition code, tested against the flags set by TEST.
type Cond uint8

const (
	CondEQ = Cond(iota)
	CondNE
	CondLT
	CondGT
	CondNeg
	CondNotNeg
)

const NumConds = 6

func (c Cond) Valid() bool {
	return c < NumConds
}

var condNames = [NumConds]string{"eq", "ne", "lt", "gt", "neg", "nneg"}

func (c Cond) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Cond(%d)", uint8(c))
	}
	return condNames[c]
}

func ParseCond(x string) (Cond, error) {
	for i, name := range condNames {
		if name == x {
			return Cond(i), nil
		}
	}
	return 0, fmt.Errorf("unknown condition %q", x)
}
