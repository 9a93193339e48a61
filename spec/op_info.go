package spec

// Shape is the layout of the fields in an instruction.
// It is fixed by the opcode, instructions are not self-describing.
type Shape uint8

const (
	// ShapeNone marks opcodes which are not defined
	ShapeNone = Shape(iota)
	// ShapeStandard: op | dt,kind | dest | op1 | op2(32)
	ShapeStandard
	// ShapeSimple: op | dt,kind | op1 | op2(40)
	ShapeSimple
	// ShapeSplit: op | dt,kind | op1 | aux(8) | op2(32)
	ShapeSplit
	// ShapeConvert: op | src,dst | dest | operand | zeros(32)
	ShapeConvert
)

func (s Shape) String() string {
	switch s {
	case ShapeStandard:
		return "standard"
	case ShapeSimple:
		return "simple"
	case ShapeSplit:
		return "split"
	case ShapeConvert:
		return "convert"
	default:
		return "none"
	}
}

// Info is information about an Op
type Info struct {
	Shape Shape
	// Cond is set if operand1 holds a condition code
	Cond bool
	// IntOnly is set if float DataTypes are invalid for the Op
	IntOnly bool
	// Stores is set if operand2 is written to
	Stores bool
	// Memory is set if operand2 may use the memory operand kinds.
	// Decode rejects memory kinds for every other Op.
	Memory bool
}

func (p Op) Info() Info {
	return infos[p]
}

// Shape returns the shape of the instruction, ShapeNone for undefined opcodes
func (p Op) Shape() Shape {
	return infos[p].Shape
}

// Defined returns true if p is part of the instruction set
func (p Op) Defined() bool {
	return infos[p].Shape != ShapeNone
}

var infos = func() (ret [1 << OpBits]Info) {
	m := map[Op]Info{
		LOAD:   {Shape: ShapeSplit, Memory: true},
		STORE:  {Shape: ShapeSplit, Memory: true, Stores: true},
		PUSH:   {Shape: ShapeSimple},
		POP:    {Shape: ShapeSimple},
		CLOAD:  {Shape: ShapeStandard, Cond: true, Memory: true},
		CSTORE: {Shape: ShapeStandard, Cond: true, Memory: true, Stores: true},

		ALLOCATE:       {Shape: ShapeSimple},
		FREE:           {Shape: ShapeSimple},
		ALLOCATE_STACK: {Shape: ShapeSimple},
		FREE_STACK:     {Shape: ShapeSimple},

		ADD: {Shape: ShapeStandard},
		SUB: {Shape: ShapeStandard},
		MUL: {Shape: ShapeStandard},
		DIV: {Shape: ShapeStandard},
		MOD: {Shape: ShapeStandard},
		SHL: {Shape: ShapeStandard, IntOnly: true},
		SHR: {Shape: ShapeStandard, IntOnly: true},
		ASR: {Shape: ShapeStandard, IntOnly: true},
		AND: {Shape: ShapeStandard, IntOnly: true},
		OR:  {Shape: ShapeStandard, IntOnly: true},
		XOR: {Shape: ShapeStandard, IntOnly: true},

		CONVERT: {Shape: ShapeConvert},

		CALL:   {Shape: ShapeSimple},
		RETURN: {Shape: ShapeSimple},

		TEST:  {Shape: ShapeSimple},
		JUMP:  {Shape: ShapeSimple},
		CJUMP: {Shape: ShapeSimple, Cond: true},

		INTERRUPT: {Shape: ShapeSimple},
		OUT:       {Shape: ShapeSimple},
		IN:        {Shape: ShapeSimple},

		HALT: {Shape: ShapeSimple},
	}
	for k, v := range m {
		ret[k] = v
	}
	return ret
}()
