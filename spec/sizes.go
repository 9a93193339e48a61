package spec

const (
	// InstructionBytes is the size of every instruction.
	// The program counter only ever moves in multiples of it.
	InstructionBytes = 8
	// InstructionBits is the size of every instruction in bits.
	InstructionBits = InstructionBytes * 8

	// Operand2StandardBits is the size of operand2 in the Standard shape.
	Operand2StandardBits = 32
	// Operand2SimpleBits is the size of operand2 in the Simple shape.
	// Opcode, type byte and operand1 leave 40 of the 64 bits.
	Operand2SimpleBits = InstructionBits - 3*8
	// Operand2SimpleMax is the largest operand2 of a Simple instruction.
	Operand2SimpleMax = 1<<Operand2SimpleBits - 1

	// CondOffsetBits is the size of the signed offset packed into a conditional memory operand.
	CondOffsetBits = 24
)

const (
	// Magic is the first 4 bytes of every program image.
	Magic uint32 = 0xCAFEBABE
	// HeaderBytes is the size of the image header: magic and code length.
	// It keeps the code section 8 byte aligned.
	HeaderBytes = 8
)
