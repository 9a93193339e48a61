// package spec contains the esovm instruction set
package spec

// OpBits is the number of bits needed to encode an Op
const OpBits = 8

// Op is an opcode. It is always the first byte of an instruction.
//
//go:generate go run golang.org/x/tools/cmd/stringer -type=Op
type Op uint8

const (
	// LOAD (split) moves operand2 into the register operand1
	LOAD Op = 0*section + iota
	// STORE (split) moves the register operand1 into operand2
	STORE
	// PUSH (simple) pushes the register operand1 onto the operand stack
	PUSH
	// POP (simple) pops the operand stack into the register operand1
	POP
	// CLOAD (standard) is LOAD into destination if condition operand1 holds
	CLOAD
	// CSTORE (standard) is STORE from destination if condition operand1 holds
	CSTORE
)

const (
	// ALLOCATE (simple) reserves operand2 bytes of heap, the address goes to Word operand1
	ALLOCATE Op = 1*section + iota
	// FREE (simple) releases the heap block addressed by Word operand1
	FREE
	// ALLOCATE_STACK is ALLOCATE against the auxiliary stack region
	ALLOCATE_STACK
	// FREE_STACK is FREE against the auxiliary stack region
	FREE_STACK
)

const (
	// ADD: destination = operand1 + operand2
	ADD Op = 2*section + iota
	// SUB: destination = operand1 - operand2
	SUB
	// MUL: destination = operand1 * operand2
	MUL
	// DIV: destination = operand1 / operand2
	DIV
	// MOD: destination = operand1 % operand2
	MOD
	// SHL: destination = operand1 << operand2
	SHL
	// SHR: destination = operand1 >> operand2, zero filled
	SHR
	// ASR: destination = operand1 >> operand2, sign filled
	ASR
	// AND: destination = operand1 & operand2
	AND
	// OR: destination = operand1 | operand2
	OR
	// XOR: destination = operand1 ^ operand2
	XOR
)

const (
	// CONVERT (convert) converts operand from the source type to destination of the dest type
	CONVERT Op = 3*section + iota
)

const (
	// CALL (simple): operand2 is the constant pool index of the callee's name
	CALL Op = 4*section + iota
	// RETURN (simple) pops the current frame
	RETURN
)

const (
	// TEST (simple) sets the flags by comparing register operand1 with zero
	TEST Op = 5*section + iota
	// JUMP (simple) transfers control to operand2
	JUMP
	// CJUMP (simple) transfers control to operand2 if condition operand1 holds
	CJUMP
)

const (
	// INTERRUPT (simple) triggers interrupt operand2
	INTERRUPT Op = 0xF0 + iota
	// OUT (simple) writes register operand1 to port operand2
	OUT
	// IN (simple) reads port operand2 into register operand1
	IN
)

// HALT (simple): operand2 is zero for a normal halt, or the constant pool index of a message.
const HALT Op = 0xFF

const section = 1 << 4
