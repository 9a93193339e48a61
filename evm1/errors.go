package evm1

import (
	"errors"
	"fmt"

	"esovm.org/esovm/spec"
)

const (
	StackOperand = "operand"
	StackFrame   = "frame"
)

// ErrStackRange is returned when a stack is pushed past its capacity or popped while empty.
type ErrStackRange struct {
	// Stack is StackOperand or StackFrame
	Stack    string
	Overflow bool
	// Pointer is the position of the failed access
	Pointer int
}

func (e *ErrStackRange) Error() string {
	if e.Overflow {
		return fmt.Sprintf("%s stack overflow (pointer=%d)", e.Stack, e.Pointer)
	}
	return fmt.Sprintf("%s stack underflow (pointer=%d)", e.Stack, e.Pointer)
}

// ErrLVT is returned for an access to an undeclared register array or an index outside it.
type ErrLVT struct {
	Type   spec.DataType
	Index  int
	Absent bool
}

func (e *ErrLVT) Error() string {
	if e.Absent {
		return fmt.Sprintf("access to %v register %d, but no %v registers were declared", e.Type, e.Index, e.Type)
	}
	return fmt.Sprintf("access to %v register with invalid index %d", e.Type, e.Index)
}

// ErrProgramBounds is returned when the program counter leaves the program.
type ErrProgramBounds struct {
	PC        uint64
	Len       int
	Unaligned bool
}

func (e *ErrProgramBounds) Error() string {
	if e.Unaligned {
		return fmt.Sprintf("program counter 0x%x is not aligned to %d", e.PC, spec.InstructionBytes)
	}
	return fmt.Sprintf("program counter 0x%x outside program of %d bytes", e.PC, e.Len)
}

// ErrDecode is returned for instructions containing reserved values.
type ErrDecode = spec.DecodeError

var (
	ErrDivideByZero     = errors.New("division by zero")
	ErrImmutableOperand = errors.New("immediate and constant operands cannot be stored to")
	ErrFloatOperation   = errors.New("operation is only defined for integer types")
	ErrUnresolved       = errors.New("unresolved call target")
	ErrOperandKind      = errors.New("operand kind is not valid for this operation")
	ErrNoMemory         = errors.New("no memory attached")
	ErrNoPorts          = errors.New("no ports attached")
	ErrNoConstants      = errors.New("no constant pool attached")
)

// ErrInvalidOp is returned when a well formed instruction cannot be executed.
type ErrInvalidOp struct {
	Op     spec.Op
	Reason error
}

func (e *ErrInvalidOp) Error() string {
	return fmt.Sprintf("invalid %v: %v", e.Op, e.Reason)
}

func (e *ErrInvalidOp) Unwrap() error {
	return e.Reason
}

// ErrAbnormalHalt is the result of a HALT with a non-zero operand.
// It is a deliberate termination, not a crash.
type ErrAbnormalHalt struct {
	Index   uint64
	Message string
}

func (e *ErrAbnormalHalt) Error() string {
	return fmt.Sprintf("halted abnormally (%d): %s", e.Index, e.Message)
}

// Fault is returned from Cycle when an error stops a Thread.
type Fault struct {
	// PC is the address of the faulting instruction.
	PC uint64
	// Ix is the raw instruction, it is zero if the PC was out of bounds.
	Ix  spec.Instruction
	Err error
	// Trace is the method names on the frame stack at the fault, the innermost last.
	Trace []string
}

func (e *Fault) Error() string {
	return fmt.Sprintf("esovm: %v at 0x%x", e.Err, e.PC)
}

func (e *Fault) Unwrap() error {
	return e.Err
}

func invalidOp(op spec.Op, reason error) error {
	return &ErrInvalidOp{Op: op, Reason: reason}
}
