// package esoasm assembles esovm images, from Go with a Builder or from text with Assemble.
package esoasm

import (
	"fmt"

	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/spec"
)

type fixup struct {
	index int
	label string
	line  int
}

// Builder accumulates code, labels, constants and methods.
// Constant 0 is always the number 0, so a HALT never refers to a message with index 0.
type Builder struct {
	code    []spec.Instruction
	labels  map[string]uint64
	fixups  []fixup
	consts  []esoimg.Constant
	constIx map[esoimg.Constant]uint64
	methods []esoimg.Method

	entryLabel  string
	entryLayout spec.FrameLayout
	// line is attached to fixups for error messages
	line int
}

func NewBuilder() *Builder {
	b := &Builder{
		labels:  make(map[string]uint64),
		constIx: make(map[esoimg.Constant]uint64),
	}
	b.Const(esoimg.Number(0))
	return b
}

// PC returns the address of the next instruction
func (b *Builder) PC() uint64 {
	return uint64(len(b.code)) * spec.InstructionBytes
}

// Emit appends an instruction and returns its address
func (b *Builder) Emit(ins spec.Instruction) uint64 {
	pc := b.PC()
	b.code = append(b.code, ins)
	return pc
}

// EmitTo appends an instruction whose operand2 will be set to the address of label.
func (b *Builder) EmitTo(ins spec.Instruction, label string) uint64 {
	b.fixups = append(b.fixups, fixup{index: len(b.code), label: label, line: b.line})
	return b.Emit(ins)
}

// Label binds name to the current PC
func (b *Builder) Label(name string) error {
	if _, exists := b.labels[name]; exists {
		return fmt.Errorf("label %q is already defined", name)
	}
	b.labels[name] = b.PC()
	return nil
}

// Method binds name to the current PC, and makes it callable
func (b *Builder) Method(name string, layout spec.FrameLayout) error {
	if err := b.Label(name); err != nil {
		return err
	}
	b.methods = append(b.methods, esoimg.Method{Name: name, Entry: b.PC(), Layout: layout})
	return nil
}

// Entry sets the label execution starts at, and the layout of the first frame.
func (b *Builder) Entry(label string, layout spec.FrameLayout) {
	b.entryLabel = label
	b.entryLayout = layout
}

// Const returns the pool index of c, adding it if necessary.
func (b *Builder) Const(c esoimg.Constant) uint64 {
	if i, exists := b.constIx[c]; exists {
		return i
	}
	i := uint64(len(b.consts))
	b.consts = append(b.consts, c)
	b.constIx[c] = i
	return i
}

func (b *Builder) Number(bits uint64) uint64 {
	return b.Const(esoimg.Number(bits))
}

func (b *Builder) String(s string) uint64 {
	return b.Const(esoimg.String(s))
}

// Call emits a CALL to the method name
func (b *Builder) Call(name string) uint64 {
	return b.Emit(spec.Simple(spec.CALL, spec.Word, spec.Constant, 0, b.String(name)))
}

// Jump emits an unconditional jump to label
func (b *Builder) Jump(label string) uint64 {
	return b.EmitTo(spec.Simple(spec.JUMP, spec.Word, spec.Immediate, 0, 0), label)
}

// CJump emits a jump to label, taken if c holds
func (b *Builder) CJump(c spec.Cond, label string) uint64 {
	return b.EmitTo(spec.Simple(spec.CJUMP, spec.Word, spec.Immediate, uint8(c), 0), label)
}

// Halt emits a normal HALT
func (b *Builder) Halt() uint64 {
	return b.Emit(spec.Simple(spec.HALT, spec.Word, spec.Immediate, 0, 0))
}

// Abort emits a HALT which stops the Thread with msg
func (b *Builder) Abort(msg string) uint64 {
	return b.Emit(spec.Simple(spec.HALT, spec.Word, spec.Constant, 0, b.String(msg)))
}

// Build resolves labels and returns the image
func (b *Builder) Build() (*esoimg.Image, error) {
	code := make([]spec.Instruction, len(b.code))
	copy(code, b.code)
	for _, fx := range b.fixups {
		addr, exists := b.labels[fx.label]
		if !exists {
			return nil, lineErr(fx.line, fmt.Errorf("undefined label %q", fx.label))
		}
		ix, err := spec.Decode(code[fx.index])
		if err != nil {
			return nil, lineErr(fx.line, err)
		}
		if ix.Op.Shape() != spec.ShapeSimple && addr > 1<<spec.Operand2StandardBits-1 {
			return nil, lineErr(fx.line, fmt.Errorf("label %q at 0x%x does not fit in operand", fx.label, addr))
		}
		ix.Op2 = addr
		code[fx.index] = spec.Encode(ix)
	}
	img := &esoimg.Image{
		Meta: esoimg.Meta{
			EntryLayout: b.entryLayout,
			Constants:   append([]esoimg.Constant{}, b.consts...),
			Methods:     append([]esoimg.Method{}, b.methods...),
		},
	}
	if b.entryLabel != "" {
		addr, exists := b.labels[b.entryLabel]
		if !exists {
			return nil, fmt.Errorf("undefined entry label %q", b.entryLabel)
		}
		img.Entry = addr
		img.EntryName = b.entryLabel
	}
	for _, ins := range code {
		img.Code = append(img.Code, ins[:]...)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// ErrLine is an error at a line of assembly text
type ErrLine struct {
	Line int
	Err  error
}

func (e *ErrLine) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ErrLine) Unwrap() error {
	return e.Err
}

func lineErr(line int, err error) error {
	if line == 0 {
		return err
	}
	return &ErrLine{Line: line, Err: err}
}
