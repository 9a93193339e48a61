package esoasm

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/x448/float16"

	"esovm.org/esovm/esoimg"
	"esovm.org/esovm/spec"
)

// Assemble parses assembly text into an image.
//
// Each line holds at most one instruction, optionally preceded by labels ending in ':'.
// Everything after ';' is a comment.
//
//	.entry main i32=2       ; execution starts at main, with 2 int32 registers
//	.method square i32=1    ; a callable method
//	loop: add.i32 r0, r0, #1
//
// Operands are written
//
//	r3           register 3
//	#-12 #0x1f   immediate, #'a' for a character, #1.5 for floats
//	=1234 ="hi"  constant, added to the pool
//	@loop        the address of a label, as an immediate
//	[r1+#8]      memory at Word register 1 plus an offset: #imm, =const or rN
//	[[r1+#8]]    memory at the pointer stored at r1+8
func Assemble(src string) (*esoimg.Image, error) {
	a := assembler{b: NewBuilder()}
	for i, line := range strings.Split(src, "\n") {
		a.b.line = i + 1
		if err := a.line(line); err != nil {
			return nil, lineErr(i+1, err)
		}
	}
	a.b.line = 0
	return a.b.Build()
}

type assembler struct {
	b *Builder
}

func (a *assembler) line(line string) error {
	line = strings.TrimSpace(stripComment(line))
	for {
		i := strings.IndexByte(line, ':')
		if i <= 0 || !isIdent(line[:i]) {
			break
		}
		if err := a.b.Label(line[:i]); err != nil {
			return err
		}
		line = strings.TrimSpace(line[i+1:])
	}
	if line == "" {
		return nil
	}
	head, rest := line, ""
	if j := strings.IndexAny(line, " \t"); j >= 0 {
		head, rest = line[:j], line[j+1:]
	}
	args, err := splitArgs(strings.TrimSpace(rest))
	if err != nil {
		return err
	}
	if strings.HasPrefix(head, ".") {
		return a.directive(head[1:], args)
	}
	return a.instruction(head, args)
}

func (a *assembler) directive(name string, args []string) error {
	switch name {
	case "method", "entry":
		if len(args) == 0 {
			return fmt.Errorf(".%s requires a name", name)
		}
		fields := strings.Fields(args[0])
		if len(args) > 1 || len(fields) == 0 || !isIdent(fields[0]) {
			return fmt.Errorf(".%s: bad arguments %q", name, args)
		}
		layout, err := ParseLayout(fields[1:])
		if err != nil {
			return err
		}
		if name == "entry" {
			a.b.Entry(fields[0], layout)
			return nil
		}
		return a.b.Method(fields[0], layout)
	case "raw":
		// an instruction which may not decode, written as 16 hex digits
		if len(args) != 1 {
			return fmt.Errorf(".raw takes 1 argument")
		}
		x, err := strconv.ParseUint(args[0], 0, 64)
		if err != nil {
			return err
		}
		var ins spec.Instruction
		binary.BigEndian.PutUint64(ins[:], x)
		a.b.Emit(ins)
		return nil
	default:
		return fmt.Errorf("unknown directive .%s", name)
	}
}

// ParseLayout parses register counts written as type=count, e.g. i32=2 w=1
func ParseLayout(fields []string) (spec.FrameLayout, error) {
	var layout spec.FrameLayout
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return 0, fmt.Errorf("bad register count %q, want type=count", f)
		}
		dt, err := spec.ParseDataType(k)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("bad register count %q: %w", f, err)
		}
		layout = layout.With(dt, int(n))
	}
	return layout, nil
}

func (a *assembler) instruction(mnemonic string, args []string) error {
	parts := strings.Split(mnemonic, ".")
	op, ok := spec.ParseOp(strings.ToUpper(parts[0]))
	if !ok {
		return fmt.Errorf("unknown instruction %q", parts[0])
	}
	types := make([]spec.DataType, 0, 2)
	for _, p := range parts[1:] {
		dt, err := spec.ParseDataType(p)
		if err != nil {
			return err
		}
		types = append(types, dt)
	}
	want := 1
	if op == spec.CONVERT {
		want = 2
	}
	if len(types) > want {
		return fmt.Errorf("%v takes %d data types, have %d", op, want, len(types))
	}
	if len(types) < want {
		if op == spec.CONVERT || op.Shape() != spec.ShapeSimple {
			return fmt.Errorf("%v requires a data type suffix", op)
		}
		types = append(types, spec.Word)
	}
	dt := types[0]
	if op.Info().Cond {
		if len(args) == 0 {
			return fmt.Errorf("%v requires a condition", op)
		}
		c, err := spec.ParseCond(args[0])
		if err != nil {
			return err
		}
		return a.conditional(op, dt, c, args[1:])
	}

	switch op {
	case spec.LOAD, spec.STORE:
		if err := nargs(op, args, 2); err != nil {
			return err
		}
		r, err := parseReg(args[0])
		if err != nil {
			return err
		}
		o, err := a.operand(dt, args[1])
		if err != nil {
			return err
		}
		if o.kind.IsMemory() && o.x > math.MaxUint32 {
			return fmt.Errorf("offset %q does not fit in 32 bits", args[1])
		}
		return a.emit(spec.Split(op, dt, o.kind, r, o.base, uint32(o.x)), o)
	case spec.PUSH, spec.POP, spec.TEST, spec.FREE, spec.FREE_STACK:
		if err := nargs(op, args, 1); err != nil {
			return err
		}
		r, err := parseReg(args[0])
		if err != nil {
			return err
		}
		a.b.Emit(spec.Simple(op, dt, spec.Register, r, 0))
	case spec.ALLOCATE, spec.ALLOCATE_STACK, spec.OUT, spec.IN:
		if err := nargs(op, args, 2); err != nil {
			return err
		}
		r, err := parseReg(args[0])
		if err != nil {
			return err
		}
		o, err := a.scalar(args[1])
		if err != nil {
			return err
		}
		return a.emit(spec.Simple(op, dt, o.kind, r, o.x), o)
	case spec.JUMP, spec.INTERRUPT:
		if err := nargs(op, args, 1); err != nil {
			return err
		}
		o, err := a.scalar(args[0])
		if err != nil {
			return err
		}
		return a.emit(spec.Simple(op, dt, o.kind, 0, o.x), o)
	case spec.CALL:
		if err := nargs(op, args, 1); err != nil {
			return err
		}
		name := args[0]
		if strings.HasPrefix(name, `"`) {
			s, err := strconv.Unquote(name)
			if err != nil {
				return err
			}
			name = s
		}
		a.b.Call(name)
	case spec.RETURN:
		if err := nargs(op, args, 0); err != nil {
			return err
		}
		a.b.Emit(spec.Simple(op, dt, spec.Immediate, 0, 0))
	case spec.HALT:
		switch {
		case len(args) == 0:
			a.b.Halt()
		case len(args) == 1 && strings.HasPrefix(args[0], `"`):
			msg, err := strconv.Unquote(args[0])
			if err != nil {
				return err
			}
			a.b.Abort(msg)
		case len(args) == 1:
			o, err := a.scalar(args[0])
			if err != nil {
				return err
			}
			return a.emit(spec.Simple(op, dt, o.kind, 0, o.x), o)
		default:
			return nargs(op, args, 1)
		}
	case spec.CONVERT:
		if err := nargs(op, args, 2); err != nil {
			return err
		}
		dst, err := parseReg(args[0])
		if err != nil {
			return err
		}
		src, err := parseReg(args[1])
		if err != nil {
			return err
		}
		a.b.Emit(spec.Convert(types[0], types[1], dst, src))
	default:
		// the arithmetic ops: dest, operand1, operand2
		if err := nargs(op, args, 3); err != nil {
			return err
		}
		dest, err := parseReg(args[0])
		if err != nil {
			return err
		}
		r, err := parseReg(args[1])
		if err != nil {
			return err
		}
		o, err := a.operand(dt, args[2])
		if err != nil {
			return err
		}
		if o.kind.IsMemory() {
			return fmt.Errorf("%v cannot address memory", op)
		}
		return a.emit(spec.Standard(op, dt, o.kind, dest, r, uint32(o.x)), o)
	}
	return nil
}

// conditional handles CJUMP, CLOAD and CSTORE
func (a *assembler) conditional(op spec.Op, dt spec.DataType, c spec.Cond, args []string) error {
	if op == spec.CJUMP {
		if err := nargs(op, args, 1); err != nil {
			return err
		}
		o, err := a.scalar(args[0])
		if err != nil {
			return err
		}
		return a.emit(spec.Simple(op, dt, o.kind, uint8(c), o.x), o)
	}
	if err := nargs(op, args, 2); err != nil {
		return err
	}
	r, err := parseReg(args[0])
	if err != nil {
		return err
	}
	o, err := a.operand(dt, args[1])
	if err != nil {
		return err
	}
	if !o.kind.IsMemory() {
		return fmt.Errorf("%v requires a memory operand, have %q", op, args[1])
	}
	const offMask = 1<<spec.CondOffsetBits - 1
	if o.kind.Direct() == spec.MemImmediate {
		off := int64(int32(uint32(o.x)))
		if off < -(1<<(spec.CondOffsetBits-1)) || off >= 1<<(spec.CondOffsetBits-1) {
			return fmt.Errorf("offset %d does not fit in %d bits", off, spec.CondOffsetBits)
		}
	} else if o.x > offMask {
		return fmt.Errorf("offset operand %d does not fit in %d bits", o.x, spec.CondOffsetBits)
	}
	op2 := uint32(o.base)<<spec.CondOffsetBits | uint32(o.x)&offMask
	a.b.Emit(spec.Standard(op, dt, o.kind, r, uint8(c), op2))
	return nil
}

func (a *assembler) emit(ins spec.Instruction, o operand) error {
	if o.label != "" {
		a.b.EmitTo(ins, o.label)
	} else {
		a.b.Emit(ins)
	}
	return nil
}

type operand struct {
	kind spec.OperandKind
	// base is the base register of the memory kinds
	base uint8
	x    uint64
	// label is set when x is the address of a label, filled in by Build
	label string
}

// operand parses an operand2 whose value has type dt
func (a *assembler) operand(dt spec.DataType, s string) (operand, error) {
	switch {
	case strings.HasPrefix(s, "r"):
		r, err := parseReg(s)
		return operand{kind: spec.Register, x: uint64(r)}, err
	case strings.HasPrefix(s, "#"):
		x, err := parseImmediate(dt, s[1:])
		return operand{kind: spec.Immediate, x: uint64(x)}, err
	case strings.HasPrefix(s, "="):
		c, err := parseConstant(dt, s[1:])
		if err != nil {
			return operand{}, err
		}
		return operand{kind: spec.Constant, x: a.b.Const(c)}, nil
	case strings.HasPrefix(s, "@"):
		if !isIdent(s[1:]) {
			return operand{}, fmt.Errorf("bad label %q", s)
		}
		return operand{kind: spec.Immediate, label: s[1:]}, nil
	case strings.HasPrefix(s, "[[") && strings.HasSuffix(s, "]]"):
		o, err := a.memory(s[2 : len(s)-2])
		o.kind += spec.IndirectImmediate - spec.MemImmediate
		return o, err
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		return a.memory(s[1 : len(s)-1])
	default:
		return operand{}, fmt.Errorf("cannot parse operand %q", s)
	}
}

// scalar parses an operand2 used as a count, address or port number.
// Immediates are not limited to 32 bits.
func (a *assembler) scalar(s string) (operand, error) {
	if strings.HasPrefix(s, "#") {
		x, err := parseUint(s[1:], spec.Operand2SimpleBits)
		return operand{kind: spec.Immediate, x: x}, err
	}
	if strings.HasPrefix(s, "=") {
		x, err := parseUint(s[1:], 64)
		if err != nil {
			return operand{}, err
		}
		return operand{kind: spec.Constant, x: a.b.Number(x)}, nil
	}
	o, err := a.operand(spec.Word, s)
	if err != nil {
		return operand{}, err
	}
	if o.kind.IsMemory() {
		return operand{}, fmt.Errorf("operand %q cannot address memory", s)
	}
	return o, nil
}

// memory parses the inside of brackets: a base register and an optional offset
func (a *assembler) memory(s string) (operand, error) {
	s = strings.ReplaceAll(s, " ", "")
	i := strings.IndexAny(s, "+-")
	if i < 0 {
		base, err := parseReg(s)
		return operand{kind: spec.MemImmediate, base: base}, err
	}
	base, err := parseReg(s[:i])
	if err != nil {
		return operand{}, err
	}
	neg := s[i] == '-'
	off := s[i+1:]
	switch {
	case strings.HasPrefix(off, "#"):
		x, err := strconv.ParseInt(off[1:], 0, 64)
		if err != nil {
			return operand{}, err
		}
		if neg {
			x = -x
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return operand{}, fmt.Errorf("offset %d does not fit in 32 bits", x)
		}
		return operand{kind: spec.MemImmediate, base: base, x: uint64(uint32(int32(x)))}, nil
	case neg:
		return operand{}, fmt.Errorf("only immediate offsets can be negative")
	case strings.HasPrefix(off, "r"):
		r, err := parseReg(off)
		return operand{kind: spec.MemRegister, base: base, x: uint64(r)}, err
	case strings.HasPrefix(off, "="):
		x, err := strconv.ParseInt(off[1:], 0, 64)
		if err != nil {
			return operand{}, err
		}
		return operand{kind: spec.MemConstant, base: base, x: a.b.Number(uint64(x))}, nil
	default:
		return operand{}, fmt.Errorf("cannot parse offset %q", off)
	}
}

func parseReg(s string) (uint8, error) {
	if !strings.HasPrefix(s, "r") {
		return 0, fmt.Errorf("expected register, have %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 8)
	if err != nil {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return uint8(n), nil
}

// parseImmediate encodes a literal in the 32 bits of a Standard or Split operand2.
// Float64 immediates are stored as float32.
func parseImmediate(dt spec.DataType, s string) (uint32, error) {
	if dt.IsFloat() {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if dt == spec.Float16 {
			return uint32(float16.Fromfloat32(float32(f)).Bits()), nil
		}
		return math.Float32bits(float32(f)), nil
	}
	x, err := parseInt(s)
	if err != nil {
		return 0, err
	}
	lo, hi := immediateRange(dt)
	if x < lo || x > hi {
		return 0, fmt.Errorf("immediate %s is outside [%d, %d] for %v, use a =constant", s, lo, hi, dt)
	}
	return uint32(x), nil
}

// immediateRange is the range of literals which survive the widening of a 32 bit immediate to dt.
// The narrow integer types accept both their signed and unsigned spellings.
func immediateRange(dt spec.DataType) (int64, int64) {
	switch dt {
	case spec.Int8:
		return math.MinInt8, math.MaxUint8
	case spec.Int16:
		return math.MinInt16, math.MaxUint16
	case spec.Int64:
		return math.MinInt32, math.MaxInt32
	case spec.Word:
		return 0, math.MaxUint32
	default:
		return math.MinInt32, math.MaxUint32
	}
}

// parseConstant parses a constant literal, a quoted string or a number of type dt.
func parseConstant(dt spec.DataType, s string) (esoimg.Constant, error) {
	if strings.HasPrefix(s, `"`) {
		str, err := strconv.Unquote(s)
		if err != nil {
			return esoimg.Constant{}, err
		}
		return esoimg.String(str), nil
	}
	switch dt {
	case spec.Float16:
		f, err := strconv.ParseFloat(s, 32)
		return esoimg.Number(uint64(float16.Fromfloat32(float32(f)).Bits())), err
	case spec.Float32:
		f, err := strconv.ParseFloat(s, 32)
		return esoimg.Number(uint64(math.Float32bits(float32(f)))), err
	case spec.Float64:
		f, err := strconv.ParseFloat(s, 64)
		return esoimg.Number(math.Float64bits(f)), err
	}
	if strings.HasPrefix(s, "-") {
		x, err := parseInt(s)
		return esoimg.Number(uint64(x)), err
	}
	x, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		// characters
		y, err2 := parseInt(s)
		if err2 != nil {
			return esoimg.Constant{}, err
		}
		x = uint64(y)
	}
	return esoimg.Number(x), nil
}

// parseInt parses a signed integer or a quoted character
func parseInt(s string) (int64, error) {
	if strings.HasPrefix(s, "'") {
		str, err := strconv.Unquote(s)
		if err != nil {
			return 0, err
		}
		r := []rune(str)
		if len(r) != 1 {
			return 0, fmt.Errorf("bad character literal %s", s)
		}
		return int64(r[0]), nil
	}
	return strconv.ParseInt(s, 0, 64)
}

func parseUint(s string, bits int) (uint64, error) {
	if strings.HasPrefix(s, "'") {
		x, err := parseInt(s)
		return uint64(x), err
	}
	return strconv.ParseUint(s, 0, bits)
}

func nargs(op spec.Op, args []string, n int) error {
	if len(args) != n {
		return fmt.Errorf("%v takes %d operands, have %d", op, n, len(args))
	}
	return nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case i > 0 && ('0' <= c && c <= '9' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// stripComment removes everything after a ';' which is not inside quotes
func stripComment(line string) string {
	var quote rune
	escaped := false
	for i, c := range line {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && c == '\\':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ';':
			return line[:i]
		}
	}
	return line
}

// splitArgs splits on commas outside of quotes and brackets
func splitArgs(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var (
		ret     []string
		depth   int
		quote   rune
		escaped bool
		start   int
	)
	for i, c := range s {
		switch {
		case escaped:
			escaped = false
		case quote != 0 && c == '\\':
			escaped = true
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == ',' && depth == 0:
			ret = append(ret, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if quote != 0 || depth != 0 {
		return nil, fmt.Errorf("unterminated operand in %q", s)
	}
	ret = append(ret, strings.TrimSpace(s[start:]))
	for _, arg := range ret {
		if arg == "" {
			return nil, fmt.Errorf("empty operand in %q", s)
		}
	}
	return ret, nil
}
