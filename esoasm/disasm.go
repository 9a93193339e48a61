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

// entryLabel names the entry point of images which do not name it
const entryLabel = "_entry"

// Disassemble writes img as text which Assemble accepts.
// Jump targets are written as addresses, not labels.
func Disassemble(img *esoimg.Image) string {
	sb := &strings.Builder{}
	methods := make(map[uint64][]esoimg.Method)
	for _, m := range img.Methods {
		methods[m.Entry] = append(methods[m.Entry], m)
	}
	entryName := img.EntryName
	if entryName == "" && (img.Entry != 0 || img.EntryLayout != 0) {
		entryName = entryLabel
	}
	if entryName != "" {
		fmt.Fprintf(sb, ".entry %s", entryName)
		writeLayout(sb, img.EntryLayout)
		sb.WriteString("\n")
	}
	for pc := uint64(0); pc < uint64(len(img.Code)); pc += spec.InstructionBytes {
		isMethod := false
		for _, m := range methods[pc] {
			fmt.Fprintf(sb, ".method %s", m.Name)
			writeLayout(sb, m.Layout)
			sb.WriteString("\n")
			isMethod = isMethod || m.Name == entryName
		}
		if pc == img.Entry && entryName != "" && !isMethod {
			fmt.Fprintf(sb, "%s:\n", entryName)
		}
		ins := spec.FromBytes(img.Code[pc:])
		ix, err := spec.Decode(ins)
		if err != nil {
			fmt.Fprintf(sb, "\t.raw 0x%016x ; 0x%04x %v\n", binary.BigEndian.Uint64(ins[:]), pc, err)
			continue
		}
		fmt.Fprintf(sb, "\t%s ; 0x%04x\n", Format(ix, img.Constants), pc)
	}
	return sb.String()
}

func writeLayout(sb *strings.Builder, l spec.FrameLayout) {
	if s := FormatLayout(l); s != "" {
		sb.WriteString(" ")
		sb.WriteString(s)
	}
}

// FormatLayout is the inverse of ParseLayout
func FormatLayout(l spec.FrameLayout) string {
	var parts []string
	for dt := spec.DataType(0); dt < spec.NumDataTypes; dt++ {
		if n := l.Count(dt); n > 0 {
			parts = append(parts, fmt.Sprintf("%v=%d", dt, n))
		}
	}
	return strings.Join(parts, " ")
}

// Format writes a single instruction as assembly.
// consts is used to write constant operands by value, it may be nil.
func Format(ix spec.Ix, consts []esoimg.Constant) string {
	f := formatter{consts: consts}
	mn := strings.ToLower(ix.Op.String())
	typed := mn + "." + ix.Type.String()
	if ix.Op.Shape() == spec.ShapeSimple && ix.Type == spec.Word {
		typed = mn
	}
	r := func(x uint8) string { return "r" + strconv.Itoa(int(x)) }
	switch ix.Op {
	case spec.LOAD, spec.STORE:
		return fmt.Sprintf("%s %s, %s", typed, r(ix.Op1), f.operand(ix.Type, ix.Kind, uint64(ix.Aux), ix.Op2, 32))
	case spec.CLOAD, spec.CSTORE:
		base := ix.Op2 >> spec.CondOffsetBits
		off := ix.Op2 & (1<<spec.CondOffsetBits - 1)
		return fmt.Sprintf("%s %v, %s, %s", typed, ix.Cond(), r(ix.Dest), f.operand(ix.Type, ix.Kind, base, off, spec.CondOffsetBits))
	case spec.PUSH, spec.POP, spec.TEST, spec.FREE, spec.FREE_STACK:
		return fmt.Sprintf("%s %s", typed, r(ix.Op1))
	case spec.ALLOCATE, spec.ALLOCATE_STACK, spec.OUT, spec.IN:
		return fmt.Sprintf("%s %s, %s", typed, r(ix.Op1), f.scalar(ix.Kind, ix.Op2))
	case spec.JUMP, spec.INTERRUPT:
		return fmt.Sprintf("%s %s", typed, f.scalar(ix.Kind, ix.Op2))
	case spec.CJUMP:
		return fmt.Sprintf("%s %v, %s", typed, ix.Cond(), f.scalar(ix.Kind, ix.Op2))
	case spec.CALL:
		if s, ok := f.str(ix.Op2); ok && ix.Kind == spec.Constant {
			return fmt.Sprintf("%s %s", typed, strconv.Quote(s))
		}
	case spec.RETURN:
		if ix.Kind == spec.Immediate && ix.Op1 == 0 && ix.Op2 == 0 {
			return typed
		}
	case spec.HALT:
		if ix.Op2 == 0 && ix.Kind == spec.Immediate {
			return typed
		}
		if s, ok := f.str(ix.Op2); ok && ix.Kind == spec.Constant {
			return fmt.Sprintf("%s %s", typed, strconv.Quote(s))
		}
		if ix.Kind == spec.Immediate {
			return fmt.Sprintf("%s #%d", typed, ix.Op2)
		}
	case spec.CONVERT:
		return fmt.Sprintf("%s.%v %s, %s", typed, ix.DstType, r(ix.Dest), r(ix.Op1))
	default:
		return fmt.Sprintf("%s %s, %s, %s", typed, r(ix.Dest), r(ix.Op1), f.operand(ix.Type, ix.Kind, 0, ix.Op2, 32))
	}
	// forms the assembler has no syntax for
	ins := spec.Encode(ix)
	return fmt.Sprintf(".raw 0x%016x", binary.BigEndian.Uint64(ins[:]))
}

type formatter struct {
	consts []esoimg.Constant
}

func (f formatter) str(i uint64) (string, bool) {
	if i >= uint64(len(f.consts)) || f.consts[i].Kind != esoimg.ConstString {
		return "", false
	}
	return f.consts[i].Str, true
}

func (f formatter) number(i uint64) (uint64, bool) {
	if i >= uint64(len(f.consts)) || f.consts[i].Kind != esoimg.ConstNumber {
		return 0, false
	}
	return f.consts[i].Bits, true
}

func (f formatter) operand(dt spec.DataType, kind spec.OperandKind, base, x uint64, offBits int) string {
	switch kind {
	case spec.Register:
		return "r" + strconv.FormatUint(x, 10)
	case spec.Immediate:
		return "#" + formatImmediate(dt, uint32(x))
	case spec.Constant:
		if s, ok := f.str(x); ok {
			return "=" + strconv.Quote(s)
		}
		if bits, ok := f.number(x); ok {
			return "=" + formatNumber(dt, bits)
		}
		return fmt.Sprintf("=?%d", x)
	}
	var off string
	switch kind.Direct() {
	case spec.MemImmediate:
		sh := 64 - offBits
		off = "#" + strconv.FormatInt(int64(x<<sh)>>sh, 10)
	case spec.MemRegister:
		off = "r" + strconv.FormatUint(x, 10)
	case spec.MemConstant:
		bits, ok := f.number(x)
		if !ok {
			return fmt.Sprintf("[?%d]", x)
		}
		off = "=" + strconv.FormatInt(int64(bits), 10)
	}
	m := fmt.Sprintf("r%d+%s", base, off)
	if kind.IsIndirect() {
		return "[[" + m + "]]"
	}
	return "[" + m + "]"
}

func (f formatter) scalar(kind spec.OperandKind, x uint64) string {
	switch kind {
	case spec.Immediate:
		return "#" + strconv.FormatUint(x, 10)
	case spec.Constant:
		if bits, ok := f.number(x); ok {
			return "=" + strconv.FormatUint(bits, 10)
		}
		return fmt.Sprintf("=?%d", x)
	default:
		return f.operand(spec.Word, kind, 0, x, 32)
	}
}

func formatImmediate(dt spec.DataType, x uint32) string {
	switch dt {
	case spec.Float16:
		return formatFloat(float64(float16.Frombits(uint16(x)).Float32()), 32)
	case spec.Float32, spec.Float64:
		return formatFloat(float64(math.Float32frombits(x)), 32)
	case spec.Word:
		return strconv.FormatUint(uint64(x), 10)
	default:
		return strconv.FormatInt(int64(int32(x)), 10)
	}
}

func formatNumber(dt spec.DataType, bits uint64) string {
	switch dt {
	case spec.Float16:
		return formatFloat(float64(float16.Frombits(uint16(bits)).Float32()), 32)
	case spec.Float32:
		return formatFloat(float64(math.Float32frombits(uint32(bits))), 32)
	case spec.Float64:
		return formatFloat(math.Float64frombits(bits), 64)
	case spec.Word:
		return strconv.FormatUint(bits, 10)
	default:
		return strconv.FormatInt(int64(bits), 10)
	}
}

// formatFloat always includes a '.' or exponent so the value reads as a float
func formatFloat(f float64, bitSize int) string {
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
