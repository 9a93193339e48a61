// package esoimg implements the esovm program image format.
//
// An image is a header, the code, and a CBOR trailer:
//
//	magic (4 bytes) | code length (4 bytes) | code | metadata
//
// All integers in the header are big endian.
package esoimg

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"esovm.org/esovm"
	"esovm.org/esovm/spec"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("esoimg: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

var (
	ErrBadMagic  = errors.New("esoimg: not an esovm image")
	ErrTruncated = errors.New("esoimg: image is truncated")
)

type ConstKind uint8

const (
	ConstNumber = ConstKind(iota)
	ConstString
)

// Constant is an entry in the constant pool.
type Constant struct {
	Kind ConstKind `cbor:"1,keyasint"`
	// Bits is the bit pattern of a ConstNumber
	Bits uint64 `cbor:"2,keyasint,omitempty"`
	// Str is the value of a ConstString
	Str string `cbor:"3,keyasint,omitempty"`
}

func Number(bits uint64) Constant {
	return Constant{Kind: ConstNumber, Bits: bits}
}

func String(s string) Constant {
	return Constant{Kind: ConstString, Str: s}
}

// Method is an entry point which can be the target of CALL
type Method struct {
	Name   string           `cbor:"1,keyasint"`
	Entry  uint64           `cbor:"2,keyasint"`
	Layout spec.FrameLayout `cbor:"3,keyasint,omitempty"`
}

type Meta struct {
	// Entry is the address execution starts at
	Entry uint64 `cbor:"1,keyasint"`
	// EntryName names the first frame
	EntryName string `cbor:"2,keyasint,omitempty"`
	// EntryLayout sizes the first frame
	EntryLayout spec.FrameLayout `cbor:"3,keyasint,omitempty"`

	Constants []Constant `cbor:"4,keyasint,omitempty"`
	Methods   []Method   `cbor:"5,keyasint,omitempty"`
}

// Image is a program and its metadata
type Image struct {
	Code []byte
	Meta
}

// Parse decodes and validates an image
func Parse(data []byte) (*Image, error) {
	if len(data) < spec.HeaderBytes {
		return nil, ErrTruncated
	}
	if binary.BigEndian.Uint32(data[0:4]) != spec.Magic {
		return nil, ErrBadMagic
	}
	codeLen := uint64(binary.BigEndian.Uint32(data[4:8]))
	if codeLen%spec.InstructionBytes != 0 {
		return nil, fmt.Errorf("esoimg: code length %d is not a multiple of %d", codeLen, spec.InstructionBytes)
	}
	rest := data[spec.HeaderBytes:]
	if uint64(len(rest)) < codeLen {
		return nil, ErrTruncated
	}
	img := &Image{Code: append([]byte{}, rest[:codeLen]...)}
	if err := cbor.Unmarshal(rest[codeLen:], &img.Meta); err != nil {
		return nil, fmt.Errorf("esoimg: parsing metadata: %w", err)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return img, nil
}

// Marshal encodes img. The encoding is deterministic.
func Marshal(img *Image) ([]byte, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	meta, err := cborEncMode.Marshal(img.Meta)
	if err != nil {
		return nil, err
	}
	out := make([]byte, spec.HeaderBytes, spec.HeaderBytes+len(img.Code)+len(meta))
	binary.BigEndian.PutUint32(out[0:4], spec.Magic)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(img.Code)))
	out = append(out, img.Code...)
	return append(out, meta...), nil
}

// ID returns the content ID of the encoded image
func ID(img *Image) (esovm.CID, error) {
	data, err := Marshal(img)
	if err != nil {
		return esovm.CID{}, err
	}
	return esovm.Hash(data), nil
}

// Validate checks that the entry points are in the code and the method names are unique.
func (img *Image) Validate() error {
	if len(img.Code)%spec.InstructionBytes != 0 {
		return fmt.Errorf("esoimg: code length %d is not a multiple of %d", len(img.Code), spec.InstructionBytes)
	}
	if uint64(len(img.Code)) > uint64(^uint32(0)) {
		return fmt.Errorf("esoimg: code length %d is too large", len(img.Code))
	}
	if err := img.checkEntry("entry", img.Entry); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(img.Methods))
	for _, m := range img.Methods {
		if _, exists := names[m.Name]; exists {
			return fmt.Errorf("esoimg: duplicate method %q", m.Name)
		}
		names[m.Name] = struct{}{}
		if err := img.checkEntry(fmt.Sprintf("method %q", m.Name), m.Entry); err != nil {
			return err
		}
	}
	for i, c := range img.Constants {
		if c.Kind > ConstString {
			return fmt.Errorf("esoimg: constant %d has unknown kind %d", i, c.Kind)
		}
	}
	return nil
}

func (img *Image) checkEntry(what string, addr uint64) error {
	if addr%spec.InstructionBytes != 0 {
		return fmt.Errorf("esoimg: %s 0x%x is not aligned", what, addr)
	}
	if len(img.Code) > 0 && addr >= uint64(len(img.Code)) {
		return fmt.Errorf("esoimg: %s 0x%x is outside the code", what, addr)
	}
	return nil
}

// Constant implements evm1.ConstantPool
func (img *Image) Constant(i uint64) (uint64, error) {
	c, err := img.constant(i)
	if err != nil {
		return 0, err
	}
	if c.Kind != ConstNumber {
		return 0, fmt.Errorf("esoimg: constant %d is a string", i)
	}
	return c.Bits, nil
}

// String implements evm1.ConstantPool
func (img *Image) String(i uint64) (string, error) {
	c, err := img.constant(i)
	if err != nil {
		return "", err
	}
	if c.Kind != ConstString {
		return "", fmt.Errorf("esoimg: constant %d is not a string", i)
	}
	return c.Str, nil
}

func (img *Image) constant(i uint64) (Constant, error) {
	if i >= uint64(len(img.Constants)) {
		return Constant{}, fmt.Errorf("esoimg: constant index %d out of range, pool has %d", i, len(img.Constants))
	}
	return img.Constants[i], nil
}

// Method returns the method called name
func (img *Image) Method(name string) (Method, bool) {
	for _, m := range img.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

// Instructions returns the decoded code, stopping at the first instruction which does not decode.
func (img *Image) Instructions() ([]spec.Ix, error) {
	ret := make([]spec.Ix, 0, len(img.Code)/spec.InstructionBytes)
	for pc := 0; pc < len(img.Code); pc += spec.InstructionBytes {
		ix, err := spec.Decode(spec.FromBytes(img.Code[pc:]))
		if err != nil {
			return ret, fmt.Errorf("at 0x%x: %w", pc, err)
		}
		ret = append(ret, ix)
	}
	return ret, nil
}
