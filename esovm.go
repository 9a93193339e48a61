// package esovm is a register and stack virtual machine with fixed 8 byte instructions.
//
// The execution engine is in evm1, the instruction set in spec.
package esovm

import (
	"lukechampine.com/blake3"

	"esovm.org/esovm/internal/cadata"
	"esovm.org/esovm/spec"
)

const (
	InstructionBytes = spec.InstructionBytes

	// MaxImageBytes is the largest program image the host will store.
	MaxImageBytes = 1 << 24
)

type (
	// CID is a Content ID
	CID = cadata.ID

	Store = cadata.Store
)

// Hash calculates the blake3 hash of x
func Hash(x []byte) (ret cadata.ID) {
	h := blake3.New(32, nil)
	h.Write(x)
	h.Sum(ret[:0])
	return ret
}
