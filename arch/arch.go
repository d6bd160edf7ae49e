// Package arch provides the pure dispatch table described in spec.md
// §4.4: a small tagged type that selects pointer width, endianness,
// page size, and (for the x86 family) the mmu.Spec a translation uses.
package arch

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tinyrange/memscope/mmu"
	"github.com/tinyrange/memscope/types"
)

// Architecture is a tagged enum identifying a target's paging scheme.
// Tag values are taken verbatim from the grounding source's
// as_u8/TryFrom<u8> pair and must not be renumbered: they are the
// wire format (spec.md §4.4, §6).
type Architecture uint8

const (
	Null    Architecture = 0
	X64     Architecture = 1
	X86PAE  Architecture = 2
	X86     Architecture = 3
	invalid Architecture = 0xFF
)

// ErrInvalidArchitecture is returned by FromByte for any tag outside
// {Null, X64, X86PAE, X86}.
var ErrInvalidArchitecture = errors.New("arch: invalid architecture tag")

// Byte serializes a to its one-byte wire tag.
func (a Architecture) Byte() byte { return byte(a) }

// FromByte deserializes a one-byte wire tag, rejecting any value
// outside the defined tag set (spec.md §8 invariant 1).
func FromByte(b byte) (Architecture, error) {
	switch Architecture(b) {
	case Null, X64, X86PAE, X86:
		return Architecture(b), nil
	default:
		return invalid, fmt.Errorf("%w: %d", ErrInvalidArchitecture, b)
	}
}

// Bits returns the pointer width, in bits, for a.
func (a Architecture) Bits() uint {
	switch a {
	case Null, X64:
		return 64
	case X86PAE, X86:
		return 32
	default:
		panic(fmt.Sprintf("arch: unknown architecture %d", a))
	}
}

// Endian returns the byte order of a. Every supported member is
// little-endian (spec.md §3).
func (a Architecture) Endian() binary.ByteOrder {
	return binary.LittleEndian
}

// PageSize returns the smallest page size of a: 4 KiB for every
// supported member, including Null.
func (a Architecture) PageSize() types.Length {
	return types.KB(4)
}

// LenAddr returns the byte length of a pointer on a.
func (a Architecture) LenAddr() types.Length {
	return types.Length(a.Bits() / 8)
}

// MMUSpec returns the paging-scheme description for a. Null has no
// spec and returns ok=false: it is an identity translator.
func (a Architecture) MMUSpec() (mmu.Spec, bool) {
	switch a {
	case X64:
		return x64Spec, true
	case X86PAE:
		return x86PAESpec, true
	case X86:
		return x86Spec, true
	default:
		return mmu.Spec{}, false
	}
}

func (a Architecture) String() string {
	switch a {
	case Null:
		return "null"
	case X64:
		return "x86_64"
	case X86PAE:
		return "x86_pae"
	case X86:
		return "x86"
	default:
		return fmt.Sprintf("Architecture(%d)", uint8(a))
	}
}
