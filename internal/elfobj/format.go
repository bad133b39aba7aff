// Package elfobj implements just enough of ELF32 (System V gABI, plus the
// MIPS extensions) to parse a relocatable object byte-for-byte, splice
// sections and symbols into it, and serialize the result back out.
//
// Unlike debug/elf, which is read-only and projects everything into Go
// slices that have already forgotten their exact on-disk layout, elfobj
// keeps every section's raw bytes and every record's original field
// widths so that parse-then-serialize round-trips byte-identically.
package elfobj

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Format describes the byte order of every multi-byte field in an ELF
// image. It is derived once from e_ident[EI_DATA] when a Header is parsed
// and is immutable afterwards.
type Format struct {
	BigEndian bool
}

// errShort is returned by the unpack helpers when the input slice does not
// hold enough bytes for the requested field.
func errShort(field string, need, have int) error {
	return fmt.Errorf("elfobj: short read unpacking %s: need %d bytes, have %d", field, need, have)
}

func (f Format) order16(b []byte) uint16 {
	if f.BigEndian {
		return uint16(b[0])<<8 | uint16(b[1])
	}
	return uint16(b[1])<<8 | uint16(b[0])
}

func (f Format) order32(b []byte) uint32 {
	if f.BigEndian {
		return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	}
	return uint32(b[3])<<24 | uint32(b[2])<<16 | uint32(b[1])<<8 | uint32(b[0])
}

func (f Format) put16(b []byte, v uint16) {
	if f.BigEndian {
		b[0], b[1] = byte(v>>8), byte(v)
	} else {
		b[0], b[1] = byte(v), byte(v>>8)
	}
}

func (f Format) put32(b []byte, v uint32) {
	if f.BigEndian {
		b[0], b[1], b[2], b[3] = byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	} else {
		b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
}

// Uint16 reads a uint16 from b at the given byte offset.
func (f Format) Uint16(b []byte, off int) (uint16, error) {
	if off < 0 || off+2 > len(b) {
		return 0, errShort("uint16", 2, len(b)-off)
	}
	return f.order16(b[off : off+2]), nil
}

// Uint32 reads a uint32 from b at the given byte offset.
func (f Format) Uint32(b []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(b) {
		return 0, errShort("uint32", 4, len(b)-off)
	}
	return f.order32(b[off : off+4]), nil
}

// PutUint16 writes v into b at off, which must leave room for 2 bytes.
func (f Format) PutUint16(b []byte, off int, v uint16) error {
	if off < 0 || off+2 > len(b) {
		return errShort("uint16", 2, len(b)-off)
	}
	f.put16(b[off:off+2], v)
	return nil
}

// PutUint32 writes v into b at off, which must leave room for 4 bytes.
func (f Format) PutUint32(b []byte, off int, v uint32) error {
	if off < 0 || off+4 > len(b) {
		return errShort("uint32", 4, len(b)-off)
	}
	f.put32(b[off:off+4], v)
	return nil
}

// unsignedWidth is a width-generic helper used by PutUnsigned/Unsigned so
// ElfFormat callers packing a uint16 or a uint32 field share one code path,
// the same way the teacher's register/ALU code stays width-generic over
// golang.org/x/exp/constraints instead of duplicating per bit-width.
type unsignedWidth interface {
	constraints.Unsigned
	~uint16 | ~uint32
}

// PutUnsigned packs a generically-typed unsigned integer (uint16 or
// uint32) into b at off using f's byte order.
func PutUnsigned[T unsignedWidth](f Format, b []byte, off int, v T) error {
	switch any(v).(type) {
	case uint16:
		return f.PutUint16(b, off, uint16(v))
	case uint32:
		return f.PutUint32(b, off, uint32(v))
	default:
		return fmt.Errorf("elfobj: unsupported width for PutUnsigned: %T", v)
	}
}

// Unsigned unpacks a generically-typed unsigned integer (uint16 or
// uint32) from b at off using f's byte order. The zero value of T selects
// which width to read.
func Unsigned[T unsignedWidth](f Format, b []byte, off int) (T, error) {
	var zero T
	switch any(zero).(type) {
	case uint16:
		v, err := f.Uint16(b, off)
		return T(v), err
	case uint32:
		v, err := f.Uint32(b, off)
		return T(v), err
	default:
		return zero, fmt.Errorf("elfobj: unsupported width for Unsigned: %T", zero)
	}
}
