package elfobj

import (
	"bytes"
	"fmt"
)

const (
	HeaderSize = 52 // ELF32 file header, exactly

	elfMagic0 = 0x7f
	elfMagic1 = 'E'
	elfMagic2 = 'L'
	elfMagic3 = 'F'

	classELF32 = 1
	dataLSB    = 1
	dataMSB    = 2
	evCurrent  = 1

	// EM_MIPS, per the System V gABI MIPS supplement.
	machineMIPS = 8
)

// ELF32 e_type values relevant to a relocatable object pipeline.
const (
	ET_NONE = 0
	ET_REL  = 1
	ET_EXEC = 2
	ET_DYN  = 3
)

// Header is the 52-byte ELF32 file header.
type Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// ParseHeader reads and validates the first 52 bytes of an ELF image,
// returning the header and the byte-order Format it implies.
func ParseHeader(b []byte) (Header, Format, error) {
	var h Header
	if len(b) < HeaderSize {
		return h, Format{}, errShort("ELF header", HeaderSize, len(b))
	}
	copy(h.Ident[:], b[:16])

	if h.Ident[0] != elfMagic0 || h.Ident[1] != elfMagic1 || h.Ident[2] != elfMagic2 || h.Ident[3] != elfMagic3 {
		return h, Format{}, fmt.Errorf("%w: bad magic %v", ErrInvalidElf, h.Ident[:4])
	}
	if h.Ident[4] != classELF32 {
		return h, Format{}, fmt.Errorf("%w: unsupported ELF class %d (only ELF32 is supported)", ErrInvalidElf, h.Ident[4])
	}
	var big bool
	switch h.Ident[5] {
	case dataLSB:
		big = false
	case dataMSB:
		big = true
	default:
		return h, Format{}, fmt.Errorf("%w: unsupported data encoding %d", ErrInvalidElf, h.Ident[5])
	}
	if h.Ident[6] != evCurrent {
		return h, Format{}, fmt.Errorf("%w: unsupported e_ident version %d", ErrInvalidElf, h.Ident[6])
	}

	f := Format{BigEndian: big}

	var err error
	if h.Type, err = f.Uint16(b, 16); err != nil {
		return h, f, fmt.Errorf("%w: %v", ErrInvalidElf, err)
	}
	if h.Machine, err = f.Uint16(b, 18); err != nil {
		return h, f, fmt.Errorf("%w: %v", ErrInvalidElf, err)
	}
	if h.Version, err = f.Uint32(b, 20); err != nil {
		return h, f, fmt.Errorf("%w: %v", ErrInvalidElf, err)
	}
	if h.Version != evCurrent {
		return h, f, fmt.Errorf("%w: unsupported e_version %d", ErrInvalidElf, h.Version)
	}
	if h.Machine != machineMIPS {
		return h, f, fmt.Errorf("%w: unsupported machine %d (only EM_MIPS=8 is supported)", ErrInvalidElf, h.Machine)
	}
	if h.Entry, err = f.Uint32(b, 24); err != nil {
		return h, f, err
	}
	if h.Phoff, err = f.Uint32(b, 28); err != nil {
		return h, f, err
	}
	if h.Shoff, err = f.Uint32(b, 32); err != nil {
		return h, f, err
	}
	if h.Flags, err = f.Uint32(b, 36); err != nil {
		return h, f, err
	}
	if h.Ehsize, err = f.Uint16(b, 40); err != nil {
		return h, f, err
	}
	if h.Phentsize, err = f.Uint16(b, 42); err != nil {
		return h, f, err
	}
	if h.Phnum, err = f.Uint16(b, 44); err != nil {
		return h, f, err
	}
	if h.Shentsize, err = f.Uint16(b, 46); err != nil {
		return h, f, err
	}
	if h.Shnum, err = f.Uint16(b, 48); err != nil {
		return h, f, err
	}
	if h.Shstrndx, err = f.Uint16(b, 50); err != nil {
		return h, f, err
	}

	return h, f, nil
}

// Serialize writes the header back out as exactly HeaderSize bytes.
func (h Header) Serialize(f Format) []byte {
	b := make([]byte, HeaderSize)
	copy(b[:16], h.Ident[:])
	f.put16(b[16:18], h.Type)
	f.put16(b[18:20], h.Machine)
	f.put32(b[20:24], h.Version)
	f.put32(b[24:28], h.Entry)
	f.put32(b[28:32], h.Phoff)
	f.put32(b[32:36], h.Shoff)
	f.put32(b[36:40], h.Flags)
	f.put16(b[40:42], h.Ehsize)
	f.put16(b[42:44], h.Phentsize)
	f.put16(b[44:46], h.Phnum)
	f.put16(b[46:48], h.Shentsize)
	f.put16(b[48:50], h.Shnum)
	f.put16(b[50:52], h.Shstrndx)
	return b
}

// NewIdent builds the e_ident bytes for a freshly synthesized header.
func NewIdent(bigEndian bool) [16]byte {
	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	ident[4] = classELF32
	if bigEndian {
		ident[5] = dataMSB
	} else {
		ident[5] = dataLSB
	}
	ident[6] = evCurrent
	return ident
}

// SameEndianAndMachine reports whether two headers describe compatible
// objects for splicing: same byte order and both EM_MIPS (already
// enforced at parse time, checked again defensively at the fixup
// boundary per spec step 4.8.1).
func SameEndianAndMachine(a, b Header) bool {
	return bytes.Equal(a.Ident[:7], b.Ident[:7]) && a.Machine == b.Machine
}
