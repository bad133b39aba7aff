package elfobj

import "fmt"

// SymbolSize is the on-disk size of an Elf32_Sym record.
const SymbolSize = 16

// SHN_XINDEX marks a symbol whose real section index has overflowed
// 16 bits and is stored in a companion SHT_SYMTAB_SHNDX section instead.
// Per spec.md §4.3 this tool explicitly refuses to support it.
const SHN_XINDEX = 0xffff

// Symbol bind values (top 4 bits of st_info).
const (
	STB_LOCAL  = 0
	STB_GLOBAL = 1
	STB_WEAK   = 2
)

// Symbol type values (bottom 4 bits of st_info).
const (
	STT_NOTYPE  = 0
	STT_OBJECT  = 1
	STT_FUNC    = 2
	STT_SECTION = 3
	STT_FILE    = 4
)

// Symbol is an Elf32_Sym record together with its resolved name.
type Symbol struct {
	NameOff uint32
	Value   uint32
	Size    uint32
	Info    uint8
	Other   uint8
	Shndx   uint16

	Name string
}

// Bind returns the symbol's binding (STB_*), the upper 4 bits of st_info.
func (s Symbol) Bind() uint8 { return s.Info >> 4 }

// Type returns the symbol's type (STT_*), the lower 4 bits of st_info.
func (s Symbol) Type() uint8 { return s.Info & 0xf }

// SetBind rewrites the binding, leaving the type untouched.
func (s *Symbol) SetBind(bind uint8) { s.Info = (bind << 4) | (s.Info & 0xf) }

// SetType rewrites the type, leaving the binding untouched.
func (s *Symbol) SetType(typ uint8) { s.Info = (s.Info & 0xf0) | (typ & 0xf) }

// ParseSymbol unpacks one Elf32_Sym record from b at off. Elf32_Sym mixes
// uint32 fields (st_name, st_value, st_size) with a uint16 one (st_shndx),
// so it goes through the width-generic Unsigned helper rather than
// Format.Uint32/Uint16 directly.
func ParseSymbol(f Format, b []byte, off int) (Symbol, error) {
	var s Symbol
	if off < 0 || off+SymbolSize > len(b) {
		return s, errShort("Elf32_Sym", SymbolSize, len(b)-off)
	}
	var err error
	if s.NameOff, err = Unsigned[uint32](f, b, off); err != nil {
		return s, err
	}
	if s.Value, err = Unsigned[uint32](f, b, off+4); err != nil {
		return s, err
	}
	if s.Size, err = Unsigned[uint32](f, b, off+8); err != nil {
		return s, err
	}
	s.Info = b[off+12]
	s.Other = b[off+13]
	if s.Shndx, err = Unsigned[uint16](f, b, off+14); err != nil {
		return s, err
	}
	if s.Shndx == SHN_XINDEX {
		return s, fmt.Errorf("%w: SHN_XINDEX extended section indices are not supported", ErrUnsupported)
	}
	return s, nil
}

// Serialize packs the symbol back into a 16-byte Elf32_Sym record.
func (s Symbol) Serialize(f Format) []byte {
	b := make([]byte, SymbolSize)
	_ = PutUnsigned(f, b[0:4], 0, s.NameOff)
	_ = PutUnsigned(f, b[4:8], 0, s.Value)
	_ = PutUnsigned(f, b[8:12], 0, s.Size)
	b[12] = s.Info
	b[13] = s.Other
	_ = PutUnsigned(f, b[14:16], 0, s.Shndx)
	return b
}

// ResolveName sets s.Name by looking st_name up in strtab, which must be
// an SHT_STRTAB section.
func (s *Symbol) ResolveName(strtab *Section) error {
	name, err := strtab.LookupStr(s.NameOff)
	if err != nil {
		return fmt.Errorf("%w: resolving symbol name at offset %d: %v", ErrSymbolLookup, s.NameOff, err)
	}
	s.Name = name
	return nil
}
