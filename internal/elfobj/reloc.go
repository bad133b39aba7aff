package elfobj

// RelSize / RelaSize are the on-disk sizes of Elf32_Rel / Elf32_Rela.
const (
	RelSize  = 8
	RelaSize = 12
)

// Common MIPS relocation types (R_MIPS_*) that the splicer needs to
// recognize when translating relocations between objects.
const (
	R_MIPS_NONE  = 0
	R_MIPS_16    = 1
	R_MIPS_32    = 2
	R_MIPS_REL32 = 3
	R_MIPS_26    = 4
	R_MIPS_HI16  = 5
	R_MIPS_LO16  = 6
	R_MIPS_GPREL = 7
)

// Relocation is an Elf32_Rel or Elf32_Rela record. Addend is only
// meaningful (HasAddend true) when the parent section is SHT_RELA.
type Relocation struct {
	Offset    uint32
	Info      uint32
	Addend    int32
	HasAddend bool
}

// SymIndex returns the symbol table index encoded in the top 24 bits of
// r_info.
func (r Relocation) SymIndex() uint32 { return r.Info >> 8 }

// Type returns the relocation type encoded in the bottom 8 bits of
// r_info.
func (r Relocation) Type() uint8 { return uint8(r.Info & 0xff) }

// SetSymIndex rewrites the symbol index, leaving the type untouched.
func (r *Relocation) SetSymIndex(idx uint32) {
	r.Info = (idx << 8) | (r.Info & 0xff)
}

// SetType rewrites the relocation type, leaving the symbol index
// untouched.
func (r *Relocation) SetType(typ uint8) {
	r.Info = (r.Info & 0xffffff00) | uint32(typ)
}

// MakeInfo packs a symbol index and relocation type into an r_info word.
func MakeInfo(symIndex uint32, typ uint8) uint32 {
	return (symIndex << 8) | uint32(typ)
}

// ParseRelocation unpacks one relocation record at off. hasAddend
// selects Elf32_Rela (12 bytes) vs. Elf32_Rel (8 bytes) layout.
func ParseRelocation(f Format, b []byte, off int, hasAddend bool) (Relocation, error) {
	var r Relocation
	size := RelSize
	if hasAddend {
		size = RelaSize
	}
	if off < 0 || off+size > len(b) {
		return r, errShort("relocation", size, len(b)-off)
	}
	var err error
	if r.Offset, err = f.Uint32(b, off); err != nil {
		return r, err
	}
	if r.Info, err = f.Uint32(b, off+4); err != nil {
		return r, err
	}
	if hasAddend {
		addend, err := f.Uint32(b, off+8)
		if err != nil {
			return r, err
		}
		r.Addend = int32(addend)
		r.HasAddend = true
	}
	return r, nil
}

// Serialize packs the relocation back to its on-disk form. The shape
// (Rel vs. Rela) is taken from r.HasAddend.
func (r Relocation) Serialize(f Format) []byte {
	size := RelSize
	if r.HasAddend {
		size = RelaSize
	}
	b := make([]byte, size)
	f.put32(b[0:4], r.Offset)
	f.put32(b[4:8], r.Info)
	if r.HasAddend {
		f.put32(b[8:12], uint32(r.Addend))
	}
	return b
}
