package elfobj

import (
	"bytes"
	"fmt"
	"sort"
)

// Section header types (sh_type) relevant to this tool.
const (
	SHT_NULL     = 0
	SHT_PROGBITS = 1
	SHT_SYMTAB   = 2
	SHT_STRTAB   = 3
	SHT_RELA     = 4
	SHT_NOBITS   = 8
	SHT_REL      = 9

	// MIPS-specific section types (SHT_MIPS_*).
	SHT_MIPS_GPTAB = 0x70000003
	SHT_MIPS_DEBUG = 0x70000005
)

// Section header flags (sh_flags) relevant to this tool.
const (
	SHF_WRITE     = 0x1
	SHF_ALLOC     = 0x2
	SHF_EXECINSTR = 0x4
)

// SectionHeaderSize is the on-disk size of an Elf32_Shdr record.
const SectionHeaderSize = 40

// Section is a section header plus its data, generalizing ElfSection's
// string/symtab/rel specializations into one struct with nil-able
// auxiliary fields (Symbols / Relocations), the way the teacher's
// ProgramFile generalizes Function/Global/Label into one record shape
// rather than one Go type per section kind.
type Section struct {
	Index int
	Name  string

	ShName      uint32
	ShType      uint32
	ShFlags     uint32
	ShAddr      uint32
	ShOffset    uint32
	ShSize      uint32
	ShLink      uint32
	ShInfo      uint32
	ShAddralign uint32
	ShEntsize   uint32

	Data []byte

	// Symbols is populated for SHT_SYMTAB sections after late-init.
	Symbols []Symbol

	// Relocations and RelaAddend are populated for SHT_REL/SHT_RELA
	// sections after late-init. Target points at the section being
	// relocated (resolved from ShInfo).
	Relocations []Relocation
	RelaAddend  bool
	Target      *Section

	strtabFrozen bool
}

// ParseSectionHeader unpacks one Elf32_Shdr record at off.
func ParseSectionHeader(f Format, b []byte, off int) (Section, error) {
	var s Section
	if off < 0 || off+SectionHeaderSize > len(b) {
		return s, errShort("Elf32_Shdr", SectionHeaderSize, len(b)-off)
	}
	var err error
	if s.ShName, err = f.Uint32(b, off); err != nil {
		return s, err
	}
	if s.ShType, err = f.Uint32(b, off+4); err != nil {
		return s, err
	}
	if s.ShFlags, err = f.Uint32(b, off+8); err != nil {
		return s, err
	}
	if s.ShAddr, err = f.Uint32(b, off+12); err != nil {
		return s, err
	}
	if s.ShOffset, err = f.Uint32(b, off+16); err != nil {
		return s, err
	}
	if s.ShSize, err = f.Uint32(b, off+20); err != nil {
		return s, err
	}
	if s.ShLink, err = f.Uint32(b, off+24); err != nil {
		return s, err
	}
	if s.ShInfo, err = f.Uint32(b, off+28); err != nil {
		return s, err
	}
	if s.ShAddralign, err = f.Uint32(b, off+32); err != nil {
		return s, err
	}
	if s.ShEntsize, err = f.Uint32(b, off+36); err != nil {
		return s, err
	}
	return s, nil
}

// SerializeHeader packs the section header fields back to 40 bytes. It
// does not include the section's data.
func (s *Section) SerializeHeader(f Format) []byte {
	b := make([]byte, SectionHeaderSize)
	f.put32(b[0:4], s.ShName)
	f.put32(b[4:8], s.ShType)
	f.put32(b[8:12], s.ShFlags)
	f.put32(b[12:16], s.ShAddr)
	f.put32(b[16:20], s.ShOffset)
	f.put32(b[20:24], s.ShSize)
	f.put32(b[24:28], s.ShLink)
	f.put32(b[28:32], s.ShInfo)
	f.put32(b[32:36], s.ShAddralign)
	f.put32(b[36:40], s.ShEntsize)
	return b
}

// LookupStr scans a SHT_STRTAB section's data for the NUL-terminated
// string starting at offset.
func (s *Section) LookupStr(offset uint32) (string, error) {
	if s.ShType != SHT_STRTAB {
		return "", fmt.Errorf("%w: section %q is not a string table", ErrParseElf, s.Name)
	}
	if int(offset) >= len(s.Data) {
		return "", fmt.Errorf("%w: offset %d beyond string table %q (size %d)", ErrSectionBounds, offset, s.Name, len(s.Data))
	}
	end := bytes.IndexByte(s.Data[offset:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated string at offset %d in %q", ErrInvalidElf, offset, s.Name)
	}
	return string(s.Data[offset : int(offset)+end]), nil
}

// Freeze marks the string table as closed to further additions for the
// remainder of this pass. Any consumer that has already cached an offset
// into the table (e.g. a Symbol.NameOff written during this pass) would
// be invalidated by a later AddStr growing or reordering the backing
// array, so AddStr refuses to run once Freeze has been called.
func (s *Section) Freeze() { s.strtabFrozen = true }

// AddStr appends a new NUL-terminated string to a SHT_STRTAB section and
// returns its offset. It fails if the section has been frozen (see
// Freeze) for this pass.
func (s *Section) AddStr(str string) (uint32, error) {
	if s.ShType != SHT_STRTAB {
		return 0, fmt.Errorf("%w: section %q is not a string table", ErrParseElf, s.Name)
	}
	if s.strtabFrozen {
		return 0, fmt.Errorf("%w: %q", ErrStrtabFrozen, s.Name)
	}
	off := uint32(len(s.Data))
	s.Data = append(s.Data, []byte(str)...)
	s.Data = append(s.Data, 0)
	s.ShSize = uint32(len(s.Data))
	return off, nil
}

// LocalSymbols returns the leading run of STB_LOCAL symbols in a
// SHT_SYMTAB section (spec.md §3: locals precede all non-locals).
func (s *Section) LocalSymbols() []Symbol {
	n := int(s.ShInfo)
	if n > len(s.Symbols) {
		n = len(s.Symbols)
	}
	return s.Symbols[:n]
}

// GlobalSymbols returns every non-local symbol in a SHT_SYMTAB section.
func (s *Section) GlobalSymbols() []Symbol {
	n := int(s.ShInfo)
	if n > len(s.Symbols) {
		n = len(s.Symbols)
	}
	return s.Symbols[n:]
}

// FindSymbol looks a symbol up by name in a SHT_SYMTAB section, returning
// its index and value.
func (s *Section) FindSymbol(name string) (index int, value uint32, ok bool) {
	for i, sym := range s.Symbols {
		if sym.Name == name {
			return i, sym.Value, true
		}
	}
	return 0, 0, false
}

// SortSymbolsLocalFirst re-sorts Symbols so that every STB_LOCAL symbol
// precedes every non-local one, preserving relative order within each
// group (a stable partition), and updates ShInfo to the local count. The
// null symbol at index 0 is always treated as local and kept first.
func (s *Section) SortSymbolsLocalFirst() {
	if len(s.Symbols) == 0 {
		s.ShInfo = 0
		return
	}
	null := s.Symbols[0]
	rest := append([]Symbol(nil), s.Symbols[1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].Bind() == STB_LOCAL && rest[j].Bind() != STB_LOCAL
	})
	locals := 1
	for _, sym := range rest {
		if sym.Bind() == STB_LOCAL {
			locals++
		}
	}
	out := make([]Symbol, 0, len(s.Symbols))
	out = append(out, null)
	out = append(out, rest...)
	s.Symbols = out
	s.ShInfo = uint32(locals)
}

// ParseSymbols fills s.Symbols from s.Data, interpreting it as an array
// of Elf32_Sym records.
func (s *Section) ParseSymbols(f Format) error {
	if s.ShType != SHT_SYMTAB {
		return fmt.Errorf("%w: section %q is not a symbol table", ErrParseElf, s.Name)
	}
	count := len(s.Data) / SymbolSize
	syms := make([]Symbol, 0, count)
	for i := 0; i < count; i++ {
		sym, err := ParseSymbol(f, s.Data, i*SymbolSize)
		if err != nil {
			return fmt.Errorf("%w: symbol %d in %q: %v", ErrParseElf, i, s.Name, err)
		}
		syms = append(syms, sym)
	}
	s.Symbols = syms
	return nil
}

// SerializeSymbols rewrites s.Data from s.Symbols.
func (s *Section) SerializeSymbols(f Format) {
	buf := make([]byte, 0, len(s.Symbols)*SymbolSize)
	for _, sym := range s.Symbols {
		buf = append(buf, sym.Serialize(f)...)
	}
	s.Data = buf
	s.ShSize = uint32(len(buf))
}

// ParseRelocations fills s.Relocations from s.Data. hasAddend must match
// s.ShType (SHT_RELA vs SHT_REL).
func (s *Section) ParseRelocations(f Format) error {
	hasAddend := s.ShType == SHT_RELA
	if s.ShType != SHT_REL && s.ShType != SHT_RELA {
		return fmt.Errorf("%w: section %q is not a relocation table", ErrParseElf, s.Name)
	}
	size := RelSize
	if hasAddend {
		size = RelaSize
	}
	count := len(s.Data) / size
	relocs := make([]Relocation, 0, count)
	for i := 0; i < count; i++ {
		r, err := ParseRelocation(f, s.Data, i*size, hasAddend)
		if err != nil {
			return fmt.Errorf("%w: relocation %d in %q: %v", ErrParseElf, i, s.Name, err)
		}
		relocs = append(relocs, r)
	}
	s.Relocations = relocs
	s.RelaAddend = hasAddend
	return nil
}

// SerializeRelocations rewrites s.Data from s.Relocations.
func (s *Section) SerializeRelocations(f Format) {
	size := RelSize
	if s.RelaAddend {
		size = RelaSize
	}
	buf := make([]byte, 0, len(s.Relocations)*size)
	for _, r := range s.Relocations {
		r.HasAddend = s.RelaAddend
		buf = append(buf, r.Serialize(f)...)
	}
	s.Data = buf
	s.ShSize = uint32(len(buf))
}
