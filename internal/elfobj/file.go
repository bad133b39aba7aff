package elfobj

import (
	"fmt"
)

// File is a parsed ELF32 relocatable object: a header plus an ordered
// list of sections. Sections reference each other only by index
// (ShLink, ShInfo, Target) — there are no owning cross-references, so
// the whole structure can be serialized by walking Sections in order.
type File struct {
	Header   Header
	Format   Format
	Sections []*Section

	shstrndx int
}

// Parse builds a File from a raw ELF32 MIPS image in three passes:
// header, section headers + data, then name/symtab/reloc late-init.
func Parse(b []byte) (*File, error) {
	header, format, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}

	f := &File{Header: header, Format: format, shstrndx: int(header.Shstrndx)}

	// Pass 2: section headers and their data slices.
	for i := 0; i < int(header.Shnum); i++ {
		off := int(header.Shoff) + i*int(header.Shentsize)
		sec, err := ParseSectionHeader(format, b, off)
		if err != nil {
			return nil, fmt.Errorf("%w: section header %d: %v", ErrParseElf, i, err)
		}
		sec.Index = i
		if sec.ShType != SHT_NOBITS {
			start, end := int(sec.ShOffset), int(sec.ShOffset)+int(sec.ShSize)
			if start < 0 || end > len(b) || end < start {
				return nil, fmt.Errorf("%w: section %d data [%d:%d) out of bounds (file size %d)", ErrSectionBounds, i, start, end, len(b))
			}
			sec.Data = append([]byte(nil), b[start:end]...)
		}
		f.Sections = append(f.Sections, &sec)
	}

	// Pass 3: resolve names, then late-init symtab/reloc sections.
	if f.shstrndx < 0 || f.shstrndx >= len(f.Sections) {
		return nil, fmt.Errorf("%w: e_shstrndx %d out of range", ErrInvalidElf, f.shstrndx)
	}
	shstrtab := f.Sections[f.shstrndx]
	for _, sec := range f.Sections {
		name, err := shstrtab.LookupStr(sec.ShName)
		if err != nil {
			return nil, fmt.Errorf("%w: resolving section name: %v", ErrParseElf, err)
		}
		sec.Name = name
	}

	for _, sec := range f.Sections {
		switch sec.ShType {
		case SHT_SYMTAB:
			if err := sec.ParseSymbols(format); err != nil {
				return nil, err
			}
			if int(sec.ShLink) < len(f.Sections) {
				strtab := f.Sections[sec.ShLink]
				for i := range sec.Symbols {
					if err := sec.Symbols[i].ResolveName(strtab); err != nil {
						return nil, err
					}
				}
			}
		case SHT_REL, SHT_RELA:
			if err := sec.ParseRelocations(format); err != nil {
				return nil, err
			}
			if int(sec.ShInfo) < len(f.Sections) {
				sec.Target = f.Sections[sec.ShInfo]
			}
		}
	}

	return f, nil
}

// FindSection returns the first section with the given name, or nil.
func (f *File) FindSection(name string) *Section {
	for _, s := range f.Sections {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ShStrtab returns the section header string table section.
func (f *File) ShStrtab() *Section {
	if f.shstrndx < 0 || f.shstrndx >= len(f.Sections) {
		return nil
	}
	return f.Sections[f.shstrndx]
}

// AddSection appends a new section, registering its name in .shstrtab,
// and returns a pointer to it. sh_offset is left at 0 and finalized by
// Write.
func (f *File) AddSection(name string, shType, shFlags, shLink, shInfo, shAddralign, shEntsize uint32, data []byte) (*Section, error) {
	shstrtab := f.ShStrtab()
	if shstrtab == nil {
		return nil, fmt.Errorf("%w: no section header string table to register %q in", ErrInvalidElf, name)
	}
	nameOff, err := shstrtab.AddStr(name)
	if err != nil {
		return nil, fmt.Errorf("adding section %q: %w", name, err)
	}
	sec := &Section{
		Index:       len(f.Sections),
		Name:        name,
		ShName:      nameOff,
		ShType:      shType,
		ShFlags:     shFlags,
		ShLink:      shLink,
		ShInfo:      shInfo,
		ShAddralign: shAddralign,
		ShEntsize:   shEntsize,
		Data:        data,
		ShSize:      uint32(len(data)),
	}
	f.Sections = append(f.Sections, sec)
	return sec, nil
}

func alignUp(v, align uint32) uint32 {
	if align <= 1 {
		return v
	}
	if r := v % align; r != 0 {
		return v + (align - r)
	}
	return v
}

// Write lays out the header, section data (in section order, padded to
// each section's sh_addralign, skipping SHT_NOBITS), and the section
// header table (4-byte aligned, last), then returns the serialized
// image. Parsing this output and writing it again yields a
// byte-identical result whenever no section was mutated in between.
func (f *File) Write() ([]byte, error) {
	buf := make([]byte, HeaderSize)

	for _, sec := range f.Sections {
		if sec.ShType == SHT_NOBITS {
			sec.ShOffset = uint32(len(buf))
			continue
		}
		align := sec.ShAddralign
		if align == 0 {
			align = 1
		}
		target := alignUp(uint32(len(buf)), align)
		for uint32(len(buf)) < target {
			buf = append(buf, 0)
		}
		sec.ShOffset = uint32(len(buf))
		sec.ShSize = uint32(len(sec.Data))
		buf = append(buf, sec.Data...)
	}

	shoff := alignUp(uint32(len(buf)), 4)
	for uint32(len(buf)) < shoff {
		buf = append(buf, 0)
	}

	f.Header.Shoff = shoff
	f.Header.Shnum = uint16(len(f.Sections))
	f.Header.Shstrndx = uint16(f.shstrndx)
	f.Header.Ehsize = HeaderSize
	f.Header.Shentsize = SectionHeaderSize

	for _, sec := range f.Sections {
		buf = append(buf, sec.SerializeHeader(f.Format)...)
	}

	headerBytes := f.Header.Serialize(f.Format)
	copy(buf[:HeaderSize], headerBytes)

	return buf, nil
}

// DropMdebugGptab removes every SHT_MIPS_DEBUG / SHT_MIPS_GPTAB section
// and any relocation section targeting one, renumbering every surviving
// section and fixing up sh_link, sh_info, st_shndx, and the section
// header string table index so nothing dangles.
func (f *File) DropMdebugGptab() error {
	drop := make(map[int]bool)
	for _, sec := range f.Sections {
		if sec.ShType == SHT_MIPS_DEBUG || sec.ShType == SHT_MIPS_GPTAB {
			drop[sec.Index] = true
		}
	}
	for _, sec := range f.Sections {
		if (sec.ShType == SHT_REL || sec.ShType == SHT_RELA) && drop[int(sec.ShInfo)] {
			drop[sec.Index] = true
		}
	}
	if len(drop) == 0 {
		return nil
	}

	remap := make(map[int]int)
	kept := make([]*Section, 0, len(f.Sections)-len(drop))
	for _, sec := range f.Sections {
		if drop[sec.Index] {
			continue
		}
		remap[sec.Index] = len(kept)
		kept = append(kept, sec)
	}

	for newIdx, sec := range kept {
		sec.Index = newIdx
		if newLink, ok := remap[int(sec.ShLink)]; ok {
			sec.ShLink = uint32(newLink)
		}
		if sec.ShType == SHT_REL || sec.ShType == SHT_RELA {
			newInfo, ok := remap[int(sec.ShInfo)]
			if !ok {
				return fmt.Errorf("%w: relocation section %q targets a dropped section that should have been dropped too", ErrInvalidElf, sec.Name)
			}
			sec.ShInfo = uint32(newInfo)
			sec.Target = kept[newInfo]
		}
		if sec.ShType == SHT_SYMTAB {
			for i := range sec.Symbols {
				st := &sec.Symbols[i]
				if int(st.Shndx) < len(f.Sections) {
					if newShndx, ok := remap[int(st.Shndx)]; ok {
						st.Shndx = uint16(newShndx)
					}
				}
			}
			sec.SerializeSymbols(f.Format)
		}
	}

	newShstrndx, ok := remap[f.shstrndx]
	if !ok {
		return fmt.Errorf("%w: section header string table was dropped", ErrInvalidElf)
	}
	f.shstrndx = newShstrndx
	f.Sections = kept
	return nil
}
