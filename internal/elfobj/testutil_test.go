package elfobj

// buildShstrtab concatenates names into a conventional ELF string table
// (leading NUL, one NUL-terminated entry per name) and returns the table
// bytes plus each name's offset, in the order given.
func buildShstrtab(names []string) ([]byte, []uint32) {
	data := []byte{0}
	offsets := make([]uint32, len(names))
	for i, n := range names {
		offsets[i] = uint32(len(data))
		data = append(data, []byte(n)...)
		data = append(data, 0)
	}
	return data, offsets
}

// newTestFile builds a minimal, well-formed MIPS32 relocatable object
// in memory: null section, .text, .data, .symtab (linked to .strtab,
// with one local symbol "foo" pointing into .text), .strtab, .shstrtab.
// It returns the File ready for Write(), constructed by hand rather than
// through AddSection so tests don't depend on AddSection to build their
// fixtures.
func newTestFile(bigEndian bool) *File {
	f := &File{
		Header: Header{
			Ident:   NewIdent(bigEndian),
			Type:    ET_REL,
			Machine: machineMIPS,
			Version: evCurrent,
		},
		Format: Format{BigEndian: bigEndian},
	}

	names := []string{"", ".text", ".data", ".symtab", ".strtab", ".shstrtab"}
	shstrtabData, offs := buildShstrtab(names)

	null := &Section{Index: 0, Name: "", ShType: SHT_NULL}

	text := &Section{
		Index:       1,
		Name:        ".text",
		ShName:      offs[1],
		ShType:      SHT_PROGBITS,
		ShFlags:     SHF_ALLOC | SHF_EXECINSTR,
		ShAddralign: 4,
		Data:        []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03, 0x04},
	}

	data := &Section{
		Index:       2,
		Name:        ".data",
		ShName:      offs[2],
		ShType:      SHT_PROGBITS,
		ShFlags:     SHF_ALLOC | SHF_WRITE,
		ShAddralign: 4,
		Data:        []byte{0xaa, 0xbb, 0xcc, 0xdd},
	}

	strtabData, symOffs := buildShstrtab([]string{"foo"})
	strtab := &Section{
		Index:       4,
		Name:        ".strtab",
		ShName:      offs[4],
		ShType:      SHT_STRTAB,
		ShAddralign: 1,
		Data:        strtabData,
	}

	symtab := &Section{
		Index:       3,
		Name:        ".symtab",
		ShName:      offs[3],
		ShType:      SHT_SYMTAB,
		ShLink:      4,
		ShInfo:      2,
		ShAddralign: 4,
		ShEntsize:   SymbolSize,
		Symbols: []Symbol{
			{},
			{NameOff: symOffs[0], Value: 4, Size: 4, Info: (STB_LOCAL << 4) | STT_FUNC, Shndx: 1, Name: "foo"},
		},
	}
	symtab.SerializeSymbols(f.Format)

	shstrtab := &Section{
		Index:       5,
		Name:        ".shstrtab",
		ShName:      offs[5],
		ShType:      SHT_STRTAB,
		ShAddralign: 1,
		Data:        shstrtabData,
	}

	f.Sections = []*Section{null, text, data, symtab, strtab, shstrtab}
	f.shstrndx = 5
	return f
}
