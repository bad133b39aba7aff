package fixup

import "github.com/Manu343726/asmproc/internal/elfobj"

// buildStrtab concatenates names into a conventional ELF string table
// (leading NUL, one NUL-terminated entry per name) and returns the
// table bytes plus each name's offset, in the order given. Mirrors
// internal/elfobj's own test fixture helper since that one is
// unexported outside its package.
func buildStrtab(names []string) ([]byte, []uint32) {
	data := []byte{0}
	offsets := make([]uint32, len(names))
	for i, n := range names {
		offsets[i] = uint32(len(data))
		data = append(data, []byte(n)...)
		data = append(data, 0)
	}
	return data, offsets
}

// objectFixture describes one object (either the compiler's stub
// object or the assembler's real one) in terms small enough for a
// table-driven test to build by hand.
type objectFixture struct {
	bigEndian  bool
	textData   []byte
	dataData   []byte
	rodata     []byte
	lateRodata []byte          // only meaningful on the assembler-side fixture
	symbols    []elfobj.Symbol // must include the null symbol at index 0
}

// buildFixture assembles a minimal well-formed ELF32 MIPS relocatable
// object: null, .text, .data, .rodata (only if rodata is non-nil),
// .late_rodata (only if lateRodata is non-nil), .symtab, .strtab,
// .shstrtab.
func buildFixture(fx objectFixture) *elfobj.File {
	names := []string{"", ".text", ".data", ".symtab", ".strtab", ".shstrtab"}
	if fx.rodata != nil {
		names = append(names, ".rodata")
	}
	if fx.lateRodata != nil {
		names = append(names, ".late_rodata")
	}
	shstrtabData, offs := buildStrtab(names)
	nameOff := make(map[string]uint32, len(names))
	for i, n := range names {
		nameOff[n] = offs[i]
	}

	f := &elfobj.File{
		Header: elfobj.Header{
			Ident:   elfobj.NewIdent(fx.bigEndian),
			Type:    elfobj.ET_REL,
			Machine: 8,
			Version: 1,
		},
		Format: elfobj.Format{BigEndian: fx.bigEndian},
	}

	null := &elfobj.Section{Index: 0, Name: "", ShType: elfobj.SHT_NULL}
	text := &elfobj.Section{
		Index: 1, Name: ".text", ShName: nameOff[".text"],
		ShType: elfobj.SHT_PROGBITS, ShFlags: elfobj.SHF_ALLOC | elfobj.SHF_EXECINSTR,
		ShAddralign: 4, Data: fx.textData,
	}
	data := &elfobj.Section{
		Index: 2, Name: ".data", ShName: nameOff[".data"],
		ShType: elfobj.SHT_PROGBITS, ShFlags: elfobj.SHF_ALLOC | elfobj.SHF_WRITE,
		ShAddralign: 4, Data: fx.dataData,
	}

	var syms []elfobj.Symbol
	symNames := []string{""}
	for _, s := range fx.symbols[1:] {
		symNames = append(symNames, s.Name)
	}
	strtabData, symOffs := buildStrtab(symNames[1:])
	syms = append(syms, fx.symbols[0])
	for i, s := range fx.symbols[1:] {
		s.NameOff = symOffs[i]
		syms = append(syms, s)
	}

	strtab := &elfobj.Section{
		Index: 4, Name: ".strtab", ShName: nameOff[".strtab"],
		ShType: elfobj.SHT_STRTAB, ShAddralign: 1, Data: strtabData,
	}

	locals := 0
	for _, s := range syms {
		if s.Bind() == elfobj.STB_LOCAL {
			locals++
		}
	}
	symtab := &elfobj.Section{
		Index: 3, Name: ".symtab", ShName: nameOff[".symtab"],
		ShType: elfobj.SHT_SYMTAB, ShLink: 4, ShInfo: uint32(locals),
		ShAddralign: 4, ShEntsize: elfobj.SymbolSize, Symbols: syms,
	}
	symtab.SerializeSymbols(f.Format)

	sections := []*elfobj.Section{null, text, data, symtab, strtab}

	if fx.rodata != nil {
		rodata := &elfobj.Section{
			Name: ".rodata", ShName: nameOff[".rodata"],
			ShType: elfobj.SHT_PROGBITS, ShFlags: elfobj.SHF_ALLOC,
			ShAddralign: 4, Data: fx.rodata,
		}
		sections = append(sections, rodata)
	}

	if fx.lateRodata != nil {
		lateRodata := &elfobj.Section{
			Name: ".late_rodata", ShName: nameOff[".late_rodata"],
			ShType: elfobj.SHT_PROGBITS, ShFlags: elfobj.SHF_ALLOC,
			ShAddralign: 4, Data: fx.lateRodata,
		}
		sections = append(sections, lateRodata)
	}

	shstrtab := &elfobj.Section{
		Name: ".shstrtab", ShName: nameOff[".shstrtab"],
		ShType: elfobj.SHT_STRTAB, ShAddralign: 1, Data: shstrtabData,
	}
	sections = append(sections, shstrtab)
	for i, sec := range sections {
		sec.Index = i
	}

	f.Sections = sections
	return f
}
