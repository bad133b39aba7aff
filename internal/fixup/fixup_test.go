package fixup

import (
	"testing"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"github.com/Manu343726/asmproc/internal/elfobj"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_SplicesFunctionBytesAndMergesSymbol(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0, 0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "test_func", Value: 0, Size: 8, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})
	asmFile := buildFixture(objectFixture{
		textData: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		symbols: []elfobj.Symbol{
			{},
			{Name: "test_func", Value: 0, Size: 8, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	fn := asmscan.Function{FnDesc: "test_func", TextGlabels: []string{"test_func"}}
	out, err := Run(objFile, asmFile, []asmscan.Function{fn}, Options{ConvertStatics: StaticsNo})
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out.FindSection(".text").Data)

	symtab := out.FindSection(".symtab")
	idx, _, ok := symtab.FindSymbol("test_func")
	require.True(t, ok)
	assert.Equal(t, uint8(elfobj.STB_GLOBAL), symtab.Symbols[idx].Bind())
}

func TestRun_RejectsMismatchedEndianness(t *testing.T) {
	objFile := buildFixture(objectFixture{
		bigEndian: true,
		textData:  []byte{0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})
	asmFile := buildFixture(objectFixture{
		bigEndian: false,
		textData:  []byte{1, 2, 3, 4},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	_, err := Run(objFile, asmFile, []asmscan.Function{{FnDesc: "f", TextGlabels: []string{"f"}}}, Options{})
	assert.ErrorIs(t, err, ErrEndianMismatch)
}

func TestRun_RejectsSizeMismatch(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0, 0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 8, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})
	asmFile := buildFixture(objectFixture{
		textData: []byte{1, 2, 3, 4},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	_, err := Run(objFile, asmFile, []asmscan.Function{{FnDesc: "f", TextGlabels: []string{"f"}}}, Options{})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestRun_RejectsMissingStub(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0},
		symbols:  []elfobj.Symbol{{}},
	})
	asmFile := buildFixture(objectFixture{
		textData: []byte{1, 2, 3, 4},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	_, err := Run(objFile, asmFile, []asmscan.Function{{FnDesc: "f", TextGlabels: []string{"f"}}}, Options{})
	assert.ErrorIs(t, err, ErrStubNotFound)
}

func TestRun_SplicesLateRodataDummies(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0},
		rodata:   []byte{0, 0, 0, 0, 0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "f_late_rodata", Value: 0, Size: 8, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_OBJECT, Shndx: 5},
		},
	})
	asmFile := buildFixture(objectFixture{
		textData:   []byte{9, 9, 9, 9},
		lateRodata: []byte{0x3f, 0x80, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	// The analyzer only ever fills LateRodataDummyBytes with zeros (it
	// sizes the dummy stub, it doesn't know the real bit pattern); the
	// real bytes must come from asmFile's own .late_rodata section.
	fn := asmscan.Function{
		FnDesc:      "f",
		TextGlabels: []string{"f"},
		LateRodataDummyBytes: [][4]byte{
			{0, 0, 0, 0},
			{0, 0, 0, 0},
		},
	}
	out, err := Run(objFile, asmFile, []asmscan.Function{fn}, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		[]byte{0x3f, 0x80, 0x00, 0x00, 0x40, 0x00, 0x00, 0x00},
		out.FindSection(".rodata").Data)
}

func TestRun_LateRodataCursorAdvancesAcrossFunctions(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0, 0, 0, 0, 0},
		rodata:   []byte{0, 0, 0, 0, 0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "g", Value: 4, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "f_late_rodata", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_OBJECT, Shndx: 5},
			{Name: "g_late_rodata", Value: 4, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_OBJECT, Shndx: 5},
		},
	})
	asmFile := buildFixture(objectFixture{
		textData:   []byte{1, 1, 1, 1, 2, 2, 2, 2},
		lateRodata: []byte{0xaa, 0xaa, 0xaa, 0xaa, 0xbb, 0xbb, 0xbb, 0xbb},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "g", Value: 4, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	fns := []asmscan.Function{
		{FnDesc: "f", TextGlabels: []string{"f"}, LateRodataDummyBytes: [][4]byte{{}}},
		{FnDesc: "g", TextGlabels: []string{"g"}, LateRodataDummyBytes: [][4]byte{{}}},
	}
	out, err := Run(objFile, asmFile, fns, Options{})
	require.NoError(t, err)
	assert.Equal(t,
		[]byte{0xaa, 0xaa, 0xaa, 0xaa, 0xbb, 0xbb, 0xbb, 0xbb},
		out.FindSection(".rodata").Data)
}

// A pre-existing compiler relocation (from an untouched function, calling
// another untouched function) must still resolve to the right symbol
// after mergeSymbols drops the processed stub and reorders the table
// local-first. Picking "caller" before "callee" in the original table,
// with "callee" LOCAL, forces the stable partition to actually move
// indices around instead of leaving them where they started.
func TestRun_RemapsPreExistingRelocationsAfterSymbolReorder(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "caller", Value: 4, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "callee", Value: 8, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})
	text := objFile.FindSection(".text")
	relText := &elfobj.Section{
		Name: ".rel.text", ShType: elfobj.SHT_REL, Target: text,
		Relocations: []elfobj.Relocation{
			{Offset: 4, Info: elfobj.MakeInfo(3, elfobj.R_MIPS_26)}, // old index 3 = callee
		},
	}
	objFile.Sections = append(objFile.Sections, relText)
	for i, sec := range objFile.Sections {
		sec.Index = i
	}

	asmFile := buildFixture(objectFixture{
		textData: []byte{9, 9, 9, 9},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})

	fn := asmscan.Function{FnDesc: "f", TextGlabels: []string{"f"}}
	out, err := Run(objFile, asmFile, []asmscan.Function{fn}, Options{ConvertStatics: StaticsNo})
	require.NoError(t, err)

	symtab := out.FindSection(".symtab")
	calleeIdx, _, ok := symtab.FindSymbol("callee")
	require.True(t, ok)

	var rel *elfobj.Section
	for _, sec := range out.Sections {
		if sec.ShType == elfobj.SHT_REL && sec.Target == text {
			rel = sec
		}
	}
	require.NotNil(t, rel)
	require.Len(t, rel.Relocations, 1)
	assert.Equal(t, uint32(calleeIdx), rel.Relocations[0].SymIndex())
}

func TestRun_ConvertStaticsPromotesLocalsToGlobal(t *testing.T) {
	objFile := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0},
		dataData: []byte{0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})
	asmFile := buildFixture(objectFixture{
		textData: []byte{1, 1, 1, 1},
		dataData: []byte{2, 2, 2, 2},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 0, Size: 4, Info: (elfobj.STB_GLOBAL << 4) | elfobj.STT_FUNC, Shndx: 1},
			{Name: "counter", Value: 0, Size: 4, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_OBJECT, Shndx: 2},
		},
	})

	fn := asmscan.Function{FnDesc: "f", TextGlabels: []string{"f"}}
	out, err := Run(objFile, asmFile, []asmscan.Function{fn}, Options{
		ConvertStatics: StaticsGlobalWithFilename,
		SourceFilename: "module.s",
	})
	require.NoError(t, err)

	symtab := out.FindSection(".symtab")
	idx, _, ok := symtab.FindSymbol("counter_module")
	require.True(t, ok)
	assert.Equal(t, uint8(elfobj.STB_GLOBAL), symtab.Symbols[idx].Bind())
}

func TestVerify_CatchesSymbolOutOfSectionBounds(t *testing.T) {
	f := buildFixture(objectFixture{
		textData: []byte{0, 0, 0, 0},
		symbols: []elfobj.Symbol{
			{},
			{Name: "f", Value: 2, Size: 8, Info: (elfobj.STB_LOCAL << 4) | elfobj.STT_FUNC, Shndx: 1},
		},
	})
	err := verify(f)
	assert.ErrorIs(t, err, ErrSymbolOutOfRange)
}
