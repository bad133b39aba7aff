package fixup

import (
	"fmt"
	"sort"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"github.com/Manu343726/asmproc/internal/elfobj"
)

// taggedSymbol carries a symbol through the drop/import/sort sequence
// in mergeSymbols alongside the original objFile .symtab index it came
// from, so pre-existing relocations (which reference that original
// index) can be remapped once the table has been reordered. origIdx is
// -1 for symbols imported from asmFile, which no pre-existing objFile
// relocation could have referenced yet.
type taggedSymbol struct {
	sym     elfobj.Symbol
	origIdx int
}

// mergeSymbols implements spec §4.8 step 5: stub symbols are dropped
// from objFile, the real (or converted-static) symbols from asmFile
// are imported with their section index remapped, and the table is
// re-sorted so every LOCAL symbol precedes every non-LOCAL one. It
// returns the map from every surviving original symbol's old index to
// its new index, plus the full old-index-to-name table (covering
// dropped stub symbols too, whose replacement now lives under the same
// name), so the caller can remap objFile's pre-existing relocations.
func mergeSymbols(objFile, asmFile *elfobj.File, functions []asmscan.Function, opts Options) (map[int]int, []string, error) {
	objSymtab := objFile.FindSection(".symtab")
	asmSymtab := asmFile.FindSection(".symtab")
	if objSymtab == nil || asmSymtab == nil {
		return nil, nil, fmt.Errorf("%w: missing .symtab in one of the objects", ErrStubNotFound)
	}

	processed := map[string]bool{}
	for _, fn := range functions {
		for _, name := range fn.TextGlabels {
			processed[name] = true
		}
	}

	origNames := make([]string, len(objSymtab.Symbols))
	for i, sym := range objSymtab.Symbols {
		origNames[i] = sym.Name
	}

	var tagged []taggedSymbol
	for i, sym := range objSymtab.Symbols {
		if i != 0 && processed[sym.Name] {
			continue // drop the compiler's stub symbol
		}
		tagged = append(tagged, taggedSymbol{sym: sym, origIdx: i})
	}

	nameToObjSection := map[string]int{}
	for _, sec := range objFile.Sections {
		nameToObjSection[sec.Name] = sec.Index
	}

	for i, sym := range asmSymtab.Symbols {
		if i == 0 {
			continue // null symbol
		}
		bind := sym.Bind()
		isProcessed := processed[sym.Name]

		var importName string
		var importBind uint8
		switch {
		case isProcessed:
			importName, importBind = sym.Name, bind
		case bind == elfobj.STB_LOCAL:
			if opts.ConvertStatics == StaticsNo || opts.ConvertStatics == "" {
				continue
			}
			importName, importBind = convertStaticName(sym.Name, bind, opts.ConvertStatics, opts.SourceFilename)
		default:
			continue // other non-processed globals are asmFile-internal
		}

		asmSec := sectionAt(asmFile, int(sym.Shndx))
		if asmSec == nil {
			continue
		}
		objIdx, ok := nameToObjSection[asmSec.Name]
		if !ok {
			return nil, nil, fmt.Errorf("%w: section %q has no counterpart in compiler object", ErrStubNotFound, asmSec.Name)
		}

		imported := sym
		imported.Name = importName
		imported.SetBind(importBind)
		imported.Shndx = uint16(objIdx)
		tagged = append(tagged, taggedSymbol{sym: imported, origIdx: -1})
	}

	// Mirror elfobj.Section.SortSymbolsLocalFirst's stable partition
	// here instead of calling it directly, so the same permutation can
	// be applied to the origIdx tags to build oldToNew.
	null := tagged[0]
	rest := tagged[1:]
	sort.SliceStable(rest, func(i, j int) bool {
		return rest[i].sym.Bind() == elfobj.STB_LOCAL && rest[j].sym.Bind() != elfobj.STB_LOCAL
	})

	locals := 1
	for _, t := range rest {
		if t.sym.Bind() == elfobj.STB_LOCAL {
			locals++
		}
	}

	finalSyms := make([]elfobj.Symbol, 0, len(tagged))
	finalSyms = append(finalSyms, null.sym)
	oldToNew := map[int]int{null.origIdx: 0}
	for i, t := range rest {
		finalSyms = append(finalSyms, t.sym)
		if t.origIdx >= 0 {
			oldToNew[t.origIdx] = i + 1
		}
	}

	objSymtab.Symbols = finalSyms
	objSymtab.ShInfo = uint32(locals)

	return oldToNew, origNames, nil
}

// remapExistingRelocations implements the other half of spec §4.8 step
// 6: objFile's own relocations (not the ones imported from asmFile by
// mergeRelocations) still reference symbol indices from before
// mergeSymbols dropped and reordered the table. Every one is rewritten
// through oldToNew; a relocation whose symbol was a dropped stub (no
// entry in oldToNew) is rebound by name instead, since the processed
// function's real symbol now occupies that same name.
func remapExistingRelocations(objFile *elfobj.File, oldToNew map[int]int, origNames []string) error {
	objSymtab := objFile.FindSection(".symtab")
	if objSymtab == nil {
		return nil
	}

	for _, sec := range objFile.Sections {
		if sec.ShType != elfobj.SHT_REL && sec.ShType != elfobj.SHT_RELA {
			continue
		}
		for i, r := range sec.Relocations {
			oldIdx := int(r.SymIndex())
			if newIdx, ok := oldToNew[oldIdx]; ok {
				sec.Relocations[i].SetSymIndex(uint32(newIdx))
				continue
			}
			if oldIdx < 0 || oldIdx >= len(origNames) {
				return fmt.Errorf("%w: relocation in %q references out-of-range symbol %d", ErrSymbolOutOfRange, sec.Name, oldIdx)
			}
			newIdx, _, ok := objSymtab.FindSymbol(origNames[oldIdx])
			if !ok {
				return fmt.Errorf("%w: relocation in %q references dropped symbol %q with no replacement", ErrStubNotFound, sec.Name, origNames[oldIdx])
			}
			sec.Relocations[i].SetSymIndex(uint32(newIdx))
		}
	}
	return nil
}

// mergeRelocations implements spec §4.8 step 6: for each processed
// function, asmFile relocations whose target offset falls within the
// function's real byte range are translated into objFile's relocation
// section for the same target section, with the offset shifted by the
// splice base (spliceDest, captured by Run before the stub symbols it
// names were dropped) and the symbol index remapped through the
// post-merge table.
func mergeRelocations(objFile, asmFile *elfobj.File, functions []asmscan.Function, spliceDest map[string]int, opts Options) error {
	objSymtab := objFile.FindSection(".symtab")
	asmSymtab := asmFile.FindSection(".symtab")
	if objSymtab == nil || asmSymtab == nil {
		return nil
	}

	for _, fn := range functions {
		for _, name := range fn.TextGlabels {
			real, err := realSymbol(asmFile, name)
			if err != nil {
				return err
			}

			asmSec := sectionAt(asmFile, int(real.Shndx))
			if asmSec == nil {
				continue
			}
			objSec, ok := findByName(objFile, asmSec.Name)
			if !ok {
				continue
			}

			base := int(real.Value)
			size := int(real.Size)
			destBase, ok := spliceDest[name]
			if !ok {
				continue
			}

			relSec := findOrCreateRelocSection(objFile, objSec, asmFile, asmSec)
			if relSec == nil {
				continue
			}

			for _, r := range asmRelocationsFor(asmFile, asmSec, base, size) {
				translated := r
				off := int(r.Offset) - base + destBase
				if off < 0 {
					continue
				}
				translated.Offset = uint32(off)

				symIdx, ok := remapRelocSymbol(asmSymtab, objSymtab, r.SymIndex(), opts)
				if !ok {
					continue
				}
				translated.SetSymIndex(uint32(symIdx))

				relSec.Relocations = append(relSec.Relocations, translated)
			}
		}
	}

	for _, sec := range objFile.Sections {
		if sec.ShType == elfobj.SHT_REL || sec.ShType == elfobj.SHT_RELA {
			sec.SerializeRelocations(objFile.Format)
		}
	}
	return nil
}

func findByName(f *elfobj.File, name string) (*elfobj.Section, bool) {
	s := f.FindSection(name)
	return s, s != nil
}

// asmRelocationsFor returns every relocation in asmSec's companion
// relocation section whose offset falls within [base, base+size).
func asmRelocationsFor(asmFile *elfobj.File, asmSec *elfobj.Section, base, size int) []elfobj.Relocation {
	var out []elfobj.Relocation
	for _, sec := range asmFile.Sections {
		if (sec.ShType != elfobj.SHT_REL && sec.ShType != elfobj.SHT_RELA) || sec.Target != asmSec {
			continue
		}
		for _, r := range sec.Relocations {
			off := int(r.Offset)
			if off >= base && off < base+size {
				out = append(out, r)
			}
		}
	}
	return out
}

// findOrCreateRelocSection locates objFile's relocation section for
// objSec, creating an empty one (matching asmSec's REL/RELA shape,
// preserving the source type per spec §4.8 step 6) if none exists yet.
func findOrCreateRelocSection(objFile *elfobj.File, objSec *elfobj.Section, asmFile *elfobj.File, asmSec *elfobj.Section) *elfobj.Section {
	for _, sec := range objFile.Sections {
		if (sec.ShType == elfobj.SHT_REL || sec.ShType == elfobj.SHT_RELA) && sec.Target == objSec {
			return sec
		}
	}

	var srcRelType *elfobj.Section
	for _, sec := range asmFile.Sections {
		if (sec.ShType == elfobj.SHT_REL || sec.ShType == elfobj.SHT_RELA) && sec.Target == asmSec {
			srcRelType = sec
			break
		}
	}
	if srcRelType == nil {
		return nil
	}

	shType := uint32(elfobj.SHT_REL)
	if srcRelType.ShType == elfobj.SHT_RELA {
		shType = elfobj.SHT_RELA
	}
	objSymtab := objFile.FindSection(".symtab")
	if objSymtab == nil {
		return nil
	}
	entsize := uint32(elfobj.RelSize)
	if shType == elfobj.SHT_RELA {
		entsize = elfobj.RelaSize
	}
	newSec, err := objFile.AddSection(".rel"+objSec.Name, shType, 0, uint32(objSymtab.Index), uint32(objSec.Index), 4, entsize, nil)
	if err != nil {
		return nil
	}
	newSec.Target = objSec
	newSec.RelaAddend = shType == elfobj.SHT_RELA
	return newSec
}

// remapRelocSymbol maps a relocation's symbol index from asmFile's
// symbol table to objFile's merged one. A plain name lookup covers
// processed functions and statics merged under --convert-statics=local;
// statics promoted to global (with or without the filename suffix) are
// found under the name mergeSymbols gave them instead.
func remapRelocSymbol(asmSymtab, objSymtab *elfobj.Section, asmIdx uint32, opts Options) (int, bool) {
	if int(asmIdx) >= len(asmSymtab.Symbols) {
		return 0, false
	}
	sym := asmSymtab.Symbols[asmIdx]
	if idx, _, ok := objSymtab.FindSymbol(sym.Name); ok {
		return idx, true
	}
	if sym.Bind() == elfobj.STB_LOCAL {
		converted, _ := convertStaticName(sym.Name, sym.Bind(), opts.ConvertStatics, opts.SourceFilename)
		if idx, _, ok := objSymtab.FindSymbol(converted); ok {
			return idx, true
		}
	}
	return 0, false
}

// verify implements spec §4.8's final checks: every relocation offset
// lies within its target section's data, and every symbol's
// value+size lies within its section's data.
func verify(objFile *elfobj.File) error {
	for _, sec := range objFile.Sections {
		if (sec.ShType == elfobj.SHT_REL || sec.ShType == elfobj.SHT_RELA) && sec.Target != nil {
			for _, r := range sec.Relocations {
				if int(r.Offset) >= len(sec.Target.Data) {
					return fmt.Errorf("%w: offset %d in %q (size %d)", ErrRelocOutOfRange, r.Offset, sec.Target.Name, len(sec.Target.Data))
				}
			}
		}
		if sec.ShType == elfobj.SHT_SYMTAB {
			for _, sym := range sec.Symbols {
				if sym.Shndx == 0 || sym.Shndx == elfobj.SHN_XINDEX {
					continue
				}
				target := sectionAt(objFile, int(sym.Shndx))
				if target == nil || target.ShType == elfobj.SHT_NOBITS {
					continue
				}
				if int(sym.Value)+int(sym.Size) > len(target.Data) {
					return fmt.Errorf("%w: %q value=%d size=%d in %q (size %d)",
						ErrSymbolOutOfRange, sym.Name, sym.Value, sym.Size, target.Name, len(target.Data))
				}
			}
		}
	}
	return nil
}
