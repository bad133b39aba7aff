// Package fixup implements the post-process phase: splicing bytes,
// symbols, and relocations from the assembler's object file into the
// compiler's object file to produce the final ELF.
package fixup

import (
	"errors"
	"fmt"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"github.com/Manu343726/asmproc/internal/elfobj"
)

var (
	ErrEndianMismatch   = errors.New("object files have mismatched endianness or machine")
	ErrStubNotFound     = errors.New("stub symbol not found in compiler object")
	ErrRealNotFound     = errors.New("real implementation not found in assembler object")
	ErrSizeMismatch     = errors.New("real bytes and stub bytes have different lengths")
	ErrSpliceOverlap    = errors.New("spliced sections overlap")
	ErrRelocOutOfRange  = errors.New("relocation offset out of section bounds")
	ErrSymbolOutOfRange = errors.New("symbol value/size out of section bounds")
)

// Options controls the post-process run, mirroring the CLI flags from
// spec §6 that affect fixup specifically.
type Options struct {
	DropMdebugGptab bool
	ConvertStatics  StaticsMode
	SourceFilename  string // used by ConvertStatics == global-with-filename
}

// Run performs the full splice described in spec §4.8: it mutates
// objFile in place and returns it ready for ElfFile.Write.
func Run(objFile, asmFile *elfobj.File, functions []asmscan.Function, opts Options) (*elfobj.File, error) {
	if !elfobj.SameEndianAndMachine(objFile.Header, asmFile.Header) {
		return nil, ErrEndianMismatch
	}

	spliceDest := map[string]int{}
	lateRodataCursor := 0
	for _, fn := range functions {
		if err := spliceFunction(objFile, asmFile, fn, &lateRodataCursor); err != nil {
			return nil, fmt.Errorf("splicing %q: %w", fn.FnDesc, err)
		}
		for _, name := range fn.TextGlabels {
			stub, _, err := stubSymbol(objFile, name)
			if err != nil {
				return nil, err
			}
			spliceDest[name] = int(stub.Value)
		}
	}

	// Symbols are merged first so mergeRelocations can remap relocation
	// symbol indices through the final (post-merge, post-convert-statics)
	// table; the splice destinations were captured above, before the
	// stub symbols this loop is about to drop disappear.
	oldToNew, origNames, err := mergeSymbols(objFile, asmFile, functions, opts)
	if err != nil {
		return nil, err
	}

	// objFile's own relocations (e.g. a compiler-emitted call from one
	// untouched function to another) still reference the pre-merge
	// symbol indices; mergeRelocations below only remaps the relocations
	// it imports from asmFile.
	if err := remapExistingRelocations(objFile, oldToNew, origNames); err != nil {
		return nil, err
	}

	if err := mergeRelocations(objFile, asmFile, functions, spliceDest, opts); err != nil {
		return nil, err
	}

	if opts.DropMdebugGptab {
		if err := objFile.DropMdebugGptab(); err != nil {
			return nil, err
		}
	}

	if err := verify(objFile); err != nil {
		return nil, err
	}

	return objFile, nil
}

// stubSymbol locates the compiler-emitted stub symbol for one of a
// Function's glabels in objFile's .symtab.
func stubSymbol(objFile *elfobj.File, name string) (*elfobj.Symbol, int, error) {
	symtab := objFile.FindSection(".symtab")
	if symtab == nil {
		return nil, 0, fmt.Errorf("%w: %q (no .symtab in compiler object)", ErrStubNotFound, name)
	}
	idx, _, ok := symtab.FindSymbol(name)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrStubNotFound, name)
	}
	return &symtab.Symbols[idx], idx, nil
}

// realSymbol locates the assembler-emitted real implementation of a
// Function's glabel in asmFile's .symtab.
func realSymbol(asmFile *elfobj.File, name string) (*elfobj.Symbol, error) {
	symtab := asmFile.FindSection(".symtab")
	if symtab == nil {
		return nil, fmt.Errorf("%w: %q (no .symtab in assembler object)", ErrRealNotFound, name)
	}
	idx, _, ok := symtab.FindSymbol(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRealNotFound, name)
	}
	return &symtab.Symbols[idx], nil
}

// spliceFunction overwrites the stub bytes for one Function's glabels
// with the real bytes from asmFile, asserting equal length per spec
// §4.8 step 4, then overwrites late-rodata dummies in the same pass.
// lateRodataCursor tracks the running byte offset into asmFile's shared
// .late_rodata section, since every function's real late-rodata bytes
// land there back to back, in the same order functions were discovered.
func spliceFunction(objFile, asmFile *elfobj.File, fn asmscan.Function, lateRodataCursor *int) error {
	for _, name := range fn.TextGlabels {
		stub, _, err := stubSymbol(objFile, name)
		if err != nil {
			return err
		}
		real, err := realSymbol(asmFile, name)
		if err != nil {
			return err
		}

		objSec := sectionAt(objFile, int(stub.Shndx))
		asmSec := sectionAt(asmFile, int(real.Shndx))
		if objSec == nil || asmSec == nil {
			return fmt.Errorf("%w: %q references a missing section", ErrStubNotFound, name)
		}

		if stub.Size != real.Size {
			return fmt.Errorf("%w: %q stub=%d real=%d", ErrSizeMismatch, name, stub.Size, real.Size)
		}

		if err := spliceBytes(objSec, int(stub.Value), asmSec, int(real.Value), int(real.Size)); err != nil {
			return fmt.Errorf("%q: %w", name, err)
		}
	}

	if err := spliceLateRodata(objFile, asmFile, fn, lateRodataCursor); err != nil {
		return err
	}
	return nil
}

func sectionAt(f *elfobj.File, idx int) *elfobj.Section {
	if idx < 0 || idx >= len(f.Sections) {
		return nil
	}
	return f.Sections[idx]
}

func spliceBytes(dst *elfobj.Section, dstOff int, src *elfobj.Section, srcOff, n int) error {
	if dstOff < 0 || dstOff+n > len(dst.Data) {
		return fmt.Errorf("%w: destination [%d:%d) in section %q of size %d", ErrSpliceOverlap, dstOff, dstOff+n, dst.Name, len(dst.Data))
	}
	if srcOff < 0 || srcOff+n > len(src.Data) {
		return fmt.Errorf("%w: source [%d:%d) in section %q of size %d", ErrSpliceOverlap, srcOff, srcOff+n, src.Name, len(src.Data))
	}
	copy(dst.Data[dstOff:dstOff+n], src.Data[srcOff:srcOff+n])
	return nil
}

// spliceLateRodata overwrites the dummy float/double placeholders the
// compiler reserved in .rodata with the function's real late-rodata
// bytes, at whatever offset the compiler chose for the dummy stub
// symbol — preserving the compiler's own alignment choice. The real
// bytes come from asmFile's own .late_rodata section, not from
// fn.LateRodataDummyBytes (the analyzer only used those to size the
// dummy stub; their content is always zero, never the real assembled
// float/double bit patterns spec §4.8 step 4 requires).
func spliceLateRodata(objFile, asmFile *elfobj.File, fn asmscan.Function, cursor *int) error {
	n := len(fn.LateRodataDummyBytes) * 4
	if n == 0 {
		return nil
	}
	name := fn.FnDesc + "_late_rodata"
	stub, _, err := stubSymbol(objFile, name)
	if err != nil {
		// This point is only reached when the Function has late rodata
		// bytes, so a missing dummy symbol leaves them without a splice
		// target and is fatal.
		return fmt.Errorf("%w: %q", ErrStubNotFound, name)
	}
	rodata := sectionAt(objFile, int(stub.Shndx))
	if rodata == nil {
		return fmt.Errorf("%w: %q references a missing section", ErrStubNotFound, name)
	}

	asmLateRodata := asmFile.FindSection(".late_rodata")
	if asmLateRodata == nil {
		return fmt.Errorf("%w: %q has late rodata but assembler object has no .late_rodata section", ErrRealNotFound, name)
	}
	srcOff := *cursor
	if srcOff < 0 || srcOff+n > len(asmLateRodata.Data) {
		return fmt.Errorf("%w: late rodata [%d:%d) in %q of size %d", ErrSpliceOverlap, srcOff, srcOff+n, asmLateRodata.Name, len(asmLateRodata.Data))
	}
	realBytes := asmLateRodata.Data[srcOff : srcOff+n]
	*cursor += n

	off := int(stub.Value)
	if off < 0 || off+n > len(rodata.Data) {
		return fmt.Errorf("%w: late rodata [%d:%d) in %q of size %d", ErrSpliceOverlap, off, off+n, rodata.Name, len(rodata.Data))
	}
	copy(rodata.Data[off:off+n], realBytes)
	return nil
}
