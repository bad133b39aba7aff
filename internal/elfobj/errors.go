package elfobj

import "errors"

// Sentinel errors wrapped by fmt.Errorf("%w: ...", ...) throughout this
// package, following the teacher's pkg/utils/errors.go convention. They
// are matched against with errors.Is at the internal/diag boundary to
// pick the right diagnostic Kind.
var (
	ErrInvalidElf    = errors.New("invalid ELF image")
	ErrParseElf      = errors.New("failed to parse ELF structure")
	ErrUnsupported   = errors.New("unsupported ELF feature")
	ErrSymbolLookup  = errors.New("symbol lookup failed")
	ErrStrtabFrozen  = errors.New("string table section is frozen for this pass")
	ErrSectionBounds = errors.New("section data out of bounds")
)
