package asmscan

// GlobalState is the per-invocation configuration the analyzer consults.
// It is built once by internal/cli from CLI flags, kept in
// config.Config, and passed by value to NewAnalyzer; nothing in this
// package keeps process-wide mutable state.
type GlobalState struct {
	MinInstrCount       int
	SkipInstrCount      int
	UseJtblForRodata    bool
	PreludeIfLateRodata bool
	Mips1               bool
	Pascal              bool
	Framepointer        bool
	Kpic                bool
}

// DefaultGlobalState matches the original tool's out-of-the-box
// defaults: at least one instruction per block, no skip, jump tables
// placed in .late_rodata rather than early .rodata.
func DefaultGlobalState() GlobalState {
	return GlobalState{MinInstrCount: 1}
}
