package asmscan

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTooFewInstructions = errors.New("block contributes too few instructions")
	ErrDuplicateLabel     = errors.New("duplicate entry label")
	ErrUnknownDirective   = errors.New("unrecognized directive in strict mode")
	ErrLateRodataBudget   = errors.New("late rodata exceeds declared prelude budget")
)

// SectionContribution is one entry of Function.Data: how many bytes a
// block reserves in a given section, and the C stub expression the
// preprocessor should splice in to reserve them.
type SectionContribution struct {
	Size     int
	StubExpr string
}

// Function is the analyzer's output for one GLOBAL_ASM block.
type Function struct {
	TextGlabels          []string
	AsmConts             []string
	LateRodataDummyBytes [][4]byte
	JtblRodataSize       int
	LateRodataAsmConts   []string
	FnDesc               string
	Data                 map[string]SectionContribution
}

// analyzerState is the explicit, per-block state object threaded
// through line-by-line analysis — never hidden in package-level
// storage, per the "current section, late rodata accumulator, current
// function" design note.
type analyzerState struct {
	section        string
	sizes          map[string]int
	textGlabels    []string
	seenLabels     map[string]bool
	lateRodata     []byte
	jtblRodataSize int
	asmConts       []string
	lateAsmConts   []string
	instrCount     int
	lineNo         int
}

func newAnalyzerState() *analyzerState {
	return &analyzerState{
		section:    ".text",
		sizes:      map[string]int{},
		seenLabels: map[string]bool{},
	}
}

// Analyzer runs the GlobalAsmBlock analysis described in spec §4.6:
// given the textual body of one block, it determines per-section byte
// contributions without invoking an assembler.
type Analyzer struct {
	parser *Parser
	state  GlobalState
}

// NewAnalyzer builds an Analyzer bound to a GlobalState (config is
// immutable and shared across every block analyzed in one invocation).
func NewAnalyzer(state GlobalState) *Analyzer {
	return &Analyzer{parser: NewParser(), state: state}
}

// Analyze consumes a GLOBAL_ASM block body (already split into lines)
// at the given starting line number (for error messages) and produces
// the block's Function record. Blank lines and lines starting with "#"
// or "//" are skipped.
func (a *Analyzer) Analyze(lines []string, startLine int) (Function, error) {
	st := newAnalyzerState()
	st.lineNo = startLine

	for _, raw := range lines {
		st.lineNo++
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if err := a.step(st, line); err != nil {
			return Function{}, err
		}
	}

	if err := a.applyLateRodataAlignment(st); err != nil {
		return Function{}, err
	}

	effectiveInstr := st.instrCount - a.state.SkipInstrCount
	textOnly := len(st.sizes) == 1 && st.sizes[".text"] > 0
	if textOnly && effectiveInstr < a.state.MinInstrCount {
		return Function{}, fmt.Errorf("%w: line %d: block has %d instructions, need at least %d",
			ErrTooFewInstructions, st.lineNo, effectiveInstr, a.state.MinInstrCount)
	}

	return a.buildFunction(st), nil
}

func (a *Analyzer) step(st *analyzerState, line string) error {
	d := a.parser.Classify(line)

	switch d.Kind {
	case KindSection:
		st.section = d.Name
		return nil
	case KindAlign:
		target := 1 << uint(d.Pow)
		st.sizes[st.section] = alignUp(st.sizes[st.section], target)
		return nil
	case KindLabel:
		if d.Global {
			if st.seenLabels[d.Name] {
				return fmt.Errorf("%w: %q at line %d", ErrDuplicateLabel, d.Name, st.lineNo)
			}
			st.seenLabels[d.Name] = true
			if st.section == ".text" {
				st.textGlabels = append(st.textGlabels, d.Name)
			}
		}
		return nil
	case KindInstruction:
		if st.section == ".text" {
			st.instrCount++
			st.sizes[".text"] += 4
			st.asmConts = append(st.asmConts, line)
		} else {
			// Pascal-origin blocks and mips1 stubs may carry
			// pseudo-instructions outside .text; size them like any
			// other 4-byte unit of the current section.
			st.sizes[st.section] += 4
		}
		return nil
	case KindData:
		if st.section == ".late_rodata" {
			if a.state.UseJtblForRodata && looksLikeJumpTable(line) {
				// Per spec, jump tables go to early .rodata instead of
				// riding along with the late-rodata dummy scheme.
				st.jtblRodataSize += d.Size
				st.sizes[".rodata"] += d.Size
			} else {
				st.lateRodata = append(st.lateRodata, make([]byte, d.Size)...)
				st.lateAsmConts = append(st.lateAsmConts, line)
			}
		} else {
			st.sizes[st.section] += d.Size
			if st.section == ".text" {
				st.asmConts = append(st.asmConts, line)
			}
		}
		return nil
	case KindUnknown:
		if !a.state.Pascal {
			return fmt.Errorf("%w: %q at line %d", ErrUnknownDirective, d.Text, st.lineNo)
		}
		return nil
	}
	return nil
}

func looksLikeJumpTable(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), ".word") && strings.Contains(line, ",")
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	if r := v % align; r != 0 {
		return v + (align - r)
	}
	return v
}

// applyLateRodataAlignment applies the 8-byte alignment rule for late
// rodata: when the late rodata ahead of the first .double is not a
// multiple of 8 bytes, one extra 4-byte dummy is added so that .double
// starts 8-aligned. The dummies are all zero, so the filler is appended
// instead of being placed ahead of the .double; only the dummy count
// matters. No late rodata budget is checked: PreludeIfLateRodata is not
// consulted here and ErrLateRodataBudget is never returned.
func (a *Analyzer) applyLateRodataAlignment(st *analyzerState) error {
	if len(st.lateRodata) == 0 || !hasDoubleWidthEntry(st.lateAsmConts) {
		return nil
	}
	before := 0
	for _, c := range st.lateAsmConts {
		if strings.HasPrefix(strings.TrimSpace(c), ".double") {
			break
		}
		before += a.parser.Classify(c).Size
	}
	if before%8 != 0 {
		st.lateRodata = append(st.lateRodata, make([]byte, 4)...)
	}
	return nil
}

func hasDoubleWidthEntry(conts []string) bool {
	for _, c := range conts {
		if strings.HasPrefix(strings.TrimSpace(c), ".double") {
			return true
		}
	}
	return false
}

func (a *Analyzer) buildFunction(st *analyzerState) Function {
	fnDesc := fmt.Sprintf("block_%d", st.lineNo)
	if len(st.textGlabels) > 0 {
		fnDesc = st.textGlabels[0]
	}

	data := make(map[string]SectionContribution, len(st.sizes))
	for sec, size := range st.sizes {
		data[sec] = SectionContribution{Size: size, StubExpr: stubExprFor(sec, fnDesc, size)}
	}

	dummies := make([][4]byte, len(st.lateRodata)/4)
	for i := range dummies {
		copy(dummies[i][:], st.lateRodata[i*4:i*4+4])
	}

	return Function{
		TextGlabels:          st.textGlabels,
		AsmConts:             st.asmConts,
		LateRodataDummyBytes: dummies,
		JtblRodataSize:       st.jtblRodataSize,
		LateRodataAsmConts:   st.lateAsmConts,
		FnDesc:               fnDesc,
		Data:                 data,
	}
}

// stubExprFor builds the C stub text for one section's contribution;
// internal/preprocess writes it into the rewritten source as is.
func stubExprFor(section, fnDesc string, size int) string {
	switch section {
	case ".text":
		return fmt.Sprintf("void %s(void) { /* %d bytes of filler */ }", fnDesc, size)
	case ".bss":
		return fmt.Sprintf("static char %s_bss[%d];", fnDesc, size)
	case ".late_rodata":
		return fmt.Sprintf("static const float %s_late_rodata[%d];", fnDesc, size/4)
	default:
		return fmt.Sprintf("static const uint32_t %s_%s[%d];", fnDesc, strings.TrimPrefix(section, "."), (size+3)/4)
	}
}
