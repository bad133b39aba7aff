package asmscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Scenario 1: a single 3-instruction block in .text reserves exactly
// 4*3 = 12 bytes and records its entry glabel.
func TestAnalyzer_ThreeInstructionTextBlockReserves12Bytes(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		"glabel my_func",
		"addiu $sp, $sp, -8",
		"sw $ra, 4($sp)",
		"jr $ra",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"my_func"}, fn.TextGlabels)
	assert.Equal(t, 12, fn.Data[".text"].Size)
	assert.Equal(t, "my_func", fn.FnDesc)
}

// Scenario 2: two .float values in .late_rodata reserve 8 dummy bytes.
func TestAnalyzer_TwoFloatsInLateRodataReserve8Bytes(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		"glabel my_func",
		"lwc1 $f0, 0($a0)",
		".late_rodata",
		".float 1.0",
		".float 2.0",
		".text",
	}, 0)
	require.NoError(t, err)
	assert.Len(t, fn.LateRodataDummyBytes, 2)
}

// Scenario 3: a single .double forces 8-byte alignment of the late
// rodata region, adding a filler dummy when the running count is odd.
func TestAnalyzer_SingleDoubleForces8ByteAlignment(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		"glabel my_func",
		"nop",
		".late_rodata",
		".float 1.0",
		".double 2.0",
		".text",
	}, 0)
	require.NoError(t, err)
	// The .float (4 bytes) ahead of the .double is not 8-aligned, so one
	// extra 4-byte dummy is added: 4 + 4 + 8 = 16 bytes -> 4 dummies.
	assert.Len(t, fn.LateRodataDummyBytes, 4)
}

func TestAnalyzer_DoubleAloneNeedsNoExtraPadding(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		"glabel my_func",
		"nop",
		".late_rodata",
		".double 2.0",
		".text",
	}, 0)
	require.NoError(t, err)
	assert.Len(t, fn.LateRodataDummyBytes, 2)
}

// Scenario 4: a jump table with UseJtblForRodata tracks jtbl byte count
// separately from ordinary late-rodata accumulation.
func TestAnalyzer_JumpTableTracksJtblRodataSize(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1, UseJtblForRodata: true})
	fn, err := a.Analyze([]string{
		"glabel my_func",
		"jr $t0",
		".late_rodata",
		".word label1, label2, label3",
		".text",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 12, fn.JtblRodataSize)
}

func TestAnalyzer_DataRodataBssSizedByDirectiveByteCounts(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		".data",
		".word 1, 2",
		".rodata",
		".byte 1, 2, 3, 4, 5",
		".bss",
		".skip 16",
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 8, fn.Data[".data"].Size)
	assert.Equal(t, 5, fn.Data[".rodata"].Size)
	assert.Equal(t, 16, fn.Data[".bss"].Size)
}

func TestAnalyzer_RejectsTooFewInstructions(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 5})
	_, err := a.Analyze([]string{
		"glabel tiny",
		"nop",
	}, 0)
	assert.ErrorIs(t, err, ErrTooFewInstructions)
}

func TestAnalyzer_SkipInstrCountDiscountsPrefix(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 2, SkipInstrCount: 1})
	_, err := a.Analyze([]string{
		"glabel f",
		"nop",
		"nop",
		"nop",
	}, 0)
	assert.NoError(t, err)
}

func TestAnalyzer_RejectsDuplicateLabel(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	_, err := a.Analyze([]string{
		"glabel dup",
		"nop",
		"glabel dup",
		"nop",
	}, 0)
	assert.ErrorIs(t, err, ErrDuplicateLabel)
}

func TestAnalyzer_RejectsUnknownDirectiveInStrictMode(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	_, err := a.Analyze([]string{
		".some_bogus_directive",
	}, 0)
	assert.ErrorIs(t, err, ErrUnknownDirective)
}

func TestAnalyzer_PascalModeTolerantOfUnknownDirectives(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1, Pascal: true})
	_, err := a.Analyze([]string{
		".ent my_func",
		"nop",
		".end my_func",
	}, 0)
	assert.NoError(t, err)
}

func TestAnalyzer_AlignPadsCurrentSection(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		".data",
		".byte 1",
		".align 2",
		".byte 1",
	}, 0)
	require.NoError(t, err)
	// After the first .byte, size is 1; .align 2 pads to 4; the second
	// .byte adds 1 more -> 5.
	assert.Equal(t, 5, fn.Data[".data"].Size)
}

func TestAnalyzer_FnDescFallsBackToBlockLineWhenNoGlabel(t *testing.T) {
	a := NewAnalyzer(GlobalState{MinInstrCount: 1})
	fn, err := a.Analyze([]string{
		"nop",
	}, 41)
	require.NoError(t, err)
	assert.Equal(t, "block_42", fn.FnDesc)
}
