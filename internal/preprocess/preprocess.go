// Package preprocess scans a C source file for GLOBAL_ASM blocks,
// drives internal/asmscan over each one, and produces a rewritten C
// file plus a sidecar assembly file ready for a real MIPS assembler.
package preprocess

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"go.uber.org/multierr"
)

// Status distinguishes the two successful outcomes the CLI handles
// differently: passthrough (no blocks found) and rewritten (blocks
// processed). A fatal error is reported through Run's error return.
type Status int

const (
	StatusPassthrough Status = iota
	StatusRewritten
)

// Result is everything one preprocess run produces.
type Result struct {
	Status        Status
	Source        string // rewritten C source
	Sidecar       string // sidecar .s contents; empty if Status == StatusPassthrough
	Functions     []asmscan.Function
	HasLateRodata bool
	// Includes lists every path loaded for a #pragma GLOBAL_ASM block,
	// including files reached through its recursive #include lines, for
	// build-dependency tracking.
	Includes []string
}

var (
	globalAsmCall   = regexp.MustCompile(`^(.*)GLOBAL_ASM\s*\(\s*"([^"]*)"\s*\)(.*)$`)
	globalAsmPragma = regexp.MustCompile(`^\s*#pragma\s+GLOBAL_ASM\s+"([^"]+)"\s*$`)
	maxIncludeDepth = 32
)

// Preprocessor runs the block-discovery and rewrite pass over one C
// source. It holds no state across files — one instance per Run call.
type Preprocessor struct {
	analyzer *asmscan.Analyzer
	loadFile func(path string) ([]string, error)
}

// New builds a Preprocessor bound to a GlobalState and a line-loading
// function (injected so tests don't need real files on disk for
// included-by-path GLOBAL_ASM bodies).
func New(state asmscan.GlobalState, loadFile func(path string) ([]string, error)) *Preprocessor {
	return &Preprocessor{analyzer: asmscan.NewAnalyzer(state), loadFile: loadFile}
}

// Run scans sourceLines (already split, one entry per input line) and
// produces the rewritten source and sidecar.
func (p *Preprocessor) Run(sourceLines []string) (Result, error) {
	var out strings.Builder
	var sidecar strings.Builder
	var functions []asmscan.Function
	var includes []string
	var errs error
	found := false

	for i := 0; i < len(sourceLines); i++ {
		lineNo := i + 1
		line := sourceLines[i]

		if m := globalAsmPragma.FindStringSubmatch(line); m != nil {
			found = true
			body, inc, err := p.loadIncluded(m[1], 0)
			includes = append(includes, inc...)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
				continue
			}
			fn, stub, err := p.processBlock(body, lineNo)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
				continue
			}
			functions = append(functions, fn)
			out.WriteString(stub)
			out.WriteByte('\n')
			p.emitSidecar(&sidecar, fn)
			continue
		}

		if m := globalAsmCall.FindStringSubmatch(line); m != nil {
			found = true
			body := splitInlineBody(m[2])
			fn, stub, err := p.processBlock(body, lineNo)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("line %d: %w", lineNo, err))
				continue
			}
			functions = append(functions, fn)
			out.WriteString(m[1])
			out.WriteString(stub)
			out.WriteString(m[3])
			out.WriteByte('\n')
			p.emitSidecar(&sidecar, fn)
			continue
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}

	if errs != nil {
		return Result{}, errs
	}

	if !found {
		return Result{Status: StatusPassthrough, Source: out.String(), Includes: includes}, nil
	}

	hasLateRodata := false
	for _, fn := range functions {
		if len(fn.LateRodataDummyBytes) > 0 {
			hasLateRodata = true
			break
		}
	}

	return Result{
		Status:        StatusRewritten,
		Source:        out.String(),
		Sidecar:       prelude(hasLateRodata) + sidecar.String(),
		Functions:     functions,
		HasLateRodata: hasLateRodata,
		Includes:      includes,
	}, nil
}

// processBlock feeds one block's lines to the analyzer and turns its
// Function into the C stub text to splice into the rewritten source.
func (p *Preprocessor) processBlock(lines []string, lineNo int) (asmscan.Function, string, error) {
	fn, err := p.analyzer.Analyze(lines, lineNo)
	if err != nil {
		return asmscan.Function{}, "", err
	}
	var b strings.Builder
	for _, sec := range orderedSections(fn.Data) {
		b.WriteString(fn.Data[sec].StubExpr)
		b.WriteByte(' ')
	}
	return fn, b.String(), nil
}

// orderedSections returns section keys in the fixed, deterministic
// order the splicer expects, so output doesn't depend on map iteration.
func orderedSections(data map[string]asmscan.SectionContribution) []string {
	order := []string{".text", ".data", ".rodata", ".bss", ".late_rodata"}
	out := make([]string, 0, len(data))
	for _, s := range order {
		if _, ok := data[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

func (p *Preprocessor) emitSidecar(w *strings.Builder, fn asmscan.Function) {
	w.WriteString(".set noat\n.set noreorder\n")
	for _, line := range fn.AsmConts {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if len(fn.LateRodataAsmConts) > 0 {
		w.WriteString(".section .late_rodata\n")
		for _, line := range fn.LateRodataAsmConts {
			w.WriteString(line)
			w.WriteByte('\n')
		}
	}
	w.WriteString(".set at\n.set reorder\n")
}

func prelude(hasLateRodata bool) string {
	if !hasLateRodata {
		return ""
	}
	return ".section .late_rodata\n.align 2\n"
}

// splitInlineBody turns the quoted string literal argument of an
// inline GLOBAL_ASM("line1\nline2") call into separate assembly lines,
// decoding the C-source "\n" escape the same way GLOBAL_ASM's original
// macro expansion does.
func splitInlineBody(quoted string) []string {
	decoded := strings.ReplaceAll(quoted, `\n`, "\n")
	decoded = strings.ReplaceAll(decoded, `\"`, `"`)
	return strings.Split(decoded, "\n")
}

// loadIncluded resolves a #pragma GLOBAL_ASM "path" reference (and,
// recursively, the #include lines inside the loaded file) to its line
// content, rejecting cycles past maxIncludeDepth. #include lines inside
// an inline GLOBAL_ASM("...") body are not expanded; the analyzer skips
// them like any other line starting with "#".
func (p *Preprocessor) loadIncluded(path string, depth int) ([]string, []string, error) {
	if depth > maxIncludeDepth {
		return nil, nil, fmt.Errorf("include depth exceeded at %q (possible cycle)", path)
	}
	lines, err := p.loadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading %q: %w", path, err)
	}

	var out []string
	includes := []string{path}
	includeDirective := regexp.MustCompile(`^\s*#include\s+"([^"]+)"\s*$`)
	for _, line := range lines {
		if m := includeDirective.FindStringSubmatch(line); m != nil {
			incPath := filepath.Join(filepath.Dir(path), m[1])
			nested, nestedIncludes, err := p.loadIncluded(incPath, depth+1)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, nested...)
			includes = append(includes, nestedIncludes...)
			continue
		}
		out = append(out, line)
	}
	return out, includes, nil
}

// SplitLines is a small bufio.Scanner-based helper so callers (the CLI
// and tests) don't each reimplement "read a file into lines".
func SplitLines(r interface{ Read([]byte) (int, error) }) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
