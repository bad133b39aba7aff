// Package cli wires cobra flags into an internal/config.Config and
// dispatches to the pre-process or post-process phase, the way the
// teacher's cmd/cpu/compile.go binds flags in init() and hands a
// validated options struct to the package doing the real work.
package cli

import (
	"log/slog"
	"os"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"github.com/Manu343726/asmproc/internal/config"
	"github.com/Manu343726/asmproc/internal/diag"
	"github.com/Manu343726/asmproc/internal/encoding"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cfgFile         string
	postProcess     string
	assembler       string
	asmPrelude      string
	inputEnc        string
	outputEnc       string
	dropMdebugGptab bool
	convertStatics  string
	force           bool
	optO0           bool
	optO1           bool
	optO2           bool
	optG            bool
	optG3           bool
	mips1           bool
	pascalMode      bool
	framepointer    bool
	kpic            bool
	logFilePath     string
)

var errColor = color.New(color.FgRed, color.Bold)

// RootCmd is the single asmproc command: mode (pre- or post-process) is
// selected by whether --post-process was given, same as spec.md §6.
var RootCmd = &cobra.Command{
	Use:   "asmproc <file>",
	Short: "Splice hand-written MIPS assembly into a compiler's object file",
	Long: `asmproc rewrites inline GLOBAL_ASM blocks in a C source file into a
sidecar assembly file during pre-process, then splices the assembler's
real bytes, symbols, and relocations back into the compiler's object
file during post-process (--post-process).`,
	Args:          cobra.ExactArgs(1),
	RunE:          runRoot,
	SilenceErrors: true, // fail() already prints the one-line diag.Error diagnostic
	SilenceUsage:  true,
}

func init() {
	flags := RootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default $HOME/.asmproc.yaml)")
	flags.StringVar(&postProcess, "post-process", "", "post-process the given object file in place")
	flags.StringVar(&assembler, "assembler", "", "command used to assemble the sidecar .s")
	flags.StringVar(&asmPrelude, "asm-prelude", "", "file prepended to every emitted sidecar .s")
	flags.StringVar(&inputEnc, "input-enc", string(encoding.Latin1), "text encoding of the input C source")
	flags.StringVar(&outputEnc, "output-enc", string(encoding.Latin1), "text encoding of the rewritten C source")
	flags.BoolVar(&dropMdebugGptab, "drop-mdebug-gptab", false, "remove MIPS debug and gptab sections in post-process")
	flags.StringVar(&convertStatics, "convert-statics", string(config.StaticsNo), "no|local|global|global-with-filename")
	flags.BoolVar(&force, "force", false, "ignore checksum caching")
	flags.BoolVar(&optO0, "O0", false, "no optimization")
	flags.BoolVar(&optO1, "O1", false, "light optimization")
	flags.BoolVar(&optO2, "O2", false, "full optimization")
	flags.BoolVar(&optG, "g", false, "debug info")
	flags.BoolVar(&optG3, "g3", false, "extended debug info")
	flags.BoolVar(&mips1, "mips1", false, "emit MIPS1-compatible stubs")
	flags.BoolVar(&pascalMode, "pascal", false, "accept Pascal-origin source conventions")
	flags.BoolVar(&framepointer, "framepointer", false, "keep a frame pointer in generated stubs")
	flags.BoolVar(&kpic, "kpic", false, "accommodate PIC in generated stubs")
	flags.StringVar(&logFilePath, "log-file", "", "also log structured JSON diagnostics to this file")
}

// Execute runs the command tree, returning the process exit code.
func Execute() int {
	if err := RootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func optLevel() string {
	switch {
	case optG3:
		return "g3"
	case optG:
		return "g"
	case optO2:
		return "O2"
	case optO1:
		return "O1"
	case optO0:
		return "O0"
	default:
		return ""
	}
}

func buildConfig(inputPath string) *config.Config {
	return &config.Config{
		InputPath:       inputPath,
		PostProcess:     postProcess,
		Assembler:       assembler,
		AsmPrelude:      asmPrelude,
		InputEncoding:   encoding.Name(inputEnc),
		OutputEncoding:  encoding.Name(outputEnc),
		DropMdebugGptab: dropMdebugGptab,
		ConvertStatics:  config.StaticsMode(convertStatics),
		Force:           force,
		OptLevel:        optLevel(),
		LogFile:         logFilePath,
		AnalyzerState: asmscan.GlobalState{
			MinInstrCount:       1,
			UseJtblForRodata:    false,
			PreludeIfLateRodata: true,
			Mips1:               mips1,
			Pascal:              pascalMode,
			Framepointer:        framepointer,
			Kpic:                kpic,
		},
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg := buildConfig(args[0])

	var logOut *os.File
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fail(diag.New(diag.IO, err), nil)
		}
		defer f.Close()
		logOut = f
	}
	logger := diag.NewLogger(logOut)

	if err := config.LoadDefaults(cfg, cfgFile); err != nil {
		return fail(diag.New(diag.ConfigError, err), logger)
	}
	if err := cfg.Validate(); err != nil {
		return fail(diag.New(diag.ConfigError, err), logger)
	}

	var runErr error
	if cfg.PostProcess != "" {
		runErr = runPostProcess(cfg, logger)
	} else {
		runErr = runPreProcess(cfg, logger)
	}
	if runErr != nil {
		return fail(runErr, logger)
	}
	return nil
}

// fail logs the fatal error (when a logger is already available) and
// prints the one-line diagnostic the CLI's contract (spec.md §7)
// requires, in red when stdout is a TTY.
func fail(err error, logger *slog.Logger) error {
	if logger != nil {
		if de, ok := err.(*diag.Error); ok {
			diag.LogFatal(logger, de)
		}
	}
	errColor.Fprintln(os.Stderr, err.Error())
	return err
}
