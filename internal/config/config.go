// Package config defines the per-invocation Config that internal/cli
// fills from its flags; LoadDefaults overlays an optional
// ~/.asmproc.yaml file onto it once, at startup.
package config

import (
	"fmt"
	"os"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"github.com/Manu343726/asmproc/internal/encoding"
	"github.com/spf13/viper"
)

// StaticsMode controls how STB_LOCAL symbols from the assembler's
// object are renamed/exposed when merged into the compiler's object.
type StaticsMode string

const (
	StaticsNo                 StaticsMode = "no"
	StaticsLocal              StaticsMode = "local"
	StaticsGlobal             StaticsMode = "global"
	StaticsGlobalWithFilename StaticsMode = "global-with-filename"
)

// Config is the fully resolved, immutable per-invocation configuration.
// It is constructed once by internal/cli, which hands AnalyzerState to
// preprocess and the fixup-related fields to fixup — never stored as a
// package-level global (spec §9: "global state... is an explicit state object").
type Config struct {
	InputPath string

	PostProcess     string // object file path when in post-process mode
	Assembler       string
	AsmPrelude      string
	InputEncoding   encoding.Name
	OutputEncoding  encoding.Name
	DropMdebugGptab bool
	ConvertStatics  StaticsMode
	Force           bool

	OptLevel string // "O0", "O1", "O2", "g", "g3"

	AnalyzerState asmscan.GlobalState

	LogFile string
}

// Validate checks cross-flag invariants the CLI layer can't express as
// simple cobra flag constraints.
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("no input file given")
	}
	if c.PostProcess != "" && c.Assembler == "" && c.OptLevel == "" {
		return fmt.Errorf("--post-process requires --assembler or an -O/-g mode")
	}
	switch c.ConvertStatics {
	case StaticsNo, StaticsLocal, StaticsGlobal, StaticsGlobalWithFilename, "":
	default:
		return fmt.Errorf("unknown --convert-statics mode %q", c.ConvertStatics)
	}
	return nil
}

// LoadDefaults overlays values found in .asmproc.yaml (searched in the
// user's home directory, same pattern as the teacher's
// cmd/root.go:initConfig targeting .cucaracha) onto an already
// flag-populated Config, without overwriting any field the user
// explicitly set on the command line. cfgFile, when non-empty,
// overrides the search path entirely.
func LoadDefaults(c *Config, cfgFile string) error {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(".asmproc")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if c.Assembler == "" {
		c.Assembler = v.GetString("assembler")
	}
	if c.AsmPrelude == "" {
		c.AsmPrelude = v.GetString("asm-prelude")
	}
	return nil
}
