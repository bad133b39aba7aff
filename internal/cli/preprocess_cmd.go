package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Manu343726/asmproc/internal/config"
	"github.com/Manu343726/asmproc/internal/diag"
	"github.com/Manu343726/asmproc/internal/encoding"
	"github.com/Manu343726/asmproc/internal/preprocess"
	"gopkg.in/yaml.v3"
)

// sidecarPath derives the companion assembly file path for a C source
// path: same directory and base name, .s extension.
func sidecarPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".s"
}

// functionsPath is where the preprocessor's Function list is recorded
// so a later, separate --post-process invocation can reload it without
// re-scanning (possibly since-edited) source.
func functionsPath(inputPath string) string {
	return inputPath + ".asmproc.yaml"
}

func cachePath(inputPath string) string {
	return inputPath + ".asmproc.cache"
}

// cacheKey folds every flag that influences the rewritten output into
// the digest input, so a flag change invalidates the cache the same as
// a source edit would.
func cacheKey(cfg *config.Config) string {
	return fmt.Sprintf("%+v|%s|%s|%s", cfg.AnalyzerState, cfg.InputEncoding, cfg.OutputEncoding, cfg.OptLevel)
}

func loadIncludedFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(raw), "\n"), nil
}

// runPreProcess scans cfg.InputPath for GLOBAL_ASM blocks and, when any
// are found, rewrites the source in place and emits the sidecar .s and
// the Function list consumed by a later runPostProcess.
func runPreProcess(cfg *config.Config, logger *slog.Logger) error {
	raw, err := os.ReadFile(cfg.InputPath)
	if err != nil {
		return diag.New(diag.IO, err)
	}

	digest := preprocess.Digest(raw, cacheKey(cfg))
	cache := preprocess.NewCache()
	cp := cachePath(cfg.InputPath)
	if !cfg.Force {
		if prev, err := os.ReadFile(cp); err == nil {
			cache.Seed(cfg.InputPath, strings.TrimSpace(string(prev)))
		}
		if cache.UpToDate(cfg.InputPath, digest) {
			logger.Info("preprocess up to date, skipping", slog.String("file", cfg.InputPath))
			return nil
		}
	}

	source, err := encoding.Decode(raw, cfg.InputEncoding)
	if err != nil {
		return diag.New(diag.IO, err)
	}

	pp := preprocess.New(cfg.AnalyzerState, loadIncludedFile)
	result, err := pp.Run(strings.Split(source, "\n"))
	if err != nil {
		return diag.New(diag.AsmSyntax, err)
	}

	if result.Status == preprocess.StatusRewritten {
		outBytes, err := encoding.Encode(result.Source, cfg.OutputEncoding)
		if err != nil {
			return diag.New(diag.IO, err)
		}
		if err := writeFileAtomic(cfg.InputPath, outBytes, 0o644); err != nil {
			return diag.New(diag.IO, err)
		}

		sidecar := result.Sidecar
		if cfg.AsmPrelude != "" {
			prelude, err := os.ReadFile(cfg.AsmPrelude)
			if err != nil {
				return diag.New(diag.IO, err)
			}
			sidecar = string(prelude) + "\n" + sidecar
		}
		if err := writeFileAtomic(sidecarPath(cfg.InputPath), []byte(sidecar), 0o644); err != nil {
			return diag.New(diag.IO, err)
		}

		yamlBytes, err := yaml.Marshal(result.Functions)
		if err != nil {
			return diag.New(diag.IO, err)
		}
		if err := writeFileAtomic(functionsPath(cfg.InputPath), yamlBytes, 0o644); err != nil {
			return diag.New(diag.IO, err)
		}

		logger.Info("rewrote GLOBAL_ASM blocks",
			slog.String("file", cfg.InputPath),
			slog.Int("functions", len(result.Functions)),
			slog.Bool("late_rodata", result.HasLateRodata),
		)
	} else {
		logger.Info("no GLOBAL_ASM blocks found", slog.String("file", cfg.InputPath))
	}

	if err := os.WriteFile(cp, []byte(digest), 0o644); err != nil {
		return diag.New(diag.IO, err)
	}
	return nil
}
