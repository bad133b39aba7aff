package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/Manu343726/asmproc/internal/asmscan"
	"github.com/Manu343726/asmproc/internal/config"
	"github.com/Manu343726/asmproc/internal/diag"
	"github.com/Manu343726/asmproc/internal/elfobj"
	"github.com/Manu343726/asmproc/internal/fixup"
	"gopkg.in/yaml.v3"
)

// objectPath is where the assembler is told to write the sidecar's
// compiled object, next to the sidecar itself.
func objectPath(inputPath string) string {
	return sidecarPath(inputPath) + ".o"
}

// runAssembler shells out to the user-supplied assembler command,
// appending the sidecar path and an explicit -o output path. The
// assembler invocation itself is an external collaborator (spec §1);
// asmproc only needs to run it and read back its output object.
func runAssembler(cmdline, sidecarFile, outFile string) error {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return fmt.Errorf("empty --assembler command")
	}
	args := append(fields[1:], sidecarFile, "-o", outFile)
	cmd := exec.Command(fields[0], args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("assembler command %q: %w", cmdline, err)
	}
	return nil
}

// runPostProcess splices the assembler's object (produced from the
// sidecar left by an earlier runPreProcess) into the compiler's object
// at cfg.PostProcess, in place.
func runPostProcess(cfg *config.Config, logger *slog.Logger) error {
	yamlBytes, err := os.ReadFile(functionsPath(cfg.InputPath))
	if err != nil {
		return diag.New(diag.IO, err)
	}
	var functions []asmscan.Function
	if err := yaml.Unmarshal(yamlBytes, &functions); err != nil {
		return diag.New(diag.IO, err)
	}

	objRaw, err := os.ReadFile(cfg.PostProcess)
	if err != nil {
		return diag.New(diag.IO, err)
	}
	objFile, err := elfobj.Parse(objRaw)
	if err != nil {
		return diag.New(diag.ParseElf, err)
	}

	asmObjPath := objectPath(cfg.InputPath)
	if cfg.Assembler != "" {
		if err := runAssembler(cfg.Assembler, sidecarPath(cfg.InputPath), asmObjPath); err != nil {
			return diag.New(diag.IO, err)
		}
	}
	asmRaw, err := os.ReadFile(asmObjPath)
	if err != nil {
		return diag.New(diag.IO, err)
	}
	asmFile, err := elfobj.Parse(asmRaw)
	if err != nil {
		return diag.New(diag.ParseElf, err)
	}

	out, err := fixup.Run(objFile, asmFile, functions, fixup.Options{
		DropMdebugGptab: cfg.DropMdebugGptab,
		ConvertStatics:  cfg.ConvertStatics,
		SourceFilename:  cfg.InputPath,
	})
	if err != nil {
		return diag.New(diag.InvalidElf, err)
	}

	outBytes, err := out.Write()
	if err != nil {
		return diag.New(diag.IO, err)
	}
	if err := writeFileAtomic(cfg.PostProcess, outBytes, 0o644); err != nil {
		return diag.New(diag.IO, err)
	}

	logger.Info("post-processed object",
		slog.String("file", cfg.PostProcess),
		slog.Int("functions", len(functions)),
	)
	return nil
}
