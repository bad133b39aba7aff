package fixup

import (
	"regexp"
	"strings"

	"github.com/Manu343726/asmproc/internal/config"
	"github.com/Manu343726/asmproc/internal/elfobj"
)

// StaticsMode controls how STB_LOCAL symbols from asmFile are
// renamed/exposed when merged into objFile's symbol table. It is an
// alias of config.StaticsMode so the CLI layer's flag value can be
// passed straight through to Options.ConvertStatics.
type StaticsMode = config.StaticsMode

const (
	StaticsNo                = config.StaticsNo
	StaticsLocal             = config.StaticsLocal
	StaticsGlobal            = config.StaticsGlobal
	StaticsGlobalWithFilename = config.StaticsGlobalWithFilename
)

var mangleInvalid = regexp.MustCompile(`[^A-Za-z0-9_]`)

// mangleFilename implements the resolved Open Question: the source
// basename (no directory, no extension) with every non-identifier byte
// replaced by '_', prefixed with '_' if the result would start with a
// digit.
func mangleFilename(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	mangled := mangleInvalid.ReplaceAllString(base, "_")
	if mangled == "" {
		return "_"
	}
	if mangled[0] >= '0' && mangled[0] <= '9' {
		mangled = "_" + mangled
	}
	return mangled
}

// convertStaticName applies one --convert-statics mode to a local
// symbol name from asmFile before it's merged into objFile's symtab.
func convertStaticName(name string, bind uint8, mode StaticsMode, sourceFilename string) (newName string, newBind uint8) {
	if bind != elfobj.STB_LOCAL {
		return name, bind
	}
	switch mode {
	case StaticsGlobal:
		return name, elfobj.STB_GLOBAL
	case StaticsGlobalWithFilename:
		return name + "_" + mangleFilename(sourceFilename), elfobj.STB_GLOBAL
	case StaticsLocal, StaticsNo, "":
		return name, bind
	default:
		return name, bind
	}
}
