// Command asmproc rewrites and splices MIPS inline assembly into a
// legacy C compiler's object files. See internal/cli for the command
// tree.
package main

import (
	"os"

	"github.com/Manu343726/asmproc/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
