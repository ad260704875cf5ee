// Scout resolves selectors, executes browser test steps, and learns which
// selector strategies work for a given page over time. Run state and step
// results persist in SQLite so a run can be claimed, completed, and audited
// across process restarts; learned selectors and patterns persist as JSON
// files in the knowledge-base directory.
package main

import (
	"os"
	"runtime/debug"

	"github.com/dotcommander/scout/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
