package main

import (
	"os"

	"github.com/spherical/mcq-extractor/cmd/mcq-extractor/commands"
	"github.com/spherical/mcq-extractor/cmd/mcq-extractor/ui"
)

var (
	version = "1.0.0"
	commit  = "none"
)

func main() {
	commands.SetVersion(version, commit)
	if err := commands.Execute(); err != nil {
		ui.Error("%v", err)
		os.Exit(1)
	}
}
