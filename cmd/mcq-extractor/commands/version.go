package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/spherical/mcq-extractor/cmd/mcq-extractor/ui"
)

var (
	buildVersion = "dev"
	buildCommit  = "none"
)

// SetVersion records build information for the version command and /health.
func SetVersion(version, commit string) {
	buildVersion = version
	buildCommit = commit
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ui.Message("mcq-extractor version %s (commit %s, %s)", buildVersion, buildCommit, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
