package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/mcq-extractor/cmd/mcq-extractor/ui"
	"github.com/spherical/mcq-extractor/internal/config"
	"github.com/spherical/mcq-extractor/internal/observability"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "mcq-extractor",
	Short: "Extract multiple-choice questions from exam documents",
	Long: `mcq-extractor reads a PDF or Word exam, sends its pages or text to a
vision-capable language model, and collects every multiple-choice question
with its choices, correct answer and shared passage. Results are written
to a spreadsheet or served over HTTP for review and editing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.InitUI(noColor)
		ui.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the --config file (or CONFIG_PATH) with env overrides.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = configPathFromEnv()
	}
	return config.Load(path)
}

// newLogger builds the process logger. The CLI keeps the terminal for
// progress output, so below --verbose only warnings are logged.
func newLogger(cfg *config.Config, quiet bool) *observability.Logger {
	level := cfg.Observability.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "warn"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Observability.LogFormat,
	})
}
