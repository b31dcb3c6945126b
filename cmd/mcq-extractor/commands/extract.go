package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical/mcq-extractor/cmd/mcq-extractor/ui"
	"github.com/spherical/mcq-extractor/internal/document"
	"github.com/spherical/mcq-extractor/internal/domain"
	"github.com/spherical/mcq-extractor/internal/export"
	"github.com/spherical/mcq-extractor/internal/extract"
	"github.com/spherical/mcq-extractor/internal/store"
)

var (
	extractOutputPath string
	extractTextPath   string
	extractLanguage   string
	extractRefresh    bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Extract MCQs from a PDF or Word document",
	Long: `Extract every multiple-choice question from a PDF or DOCX exam and save
them as a spreadsheet. Press Ctrl-C once to stop after the requests in flight
and keep what was found so far; press it again to abort immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractOutputPath, "output", "o", "", "output path for the XLSX file (default <name>-mcqs.xlsx)")
	extractCmd.Flags().StringVar(&extractTextPath, "text", "", "also write a plain-text transcript to this path")
	extractCmd.Flags().StringVarP(&extractLanguage, "language", "l", "", "exam language hint (default from config, or auto)")
	extractCmd.Flags().BoolVar(&extractRefresh, "refresh", false, "clear cached model answers before extracting")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg, true)

	doc, err := document.LoadFile(inputPath, cfg.Upload.MaxBytes)
	if err != nil {
		return err
	}

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	language := extractLanguage
	if language == "" {
		language = cfg.LLM.Language
	}
	if extractOutputPath == "" {
		extractOutputPath = defaultOutputPath(inputPath, ".xlsx")
	}

	ui.Section("MCQ Extraction")
	ui.Info("Input file: %s (%s)", inputPath, doc.Kind)
	ui.Info("Model: %s", cfg.LLM.Model)
	ui.Info("Output file: %s", extractOutputPath)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if extractRefresh {
		if err := p.deps.Cache.Purge(ctx); err != nil {
			ui.Warning("Could not clear cache: %v", err)
		}
	}

	token := extract.NewCancelToken()
	stopSignals := watchInterrupts(token, cancel)
	defer stopSignals()

	records := store.New()
	svc := extract.NewService(p.deps.Rasterizer, p.deps.Converter, p.deps.Extractor, records, p.deps.Options, logger).
		WithCache(p.deps.Cache).
		WithPageCounter(p.deps.PageCounter)

	events := make(chan domain.StreamEvent, 64)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderProgress(events)
	}()

	summary, runErr := svc.Process(ctx, *doc, language, token, events)
	close(events)
	<-rendered

	if runErr != nil && records.Len() == 0 {
		return runErr
	}

	if err := writeOutputs(records.List()); err != nil {
		return err
	}

	printSummary(summary)

	switch {
	case runErr != nil:
		ui.Warning("Run stopped early: %v", runErr)
		return runErr
	case summary.Cancelled:
		ui.Warning("Cancelled. Partial results were saved.")
	case summary.FailedUnits > 0:
		ui.Warning("%d part(s) could not be extracted.", summary.FailedUnits)
	default:
		ui.Success("Extraction completed in %v", summary.Duration.Round(time.Second))
	}
	return nil
}

// watchInterrupts cancels cooperatively on the first signal and aborts on
// the second. The returned func stops watching.
func watchInterrupts(token *extract.CancelToken, abort context.CancelFunc) func() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigCh:
			token.Cancel()
			ui.Warning("Stopping after the requests in flight. Press Ctrl-C again to abort.")
		case <-done:
			return
		}
		select {
		case <-sigCh:
			abort()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

// renderProgress drives the spinner and progress bar from run events.
func renderProgress(events <-chan domain.StreamEvent) {
	spinner := ui.NewSpinner("Analyzing document...")
	spinner.Start()
	spinning := true
	var bar *ui.ProgressBar

	for ev := range events {
		st := ev.Status
		switch {
		case st.State == domain.StateExtracting && bar == nil:
			if spinning {
				spinner.Stop()
				spinning = false
			}
			bar = ui.NewProgressBar(int64(st.Total), "Extracting")
			bar.Set(int64(st.Current))
		case bar != nil:
			bar.Set(int64(st.Current))
			bar.Describe(fmt.Sprintf("Extracting (%d questions)", st.Records))
		case spinning && st.Message != "":
			spinner.UpdateMessage(st.Message)
		}

		if ev.Type == domain.EventUnitFailed {
			if label, ok := ev.Payload.(string); ok {
				ui.Warning("Failed: %s", label)
			}
		}
	}

	if spinning {
		spinner.Stop()
	}
	if bar != nil {
		bar.Finish()
	}
}

func writeOutputs(records []domain.MCQRecord) error {
	f, err := os.Create(extractOutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := export.WriteXLSX(f, records); err != nil {
		f.Close()
		return fmt.Errorf("write spreadsheet: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output file: %w", err)
	}
	ui.Info("Spreadsheet saved to: %s", extractOutputPath)

	if extractTextPath == "" {
		return nil
	}
	if err := os.WriteFile(extractTextPath, []byte(export.Text(records)), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	ui.Info("Transcript saved to: %s", extractTextPath)
	return nil
}

func printSummary(s domain.RunSummary) {
	ui.Table([]string{"Questions", "Parts", "Requests", "Failed", "Cached", "Duration"}, [][]string{{
		strconv.Itoa(s.Records),
		strconv.Itoa(s.Units),
		strconv.Itoa(s.Groups),
		strconv.Itoa(s.FailedUnits),
		strconv.Itoa(s.CacheHits),
		s.Duration.Round(time.Millisecond).String(),
	}})
}
