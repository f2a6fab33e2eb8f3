package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	resumeFlag bool
	onlyStage  string
	debugMode  bool
)

var rootCmd = &cobra.Command{
	Use:   "ytnotes",
	Short: "Turn a YouTube playlist into enriched Obsidian study notes",
	Long: `ytnotes runs a four stage pipeline over a YouTube playlist:
transcripts are extracted with yt-dlp, enriched into study notes by an LLM,
pushed into a NotebookLM notebook for audio/quiz/flashcard generation, and
finally published as markdown notes into an Obsidian vault.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline (all stages, or one with --only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if onlyStage != "" && !KnownStage(onlyStage) {
			return fmt.Errorf("unknown stage %q (valid: %s)", onlyStage, strings.Join(stageOrder, ", "))
		}
		settings, err := LoadSettings()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if err := os.MkdirAll(settings.DataDir, 0o755); err != nil {
			return err
		}
		logger, err := newLogger(settings.DataDir, debugMode)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		pipeline := NewPipeline(settings, logger)
		report := pipeline.Run(ctx, RunOptions{Resume: resumeFlag, Only: onlyStage})
		fmt.Println(report.SummaryTable())
		fmt.Printf("Report written to %s\n", settings.RunReportPath())
		if report.HasErrors() {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&resumeFlag, "resume", false, "Skip items whose output already exists on disk")
	runCmd.Flags().StringVar(&onlyStage, "only", "", "Run a single stage: transcripts, enrichment, notebooklm or obsidian")
	runCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
