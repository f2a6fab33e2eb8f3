package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// Stage names, in execution order. These are the values accepted by --only.
const (
	StageTranscripts = "transcripts"
	StageEnrichment  = "enrichment"
	StageNotebookLM  = "notebooklm"
	StageObsidian    = "obsidian"
)

var stageOrder = []string{StageTranscripts, StageEnrichment, StageNotebookLM, StageObsidian}

func KnownStage(name string) bool {
	for _, s := range stageOrder {
		if s == name {
			return true
		}
	}
	return false
}

type RunOptions struct {
	Resume bool
	Only   string
}

// StageError is an infrastructure-level failure attributed to one stage. It
// halts the stage sequence; item-level failures never become one.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline wires the four stages together. The service fields exist so tests
// can substitute fakes; NewPipeline fills in the real ones.
type Pipeline struct {
	settings       *Settings
	logger         *slog.Logger
	source         VideoSource
	notebook       func() (NotebookService, error)
	selectProvider func(*Settings) (Provider, error)
	observer       ObserverFactory
	sleep          func(time.Duration)
}

func NewPipeline(settings *Settings, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		settings: settings,
		logger:   logger,
		source:   NewYtdlpSource(settings.Playlist.SubtitleLangs, logger),
		notebook: func() (NotebookService, error) {
			return NewNotebookClient(settings)
		},
		selectProvider: SelectProvider,
		observer:       newConsoleProgress,
		sleep:          time.Sleep,
	}
}

// Run executes the stage sequence. A stage-level error stops the run; the
// report records it and is always written, so a failed run still leaves a
// readable trace in the data directory.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) *RunReport {
	report := NewRunReport(opts)
	p.logger.Info("starting run", "run_id", report.ID, "resume", opts.Resume, "only", opts.Only)

	if err := os.MkdirAll(p.settings.DataDir, 0o755); err != nil {
		report.AddError("run", err)
		report.Finish(nil)
		return report
	}
	lock := flock.New(filepath.Join(p.settings.DataDir, ".lock"))
	locked, err := lock.TryLock()
	if err == nil && !locked {
		err = errors.New("another run holds the data directory lock")
	}
	if err != nil {
		report.AddError("run", fmt.Errorf("acquiring data lock: %w", err))
		report.Finish(nil)
		return report
	}
	defer lock.Unlock()

	var manifest *Manifest
	needManifest := func() error {
		if manifest != nil {
			return nil
		}
		m, err := LoadManifest(p.settings.ManifestPath())
		if errors.Is(err, ErrManifestNotFound) {
			return fmt.Errorf("no manifest at %s, run the transcripts stage first", p.settings.ManifestPath())
		}
		if err != nil {
			return err
		}
		manifest = m
		return nil
	}

	stages := []struct {
		name string
		run  func() error
	}{
		{StageTranscripts, func() error {
			m, err := p.runTranscripts(ctx, opts.Resume)
			if m != nil {
				manifest = m
			}
			return err
		}},
		{StageEnrichment, func() error {
			if err := needManifest(); err != nil {
				return err
			}
			return p.runEnrichment(manifest, opts.Resume)
		}},
		{StageNotebookLM, func() error {
			if err := needManifest(); err != nil {
				return err
			}
			return p.runNotebook(ctx, manifest)
		}},
		{StageObsidian, func() error {
			if err := needManifest(); err != nil {
				return err
			}
			return p.runObsidian(manifest, opts.Resume)
		}},
	}
	for _, stage := range stages {
		if opts.Only != "" && opts.Only != stage.name {
			continue
		}
		report.StagesRun = append(report.StagesRun, stage.name)
		if err := stage.run(); err != nil {
			report.AddStageError(&StageError{Stage: stage.name, Err: err})
			p.logger.Error("stage failed", "stage", stage.name, "error", err)
			break
		}
	}

	if manifest == nil {
		manifest, _ = LoadManifest(p.settings.ManifestPath())
	}
	report.Finish(manifest)
	if err := os.WriteFile(p.settings.RunReportPath(), []byte(report.Markdown()), 0o644); err != nil {
		p.logger.Warn("writing run report failed", "error", err)
	}
	return report
}
