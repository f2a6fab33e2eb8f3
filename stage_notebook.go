package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultArtifactTimeout = 10 * time.Minute

type artifactJob struct {
	kind     ArtifactKind
	filename string
	opts     ArtifactOptions
	timeout  time.Duration
}

// runNotebook pushes every successfully transcribed video into a NotebookLM
// notebook and generates the study artifacts. Each artifact is independent:
// one failing never blocks the others.
func (p *Pipeline) runNotebook(ctx context.Context, manifest *Manifest) error {
	var sourceURLs []string
	for _, item := range manifest.Videos {
		if item.Status == StatusOK && item.URL != "" {
			sourceURLs = append(sourceURLs, item.URL)
		}
	}
	existingID := os.Getenv("NOTEBOOKLM_NOTEBOOK_ID")
	if existingID == "" {
		existingID = manifest.NotebookID
	}
	if len(sourceURLs) == 0 && existingID == "" {
		p.logger.Warn("no successful videos and no existing notebook, skipping")
		return nil
	}

	svc, err := p.notebook()
	if err != nil {
		return err
	}

	notebookID := existingID
	if notebookID == "" {
		notebookID, err = svc.CreateNotebook(ctx, p.settings.NotebookLM.NotebookName)
		if err != nil {
			return fmt.Errorf("creating notebook: %w", err)
		}
		p.logger.Info("created notebook", "notebook_id", notebookID)

		observer := p.observer("notebooklm sources", len(sourceURLs))
		for _, url := range sourceURLs {
			observer.OnItemStart(url, url)
			err := svc.AddSource(ctx, notebookID, url)
			if err != nil {
				p.logger.Warn("adding source failed", "url", url, "error", err)
			}
			observer.OnItemDone(url, err)
			p.sleep(p.settings.SourceDelay())
		}
	} else {
		p.logger.Info("reusing existing notebook", "notebook_id", notebookID)
	}

	if err := os.MkdirAll(p.settings.ArtifactsDir(), 0o755); err != nil {
		return err
	}
	jobs := []artifactJob{
		{
			kind:     ArtifactAudio,
			filename: "podcast.mp3",
			opts:     ArtifactOptions{Instructions: "Create an engaging overview in English"},
			timeout:  p.settings.AudioTimeout(),
		},
		{kind: ArtifactMindMap, filename: "mindmap.json", timeout: defaultArtifactTimeout},
		{kind: ArtifactQuiz, filename: "quiz.json", opts: ArtifactOptions{Difficulty: "hard"}, timeout: defaultArtifactTimeout},
		{kind: ArtifactFlashcards, filename: "flashcards.json", opts: ArtifactOptions{Quantity: "more"}, timeout: defaultArtifactTimeout},
	}
	for _, job := range jobs {
		dest := filepath.Join(p.settings.ArtifactsDir(), job.filename)
		if err := p.generateArtifact(ctx, svc, notebookID, job, dest); err != nil {
			p.logger.Warn("artifact generation failed", "kind", string(job.kind), "error", err)
			continue
		}
		p.logger.Info("artifact ready", "kind", string(job.kind), "path", dest)
	}

	manifest.NotebookID = notebookID
	if err := SaveManifest(p.settings.ManifestPath(), manifest); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

func (p *Pipeline) generateArtifact(ctx context.Context, svc NotebookService, notebookID string, job artifactJob, dest string) error {
	taskID, err := svc.GenerateArtifact(ctx, notebookID, job.kind, job.opts)
	if err != nil {
		return err
	}
	if err := svc.WaitForCompletion(ctx, notebookID, taskID, job.timeout); err != nil {
		return err
	}
	return svc.DownloadArtifact(ctx, notebookID, job.kind, dest)
}
