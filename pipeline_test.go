package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	info        *PlaylistInfo
	transcripts map[string]string
	fetched     []string
}

func (f *fakeSource) CheckInstalled(ctx context.Context) error { return nil }

func (f *fakeSource) Playlist(ctx context.Context, playlistURL string) (*PlaylistInfo, error) {
	return f.info, nil
}

func (f *fakeSource) Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	return &VideoMetadata{Uploader: "Channel", Duration: 90, UploadDate: "20240101"}, nil
}

func (f *fakeSource) FetchTranscript(ctx context.Context, videoID, videoURL string) (string, error) {
	f.fetched = append(f.fetched, videoID)
	text, ok := f.transcripts[videoID]
	if !ok {
		return "", ErrNoSubtitles
	}
	return text, nil
}

type fakeProvider struct{}

func (fakeProvider) Name() string                { return "fake" }
func (fakeProvider) Model() string               { return "fake-model" }
func (fakeProvider) DefaultDelay() time.Duration { return 0 }
func (fakeProvider) Complete(prompt string) (string, error) {
	return "## Summary\nGenerated notes.\n\n## Key Ideas\n- one", nil
}

type fakeNotebook struct {
	sources []string
}

func (f *fakeNotebook) CreateNotebook(ctx context.Context, name string) (string, error) {
	return "nb-test", nil
}

func (f *fakeNotebook) AddSource(ctx context.Context, notebookID, sourceURL string) error {
	f.sources = append(f.sources, sourceURL)
	return nil
}

func (f *fakeNotebook) GenerateArtifact(ctx context.Context, notebookID string, kind ArtifactKind, opts ArtifactOptions) (string, error) {
	return "task-" + string(kind), nil
}

func (f *fakeNotebook) WaitForCompletion(ctx context.Context, notebookID, taskID string, timeout time.Duration) error {
	return nil
}

func (f *fakeNotebook) DownloadArtifact(ctx context.Context, notebookID string, kind ArtifactKind, destPath string) error {
	return os.WriteFile(destPath, []byte("artifact "+string(kind)), 0o644)
}

func testPipeline(t *testing.T, source *fakeSource) (*Pipeline, *Settings) {
	t.Helper()
	settings := testSettings()
	settings.DataDir = filepath.Join(t.TempDir(), "data")
	settings.Playlist.URL = "https://www.youtube.com/playlist?list=PLx"
	settings.Playlist.DelaySeconds = 0

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Pipeline{
		settings: settings,
		logger:   logger,
		source:   source,
		notebook: func() (NotebookService, error) { return &fakeNotebook{}, nil },
		selectProvider: func(*Settings) (Provider, error) {
			return fakeProvider{}, nil
		},
		observer: func(string, int) ProgressObserver { return nopProgress{} },
		sleep:    func(time.Duration) {},
	}, settings
}

func TestPipelineFullRun(t *testing.T) {
	source := &fakeSource{
		info: &PlaylistInfo{
			Title: "Greek Course",
			Entries: []PlaylistEntry{
				{ID: "vid1", Title: "Lesson 1", URL: "https://www.youtube.com/watch?v=vid1"},
				{ID: "vid2", Title: "Lesson 2", URL: "https://www.youtube.com/watch?v=vid2"},
			},
		},
		transcripts: map[string]string{
			"vid1": "Καλημέρα σε όλους",
			// vid2 has no subtitles
		},
	}
	pipeline, settings := testPipeline(t, source)

	report := pipeline.Run(context.Background(), RunOptions{})
	if report.HasErrors() {
		t.Fatalf("unexpected stage errors: %+v", report.Errors)
	}
	if len(report.StagesRun) != 4 {
		t.Errorf("expected 4 stages run, got %v", report.StagesRun)
	}

	manifest, err := LoadManifest(settings.ManifestPath())
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if manifest.NotebookID != "nb-test" {
		t.Errorf("notebook id not recorded, got %q", manifest.NotebookID)
	}
	ok, failed := manifest.CountByStatus()
	if ok != 1 || failed != 1 {
		t.Errorf("expected 1 ok / 1 failed, got %d / %d", ok, failed)
	}
	if manifest.Videos[1].Reason != "no_subtitles" {
		t.Errorf("vid2 reason: got %q", manifest.Videos[1].Reason)
	}

	if !fileExists(settings.TranscriptPath("vid1")) {
		t.Error("transcript file missing")
	}
	if !fileExists(settings.EnrichedPath("vid1")) {
		t.Error("enriched file missing")
	}
	notesDir := settings.NotesDir()
	if !fileExists(filepath.Join(notesDir, "01 - Lesson 1.md")) {
		t.Error("note for vid1 missing")
	}
	if fileExists(filepath.Join(notesDir, "02 - Lesson 2.md")) {
		t.Error("failed video must not get a note")
	}
	index, err := os.ReadFile(filepath.Join(notesDir, "00 - Index.md"))
	if err != nil {
		t.Fatalf("index note missing: %v", err)
	}
	if !strings.Contains(string(index), "Lesson 1") || !strings.Contains(string(index), "no_subtitles") {
		t.Errorf("index note incomplete:\n%s", index)
	}
	if !fileExists(settings.RunReportPath()) {
		t.Error("run report not written")
	}
}

func TestPipelineOnlyStageWithoutManifest(t *testing.T) {
	pipeline, _ := testPipeline(t, &fakeSource{})

	report := pipeline.Run(context.Background(), RunOptions{Only: StageEnrichment})
	if !report.HasErrors() {
		t.Fatal("expected a configuration error without a manifest")
	}
	if report.Errors[0].Stage != StageEnrichment {
		t.Errorf("error attributed to %q", report.Errors[0].Stage)
	}
	if !strings.Contains(report.Errors[0].Message, "manifest") {
		t.Errorf("error should mention the missing manifest: %q", report.Errors[0].Message)
	}
}

func TestPipelineStageErrorHaltsRun(t *testing.T) {
	pipeline, settings := testPipeline(t, &fakeSource{})
	settings.Playlist.URL = ""

	report := pipeline.Run(context.Background(), RunOptions{})
	if !report.HasErrors() {
		t.Fatal("expected an error for a missing playlist URL")
	}
	if report.Errors[0].Stage != StageTranscripts {
		t.Errorf("error stage: got %q", report.Errors[0].Stage)
	}
	if len(report.StagesRun) != 1 {
		t.Errorf("later stages must not run after a stage error, ran %v", report.StagesRun)
	}
	if !fileExists(settings.RunReportPath()) {
		t.Error("report must be written even for failed runs")
	}
}

func TestStageErrorWrapsCause(t *testing.T) {
	cause := errors.New("credentials missing")
	err := &StageError{Stage: StageEnrichment, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("StageError must unwrap to its cause")
	}
	if !strings.Contains(err.Error(), StageEnrichment) {
		t.Errorf("message must name the stage: %q", err.Error())
	}

	report := NewRunReport(RunOptions{})
	report.AddStageError(err)
	if report.Errors[0].Stage != StageEnrichment || report.Errors[0].Message != "credentials missing" {
		t.Errorf("recorded error: %+v", report.Errors[0])
	}
}

func TestPipelineResumeSkipsExistingTranscripts(t *testing.T) {
	source := &fakeSource{
		info: &PlaylistInfo{
			Title: "Greek Course",
			Entries: []PlaylistEntry{
				{ID: "vid1", Title: "Lesson 1", URL: "https://www.youtube.com/watch?v=vid1"},
				{ID: "vid2", Title: "Lesson 2", URL: "https://www.youtube.com/watch?v=vid2"},
			},
		},
		transcripts: map[string]string{"vid1": "text one", "vid2": "text two"},
	}
	pipeline, settings := testPipeline(t, source)

	// Seed vid1's transcript as if a previous run wrote it.
	if err := os.MkdirAll(settings.TranscriptsDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	seeded := TranscriptDocument{VideoID: "vid1", Title: "Lesson 1", Transcript: "from previous run"}
	if err := writeJSONFile(settings.TranscriptPath("vid1"), seeded); err != nil {
		t.Fatal(err)
	}

	report := pipeline.Run(context.Background(), RunOptions{Resume: true, Only: StageTranscripts})
	if report.HasErrors() {
		t.Fatalf("unexpected errors: %+v", report.Errors)
	}
	if len(source.fetched) != 1 || source.fetched[0] != "vid2" {
		t.Errorf("expected only vid2 fetched on resume, got %v", source.fetched)
	}

	manifest, err := LoadManifest(settings.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Videos[0].Status != StatusOK {
		t.Errorf("resumed vid1 should be verified ok, got %q", manifest.Videos[0].Status)
	}
}

func TestPipelineResumeMarksCorruptTranscript(t *testing.T) {
	source := &fakeSource{
		info: &PlaylistInfo{
			Title: "Greek Course",
			Entries: []PlaylistEntry{
				{ID: "vid1", Title: "Lesson 1", URL: "https://www.youtube.com/watch?v=vid1"},
				{ID: "vid2", Title: "Lesson 2", URL: "https://www.youtube.com/watch?v=vid2"},
			},
		},
		transcripts: map[string]string{"vid1": "text one", "vid2": "text two"},
	}
	pipeline, settings := testPipeline(t, source)

	// A half-written file from an interrupted run.
	if err := os.MkdirAll(settings.TranscriptsDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(settings.TranscriptPath("vid1"), []byte(`{"video_id": "vid1", "trunc`), 0o644); err != nil {
		t.Fatal(err)
	}

	report := pipeline.Run(context.Background(), RunOptions{Resume: true, Only: StageTranscripts})
	if report.HasErrors() {
		t.Fatalf("a corrupt item file must not fail the stage: %+v", report.Errors)
	}

	manifest, err := LoadManifest(settings.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if manifest.Videos[0].Status != StatusFailed {
		t.Fatalf("vid1 should be failed, got %q", manifest.Videos[0].Status)
	}
	if manifest.Videos[0].Reason != "resume_read_error" {
		t.Errorf("vid1 reason: got %q", manifest.Videos[0].Reason)
	}
	if manifest.Videos[1].Status != StatusOK {
		t.Errorf("vid2 must still be processed, got %q", manifest.Videos[1].Status)
	}
	if len(source.fetched) != 1 || source.fetched[0] != "vid2" {
		t.Errorf("corrupt existing file must not be refetched on resume, got %v", source.fetched)
	}
}
