package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// runTranscripts lists the configured playlist, fetches subtitles for every
// video and writes one transcript document per video under data/transcripts/.
// Returns the manifest it built so later stages can run in the same process.
func (p *Pipeline) runTranscripts(ctx context.Context, resume bool) (*Manifest, error) {
	playlistURL := strings.TrimSpace(p.settings.Playlist.URL)
	if playlistURL == "" {
		return nil, errors.New("playlist URL is not configured (set PLAYLIST_URL or playlist.url in settings.yaml)")
	}
	if err := p.source.CheckInstalled(ctx); err != nil {
		return nil, err
	}

	p.logger.Info("listing playlist", "url", playlistURL)
	info, err := p.source.Playlist(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("listing playlist: %w", err)
	}
	if err := os.MkdirAll(p.settings.TranscriptsDir(), 0o755); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		PlaylistURL:   playlistURL,
		PlaylistTitle: info.Title,
	}
	for _, entry := range info.Entries {
		if entry.ID == "" {
			item := &WorkItem{Title: "?"}
			item.Failed("no_id")
			manifest.Videos = append(manifest.Videos, item)
			continue
		}
		title := entry.Title
		if title == "" {
			title = "Unknown"
		}
		url := entry.URL
		if url == "" {
			url = watchURL(entry.ID)
		}
		manifest.Videos = append(manifest.Videos, &WorkItem{ID: entry.ID, Title: title, URL: url})
	}

	// On resume, videos whose transcript is already on disk are verified by
	// reading the file back rather than trusting the previous run's status.
	if resume {
		for _, item := range manifest.Videos {
			if item.ID == "" || !fileExists(p.settings.TranscriptPath(item.ID)) {
				continue
			}
			path := p.settings.TranscriptPath(item.ID)
			if _, err := readTranscriptDocument(path); err != nil {
				item.Failed("resume_read_error")
				p.logger.Warn("existing transcript unreadable", "video_id", item.ID, "error", err)
				continue
			}
			item.TranscriptPath = path
			item.Succeeded()
		}
	}

	eligible := func(item *WorkItem) bool {
		if item.ID == "" {
			return false
		}
		return !(resume && fileExists(p.settings.TranscriptPath(item.ID)))
	}
	process := func(item *WorkItem) error {
		text, err := p.source.FetchTranscript(ctx, item.ID, item.URL)
		if err != nil {
			if errors.Is(err, ErrNoSubtitles) {
				return errors.New("no_subtitles")
			}
			return err
		}
		doc := TranscriptDocument{
			VideoID:       item.ID,
			Title:         item.Title,
			URL:           item.URL,
			Transcript:    text,
			PlaylistTitle: manifest.PlaylistTitle,
		}
		// Metadata enriches the eventual note but is never worth failing the
		// item over.
		if meta, err := p.source.Metadata(ctx, item.URL); err != nil {
			p.logger.Warn("metadata fetch failed", "video_id", item.ID, "error", err)
		} else {
			doc.Uploader = meta.Uploader
			doc.Duration = meta.Duration
			doc.UploadDate = meta.UploadDate
		}
		path := p.settings.TranscriptPath(item.ID)
		if err := writeJSONFile(path, doc); err != nil {
			return fmt.Errorf("writing transcript: %w", err)
		}
		item.TranscriptPath = path
		return nil
	}

	runner := &StageRunner{
		Name:     StageTranscripts,
		Delay:    p.settings.TranscriptDelay(),
		Logger:   p.logger,
		Observer: p.observer("transcripts", CountEligible(manifest.Videos, eligible)),
		Sleep:    p.sleep,
	}
	runner.Run(manifest.Videos, eligible, process)

	if err := SaveManifest(p.settings.ManifestPath(), manifest); err != nil {
		return manifest, fmt.Errorf("saving manifest: %w", err)
	}
	ok, failed := manifest.CountByStatus()
	p.logger.Info("transcripts done", "ok", ok, "failed", failed, "total", len(manifest.Videos))
	return manifest, nil
}

func readTranscriptDocument(path string) (TranscriptDocument, error) {
	var doc TranscriptDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
