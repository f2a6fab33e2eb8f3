package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// runObsidian renders one markdown note per enriched video into the vault (or
// a local export directory when no vault is configured), copies the NotebookLM
// artifacts alongside them and writes a map-of-content index note.
func (p *Pipeline) runObsidian(manifest *Manifest, resume bool) error {
	outDir := p.settings.NotesDir()
	if !p.settings.VaultConfigured() {
		p.logger.Warn("obsidian vault not configured, exporting locally", "dir", outDir)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := p.exportArtifacts(outDir); err != nil {
		p.logger.Warn("copying notebooklm artifacts failed", "error", err)
	}

	noteTemplate := p.settings.NoteTemplate()
	indexByItem := make(map[*WorkItem]int, len(manifest.Videos))
	for i, item := range manifest.Videos {
		indexByItem[item] = i + 1
	}
	notePath := func(item *WorkItem) string {
		return filepath.Join(outDir, safeFilename(indexByItem[item], item.Title))
	}

	eligible := func(item *WorkItem) bool {
		if item.ID == "" || !fileExists(p.settings.EnrichedPath(item.ID)) {
			return false
		}
		return !(resume && fileExists(notePath(item)))
	}
	process := func(item *WorkItem) error {
		doc, err := readEnrichedDocument(p.settings.EnrichedPath(item.ID))
		if err != nil {
			return fmt.Errorf("read enriched: %w", err)
		}
		data := buildNoteData(&doc, manifest.PlaylistTitle, manifest.NotebookID)
		body, err := renderNote(noteTemplate, data)
		if err != nil {
			return err
		}
		return os.WriteFile(notePath(item), []byte(body), 0o644)
	}

	runner := &StageRunner{
		Name:     StageObsidian,
		Logger:   p.logger,
		Observer: p.observer("obsidian", CountEligible(manifest.Videos, eligible)),
		Sleep:    p.sleep,
	}
	runner.Run(manifest.Videos, eligible, process)

	if err := p.writeIndexNote(outDir, manifest, indexByItem, notePath); err != nil {
		return fmt.Errorf("writing index note: %w", err)
	}
	if err := SaveManifest(p.settings.ManifestPath(), manifest); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	p.logger.Info("obsidian export done", "dir", outDir)
	return nil
}

var exportedArtifacts = []string{"podcast.mp3", "mindmap.json", "quiz.json", "flashcards.json"}

// exportArtifacts copies whatever NotebookLM outputs exist into a notebooklm/
// subfolder of the vault and writes a note describing them.
func (p *Pipeline) exportArtifacts(outDir string) error {
	destDir := filepath.Join(outDir, "notebooklm")
	var copied []string
	for _, name := range exportedArtifacts {
		src := filepath.Join(p.settings.ArtifactsDir(), name)
		if !fileExists(src) {
			continue
		}
		if len(copied) == 0 {
			if err := os.MkdirAll(destDir, 0o755); err != nil {
				return err
			}
		}
		if err := copyFile(src, filepath.Join(destDir, name)); err != nil {
			return err
		}
		copied = append(copied, name)
	}
	if len(copied) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("# NotebookLM Artifacts\n\n")
	b.WriteString("Generated study material for this playlist:\n\n")
	for _, name := range copied {
		b.WriteString(fmt.Sprintf("- `notebooklm/%s`\n", name))
	}
	if outline := p.mindMapOutline(); outline != "" {
		b.WriteString("\n## Mind Map\n\n")
		b.WriteString(outline)
		b.WriteString("\n")
	}
	return os.WriteFile(filepath.Join(outDir, "NotebookLM Artifacts.md"), []byte(b.String()), 0o644)
}

func (p *Pipeline) mindMapOutline() string {
	data, err := os.ReadFile(filepath.Join(p.settings.ArtifactsDir(), "mindmap.json"))
	if err != nil {
		return ""
	}
	var root mindMapNode
	if err := json.Unmarshal(data, &root); err != nil {
		p.logger.Warn("mindmap.json is not parseable", "error", err)
		return ""
	}
	return mindMapToMarkdown(root, 0)
}

// writeIndexNote builds the "00 - Index.md" map of content listing every
// video in playlist order with its outcome.
func (p *Pipeline) writeIndexNote(outDir string, manifest *Manifest, indexByItem map[*WorkItem]int, notePath func(*WorkItem) string) error {
	var b strings.Builder
	title := manifest.PlaylistTitle
	if title == "" {
		title = "YouTube Playlist"
	}
	b.WriteString("# " + title + "\n\n")
	if manifest.PlaylistURL != "" {
		b.WriteString("Source: " + manifest.PlaylistURL + "\n\n")
	}
	if fileExists(filepath.Join(outDir, "NotebookLM Artifacts.md")) {
		b.WriteString("Study material: [[NotebookLM Artifacts]]\n\n")
	}
	b.WriteString("## Videos\n\n")
	for _, item := range manifest.Videos {
		idx := indexByItem[item]
		if item.ID != "" && fileExists(notePath(item)) {
			name := strings.TrimSuffix(filepath.Base(notePath(item)), ".md")
			b.WriteString(fmt.Sprintf("- ✅ [[%s|%d. %s]]\n", name, idx, item.Title))
			continue
		}
		reason := item.Reason
		if reason == "" {
			reason = "not processed"
		}
		b.WriteString(fmt.Sprintf("- ❌ %d. %s (%s)\n", idx, item.Title, reason))
	}
	return os.WriteFile(filepath.Join(outDir, "00 - Index.md"), []byte(b.String()), 0o644)
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
