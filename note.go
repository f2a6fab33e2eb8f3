package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxFilenameTitleLength = 80

var (
	forbiddenPathChars = regexp.MustCompile(`[\\/*?:"<>|]`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
	nonSlugChars       = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	slugSeparators     = regexp.MustCompile(`[-\s]+`)
)

// safeFilename builds an index-prefixed note filename: "03 - Title Here.md".
// Path-hostile characters are stripped and the title is length-capped so the
// result survives every common filesystem.
func safeFilename(index int, title string) string {
	safe := forbiddenPathChars.ReplaceAllString(title, "")
	safe = strings.TrimSpace(whitespaceRun.ReplaceAllString(safe, " "))
	if r := []rune(safe); len(r) > maxFilenameTitleLength {
		safe = strings.TrimSpace(string(r[:maxFilenameTitleLength]))
	}
	return fmt.Sprintf("%02d - %s.md", index, safe)
}

// playlistSlug derives a tag-safe slug from the playlist title. Diacritics
// are folded first so heavily accented Greek titles produce stable tags.
func playlistSlug(playlistTitle string) string {
	folded := foldDiacritics(playlistTitle)
	slug := nonSlugChars.ReplaceAllString(folded, "")
	slug = slugSeparators.ReplaceAllString(slug, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))
	if slug == "" {
		return "playlist"
	}
	return slug
}

// foldDiacritics removes combining marks (NFD decompose, strip marks,
// recompose), leaving base letters intact.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return folded
}

// formatDuration renders seconds as m:ss for note frontmatter.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// NoteData feeds the Obsidian note template.
type NoteData struct {
	Title         string // quote-escaped for YAML frontmatter
	RawTitle      string
	PlaylistTitle string
	URL           string
	VideoID       string
	Uploader      string
	UploadDate    string
	Duration      string
	Processed     string
	NotebookID    string
	PlaylistSlug  string
	Notes         string
}

// buildNoteData assembles template data from an enriched document plus
// run-level context.
func buildNoteData(doc *EnrichedDocument, playlistTitle, notebookID string) NoteData {
	url := doc.URL
	if url == "" {
		url = watchURL(doc.VideoID)
	}
	return NoteData{
		Title:         yamlEscape(doc.Title),
		RawTitle:      doc.Title,
		PlaylistTitle: yamlEscape(playlistTitle),
		URL:           url,
		VideoID:       doc.VideoID,
		Uploader:      yamlEscape(doc.Uploader),
		UploadDate:    doc.UploadDate,
		Duration:      formatDuration(doc.Duration),
		Processed:     time.Now().Format("2006-01-02"),
		NotebookID:    notebookID,
		PlaylistSlug:  playlistSlug(playlistTitle),
		Notes:         doc.Notes,
	}
}

// renderNote executes the note template against the data.
func renderNote(templateText string, data NoteData) (string, error) {
	tmpl, err := template.New("note").Parse(templateText)
	if err != nil {
		return "", fmt.Errorf("parsing note template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing note template: %w", err)
	}
	return buf.String(), nil
}

func yamlEscape(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// mindMapNode mirrors the mindmap.json structure from NotebookLM.
type mindMapNode struct {
	Name     string        `json:"name"`
	Children []mindMapNode `json:"children"`
}

// mindMapToMarkdown turns the mind map tree into a nested markdown outline.
func mindMapToMarkdown(node mindMapNode, indent int) string {
	var lines []string
	if node.Name != "" {
		lines = append(lines, strings.Repeat("  ", indent)+"- "+node.Name)
	}
	for _, child := range node.Children {
		if rendered := mindMapToMarkdown(child, indent+1); rendered != "" {
			lines = append(lines, rendered)
		}
	}
	return strings.Join(lines, "\n")
}
