package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".ytnotes"

// Embedded defaults, written to .ytnotes/ on first run so users can edit them.
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/enrichment-prompt.md
var defaultEnrichmentPrompt string

//go:embed config/note-template.md
var defaultNoteTemplate string

// Settings is the YAML configuration structure. Credentials never live here;
// they come from the environment only.
type Settings struct {
	DataDir string `yaml:"data_directory"`

	Playlist struct {
		URL           string   `yaml:"url"`
		SubtitleLangs []string `yaml:"subtitle_langs"`
		DelaySeconds  float64  `yaml:"delay_seconds"`
	} `yaml:"playlist"`

	Enrichment struct {
		OpenAIModel  string  `yaml:"openai_model"`
		GeminiModel  string  `yaml:"gemini_model"`
		MaxTokens    int     `yaml:"max_tokens"`
		Temperature  float64 `yaml:"temperature"`
		DelaySeconds float64 `yaml:"delay_seconds"`
	} `yaml:"enrichment"`

	NotebookLM struct {
		APIURL              string  `yaml:"api_url"`
		NotebookName        string  `yaml:"notebook_name"`
		SourceDelaySeconds  float64 `yaml:"source_delay_seconds"`
		AudioTimeoutSeconds float64 `yaml:"audio_timeout_seconds"`
	} `yaml:"notebooklm"`

	Obsidian struct {
		VaultPath string `yaml:"vault_path"`
		Subfolder string `yaml:"subfolder"`
	} `yaml:"obsidian"`
}

// LoadSettings reads .ytnotes/settings.yaml (creating it from the embedded
// default on first run) and applies environment overrides.
func LoadSettings() (*Settings, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, fmt.Errorf("ensuring config files exist: %w", err)
	}

	data, err := os.ReadFile(getConfigPath("settings.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	settings := &Settings{}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	applyDefaults(settings)
	applyEnvOverrides(settings)
	return settings, nil
}

func applyDefaults(s *Settings) {
	if s.DataDir == "" {
		s.DataDir = "data"
	}
	if len(s.Playlist.SubtitleLangs) == 0 {
		s.Playlist.SubtitleLangs = []string{"el", "en", "en-US"}
	}
	if s.Playlist.DelaySeconds == 0 {
		s.Playlist.DelaySeconds = 3
	}
	if s.Enrichment.OpenAIModel == "" {
		s.Enrichment.OpenAIModel = "gpt-4o-mini"
	}
	if s.Enrichment.GeminiModel == "" {
		s.Enrichment.GeminiModel = "gemini-2.0-flash"
	}
	if s.Enrichment.MaxTokens == 0 {
		s.Enrichment.MaxTokens = 4000
	}
	if s.NotebookLM.NotebookName == "" {
		s.NotebookLM.NotebookName = "Greek Playlist Research"
	}
	if s.NotebookLM.SourceDelaySeconds == 0 {
		s.NotebookLM.SourceDelaySeconds = 3
	}
	if s.NotebookLM.AudioTimeoutSeconds == 0 {
		s.NotebookLM.AudioTimeoutSeconds = 1200
	}
	if s.Obsidian.Subfolder == "" {
		s.Obsidian.Subfolder = "YouTube Playlists"
	}
}

// applyEnvOverrides maps the environment surface onto settings. Environment
// wins over the YAML file for everything it names.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		s.DataDir = v
	}
	if v := os.Getenv("PLAYLIST_URL"); v != "" {
		s.Playlist.URL = v
	}
	if v, ok := envFloat("TRANSCRIPT_DELAY_SECONDS"); ok {
		s.Playlist.DelaySeconds = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		s.Enrichment.OpenAIModel = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		s.Enrichment.GeminiModel = v
	}
	if v, ok := envFloat("API_DELAY_SECONDS"); ok {
		s.Enrichment.DelaySeconds = v
	}
	if v := os.Getenv("NOTEBOOKLM_API_URL"); v != "" {
		s.NotebookLM.APIURL = v
	}
	if v := os.Getenv("NOTEBOOKLM_NOTEBOOK_NAME"); v != "" {
		s.NotebookLM.NotebookName = v
	}
	if v, ok := envFloat("NOTEBOOKLM_SOURCE_DELAY"); ok {
		s.NotebookLM.SourceDelaySeconds = v
	}
	if v, ok := envFloat("NOTEBOOKLM_AUDIO_TIMEOUT"); ok {
		s.NotebookLM.AudioTimeoutSeconds = v
	}
	if v := os.Getenv("OBSIDIAN_VAULT_PATH"); v != "" {
		s.Obsidian.VaultPath = v
	}
	if v := os.Getenv("OBSIDIAN_SUBFOLDER"); v != "" {
		s.Obsidian.Subfolder = v
	}
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// TranscriptDelay is the proactive inter-item sleep for the transcripts stage.
func (s *Settings) TranscriptDelay() time.Duration {
	return time.Duration(s.Playlist.DelaySeconds * float64(time.Second))
}

// SourceDelay is the sleep between NotebookLM source additions.
func (s *Settings) SourceDelay() time.Duration {
	return time.Duration(s.NotebookLM.SourceDelaySeconds * float64(time.Second))
}

// AudioTimeout bounds the audio overview completion wait.
func (s *Settings) AudioTimeout() time.Duration {
	return time.Duration(s.NotebookLM.AudioTimeoutSeconds * float64(time.Second))
}

// Data layout helpers. Disk presence under these directories is the
// authoritative resumability signal; the manifest is just an index.

func (s *Settings) ManifestPath() string { return filepath.Join(s.DataDir, "manifest.json") }
func (s *Settings) TranscriptsDir() string { return filepath.Join(s.DataDir, "transcripts") }
func (s *Settings) EnrichedDir() string { return filepath.Join(s.DataDir, "enriched") }
func (s *Settings) ArtifactsDir() string { return filepath.Join(s.DataDir, "notebooklm_outputs") }
func (s *Settings) RunReportPath() string { return filepath.Join(s.DataDir, "run_report.md") }
func (s *Settings) ErrorLogPath() string { return filepath.Join(s.DataDir, "errors.log") }
func (s *Settings) LocalExportDir() string { return filepath.Join(s.DataDir, "obsidian_export") }

func (s *Settings) TranscriptPath(videoID string) string {
	return filepath.Join(s.TranscriptsDir(), videoID+".json")
}

func (s *Settings) EnrichedPath(videoID string) string {
	return filepath.Join(s.EnrichedDir(), videoID+".json")
}

// VaultConfigured reports whether a real Obsidian vault path is set (not
// empty and not the .env.example placeholder).
func (s *Settings) VaultConfigured() bool {
	path := s.Obsidian.VaultPath
	if path == "" {
		return false
	}
	if strings.Contains(path, "yourname") {
		return false
	}
	return true
}

// NotesDir resolves where the obsidian stage writes: the configured vault, or
// a local export directory when no vault is set up.
func (s *Settings) NotesDir() string {
	if s.VaultConfigured() {
		return filepath.Join(s.Obsidian.VaultPath, s.Obsidian.Subfolder)
	}
	return filepath.Join(s.LocalExportDir(), s.Obsidian.Subfolder)
}

// getConfigPath returns the path to a config file in the .ytnotes directory.
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and default files if they
// don't exist.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaults := map[string]string{
		"settings.yaml":        defaultSettings,
		"enrichment-prompt.md": defaultEnrichmentPrompt,
		"note-template.md":     defaultNoteTemplate,
	}
	for name, content := range defaults {
		path := getConfigPath(name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("writing default %s: %w", name, err)
			}
		}
	}
	return nil
}

// EnrichmentPrompt returns the prompt template (user copy in .ytnotes/, or
// the embedded default).
func (s *Settings) EnrichmentPrompt() string {
	if content, err := os.ReadFile(getConfigPath("enrichment-prompt.md")); err == nil {
		return string(content)
	}
	return defaultEnrichmentPrompt
}

// NoteTemplate returns the Obsidian note template.
func (s *Settings) NoteTemplate() string {
	if content, err := os.ReadFile(getConfigPath("note-template.md")); err == nil {
		return string(content)
	}
	return defaultNoteTemplate
}
