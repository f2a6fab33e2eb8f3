package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute

	// Single bounded retry when YouTube itself throttles a subtitle fetch.
	subtitleRetryWait = 90 * time.Second
)

// ErrNoSubtitles means the video has no caption track in any accepted
// language. Item-level: the batch continues.
var ErrNoSubtitles = errors.New("no subtitles available")

// ErrYtdlpNotInstalled is a stage-level infrastructure error.
var ErrYtdlpNotInstalled = errors.New("yt-dlp is not installed or not on PATH")

// PlaylistEntry is one row of a flat playlist listing.
type PlaylistEntry struct {
	ID    string
	Title string
	URL   string
}

// PlaylistInfo is the playlist metadata plus its ordered entries.
type PlaylistInfo struct {
	Title   string
	Entries []PlaylistEntry
}

// VideoMetadata is the per-video detail fetched after a successful subtitle
// grab (listing alone doesn't carry it).
type VideoMetadata struct {
	Uploader   string
	Duration   int
	UploadDate string
}

// VideoSource is the playlist-data collaborator. The production
// implementation shells out to yt-dlp; tests substitute a fake.
type VideoSource interface {
	CheckInstalled(ctx context.Context) error
	Playlist(ctx context.Context, playlistURL string) (*PlaylistInfo, error)
	Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error)
	FetchTranscript(ctx context.Context, videoID, videoURL string) (string, error)
}

// YtdlpSource implements VideoSource using the yt-dlp executable.
type YtdlpSource struct {
	Path          string
	Timeout       time.Duration
	SubtitleLangs []string
	Logger        *slog.Logger

	// Sleep is swappable in tests; nil means time.Sleep.
	Sleep func(time.Duration)
}

// NewYtdlpSource returns a source with defaults suitable for production use.
func NewYtdlpSource(langs []string, logger *slog.Logger) *YtdlpSource {
	path := os.Getenv("YTDLP_PATH")
	if path == "" {
		path = defaultYtdlpPath
	}
	return &YtdlpSource{
		Path:          path,
		Timeout:       defaultYtdlpTimeout,
		SubtitleLangs: langs,
		Logger:        logger,
	}
}

// CheckInstalled verifies the yt-dlp binary is runnable. Called once per run
// so a missing binary surfaces as a stage-level error, not fifty item errors.
func (y *YtdlpSource) CheckInstalled(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, y.path(), "--version")
	if err := cmd.Run(); err != nil {
		return ErrYtdlpNotInstalled
	}
	return nil
}

// Playlist lists playlist entries without downloading anything.
func (y *YtdlpSource) Playlist(ctx context.Context, playlistURL string) (*PlaylistInfo, error) {
	stdout, err := y.run(ctx, "--flat-playlist", "-J", "--no-warnings", playlistURL)
	if err != nil {
		return nil, fmt.Errorf("listing playlist: %w", err)
	}
	return parsePlaylistJSON(stdout)
}

// Metadata fetches the full metadata document for one video.
func (y *YtdlpSource) Metadata(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	stdout, err := y.run(ctx, "-J", "--no-warnings", videoURL)
	if err != nil {
		return nil, fmt.Errorf("fetching video metadata: %w", err)
	}

	var doc struct {
		Uploader   string  `json:"uploader"`
		Duration   float64 `json:"duration"`
		UploadDate string  `json:"upload_date"`
	}
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return nil, fmt.Errorf("parsing video metadata: %w", err)
	}
	return &VideoMetadata{
		Uploader:   doc.Uploader,
		Duration:   int(doc.Duration),
		UploadDate: doc.UploadDate,
	}, nil
}

// FetchTranscript downloads a subtitle track for the video and returns it as
// cleaned plain text. Languages are tried one per invocation in configured
// order: multi-language fetches are what trip YouTube's 429s. A throttled
// attempt gets one retry after a fixed wait.
func (y *YtdlpSource) FetchTranscript(ctx context.Context, videoID, videoURL string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "ytnotes-subs-*")
	if err != nil {
		return "", fmt.Errorf("creating subtitle temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outTmpl := filepath.Join(tmpDir, videoID)
	sleep := y.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	got := false
	for _, lang := range y.langs() {
		for attempt := 0; attempt < 2; attempt++ {
			_, err := y.run(ctx,
				"--skip-download",
				"--write-subs",
				"--write-auto-subs",
				"--sub-langs", lang,
				"--sub-format", "vtt",
				"--no-warnings",
				"-o", outTmpl,
				videoURL,
			)
			if err != nil {
				if IsRateLimitError(err) && attempt == 0 {
					if y.Logger != nil {
						y.Logger.Warn("rate limited fetching subtitles, waiting before retry",
							"video_id", videoID, "lang", lang, "wait", subtitleRetryWait)
					}
					sleep(subtitleRetryWait)
					continue
				}
				break
			}
			if fileExists(outTmpl+"."+lang+".vtt") || fileExists(outTmpl+".vtt") {
				got = true
			}
			break
		}
		if got {
			break
		}
	}
	if !got {
		return "", ErrNoSubtitles
	}

	suffixes := make([]string, 0, len(y.langs())+1)
	for _, lang := range y.langs() {
		suffixes = append(suffixes, "."+lang+".vtt")
	}
	suffixes = append(suffixes, ".vtt")
	for _, suffix := range suffixes {
		raw, err := os.ReadFile(outTmpl + suffix)
		if err != nil {
			continue
		}
		text := CleanVTT(string(raw))
		if text == "" {
			return "", ErrNoSubtitles
		}
		return text, nil
	}
	return "", ErrNoSubtitles
}

func (y *YtdlpSource) run(ctx context.Context, args ...string) ([]byte, error) {
	timeout := y.Timeout
	if timeout == 0 {
		timeout = defaultYtdlpTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, y.path(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("yt-dlp timed out after %s", timeout)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func (y *YtdlpSource) path() string {
	if y.Path != "" {
		return y.Path
	}
	return defaultYtdlpPath
}

func (y *YtdlpSource) langs() []string {
	if len(y.SubtitleLangs) > 0 {
		return y.SubtitleLangs
	}
	return []string{"el", "en", "en-US"}
}

// ytdlpPlaylist mirrors yt-dlp's -J output for a playlist.
type ytdlpPlaylist struct {
	Title   string       `json:"title"`
	Entries []ytdlpEntry `json:"entries"`
}

type ytdlpEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// parsePlaylistJSON converts yt-dlp's playlist JSON into PlaylistInfo,
// resolving missing entry ids from watch URLs where possible. Entries that
// still have no id are kept: the transcripts stage records them as
// permanently failed instead of silently dropping them.
func parsePlaylistJSON(data []byte) (*PlaylistInfo, error) {
	var playlist ytdlpPlaylist
	if err := json.Unmarshal(data, &playlist); err != nil {
		return nil, fmt.Errorf("parsing playlist JSON: %w", err)
	}

	title := playlist.Title
	if title == "" {
		title = "YouTube Playlist"
	}

	info := &PlaylistInfo{Title: title, Entries: make([]PlaylistEntry, 0, len(playlist.Entries))}
	for _, entry := range playlist.Entries {
		id := entry.ID
		if id == "" {
			id = videoIDFromURL(entry.URL)
		}
		info.Entries = append(info.Entries, PlaylistEntry{ID: id, Title: entry.Title, URL: entry.URL})
	}
	return info, nil
}

// videoIDFromURL pulls the v= parameter out of a watch URL, tolerating extra
// query parameters.
func videoIDFromURL(rawURL string) string {
	_, after, found := strings.Cut(rawURL, "?v=")
	if !found {
		_, after, found = strings.Cut(rawURL, "&v=")
	}
	if !found {
		return ""
	}
	id, _, _ := strings.Cut(after, "&")
	return id
}

func watchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
