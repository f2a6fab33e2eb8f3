package main

// VideoStatus is the rolling per-item outcome of the most recently run stage.
// There is deliberately no per-stage history: a later stage overwrites an
// earlier stage's status, so eligibility checks look at output files on disk,
// never at this field.
type VideoStatus string

const (
	StatusOK     VideoStatus = "ok"
	StatusFailed VideoStatus = "failed"
)

// WorkItem is one playlist video and its processing record.
type WorkItem struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	URL            string      `json:"url,omitempty"`
	Status         VideoStatus `json:"status,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	TranscriptPath string      `json:"transcript_path,omitempty"`
}

// Failed marks the item failed with a truncated reason.
func (w *WorkItem) Failed(reason string) {
	w.Status = StatusFailed
	w.Reason = truncateReason(reason)
}

// Succeeded marks the item ok and clears any previous failure reason.
func (w *WorkItem) Succeeded() {
	w.Status = StatusOK
	w.Reason = ""
}

// Manifest is the single source of truth for a pipeline run. Videos keep
// playlist order; stages after extraction mutate items in place but never
// reorder or delete them.
type Manifest struct {
	PlaylistURL   string      `json:"playlist_url"`
	PlaylistTitle string      `json:"playlist_title"`
	Videos        []*WorkItem `json:"videos"`
	NotebookID    string      `json:"notebooklm_notebook_id,omitempty"`
}

// CountByStatus returns the number of ok and failed videos.
func (m *Manifest) CountByStatus() (ok, failed int) {
	for _, v := range m.Videos {
		switch v.Status {
		case StatusOK:
			ok++
		case StatusFailed:
			failed++
		}
	}
	return ok, failed
}

// TranscriptDocument is the per-video artifact written by the transcripts
// stage. Later stages only ever add fields, so each stage's document is a
// superset of the previous one.
type TranscriptDocument struct {
	VideoID       string `json:"video_id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	Transcript    string `json:"transcript"`
	PlaylistTitle string `json:"playlist_title"`
	Uploader      string `json:"uploader"`
	Duration      int    `json:"duration"`
	UploadDate    string `json:"upload_date"`
}

// EnrichedDocument is the transcripts document plus the LLM output.
type EnrichedDocument struct {
	TranscriptDocument
	Sections map[string]string `json:"llm_sections"`
	Notes    string            `json:"llm_notes"`
}

const maxReasonLength = 200

func truncateReason(reason string) string {
	if r := []rune(reason); len(r) > maxReasonLength {
		return string(r[:maxReasonLength])
	}
	return reason
}
