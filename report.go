package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// RunReport summarizes one pipeline invocation. It is rendered to
// data/run_report.md after every run, including failed ones.
type RunReport struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration
	Resume    bool
	Only      string

	StagesRun []string
	Errors    []ReportError

	TotalVideos int
	OKVideos    int
	Failed      []FailedItem
}

type ReportError struct {
	Stage   string
	Message string
}

type FailedItem struct {
	ID     string
	Title  string
	Reason string
}

func NewRunReport(opts RunOptions) *RunReport {
	return &RunReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Resume:    opts.Resume,
		Only:      opts.Only,
	}
}

func (r *RunReport) AddError(stage string, err error) {
	r.Errors = append(r.Errors, ReportError{Stage: stage, Message: err.Error()})
}

// AddStageError records a halted stage. The underlying cause is reported, not
// the wrapper, since the stage name has its own column.
func (r *RunReport) AddStageError(err *StageError) {
	r.AddError(err.Stage, err.Err)
}

func (r *RunReport) HasErrors() bool { return len(r.Errors) > 0 }

// Finish tallies the manifest into the report. A nil manifest is fine: a run
// can fail before one exists.
func (r *RunReport) Finish(manifest *Manifest) {
	r.Duration = time.Since(r.StartedAt).Round(time.Second)
	if manifest == nil {
		return
	}
	r.TotalVideos = len(manifest.Videos)
	ok, _ := manifest.CountByStatus()
	r.OKVideos = ok
	for _, item := range manifest.Videos {
		if item.Status == StatusFailed {
			r.Failed = append(r.Failed, FailedItem{ID: item.ID, Title: item.Title, Reason: item.Reason})
		}
	}
}

// Markdown renders the report document written to the data directory.
func (r *RunReport) Markdown() string {
	var b strings.Builder
	b.WriteString("# Pipeline Run Report\n\n")
	b.WriteString(fmt.Sprintf("- Run ID: `%s`\n", r.ID))
	b.WriteString(fmt.Sprintf("- Started: %s\n", r.StartedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- Duration: %s\n", r.Duration))
	b.WriteString(fmt.Sprintf("- Resume: %t\n", r.Resume))
	if r.Only != "" {
		b.WriteString(fmt.Sprintf("- Only stage: %s\n", r.Only))
	}
	b.WriteString(fmt.Sprintf("- Stages run: %s\n", strings.Join(r.StagesRun, ", ")))
	b.WriteString("\n## Videos\n\n")
	b.WriteString(fmt.Sprintf("- Total: %d\n", r.TotalVideos))
	b.WriteString(fmt.Sprintf("- OK: %d\n", r.OKVideos))
	b.WriteString(fmt.Sprintf("- Failed: %d\n", len(r.Failed)))
	if len(r.Failed) > 0 {
		b.WriteString("\n| Video | Title | Reason |\n|---|---|---|\n")
		for _, item := range r.Failed {
			b.WriteString(fmt.Sprintf("| %s | %s | %s |\n", item.ID, item.Title, item.Reason))
		}
	}
	if len(r.Errors) > 0 {
		b.WriteString("\n## Stage Errors\n\n")
		for _, e := range r.Errors {
			b.WriteString(fmt.Sprintf("- **%s**: %s\n", e.Stage, e.Message))
		}
	}
	return b.String()
}

// SummaryTable renders the terminal summary printed at the end of a run.
func (r *RunReport) SummaryTable() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Stage", "Status"})
	failedStage := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		failedStage[e.Stage] = e.Message
	}
	for _, name := range r.StagesRun {
		status := "ok"
		if msg, ok := failedStage[name]; ok {
			status = "failed: " + msg
		}
		tw.AppendRow(table.Row{name, status})
	}
	tw.AppendFooter(table.Row{"videos", fmt.Sprintf("%d ok / %d failed / %d total", r.OKVideos, len(r.Failed), r.TotalVideos)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 2, Align: text.AlignLeft, WidthMax: 70},
	})
	return tw.Render()
}
