package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNotebookNotConfigured is a stage-level configuration error.
var ErrNotebookNotConfigured = errors.New("set NOTEBOOKLM_API_URL and NOTEBOOKLM_API_TOKEN")

// ArtifactKind names the generated artifact types.
type ArtifactKind string

const (
	ArtifactAudio      ArtifactKind = "audio"
	ArtifactMindMap    ArtifactKind = "mind_map"
	ArtifactQuiz       ArtifactKind = "quiz"
	ArtifactFlashcards ArtifactKind = "flashcards"
)

// ArtifactOptions carries the per-kind generation knobs.
type ArtifactOptions struct {
	Instructions string `json:"instructions,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	Quantity     string `json:"quantity,omitempty"`
}

// NotebookService is the notebook-artifact-generation collaborator: sources
// go in, named artifacts come out asynchronously. Per-artifact errors must
// not abort other artifact types; the stage enforces that.
type NotebookService interface {
	CreateNotebook(ctx context.Context, name string) (string, error)
	AddSource(ctx context.Context, notebookID, sourceURL string) error
	GenerateArtifact(ctx context.Context, notebookID string, kind ArtifactKind, opts ArtifactOptions) (taskID string, err error)
	WaitForCompletion(ctx context.Context, notebookID, taskID string, timeout time.Duration) error
	DownloadArtifact(ctx context.Context, notebookID string, kind ArtifactKind, destPath string) error
}

// NotebookHTTPError carries the status code so callers can tell throttling
// from hard failures.
type NotebookHTTPError struct {
	StatusCode int
	Body       string
}

func (e *NotebookHTTPError) Error() string {
	return fmt.Sprintf("notebooklm API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// NotebookClient talks to a NotebookLM bridge API over HTTP.
type NotebookClient struct {
	baseURL string
	token   string
	client  *http.Client

	// PollInterval spaces completion-wait polls; tests shrink it.
	PollInterval time.Duration
}

// NewNotebookClient builds the client from config plus the token env var.
// Missing configuration is an infrastructure error the orchestrator halts on.
func NewNotebookClient(settings *Settings) (*NotebookClient, error) {
	token := os.Getenv("NOTEBOOKLM_API_TOKEN")
	if settings.NotebookLM.APIURL == "" || token == "" {
		return nil, ErrNotebookNotConfigured
	}
	return &NotebookClient{
		baseURL:      settings.NotebookLM.APIURL,
		token:        token,
		client:       &http.Client{Timeout: 60 * time.Second},
		PollInterval: 5 * time.Second,
	}, nil
}

func (c *NotebookClient) CreateNotebook(ctx context.Context, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/notebooks", map[string]string{"name": name}, &out)
	if err != nil {
		return "", fmt.Errorf("creating notebook: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("creating notebook: empty id in response")
	}
	return out.ID, nil
}

// AddSource registers one URL as a notebook source and waits for the service
// to finish ingesting it.
func (c *NotebookClient) AddSource(ctx context.Context, notebookID, sourceURL string) error {
	body := map[string]any{"url": sourceURL, "wait": true}
	path := fmt.Sprintf("/v1/notebooks/%s/sources", notebookID)
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("adding source %s: %w", sourceURL, err)
	}
	return nil
}

func (c *NotebookClient) GenerateArtifact(ctx context.Context, notebookID string, kind ArtifactKind, opts ArtifactOptions) (string, error) {
	body := struct {
		Type ArtifactKind `json:"type"`
		ArtifactOptions
	}{Type: kind, ArtifactOptions: opts}

	var out struct {
		TaskID string `json:"task_id"`
	}
	path := fmt.Sprintf("/v1/notebooks/%s/artifacts", notebookID)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", fmt.Errorf("generating %s: %w", kind, err)
	}
	return out.TaskID, nil
}

// WaitForCompletion polls the task until it completes, fails, or the timeout
// elapses. Generation on the service side can take tens of minutes for large
// notebooks, so the timeout comes from the caller.
func (c *NotebookClient) WaitForCompletion(ctx context.Context, notebookID, taskID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	path := fmt.Sprintf("/v1/notebooks/%s/tasks/%s", notebookID, taskID)

	for {
		var out struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
			return fmt.Errorf("polling task %s: %w", taskID, err)
		}
		switch out.Status {
		case "completed":
			return nil
		case "failed":
			return fmt.Errorf("task %s failed: %s", taskID, out.Error)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("task %s did not complete within %s", taskID, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.PollInterval):
		}
	}
}

func (c *NotebookClient) DownloadArtifact(ctx context.Context, notebookID string, kind ArtifactKind, destPath string) error {
	url := fmt.Sprintf("%s/v1/notebooks/%s/artifacts/%s", c.baseURL, notebookID, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NotebookHTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

func (c *NotebookClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &NotebookHTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
