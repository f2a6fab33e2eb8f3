package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	llmkiterrors "github.com/aktagon/llmkit/errors"
	"github.com/aktagon/llmkit/google"
	googletypes "github.com/aktagon/llmkit/google/types"
	openaitypes "github.com/aktagon/llmkit/openai/types"
)

// ErrNoProviderConfigured is a stage-level configuration error: enrichment
// cannot run without a credential.
var ErrNoProviderConfigured = errors.New("set OPENAI_API_KEY (recommended) or GEMINI_API_KEY")

// Only small-context models need the transcript capped; 128k-context models
// take the full text.
const maxTranscriptChars = 50_000

// Provider is the text-enrichment collaborator: prompt in, free text out.
// Rate-limit-shaped errors bubble up for the retry policy to classify.
type Provider interface {
	Name() string
	Model() string
	DefaultDelay() time.Duration
	Complete(prompt string) (string, error)
}

// SelectProvider picks the enrichment provider from credential presence,
// once, at stage start. Precedence is fixed: OpenAI wins when both keys are
// set (paid tier tolerates a faster item cadence than Gemini's free tier).
func SelectProvider(settings *Settings) (Provider, error) {
	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return &OpenAIProvider{
			apiKey:      key,
			model:       settings.Enrichment.OpenAIModel,
			maxTokens:   settings.Enrichment.MaxTokens,
			temperature: settings.Enrichment.Temperature,
		}, nil
	}
	if key := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); key != "" {
		return &GeminiProvider{
			apiKey:      key,
			model:       settings.Enrichment.GeminiModel,
			maxTokens:   settings.Enrichment.MaxTokens,
			temperature: settings.Enrichment.Temperature,
		}, nil
	}
	return nil, ErrNoProviderConfigured
}

var openaiHTTPClient = &http.Client{Timeout: 120 * time.Second}

// OpenAIProvider calls the OpenAI chat completions API using llmkit's wire
// types. llmkit's packaged completion helper pins its own default model, so
// the request is assembled here from ChatRequest, which carries the
// configured one.
type OpenAIProvider struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64

	// endpoint and client are swappable in tests; zero values mean the
	// real API.
	endpoint string
	client   *http.Client
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) DefaultDelay() time.Duration { return 2 * time.Second }

func (p *OpenAIProvider) Complete(prompt string) (string, error) {
	request := openaitypes.ChatRequest{
		Model: p.model,
		Messages: []openaitypes.Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
	body, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("encoding openai request: %w", err)
	}

	endpoint := p.endpoint
	if endpoint == "" {
		endpoint = openaitypes.EndpointCompletions
	}
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	client := p.client
	if client == nil {
		client = openaiHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai prompt: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading openai response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &llmkiterrors.APIError{
			Provider:   "OpenAI",
			StatusCode: resp.StatusCode,
			Message:    string(raw),
			Endpoint:   endpoint,
		}
	}

	var response openaitypes.Response
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("parsing openai response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no content in openai response")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// GeminiProvider calls the Gemini API through llmkit.
type GeminiProvider struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

func (p *GeminiProvider) Name() string  { return "gemini" }
func (p *GeminiProvider) Model() string { return p.model }

// Gemini's free tier throttles aggressively, so the proactive per-item delay
// is longer than OpenAI's.
func (p *GeminiProvider) DefaultDelay() time.Duration { return 6 * time.Second }

func (p *GeminiProvider) requestSettings() googletypes.RequestSettings {
	return googletypes.RequestSettings{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}
}

func (p *GeminiProvider) Complete(prompt string) (string, error) {
	response, err := google.PromptWithSettings("", prompt, "", p.apiKey, p.requestSettings())
	if err != nil {
		return "", fmt.Errorf("gemini prompt: %w", err)
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content in gemini response")
	}
	return strings.TrimSpace(response.Candidates[0].Content.Parts[0].Text), nil
}

// buildEnrichmentPrompt renders the prompt template. The template must carry
// both variables; failing loudly here beats sending a half-empty prompt to a
// paid API.
func buildEnrichmentPrompt(template, title, transcript string) (string, error) {
	if !strings.Contains(template, "{{.Title}}") {
		return "", fmt.Errorf("enrichment prompt template must contain {{.Title}} variable")
	}
	if !strings.Contains(template, "{{.Transcript}}") {
		return "", fmt.Errorf("enrichment prompt template must contain {{.Transcript}} variable")
	}
	prompt := strings.ReplaceAll(template, "{{.Title}}", title)
	prompt = strings.ReplaceAll(prompt, "{{.Transcript}}", transcript)
	return prompt, nil
}

// truncateTranscript caps the transcript for small-context models only.
func truncateTranscript(transcript, model string) string {
	if !strings.Contains(model, "3.5") || len(transcript) <= maxTranscriptChars {
		return transcript
	}
	return transcript[:maxTranscriptChars] + "\n\n[Transcript truncated for length.]"
}

// NoteSection is one "## Heading" block of an enrichment response, in
// response order.
type NoteSection struct {
	Heading string
	Body    string
}

// parseSections splits the LLM's markdown response on top-level "## "
// headings. Text before the first heading is dropped (models sometimes emit
// a preamble).
func parseSections(text string) []NoteSection {
	var sections []NoteSection
	var current *NoteSection
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "## ") {
			sections = append(sections, NoteSection{Heading: strings.TrimSpace(line[3:])})
			current = &sections[len(sections)-1]
			continue
		}
		if current == nil || strings.TrimSpace(line) == "" {
			continue
		}
		if current.Body != "" {
			current.Body += "\n"
		}
		current.Body += strings.TrimSpace(line)
	}
	return sections
}

// joinSections rebuilds the note body from non-empty sections, preserving
// response order.
func joinSections(sections []NoteSection) string {
	var parts []string
	for _, s := range sections {
		if s.Body == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n%s", s.Heading, s.Body))
	}
	return strings.Join(parts, "\n\n")
}

func sectionsToMap(sections []NoteSection) map[string]string {
	m := make(map[string]string, len(sections))
	for _, s := range sections {
		m[s.Heading] = s.Body
	}
	return m
}
