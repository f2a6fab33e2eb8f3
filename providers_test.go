package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openaitypes "github.com/aktagon/llmkit/openai/types"
)

func testSettings() *Settings {
	s := &Settings{}
	applyDefaults(s)
	return s
}

func TestSelectProviderPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		openaiKey string
		geminiKey string
		want      string
		wantErr   error
	}{
		{"openai only", "sk-x", "", "openai", nil},
		{"gemini only", "", "g-x", "gemini", nil},
		{"openai wins over gemini", "sk-x", "g-x", "openai", nil},
		{"neither configured", "", "", "", ErrNoProviderConfigured},
		{"blank keys ignored", "  ", "\t", "", ErrNoProviderConfigured},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", tt.openaiKey)
			t.Setenv("GEMINI_API_KEY", tt.geminiKey)

			provider, err := SelectProvider(testSettings())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectProvider: %v", err)
			}
			if provider.Name() != tt.want {
				t.Errorf("expected provider %q, got %q", tt.want, provider.Name())
			}
		})
	}
}

func TestOpenAICompleteSendsConfiguredModel(t *testing.T) {
	var got openaitypes.ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization header: %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"## Summary\nnotes"}}]}`))
	}))
	defer server.Close()

	provider := &OpenAIProvider{
		apiKey:      "sk-test",
		model:       "gpt-4o-mini",
		maxTokens:   4000,
		temperature: 0.2,
		endpoint:    server.URL,
		client:      server.Client(),
	}
	text, err := provider.Complete("prompt text")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "## Summary\nnotes" {
		t.Errorf("response text: %q", text)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("request must carry the configured model, got %q", got.Model)
	}
	if got.MaxTokens != 4000 || got.Temperature != 0.2 {
		t.Errorf("request settings: max_tokens=%d temperature=%v", got.MaxTokens, got.Temperature)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "prompt text" {
		t.Errorf("request messages: %+v", got.Messages)
	}
}

func TestOpenAICompleteRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Rate limit reached"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := &OpenAIProvider{
		apiKey:   "sk-test",
		model:    "gpt-4o-mini",
		endpoint: server.URL,
		client:   server.Client(),
	}
	_, err := provider.Complete("prompt")
	if err == nil {
		t.Fatal("expected an error for HTTP 429")
	}
	if !IsRateLimitError(err) {
		t.Errorf("429 response must classify as a rate-limit error: %v", err)
	}
}

func TestGeminiRequestSettings(t *testing.T) {
	provider := &GeminiProvider{
		apiKey:      "g-test",
		model:       "gemini-2.0-flash",
		maxTokens:   4000,
		temperature: 0.2,
	}
	settings := provider.requestSettings()
	if settings.Model != "gemini-2.0-flash" {
		t.Errorf("model: got %q", settings.Model)
	}
	if settings.MaxTokens != 4000 || settings.Temperature != 0.2 {
		t.Errorf("settings: max_tokens=%d temperature=%v", settings.MaxTokens, settings.Temperature)
	}
}

func TestBuildEnrichmentPrompt(t *testing.T) {
	prompt, err := buildEnrichmentPrompt("Video: {{.Title}}\n\n{{.Transcript}}", "Lesson 1", "Καλημέρα")
	if err != nil {
		t.Fatalf("buildEnrichmentPrompt: %v", err)
	}
	if !strings.Contains(prompt, "Lesson 1") || !strings.Contains(prompt, "Καλημέρα") {
		t.Errorf("prompt missing substitutions: %q", prompt)
	}

	if _, err := buildEnrichmentPrompt("no variables here", "t", "x"); err == nil {
		t.Error("expected error for template without variables")
	}
	if _, err := buildEnrichmentPrompt("{{.Title}} only", "t", "x"); err == nil {
		t.Error("expected error for template missing {{.Transcript}}")
	}
}

func TestTruncateTranscript(t *testing.T) {
	long := strings.Repeat("a", maxTranscriptChars+100)

	got := truncateTranscript(long, "gpt-3.5-turbo")
	if len(got) >= len(long) {
		t.Error("expected truncation for a 3.5 model")
	}
	if !strings.Contains(got, "[Transcript truncated for length.]") {
		t.Error("expected truncation marker")
	}

	if got := truncateTranscript(long, "gpt-4o-mini"); got != long {
		t.Error("large-context models must get the full transcript")
	}
	short := "short transcript"
	if got := truncateTranscript(short, "gpt-3.5-turbo"); got != short {
		t.Error("short transcripts must pass through untouched")
	}
}

func TestParseSections(t *testing.T) {
	response := `Here are your notes.

## Summary
A short Greek lesson about greetings.

## Key Ideas
- Καλημέρα means good morning
- Γεια σου is informal

## Notable Quotes
`
	sections := parseSections(response)
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	if sections[0].Heading != "Summary" {
		t.Errorf("first heading: got %q", sections[0].Heading)
	}
	if !strings.Contains(sections[1].Body, "Καλημέρα") {
		t.Errorf("key ideas body: got %q", sections[1].Body)
	}
	if sections[2].Heading != "Notable Quotes" || sections[2].Body != "" {
		t.Errorf("empty trailing section: %+v", sections[2])
	}

	if got := parseSections("no headings at all"); got != nil {
		t.Errorf("preamble-only response should yield no sections, got %v", got)
	}
}

func TestJoinSectionsSkipsEmpty(t *testing.T) {
	sections := []NoteSection{
		{Heading: "Summary", Body: "Text."},
		{Heading: "Notable Quotes", Body: ""},
		{Heading: "Takeaways", Body: "Do things."},
	}
	joined := joinSections(sections)
	if strings.Contains(joined, "Notable Quotes") {
		t.Errorf("empty sections must be dropped: %q", joined)
	}
	if !strings.Contains(joined, "## Summary\nText.") || !strings.Contains(joined, "## Takeaways\nDo things.") {
		t.Errorf("unexpected join: %q", joined)
	}
}

func TestSectionsToMap(t *testing.T) {
	m := sectionsToMap([]NoteSection{
		{Heading: "Summary", Body: "One."},
		{Heading: "Key Ideas", Body: "Two."},
	})
	if m["Summary"] != "One." || m["Key Ideas"] != "Two." {
		t.Errorf("unexpected map: %v", m)
	}
}
