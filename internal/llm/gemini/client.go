// Package gemini implements the acuity classifier on the Google
// Gemini API. It is the fallback provider when no Anthropic key is
// configured.
package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/classify"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash"

// generator is the slice of *genai.GenerativeModel the classifier
// uses. Tests substitute a stub.
type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client classifies symptom descriptions by calling the Gemini API.
// It implements classify.Classifier.
type Client struct {
	model  generator
	client *genai.Client
}

// New creates a classifier backed by the given API key and model name.
// An empty model falls back to DefaultModel. Close the client when done.
func New(ctx context.Context, apiKey, model string) (*Client, error) {
	if model == "" {
		model = DefaultModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	gm := client.GenerativeModel(model)
	gm.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction())},
	}
	return &Client{model: gm, client: client}, nil
}

// Close releases the underlying API connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Classify sends one classification request and parses the verdict.
func (c *Client) Classify(ctx context.Context, req *classify.Request) (*classify.Decision, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}
	return classify.ParseDecision(text)
}

func systemInstruction() string {
	var b strings.Builder
	b.WriteString("You are a telephone triage nurse. Classify the caller's symptoms into exactly one acuity level: ")
	for i, lvl := range acuity.Levels() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(string(lvl))
	}
	b.WriteString(".\n")
	b.WriteString("When in doubt between two levels, choose the more severe one. Never downgrade possible cardiac, respiratory, or neurological emergencies.\n")
	b.WriteString("Respond with a single JSON object and nothing else: ")
	b.WriteString(`{"level": "<acuity level>", "justification": "<one or two sentences>", "confidence": <0.0-1.0>}`)
	return b.String()
}

// buildPrompt inlines protocols and demos into one user turn. Gemini's
// multi-turn API offers no benefit here over a single structured prompt.
func buildPrompt(req *classify.Request) string {
	var b strings.Builder

	if len(req.Protocols) > 0 {
		b.WriteString("Relevant clinical protocols:\n")
		for _, p := range req.Protocols {
			b.WriteString("\n## ")
			b.WriteString(p.Title)
			b.WriteString("\n")
			b.WriteString(p.Excerpt)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(req.Demos) > 0 {
		b.WriteString("Worked examples:\n")
		for _, d := range req.Demos {
			fmt.Fprintf(&b, "\nSymptoms: %s\nLevel: %s\nRationale: %s\n", d.Symptoms, d.Level, d.Rationale)
		}
		b.WriteString("\n")
	}

	b.WriteString("Classify this case.\nSymptoms: ")
	b.WriteString(req.Symptoms)
	return b.String()
}

// responseText returns the concatenated text parts of the first
// candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini response contained no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text parts")
	}
	return b.String(), nil
}
