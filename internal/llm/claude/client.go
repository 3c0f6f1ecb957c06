// Package claude implements the acuity classifier on the Anthropic
// Messages API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/classify"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "claude-sonnet-4-20250514"

const defaultMaxTokens = 1024

// messageSender is the slice of the Anthropic client the classifier
// uses. Tests substitute a stub.
type messageSender interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Client classifies symptom descriptions by calling the Claude
// Messages API. It implements classify.Classifier.
type Client struct {
	messages  messageSender
	model     anthropic.Model
	maxTokens int64
}

// New creates a classifier backed by the given API key and model name.
// An empty model falls back to DefaultModel.
func New(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		messages:  &c.Messages,
		model:     anthropic.Model(model),
		maxTokens: defaultMaxTokens,
	}
}

// Classify sends one classification request and parses the verdict.
func (c *Client) Classify(ctx context.Context, req *classify.Request) (*classify.Decision, error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: buildSystem(req)},
		},
		Messages: buildMessages(req),
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	text, err := firstText(msg)
	if err != nil {
		return nil, err
	}
	return classify.ParseDecision(text)
}

// buildSystem assembles the instruction plus protocol grounding. The
// levels are enumerated explicitly so the model cannot invent new ones.
func buildSystem(req *classify.Request) string {
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

	if len(req.Protocols) > 0 {
		b.WriteString("\nRelevant clinical protocols:\n")
		for _, p := range req.Protocols {
			b.WriteString("\n## ")
			b.WriteString(p.Title)
			b.WriteString("\n")
			b.WriteString(p.Excerpt)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRespond with a single JSON object and nothing else: ")
	b.WriteString(`{"level": "<acuity level>", "justification": "<one or two sentences>", "confidence": <0.0-1.0>}`)
	return b.String()
}

// buildMessages renders the demos as prior conversation turns so the
// model sees worked examples before the live case.
func buildMessages(req *classify.Request) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, 2*len(req.Demos)+1)
	for _, d := range req.Demos {
		msgs = append(msgs,
			anthropic.NewUserMessage(anthropic.NewTextBlock("Symptoms: "+d.Symptoms)),
			anthropic.NewAssistantMessage(anthropic.NewTextBlock(demoReply(d))),
		)
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock("Symptoms: "+req.Symptoms)))
	return msgs
}

func demoReply(d classify.Demo) string {
	justification := d.Rationale
	if justification == "" {
		justification = "classified per protocol"
	}
	return fmt.Sprintf(`{"level": %q, "justification": %q, "confidence": 0.9}`, d.Level, justification)
}

// firstText returns the first text block of the response.
func firstText(msg *anthropic.Message) (string, error) {
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("claude response contained no text (stop reason %q)", msg.StopReason)
}
