// Package slack sends escalation notifications to Slack via incoming
// webhooks. Only Emergency classifications are notified; the webhook
// is a visibility channel for on-call clinical staff, not part of the
// triage decision path.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/triage"
)

const (
	maxJustificationLen = 3000
	maxSymptomsLen      = 500
	httpTimeout         = 10 * time.Second
)

// Notifier sends triage escalations to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a triage result to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, symptoms string, result *triage.Result) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(symptoms, result)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(symptoms string, r *triage.Result) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(r),
			{"type": "divider"},
			fieldsBlock(r),
			{"type": "divider"},
			detailBlock(symptoms, r),
			{"type": "divider"},
			contextBlock(r),
		},
	}
}

func headerBlock(r *triage.Result) map[string]any {
	text := fmt.Sprintf("%s %s Triage", levelEmoji(r.Level), r.Level)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(r *triage.Result) map[string]any {
	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Level:* %s", r.Level),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Specialization:* %s", r.Specialization),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Confidence:* %.2f", r.Confidence),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Duration:* %.1fs", r.Duration),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func detailBlock(symptoms string, r *triage.Result) map[string]any {
	justification := truncate(r.Justification, maxJustificationLen)
	if justification == "" {
		justification = "_No justification available._"
	}

	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Symptoms*\n%s\n\n*Justification*\n%s",
				truncate(symptoms, maxSymptomsLen), justification),
		},
	}
}

func contextBlock(r *triage.Result) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("acuity • exemplars %s • %s",
				versionOrNone(r.ExemplarVersion), time.Now().UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func levelEmoji(level acuity.Level) string {
	switch level {
	case acuity.Emergency:
		return "\U0001f534" // red circle
	case acuity.Urgent:
		return "\U0001f7e0" // orange circle
	case acuity.Moderate:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func versionOrNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
