package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/linnemanlabs/acuity/internal/acuity"
)

// rawDecision is the JSON shape providers instruct the model to emit.
type rawDecision struct {
	Level         string  `json:"level"`
	Justification string  `json:"justification"`
	Confidence    float64 `json:"confidence"`
}

// ParseDecision extracts a Decision from raw model output. Models wrap
// JSON in prose or code fences often enough that we scan for the
// outermost object rather than unmarshalling the text directly.
func ParseDecision(text string) (*Decision, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in classifier output: %q", truncate(text, 120))
	}

	var raw rawDecision
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("malformed classifier output: %w", err)
	}

	level, err := acuity.Parse(raw.Level)
	if err != nil {
		return nil, fmt.Errorf("classifier output: %w", err)
	}

	conf := raw.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return &Decision{
		Level:         level,
		Justification: strings.TrimSpace(raw.Justification),
		Confidence:    conf,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
