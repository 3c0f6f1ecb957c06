package triage

import "github.com/linnemanlabs/acuity/internal/acuity"

// Result is the outcome of one triage request. Created per request and
// not persisted by this package.
type Result struct {
	Level            acuity.Level `json:"level"`
	Justification    string       `json:"justification"`
	Confidence       float64      `json:"confidence"`
	MatchedProtocols []string     `json:"matched_protocols"`
	Specialization   string       `json:"specialization"`
	RouterConfidence float64      `json:"router_confidence"`
	ExemplarVersion  string       `json:"exemplar_version,omitempty"`
	Duration         float64      `json:"duration_seconds"`
}
