// Package classify defines the capability boundary to the underlying
// acuity classifier. The rest of the system depends on the classifier
// only through the Classifier interface, which keeps it an opaque,
// possibly nondeterministic, possibly slow oracle and lets tests
// substitute fixed-response stubs.
package classify

import (
	"context"

	"github.com/linnemanlabs/acuity/internal/acuity"
)

// Demo is a worked labeled example shown to the classifier to steer
// its output.
type Demo struct {
	Symptoms  string
	Level     acuity.Level
	Rationale string
}

// ProtocolContext is a clinical guideline excerpt supplied as
// grounding context.
type ProtocolContext struct {
	Title   string
	Excerpt string
}

// Request is one classification request.
type Request struct {
	Symptoms  string
	Demos     []Demo
	Protocols []ProtocolContext
}

// Decision is the classifier's verdict.
type Decision struct {
	Level         acuity.Level
	Justification string
	Confidence    float64
}

// Classifier classifies a symptom description into an acuity level.
// Implementations must honor ctx cancellation and deadlines so callers
// can fail fast instead of hanging on a slow upstream.
type Classifier interface {
	Classify(ctx context.Context, req *Request) (*Decision, error)
}
