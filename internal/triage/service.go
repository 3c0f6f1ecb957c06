package triage

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/classify"
	"github.com/linnemanlabs/acuity/internal/exemplar"
	"github.com/linnemanlabs/acuity/internal/protocol"
	"github.com/linnemanlabs/acuity/internal/specialize"
)

// DefaultProtocolTopK is how many protocols ground a request when the
// caller does not configure a budget.
const DefaultProtocolTopK = 3

// excerpt budget per protocol body passed as classifier context.
const maxExcerptLen = 600

// generalGuidance is the context used when no protocol matches the
// symptoms. A no-match is a valid, common outcome.
const generalGuidance = `Emergency: life-threatening symptoms requiring immediate ambulance.
Urgent: serious conditions needing emergency department care.
Moderate: needs medical evaluation within hours.
Home Care: can be managed with self-care at home.`

// ExemplarSource provides the currently published exemplar set per
// specialization. Implementations must return immutable snapshots.
type ExemplarSource interface {
	Get(specialization string) (*exemplar.Set, bool)
}

// Notifier receives Emergency results for escalation visibility. It
// is never on the decision path; a failed notification only logs.
type Notifier interface {
	Send(ctx context.Context, symptoms string, result *Result) error
}

// notifyTimeout bounds the detached escalation send.
const notifyTimeout = 15 * time.Second

var tracer = otel.Tracer("github.com/linnemanlabs/acuity/internal/triage")

// Service orchestrates one end-to-end triage request. All dependencies
// are read-only per request, so a Service is safe for unlimited
// concurrent use; the only blocking operation is the classifier call,
// which honors ctx cancellation.
type Service struct {
	router     *specialize.Router
	registry   *specialize.Registry
	matcher    *protocol.Matcher
	corpus     *protocol.Corpus
	sets       ExemplarSource
	classifier classify.Classifier
	notifier   Notifier
	logger     log.Logger
	metrics    *Metrics
	topK       int
}

// NewService creates a triage service.
func NewService(
	router *specialize.Router,
	registry *specialize.Registry,
	matcher *protocol.Matcher,
	corpus *protocol.Corpus,
	sets ExemplarSource,
	classifier classify.Classifier,
	notifier Notifier,
	logger log.Logger,
	metrics *Metrics,
	topK int,
) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	if topK <= 0 {
		topK = DefaultProtocolTopK
	}
	return &Service{
		router:     router,
		registry:   registry,
		matcher:    matcher,
		corpus:     corpus,
		sets:       sets,
		classifier: classifier,
		notifier:   notifier,
		logger:     logger,
		metrics:    metrics,
		topK:       topK,
	}
}

// Triage classifies one symptom description. hint optionally pins the
// specialization; an empty or unknown hint falls back to routing. A
// classifier failure returns ClassificationUnavailableError, never a
// default level.
func (s *Service) Triage(ctx context.Context, symptoms, hint string) (*Result, error) {
	start := time.Now()

	specID, routerConf := s.resolveSpecialization(symptoms, hint)

	matched := s.matcher.Match(symptoms, s.topK)

	req := &classify.Request{
		Symptoms:  symptoms,
		Protocols: s.protocolContext(matched),
	}

	var exemplarVersion string
	if set, ok := s.exemplarSet(specID); ok {
		exemplarVersion = set.Version
		req.Demos = make([]classify.Demo, 0, len(set.Exemplars))
		for _, c := range set.Exemplars {
			req.Demos = append(req.Demos, classify.Demo{
				Symptoms:  c.Symptoms,
				Level:     c.GoldLevel,
				Rationale: c.Rationale,
			})
		}
	}

	L := s.logger.With("specialization", specID)
	L.Info(ctx, "classifying symptoms",
		"router_confidence", routerConf,
		"matched_protocols", len(matched),
		"demos", len(req.Demos),
		"exemplar_version", exemplarVersion,
	)

	cctx, span := tracer.Start(ctx, "triage.classify", trace.WithAttributes(
		attribute.String("acuity.specialization", specID),
		attribute.Int("acuity.matched_protocols", len(matched)),
		attribute.Int("acuity.demos", len(req.Demos)),
	))
	decision, err := s.classifier.Classify(cctx, req)
	duration := time.Since(start).Seconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		L.Error(ctx, err, "classifier failed")
		s.metrics.observeFailure(specID, duration)
		return nil, &ClassificationUnavailableError{Err: err}
	}
	span.SetAttributes(attribute.String("acuity.level", string(decision.Level)))
	span.End()

	result := &Result{
		Level:            decision.Level,
		Justification:    decision.Justification,
		Confidence:       decision.Confidence,
		MatchedProtocols: matched,
		Specialization:   specID,
		RouterConfidence: routerConf,
		ExemplarVersion:  exemplarVersion,
		Duration:         duration,
	}
	s.metrics.observeResult(result)

	// escalation notifications are fire-and-forget; the caller's
	// request must not wait on the webhook
	if s.notifier != nil && result.Level == acuity.Emergency {
		nctx := context.WithoutCancel(ctx)
		go func() {
			nctx, cancel := context.WithTimeout(nctx, notifyTimeout)
			defer cancel()
			if err := s.notifier.Send(nctx, symptoms, result); err != nil {
				L.Error(nctx, err, "escalation notification failed")
			}
		}()
	}

	L.Info(ctx, "triage complete",
		"level", result.Level,
		"confidence", result.Confidence,
		"duration", result.Duration,
	)
	return result, nil
}

// resolveSpecialization honors a valid hint and otherwise routes.
func (s *Service) resolveSpecialization(symptoms, hint string) (string, float64) {
	if hint != "" {
		if _, ok := s.registry.Get(hint); ok {
			return hint, 1.0
		}
	}
	return s.router.Route(symptoms)
}

// exemplarSet returns the published set for the specialization,
// falling back to the general set if the specialist has none compiled.
func (s *Service) exemplarSet(specID string) (*exemplar.Set, bool) {
	if set, ok := s.sets.Get(specID); ok {
		return set, true
	}
	if specID != specialize.GeneralID {
		return s.sets.Get(specialize.GeneralID)
	}
	return nil, false
}

func (s *Service) protocolContext(matched []string) []classify.ProtocolContext {
	if len(matched) == 0 {
		return []classify.ProtocolContext{{
			Title:   "General Triage Guidelines",
			Excerpt: generalGuidance,
		}}
	}
	out := make([]classify.ProtocolContext, 0, len(matched))
	for _, id := range matched {
		p, ok := s.corpus.Get(id)
		if !ok {
			continue
		}
		out = append(out, classify.ProtocolContext{Title: p.Title, Excerpt: truncate(p.Body, maxExcerptLen)})
	}
	return out
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
