package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/casebank"
	"github.com/linnemanlabs/acuity/internal/classify"
	"github.com/linnemanlabs/acuity/internal/exemplar"
	"github.com/linnemanlabs/acuity/internal/protocol"
	"github.com/linnemanlabs/acuity/internal/specialize"
)

// The global OTel tracer delegates to a concrete provider only on the first
// SetTracerProvider call, so all tracing tests must share one provider and
// exporter; installTestTracer installs it once and resets the exporter per test.
var (
	testSpanExporter  = tracetest.NewInMemoryExporter()
	installTracerOnce sync.Once
)

func installTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	installTracerOnce.Do(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSyncer(testSpanExporter)))
	})
	testSpanExporter.Reset()
	return testSpanExporter
}

type stubClassifier struct {
	decision *classify.Decision
	err      error
	gotReq   *classify.Request
}

func (s *stubClassifier) Classify(_ context.Context, req *classify.Request) (*classify.Decision, error) {
	s.gotReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.decision, nil
}

func testCorpus(t *testing.T) *protocol.Corpus {
	t.Helper()
	c, err := protocol.NewCorpus([]protocol.Protocol{
		{
			ID:       "chest-pain",
			Title:    "Chest Pain",
			Keywords: []string{"chest pain", "crushing", "radiating", "diaphoresis"},
			Body:     "Crushing or radiating chest pain with diaphoresis suggests acute coronary syndrome. Call emergency services.",
		},
		{
			ID:       "breathing",
			Title:    "Breathing Difficulty",
			Keywords: []string{"shortness of breath", "wheezing", "difficulty breathing"},
			Body:     "New or worsening dyspnea at rest requires urgent evaluation.",
		},
		{
			ID:       "cold",
			Title:    "Common Cold",
			Keywords: []string{"runny nose", "sneezing", "sore throat"},
			Body:     "Uncomplicated upper respiratory symptoms can be managed at home with rest and fluids.",
		},
	})
	if err != nil {
		t.Fatalf("NewCorpus: %v", err)
	}
	return c
}

func testService(t *testing.T, cl classify.Classifier, sets ExemplarSource) *Service {
	t.Helper()
	corpus := testCorpus(t)
	matcher := protocol.NewMatcher(corpus)
	registry := specialize.Builtin()
	router := specialize.NewRouter(registry, matcher, 0)
	if sets == nil {
		sets = exemplar.NewPublished()
	}
	return NewService(router, registry, matcher, corpus, sets, cl, nil, nil, nil, 0)
}

func publishedWith(sets ...*exemplar.Set) *exemplar.Published {
	p := exemplar.NewPublished()
	for _, s := range sets {
		p.Publish(s)
	}
	return p
}

func TestTriage_CardiacEmergency(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{
		Level:         acuity.Emergency,
		Justification: "symptoms consistent with acute coronary syndrome",
		Confidence:    0.95,
	}}
	sets := publishedWith(&exemplar.Set{
		Specialization: "chf_nurse",
		Version:        "01TESTCHF",
		CompiledAt:     time.Now(),
		Exemplars: []casebank.LabeledCase{
			{ID: "c1", Symptoms: "chest pain and sweating", GoldLevel: acuity.Emergency, Rationale: "possible MI"},
			{ID: "c2", Symptoms: "mild leg swelling", GoldLevel: acuity.Moderate, Rationale: "stable edema"},
		},
	})
	svc := testService(t, cl, sets)

	res, err := svc.Triage(context.Background(),
		"65-year-old male with severe crushing chest pain, diaphoresis, shortness of breath", "")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	if res.Level != acuity.Emergency {
		t.Errorf("Level = %q, want Emergency", res.Level)
	}
	if res.Specialization != "chf_nurse" {
		t.Errorf("Specialization = %q, want chf_nurse", res.Specialization)
	}
	if res.RouterConfidence <= 0 {
		t.Errorf("RouterConfidence = %v, want > 0", res.RouterConfidence)
	}
	if len(res.MatchedProtocols) == 0 || res.MatchedProtocols[0] != "chest-pain" {
		t.Errorf("MatchedProtocols = %v, want chest-pain first", res.MatchedProtocols)
	}
	if res.ExemplarVersion != "01TESTCHF" {
		t.Errorf("ExemplarVersion = %q, want 01TESTCHF", res.ExemplarVersion)
	}
	if got := len(cl.gotReq.Demos); got != 2 {
		t.Errorf("classifier saw %d demos, want 2", got)
	}
	if len(cl.gotReq.Protocols) == 0 || cl.gotReq.Protocols[0].Title != "Chest Pain" {
		t.Errorf("classifier protocols = %+v, want Chest Pain first", cl.gotReq.Protocols)
	}
}

func TestTriage_HomeCareRoutesToGeneral(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{
		Level:         acuity.HomeCare,
		Justification: "uncomplicated cold symptoms",
		Confidence:    0.8,
	}}
	svc := testService(t, cl, nil)

	res, err := svc.Triage(context.Background(), "runny nose and sneezing for two days, no fever", "")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Level != acuity.HomeCare {
		t.Errorf("Level = %q, want Home Care", res.Level)
	}
	if res.Specialization != specialize.GeneralID {
		t.Errorf("Specialization = %q, want %q", res.Specialization, specialize.GeneralID)
	}
	if res.RouterConfidence != 0 {
		t.Errorf("RouterConfidence = %v, want 0 for general fallback", res.RouterConfidence)
	}
	if res.ExemplarVersion != "" {
		t.Errorf("ExemplarVersion = %q, want empty with no published sets", res.ExemplarVersion)
	}
}

func TestTriage_ClassifierFailureIsNeverADefaultLevel(t *testing.T) {
	t.Parallel()

	upstream := errors.New("deadline exceeded talking to model")
	cl := &stubClassifier{err: upstream}
	svc := testService(t, cl, nil)

	res, err := svc.Triage(context.Background(), "crushing chest pain", "")
	if res != nil {
		t.Fatalf("result = %+v, want nil on classifier failure", res)
	}

	var unavailable *ClassificationUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want ClassificationUnavailableError", err)
	}
	if !errors.Is(err, upstream) {
		t.Errorf("err does not wrap the upstream cause: %v", err)
	}
}

func TestTriage_HintPinsSpecialization(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Urgent, Confidence: 0.7}}
	svc := testService(t, cl, nil)

	res, err := svc.Triage(context.Background(), "runny nose", "pediatric_nurse")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Specialization != "pediatric_nurse" {
		t.Errorf("Specialization = %q, want pediatric_nurse from hint", res.Specialization)
	}
	if res.RouterConfidence != 1.0 {
		t.Errorf("RouterConfidence = %v, want 1.0 for explicit hint", res.RouterConfidence)
	}
}

func TestTriage_UnknownHintFallsBackToRouter(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.HomeCare, Confidence: 0.6}}
	svc := testService(t, cl, nil)

	res, err := svc.Triage(context.Background(), "runny nose and sneezing", "oncology_nurse")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Specialization != specialize.GeneralID {
		t.Errorf("Specialization = %q, want router fallback to general", res.Specialization)
	}
}

func TestTriage_FallsBackToGeneralExemplars(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Emergency, Confidence: 0.9}}
	sets := publishedWith(&exemplar.Set{
		Specialization: specialize.GeneralID,
		Version:        "01TESTGEN",
		Exemplars: []casebank.LabeledCase{
			{ID: "g1", Symptoms: "fainting spells", GoldLevel: acuity.Urgent, Rationale: "syncope workup"},
		},
	})
	svc := testService(t, cl, sets)

	// routes to chf_nurse, which has no compiled set
	res, err := svc.Triage(context.Background(),
		"crushing chest pain with diaphoresis and shortness of breath", "")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if res.Specialization != "chf_nurse" {
		t.Fatalf("Specialization = %q, want chf_nurse", res.Specialization)
	}
	if res.ExemplarVersion != "01TESTGEN" {
		t.Errorf("ExemplarVersion = %q, want general set 01TESTGEN", res.ExemplarVersion)
	}
	if got := len(cl.gotReq.Demos); got != 1 {
		t.Errorf("classifier saw %d demos, want 1 from general set", got)
	}
}

type stubNotifier struct {
	sent chan *Result
	err  error
}

func (n *stubNotifier) Send(_ context.Context, _ string, r *Result) error {
	n.sent <- r
	return n.err
}

func TestTriage_NotifiesOnEmergency(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Emergency, Confidence: 0.9}}
	notifier := &stubNotifier{sent: make(chan *Result, 1)}

	corpus := testCorpus(t)
	matcher := protocol.NewMatcher(corpus)
	registry := specialize.Builtin()
	router := specialize.NewRouter(registry, matcher, 0)
	svc := NewService(router, registry, matcher, corpus, exemplar.NewPublished(), cl, notifier, nil, nil, 0)

	if _, err := svc.Triage(context.Background(), "crushing chest pain", ""); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	select {
	case got := <-notifier.sent:
		if got.Level != acuity.Emergency {
			t.Errorf("notified level = %q, want Emergency", got.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected escalation notification for Emergency result")
	}
}

func TestTriage_NoNotificationBelowEmergency(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Urgent, Confidence: 0.7}}
	notifier := &stubNotifier{sent: make(chan *Result, 1)}

	corpus := testCorpus(t)
	matcher := protocol.NewMatcher(corpus)
	registry := specialize.Builtin()
	router := specialize.NewRouter(registry, matcher, 0)
	svc := NewService(router, registry, matcher, corpus, exemplar.NewPublished(), cl, notifier, nil, nil, 0)

	if _, err := svc.Triage(context.Background(), "crushing chest pain", ""); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	select {
	case <-notifier.sent:
		t.Fatal("Urgent result should not notify")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTriage_CreatesClassifySpan(t *testing.T) {
	// Not parallel: uses the shared global OTel tracer provider.

	exporter := installTestTracer(t)

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Urgent, Confidence: 0.7}}
	svc := testService(t, cl, nil)

	if _, err := svc.Triage(context.Background(), "crushing chest pain radiating to the left arm", ""); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	spans := exporter.GetSpans()
	var classifySpan *tracetest.SpanStub
	for i := range spans {
		if spans[i].Name == "triage.classify" {
			classifySpan = &spans[i]
			break
		}
	}
	if classifySpan == nil {
		t.Fatalf("no triage.classify span, got %d spans", len(spans))
	}

	attrs := make(map[string]any)
	for _, a := range classifySpan.Attributes {
		attrs[string(a.Key)] = a.Value.AsInterface()
	}
	if v, ok := attrs["acuity.specialization"]; !ok || v != "chf_nurse" {
		t.Errorf("acuity.specialization = %v, want chf_nurse", v)
	}
	if v, ok := attrs["acuity.level"]; !ok || v != string(acuity.Urgent) {
		t.Errorf("acuity.level = %v, want %q", v, acuity.Urgent)
	}
	if v, ok := attrs["acuity.matched_protocols"]; !ok || v == int64(0) {
		t.Errorf("acuity.matched_protocols = %v, want > 0", v)
	}
}

func TestTriage_ClassifierErrorRecordedOnSpan(t *testing.T) {
	// Not parallel: uses the shared global OTel tracer provider.

	exporter := installTestTracer(t)

	cl := &stubClassifier{err: errors.New("upstream timeout")}
	svc := testService(t, cl, nil)

	if _, err := svc.Triage(context.Background(), "sore throat and sneezing", ""); err == nil {
		t.Fatal("Triage: expected error")
	}

	for _, s := range exporter.GetSpans() {
		if s.Name != "triage.classify" {
			continue
		}
		if len(s.Events) == 0 {
			t.Error("classify span has no recorded error event")
		}
		return
	}
	t.Fatal("no triage.classify span")
}

func TestTruncate_RuneBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short stays whole", "chest pain", 600, "chest pain"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"multibyte straddling the cut", "x€€", 3, "x"},
		{"cut lands on rune start", "x€€", 4, "x€"},
		{"exact fit", "€€", 6, "€€"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
			}
		})
	}
}

func TestTriage_ExcerptIsValidUTF8(t *testing.T) {
	t.Parallel()

	// the prefix is sized so the 600-byte cut lands inside a
	// two-byte rune
	body := "Crushing chest pain triage protocols. " + strings.Repeat("évaluation cardiaque immédiate ", 40)
	corpus, err := protocol.NewCorpus([]protocol.Protocol{{
		ID:       "chest-pain",
		Title:    "Chest Pain",
		Keywords: []string{"chest pain"},
		Body:     body,
	}})
	if err != nil {
		t.Fatalf("NewCorpus: %v", err)
	}
	matcher := protocol.NewMatcher(corpus)
	registry := specialize.Builtin()
	router := specialize.NewRouter(registry, matcher, 0)

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Urgent, Confidence: 0.7}}
	svc := NewService(router, registry, matcher, corpus, exemplar.NewPublished(), cl, nil, nil, nil, 0)

	if _, err := svc.Triage(context.Background(), "crushing chest pain", ""); err != nil {
		t.Fatalf("Triage: %v", err)
	}

	excerpt := cl.gotReq.Protocols[0].Excerpt
	if len(excerpt) > maxExcerptLen {
		t.Errorf("excerpt = %d bytes, want <= %d", len(excerpt), maxExcerptLen)
	}
	if !utf8.ValidString(excerpt) {
		t.Error("excerpt is not valid UTF-8")
	}
}

func TestTriage_NoProtocolMatchUsesGeneralGuidance(t *testing.T) {
	t.Parallel()

	cl := &stubClassifier{decision: &classify.Decision{Level: acuity.Moderate, Confidence: 0.5}}
	svc := testService(t, cl, nil)

	res, err := svc.Triage(context.Background(), "intermittent tingling in both hands", "")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if len(res.MatchedProtocols) != 0 {
		t.Errorf("MatchedProtocols = %v, want none", res.MatchedProtocols)
	}
	if len(cl.gotReq.Protocols) != 1 || cl.gotReq.Protocols[0].Title != "General Triage Guidelines" {
		t.Errorf("classifier protocols = %+v, want the general guidance block", cl.gotReq.Protocols)
	}
}
