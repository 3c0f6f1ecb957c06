package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/acuity/internal/acuity"
	"github.com/linnemanlabs/acuity/internal/exemplar"
	"github.com/linnemanlabs/acuity/internal/specialize"
	"github.com/linnemanlabs/acuity/internal/triage"
)

type stubService struct {
	gotSymptoms string
	gotHint     string
	result      *triage.Result
	err         error
}

func (s *stubService) Triage(_ context.Context, symptoms, hint string) (*triage.Result, error) {
	s.gotSymptoms = symptoms
	s.gotHint = hint
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func newTestRouter(t *testing.T, svc TriageService, sets SetSource) chi.Router {
	t.Helper()
	api := New(nil, svc, specialize.Builtin(), sets)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &stubService{}, specialize.Builtin(), nil)
	if api == nil {
		t.Fatal("New returned nil API")
	}
	if api.logger == nil {
		t.Fatal("New left logger nil; expected Nop logger")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), &stubService{}, specialize.Builtin(), nil)
	if api.logger == nil {
		t.Fatal("New left logger nil")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, registry, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, specialize.Builtin(), nil)
}

func TestNew_NilRegistry_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for nil registry")
		}
	}()
	New(nil, &stubService{}, nil, nil)
}

// POST /api/v1/triage

func TestHandleTriage(t *testing.T) {
	t.Parallel()

	svc := &stubService{result: &triage.Result{
		Level:            acuity.Emergency,
		Justification:    "possible acute coronary syndrome",
		Confidence:       0.93,
		MatchedProtocols: []string{"chest-pain"},
		Specialization:   "chf_nurse",
		RouterConfidence: 0.8,
	}}
	r := newTestRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage",
		strings.NewReader(`{"symptoms":"crushing chest pain and sweating"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body)
	}
	if svc.gotSymptoms != "crushing chest pain and sweating" {
		t.Errorf("service saw symptoms %q", svc.gotSymptoms)
	}

	var resp triage.Result
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Level != acuity.Emergency {
		t.Errorf("level = %q, want Emergency", resp.Level)
	}
	if len(resp.MatchedProtocols) != 1 || resp.MatchedProtocols[0] != "chest-pain" {
		t.Errorf("matched_protocols = %v", resp.MatchedProtocols)
	}
}

func TestHandleTriage_PassesHint(t *testing.T) {
	t.Parallel()

	svc := &stubService{result: &triage.Result{Level: acuity.Moderate, Specialization: "pediatric_nurse"}}
	r := newTestRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage",
		strings.NewReader(`{"symptoms":"child with ear pain","specialization":"pediatric_nurse"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.gotHint != "pediatric_nurse" {
		t.Errorf("service saw hint %q, want pediatric_nurse", svc.gotHint)
	}
}

func TestHandleTriage_BadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{bad`},
		{"missing symptoms", `{}`},
		{"blank symptoms", `{"symptoms":"   "}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newTestRouter(t, &stubService{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/triage", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestHandleTriage_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &stubService{}, nil)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		req := httptest.NewRequest(method, "/api/v1/triage", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /api/v1/triage = %d, want %d", method, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestHandleTriage_ClassificationUnavailable(t *testing.T) {
	t.Parallel()

	svc := &stubService{err: &triage.ClassificationUnavailableError{Err: errors.New("model timeout")}}
	r := newTestRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage",
		strings.NewReader(`{"symptoms":"chest pain"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if !strings.Contains(rec.Body.String(), "escalate") {
		t.Errorf("body = %q, want escalation hint", rec.Body.String())
	}
}

func TestHandleTriage_InternalError(t *testing.T) {
	t.Parallel()

	svc := &stubService{err: errors.New("boom")}
	r := newTestRouter(t, svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/triage",
		strings.NewReader(`{"symptoms":"chest pain"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// GET /api/v1/specializations

func TestHandleListSpecializations(t *testing.T) {
	t.Parallel()

	sets := exemplar.NewPublished()
	sets.Publish(&exemplar.Set{Specialization: "chf_nurse", Version: "01READY"})
	r := newTestRouter(t, &stubService{}, sets)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/specializations", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp struct {
		Specializations []specializationStatus `json:"specializations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	byID := make(map[string]specializationStatus, len(resp.Specializations))
	for _, s := range resp.Specializations {
		byID[s.ID] = s
	}

	chf, ok := byID["chf_nurse"]
	if !ok {
		t.Fatalf("chf_nurse missing from listing: %+v", resp.Specializations)
	}
	if !chf.Ready || chf.ExemplarVersion != "01READY" {
		t.Errorf("chf_nurse = %+v, want ready with version 01READY", chf)
	}

	general, ok := byID[specialize.GeneralID]
	if !ok {
		t.Fatal("general_nurse missing from listing")
	}
	if general.Ready {
		t.Errorf("general_nurse should not be ready with no published set")
	}
}
