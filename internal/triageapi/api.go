// Package triageapi exposes the triage service over HTTP.
package triageapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/acuity/internal/exemplar"
	"github.com/linnemanlabs/acuity/internal/specialize"
	"github.com/linnemanlabs/acuity/internal/triage"
)

// maxRequestBytes bounds the request body; symptom descriptions are
// short free text.
const maxRequestBytes = 64 << 10

// TriageService defines the business operations triageapi needs.
type TriageService interface {
	Triage(ctx context.Context, symptoms, hint string) (*triage.Result, error)
}

// SetSource reports the published exemplar set per specialization,
// used to surface readiness and version in listings.
type SetSource interface {
	Get(specialization string) (*exemplar.Set, bool)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	svc      TriageService
	registry *specialize.Registry
	sets     SetSource
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, registry *specialize.Registry, sets SetSource) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if registry == nil {
		panic(xerrors.New("specialization registry is required"))
	}
	return &API{
		logger:   logger,
		svc:      svc,
		registry: registry,
		sets:     sets,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/triage", a.handleTriage)
		r.Get("/specializations", a.handleListSpecializations)
	})
}

type triageRequest struct {
	Symptoms       string `json:"symptoms"`
	Specialization string `json:"specialization,omitempty"`
}

func (a *API) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Symptoms) == "" {
		http.Error(w, `{"error":"symptoms is required"}`, http.StatusBadRequest)
		return
	}

	span := trace.SpanFromContext(r.Context())
	if req.Specialization != "" {
		span.SetAttributes(attribute.String("acuity.triage.hint", req.Specialization))
	}

	result, err := a.svc.Triage(r.Context(), req.Symptoms, req.Specialization)
	if err != nil {
		var unavailable *triage.ClassificationUnavailableError
		if errors.As(err, &unavailable) {
			a.logger.Error(r.Context(), err, "classification unavailable")
			http.Error(w, `{"error":"classification unavailable, escalate to a human"}`, http.StatusBadGateway)
			return
		}
		a.logger.Error(r.Context(), err, "triage failed")
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	span.SetAttributes(
		attribute.String("acuity.triage.level", string(result.Level)),
		attribute.String("acuity.triage.specialization", result.Specialization),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

type specializationStatus struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"display_name"`
	Description      string   `json:"description"`
	FocusKeywords    []string `json:"focus_keywords,omitempty"`
	MinTrainingCases int      `json:"min_training_cases"`
	Ready            bool     `json:"ready"`
	ExemplarVersion  string   `json:"exemplar_version,omitempty"`
}

func (a *API) handleListSpecializations(w http.ResponseWriter, r *http.Request) {
	out := make([]specializationStatus, 0, len(a.registry.IDs()))
	for _, id := range a.registry.IDs() {
		p, _ := a.registry.Get(id)
		status := specializationStatus{
			ID:               p.ID,
			DisplayName:      p.DisplayName,
			Description:      p.Description,
			FocusKeywords:    p.FocusKeywords,
			MinTrainingCases: p.MinTrainingCases,
		}
		if a.sets != nil {
			if set, ok := a.sets.Get(id); ok {
				status.Ready = true
				status.ExemplarVersion = set.Version
			}
		}
		out = append(out, status)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"specializations": out,
	})
}
