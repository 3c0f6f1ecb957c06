// Package specialize defines the clinical specialization registry and
// the router that assigns a symptom description to the best-fit
// specialist profile.
package specialize

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// GeneralID is the identifier of the fallback profile every registry
// must contain. Routing degrades to it whenever no specialist is a
// confident fit.
const GeneralID = "general_nurse"

// Profile is the static configuration for one specialist role.
type Profile struct {
	ID               string   `json:"id"`
	DisplayName      string   `json:"display_name"`
	Description      string   `json:"description"`
	FocusKeywords    []string `json:"focus_keywords"`
	FocusProtocolIDs []string `json:"focus_protocol_ids"`
	MinTrainingCases int      `json:"min_training_cases"`
}

// Registry is the validated set of specialization profiles. Read-only
// after construction.
type Registry struct {
	profiles map[string]*Profile
	order    []string
}

// NewRegistry validates the profiles and indexes them by id. Every
// non-general profile needs at least one focus keyword; all profiles
// need a positive minimum training case count; the general profile is
// required.
func NewRegistry(profiles []Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]*Profile, len(profiles))}
	for i := range profiles {
		p := profiles[i]
		if p.ID == "" {
			return nil, fmt.Errorf("profile %d (%q): empty id", i, p.DisplayName)
		}
		if _, dup := r.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile id %q", p.ID)
		}
		if p.ID != GeneralID && len(p.FocusKeywords) == 0 {
			return nil, fmt.Errorf("profile %q: focus keywords required for non-general profiles", p.ID)
		}
		if p.MinTrainingCases <= 0 {
			return nil, fmt.Errorf("profile %q: min training cases must be positive, got %d", p.ID, p.MinTrainingCases)
		}
		r.profiles[p.ID] = &p
		r.order = append(r.order, p.ID)
	}
	if _, ok := r.profiles[GeneralID]; !ok {
		return nil, fmt.Errorf("registry missing required %q profile", GeneralID)
	}
	sort.Strings(r.order)
	return r, nil
}

// LoadRegistry reads a JSON array of profiles from path.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	return NewRegistry(profiles)
}

// Get returns the profile with the given id.
func (r *Registry) Get(id string) (*Profile, bool) {
	p, ok := r.profiles[id]
	return p, ok
}

// General returns the fallback profile.
func (r *Registry) General() *Profile {
	return r.profiles[GeneralID]
}

// IDs returns all profile ids in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Builtin returns the stock registry of specialist roles.
func Builtin() *Registry {
	r, err := NewRegistry(builtinProfiles())
	if err != nil {
		// builtin profiles are compile-time data; failing validation is a bug
		panic(err)
	}
	return r
}

func builtinProfiles() []Profile {
	return []Profile{
		{
			ID:          "chf_nurse",
			DisplayName: "CHF Nurse",
			Description: "Congestive heart failure specialist - cardiac symptoms, fluid overload, dyspnea",
			FocusKeywords: []string{
				"chest pain", "shortness of breath", "dyspnea", "edema", "swelling",
				"heart palpitations", "orthopnea", "diaphoresis", "cardiac",
			},
			FocusProtocolIDs: []string{"chest-pain", "breathing", "swelling", "palpitations"},
			MinTrainingCases: 12,
		},
		{
			ID:          "ed_nurse",
			DisplayName: "ED Nurse",
			Description: "Emergency department specialist - acute trauma, emergencies, rapid assessment",
			FocusKeywords: []string{
				"trauma", "severe pain", "bleeding", "unconscious", "seizure",
				"difficulty breathing", "severe headache", "head injury",
			},
			FocusProtocolIDs: []string{"chest-pain", "head-injury", "abdominal-pain", "bleeding", "breathing", "seizures"},
			MinTrainingCases: 16,
		},
		{
			ID:          "pediatric_nurse",
			DisplayName: "Pediatric Nurse",
			Description: "Child health specialist - infant and child symptoms, developmental concerns",
			FocusKeywords: []string{
				"fever in child", "infant", "child", "rash", "ear pain",
				"crying", "vomiting", "diarrhea",
			},
			FocusProtocolIDs: []string{"fever-child", "cough", "vomiting", "diarrhea", "rash", "ear-pain"},
			MinTrainingCases: 12,
		},
		{
			ID:          "respiratory_nurse",
			DisplayName: "Respiratory Nurse",
			Description: "Respiratory specialist - breathing issues, asthma, COPD, pneumonia",
			FocusKeywords: []string{
				"shortness of breath", "cough", "wheezing", "chest tightness",
				"difficulty breathing", "hypoxia", "respiratory distress", "asthma",
			},
			FocusProtocolIDs: []string{"breathing", "cough", "chest-pain"},
			MinTrainingCases: 12,
		},
		{
			ID:               GeneralID,
			DisplayName:      "General Nurse",
			Description:      "General triage nurse - broad coverage across all symptom types",
			FocusKeywords:    nil, // matches nothing; reached only by fallback
			FocusProtocolIDs: nil,
			MinTrainingCases: 32,
		},
	}
}
