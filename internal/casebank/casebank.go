// Package casebank loads and serves the gold-standard labeled triage
// cases used to compile exemplar sets.
package casebank

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/linnemanlabs/acuity/internal/acuity"
)

// LabeledCase is one gold-standard case. Immutable: loaded once from
// the case store and read many times.
type LabeledCase struct {
	ID             string       `json:"id"`
	Symptoms       string       `json:"symptoms"`
	GoldLevel      acuity.Level `json:"gold_level"`
	Rationale      string       `json:"rationale"`
	Specialization string       `json:"specialization,omitempty"`
}

// Bank holds the loaded cases in their original order. Read-only after
// construction and safe to share.
type Bank struct {
	cases []LabeledCase
}

// New builds a bank, validating each case's gold level.
func New(cases []LabeledCase) (*Bank, error) {
	for i, c := range cases {
		if c.Symptoms == "" {
			return nil, fmt.Errorf("case %d (%q): empty symptoms", i, c.ID)
		}
		if !c.GoldLevel.Valid() {
			return nil, fmt.Errorf("case %d (%q): invalid gold level %q", i, c.ID, c.GoldLevel)
		}
	}
	b := &Bank{cases: make([]LabeledCase, len(cases))}
	copy(b.cases, cases)
	return b, nil
}

// Load reads a JSON array of labeled cases from path.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	var raw []struct {
		ID             string `json:"id"`
		Symptoms       string `json:"symptoms"`
		GoldLevel      string `json:"gold_level"`
		Rationale      string `json:"rationale"`
		Specialization string `json:"specialization"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse cases %s: %w", path, err)
	}

	cases := make([]LabeledCase, 0, len(raw))
	for i, r := range raw {
		level, err := acuity.Parse(r.GoldLevel)
		if err != nil {
			return nil, fmt.Errorf("case %d (%q): %w", i, r.ID, err)
		}
		cases = append(cases, LabeledCase{
			ID:             r.ID,
			Symptoms:       r.Symptoms,
			GoldLevel:      level,
			Rationale:      r.Rationale,
			Specialization: r.Specialization,
		})
	}
	return New(cases)
}

// Len returns the total number of cases.
func (b *Bank) Len() int {
	return len(b.cases)
}

// All returns a copy of every case in load order.
func (b *Bank) All() []LabeledCase {
	out := make([]LabeledCase, len(b.cases))
	copy(out, b.cases)
	return out
}

// ForSpecialization returns the cases tagged with the given
// specialization, preserving load order. An empty id returns every
// case; the bank does not know which role ids mean "all", callers
// that want the full bank pass "" or use All.
func (b *Bank) ForSpecialization(id string) []LabeledCase {
	if id == "" {
		return b.All()
	}
	var out []LabeledCase
	for _, c := range b.cases {
		if c.Specialization == id {
			out = append(out, c)
		}
	}
	return out
}

// Distribution counts cases per gold level, for compile-time logging.
func Distribution(cases []LabeledCase) map[acuity.Level]int {
	out := make(map[acuity.Level]int)
	for _, c := range cases {
		out[c.GoldLevel]++
	}
	return out
}
