// Package protocol holds the clinical protocol corpus and the keyword
// matcher that surfaces grounding context for a symptom description.
package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Protocol is one clinical guideline document. Immutable after load.
type Protocol struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Body     string   `json:"body"`
}

// Corpus owns the protocol documents. It is read-only after Load and
// safe to share across concurrent sessions.
type Corpus struct {
	byID  map[string]*Protocol
	order []string // protocol ids, sorted for deterministic iteration
}

// NewCorpus builds a corpus from the given protocols. IDs must be
// unique and non-empty.
func NewCorpus(protocols []Protocol) (*Corpus, error) {
	c := &Corpus{byID: make(map[string]*Protocol, len(protocols))}
	for i := range protocols {
		p := protocols[i]
		if p.ID == "" {
			return nil, fmt.Errorf("protocol %d (%q): empty id", i, p.Title)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate protocol id %q", p.ID)
		}
		c.byID[p.ID] = &p
		c.order = append(c.order, p.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

// LoadCorpus reads a JSON array of protocols from path.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read protocols: %w", err)
	}
	var protocols []Protocol
	if err := json.Unmarshal(data, &protocols); err != nil {
		return nil, fmt.Errorf("parse protocols %s: %w", path, err)
	}
	return NewCorpus(protocols)
}

// Get returns the protocol with the given id.
func (c *Corpus) Get(id string) (*Protocol, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Len returns the number of protocols in the corpus.
func (c *Corpus) Len() int {
	return len(c.order)
}

// IDs returns all protocol ids in sorted order.
func (c *Corpus) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}
