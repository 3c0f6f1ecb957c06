package protocol

import (
	"math"
	"sort"
)

// Matcher ranks protocols by keyword relevance to a symptom text.
// The keyword specificity weights (inverse document frequency across
// the corpus) are computed once at construction and never mutated, so
// a Matcher is safe for concurrent use.
type Matcher struct {
	corpus *Corpus
	idf    map[string]float64 // normalized keyword -> specificity weight
}

// NewMatcher precomputes IDF weights over the corpus keywords.
func NewMatcher(corpus *Corpus) *Matcher {
	df := make(map[string]int)
	for _, id := range corpus.order {
		p := corpus.byID[id]
		seen := make(map[string]struct{}, len(p.Keywords))
		for _, kw := range p.Keywords {
			norm := NormalizeText(kw)
			if norm == "" {
				continue
			}
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			df[norm]++
		}
	}

	n := float64(corpus.Len())
	idf := make(map[string]float64, len(df))
	for kw, count := range df {
		// smoothed so a keyword shared by every protocol still
		// contributes a small positive weight
		idf[kw] = math.Log(1+n/float64(count)) + 1e-9
	}

	return &Matcher{corpus: corpus, idf: idf}
}

// Match returns up to topK protocol ids ordered most relevant first.
// An empty result is a valid, common outcome, not an error.
func (m *Matcher) Match(symptomText string, topK int) []string {
	if topK <= 0 {
		return nil
	}

	normText := NormalizeText(symptomText)
	tokens := Tokens(symptomText)

	type scored struct {
		id    string
		score float64
	}
	var ranked []scored

	for _, id := range m.corpus.order {
		p := m.corpus.byID[id]
		var score float64
		seen := make(map[string]struct{}, len(p.Keywords))
		for _, kw := range p.Keywords {
			norm := NormalizeText(kw)
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			if ContainsKeyword(normText, tokens, norm) {
				score += m.idf[norm]
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{id: id, score: score})
		}
	}

	// ties break by protocol id for determinism
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].id < ranked[j].id
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.id
	}
	return out
}
