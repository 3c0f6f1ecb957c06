package specialize

import (
	"math"

	"github.com/linnemanlabs/acuity/internal/protocol"
)

// routerTopK is how many protocol matches the router consults when
// breaking score ties between profiles.
const routerTopK = 3

// Router assigns a symptom text to the best-fit specialist profile.
// Routing never fails: ambiguity and low confidence both degrade to
// the general profile.
type Router struct {
	registry *Registry
	matcher  *protocol.Matcher
	idf      map[string]float64 // focus keyword -> specificity across profiles
	minScore float64
}

// NewRouter precomputes keyword specificity across the registry's
// focus keywords. minScore is the minimum raw score a specialist must
// reach; at or below it the router falls back to general. The zero
// value means a single keyword match is enough.
func NewRouter(registry *Registry, matcher *protocol.Matcher, minScore float64) *Router {
	df := make(map[string]int)
	for _, id := range registry.order {
		p := registry.profiles[id]
		seen := make(map[string]struct{}, len(p.FocusKeywords))
		for _, kw := range p.FocusKeywords {
			norm := protocol.NormalizeText(kw)
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

	n := float64(len(registry.order))
	idf := make(map[string]float64, len(df))
	for kw, count := range df {
		idf[kw] = math.Log(1+n/float64(count)) + 1e-9
	}

	return &Router{registry: registry, matcher: matcher, idf: idf, minScore: minScore}
}

// Route returns the best-fit specialization id and a confidence in
// [0,1]. Below the minimum score it returns the general profile with
// confidence 0.0 rather than guessing a specialist.
func (r *Router) Route(symptomText string) (string, float64) {
	normText := protocol.NormalizeText(symptomText)
	tokens := protocol.Tokens(symptomText)

	type candidate struct {
		id    string
		score float64
		max   float64 // total achievable weight, for normalization
	}

	var best []candidate
	var bestScore float64

	for _, id := range r.registry.order {
		p := r.registry.profiles[id]
		if id == GeneralID {
			continue
		}
		var score, max float64
		seen := make(map[string]struct{}, len(p.FocusKeywords))
		for _, kw := range p.FocusKeywords {
			norm := protocol.NormalizeText(kw)
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}
			max += r.idf[norm]
			if protocol.ContainsKeyword(normText, tokens, norm) {
				score += r.idf[norm]
			}
		}
		if score <= r.minScore || score == 0 {
			continue
		}
		switch {
		case score > bestScore:
			bestScore = score
			best = []candidate{{id: id, score: score, max: max}}
		case score == bestScore:
			best = append(best, candidate{id: id, score: score, max: max})
		}
	}

	if len(best) == 0 {
		return GeneralID, 0.0
	}

	winner := best[0]
	if len(best) > 1 {
		// tie-break: prefer the profile whose focus protocols overlap
		// most with the matcher's top results for this text
		top := r.matcher.Match(symptomText, routerTopK)
		bestOverlap := -1
		tied := false
		for _, c := range best {
			overlap := protocolOverlap(r.registry.profiles[c.id].FocusProtocolIDs, top)
			if overlap > bestOverlap {
				bestOverlap = overlap
				winner = c
				tied = false
			} else if overlap == bestOverlap {
				tied = true
			}
		}
		if tied {
			return GeneralID, 0.0
		}
	}

	confidence := winner.score / winner.max
	if confidence > 1 {
		confidence = 1
	}
	return winner.id, confidence
}

func protocolOverlap(focus, matched []string) int {
	set := make(map[string]struct{}, len(focus))
	for _, id := range focus {
		set[id] = struct{}{}
	}
	count := 0
	for _, id := range matched {
		if _, ok := set[id]; ok {
			count++
		}
	}
	return count
}
