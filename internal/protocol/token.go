package protocol

import "strings"

// NormalizeText lowercases text and strips punctuation, collapsing
// whitespace to single spaces. The result is suitable for token and
// phrase matching.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens returns the set of normalized single-word tokens in text.
func Tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(NormalizeText(text)) {
		out[tok] = struct{}{}
	}
	return out
}

// ContainsKeyword reports whether the normalized keyword occurs in the
// symptom text. Single-word keywords match against the token set;
// multi-word keywords ("chest pain") match as phrases against the
// normalized text.
func ContainsKeyword(normText string, tokens map[string]struct{}, keyword string) bool {
	kw := NormalizeText(keyword)
	if kw == "" {
		return false
	}
	if !strings.Contains(kw, " ") {
		_, ok := tokens[kw]
		return ok
	}
	// pad to avoid matching inside larger words
	return strings.Contains(" "+normText+" ", " "+kw+" ")
}
