// Package acuity defines the triage severity levels and the safety
// metric used to score predicted levels against gold labels.
package acuity

import "fmt"

// Level is a triage acuity level. The set is closed and totally ordered
// by severity: Emergency > Urgent > Moderate > HomeCare.
type Level string

const (
	// Emergency means life-threatening, call an ambulance.
	Emergency Level = "Emergency"

	// Urgent means the patient needs emergency department care within hours.
	Urgent Level = "Urgent"

	// Moderate means the patient needs medical evaluation within 2-4 hours.
	Moderate Level = "Moderate"

	// HomeCare means the symptoms can be managed with self-care at home.
	HomeCare Level = "Home Care"
)

// Levels lists all acuity levels, most severe first.
func Levels() []Level {
	return []Level{Emergency, Urgent, Moderate, HomeCare}
}

// severity ranks levels for over/under-triage comparison only.
// Higher is more severe. Never used for arithmetic.
var severity = map[Level]int{
	Emergency: 4,
	Urgent:    3,
	Moderate:  2,
	HomeCare:  1,
}

// Valid reports whether l is one of the four known levels.
func (l Level) Valid() bool {
	_, ok := severity[l]
	return ok
}

// MoreSevereThan reports whether l is strictly more severe than other.
func (l Level) MoreSevereThan(other Level) bool {
	return severity[l] > severity[other]
}

// Parse maps a string to a Level, tolerating case and spacing
// variations like "home care" or "HOMECARE".
func Parse(s string) (Level, error) {
	switch normalizeLevel(s) {
	case "emergency":
		return Emergency, nil
	case "urgent":
		return Urgent, nil
	case "moderate":
		return Moderate, nil
	case "homecare":
		return HomeCare, nil
	}
	return "", fmt.Errorf("unknown acuity level %q", s)
}

func normalizeLevel(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c >= 'a' && c <= 'z':
			out = append(out, c)
		}
	}
	return string(out)
}
