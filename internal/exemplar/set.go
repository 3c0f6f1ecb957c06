// Package exemplar compiles, publishes, and persists the few-shot
// exemplar sets that prime the acuity classifier per specialization.
package exemplar

import (
	"time"

	"github.com/linnemanlabs/acuity/internal/casebank"
)

// Set is a compiled exemplar set for one specialization. Immutable
// once compiled: re-compilation produces a new Set with a new Version
// rather than mutating in place, so concurrent readers can hold a Set
// without locking.
type Set struct {
	Specialization string                 `json:"specialization"`
	Exemplars      []casebank.LabeledCase `json:"exemplars"`
	BootstrapPool  []casebank.LabeledCase `json:"bootstrap_pool"`
	CompiledAt     time.Time              `json:"compiled_at"`
	Version        string                 `json:"version"`
}
