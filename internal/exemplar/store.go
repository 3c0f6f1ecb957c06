package exemplar

import "context"

// Store persists compiled exemplar sets, one record per
// specialization, loadable independently so specialists can be updated
// without affecting each other.
type Store interface {
	// Load returns the persisted set for a specialization.
	Load(ctx context.Context, specialization string) (*Set, bool, error)

	// Save persists a compiled set, replacing any prior record for the
	// same specialization.
	Save(ctx context.Context, set *Set) error

	// List returns the specializations that have a persisted set.
	List(ctx context.Context) ([]string, error)
}
