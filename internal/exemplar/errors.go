package exemplar

import "fmt"

// InsufficientDataError reports that a specialization has too few
// labeled cases to compile. It is recoverable by adding data and never
// silently downgraded to compiling with fewer cases.
type InsufficientDataError struct {
	Specialization string
	Have           int
	Need           int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data for %q: have %d cases, need %d",
		e.Specialization, e.Have, e.Need)
}
