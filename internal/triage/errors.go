package triage

import "fmt"

// ClassificationUnavailableError reports that the classifier failed or
// timed out. It is surfaced to the caller instead of any default
// acuity level: a missing answer must never be mistaken for "safe to
// send home".
type ClassificationUnavailableError struct {
	Err error
}

func (e *ClassificationUnavailableError) Error() string {
	return fmt.Sprintf("classification unavailable: %v", e.Err)
}

func (e *ClassificationUnavailableError) Unwrap() error {
	return e.Err
}
