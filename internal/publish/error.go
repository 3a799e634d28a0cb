package publish

import "fmt"

// Error is the uniform publish failure reported to callers. Backend-specific
// failures are translated into it so that error handling upstream does not
// depend on any backend's error vocabulary. The original failure remains
// reachable via errors.Unwrap.
type Error struct {
	Backend string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publishing metrics batch via %s: %v", e.Backend, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError wraps a backend failure in the uniform publish error.
func NewError(backend string, cause error) *Error {
	return &Error{Backend: backend, Cause: cause}
}
