package proximity

import (
	"fmt"

	"github.com/mr1hm/go-disaster-proximity/internal/repository"
)

// ValidationError rejects a query before any backend is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// BackendUnavailableError means the indexed backend's spatial functions are
// missing or broken. The coordinator recovers from it by scanning.
type BackendUnavailableError struct {
	Kind repository.SpatialErrorKind
	Err  error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("indexed backend unavailable (%s): %v", e.Kind, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// QueryExecutionError is any other backend failure. It is not retried.
type QueryExecutionError struct {
	Backend Backend
	Err     error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("%s search failed: %v", e.Backend, e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}
