package examination

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports required fields missing from a sub-record payload.
type ValidationError struct {
	Kind   string
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing required field(s): %s", e.Kind, strings.Join(e.Fields, ", "))
}

// NotFoundError reports an id outside the caller's visit/kind scope.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// PartialAggregationError names the kinds a snapshot was built without.
// It accompanies a usable snapshot, it does not replace it.
type PartialAggregationError struct {
	Kinds  []string
	Causes map[string]error
}

func (e *PartialAggregationError) Error() string {
	return fmt.Sprintf("snapshot built without %d kind(s): %s", len(e.Kinds), strings.Join(e.Kinds, ", "))
}

func (e *PartialAggregationError) Unwrap() []error {
	out := make([]error, 0, len(e.Causes))
	for _, k := range e.Kinds {
		if err := e.Causes[k]; err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Add records a failed kind.
func (e *PartialAggregationError) Add(kind string, cause error) {
	if e.Causes == nil {
		e.Causes = map[string]error{}
	}
	if _, dup := e.Causes[kind]; !dup {
		e.Kinds = append(e.Kinds, kind)
		sort.Strings(e.Kinds)
	}
	e.Causes[kind] = cause
}

// TransportError wraps network failures and unexpected upstream statuses.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
