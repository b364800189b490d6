package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Stable error kinds. Callers branch on the kind, never on the message.
const (
	KindValidation     = "VALIDATION_ERROR"
	KindConflict       = "CONFLICT"
	KindNotFound       = "NOT_FOUND"
	KindUnauthorized   = "UNAUTHORIZED"
	KindPartialFailure = "PARTIAL_FAILURE"
	KindInternal       = "INTERNAL_ERROR"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "Validation error"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

// PartialFailureError reports a multi-step write that could not be applied as
// a unit. Err carries the underlying cause.
type PartialFailureError struct {
	Message string
	Err     error
}

func (e *PartialFailureError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// ErrorKind maps err to its stable kind code.
func ErrorKind(err error) string {
	var (
		validation   *ValidationError
		conflict     *ConflictError
		notFound     *NotFoundError
		unauthorized *UnauthorizedError
		partial      *PartialFailureError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &unauthorized):
		return KindUnauthorized
	case errors.As(err, &partial):
		return KindPartialFailure
	default:
		return KindInternal
	}
}
