package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error taxonomy
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrSubmissionNotFound = fmt.Errorf("%w: submission", ErrNotFound)
	ErrRoundNotFound      = fmt.Errorf("%w: round", ErrNotFound)
	ErrObjectNotFound     = fmt.Errorf("%w: object", ErrNotFound)

	// Data errors
	ErrSchema     = errors.New("schema error")
	ErrEmpty      = errors.New("empty result set")
	ErrDataShape  = errors.New("data shape error")
	ErrStaleCache = errors.New("stale cache entry")

	// Infrastructure errors
	ErrTransientIO = errors.New("transient io error")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewSchemaError(source string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrSchema, source, reason)
}

func NewEmptyError(source string) error {
	return fmt.Errorf("%w: %s", ErrEmpty, source)
}

func NewDataShapeError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDataShape, fmt.Sprintf(format, args...))
}

func NewStaleCacheError(key string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrStaleCache, key, reason)
}

func NewTransientIOError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransientIO, op, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsSchemaError(err error) bool {
	return errors.Is(err, ErrSchema)
}

func IsDataShapeError(err error) bool {
	return errors.Is(err, ErrDataShape)
}

func IsStaleCacheError(err error) bool {
	return errors.Is(err, ErrStaleCache)
}

func IsTransientIOError(err error) bool {
	return errors.Is(err, ErrTransientIO)
}

// IsSoft reports whether err means "no verdict yet" rather than a failure:
// the submission or its columns are missing and a later re-enqueue may succeed.
func IsSoft(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrEmpty)
}

// Classify maps an error onto a short outcome label used in logs and metrics.
func Classify(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsSoft(err):
		return "soft"
	case IsStaleCacheError(err):
		return "stale"
	case IsDataShapeError(err):
		return "shape"
	case IsTransientIOError(err):
		return "transient"
	default:
		return "error"
	}
}
