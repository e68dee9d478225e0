// Package storage defines the Backend contract every blob storage variant
// (filesystem, S3, Azure Block Blob, GCS, in-memory) implements, plus the
// shared error kinds and content-addressed path layout used by all of them
// (spec §4.1, §7).
package storage

import "errors"

// Kind classifies a storage-layer error the way spec §7 enumerates them.
// Kind is not an exception type — it is attached to a Go error via wrapping
// so callers can branch with errors.Is/errors.As without a type switch over
// every backend's own error values.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindCorrupt
	KindTransient
	KindFatal
	KindCasConflict
	KindMergeConflict
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindCorrupt:
		return "corrupt"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	case KindCasConflict:
		return "cas_conflict"
	case KindMergeConflict:
		return "merge_conflict"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so error-handling policy
// (retry, surface, log-and-surface) can be driven by Kind alone.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a Kind-tagged Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ErrNotFound indicates the requested key is absent from the backend.
var ErrNotFound = NewError(KindNotFound, "storage", errors.New("key not found"))

// ErrAlreadyExists indicates a create-only write found an existing key.
var ErrAlreadyExists = NewError(KindAlreadyExists, "storage", errors.New("key already exists"))

// ErrCasConflict indicates a compare-and-set put lost the race.
var ErrCasConflict = NewError(KindCasConflict, "storage", errors.New("compare-and-set conflict"))

// IsNotFound reports whether err (or a wrapped cause) denotes a missing key.
func IsNotFound(err error) bool {
	return kindOf(err) == KindNotFound
}

// IsTransient reports whether err denotes a retryable failure.
func IsTransient(err error) bool {
	return kindOf(err) == KindTransient
}

func kindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
