// Package apperr defines the error taxonomy shared by the hub engine and its
// command surfaces.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrNameFormat   = errors.New("invalid name")
	ErrCollision    = errors.New("name collision")
	ErrStorage      = errors.New("storage operation failed")
	ErrAnomaly      = errors.New("structural anomaly")
	ErrConfirmation = errors.New("confirmation mismatch")

	// ErrStale means the metadata snapshot no longer matches the document on
	// disk. Callers retry after the cache catches up.
	ErrStale = errors.New("metadata is stale")
)

// Kind discriminates the failure classes of a hub or item operation.
type Kind int

const (
	KindUnknown Kind = iota
	KindNameFormat
	KindCollision
	KindStorage
	KindAnomaly
	KindNotFound
	KindConfirmation
)

func (k Kind) String() string {
	switch k {
	case KindNameFormat:
		return "name_format"
	case KindCollision:
		return "collision"
	case KindStorage:
		return "storage"
	case KindAnomaly:
		return "anomaly"
	case KindNotFound:
		return "not_found"
	case KindConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNameFormat:
		return ErrNameFormat
	case KindCollision:
		return ErrCollision
	case KindStorage:
		return ErrStorage
	case KindAnomaly:
		return ErrAnomaly
	case KindNotFound:
		return ErrNotFound
	case KindConfirmation:
		return ErrConfirmation
	default:
		return nil
	}
}

// Error is a classified failure scoped to a single operation on a path.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// New returns a classified error. err may be nil.
func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	if s := e.Kind.sentinel(); s != nil {
		return fmt.Sprintf("%s: %s", msg, s.Error())
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the sentinel of its kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf extracts the Kind of err, falling back to sentinel matching for
// errors produced outside this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, ErrNameFormat):
		return KindNameFormat
	case errors.Is(err, ErrCollision), errors.Is(err, ErrAlreadyExists):
		return KindCollision
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfirmation):
		return KindConfirmation
	case errors.Is(err, ErrAnomaly):
		return KindAnomaly
	case errors.Is(err, ErrStorage):
		return KindStorage
	}
	return KindUnknown
}
