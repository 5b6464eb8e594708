package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalid         = errors.New("invalid")
	ErrConflict        = errors.New("conflict")
	ErrTooMany         = errors.New("too many requests")
	ErrInternal        = errors.New("internal")
	ErrUnavailable     = errors.New("ai not configured")
	ErrUpstream        = errors.New("upstream provider failure")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedOutput)
}

// ErrProfileNotFound is returned when the owner has no CV to retrieve from.
var ErrProfileNotFound = fmt.Errorf("%w: profile", ErrNotFound)
