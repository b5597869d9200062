package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// Sentinel errors. Wrapped errors are marked with one of these so callers
// can branch with Is regardless of the message chain.
var (
	ErrValidation     = cr.New("validation error")
	ErrNotFound       = cr.New("not found")
	ErrConflict       = cr.New("conflict")
	ErrBusy           = cr.New("resource busy")
	ErrSyncInProgress = cr.New("sync already in progress")
	ErrCacheMiss      = cr.New("cache miss")
	ErrInvalidState   = cr.New("invalid state transition")
	ErrForbidden      = cr.New("forbidden")
	ErrExternal       = cr.New("external service failure")
)

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func New(msg string) error {
	return cr.New(msg)
}

func Newf(format string, args ...interface{}) error {
	return cr.Newf(format, args...)
}

func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

// Validation builds a validation error carrying a caller-facing message.
func Validation(format string, args ...interface{}) error {
	return cr.Mark(cr.Newf(format, args...), ErrValidation)
}

// NotFound builds a not-found error for the given entity and key.
func NotFound(entity string, key interface{}) error {
	return cr.Mark(cr.Newf("%s %v not found", entity, key), ErrNotFound)
}

func Is(err, target error) bool {
	return cr.Is(err, target)
}

func As(err error, target interface{}) bool {
	return cr.As(err, target)
}

func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
