// Package apperr defines the sentinel errors shared by the import engine and
// its surfaces. Callers wrap them with context and test with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Import errors. The first two abort the file being imported; the rest are
// recovered locally and recorded in the session's ignored log.
var (
	ErrUnsupportedValueShape        = errors.New("unsupported property value shape")
	ErrUnresolvedReference          = errors.New("unresolved reference")
	ErrMalformedBuiltinValue        = errors.New("malformed built-in property value")
	ErrUnsupportedFileFormat        = errors.New("unsupported file format")
	ErrUnhandledPageAttributeChange = errors.New("unhandled page attribute change")
	ErrDiscardedPropertyValue       = errors.New("discarded property value")
)

// ErrConstraintViolation is returned by the database when a transaction
// breaks a uniqueness or reference constraint. Nothing is committed.
var ErrConstraintViolation = errors.New("constraint violation")
