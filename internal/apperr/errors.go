// Package apperr holds the sentinel errors shared by the store, the facade and
// the transports. Callers match them with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateNote = errors.New("duplicate note")
	ErrInvalid       = errors.New("invalid argument")
	ErrMirrorIO      = errors.New("mirror io failure")
	ErrImport        = errors.New("import failure")
	ErrSchema        = errors.New("schema failure")
)
