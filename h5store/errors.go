package h5store

import (
	"errors"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/marshal"
	"github.com/robert-malhotra/go-h5store/internal/props"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
)

// Errors returned by store operations. Use errors.Is to test for them.
var (
	ErrEntryNotFound    = props.ErrEntryNotFound
	ErrRankMismatch     = props.ErrRankMismatch
	ErrTypeMismatch     = props.ErrTypeMismatch
	ErrExtentMismatch   = props.ErrExtentMismatch
	ErrExtentExceeded   = props.ErrExtentExceeded
	ErrInvalidName      = props.ErrInvalidName
	ErrBackend          = props.ErrBackend
	ErrTypeSizeMismatch = marshal.ErrTypeSizeMismatch
	ErrWriteFailed      = marshal.ErrWriteFailed
	ErrReadFailed       = marshal.ErrReadFailed
	ErrUnsupportedType  = typeinfo.ErrUnsupportedType
	ErrReadOnly         = backend.ErrReadOnly

	ErrAttributeNotFound = errors.New("attribute not found")
	ErrClosed            = errors.New("file is closed")
)

// Error describes a failed operation on one entry or attribute.
type Error struct {
	Op     string
	Entry  string
	Layout string
	Err    error
}

func (e *Error) Error() string {
	s := "h5store: " + e.Op
	if e.Entry != "" {
		s += " " + e.Entry
	}
	if e.Layout != "" {
		s += " (" + e.Layout + ")"
	}
	return s + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
