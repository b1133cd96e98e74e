// Package hdf5 provides a pure Go implementation for reading and writing HDF5
// files.
package hdf5

import (
	"errors"

	"github.com/robert-malhotra/go-h5store/internal/superblock"
)

var (
	ErrNotHDF5      = superblock.ErrNotHDF5
	ErrNotFound     = errors.New("object not found")
	ErrNotDataset   = errors.New("object is not a dataset")
	ErrNotGroup     = errors.New("object is not a group")
	ErrUnsupported  = errors.New("unsupported feature")
	ErrInvalidPath  = errors.New("invalid path")
	ErrClosed       = errors.New("file is closed")
	ErrLinkDepth    = errors.New("maximum link depth exceeded")
	ErrReadOnly     = errors.New("file is not writable")
	ErrExists       = errors.New("object already exists")
	ErrNotResizable = errors.New("dataset is not resizable")
	ErrOutOfBounds  = errors.New("selection out of bounds")
)

// MaxLinkDepth bounds the number of soft links followed in one lookup.
const MaxLinkDepth = 100
