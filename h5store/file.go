// Package h5store persists typed Go containers as entries and attributes of
// an HDF5 file.
//
// Scalars, strings, arrays, slices, rectangular nested slices and the N-D
// blocks of package tensor are supported. Writing to an existing entry keeps
// its element type, layout and chunking and grows it when its shape allows.
// Every call opens the file, does its work and closes it again, so a File
// holds no open handles between calls. A File is not safe for concurrent
// use.
package h5store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/backend/h5"
	"github.com/robert-malhotra/go-h5store/internal/handle"
	"github.com/robert-malhotra/go-h5store/internal/metrics"
	"github.com/robert-malhotra/go-h5store/internal/props"
)

// File is an HDF5 file used as an entry store.
type File struct {
	path   string
	opts   options
	opener backend.Opener
	log    *zap.Logger
	stats  *metrics.Metrics
	closed bool
}

// ActiveFiles returns the number of HDF5 files currently open in this
// process. It is zero between calls.
func ActiveFiles() int {
	return h5.Files.Count()
}

// Open prepares the file at path according to the create mode and checks
// that it is a readable HDF5 file.
func Open(path string, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &Error{Op: "open", Entry: path, Err: err}
	}
	f := &File{
		path:   abs,
		opts:   o,
		opener: h5.Opener{},
		log:    o.log.With(zap.String("file", abs)),
	}
	if o.registerer != nil {
		f.stats = metrics.New(o.registerer)
	}

	if err := f.prepare(); err != nil {
		return nil, &Error{Op: "open", Entry: abs, Err: err}
	}
	f.log.Debug("opened file",
		zap.Stringer("create_mode", o.createMode),
		zap.Stringer("access", o.access))
	return f, nil
}

func (f *File) prepare() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	exists := true
	if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
		exists = false
	} else if err != nil {
		return err
	}

	mode := backend.ReadOnly
	switch f.opts.createMode {
	case ModeOpen:
		if !exists {
			if f.opts.access == ReadOnly {
				return fmt.Errorf("%w: %w", ErrBackend, fs.ErrNotExist)
			}
			mode = backend.Create
		}
	case ModeTruncate:
		mode = backend.Create
	case ModeRename:
		if exists {
			renamed := freeName(f.path)
			f.log.Info("file exists, choosing a new name", zap.String("new", renamed))
			f.path = renamed
			f.log = f.opts.log.With(zap.String("file", renamed))
		}
		mode = backend.Create
	default:
		return fmt.Errorf("unknown create mode %s", f.opts.createMode)
	}

	c, err := f.opener.Open(f.path, mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	return nil
}

// freeName appends -1, -2, ... to the stem of path until no file exists
// under that name.
func freeName(path string) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := stem + "-" + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
	}
}

// Path returns the absolute path of the file. With ModeRename it is the
// name that was actually created.
func (f *File) Path() string { return f.path }

// Close marks the file closed. Later calls fail with ErrClosed.
func (f *File) Close() error {
	f.closed = true
	return nil
}

// session opens the container in mode and runs fn within a handle scope.
// The scope, and with it every handle fn acquired, is released when fn
// returns.
func (f *File) session(mode backend.Mode, fn func(c backend.Container, scope *handle.Scope) error) (err error) {
	if f.closed {
		return ErrClosed
	}
	if mode != backend.ReadOnly && f.opts.access == ReadOnly {
		return fmt.Errorf("%w: %s was opened read-only", ErrReadOnly, f.path)
	}

	scope := handle.NewScope()
	defer func() {
		if cerr := scope.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("%w: closing: %w", ErrBackend, cerr))
		}
	}()

	c, err := f.opener.Open(f.path, mode)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBackend, err)
	}
	handle.Add(scope, handle.New(c, func(c backend.Container) error { return c.Close() }))

	return fn(c, scope)
}

func (f *File) resolver(c backend.Container, scope *handle.Scope) *props.Resolver {
	return &props.Resolver{
		Container:   c,
		Scope:       scope,
		Policy:      f.opts.policy,
		Compression: f.opts.compression,
		Log:         f.log,
	}
}

// backendErr wraps container failures that did not come from the engine.
func backendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, backend.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrEntryNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrBackend, err)
}
