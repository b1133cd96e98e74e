package h5store

import (
	"errors"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/handle"
	"github.com/robert-malhotra/go-h5store/internal/marshal"
	"github.com/robert-malhotra/go-h5store/internal/metrics"
	"github.com/robert-malhotra/go-h5store/internal/props"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
)

const (
	opWriteEntry = "write entry"
	opReadEntry  = "read entry"
	opEntryInfo  = "entry info"
)

// WriteEntry writes data to the entry name, creating it and any missing
// parent groups when needed. Unsupported types fail before the file is
// touched.
func WriteEntry[T any](f *File, name string, data T, opts ...EntryOption) error {
	if _, err := typeinfo.For[T](); err != nil {
		return &Error{Op: opWriteEntry, Entry: name, Err: err}
	}
	return f.writeEntry(name, data, opts)
}

// ReadEntry reads the entry name into a new T.
func ReadEntry[T any](f *File, name string) (T, error) {
	var v T
	err := ReadEntryInto(f, name, &v)
	return v, err
}

// ReadEntryInto reads the entry name into dst. Slices are replaced, fixed
// arrays must match the entry's element count and tensors are resized to
// the entry's extent. A nil tensor pointer is allocated.
func ReadEntryInto[T any](f *File, name string, dst *T) error {
	if _, err := typeinfo.For[T](); err != nil {
		return &Error{Op: opReadEntry, Entry: name, Err: err}
	}
	return f.readEntry(name, dst)
}

func (f *File) writeEntry(name string, data any, opts []EntryOption) (err error) {
	defer func() { f.stats.Observe(metrics.OpWriteEntry, err) }()

	val, err := marshal.Describe(data)
	if err != nil {
		return &Error{Op: opWriteEntry, Entry: name, Err: err}
	}

	var eo entryOptions
	for _, opt := range opts {
		opt(&eo)
	}
	ov := props.Overrides{
		Layout:      eo.layout,
		ChunkShape:  eo.chunkShape,
		Compression: eo.compression,
		Extendable:  eo.extendable,
	}

	var layout string
	err = f.session(backend.ReadWrite, func(c backend.Container, scope *handle.Scope) error {
		ep, err := f.resolver(c, scope).Write(val.Source, name, ov)
		if err != nil {
			return err
		}
		layout = ep.Layout.String()

		if err := marshal.Write(ep, c, val); err != nil {
			return err
		}
		f.stats.AddWritten(ep.ByteCount)
		f.log.Debug("wrote entry",
			zap.String("entry", ep.Name),
			zap.Uint64s("extent", ep.Extent),
			zap.Uint64("bytes", ep.ByteCount))
		return nil
	})
	if err != nil {
		var ee *props.EntryError
		if errors.As(err, &ee) {
			layout = ee.Layout.String()
		}
		return &Error{Op: opWriteEntry, Entry: name, Layout: layout, Err: err}
	}
	return nil
}

func (f *File) readEntry(name string, dst any) (err error) {
	defer func() { f.stats.Observe(metrics.OpReadEntry, err) }()

	var layout string
	err = f.session(backend.ReadOnly, func(c backend.Container, scope *handle.Scope) error {
		ep, err := f.resolver(c, scope).Read(name)
		if err != nil {
			return err
		}
		layout = ep.Layout.String()

		if err := marshal.Read(ep, dst); err != nil {
			return err
		}
		f.stats.AddRead(ep.ByteCount)
		return nil
	})
	if err != nil {
		return &Error{Op: opReadEntry, Entry: name, Layout: layout, Err: err}
	}
	return nil
}

// EntryExists reports whether name resolves to an entry.
func (f *File) EntryExists(name string) bool {
	clean, err := props.NormalizeName(name)
	if err != nil {
		return false
	}
	var ok bool
	err = f.session(backend.ReadOnly, func(c backend.Container, _ *handle.Scope) error {
		ok = c.EntryExists(clean)
		return nil
	})
	return err == nil && ok
}

// EntryInfo describes a stored entry.
type EntryInfo struct {
	Name             string
	Rank             int
	Extent           []uint64
	MaxExtent        []uint64
	Layout           Layout
	ChunkShape       []uint64
	CompressionLevel int
	Extensible       bool
	ElementSize      uint32
	ElementCount     uint64
	ByteCount        uint64
}

// EntryInfo returns the shape and storage settings of the entry name.
func (f *File) EntryInfo(name string) (EntryInfo, error) {
	var info EntryInfo
	err := f.session(backend.ReadOnly, func(c backend.Container, scope *handle.Scope) error {
		ep, err := f.resolver(c, scope).Read(name)
		if err != nil {
			return err
		}
		info = EntryInfo{
			Name:             ep.Name,
			Rank:             ep.Rank,
			Extent:           ep.Extent,
			MaxExtent:        ep.MaxExtent,
			Layout:           ep.Layout,
			ChunkShape:       ep.ChunkExtent,
			CompressionLevel: ep.CompressionLevel,
			Extensible:       ep.Extensible,
			ElementSize:      ep.ElementType.Size,
			ElementCount:     ep.ElementCount,
			ByteCount:        ep.ByteCount,
		}
		return nil
	})
	if err != nil {
		return EntryInfo{}, &Error{Op: opEntryInfo, Entry: name, Err: err}
	}
	return info, nil
}
