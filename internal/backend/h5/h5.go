// Package h5 implements the backend contract on top of the pure Go HDF5
// package.
package h5

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-h5store/hdf5"
	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/filter"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Files is the process-wide registry of open HDF5 containers. Closing the
// last one drops the pooled deflate encoders.
var Files = backend.NewRegistry(filter.ReleaseEncoders)

// Opener opens HDF5 containers. A nil Registry uses Files.
type Opener struct {
	Registry *backend.Registry
}

// Open implements backend.Opener.
func (o Opener) Open(path string, mode backend.Mode) (backend.Container, error) {
	var (
		f   *hdf5.File
		err error
	)
	switch mode {
	case backend.ReadOnly:
		f, err = hdf5.Open(path)
	case backend.ReadWrite:
		f, err = hdf5.OpenReadWrite(path)
	case backend.Create:
		f, err = hdf5.Create(path)
	default:
		return nil, fmt.Errorf("unknown open mode %d", mode)
	}
	if err != nil {
		return nil, err
	}

	reg := o.Registry
	if reg == nil {
		reg = Files
	}
	reg.Acquire(path)
	return &container{f: f, reg: reg}, nil
}

type container struct {
	f      *hdf5.File
	reg    *backend.Registry
	closed bool
}

func (c *container) Path() string { return c.f.Path() }

func (c *container) EntryExists(name string) bool {
	return c.f.IsDataset(name)
}

func (c *container) AttributeExists(link, attr string) bool {
	attrs, err := c.f.Attributes(link)
	if err != nil {
		return false
	}
	for _, a := range attrs {
		if a.Name == attr {
			return true
		}
	}
	return false
}

func (c *container) CreateEntry(name string, spec backend.CreateSpec) (backend.Entry, error) {
	var opts []hdf5.DatasetOption
	switch spec.Layout {
	case backend.Contiguous:
		if spec.MaxExtent != nil {
			return nil, fmt.Errorf("%w: contiguous entries cannot have a max extent", hdf5.ErrUnsupported)
		}
	case backend.Chunked:
		opts = append(opts, hdf5.WithChunks(spec.ChunkExtent...))
		if spec.MaxExtent != nil {
			opts = append(opts, hdf5.WithMaxDims(spec.MaxExtent...))
		}
		if spec.CompressionLevel > 0 {
			opts = append(opts, hdf5.WithCompression(spec.CompressionLevel))
		}
	default:
		return nil, fmt.Errorf("%w: creating %s entries", hdf5.ErrUnsupported, spec.Layout)
	}

	ds, err := c.f.CreateDataset(name, spec.ElementType, spec.Extent, opts...)
	if err != nil {
		return nil, translate(err)
	}
	return &entry{ds: ds}, nil
}

func (c *container) OpenEntry(name string) (backend.Entry, error) {
	if !c.f.IsDataset(name) {
		return nil, fmt.Errorf("%w: entry %s", backend.ErrNotFound, name)
	}
	ds, err := c.f.OpenDataset(name)
	if err != nil {
		return nil, translate(err)
	}
	return &entry{ds: ds}, nil
}

func (c *container) WriteAttribute(link string, attr backend.Attribute) error {
	space := message.NewScalarDataspace()
	if attr.Extent != nil {
		space = message.NewDataspace(append([]uint64(nil), attr.Extent...), nil)
	}
	msg := message.NewAttribute(attr.Name, attr.ElementType, space, attr.Data)
	return translate(c.f.PutAttribute(link, msg))
}

func (c *container) ReadAttribute(link, name string) (backend.Attribute, error) {
	attrs, err := c.f.Attributes(link)
	if err != nil {
		return backend.Attribute{}, translate(err)
	}
	for _, a := range attrs {
		if a.Name != name {
			continue
		}
		out := backend.Attribute{Name: a.Name, ElementType: a.Datatype, Data: a.Data}
		if a.Dataspace != nil && !a.Dataspace.IsScalar() {
			out.Extent = append([]uint64(nil), a.Dataspace.Dimensions...)
		}
		return out, nil
	}
	return backend.Attribute{}, fmt.Errorf("%w: attribute %s on %s", backend.ErrNotFound, name, link)
}

func (c *container) AttributeNames(link string) ([]string, error) {
	attrs, err := c.f.Attributes(link)
	if err != nil {
		return nil, translate(err)
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names, nil
}

func (c *container) CreateGroup(name string) error {
	_, err := c.f.CreateGroup(name)
	return translate(err)
}

func (c *container) CreateSoftLink(name, target string) error {
	return translate(c.f.CreateSoftLink(name, target))
}

func (c *container) GroupMembers(name string) ([]string, error) {
	g, err := c.f.OpenGroup(name)
	if err != nil {
		return nil, translate(err)
	}
	return g.Members()
}

func (c *container) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	defer c.reg.Release(c.f.Path())
	return c.f.Close()
}

type entry struct {
	ds *hdf5.Dataset
}

func (e *entry) Name() string { return e.ds.Path() }

func (e *entry) ElementType() *message.Datatype { return e.ds.Datatype() }

func (e *entry) Shape() (int, []uint64, []uint64) {
	if e.ds.IsScalar() {
		return 0, nil, nil
	}
	extent := append([]uint64(nil), e.ds.Shape()...)
	return len(extent), extent, e.ds.MaxDims()
}

func (e *entry) Layout() backend.Layout {
	switch e.ds.LayoutClass() {
	case message.LayoutChunked:
		return backend.Chunked
	case message.LayoutCompact:
		return backend.Compact
	default:
		return backend.Contiguous
	}
}

func (e *entry) ChunkShape() []uint64 { return e.ds.ChunkDims() }

func (e *entry) CompressionLevel() int { return e.ds.CompressionLevel() }

func (e *entry) SetExtent(extent []uint64) error {
	return translate(e.ds.Resize(extent))
}

func (e *entry) ReadRaw(mem, file backend.Selection, buf []byte) error {
	if err := e.checkSelections(mem, file, buf); err != nil {
		return err
	}
	data, err := e.ds.ReadRegion(file.Start, file.Count)
	if err != nil {
		return translate(err)
	}
	if len(data) < len(buf) {
		return fmt.Errorf("short read: %d of %d bytes", len(data), len(buf))
	}
	copy(buf, data)
	return nil
}

func (e *entry) WriteRaw(mem, file backend.Selection, buf []byte) error {
	if err := e.checkSelections(mem, file, buf); err != nil {
		return err
	}
	return translate(e.ds.WriteRegion(file.Start, file.Count, buf))
}

func (e *entry) checkSelections(mem, file backend.Selection, buf []byte) error {
	for _, s := range mem.Start {
		if s != 0 {
			return fmt.Errorf("%w: memory selection must start at the origin", hdf5.ErrUnsupported)
		}
	}
	if mem.Elements() != file.Elements() {
		return fmt.Errorf("%w: memory selection has %d elements, file selection %d",
			hdf5.ErrOutOfBounds, mem.Elements(), file.Elements())
	}
	if want := mem.Elements() * uint64(e.ds.DtypeSize()); uint64(len(buf)) != want {
		return fmt.Errorf("buffer holds %d bytes, selection needs %d", len(buf), want)
	}
	return nil
}

func (e *entry) Close() error { return nil }

// translate maps hdf5 sentinels onto their backend counterparts, keeping the
// original error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hdf5.ErrNotFound):
		return fmt.Errorf("%w: %w", backend.ErrNotFound, err)
	case errors.Is(err, hdf5.ErrReadOnly):
		return fmt.Errorf("%w: %w", backend.ErrReadOnly, err)
	default:
		return err
	}
}
