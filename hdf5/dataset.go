package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/layout"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// Dataset is an open dataset. Its header messages are cached; writes
// replace the header and refresh the cache.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    layout.Layout
	layoutMsg *message.DataLayout
	filters   *message.FilterPipeline
}

func newDataset(f *File, p string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{
		file:      f,
		path:      p,
		header:    header,
		dataspace: header.Dataspace(),
		datatype:  header.Datatype(),
		layoutMsg: header.DataLayout(),
		filters:   header.FilterPipeline(),
	}
	switch {
	case ds.dataspace == nil:
		return nil, fmt.Errorf("dataset %s has no dataspace", p)
	case ds.datatype == nil:
		return nil, fmt.Errorf("dataset %s has no datatype", p)
	case ds.layoutMsg == nil:
		return nil, fmt.Errorf("dataset %s has no layout", p)
	}

	var err error
	if ds.layout, err = layout.New(ds.layoutMsg, ds.dataspace, ds.datatype, ds.filters, f.reader); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", p, err)
	}
	return ds, nil
}

func (d *Dataset) Name() string { return path.Base(d.path) }
func (d *Dataset) Path() string { return d.path }

// Shape returns the current extent, nil for a scalar dataset.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

func (d *Dataset) Rank() int { return d.dataspace.Rank }

func (d *Dataset) NumElements() uint64 { return d.dataspace.NumElements() }

func (d *Dataset) IsScalar() bool { return d.dataspace.IsScalar() }

// DtypeSize is the size of one element in bytes.
func (d *Dataset) DtypeSize() int { return int(d.datatype.Size) }

func (d *Dataset) DtypeClass() message.DatatypeClass { return d.datatype.Class }

// Read decodes the whole dataset into dest, usually a pointer to a slice.
// Numeric elements convert to the slice's element type.
func (d *Dataset) Read(dest any) error {
	raw, err := d.layout.Read()
	if err != nil {
		return fmt.Errorf("reading %s: %w", d.path, err)
	}
	return dtype.ConvertWithReader(d.datatype, raw, d.NumElements(), dest, d.file.reader)
}

func (d *Dataset) ReadFloat64() ([]float64, error) {
	var out []float64
	err := d.Read(&out)
	return out, err
}

func (d *Dataset) ReadString() ([]string, error) {
	var out []string
	err := d.Read(&out)
	return out, err
}

// Attrs returns the names of the dataset's attributes.
func (d *Dataset) Attrs() []string { return attrNames(d.header) }

// Attr returns the attribute called name, or nil.
func (d *Dataset) Attr(name string) *Attribute { return d.file.attr(d.header, name) }
