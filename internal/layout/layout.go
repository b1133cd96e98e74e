package layout

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

var (
	ErrUnsupportedIndex = errors.New("unsupported chunk index")
	ErrSelection        = errors.New("invalid selection")
	ErrCorruptIndex     = errors.New("corrupt chunk index")
)

// Layout reads the raw bytes of a dataset.
type Layout interface {
	// Read returns every element in row-major order.
	Read() ([]byte, error)

	// ReadSlice returns the count-shaped box at start, in row-major order.
	ReadSlice(start, count []uint64) ([]byte, error)

	Class() message.LayoutClass
}

// New picks the reader for a data layout message.
func New(
	lay *message.DataLayout,
	space *message.Dataspace,
	dt *message.Datatype,
	pipeline *message.FilterPipeline,
	r *binary.Reader,
) (Layout, error) {
	if lay == nil {
		return nil, fmt.Errorf("nil layout message")
	}
	switch lay.Class {
	case message.LayoutCompact:
		return NewCompact(lay, space, dt), nil
	case message.LayoutContiguous:
		return NewContiguous(lay, space, dt, r), nil
	case message.LayoutChunked:
		return NewChunked(lay, space, dt, pipeline, r)
	default:
		return nil, fmt.Errorf("unsupported layout class: %d", lay.Class)
	}
}

func dataSize(space *message.Dataspace, dt *message.Datatype) uint64 {
	if space == nil || dt == nil {
		return 0
	}
	return space.NumElements() * uint64(dt.Size)
}

// slice copies a selection out of a full row-major buffer of shape dims.
func slice(data []byte, dims, start, count []uint64, elemSize uint64) ([]byte, error) {
	if len(dims) == 0 {
		if len(start) != 0 || len(count) != 0 {
			return nil, fmt.Errorf("%w: scalar datasets take an empty selection", ErrSelection)
		}
		return data, nil
	}
	if len(start) != len(dims) || len(count) != len(dims) {
		return nil, fmt.Errorf("%w: want rank %d, got start %d and count %d", ErrSelection, len(dims), len(start), len(count))
	}
	n := elemSize
	for d := range dims {
		if start[d]+count[d] > dims[d] {
			return nil, fmt.Errorf("%w: dimension %d: %d+%d > %d", ErrSelection, d, start[d], count[d], dims[d])
		}
		n *= count[d]
	}
	if uint64(len(data)) < elemSize*product(dims) {
		return nil, fmt.Errorf("%w: %d bytes for shape %v", ErrSelection, len(data), dims)
	}

	out := make([]byte, n)
	CopyRegion(out, count, make([]uint64, len(count)), data, dims, start, count, elemSize)
	return out, nil
}

func product(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

// Compact storage keeps the data inside the object header.
type Compact struct {
	data     []byte
	dims     []uint64
	elemSize uint64
}

func NewCompact(lay *message.DataLayout, space *message.Dataspace, dt *message.Datatype) *Compact {
	c := &Compact{data: lay.CompactData}
	if space != nil {
		c.dims = space.Dimensions
	}
	if dt != nil {
		c.elemSize = uint64(dt.Size)
	}
	return c
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

// Size is the number of bytes held in the header.
func (c *Compact) Size() int { return len(c.data) }

// Read returns a copy of the header bytes.
func (c *Compact) Read() ([]byte, error) {
	return append([]byte(nil), c.data...), nil
}

func (c *Compact) ReadSlice(start, count []uint64) ([]byte, error) {
	data, _ := c.Read()
	return slice(data, c.dims, start, count, c.elemSize)
}

// Contiguous storage is one block of the file. An undefined address means
// the block was never allocated and reads as zeros.
type Contiguous struct {
	address  uint64
	size     uint64
	dims     []uint64
	elemSize uint64
	r        *binary.Reader
}

func NewContiguous(lay *message.DataLayout, space *message.Dataspace, dt *message.Datatype, r *binary.Reader) *Contiguous {
	c := &Contiguous{address: lay.Address, size: lay.Size, r: r}
	if c.size == 0 {
		c.size = dataSize(space, dt)
	}
	if space != nil {
		c.dims = space.Dimensions
	}
	if dt != nil {
		c.elemSize = uint64(dt.Size)
	}
	return c
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

func (c *Contiguous) Address() uint64 { return c.address }

func (c *Contiguous) Size() uint64 { return c.size }

func (c *Contiguous) Read() ([]byte, error) {
	if c.r.IsUndefinedOffset(c.address) {
		return make([]byte, c.size), nil
	}
	if c.size == 0 {
		return []byte{}, nil
	}
	data, err := c.r.At(int64(c.address)).ReadBytes(int(c.size))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data: %w", err)
	}
	return data, nil
}

func (c *Contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	data, err := c.Read()
	if err != nil {
		return nil, err
	}
	return slice(data, c.dims, start, count, c.elemSize)
}
