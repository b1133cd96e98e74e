package message

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// DataspaceType is the shape class of a dataspace.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited marks a dataspace dimension that can grow without bound. It is
// encoded as an all-ones length.
const Unlimited = ^uint64(0)

// Dataspace is the extent of a dataset or attribute.
type Dataspace struct {
	Version    uint8
	Rank       int
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // nil when the maximum equals Dimensions
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NewDataspace returns a simple dataspace. maxDims may be nil.
func NewDataspace(dims, maxDims []uint64) *Dataspace {
	return &Dataspace{Version: 2, Rank: len(dims), SpaceType: DataspaceSimple, Dimensions: dims, MaxDims: maxDims}
}

// NewScalarDataspace returns a dataspace holding exactly one element.
func NewScalarDataspace() *Dataspace {
	return &Dataspace{Version: 2, SpaceType: DataspaceScalar}
}

// MaxExtent returns the maximum dimensions, defaulting to the current
// dimensions when the message carries none.
func (m *Dataspace) MaxExtent() []uint64 {
	if len(m.MaxDims) == m.Rank && m.Rank > 0 {
		return append([]uint64(nil), m.MaxDims...)
	}
	return append([]uint64(nil), m.Dimensions...)
}

// IsUnlimited reports whether dimension d has no upper bound.
func (m *Dataspace) IsUnlimited(d int) bool {
	return d < len(m.MaxDims) && m.MaxDims[d] == Unlimited
}

// NumElements is the number of elements the dataspace selects in full.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		if len(m.Dimensions) == 0 {
			return 0
		}
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
	return 0
}

func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }
func (m *Dataspace) IsNull() bool   { return m.SpaceType == DataspaceNull }

// Version 1 has no type byte; a rank of zero is a scalar.
func parseDataspace(data []byte, sz sizes) (*Dataspace, error) {
	d := decoder{buf: data, sizes: sz}
	ds := &Dataspace{Version: d.u8(), Rank: int(d.u8())}
	flags := d.u8()
	switch ds.Version {
	case 1:
		d.skip(5)
		ds.SpaceType = DataspaceSimple
		if ds.Rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
	case 2:
		ds.SpaceType = DataspaceType(d.u8())
	default:
		if d.err == nil {
			return nil, fmt.Errorf("dataspace: unsupported version %d", ds.Version)
		}
	}
	if d.err != nil {
		return nil, fmt.Errorf("dataspace: %w", d.err)
	}
	if ds.SpaceType != DataspaceSimple || ds.Rank == 0 {
		return ds, nil
	}

	dims := func() []uint64 {
		out := make([]uint64, ds.Rank)
		for i := range out {
			out[i] = d.length()
			if out[i] == allOnes(sz.length) {
				out[i] = Unlimited
			}
		}
		return out
	}
	ds.Dimensions = dims()
	if flags&0x01 != 0 {
		ds.MaxDims = dims()
	}
	if d.err != nil {
		return nil, fmt.Errorf("dataspace: %w", d.err)
	}
	return ds, nil
}

func (m *Dataspace) appendTo(buf []byte, sz sizes) []byte {
	var flags uint8
	if len(m.MaxDims) > 0 {
		flags = 0x01
	}
	buf = append(buf, 2, uint8(len(m.Dimensions)), flags, uint8(m.SpaceType))
	for _, v := range m.Dimensions {
		buf = appendUint(buf, v, sz.length)
	}
	if flags != 0 {
		for _, v := range m.MaxDims {
			buf = appendUint(buf, v, sz.length)
		}
	}
	return buf
}

func (m *Dataspace) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *Dataspace) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }

func allOnes(n int) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*n) - 1
}
