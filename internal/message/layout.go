package message

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// LayoutClass is how a dataset's raw data is stored.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType names the structure that maps chunk coordinates to
// addresses.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingleChunk     ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

// Chunked layout flags.
const (
	ChunkFlagDontFilterPartialEdge uint8 = 0x01
	ChunkFlagSingleIndexWithFilter uint8 = 0x02
)

// DefaultFixedArrayPageBits is the page bits value libhdf5 uses for Fixed
// Array chunk indexes.
const DefaultFixedArrayPageBits = 10

// DataLayout is the storage description of a dataset.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	CompactData []byte

	// Contiguous storage.
	Address uint64
	Size    uint64

	// ChunkDims has one entry per dataset dimension followed by the
	// element size.
	ChunkDims      []uint32
	ChunkIndexAddr uint64
	ChunkIndexType ChunkIndexType
	ChunkFlags     uint8

	// Filtered single-chunk index only.
	FilteredChunkSize uint64
	FilterMask        uint32

	// IndexParams holds the index-specific bytes of a version 4 layout,
	// such as the page bits of a Fixed Array.
	IndexParams []byte
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func (m *DataLayout) IsChunked() bool { return m.Class == LayoutChunked }

// PageBits returns the Fixed Array page bits of a chunked layout.
func (m *DataLayout) PageBits() uint8 {
	if m.ChunkIndexType == ChunkIndexFixedArray && len(m.IndexParams) > 0 {
		return m.IndexParams[0]
	}
	return DefaultFixedArrayPageBits
}

// NewCompactLayout stores data inside the object header.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutCompact, CompactData: data}
}

// NewContiguousLayout stores size bytes at address.
func NewContiguousLayout(address, size uint64) *DataLayout {
	return &DataLayout{Version: 3, Class: LayoutContiguous, Address: address, Size: size}
}

// NewChunkedLayout returns a version 4 chunked layout. chunkDims excludes
// the element size, which is appended.
func NewChunkedLayout(chunkDims []uint32, elemSize uint32, index ChunkIndexType) *DataLayout {
	dims := append(append([]uint32(nil), chunkDims...), elemSize)
	return &DataLayout{Version: 4, Class: LayoutChunked, ChunkDims: dims, ChunkIndexType: index}
}

// indexParamSize is the number of parameter bytes a version 4 index type
// carries.
func indexParamSize(t ChunkIndexType) int {
	switch t {
	case ChunkIndexFixedArray:
		return 1
	case ChunkIndexExtensibleArray:
		return 5
	case ChunkIndexBTreeV2:
		return 6
	}
	return 0
}

// chunkDimWidth is the fewest bytes that hold every chunk dimension.
func chunkDimWidth(dims []uint32) int {
	w := 1
	for _, d := range dims {
		switch {
		case d > 0xFFFF:
			w = max(w, 4)
		case d > 0xFF:
			w = max(w, 2)
		}
	}
	return w
}

func parseDataLayout(data []byte, sz sizes) (*DataLayout, error) {
	if len(data) > 0 && (data[0] == 1 || data[0] == 2) {
		return parseLegacyLayout(data, sz)
	}
	d := decoder{buf: data, sizes: sz}
	lay := &DataLayout{Version: d.u8(), Class: LayoutClass(d.u8())}
	if d.err == nil && (lay.Version < 3 || lay.Version > 4) {
		return nil, fmt.Errorf("data layout: unsupported version %d", lay.Version)
	}

	switch lay.Class {
	case LayoutCompact:
		n := int(d.u16())
		lay.CompactData = append([]byte(nil), d.take(n)...)
	case LayoutContiguous:
		lay.Address = d.offset()
		lay.Size = d.length()
	case LayoutChunked:
		if lay.Version == 3 {
			ndims := int(d.u8())
			lay.ChunkIndexAddr = d.offset()
			for i := 0; i < ndims; i++ {
				lay.ChunkDims = append(lay.ChunkDims, d.u32())
			}
			break
		}
		lay.ChunkFlags = d.u8()
		ndims, width := int(d.u8()), int(d.u8())
		if d.err == nil && (width < 1 || width > 8) {
			return nil, fmt.Errorf("data layout: chunk dimension width %d", width)
		}
		for i := 0; i < ndims; i++ {
			lay.ChunkDims = append(lay.ChunkDims, uint32(d.uint(width)))
		}
		lay.ChunkIndexType = ChunkIndexType(d.u8())
		switch lay.ChunkIndexType {
		case ChunkIndexSingleChunk:
			if lay.ChunkFlags&ChunkFlagSingleIndexWithFilter != 0 {
				lay.FilteredChunkSize = d.length()
				lay.FilterMask = d.u32()
			}
		case ChunkIndexImplicit, ChunkIndexFixedArray, ChunkIndexExtensibleArray, ChunkIndexBTreeV2:
			lay.IndexParams = append([]byte(nil), d.take(indexParamSize(lay.ChunkIndexType))...)
		default:
			if d.err == nil {
				return nil, fmt.Errorf("data layout: unknown chunk index type %d", lay.ChunkIndexType)
			}
		}
		lay.ChunkIndexAddr = d.offset()
	case LayoutVirtual:
		d.rest()
	default:
		if d.err == nil {
			return nil, fmt.Errorf("data layout: unknown class %d", lay.Class)
		}
	}
	if d.err != nil {
		return nil, fmt.Errorf("data layout: %w", d.err)
	}
	return lay, nil
}

// parseLegacyLayout reads version 1 and 2 layouts. Their dimension list
// always ends with the element size; chunked layouts use a version 1 B-tree.
func parseLegacyLayout(data []byte, sz sizes) (*DataLayout, error) {
	d := decoder{buf: data, sizes: sz}
	lay := &DataLayout{Version: d.u8()}
	ndims := int(d.u8())
	lay.Class = LayoutClass(d.u8())
	d.skip(5)
	if lay.Class != LayoutCompact {
		lay.Address = d.offset()
	}
	dims := make([]uint32, 0, ndims)
	for i := 0; i < ndims && d.err == nil; i++ {
		dims = append(dims, d.u32())
	}
	switch lay.Class {
	case LayoutCompact:
		n := int(d.u32())
		lay.CompactData = append([]byte(nil), d.take(n)...)
	case LayoutContiguous:
		lay.Size = 1
		for _, v := range dims {
			lay.Size *= uint64(v)
		}
	case LayoutChunked:
		lay.ChunkDims = dims
		lay.ChunkIndexAddr = lay.Address
		lay.Address = 0
		lay.ChunkIndexType = ChunkIndexBTreeV1
	default:
		if d.err == nil {
			return nil, fmt.Errorf("data layout: unknown class %d", lay.Class)
		}
	}
	if d.err != nil {
		return nil, fmt.Errorf("data layout: %w", d.err)
	}
	return lay, nil
}

func (m *DataLayout) appendTo(buf []byte, sz sizes) []byte {
	if m.Class != LayoutChunked {
		buf = append(buf, 3, uint8(m.Class))
		if m.Class == LayoutCompact {
			buf = appendU16(buf, uint16(len(m.CompactData)))
			return append(buf, m.CompactData...)
		}
		buf = appendUint(buf, m.Address, sz.offset)
		return appendUint(buf, m.Size, sz.length)
	}

	width := chunkDimWidth(m.ChunkDims)
	buf = append(buf, 4, uint8(m.Class), m.ChunkFlags, uint8(len(m.ChunkDims)), uint8(width))
	for _, v := range m.ChunkDims {
		buf = appendUint(buf, uint64(v), width)
	}
	buf = append(buf, uint8(m.ChunkIndexType))
	if m.ChunkIndexType == ChunkIndexSingleChunk && m.ChunkFlags&ChunkFlagSingleIndexWithFilter != 0 {
		buf = appendUint(buf, m.FilteredChunkSize, sz.length)
		buf = appendU32(buf, m.FilterMask)
	}
	params := make([]byte, indexParamSize(m.ChunkIndexType))
	copy(params, m.IndexParams)
	if m.ChunkIndexType == ChunkIndexFixedArray && len(m.IndexParams) == 0 {
		params[0] = DefaultFixedArrayPageBits
	}
	buf = append(buf, params...)
	return appendUint(buf, m.ChunkIndexAddr, sz.offset)
}

func (m *DataLayout) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *DataLayout) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }
