package layout

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/filter"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

type memFile struct{ buf []byte }

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:], p), nil
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

var cfg = binpkg.Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 8}

func space(dims ...uint64) *message.Dataspace {
	return message.NewDataspace(dims, nil)
}

func u8() *message.Datatype {
	return message.NewFixedPointDatatype(1, false, message.OrderLE)
}

func seq(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i + 1)
	}
	return b
}

// writeChunked stores data with the chunk writer and returns a reader for it.
func writeChunked(t *testing.T, data []byte, dims []uint64, chunk []uint32, fp *message.FilterPipeline) (*Chunked, *memFile) {
	t.Helper()
	m := &memFile{}
	next := int64(64)
	alloc := func(size int64) uint64 {
		addr := next
		next += size
		return uint64(addr)
	}

	w := binpkg.NewWriter(m, cfg)
	p, err := filter.NewPipeline(fp)
	require.NoError(t, err)
	cw := NewChunkWriter(w, chunk, 1, alloc).WithPipeline(p)

	records, err := cw.WriteChunks(SplitIntoChunks(data, dims, chunk, 1))
	require.NoError(t, err)
	addr, err := cw.WriteFixedArrayIndex(records)
	require.NoError(t, err)

	lay := message.NewChunkedLayout(chunk, 1, message.ChunkIndexFixedArray)
	lay.ChunkIndexAddr = addr
	c, err := NewChunked(lay, space(dims...), u8(), fp, binpkg.NewReader(m, cfg))
	require.NoError(t, err)
	return c, m
}

func TestCompact(t *testing.T) {
	data := seq(6)
	c := NewCompact(message.NewCompactLayout(data), space(2, 3), u8())
	assert.Equal(t, message.LayoutCompact, c.Class())
	assert.Equal(t, 6, c.Size())

	got, err := c.Read()
	require.NoError(t, err)
	got[0] = 0xFF
	assert.EqualValues(t, 1, data[0], "Read returns a copy")

	part, err := c.ReadSlice([]uint64{0, 1}, []uint64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 5, 6}, part)
}

func TestContiguous(t *testing.T) {
	m := &memFile{buf: make([]byte, 128)}
	copy(m.buf[100:], seq(8))
	r := binpkg.NewReader(m, cfg)

	c := NewContiguous(message.NewContiguousLayout(100, 8), space(8), u8(), r)
	assert.EqualValues(t, 100, c.Address())
	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, seq(8), got)

	part, err := c.ReadSlice([]uint64{6}, []uint64{2})
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, part)

	sized := NewContiguous(message.NewContiguousLayout(100, 0), space(10), message.NewFixedPointDatatype(4, true, message.OrderLE), r)
	assert.EqualValues(t, 40, sized.Size())

	unset := NewContiguous(message.NewContiguousLayout(^uint64(0), 4), space(4), u8(), r)
	got, err = unset.Read()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4), got)
}

func TestSliceRejects(t *testing.T) {
	data := seq(6)
	_, err := slice(data, []uint64{2, 3}, []uint64{1, 2}, []uint64{1, 2}, 1)
	assert.ErrorIs(t, err, ErrSelection)
	_, err = slice(data, []uint64{2, 3}, []uint64{0}, []uint64{1}, 1)
	assert.ErrorIs(t, err, ErrSelection)
	_, err = slice(data, nil, []uint64{0}, []uint64{1}, 1)
	assert.ErrorIs(t, err, ErrSelection)

	got, err := slice(data[:1], nil, nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, got)
}

func TestDataSize(t *testing.T) {
	assert.Zero(t, dataSize(nil, u8()))
	assert.Zero(t, dataSize(space(3), nil))
	assert.EqualValues(t, 8, dataSize(message.NewScalarDataspace(), message.NewFloatDatatype(8, message.OrderLE)))
	assert.EqualValues(t, 1600, dataSize(space(10, 20), message.NewFloatDatatype(8, message.OrderLE)))
}

func TestChunkedRoundTrip(t *testing.T) {
	data := seq(15)
	dims := []uint64{3, 5}

	for name, fp := range map[string]*message.FilterPipeline{
		"plain":    nil,
		"deflate":  message.NewFilterPipeline(1, 6, false),
		"shuffled": message.NewFilterPipeline(1, 1, true),
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := writeChunked(t, data, dims, []uint32{2, 2}, fp)
			assert.Equal(t, message.LayoutChunked, c.Class())

			got, err := c.Read()
			require.NoError(t, err)
			assert.Equal(t, data, got)

			part, err := c.ReadSlice([]uint64{1, 3}, []uint64{2, 2})
			require.NoError(t, err)
			assert.Equal(t, []byte{9, 10, 14, 15}, part)
		})
	}
}

func TestChunkedUnallocated(t *testing.T) {
	r := binpkg.NewReader(&memFile{}, cfg)
	lay := message.NewChunkedLayout([]uint32{4}, 1, message.ChunkIndexFixedArray)
	lay.ChunkIndexAddr = ^uint64(0)

	c, err := NewChunked(lay, space(6), u8(), nil, r)
	require.NoError(t, err)
	got, err := c.Read()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 6), got)
}

func TestChunkedRejects(t *testing.T) {
	t.Run("corrupt index", func(t *testing.T) {
		c, m := writeChunked(t, seq(8), []uint64{8}, []uint32{4}, nil)
		m.buf[c.msg.ChunkIndexAddr+7] ^= 0x01
		_, err := c.Read()
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
	t.Run("wrong index type", func(t *testing.T) {
		c, _ := writeChunked(t, seq(8), []uint64{8}, []uint32{4}, nil)
		c.msg.ChunkIndexType = message.ChunkIndexBTreeV2
		_, err := c.Read()
		assert.ErrorIs(t, err, ErrCorruptIndex)
	})
	t.Run("unknown index", func(t *testing.T) {
		c, _ := writeChunked(t, seq(8), []uint64{8}, []uint32{4}, nil)
		c.msg.ChunkIndexType = 9
		_, err := c.Read()
		assert.ErrorIs(t, err, ErrUnsupportedIndex)
	})
	t.Run("scalar", func(t *testing.T) {
		lay := message.NewChunkedLayout([]uint32{1}, 1, message.ChunkIndexFixedArray)
		_, err := NewChunked(lay, message.NewScalarDataspace(), u8(), nil, binpkg.NewReader(&memFile{}, cfg))
		assert.Error(t, err)
	})
}

func TestSplitIntoChunks(t *testing.T) {
	// 3x5 bytes in 2x2 chunks gives a 2x3 grid.
	chunks := SplitIntoChunks(seq(15), []uint64{3, 5}, []uint32{2, 2}, 1)
	assert.Equal(t, [][]byte{
		{1, 2, 6, 7},
		{3, 4, 8, 9},
		{5, 0, 10, 0},
		{11, 12, 0, 0},
		{13, 14, 0, 0},
		{15, 0, 0, 0},
	}, chunks)

	chunks = SplitIntoChunks(seq(10), []uint64{5}, []uint32{2}, 2)
	require.Len(t, chunks, 3)
	assert.Equal(t, []byte{9, 10, 0, 0}, chunks[2])

	grid, total := ChunkGrid([]uint64{10, 1, 7}, []uint32{3, 1, 7})
	assert.Equal(t, []uint64{4, 1, 1}, grid)
	assert.Equal(t, 4, total)
}

func TestCopyRegion(t *testing.T) {
	dst := make([]byte, 12)
	CopyRegion(dst, []uint64{3, 4}, []uint64{1, 1}, []byte{1, 2, 3, 4}, []uint64{2, 2}, []uint64{0, 0}, []uint64{2, 2}, 1)
	assert.Equal(t, []byte{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
	}, dst)

	one := make([]byte, 2)
	CopyRegion(one, nil, nil, []byte{7, 8}, nil, nil, nil, 2)
	assert.Equal(t, []byte{7, 8}, one)

	untouched := make([]byte, 4)
	CopyRegion(untouched, []uint64{4}, []uint64{0}, seq(4), []uint64{4}, []uint64{0}, []uint64{0}, 1)
	assert.Equal(t, make([]byte, 4), untouched)
}

func TestFixedArraySizing(t *testing.T) {
	for n, want := range map[int]uint8{1: 10, 1024: 10, 1025: 11, 5000: 13} {
		assert.Equal(t, want, FixedArrayPageBits(n), n)
	}
	for chunk, want := range map[uint64]int{0: 2, 80: 2, 255: 2, 256: 3, 1 << 20: 4, 1 << 62: 8} {
		assert.Equal(t, want, filteredSizeBytes(chunk), chunk)
	}
}

func TestFixedArrayIndexLayout(t *testing.T) {
	m := &memFile{}
	next := uint64(0)
	alloc := func(size int64) uint64 {
		addr := next
		next += uint64(size)
		return addr
	}
	cw := NewChunkWriter(binpkg.NewWriter(m, cfg), []uint32{4}, 1, alloc)

	empty, err := cw.WriteFixedArrayIndex(nil)
	require.NoError(t, err)
	assert.Equal(t, ^uint64(0), empty)

	hdr, err := cw.WriteFixedArrayIndex([]ChunkRecord{{Address: 0x100}, {Address: 0x200}})
	require.NoError(t, err)
	assert.Equal(t, "FAHD", string(m.buf[hdr:hdr+4]))
	assert.EqualValues(t, 0, m.buf[hdr+5], "client id")
	assert.EqualValues(t, 8, m.buf[hdr+6], "entry size")
	assert.EqualValues(t, 10, m.buf[hdr+7], "page bits")
	assert.EqualValues(t, 2, binary.LittleEndian.Uint64(m.buf[hdr+8:]))

	blk := binary.LittleEndian.Uint64(m.buf[hdr+16:])
	assert.Equal(t, "FADB", string(m.buf[blk:blk+4]))
	assert.Equal(t, hdr, binary.LittleEndian.Uint64(m.buf[blk+6:]))
	assert.EqualValues(t, 0x100, binary.LittleEndian.Uint64(m.buf[blk+14:]))
	assert.EqualValues(t, 0x200, binary.LittleEndian.Uint64(m.buf[blk+22:]))
	body := m.buf[blk : blk+30]
	assert.Equal(t, binpkg.Lookup3Checksum(body), binary.LittleEndian.Uint32(m.buf[blk+30:]))
}
