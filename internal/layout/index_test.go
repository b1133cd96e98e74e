package layout

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

const undef = ^uint64(0)

func u64s(b []byte, vs ...uint64) []byte {
	for _, v := range vs {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return b
}

func (m *memFile) put(at int, b []byte) { _, _ = m.WriteAt(b, int64(at)) }

func readChunkedAt(t *testing.T, m *memFile, lay *message.DataLayout, sp *message.Dataspace) []byte {
	t.Helper()
	c, err := NewChunked(lay, sp, u8(), nil, binpkg.NewReader(m, cfg))
	require.NoError(t, err)
	got, err := c.Read()
	require.NoError(t, err)
	return got
}

func TestSingleChunkIndex(t *testing.T) {
	m := &memFile{}
	m.put(200, []byte{1, 2, 3, 4})
	lay := message.NewChunkedLayout([]uint32{4}, 1, message.ChunkIndexSingleChunk)
	lay.ChunkIndexAddr = 200
	assert.Equal(t, []byte{1, 2, 3}, readChunkedAt(t, m, lay, space(3)))
}

func TestImplicitIndex(t *testing.T) {
	// 2x2 of 1x2 chunks under a 2x6 maximum: chunks sit on a 2x3 grid
	m := &memFile{}
	m.put(100, []byte{1, 2, 0, 0, 0, 0, 3, 4, 0, 0, 0, 0})
	lay := message.NewChunkedLayout([]uint32{1, 2}, 1, message.ChunkIndexImplicit)
	lay.ChunkIndexAddr = 100
	got := readChunkedAt(t, m, lay, message.NewDataspace([]uint64{2, 2}, []uint64{2, 6}))
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestFixedArrayOverMaximumGrid(t *testing.T) {
	m := &memFile{}
	next := int64(64)
	alloc := func(size int64) uint64 {
		addr := next
		next += size
		return uint64(addr)
	}
	cw := NewChunkWriter(binpkg.NewWriter(m, cfg), []uint32{1, 2}, 1, alloc)
	records, err := cw.WriteChunks([][]byte{{1, 2}, {3, 4}})
	require.NoError(t, err)
	grid := make([]ChunkRecord, 6)
	for i := range grid {
		grid[i].Address = undef
	}
	grid[0], grid[3] = records[0], records[1]
	addr, err := cw.WriteFixedArrayIndex(grid)
	require.NoError(t, err)

	lay := message.NewChunkedLayout([]uint32{1, 2}, 1, message.ChunkIndexFixedArray)
	lay.ChunkIndexAddr = addr
	got := readChunkedAt(t, m, lay, message.NewDataspace([]uint64{2, 2}, []uint64{2, 6}))
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestPagedFixedArray(t *testing.T) {
	// three 2-byte chunks in pages of two entries; only page 0 was written
	m := &memFile{}
	m.put(1000, []byte{1, 2, 3, 4, 5, 6})

	hdr := append([]byte("FAHD"), 0, 0, 8, 1)
	m.put(100, withChecksum(u64s(hdr, 3, 200)))
	blk := append([]byte("FADB"), 0, 0)
	blk = withChecksum(append(u64s(blk, 100), 0x80))
	m.put(200, blk)
	m.put(200+len(blk), withChecksum(u64s(nil, 1000, 1002)))
	m.put(200+len(blk)+20, withChecksum(u64s(nil, 1004)))

	lay := message.NewChunkedLayout([]uint32{2}, 1, message.ChunkIndexFixedArray)
	lay.ChunkIndexAddr = 100
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0}, readChunkedAt(t, m, lay, space(6)))

	blk[len(blk)-5] = 0xC0
	m.put(200, withChecksum(blk[:len(blk)-4]))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, readChunkedAt(t, m, lay, space(6)))
}

func TestBTreeV1Index(t *testing.T) {
	m := &memFile{}
	m.put(1000, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	key := func(size uint32, offset uint64) []byte {
		b := binary.LittleEndian.AppendUint32(nil, size)
		b = binary.LittleEndian.AppendUint32(b, 0)
		return u64s(b, offset, 0)
	}
	node := append([]byte("TREE"), 1, 0, 2, 0)
	node = u64s(node, undef, undef)
	node = append(node, key(4, 0)...)
	node = u64s(node, 1004)
	node = append(node, key(4, 4)...)
	node = u64s(node, 1000)
	node = append(node, key(0, 8)...)
	m.put(100, node)

	lay, err := message.Parse(message.TypeDataLayout, append(u64s([]byte{3, 2, 2}, 100), 4, 0, 0, 0, 1, 0, 0, 0), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8, 1, 2}, readChunkedAt(t, m, lay.(*message.DataLayout), space(6)))
}

func TestBTreeV2Index(t *testing.T) {
	m := &memFile{}
	m.put(1000, []byte{1, 2, 3, 4})

	hdr := append([]byte("BTHD"), 0, 10, 0, 2, 0, 0, 16, 0, 0, 0, 100, 40)
	hdr = append(u64s(hdr, 200), 2, 0)
	m.put(100, withChecksum(u64s(hdr, 2)))
	leaf := append([]byte("BTLF"), 0, 10)
	m.put(200, withChecksum(u64s(leaf, 1002, 0, 1000, 1)))

	lay := message.NewChunkedLayout([]uint32{2}, 1, message.ChunkIndexBTreeV2)
	lay.ChunkIndexAddr = 100
	assert.Equal(t, []byte{3, 4, 1}, readChunkedAt(t, m, lay, message.NewDataspace([]uint64{3}, []uint64{message.Unlimited})))
}

// extensibleArray encodes an array of 12 one-byte chunks, chunk i stored at
// 1000+i and holding 10+i. Elements 0-1 live in the index block, 2-3 and 4-7
// in its two data blocks and 8-11 in the first data block of a super block.
func extensibleArray(m *memFile) {
	for i := 0; i < 12; i++ {
		m.put(1000+i, []byte{byte(10 + i)})
	}
	elems := func(from, n int) []byte {
		var b []byte
		for i := from; i < from+n; i++ {
			b = u64s(b, uint64(1000+i))
		}
		return b
	}
	hdr := append([]byte("EAHD"), 0, 0, 8, 8, 2, 2, 2, 10)
	m.put(100, withChecksum(u64s(hdr, 1, 16, 3, 48, 12, 12, 200)))

	ib := u64s(append([]byte("EAIB"), 0, 0), 100)
	ib = append(ib, elems(0, 2)...)
	ib = u64s(ib, 300, 400, 500, undef, undef, undef, undef, undef)
	m.put(200, withChecksum(ib))

	dblk := func(offset byte, from, n int) []byte {
		b := u64s(append([]byte("EADB"), 0, 0), 100)
		return withChecksum(append(append(b, offset), elems(from, n)...))
	}
	m.put(300, dblk(2, 2, 2))
	m.put(400, dblk(4, 4, 4))
	sb := u64s(append([]byte("EASB"), 0, 0), 100)
	m.put(500, withChecksum(u64s(append(sb, 8), 600, undef)))
	m.put(600, dblk(8, 8, 4))
}

func TestExtensibleArrayIndex(t *testing.T) {
	m := &memFile{}
	extensibleArray(m)
	lay := message.NewChunkedLayout([]uint32{1, 1}, 1, message.ChunkIndexExtensibleArray)
	lay.ChunkIndexAddr = 100

	// the unlimited dimension is 1, so element i is chunk (i%2, i/2)
	got := readChunkedAt(t, m, lay, message.NewDataspace([]uint64{2, 6}, []uint64{2, message.Unlimited}))
	want := make([]byte, 12)
	for i := 0; i < 12; i++ {
		want[(i%2)*6+i/2] = byte(10 + i)
	}
	assert.Equal(t, want, got)

	got = readChunkedAt(t, m, lay, message.NewDataspace([]uint64{12}, []uint64{message.Unlimited}))
	assert.Equal(t, []byte{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21}, got)

	c, err := NewChunked(lay, message.NewDataspace([]uint64{12}, nil), u8(), nil, binpkg.NewReader(m, cfg))
	require.NoError(t, err)
	_, err = c.Read()
	assert.ErrorIs(t, err, ErrCorruptIndex, "no unlimited dimension")
}

func TestExtensibleArraySuperBlocks(t *testing.T) {
	h := &eaHeader{maxBits: 8, dblkMin: 2}
	supers := h.supers()
	require.Len(t, supers, 8)
	assert.Equal(t, eaSuper{ndblks: 1, dblkElems: 2}, supers[0])
	assert.Equal(t, eaSuper{ndblks: 1, dblkElems: 4, startIdx: 2, startDbl: 1}, supers[1])
	assert.Equal(t, eaSuper{ndblks: 2, dblkElems: 4, startIdx: 6, startDbl: 2}, supers[2])
	assert.Equal(t, eaSuper{ndblks: 2, dblkElems: 8, startIdx: 14, startDbl: 4}, supers[3])
	assert.Equal(t, 1, h.offsetBytes())
}

func TestSpreadOverGrid(t *testing.T) {
	recs := []ChunkRecord{{Address: 1}, {Address: 2}, {Address: 3}, {Address: 4}}
	got := SpreadOverGrid(recs, []uint64{2, 4}, []uint64{3, 6}, []uint32{1, 2}, undef)
	require.Len(t, got, 9)
	addrs := make([]uint64, len(got))
	for i, r := range got {
		addrs[i] = r.Address
	}
	assert.Equal(t, []uint64{1, 2, undef, 3, 4, undef, undef, undef, undef}, addrs)

	assert.Equal(t, recs, SpreadOverGrid(recs, []uint64{2, 4}, []uint64{2, message.Unlimited}, []uint32{1, 2}, undef))
	assert.Equal(t, recs, SpreadOverGrid(recs, []uint64{2, 4}, []uint64{2, 4}, []uint32{1, 2}, undef))
}
