package superblock

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
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

func encode(t *testing.T, sb *Superblock, at int64) *memFile {
	t.Helper()
	m := &memFile{}
	w := binpkg.NewWriter(m, sb.ReaderConfig()).At(at)
	n, err := sb.Write(w)
	require.NoError(t, err)
	require.EqualValues(t, sb.Size(), n)
	return m
}

func TestRoundTrip(t *testing.T) {
	for _, size := range []uint8{4, 8} {
		sb := NewSuperblock()
		sb.OffsetSize, sb.LengthSize = size, size
		sb.RootGroupAddress = uint64(sb.Size())
		sb.EOFAddress = 4096

		got, err := Read(encode(t, sb, 0))
		require.NoError(t, err)
		assert.EqualValues(t, 3, got.Version)
		assert.Equal(t, size, got.OffsetSize)
		assert.Equal(t, size, got.LengthSize)
		assert.EqualValues(t, 4096, got.EOFAddress)
		assert.EqualValues(t, sb.Size(), got.RootGroupAddress)
		assert.Equal(t, undefined(int(size)), got.SuperblockExtensionAddress)
		assert.Zero(t, got.FileOffset)
	}
}

func TestSize(t *testing.T) {
	assert.Equal(t, 48, NewSuperblock().Size())
	assert.Equal(t, 48, (&Superblock{}).Size())
	assert.Equal(t, 32, (&Superblock{OffsetSize: 4}).Size())
}

func TestReadAfterUserBlock(t *testing.T) {
	sb := NewSuperblock()
	sb.RootGroupAddress = 600
	m := encode(t, sb, 512)

	got, err := Read(m)
	require.NoError(t, err)
	assert.EqualValues(t, 512, got.FileOffset)
	assert.EqualValues(t, 600, got.RootGroupAddress)
}

func TestReadRejects(t *testing.T) {
	t.Run("no signature", func(t *testing.T) {
		_, err := Read(&memFile{buf: make([]byte, 4096)})
		require.ErrorIs(t, err, ErrNotHDF5)
	})
	t.Run("short file", func(t *testing.T) {
		_, err := Read(&memFile{buf: append([]byte(nil), Signature...)})
		require.ErrorIs(t, err, ErrNotHDF5)
	})
	t.Run("unknown version", func(t *testing.T) {
		buf := make([]byte, 256)
		copy(buf, Signature)
		buf[8] = 4
		_, err := Read(&memFile{buf: buf})
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	})
	t.Run("legacy offset size", func(t *testing.T) {
		m := &memFile{buf: legacy(0, 0x10, 1)}
		m.buf[13] = 5
		_, err := Read(m)
		require.ErrorIs(t, err, ErrInvalidSuperblock)
	})
	t.Run("corrupt checksum", func(t *testing.T) {
		m := encode(t, NewSuperblock(), 0)
		m.buf[20] ^= 0xFF
		_, err := Read(m)
		require.ErrorIs(t, err, ErrInvalidSuperblock)
	})
	t.Run("bad offset size", func(t *testing.T) {
		m := encode(t, NewSuperblock(), 0)
		m.buf[9] = 3
		_, err := Read(m)
		require.ErrorIs(t, err, ErrInvalidSuperblock)
	})
}

func TestChecksumCoversHeader(t *testing.T) {
	sb := NewSuperblock()
	m := encode(t, sb, 0)
	end := sb.Size() - 4
	assert.Equal(t, binpkg.Lookup3Checksum(m.buf[:end]), binary.LittleEndian.Uint32(m.buf[end:]))
}

// legacy encodes a version 0 or 1 superblock with 8-byte offsets whose root
// entry caches the given B-tree address, or nothing when cache is 0.
func legacy(version uint8, btree uint64, cache uint32) []byte {
	le := binary.LittleEndian
	buf := append([]byte(nil), Signature...)
	buf = append(buf, version, 0, 0, 0, 0, 8, 8, 0)
	buf = le.AppendUint16(buf, 4)
	buf = le.AppendUint16(buf, 16)
	buf = le.AppendUint32(buf, 0)
	if version == 1 {
		buf = le.AppendUint16(buf, 32)
		buf = le.AppendUint16(buf, 0)
	}
	for _, v := range []uint64{0, undefined(8), 4096, undefined(8), 0, 96} {
		buf = le.AppendUint64(buf, v)
	}
	buf = le.AppendUint32(buf, cache)
	buf = le.AppendUint32(buf, 0)
	buf = le.AppendUint64(buf, btree)
	return le.AppendUint64(buf, 680)
}

func TestReadLegacy(t *testing.T) {
	for _, version := range []uint8{0, 1} {
		got, err := Read(&memFile{buf: legacy(version, 136, 1)})
		require.NoError(t, err)
		assert.Equal(t, version, got.Version)
		assert.EqualValues(t, 8, got.OffsetSize)
		assert.EqualValues(t, 4096, got.EOFAddress)
		assert.EqualValues(t, 96, got.RootGroupAddress)
		assert.EqualValues(t, 136, got.RootGroupBTreeAddress)
		assert.EqualValues(t, 680, got.RootGroupLocalHeapAddress)
		assert.Equal(t, undefined(8), got.DriverInfoAddress)
	}

	got, err := Read(&memFile{buf: append(make([]byte, 512), legacy(0, 136, 0)...)})
	require.NoError(t, err)
	assert.EqualValues(t, 512, got.FileOffset)
	assert.Equal(t, undefined(8), got.RootGroupBTreeAddress)
}

func TestWriteUpgradesLegacy(t *testing.T) {
	sb, err := Read(&memFile{buf: legacy(1, 136, 1)})
	require.NoError(t, err)
	got, err := Read(encode(t, sb, 0))
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Version)
	assert.EqualValues(t, 96, got.RootGroupAddress)
}
