package heap

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// collection encodes objects 1..n as a GCOL collection at address 16.
func collection(objects ...[]byte) []byte {
	var body bytes.Buffer
	for i, obj := range objects {
		body.Write(binary.LittleEndian.AppendUint16(nil, uint16(i+1)))
		body.Write([]byte{1, 0, 0, 0, 0, 0})
		body.Write(binary.LittleEndian.AppendUint64(nil, uint64(len(obj))))
		body.Write(obj)
		body.Write(make([]byte, (8-len(obj)%8)%8))
	}
	body.Write([]byte{0, 0})

	size := 16 + body.Len()
	size += (8 - size%8) % 8
	buf := make([]byte, 16, 16+size)
	buf = append(buf, "GCOL"...)
	buf = append(buf, 1, 0, 0, 0)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(size))
	buf = append(buf, body.Bytes()...)
	return append(buf, make([]byte, 16+size-len(buf))...)
}

func reader(b []byte) *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(b), binpkg.Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 8})
}

func TestReadGlobalHeap(t *testing.T) {
	h, err := ReadGlobalHeap(reader(collection([]byte("hello\x00"), []byte("world"), []byte{}, []byte("a\x00b"))), 16)
	require.NoError(t, err)

	for index, want := range map[uint16]string{1: "hello", 2: "world", 3: "", 4: "a"} {
		got, err := h.GetString(index)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	obj, err := h.GetObject(2)
	require.NoError(t, err)
	obj[0] = 'W'
	again, _ := h.GetString(2)
	assert.Equal(t, "world", again, "GetObject returns a copy")

	_, err = h.GetObject(99)
	assert.ErrorIs(t, err, ErrInvalidHeap)
}

func TestReadGlobalHeapRejects(t *testing.T) {
	good := collection([]byte("x"))

	_, err := ReadGlobalHeap(reader(good), 0)
	assert.ErrorIs(t, err, ErrInvalidHeap)
	_, err = ReadGlobalHeap(reader(good), ^uint64(0))
	assert.ErrorIs(t, err, ErrInvalidHeap)

	bad := append([]byte(nil), good...)
	copy(bad[16:], "XXXX")
	_, err = ReadGlobalHeap(reader(bad), 16)
	assert.ErrorIs(t, err, ErrInvalidHeap)

	bad = append([]byte(nil), good...)
	bad[20] = 2
	_, err = ReadGlobalHeap(reader(bad), 16)
	assert.ErrorIs(t, err, ErrInvalidHeap)

	var nilHeap *GlobalHeap
	_, err = nilHeap.GetObject(1)
	assert.ErrorIs(t, err, ErrInvalidHeap)
}

func TestParseGlobalHeapID(t *testing.T) {
	id, err := ParseGlobalHeapID([]byte{0x00, 0x10, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}, 8)
	require.NoError(t, err)
	assert.Equal(t, GlobalHeapID{CollectionAddress: 0x1000, ObjectIndex: 1}, id)

	id, err = ParseGlobalHeapID([]byte{0x00, 0x30, 3, 0, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, GlobalHeapID{CollectionAddress: 0x3000, ObjectIndex: 3}, id)

	_, err = ParseGlobalHeapID([]byte{0, 0}, 8)
	assert.Error(t, err)
	_, err = ParseGlobalHeapID(make([]byte, 7), 3)
	assert.Error(t, err)
}

func localHeap(names ...string) ([]byte, []uint64) {
	var data []byte
	var offsets []uint64
	data = append(data, 0)
	for _, n := range names {
		offsets = append(offsets, uint64(len(data)))
		data = append(data, n...)
		data = append(data, 0)
	}
	data = append(data, make([]byte, (8-len(data)%8)%8)...)

	buf := append([]byte("HEAP"), 0, 0, 0, 0)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(data)))
	buf = binary.LittleEndian.AppendUint64(buf, ^uint64(0))
	buf = binary.LittleEndian.AppendUint64(buf, 64)
	buf = append(buf, make([]byte, 64-len(buf))...)
	return append(buf, data...), offsets
}

func TestReadLocalHeap(t *testing.T) {
	buf, offsets := localHeap("data", "group")
	h, err := ReadLocalHeap(reader(buf), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 64, h.DataAddress)

	name, err := h.GetString(offsets[1])
	require.NoError(t, err)
	assert.Equal(t, "group", name)
	empty, err := h.GetString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = h.GetString(h.DataSize)
	assert.ErrorIs(t, err, ErrInvalidLocalHeap)
}

func TestReadLocalHeapRejects(t *testing.T) {
	buf, _ := localHeap("x")
	bad := append([]byte(nil), buf...)
	bad[0] = 'X'
	_, err := ReadLocalHeap(reader(bad), 0)
	assert.ErrorIs(t, err, ErrInvalidLocalHeap)

	bad = append([]byte(nil), buf...)
	bad[4] = 1
	_, err = ReadLocalHeap(reader(bad), 0)
	assert.ErrorIs(t, err, ErrInvalidLocalHeap)

	_, err = ReadLocalHeap(reader(buf), ^uint64(0))
	assert.ErrorIs(t, err, ErrInvalidLocalHeap)
}
