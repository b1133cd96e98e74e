package hdf5

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

func tempFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.h5")
}

func create(t *testing.T, opts ...FileOption) (*File, string) {
	t.Helper()
	p := tempFile(t)
	f, err := Create(p, opts...)
	require.NoError(t, err)
	return f, p
}

func reopen(t *testing.T, p string) *File {
	t.Helper()
	f, err := Open(p)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestCreateEmptyFile(t *testing.T) {
	f, p := create(t)
	assert.True(t, f.IsWritable())
	assert.Equal(t, p, f.Path())
	require.NoError(t, f.Close())

	r := reopen(t, p)
	assert.False(t, r.IsWritable())
	assert.Equal(t, 3, r.Version())
	assert.Equal(t, "/", r.Root().Name())
	assert.Equal(t, "/", r.Root().Path())
	members, err := r.Root().Members()
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCreateNarrowOffsets(t *testing.T) {
	f, p := create(t, WithOffsetSize(4), WithLengthSize(4), WithOffsetSize(3))
	_, err := f.Root().CreateDataset("x", []int16{1, -2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ds, err := reopen(t, p).OpenDataset("/x")
	require.NoError(t, err)
	var got []int16
	require.NoError(t, ds.Read(&got))
	assert.Equal(t, []int16{1, -2, 3}, got)
}

func TestFlushMakesContentsVisible(t *testing.T) {
	f, p := create(t)
	defer f.Close()
	_, err := f.CreateGroup("/g")
	require.NoError(t, err)
	require.NoError(t, f.Flush())

	assert.True(t, reopen(t, p).Exists("/g"))
}

func TestOpenReadWriteAppends(t *testing.T) {
	f, p := create(t)
	_, err := f.Root().CreateDataset("first", []float64{1.5})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rw, err := OpenReadWrite(p)
	require.NoError(t, err)
	assert.True(t, rw.IsWritable())
	_, err = rw.CreateGroup("/later/deeper")
	require.NoError(t, err)
	_, err = rw.Root().CreateDataset("later/second", []uint8{9})
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	r := reopen(t, p)
	members, err := r.Root().Members()
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "later"}, members)
	vals, err := mustDataset(t, r, "/first").ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5}, vals)
	assert.True(t, r.IsDataset("/later/second"))
	assert.False(t, r.IsDataset("/later/deeper"))
}

func TestAllocStats(t *testing.T) {
	f, p := create(t)
	assert.Zero(t, f.AllocStats().Blocks)

	ds, err := f.CreateDataset("/v", message.NewFloatDatatype(8, message.OrderLE), []uint64{64})
	require.NoError(t, err)
	require.NoError(t, ds.Write(make([]float64, 64)))

	st := f.AllocStats()
	assert.NotZero(t, st.Blocks)
	assert.GreaterOrEqual(t, st.Bytes, uint64(64*8))
	assert.GreaterOrEqual(t, st.Largest, uint64(64*8))
	require.NoError(t, f.Close())

	assert.Zero(t, reopen(t, p).AllocStats())
}

func TestOpenRejectsNonHDF5(t *testing.T) {
	sig := []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}
	cases := map[string][]byte{
		"empty":           nil,
		"text":            []byte("This is not an HDF5 file"),
		"near signature":  {0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, 'X'},
		"garbage":         bytes.Repeat([]byte{0xFF}, 1024),
		"signature only":  sig,
		"truncated block": append(append([]byte(nil), sig...), 0x02, 0x08, 0x08, 0x00),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			p := tempFile(t)
			require.NoError(t, os.WriteFile(p, content, 0o644))
			_, err := Open(p)
			assert.Error(t, err)
		})
	}

	_, err := Open(filepath.Join(t.TempDir(), "missing.h5"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = Open(t.TempDir())
	assert.Error(t, err)
	_, err = OpenReadWrite(filepath.Join(t.TempDir(), "missing.h5"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestClosedFile(t *testing.T) {
	f, _ := create(t)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err := f.OpenGroup("/")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.OpenDataset("/x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.CreateGroup("/late")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = f.GetAttr("/@a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.Flush(), ErrClosed)
	assert.ErrorIs(t, f.WalkAttrs(func(AttrInfo) error { return nil }), ErrClosed)
	assert.False(t, f.Exists("/"))
}

func TestReadOnlyFileRejectsWrites(t *testing.T) {
	f, p := create(t)
	require.NoError(t, f.Close())
	r := reopen(t, p)

	_, err := r.CreateDataset("/x", message.NewFloatDatatype(8, message.OrderLE), []uint64{1})
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = r.CreateGroup("/g")
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, r.SetAttribute("/", "a", int64(1)), ErrReadOnly)
	assert.ErrorIs(t, r.CreateSoftLink("/l", "/x"), ErrReadOnly)
	assert.NoError(t, r.Flush())
}
