package h5

import (
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-h5store/hdf5"
	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

func int32s(vals ...int32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(v))
	}
	return buf
}

func newContainer(t *testing.T, reg *backend.Registry) (backend.Container, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.h5")
	c, err := Opener{Registry: reg}.Open(path, backend.Create)
	require.NoError(t, err)
	return c, path
}

func TestContiguousEntryRoundTrip(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	dt := message.NewFixedPointDatatype(4, true, message.OrderLE)
	e, err := c.CreateEntry("/grp/values", backend.CreateSpec{
		ElementType: dt,
		Extent:      []uint64{2, 3},
		Layout:      backend.Contiguous,
	})
	require.NoError(t, err)

	want := int32s(1, 2, 3, 4, 5, 6)
	sel := backend.All([]uint64{2, 3})
	require.NoError(t, e.WriteRaw(sel, sel, want))

	assert.True(t, c.EntryExists("/grp/values"))
	assert.False(t, c.EntryExists("/grp"))

	opened, err := c.OpenEntry("/grp/values")
	require.NoError(t, err)
	rank, extent, maxExtent := opened.Shape()
	assert.Equal(t, 2, rank)
	assert.Equal(t, []uint64{2, 3}, extent)
	assert.Equal(t, []uint64{2, 3}, maxExtent)
	assert.Equal(t, backend.Contiguous, opened.Layout())
	assert.Nil(t, opened.ChunkShape())

	got := make([]byte, len(want))
	require.NoError(t, opened.ReadRaw(sel, sel, got))
	assert.Equal(t, want, got)

	// Partial read of the second row.
	row := make([]byte, 12)
	require.NoError(t, opened.ReadRaw(
		backend.All([]uint64{1, 3}),
		backend.Selection{Start: []uint64{1, 0}, Count: []uint64{1, 3}},
		row))
	assert.Equal(t, int32s(4, 5, 6), row)
}

func TestChunkedEntryResize(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	dt := message.NewFixedPointDatatype(4, true, message.OrderLE)
	e, err := c.CreateEntry("/grow", backend.CreateSpec{
		ElementType:      dt,
		Extent:           []uint64{2, 2},
		MaxExtent:        []uint64{2, backend.Unlimited},
		Layout:           backend.Chunked,
		ChunkExtent:      []uint64{2, 2},
		CompressionLevel: 6,
	})
	require.NoError(t, err)
	require.NoError(t, e.WriteRaw(backend.All([]uint64{2, 2}), backend.All([]uint64{2, 2}), int32s(1, 2, 3, 4)))

	require.NoError(t, e.SetExtent([]uint64{2, 4}))
	sel := backend.All([]uint64{2, 4})
	require.NoError(t, e.WriteRaw(sel, sel, int32s(1, 2, 3, 4, 5, 6, 7, 8)))

	rank, extent, maxExtent := e.Shape()
	assert.Equal(t, 2, rank)
	assert.Equal(t, []uint64{2, 4}, extent)
	assert.Equal(t, []uint64{2, backend.Unlimited}, maxExtent)
	assert.Equal(t, backend.Chunked, e.Layout())
	assert.Equal(t, []uint64{2, 2}, e.ChunkShape())
	assert.Equal(t, 6, e.CompressionLevel())

	got := make([]byte, 32)
	require.NoError(t, e.ReadRaw(sel, sel, got))
	assert.Equal(t, int32s(1, 2, 3, 4, 5, 6, 7, 8), got)
}

func TestScalarEntry(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	e, err := c.CreateEntry("/answer", backend.CreateSpec{
		ElementType: message.NewFixedPointDatatype(4, true, message.OrderLE),
		Layout:      backend.Contiguous,
	})
	require.NoError(t, err)

	require.NoError(t, e.WriteRaw(backend.All(nil), backend.All(nil), int32s(42)))

	rank, extent, _ := e.Shape()
	assert.Zero(t, rank)
	assert.Nil(t, extent)

	got := make([]byte, 4)
	require.NoError(t, e.ReadRaw(backend.All(nil), backend.All(nil), got))
	assert.Equal(t, int32s(42), got)
}

func TestSelectionChecks(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	e, err := c.CreateEntry("/x", backend.CreateSpec{
		ElementType: message.NewFixedPointDatatype(4, true, message.OrderLE),
		Extent:      []uint64{4},
		Layout:      backend.Contiguous,
	})
	require.NoError(t, err)

	err = e.WriteRaw(backend.All([]uint64{3}), backend.All([]uint64{4}), int32s(1, 2, 3))
	assert.ErrorIs(t, err, hdf5.ErrOutOfBounds)

	err = e.WriteRaw(backend.All([]uint64{4}), backend.All([]uint64{4}), int32s(1, 2))
	assert.Error(t, err)
}

func TestOpenMissingEntry(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	_, err := c.OpenEntry("/does/not/exist")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestAttributes(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	require.NoError(t, c.CreateGroup("/meta/inner"))
	dt := message.NewFixedPointDatatype(4, true, message.OrderLE)

	require.NoError(t, c.WriteAttribute("/meta/inner", backend.Attribute{
		Name: "counts", ElementType: dt, Extent: []uint64{3}, Data: int32s(7, 8, 9),
	}))
	require.NoError(t, c.WriteAttribute("/meta/inner", backend.Attribute{
		Name: "one", ElementType: dt, Data: int32s(1),
	}))

	assert.True(t, c.AttributeExists("/meta/inner", "counts"))
	assert.False(t, c.AttributeExists("/meta/inner", "missing"))
	assert.False(t, c.AttributeExists("/nowhere", "counts"))

	names, err := c.AttributeNames("/meta/inner")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"counts", "one"}, names)

	a, err := c.ReadAttribute("/meta/inner", "counts")
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, a.Extent)
	assert.Equal(t, int32s(7, 8, 9), a.Data)

	scalar, err := c.ReadAttribute("/meta/inner", "one")
	require.NoError(t, err)
	assert.Nil(t, scalar.Extent)

	_, err = c.ReadAttribute("/meta/inner", "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestGroupsAndLinks(t *testing.T) {
	c, _ := newContainer(t, backend.NewRegistry(nil))
	defer c.Close()

	require.NoError(t, c.CreateGroup("/a/b"))
	_, err := c.CreateEntry("/a/data", backend.CreateSpec{
		ElementType: message.NewFloatDatatype(8, message.OrderLE),
		Extent:      []uint64{1},
		Layout:      backend.Contiguous,
	})
	require.NoError(t, err)
	require.NoError(t, c.CreateSoftLink("/alias", "/a/data"))

	members, err := c.GroupMembers("/a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "data"}, members)

	root, err := c.GroupMembers("/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "alias"}, root)

	assert.True(t, c.EntryExists("/alias"))
}

func TestReadOnlyContainer(t *testing.T) {
	reg := backend.NewRegistry(nil)
	c, path := newContainer(t, reg)
	require.NoError(t, c.CreateGroup("/g"))
	require.NoError(t, c.Close())

	ro, err := Opener{Registry: reg}.Open(path, backend.ReadOnly)
	require.NoError(t, err)
	defer ro.Close()

	err = ro.CreateGroup("/h")
	assert.ErrorIs(t, err, backend.ErrReadOnly)
}

func TestRegistryTracksContainers(t *testing.T) {
	teardowns := 0
	reg := backend.NewRegistry(func() { teardowns++ })

	c1, path := newContainer(t, reg)
	require.NoError(t, c1.Close())
	assert.Equal(t, 1, teardowns)

	c2, err := Opener{Registry: reg}.Open(path, backend.ReadWrite)
	require.NoError(t, err)
	c3, err := Opener{Registry: reg}.Open(path, backend.ReadOnly)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.CountPath(path))

	require.NoError(t, c2.Close())
	require.NoError(t, c2.Close())
	assert.Equal(t, 1, reg.Count())
	require.NoError(t, c3.Close())
	assert.Equal(t, 2, teardowns)
}

func TestOpenNotHDF5(t *testing.T) {
	_, err := Opener{Registry: backend.NewRegistry(nil)}.Open(filepath.Join(t.TempDir(), "missing.h5"), backend.ReadOnly)
	require.Error(t, err)
	assert.False(t, errors.Is(err, backend.ErrNotFound))
}
