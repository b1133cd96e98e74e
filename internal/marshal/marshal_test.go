package marshal

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/policy"
	"github.com/robert-malhotra/go-h5store/internal/props"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
	"github.com/robert-malhotra/go-h5store/tensor"
)

func resolver(c *memContainer) *props.Resolver {
	return &props.Resolver{Container: c, Policy: policy.Default()}
}

func store(t *testing.T, c *memContainer, name string, v any) {
	t.Helper()
	val, err := Describe(v)
	require.NoError(t, err)
	ep, err := resolver(c).Write(val.Source, name, props.Overrides{})
	require.NoError(t, err)
	defer ep.Close()
	require.NoError(t, Write(ep, c, val))
}

func load(c *memContainer, name string, dst any) error {
	ep, err := resolver(c).Read(name)
	if err != nil {
		return err
	}
	defer ep.Close()
	return Read(ep, dst)
}

func roundTrip[T any](v T) func(t *testing.T) {
	return func(t *testing.T) {
		c := newMemContainer()
		store(t, c, "/data", v)

		var got T
		require.NoError(t, load(c, "/data", &got))
		assert.Equal(t, v, got)
	}
}

func TestRoundTrip(t *testing.T) {
	t.Run("int32", roundTrip(int32(-7)))
	t.Run("uint", roundTrip(uint(1<<40)))
	t.Run("float64", roundTrip(3.25))
	t.Run("complex128", roundTrip(complex(1.5, -2)))
	t.Run("complex64 slice", roundTrip([]complex64{1 + 2i, 3 - 4i}))
	t.Run("string", roundTrip("hello, world"))
	t.Run("float32 slice", roundTrip([]float32{1, 2.5, -3}))
	t.Run("fixed array", roundTrip([4]int16{1, -2, 3, -4}))
	t.Run("string slice", roundTrip([]string{"a", "bcd", ""}))
	t.Run("nested slices", roundTrip([][]int{{1, 2, 3}, {4, 5, 6}}))
	t.Run("nested arrays", roundTrip([2][3]uint8{{1, 2, 3}, {4, 5, 6}}))
	t.Run("rank 3", roundTrip([][][]float64{{{1, 2}, {3, 4}}, {{5, 6}, {7, 8}}}))
	t.Run("empty slice", roundTrip([]float64{}))
}

func TestTensorRoundTrip(t *testing.T) {
	c := newMemContainer()
	src, err := tensor.RowMajorFrom([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	store(t, c, "/block", src)

	var got *tensor.RowMajor[float64]
	require.NoError(t, load(c, "/block", &got))
	require.NotNil(t, got)
	assert.Equal(t, []int{2, 3}, got.Dims())
	assert.Equal(t, src.Data(), got.Data())
}

func colMajorSample() *tensor.ColMajor[int32] {
	m := tensor.NewColMajor[int32](3, 2)
	rows := [][]int32{{1, 2}, {3, 4}, {5, 6}}
	for i, row := range rows {
		for j, v := range row {
			m.Set(v, i, j)
		}
	}
	return m
}

func TestColMajorIsStoredRowMajor(t *testing.T) {
	m := colMajorSample()
	require.Equal(t, []int32{1, 3, 5, 2, 4, 6}, m.Data())

	val, err := Describe(m)
	require.NoError(t, err)
	assert.Equal(t, typeinfo.BlockColMajor, val.Info.Category)
	assert.Equal(t, []uint64{3, 2}, val.Extent)

	buf, err := Encode(val, val.ElementType)
	require.NoError(t, err)
	require.Len(t, buf, 24)
	for i := 0; i < 6; i++ {
		assert.Equal(t, uint32(i+1), binary.LittleEndian.Uint32(buf[4*i:]), "element %d", i)
	}

	c := newMemContainer()
	store(t, c, "/m", m)

	row := tensor.NewRowMajor[int32]()
	require.NoError(t, load(c, "/m", &row))
	assert.Equal(t, []int32{1, 2, 3, 4, 5, 6}, row.Data())

	col := tensor.NewColMajor[int32]()
	require.NoError(t, load(c, "/m", &col))
	assert.Equal(t, m.Data(), col.Data())
	assert.Equal(t, int32(4), col.At(1, 1))

	var nested [][]int32
	require.NoError(t, load(c, "/m", &nested))
	assert.Equal(t, [][]int32{{1, 2}, {3, 4}, {5, 6}}, nested)
}

func TestPermuteIsInvertible(t *testing.T) {
	dims := []uint64{2, 3, 4}
	src := make([]byte, 2*24)
	for i := range src {
		src[i] = byte(i)
	}
	assert.Equal(t, src, rowToCol(colToRow(src, dims, 2), dims, 2))
	assert.Equal(t, src, colToRow(src, []uint64{24}, 2))
}

func TestDescribe(t *testing.T) {
	val, err := Describe([]string{"ab", "hello"})
	require.NoError(t, err)
	assert.True(t, val.Text)
	assert.Equal(t, 5, val.StringLen)
	assert.Equal(t, uint32(6), val.ElementType.Size)
	assert.Equal(t, []uint64{2}, val.Extent)

	val, err = Describe(7.0)
	require.NoError(t, err)
	assert.Nil(t, val.Extent)
	assert.Equal(t, 0, val.Rank())

	_, err = Describe([][]int{{1, 2}, {3}})
	assert.ErrorIs(t, err, props.ErrExtentMismatch)

	_, err = Describe(map[string]int{})
	assert.ErrorIs(t, err, typeinfo.ErrUnsupportedType)

	_, err = Describe((*tensor.RowMajor[float64])(nil))
	assert.ErrorIs(t, err, typeinfo.ErrUnsupportedType)
}

func TestReadChecks(t *testing.T) {
	c := newMemContainer()
	store(t, c, "/floats", []float64{1, 2})
	store(t, c, "/grid", [][]int64{{1, 2}, {3, 4}})

	var s string
	assert.ErrorIs(t, load(c, "/floats", &s), props.ErrTypeMismatch)

	var narrow []float32
	assert.ErrorIs(t, load(c, "/floats", &narrow), ErrTypeSizeMismatch)

	var flat []int64
	assert.ErrorIs(t, load(c, "/grid", &flat), props.ErrRankMismatch)

	var cube [][][]int64
	assert.ErrorIs(t, load(c, "/grid", &cube), props.ErrRankMismatch)

	var three [3]float64
	assert.ErrorIs(t, load(c, "/floats", &three), props.ErrExtentMismatch)

	var one float64
	assert.ErrorIs(t, load(c, "/floats", &one), props.ErrExtentMismatch)

	var cplx []complex128
	assert.ErrorIs(t, load(c, "/floats", &cplx), props.ErrTypeMismatch)

	assert.ErrorIs(t, load(c, "/floats", nil), typeinfo.ErrUnsupportedType)
	assert.ErrorIs(t, load(c, "/floats", flat), typeinfo.ErrUnsupportedType)
}

func TestTextOverwriteKeepsStringSize(t *testing.T) {
	c := newMemContainer()
	store(t, c, "/names", []string{"hello", "world"})
	store(t, c, "/names", []string{"hi", "yo"})

	e := c.entries["/names"]
	assert.Equal(t, uint32(6), e.dt.Size)

	var got []string
	require.NoError(t, load(c, "/names", &got))
	assert.Equal(t, []string{"hi", "yo"}, got)
}

func TestWriteRejectsElementSizeMismatch(t *testing.T) {
	c := newMemContainer()
	val, err := Describe([]int32{1, 2})
	require.NoError(t, err)

	src := val.Source
	src.ElementType = message.NewFixedPointDatatype(8, true, message.OrderLE)
	ep, err := resolver(c).Bootstrap(src, "/x", props.Overrides{})
	require.NoError(t, err)
	defer ep.Close()

	assert.ErrorIs(t, Write(ep, c, val), ErrTypeSizeMismatch)
	assert.Empty(t, c.entries)
}

func TestEmptyWriteSkipsRawIO(t *testing.T) {
	c := newMemContainer()
	store(t, c, "/empty", []int32{})
	assert.Contains(t, c.entries, "/empty")
	assert.Zero(t, c.writes)
}

func TestAttributes(t *testing.T) {
	a, err := EncodeAttribute("units", "m/s")
	require.NoError(t, err)
	assert.Equal(t, "units", a.Name)
	assert.Nil(t, a.Extent)

	var units string
	require.NoError(t, DecodeAttribute(a, &units))
	assert.Equal(t, "m/s", units)

	a, err = EncodeAttribute("bounds", []int64{-1, 1})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, a.Extent)

	var bounds []int64
	require.NoError(t, DecodeAttribute(a, &bounds))
	assert.Equal(t, []int64{-1, 1}, bounds)

	var wrong []string
	assert.ErrorIs(t, DecodeAttribute(a, &wrong), props.ErrTypeMismatch)

	_, err = EncodeAttribute("flag", true)
	assert.ErrorIs(t, err, typeinfo.ErrUnsupportedType)
}
