package typeinfo

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/tensor"
)

type celsius float32

func TestOf(t *testing.T) {
	tests := []struct {
		name     string
		typ      reflect.Type
		category Category
		elem     reflect.Type
		rank     int
	}{
		{"int32", reflect.TypeOf(int32(0)), Scalar, reflect.TypeOf(int32(0)), 0},
		{"named float", reflect.TypeOf(celsius(0)), Scalar, reflect.TypeOf(celsius(0)), 0},
		{"complex128", reflect.TypeOf(complex128(0)), Scalar, reflect.TypeOf(complex128(0)), 0},
		{"string", reflect.TypeOf(""), Text, reflect.TypeOf(""), 0},
		{"slice", reflect.TypeOf([]float64{}), Sequence1D, reflect.TypeOf(0.0), 1},
		{"string slice", reflect.TypeOf([]string{}), Sequence1D, reflect.TypeOf(""), 1},
		{"array", reflect.TypeOf([4]uint16{}), FixedArray, reflect.TypeOf(uint16(0)), 1},
		{"nested", reflect.TypeOf([][]int64{}), BlockRowMajor, reflect.TypeOf(int64(0)), 2},
		{"nested 3d", reflect.TypeOf([][][2]int8{}), BlockRowMajor, reflect.TypeOf(int8(0)), 3},
		{"row major", reflect.TypeOf(&tensor.RowMajor[float32]{}), BlockRowMajor, reflect.TypeOf(float32(0)), DynamicRank},
		{"col major", reflect.TypeOf(&tensor.ColMajor[complex64]{}), BlockColMajor, reflect.TypeOf(complex64(0)), DynamicRank},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := Of(tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.category, info.Category)
			assert.Equal(t, tt.elem, info.Elem)
			assert.Equal(t, tt.rank, info.Rank)
			assert.Equal(t, tt.typ, info.Type)
		})
	}
}

func TestOfUnsupported(t *testing.T) {
	for _, typ := range []reflect.Type{
		reflect.TypeOf(true),
		reflect.TypeOf([]bool{}),
		reflect.TypeOf(struct{ A int }{}),
		reflect.TypeOf(map[string]int{}),
		reflect.TypeOf([][]string{}),
		reflect.TypeOf(new(int)),
		nil,
	} {
		info, err := Of(typ)
		assert.ErrorIs(t, err, ErrUnsupportedType, "%v", typ)
		assert.Equal(t, Unsupported, info.Category)
	}
}

func TestOfIsCached(t *testing.T) {
	typ := reflect.TypeOf([][]uint32{})
	first, err := Of(typ)
	require.NoError(t, err)

	_, ok := cache.Load(typ)
	require.True(t, ok)

	second, err := Of(typ)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFor(t *testing.T) {
	info, err := For[*tensor.ColMajor[int]]()
	require.NoError(t, err)
	assert.Equal(t, BlockColMajor, info.Category)
	assert.True(t, info.Tensor)
	assert.True(t, info.Category.IsBlock())
}

func TestElementType(t *testing.T) {
	dt, err := ElementType(reflect.TypeOf(int(0)))
	require.NoError(t, err)
	assert.Equal(t, message.ClassFixedPoint, dt.Class)
	assert.Equal(t, uint32(8), dt.Size)
	assert.True(t, dt.Signed)

	dt, err = ElementType(reflect.TypeOf(uint16(0)))
	require.NoError(t, err)
	assert.Equal(t, uint32(2), dt.Size)
	assert.False(t, dt.Signed)

	dt, err = ElementType(reflect.TypeOf(float32(0)))
	require.NoError(t, err)
	assert.Equal(t, message.ClassFloatPoint, dt.Class)

	dt, err = ElementType(reflect.TypeOf(complex64(0)))
	require.NoError(t, err)
	assert.True(t, dtype.IsComplex(dt))
	assert.Equal(t, uint32(8), dt.Size)

	dt, err = ElementType(reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, message.ClassString, dt.Class)
	assert.Equal(t, message.CharsetUTF8, dt.CharSet)
	assert.Equal(t, message.PadNullTerm, dt.StringPadding)

	_, err = ElementType(reflect.TypeOf(false))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestSetStringSize(t *testing.T) {
	base, err := ElementType(reflect.TypeOf(""))
	require.NoError(t, err)

	sized := SetStringSize(base, 5)
	assert.Equal(t, uint32(6), sized.Size)
	assert.Equal(t, base.CharSet, sized.CharSet)
	assert.Equal(t, uint32(1), base.Size)
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "block-col-major", BlockColMajor.String())
	assert.Equal(t, "category(42)", Category(42).String())
}
