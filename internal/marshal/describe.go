// Package marshal moves container values in and out of entries. It
// describes a value's shape and element type, encodes it into canonical
// row-major little-endian bytes, and decodes entry bytes back into the
// caller's container, transposing column-major blocks both ways.
package marshal

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/props"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
	"github.com/robert-malhotra/go-h5store/tensor"
)

var (
	ErrTypeSizeMismatch = errors.New("element type size mismatch")
	ErrWriteFailed      = errors.New("write failed")
	ErrReadFailed       = errors.New("read failed")
)

// Value is a described container ready to be written.
type Value struct {
	props.Source
	Info typeinfo.Info

	v reflect.Value
}

// Describe classifies v and derives its extent and element type.
func Describe(v any) (*Value, error) {
	return DescribeValue(reflect.ValueOf(v))
}

// DescribeValue is Describe for a reflect.Value.
func DescribeValue(rv reflect.Value) (*Value, error) {
	if !rv.IsValid() {
		return nil, fmt.Errorf("%w: nil value", typeinfo.ErrUnsupportedType)
	}
	info, err := typeinfo.Of(rv.Type())
	if err != nil {
		return nil, err
	}

	val := &Value{Info: info, v: rv}
	switch info.Category {
	case typeinfo.Scalar, typeinfo.Text:
	case typeinfo.Sequence1D, typeinfo.FixedArray:
		val.Extent = []uint64{uint64(rv.Len())}
	case typeinfo.BlockRowMajor, typeinfo.BlockColMajor:
		if info.Tensor {
			if rv.IsNil() {
				return nil, fmt.Errorf("%w: nil %v", typeinfo.ErrUnsupportedType, rv.Type())
			}
			for _, d := range rv.Interface().(tensor.Block).Dims() {
				val.Extent = append(val.Extent, uint64(d))
			}
		} else {
			val.Extent, err = nestedExtent(rv, info.Rank)
			if err != nil {
				return nil, err
			}
		}
	}

	dt, err := typeinfo.ElementType(info.Elem)
	if err != nil {
		return nil, err
	}
	if info.IsText() {
		val.Text = true
		val.StringLen = longestString(rv)
		dt = typeinfo.SetStringSize(dt, val.StringLen)
	}
	val.ElementType = dt
	return val, nil
}

// nestedExtent returns the extent of rectangular nested slices and arrays.
func nestedExtent(rv reflect.Value, rank int) ([]uint64, error) {
	extent := make([]uint64, rank)
	seen := make([]bool, rank)

	var walk func(v reflect.Value, depth int) error
	walk = func(v reflect.Value, depth int) error {
		n := uint64(v.Len())
		if !seen[depth] {
			extent[depth], seen[depth] = n, true
		} else if extent[depth] != n {
			return fmt.Errorf("%w: ragged nesting at depth %d: %d vs %d elements",
				props.ErrExtentMismatch, depth, n, extent[depth])
		}
		if depth+1 == rank {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := walk(v.Index(i), depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(rv, 0); err != nil {
		return nil, err
	}
	return extent, nil
}

func longestString(rv reflect.Value) int {
	if rv.Kind() == reflect.String {
		return rv.Len()
	}
	longest := 0
	for i := 0; i < rv.Len(); i++ {
		longest = max(longest, rv.Index(i).Len())
	}
	return longest
}
