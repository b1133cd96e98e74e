package marshal

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/props"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
	"github.com/robert-malhotra/go-h5store/tensor"
)

// Encode returns the value's elements as row-major bytes of type dt. For
// text, dt fixes the string size.
func Encode(val *Value, dt *message.Datatype) ([]byte, error) {
	var (
		flat any
		col  bool
	)
	switch val.Info.Category {
	case typeinfo.Scalar, typeinfo.Text, typeinfo.Sequence1D, typeinfo.FixedArray:
		flat = val.v.Interface()
	case typeinfo.BlockRowMajor, typeinfo.BlockColMajor:
		if val.Info.Tensor {
			block := val.v.Interface().(tensor.Block)
			flat = block.Raw()
			col = block.Order() == tensor.ColMajorOrder
		} else {
			flat = flattenNested(val.v, val.Info.Rank, val.Info.Elem).Interface()
		}
	default:
		return nil, fmt.Errorf("%w: %v", typeinfo.ErrUnsupportedType, val.Info.Type)
	}

	count := elementCount(val.Extent)
	if count == 0 {
		return []byte{}, nil
	}
	buf, err := dtype.Encode(dt, flat)
	if err != nil {
		return nil, err
	}
	if want := count * uint64(dt.Size); uint64(len(buf)) != want {
		return nil, fmt.Errorf("%w: encoded %d bytes for %d elements of %d bytes",
			ErrTypeSizeMismatch, len(buf), count, dt.Size)
	}
	if col {
		buf = colToRow(buf, val.Extent, int(dt.Size))
	}
	return buf, nil
}

func flattenNested(rv reflect.Value, rank int, elem reflect.Type) reflect.Value {
	out := reflect.MakeSlice(reflect.SliceOf(elem), 0, 0)

	var walk func(v reflect.Value, depth int)
	walk = func(v reflect.Value, depth int) {
		if depth+1 < rank {
			for i := 0; i < v.Len(); i++ {
				walk(v.Index(i), depth+1)
			}
			return
		}
		if v.Kind() == reflect.Slice {
			out = reflect.AppendSlice(out, v)
			return
		}
		for i := 0; i < v.Len(); i++ {
			out = reflect.Append(out, v.Index(i))
		}
	}
	walk(rv, 0)
	return out
}

func elementCount(extent []uint64) uint64 {
	n := uint64(1)
	for _, d := range extent {
		n *= d
	}
	return n
}

// colToRow reorders elements of size bytes from first-index-fastest to
// last-index-fastest order.
func colToRow(src []byte, dims []uint64, size int) []byte {
	return permute(src, dims, size, true)
}

// rowToCol is the inverse of colToRow.
func rowToCol(src []byte, dims []uint64, size int) []byte {
	return permute(src, dims, size, false)
}

func permute(src []byte, dims []uint64, size int, toRow bool) []byte {
	dst := make([]byte, len(src))
	rank := len(dims)
	if rank < 2 {
		copy(dst, src)
		return dst
	}

	colStride := make([]uint64, rank)
	colStride[0] = 1
	for i := 1; i < rank; i++ {
		colStride[i] = colStride[i-1] * dims[i-1]
	}

	idx := make([]uint64, rank)
	n := elementCount(dims)
	for row := uint64(0); row < n; row++ {
		col := uint64(0)
		for i, v := range idx {
			col += v * colStride[i]
		}
		r, c := int(row)*size, int(col)*size
		if toRow {
			copy(dst[r:r+size], src[c:c+size])
		} else {
			copy(dst[c:c+size], src[r:r+size])
		}
		for i := rank - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < dims[i] {
				break
			}
			idx[i] = 0
		}
	}
	return dst
}

// checkDecodable verifies that entry type dt can be decoded into elements
// of info's scalar component.
func checkDecodable(dt *message.Datatype, info typeinfo.Info) error {
	if info.IsText() {
		switch {
		case dt.Class == message.ClassString:
			return nil
		case dt.IsVarLen() && dt.IsVarLenString:
			return fmt.Errorf("%w: variable-length strings are not supported", props.ErrTypeMismatch)
		default:
			return fmt.Errorf("%w: text destination for class %d data", props.ErrTypeMismatch, dt.Class)
		}
	}

	switch k := info.Elem.Kind(); {
	case k == reflect.Complex64 || k == reflect.Complex128:
		if !dtype.IsComplex(dt) {
			return fmt.Errorf("%w: complex destination for non-complex data", props.ErrTypeMismatch)
		}
	case dt.Class != message.ClassFixedPoint && dt.Class != message.ClassFloatPoint:
		return fmt.Errorf("%w: numeric destination for class %d data", props.ErrTypeMismatch, dt.Class)
	}
	if uintptr(dt.Size) != info.Elem.Size() {
		return fmt.Errorf("%w: stored elements are %d bytes, %v is %d",
			ErrTypeSizeMismatch, dt.Size, info.Elem, info.Elem.Size())
	}
	return nil
}

// decode converts row-major bytes of type dt and shape extent into dst,
// which must be settable.
func decode(dt *message.Datatype, extent []uint64, buf []byte, info typeinfo.Info, dst reflect.Value) error {
	count := elementCount(extent)

	switch info.Category {
	case typeinfo.Scalar, typeinfo.Text:
		if count != 1 {
			return fmt.Errorf("%w: %d elements into a single value", props.ErrExtentMismatch, count)
		}
		flat, err := convert(dt, buf, 1, info.Elem)
		if err != nil {
			return err
		}
		dst.Set(flat.Index(0))
		return nil

	case typeinfo.Sequence1D:
		flat, err := convert(dt, buf, count, info.Elem)
		if err != nil {
			return err
		}
		dst.Set(flat.Convert(dst.Type()))
		return nil

	case typeinfo.FixedArray:
		if count != uint64(dst.Len()) {
			return fmt.Errorf("%w: %d elements into %v", props.ErrExtentMismatch, count, dst.Type())
		}
		flat, err := convert(dt, buf, count, info.Elem)
		if err != nil {
			return err
		}
		reflect.Copy(dst, flat)
		return nil

	case typeinfo.BlockRowMajor, typeinfo.BlockColMajor:
		if info.Tensor {
			return decodeTensor(dt, extent, buf, dst)
		}
		if len(extent) != info.Rank {
			return fmt.Errorf("%w: rank %d data into %v", props.ErrRankMismatch, len(extent), dst.Type())
		}
		flat, err := convert(dt, buf, count, info.Elem)
		if err != nil {
			return err
		}
		off := 0
		nested, err := buildNested(dst.Type(), extent, flat, &off)
		if err != nil {
			return err
		}
		dst.Set(nested)
		return nil
	}
	return fmt.Errorf("%w: %v", typeinfo.ErrUnsupportedType, info.Type)
}

func convert(dt *message.Datatype, buf []byte, n uint64, elem reflect.Type) (reflect.Value, error) {
	out := reflect.New(reflect.SliceOf(elem))
	out.Elem().Set(reflect.MakeSlice(out.Elem().Type(), int(n), int(n)))
	if n == 0 {
		return out.Elem(), nil
	}
	if err := dtype.Convert(dt, buf, n, out.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return out.Elem(), nil
}

func decodeTensor(dt *message.Datatype, extent []uint64, buf []byte, dst reflect.Value) error {
	if dst.IsNil() {
		dst.Set(reflect.New(dst.Type().Elem()))
	}
	block := dst.Interface().(tensor.Block)

	dims := make([]int, len(extent))
	for i, d := range extent {
		dims[i] = int(d)
	}
	block.Resize(dims...)

	if block.Order() == tensor.ColMajorOrder {
		buf = rowToCol(buf, extent, int(dt.Size))
	}

	raw := reflect.ValueOf(block.Raw())
	if raw.Len() == 0 {
		return nil
	}
	// The header copy shares the block's backing array, which already has
	// room for every element.
	target := reflect.New(raw.Type())
	target.Elem().Set(raw)
	return dtype.Convert(dt, buf, uint64(raw.Len()), target.Interface())
}

func buildNested(t reflect.Type, extent []uint64, flat reflect.Value, off *int) (reflect.Value, error) {
	n := int(extent[0])

	var out reflect.Value
	switch t.Kind() {
	case reflect.Slice:
		out = reflect.MakeSlice(t, n, n)
	case reflect.Array:
		if t.Len() != n {
			return reflect.Value{}, fmt.Errorf("%w: %d elements into %v", props.ErrExtentMismatch, n, t)
		}
		out = reflect.New(t).Elem()
	default:
		return reflect.Value{}, fmt.Errorf("%w: %v", typeinfo.ErrUnsupportedType, t)
	}

	if len(extent) == 1 {
		reflect.Copy(out, flat.Slice(*off, *off+n))
		*off += n
		return out, nil
	}
	for i := 0; i < n; i++ {
		inner, err := buildNested(t.Elem(), extent[1:], flat, off)
		if err != nil {
			return reflect.Value{}, err
		}
		out.Index(i).Set(inner)
	}
	return out, nil
}
