// Package typeinfo classifies Go container types into the shape categories
// the store knows how to persist and maps their scalar component to an HDF5
// element type.
//
// Classification is done once per concrete reflect.Type and cached.
package typeinfo

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/tensor"
)

// ErrUnsupportedType is returned for types outside the supported categories.
var ErrUnsupportedType = errors.New("unsupported container type")

// Category is the shape category of a container type.
type Category uint8

const (
	Unsupported Category = iota
	Scalar
	Text
	Sequence1D
	FixedArray
	BlockRowMajor
	BlockColMajor
)

var categoryNames = [...]string{
	Unsupported:   "unsupported",
	Scalar:        "scalar",
	Text:          "text",
	Sequence1D:    "sequence",
	FixedArray:    "fixed-array",
	BlockRowMajor: "block-row-major",
	BlockColMajor: "block-col-major",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", c)
}

// IsBlock reports whether c is a multi-dimensional block category.
func (c Category) IsBlock() bool {
	return c == BlockRowMajor || c == BlockColMajor
}

// DynamicRank marks categories whose rank is only known from a value.
const DynamicRank = -1

// Info is the classification of a container type.
type Info struct {
	Category Category
	// Type is the classified container type.
	Type reflect.Type
	// Elem is the scalar component type.
	Elem reflect.Type
	// Rank is the static rank, or DynamicRank for tensor blocks.
	Rank int
	// Tensor is set for *tensor.RowMajor and *tensor.ColMajor.
	Tensor bool
}

// IsText reports whether the scalar component is a string.
func (i Info) IsText() bool {
	return i.Elem != nil && i.Elem.Kind() == reflect.String
}

type cached struct {
	info Info
	err  error
}

var cache sync.Map // reflect.Type -> cached

var blockType = reflect.TypeOf((*tensor.Block)(nil)).Elem()

// Of classifies t. Results are cached per type.
func Of(t reflect.Type) (Info, error) {
	if t == nil {
		return Info{}, fmt.Errorf("%w: nil type", ErrUnsupportedType)
	}
	if c, ok := cache.Load(t); ok {
		c := c.(cached)
		return c.info, c.err
	}
	info, err := classify(t)
	cache.Store(t, cached{info: info, err: err})
	return info, err
}

// For classifies the type parameter T.
func For[T any]() (Info, error) {
	return Of(reflect.TypeOf((*T)(nil)).Elem())
}

func classify(t reflect.Type) (Info, error) {
	info := Info{Type: t}
	unsupported := func() (Info, error) {
		info.Category = Unsupported
		return info, fmt.Errorf("%w: %v", ErrUnsupportedType, t)
	}

	switch {
	case isNumeric(t.Kind()):
		info.Category, info.Elem, info.Rank = Scalar, t, 0
		return info, nil
	case t.Kind() == reflect.String:
		info.Category, info.Elem, info.Rank = Text, t, 0
		return info, nil
	case t.Kind() == reflect.Pointer && t.Implements(blockType):
		elem, ok := tensorElem(t)
		if !ok {
			return unsupported()
		}
		order := reflect.New(t.Elem()).Interface().(tensor.Block).Order()
		info.Category = BlockRowMajor
		if order == tensor.ColMajorOrder {
			info.Category = BlockColMajor
		}
		info.Elem, info.Rank, info.Tensor = elem, DynamicRank, true
		return info, nil
	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
	default:
		return unsupported()
	}

	rank := 0
	elem := t
	for elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array {
		elem = elem.Elem()
		rank++
	}
	switch {
	case rank == 1 && (isNumeric(elem.Kind()) || elem.Kind() == reflect.String):
		info.Category = Sequence1D
		if t.Kind() == reflect.Array {
			info.Category = FixedArray
		}
	case rank > 1 && isNumeric(elem.Kind()):
		info.Category = BlockRowMajor
	default:
		return unsupported()
	}
	info.Elem, info.Rank = elem, rank
	return info, nil
}

func tensorElem(t reflect.Type) (reflect.Type, bool) {
	m, ok := t.MethodByName("Data")
	if !ok || m.Type.NumOut() != 1 || m.Type.Out(0).Kind() != reflect.Slice {
		return nil, false
	}
	elem := m.Type.Out(0).Elem()
	return elem, isNumeric(elem.Kind())
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}

// ElementType maps a scalar component type to its HDF5 datatype. Strings map
// to a fixed-length, null-terminated UTF-8 type of size 1; callers size it
// with SetStringSize once the longest value is known.
func ElementType(elem reflect.Type) (*message.Datatype, error) {
	switch elem.Kind() {
	case reflect.String:
		return message.NewStringDatatype(1, message.PadNullTerm, message.CharsetUTF8), nil
	case reflect.Bool:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, elem)
	}
	if !isNumeric(elem.Kind()) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, elem)
	}
	return dtype.GoTypeToDatatype(elem)
}

// SetStringSize returns a copy of a fixed-length string type resized to hold
// n bytes plus the terminator.
func SetStringSize(dt *message.Datatype, n int) *message.Datatype {
	return message.NewStringDatatype(uint32(n+1), dt.StringPadding, dt.CharSet)
}

// ElemSize returns the in-memory size of one scalar component. For strings
// it returns 0: text is sized per value.
func ElemSize(elem reflect.Type) uintptr {
	if elem.Kind() == reflect.String {
		return 0
	}
	return elem.Size()
}
