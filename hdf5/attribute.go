package hdf5

import (
	"errors"
	"reflect"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// Attribute is a small named value stored in the header of a group or
// dataset.
type Attribute struct {
	msg    *message.Attribute
	reader *binpkg.Reader
}

func (a *Attribute) Name() string { return a.msg.Name }

// Datatype returns the stored element type.
func (a *Attribute) Datatype() *message.Datatype { return a.msg.Datatype }

// Shape returns nil for a scalar attribute.
func (a *Attribute) Shape() []uint64 {
	if a.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar()
}

func (a *Attribute) count() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// Read decodes the value into dest, which is typically a pointer to a slice
// or, for scalars, to a single value. Variable-length strings are resolved
// through the file's global heap.
func (a *Attribute) Read(dest any) error {
	if a.msg.Datatype == nil {
		return errors.New("attribute has no datatype")
	}
	return dtype.ConvertWithReader(a.msg.Datatype, a.msg.Data, a.count(), dest, a.reader)
}

var (
	int64Type   = reflect.TypeOf(int64(0))
	uint64Type  = reflect.TypeOf(uint64(0))
	float64Type = reflect.TypeOf(float64(0))
)

// Value decodes the attribute without a destination type. Integers widen to
// int64 or uint64 and floats to float64; other types decode to the type
// dtype.GoType reports. A scalar yields one value and anything else a slice.
func (a *Attribute) Value() (any, error) {
	if a.msg.Datatype == nil {
		return nil, errors.New("attribute has no datatype")
	}
	t, err := dtype.GoType(a.msg.Datatype)
	if err != nil {
		return nil, err
	}
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		t = int64Type
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		t = uint64Type
	case reflect.Float32:
		t = float64Type
	}
	out := reflect.New(reflect.SliceOf(t))
	if err := a.Read(out.Interface()); err != nil {
		return nil, err
	}
	vals := out.Elem()
	if a.IsScalar() && vals.Len() == 1 {
		return vals.Index(0).Interface(), nil
	}
	return vals.Interface(), nil
}

// attrNames lists the attributes of h in header order.
func attrNames(h *object.Header) []string {
	var names []string
	for _, a := range attributesOf(h) {
		names = append(names, a.Name)
	}
	return names
}

// attr returns the attribute of h called name, or nil.
func (f *File) attr(h *object.Header, name string) *Attribute {
	for _, a := range attributesOf(h) {
		if a.Name == name {
			return &Attribute{msg: a, reader: f.reader}
		}
	}
	return nil
}
