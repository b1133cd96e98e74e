package hdf5

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// SetAttribute encodes value and stores it as attribute name on the object at
// objPath, replacing any attribute with the same name.
// The value can be a scalar or slice of numbers, a string or a slice of strings.
func (f *File) SetAttribute(objPath, name string, value interface{}) error {
	attr, err := createAttributeMessage(name, value)
	if err != nil {
		return err
	}
	return f.PutAttribute(objPath, attr)
}

// PutAttribute stores a prepared attribute message on the object at objPath,
// replacing any attribute with the same name.
func (f *File) PutAttribute(objPath string, attr *message.Attribute) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if attr == nil || attr.Name == "" {
		return fmt.Errorf("attribute name cannot be empty")
	}

	h, err := f.lookupHard(objPath)
	if err != nil {
		return err
	}

	if h.Dataspace() != nil {
		parts, err := f.splitDataset(h)
		if err != nil {
			return err
		}
		parts.attrs = replaceAttribute(parts.attrs, attr)
		_, err = f.commitHeader(objPath, parts.messages(), 0)
		return err
	}

	parts, err := f.splitGroup(h)
	if err != nil {
		return err
	}
	parts.attrs = replaceAttribute(parts.attrs, attr)
	_, err = f.commitHeader(objPath, parts.messages(), object.MinGroupChunkSize)
	return err
}

// Attributes returns the attribute messages of the object at p.
func (f *File) Attributes(p string) ([]*message.Attribute, error) {
	h, err := f.headerAt(p)
	if err != nil {
		return nil, err
	}
	return attributesOf(h), nil
}

func replaceAttribute(attrs []*message.Attribute, attr *message.Attribute) []*message.Attribute {
	for i, a := range attrs {
		if a.Name == attr.Name {
			attrs[i] = attr
			return attrs
		}
	}
	return append(attrs, attr)
}

// createAttributeMessage creates an attribute message from a name and value.
func createAttributeMessage(name string, value interface{}) (*message.Attribute, error) {
	val := reflect.ValueOf(value)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	switch {
	case val.Kind() == reflect.String:
		return stringAttribute(name, []string{val.String()}, nil), nil
	case val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.String:
		if val.Len() == 0 {
			return nil, fmt.Errorf("empty string array not supported")
		}
		strs := make([]string, val.Len())
		for i := range strs {
			strs[i] = val.Index(i).String()
		}
		return stringAttribute(name, strs, []uint64{uint64(len(strs))}), nil
	}

	var dataspace *message.Dataspace
	elemType := val.Type()
	switch val.Kind() {
	case reflect.Slice, reflect.Array:
		dataspace = message.NewDataspace([]uint64{uint64(val.Len())}, nil)
		elemType = val.Type().Elem()
	default:
		dataspace = message.NewScalarDataspace()
	}

	datatype, err := dtype.GoTypeToDatatype(elemType)
	if err != nil {
		return nil, fmt.Errorf("unsupported attribute type %v: %w", elemType, err)
	}

	data, err := dtype.Encode(datatype, value)
	if err != nil {
		return nil, fmt.Errorf("encoding attribute value: %w", err)
	}

	return message.NewAttribute(name, datatype, dataspace, data), nil
}

// stringAttribute builds a fixed-length null-terminated string attribute
// sized to the longest value. A nil dims gives a scalar attribute.
func stringAttribute(name string, values []string, dims []uint64) *message.Attribute {
	longest := 0
	for _, s := range values {
		longest = max(longest, len(s))
	}
	size := longest + 1

	datatype := message.NewStringDatatype(uint32(size), message.PadNullTerm, message.CharsetASCII)

	data := make([]byte, len(values)*size)
	for i, s := range values {
		copy(data[i*size:], s)
	}

	dataspace := message.NewScalarDataspace()
	if dims != nil {
		dataspace = message.NewDataspace(dims, nil)
	}
	return message.NewAttribute(name, datatype, dataspace, data)
}
