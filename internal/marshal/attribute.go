package marshal

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
)

// EncodeAttribute describes and encodes v as attribute name. Attributes are
// always contiguous and sized exactly to the value.
func EncodeAttribute(name string, v any) (backend.Attribute, error) {
	val, err := Describe(v)
	if err != nil {
		return backend.Attribute{}, err
	}
	data, err := Encode(val, val.ElementType)
	if err != nil {
		return backend.Attribute{}, fmt.Errorf("%w: attribute %s: %w", ErrWriteFailed, name, err)
	}
	return backend.Attribute{
		Name:        name,
		ElementType: val.ElementType,
		Extent:      val.Extent,
		Data:        data,
	}, nil
}

// DecodeAttribute decodes a into dst, a non-nil pointer to a supported
// container.
func DecodeAttribute(a backend.Attribute, dst any) error {
	rv := reflect.ValueOf(dst)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer", typeinfo.ErrUnsupportedType)
	}
	target := rv.Elem()
	info, err := typeinfo.Of(target.Type())
	if err != nil {
		return err
	}
	if err := checkDecodable(a.ElementType, info); err != nil {
		return fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	if err := decode(a.ElementType, a.Extent, a.Data, info, target); err != nil {
		return fmt.Errorf("%w: attribute %s: %w", ErrReadFailed, a.Name, err)
	}
	return nil
}
