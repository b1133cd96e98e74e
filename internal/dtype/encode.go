package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Encode lays out the elements of src as n*dt.Size bytes. src may be a
// scalar, a slice or an array, or a pointer to one; interface elements are
// unwrapped.
func Encode(dt *message.Datatype, src any) ([]byte, error) {
	if dt == nil {
		return nil, fmt.Errorf("%w: nil datatype", ErrUnsupported)
	}
	v := reflect.ValueOf(src)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("cannot encode a nil %v", v.Type())
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, fmt.Errorf("cannot encode nil")
	}
	if k := v.Kind(); k != reflect.Slice && k != reflect.Array || v.Type() == bytesType && dt.Class == message.ClassString {
		one := reflect.New(reflect.SliceOf(v.Type())).Elem()
		v = reflect.Append(one, v)
	}

	put, err := encoder(dt)
	if err != nil {
		return nil, err
	}
	size := int(dt.Size)
	out := make([]byte, v.Len()*size)
	for i := 0; i < v.Len(); i++ {
		e := v.Index(i)
		if e.Kind() == reflect.Interface {
			e = e.Elem()
		}
		if !e.IsValid() {
			return nil, fmt.Errorf("element %d is nil", i)
		}
		if err := put(out[i*size:(i+1)*size], e); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

type encodeFunc func(b []byte, v reflect.Value) error

func encoder(dt *message.Datatype) (encodeFunc, error) {
	order := ByteOrder(dt)
	switch dt.Class {
	case message.ClassFixedPoint:
		if _, err := intType(dt.Size, dt.Signed); err != nil {
			return nil, err
		}
		return func(b []byte, v reflect.Value) error {
			switch v.Kind() {
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				putUint(order, b, uint64(v.Int()))
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
				putUint(order, b, v.Uint())
			case reflect.Bool:
				if v.Bool() {
					putUint(order, b, 1)
				}
			default:
				return fmt.Errorf("cannot encode %v as an integer", v.Type())
			}
			return nil
		}, nil

	case message.ClassFloatPoint:
		if dt.Size != 4 && dt.Size != 8 {
			return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, dt.Size)
		}
		return func(b []byte, v reflect.Value) error {
			var f float64
			switch v.Kind() {
			case reflect.Float32, reflect.Float64:
				f = v.Float()
			case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
				f = float64(v.Int())
			case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
				f = float64(v.Uint())
			default:
				return fmt.Errorf("cannot encode %v as a float", v.Type())
			}
			putFloat(order, b, f)
			return nil
		}, nil

	case message.ClassString:
		pad := dt.StringPadding
		return func(b []byte, v reflect.Value) error {
			var s string
			switch {
			case v.Kind() == reflect.String:
				s = v.String()
			case v.Type() == bytesType:
				s = string(v.Bytes())
			default:
				return fmt.Errorf("cannot encode %v as a string", v.Type())
			}
			limit := len(b)
			if pad == message.PadNullTerm {
				limit--
			}
			n := copy(b[:max(limit, 0)], s)
			if pad == message.PadSpacePad {
				for i := n; i < len(b); i++ {
					b[i] = ' '
				}
			}
			return nil
		}, nil

	case message.ClassCompound:
		if !IsComplex(dt) {
			return nil, fmt.Errorf("%w: compound %d bytes with %d members", ErrUnsupported, dt.Size, len(dt.Members))
		}
		part := int(dt.Members[0].Type.Size)
		if part != 4 && part != 8 {
			return nil, fmt.Errorf("%w: %d-byte complex part", ErrUnsupported, part)
		}
		return func(b []byte, v reflect.Value) error {
			var c complex128
			switch v.Kind() {
			case reflect.Complex64, reflect.Complex128:
				c = v.Complex()
			case reflect.Float32, reflect.Float64:
				c = complex(v.Float(), 0)
			default:
				return fmt.Errorf("cannot encode %v as a complex number", v.Type())
			}
			putFloat(order, b[:part], real(c))
			putFloat(order, b[part:2*part], imag(c))
			return nil
		}, nil
	}
	return nil, fmt.Errorf("%w: cannot encode class %d", ErrUnsupported, dt.Class)
}

func putUint(order binary.ByteOrder, b []byte, u uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(u)
	case 2:
		order.PutUint16(b, uint16(u))
	case 4:
		order.PutUint32(b, uint32(u))
	default:
		order.PutUint64(b, u)
	}
}

func putFloat(order binary.ByteOrder, b []byte, f float64) {
	if len(b) == 4 {
		order.PutUint32(b, math.Float32bits(float32(f)))
		return
	}
	order.PutUint64(b, math.Float64bits(f))
}
