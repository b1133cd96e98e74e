// Package dtype maps HDF5 datatypes to Go types and converts element bytes
// in both directions.
//
// Every datatype has a natural Go type, reported by [GoType]: sized
// integers and floats, string for both string classes, complex64 or
// complex128 for {real, imag} compounds, map[string]any for other
// compounds, Go arrays for array types and []byte for opaque data.
// [Convert] decodes into that type and then into whatever the destination
// asks for, as long as the two are convertible.
package dtype

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// ErrUnsupported reports a datatype or Go type with no mapping.
var ErrUnsupported = errors.New("unsupported datatype")

var (
	mapType   = reflect.TypeOf(map[string]any(nil))
	bytesType = reflect.TypeOf([]byte(nil))
)

// GoType returns the natural Go type of one element of dt.
func GoType(dt *message.Datatype) (reflect.Type, error) {
	if dt == nil {
		return nil, fmt.Errorf("%w: nil datatype", ErrUnsupported)
	}
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum:
		return intType(dt.Size, dt.Signed)
	case message.ClassBitfield:
		return intType(dt.Size, false)
	case message.ClassFloatPoint:
		switch dt.Size {
		case 4:
			return reflect.TypeOf(float32(0)), nil
		case 8:
			return reflect.TypeOf(float64(0)), nil
		}
		return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, dt.Size)
	case message.ClassString:
		return reflect.TypeOf(""), nil
	case message.ClassVarLen:
		if dt.IsVarLenString {
			return reflect.TypeOf(""), nil
		}
		return nil, fmt.Errorf("%w: variable-length sequence", ErrUnsupported)
	case message.ClassCompound:
		if IsComplex(dt) {
			if dt.Size == 8 {
				return reflect.TypeOf(complex64(0)), nil
			}
			return reflect.TypeOf(complex128(0)), nil
		}
		return mapType, nil
	case message.ClassArray:
		if dt.BaseType == nil || len(dt.ArrayDims) == 0 {
			return nil, fmt.Errorf("%w: array without base type or dimensions", ErrUnsupported)
		}
		t, err := GoType(dt.BaseType)
		if err != nil {
			return nil, err
		}
		for i := len(dt.ArrayDims) - 1; i >= 0; i-- {
			t = reflect.ArrayOf(int(dt.ArrayDims[i]), t)
		}
		return t, nil
	case message.ClassOpaque:
		return bytesType, nil
	}
	return nil, fmt.Errorf("%w: class %d", ErrUnsupported, dt.Class)
}

func intType(size uint32, signed bool) (reflect.Type, error) {
	var v any
	switch {
	case size == 1 && signed:
		v = int8(0)
	case size == 1:
		v = uint8(0)
	case size == 2 && signed:
		v = int16(0)
	case size == 2:
		v = uint16(0)
	case size == 4 && signed:
		v = int32(0)
	case size == 4:
		v = uint32(0)
	case size == 8 && signed:
		v = int64(0)
	case size == 8:
		v = uint64(0)
	default:
		return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, size)
	}
	return reflect.TypeOf(v), nil
}

// GoTypeToDatatype returns the little-endian datatype for a numeric or
// complex Go type. Slices, arrays and pointers are unwrapped one level.
func GoTypeToDatatype(t reflect.Type) (*message.Datatype, error) {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Array:
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return message.NewFixedPointDatatype(uint32(t.Size()), true, message.OrderLE), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return message.NewFixedPointDatatype(uint32(t.Size()), false, message.OrderLE), nil
	case reflect.Float32, reflect.Float64:
		return message.NewFloatDatatype(uint32(t.Size()), message.OrderLE), nil
	case reflect.Complex64, reflect.Complex128:
		return ComplexDatatype(uint32(t.Size() / 2)), nil
	}
	return nil, fmt.Errorf("%w: Go type %v", ErrUnsupported, t)
}

// ComplexDatatype returns the {real, imag} compound used for complex
// numbers. part is the size of one component.
func ComplexDatatype(part uint32) *message.Datatype {
	return message.NewCompoundDatatype(2*part, []message.CompoundMember{
		{Name: "real", ByteOffset: 0, Type: message.NewFloatDatatype(part, message.OrderLE)},
		{Name: "imag", ByteOffset: part, Type: message.NewFloatDatatype(part, message.OrderLE)},
	})
}

// IsComplex reports whether dt is a compound of two equally sized floats
// named real/imag or r/i, packed back to back.
func IsComplex(dt *message.Datatype) bool {
	if dt == nil || dt.Class != message.ClassCompound || len(dt.Members) != 2 {
		return false
	}
	re, im := dt.Members[0], dt.Members[1]
	if re.Type == nil || im.Type == nil {
		return false
	}
	if re.Type.Class != message.ClassFloatPoint || im.Type.Class != message.ClassFloatPoint {
		return false
	}
	if re.Type.Size != im.Type.Size || re.ByteOffset != 0 || im.ByteOffset != re.Type.Size {
		return false
	}
	names := re.Name + "/" + im.Name
	return (names == "real/imag" || names == "r/i") && dt.Size == 2*re.Type.Size
}

// ByteOrder returns the encoding/binary order of a numeric datatype.
func ByteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DataSize is the number of bytes n elements of dt occupy.
func DataSize(dt *message.Datatype, n uint64) uint64 {
	return uint64(dt.Size) * n
}

// nativeOrder is the datatype byte order matching this machine.
var nativeOrder = func() message.ByteOrder {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return message.OrderLE
	}
	return message.OrderBE
}()
