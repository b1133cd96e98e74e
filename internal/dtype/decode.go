package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"unsafe"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/heap"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Convert decodes n elements of dt from data into dest. See
// ConvertWithReader.
func Convert(dt *message.Datatype, data []byte, n uint64, dest any) error {
	return ConvertWithReader(dt, data, n, dest, nil)
}

// ConvertWithReader decodes n elements of dt from data into dest, which
// must be a non-nil pointer to:
//
//   - a slice, grown to n when shorter and otherwise filled in place;
//   - an array of at least n elements;
//   - an interface, set to the single element or to a slice of them;
//   - any other value when n is 1.
//
// r resolves variable-length strings through the global heap; it may be
// nil for other types.
func ConvertWithReader(dt *message.Datatype, data []byte, n uint64, dest any, r *binpkg.Reader) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer, got %T", dest)
	}
	v := dv.Elem()

	c := &converter{reader: r, heaps: make(map[uint64]*heap.GlobalHeap)}
	dec, err := c.compile(dt)
	if err != nil {
		return err
	}
	natural, err := GoType(dt)
	if err != nil {
		return err
	}
	stride := c.stride(dt)
	if need := n * uint64(stride); uint64(len(data)) < need {
		return fmt.Errorf("have %d bytes for %d elements of %d bytes", len(data), n, stride)
	}
	at := func(i int) []byte { return data[i*stride : (i+1)*stride] }
	if n == 1 && v.Type() == natural {
		return dec(v, at(0))
	}

	switch v.Kind() {
	case reflect.Slice:
		if uint64(v.Len()) < n {
			v.Set(reflect.MakeSlice(v.Type(), int(n), int(n)))
		}
		if directCopy(dt, v, n, data) {
			return nil
		}
		for i := 0; i < int(n); i++ {
			if err := assign(v.Index(i), natural, dec, at(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case reflect.Array:
		if uint64(v.Len()) < n {
			return fmt.Errorf("%d elements into %v", n, v.Type())
		}
		for i := 0; i < int(n); i++ {
			if err := assign(v.Index(i), natural, dec, at(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	case reflect.Interface:
		if n == 1 {
			return assign(v, natural, dec, at(0))
		}
		out := reflect.MakeSlice(reflect.SliceOf(natural), int(n), int(n))
		for i := 0; i < int(n); i++ {
			if err := dec(out.Index(i), at(i)); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
		v.Set(out)
	default:
		if n != 1 {
			return fmt.Errorf("%d elements into a single %v", n, v.Type())
		}
		return assign(v, natural, dec, at(0))
	}
	return nil
}

// decodeFunc decodes one stored element into dst, a settable value of the
// datatype's natural Go type.
type decodeFunc func(dst reflect.Value, b []byte) error

// assign decodes b and stores the result in dst, converting between
// numeric kinds when dst is not of the natural type.
func assign(dst reflect.Value, natural reflect.Type, dec decodeFunc, b []byte) error {
	if dst.Type() == natural {
		return dec(dst, b)
	}
	tmp := reflect.New(natural).Elem()
	if err := dec(tmp, b); err != nil {
		return err
	}
	switch {
	case natural.AssignableTo(dst.Type()):
		dst.Set(tmp)
	case convertible(natural.Kind(), dst.Kind()):
		dst.Set(tmp.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot store %v in %v", natural, dst.Type())
	}
	return nil
}

func convertible(from, to reflect.Kind) bool {
	group := func(k reflect.Kind) int {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return 1
		case reflect.Complex64, reflect.Complex128:
			return 2
		case reflect.String:
			return 3
		}
		return 0
	}
	return group(from) != 0 && group(from) == group(to)
}

// directCopy copies native-order integers and floats straight into a slice
// whose element kind matches. It reports whether it handled the copy.
func directCopy(dt *message.Datatype, v reflect.Value, n uint64, data []byte) bool {
	if n == 0 || dt.ByteOrder != nativeOrder || uintptr(dt.Size) != v.Type().Elem().Size() {
		return false
	}
	switch k := v.Type().Elem().Kind(); dt.Class {
	case message.ClassFixedPoint:
		switch k {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if !dt.Signed {
				return false
			}
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if dt.Signed {
				return false
			}
		default:
			return false
		}
	case message.ClassFloatPoint:
		if k != reflect.Float32 && k != reflect.Float64 {
			return false
		}
	default:
		return false
	}
	size := int(n) * int(dt.Size)
	copy(unsafe.Slice((*byte)(v.UnsafePointer()), size), data[:size])
	return true
}

// converter compiles decoders and caches the global heap collections that
// variable-length strings point into.
type converter struct {
	reader *binpkg.Reader
	heaps  map[uint64]*heap.GlobalHeap
}

// stride is the number of bytes one element occupies in data.
func (c *converter) stride(dt *message.Datatype) int {
	if dt.Class == message.ClassVarLen {
		return 8 + c.offsetSize()
	}
	return int(dt.Size)
}

func (c *converter) offsetSize() int {
	if c.reader != nil && c.reader.OffsetSize() > 0 {
		return c.reader.OffsetSize()
	}
	return 8
}

func (c *converter) compile(dt *message.Datatype) (decodeFunc, error) {
	if _, err := GoType(dt); err != nil {
		return nil, err
	}
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum, message.ClassBitfield:
		order, size := ByteOrder(dt), int(dt.Size)
		signed := dt.Signed && dt.Class != message.ClassBitfield
		return func(dst reflect.Value, b []byte) error {
			u := readUint(order, b[:size])
			if signed {
				shift := 64 - 8*size
				dst.SetInt(int64(u<<shift) >> shift)
			} else {
				dst.SetUint(u)
			}
			return nil
		}, nil

	case message.ClassFloatPoint:
		order := ByteOrder(dt)
		if dt.Size == 4 {
			return func(dst reflect.Value, b []byte) error {
				dst.SetFloat(float64(math.Float32frombits(order.Uint32(b))))
				return nil
			}, nil
		}
		return func(dst reflect.Value, b []byte) error {
			dst.SetFloat(math.Float64frombits(order.Uint64(b)))
			return nil
		}, nil

	case message.ClassString:
		pad, size := dt.StringPadding, int(dt.Size)
		return func(dst reflect.Value, b []byte) error {
			dst.SetString(trimText(b[:size], pad))
			return nil
		}, nil

	case message.ClassVarLen:
		return c.varLenString, nil

	case message.ClassCompound:
		if IsComplex(dt) {
			part := c.stride(dt.Members[0].Type)
			re, err := c.compile(dt.Members[0].Type)
			if err != nil {
				return nil, err
			}
			return func(dst reflect.Value, b []byte) error {
				var r, i float64
				rv, iv := reflect.ValueOf(&r).Elem(), reflect.ValueOf(&i).Elem()
				if err := re(rv, b[:part]); err != nil {
					return err
				}
				if err := re(iv, b[part:2*part]); err != nil {
					return err
				}
				dst.SetComplex(complex(r, i))
				return nil
			}, nil
		}
		return c.compound(dt)

	case message.ClassArray:
		base, err := c.compile(dt.BaseType)
		if err != nil {
			return nil, err
		}
		step := c.stride(dt.BaseType)
		depth := len(dt.ArrayDims)
		return func(dst reflect.Value, b []byte) error {
			off := 0
			var fill func(v reflect.Value, level int) error
			fill = func(v reflect.Value, level int) error {
				if level == depth {
					err := base(v, b[off:off+step])
					off += step
					return err
				}
				for i := 0; i < v.Len(); i++ {
					if err := fill(v.Index(i), level+1); err != nil {
						return err
					}
				}
				return nil
			}
			return fill(dst, 0)
		}, nil

	case message.ClassOpaque:
		size := int(dt.Size)
		return func(dst reflect.Value, b []byte) error {
			dst.SetBytes(append([]byte(nil), b[:size]...))
			return nil
		}, nil
	}
	return nil, fmt.Errorf("%w: class %d", ErrUnsupported, dt.Class)
}

func (c *converter) compound(dt *message.Datatype) (decodeFunc, error) {
	type field struct {
		name    string
		off     int
		size    int
		natural reflect.Type
		dec     decodeFunc
	}
	fields := make([]field, 0, len(dt.Members))
	for _, m := range dt.Members {
		dec, err := c.compile(m.Type)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		natural, _ := GoType(m.Type)
		f := field{name: m.Name, off: int(m.ByteOffset), size: c.stride(m.Type), natural: natural, dec: dec}
		if f.off+f.size > int(dt.Size) {
			return nil, fmt.Errorf("member %q overruns its %d-byte compound", m.Name, dt.Size)
		}
		fields = append(fields, f)
	}
	return func(dst reflect.Value, b []byte) error {
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			v := reflect.New(f.natural).Elem()
			if err := f.dec(v, b[f.off:f.off+f.size]); err != nil {
				return fmt.Errorf("member %q: %w", f.name, err)
			}
			out[f.name] = v.Interface()
		}
		dst.Set(reflect.ValueOf(out))
		return nil
	}, nil
}

// varLenString resolves a heap reference: a 4-byte length, the collection
// address and a 4-byte object index.
func (c *converter) varLenString(dst reflect.Value, b []byte) error {
	osz := c.offsetSize()
	id, err := heap.ParseGlobalHeapID(b[4:], osz)
	if err != nil {
		return err
	}
	if id.CollectionAddress == 0 {
		dst.SetString("")
		return nil
	}
	if c.reader == nil {
		return fmt.Errorf("variable-length string at %#x needs a file reader", id.CollectionAddress)
	}
	gh, ok := c.heaps[id.CollectionAddress]
	if !ok {
		if gh, err = heap.ReadGlobalHeap(c.reader, id.CollectionAddress); err != nil {
			return err
		}
		c.heaps[id.CollectionAddress] = gh
	}
	s, err := gh.GetString(uint16(id.ObjectIndex))
	if err != nil {
		return err
	}
	dst.SetString(s)
	return nil
}

func readUint(order binary.ByteOrder, b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	}
	return order.Uint64(b)
}

// trimText cuts a fixed-length string at its first NUL and drops the
// trailing spaces of space-padded types.
func trimText(b []byte, pad message.StringPadding) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	if pad == message.PadSpacePad {
		for end > 0 && b[end-1] == ' ' {
			end--
		}
	}
	return string(b[:end])
}
