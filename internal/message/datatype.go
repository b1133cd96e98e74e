package message

import (
	"fmt"
	"math/bits"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// DatatypeClass is the HDF5 type class stored in the low nibble of a
// datatype message.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

// ByteOrder of a numeric type.
type ByteOrder uint8

const (
	OrderLE ByteOrder = 0
	OrderBE ByteOrder = 1
)

// StringPadding says how a fixed-length string fills its unused bytes.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharacterSet of a string type.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype describes the element type of a dataset or attribute.
type Datatype struct {
	Class DatatypeClass
	Size  uint32

	// Fixed-point, float and enum types.
	ByteOrder ByteOrder
	Signed    bool

	StringPadding StringPadding
	CharSet       CharacterSet

	Members []CompoundMember

	// BaseType is the element of an array or the storage type of an enum.
	ArrayDims []uint32
	BaseType  *Datatype

	VarLenType     *Datatype
	IsVarLenString bool

	// Properties holds the raw property block of float types.
	Properties []byte
}

// CompoundMember is one named field of a compound type.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

func (m *Datatype) IsCompound() bool { return m.Class == ClassCompound }
func (m *Datatype) IsArray() bool    { return m.Class == ClassArray }
func (m *Datatype) IsVarLen() bool   { return m.Class == ClassVarLen }

// NewFixedPointDatatype returns an integer type of size bytes.
func NewFixedPointDatatype(size uint32, signed bool, order ByteOrder) *Datatype {
	return &Datatype{Class: ClassFixedPoint, Size: size, Signed: signed, ByteOrder: order}
}

// NewFloatDatatype returns an IEEE 754 type. Sizes other than 4 and 8 get
// an empty property block.
func NewFloatDatatype(size uint32, order ByteOrder) *Datatype {
	return &Datatype{Class: ClassFloatPoint, Size: size, ByteOrder: order, Properties: ieeeProperties(size)}
}

// NewStringDatatype returns a fixed-length string type.
func NewStringDatatype(size uint32, padding StringPadding, charset CharacterSet) *Datatype {
	return &Datatype{Class: ClassString, Size: size, StringPadding: padding, CharSet: charset}
}

// NewVarLenStringDatatype returns a variable-length string type whose
// elements are global heap references.
func NewVarLenStringDatatype(charset CharacterSet) *Datatype {
	return &Datatype{
		Class:          ClassVarLen,
		Size:           16,
		IsVarLenString: true,
		VarLenType:     NewStringDatatype(1, PadNullTerm, charset),
	}
}

// NewCompoundDatatype returns a compound type of size bytes.
func NewCompoundDatatype(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{Class: ClassCompound, Size: size, Members: members}
}

// NewArrayDatatype returns a fixed-size array of base.
func NewArrayDatatype(dims []uint32, base *Datatype) *Datatype {
	n := uint32(1)
	for _, d := range dims {
		n *= d
	}
	return &Datatype{Class: ClassArray, Size: n * base.Size, ArrayDims: dims, BaseType: base}
}

func ieeeProperties(size uint32) []byte {
	// bit offset, precision, exponent location and size, mantissa location
	// and size, exponent bias
	switch size {
	case 4:
		return []byte{0, 0, 32, 0, 23, 8, 0, 23, 127, 0, 0, 0}
	case 8:
		return []byte{0, 0, 64, 0, 52, 11, 0, 52, 0xFF, 0x03, 0, 0}
	}
	return nil
}

// memberOffsetSize is the width of a member offset in a version 3
// compound: the fewest bytes that can hold the compound size.
func memberOffsetSize(size uint32) int {
	if n := (bits.Len32(size) + 7) / 8; n > 1 {
		return n
	}
	return 1
}

func parseDatatype(data []byte) (*Datatype, error) {
	d := decoder{buf: data}
	dt := d.datatype()
	if d.err != nil {
		return nil, fmt.Errorf("datatype: %w", d.err)
	}
	return dt, nil
}

func (d *decoder) datatype() *Datatype {
	head := d.u8()
	flags := uint32(d.u8()) | uint32(d.u8())<<8 | uint32(d.u8())<<16
	dt := &Datatype{Class: DatatypeClass(head & 0x0F), Size: d.u32()}
	version := head >> 4
	if d.err != nil {
		return nil
	}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(flags & 0x01)
		dt.Signed = flags&0x08 != 0
		d.skip(4)
	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(flags & 0x01)
		dt.Properties = append([]byte(nil), d.take(12)...)
	case ClassTime:
		dt.ByteOrder = ByteOrder(flags & 0x01)
		d.skip(2)
	case ClassString:
		dt.StringPadding = StringPadding(flags & 0x0F)
		dt.CharSet = CharacterSet(flags >> 4 & 0x0F)
	case ClassOpaque:
		d.skip(int(flags & 0xFF))
	case ClassReference:
	case ClassCompound:
		n := int(flags & 0xFFFF)
		for i := 0; i < n && d.err == nil; i++ {
			dt.Members = append(dt.Members, d.member(version, dt.Size))
		}
	case ClassEnum:
		dt.BaseType = d.datatype()
		if dt.BaseType == nil {
			return nil
		}
		dt.ByteOrder, dt.Signed = dt.BaseType.ByteOrder, dt.BaseType.Signed
		n := int(flags & 0xFFFF)
		for i := 0; i < n; i++ {
			d.name(version)
		}
		d.skip(n * int(dt.BaseType.Size))
	case ClassVarLen:
		dt.IsVarLenString = flags&0x0F == 1
		dt.VarLenType = d.datatype()
	case ClassArray:
		ndims := int(d.u8())
		if version < 3 {
			d.skip(3)
		}
		for i := 0; i < ndims; i++ {
			dt.ArrayDims = append(dt.ArrayDims, d.u32())
		}
		if version < 3 {
			d.skip(4 * ndims)
		}
		dt.BaseType = d.datatype()
	default:
		d.err = fmt.Errorf("unknown class %d", dt.Class)
	}
	if d.err != nil {
		return nil
	}
	return dt
}

// name reads a member or enum name. Versions before 3 pad the name and its
// terminator to a multiple of eight bytes.
func (d *decoder) name(version uint8) string {
	start := d.pos
	s := d.cstring()
	if version < 3 {
		if r := (d.pos - start) % 8; r != 0 {
			d.skip(8 - r)
		}
	}
	return s
}

func (d *decoder) member(version uint8, size uint32) CompoundMember {
	m := CompoundMember{Name: d.name(version)}
	switch version {
	case 1:
		m.ByteOffset = d.u32()
		ndims := int(d.u8())
		d.skip(3 + 4 + 4)
		var dims []uint32
		for i := 0; i < 4; i++ {
			if v := d.u32(); i < ndims {
				dims = append(dims, v)
			}
		}
		m.Type = d.datatype()
		if ndims > 0 && m.Type != nil {
			n := uint32(1)
			for _, v := range dims {
				n *= v
			}
			m.Type = &Datatype{Class: ClassArray, Size: n * m.Type.Size, ArrayDims: dims, BaseType: m.Type}
		}
		return m
	case 2:
		m.ByteOffset = d.u32()
	default:
		m.ByteOffset = uint32(d.uint(memberOffsetSize(size)))
	}
	m.Type = d.datatype()
	return m
}

func (m *Datatype) appendTo(buf []byte, _ sizes) []byte {
	var flags uint32
	version := uint8(1)
	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		flags = uint32(m.ByteOrder)
		if m.Signed {
			flags |= 0x08
		}
	case ClassFloatPoint:
		// mantissa normalization 2 (implied MSB), sign bit at the top
		flags = uint32(m.ByteOrder) | 1<<5 | (m.Size*8-1)<<8
	case ClassString:
		flags = uint32(m.StringPadding) | uint32(m.CharSet)<<4
	case ClassCompound:
		flags, version = uint32(len(m.Members)), 3
	case ClassVarLen:
		if m.IsVarLenString {
			flags = 1
			if m.VarLenType != nil {
				flags |= uint32(m.VarLenType.CharSet) << 8
			}
		}
	case ClassArray:
		version = 3
	}

	buf = append(buf, uint8(m.Class)|version<<4, byte(flags), byte(flags>>8), byte(flags>>16))
	buf = appendU32(buf, m.Size)

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		buf = appendU16(buf, 0)
		buf = appendU16(buf, uint16(m.Size*8))
	case ClassFloatPoint:
		props := m.Properties
		if len(props) < 12 {
			props = ieeeProperties(m.Size)
		}
		if len(props) < 12 {
			props = make([]byte, 12)
		}
		buf = append(buf, props[:12]...)
	case ClassCompound:
		width := memberOffsetSize(m.Size)
		for _, mem := range m.Members {
			buf = append(buf, mem.Name...)
			buf = append(buf, 0)
			buf = appendUint(buf, uint64(mem.ByteOffset), width)
			buf = mem.Type.appendTo(buf, sizes{})
		}
	case ClassVarLen:
		if m.VarLenType != nil {
			buf = m.VarLenType.appendTo(buf, sizes{})
		}
	case ClassArray:
		buf = append(buf, uint8(len(m.ArrayDims)))
		for _, v := range m.ArrayDims {
			buf = appendU32(buf, v)
		}
		buf = m.BaseType.appendTo(buf, sizes{})
	}
	return buf
}

func (m *Datatype) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *Datatype) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }
