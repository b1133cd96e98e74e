package message

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/binary"
)

// Type identifies a header message.
type Type uint16

const (
	TypeNIL                      Type = 0x0000
	TypeDataspace                Type = 0x0001
	TypeLinkInfo                 Type = 0x0002
	TypeDatatype                 Type = 0x0003
	TypeFillValueOld             Type = 0x0004
	TypeFillValue                Type = 0x0005
	TypeLink                     Type = 0x0006
	TypeExternalDataFiles        Type = 0x0007
	TypeDataLayout               Type = 0x0008
	TypeBogus                    Type = 0x0009
	TypeGroupInfo                Type = 0x000A
	TypeFilterPipeline           Type = 0x000B
	TypeAttribute                Type = 0x000C
	TypeObjectComment            Type = 0x000D
	TypeObjectModTime            Type = 0x000E
	TypeSharedMessageTable       Type = 0x000F
	TypeObjectHeaderContinuation Type = 0x0010
	TypeSymbolTable              Type = 0x0011
	TypeObjectModTimeOld         Type = 0x0012
	TypeBTreeKValues             Type = 0x0013
	TypeDriverInfo               Type = 0x0014
	TypeAttributeInfo            Type = 0x0015
	TypeObjectRefCount           Type = 0x0016
)

// ErrTruncated is returned when a message body ends before its fields do.
var ErrTruncated = errors.New("truncated message")

// Message is a decoded header message.
type Message interface {
	Type() Type
}

// flagShared marks a message body that is a reference to a shared message
// stored elsewhere.
const flagShared = 0x02

// Parse decodes the body of one header message. Types this package does not
// model, and shared messages, come back as *Unknown so their bytes survive a
// rewrite.
func Parse(typ Type, data []byte, flags uint8, r *binary.Reader) (Message, error) {
	sz := sizesOf(nil)
	if r != nil {
		sz = sizesOf(r)
	}
	if flags&flagShared != 0 {
		return &Unknown{typ: typ, data: data}, nil
	}
	switch typ {
	case TypeDataspace:
		return parseDataspace(data, sz)
	case TypeDatatype:
		return parseDatatype(data)
	case TypeDataLayout:
		return parseDataLayout(data, sz)
	case TypeFilterPipeline:
		return parseFilterPipeline(data)
	case TypeAttribute:
		return parseAttribute(data, sz)
	case TypeLink:
		return parseLink(data, sz)
	case TypeObjectHeaderContinuation:
		return parseContinuation(data, sz)
	case TypeSymbolTable:
		return parseSymbolTable(data, sz)
	default:
		return &Unknown{typ: typ, data: data}, nil
	}
}

// Unknown carries the raw body of a message type that is not decoded.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at the next chunk of an object header.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeObjectHeaderContinuation }

func parseContinuation(data []byte, sz sizes) (*Continuation, error) {
	d := decoder{buf: data, sizes: sz}
	c := &Continuation{Offset: d.offset(), Length: d.length()}
	if d.err != nil {
		return nil, fmt.Errorf("continuation: %w", d.err)
	}
	return c, nil
}
