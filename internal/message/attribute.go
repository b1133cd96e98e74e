package message

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// Attribute is a small named value stored in an object header.
type Attribute struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

// NewAttribute returns a version 3 attribute message.
func NewAttribute(name string, dt *Datatype, space *Dataspace, data []byte) *Attribute {
	return &Attribute{Version: 3, Name: name, Datatype: dt, Dataspace: space, Data: data}
}

// parseAttribute reads versions 1 to 3. Version 1 pads the name, datatype
// and dataspace to eight bytes each; version 3 adds a name encoding byte.
func parseAttribute(data []byte, sz sizes) (*Attribute, error) {
	d := decoder{buf: data, sizes: sz}
	attr := &Attribute{Version: d.u8()}
	d.skip(1)
	nameLen, typeLen, spaceLen := int(d.u16()), int(d.u16()), int(d.u16())
	if attr.Version < 1 || attr.Version > 3 {
		return nil, fmt.Errorf("attribute: unsupported version %d", attr.Version)
	}
	if attr.Version == 3 {
		d.skip(1)
	}

	pad := func(n int) int {
		if attr.Version == 1 {
			return (n + 7) &^ 7
		}
		return n
	}
	name := d.take(pad(nameLen))
	typeBuf := d.take(pad(typeLen))
	spaceBuf := d.take(pad(spaceLen))
	if d.err != nil {
		return nil, fmt.Errorf("attribute: %w", d.err)
	}
	attr.Name = trimNul(name[:nameLen])

	var err error
	if attr.Datatype, err = parseDatatype(typeBuf[:typeLen]); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", attr.Name, err)
	}
	if attr.Dataspace, err = parseDataspace(spaceBuf[:spaceLen], sz); err != nil {
		return nil, fmt.Errorf("attribute %q: %w", attr.Name, err)
	}
	attr.Data = append([]byte(nil), d.rest()...)
	return attr, nil
}

func (m *Attribute) appendTo(buf []byte, sz sizes) []byte {
	dt := m.Datatype.appendTo(nil, sz)
	space := m.Dataspace.appendTo(nil, sz)

	buf = append(buf, 3, 0)
	buf = appendU16(buf, uint16(len(m.Name)+1))
	buf = appendU16(buf, uint16(len(dt)))
	buf = appendU16(buf, uint16(len(space)))
	buf = append(buf, uint8(CharsetASCII))
	buf = append(buf, m.Name...)
	buf = append(buf, 0)
	buf = append(buf, dt...)
	buf = append(buf, space...)
	return append(buf, m.Data...)
}

func (m *Attribute) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *Attribute) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }
