package message

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// LinkType distinguishes hard, soft and user-defined links.
type LinkType uint8

const (
	LinkTypeHard     LinkType = 0
	LinkTypeSoft     LinkType = 1
	LinkTypeExternal LinkType = 64
)

// Link names one member of a group.
type Link struct {
	Version  uint8
	LinkType LinkType
	Name     string

	ObjectAddress uint64 // hard links
	SoftLinkValue string // soft links
}

func (m *Link) Type() Type   { return TypeLink }
func (m *Link) IsHard() bool { return m.LinkType == LinkTypeHard }
func (m *Link) IsSoft() bool { return m.LinkType == LinkTypeSoft }

// NewHardLink points name at the object header at addr.
func NewHardLink(name string, addr uint64) *Link {
	return &Link{Version: 1, LinkType: LinkTypeHard, Name: name, ObjectAddress: addr}
}

// NewSoftLink makes name an alias for an absolute path.
func NewSoftLink(name, target string) *Link {
	return &Link{Version: 1, LinkType: LinkTypeSoft, Name: name, SoftLinkValue: target}
}

// Link flags.
const (
	linkNameWidth     = 0x03
	linkHasOrder      = 0x04
	linkHasType       = 0x08
	linkHasCharset    = 0x10
	linkNameWidthLong = 0x01
)

// parseLink keeps the body of user-defined links opaque; only the type is
// recorded.
func parseLink(data []byte, sz sizes) (*Link, error) {
	d := decoder{buf: data, sizes: sz}
	link := &Link{Version: d.u8()}
	flags := d.u8()
	if flags&linkHasType != 0 {
		link.LinkType = LinkType(d.u8())
	}
	if flags&linkHasOrder != 0 {
		d.skip(8)
	}
	if flags&linkHasCharset != 0 {
		d.skip(1)
	}
	link.Name = string(d.take(int(d.uint(1 << (flags & linkNameWidth)))))

	switch link.LinkType {
	case LinkTypeHard:
		link.ObjectAddress = d.offset()
	case LinkTypeSoft:
		link.SoftLinkValue = string(d.take(int(d.u16())))
	default:
		d.rest()
	}
	if d.err != nil {
		return nil, fmt.Errorf("link: %w", d.err)
	}
	return link, nil
}

func (m *Link) appendTo(buf []byte, sz sizes) []byte {
	var flags uint8
	if len(m.Name) > 0xFF {
		flags |= linkNameWidthLong
	}
	if m.LinkType != LinkTypeHard {
		flags |= linkHasType
	}
	buf = append(buf, 1, flags)
	if m.LinkType != LinkTypeHard {
		buf = append(buf, uint8(m.LinkType))
	}
	buf = appendUint(buf, uint64(len(m.Name)), 1<<(flags&linkNameWidth))
	buf = append(buf, m.Name...)
	if m.LinkType == LinkTypeSoft {
		buf = appendU16(buf, uint16(len(m.SoftLinkValue)))
		return append(buf, m.SoftLinkValue...)
	}
	return appendUint(buf, m.ObjectAddress, sz.offset)
}

func (m *Link) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *Link) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }
