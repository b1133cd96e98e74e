// Package binary reads and writes the integers of HDF5 metadata. Addresses
// and lengths have a per-file width, set by the superblock; everything else
// has a fixed width.
package binary

import "encoding/binary"

// Config fixes the byte order and the widths of addresses and lengths.
// A nil ByteOrder means little-endian.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int
	LengthSize int
}

// widths is the part of the file format shared by readers and writers.
type widths struct {
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
}

func (c Config) widths() widths {
	w := widths{order: c.ByteOrder, offsetSize: c.OffsetSize, lengthSize: c.LengthSize}
	if w.order == nil {
		w.order = binary.LittleEndian
	}
	return w
}

func (w widths) OffsetSize() int             { return w.offsetSize }
func (w widths) LengthSize() int             { return w.lengthSize }
func (w widths) ByteOrder() binary.ByteOrder { return w.order }

// UndefinedOffset is the all-ones address HDF5 uses for "not allocated".
func (w widths) UndefinedOffset() uint64 { return ones(w.offsetSize) }

// IsUndefinedOffset reports whether v is the undefined address.
func (w widths) IsUndefinedOffset(v uint64) bool { return v == ones(w.offsetSize) }

func ones(n int) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(n)) - 1
}

// get decodes len(b) bytes. Widths other than 1, 2, 4 and 8 are read
// little-endian.
func (w widths) get(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(w.order.Uint16(b))
	case 4:
		return uint64(w.order.Uint32(b))
	case 8:
		return w.order.Uint64(b)
	}
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (w widths) put(b []byte, v uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(v)
	case 2:
		w.order.PutUint16(b, uint16(v))
	case 4:
		w.order.PutUint32(b, uint32(v))
	case 8:
		w.order.PutUint64(b, v)
	default:
		for i := range b {
			b[i] = byte(v >> (8 * uint(i)))
		}
	}
}
