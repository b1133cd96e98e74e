package message

import (
	"bytes"
	"encoding/binary"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// Serializable messages can be written into an object header.
type Serializable interface {
	Message
	Serialize(w *binpkg.Writer) error
	SerializedSize(w *binpkg.Writer) int
}

// sizes holds the file's offset and length widths.
type sizes struct {
	offset, length int
}

type sizer interface {
	OffsetSize() int
	LengthSize() int
}

func sizesOf(s sizer) sizes {
	out := sizes{offset: 8, length: 8}
	if s == nil {
		return out
	}
	if n := s.OffsetSize(); n > 0 {
		out.offset = n
	}
	if n := s.LengthSize(); n > 0 {
		out.length = n
	}
	return out
}

// appender is implemented by every message this package can encode.
type appender interface {
	appendTo(buf []byte, sz sizes) []byte
}

func writeMessage(w *binpkg.Writer, m appender) error {
	return w.WriteBytes(m.appendTo(nil, sizesOf(w)))
}

func messageSize(w *binpkg.Writer, m appender) int {
	return len(m.appendTo(nil, sizesOf(w)))
}

func appendUint(buf []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}

func appendU16(buf []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(buf, v) }
func appendU32(buf []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(buf, v) }

// decoder walks a little-endian message body. The first overrun sets err
// and every later read returns zero.
type decoder struct {
	buf []byte
	pos int
	err error
	sizes
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = ErrTruncated
		return nil
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b
}

func (d *decoder) uint(n int) uint64 {
	var v uint64
	b := d.take(n)
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func (d *decoder) u8() uint8      { return uint8(d.uint(1)) }
func (d *decoder) u16() uint16    { return uint16(d.uint(2)) }
func (d *decoder) u32() uint32    { return uint32(d.uint(4)) }
func (d *decoder) offset() uint64 { return d.uint(d.sizes.offset) }
func (d *decoder) length() uint64 { return d.uint(d.sizes.length) }
func (d *decoder) skip(n int)     { d.take(n) }
func (d *decoder) rest() []byte   { return d.take(len(d.buf) - d.pos) }

// cstring reads a NUL-terminated string and consumes the terminator.
func (d *decoder) cstring() string {
	if d.err != nil {
		return ""
	}
	i := bytes.IndexByte(d.buf[d.pos:], 0)
	if i < 0 {
		d.err = ErrTruncated
		return ""
	}
	s := string(d.take(i))
	d.skip(1)
	return s
}

// align skips forward to the next multiple of n from the body start.
func (d *decoder) align(n int) {
	if r := d.pos % n; r != 0 {
		d.skip(n - r)
	}
}

// trimNul cuts b at its first NUL.
func trimNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
