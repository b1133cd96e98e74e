package object

import (
	"math"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

// MinGroupChunkSize is the chunk 0 size reserved for group headers, matching
// what the HDF5 library allocates for a new group.
const MinGroupChunkSize = 120

const nilHeader = 4

// WriteHeader writes a version 2 header holding messages at w's position and
// returns its size.
func WriteHeader(w *binpkg.Writer, messages []message.Message) (int64, error) {
	return WriteHeaderWithMinChunk(w, messages, 0)
}

// WriteHeaderWithMinChunk is WriteHeader with chunk 0 padded by a NIL
// message to at least minChunk bytes. Messages that cannot be serialized are
// skipped.
func WriteHeaderWithMinChunk(w *binpkg.Writer, messages []message.Message, minChunk int) (int64, error) {
	p := plan(w, messages, minChunk)

	mem := &memWriterAt{}
	bw := binpkg.NewWriter(mem, binpkg.Config{
		ByteOrder:  w.ByteOrder(),
		OffsetSize: w.OffsetSize(),
		LengthSize: w.LengthSize(),
	})
	ew := &errWriter{w: bw}

	ew.bytes(signature)
	ew.u8(2)
	ew.u8(p.sizeFlag())
	ew.do(func() error { return bw.WriteUintN(uint64(p.chunk), p.field) })
	for _, msg := range messages {
		s, ok := msg.(message.Serializable)
		if !ok {
			continue
		}
		size := s.SerializedSize(bw)
		if size > math.MaxUint16 {
			ew.u8(0xFF)
			ew.u8(uint8(msg.Type()))
			ew.do(func() error { return bw.WriteUint32(uint32(size)) })
		} else {
			ew.u8(uint8(msg.Type()))
			ew.do(func() error { return bw.WriteUint16(uint16(size)) })
		}
		ew.u8(0)
		ew.do(func() error { return s.Serialize(bw) })
	}
	for pad := p.chunk - p.body; pad > 0; {
		n := min(pad, nilHeader+math.MaxUint16)
		if rest := pad - n; rest > 0 && rest < nilHeader {
			n -= nilHeader
		}
		ew.u8(uint8(message.TypeNIL))
		ew.do(func() error { return bw.WriteUint16(uint16(n - nilHeader)) })
		ew.u8(0)
		ew.bytes(make([]byte, n-nilHeader))
		pad -= n
	}
	if ew.err != nil {
		return 0, ew.err
	}
	ew.do(func() error { return bw.WriteUint32(binpkg.Lookup3Checksum(mem.buf)) })
	if ew.err != nil {
		return 0, ew.err
	}

	if err := w.WriteBytes(mem.buf); err != nil {
		return 0, err
	}
	return int64(len(mem.buf)), nil
}

// HeaderSize returns the encoded size of a header holding messages.
func HeaderSize(w *binpkg.Writer, messages []message.Message) int {
	return HeaderSizeWithMinChunk(w, messages, 0)
}

// HeaderSizeWithMinChunk returns the encoded size written by
// WriteHeaderWithMinChunk.
func HeaderSizeWithMinChunk(w *binpkg.Writer, messages []message.Message, minChunk int) int {
	p := plan(w, messages, minChunk)
	return len(signature) + 2 + p.field + p.chunk + 4
}

type chunkPlan struct {
	body  int // serialized messages with their headers
	chunk int // body plus NIL padding
	field int // width of the chunk size field
}

func plan(w *binpkg.Writer, messages []message.Message, minChunk int) chunkPlan {
	var p chunkPlan
	for _, msg := range messages {
		s, ok := msg.(message.Serializable)
		if !ok {
			continue
		}
		size := s.SerializedSize(w)
		if size > math.MaxUint16 {
			p.body += 7 + size
		} else {
			p.body += 4 + size
		}
	}
	p.chunk = max(p.body, minChunk)
	if pad := p.chunk - p.body; pad > 0 && pad < nilHeader {
		p.chunk = p.body + nilHeader
	}
	switch {
	case p.chunk <= math.MaxUint8:
		p.field = 1
	case p.chunk <= math.MaxUint16:
		p.field = 2
	case p.chunk <= math.MaxUint32:
		p.field = 4
	default:
		p.field = 8
	}
	return p
}

// sizeFlag encodes the chunk size field width as flag bits 0-1.
func (p chunkPlan) sizeFlag() uint8 {
	switch p.field {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	default:
		return 3
	}
}

// NewEmptyGroupHeader returns the messages of a group with no links.
func NewEmptyGroupHeader() []message.Message {
	return NewGroupHeader(nil)
}

// NewGroupHeader returns the messages of a group with compact link storage.
func NewGroupHeader(links []*message.Link) []message.Message {
	msgs := make([]message.Message, 0, len(links)+2)
	msgs = append(msgs, message.NewLinkInfo(), message.NewGroupInfo())
	for _, l := range links {
		msgs = append(msgs, l)
	}
	return msgs
}

// NewDatasetHeader returns the three messages every dataset carries.
func NewDatasetHeader(space *message.Dataspace, dt *message.Datatype, layout *message.DataLayout) []message.Message {
	return []message.Message{space, dt, layout}
}

type memWriterAt struct{ buf []byte }

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:], p), nil
}

// errWriter keeps the first error of a sequence of writes.
type errWriter struct {
	w   *binpkg.Writer
	err error
}

func (e *errWriter) do(fn func() error) {
	if e.err == nil {
		e.err = fn()
	}
}

func (e *errWriter) u8(v uint8) { e.do(func() error { return e.w.WriteUint8(v) }) }

func (e *errWriter) bytes(b []byte) { e.do(func() error { return e.w.WriteBytes(b) }) }
