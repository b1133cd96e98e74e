package binary

import "io"

// Writer encodes integers at a cursor into an io.WriterAt.
type Writer struct {
	widths
	dst io.WriterAt
	pos int64
}

func NewWriter(dst io.WriterAt, cfg Config) *Writer {
	return &Writer{widths: cfg.widths(), dst: dst}
}

// At returns a writer over the same destination positioned at off.
func (w *Writer) At(off int64) *Writer {
	return &Writer{widths: w.widths, dst: w.dst, pos: off}
}

func (w *Writer) Pos() int64 { return w.pos }

// Skip moves the cursor without writing.
func (w *Writer) Skip(n int64) { w.pos += n }

func (w *Writer) WriteBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := w.dst.WriteAt(b, w.pos)
	w.pos += int64(n)
	return err
}

// WriteUintN writes the low n bytes of v.
func (w *Writer) WriteUintN(v uint64, n int) error {
	b := make([]byte, n)
	w.put(b, v)
	return w.WriteBytes(b)
}

func (w *Writer) WriteUint8(v uint8) error   { return w.WriteUintN(uint64(v), 1) }
func (w *Writer) WriteUint16(v uint16) error { return w.WriteUintN(uint64(v), 2) }
func (w *Writer) WriteUint32(v uint32) error { return w.WriteUintN(uint64(v), 4) }
func (w *Writer) WriteUint64(v uint64) error { return w.WriteUintN(v, 8) }

// WriteOffset writes a file address.
func (w *Writer) WriteOffset(v uint64) error { return w.WriteUintN(v, w.offsetSize) }

// WriteLength writes a file length.
func (w *Writer) WriteLength(v uint64) error { return w.WriteUintN(v, w.lengthSize) }
