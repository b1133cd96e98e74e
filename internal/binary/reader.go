package binary

import "io"

// Reader decodes integers from a cursor into an io.ReaderAt. Readers are
// cheap to copy with At, and each copy moves independently.
type Reader struct {
	widths
	src io.ReaderAt
	pos int64
}

func NewReader(src io.ReaderAt, cfg Config) *Reader {
	return &Reader{widths: cfg.widths(), src: src}
}

// At returns a reader over the same source positioned at off.
func (r *Reader) At(off int64) *Reader {
	return &Reader{widths: r.widths, src: r.src, pos: off}
}

func (r *Reader) Pos() int64 { return r.pos }

func (r *Reader) Skip(n int64) { r.pos += n }

// ReadBytes reads exactly n bytes. A short read is an error.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if n, err := r.src.ReadAt(buf, r.pos); err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadUintN reads an n-byte unsigned integer.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return r.get(b), nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	v, err := r.ReadUintN(1)
	return uint8(v), err
}

func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadUintN(2)
	return uint16(v), err
}

func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadUintN(4)
	return uint32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) { return r.ReadUintN(8) }

// ReadOffset reads a file address.
func (r *Reader) ReadOffset() (uint64, error) { return r.ReadUintN(r.offsetSize) }

// ReadLength reads a file length.
func (r *Reader) ReadLength() (uint64, error) { return r.ReadUintN(r.lengthSize) }
