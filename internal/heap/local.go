package heap

import (
	"bytes"
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

var ErrInvalidLocalHeap = errors.New("invalid local heap")

// LocalHeap is a decoded "HEAP" block. Symbol table groups keep their link
// names and soft link targets in one.
type LocalHeap struct {
	DataSize    uint64
	FreeOffset  uint64
	DataAddress uint64
	data        []byte
}

// ReadLocalHeap reads the heap header at address and its data segment.
func ReadLocalHeap(r *binpkg.Reader, address uint64) (*LocalHeap, error) {
	if r.IsUndefinedOffset(address) {
		return nil, fmt.Errorf("%w: undefined address", ErrInvalidLocalHeap)
	}
	osz, lsz := r.OffsetSize(), r.LengthSize()
	head, err := r.At(int64(address)).ReadBytes(8 + 2*lsz + osz)
	if err != nil {
		return nil, fmt.Errorf("reading local heap header: %w", err)
	}
	if string(head[:4]) != "HEAP" {
		return nil, fmt.Errorf("%w: signature %q", ErrInvalidLocalHeap, head[:4])
	}
	if head[4] != 0 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidLocalHeap, head[4])
	}
	h := &LocalHeap{
		DataSize:    leUint(head[8 : 8+lsz]),
		FreeOffset:  leUint(head[8+lsz : 8+2*lsz]),
		DataAddress: leUint(head[8+2*lsz:]),
	}
	h.data, err = r.At(int64(h.DataAddress)).ReadBytes(int(h.DataSize))
	if err != nil {
		return nil, fmt.Errorf("reading local heap data: %w", err)
	}
	return h, nil
}

// GetString returns the NUL-terminated string at offset.
func (h *LocalHeap) GetString(offset uint64) (string, error) {
	if offset >= uint64(len(h.data)) {
		return "", fmt.Errorf("%w: offset %d beyond data size %d", ErrInvalidLocalHeap, offset, len(h.data))
	}
	s := h.data[offset:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
