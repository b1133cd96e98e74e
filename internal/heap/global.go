// Package heap reads HDF5 global heap collections, where variable-length
// strings in attributes and datasets keep their bytes, and the local heaps
// of symbol table groups.
package heap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

var ErrInvalidHeap = errors.New("invalid global heap")

// GlobalHeap is one decoded collection ("GCOL").
type GlobalHeap struct {
	CollectionSize uint64
	objects        map[uint16][]byte
}

// GlobalHeapID locates an object: the collection address and the object's
// index inside it.
type GlobalHeapID struct {
	CollectionAddress uint64
	ObjectIndex       uint32
}

// ReadGlobalHeap reads the collection at address. Object 0 ends the list.
func ReadGlobalHeap(r *binpkg.Reader, address uint64) (*GlobalHeap, error) {
	if address == 0 || r.IsUndefinedOffset(address) {
		return nil, fmt.Errorf("%w: address 0x%x", ErrInvalidHeap, address)
	}
	lsz := r.LengthSize()
	head, err := r.At(int64(address)).ReadBytes(8 + lsz)
	if err != nil {
		return nil, fmt.Errorf("reading global heap header: %w", err)
	}
	if string(head[:4]) != "GCOL" {
		return nil, fmt.Errorf("%w: signature %q", ErrInvalidHeap, head[:4])
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidHeap, head[4])
	}
	size := leUint(head[8:])
	if size < uint64(len(head)) {
		return nil, fmt.Errorf("%w: collection size %d", ErrInvalidHeap, size)
	}

	body, err := r.At(int64(address)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading global heap collection: %w", err)
	}

	h := &GlobalHeap{CollectionSize: size, objects: make(map[uint16][]byte)}
	p := body[len(head):]
	objHead := 8 + lsz
	for len(p) >= objHead {
		index := binary.LittleEndian.Uint16(p)
		if index == 0 {
			break
		}
		n := leUint(p[8:objHead])
		end := uint64(objHead) + n
		if end > uint64(len(p)) {
			return nil, fmt.Errorf("%w: object %d overruns the collection", ErrInvalidHeap, index)
		}
		h.objects[index] = p[objHead:end]
		end += (8 - n%8) % 8
		if end > uint64(len(p)) {
			break
		}
		p = p[end:]
	}
	return h, nil
}

// GetObject returns a copy of object index.
func (h *GlobalHeap) GetObject(index uint16) ([]byte, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil heap", ErrInvalidHeap)
	}
	data, ok := h.objects[index]
	if !ok {
		return nil, fmt.Errorf("%w: no object %d", ErrInvalidHeap, index)
	}
	return append([]byte(nil), data...), nil
}

// GetString returns object index up to its first NUL.
func (h *GlobalHeap) GetString(index uint16) (string, error) {
	data, err := h.GetObject(index)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data), nil
}

// ParseGlobalHeapID decodes an offset-sized address followed by a 4-byte
// object index.
func ParseGlobalHeapID(data []byte, offsetSize int) (GlobalHeapID, error) {
	switch offsetSize {
	case 2, 4, 8:
	default:
		return GlobalHeapID{}, fmt.Errorf("unsupported offset size: %d", offsetSize)
	}
	if len(data) < offsetSize+4 {
		return GlobalHeapID{}, fmt.Errorf("global heap ID too short: need %d bytes, have %d", offsetSize+4, len(data))
	}
	return GlobalHeapID{
		CollectionAddress: leUint(data[:offsetSize]),
		ObjectIndex:       binary.LittleEndian.Uint32(data[offsetSize:]),
	}, nil
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
