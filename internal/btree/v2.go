package btree

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// Version 2 record types for chunk indexes.
const (
	RecordChunk         uint8 = 10
	RecordFilteredChunk uint8 = 11
)

// v2Prefix is the signature, version, type and checksum every node carries.
const v2Prefix = 10

type v2Header struct {
	typ      uint8
	nodeSize uint64
	recSize  int
	depth    int
	root     uint64
	rootRecs int
	total    uint64
}

// v2Level is the per-depth node geometry a reader derives from the header.
type v2Level struct {
	maxRecs uint64
	cumRecs uint64
	cumSize int
}

type v2Tree struct {
	r         *binpkg.Reader
	hdr       v2Header
	levels    []v2Level
	countSize int // width of a child's record count
	visit     func(rec []byte) error
}

// ReadChunksV2 lists the chunks of a version 2 chunk B-tree. chunk holds
// the chunk dimensions, one per dataset dimension.
func ReadChunksV2(r *binpkg.Reader, addr uint64, chunk []uint64) ([]ChunkEntry, error) {
	hdr, err := readV2Header(r, addr)
	if err != nil {
		return nil, err
	}
	if hdr.typ != RecordChunk && hdr.typ != RecordFilteredChunk {
		return nil, fmt.Errorf("%w: record type %d is not a chunk record", ErrCorrupt, hdr.typ)
	}
	osz, rank := r.OffsetSize(), len(chunk)
	sizeBytes := 0
	if hdr.typ == RecordFilteredChunk {
		sizeBytes = hdr.recSize - osz - 4 - 8*rank
		if sizeBytes < 1 || sizeBytes > 8 {
			return nil, fmt.Errorf("%w: record size %d for rank %d", ErrCorrupt, hdr.recSize, rank)
		}
	} else if hdr.recSize != osz+8*rank {
		return nil, fmt.Errorf("%w: record size %d for rank %d", ErrCorrupt, hdr.recSize, rank)
	}

	if hdr.total == 0 || r.IsUndefinedOffset(hdr.root) {
		return nil, nil
	}

	var out []ChunkEntry
	t := newV2Tree(r, hdr)
	t.visit = func(rec []byte) error {
		e := ChunkEntry{Address: leUint(rec[:osz]), Offset: make([]uint64, rank)}
		p := rec[osz:]
		if sizeBytes > 0 {
			e.Size = leUint(p[:sizeBytes])
			e.FilterMask = binary.LittleEndian.Uint32(p[sizeBytes:])
			p = p[sizeBytes+4:]
		}
		for d := range e.Offset {
			e.Offset[d] = binary.LittleEndian.Uint64(p[8*d:]) * chunk[d]
		}
		if !r.IsUndefinedOffset(e.Address) {
			out = append(out, e)
		}
		return nil
	}
	if err := t.node(hdr.root, hdr.rootRecs, hdr.depth); err != nil {
		return nil, err
	}
	return out, nil
}

func readV2Header(r *binpkg.Reader, addr uint64) (v2Header, error) {
	osz, lsz := r.OffsetSize(), r.LengthSize()
	b, err := r.At(int64(addr)).ReadBytes(16 + osz + 2 + lsz + 4)
	if err != nil {
		return v2Header{}, fmt.Errorf("reading b-tree header: %w", err)
	}
	if err := checkV2(b, "BTHD"); err != nil {
		return v2Header{}, err
	}
	h := v2Header{
		typ:      b[5],
		nodeSize: uint64(binary.LittleEndian.Uint32(b[6:])),
		recSize:  int(binary.LittleEndian.Uint16(b[10:])),
		depth:    int(binary.LittleEndian.Uint16(b[12:])),
		root:     leUint(b[16 : 16+osz]),
		rootRecs: int(binary.LittleEndian.Uint16(b[16+osz:])),
		total:    leUint(b[18+osz : 18+osz+lsz]),
	}
	if h.recSize == 0 || h.nodeSize <= v2Prefix+uint64(h.recSize) {
		return v2Header{}, fmt.Errorf("%w: node size %d, record size %d", ErrCorrupt, h.nodeSize, h.recSize)
	}
	return h, nil
}

func newV2Tree(r *binpkg.Reader, hdr v2Header) *v2Tree {
	t := &v2Tree{r: r, hdr: hdr, levels: make([]v2Level, hdr.depth+1)}
	leaf := (hdr.nodeSize - v2Prefix) / uint64(hdr.recSize)
	t.levels[0] = v2Level{maxRecs: leaf, cumRecs: leaf}
	t.countSize = encSize(leaf)
	for u := 1; u <= hdr.depth; u++ {
		ptr := uint64(t.pointerSize(u))
		var n uint64
		if hdr.nodeSize > v2Prefix+ptr {
			n = (hdr.nodeSize - v2Prefix - ptr) / (uint64(hdr.recSize) + ptr)
		}
		cum := (n+1)*t.levels[u-1].cumRecs + n
		t.levels[u] = v2Level{maxRecs: n, cumRecs: cum, cumSize: encSize(cum)}
	}
	return t
}

// pointerSize is the width of a child pointer in an internal node at depth.
func (t *v2Tree) pointerSize(depth int) int {
	n := t.r.OffsetSize() + t.countSize
	if depth > 1 {
		n += t.levels[depth-1].cumSize
	}
	return n
}

// encSize is the fewest bytes that hold v.
func encSize(v uint64) int {
	return max(bits.Len64(v)-1, 0)/8 + 1
}

func (t *v2Tree) node(addr uint64, nrec, depth int) error {
	sig := "BTLF"
	size := 6 + nrec*t.hdr.recSize + 4
	if depth > 0 {
		sig = "BTIN"
		size += (nrec + 1) * t.pointerSize(depth)
	}
	b, err := t.r.At(int64(addr)).ReadBytes(size)
	if err != nil {
		return fmt.Errorf("reading b-tree node at 0x%x: %w", addr, err)
	}
	if err := checkV2(b, sig); err != nil {
		return err
	}
	if b[5] != t.hdr.typ {
		return fmt.Errorf("%w: node record type %d, want %d", ErrCorrupt, b[5], t.hdr.typ)
	}
	p := b[6:]
	for i := 0; i < nrec; i++ {
		if err := t.visit(p[:t.hdr.recSize]); err != nil {
			return err
		}
		p = p[t.hdr.recSize:]
	}
	if depth == 0 {
		return nil
	}

	osz, ptr := t.r.OffsetSize(), t.pointerSize(depth)
	for i := 0; i <= nrec; i++ {
		child := leUint(p[:osz])
		childRecs := int(leUint(p[osz : osz+t.countSize]))
		if err := t.node(child, childRecs, depth-1); err != nil {
			return err
		}
		p = p[ptr:]
	}
	return nil
}

// checkV2 verifies the signature, the version and the trailing lookup3
// checksum of a version 2 B-tree block.
func checkV2(b []byte, sig string) error {
	if string(b[:4]) != sig {
		return fmt.Errorf("%w: signature %q, want %q", ErrCorrupt, b[:4], sig)
	}
	if b[4] != 0 {
		return fmt.Errorf("%w: %s version %d", ErrCorrupt, sig, b[4])
	}
	end := len(b) - 4
	if binary.LittleEndian.Uint32(b[end:]) != binpkg.Lookup3Checksum(b[:end]) {
		return fmt.Errorf("%w: %s checksum mismatch", ErrCorrupt, sig)
	}
	return nil
}
