package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// eaHeader is the part of an Extensible Array header ("EAHD") a reader
// needs to walk the array.
type eaHeader struct {
	client      uint8
	entrySize   int
	sizeBytes   int
	maxBits     uint8
	indexElems  uint64
	dblkMin     uint64
	sblkMinPtrs uint64
	pageElems   uint64
	maxIndex    uint64
	indexAddr   uint64
}

// eaSuper describes super block u: how many data blocks it addresses, how
// many elements each holds and the index of its first element past the
// index block's own elements.
type eaSuper struct {
	ndblks, dblkElems  uint64
	startIdx, startDbl uint64
}

func isPow2(v uint64) bool { return v != 0 && v&(v-1) == 0 }

func log2(v uint64) int { return bits.Len64(v) - 1 }

func (c *Chunked) readEAHeader(addr uint64) (*eaHeader, error) {
	osz, lsz := c.r.OffsetSize(), c.r.LengthSize()
	b, err := c.r.At(int64(addr)).ReadBytes(12 + 6*lsz + osz + 4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array header: %w", err)
	}
	if err := checkBlock(b, "EAHD"); err != nil {
		return nil, err
	}
	h := &eaHeader{
		client:      b[5],
		entrySize:   int(b[6]),
		maxBits:     b[7],
		indexElems:  uint64(b[8]),
		dblkMin:     uint64(b[9]),
		sblkMinPtrs: uint64(b[10]),
		maxIndex:    leUint(b[12+4*lsz : 12+5*lsz]),
		indexAddr:   leUint(b[12+6*lsz : 12+6*lsz+osz]),
	}
	if b[11] >= 32 || h.maxBits == 0 || h.maxBits > 64 || !isPow2(h.dblkMin) || !isPow2(h.sblkMinPtrs) || log2(h.dblkMin) > int(h.maxBits) {
		return nil, fmt.Errorf("%w: extensible array parameters %v", ErrCorruptIndex, b[7:12])
	}
	h.pageElems = 1 << b[11]
	if h.sizeBytes, err = recordSizes(h.client, h.entrySize, osz); err != nil {
		return nil, err
	}
	return h, nil
}

// supers lays out every super block the array can have.
func (h *eaHeader) supers() []eaSuper {
	n := 1 + int(h.maxBits) - log2(h.dblkMin)
	out := make([]eaSuper, n)
	var idx, dbl uint64
	for u := range out {
		s := eaSuper{ndblks: 1 << (u / 2), dblkElems: (1 << ((u + 1) / 2)) * h.dblkMin, startIdx: idx, startDbl: dbl}
		out[u] = s
		idx += s.ndblks * s.dblkElems
		dbl += s.ndblks
	}
	return out
}

// offsetBytes is the width of the block offset in super and data blocks.
func (h *eaHeader) offsetBytes() int { return (int(h.maxBits) + 7) / 8 }

// readExtensibleArray calls visit for every element below the highest index
// ever set. Elements in blocks that were never allocated are not visited.
func (c *Chunked) readExtensibleArray(addr uint64, visit func(i uint64, rec ChunkRecord)) error {
	h, err := c.readEAHeader(addr)
	if err != nil {
		return err
	}
	if h.maxIndex == 0 || c.r.IsUndefinedOffset(h.indexAddr) {
		return nil
	}
	osz := c.r.OffsetSize()
	supers := h.supers()
	ownSupers := min(2*log2(h.sblkMinPtrs), len(supers))
	ndblkAddrs := int(2 * (h.sblkMinPtrs - 1))
	nsblkAddrs := len(supers) - ownSupers

	size := 6 + osz + int(h.indexElems)*h.entrySize + (ndblkAddrs+nsblkAddrs)*osz + 4
	b, err := c.r.At(int64(h.indexAddr)).ReadBytes(size)
	if err != nil {
		return fmt.Errorf("reading extensible array index block: %w", err)
	}
	if err := checkBlock(b, "EAIB"); err != nil {
		return err
	}
	p := b[6+osz:]
	for i := uint64(0); i < h.indexElems && i < h.maxIndex; i++ {
		visit(i, c.record(p[i*uint64(h.entrySize):], h.client, h.sizeBytes))
	}
	p = p[int(h.indexElems)*h.entrySize:]
	dblkAddrs := make([]uint64, ndblkAddrs)
	for i := range dblkAddrs {
		dblkAddrs[i] = leUint(p[i*osz : (i+1)*osz])
	}
	p = p[ndblkAddrs*osz:]

	for u := 0; u < ownSupers; u++ {
		s := supers[u]
		for j := uint64(0); j < s.ndblks; j++ {
			first := h.indexElems + s.startIdx + j*s.dblkElems
			if first >= h.maxIndex || s.startDbl+j >= uint64(ndblkAddrs) {
				return nil
			}
			if err := c.readEADataBlock(h, dblkAddrs[s.startDbl+j], s.dblkElems, first, nil, visit); err != nil {
				return err
			}
		}
	}
	for k := 0; k < nsblkAddrs; k++ {
		s := supers[ownSupers+k]
		if h.indexElems+s.startIdx >= h.maxIndex {
			return nil
		}
		sblk := leUint(p[k*osz : (k+1)*osz])
		if c.r.IsUndefinedOffset(sblk) {
			continue
		}
		if err := c.readEASuperBlock(h, sblk, s, visit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chunked) readEASuperBlock(h *eaHeader, addr uint64, s eaSuper, visit func(uint64, ChunkRecord)) error {
	osz := c.r.OffsetSize()
	var initSize int
	if s.dblkElems > h.pageElems {
		initSize = int((s.dblkElems/h.pageElems + 7) / 8)
	}
	size := 6 + osz + h.offsetBytes() + int(s.ndblks)*(initSize+osz) + 4
	b, err := c.r.At(int64(addr)).ReadBytes(size)
	if err != nil {
		return fmt.Errorf("reading extensible array super block: %w", err)
	}
	if err := checkBlock(b, "EASB"); err != nil {
		return err
	}
	p := b[6+osz+h.offsetBytes():]
	bitmaps := p[:int(s.ndblks)*initSize]
	p = p[len(bitmaps):]
	for j := uint64(0); j < s.ndblks; j++ {
		first := h.indexElems + s.startIdx + j*s.dblkElems
		if first >= h.maxIndex {
			return nil
		}
		var bitmap []byte
		if initSize > 0 {
			bitmap = bitmaps[int(j)*initSize : int(j+1)*initSize]
		}
		dblk := leUint(p[int(j)*osz : int(j+1)*osz])
		if err := c.readEADataBlock(h, dblk, s.dblkElems, first, bitmap, visit); err != nil {
			return err
		}
	}
	return nil
}

// readEADataBlock visits the n elements of the data block at addr, whose
// first element has array index first. A paged block keeps its elements in
// pages after the block prefix; bitmap marks the pages that exist and is nil
// when every page does.
func (c *Chunked) readEADataBlock(h *eaHeader, addr, n, first uint64, bitmap []byte, visit func(uint64, ChunkRecord)) error {
	if c.r.IsUndefinedOffset(addr) {
		return nil
	}
	osz := c.r.OffsetSize()
	prefix := 6 + osz + h.offsetBytes()
	paged := n > h.pageElems
	size := prefix + 4
	if !paged {
		size += int(n) * h.entrySize
	}
	b, err := c.r.At(int64(addr)).ReadBytes(size)
	if err != nil {
		return fmt.Errorf("reading extensible array data block: %w", err)
	}
	if err := checkBlock(b, "EADB"); err != nil {
		return err
	}
	emit := func(p []byte, base, count uint64) {
		for i := uint64(0); i < count && base+i < h.maxIndex; i++ {
			visit(base+i, c.record(p[i*uint64(h.entrySize):], h.client, h.sizeBytes))
		}
	}
	if !paged {
		emit(b[prefix:], first, n)
		return nil
	}

	pageSize := int(h.pageElems)*h.entrySize + 4
	for pg := uint64(0); pg < n/h.pageElems; pg++ {
		base := first + pg*h.pageElems
		if base >= h.maxIndex {
			break
		}
		if bitmap != nil && !pageSet(bitmap, pg) {
			continue
		}
		page, err := c.r.At(int64(addr) + int64(size) + int64(pg)*int64(pageSize)).ReadBytes(pageSize)
		if err != nil {
			return fmt.Errorf("reading extensible array page %d: %w", pg, err)
		}
		if err := checkPage(page); err != nil {
			return err
		}
		emit(page, base, h.pageElems)
	}
	return nil
}

// extensibleArray places Extensible Array elements. The array counts chunks
// row-major over the maximum grid with the one unlimited dimension moved to
// the front.
func (c *Chunked) extensibleArray(addr uint64) ([]placed, error) {
	unlim := -1
	for d := range c.dims {
		if d < len(c.maxDims) && c.maxDims[d] == message.Unlimited {
			if unlim >= 0 {
				return nil, fmt.Errorf("%w: extensible array over several unlimited dimensions", ErrUnsupportedIndex)
			}
			unlim = d
		}
	}
	if unlim < 0 {
		return nil, fmt.Errorf("%w: extensible array without an unlimited dimension", ErrCorruptIndex)
	}

	order := make([]int, 0, len(c.dims))
	order = append(order, unlim)
	for d := range c.dims {
		if d != unlim {
			order = append(order, d)
		}
	}
	grid := c.maxGrid()
	down := make([]uint64, len(order))
	down[len(down)-1] = 1
	for k := len(order) - 2; k >= 0; k-- {
		down[k] = down[k+1] * grid[order[k+1]]
	}

	var out []placed
	err := c.readExtensibleArray(addr, func(i uint64, rec ChunkRecord) {
		start := make([]uint64, len(c.dims))
		for k, d := range order {
			coord := i / down[k]
			if k > 0 {
				coord %= grid[d]
			}
			start[d] = coord * c.chunk[d]
		}
		out = append(out, placed{ChunkRecord: rec, start: start})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
