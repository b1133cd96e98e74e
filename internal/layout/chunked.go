package layout

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/btree"
	"github.com/robert-malhotra/go-h5store/internal/filter"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Chunked reads datasets stored in chunks under any of the six chunk
// indexes: version 1 and 2 B-trees, a single chunk, implicit, Fixed Array
// and Extensible Array. Chunks that were never written read as zeros.
type Chunked struct {
	msg      *message.DataLayout
	dims     []uint64
	maxDims  []uint64
	chunk    []uint64
	elemSize uint64
	pipeline *filter.Pipeline
	r        *binpkg.Reader
}

func NewChunked(
	lay *message.DataLayout,
	space *message.Dataspace,
	dt *message.Datatype,
	fp *message.FilterPipeline,
	r *binpkg.Reader,
) (*Chunked, error) {
	if space == nil || dt == nil {
		return nil, fmt.Errorf("chunked layout needs a dataspace and a datatype")
	}
	dims := space.Dimensions
	if len(dims) == 0 {
		return nil, fmt.Errorf("chunked layout on a scalar dataspace")
	}
	if len(lay.ChunkDims) < len(dims) {
		return nil, fmt.Errorf("chunked layout has %d chunk dimensions for rank %d", len(lay.ChunkDims), len(dims))
	}

	c := &Chunked{msg: lay, dims: dims, maxDims: space.MaxExtent(), elemSize: uint64(dt.Size), r: r}
	for _, d := range lay.ChunkDims[:len(dims)] {
		if d == 0 {
			return nil, fmt.Errorf("chunked layout has a zero chunk dimension")
		}
		c.chunk = append(c.chunk, uint64(d))
	}
	if fp != nil {
		p, err := filter.NewPipeline(fp)
		if err != nil {
			return nil, fmt.Errorf("creating filter pipeline: %w", err)
		}
		c.pipeline = p
	}
	return c, nil
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

func (c *Chunked) chunkBytes() uint64 {
	return c.elemSize * product(c.chunk)
}

// placed is a stored chunk and the coordinate of its first element.
type placed struct {
	ChunkRecord
	start []uint64
}

// Read assembles every stored chunk into a row-major buffer. Chunks that
// were never written, or lie beyond the current extent, are skipped.
func (c *Chunked) Read() ([]byte, error) {
	out := make([]byte, c.elemSize*product(c.dims))
	addr := c.msg.ChunkIndexAddr
	if len(out) == 0 || addr == 0 || c.r.IsUndefinedOffset(addr) {
		return out, nil
	}
	chunks, err := c.index(addr)
	if err != nil {
		return nil, err
	}

	origin := make([]uint64, len(c.dims))
	count := make([]uint64, len(c.dims))
	for _, ch := range chunks {
		if ch.Address == 0 || c.r.IsUndefinedOffset(ch.Address) || !c.inside(ch.start) {
			continue
		}
		data, err := c.readChunk(ch.ChunkRecord)
		if err != nil {
			return nil, fmt.Errorf("chunk at %v: %w", ch.start, err)
		}
		for d := range count {
			count[d] = min(c.chunk[d], c.dims[d]-ch.start[d])
		}
		CopyRegion(out, c.dims, ch.start, data, c.chunk, origin, count, c.elemSize)
	}
	return out, nil
}

func (c *Chunked) inside(start []uint64) bool {
	if len(start) != len(c.dims) {
		return false
	}
	for d, s := range start {
		if s >= c.dims[d] || s%c.chunk[d] != 0 {
			return false
		}
	}
	return true
}

// index lists the chunks the layout's index knows about.
func (c *Chunked) index(addr uint64) ([]placed, error) {
	if c.msg.Version < 4 {
		return c.fromBTree(btree.ReadChunks(c.r, addr, len(c.dims)))
	}
	switch c.msg.ChunkIndexType {
	case message.ChunkIndexSingleChunk:
		rec := ChunkRecord{Address: addr, Size: c.chunkBytes()}
		if c.msg.ChunkFlags&message.ChunkFlagSingleIndexWithFilter != 0 {
			rec.Size, rec.FilterMask = c.msg.FilteredChunkSize, c.msg.FilterMask
		}
		return []placed{{ChunkRecord: rec, start: make([]uint64, len(c.dims))}}, nil
	case message.ChunkIndexImplicit:
		return c.implicit(addr), nil
	case message.ChunkIndexFixedArray:
		return c.fixedArray(addr)
	case message.ChunkIndexExtensibleArray:
		return c.extensibleArray(addr)
	case message.ChunkIndexBTreeV2:
		return c.fromBTree(btree.ReadChunksV2(c.r, addr, c.chunk))
	}
	return nil, fmt.Errorf("%w: index type %d", ErrUnsupportedIndex, c.msg.ChunkIndexType)
}

func (c *Chunked) fromBTree(entries []btree.ChunkEntry, err error) ([]placed, error) {
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptIndex, err)
	}
	out := make([]placed, len(entries))
	for i, e := range entries {
		out[i] = placed{ChunkRecord: ChunkRecord{Address: e.Address, Size: e.Size, FilterMask: e.FilterMask}, start: e.Offset}
		if !c.filtered() || out[i].Size == 0 {
			out[i].Size = c.chunkBytes()
		}
	}
	return out, nil
}

func (c *Chunked) filtered() bool { return !c.pipeline.Empty() }

// maxGrid is the chunk grid over the maximum extent. Unlimited dimensions
// count their current chunks.
func (c *Chunked) maxGrid() []uint64 {
	grid := make([]uint64, len(c.dims))
	for d, m := range c.maxDims {
		if m == message.Unlimited || m < c.dims[d] {
			m = c.dims[d]
		}
		grid[d] = (m + c.chunk[d] - 1) / c.chunk[d]
	}
	return grid
}

// origin is the first element of chunk i in row-major order over grid.
func (c *Chunked) origin(i uint64, grid []uint64) []uint64 {
	start := make([]uint64, len(grid))
	for d := len(grid) - 1; d >= 0; d-- {
		start[d] = (i % grid[d]) * c.chunk[d]
		i /= grid[d]
	}
	return start
}

// implicit places chunks back to back at addr in row-major order over the
// maximum grid. Only chunks inside the current extent are listed.
func (c *Chunked) implicit(addr uint64) []placed {
	maxGrid := c.maxGrid()
	grid, total := ChunkGrid(c.dims, c.msg.ChunkDims)
	out := make([]placed, 0, total)
	for i := 0; i < total; i++ {
		start := c.origin(uint64(i), grid)
		var at uint64
		for d, s := range start {
			at = at*maxGrid[d] + s/c.chunk[d]
		}
		out = append(out, placed{ChunkRecord: ChunkRecord{Address: addr + at*c.chunkBytes(), Size: c.chunkBytes()}, start: start})
	}
	return out
}

// fixedArray places the array's entries over the maximum grid, or over the
// current grid when the entry count matches it instead.
func (c *Chunked) fixedArray(addr uint64) ([]placed, error) {
	records, err := c.readFixedArray(addr)
	if err != nil {
		return nil, err
	}
	grid := c.maxGrid()
	if uint64(len(records)) != product(grid) {
		var total int
		grid, total = ChunkGrid(c.dims, c.msg.ChunkDims)
		if len(records) < total {
			return nil, fmt.Errorf("%w: %d entries for %d chunks", ErrCorruptIndex, len(records), total)
		}
	}
	out := make([]placed, 0, len(records))
	for i, rec := range records[:product(grid)] {
		out = append(out, placed{ChunkRecord: rec, start: c.origin(uint64(i), grid)})
	}
	return out, nil
}

func (c *Chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	data, err := c.Read()
	if err != nil {
		return nil, err
	}
	return slice(data, c.dims, start, count, c.elemSize)
}

func (c *Chunked) readChunk(rec ChunkRecord) ([]byte, error) {
	data, err := c.r.At(int64(rec.Address)).ReadBytes(int(rec.Size))
	if err != nil {
		return nil, err
	}
	if c.pipeline != nil && !c.pipeline.Empty() {
		if data, err = c.pipeline.Decode(data, rec.FilterMask); err != nil {
			return nil, err
		}
	}
	if uint64(len(data)) < c.chunkBytes() {
		return nil, fmt.Errorf("%w: chunk holds %d bytes, want %d", ErrCorruptIndex, len(data), c.chunkBytes())
	}
	return data, nil
}

// readFixedArray decodes a Fixed Array header and its data block. A block
// holding more than 2^pageBits entries is split into checksummed pages
// behind a bitmap of the pages that were ever written.
func (c *Chunked) readFixedArray(addr uint64) ([]ChunkRecord, error) {
	osz, lsz := c.r.OffsetSize(), c.r.LengthSize()

	hdr, err := c.r.At(int64(addr)).ReadBytes(8 + lsz + osz + 4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array header: %w", err)
	}
	if err := checkBlock(hdr, "FAHD"); err != nil {
		return nil, err
	}
	client, entrySize, pageBits := hdr[5], int(hdr[6]), hdr[7]
	count := leUint(hdr[8 : 8+lsz])
	blockAddr := leUint(hdr[8+lsz : 8+lsz+osz])
	sizeBytes, err := recordSizes(client, entrySize, osz)
	if err != nil {
		return nil, err
	}
	if pageBits >= 32 {
		return nil, fmt.Errorf("%w: fixed array page bits %d", ErrCorruptIndex, pageBits)
	}

	records := make([]ChunkRecord, count)
	pageElems := uint64(1) << pageBits
	if count <= pageElems {
		block, err := c.r.At(int64(blockAddr)).ReadBytes(6 + osz + int(count)*entrySize + 4)
		if err != nil {
			return nil, fmt.Errorf("reading fixed array data block: %w", err)
		}
		if err := checkBlock(block, "FADB"); err != nil {
			return nil, err
		}
		c.records(records, block[6+osz:], entrySize, client, sizeBytes)
		return records, nil
	}

	pages := (count + pageElems - 1) / pageElems
	block, err := c.r.At(int64(blockAddr)).ReadBytes(6 + osz + int((pages+7)/8) + 4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array data block: %w", err)
	}
	if err := checkBlock(block, "FADB"); err != nil {
		return nil, err
	}
	bitmap := block[6+osz : len(block)-4]
	at := int64(blockAddr) + int64(len(block))
	for p := uint64(0); p < pages; p++ {
		n := min(pageElems, count-p*pageElems)
		size := int(n)*entrySize + 4
		if pageSet(bitmap, p) {
			page, err := c.r.At(at).ReadBytes(size)
			if err != nil {
				return nil, fmt.Errorf("reading fixed array page %d: %w", p, err)
			}
			if err := checkPage(page); err != nil {
				return nil, err
			}
			c.records(records[p*pageElems:p*pageElems+n], page, entrySize, client, sizeBytes)
		}
		at += int64(size)
	}
	return records, nil
}

// records decodes len(out) consecutive elements from p.
func (c *Chunked) records(out []ChunkRecord, p []byte, entrySize int, client uint8, sizeBytes int) {
	for i := range out {
		out[i] = c.record(p[:entrySize], client, sizeBytes)
		p = p[entrySize:]
	}
}

// pageSet reports whether bit i, counted from the high bit of byte 0, is
// set.
func pageSet(bitmap []byte, i uint64) bool {
	return bitmap[i/8]&(0x80>>(i%8)) != 0
}

// record decodes one array element: an address, then for filtered chunks
// the stored size and the filter mask.
func (c *Chunked) record(p []byte, client uint8, sizeBytes int) ChunkRecord {
	osz := c.r.OffsetSize()
	rec := ChunkRecord{Address: leUint(p[:osz]), Size: c.chunkBytes()}
	if client == 1 {
		rec.Size = leUint(p[osz : osz+sizeBytes])
		rec.FilterMask = binary.LittleEndian.Uint32(p[osz+sizeBytes:])
	}
	return rec
}

// recordSizes checks an array element size against its client and returns
// the width of the stored chunk size.
func recordSizes(client uint8, entrySize, osz int) (int, error) {
	switch client {
	case 0:
		if entrySize != osz {
			return 0, fmt.Errorf("%w: entry size %d", ErrCorruptIndex, entrySize)
		}
		return 0, nil
	case 1:
		n := entrySize - osz - 4
		if n < 1 || n > 8 {
			return 0, fmt.Errorf("%w: entry size %d", ErrCorruptIndex, entrySize)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: array client %d", ErrUnsupportedIndex, client)
}

// checkBlock verifies the signature, the version and the trailing lookup3
// checksum of an index block.
func checkBlock(b []byte, sig string) error {
	if string(b[:4]) != sig {
		return fmt.Errorf("%w: signature %q, want %q", ErrCorruptIndex, b[:4], sig)
	}
	if b[4] != 0 {
		return fmt.Errorf("%w: %s version %d", ErrUnsupportedIndex, sig, b[4])
	}
	end := len(b) - 4
	if binary.LittleEndian.Uint32(b[end:]) != binpkg.Lookup3Checksum(b[:end]) {
		return fmt.Errorf("%w: %s checksum mismatch", ErrCorruptIndex, sig)
	}
	return nil
}

// checkPage verifies the trailing checksum of a data block page, which has
// no signature.
func checkPage(b []byte) error {
	end := len(b) - 4
	if binary.LittleEndian.Uint32(b[end:]) != binpkg.Lookup3Checksum(b[:end]) {
		return fmt.Errorf("%w: page checksum mismatch", ErrCorruptIndex)
	}
	return nil
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
