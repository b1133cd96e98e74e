package layout

import (
	"encoding/binary"
	"fmt"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/filter"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

// ChunkRecord locates one stored chunk.
type ChunkRecord struct {
	Address    uint64
	Size       uint64 // bytes on disk, after filtering
	FilterMask uint32
}

// ChunkWriter encodes chunks, appends them to the file and indexes them with
// a Fixed Array.
type ChunkWriter struct {
	w        *binpkg.Writer
	dims     []uint32
	elemSize uint32
	pipeline *filter.Pipeline
	alloc    func(size int64) uint64
	workers  int
}

// NewChunkWriter returns a writer for chunks of the given shape. alloc hands
// out file space.
func NewChunkWriter(w *binpkg.Writer, chunkDims []uint32, elemSize uint32, alloc func(size int64) uint64) *ChunkWriter {
	return &ChunkWriter{w: w, dims: chunkDims, elemSize: elemSize, alloc: alloc, workers: runtime.GOMAXPROCS(0)}
}

// WithPipeline filters every chunk through p before it is stored.
func (cw *ChunkWriter) WithPipeline(p *filter.Pipeline) *ChunkWriter {
	cw.pipeline = p
	return cw
}

func (cw *ChunkWriter) filtered() bool { return !cw.pipeline.Empty() }

// chunkBytes is the unfiltered size of one chunk.
func (cw *ChunkWriter) chunkBytes() uint64 {
	n := uint64(cw.elemSize)
	for _, d := range cw.dims {
		n *= uint64(d)
	}
	return n
}

// WriteChunks stores chunks in order and returns their records. Filtering
// runs concurrently; space is allocated and written in chunk order.
func (cw *ChunkWriter) WriteChunks(chunks [][]byte) ([]ChunkRecord, error) {
	stored := chunks
	masks := make([]uint32, len(chunks))
	if cw.filtered() {
		stored = make([][]byte, len(chunks))
		var g errgroup.Group
		g.SetLimit(cw.workers)
		for i, c := range chunks {
			i, c := i, c
			g.Go(func() (err error) {
				if stored[i], masks[i], err = cw.pipeline.Encode(c); err != nil {
					return fmt.Errorf("encoding chunk %d: %w", i, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	records := make([]ChunkRecord, len(stored))
	for i, data := range stored {
		addr := cw.alloc(int64(len(data)))
		if err := cw.w.At(int64(addr)).WriteBytes(data); err != nil {
			return nil, fmt.Errorf("writing chunk %d: %w", i, err)
		}
		records[i] = ChunkRecord{Address: addr, Size: uint64(len(data)), FilterMask: masks[i]}
	}
	return records, nil
}

// FixedArrayPageBits is the smallest page size exponent, starting at the
// libhdf5 default, that keeps n entries in one unpaged data block.
func FixedArrayPageBits(n int) uint8 {
	b := uint8(message.DefaultFixedArrayPageBits)
	for n > 1<<b {
		b++
	}
	return b
}

// filteredSizeBytes is the width of the stored size in a filtered Fixed
// Array entry: one byte more than the unfiltered chunk size needs, capped
// at eight.
func filteredSizeBytes(chunkBytes uint64) int {
	log2 := max(bits.Len64(chunkBytes)-1, 0)
	return min(1+(log2+8)/8, 8)
}

func appendUint(b []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func withChecksum(b []byte) []byte {
	return binary.LittleEndian.AppendUint32(b, binpkg.Lookup3Checksum(b))
}

// WriteFixedArrayIndex writes the Fixed Array header (FAHD) and data block
// (FADB) for records, given in row-major chunk order, and returns the header
// address. An empty index is the undefined address.
func (cw *ChunkWriter) WriteFixedArrayIndex(records []ChunkRecord) (uint64, error) {
	if len(records) == 0 {
		return cw.w.UndefinedOffset(), nil
	}
	osz, lsz := cw.w.OffsetSize(), cw.w.LengthSize()

	client, sizeBytes, entry := uint8(0), 0, osz
	if cw.filtered() {
		client, sizeBytes = 1, filteredSizeBytes(cw.chunkBytes())
		entry = osz + sizeBytes + 4
	}

	hdrLen := 8 + lsz + osz + 4
	blkLen := 6 + osz + len(records)*entry + 4
	hdrAddr := cw.alloc(int64(hdrLen))
	blkAddr := cw.alloc(int64(blkLen))

	blk := make([]byte, 0, blkLen)
	blk = append(blk, "FADB"...)
	blk = append(blk, 0, client)
	blk = appendUint(blk, hdrAddr, osz)
	for _, r := range records {
		blk = appendUint(blk, r.Address, osz)
		if client == 1 {
			blk = appendUint(blk, r.Size, sizeBytes)
			blk = binary.LittleEndian.AppendUint32(blk, r.FilterMask)
		}
	}
	if err := cw.w.At(int64(blkAddr)).WriteBytes(withChecksum(blk)); err != nil {
		return 0, fmt.Errorf("writing fixed array data block: %w", err)
	}

	hdr := make([]byte, 0, hdrLen)
	hdr = append(hdr, "FAHD"...)
	hdr = append(hdr, 0, client, uint8(entry), FixedArrayPageBits(len(records)))
	hdr = appendUint(hdr, uint64(len(records)), lsz)
	hdr = appendUint(hdr, blkAddr, osz)
	if err := cw.w.At(int64(hdrAddr)).WriteBytes(withChecksum(hdr)); err != nil {
		return 0, fmt.Errorf("writing fixed array header: %w", err)
	}
	return hdrAddr, nil
}

// maxSpreadChunks bounds the index SpreadOverGrid builds.
const maxSpreadChunks = 1 << 20

// SpreadOverGrid moves records, given in row-major order over the chunk grid
// of dims, to their positions in the grid of maxDims. Unused positions get
// the undefined address. Records come back unchanged when a maximum is
// unlimited, when the grids match, or when the maximum grid holds more than
// maxSpreadChunks entries.
func SpreadOverGrid(records []ChunkRecord, dims, maxDims []uint64, chunkDims []uint32, undefined uint64) []ChunkRecord {
	if len(maxDims) != len(dims) {
		return records
	}
	for d, m := range maxDims {
		if m == message.Unlimited || m < dims[d] {
			return records
		}
	}
	grid, _ := ChunkGrid(dims, chunkDims)
	maxGrid, total := ChunkGrid(maxDims, chunkDims)
	if total == len(records) || total > maxSpreadChunks {
		return records
	}

	out := make([]ChunkRecord, total)
	for i := range out {
		out[i].Address = undefined
	}
	coords := make([]uint64, len(grid))
	for i, rec := range records {
		rest := uint64(i)
		for d := len(grid) - 1; d >= 0; d-- {
			coords[d] = rest % grid[d]
			rest /= grid[d]
		}
		var at uint64
		for d, c := range coords {
			at = at*maxGrid[d] + c
		}
		out[at] = rec
	}
	return out
}

// ChunkGrid returns the number of chunks along each dimension and in total.
func ChunkGrid(dataDims []uint64, chunkDims []uint32) ([]uint64, int) {
	grid := make([]uint64, len(dataDims))
	total := uint64(1)
	for i, n := range dataDims {
		c := uint64(chunkDims[i])
		grid[i] = (n + c - 1) / c
		total *= grid[i]
	}
	return grid, int(total)
}

// SplitIntoChunks cuts row-major data into chunks in row-major chunk order.
// Chunks on the upper edges are zero padded to the full chunk shape.
func SplitIntoChunks(data []byte, dataDims []uint64, chunkDims []uint32, elemSize uint32) [][]byte {
	rank := len(dataDims)
	grid, total := ChunkGrid(dataDims, chunkDims)

	shape := make([]uint64, rank)
	size := uint64(elemSize)
	for d := range shape {
		shape[d] = uint64(chunkDims[d])
		size *= shape[d]
	}

	out := make([][]byte, 0, total)
	at := make([]uint64, rank)
	zero := make([]uint64, rank)
	start := make([]uint64, rank)
	count := make([]uint64, rank)
	for n := 0; n < total; n++ {
		for d := range at {
			start[d] = at[d] * shape[d]
			count[d] = min(shape[d], dataDims[d]-start[d])
		}
		buf := make([]byte, size)
		CopyRegion(buf, shape, zero, data, dataDims, start, count, uint64(elemSize))
		out = append(out, buf)
		advance(at, grid)
	}
	return out
}

// advance steps a row-major multi-index within bounds and reports whether
// it wrapped back to the origin.
func advance(idx, bounds []uint64) bool {
	for d := len(idx) - 1; d >= 0; d-- {
		if idx[d]++; idx[d] < bounds[d] {
			return false
		}
		idx[d] = 0
	}
	return true
}

// CopyRegion copies a count-shaped box of elements from src, row-major with
// srcDims, at srcStart into dst, row-major with dstDims, at dstStart. Rank
// zero copies a single element.
func CopyRegion(dst []byte, dstDims, dstStart []uint64, src []byte, srcDims, srcStart []uint64, count []uint64, elemSize uint64) {
	rank := len(count)
	if rank == 0 {
		copy(dst[:elemSize], src[:elemSize])
		return
	}
	for _, c := range count {
		if c == 0 {
			return
		}
	}

	ss := strides(srcDims, elemSize)
	ds := strides(dstDims, elemSize)
	row := count[rank-1] * elemSize
	outer := count[:rank-1]
	idx := make([]uint64, rank-1)
	for {
		so, do := srcStart[rank-1]*elemSize, dstStart[rank-1]*elemSize
		for d, i := range idx {
			so += (srcStart[d] + i) * ss[d]
			do += (dstStart[d] + i) * ds[d]
		}
		copy(dst[do:do+row], src[so:so+row])
		if advance(idx, outer) {
			return
		}
	}
}

func strides(dims []uint64, elemSize uint64) []uint64 {
	s := make([]uint64, len(dims))
	step := elemSize
	for d := len(dims) - 1; d >= 0; d-- {
		s[d] = step
		step *= dims[d]
	}
	return s
}
