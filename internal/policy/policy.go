// Package policy decides storage layout, extensibility and chunk shape for
// new entries.
package policy

import (
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-h5store/internal/backend"
)

const (
	// DefaultChunkThreshold is the byte size above which entries are chunked.
	DefaultChunkThreshold = 512 << 10
	// DefaultExtendThreshold is the byte size above which entries are
	// created extensible.
	DefaultExtendThreshold = 512 << 10
	// DefaultMaxChunkBytes caps the byte size of a default chunk.
	DefaultMaxChunkBytes = 1 << 20
	// DefaultChunkDim caps a default chunk dimension along an unlimited axis.
	DefaultChunkDim = 1024
)

// Policy holds the layout and extensibility thresholds.
//
// Chunking and extensibility are decided independently: ChunkThreshold
// governs DecideLayout and ExtendThreshold governs DecideExtensible.
type Policy struct {
	ChunkThreshold    uint64
	ExtendThreshold   uint64
	DefaultExtendable bool
	MaxChunkBytes     uint64
	DefaultChunkDim   uint64
}

// Default returns the default policy.
func Default() Policy {
	return Policy{
		ChunkThreshold:  DefaultChunkThreshold,
		ExtendThreshold: DefaultExtendThreshold,
		MaxChunkBytes:   DefaultMaxChunkBytes,
		DefaultChunkDim: DefaultChunkDim,
	}
}

// DecideLayout picks the layout of a new entry. An explicit desired layout
// wins. Rank 0 entries are always contiguous.
func (p Policy) DecideLayout(byteCount uint64, rank int, desired *backend.Layout) backend.Layout {
	if rank == 0 {
		return backend.Contiguous
	}
	if desired != nil {
		return *desired
	}
	if byteCount > p.ChunkThreshold {
		return backend.Chunked
	}
	return backend.Contiguous
}

// DecideExtensible reports whether an entry may grow. existing, when set,
// is the extensibility of the entry already on disk and is authoritative;
// a differing preference is logged and ignored.
func (p Policy) DecideExtensible(rank int, byteCount uint64, preference, existing *bool, log *zap.Logger) bool {
	if existing != nil {
		if preference != nil && *preference != *existing && log != nil {
			log.Warn("ignoring extensibility change on existing entry",
				zap.Bool("requested", *preference),
				zap.Bool("existing", *existing))
		}
		return *existing
	}
	if rank == 0 {
		return false
	}
	if preference != nil {
		return *preference
	}
	if p.DefaultExtendable {
		return true
	}
	return byteCount > p.ExtendThreshold
}

// DefaultChunkShape returns the chunk shape for an entry of the given
// extent. maxExtent may be nil for a fixed-size entry.
func (p Policy) DefaultChunkShape(extent, maxExtent []uint64, elemSize uint64, desired []uint64) []uint64 {
	chunk := make([]uint64, len(extent))

	if len(desired) == len(extent) {
		for i, c := range desired {
			c = max(c, 1)
			if maxExtent != nil && maxExtent[i] != backend.Unlimited {
				c = min(c, max(maxExtent[i], 1))
			}
			chunk[i] = c
		}
		return chunk
	}

	for i, d := range extent {
		c := max(d, 1)
		if maxExtent != nil && maxExtent[i] == backend.Unlimited && p.DefaultChunkDim > 0 {
			c = min(c, p.DefaultChunkDim)
		}
		chunk[i] = c
	}

	if p.MaxChunkBytes == 0 || elemSize == 0 {
		return chunk
	}
	for chunkBytes(chunk, elemSize) > p.MaxChunkBytes {
		largest := 0
		for i, c := range chunk {
			if c > chunk[largest] {
				largest = i
			}
		}
		if chunk[largest] <= 1 {
			break
		}
		chunk[largest] = (chunk[largest] + 1) / 2
	}
	return chunk
}

func chunkBytes(chunk []uint64, elemSize uint64) uint64 {
	n := elemSize
	for _, c := range chunk {
		n *= c
	}
	return n
}
