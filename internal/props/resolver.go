package props

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/handle"
	"github.com/robert-malhotra/go-h5store/internal/policy"
)

// MaxCompressionLevel is the highest deflate level.
const MaxCompressionLevel = 9

// Resolver builds EntryProperties against one open container.
type Resolver struct {
	Container backend.Container
	// Scope receives entry handles. It may be nil, in which case only
	// EntryProperties.Close releases them.
	Scope  *handle.Scope
	Policy policy.Policy
	// Compression is the level used when no override is given.
	Compression int
	Log         *zap.Logger
}

func (r *Resolver) log() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// Bootstrap plans a new entry for src.
func (r *Resolver) Bootstrap(src Source, name string, ov Overrides) (*EntryProperties, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	log := r.log().With(zap.String("entry", name))

	ep := &EntryProperties{scope: r.Scope}
	p := &ep.Plan
	p.Name = name
	p.ElementType = src.ElementType
	p.Rank = src.Rank()
	p.Extent = slices.Clone(src.Extent)
	p.ElementCount = product(p.Extent)
	p.ByteCount = p.ElementCount * uint64(p.ElementType.Size)

	desired := ov.Layout
	if desired != nil && *desired == backend.Compact {
		log.Warn("compact layout cannot be created, using contiguous")
		desired = nil
	}
	if p.Rank == 0 && desired != nil && *desired == backend.Chunked {
		log.Warn("scalar entries cannot be chunked, using contiguous")
	}
	p.Layout = r.Policy.DecideLayout(p.ByteCount, p.Rank, desired)

	// An explicit contiguous layout is never made extensible by the size
	// heuristic.
	if desired == nil || *desired != backend.Contiguous || ov.Extendable != nil {
		p.Extensible = r.Policy.DecideExtensible(p.Rank, p.ByteCount, ov.Extendable, nil, log)
	}
	if p.Extensible && p.Layout != backend.Chunked {
		if desired != nil {
			log.Warn("extensible entry cannot be contiguous, using chunked")
		} else {
			log.Debug("extensible entry forced to chunked layout")
		}
		p.Layout = backend.Chunked
	}

	if p.Extensible {
		p.MaxExtent = make([]uint64, p.Rank)
		for i := range p.MaxExtent {
			p.MaxExtent[i] = backend.Unlimited
		}
	} else if p.Rank > 0 {
		p.MaxExtent = slices.Clone(p.Extent)
	}

	if p.Layout == backend.Chunked {
		var bound []uint64
		if p.Extensible {
			bound = p.MaxExtent
		}
		p.ChunkExtent = r.Policy.DefaultChunkShape(p.Extent, bound, uint64(p.ElementType.Size), ov.ChunkShape)
	}

	level := r.Compression
	if ov.Compression != nil {
		level = *ov.Compression
	}
	level = min(MaxCompressionLevel, max(0, level))
	if level > 0 && p.Layout != backend.Chunked {
		log.Debug("compression dropped for unchunked entry", zap.Int("level", level))
		level = 0
	}
	p.CompressionLevel = level

	p.MemorySelection = backend.All(p.Extent)
	p.FileSelection = backend.All(p.Extent)

	log.Debug("bootstrapped entry properties",
		zap.Stringer("layout", p.Layout),
		zap.Uint64s("extent", p.Extent),
		zap.Uint64s("chunk", p.ChunkExtent),
		zap.Bool("extensible", p.Extensible),
		zap.Int("compression", p.CompressionLevel))
	return ep, nil
}

// Read resolves the properties of an existing entry. It fails with
// ErrEntryNotFound without opening anything when name does not resolve to
// an entry.
func (r *Resolver) Read(name string) (*EntryProperties, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if !r.Container.EntryExists(name) {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	return r.open(name)
}

func (r *Resolver) open(name string) (*EntryProperties, error) {
	e, err := r.Container.OpenEntry(name)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrBackend, name, err)
	}
	ep := &EntryProperties{scope: r.Scope}
	ep.entry = ownEntry(r.Scope, e)

	p := &ep.Plan
	p.Name = name
	p.Exists = true
	p.ElementType = e.ElementType()
	p.Rank, p.Extent, p.MaxExtent = e.Shape()
	p.ElementCount = product(p.Extent)
	p.ByteCount = p.ElementCount * uint64(p.ElementType.Size)
	p.Layout = e.Layout()
	if p.Layout == backend.Chunked {
		p.ChunkExtent = e.ChunkShape()
		for i, m := range p.MaxExtent {
			if m == backend.Unlimited || m > p.Extent[i] {
				p.Extensible = true
			}
		}
	}
	p.CompressionLevel = e.CompressionLevel()
	p.MemorySelection = backend.All(p.Extent)
	p.FileSelection = backend.All(p.Extent)
	return ep, nil
}

// Write resolves the properties for writing src to name. A missing entry is
// bootstrapped. An existing one is validated against src in order: rank,
// element type, then extent per dimension. Its layout, chunking,
// compression and extensibility are kept.
func (r *Resolver) Write(src Source, name string, ov Overrides) (*EntryProperties, error) {
	clean, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if !r.Container.EntryExists(clean) {
		return r.Bootstrap(src, clean, ov)
	}

	ep, err := r.open(clean)
	if err != nil {
		return nil, err
	}
	if err := r.reconcile(ep, src, ov); err != nil {
		_ = ep.Close()
		return nil, &EntryError{Layout: ep.Layout, Err: err}
	}
	return ep, nil
}

func (r *Resolver) reconcile(ep *EntryProperties, src Source, ov Overrides) error {
	p := &ep.Plan
	log := r.log().With(zap.String("entry", p.Name))

	if src.Rank() != p.Rank {
		return fmt.Errorf("%w: %s has rank %d, data has rank %d", ErrRankMismatch, p.Name, p.Rank, src.Rank())
	}

	if src.Text {
		if !SameTextType(p.ElementType, src.ElementType) {
			return fmt.Errorf("%w: %s is not a compatible text entry", ErrTypeMismatch, p.Name)
		}
		if capacity := textCapacity(p.ElementType); src.StringLen > capacity {
			return fmt.Errorf("%w: %s holds strings up to %d bytes, got %d",
				ErrExtentExceeded, p.Name, capacity, src.StringLen)
		}
	} else if !SameType(p.ElementType, src.ElementType) {
		return fmt.Errorf("%w: %s", ErrTypeMismatch, p.Name)
	}

	for i, n := range src.Extent {
		switch {
		case p.Layout == backend.Chunked && p.MaxExtent[i] == backend.Unlimited:
		case p.Layout == backend.Chunked:
			if n > p.MaxExtent[i] {
				return fmt.Errorf("%w: %s dimension %d: %d > max %d",
					ErrExtentExceeded, p.Name, i, n, p.MaxExtent[i])
			}
		default:
			if n != p.Extent[i] {
				return fmt.Errorf("%w: %s is %s with extent %v, data has extent %v",
					ErrExtentMismatch, p.Name, p.Layout, p.Extent, src.Extent)
			}
		}
	}

	if ov.Compression != nil && *ov.Compression != p.CompressionLevel {
		log.Warn("ignoring compression change on existing entry",
			zap.Int("requested", *ov.Compression),
			zap.Int("existing", p.CompressionLevel))
	}
	if ov.Layout != nil && *ov.Layout != p.Layout {
		log.Warn("ignoring layout change on existing entry",
			zap.Stringer("requested", *ov.Layout),
			zap.Stringer("existing", p.Layout))
	}
	if ov.ChunkShape != nil && !slices.Equal(ov.ChunkShape, p.ChunkExtent) {
		log.Warn("ignoring chunk shape change on existing entry",
			zap.Uint64s("requested", ov.ChunkShape),
			zap.Uint64s("existing", p.ChunkExtent))
	}
	existing := p.Extensible
	p.Extensible = r.Policy.DecideExtensible(p.Rank, p.ByteCount, ov.Extendable, &existing, log)

	p.Resize = !slices.Equal(p.Extent, src.Extent)
	p.Extent = slices.Clone(src.Extent)
	p.ElementCount = product(p.Extent)
	p.ByteCount = p.ElementCount * uint64(p.ElementType.Size)
	p.MemorySelection = backend.All(p.Extent)
	p.FileSelection = backend.All(p.Extent)

	log.Debug("reconciled entry properties",
		zap.Stringer("layout", p.Layout),
		zap.Uint64s("extent", p.Extent),
		zap.Bool("resize", p.Resize))
	return nil
}
