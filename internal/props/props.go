// Package props resolves the complete storage plan for a single read or
// write of an entry: element type, shape, layout, chunking, compression and
// extensibility. It reconciles new data against the entry already on disk
// and fails before any data is touched when they disagree.
//
// Nothing here is cached between calls. Every resolution queries the
// container again.
package props

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/handle"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

var (
	ErrEntryNotFound  = errors.New("entry not found")
	ErrRankMismatch   = errors.New("rank mismatch")
	ErrTypeMismatch   = errors.New("element type mismatch")
	ErrExtentMismatch = errors.New("extent mismatch")
	ErrExtentExceeded = errors.New("extent exceeds maximum")
	ErrInvalidName    = errors.New("invalid entry name")
	ErrBackend        = errors.New("backend failure")
)

// EntryError carries the layout of an existing entry that data failed to
// reconcile with.
type EntryError struct {
	Layout backend.Layout
	Err    error
}

func (e *EntryError) Error() string { return e.Err.Error() }

func (e *EntryError) Unwrap() error { return e.Err }

// Source describes the data about to be written.
type Source struct {
	// Extent is nil for rank 0.
	Extent      []uint64
	ElementType *message.Datatype
	// Text marks string data. StringLen is then the longest value in bytes.
	Text      bool
	StringLen int
}

// Rank returns the number of dimensions.
func (s Source) Rank() int { return len(s.Extent) }

// Overrides are caller preferences for a new entry. Nil fields defer to the
// policy.
type Overrides struct {
	Layout      *backend.Layout
	ChunkShape  []uint64
	Compression *int
	Extendable  *bool
}

// Plan is the value part of EntryProperties.
type Plan struct {
	Name   string
	Exists bool

	ElementType  *message.Datatype
	Rank         int
	Extent       []uint64
	MaxExtent    []uint64
	ElementCount uint64
	ByteCount    uint64

	Layout           backend.Layout
	ChunkExtent      []uint64
	Extensible       bool
	CompressionLevel int

	MemorySelection backend.Selection
	FileSelection   backend.Selection

	// Resize is set when an existing entry must change extent first.
	Resize bool
}

// CreateSpec returns the backend description of a new entry.
func (p *Plan) CreateSpec() backend.CreateSpec {
	spec := backend.CreateSpec{
		ElementType:      p.ElementType,
		Extent:           p.Extent,
		Layout:           p.Layout,
		ChunkExtent:      p.ChunkExtent,
		CompressionLevel: p.CompressionLevel,
	}
	if p.Extensible {
		spec.MaxExtent = p.MaxExtent
	}
	return spec
}

// EntryProperties is the resolved plan for one operation plus the
// scope-owned handle to the entry it targets.
type EntryProperties struct {
	Plan

	scope *handle.Scope
	entry *handle.Handle[backend.Entry]
}

// Entry returns the open entry, or nil when it does not exist yet.
func (ep *EntryProperties) Entry() backend.Entry {
	return ep.entry.Get()
}

// HasEntry reports whether an entry handle is held.
func (ep *EntryProperties) HasEntry() bool {
	return ep.entry.Valid()
}

// Attach takes ownership of e, typically right after creating it.
func (ep *EntryProperties) Attach(e backend.Entry) {
	if ep.entry.Valid() {
		_ = ep.entry.Release()
	}
	ep.entry = ownEntry(ep.scope, e)
	ep.Exists = true
}

// Close releases the entry handle. It is safe to call more than once.
func (ep *EntryProperties) Close() error {
	return ep.entry.Release()
}

func ownEntry(scope *handle.Scope, e backend.Entry) *handle.Handle[backend.Entry] {
	h := handle.New(e, func(e backend.Entry) error { return e.Close() })
	if scope != nil {
		handle.Add(scope, h)
	}
	return h
}

// NormalizeName cleans name into an absolute entry path.
func NormalizeName(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	clean := path.Clean("/" + name)
	if clean == "/" {
		return "", fmt.Errorf("%w: %q names the root group", ErrInvalidName, name)
	}
	return clean, nil
}

func product(extent []uint64) uint64 {
	n := uint64(1)
	for _, d := range extent {
		n *= d
	}
	return n
}

// SameType reports whether two element types are identical, comparing
// compound members recursively.
func SameType(a, b *message.Datatype) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Class != b.Class || a.Size != b.Size {
		return false
	}
	return sameClassProps(a, b)
}

// SameTextType compares string types ignoring their size.
func SameTextType(a, b *message.Datatype) bool {
	if a == nil || b == nil || a.Class != message.ClassString || b.Class != message.ClassString {
		return false
	}
	return a.CharSet == b.CharSet && a.StringPadding == b.StringPadding
}

func sameClassProps(a, b *message.Datatype) bool {
	switch a.Class {
	case message.ClassFixedPoint:
		return a.Signed == b.Signed && a.ByteOrder == b.ByteOrder
	case message.ClassFloatPoint:
		return a.ByteOrder == b.ByteOrder
	case message.ClassString:
		return SameTextType(a, b)
	case message.ClassCompound:
		if len(a.Members) != len(b.Members) {
			return false
		}
		for i, m := range a.Members {
			o := b.Members[i]
			if m.Name != o.Name || m.ByteOffset != o.ByteOffset || !SameType(m.Type, o.Type) {
				return false
			}
		}
		return true
	case message.ClassArray:
		return slices.Equal(a.ArrayDims, b.ArrayDims) && SameType(a.BaseType, b.BaseType)
	case message.ClassVarLen:
		return a.IsVarLenString == b.IsVarLenString && SameType(a.VarLenType, b.VarLenType)
	default:
		return slices.Equal(a.Properties, b.Properties)
	}
}

// textCapacity is the longest string, in bytes, a fixed string type holds.
func textCapacity(dt *message.Datatype) int {
	if dt.StringPadding == message.PadNullTerm {
		return int(dt.Size) - 1
	}
	return int(dt.Size)
}
