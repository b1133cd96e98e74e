// Package backend defines the entry-store contract the resolution and
// marshalling engine runs against, together with the process-wide registry
// of open containers.
//
// The HDF5 implementation lives in package h5.
package backend

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Unlimited marks an unbounded maximum extent.
const Unlimited = ^uint64(0)

var (
	// ErrNotFound is returned when a name does not resolve to an entry,
	// group or attribute.
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned for writes to a container opened read-only.
	ErrReadOnly = errors.New("container is read-only")
)

// Layout is the storage layout of an entry.
type Layout uint8

const (
	Contiguous Layout = iota
	Chunked
	Compact
)

func (l Layout) String() string {
	switch l {
	case Contiguous:
		return "CONTIGUOUS"
	case Chunked:
		return "CHUNKED"
	case Compact:
		return "COMPACT"
	default:
		return fmt.Sprintf("LAYOUT(%d)", uint8(l))
	}
}

// Mode selects how a container is opened.
type Mode uint8

const (
	// ReadOnly opens an existing container for reading.
	ReadOnly Mode = iota
	// ReadWrite opens an existing container for reading and writing.
	ReadWrite
	// Create creates a new container, replacing any existing file.
	Create
)

// Selection is a hyperslab: Count elements per dimension starting at Start.
// A nil Start selects from the origin.
type Selection struct {
	Start []uint64
	Count []uint64
}

// All selects the whole of extent.
func All(extent []uint64) Selection {
	return Selection{
		Start: make([]uint64, len(extent)),
		Count: append([]uint64(nil), extent...),
	}
}

// Elements returns the number of selected elements.
func (s Selection) Elements() uint64 {
	n := uint64(1)
	for _, c := range s.Count {
		n *= c
	}
	return n
}

// CreateSpec describes a new entry.
type CreateSpec struct {
	ElementType *message.Datatype
	// Extent is nil for a scalar entry.
	Extent []uint64
	// MaxExtent is nil for a fixed-size entry.
	MaxExtent        []uint64
	Layout           Layout
	ChunkExtent      []uint64
	CompressionLevel int
}

// Attribute is a small named value attached to a group or entry.
type Attribute struct {
	Name        string
	ElementType *message.Datatype
	// Extent is nil for a scalar attribute.
	Extent []uint64
	Data   []byte
}

// Opener opens containers.
type Opener interface {
	Open(path string, mode Mode) (Container, error)
}

// Container is an open container file.
type Container interface {
	Path() string

	EntryExists(name string) bool
	AttributeExists(link, attr string) bool

	CreateEntry(name string, spec CreateSpec) (Entry, error)
	OpenEntry(name string) (Entry, error)

	WriteAttribute(link string, attr Attribute) error
	ReadAttribute(link, name string) (Attribute, error)
	AttributeNames(link string) ([]string, error)

	CreateGroup(name string) error
	CreateSoftLink(name, target string) error
	GroupMembers(name string) ([]string, error)

	Close() error
}

// Entry is an open dataset.
type Entry interface {
	Name() string
	ElementType() *message.Datatype
	Shape() (rank int, extent, maxExtent []uint64)
	Layout() Layout
	ChunkShape() []uint64
	CompressionLevel() int

	// SetExtent resizes a chunked entry.
	SetExtent(extent []uint64) error

	// ReadRaw reads the file selection into buf. The memory selection must
	// describe all of buf in row-major order.
	ReadRaw(mem, file Selection, buf []byte) error
	// WriteRaw writes buf to the file selection. The memory selection must
	// describe all of buf in row-major order.
	WriteRaw(mem, file Selection, buf []byte) error

	Close() error
}
