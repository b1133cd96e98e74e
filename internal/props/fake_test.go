package props

import (
	"fmt"
	"slices"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

// fakeContainer is an in-memory backend.Container that counts how many
// entry handles it hands out and how many come back.
type fakeContainer struct {
	entries map[string]*fakeEntry
	opened  int
	closed  int
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{entries: map[string]*fakeEntry{}}
}

func (c *fakeContainer) add(name string, e *fakeEntry) {
	e.c = c
	e.name = name
	c.entries[name] = e
}

func (c *fakeContainer) Path() string { return "fake.h5" }

func (c *fakeContainer) EntryExists(name string) bool {
	_, ok := c.entries[name]
	return ok
}

func (c *fakeContainer) AttributeExists(string, string) bool { return false }

func (c *fakeContainer) CreateEntry(name string, spec backend.CreateSpec) (backend.Entry, error) {
	e := &fakeEntry{
		dt:     spec.ElementType,
		extent: slices.Clone(spec.Extent),
		layout: spec.Layout,
		chunk:  slices.Clone(spec.ChunkExtent),
		level:  spec.CompressionLevel,
	}
	e.maxExtent = slices.Clone(spec.MaxExtent)
	if e.maxExtent == nil {
		e.maxExtent = slices.Clone(spec.Extent)
	}
	c.add(name, e)
	c.opened++
	return e, nil
}

func (c *fakeContainer) OpenEntry(name string) (backend.Entry, error) {
	e, ok := c.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, name)
	}
	c.opened++
	return e, nil
}

func (c *fakeContainer) WriteAttribute(string, backend.Attribute) error { return nil }
func (c *fakeContainer) ReadAttribute(string, string) (backend.Attribute, error) {
	return backend.Attribute{}, backend.ErrNotFound
}
func (c *fakeContainer) AttributeNames(string) ([]string, error) { return nil, nil }
func (c *fakeContainer) CreateGroup(string) error                { return nil }
func (c *fakeContainer) CreateSoftLink(string, string) error     { return nil }
func (c *fakeContainer) GroupMembers(string) ([]string, error)   { return nil, nil }
func (c *fakeContainer) Close() error                            { return nil }

type fakeEntry struct {
	c         *fakeContainer
	name      string
	dt        *message.Datatype
	extent    []uint64
	maxExtent []uint64
	layout    backend.Layout
	chunk     []uint64
	level     int
	data      []byte
}

func (e *fakeEntry) Name() string                   { return e.name }
func (e *fakeEntry) ElementType() *message.Datatype { return e.dt }
func (e *fakeEntry) Shape() (int, []uint64, []uint64) {
	return len(e.extent), slices.Clone(e.extent), slices.Clone(e.maxExtent)
}
func (e *fakeEntry) Layout() backend.Layout { return e.layout }
func (e *fakeEntry) ChunkShape() []uint64   { return slices.Clone(e.chunk) }
func (e *fakeEntry) CompressionLevel() int  { return e.level }

func (e *fakeEntry) SetExtent(extent []uint64) error {
	e.extent = slices.Clone(extent)
	return nil
}

func (e *fakeEntry) ReadRaw(_, _ backend.Selection, buf []byte) error {
	copy(buf, e.data)
	return nil
}

func (e *fakeEntry) WriteRaw(_, _ backend.Selection, buf []byte) error {
	e.data = slices.Clone(buf)
	return nil
}

func (e *fakeEntry) Close() error {
	e.c.closed++
	return nil
}
