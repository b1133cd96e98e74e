package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/go-h5store/internal/btree"
	"github.com/robert-malhotra/go-h5store/internal/heap"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// Group is a group in an open file. Its links are read from compact link
// messages or, in files from older writers, from a symbol table: a version 1
// B-tree of symbol table nodes whose names live in a local heap. Groups
// with dense link storage are not supported.
type Group struct {
	file   *File
	path   string
	header *object.Header
	addr   uint64
}

// target is what a link resolves to.
type target struct {
	addr    uint64
	dataset bool
}

// Name returns the last path component, or "/" for the root group.
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return path.Base(g.path)
}

// Path returns the absolute path of the group.
func (g *Group) Path() string {
	return g.path
}

// OpenGroup opens the group at a path relative to g.
func (g *Group) OpenGroup(rel string) (*Group, error) {
	obj, err := g.open(rel)
	if err != nil {
		return nil, err
	}
	group, ok := obj.(*Group)
	if !ok {
		return nil, ErrNotGroup
	}
	return group, nil
}

// OpenDataset opens the dataset at a path relative to g.
func (g *Group) OpenDataset(rel string) (*Dataset, error) {
	obj, err := g.open(rel)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*Dataset)
	if !ok {
		return nil, ErrNotDataset
	}
	return ds, nil
}

// open walks rel one component at a time, following soft links, and returns
// a *Group or *Dataset.
func (g *Group) open(rel string) (interface{}, error) {
	parts := SplitPath(rel)
	cur := g
	hops := make(map[string]bool)

	for i, name := range parts {
		t, err := cur.child(name, hops)
		if err != nil {
			return nil, fmt.Errorf("finding %q: %w", name, err)
		}
		p := path.Join(cur.path, name)

		if i == len(parts)-1 {
			if t.dataset {
				return g.file.openDatasetAt(t.addr, p)
			}
			return g.file.openGroupAt(t.addr, p)
		}
		if t.dataset {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, p)
		}
		if cur, err = g.file.openGroupAt(t.addr, p); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// child resolves the link called name. hops records the soft link targets
// already followed during one lookup.
func (g *Group) child(name string, hops map[string]bool) (target, error) {
	links, err := g.links()
	if err != nil {
		return target{}, err
	}
	var link *message.Link
	for _, l := range links {
		if l.Name == name {
			link = l
			break
		}
	}

	switch {
	case link == nil:
		return target{}, ErrNotFound
	case link.IsHard():
		ds, err := g.file.isDatasetAt(link.ObjectAddress)
		return target{addr: link.ObjectAddress, dataset: ds}, err
	case link.IsSoft():
		dest := link.SoftLinkValue
		if hops[dest] || len(hops) >= MaxLinkDepth {
			return target{}, fmt.Errorf("%w: following %s", ErrLinkDepth, dest)
		}
		hops[dest] = true
		return g.file.resolve(dest, hops)
	default:
		return target{}, fmt.Errorf("%w: link %q of type %d", ErrUnsupported, name, link.LinkType)
	}
}

// links returns the group's links in storage order.
func (g *Group) links() ([]*message.Link, error) {
	st, ok := g.header.GetMessage(message.TypeSymbolTable).(*message.SymbolTable)
	if !ok {
		if g.file.denseStorage(g.header, message.TypeLinkInfo) {
			return nil, fmt.Errorf("%w: dense link storage in %s", ErrUnsupported, g.path)
		}
		var out []*message.Link
		for _, msg := range g.header.GetMessages(message.TypeLink) {
			out = append(out, msg.(*message.Link))
		}
		return out, nil
	}

	names, err := heap.ReadLocalHeap(g.file.reader, st.HeapAddress)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table of %s: %w", g.path, err)
	}
	entries, err := btree.ReadGroup(g.file.reader, st.BTreeAddress, names)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table of %s: %w", g.path, err)
	}
	out := make([]*message.Link, len(entries))
	for i, e := range entries {
		if e.SoftLink != "" {
			out[i] = message.NewSoftLink(e.Name, e.SoftLink)
		} else {
			out[i] = message.NewHardLink(e.Name, e.ObjectAddress)
		}
	}
	return out, nil
}

// Members returns the names of the group's links in storage order: header
// order for link messages, name order for symbol tables.
func (g *Group) Members() ([]string, error) {
	links, err := g.links()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

// Attrs returns the names of the group's attributes.
func (g *Group) Attrs() []string { return attrNames(g.header) }

// Attr returns the attribute called name, or nil.
func (g *Group) Attr(name string) *Attribute { return g.file.attr(g.header, name) }
