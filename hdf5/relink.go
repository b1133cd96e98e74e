package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// Object headers written by this package are never modified in place. A
// changed header is written to freshly allocated space and the link naming
// it in the parent group is rewritten, which in turn rewrites the parent, up
// to the root group whose new address goes into the superblock.

// lookupHard resolves an absolute path through hard links only and returns
// the object header it names. Paths that cross a soft or external link, or a
// symbol table group, cannot be modified and resolve to ErrUnsupported.
func (f *File) lookupHard(p string) (*object.Header, error) {
	h, err := object.Read(f.reader, f.superblock.RootGroupAddress)
	if err != nil {
		return nil, fmt.Errorf("reading root group: %w", err)
	}

	for _, name := range SplitPath(p) {
		if h.Dataspace() != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotGroup, p)
		}
		parts, err := f.splitGroup(h)
		if err != nil {
			return nil, err
		}
		link := parts.link(name)
		if link == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		if !link.IsHard() {
			return nil, fmt.Errorf("%w: modifying objects through soft or external link %q", ErrUnsupported, name)
		}
		if h, err = object.Read(f.reader, link.ObjectAddress); err != nil {
			return nil, fmt.Errorf("reading %q: %w", name, err)
		}
	}

	return h, nil
}

// groupParts holds the rewritable content of a group object header.
type groupParts struct {
	links []*message.Link
	attrs []*message.Attribute
}

func (g *groupParts) link(name string) *message.Link {
	for _, l := range g.links {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (g *groupParts) messages() []message.Message {
	msgs := object.NewGroupHeader(g.links)
	for _, a := range g.attrs {
		msgs = append(msgs, a)
	}
	return msgs
}

// splitGroup extracts links and attributes from a compact link-storage group.
func (f *File) splitGroup(h *object.Header) (*groupParts, error) {
	if h.GetMessage(message.TypeSymbolTable) != nil {
		return nil, fmt.Errorf("%w: modifying symbol table groups", ErrUnsupported)
	}
	if f.denseStorage(h, message.TypeLinkInfo) {
		return nil, fmt.Errorf("%w: modifying groups with dense link storage", ErrUnsupported)
	}

	parts := &groupParts{attrs: attributesOf(h)}
	for _, msg := range h.GetMessages(message.TypeLink) {
		l := *msg.(*message.Link)
		parts.links = append(parts.links, &l)
	}
	return parts, nil
}

// datasetParts holds the rewritable content of a dataset object header.
type datasetParts struct {
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    *message.DataLayout
	filters   *message.FilterPipeline
	attrs     []*message.Attribute
}

func (d *datasetParts) messages() []message.Message {
	msgs := object.NewDatasetHeader(d.dataspace, d.datatype, d.layout)
	if d.filters != nil && len(d.filters.Filters) > 0 {
		msgs = append(msgs, d.filters)
	}
	for _, a := range d.attrs {
		msgs = append(msgs, a)
	}
	return msgs
}

func (f *File) splitDataset(h *object.Header) (*datasetParts, error) {
	if f.denseStorage(h, message.TypeAttributeInfo) {
		return nil, fmt.Errorf("%w: modifying datasets with dense attribute storage", ErrUnsupported)
	}
	return &datasetParts{
		dataspace: h.Dataspace(),
		datatype:  h.Datatype(),
		layout:    h.DataLayout(),
		filters:   h.FilterPipeline(),
		attrs:     attributesOf(h),
	}, nil
}

func attributesOf(h *object.Header) []*message.Attribute {
	var attrs []*message.Attribute
	for _, msg := range h.GetMessages(message.TypeAttribute) {
		attrs = append(attrs, msg.(*message.Attribute))
	}
	return attrs
}

// denseStorage reports whether a link info or attribute info message points
// at a fractal heap, meaning the entries live outside the object header.
func (f *File) denseStorage(h *object.Header, typ message.Type) bool {
	msg, ok := h.GetMessage(typ).(*message.Unknown)
	if !ok {
		return false
	}
	data := msg.Data()
	if len(data) < 2 {
		return false
	}

	off := 2
	if data[1]&0x01 != 0 {
		// Max creation index: 8 bytes for links, 2 for attributes.
		if typ == message.TypeLinkInfo {
			off += 8
		} else {
			off += 2
		}
	}

	size := f.reader.OffsetSize()
	if off+size > len(data) {
		return false
	}
	var addr uint64
	for i := 0; i < size; i++ {
		addr |= uint64(data[off+i]) << (8 * i)
	}
	return addr != f.reader.UndefinedOffset()
}

// writeHeader writes a new object header and returns its address.
func (f *File) writeHeader(messages []message.Message, minChunk int) (uint64, error) {
	size := object.HeaderSizeWithMinChunk(f.writer, messages, minChunk)
	addr := f.allocate(int64(size))
	if _, err := object.WriteHeaderWithMinChunk(f.writer.At(int64(addr)), messages, minChunk); err != nil {
		return 0, fmt.Errorf("writing object header: %w", err)
	}
	return addr, nil
}

// commitHeader writes messages as the new header of the object at p and
// relinks it.
func (f *File) commitHeader(p string, messages []message.Message, minChunk int) (uint64, error) {
	addr, err := f.writeHeader(messages, minChunk)
	if err != nil {
		return 0, err
	}
	if err := f.relink(p, addr); err != nil {
		return 0, err
	}
	return addr, nil
}

// relink points the link naming p at addr, rewriting every ancestor.
func (f *File) relink(p string, addr uint64) error {
	p = CleanPath(p)
	if p == "/" {
		f.superblock.RootGroupAddress = addr
		return f.reloadRoot()
	}

	parentPath, name := path.Dir(p), path.Base(p)
	parent, err := f.lookupHard(parentPath)
	if err != nil {
		return err
	}
	parts, err := f.splitGroup(parent)
	if err != nil {
		return err
	}

	link := parts.link(name)
	if link == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	if !link.IsHard() {
		return fmt.Errorf("%w: relinking soft link %s", ErrUnsupported, p)
	}
	link.ObjectAddress = addr

	_, err = f.commitHeader(parentPath, parts.messages(), object.MinGroupChunkSize)
	return err
}

// addLink adds link to the group at parentPath.
func (f *File) addLink(parentPath string, link *message.Link) error {
	parent, err := f.lookupHard(parentPath)
	if err != nil {
		return err
	}
	if parent.Dataspace() != nil {
		return fmt.Errorf("%w: %s", ErrNotGroup, parentPath)
	}
	parts, err := f.splitGroup(parent)
	if err != nil {
		return err
	}
	if parts.link(link.Name) != nil {
		return fmt.Errorf("%w: %s", ErrExists, path.Join(CleanPath(parentPath), link.Name))
	}

	parts.links = append(parts.links, link)
	_, err = f.commitHeader(parentPath, parts.messages(), object.MinGroupChunkSize)
	return err
}
