package hdf5

import (
	"fmt"
	"os"

	"github.com/robert-malhotra/go-h5store/internal/alloc"
	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/object"
	"github.com/robert-malhotra/go-h5store/internal/superblock"
)

// File is an open HDF5 file. A File is not safe for concurrent use.
type File struct {
	path       string
	file       *os.File
	reader     *binpkg.Reader
	superblock *superblock.Superblock
	root       *Group
	closed     bool

	// Set by Create and OpenReadWrite.
	writable  bool
	writer    *binpkg.Writer
	allocator *alloc.Allocator
}

// Open opens an existing file read-only.
func Open(path string) (*File, error) {
	osFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	sb, err := superblock.Read(osFile)
	if err != nil {
		osFile.Close()
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	f := &File{
		path:       path,
		file:       osFile,
		reader:     binpkg.NewReader(osFile, sb.ReaderConfig()),
		superblock: sb,
	}
	if err := f.reloadRoot(); err != nil {
		osFile.Close()
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	return f, nil
}

// Close writes the superblock of a writable file and closes it. Closing
// twice is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	if f.writable {
		if err := f.flush(); err != nil {
			f.file.Close()
			return err
		}
	}
	return f.file.Close()
}

func (f *File) Root() *Group { return f.root }

func (f *File) Path() string { return f.path }

// Version is the superblock version.
func (f *File) Version() int { return int(f.superblock.Version) }

// OpenGroup opens the group at an absolute path.
func (f *File) OpenGroup(p string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenGroup(p)
}

// OpenDataset opens the dataset at an absolute path.
func (f *File) OpenDataset(p string) (*Dataset, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenDataset(p)
}

func (f *File) openGroupAt(addr uint64, p string) (*Group, error) {
	h, err := object.Read(f.reader, addr)
	if err != nil {
		return nil, fmt.Errorf("reading group %s: %w", p, err)
	}
	return &Group{file: f, path: p, header: h, addr: addr}, nil
}

func (f *File) openDatasetAt(addr uint64, p string) (*Dataset, error) {
	h, err := object.Read(f.reader, addr)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", p, err)
	}
	return newDataset(f, p, h)
}

// headerAt returns the header of the group or dataset at p.
func (f *File) headerAt(p string) (*object.Header, error) {
	if f.closed {
		return nil, ErrClosed
	}
	obj, err := f.root.open(p)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case *Group:
		return o.header, nil
	case *Dataset:
		return o.header, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
}

// GetAttr returns the attribute named by an "object@attr" path, such as
// "/@version" or "/sensors/temp@units".
func (f *File) GetAttr(attrPath string) (*Attribute, error) {
	objPath, name, err := ParseAttrPath(attrPath)
	if err != nil {
		return nil, err
	}
	h, err := f.headerAt(objPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", objPath, err)
	}
	if a := f.attr(h, name); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("%w: attribute %s", ErrNotFound, attrPath)
}

// ReadAttr is GetAttr followed by Attribute.Value.
func (f *File) ReadAttr(attrPath string) (any, error) {
	a, err := f.GetAttr(attrPath)
	if err != nil {
		return nil, err
	}
	return a.Value()
}

// resolve looks up an absolute path from the root group. It backs soft
// link resolution, so hops carries over from the link being followed.
func (f *File) resolve(abs string, hops map[string]bool) (target, error) {
	parts := SplitPath(abs)
	if len(parts) == 0 {
		return target{addr: f.superblock.RootGroupAddress}, nil
	}
	cur := f.root
	for i, name := range parts {
		t, err := cur.child(name, hops)
		if err != nil {
			return target{}, fmt.Errorf("resolving %q in %s: %w", name, abs, err)
		}
		if i == len(parts)-1 {
			return t, nil
		}
		if t.dataset {
			return target{}, fmt.Errorf("%w: %q in %s", ErrNotGroup, name, abs)
		}
		if cur, err = f.openGroupAt(t.addr, ""); err != nil {
			return target{}, err
		}
	}
	return target{}, nil
}

// isDatasetAt reports whether the header at addr carries a dataspace, which
// groups never do.
func (f *File) isDatasetAt(addr uint64) (bool, error) {
	h, err := object.Read(f.reader, addr)
	if err != nil {
		return false, fmt.Errorf("reading object header: %w", err)
	}
	return h.Dataspace() != nil, nil
}
