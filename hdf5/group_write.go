package hdf5

import (
	"errors"
	"fmt"
	"path"

	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// CreateGroup creates the group at the absolute path p. Missing intermediate
// groups are created as well; existing groups along the path are reused.
func (f *File) CreateGroup(p string) (*Group, error) {
	if err := f.checkWritable(); err != nil {
		return nil, err
	}
	if err := f.ensureGroup(p); err != nil {
		return nil, err
	}
	return f.OpenGroup(CleanPath(p))
}

// ensureGroup makes sure every component of p exists as a group.
func (f *File) ensureGroup(p string) error {
	current := "/"
	for _, name := range SplitPath(p) {
		next := path.Join(current, name)

		h, err := f.lookupHard(next)
		switch {
		case err == nil:
			if h.Dataspace() != nil {
				return fmt.Errorf("%w: %s", ErrNotGroup, next)
			}
		case errors.Is(err, ErrNotFound):
			if err := f.createEmptyGroup(current, name); err != nil {
				return fmt.Errorf("creating group %s: %w", next, err)
			}
		default:
			return err
		}

		current = next
	}
	return nil
}

func (f *File) createEmptyGroup(parentPath, name string) error {
	addr, err := f.writeHeader(object.NewEmptyGroupHeader(), object.MinGroupChunkSize)
	if err != nil {
		return err
	}
	return f.addLink(parentPath, message.NewHardLink(name, addr))
}

// CreateSoftLink creates a soft link at linkPath pointing at the absolute
// path target. The target does not need to exist.
func (f *File) CreateSoftLink(linkPath, target string) error {
	if err := f.checkWritable(); err != nil {
		return err
	}

	linkPath = CleanPath(linkPath)
	if linkPath == "/" {
		return fmt.Errorf("%w: link path cannot be the root group", ErrInvalidPath)
	}

	parent := path.Dir(linkPath)
	if err := f.ensureGroup(parent); err != nil {
		return err
	}
	return f.addLink(parent, message.NewSoftLink(path.Base(linkPath), CleanPath(target)))
}

// Exists reports whether p resolves to an object, following soft links.
func (f *File) Exists(p string) bool {
	if f.closed {
		return false
	}
	_, err := f.root.open(p)
	return err == nil
}

// IsDataset reports whether p resolves to a dataset.
func (f *File) IsDataset(p string) bool {
	if f.closed {
		return false
	}
	obj, err := f.root.open(p)
	if err != nil {
		return false
	}
	_, ok := obj.(*Dataset)
	return ok
}

// CreateGroup creates a subgroup with the given name relative to g.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: group name cannot be empty", ErrInvalidPath)
	}
	return g.file.CreateGroup(path.Join(g.path, name))
}

// CreateSoftLink creates a soft link named name in g pointing at target.
func (g *Group) CreateSoftLink(name, target string) error {
	return g.file.CreateSoftLink(path.Join(g.path, name), target)
}
