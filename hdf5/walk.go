package hdf5

import (
	"path"
)

// WalkFunc is called for every object reached by Walk. obj is a *Group or a
// *Dataset, or nil when err reports that the object could not be opened.
// Returning a non-nil error stops the walk.
type WalkFunc func(path string, obj interface{}, err error) error

// Walk visits g and everything below it, parents before children, in link
// order.
func Walk(g *Group, fn WalkFunc) error {
	if err := fn(g.Path(), g, nil); err != nil {
		return err
	}
	members, err := g.Members()
	if err != nil {
		return err
	}
	for _, name := range members {
		obj, err := g.open(name)
		if err != nil {
			obj = nil
		}
		if sub, ok := obj.(*Group); ok {
			if err := Walk(sub, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(path.Join(g.Path(), name), obj, err); err != nil {
			return err
		}
	}
	return nil
}

// AttrInfo describes one attribute reached by WalkAttrs.
type AttrInfo struct {
	Path       string // object path and attribute name joined by '@'
	ObjectPath string
	ObjectType string // "group" or "dataset"
	Name       string
	Attr       *Attribute

	// Value is the decoded attribute, or nil with Err set when decoding
	// failed.
	Value interface{}
	Err   error
}

// WalkAttrsFunc is called once per attribute. Returning a non-nil error
// stops the walk.
type WalkAttrsFunc func(info AttrInfo) error

// WalkAttrs visits every attribute on every group and dataset in the file.
// Objects that cannot be opened are skipped.
func (f *File) WalkAttrs(fn WalkAttrsFunc) error {
	if f.closed {
		return ErrClosed
	}
	return Walk(f.root, func(p string, obj interface{}, err error) error {
		if err != nil {
			return nil
		}
		switch o := obj.(type) {
		case *Group:
			return visitAttrs(p, "group", o.Attrs(), o.Attr, fn)
		case *Dataset:
			return visitAttrs(p, "dataset", o.Attrs(), o.Attr, fn)
		}
		return nil
	})
}

func visitAttrs(objPath, kind string, names []string, get func(string) *Attribute, fn WalkAttrsFunc) error {
	for _, name := range names {
		info := AttrInfo{
			Path:       JoinAttrPath(objPath, name),
			ObjectPath: objPath,
			ObjectType: kind,
			Name:       name,
			Attr:       get(name),
		}
		if info.Attr != nil {
			info.Value, info.Err = info.Attr.Value()
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}
