package h5store

import (
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/handle"
	"github.com/robert-malhotra/go-h5store/internal/marshal"
	"github.com/robert-malhotra/go-h5store/internal/metrics"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
)

const (
	opWriteAttribute = "write attribute"
	opReadAttribute  = "read attribute"
	opAttributeNames = "attribute names"
)

// WriteAttribute attaches v as attribute attr of the group or entry link,
// replacing an existing attribute of the same name.
func WriteAttribute[T any](f *File, link, attr string, v T) error {
	if _, err := typeinfo.For[T](); err != nil {
		return &Error{Op: opWriteAttribute, Entry: attrPath(link, attr), Err: err}
	}
	return f.writeAttribute(link, attr, v)
}

// ReadAttribute reads attribute attr of link into a new T.
func ReadAttribute[T any](f *File, link, attr string) (T, error) {
	var v T
	if _, err := typeinfo.For[T](); err != nil {
		return v, &Error{Op: opReadAttribute, Entry: attrPath(link, attr), Err: err}
	}
	err := f.readAttribute(link, attr, &v)
	return v, err
}

func attrPath(link, attr string) string {
	return linkName(link) + "@" + attr
}

// linkName maps "" to the root group.
func linkName(link string) string {
	if link == "" {
		return "/"
	}
	return link
}

func (f *File) writeAttribute(link, attr string, v any) (err error) {
	defer func() { f.stats.Observe(metrics.OpWriteAttribute, err) }()

	a, err := marshal.EncodeAttribute(attr, v)
	if err != nil {
		return &Error{Op: opWriteAttribute, Entry: attrPath(link, attr), Err: err}
	}
	err = f.session(backend.ReadWrite, func(c backend.Container, _ *handle.Scope) error {
		if err := c.WriteAttribute(linkName(link), a); err != nil {
			return backendErr(err)
		}
		f.stats.AddWritten(uint64(len(a.Data)))
		return nil
	})
	if err != nil {
		return &Error{Op: opWriteAttribute, Entry: attrPath(link, attr), Err: err}
	}
	return nil
}

func (f *File) readAttribute(link, attr string, dst any) (err error) {
	defer func() { f.stats.Observe(metrics.OpReadAttribute, err) }()

	err = f.session(backend.ReadOnly, func(c backend.Container, _ *handle.Scope) error {
		if !c.AttributeExists(linkName(link), attr) {
			return fmt.Errorf("%w: %s on %s", ErrAttributeNotFound, attr, linkName(link))
		}
		a, err := c.ReadAttribute(linkName(link), attr)
		if err != nil {
			return backendErr(err)
		}
		if err := marshal.DecodeAttribute(a, dst); err != nil {
			return err
		}
		f.stats.AddRead(uint64(len(a.Data)))
		return nil
	})
	if err != nil {
		return &Error{Op: opReadAttribute, Entry: attrPath(link, attr), Err: err}
	}
	return nil
}

// AttributeExists reports whether link carries attribute attr.
func (f *File) AttributeExists(link, attr string) bool {
	var ok bool
	err := f.session(backend.ReadOnly, func(c backend.Container, _ *handle.Scope) error {
		ok = c.AttributeExists(linkName(link), attr)
		return nil
	})
	return err == nil && ok
}

// AttributeNames lists the attributes of link.
func (f *File) AttributeNames(link string) ([]string, error) {
	var names []string
	err := f.session(backend.ReadOnly, func(c backend.Container, _ *handle.Scope) error {
		var err error
		names, err = c.AttributeNames(linkName(link))
		return backendErr(err)
	})
	if err != nil {
		return nil, &Error{Op: opAttributeNames, Entry: linkName(link), Err: err}
	}
	return names, nil
}
