package h5store

import (
	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/handle"
	"github.com/robert-malhotra/go-h5store/internal/props"
)

// GroupContents lists the member names of group name. "" and "/" name the
// root group.
func (f *File) GroupContents(name string) ([]string, error) {
	name = linkName(name)
	var members []string
	err := f.session(backend.ReadOnly, func(c backend.Container, _ *handle.Scope) error {
		var err error
		members, err = c.GroupMembers(name)
		return backendErr(err)
	})
	if err != nil {
		return nil, &Error{Op: "group contents", Entry: name, Err: err}
	}
	return members, nil
}

// CreateGroup creates group name and any missing parents.
func (f *File) CreateGroup(name string) error {
	clean, err := props.NormalizeName(name)
	if err != nil {
		return &Error{Op: "create group", Entry: name, Err: err}
	}
	err = f.session(backend.ReadWrite, func(c backend.Container, _ *handle.Scope) error {
		return backendErr(c.CreateGroup(clean))
	})
	if err != nil {
		return &Error{Op: "create group", Entry: clean, Err: err}
	}
	return nil
}

// CreateSoftLink creates a soft link name pointing at target. The target
// need not exist.
func (f *File) CreateSoftLink(name, target string) error {
	clean, err := props.NormalizeName(name)
	if err != nil {
		return &Error{Op: "create soft link", Entry: name, Err: err}
	}
	err = f.session(backend.ReadWrite, func(c backend.Container, _ *handle.Scope) error {
		return backendErr(c.CreateSoftLink(clean, target))
	})
	if err != nil {
		return &Error{Op: "create soft link", Entry: clean, Err: err}
	}
	return nil
}
