package marshal

import (
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/props"
)

// Write stores val into the entry described by ep, creating it on c when it
// does not exist yet and resizing it when its extent changed.
func Write(ep *props.EntryProperties, c backend.Container, val *Value) error {
	p := &ep.Plan
	fail := func(err error) error {
		return fmt.Errorf("%w: %s (%s): %w", ErrWriteFailed, p.Name, p.Layout, err)
	}

	if !val.Text && uintptr(p.ElementType.Size) != val.Info.Elem.Size() {
		return fmt.Errorf("%w: %s stores %d-byte elements, %v is %d bytes",
			ErrTypeSizeMismatch, p.Name, p.ElementType.Size, val.Info.Elem, val.Info.Elem.Size())
	}

	buf, err := Encode(val, p.ElementType)
	if err != nil {
		return fail(err)
	}

	if !p.Exists {
		e, err := c.CreateEntry(p.Name, p.CreateSpec())
		if err != nil {
			return fail(err)
		}
		ep.Attach(e)
	} else if p.Resize {
		if err := ep.Entry().SetExtent(p.Extent); err != nil {
			return fail(err)
		}
	}

	if p.ByteCount == 0 || len(buf) == 0 {
		return nil
	}
	if err := ep.Entry().WriteRaw(p.MemorySelection, p.FileSelection, buf); err != nil {
		return fail(err)
	}
	return nil
}
