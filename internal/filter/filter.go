// Package filter runs the chunk filter pipeline. Shuffle, deflate and
// fletcher32 are built in; any other required filter makes a dataset
// unreadable, while optional ones are skipped.
package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// ErrUnsupported reports a required filter this package cannot run.
var ErrUnsupported = errors.New("unsupported filter")

// Filter transforms one chunk. Encode produces the stored form and Decode
// reverses it.
type Filter interface {
	ID() uint16
	Encode(in []byte) ([]byte, error)
	Decode(in []byte) ([]byte, error)
}

var builtin = map[uint16]func(clientData []uint32) Filter{
	message.FilterDeflate:    func(cd []uint32) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32) Filter { return NewShuffle(cd) },
	message.FilterFletcher32: func([]uint32) Filter { return Fletcher32{} },
}

var wellKnown = map[uint16]string{
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
}

// New returns the filter info describes. It returns nil without error for
// an optional filter that is not built in.
func New(info message.FilterInfo) (Filter, error) {
	if mk, ok := builtin[info.ID]; ok {
		return mk(info.ClientData), nil
	}
	if info.IsOptional() {
		return nil, nil
	}
	name := info.Name
	if name == "" {
		name = wellKnown[info.ID]
	}
	if name == "" {
		return nil, fmt.Errorf("%w: id %d", ErrUnsupported, info.ID)
	}
	return nil, fmt.Errorf("%w: %s (id %d)", ErrUnsupported, name, info.ID)
}
