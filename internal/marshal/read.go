package marshal

import (
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/props"
	"github.com/robert-malhotra/go-h5store/internal/typeinfo"
)

// Read decodes the entry described by ep into dst, which must be a non-nil
// pointer to a supported container. Shape and type are checked before any
// data is read.
func Read(ep *props.EntryProperties, dst any) error {
	p := &ep.Plan

	rv := reflect.ValueOf(dst)
	if !rv.IsValid() || rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: destination must be a non-nil pointer", typeinfo.ErrUnsupportedType)
	}
	target := rv.Elem()
	info, err := typeinfo.Of(target.Type())
	if err != nil {
		return err
	}

	if err := checkDecodable(p.ElementType, info); err != nil {
		return fmt.Errorf("reading %s: %w", p.Name, err)
	}
	if err := checkShape(p, info, target); err != nil {
		return err
	}

	buf := make([]byte, p.ByteCount)
	if p.ByteCount > 0 {
		if err := ep.Entry().ReadRaw(p.MemorySelection, p.FileSelection, buf); err != nil {
			return fmt.Errorf("%w: %s (%s): %w", ErrReadFailed, p.Name, p.Layout, err)
		}
	}

	if err := decode(p.ElementType, p.Extent, buf, info, target); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrReadFailed, p.Name, err)
	}
	return nil
}

func checkShape(p *props.Plan, info typeinfo.Info, target reflect.Value) error {
	switch info.Category {
	case typeinfo.Scalar, typeinfo.Text:
		if p.ElementCount != 1 {
			return fmt.Errorf("%w: %s has %d elements, destination holds one",
				props.ErrExtentMismatch, p.Name, p.ElementCount)
		}
	case typeinfo.FixedArray:
		if p.ElementCount != uint64(target.Len()) {
			return fmt.Errorf("%w: %s has %d elements, destination holds %d",
				props.ErrExtentMismatch, p.Name, p.ElementCount, target.Len())
		}
	case typeinfo.Sequence1D:
		if p.Rank > 1 {
			return fmt.Errorf("%w: %s has rank %d, destination is one-dimensional",
				props.ErrRankMismatch, p.Name, p.Rank)
		}
	case typeinfo.BlockRowMajor, typeinfo.BlockColMajor:
		if !info.Tensor && p.Rank != info.Rank {
			return fmt.Errorf("%w: %s has rank %d, destination has rank %d",
				props.ErrRankMismatch, p.Name, p.Rank, info.Rank)
		}
	}
	return nil
}
