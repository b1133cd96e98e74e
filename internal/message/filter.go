package message

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// Filter IDs registered with the HDF Group.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16 // bit 0 marks the filter optional
	Name       string
	ClientData []uint32
}

func (f *FilterInfo) IsOptional() bool { return f.Flags&0x01 != 0 }

// FilterPipeline lists the filters applied to every chunk, in encode order.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// NewFilterPipeline returns the shuffle and deflate stages for a chunked
// dataset of elemSize-byte elements, or nil when neither is requested.
func NewFilterPipeline(elemSize uint32, level int, shuffle bool) *FilterPipeline {
	fp := &FilterPipeline{Version: 2}
	if shuffle {
		fp.Filters = append(fp.Filters, FilterInfo{ID: FilterShuffle, ClientData: []uint32{elemSize}})
	}
	if level > 0 {
		fp.Filters = append(fp.Filters, FilterInfo{ID: FilterDeflate, Flags: 0x01, ClientData: []uint32{uint32(level)}})
	}
	if len(fp.Filters) == 0 {
		return nil
	}
	return fp
}

// DeflateLevel returns the deflate level of the pipeline, or 0 when it has
// no deflate stage. A nil pipeline is empty.
func (m *FilterPipeline) DeflateLevel() int {
	if m == nil {
		return 0
	}
	for _, f := range m.Filters {
		if f.ID == FilterDeflate {
			if len(f.ClientData) == 0 {
				return 6
			}
			return int(f.ClientData[0])
		}
	}
	return 0
}

// Version 1 pads names to eight bytes and client data to an even count.
// Version 2 drops the name of filters with an ID below 256.
func parseFilterPipeline(data []byte) (*FilterPipeline, error) {
	d := decoder{buf: data}
	fp := &FilterPipeline{Version: d.u8()}
	n := int(d.u8())
	if fp.Version == 1 {
		d.skip(6)
	}
	if d.err == nil && fp.Version != 1 && fp.Version != 2 {
		return nil, fmt.Errorf("filter pipeline: unsupported version %d", fp.Version)
	}

	for i := 0; i < n && d.err == nil; i++ {
		f := FilterInfo{ID: d.u16()}
		var nameLen int
		if fp.Version == 1 || f.ID >= 256 {
			nameLen = int(d.u16())
		}
		f.Flags = d.u16()
		ncd := int(d.u16())
		if fp.Version == 1 {
			nameLen = (nameLen + 7) &^ 7
		}
		f.Name = trimNul(d.take(nameLen))
		for j := 0; j < ncd; j++ {
			f.ClientData = append(f.ClientData, d.u32())
		}
		if fp.Version == 1 && ncd%2 == 1 {
			d.skip(4)
		}
		fp.Filters = append(fp.Filters, f)
	}
	if d.err != nil {
		return nil, fmt.Errorf("filter pipeline: %w", d.err)
	}
	return fp, nil
}

func (m *FilterPipeline) appendTo(buf []byte, _ sizes) []byte {
	buf = append(buf, 2, uint8(len(m.Filters)))
	for _, f := range m.Filters {
		buf = appendU16(buf, f.ID)
		custom := f.ID >= 256
		if custom {
			buf = appendU16(buf, uint16(len(f.Name)+1))
		}
		buf = appendU16(buf, f.Flags)
		buf = appendU16(buf, uint16(len(f.ClientData)))
		if custom {
			buf = append(append(buf, f.Name...), 0)
		}
		for _, v := range f.ClientData {
			buf = appendU32(buf, v)
		}
	}
	return buf
}

func (m *FilterPipeline) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *FilterPipeline) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }
