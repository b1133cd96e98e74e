package filter

import "github.com/robert-malhotra/go-h5store/internal/message"

// Shuffle stores byte k of every element together so that deflate sees
// long runs of similar bytes. Trailing bytes that do not fill an element
// are left in place.
type Shuffle struct {
	size int
}

// NewShuffle reads the element size from the first client data value.
func NewShuffle(clientData []uint32) *Shuffle {
	if len(clientData) > 0 && clientData[0] > 1 {
		return &Shuffle{size: int(clientData[0])}
	}
	return &Shuffle{size: 1}
}

func (s *Shuffle) ID() uint16 { return message.FilterShuffle }

func (s *Shuffle) Encode(in []byte) ([]byte, error) {
	return s.transpose(in, true), nil
}

func (s *Shuffle) Decode(in []byte) ([]byte, error) {
	return s.transpose(in, false), nil
}

func (s *Shuffle) transpose(in []byte, forward bool) []byte {
	n := len(in) / s.size
	if s.size == 1 || n < 2 {
		return in
	}
	out := make([]byte, len(in))
	for e := 0; e < n; e++ {
		for k := 0; k < s.size; k++ {
			packed, planar := e*s.size+k, k*n+e
			if forward {
				out[planar] = in[packed]
			} else {
				out[packed] = in[planar]
			}
		}
	}
	copy(out[n*s.size:], in[n*s.size:])
	return out
}
