package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Fletcher32 appends a checksum of the chunk and verifies it on read.
type Fletcher32 struct{}

func (Fletcher32) ID() uint16 { return message.FilterFletcher32 }

func (Fletcher32) Encode(in []byte) ([]byte, error) {
	out := make([]byte, len(in), len(in)+4)
	copy(out, in)
	return binary.LittleEndian.AppendUint32(out, fletcher32(in)), nil
}

// Decode strips the trailing checksum. Files written by old libraries store
// it byte-swapped, so both forms are accepted.
func (Fletcher32) Decode(in []byte) ([]byte, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("fletcher32: %d bytes cannot hold a checksum", len(in))
	}
	data := in[:len(in)-4]
	stored := binary.LittleEndian.Uint32(in[len(data):])
	sum := fletcher32(data)
	if stored != sum && stored != bits.ReverseBytes32(sum) {
		return nil, fmt.Errorf("fletcher32: checksum %#08x, computed %#08x", stored, sum)
	}
	return data, nil
}

// fletcher32 sums big-endian 16-bit words, folding both sums every 360
// words. An odd trailing byte is the high byte of a final word.
func fletcher32(data []byte) uint32 {
	var sum1, sum2 uint32
	fold := func() {
		sum1 = sum1&0xFFFF + sum1>>16
		sum2 = sum2&0xFFFF + sum2>>16
	}
	words := len(data) / 2
	for words > 0 {
		block := min(words, 360)
		words -= block
		for ; block > 0; block-- {
			sum1 += uint32(data[0])<<8 | uint32(data[1])
			sum2 += sum1
			data = data[2:]
		}
		fold()
	}
	if len(data) == 1 {
		sum1 += uint32(data[0]) << 8
		sum2 += sum1
		fold()
	}
	fold()
	return sum2<<16 | sum1
}
