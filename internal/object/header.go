// Package object reads and writes version 2 object headers, the "OHDR"
// records holding the messages that describe a group or dataset. Version 1
// headers from other writers are read as well.
//
// Prefix layout:
//
//	0   4  signature "OHDR"
//	4   1  version (2)
//	5   1  flags: bits 0-1 size of the chunk size field, bit 2 creation
//	       order tracked, bit 4 attribute phase change values, bit 5 times
//	6   16 access, modification, change and birth times (bit 5)
//	    4  max compact and min dense attributes (bit 4)
//	    n  size of chunk 0
//
// Chunk 0 and every "OCHK" continuation block end in a lookup3 checksum.
//
// A version 1 header has no signature or checksum: a 16-byte prefix of
// version, message count, reference count and chunk 0 size is followed by
// messages with 8-byte headers and bodies padded to eight bytes.
// Continuation blocks hold bare messages.
package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/message"
)

var (
	signature             = []byte("OHDR")
	continuationSignature = []byte("OCHK")
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

const (
	flagSizeMask    = 0x03
	flagTrackOrder  = 0x04
	flagPhaseChange = 0x10
	flagTimes       = 0x20

	maxContinuations = 1024
)

// Header is a parsed object header. Continuation blocks are flattened into
// Messages; NIL messages are dropped.
type Header struct {
	Address  uint64
	Version  uint8
	Flags    uint8
	Messages []message.Message
}

// Read parses the object header at address.
func Read(r *binpkg.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address))
	prefix, err := hr.ReadBytes(6)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}
	if !bytes.Equal(prefix[:4], signature) {
		if prefix[0] == 1 {
			return readV1(r, address)
		}
		return nil, fmt.Errorf("%w: no signature at %d", ErrInvalidHeader, address)
	}
	if prefix[4] != 2 {
		return nil, fmt.Errorf("%w: %d at %d", ErrUnsupportedVersion, prefix[4], address)
	}

	h := &Header{Address: address, Version: 2, Flags: prefix[5]}
	if h.Flags&flagTimes != 0 {
		hr.Skip(16)
	}
	if h.Flags&flagPhaseChange != 0 {
		hr.Skip(4)
	}
	size, err := hr.ReadUintN(1 << (h.Flags & flagSizeMask))
	if err != nil {
		return nil, fmt.Errorf("reading chunk size at %d: %w", address, err)
	}

	prefixLen := int(hr.Pos() - int64(address))
	block, err := r.At(int64(address)).ReadBytes(prefixLen + int(size) + 4)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}
	body, err := checked(block)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}

	seen := make(map[uint64]bool)
	if err := h.parse(r, body[prefixLen:], seen); err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	return h, nil
}

// checked verifies the trailing checksum of block and returns the bytes it
// covers.
func checked(block []byte) ([]byte, error) {
	n := len(block) - 4
	if n < 0 {
		return nil, ErrInvalidHeader
	}
	if binary.LittleEndian.Uint32(block[n:]) != binpkg.Lookup3Checksum(block[:n]) {
		return nil, ErrChecksumMismatch
	}
	return block[:n], nil
}

func (h *Header) parse(r *binpkg.Reader, chunk []byte, seen map[uint64]bool) error {
	for len(chunk) >= 4 {
		var (
			typ   uint8
			size  int
			flags uint8
			head  int
		)
		if chunk[0] == 0xFF {
			if len(chunk) < 7 {
				break
			}
			typ, size, flags, head = chunk[1], int(binary.LittleEndian.Uint32(chunk[2:6])), chunk[6], 7
		} else {
			typ, size, flags, head = chunk[0], int(binary.LittleEndian.Uint16(chunk[1:3])), chunk[3], 4
		}
		if h.Flags&flagTrackOrder != 0 {
			head += 2
		}
		if head+size > len(chunk) {
			return fmt.Errorf("%w: message type %#x overruns its chunk", ErrInvalidHeader, typ)
		}
		data := chunk[head : head+size]
		chunk = chunk[head+size:]

		if err := h.add(r, message.Type(typ), data, flags, seen); err != nil {
			return err
		}
	}
	return nil
}

func (h *Header) add(r *binpkg.Reader, typ message.Type, data []byte, flags uint8, seen map[uint64]bool) error {
	if typ == message.TypeNIL {
		return nil
	}
	msg, err := message.Parse(typ, data, flags, r)
	if err != nil {
		return fmt.Errorf("parsing message type %#x: %w", typ, err)
	}
	if cont, ok := msg.(*message.Continuation); ok {
		return h.follow(r, cont, seen)
	}
	h.Messages = append(h.Messages, msg)
	return nil
}

func readV1(r *binpkg.Reader, address uint64) (*Header, error) {
	prefix, err := r.At(int64(address)).ReadBytes(16)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}
	size := binary.LittleEndian.Uint32(prefix[8:])
	chunk, err := r.At(int64(address) + 16).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", address, err)
	}
	h := &Header{Address: address, Version: 1}
	if err := h.parseV1(r, chunk, make(map[uint64]bool)); err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	return h, nil
}

func (h *Header) parseV1(r *binpkg.Reader, chunk []byte, seen map[uint64]bool) error {
	for len(chunk) >= 8 {
		typ := message.Type(binary.LittleEndian.Uint16(chunk))
		size := int(binary.LittleEndian.Uint16(chunk[2:]))
		flags := chunk[4]
		if 8+size > len(chunk) {
			return fmt.Errorf("%w: message type %#x overruns its chunk", ErrInvalidHeader, typ)
		}
		data := chunk[8 : 8+size]
		chunk = chunk[8+size:]
		if err := h.add(r, typ, data, flags, seen); err != nil {
			return err
		}
	}
	return nil
}

func (h *Header) follow(r *binpkg.Reader, cont *message.Continuation, seen map[uint64]bool) error {
	if seen[cont.Offset] || len(seen) >= maxContinuations {
		return fmt.Errorf("%w: continuation loop at %d", ErrInvalidHeader, cont.Offset)
	}
	seen[cont.Offset] = true

	block, err := r.At(int64(cont.Offset)).ReadBytes(int(cont.Length))
	if err != nil {
		return fmt.Errorf("reading continuation at %d: %w", cont.Offset, err)
	}
	if h.Version == 1 {
		return h.parseV1(r, block, seen)
	}
	if len(block) < 8 || !bytes.Equal(block[:4], continuationSignature) {
		return fmt.Errorf("%w: bad continuation block at %d", ErrInvalidHeader, cont.Offset)
	}
	body, err := checked(block)
	if err != nil {
		return fmt.Errorf("continuation at %d: %w", cont.Offset, err)
	}
	return h.parse(r, body[4:], seen)
}

// GetMessage returns the first message of type typ, or nil.
func (h *Header) GetMessage(typ message.Type) message.Message {
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			return msg
		}
	}
	return nil
}

// GetMessages returns every message of type typ in header order.
func (h *Header) GetMessages(typ message.Type) []message.Message {
	var out []message.Message
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			out = append(out, msg)
		}
	}
	return out
}

func find[M message.Message](h *Header, typ message.Type) M {
	m, _ := h.GetMessage(typ).(M)
	return m
}

// Dataspace returns the dataspace message; only datasets carry one.
func (h *Header) Dataspace() *message.Dataspace {
	return find[*message.Dataspace](h, message.TypeDataspace)
}

func (h *Header) Datatype() *message.Datatype {
	return find[*message.Datatype](h, message.TypeDatatype)
}

func (h *Header) DataLayout() *message.DataLayout {
	return find[*message.DataLayout](h, message.TypeDataLayout)
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	return find[*message.FilterPipeline](h, message.TypeFilterPipeline)
}
